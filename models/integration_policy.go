package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/upb/integration-gateway/internal/policy"
)

// IntegrationPolicy is one immutable revision of a terminal integration's
// permissions. Revisions are only ever appended.
type IntegrationPolicy struct {
	ID                    uuid.UUID            `json:"id" db:"id"`
	TerminalIntegrationID uuid.UUID            `json:"terminal_integration_id" db:"terminal_integration_id"`
	Provider              policy.Provider      `json:"provider" db:"provider"`
	Version               int                  `json:"version" db:"version"`
	Content               policy.Content       `json:"content" db:"content"` // JSONB
	SecurityLevel         policy.SecurityLevel `json:"security_level" db:"security_level"`
	CreatedBy             string               `json:"created_by" db:"created_by"`
	CreatedAt             time.Time            `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the IntegrationPolicy model
func (IntegrationPolicy) TableName() string {
	return "integration_policies"
}

// NewIntegrationPolicy builds revision version of content. The security
// level is derived from content on every call.
func NewIntegrationPolicy(integration *TerminalIntegration, version int, content policy.Content, createdBy string) (*IntegrationPolicy, error) {
	level, err := policy.Classify(integration.Provider, content)
	if err != nil {
		return nil, err
	}
	return &IntegrationPolicy{
		ID:                    uuid.New(),
		TerminalIntegrationID: integration.ID,
		Provider:              integration.Provider,
		Version:               version,
		Content:               content,
		SecurityLevel:         level,
		CreatedBy:             createdBy,
		CreatedAt:             time.Now().UTC(),
	}, nil
}

// HighRiskConfirmation records that a user acknowledged a high-risk
// capability for one terminal integration.
type HighRiskConfirmation struct {
	ID                    uuid.UUID         `json:"id" db:"id"`
	TerminalIntegrationID uuid.UUID         `json:"terminal_integration_id" db:"terminal_integration_id"`
	Capability            policy.Capability `json:"capability" db:"capability"`
	ConfirmedBy           string            `json:"confirmed_by" db:"confirmed_by"`
	ConfirmedAt           time.Time         `json:"confirmed_at" db:"confirmed_at"`
}

// TableName returns the table name for the HighRiskConfirmation model
func (HighRiskConfirmation) TableName() string {
	return "high_risk_confirmations"
}

// NewHighRiskConfirmation creates a confirmation for capability
func NewHighRiskConfirmation(integrationID uuid.UUID, capability policy.Capability, confirmedBy string) *HighRiskConfirmation {
	return &HighRiskConfirmation{
		ID:                    uuid.New(),
		TerminalIntegrationID: integrationID,
		Capability:            capability,
		ConfirmedBy:           confirmedBy,
		ConfirmedAt:           time.Now().UTC(),
	}
}
