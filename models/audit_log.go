package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/upb/integration-gateway/internal/policy"
)

// AuditDecision is the outcome recorded for one gateway call
type AuditDecision string

const (
	AuditDecisionAllowed  AuditDecision = "allowed"
	AuditDecisionDenied   AuditDecision = "denied"
	AuditDecisionFiltered AuditDecision = "filtered"
)

// AuditLog is an immutable record of one gateway decision
type AuditLog struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	TerminalIntegrationID *uuid.UUID      `json:"terminal_integration_id,omitempty" db:"terminal_integration_id"`
	TerminalID            string          `json:"terminal_id" db:"terminal_id"`
	DashboardID           string          `json:"dashboard_id" db:"dashboard_id"`
	UserID                string          `json:"user_id" db:"user_id"`
	Provider              policy.Provider `json:"provider" db:"provider"`
	Action                string          `json:"action" db:"action"`
	ResourceID            *string         `json:"resource_id,omitempty" db:"resource_id"`
	PolicyID              *uuid.UUID      `json:"policy_id,omitempty" db:"policy_id"`
	PolicyVersion         *int            `json:"policy_version,omitempty" db:"policy_version"`
	Decision              AuditDecision   `json:"decision" db:"decision"`
	DenialReason          *string         `json:"denial_reason,omitempty" db:"denial_reason"`
	RequestSummary        json.RawMessage `json:"request_summary,omitempty" db:"request_summary"` // JSONB
	RequestID             string          `json:"request_id,omitempty" db:"request_id"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "integration_audit_log"
}

// NewAuditLog creates a new AuditLog for a call by terminalID
func NewAuditLog(terminalID string, provider policy.Provider, action string, decision AuditDecision) *AuditLog {
	return &AuditLog{
		ID:         uuid.New(),
		TerminalID: terminalID,
		Provider:   provider,
		Action:     action,
		Decision:   decision,
		CreatedAt:  time.Now().UTC(),
	}
}

// WithIntegration attributes the entry to an integration and its owners
func (a *AuditLog) WithIntegration(ti *TerminalIntegration) *AuditLog {
	id := ti.ID
	a.TerminalIntegrationID = &id
	a.DashboardID = ti.DashboardID
	a.UserID = ti.UserID
	return a
}

// WithCaller sets dashboard and user ids when no integration resolved
func (a *AuditLog) WithCaller(dashboardID, userID string) *AuditLog {
	a.DashboardID = dashboardID
	a.UserID = userID
	return a
}

// WithPolicy sets the consulted revision
func (a *AuditLog) WithPolicy(p *IntegrationPolicy) *AuditLog {
	if p == nil {
		return a
	}
	id, version := p.ID, p.Version
	a.PolicyID = &id
	a.PolicyVersion = &version
	return a
}

// WithResource sets the resource id; empty ids are ignored
func (a *AuditLog) WithResource(resourceID string) *AuditLog {
	if resourceID != "" {
		a.ResourceID = &resourceID
	}
	return a
}

// WithDenial sets the decision and its reason
func (a *AuditLog) WithDenial(decision AuditDecision, reason string) *AuditLog {
	a.Decision = decision
	a.DenialReason = &reason
	return a
}

// WithSummary sets the request summary
func (a *AuditLog) WithSummary(summary interface{}) *AuditLog {
	if data, err := json.Marshal(summary); err == nil {
		a.RequestSummary = data
	}
	return a
}

// WithRequest sets the request id
func (a *AuditLog) WithRequest(requestID string) *AuditLog {
	a.RequestID = requestID
	return a
}
