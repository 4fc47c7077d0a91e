package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/upb/integration-gateway/internal/policy"
)

// TerminalIntegration binds one sandbox terminal to one provider connection
// within a dashboard. Identity fields never change after creation; detaching
// sets DeletedAt.
type TerminalIntegration struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	TerminalID        string          `json:"terminal_id" db:"terminal_id"`
	DashboardID       string          `json:"dashboard_id" db:"dashboard_id"`
	UserID            string          `json:"user_id" db:"user_id"` // owner of the OAuth link
	Provider          policy.Provider `json:"provider" db:"provider"`
	UserIntegrationID *string         `json:"user_integration_id,omitempty" db:"user_integration_id"`
	ActivePolicyID    *uuid.UUID      `json:"active_policy_id,omitempty" db:"active_policy_id"`
	CreatedBy         string          `json:"created_by" db:"created_by"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
	DeletedBy         *string         `json:"deleted_by,omitempty" db:"deleted_by"`
}

// TableName returns the table name for the TerminalIntegration model
func (TerminalIntegration) TableName() string {
	return "terminal_integrations"
}

// NewTerminalIntegration creates a new, active TerminalIntegration
func NewTerminalIntegration(terminal *Terminal, userID string, provider policy.Provider, userIntegrationID *string, createdBy string) *TerminalIntegration {
	now := time.Now().UTC()
	return &TerminalIntegration{
		ID:                uuid.New(),
		TerminalID:        terminal.ID,
		DashboardID:       terminal.DashboardID,
		UserID:            userID,
		Provider:          provider,
		UserIntegrationID: userIntegrationID,
		CreatedBy:         createdBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// IsActive reports whether the integration has not been detached
func (t *TerminalIntegration) IsActive() bool {
	return t.DeletedAt == nil
}
