package models

import (
	"time"

	"github.com/upb/integration-gateway/internal/policy"
)

// UserIntegrationStatus tracks whether a stored OAuth link is usable
type UserIntegrationStatus string

const (
	UserIntegrationActive       UserIntegrationStatus = "active"
	UserIntegrationDisconnected UserIntegrationStatus = "disconnected"
)

// UserIntegration is a user's OAuth connection to a provider. Token fields
// hold sealed ciphertext, never plaintext.
type UserIntegration struct {
	ID           string                `json:"id" db:"id"`
	UserID       string                `json:"user_id" db:"user_id"`
	Provider     policy.Provider       `json:"provider" db:"provider"`
	AccessToken  []byte                `json:"-" db:"access_token"`
	RefreshToken []byte                `json:"-" db:"refresh_token"`
	TokenType    string                `json:"token_type" db:"token_type"`
	ExpiresAt    *time.Time            `json:"expires_at,omitempty" db:"expires_at"`
	Scopes       string                `json:"scopes" db:"scopes"`
	Status       UserIntegrationStatus `json:"status" db:"status"`
	UpdatedAt    time.Time             `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the UserIntegration model
func (UserIntegration) TableName() string {
	return "user_integrations"
}

// IsConnected returns true if the link has not been disconnected
func (u *UserIntegration) IsConnected() bool {
	return u.Status != UserIntegrationDisconnected
}
