package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/integration-gateway/internal/policy"
)

func testTerminal() *Terminal {
	return &Terminal{ID: "term-1", DashboardID: "dash-1"}
}

// TerminalIntegration tests
func TestNewTerminalIntegration(t *testing.T) {
	link := "ui-1"
	ti := NewTerminalIntegration(testTerminal(), "user-1", policy.ProviderGmail, &link, "user-2")

	assert.NotEqual(t, uuid.Nil, ti.ID)
	assert.Equal(t, "term-1", ti.TerminalID)
	assert.Equal(t, "dash-1", ti.DashboardID)
	assert.Equal(t, "user-1", ti.UserID)
	assert.Equal(t, "user-2", ti.CreatedBy)
	assert.Equal(t, policy.ProviderGmail, ti.Provider)
	assert.Equal(t, "ui-1", *ti.UserIntegrationID)
	assert.Nil(t, ti.ActivePolicyID)
	assert.True(t, ti.IsActive())
	assert.Equal(t, ti.CreatedAt, ti.UpdatedAt)

	now := time.Now()
	ti.DeletedAt = &now
	assert.False(t, ti.IsActive())
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "terminal_integrations", TerminalIntegration{}.TableName())
	assert.Equal(t, "integration_policies", IntegrationPolicy{}.TableName())
	assert.Equal(t, "high_risk_confirmations", HighRiskConfirmation{}.TableName())
	assert.Equal(t, "integration_audit_log", AuditLog{}.TableName())
	assert.Equal(t, "user_integrations", UserIntegration{}.TableName())
	assert.Equal(t, "terminals", Terminal{}.TableName())
	assert.Equal(t, "dashboard_members", DashboardMember{}.TableName())
}

// IntegrationPolicy tests
func TestNewIntegrationPolicy(t *testing.T) {
	ti := NewTerminalIntegration(testTerminal(), "user-1", policy.ProviderGitHub, nil, "user-1")

	p, err := NewIntegrationPolicy(ti, 3, &policy.GitHubPolicy{CanReadCode: true, CanPush: true}, "user-1")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, p.ID)
	assert.Equal(t, ti.ID, p.TerminalIntegrationID)
	assert.Equal(t, policy.ProviderGitHub, p.Provider)
	assert.Equal(t, 3, p.Version)
	assert.Equal(t, policy.SecurityFull, p.SecurityLevel)
}

func TestNewIntegrationPolicy_ShapeMismatch(t *testing.T) {
	ti := NewTerminalIntegration(testTerminal(), "user-1", policy.ProviderGitHub, nil, "user-1")

	_, err := NewIntegrationPolicy(ti, 1, &policy.GmailPolicy{}, "user-1")
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
}

func TestIntegrationPolicy_JSONMarshaling(t *testing.T) {
	ti := NewTerminalIntegration(testTerminal(), "user-1", policy.ProviderSlack, nil, "user-1")
	p, err := NewIntegrationPolicy(ti, 1, &policy.MessagingPolicy{CanSend: true}, "user-1")
	require.NoError(t, err)

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	content := decoded["content"].(map[string]interface{})
	assert.Equal(t, true, content["canSend"])
	assert.Equal(t, "full", decoded["security_level"])
}

// AuditLog tests
func TestNewAuditLog(t *testing.T) {
	log := NewAuditLog("term-1", policy.ProviderGmail, "gmail.send", AuditDecisionAllowed)

	assert.NotEqual(t, uuid.Nil, log.ID)
	assert.Equal(t, "term-1", log.TerminalID)
	assert.Equal(t, "gmail.send", log.Action)
	assert.Equal(t, AuditDecisionAllowed, log.Decision)
	assert.Nil(t, log.TerminalIntegrationID)
	assert.False(t, log.CreatedAt.IsZero())
}

func TestAuditLog_BuilderMethods(t *testing.T) {
	ti := NewTerminalIntegration(testTerminal(), "user-1", policy.ProviderGmail, nil, "user-1")
	rev, err := NewIntegrationPolicy(ti, 2, &policy.GmailPolicy{CanRead: true}, "user-1")
	require.NoError(t, err)

	log := NewAuditLog(ti.TerminalID, ti.Provider, "send", AuditDecisionAllowed).
		WithIntegration(ti).
		WithPolicy(rev).
		WithResource("msg-1").
		WithDenial(AuditDecisionDenied, "policy does not allow canSend").
		WithRequest("req-123").
		WithSummary(map[string]interface{}{"recipients": 2})

	assert.Equal(t, ti.ID, *log.TerminalIntegrationID)
	assert.Equal(t, "dash-1", log.DashboardID)
	assert.Equal(t, "user-1", log.UserID)
	assert.Equal(t, rev.ID, *log.PolicyID)
	assert.Equal(t, 2, *log.PolicyVersion)
	assert.Equal(t, "msg-1", *log.ResourceID)
	assert.Equal(t, AuditDecisionDenied, log.Decision)
	assert.Equal(t, "policy does not allow canSend", *log.DenialReason)
	assert.Equal(t, "req-123", log.RequestID)
	assert.JSONEq(t, `{"recipients":2}`, string(log.RequestSummary))
}

func TestAuditLog_EmptyValuesIgnored(t *testing.T) {
	log := NewAuditLog("term-1", policy.ProviderGmail, "list", AuditDecisionAllowed).
		WithResource("").
		WithPolicy(nil).
		WithCaller("dash-9", "user-9")

	assert.Nil(t, log.ResourceID)
	assert.Nil(t, log.PolicyID)
	assert.Equal(t, "dash-9", log.DashboardID)
	assert.Equal(t, "user-9", log.UserID)
}

// UserIntegration tests
func TestUserIntegration_TokensNotSerialized(t *testing.T) {
	ui := UserIntegration{
		ID:           "ui-1",
		AccessToken:  []byte("sealed-access"),
		RefreshToken: []byte("sealed-refresh"),
		Status:       UserIntegrationActive,
	}

	data, err := json.Marshal(ui)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sealed")
	assert.True(t, ui.IsConnected())

	ui.Status = UserIntegrationDisconnected
	assert.False(t, ui.IsConnected())
}

// DashboardRole tests
func TestDashboardRole_AtLeast(t *testing.T) {
	tests := []struct {
		role DashboardRole
		min  DashboardRole
		want bool
	}{
		{RoleOwner, RoleEditor, true},
		{RoleEditor, RoleEditor, true},
		{RoleViewer, RoleEditor, false},
		{RoleViewer, RoleViewer, true},
		{DashboardRole("guest"), RoleViewer, false},
		{DashboardRole(""), RoleViewer, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+">="+string(tt.min), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.AtLeast(tt.min))
		})
	}
}

func TestDashboardRole_CanManageIntegrations(t *testing.T) {
	assert.True(t, RoleOwner.CanManageIntegrations())
	assert.True(t, RoleEditor.CanManageIntegrations())
	assert.False(t, RoleViewer.CanManageIntegrations())
}
