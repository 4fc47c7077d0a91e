package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/integration-gateway/auth/captoken"
	"github.com/upb/integration-gateway/internal/enforcement"
	"github.com/upb/integration-gateway/internal/policy"
	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/services"
	"github.com/upb/integration-gateway/services/providers"
	"github.com/upb/integration-gateway/services/ratelimit"
	"go.uber.org/zap"
)

// Fakes

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (*captoken.Claims, error) {
	if token != "good" {
		return nil, captoken.ErrInvalidToken
	}
	c := &captoken.Claims{TerminalID: "term-1", DashboardID: "dash-1"}
	c.Subject = "user-1"
	return c, nil
}

type fakeStore struct {
	integration   *models.TerminalIntegration
	integrationEr error
	revision      *models.IntegrationPolicy
	revisionErr   error
	confirmed     enforcement.ConfirmationSet
}

func (f *fakeStore) ActiveIntegration(_ context.Context, terminalID string, provider policy.Provider) (*models.TerminalIntegration, error) {
	if f.integrationEr != nil {
		return nil, f.integrationEr
	}
	if f.integration == nil || f.integration.TerminalID != terminalID || f.integration.Provider != provider {
		return nil, services.ErrNotAttached
	}
	return f.integration, nil
}

func (f *fakeStore) ActivePolicy(context.Context, *models.TerminalIntegration) (*models.IntegrationPolicy, error) {
	if f.revisionErr != nil {
		return nil, f.revisionErr
	}
	return f.revision, nil
}

func (f *fakeStore) Confirmations(context.Context, uuid.UUID) (enforcement.ConfirmationSet, error) {
	return f.confirmed, nil
}

type fakeLimiter struct {
	result *ratelimit.Result
	calls  []ratelimit.Request
}

func (f *fakeLimiter) Check(_ context.Context, req ratelimit.Request) *ratelimit.Result {
	f.calls = append(f.calls, req)
	if f.result != nil {
		return f.result
	}
	return &ratelimit.Result{Allowed: true}
}

type fakeTokens struct {
	token string
	err   error
	calls int
}

func (f *fakeTokens) AccessToken(context.Context, string, policy.Provider) (string, error) {
	f.calls++
	return f.token, f.err
}

type connectorCall struct {
	action string
	args   string
	token  string
}

type fakeConnector struct {
	provider  policy.Provider
	responses map[string]string
	errs      map[string]error
	calls     []connectorCall
}

func (f *fakeConnector) Provider() policy.Provider { return f.provider }

func (f *fakeConnector) Execute(_ context.Context, action string, args json.RawMessage, token string) (any, error) {
	f.calls = append(f.calls, connectorCall{action: action, args: string(args), token: token})
	if err := f.errs[action]; err != nil {
		return nil, err
	}
	raw, ok := f.responses[action]
	if !ok {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, err
	}
	return data, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (f *fakeRecorder) Record(log *models.AuditLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, log)
}

func (f *fakeRecorder) only(t *testing.T) *models.AuditLog {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.entries, 1)
	return f.entries[0]
}

// Fixture

type fixture struct {
	service   *Service
	store     *fakeStore
	limiter   *fakeLimiter
	tokens    *fakeTokens
	connector *fakeConnector
	recorder  *fakeRecorder
}

func newFixture(t *testing.T, provider policy.Provider, content policy.Content) *fixture {
	t.Helper()

	uiID := "ui-1"
	terminal := &models.Terminal{ID: "term-1", DashboardID: "dash-1"}
	ti := models.NewTerminalIntegration(terminal, "user-1", provider, &uiID, "user-1")
	rev, err := models.NewIntegrationPolicy(ti, 3, content, "user-1")
	require.NoError(t, err)
	ti.ActivePolicyID = &rev.ID

	f := &fixture{
		store:     &fakeStore{integration: ti, revision: rev, confirmed: enforcement.ConfirmationSet{}},
		limiter:   &fakeLimiter{},
		tokens:    &fakeTokens{token: "access-1"},
		connector: &fakeConnector{provider: provider, responses: map[string]string{}, errs: map[string]error{}},
		recorder:  &fakeRecorder{},
	}

	registry := providers.NewRegistry()
	if provider != policy.ProviderBrowser {
		require.NoError(t, registry.Register(f.connector))
	}

	f.service = NewService(fakeVerifier{}, f.store, f.limiter, f.tokens, registry, f.recorder, nil, zap.NewNop())
	return f
}

func (f *fixture) execute(provider, body string) (*Response, *Error) {
	resp, err := f.service.Execute(context.Background(), Request{
		Token:     "good",
		Provider:  provider,
		Body:      []byte(body),
		RequestID: "req-1",
	})
	if err != nil {
		var gerr *Error
		if errors.As(err, &gerr) {
			return nil, gerr
		}
		panic(err)
	}
	return resp, nil
}

func gmailDefault(t *testing.T) policy.Content {
	t.Helper()
	content, err := policy.Default(policy.ProviderGmail)
	require.NoError(t, err)
	return content
}

// Tests

func TestExecute_InvalidTokenIsNotAudited(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))

	_, err := f.service.Execute(context.Background(), Request{Token: "bad", Provider: "gmail", Body: []byte(`{"action":"list"}`)})

	var gerr *Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, CodeAuthDenied, gerr.Code)
	assert.Equal(t, http.StatusUnauthorized, gerr.HTTPStatus())
	assert.Empty(t, f.recorder.entries)
	assert.Empty(t, f.connector.calls)
}

func TestExecute_NotAttached(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))

	_, gerr := f.execute("github", `{"action":"list_repos"}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodeNotAttached, gerr.Code)
	assert.Equal(t, http.StatusNotFound, gerr.HTTPStatus())

	entry := f.recorder.only(t)
	assert.Equal(t, models.AuditDecisionDenied, entry.Decision)
	assert.Nil(t, entry.TerminalIntegrationID)
	assert.Equal(t, "dash-1", entry.DashboardID)
	assert.Equal(t, "user-1", entry.UserID)
}

func TestExecute_UnknownProvider(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))

	_, gerr := f.execute("fax", `{"action":"send"}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodeNotAttached, gerr.Code)
	assert.Len(t, f.recorder.entries, 1)
}

func TestExecute_ClaimsMismatch(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))
	f.store.integration.DashboardID = "dash-2"

	_, gerr := f.execute("gmail", `{"action":"list"}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodeAuthDenied, gerr.Code)

	entry := f.recorder.only(t)
	require.NotNil(t, entry.TerminalIntegrationID)
	assert.Contains(t, string(entry.RequestSummary), "claimDashboardId")
	assert.Empty(t, f.limiter.calls)
}

func TestExecute_MalformedBody(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))

	for _, body := range []string{`not json`, `{"args":{}}`} {
		_, gerr := f.execute("gmail", body)
		require.NotNil(t, gerr)
		assert.Equal(t, CodeInvalidRequest, gerr.Code)
		assert.Equal(t, http.StatusBadRequest, gerr.HTTPStatus())
	}
	assert.Len(t, f.recorder.entries, 2)
}

func TestExecute_NoPolicyConfigured(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code Code
	}{
		{"unset pointer", services.ErrPolicyNotFound, CodePolicyDenied},
		{"dangling pointer", services.ErrPolicyInconsistent.Wrap(nil), CodePolicyDenied},
		{"database failure", services.ErrDatabaseError.Wrap(errors.New("conn reset")), CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, policy.ProviderGmail, gmailDefault(t))
			f.store.revisionErr = tt.err

			_, gerr := f.execute("gmail", `{"action":"list"}`)
			require.NotNil(t, gerr)
			assert.Equal(t, tt.code, gerr.Code)
			if tt.code == CodePolicyDenied {
				assert.Equal(t, "no policy configured", gerr.Reason)
			}

			entry := f.recorder.only(t)
			assert.Equal(t, models.AuditDecisionDenied, entry.Decision)
			assert.Nil(t, entry.PolicyID)
		})
	}
}

func TestExecute_GmailSendDisabled(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, &policy.GmailPolicy{CanRead: true, CanSend: false})

	_, gerr := f.execute("gmail", `{"action":"gmail.send","args":{"to":"bob@example.com","body":"hi"}}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodePolicyDenied, gerr.Code)
	assert.Equal(t, http.StatusForbidden, gerr.HTTPStatus())

	entry := f.recorder.only(t)
	assert.Equal(t, models.AuditDecisionDenied, entry.Decision)
	require.NotNil(t, entry.DenialReason)
	assert.Contains(t, *entry.DenialReason, "canSend")
	require.NotNil(t, entry.PolicyVersion)
	assert.Equal(t, 3, *entry.PolicyVersion)
	assert.NotContains(t, string(entry.RequestSummary), "bob@example.com")
	assert.Contains(t, string(entry.RequestSummary), "argKeys")
	assert.Empty(t, f.connector.calls)
}

func TestExecute_GitHubRepoFilter(t *testing.T) {
	f := newFixture(t, policy.ProviderGitHub, &policy.GitHubPolicy{
		CanReadCode: true,
		RepoFilter:  policy.RepoFilter{Mode: policy.FilterAllowlist, Orgs: []string{"acme"}},
	})

	_, gerr := f.execute("github", `{"action":"get_file","args":{"owner":"other-org","repo":"tools","path":"README.md"}}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodeFiltered, gerr.Code)
	assert.Contains(t, gerr.Reason, "other-org/tools")

	entry := f.recorder.only(t)
	assert.Equal(t, models.AuditDecisionDenied, entry.Decision)
	assert.Empty(t, f.connector.calls)
}

func TestExecute_RateLimitedBeforeEnforcement(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, &policy.GmailPolicy{CanRead: true})
	resetAt := time.Now().Add(30 * time.Second)
	f.limiter.result = &ratelimit.Result{Limited: true, Limit: 3, Current: 3, Window: policy.WindowMinute, ResetAt: resetAt}

	// send is disabled by the policy, so reaching enforcement would deny
	// with POLICY_DENIED instead.
	_, gerr := f.execute("gmail", `{"action":"send","args":{"to":"a@b.c"}}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodeRateLimited, gerr.Code)
	assert.Equal(t, http.StatusTooManyRequests, gerr.HTTPStatus())
	assert.Greater(t, gerr.RetryAfter, time.Duration(0))

	require.Len(t, f.limiter.calls, 1)
	assert.Equal(t, policy.CategorySends, f.limiter.calls[0].Category)
	assert.Equal(t, f.store.integration.ID.String(), f.limiter.calls[0].TerminalIntegrationID)
	assert.Equal(t, models.AuditDecisionDenied, f.recorder.only(t).Decision)
}

func TestExecute_RateLimiterUnavailable(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))
	f.limiter.result = &ratelimit.Result{Limited: true, Unavailable: true, Reason: ratelimit.ReasonUnavailable}

	_, gerr := f.execute("gmail", `{"action":"list"}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodeRateLimited, gerr.Code)
	assert.Equal(t, ratelimit.ReasonUnavailable, gerr.Reason)
	assert.Empty(t, f.connector.calls)
}

func TestExecute_UnknownActionSkipsLimiter(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))

	_, gerr := f.execute("gmail", `{"action":"undelete"}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodePolicyDenied, gerr.Code)
	assert.Contains(t, gerr.Reason, "unknown action")
	assert.Empty(t, f.limiter.calls)
}

func TestExecute_HighRiskRequiresConfirmation(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, &policy.GmailPolicy{CanSend: true})
	f.connector.responses["send"] = `{"id":"m1"}`

	_, gerr := f.execute("gmail", `{"action":"send","args":{"to":"a@b.c"}}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodePolicyDenied, gerr.Code)

	f.store.confirmed = enforcement.ConfirmationSet{policy.CanSend: true}
	resp, gerr := f.execute("gmail", `{"action":"send","args":{"to":"a@b.c"}}`)
	require.Nil(t, gerr)
	assert.True(t, resp.Allowed)
}

func TestExecute_BrowserEndsAfterEnforcement(t *testing.T) {
	f := newFixture(t, policy.ProviderBrowser, &policy.BrowserPolicy{CanNavigate: true})

	resp, gerr := f.execute("browser", `{"action":"navigate","args":{"url":"https://example.com"}}`)
	require.Nil(t, gerr)
	assert.True(t, resp.Allowed)
	assert.Equal(t, models.AuditDecisionAllowed, resp.Decision)
	assert.Nil(t, resp.FilteredResponse)
	assert.Zero(t, f.tokens.calls)

	entry := f.recorder.only(t)
	assert.Equal(t, models.AuditDecisionAllowed, entry.Decision)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "https://example.com", *entry.ResourceID)
}

func TestExecute_Allowed(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, &policy.GmailPolicy{CanRead: true})
	f.connector.responses["list"] = `{"messages":[{"id":"1"},{"id":"2"}]}`

	resp, gerr := f.execute("gmail", `{"action":"list","args":{"q":"is:unread"}}`)
	require.Nil(t, gerr)

	assert.True(t, resp.Allowed)
	assert.Equal(t, models.AuditDecisionAllowed, resp.Decision)
	assert.Equal(t, f.store.revision.ID, resp.PolicyID)
	assert.Equal(t, 3, resp.PolicyVersion)
	assert.Zero(t, resp.RemovedCount)

	require.Len(t, f.connector.calls, 1)
	assert.Equal(t, "access-1", f.connector.calls[0].token)
	assert.JSONEq(t, `{"q":"is:unread"}`, f.connector.calls[0].args)

	entry := f.recorder.only(t)
	assert.Equal(t, models.AuditDecisionAllowed, entry.Decision)
	assert.Nil(t, entry.DenialReason)
	assert.Equal(t, "req-1", entry.RequestID)
}

func TestExecute_DriveGetFilteredToNull(t *testing.T) {
	f := newFixture(t, policy.ProviderGoogleDrive, &policy.DrivePolicy{
		StorageCapabilities: policy.StorageCapabilities{CanList: true, CanRead: true},
		FolderFilter:        policy.FolderFilter{Mode: policy.FilterBlocklist, FolderIDs: []string{"F1"}},
	})
	f.connector.responses["get"] = `{"id":"file-1","name":"plan.doc","parents":["F1"]}`

	resp, gerr := f.execute("google_drive", `{"action":"get","args":{"fileId":"file-1"}}`)
	require.Nil(t, gerr)

	assert.Equal(t, models.AuditDecisionFiltered, resp.Decision)
	assert.Nil(t, resp.FilteredResponse)
	assert.Equal(t, 1, resp.RemovedCount)

	entry := f.recorder.only(t)
	assert.Equal(t, models.AuditDecisionFiltered, entry.Decision)
	assert.Contains(t, string(entry.RequestSummary), `"removedCount":1`)
}

func TestExecute_DrivePreCheck(t *testing.T) {
	content := func() *policy.DrivePolicy {
		return &policy.DrivePolicy{
			StorageCapabilities: policy.StorageCapabilities{CanRead: true, CanUpdate: true, CanDownload: true},
			FolderFilter:        policy.FolderFilter{Mode: policy.FilterBlocklist, FolderIDs: []string{"F1"}},
		}
	}

	t.Run("hidden file is denied before the write", func(t *testing.T) {
		f := newFixture(t, policy.ProviderGoogleDrive, content())
		f.connector.responses["get"] = `{"id":"file-1","parents":["F1"]}`

		_, gerr := f.execute("google_drive", `{"action":"rename","args":{"fileId":"file-1","name":"x"}}`)
		require.NotNil(t, gerr)
		assert.Equal(t, CodeFiltered, gerr.Code)

		require.Len(t, f.connector.calls, 1)
		assert.Equal(t, "get", f.connector.calls[0].action)
		assert.JSONEq(t, `{"fileId":"file-1"}`, f.connector.calls[0].args)
		assert.Equal(t, models.AuditDecisionDenied, f.recorder.only(t).Decision)
	})

	t.Run("visible file proceeds", func(t *testing.T) {
		f := newFixture(t, policy.ProviderGoogleDrive, content())
		f.connector.responses["get"] = `{"id":"file-1","parents":["F2"]}`
		f.connector.responses["download"] = `{"content":"abc"}`

		resp, gerr := f.execute("google_drive", `{"action":"download","args":{"fileId":"file-1"}}`)
		require.Nil(t, gerr)
		assert.Equal(t, models.AuditDecisionAllowed, resp.Decision)
		require.Len(t, f.connector.calls, 2)
		assert.Equal(t, "download", f.connector.calls[1].action)
	})

	t.Run("missing file id is denied", func(t *testing.T) {
		f := newFixture(t, policy.ProviderGoogleDrive, content())

		_, gerr := f.execute("google_drive", `{"action":"update","args":{"name":"x"}}`)
		require.NotNil(t, gerr)
		assert.Equal(t, CodePolicyDenied, gerr.Code)
		assert.Empty(t, f.connector.calls)
	})

	t.Run("no active filter skips the fetch", func(t *testing.T) {
		p := content()
		p.FolderFilter = policy.FolderFilter{Mode: policy.FilterNone}
		f := newFixture(t, policy.ProviderGoogleDrive, p)

		_, gerr := f.execute("google_drive", `{"action":"rename","args":{"fileId":"file-1","name":"x"}}`)
		require.Nil(t, gerr)
		require.Len(t, f.connector.calls, 1)
		assert.Equal(t, "rename", f.connector.calls[0].action)
	})
}

func TestExecute_GmailRecipientsFromMessage(t *testing.T) {
	content := func() *policy.GmailPolicy {
		return &policy.GmailPolicy{
			CanSend:    true,
			SendPolicy: policy.SendPolicy{AllowedDomains: []string{"acme.com"}},
		}
	}
	confirm := func(f *fixture) { f.store.confirmed = enforcement.ConfirmationSet{policy.CanSend: true} }

	t.Run("reply to an allowed sender proceeds", func(t *testing.T) {
		f := newFixture(t, policy.ProviderGmail, content())
		confirm(f)
		f.connector.responses["get"] = `{"id":"m1","from":"Alice <alice@acme.com>"}`
		f.connector.responses["gmail.reply"] = `{"id":"m2"}`

		resp, gerr := f.execute("gmail", `{"action":"gmail.reply","args":{"messageId":"m1","body":"thanks"}}`)
		require.Nil(t, gerr)
		assert.Equal(t, models.AuditDecisionAllowed, resp.Decision)

		require.Len(t, f.connector.calls, 2)
		assert.Equal(t, "get", f.connector.calls[0].action)
		assert.JSONEq(t, `{"messageId":"m1"}`, f.connector.calls[0].args)
		assert.Equal(t, "gmail.reply", f.connector.calls[1].action)
	})

	t.Run("reply to an outside sender is filtered", func(t *testing.T) {
		f := newFixture(t, policy.ProviderGmail, content())
		confirm(f)
		f.connector.responses["get_thread"] = `{"messages":[{"from":"alice@acme.com"},{"from":"eve@evil.com"}]}`

		_, gerr := f.execute("gmail", `{"action":"reply","args":{"threadId":"t1","body":"hi"}}`)
		require.NotNil(t, gerr)
		assert.Equal(t, CodeFiltered, gerr.Code)
		assert.Contains(t, gerr.Reason, "eve@evil.com")
		require.Len(t, f.connector.calls, 1)
		assert.Equal(t, models.AuditDecisionDenied, f.recorder.only(t).Decision)
	})

	t.Run("draft addressees are checked", func(t *testing.T) {
		f := newFixture(t, policy.ProviderGmail, content())
		confirm(f)
		f.connector.responses["get_draft"] = `{"id":"d1","message":{"to":"bob@acme.com","bcc":"leak@evil.com"}}`

		_, gerr := f.execute("gmail", `{"action":"send_draft","args":{"draftId":"d1"}}`)
		require.NotNil(t, gerr)
		assert.Equal(t, CodeFiltered, gerr.Code)
		require.Len(t, f.connector.calls, 1)
		assert.JSONEq(t, `{"draftId":"d1"}`, f.connector.calls[0].args)
	})

	t.Run("missing reference is denied without a lookup", func(t *testing.T) {
		f := newFixture(t, policy.ProviderGmail, content())
		confirm(f)

		_, gerr := f.execute("gmail", `{"action":"send_draft","args":{}}`)
		require.NotNil(t, gerr)
		assert.Equal(t, CodePolicyDenied, gerr.Code)
		assert.Empty(t, f.connector.calls)
	})

	t.Run("lookup failure is an upstream error", func(t *testing.T) {
		f := newFixture(t, policy.ProviderGmail, content())
		confirm(f)
		f.connector.errs["get"] = &providers.UpstreamError{StatusCode: http.StatusNotFound, Message: "message not found"}

		_, gerr := f.execute("gmail", `{"action":"reply","args":{"messageId":"m404"}}`)
		require.NotNil(t, gerr)
		assert.Equal(t, CodeAPIError, gerr.Code)
		assert.Len(t, f.connector.calls, 1)
	})
}

func TestExecute_AccessTokenFailures(t *testing.T) {
	tests := []struct {
		name  string
		token string
		err   error
		code  Code
	}{
		{"disconnected", "", services.ErrIntegrationDisconnected, CodeAuthDenied},
		{"missing link", "", services.ErrUserIntegrationNotFound, CodeAuthDenied},
		{"empty token", "", nil, CodeAuthDenied},
		{"refresh unavailable", "", services.ErrProviderUnavailable.Wrap(errors.New("502")), CodeAPIError},
		{"storage failure", "", services.ErrDatabaseError.Wrap(errors.New("boom")), CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, policy.ProviderGmail, gmailDefault(t))
			f.tokens.token, f.tokens.err = tt.token, tt.err

			_, gerr := f.execute("gmail", `{"action":"list"}`)
			require.NotNil(t, gerr)
			assert.Equal(t, tt.code, gerr.Code)
			assert.Empty(t, f.connector.calls)
			assert.Equal(t, models.AuditDecisionDenied, f.recorder.only(t).Decision)
		})
	}
}

func TestExecute_NoOAuthLink(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))
	f.store.integration.UserIntegrationID = nil

	_, gerr := f.execute("gmail", `{"action":"list"}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodeAuthDenied, gerr.Code)
	assert.Zero(t, f.tokens.calls)
}

func TestExecute_UpstreamError(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))
	f.connector.errs["list"] = providers.NewUpstreamError(policy.ProviderGmail, 403, "Insufficient Permission", nil)

	_, gerr := f.execute("gmail", `{"action":"list"}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodeAPIError, gerr.Code)
	assert.Equal(t, http.StatusBadGateway, gerr.HTTPStatus())
	assert.Equal(t, "Insufficient Permission", gerr.Reason)

	entry := f.recorder.only(t)
	assert.Equal(t, models.AuditDecisionDenied, entry.Decision)
	require.NotNil(t, entry.DenialReason)
	assert.Equal(t, "Insufficient Permission", *entry.DenialReason)
	assert.Contains(t, string(entry.RequestSummary), `"upstreamStatus":403`)
	assert.Contains(t, string(entry.RequestSummary), `"upstreamRetryable":false`)
}

func TestExecute_MissingConnector(t *testing.T) {
	f := newFixture(t, policy.ProviderGmail, gmailDefault(t))
	f.service.connectors = providers.NewRegistry()

	_, gerr := f.execute("gmail", `{"action":"list"}`)
	require.NotNil(t, gerr)
	assert.Equal(t, CodeInternalError, gerr.Code)
	assert.Equal(t, http.StatusInternalServerError, gerr.HTTPStatus())
	assert.Zero(t, f.tokens.calls)
}
