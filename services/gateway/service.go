package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/upb/integration-gateway/auth/captoken"
	"github.com/upb/integration-gateway/internal/enforcement"
	"github.com/upb/integration-gateway/internal/filter"
	"github.com/upb/integration-gateway/internal/observability"
	"github.com/upb/integration-gateway/internal/policy"
	"github.com/upb/integration-gateway/models"
	"github.com/upb/integration-gateway/services"
	"github.com/upb/integration-gateway/services/audit"
	"github.com/upb/integration-gateway/services/providers"
	"github.com/upb/integration-gateway/services/ratelimit"
	"go.uber.org/zap"
)

// TokenVerifier verifies capability tokens
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*captoken.Claims, error)
}

// IntegrationStore resolves integrations, their active revisions and
// confirmations
type IntegrationStore interface {
	ActiveIntegration(ctx context.Context, terminalID string, provider policy.Provider) (*models.TerminalIntegration, error)
	ActivePolicy(ctx context.Context, ti *models.TerminalIntegration) (*models.IntegrationPolicy, error)
	Confirmations(ctx context.Context, integrationID uuid.UUID) (enforcement.ConfirmationSet, error)
}

// RateLimiter consumes one unit of a category budget
type RateLimiter interface {
	Check(ctx context.Context, req ratelimit.Request) *ratelimit.Result
}

// TokenSource returns a usable OAuth access token for a user integration
type TokenSource interface {
	AccessToken(ctx context.Context, userIntegrationID string, provider policy.Provider) (string, error)
}

// ConnectorSource looks up the connector for a provider
type ConnectorSource interface {
	Get(provider policy.Provider) (providers.Connector, error)
}

// Request is one inbound gateway call
type Request struct {
	Token     string
	Provider  string
	Body      []byte
	RequestID string
}

// Response is the body of a successful call
type Response struct {
	Allowed          bool                 `json:"allowed"`
	Decision         models.AuditDecision `json:"decision"`
	FilteredResponse any                  `json:"filteredResponse"`
	PolicyID         uuid.UUID            `json:"policyId"`
	PolicyVersion    int                  `json:"policyVersion"`
	RemovedCount     int                  `json:"removedCount"`
}

type actionBody struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args"`
}

// Service runs gateway calls through auth, policy, rate limiting,
// enforcement, the provider call and response filtering
type Service struct {
	verifier   TokenVerifier
	store      IntegrationStore
	limiter    RateLimiter
	tokens     TokenSource
	connectors ConnectorSource
	recorder   audit.Recorder
	metrics    observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new gateway service
func NewService(
	verifier TokenVerifier,
	store IntegrationStore,
	limiter RateLimiter,
	tokens TokenSource,
	connectors ConnectorSource,
	recorder audit.Recorder,
	metrics observability.Metrics,
	logger *zap.Logger,
) *Service {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &Service{
		verifier:   verifier,
		store:      store,
		limiter:    limiter,
		tokens:     tokens,
		connectors: connectors,
		recorder:   recorder,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// call carries what is known about one request as it moves through the
// pipeline; it shapes the audit entry.
type call struct {
	start       time.Time
	requestID   string
	claims      *captoken.Claims
	provider    policy.Provider
	action      string
	args        json.RawMessage
	integration *models.TerminalIntegration
	revision    *models.IntegrationPolicy
	context     enforcement.ActionContext
	summary     map[string]any
}

// Execute runs one call. Every error returned is an *Error. Once the token
// verifies, exactly one audit entry is recorded whatever the outcome.
func (s *Service) Execute(ctx context.Context, req Request) (*Response, error) {
	c := &call{start: s.now(), requestID: req.RequestID, provider: policy.Provider(req.Provider)}

	claims, err := s.verifier.Verify(ctx, req.Token)
	if err != nil {
		s.metrics.RecordDecision(req.Provider, string(models.AuditDecisionDenied), string(CodeAuthDenied), s.now().Sub(c.start))
		s.logger.Info("capability token rejected",
			zap.String("request_id", req.RequestID),
			zap.String("provider", req.Provider),
			zap.Error(err),
		)
		return nil, newError(CodeAuthDenied, "invalid capability token", err)
	}
	c.claims = claims

	provider, err := policy.ParseProvider(req.Provider)
	if err != nil {
		return nil, s.fail(c, newError(CodeNotAttached, fmt.Sprintf("unknown provider %s", req.Provider), err))
	}
	c.provider = provider

	ti, err := s.store.ActiveIntegration(ctx, claims.TerminalID, provider)
	if err != nil {
		if services.IsType(err, services.ErrorTypeNotFound) {
			return nil, s.fail(c, newError(CodeNotAttached, fmt.Sprintf("%s is not attached to this terminal", provider), err))
		}
		return nil, s.fail(c, newError(CodeInternalError, "failed to resolve integration", err))
	}
	c.integration = ti

	if ti.DashboardID != claims.DashboardID || ti.UserID != claims.UserID() {
		c.summary = map[string]any{
			"claimDashboardId": claims.DashboardID,
			"claimUserId":      claims.UserID(),
		}
		return nil, s.fail(c, newError(CodeAuthDenied, "token does not match integration", nil))
	}

	var body actionBody
	if err := json.Unmarshal(req.Body, &body); err != nil || body.Action == "" {
		if err == nil {
			err = errors.New("action is required")
		}
		return nil, s.fail(c, newError(CodeInvalidRequest, "request body must be {action, args}", err))
	}
	c.action = body.Action
	c.args = body.Args
	c.summary = summarize(body.Args)

	rev, err := s.store.ActivePolicy(ctx, ti)
	if err != nil {
		if errors.Is(err, services.ErrPolicyInconsistent) {
			s.logger.Error("policy inconsistency",
				zap.String("terminal_integration_id", ti.ID.String()),
				zap.Error(err),
			)
		}
		if services.IsType(err, services.ErrorTypeNotFound) || errors.Is(err, services.ErrPolicyInconsistent) {
			return nil, s.fail(c, newError(CodePolicyDenied, "no policy configured", err))
		}
		return nil, s.fail(c, newError(CodeInternalError, "failed to load policy", err))
	}
	c.revision = rev

	spec, specErr := policy.CapabilityFor(provider, c.action)
	if specErr == nil {
		result := s.limiter.Check(ctx, ratelimit.Request{
			TerminalIntegrationID: ti.ID.String(),
			Provider:              provider,
			Category:              spec.Category,
			Limits:                rev.Content.Limits(),
		})
		if !result.Allowed {
			gerr := newError(CodeRateLimited, rateLimitReason(spec.Category, result), nil)
			gerr.RetryAfter = result.RetryAfter(s.now())
			return nil, s.fail(c, gerr)
		}
	}

	confirmed, err := s.store.Confirmations(ctx, ti.ID)
	if err != nil {
		return nil, s.fail(c, newError(CodeInternalError, "failed to load confirmations", err))
	}

	c.context = enforcement.ExtractContext(provider, c.args)
	enforceReq := enforcement.Request{
		Provider:              provider,
		Action:                c.action,
		Policy:                rev.Content,
		TerminalIntegrationID: ti.ID.String(),
		Context:               c.context,
		Confirmed:             confirmed,
	}
	decision := enforcement.Enforce(enforceReq)
	if !decision.Allowed && !decision.ResolveRecipients {
		return nil, s.fail(c, denial(decision))
	}

	if provider == policy.ProviderBrowser {
		return s.succeed(c, filter.Result{}), nil
	}

	connector, err := s.connectors.Get(provider)
	if err != nil {
		return nil, s.fail(c, newError(CodeInternalError, fmt.Sprintf("no connector configured for %s", provider), err))
	}

	accessToken, gerr := s.accessToken(ctx, ti)
	if gerr != nil {
		return nil, s.fail(c, gerr)
	}

	if decision.ResolveRecipients {
		if gerr := s.resolveRecipients(ctx, c, decision.Spec.Action, connector, accessToken); gerr != nil {
			return nil, s.fail(c, gerr)
		}
		enforceReq.Context = c.context
		if decision = enforcement.Enforce(enforceReq); !decision.Allowed {
			return nil, s.fail(c, denial(decision))
		}
	}

	if needsPreCheck(provider, decision.Spec, rev.Content) {
		if gerr := s.preCheck(ctx, c, connector, accessToken); gerr != nil {
			return nil, s.fail(c, gerr)
		}
	}

	data, err := connector.Execute(ctx, c.action, c.args, accessToken)
	if err != nil {
		return nil, s.fail(c, s.upstreamError(c, err))
	}

	return s.succeed(c, filter.Apply(provider, c.action, rev.Content, data)), nil
}

func (s *Service) accessToken(ctx context.Context, ti *models.TerminalIntegration) (string, *Error) {
	if ti.UserIntegrationID == nil || *ti.UserIntegrationID == "" {
		return "", newError(CodeAuthDenied, fmt.Sprintf("no OAuth connection for %s", ti.Provider), nil)
	}

	token, err := s.tokens.AccessToken(ctx, *ti.UserIntegrationID, ti.Provider)
	switch {
	case err == nil && token != "":
		return token, nil
	case err == nil:
		return "", newError(CodeAuthDenied, fmt.Sprintf("no access token for %s", ti.Provider), nil)
	case services.IsType(err, services.ErrorTypeUnauthorized), services.IsType(err, services.ErrorTypeNotFound):
		return "", newError(CodeAuthDenied, fmt.Sprintf("%s connection is not usable", ti.Provider), err)
	case services.IsType(err, services.ErrorTypeExternal):
		return "", newError(CodeAPIError, fmt.Sprintf("%s token refresh failed", ti.Provider), err)
	default:
		return "", newError(CodeInternalError, "failed to obtain access token", err)
	}
}

// needsPreCheck reports whether a drive action changes or exports an
// existing file while a folder or file type filter is active.
func needsPreCheck(provider policy.Provider, spec policy.ActionSpec, content policy.Content) bool {
	if provider != policy.ProviderGoogleDrive {
		return false
	}
	p, ok := content.(*policy.DrivePolicy)
	if !ok || (!p.FolderFilter.Mode.Active() && !p.FileTypeFilter.Mode.Active()) {
		return false
	}
	switch spec.Action {
	case "upload", "create_folder":
		return false
	}
	switch spec.Category {
	case policy.CategoryWrites, policy.CategoryDeletes, policy.CategoryDownloads:
		return true
	}
	return false
}

// preCheck fetches the target file's metadata and denies the action when
// the response filter would hide that file.
func (s *Service) preCheck(ctx context.Context, c *call, connector providers.Connector, accessToken string) *Error {
	fileID := c.context.FileID
	if fileID == "" {
		return newError(CodePolicyDenied, fmt.Sprintf("file id is required for %s.%s", c.provider, c.action), nil)
	}

	args, err := json.Marshal(map[string]string{"fileId": fileID})
	if err != nil {
		return newError(CodeInternalError, "failed to encode metadata request", err)
	}
	meta, err := connector.Execute(ctx, "get", args, accessToken)
	if err != nil {
		return s.upstreamError(c, err)
	}

	if res := filter.Apply(c.provider, "get", c.revision.Content, meta); res.Data == nil {
		return newError(CodeFiltered, fmt.Sprintf("file %s is not accessible under this policy", fileID), nil)
	}
	return nil
}

// resolveRecipients reads the message or draft a gmail send refers to and
// adds its addressees to the call context.
func (s *Service) resolveRecipients(ctx context.Context, c *call, action string, connector providers.Connector, accessToken string) *Error {
	read, params, ok := enforcement.RecipientLookup(action, c.context)
	if !ok {
		return newError(CodePolicyDenied, fmt.Sprintf("message or draft id is required for %s.%s", c.provider, c.action), nil)
	}

	args, err := json.Marshal(params)
	if err != nil {
		return newError(CodeInternalError, "failed to encode recipient lookup", err)
	}
	meta, err := connector.Execute(ctx, read, args, accessToken)
	if err != nil {
		return s.upstreamError(c, err)
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return newError(CodeInternalError, "failed to read recipient lookup", err)
	}

	c.context.Recipients = append(c.context.Recipients,
		enforcement.MessageRecipients(action, c.context.ReplyAll, raw)...)
	c.context.RecipientsResolved = true
	return nil
}

func denial(d enforcement.Decision) *Error {
	code := CodePolicyDenied
	if d.Kind == enforcement.DecisionFiltered {
		code = CodeFiltered
	}
	return newError(code, d.Reason, nil)
}

func (s *Service) upstreamError(c *call, err error) *Error {
	s.metrics.RecordUpstreamError(string(c.provider))

	reason := err.Error()
	var upErr *providers.UpstreamError
	if errors.As(err, &upErr) {
		reason = upErr.Message
		if upErr.StatusCode != 0 {
			c.summary["upstreamStatus"] = upErr.StatusCode
		}
	}
	// The call is not replayed here; the caller decides using this hint.
	c.summary["upstreamRetryable"] = providers.IsRetryable(err)
	return newError(CodeAPIError, reason, err)
}

// fail audits a denial and returns gerr
func (s *Service) fail(c *call, gerr *Error) *Error {
	s.record(c, models.AuditDecisionDenied, gerr.Reason)
	s.metrics.RecordDecision(string(c.provider), string(models.AuditDecisionDenied), string(gerr.Code), s.now().Sub(c.start))

	fields := []zap.Field{
		zap.String("request_id", c.requestID),
		zap.String("terminal_id", c.claims.TerminalID),
		zap.String("provider", string(c.provider)),
		zap.String("action", c.action),
		zap.String("code", string(gerr.Code)),
		zap.String("reason", gerr.Reason),
	}
	if gerr.Err != nil {
		fields = append(fields, zap.Error(gerr.Err))
	}
	if gerr.Code == CodeInternalError {
		s.logger.Error("gateway call failed", fields...)
	} else {
		s.logger.Info("gateway call denied", fields...)
	}
	return gerr
}

func (s *Service) succeed(c *call, res filter.Result) *Response {
	decision := models.AuditDecisionAllowed
	if res.Filtered {
		decision = models.AuditDecisionFiltered
		c.summary["removedCount"] = res.Removed
		if res.Redacted > 0 {
			c.summary["redactedCount"] = res.Redacted
		}
	}

	s.record(c, decision, "")
	s.metrics.RecordDecision(string(c.provider), string(decision), "", s.now().Sub(c.start))

	return &Response{
		Allowed:          true,
		Decision:         decision,
		FilteredResponse: res.Data,
		PolicyID:         c.revision.ID,
		PolicyVersion:    c.revision.Version,
		RemovedCount:     res.Removed,
	}
}

func (s *Service) record(c *call, decision models.AuditDecision, reason string) {
	entry := models.NewAuditLog(c.claims.TerminalID, c.provider, c.action, decision).
		WithRequest(c.requestID).
		WithResource(resourceOf(c.context)).
		WithPolicy(c.revision)
	if c.integration != nil {
		entry.WithIntegration(c.integration)
	} else {
		entry.WithCaller(c.claims.DashboardID, c.claims.UserID())
	}
	if reason != "" {
		entry.WithDenial(decision, reason)
	}
	if len(c.summary) > 0 {
		entry.WithSummary(c.summary)
	}
	s.recorder.Record(entry)
}

func rateLimitReason(category policy.Category, r *ratelimit.Result) string {
	if r.Unavailable {
		return ratelimit.ReasonUnavailable
	}
	if r.Reason != "" {
		return r.Reason
	}
	return fmt.Sprintf("rate limit exceeded: %d %s per %s", r.Limit, category, r.Window)
}

// resourceOf picks the most specific resource identifier in ctx
func resourceOf(ctx enforcement.ActionContext) string {
	switch {
	case ctx.ResourceID != "":
		return ctx.ResourceID
	case ctx.FileID != "":
		return ctx.FileID
	case ctx.RepoOwner != "" && ctx.RepoName != "":
		return ctx.RepoOwner + "/" + ctx.RepoName
	case ctx.CalendarID != "":
		return ctx.CalendarID
	case ctx.ChannelID != "":
		return ctx.ChannelID
	case ctx.ChannelName != "":
		return ctx.ChannelName
	case ctx.URL != "":
		return ctx.URL
	}
	return ""
}

// summarize records the argument keys, never their values
func summarize(args json.RawMessage) map[string]any {
	summary := map[string]any{}
	if !gjson.ValidBytes(args) {
		return summary
	}
	root := gjson.ParseBytes(args)
	if !root.IsObject() {
		return summary
	}
	var keys []string
	root.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	if len(keys) > 0 {
		sort.Strings(keys)
		summary["argKeys"] = keys
	}
	return summary
}
