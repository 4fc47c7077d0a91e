package enforcement

import (
	"fmt"
	"unicode/utf8"

	"github.com/upb/integration-gateway/internal/policy"
)

// DecisionKind tags the outcome of an evaluation.
type DecisionKind string

const (
	DecisionAllowed  DecisionKind = "allowed"
	DecisionDenied   DecisionKind = "denied"
	DecisionFiltered DecisionKind = "filtered"
)

// ConfirmationSet holds the high-risk capabilities a user has confirmed for
// one terminal integration.
type ConfirmationSet map[policy.Capability]bool

// Has reports whether c was confirmed.
func (s ConfirmationSet) Has(c policy.Capability) bool {
	return s[c]
}

// Request is one proposed action against one policy snapshot.
type Request struct {
	Provider              policy.Provider
	Action                string
	Policy                policy.Content
	TerminalIntegrationID string
	Context               ActionContext
	Confirmed             ConfirmationSet
}

// Decision is the result of Enforce. Spec is zero when the action did not
// resolve.
type Decision struct {
	Allowed bool
	Kind    DecisionKind
	Reason  string
	Spec    policy.ActionSpec

	// ResolveRecipients marks a denial that can be lifted by looking up the
	// recipients of the referenced message or draft and enforcing again
	// with ActionContext.RecipientsResolved set.
	ResolveRecipients bool
}

func allow(spec policy.ActionSpec) Decision {
	return Decision{Allowed: true, Kind: DecisionAllowed, Spec: spec}
}

func deny(spec policy.ActionSpec, format string, args ...any) Decision {
	return Decision{Kind: DecisionDenied, Reason: fmt.Sprintf(format, args...), Spec: spec}
}

func filtered(spec policy.ActionSpec, format string, args ...any) Decision {
	return Decision{Kind: DecisionFiltered, Reason: fmt.Sprintf(format, args...), Spec: spec}
}

// browserLifecycle lists browser actions that do not target a page.
var browserLifecycle = map[string]bool{
	"start":      true,
	"stop":       true,
	"status":     true,
	"screenshot": true,
}

// Enforce evaluates req and returns the first denial, or allowed.
// Missing required context fields deny; values rejected by a configured
// filter are tagged filtered.
func Enforce(req Request) Decision {
	spec, err := policy.CapabilityFor(req.Provider, req.Action)
	if err != nil {
		return deny(spec, "unknown action %s.%s", req.Provider, req.Action)
	}
	if err := policy.MatchesProvider(req.Provider, req.Policy); err != nil {
		return deny(spec, "policy does not match provider %s", req.Provider)
	}

	if !req.Policy.Allows(spec.Capability) {
		return deny(spec, "policy does not allow %s", spec.Capability)
	}

	if policy.IsHighRisk(req.Provider, spec.Capability) && !req.Confirmed.Has(spec.Capability) {
		return deny(spec, "%s is a high-risk capability and has not been confirmed", spec.Capability)
	}

	action := policy.NormalizeAction(req.Action)
	ctx := req.Context

	switch p := req.Policy.(type) {
	case *policy.GmailPolicy:
		return enforceGmail(spec, p, ctx)
	case *policy.GitHubPolicy:
		return enforceGitHub(spec, action, p, ctx)
	case *policy.CalendarPolicy:
		return enforceCalendar(spec, action, p, ctx)
	case *policy.DrivePolicy:
		return enforceDrive(spec, action, p, ctx)
	case *policy.BrowserPolicy:
		return enforceBrowser(spec, action, p, ctx)
	case *policy.MessagingPolicy:
		return enforceMessaging(spec, action, p, ctx)
	}
	return allow(spec)
}

// recipientsUpstream lists gmail sends whose recipients live on an
// existing message or draft rather than in the arguments.
var recipientsUpstream = map[string]bool{
	"reply":      true,
	"send_draft": true,
}

func enforceGmail(spec policy.ActionSpec, p *policy.GmailPolicy, ctx ActionContext) Decision {
	if spec.Capability != policy.CanSend && spec.Capability != policy.CanDraft {
		return allow(spec)
	}
	if !p.SendPolicy.Configured() {
		return allow(spec)
	}
	for _, r := range ctx.Recipients {
		if !p.SendPolicy.Permits(r) {
			return filtered(spec, "recipient %s is not allowed by sendPolicy", r)
		}
	}
	if recipientsUpstream[spec.Action] && !ctx.RecipientsResolved {
		d := deny(spec, "recipients of %s are not known yet", spec.Action)
		d.ResolveRecipients = true
		return d
	}
	if len(ctx.Recipients) == 0 {
		return deny(spec, "no recipients supplied for a restricted send policy")
	}
	return allow(spec)
}

// githubUnscoped lists actions that do not target a single repository.
// They are still checked when an owner is supplied.
var githubUnscoped = map[string]bool{
	"list_repos":   true,
	"search_repos": true,
	"search_code":  true,
}

func enforceGitHub(spec policy.ActionSpec, action string, p *policy.GitHubPolicy, ctx ActionContext) Decision {
	if !p.RepoFilter.Mode.Active() {
		return allow(spec)
	}
	if ctx.RepoOwner == "" {
		if githubUnscoped[action] {
			return allow(spec)
		}
		return deny(spec, "repository owner is required for github.%s", action)
	}
	if !p.RepoFilter.Permits(ctx.RepoOwner, ctx.RepoName) {
		name := ctx.RepoOwner
		if ctx.RepoName != "" {
			name += "/" + ctx.RepoName
		}
		return filtered(spec, "repository %s is not allowed by repoFilter (%s)", name, p.RepoFilter.Mode)
	}
	return allow(spec)
}

func enforceCalendar(spec policy.ActionSpec, action string, p *policy.CalendarPolicy, ctx ActionContext) Decision {
	if action == "list_calendars" {
		return allow(spec)
	}
	calendarID := ctx.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	if !p.CalendarFilter.Permits(calendarID) {
		return filtered(spec, "calendar %s is not allowed by calendarFilter", calendarID)
	}
	if spec.Capability == policy.CanCreate && !p.CreatePolicy.Permits(calendarID) {
		return filtered(spec, "creating events on calendar %s is not allowed by createPolicy", calendarID)
	}
	return allow(spec)
}

const driveFolderMimeType = "application/vnd.google-apps.folder"

func enforceDrive(spec policy.ActionSpec, action string, p *policy.DrivePolicy, ctx ActionContext) Decision {
	if action != "upload" && action != "create_folder" {
		return allow(spec)
	}
	parent := ctx.ParentID
	if parent == "" {
		parent = "root"
	}
	if !p.FolderFilter.Permits(parent) {
		return filtered(spec, "folder %s is not allowed by folderFilter", parent)
	}
	if action == "create_folder" || !p.FileTypeFilter.Mode.Active() {
		return allow(spec)
	}
	if ctx.MimeType == "" && ctx.FileName == "" {
		return deny(spec, "mime type or file name is required for google_drive.%s", action)
	}
	if !p.FileTypeFilter.Permits(ctx.MimeType, ctx.FileName) {
		return filtered(spec, "file type %s is not allowed by fileTypeFilter", describeFile(ctx))
	}
	return allow(spec)
}

func describeFile(ctx ActionContext) string {
	if ctx.MimeType != "" {
		return ctx.MimeType
	}
	return ctx.FileName
}

func enforceBrowser(spec policy.ActionSpec, action string, p *policy.BrowserPolicy, ctx ActionContext) Decision {
	if browserLifecycle[action] {
		return allow(spec)
	}
	if ctx.URL == "" {
		return deny(spec, "url is required for browser.%s", action)
	}
	if !p.URLFilter.Permits(ctx.URL) {
		return filtered(spec, "url %s is not allowed by urlFilter", ctx.URL)
	}
	return allow(spec)
}

var channelTargeted = map[policy.Capability]bool{
	policy.CanSend:           true,
	policy.CanReadHistory:    true,
	policy.CanReact:          true,
	policy.CanEditMessages:   true,
	policy.CanDeleteMessages: true,
}

func enforceMessaging(spec policy.ActionSpec, action string, p *policy.MessagingPolicy, ctx ActionContext) Decision {
	direct := action == "send_dm"

	if channelTargeted[spec.Capability] && !direct && p.ChannelFilter.Mode.Active() {
		if ctx.ChannelID == "" && ctx.ChannelName == "" {
			return deny(spec, "channel is required for %s", action)
		}
		if !p.ChannelFilter.Permits(ctx.ChannelID, ctx.ChannelName) {
			return filtered(spec, "channel %s is not allowed by channelFilter", channelLabel(ctx))
		}
	}

	if spec.Capability != policy.CanSend {
		return allow(spec)
	}

	sp := p.SendPolicy
	if direct {
		if len(sp.AllowedRecipients) > 0 && ctx.Recipient == "" {
			return deny(spec, "recipient is required for send_dm")
		}
	} else {
		if len(sp.AllowedChannels) > 0 {
			if ctx.ChannelID == "" && ctx.ChannelName == "" {
				return deny(spec, "channel is required for %s", action)
			}
			if !sp.PermitsChannel(ctx.ChannelID, ctx.ChannelName) {
				return filtered(spec, "channel %s is not allowed by sendPolicy", channelLabel(ctx))
			}
		}
		if sp.RequireThreadReply && ctx.ThreadID == "" {
			return deny(spec, "sendPolicy requires replies in a thread")
		}
	}
	if sp.MaxMessageLength > 0 {
		if n := utf8.RuneCountInString(ctx.Text); n > sp.MaxMessageLength {
			return deny(spec, "message length %d exceeds maxMessageLength %d", n, sp.MaxMessageLength)
		}
	}
	if ctx.Recipient != "" && !sp.PermitsRecipient(ctx.Recipient) {
		return filtered(spec, "recipient %s is not allowed by sendPolicy", ctx.Recipient)
	}
	return allow(spec)
}

func channelLabel(ctx ActionContext) string {
	if ctx.ChannelName != "" {
		return ctx.ChannelName
	}
	return ctx.ChannelID
}
