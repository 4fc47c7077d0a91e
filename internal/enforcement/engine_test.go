package enforcement

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upb/integration-gateway/internal/policy"
)

func confirmedAll(p policy.Provider) ConfirmationSet {
	set := ConfirmationSet{}
	for _, c := range policy.HighRiskCapabilities(p) {
		set[c] = true
	}
	return set
}

func TestEnforce_EmptyPolicyNeverAllows(t *testing.T) {
	for _, p := range policy.AllProviders() {
		empty, err := policy.New(p)
		require.NoError(t, err)

		for _, spec := range policy.Actions(p) {
			d := Enforce(Request{
				Provider:  p,
				Action:    spec.Action,
				Policy:    empty,
				Confirmed: confirmedAll(p),
				Context:   ActionContext{URL: "https://example.com", RepoOwner: "acme", ChannelID: "C1"},
			})
			assert.False(t, d.Allowed, "%s.%s allowed with every flag off", p, spec.Action)
			assert.Equal(t, DecisionDenied, d.Kind)
			assert.Contains(t, d.Reason, string(spec.Capability))
		}
	}
}

func TestEnforce_DefaultPolicyWithConfirmationsAllows(t *testing.T) {
	for _, p := range policy.AllProviders() {
		content, err := policy.Default(p)
		require.NoError(t, err)

		for _, spec := range policy.Actions(p) {
			d := Enforce(Request{
				Provider:  p,
				Action:    spec.Action,
				Policy:    content,
				Confirmed: confirmedAll(p),
				Context:   ActionContext{URL: "https://example.com"},
			})
			assert.True(t, d.Allowed, "%s.%s: %s", p, spec.Action, d.Reason)
		}
	}
}

func TestEnforce_UnknownAction(t *testing.T) {
	d := Enforce(Request{Provider: policy.ProviderGmail, Action: "gmail.undelete", Policy: &policy.GmailPolicy{CanRead: true}})
	assert.False(t, d.Allowed)
	assert.Equal(t, DecisionDenied, d.Kind)
	assert.Contains(t, d.Reason, "unknown action")
}

func TestEnforce_PolicyShapeMismatch(t *testing.T) {
	d := Enforce(Request{Provider: policy.ProviderGmail, Action: "list", Policy: &policy.GitHubPolicy{CanReadRepos: true}})
	assert.False(t, d.Allowed)
}

func TestEnforce_CapabilityFlag(t *testing.T) {
	d := Enforce(Request{
		Provider: policy.ProviderGmail,
		Action:   "gmail.send",
		Policy:   &policy.GmailPolicy{CanRead: true, CanSend: false},
		Context:  ActionContext{Recipients: []string{"a@acme.com"}},
	})
	assert.False(t, d.Allowed)
	assert.Equal(t, DecisionDenied, d.Kind)
	assert.Equal(t, "policy does not allow canSend", d.Reason)
	assert.Equal(t, policy.CategorySends, d.Spec.Category)
}

func TestEnforce_HighRiskConfirmation(t *testing.T) {
	req := Request{
		Provider: policy.ProviderGitHub,
		Action:   "push_file",
		Policy:   &policy.GitHubPolicy{CanPush: true},
		Context:  ActionContext{RepoOwner: "acme", RepoName: "api"},
	}

	d := Enforce(req)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "high-risk")

	req.Confirmed = ConfirmationSet{policy.CanMerge: true}
	assert.False(t, Enforce(req).Allowed)

	req.Confirmed = ConfirmationSet{policy.CanPush: true}
	assert.True(t, Enforce(req).Allowed)

	req.Policy = &policy.GitHubPolicy{CanPush: false}
	assert.False(t, Enforce(req).Allowed)
}

func TestEnforce_Gmail(t *testing.T) {
	p := &policy.GmailPolicy{
		CanSend:    true,
		CanDraft:   true,
		SendPolicy: policy.SendPolicy{AllowedDomains: []string{"acme.com"}, AllowedRecipients: []string{"partner@other.io"}},
	}
	confirmed := ConfirmationSet{policy.CanSend: true}

	tests := []struct {
		name       string
		action     string
		recipients []string
		allowed    bool
		kind       DecisionKind
	}{
		{"all allowed", "send", []string{"a@acme.com", "partner@other.io"}, true, DecisionAllowed},
		{"one outsider", "reply", []string{"a@acme.com", "eve@evil.com"}, false, DecisionFiltered},
		{"no recipients", "send", nil, false, DecisionDenied},
		{"draft checked too", "create_draft", []string{"eve@evil.com"}, false, DecisionFiltered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Enforce(Request{
				Provider:  policy.ProviderGmail,
				Action:    tt.action,
				Policy:    p,
				Confirmed: confirmed,
				Context:   ActionContext{Recipients: tt.recipients},
			})
			assert.Equal(t, tt.allowed, d.Allowed, d.Reason)
			assert.Equal(t, tt.kind, d.Kind)
		})
	}

	open := &policy.GmailPolicy{CanSend: true}
	d := Enforce(Request{Provider: policy.ProviderGmail, Action: "send", Policy: open, Confirmed: confirmed})
	assert.True(t, d.Allowed)
}

func TestEnforce_GmailUpstreamRecipients(t *testing.T) {
	p := &policy.GmailPolicy{
		CanSend:    true,
		SendPolicy: policy.SendPolicy{AllowedDomains: []string{"acme.com"}},
	}
	confirmed := ConfirmationSet{policy.CanSend: true}
	run := func(action string, ctx ActionContext) Decision {
		return Enforce(Request{Provider: policy.ProviderGmail, Action: action, Policy: p, Confirmed: confirmed, Context: ctx})
	}

	for _, action := range []string{"reply", "send_draft"} {
		t.Run(action+" defers until resolved", func(t *testing.T) {
			d := run(action, ActionContext{})
			assert.False(t, d.Allowed)
			assert.Equal(t, DecisionDenied, d.Kind)
			assert.True(t, d.ResolveRecipients)

			d = run(action, ActionContext{Recipients: []string{"bob@acme.com"}, RecipientsResolved: true})
			assert.True(t, d.Allowed, d.Reason)

			d = run(action, ActionContext{Recipients: []string{"eve@evil.com"}, RecipientsResolved: true})
			assert.Equal(t, DecisionFiltered, d.Kind)

			d = run(action, ActionContext{RecipientsResolved: true})
			assert.False(t, d.Allowed)
			assert.False(t, d.ResolveRecipients)
		})
	}

	t.Run("explicit outsider is filtered without a lookup", func(t *testing.T) {
		d := run("reply", ActionContext{Recipients: []string{"eve@evil.com"}})
		assert.Equal(t, DecisionFiltered, d.Kind)
		assert.False(t, d.ResolveRecipients)
	})

	t.Run("open send policy needs no lookup", func(t *testing.T) {
		open := &policy.GmailPolicy{CanSend: true}
		d := Enforce(Request{Provider: policy.ProviderGmail, Action: "reply", Policy: open, Confirmed: confirmed})
		assert.True(t, d.Allowed)
	})

	t.Run("plain send never defers", func(t *testing.T) {
		d := run("send", ActionContext{})
		assert.False(t, d.ResolveRecipients)
	})
}

func TestEnforce_GitHubRepoFilter(t *testing.T) {
	p := &policy.GitHubPolicy{
		CanReadCode:  true,
		CanReadRepos: true,
		RepoFilter:   policy.RepoFilter{Mode: policy.FilterAllowlist, Orgs: []string{"acme"}},
	}

	d := Enforce(Request{
		Provider: policy.ProviderGitHub,
		Action:   "github.get_file",
		Policy:   p,
		Context:  ExtractContext(policy.ProviderGitHub, []byte(`{"owner":"other-org","repo":"x","path":"README.md"}`)),
	})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "other-org/x")

	d = Enforce(Request{Provider: policy.ProviderGitHub, Action: "get_file", Policy: p,
		Context: ActionContext{RepoOwner: "acme", RepoName: "api"}})
	assert.True(t, d.Allowed)

	d = Enforce(Request{Provider: policy.ProviderGitHub, Action: "get_file", Policy: p})
	assert.False(t, d.Allowed)
	assert.Equal(t, DecisionDenied, d.Kind)

	d = Enforce(Request{Provider: policy.ProviderGitHub, Action: "list_repos", Policy: p})
	assert.True(t, d.Allowed)
}

func TestEnforce_Calendar(t *testing.T) {
	p := &policy.CalendarPolicy{
		CanRead:        true,
		CanCreate:      true,
		CalendarFilter: policy.CalendarFilter{Mode: policy.FilterAllowlist, CalendarIDs: []string{"primary", "team"}},
		CreatePolicy:   policy.CalendarCreatePolicy{AllowedCalendars: []string{"primary"}},
	}

	assert.True(t, Enforce(Request{Provider: policy.ProviderGoogleCalendar, Action: "list_calendars", Policy: p}).Allowed)
	assert.True(t, Enforce(Request{Provider: policy.ProviderGoogleCalendar, Action: "list_events", Policy: p}).Allowed)
	assert.True(t, Enforce(Request{Provider: policy.ProviderGoogleCalendar, Action: "get_event", Policy: p,
		Context: ActionContext{CalendarID: "team"}}).Allowed)
	assert.False(t, Enforce(Request{Provider: policy.ProviderGoogleCalendar, Action: "get_event", Policy: p,
		Context: ActionContext{CalendarID: "other"}}).Allowed)

	d := Enforce(Request{Provider: policy.ProviderGoogleCalendar, Action: "create_event", Policy: p,
		Context: ActionContext{CalendarID: "team"}})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "createPolicy")
}

func TestEnforce_DriveCreate(t *testing.T) {
	p := &policy.DrivePolicy{
		StorageCapabilities: policy.StorageCapabilities{CanCreate: true, CanRead: true},
		FolderFilter:        policy.FolderFilter{Mode: policy.FilterBlocklist, FolderIDs: []string{"F1"}},
		FileTypeFilter:      policy.FileTypeFilter{Mode: policy.FilterAllowlist, MimeTypes: []string{"text/"}},
	}

	run := func(action string, ctx ActionContext) Decision {
		return Enforce(Request{Provider: policy.ProviderGoogleDrive, Action: action, Policy: p, Context: ctx})
	}

	assert.True(t, run("upload", ActionContext{ParentID: "F2", MimeType: "text/plain"}).Allowed)
	assert.False(t, run("upload", ActionContext{ParentID: "F1", MimeType: "text/plain"}).Allowed)
	assert.False(t, run("upload", ActionContext{ParentID: "F2", MimeType: "application/zip"}).Allowed)
	assert.Equal(t, DecisionDenied, run("upload", ActionContext{ParentID: "F2"}).Kind)
	assert.True(t, run("create_folder", ActionContext{}).Allowed)
	assert.False(t, run("create_folder", ActionContext{ParentID: "F1"}).Allowed)
	assert.True(t, run("get", ActionContext{ParentID: "F1"}).Allowed)
}

func TestEnforce_Browser(t *testing.T) {
	p := &policy.BrowserPolicy{
		CanNavigate:   true,
		CanScreenshot: true,
		URLFilter:     policy.URLFilter{Mode: policy.FilterAllowlist, Patterns: []string{"https://*.acme.com/*"}},
	}

	assert.True(t, Enforce(Request{Provider: policy.ProviderBrowser, Action: "start", Policy: p}).Allowed)
	assert.True(t, Enforce(Request{Provider: policy.ProviderBrowser, Action: "screenshot", Policy: p}).Allowed)

	d := Enforce(Request{Provider: policy.ProviderBrowser, Action: "navigate", Policy: p})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "url is required")

	assert.True(t, Enforce(Request{Provider: policy.ProviderBrowser, Action: "navigate", Policy: p,
		Context: ActionContext{URL: "https://WIKI.acme.com/page"}}).Allowed)
	assert.False(t, Enforce(Request{Provider: policy.ProviderBrowser, Action: "navigate", Policy: p,
		Context: ActionContext{URL: "https://evil.com/acme.com/"}}).Allowed)
}

func TestEnforce_Messaging(t *testing.T) {
	p := &policy.MessagingPolicy{
		CanSend:        true,
		CanReadHistory: true,
		CanReadUsers:   true,
		ChannelFilter:  policy.ChannelFilter{Mode: policy.FilterAllowlist, ChannelNames: []string{"ops", "dev"}},
		SendPolicy: policy.MessagingSendPolicy{
			AllowedChannels:    []string{"#ops"},
			RequireThreadReply: true,
			MaxMessageLength:   10,
			AllowedRecipients:  []string{"U1"},
		},
	}
	confirmed := ConfirmationSet{policy.CanSend: true}

	run := func(action string, ctx ActionContext) Decision {
		return Enforce(Request{Provider: policy.ProviderSlack, Action: action, Policy: p, Confirmed: confirmed, Context: ctx})
	}

	assert.True(t, run("read_history", ActionContext{ChannelName: "#dev"}).Allowed)
	assert.False(t, run("read_history", ActionContext{ChannelName: "#random"}).Allowed)
	assert.Equal(t, DecisionDenied, run("read_history", ActionContext{}).Kind)
	assert.True(t, run("user_info", ActionContext{}).Allowed)

	assert.True(t, run("send_message", ActionContext{ChannelName: "#ops", ThreadID: "1.2", Text: "hi"}).Allowed)
	assert.False(t, run("send_message", ActionContext{ChannelName: "#dev", ThreadID: "1.2", Text: "hi"}).Allowed)
	assert.False(t, run("send_message", ActionContext{ChannelName: "#ops", Text: "hi"}).Allowed)
	assert.False(t, run("send_message", ActionContext{ChannelName: "#ops", ThreadID: "1.2", Text: strings.Repeat("é", 11)}).Allowed)
	assert.True(t, run("send_message", ActionContext{ChannelName: "#ops", ThreadID: "1.2", Text: strings.Repeat("é", 10)}).Allowed)

	assert.True(t, run("send_dm", ActionContext{Recipient: "U1", Text: "hi"}).Allowed)
	assert.False(t, run("send_dm", ActionContext{Recipient: "U2", Text: "hi"}).Allowed)
	assert.False(t, run("send_dm", ActionContext{Text: "hi"}).Allowed)
}

func TestEnforce_MessagingBareChannelNames(t *testing.T) {
	run := func(filter policy.ChannelFilter, args string) Decision {
		p := &policy.MessagingPolicy{CanReadHistory: true, ChannelFilter: filter}
		return Enforce(Request{
			Provider: policy.ProviderSlack,
			Action:   "read_history",
			Policy:   p,
			Context:  ExtractContext(policy.ProviderSlack, []byte(args)),
		})
	}

	t.Run("blocklist matches with or without hash", func(t *testing.T) {
		block := policy.ChannelFilter{Mode: policy.FilterBlocklist, ChannelNames: []string{"secret"}}
		for _, args := range []string{`{"channel":"#secret"}`, `{"channel":"secret"}`, `{"channel":"Secret"}`} {
			d := run(block, args)
			assert.False(t, d.Allowed, args)
			assert.Equal(t, DecisionFiltered, d.Kind, args)
		}
		assert.True(t, run(block, `{"channel":"general"}`).Allowed)
	})

	t.Run("allowlist accepts bare names", func(t *testing.T) {
		allow := policy.ChannelFilter{Mode: policy.FilterAllowlist, ChannelNames: []string{"#secret"}}
		assert.True(t, run(allow, `{"channel":"secret"}`).Allowed)
		assert.True(t, run(allow, `{"channel":"#secret"}`).Allowed)
		assert.False(t, run(allow, `{"channel":"general"}`).Allowed)
	})

	t.Run("ids still match ids", func(t *testing.T) {
		block := policy.ChannelFilter{Mode: policy.FilterBlocklist, ChannelIDs: []string{"C123"}}
		assert.False(t, run(block, `{"channel":"C123"}`).Allowed)
		assert.True(t, run(block, `{"channel":"C999"}`).Allowed)
	})
}

func TestExtractContext(t *testing.T) {
	t.Run("gmail recipients", func(t *testing.T) {
		ac := ExtractContext(policy.ProviderGmail, []byte(`{"to":"Alice <Alice@Acme.com>, bob@acme.com","cc":["carol@x.io"],"bcc":[{"email":"dan@y.io"}]}`))
		assert.Equal(t, []string{"alice@acme.com", "bob@acme.com", "carol@x.io", "dan@y.io"}, ac.Recipients)
	})

	t.Run("github full name", func(t *testing.T) {
		ac := ExtractContext(policy.ProviderGitHub, []byte(`{"repository":"acme/api","number":42}`))
		assert.Equal(t, "acme", ac.RepoOwner)
		assert.Equal(t, "api", ac.RepoName)
		assert.Equal(t, "42", ac.ResourceID)

		ac = ExtractContext(policy.ProviderGitHub, []byte(`{"repo":"acme/web"}`))
		assert.Equal(t, "acme", ac.RepoOwner)
		assert.Equal(t, "web", ac.RepoName)
	})

	t.Run("drive parents array", func(t *testing.T) {
		ac := ExtractContext(policy.ProviderGoogleDrive, []byte(`{"fileId":"abc","parents":["F9"],"mimeType":"text/plain","name":"a.txt"}`))
		assert.Equal(t, "abc", ac.FileID)
		assert.Equal(t, "F9", ac.ParentID)
		assert.Equal(t, "text/plain", ac.MimeType)
		assert.Equal(t, "a.txt", ac.FileName)
	})

	t.Run("messaging channel name", func(t *testing.T) {
		ac := ExtractContext(policy.ProviderDiscord, []byte(`{"channel":"#ops","text":"deploy","thread_ts":"1.1"}`))
		assert.Equal(t, "#ops", ac.ChannelName)
		assert.Empty(t, ac.ChannelID)
		assert.Equal(t, "deploy", ac.Text)
		assert.Equal(t, "1.1", ac.ThreadID)
	})

	t.Run("gmail message references", func(t *testing.T) {
		ac := ExtractContext(policy.ProviderGmail, []byte(`{"messageId":"m1","threadId":"t1","replyAll":true}`))
		assert.Equal(t, "m1", ac.MessageID)
		assert.Equal(t, "t1", ac.ThreadID)
		assert.True(t, ac.ReplyAll)

		ac = ExtractContext(policy.ProviderGmail, []byte(`{"draft_id":"d1"}`))
		assert.Equal(t, "d1", ac.DraftID)
		assert.Equal(t, "d1", ac.ResourceID)
	})

	t.Run("garbage args", func(t *testing.T) {
		assert.Equal(t, ActionContext{}, ExtractContext(policy.ProviderBrowser, []byte(`not json`)))
		assert.Equal(t, ActionContext{}, ExtractContext(policy.ProviderBrowser, []byte(`[1,2]`)))
	})
}

func TestRecipientLookup(t *testing.T) {
	tests := []struct {
		name   string
		action string
		ctx    ActionContext
		read   string
		args   map[string]string
		ok     bool
	}{
		{"draft", "send_draft", ActionContext{DraftID: "d1"}, "get_draft", map[string]string{"draftId": "d1"}, true},
		{"reply to message", "reply", ActionContext{MessageID: "m1", ThreadID: "t1"}, "get", map[string]string{"messageId": "m1"}, true},
		{"reply to thread", "reply", ActionContext{ThreadID: "t1"}, "get_thread", map[string]string{"threadId": "t1"}, true},
		{"reply without reference", "reply", ActionContext{}, "", nil, false},
		{"draft without id", "send_draft", ActionContext{MessageID: "m1"}, "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read, args, ok := RecipientLookup(tt.action, tt.ctx)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.read, read)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestMessageRecipients(t *testing.T) {
	message := `{"from":"Alice <alice@acme.com>","to":"me@acme.com","cc":["carol@x.io"],"bcc":"hidden@y.io"}`

	t.Run("reply goes to the sender", func(t *testing.T) {
		assert.Equal(t, []string{"alice@acme.com"}, MessageRecipients("reply", false, []byte(message)))
	})

	t.Run("reply all adds to and cc", func(t *testing.T) {
		assert.Equal(t, []string{"alice@acme.com", "me@acme.com", "carol@x.io"},
			MessageRecipients("reply", true, []byte(message)))
	})

	t.Run("reply-to wins over from", func(t *testing.T) {
		got := MessageRecipients("reply", false, []byte(`{"from":"alice@acme.com","replyTo":"list@lists.io"}`))
		assert.Equal(t, []string{"list@lists.io"}, got)
	})

	t.Run("thread uses its last message", func(t *testing.T) {
		thread := `{"messages":[{"from":"old@acme.com"},{"from":"new@acme.com"}]}`
		assert.Equal(t, []string{"new@acme.com"}, MessageRecipients("reply", false, []byte(thread)))
	})

	t.Run("gmail api headers", func(t *testing.T) {
		raw := `{"payload":{"headers":[{"name":"From","value":"Bob <bob@acme.com>"},{"name":"Reply-To","value":"desk@acme.com"}]}}`
		assert.Equal(t, []string{"desk@acme.com"}, MessageRecipients("reply", false, []byte(raw)))
	})

	t.Run("draft reaches every addressee", func(t *testing.T) {
		draft := `{"id":"d1","message":` + message + `}`
		assert.Equal(t, []string{"me@acme.com", "carol@x.io", "hidden@y.io"},
			MessageRecipients("send_draft", false, []byte(draft)))
	})

	t.Run("unreadable metadata yields nothing", func(t *testing.T) {
		assert.Empty(t, MessageRecipients("reply", false, []byte(`not json`)))
		assert.Empty(t, MessageRecipients("reply", false, []byte(`{"messages":[]}`)))
	})
}
