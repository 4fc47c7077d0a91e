package enforcement

import (
	"net/mail"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/upb/integration-gateway/internal/policy"
)

// ActionContext holds the typed fields pulled out of an action's arguments.
// Empty strings mean the field was not supplied.
type ActionContext struct {
	ResourceID  string
	Recipients  []string
	MessageID   string
	DraftID     string
	ReplyAll    bool
	RepoOwner   string
	RepoName    string
	CalendarID  string
	FileID      string
	ParentID    string
	MimeType    string
	FileName    string
	URL         string
	ChannelID   string
	ChannelName string
	ThreadID    string
	Text        string
	Recipient   string

	// RecipientsResolved is set once Recipients also holds the addresses
	// of the message or draft an action refers to.
	RecipientsResolved bool
}

// ExtractContext reads the fields relevant to provider from the raw JSON
// argument object. Malformed or non-object args yield an empty context,
// which scoped actions then treat as missing fields.
func ExtractContext(provider policy.Provider, args []byte) ActionContext {
	if !gjson.ValidBytes(args) {
		return ActionContext{}
	}
	root := gjson.ParseBytes(args)
	if !root.IsObject() {
		return ActionContext{}
	}

	var ac ActionContext
	switch {
	case provider == policy.ProviderGmail:
		ac.ResourceID = first(root, "messageId", "message_id", "threadId", "thread_id", "draftId", "draft_id", "id")
		ac.MessageID = first(root, "messageId", "message_id")
		ac.ThreadID = first(root, "threadId", "thread_id")
		ac.DraftID = first(root, "draftId", "draft_id")
		ac.ReplyAll = root.Get("replyAll").Bool() || root.Get("reply_all").Bool()
		for _, key := range []string{"to", "cc", "bcc"} {
			ac.Recipients = append(ac.Recipients, addresses(root.Get(key))...)
		}
	case provider == policy.ProviderGitHub:
		ac.RepoOwner = first(root, "owner", "org")
		ac.RepoName = first(root, "repo", "name")
		if full := first(root, "repository", "full_name", "fullName"); full != "" {
			if owner, name, ok := strings.Cut(full, "/"); ok {
				ac.RepoOwner, ac.RepoName = owner, name
			}
		} else if owner, name, ok := strings.Cut(ac.RepoName, "/"); ok && ac.RepoOwner == "" {
			ac.RepoOwner, ac.RepoName = owner, name
		}
		ac.ResourceID = first(root, "path", "number", "issue_number", "pull_number", "sha", "ref")
	case provider == policy.ProviderGoogleCalendar:
		ac.CalendarID = first(root, "calendarId", "calendar_id")
		ac.ResourceID = first(root, "eventId", "event_id")
	case provider == policy.ProviderGoogleDrive || provider == policy.ProviderOneDrive || provider == policy.ProviderBox:
		ac.FileID = first(root, "fileId", "file_id", "itemId", "item_id", "id")
		ac.ResourceID = ac.FileID
		ac.ParentID = first(root, "parentId", "parent_id", "folderId", "folder_id", "parents.0")
		ac.MimeType = first(root, "mimeType", "mime_type")
		ac.FileName = first(root, "name", "fileName", "file_name", "title")
	case provider == policy.ProviderBrowser:
		ac.URL = first(root, "url")
		ac.ResourceID = ac.URL
	case provider.IsMessaging():
		channel := first(root, "channel", "channelId", "channel_id", "chat_id", "room_id")
		if strings.HasPrefix(channel, "#") {
			ac.ChannelName = channel
		} else {
			ac.ChannelID = channel
		}
		if name := first(root, "channelName", "channel_name"); name != "" {
			ac.ChannelName = name
		}
		ac.ThreadID = first(root, "thread_ts", "threadId", "thread_id")
		ac.Text = first(root, "text", "message", "content")
		ac.Recipient = first(root, "recipient", "user", "userId", "user_id")
		ac.ResourceID = first(root, "ts", "messageId", "message_id")
	default:
		ac.ResourceID = first(root, "id", "spreadsheetId", "formId", "resourceName")
	}
	return ac
}

// first returns the first non-empty string-like value among keys.
func first(root gjson.Result, keys ...string) string {
	for _, k := range keys {
		v := root.Get(k)
		if !v.Exists() || v.IsObject() || v.IsArray() {
			continue
		}
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

// addresses accepts a comma-separated string or an array of strings and
// returns bare, lowercased email addresses.
func addresses(v gjson.Result) []string {
	var raw []string
	switch {
	case !v.Exists():
		return nil
	case v.IsObject():
		raw = append(raw, v.Get("email").String())
	case v.IsArray():
		for _, item := range v.Array() {
			if item.IsObject() {
				raw = append(raw, item.Get("email").String())
				continue
			}
			raw = append(raw, item.String())
		}
	default:
		raw = append(raw, v.String())
	}

	var out []string
	for _, entry := range raw {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		if list, err := mail.ParseAddressList(entry); err == nil {
			for _, a := range list {
				out = append(out, strings.ToLower(a.Address))
			}
			continue
		}
		for _, part := range strings.Split(entry, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, strings.ToLower(part))
			}
		}
	}
	return out
}

// RecipientLookup returns the connector read, and its arguments, that
// exposes who a gmail reply or draft send reaches. ok is false when the
// arguments do not reference a message, thread or draft.
func RecipientLookup(action string, ac ActionContext) (read string, args map[string]string, ok bool) {
	switch action {
	case "send_draft":
		if ac.DraftID != "" {
			return "get_draft", map[string]string{"draftId": ac.DraftID}, true
		}
	case "reply":
		if ac.MessageID != "" {
			return "get", map[string]string{"messageId": ac.MessageID}, true
		}
		if ac.ThreadID != "" {
			return "get_thread", map[string]string{"threadId": ac.ThreadID}, true
		}
	}
	return "", nil, false
}

// MessageRecipients reads the addresses a send reaches from message or
// draft metadata. Threads resolve to their last message and drafts to
// their embedded message. A reply reaches Reply-To, or From when unset,
// and also To and Cc with replyAll. A draft reaches all its addressees.
func MessageRecipients(action string, replyAll bool, meta []byte) []string {
	if !gjson.ValidBytes(meta) {
		return nil
	}
	msg := gjson.ParseBytes(meta)
	if msgs := msg.Get("messages"); msgs.IsArray() {
		list := msgs.Array()
		if len(list) == 0 {
			return nil
		}
		msg = list[len(list)-1]
	}
	if inner := msg.Get("message"); inner.IsObject() {
		msg = inner
	}

	if action == "send_draft" {
		var out []string
		for _, h := range []string{"To", "Cc", "Bcc"} {
			out = append(out, addresses(messageField(msg, h))...)
		}
		return out
	}

	out := addresses(messageField(msg, "Reply-To"))
	if len(out) == 0 {
		out = addresses(messageField(msg, "From"))
	}
	if replyAll {
		for _, h := range []string{"To", "Cc"} {
			out = append(out, addresses(messageField(msg, h))...)
		}
	}
	return out
}

// messageField looks a header up as a flat field first ("replyTo",
// "reply_to", "to") and then among Gmail API payload headers.
func messageField(msg gjson.Result, header string) gjson.Result {
	lower := strings.ToLower(header)
	keys := []string{lower}
	if before, after, ok := strings.Cut(lower, "-"); ok {
		keys = []string{before + strings.ToUpper(after[:1]) + after[1:], before + "_" + after}
	}
	for _, k := range keys {
		if v := msg.Get(k); v.Exists() {
			return v
		}
	}
	for _, h := range msg.Get("payload.headers").Array() {
		if strings.EqualFold(h.Get("name").String(), header) {
			return h.Get("value")
		}
	}
	return gjson.Result{}
}
