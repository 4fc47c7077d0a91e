package filter

import (
	"net/mail"
	"strings"

	"github.com/upb/integration-gateway/internal/policy"
)

// Result is a filtered response.
type Result struct {
	Data     any
	Filtered bool
	Removed  int
	Redacted int
}

// envelopeKeys are the object keys treated as collections.
var envelopeKeys = []string{
	"items", "messages", "files", "repos", "repositories", "channels",
	"calendars", "changes", "events", "results", "members", "users",
}

type predicate func(item map[string]any) bool

// Apply filters data, the decoded JSON response of provider.action.
// The input is not modified.
func Apply(provider policy.Provider, action string, content policy.Content, data any) Result {
	action = policy.NormalizeAction(action)
	res := Result{Data: clone(data)}

	if pred, single := predicateFor(provider, action, content); pred != nil {
		res.Data, res.Removed = applyPredicate(res.Data, pred, single)
	}
	if provider.IsMessaging() {
		res.Redacted = stripPII(res.Data, userActions[action])
	}

	res.Filtered = res.Removed > 0 || res.Redacted > 0
	return res
}

func applyPredicate(data any, pred predicate, single bool) (any, int) {
	switch v := data.(type) {
	case []any:
		kept, removed := filterList(v, pred)
		return kept, removed
	case map[string]any:
		removed := 0
		found := false
		for _, key := range envelopeKeys {
			list, ok := v[key].([]any)
			if !ok {
				continue
			}
			found = true
			kept, n := filterList(list, pred)
			v[key] = kept
			removed += n
		}
		if !found && single && !pred(v) {
			return nil, 1
		}
		return v, removed
	}
	return data, 0
}

func filterList(list []any, pred predicate) ([]any, int) {
	kept := make([]any, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if ok && !pred(obj) {
			continue
		}
		kept = append(kept, item)
	}
	return kept, len(list) - len(kept)
}

// predicateFor returns the item predicate for provider.action, or nil when
// the policy configures nothing to filter. single reports whether a lone
// object response is a resource that can be nulled out.
func predicateFor(provider policy.Provider, action string, content policy.Content) (predicate, bool) {
	switch p := content.(type) {
	case *policy.GmailPolicy:
		if !p.SenderFilter.Mode.Active() && !p.LabelFilter.Mode.Active() {
			return nil, false
		}
		switch action {
		case "list", "search", "get", "get_thread":
			return gmailPredicate(p), action == "get"
		}
	case *policy.GitHubPolicy:
		if !p.RepoFilter.Mode.Active() {
			return nil, false
		}
		switch action {
		case "list_repos", "search_repos", "search_code", "get_repo":
			return repoPredicate(p.RepoFilter), action == "get_repo"
		}
	case *policy.DrivePolicy:
		if !p.FolderFilter.Mode.Active() && !p.FileTypeFilter.Mode.Active() {
			return nil, false
		}
		switch action {
		case "list", "search", "list_changes", "get":
			return drivePredicate(p), action == "get"
		}
	case *policy.CalendarPolicy:
		if action == "list_calendars" && p.CalendarFilter.Mode.Active() {
			return func(item map[string]any) bool {
				return p.CalendarFilter.Permits(str(item, "id"))
			}, false
		}
	case *policy.MessagingPolicy:
		switch action {
		case "list_channels":
			if p.ChannelFilter.Mode.Active() {
				return func(item map[string]any) bool {
					return p.ChannelFilter.Permits(str(item, "id"), str(item, "name"))
				}, false
			}
		case "read_history", "get_thread":
			if p.SenderFilter.Mode.Active() {
				return func(item map[string]any) bool {
					return p.SenderFilter.Permits(messageAuthor(item))
				}, false
			}
		}
	}
	return nil, false
}

func gmailPredicate(p *policy.GmailPolicy) predicate {
	return func(item map[string]any) bool {
		if p.SenderFilter.Mode.Active() && !p.SenderFilter.Permits(senderAddress(item)) {
			return false
		}
		if p.LabelFilter.Mode.Active() {
			labels := strs(item, "labelIds")
			if len(labels) == 0 {
				labels = strs(item, "labels")
			}
			if !p.LabelFilter.Permits(labels) {
				return false
			}
		}
		return true
	}
}

func senderAddress(item map[string]any) string {
	from := str(item, "from")
	if from == "" {
		from = str(item, "sender")
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return from
}

func repoPredicate(f policy.RepoFilter) predicate {
	return func(item map[string]any) bool {
		if repo, ok := item["repository"].(map[string]any); ok {
			item = repo
		}
		owner, name := "", str(item, "name")
		if full := str(item, "full_name"); full != "" {
			owner, name, _ = strings.Cut(full, "/")
		} else if o, ok := item["owner"].(map[string]any); ok {
			owner = str(o, "login")
		}
		return f.Permits(owner, name)
	}
}

func drivePredicate(p *policy.DrivePolicy) predicate {
	return func(item map[string]any) bool {
		if file, ok := item["file"].(map[string]any); ok {
			item = file
		} else if _, isChange := item["changeType"]; isChange {
			return true
		}
		if !p.FolderFilter.Permits(strs(item, "parents")...) {
			return false
		}
		return p.FileTypeFilter.Permits(str(item, "mimeType"), str(item, "name"))
	}
}

func messageAuthor(item map[string]any) string {
	for _, key := range []string{"user", "user_id", "sender_id"} {
		if s := str(item, key); s != "" {
			return s
		}
	}
	if author, ok := item["author"].(map[string]any); ok {
		return str(author, "id")
	}
	return ""
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func strs(m map[string]any, key string) []string {
	list, _ := m[key].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = clone(val)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, val := range t {
			l[i] = clone(val)
		}
		return l
	}
	return v
}
