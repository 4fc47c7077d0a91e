package policy

import (
	"regexp"
	"strings"
	"sync"
)

// FilterMode selects how a filter's entries are interpreted.
type FilterMode string

const (
	// FilterNone is the explicit "no filter" variant. Decoding normalizes an
	// absent mode to FilterNone so every call site sees the same value.
	FilterNone      FilterMode = "none"
	FilterAllowlist FilterMode = "allowlist"
	FilterBlocklist FilterMode = "blocklist"
	// FilterAll is accepted by calendar filters and behaves like FilterNone.
	FilterAll FilterMode = "all"
)

// Active reports whether the mode restricts anything.
func (m FilterMode) Active() bool {
	return m == FilterAllowlist || m == FilterBlocklist
}

func normalizeMode(m *FilterMode) {
	if *m == "" {
		*m = FilterNone
	}
}

// apply turns a match result into a permit decision for the mode.
func (m FilterMode) apply(matched bool) bool {
	switch m {
	case FilterAllowlist:
		return matched
	case FilterBlocklist:
		return !matched
	default:
		return true
	}
}

// SenderFilter restricts Gmail messages by sender domain or address.
type SenderFilter struct {
	Mode      FilterMode `json:"mode" validate:"omitempty,oneof=none allowlist blocklist"`
	Domains   []string   `json:"domains,omitempty" validate:"dive,required"`
	Addresses []string   `json:"addresses,omitempty" validate:"dive,required"`
}

// Permits reports whether mail from address passes the filter.
func (f SenderFilter) Permits(address string) bool {
	if !f.Mode.Active() {
		return true
	}
	return f.Mode.apply(matchAddress(address, f.Domains, f.Addresses))
}

// LabelFilter restricts Gmail messages by label.
type LabelFilter struct {
	Mode   FilterMode `json:"mode" validate:"omitempty,oneof=none allowlist blocklist"`
	Labels []string   `json:"labels,omitempty" validate:"dive,required"`
}

// Permits reports whether a message carrying labels passes the filter.
// Allowlist needs at least one listed label; blocklist rejects any.
func (f LabelFilter) Permits(labels []string) bool {
	if !f.Mode.Active() {
		return true
	}
	matched := false
	for _, l := range labels {
		if containsFold(f.Labels, l) {
			matched = true
			break
		}
	}
	return f.Mode.apply(matched)
}

// SendPolicy restricts Gmail recipients.
type SendPolicy struct {
	AllowedDomains    []string `json:"allowedDomains,omitempty" validate:"dive,required"`
	AllowedRecipients []string `json:"allowedRecipients,omitempty" validate:"dive,required"`
}

// Configured reports whether any recipient restriction is set.
func (p SendPolicy) Configured() bool {
	return len(p.AllowedDomains) > 0 || len(p.AllowedRecipients) > 0
}

// Permits reports whether a single recipient address is allowed.
func (p SendPolicy) Permits(address string) bool {
	if !p.Configured() {
		return true
	}
	return matchAddress(address, p.AllowedDomains, p.AllowedRecipients)
}

// CalendarFilter restricts which calendars can be touched.
type CalendarFilter struct {
	Mode        FilterMode `json:"mode" validate:"omitempty,oneof=none all allowlist blocklist"`
	CalendarIDs []string   `json:"calendarIds,omitempty" validate:"dive,required"`
}

// Permits reports whether calendarID passes the filter.
func (f CalendarFilter) Permits(calendarID string) bool {
	if !f.Mode.Active() {
		return true
	}
	return f.Mode.apply(containsFold(f.CalendarIDs, calendarID))
}

// CalendarCreatePolicy restricts where new events can be created.
type CalendarCreatePolicy struct {
	AllowedCalendars []string `json:"allowedCalendars,omitempty" validate:"dive,required"`
}

// Permits reports whether events may be created on calendarID.
func (p CalendarCreatePolicy) Permits(calendarID string) bool {
	if len(p.AllowedCalendars) == 0 {
		return true
	}
	return containsFold(p.AllowedCalendars, calendarID)
}

// FolderFilter restricts storage items by parent folder id.
type FolderFilter struct {
	Mode      FilterMode `json:"mode" validate:"omitempty,oneof=none allowlist blocklist"`
	FolderIDs []string   `json:"folderIds,omitempty" validate:"dive,required"`
}

// Permits reports whether an item with the given parents passes the filter.
// An item with no known parent never passes an allowlist.
func (f FolderFilter) Permits(parents ...string) bool {
	if !f.Mode.Active() {
		return true
	}
	matched := false
	for _, p := range parents {
		if contains(f.FolderIDs, p) {
			matched = true
			break
		}
	}
	return f.Mode.apply(matched)
}

// FileTypeFilter restricts storage items by MIME type or extension.
type FileTypeFilter struct {
	Mode       FilterMode `json:"mode" validate:"omitempty,oneof=none allowlist blocklist"`
	MimeTypes  []string   `json:"mimeTypes,omitempty" validate:"dive,required"`
	Extensions []string   `json:"extensions,omitempty" validate:"dive,required"`
}

// Permits matches mimeType by substring and name by extension suffix.
func (f FileTypeFilter) Permits(mimeType, name string) bool {
	if !f.Mode.Active() {
		return true
	}
	return f.Mode.apply(f.matches(mimeType, name))
}

func (f FileTypeFilter) matches(mimeType, name string) bool {
	mimeType = strings.ToLower(mimeType)
	name = strings.ToLower(name)
	if mimeType != "" {
		for _, m := range f.MimeTypes {
			if strings.Contains(mimeType, strings.ToLower(m)) {
				return true
			}
		}
	}
	if name != "" {
		for _, ext := range f.Extensions {
			ext = strings.ToLower(ext)
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			if strings.HasSuffix(name, ext) {
				return true
			}
		}
	}
	return false
}

// RepoFilter restricts GitHub repositories by org, full name or glob.
type RepoFilter struct {
	Mode     FilterMode `json:"mode" validate:"omitempty,oneof=none allowlist blocklist"`
	Orgs     []string   `json:"orgs,omitempty" validate:"dive,required"`
	Repos    []string   `json:"repos,omitempty" validate:"dive,required"`
	Patterns []string   `json:"patterns,omitempty" validate:"dive,required"`
}

// Permits reports whether owner/repo passes the filter. repo may be empty
// when only the owner is known.
func (f RepoFilter) Permits(owner, repo string) bool {
	if !f.Mode.Active() {
		return true
	}
	return f.Mode.apply(f.matches(owner, repo))
}

func (f RepoFilter) matches(owner, repo string) bool {
	full := owner
	if repo != "" {
		full = owner + "/" + repo
	}
	if containsFold(f.Orgs, owner) {
		return true
	}
	if repo != "" && containsFold(f.Repos, full) {
		return true
	}
	for _, p := range f.Patterns {
		if MatchGlob(p, full) {
			return true
		}
	}
	return false
}

// URLFilter restricts browser navigation by glob pattern.
type URLFilter struct {
	Mode     FilterMode `json:"mode" validate:"omitempty,oneof=none allowlist blocklist"`
	Patterns []string   `json:"patterns,omitempty" validate:"dive,required"`
}

// Permits reports whether rawURL passes the filter.
func (f URLFilter) Permits(rawURL string) bool {
	if !f.Mode.Active() {
		return true
	}
	matched := false
	for _, p := range f.Patterns {
		if MatchGlob(p, rawURL) {
			matched = true
			break
		}
	}
	return f.Mode.apply(matched)
}

// ChannelFilter restricts messaging channels by id or name.
type ChannelFilter struct {
	Mode         FilterMode `json:"mode" validate:"omitempty,oneof=none allowlist blocklist"`
	ChannelIDs   []string   `json:"channelIds,omitempty" validate:"dive,required"`
	ChannelNames []string   `json:"channelNames,omitempty" validate:"dive,required"`
}

// Permits reports whether a channel passes the filter. Names are compared
// without a leading '#' and case-insensitively. A bare channel value is
// ambiguous, so the id is also tried against the configured names.
func (f ChannelFilter) Permits(channelID, channelName string) bool {
	if !f.Mode.Active() {
		return true
	}
	matched := channelID != "" && contains(f.ChannelIDs, channelID)
	if !matched {
		matched = f.hasName(channelName) || f.hasName(channelID)
	}
	return f.Mode.apply(matched)
}

func (f ChannelFilter) hasName(name string) bool {
	name = NormalizeChannelName(name)
	if name == "" {
		return false
	}
	for _, n := range f.ChannelNames {
		if NormalizeChannelName(n) == name {
			return true
		}
	}
	return false
}

// UserFilter restricts messaging history by author.
type UserFilter struct {
	Mode    FilterMode `json:"mode" validate:"omitempty,oneof=none allowlist blocklist"`
	UserIDs []string   `json:"userIds,omitempty" validate:"dive,required"`
}

// Permits reports whether messages from userID pass the filter.
func (f UserFilter) Permits(userID string) bool {
	if !f.Mode.Active() {
		return true
	}
	return f.Mode.apply(contains(f.UserIDs, userID))
}

// MessagingSendPolicy constrains outgoing messages.
type MessagingSendPolicy struct {
	AllowedChannels    []string `json:"allowedChannels,omitempty" validate:"dive,required"`
	RequireThreadReply bool     `json:"requireThreadReply,omitempty"`
	MaxMessageLength   int      `json:"maxMessageLength,omitempty" validate:"gte=0"`
	AllowedRecipients  []string `json:"allowedRecipients,omitempty" validate:"dive,required"`
}

// PermitsChannel reports whether sending to the channel is allowed.
func (p MessagingSendPolicy) PermitsChannel(channelID, channelName string) bool {
	if len(p.AllowedChannels) == 0 {
		return true
	}
	name := NormalizeChannelName(channelName)
	bare := NormalizeChannelName(channelID)
	for _, c := range p.AllowedChannels {
		if c == channelID {
			return true
		}
		if n := NormalizeChannelName(c); n != "" && (n == name || n == bare) {
			return true
		}
	}
	return false
}

// PermitsRecipient reports whether a direct message recipient is allowed.
func (p MessagingSendPolicy) PermitsRecipient(recipient string) bool {
	if len(p.AllowedRecipients) == 0 {
		return true
	}
	return containsFold(p.AllowedRecipients, recipient)
}

// NormalizeChannelName strips a leading '#' and lowercases.
func NormalizeChannelName(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "#"))
}

// GlobToRegexp compiles a glob into an anchored, case-insensitive regexp.
// '*' matches any run of characters (including '/'), '?' matches one.
func GlobToRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("(?i)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// maxCompiledGlobs bounds the compiled pattern memo. Patterns come from
// stored revisions, so the working set is small; overflow drops the memo.
const maxCompiledGlobs = 1024

var compiledGlobs = struct {
	sync.RWMutex
	m map[string]*regexp.Regexp
}{m: make(map[string]*regexp.Regexp)}

// compiledGlob returns the memoized regexp for pattern
func compiledGlob(pattern string) *regexp.Regexp {
	compiledGlobs.RLock()
	re, ok := compiledGlobs.m[pattern]
	compiledGlobs.RUnlock()
	if ok {
		return re
	}

	re = GlobToRegexp(pattern)
	compiledGlobs.Lock()
	if len(compiledGlobs.m) >= maxCompiledGlobs {
		compiledGlobs.m = make(map[string]*regexp.Regexp)
	}
	compiledGlobs.m[pattern] = re
	compiledGlobs.Unlock()
	return re
}

// MatchGlob reports whether s matches the glob pattern. Compiled patterns
// are memoized.
func MatchGlob(pattern, s string) bool {
	return compiledGlob(pattern).MatchString(s)
}

// AddressDomain returns the lowercased domain part of an email address.
func AddressDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(address[at+1:])
}

func matchAddress(address string, domains, addresses []string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return false
	}
	if containsFold(addresses, address) {
		return true
	}
	domain := AddressDomain(address)
	for _, d := range domains {
		if strings.EqualFold(strings.TrimPrefix(d, "@"), domain) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
