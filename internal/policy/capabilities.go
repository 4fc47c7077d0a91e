package policy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownProvider is returned for providers outside the closed set.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnknownAction is returned for actions missing from the action table.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidPolicy is returned when a policy body does not fit its provider.
	ErrInvalidPolicy = errors.New("invalid policy")
)

// Capability names one boolean permission in a policy shape.
type Capability string

const (
	CanRead              Capability = "canRead"
	CanArchive           Capability = "canArchive"
	CanTrash             Capability = "canTrash"
	CanMarkRead          Capability = "canMarkRead"
	CanLabel             Capability = "canLabel"
	CanDraft             Capability = "canDraft"
	CanSend              Capability = "canSend"
	CanCreate            Capability = "canCreate"
	CanUpdate            Capability = "canUpdate"
	CanDelete            Capability = "canDelete"
	CanWrite             Capability = "canWrite"
	CanEdit              Capability = "canEdit"
	CanList              Capability = "canList"
	CanDownload          Capability = "canDownload"
	CanShare             Capability = "canShare"
	CanReadRepos         Capability = "canReadRepos"
	CanReadCode          Capability = "canReadCode"
	CanReadIssues        Capability = "canReadIssues"
	CanWriteIssues       Capability = "canWriteIssues"
	CanReadPullRequests  Capability = "canReadPullRequests"
	CanWritePullRequests Capability = "canWritePullRequests"
	CanPush              Capability = "canPush"
	CanMerge             Capability = "canMerge"
	CanNavigate          Capability = "canNavigate"
	CanInteract          Capability = "canInteract"
	CanScreenshot        Capability = "canScreenshot"
	CanExecuteScript     Capability = "canExecuteScript"
	CanUpload            Capability = "canUpload"
	CanListChannels      Capability = "canListChannels"
	CanReadHistory       Capability = "canReadHistory"
	CanReact             Capability = "canReact"
	CanEditMessages      Capability = "canEditMessages"
	CanDeleteMessages    Capability = "canDeleteMessages"
	CanReadUsers         Capability = "canReadUsers"
)

// Category groups actions for rate limiting.
type Category string

const (
	CategoryReads     Category = "reads"
	CategoryWrites    Category = "writes"
	CategoryDeletes   Category = "deletes"
	CategorySends     Category = "sends"
	CategoryDownloads Category = "downloads"
	CategoryUploads   Category = "uploads"
)

// ActionSpec is the capability and rate-limit category of one action.
type ActionSpec struct {
	Action     string
	Capability Capability
	Category   Category
}

type actionTable map[string]ActionSpec

func table(entries ...ActionSpec) actionTable {
	t := make(actionTable, len(entries))
	for _, e := range entries {
		t[e.Action] = e
	}
	return t
}

func read(action string, c Capability) ActionSpec  { return ActionSpec{action, c, CategoryReads} }
func write(action string, c Capability) ActionSpec { return ActionSpec{action, c, CategoryWrites} }
func del(action string, c Capability) ActionSpec   { return ActionSpec{action, c, CategoryDeletes} }
func send(action string, c Capability) ActionSpec  { return ActionSpec{action, c, CategorySends} }

var gmailActions = table(
	read("list", CanRead),
	read("search", CanRead),
	read("get", CanRead),
	read("get_thread", CanRead),
	read("list_labels", CanRead),
	write("archive", CanArchive),
	del("trash", CanTrash),
	write("untrash", CanTrash),
	write("mark_read", CanMarkRead),
	write("mark_unread", CanMarkRead),
	write("add_label", CanLabel),
	write("remove_label", CanLabel),
	write("create_draft", CanDraft),
	send("send", CanSend),
	send("reply", CanSend),
	send("forward", CanSend),
	send("send_draft", CanSend),
)

var calendarActions = table(
	read("list_calendars", CanRead),
	read("list_events", CanRead),
	read("get_event", CanRead),
	read("search_events", CanRead),
	read("free_busy", CanRead),
	write("create_event", CanCreate),
	write("quick_add", CanCreate),
	write("update_event", CanUpdate),
	write("respond_event", CanUpdate),
	del("delete_event", CanDelete),
)

var contactsActions = table(
	read("list", CanRead),
	read("search", CanRead),
	read("get", CanRead),
	write("create", CanCreate),
	write("update", CanUpdate),
	del("delete", CanDelete),
)

var sheetsActions = table(
	read("get_spreadsheet", CanRead),
	read("list_sheets", CanRead),
	read("read_range", CanRead),
	write("write_range", CanWrite),
	write("append_rows", CanWrite),
	write("clear_range", CanWrite),
	write("create_spreadsheet", CanCreate),
	write("add_sheet", CanCreate),
	del("delete_sheet", CanDelete),
)

var formsActions = table(
	read("get_form", CanRead),
	read("list_responses", CanRead),
	read("get_response", CanRead),
	write("create_form", CanCreate),
	write("update_form", CanEdit),
	write("add_question", CanEdit),
)

var storageActions = table(
	read("list", CanList),
	read("search", CanList),
	read("list_changes", CanList),
	read("get", CanRead),
	ActionSpec{"download", CanDownload, CategoryDownloads},
	ActionSpec{"export", CanDownload, CategoryDownloads},
	ActionSpec{"upload", CanCreate, CategoryUploads},
	write("create_folder", CanCreate),
	write("update", CanUpdate),
	write("rename", CanUpdate),
	write("move", CanUpdate),
	write("copy", CanUpdate),
	del("delete", CanDelete),
	del("trash", CanDelete),
	write("share", CanShare),
	write("unshare", CanShare),
)

var githubActions = table(
	read("list_repos", CanReadRepos),
	read("search_repos", CanReadRepos),
	read("get_repo", CanReadRepos),
	read("get_file", CanReadCode),
	read("list_files", CanReadCode),
	read("search_code", CanReadCode),
	read("list_commits", CanReadCode),
	read("get_commit", CanReadCode),
	read("list_branches", CanReadCode),
	read("list_issues", CanReadIssues),
	read("get_issue", CanReadIssues),
	write("create_issue", CanWriteIssues),
	write("update_issue", CanWriteIssues),
	write("comment_issue", CanWriteIssues),
	read("list_pulls", CanReadPullRequests),
	read("get_pull", CanReadPullRequests),
	write("create_pull", CanWritePullRequests),
	write("comment_pull", CanWritePullRequests),
	write("create_branch", CanPush),
	write("push_file", CanPush),
	del("delete_file", CanPush),
	write("merge_pull", CanMerge),
)

var browserActions = table(
	read("start", CanNavigate),
	read("stop", CanNavigate),
	read("status", CanNavigate),
	read("navigate", CanNavigate),
	read("get_content", CanNavigate),
	read("screenshot", CanScreenshot),
	write("click", CanInteract),
	write("type", CanInteract),
	write("scroll", CanInteract),
	write("select", CanInteract),
	write("execute_script", CanExecuteScript),
	ActionSpec{"download", CanDownload, CategoryDownloads},
	ActionSpec{"upload", CanUpload, CategoryUploads},
)

var messagingActions = table(
	read("list_channels", CanListChannels),
	read("read_history", CanReadHistory),
	read("get_thread", CanReadHistory),
	send("send_message", CanSend),
	send("reply_thread", CanSend),
	send("send_dm", CanSend),
	write("add_reaction", CanReact),
	write("remove_reaction", CanReact),
	write("edit_message", CanEditMessages),
	del("delete_message", CanDeleteMessages),
	read("user_info", CanReadUsers),
	read("get_user", CanReadUsers),
	read("list_users", CanReadUsers),
)

func actionsFor(s shape) actionTable {
	switch s {
	case shapeGmail:
		return gmailActions
	case shapeCalendar:
		return calendarActions
	case shapeContacts:
		return contactsActions
	case shapeSheets:
		return sheetsActions
	case shapeForms:
		return formsActions
	case shapeDrive, shapeOneDrive, shapeBox:
		return storageActions
	case shapeGitHub:
		return githubActions
	case shapeBrowser:
		return browserActions
	case shapeMessaging:
		return messagingActions
	}
	return nil
}

// NormalizeAction strips an optional "<provider>." prefix and lowercases,
// so "gmail.send" and "send" resolve to the same entry.
func NormalizeAction(action string) string {
	a := strings.ToLower(strings.TrimSpace(action))
	if i := strings.IndexByte(a, '.'); i >= 0 {
		a = a[i+1:]
	}
	return a
}

// CapabilityFor resolves an action to its capability and category.
func CapabilityFor(provider Provider, action string) (ActionSpec, error) {
	s, ok := providerShapes[provider]
	if !ok {
		return ActionSpec{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	spec, ok := actionsFor(s)[NormalizeAction(action)]
	if !ok {
		return ActionSpec{}, fmt.Errorf("%w: %s.%s", ErrUnknownAction, provider, action)
	}
	return spec, nil
}

// Actions lists the action table for a provider.
func Actions(provider Provider) []ActionSpec {
	t := actionsFor(providerShapes[provider])
	out := make([]ActionSpec, 0, len(t))
	for _, spec := range t {
		out = append(out, spec)
	}
	return out
}

var highRisk = map[shape][]Capability{
	shapeGmail:     {CanSend, CanTrash},
	shapeCalendar:  {CanDelete},
	shapeContacts:  {CanDelete},
	shapeSheets:    {CanDelete},
	shapeForms:     nil,
	shapeDrive:     {CanDelete, CanShare},
	shapeOneDrive:  {CanDelete, CanShare},
	shapeBox:       {CanDelete, CanShare},
	shapeGitHub:    {CanPush, CanMerge},
	shapeBrowser:   {CanExecuteScript, CanUpload},
	shapeMessaging: {CanSend, CanDeleteMessages},
}

// HighRiskCapabilities returns the capabilities that need a one-time user
// confirmation before they can be exercised.
func HighRiskCapabilities(provider Provider) []Capability {
	return highRisk[providerShapes[provider]]
}

// IsHighRisk reports whether c is in the provider's high-risk set.
func IsHighRisk(provider Provider, c Capability) bool {
	for _, hr := range HighRiskCapabilities(provider) {
		if hr == c {
			return true
		}
	}
	return false
}
