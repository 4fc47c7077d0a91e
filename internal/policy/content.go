package policy

import "time"

// Content is the provider-specific body of a policy revision. The set of
// implementations is closed; see the shape types below.
type Content interface {
	// Allows reports whether the capability flag is enabled.
	Allows(c Capability) bool
	// Limits returns the per-category rate limits.
	Limits() RateLimits

	shape() shape
	normalize()
}

// Window is a fixed rate-limit window.
type Window string

const (
	WindowMinute Window = "minute"
	WindowHour   Window = "hour"
	WindowDay    Window = "day"
)

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// RateLimits holds optional numeric limits per action category.
// Zero means the category is unconstrained.
type RateLimits struct {
	ReadsPerMinute int    `json:"readsPerMinute,omitempty" validate:"gte=0"`
	WritesPerHour  int    `json:"writesPerHour,omitempty" validate:"gte=0"`
	DeletesPerHour int    `json:"deletesPerHour,omitempty" validate:"gte=0"`
	UploadsPerHour int    `json:"uploadsPerHour,omitempty" validate:"gte=0"`
	SendsPerDay    int    `json:"sendsPerDay,omitempty" validate:"gte=0"`
	SendsPerHour   int    `json:"sendsPerHour,omitempty" validate:"gte=0"`
	Downloads      int    `json:"downloads,omitempty" validate:"gte=0"`
	DownloadWindow Window `json:"downloadWindow,omitempty" validate:"omitempty,oneof=minute hour day"`
}

// Limit is one configured cap on a category within a window.
type Limit struct {
	Max    int
	Window Window
}

// For returns every configured limit for a category, shortest window
// first. An empty result means the category is unconstrained.
func (r RateLimits) For(c Category) []Limit {
	var out []Limit
	add := func(max int, w Window) {
		if max > 0 {
			out = append(out, Limit{Max: max, Window: w})
		}
	}
	switch c {
	case CategoryReads:
		add(r.ReadsPerMinute, WindowMinute)
	case CategoryWrites:
		add(r.WritesPerHour, WindowHour)
	case CategoryDeletes:
		add(r.DeletesPerHour, WindowHour)
	case CategoryUploads:
		add(r.UploadsPerHour, WindowHour)
	case CategorySends:
		add(r.SendsPerHour, WindowHour)
		add(r.SendsPerDay, WindowDay)
	case CategoryDownloads:
		w := r.DownloadWindow
		if w == "" {
			w = WindowHour
		}
		add(r.Downloads, w)
	}
	return out
}

// GmailPolicy governs the gmail provider.
type GmailPolicy struct {
	CanRead      bool         `json:"canRead"`
	CanArchive   bool         `json:"canArchive"`
	CanTrash     bool         `json:"canTrash"`
	CanMarkRead  bool         `json:"canMarkRead"`
	CanLabel     bool         `json:"canLabel"`
	CanDraft     bool         `json:"canDraft"`
	CanSend      bool         `json:"canSend"`
	SenderFilter SenderFilter `json:"senderFilter"`
	LabelFilter  LabelFilter  `json:"labelFilter"`
	SendPolicy   SendPolicy   `json:"sendPolicy"`
	RateLimits   RateLimits   `json:"rateLimits"`
}

func (p *GmailPolicy) Allows(c Capability) bool {
	switch c {
	case CanRead:
		return p.CanRead
	case CanArchive:
		return p.CanArchive
	case CanTrash:
		return p.CanTrash
	case CanMarkRead:
		return p.CanMarkRead
	case CanLabel:
		return p.CanLabel
	case CanDraft:
		return p.CanDraft
	case CanSend:
		return p.CanSend
	}
	return false
}

func (p *GmailPolicy) Limits() RateLimits { return p.RateLimits }
func (p *GmailPolicy) shape() shape       { return shapeGmail }
func (p *GmailPolicy) normalize() {
	normalizeMode(&p.SenderFilter.Mode)
	normalizeMode(&p.LabelFilter.Mode)
}

// CalendarPolicy governs google_calendar.
type CalendarPolicy struct {
	CanRead        bool                 `json:"canRead"`
	CanCreate      bool                 `json:"canCreate"`
	CanUpdate      bool                 `json:"canUpdate"`
	CanDelete      bool                 `json:"canDelete"`
	CalendarFilter CalendarFilter       `json:"calendarFilter"`
	CreatePolicy   CalendarCreatePolicy `json:"createPolicy"`
	RateLimits     RateLimits           `json:"rateLimits"`
}

func (p *CalendarPolicy) Allows(c Capability) bool {
	switch c {
	case CanRead:
		return p.CanRead
	case CanCreate:
		return p.CanCreate
	case CanUpdate:
		return p.CanUpdate
	case CanDelete:
		return p.CanDelete
	}
	return false
}

func (p *CalendarPolicy) Limits() RateLimits { return p.RateLimits }
func (p *CalendarPolicy) shape() shape       { return shapeCalendar }
func (p *CalendarPolicy) normalize()         { normalizeMode(&p.CalendarFilter.Mode) }

// ContactsPolicy governs google_contacts.
type ContactsPolicy struct {
	CanRead    bool       `json:"canRead"`
	CanCreate  bool       `json:"canCreate"`
	CanUpdate  bool       `json:"canUpdate"`
	CanDelete  bool       `json:"canDelete"`
	RateLimits RateLimits `json:"rateLimits"`
}

func (p *ContactsPolicy) Allows(c Capability) bool {
	switch c {
	case CanRead:
		return p.CanRead
	case CanCreate:
		return p.CanCreate
	case CanUpdate:
		return p.CanUpdate
	case CanDelete:
		return p.CanDelete
	}
	return false
}

func (p *ContactsPolicy) Limits() RateLimits { return p.RateLimits }
func (p *ContactsPolicy) shape() shape       { return shapeContacts }
func (p *ContactsPolicy) normalize()         {}

// SheetsPolicy governs google_sheets.
type SheetsPolicy struct {
	CanRead    bool       `json:"canRead"`
	CanWrite   bool       `json:"canWrite"`
	CanCreate  bool       `json:"canCreate"`
	CanDelete  bool       `json:"canDelete"`
	RateLimits RateLimits `json:"rateLimits"`
}

func (p *SheetsPolicy) Allows(c Capability) bool {
	switch c {
	case CanRead:
		return p.CanRead
	case CanWrite:
		return p.CanWrite
	case CanCreate:
		return p.CanCreate
	case CanDelete:
		return p.CanDelete
	}
	return false
}

func (p *SheetsPolicy) Limits() RateLimits { return p.RateLimits }
func (p *SheetsPolicy) shape() shape       { return shapeSheets }
func (p *SheetsPolicy) normalize()         {}

// FormsPolicy governs google_forms.
type FormsPolicy struct {
	CanRead    bool       `json:"canRead"`
	CanCreate  bool       `json:"canCreate"`
	CanEdit    bool       `json:"canEdit"`
	RateLimits RateLimits `json:"rateLimits"`
}

func (p *FormsPolicy) Allows(c Capability) bool {
	switch c {
	case CanRead:
		return p.CanRead
	case CanCreate:
		return p.CanCreate
	case CanEdit:
		return p.CanEdit
	}
	return false
}

func (p *FormsPolicy) Limits() RateLimits { return p.RateLimits }
func (p *FormsPolicy) shape() shape       { return shapeForms }
func (p *FormsPolicy) normalize()         {}

// StorageCapabilities are the flags shared by the file storage providers.
type StorageCapabilities struct {
	CanList     bool `json:"canList"`
	CanRead     bool `json:"canRead"`
	CanDownload bool `json:"canDownload"`
	CanCreate   bool `json:"canCreate"`
	CanUpdate   bool `json:"canUpdate"`
	CanDelete   bool `json:"canDelete"`
	CanShare    bool `json:"canShare"`
}

func (s StorageCapabilities) allows(c Capability) bool {
	switch c {
	case CanList:
		return s.CanList
	case CanRead:
		return s.CanRead
	case CanDownload:
		return s.CanDownload
	case CanCreate:
		return s.CanCreate
	case CanUpdate:
		return s.CanUpdate
	case CanDelete:
		return s.CanDelete
	case CanShare:
		return s.CanShare
	}
	return false
}

// DrivePolicy governs google_drive.
type DrivePolicy struct {
	StorageCapabilities
	FolderFilter   FolderFilter   `json:"folderFilter"`
	FileTypeFilter FileTypeFilter `json:"fileTypeFilter"`
	RateLimits     RateLimits     `json:"rateLimits"`
}

func (p *DrivePolicy) Allows(c Capability) bool { return p.allows(c) }
func (p *DrivePolicy) Limits() RateLimits       { return p.RateLimits }
func (p *DrivePolicy) shape() shape             { return shapeDrive }
func (p *DrivePolicy) normalize() {
	normalizeMode(&p.FolderFilter.Mode)
	normalizeMode(&p.FileTypeFilter.Mode)
}

// OneDrivePolicy governs onedrive.
type OneDrivePolicy struct {
	StorageCapabilities
	RateLimits RateLimits `json:"rateLimits"`
}

func (p *OneDrivePolicy) Allows(c Capability) bool { return p.allows(c) }
func (p *OneDrivePolicy) Limits() RateLimits       { return p.RateLimits }
func (p *OneDrivePolicy) shape() shape             { return shapeOneDrive }
func (p *OneDrivePolicy) normalize()               {}

// BoxPolicy governs box.
type BoxPolicy struct {
	StorageCapabilities
	RateLimits RateLimits `json:"rateLimits"`
}

func (p *BoxPolicy) Allows(c Capability) bool { return p.allows(c) }
func (p *BoxPolicy) Limits() RateLimits       { return p.RateLimits }
func (p *BoxPolicy) shape() shape             { return shapeBox }
func (p *BoxPolicy) normalize()               {}

// GitHubPolicy governs github.
type GitHubPolicy struct {
	CanReadRepos         bool       `json:"canReadRepos"`
	CanReadCode          bool       `json:"canReadCode"`
	CanReadIssues        bool       `json:"canReadIssues"`
	CanWriteIssues       bool       `json:"canWriteIssues"`
	CanReadPullRequests  bool       `json:"canReadPullRequests"`
	CanWritePullRequests bool       `json:"canWritePullRequests"`
	CanPush              bool       `json:"canPush"`
	CanMerge             bool       `json:"canMerge"`
	RepoFilter           RepoFilter `json:"repoFilter"`
	RateLimits           RateLimits `json:"rateLimits"`
}

func (p *GitHubPolicy) Allows(c Capability) bool {
	switch c {
	case CanReadRepos:
		return p.CanReadRepos
	case CanReadCode:
		return p.CanReadCode
	case CanReadIssues:
		return p.CanReadIssues
	case CanWriteIssues:
		return p.CanWriteIssues
	case CanReadPullRequests:
		return p.CanReadPullRequests
	case CanWritePullRequests:
		return p.CanWritePullRequests
	case CanPush:
		return p.CanPush
	case CanMerge:
		return p.CanMerge
	}
	return false
}

func (p *GitHubPolicy) Limits() RateLimits { return p.RateLimits }
func (p *GitHubPolicy) shape() shape       { return shapeGitHub }
func (p *GitHubPolicy) normalize()         { normalizeMode(&p.RepoFilter.Mode) }

// BrowserPolicy governs the in-sandbox browser.
type BrowserPolicy struct {
	CanNavigate      bool       `json:"canNavigate"`
	CanInteract      bool       `json:"canInteract"`
	CanScreenshot    bool       `json:"canScreenshot"`
	CanExecuteScript bool       `json:"canExecuteScript"`
	CanDownload      bool       `json:"canDownload"`
	CanUpload        bool       `json:"canUpload"`
	URLFilter        URLFilter  `json:"urlFilter"`
	RateLimits       RateLimits `json:"rateLimits"`
}

func (p *BrowserPolicy) Allows(c Capability) bool {
	switch c {
	case CanNavigate:
		return p.CanNavigate
	case CanInteract:
		return p.CanInteract
	case CanScreenshot:
		return p.CanScreenshot
	case CanExecuteScript:
		return p.CanExecuteScript
	case CanDownload:
		return p.CanDownload
	case CanUpload:
		return p.CanUpload
	}
	return false
}

func (p *BrowserPolicy) Limits() RateLimits { return p.RateLimits }
func (p *BrowserPolicy) shape() shape       { return shapeBrowser }
func (p *BrowserPolicy) normalize()         { normalizeMode(&p.URLFilter.Mode) }

// MessagingPolicy governs the six messaging providers.
type MessagingPolicy struct {
	CanListChannels   bool                `json:"canListChannels"`
	CanReadHistory    bool                `json:"canReadHistory"`
	CanSend           bool                `json:"canSend"`
	CanReact          bool                `json:"canReact"`
	CanEditMessages   bool                `json:"canEditMessages"`
	CanDeleteMessages bool                `json:"canDeleteMessages"`
	CanReadUsers      bool                `json:"canReadUsers"`
	ChannelFilter     ChannelFilter       `json:"channelFilter"`
	SenderFilter      UserFilter          `json:"senderFilter"`
	SendPolicy        MessagingSendPolicy `json:"sendPolicy"`
	RateLimits        RateLimits          `json:"rateLimits"`
}

func (p *MessagingPolicy) Allows(c Capability) bool {
	switch c {
	case CanListChannels:
		return p.CanListChannels
	case CanReadHistory:
		return p.CanReadHistory
	case CanSend:
		return p.CanSend
	case CanReact:
		return p.CanReact
	case CanEditMessages:
		return p.CanEditMessages
	case CanDeleteMessages:
		return p.CanDeleteMessages
	case CanReadUsers:
		return p.CanReadUsers
	}
	return false
}

func (p *MessagingPolicy) Limits() RateLimits { return p.RateLimits }
func (p *MessagingPolicy) shape() shape       { return shapeMessaging }
func (p *MessagingPolicy) normalize() {
	normalizeMode(&p.ChannelFilter.Mode)
	normalizeMode(&p.SenderFilter.Mode)
}
