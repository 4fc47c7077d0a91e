package policy

import "fmt"

// SecurityLevel is the derived risk classification of a policy. It is used
// for display and audit, not for enforcement.
type SecurityLevel string

const (
	SecurityRestricted SecurityLevel = "restricted"
	SecurityElevated   SecurityLevel = "elevated"
	SecurityFull       SecurityLevel = "full"
)

// Classify derives the security level of content for provider.
// Destructive or external-effect capabilities yield full, mutating ones
// yield elevated, anything else is restricted.
func Classify(provider Provider, content Content) (SecurityLevel, error) {
	if err := MatchesProvider(provider, content); err != nil {
		return "", err
	}

	var full, elevated bool
	switch p := content.(type) {
	case *GmailPolicy:
		full = p.CanSend || p.CanTrash
		elevated = p.CanArchive || p.CanMarkRead || p.CanLabel || p.CanDraft
	case *CalendarPolicy:
		full = p.CanDelete
		elevated = p.CanCreate || p.CanUpdate
	case *ContactsPolicy:
		full = p.CanDelete
		elevated = p.CanCreate || p.CanUpdate
	case *SheetsPolicy:
		full = p.CanDelete
		elevated = p.CanWrite || p.CanCreate
	case *FormsPolicy:
		elevated = p.CanCreate || p.CanEdit
	case *DrivePolicy:
		full, elevated = classifyStorage(p.StorageCapabilities)
	case *OneDrivePolicy:
		full, elevated = classifyStorage(p.StorageCapabilities)
	case *BoxPolicy:
		full, elevated = classifyStorage(p.StorageCapabilities)
	case *GitHubPolicy:
		full = p.CanPush || p.CanMerge
		elevated = p.CanWriteIssues || p.CanWritePullRequests
	case *BrowserPolicy:
		full = p.CanExecuteScript || p.CanUpload
		elevated = p.CanInteract || p.CanDownload
	case *MessagingPolicy:
		full = p.CanSend || p.CanDeleteMessages
		elevated = p.CanReact || p.CanEditMessages
	default:
		return "", fmt.Errorf("unsupported policy type %T", content)
	}

	switch {
	case full:
		return SecurityFull, nil
	case elevated:
		return SecurityElevated, nil
	default:
		return SecurityRestricted, nil
	}
}

func classifyStorage(s StorageCapabilities) (full, elevated bool) {
	return s.CanDelete || s.CanShare, s.CanCreate || s.CanUpdate || s.CanDownload
}

// MatchesProvider verifies content is the shape registered for provider.
func MatchesProvider(provider Provider, content Content) error {
	want, ok := providerShapes[provider]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	if content == nil {
		return fmt.Errorf("%w: content is required for %s", ErrInvalidPolicy, provider)
	}
	if content.shape() != want {
		return fmt.Errorf("%w: %T does not belong to provider %s", ErrInvalidPolicy, content, provider)
	}
	return nil
}
