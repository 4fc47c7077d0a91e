package policy

// Default returns the full-access policy used when an integration is
// attached without an explicit policy. Every flag is enumerated so that a
// new capability has to be added here on purpose. High-risk capabilities
// still require a confirmation before the engine allows them.
func Default(provider Provider) (Content, error) {
	allStorage := StorageCapabilities{
		CanList:     true,
		CanRead:     true,
		CanDownload: true,
		CanCreate:   true,
		CanUpdate:   true,
		CanDelete:   true,
		CanShare:    true,
	}

	var c Content
	switch providerShapes[provider] {
	case shapeGmail:
		c = &GmailPolicy{
			CanRead:     true,
			CanArchive:  true,
			CanTrash:    true,
			CanMarkRead: true,
			CanLabel:    true,
			CanDraft:    true,
			CanSend:     true,
		}
	case shapeCalendar:
		c = &CalendarPolicy{
			CanRead:        true,
			CanCreate:      true,
			CanUpdate:      true,
			CanDelete:      true,
			CalendarFilter: CalendarFilter{Mode: FilterAll},
		}
	case shapeContacts:
		c = &ContactsPolicy{CanRead: true, CanCreate: true, CanUpdate: true, CanDelete: true}
	case shapeSheets:
		c = &SheetsPolicy{CanRead: true, CanWrite: true, CanCreate: true, CanDelete: true}
	case shapeForms:
		c = &FormsPolicy{CanRead: true, CanCreate: true, CanEdit: true}
	case shapeDrive:
		c = &DrivePolicy{StorageCapabilities: allStorage}
	case shapeOneDrive:
		c = &OneDrivePolicy{StorageCapabilities: allStorage}
	case shapeBox:
		c = &BoxPolicy{StorageCapabilities: allStorage}
	case shapeGitHub:
		c = &GitHubPolicy{
			CanReadRepos:         true,
			CanReadCode:          true,
			CanReadIssues:        true,
			CanWriteIssues:       true,
			CanReadPullRequests:  true,
			CanWritePullRequests: true,
			CanPush:              true,
			CanMerge:             true,
		}
	case shapeBrowser:
		c = &BrowserPolicy{
			CanNavigate:      true,
			CanInteract:      true,
			CanScreenshot:    true,
			CanExecuteScript: true,
			CanDownload:      true,
			CanUpload:        true,
		}
	case shapeMessaging:
		c = &MessagingPolicy{
			CanListChannels:   true,
			CanReadHistory:    true,
			CanSend:           true,
			CanReact:          true,
			CanEditMessages:   true,
			CanDeleteMessages: true,
			CanReadUsers:      true,
		}
	default:
		return nil, unknownProvider(provider)
	}
	c.normalize()
	return c, nil
}
