package policy

import (
	"fmt"
	"strings"
)

// Provider identifies a third-party integration.
type Provider string

const (
	ProviderGmail          Provider = "gmail"
	ProviderGoogleCalendar Provider = "google_calendar"
	ProviderGoogleContacts Provider = "google_contacts"
	ProviderGoogleSheets   Provider = "google_sheets"
	ProviderGoogleForms    Provider = "google_forms"
	ProviderGoogleDrive    Provider = "google_drive"
	ProviderOneDrive       Provider = "onedrive"
	ProviderBox            Provider = "box"
	ProviderGitHub         Provider = "github"
	ProviderBrowser        Provider = "browser"
	ProviderSlack          Provider = "slack"
	ProviderDiscord        Provider = "discord"
	ProviderTelegram       Provider = "telegram"
	ProviderWhatsApp       Provider = "whatsapp"
	ProviderTeams          Provider = "teams"
	ProviderMatrix         Provider = "matrix"
)

// shape names the Go policy type a provider uses.
type shape int

const (
	shapeGmail shape = iota + 1
	shapeCalendar
	shapeContacts
	shapeSheets
	shapeForms
	shapeDrive
	shapeOneDrive
	shapeBox
	shapeGitHub
	shapeBrowser
	shapeMessaging
)

var providerShapes = map[Provider]shape{
	ProviderGmail:          shapeGmail,
	ProviderGoogleCalendar: shapeCalendar,
	ProviderGoogleContacts: shapeContacts,
	ProviderGoogleSheets:   shapeSheets,
	ProviderGoogleForms:    shapeForms,
	ProviderGoogleDrive:    shapeDrive,
	ProviderOneDrive:       shapeOneDrive,
	ProviderBox:            shapeBox,
	ProviderGitHub:         shapeGitHub,
	ProviderBrowser:        shapeBrowser,
	ProviderSlack:          shapeMessaging,
	ProviderDiscord:        shapeMessaging,
	ProviderTelegram:       shapeMessaging,
	ProviderWhatsApp:       shapeMessaging,
	ProviderTeams:          shapeMessaging,
	ProviderMatrix:         shapeMessaging,
}

// AllProviders returns every supported provider in a stable order.
func AllProviders() []Provider {
	return []Provider{
		ProviderGmail, ProviderGoogleCalendar, ProviderGoogleContacts,
		ProviderGoogleSheets, ProviderGoogleForms, ProviderGoogleDrive,
		ProviderOneDrive, ProviderBox, ProviderGitHub, ProviderBrowser,
		ProviderSlack, ProviderDiscord, ProviderTelegram, ProviderWhatsApp,
		ProviderTeams, ProviderMatrix,
	}
}

// ParseProvider validates a provider name from a URL or request body.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := providerShapes[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
	}
	return p, nil
}

// IsMessaging reports whether the provider uses the shared messaging shape.
func (p Provider) IsMessaging() bool {
	return providerShapes[p] == shapeMessaging
}

// RequiresOAuth reports whether the provider needs a linked user integration.
// The browser runs inside the sandbox and has no upstream account.
func (p Provider) RequiresOAuth() bool {
	return p != ProviderBrowser
}

func (p Provider) String() string {
	return string(p)
}
