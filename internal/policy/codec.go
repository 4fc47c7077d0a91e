package policy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func unknownProvider(p Provider) error {
	return fmt.Errorf("%w: %q", ErrUnknownProvider, p)
}

// New returns an empty policy of the shape registered for provider.
func New(provider Provider) (Content, error) {
	switch providerShapes[provider] {
	case shapeGmail:
		return &GmailPolicy{}, nil
	case shapeCalendar:
		return &CalendarPolicy{}, nil
	case shapeContacts:
		return &ContactsPolicy{}, nil
	case shapeSheets:
		return &SheetsPolicy{}, nil
	case shapeForms:
		return &FormsPolicy{}, nil
	case shapeDrive:
		return &DrivePolicy{}, nil
	case shapeOneDrive:
		return &OneDrivePolicy{}, nil
	case shapeBox:
		return &BoxPolicy{}, nil
	case shapeGitHub:
		return &GitHubPolicy{}, nil
	case shapeBrowser:
		return &BrowserPolicy{}, nil
	case shapeMessaging:
		return &MessagingPolicy{}, nil
	}
	return nil, unknownProvider(provider)
}

// Decode parses a policy body for provider. Unknown fields are rejected and
// absent filter modes are normalized to FilterNone.
func Decode(provider Provider, raw []byte) (Content, error) {
	c, err := New(provider)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, fmt.Errorf("%w: policy body is empty", ErrInvalidPolicy)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrInvalidPolicy, provider, err)
	}
	c.normalize()

	if err := Validate(provider, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Encode serializes content for storage.
func Encode(content Content) ([]byte, error) {
	return json.Marshal(content)
}

// Validate checks the structure of content against provider.
func Validate(provider Provider, content Content) error {
	if err := MatchesProvider(provider, content); err != nil {
		return err
	}
	if err := validate.Struct(content); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w for %s: %s", ErrInvalidPolicy, provider, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w for %s: %v", ErrInvalidPolicy, provider, err)
	}
	return nil
}
