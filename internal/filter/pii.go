package filter

import "strings"

// userActions return user objects at the top level of the response.
var userActions = map[string]bool{
	"user_info":  true,
	"get_user":   true,
	"list_users": true,
}

var piiFields = map[string]bool{
	"email": true,
	"phone": true,
	"skype": true,
}

func isPII(key string) bool {
	return piiFields[key] || strings.HasPrefix(key, "image_")
}

// stripPII removes PII fields in place from profile objects anywhere in data
// and, when userShaped is set, from the top-level user objects too. It
// returns the number of fields removed.
func stripPII(data any, userShaped bool) int {
	n := 0
	if userShaped {
		n += stripUsers(data)
	}
	return n + stripProfiles(data)
}

func stripUsers(data any) int {
	switch v := data.(type) {
	case []any:
		n := 0
		for _, item := range v {
			n += stripUsers(item)
		}
		return n
	case map[string]any:
		n := stripObject(v)
		for _, key := range []string{"user", "users", "members"} {
			if inner, ok := v[key]; ok {
				n += stripUsers(inner)
			}
		}
		return n
	}
	return 0
}

func stripProfiles(data any) int {
	n := 0
	switch v := data.(type) {
	case []any:
		for _, item := range v {
			n += stripProfiles(item)
		}
	case map[string]any:
		for key, inner := range v {
			if obj, ok := inner.(map[string]any); ok && (key == "profile" || key == "user_profile") {
				n += stripObject(obj)
			}
			n += stripProfiles(inner)
		}
	}
	return n
}

func stripObject(obj map[string]any) int {
	n := 0
	for key := range obj {
		if isPII(key) {
			delete(obj, key)
			n++
		}
	}
	return n
}
