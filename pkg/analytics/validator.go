package analytics

import (
	"regexp"
	"strings"
)

// Validator normalizes raw producer input into a canonical Record shape
// with the category resolved and the payload sanitized.
type Validator struct {
	catalog *Catalog
}

// NewValidator creates a validator backed by the given catalog.
func NewValidator(catalog *Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Payload keys matching any of these fragments are stripped before the
// record reaches the store.
var sensitiveKeyFragments = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credential",
	"cookie",
	"ssn",
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Normalize validates the event name, resolves its category, and returns a
// canonical record with a sanitized copy of the payload. An empty name
// fails with *InvalidEventError; unknown names are accepted under
// CategorySystem. The caller's payload map is never mutated.
func (v *Validator) Normalize(name string, payload map[string]interface{}, actor ActorContext) (*Record, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &InvalidEventError{Name: name, Reason: "event name is empty"}
	}

	category, _ := v.catalog.CategoryFor(name)

	return &Record{
		Name:      name,
		Category:  category,
		Payload:   SanitizePayload(payload),
		SessionID: actor.SessionID,
		UserID:    actor.UserID,
	}, nil
}

// SanitizePayload returns a copy of the payload with credential-like keys
// and email-shaped string values removed. Nested maps are sanitized
// recursively; the input is never mutated. A nil payload yields an empty
// map so the stored JSON is always an object.
func SanitizePayload(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		if isSensitiveKey(key) {
			continue
		}
		switch v := value.(type) {
		case string:
			if emailPattern.MatchString(v) {
				continue
			}
			out[key] = v
		case map[string]interface{}:
			out[key] = SanitizePayload(v)
		default:
			out[key] = value
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
