package security

import (
	"regexp"
)

// SecretRedactor masks credentials that upstream errors tend to echo back,
// such as request URLs carrying ?key= or Authorization headers.
type SecretRedactor struct {
	patterns []*regexp.Regexp
}

const redacted = "[REDACTED]"

// NewSecretRedactor creates a redactor for the credentials this service handles.
func NewSecretRedactor() *SecretRedactor {
	return &SecretRedactor{
		patterns: []*regexp.Regexp{
			// Google API keys
			regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),
			// key=... query parameters
			regexp.MustCompile(`(?i)([?&]key=)[^&\s"':]+`),
			// Bearer tokens
			regexp.MustCompile(`(?i)(Bearer\s+)[a-zA-Z0-9_\-\.]{10,256}`),
			// api_key: value / token=value
			regexp.MustCompile(`(?i)((?:api[_-]?key|access[_-]?token|secret)["']?\s*[:=]\s*["']?)[a-zA-Z0-9_\-\.]{8,}`),
		},
	}
}

// Redact masks every secret found in text.
func (r *SecretRedactor) Redact(text string) string {
	for _, p := range r.patterns {
		if p.NumSubexp() > 0 {
			text = p.ReplaceAllString(text, "${1}"+redacted)
			continue
		}
		text = p.ReplaceAllString(text, redacted)
	}
	return text
}

// AddPattern adds a custom pattern whose full match is masked.
func (r *SecretRedactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}
