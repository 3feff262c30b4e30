package logging

import "regexp"

type piiPattern struct {
	name  string
	regex *regexp.Regexp
}

// Redactor masks personally identifiable information before it reaches a log line
type Redactor struct {
	patterns []piiPattern
}

// NewRedactor creates a redactor with the default PII patterns.
// Card numbers run first so the phone pattern cannot split them.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []piiPattern{
			{"credit_card", regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`)},
			{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
			{"api_key", regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}`)},
			{"email", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
			{"ip_address", regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)},
			{"phone", regexp.MustCompile(`(\+\d{1,2}\s)?\(?\b\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
		},
	}
}

// Redact returns text with every PII match replaced by a placeholder, and
// whether anything was replaced
func (r *Redactor) Redact(text string) (string, bool) {
	modified := text
	triggered := false

	for _, p := range r.patterns {
		if p.regex.MatchString(modified) {
			triggered = true
			modified = p.regex.ReplaceAllString(modified, "[REDACTED "+p.name+"]")
		}
	}

	return modified, triggered
}
