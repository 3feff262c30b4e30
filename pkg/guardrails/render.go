package guardrails

import (
	"fmt"
	"strings"
	"unicode"
)

var displayNames = map[string]string{
	"moderated_content/crime":       "Crime-related content",
	"moderated_content/hate":        "Hate speech",
	"moderated_content/profanity":   "Profanity",
	"moderated_content/sexual":      "Sexual content",
	"moderated_content/violence":    "Violence",
	"moderated_content/weapons":     "Weapons",
	"pii/address":                   "Personal address",
	"pii/credit_card":               "Credit card number",
	"pii/email":                     "Email address",
	"pii/iban_code":                 "IBAN code",
	"pii/ip_address":                "IP address",
	"pii/name":                      "Personal name",
	"pii/phone_number":              "Phone number",
	"pii/us_social_security_number": "Social Security Number",
	"prompt_attack":                 "Prompt injection attack",
	"jailbreak":                     "Jailbreak attempt",
	"prompt_injection":              "Prompt injection",
	"unknown_links":                 "Unknown links",
}

// DisplayName returns the human-readable name for a violation code
func DisplayName(code string) string {
	if name, ok := displayNames[code]; ok {
		return name
	}
	name := strings.ReplaceAll(code, "_", " ")
	name = strings.ReplaceAll(name, "/", " - ")
	return titleCase(name)
}

// titleCase upper-cases the first letter of every run of letters and
// lower-cases the rest
func titleCase(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inWord := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && !inWord:
			sb.WriteRune(unicode.ToUpper(r))
			inWord = true
		case unicode.IsLetter(r):
			sb.WriteRune(unicode.ToLower(r))
		default:
			sb.WriteRune(r)
			inWord = false
		}
	}
	return sb.String()
}

// FormatConfidence renders a score in [0,1] as a percentage with one decimal
func FormatConfidence(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}

// Render formats the verdict for display under the given headline. An empty
// headline uses DefaultHeadline.
func (v *GuardrailVerdict) Render(headline string) string {
	if headline == "" {
		headline = DefaultHeadline
	}

	var sb strings.Builder
	sb.WriteString(headline)
	if len(v.Violations) > 0 {
		sb.WriteString("\n\nDetected policy violations:")
		for _, violation := range v.Violations {
			sb.WriteString("\n  • ")
			sb.WriteString(DisplayName(violation.Code))
			if violation.Confidence != nil {
				sb.WriteString(" (confidence: ")
				sb.WriteString(FormatConfidence(*violation.Confidence))
				sb.WriteString(")")
			}
		}
	}
	sb.WriteString("\n\nPlease revise your message to comply with the content safety policy.")
	return sb.String()
}
