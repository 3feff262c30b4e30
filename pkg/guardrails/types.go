package guardrails

import "encoding/json"

// Format identifies the payload shape a verdict was extracted from
type Format string

const (
	// FormatDirect is a top-level lakera_guardrail_response breakdown
	FormatDirect Format = "direct"
	// FormatNestedJSON is a breakdown serialized as JSON inside error.message
	FormatNestedJSON Format = "nested-json"
	// FormatNestedLiteral is a breakdown serialized as a Python literal inside error.message
	FormatNestedLiteral Format = "nested-literal"
	// FormatLegacy is the categorical error.lakera_ai_response result
	FormatLegacy Format = "legacy"
)

// DefaultHeadline is the first line of a rendered verdict
const DefaultHeadline = "LiteLLM has flagged this message due to policy violations"

// ViolationRecord is a single detected policy violation
type ViolationRecord struct {
	// Code is the detector or category code, e.g. "pii/email"
	Code string `json:"code"`

	// Confidence is the detector score in [0,1], when the payload carries one
	Confidence *float64 `json:"confidence,omitempty"`
}

// GuardrailVerdict is the normalized outcome of a blocked request
type GuardrailVerdict struct {
	// Violations are in detection order
	Violations []ViolationRecord `json:"violations"`

	// RawPayload is the moderation response the violations were read from
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	// Source is the payload shape that produced the verdict
	Source Format `json:"source"`
}

// Codes returns the violation codes in detection order
func (v *GuardrailVerdict) Codes() []string {
	codes := make([]string, 0, len(v.Violations))
	for _, violation := range v.Violations {
		codes = append(codes, violation.Code)
	}
	return codes
}

// Result is the outcome of parsing an error response. Exactly one of
// Verdict and Message is set.
type Result struct {
	Verdict *GuardrailVerdict
	Message string
}

// IsViolation reports whether the response was a guardrail block
func (r Result) IsViolation() bool {
	return r.Verdict != nil && len(r.Verdict.Violations) > 0
}
