package guardrails

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Parse extracts a guardrail verdict from a non-2xx gateway response body.
// Payload forms are tried in order: direct breakdown, breakdown serialized
// inside error.message, legacy categorical result. When none yields a
// violation the result carries a generic "API error (<status>): ..." message.
// Parse never fails; undecodable content falls through to the next form.
func Parse(statusCode int, body []byte) Result {
	if !gjson.ValidBytes(body) {
		return Result{Message: apiErrorMessage(statusCode, string(body))}
	}

	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return Result{Message: apiErrorMessage(statusCode, string(body))}
	}

	if verdict := parseBreakdown(root, FormatDirect); verdict != nil {
		return Result{Verdict: verdict}
	}
	if verdict := parseNested(root); verdict != nil {
		return Result{Verdict: verdict}
	}
	if verdict := parseLegacy(root); verdict != nil {
		return Result{Verdict: verdict}
	}

	return Result{Message: apiErrorMessage(statusCode, genericMessage(root, body))}
}

func apiErrorMessage(statusCode int, message string) string {
	return fmt.Sprintf("API error (%d): %s", statusCode, message)
}

// parseBreakdown reads lakera_guardrail_response.breakdown from obj
func parseBreakdown(obj gjson.Result, source Format) *GuardrailVerdict {
	response := obj.Get("lakera_guardrail_response")
	if !response.Exists() {
		return nil
	}

	var violations []ViolationRecord
	response.Get("breakdown").ForEach(func(_, detector gjson.Result) bool {
		if !truthy(detector.Get("detected")) {
			return true
		}
		code := "unknown"
		if detectorType := detector.Get("detector_type"); detectorType.Exists() && detectorType.Type != gjson.Null {
			code = detectorType.String()
		}
		violations = append(violations, ViolationRecord{Code: code})
		return true
	})

	return newVerdict(violations, response.Raw, source)
}

func parseNested(root gjson.Result) *GuardrailVerdict {
	errValue := root.Get("error")

	var text string
	switch {
	case errValue.Type == gjson.String:
		text = errValue.Str
	case errValue.IsObject():
		message := errValue.Get("message")
		if message.Type != gjson.String {
			return nil
		}
		text = message.Str
	default:
		return nil
	}

	if gjson.Valid(text) {
		nested := gjson.Parse(text)
		if !nested.IsObject() {
			return nil
		}
		return parseBreakdown(nested, FormatNestedJSON)
	}

	decoded, err := DecodeLiteral(text)
	if err != nil {
		return nil
	}
	nested := gjson.ParseBytes(decoded)
	if !nested.IsObject() {
		return nil
	}
	return parseBreakdown(nested, FormatNestedLiteral)
}

func parseLegacy(root gjson.Result) *GuardrailVerdict {
	errValue := root.Get("error")
	if !errValue.IsObject() {
		return nil
	}

	response := errValue.Get("lakera_ai_response")
	if !truthy(response) {
		return nil
	}

	first := response.Get("results.0")
	if !first.IsObject() || !truthy(first.Get("flagged")) {
		return nil
	}

	scores := make(map[string]float64)
	first.Get("category_scores").ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.Number {
			scores[key.String()] = value.Float()
		}
		return true
	})

	var violations []ViolationRecord
	first.Get("categories").ForEach(func(key, value gjson.Result) bool {
		if !truthy(value) {
			return true
		}
		record := ViolationRecord{Code: key.String()}
		if score, ok := scores[record.Code]; ok {
			record.Confidence = &score
		}
		violations = append(violations, record)
		return true
	})

	return newVerdict(violations, response.Raw, FormatLegacy)
}

func newVerdict(violations []ViolationRecord, raw string, source Format) *GuardrailVerdict {
	if len(violations) == 0 {
		return nil
	}
	return &GuardrailVerdict{
		Violations: violations,
		RawPayload: json.RawMessage(raw),
		Source:     source,
	}
}

// genericMessage falls back to the whole body when there is no usable error
func genericMessage(root gjson.Result, body []byte) string {
	errValue := root.Get("error")
	switch {
	case !errValue.Exists(), errValue.Type == gjson.Null:
		return string(body)
	case errValue.Type == gjson.String:
		return errValue.Str
	case errValue.IsObject():
		message := errValue.Get("message")
		if !message.Exists() {
			return errValue.Raw
		}
		if message.Type == gjson.String {
			return message.Str
		}
		return message.Raw
	default:
		return errValue.Raw
	}
}

// truthy follows the usual dynamic-language truth rules for JSON values
func truthy(value gjson.Result) bool {
	switch value.Type {
	case gjson.True:
		return true
	case gjson.Number:
		return value.Num != 0
	case gjson.String:
		return value.Str != ""
	case gjson.JSON:
		if value.IsArray() {
			return len(value.Array()) > 0
		}
		return len(value.Map()) > 0
	default:
		return false
	}
}
