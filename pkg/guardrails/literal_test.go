package guardrails

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLiteral(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"dict", `{'a': 1, "b": [True, False, None]}`, `{"a":1,"b":[true,false,null]}`},
		{"tuple", `(1, 2)`, `[1,2]`},
		{"single element tuple", `(1,)`, `[1]`},
		{"parenthesized value", `(1)`, `1`},
		{"empty tuple", `()`, `[]`},
		{"trailing comma", `[1, 2,]`, `[1,2]`},
		{"non-string keys", `{1: None, True: 'x'}`, `{"1":null,"true":"x"}`},
		{"duplicate keys", `{'a': 1, 'b': 2, 'a': 3}`, `{"a":3,"b":2}`},
		{"signed float", `-3.5e2`, `-350`},
		{"fraction", `.25`, `0.25`},
		{"escaped quote", `'it\'s'`, `"it's"`},
		{"control escapes", `"tab\there"`, `"tab\there"`},
		{"hex and unicode escapes", `'\x41é'`, `"Aé"`},
		{"raw string", `r'\d+'`, `"\\d+"`},
		{"adjacent strings", `'a' "b"`, `"ab"`},
		{"triple quoted", `'''multi
line'''`, `"multi\nline"`},
		{"nested", `{'lakera_guardrail_response': {'breakdown': [{'detector_type': 'pii/email', 'detected': True}]}}`,
			`{"lakera_guardrail_response":{"breakdown":[{"detector_type":"pii/email","detected":true}]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeLiteral(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestDecodeLiteralRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"call", `__import__('os').system('ls')`},
		{"bare name", `foo`},
		{"set", `{1, 2}`},
		{"operator", `1 + 2`},
		{"unterminated string", `'open`},
		{"newline in string", "'a\nb'"},
		{"leading zeros", `007`},
		{"unhashable key", `{[1]: 2}`},
		{"missing comma", `[1 2]`},
		{"complex number", `1j`},
		{"empty", ``},
		{"too deep", strings.Repeat("[", maxLiteralDepth+1) + strings.Repeat("]", maxLiteralDepth+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeLiteral(tt.input)
			assert.ErrorIs(t, err, ErrInvalidLiteral)
		})
	}
}

func TestDecodeLiteralDepthLimit(t *testing.T) {
	input := strings.Repeat("[", maxLiteralDepth) + strings.Repeat("]", maxLiteralDepth)

	got, err := DecodeLiteral(input)

	require.NoError(t, err)
	assert.Equal(t, input, string(got))
}
