package gateway

import (
	"fmt"
	"sort"

	"github.com/run-bigpig/guardchat/pkg/interfaces"
	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var reservedKeys = map[string]bool{
	"model":      true,
	"messages":   true,
	"stream":     true,
	"guardrails": true,
}

// buildRequestBody encodes the chat completion payload. Extra keys are
// merged in sorted order and never replace a reserved key; the skipped keys
// are returned.
func buildRequestBody(req interfaces.ChatRequest) ([]byte, []string, error) {
	messages := req.Messages
	if messages == nil {
		messages = []openai.ChatCompletionMessage{}
	}

	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", req.Model); err != nil {
		return nil, nil, fmt.Errorf("failed to set model: %w", err)
	}
	if body, err = sjson.SetBytes(body, "messages", messages); err != nil {
		return nil, nil, fmt.Errorf("failed to set messages: %w", err)
	}
	if body, err = sjson.SetBytes(body, "stream", req.Stream); err != nil {
		return nil, nil, fmt.Errorf("failed to set stream: %w", err)
	}

	keys := make([]string, 0, len(req.Extra))
	for key := range req.Extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var skipped []string
	for _, key := range keys {
		if reservedKeys[key] {
			skipped = append(skipped, key)
			continue
		}
		if body, err = sjson.SetBytes(body, gjson.Escape(key), req.Extra[key]); err != nil {
			return nil, nil, fmt.Errorf("failed to set %q: %w", key, err)
		}
	}

	if len(req.Guardrails) > 0 {
		if body, err = sjson.SetBytes(body, "guardrails", req.Guardrails); err != nil {
			return nil, nil, fmt.Errorf("failed to set guardrails: %w", err)
		}
	}

	return body, skipped, nil
}
