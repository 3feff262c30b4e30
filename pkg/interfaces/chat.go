package interfaces

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// ChatRequest is a single chat completion call against the gateway
type ChatRequest struct {
	// Model is the gateway model alias
	Model string

	// Messages is the ordered conversation sent with the request
	Messages []openai.ChatCompletionMessage

	// Guardrails names the gateway guardrails to apply; empty sends none
	Guardrails []string

	// Stream requests a streamed response
	Stream bool

	// Extra holds additional top-level request fields
	Extra map[string]interface{}
}

// ChatClient sends chat completion requests to the gateway
type ChatClient interface {
	// ChatCompletion returns the decoded response body
	ChatCompletion(ctx context.Context, req ChatRequest) (map[string]interface{}, error)
}

// HealthChecker reports gateway liveness
type HealthChecker interface {
	// HealthCheck returns true when the gateway answers its health endpoint
	HealthCheck(ctx context.Context) bool
}
