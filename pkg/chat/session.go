package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/run-bigpig/guardchat/pkg/gateway"
	"github.com/run-bigpig/guardchat/pkg/interfaces"
	"github.com/run-bigpig/guardchat/pkg/logging"
	"github.com/run-bigpig/guardchat/pkg/tracing"
	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"
)

const (
	// DefaultModel is the gateway model alias used when none is given
	DefaultModel = "gpt-3.5-turbo"
	// DefaultGuardrail is the guardrail applied unless disabled
	DefaultGuardrail = "lakera-guard"
)

// Session is a conversation with the gateway. It is not safe for
// concurrent Chat calls.
type Session struct {
	client     interfaces.ChatClient
	model      string
	guardrails []string
	logger     logging.Logger
	tracer     interfaces.Tracer
	history    *History
}

// Option represents an option for configuring a session
type Option func(*Session)

// WithModel sets the model alias
func WithModel(model string) Option {
	return func(s *Session) {
		if model != "" {
			s.model = model
		}
	}
}

// WithGuardrails sets the guardrails applied to every request; no names
// disables guardrails
func WithGuardrails(names ...string) Option {
	return func(s *Session) {
		s.guardrails = append([]string(nil), names...)
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithTracer sets the tracer
func WithTracer(tracer interfaces.Tracer) Option {
	return func(s *Session) {
		s.tracer = tracer
	}
}

// WithMaxHistory bounds the number of turns kept
func WithMaxHistory(size int) Option {
	return func(s *Session) {
		s.history = NewHistory(size)
	}
}

// NewSession creates a chat session
func NewSession(client interfaces.ChatClient, options ...Option) *Session {
	s := &Session{
		client:     client,
		model:      DefaultModel,
		guardrails: []string{DefaultGuardrail},
		logger:     logging.Nop(),
		tracer:     tracing.Noop(),
		history:    NewHistory(DefaultMaxHistory),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// Model returns the model alias
func (s *Session) Model() string {
	return s.model
}

// Guardrails returns the guardrails applied to requests
func (s *Session) Guardrails() []string {
	return append([]string(nil), s.guardrails...)
}

// Chat sends user with the conversation so far and returns the assistant's
// reply. A non-empty system message is added once, before the first user
// turn that carries it. A blocked user turn is removed from the history
// and the *gateway.GuardrailViolationError is returned.
func (s *Session) Chat(ctx context.Context, user, system string) (reply string, err error) {
	ctx, span := s.tracer.StartSpan(ctx, "chat.turn", map[string]string{
		"model": s.model,
	})
	defer func() { s.tracer.EndSpan(span, err) }()

	if system != "" && !s.history.HasRole(openai.ChatMessageRoleSystem) {
		s.history.Add(openai.ChatMessageRoleSystem, system)
	}
	s.history.Add(openai.ChatMessageRoleUser, user)

	body, err := s.client.ChatCompletion(ctx, interfaces.ChatRequest{
		Model:      s.model,
		Messages:   s.history.Messages(),
		Guardrails: s.guardrails,
	})
	if err != nil {
		if gateway.IsGuardrailViolation(err) {
			s.history.PopIf(openai.ChatMessageRoleUser)
			s.logger.Info(ctx, "Message blocked by guardrails", map[string]interface{}{
				"model": s.model,
			})
		}
		return "", err
	}

	reply, err = extractReply(body)
	if err != nil {
		return "", err
	}

	s.history.Add(openai.ChatMessageRoleAssistant, reply)
	s.logger.Debug(ctx, "Assistant replied", map[string]interface{}{
		"turns": s.history.Len(),
	})

	return reply, nil
}

// extractReply reads choices[0].message.content and ignores the rest of
// the body
func extractReply(body map[string]interface{}) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", gateway.NewAPIError(fmt.Sprintf("Invalid response from gateway: %v", err))
	}

	choices := gjson.GetBytes(raw, "choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return "", gateway.NewAPIError("No response choices in API response")
	}

	var content string
	switch value := choices.Get("0.message.content"); value.Type {
	case gjson.String:
		content = value.Str
	case gjson.Null:
	default:
		content = value.Raw
	}
	if content == "" {
		return "", gateway.NewAPIError("Empty response from assistant")
	}

	return content, nil
}

// Reset clears the conversation history
func (s *Session) Reset() {
	s.history.Clear()
}

// Messages returns a copy of the conversation history
func (s *Session) Messages() []openai.ChatCompletionMessage {
	return s.history.Messages()
}
