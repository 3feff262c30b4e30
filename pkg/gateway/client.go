package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/run-bigpig/guardchat/pkg/guardrails"
	"github.com/run-bigpig/guardchat/pkg/interfaces"
	"github.com/run-bigpig/guardchat/pkg/logging"
	"github.com/run-bigpig/guardchat/pkg/metrics"
	"github.com/run-bigpig/guardchat/pkg/tracing"
)

const (
	// DefaultBaseURL is where a locally started gateway listens
	DefaultBaseURL = "http://localhost:4000"
	// DefaultAPIKey is accepted by a local gateway without a master key
	DefaultAPIKey = "dummy-key"

	chatCompletionsPath = "/v1/chat/completions"
	healthPath          = "/health"

	requestTimeout = 60 * time.Second
	healthTimeout  = 2 * time.Second
)

// Client talks to the gateway's OpenAI-compatible HTTP API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
	tracer     interfaces.Tracer
	metrics    *metrics.Collector
	redactor   *logging.Redactor
}

// Option represents an option for configuring the client
type Option func(*Client)

// WithBaseURL sets the gateway base URL
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAPIKey sets the bearer token sent with chat requests
func WithAPIKey(apiKey string) Option {
	return func(c *Client) {
		c.apiKey = apiKey
	}
}

// WithHTTPClient sets the HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithTracer sets the tracer
func WithTracer(tracer interfaces.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// NewClient creates a new gateway client
func NewClient(options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     DefaultAPIKey,
		httpClient: &http.Client{},
		logger:     logging.Nop(),
		tracer:     tracing.Noop(),
		redactor:   logging.NewRedactor(),
	}

	for _, option := range options {
		option(c)
	}

	return c
}

// BaseURL returns the gateway base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ChatCompletion sends a chat completion request and returns the decoded
// response body. Non-200 responses become *GuardrailViolationError or
// *APIError; transport failures wrap ErrUnreachable.
func (c *Client) ChatCompletion(ctx context.Context, req interfaces.ChatRequest) (result map[string]interface{}, err error) {
	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)

	ctx, span := c.tracer.StartSpan(ctx, "gateway.chat_completion", map[string]string{
		"model":      req.Model,
		"request_id": requestID,
		"guardrails": strings.Join(req.Guardrails, ","),
	})
	start := time.Now()
	defer func() {
		c.tracer.EndSpan(span, err)
		c.record(err, time.Since(start))
	}()

	body, skipped, err := buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build request body: %w", err)
	}
	if len(skipped) > 0 {
		c.logger.Debug(ctx, "Ignoring extra parameters that override reserved fields", map[string]interface{}{
			"keys": skipped,
		})
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("X-Request-ID", requestID)

	c.logger.Debug(ctx, "Sending chat completion", map[string]interface{}{
		"model":        req.Model,
		"messages":     len(req.Messages),
		"guardrails":   req.Guardrails,
		"last_message": c.lastMessage(req),
	})

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrUnreachable, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, c.responseError(ctx, httpResp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Message:    fmt.Sprintf("API error (%d): %s", httpResp.StatusCode, string(respBody)),
			Body:       respBody,
		}
	}

	c.logger.Debug(ctx, "Received chat completion", map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func (c *Client) responseError(ctx context.Context, statusCode int, body []byte) error {
	parsed := guardrails.Parse(statusCode, body)
	if parsed.IsViolation() {
		c.logger.Warn(ctx, "Request blocked by guardrails", map[string]interface{}{
			"status":     statusCode,
			"violations": parsed.Verdict.Codes(),
			"source":     string(parsed.Verdict.Source),
		})
		return newGuardrailViolationError(parsed.Verdict, statusCode, body)
	}

	c.logger.Error(ctx, "Gateway returned an error", map[string]interface{}{
		"status":  statusCode,
		"message": parsed.Message,
	})
	return &APIError{
		StatusCode: statusCode,
		Message:    parsed.Message,
		Body:       body,
	}
}

func (c *Client) record(err error, duration time.Duration) {
	var apiErr *APIError
	switch {
	case err == nil:
		c.metrics.RecordRequest(metrics.OutcomeSuccess, duration)
	case IsGuardrailViolation(err):
		violation, _ := AsGuardrailViolation(err)
		c.metrics.RecordRequest(metrics.OutcomeViolation, duration)
		c.metrics.RecordViolations(violation.Codes())
	case errors.As(err, &apiErr):
		c.metrics.RecordRequest(metrics.OutcomeAPIError, duration)
	default:
		c.metrics.RecordRequest(metrics.OutcomeTransport, duration)
	}
}

func (c *Client) lastMessage(req interfaces.ChatRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	text, _ := c.redactor.Redact(req.Messages[len(req.Messages)-1].Content)
	return text
}

// HealthCheck reports whether the gateway answers GET /health with 200.
// Every failure counts as unhealthy.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug(ctx, "Health check failed", map[string]interface{}{"error": err.Error()})
		c.metrics.RecordHealth(false)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	healthy := resp.StatusCode == http.StatusOK
	c.metrics.RecordHealth(healthy)
	return healthy
}
