package evaluator

// #region imports
import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// #endregion

var tracer = otel.Tracer("github.com/danielpatrickdp/muse-gate/internal/evaluator")

// #region wire

type chatRequest struct {
	Inputs         map[string]string `json:"inputs"`
	Query          string            `json:"query"`
	ResponseMode   string            `json:"response_mode"`
	ConversationID string            `json:"conversation_id,omitempty"`
	User           string            `json:"user"`
	AppID          string            `json:"app_id,omitempty"`
}

type chatResponse struct {
	Answer         *string `json:"answer"`
	ConversationID string  `json:"conversation_id"`
}

// maxErrorBody caps how much of a failed response is kept for the error detail.
const maxErrorBody = 512

// #endregion

// #region client

// Client calls the chat-messages endpoint once per evaluation. It never retries.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an evaluator client.
func NewClient(config Config, opts ...Option) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	c := &Client{
		config:     config,
		httpClient: &http.Client{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the bound applied to each call.
func (c *Client) Timeout() time.Duration {
	return c.config.Timeout
}

// #endregion

// #region evaluate

// Evaluate sends one prompt upstream and normalizes the reply. Failures come
// back as *Error with kind unavailable or timeout.
func (c *Client) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "evaluator.evaluate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("evaluator.persona", req.Persona),
			attribute.Int("evaluator.prompt_len", len(req.Prompt)),
			attribute.Int("evaluator.fields", len(req.Fields)),
		))
	defer span.End()

	start := time.Now()
	v, err := c.do(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("[EVAL] call failed",
			zap.String("persona", req.Persona),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Verdict{}, err
	}
	span.SetAttributes(attribute.Bool("evaluator.advance", v.Advance))
	c.logger.Debug("[EVAL] call ok",
		zap.String("persona", req.Persona),
		zap.Bool("advance", v.Advance),
		zap.Duration("elapsed", time.Since(start)))
	return v, nil
}

func (c *Client) do(ctx context.Context, req Request) (Verdict, error) {
	persona, ok := c.config.Personas[req.Persona]
	if !ok {
		return Verdict{}, unavailable("unknown persona "+req.Persona, nil)
	}
	apiKey := persona.APIKey
	if apiKey == "" {
		apiKey = c.config.APIKey
	}

	inputs := req.Inputs
	if inputs == nil {
		inputs = map[string]string{}
	}
	user := req.User
	if user == "" {
		user = "default-user"
	}
	body, err := json.Marshal(chatRequest{
		Inputs:         inputs,
		Query:          req.Prompt,
		ResponseMode:   "blocking",
		ConversationID: req.ConversationID,
		User:           user,
		AppID:          persona.AppID,
	})
	if err != nil {
		return Verdict{}, unavailable("encode request", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/chat-messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, unavailable("build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Verdict{}, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Verdict{}, unavailable(fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))), nil)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verdict{}, classify(ctx, fmt.Errorf("decode response: %w", err))
	}
	if out.Answer == nil || strings.TrimSpace(*out.Answer) == "" {
		return Verdict{}, unavailable("response has no answer", nil)
	}

	v := ParseVerdict(*out.Answer, req.Fields)
	v.ConversationID = out.ConversationID
	return v, nil
}

// classify maps a transport error to a timeout when the deadline fired,
// otherwise to unavailable.
func classify(ctx context.Context, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeout("no response within deadline", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeout("transport timeout", err)
	}
	return unavailable("request failed", err)
}

// #endregion
