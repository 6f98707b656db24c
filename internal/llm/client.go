// Package llm wraps the Anthropic Messages API behind a small completion
// client tuned for short conversational replies.
//
// The client validates and truncates prompts before dialing out, retries
// transient upstream failures with exponential backoff, and reports token
// usage, latency, and dollar cost alongside the reply so callers can persist
// per-message metrics.
package llm

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultModel answers WhatsApp traffic; short replies favor the
	// cheaper Haiku class.
	DefaultModel = "claude-3-5-haiku-latest"

	// DefaultMaxTokens caps the reply length.
	DefaultMaxTokens = 1024

	// DefaultContextBudget is the prompt budget in estimated tokens.
	DefaultContextBudget = 8000

	// DefaultAttemptTimeout bounds each individual API call.
	DefaultAttemptTimeout = 30 * time.Second

	// DefaultSystemPrompt is the persona used when the caller configures
	// none.
	DefaultSystemPrompt = "Eres un asistente virtual que responde mensajes de WhatsApp. " +
		"Responde de forma breve, clara y amable, en el idioma del usuario."

	maxAttempts  = 3
	initialDelay = time.Second
)

// Result carries a completion together with its usage metrics.
type Result struct {
	Content      string
	InputTokens  int
	OutputTokens int
	TokensUsed   int
	LatencyMs    int64
	Model        string
	StopReason   string
	Cost         float64
}

// messageCreator is the slice of the Anthropic SDK the client calls. Tests
// substitute a scripted implementation.
type messageCreator interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// Options configures a Client. Zero fields take the package defaults.
type Options struct {
	APIKey         string
	Model          string
	MaxTokens      int64
	ContextBudget  int
	Temperature    float64
	AttemptTimeout time.Duration
	SystemPrompt   string
}

// Client produces completions for conversation context windows.
type Client struct {
	api            messageCreator
	Model          string
	MaxTokens      int64
	ContextBudget  int
	Temperature    float64
	AttemptTimeout time.Duration
	SystemPrompt   string

	retryDelay time.Duration
}

// New builds a Client over the real Anthropic SDK.
func New(opts Options) *Client {
	sdk := anthropic.NewClient(option.WithAPIKey(opts.APIKey))
	return newWith(&sdk.Messages, opts)
}

func newWith(api messageCreator, opts Options) *Client {
	c := &Client{
		api:            api,
		Model:          opts.Model,
		MaxTokens:      opts.MaxTokens,
		ContextBudget:  opts.ContextBudget,
		Temperature:    opts.Temperature,
		AttemptTimeout: opts.AttemptTimeout,
		SystemPrompt:   opts.SystemPrompt,
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = DefaultContextBudget
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	c.retryDelay = initialDelay
	return c
}

// backoffSchedule returns a delay function yielding base, 2*base, 4*base, ...
// regardless of how the retry library numbers its attempts.
func backoffSchedule(base time.Duration) retry.DelayTypeFunc {
	var n uint
	return func(uint, error, *retry.Config) time.Duration {
		d := base << n
		n++
		return d
	}
}

// Complete sends the prompt upstream and returns the reply with its metrics.
// Prompts are validated first and truncated oldest-first to the context
// budget. Transient failures are retried up to three times with delays of
// one then two seconds; the returned error carries a Kind classification.
func (c *Client) Complete(ctx context.Context, msgs []Message) (*Result, error) {
	if err := ValidateMessages(msgs); err != nil {
		return nil, &Error{Kind: KindBadRequest, Err: err}
	}
	msgs = TruncateToBudget(msgs, c.ContextBudget)

	params := c.buildParams(msgs)

	var resp *anthropic.Message
	var attemptMs int64
	err := retry.Do(
		func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, c.AttemptTimeout)
			defer cancel()
			start := time.Now()
			var apiErr error
			resp, apiErr = c.api.New(attemptCtx, params)
			attemptMs = time.Since(start).Milliseconds()
			return apiErr
		},
		retry.RetryIf(isRetryable),
		retry.Attempts(maxAttempts),
		retry.DelayType(backoffSchedule(c.retryDelay)),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			completionRetries.Inc()
			log.Warn().Err(err).Uint("attempt", n+1).Msg("retrying completion call")
		}),
	)
	if err != nil {
		cerr := classify(err)
		completionRequests.WithLabelValues(string(cerr.Kind)).Inc()
		return nil, cerr
	}

	var parts []string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, text.Text)
		}
	}

	in := int(resp.Usage.InputTokens)
	out := int(resp.Usage.OutputTokens)
	model := string(resp.Model)

	completionRequests.WithLabelValues("ok").Inc()
	completionTokens.WithLabelValues("input").Add(float64(in))
	completionTokens.WithLabelValues("output").Add(float64(out))
	completionCost.Add(CostUSD(model, in, out))

	return &Result{
		Content:      strings.Join(parts, "\n"),
		InputTokens:  in,
		OutputTokens: out,
		TokensUsed:   in + out,
		LatencyMs:    attemptMs,
		Model:        model,
		StopReason:   string(resp.StopReason),
		Cost:         CostUSD(model, in, out),
	}, nil
}

// buildParams hoists system turns into the system prompt and maps the rest
// to API message params in order.
func (c *Client) buildParams(msgs []Message) anthropic.MessageNewParams {
	systemParts := make([]string, 0, 1)
	if c.SystemPrompt != "" {
		systemParts = append(systemParts, c.SystemPrompt)
	}
	apiMsgs := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, m.Content)
		case RoleAssistant:
			apiMsgs = append(apiMsgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			apiMsgs = append(apiMsgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.Model),
		MaxTokens: c.MaxTokens,
		Messages:  apiMsgs,
	}
	if len(systemParts) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(systemParts, "\n\n")}}
	}
	if c.Temperature > 0 {
		params.Temperature = anthropic.Float(c.Temperature)
	}
	return params
}
