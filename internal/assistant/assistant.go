package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"chatify/internal/metrics"
	"chatify/internal/models"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// HistoryWindow is how many past messages are sent along with the latest one.
	HistoryWindow   = 12
	MaxOutputTokens = 512

	DefaultTimeout = 20 * time.Second
	DefaultRetries = 2
)

const SystemPrompt = "You are Luna, a friendly, knowledgeable chat companion. Be concise, warm, and helpful. " +
	"If asked for current time/date, answer precisely. When unsure, ask a clarifying question. " +
	"Avoid unsafe or private data. Use bullet lists for steps or options when helpful."

// Turn is one message of the conversation as seen by the model.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ReplyGenerator produces the assistant answer to latest given the prior conversation.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, history []Turn, latest string) (string, error)
}

// Provider is a ReplyGenerator backed by a single upstream API.
type Provider interface {
	ReplyGenerator
	Name() string
}

const (
	KindNotConfigured = "not_configured"
	KindUpstream      = "upstream"
	KindEmpty         = "empty"
)

// ProviderError describes why no reply was produced.
type ProviderError struct {
	Provider string
	Kind     string
	Message  string
	Err      error

	transient bool
}

func (e *ProviderError) Error() string {
	msg := e.Provider + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) Is(target error) bool {
	return target == models.ErrProvider
}

// Temporary reports whether another attempt may succeed.
func (e *ProviderError) Temporary() bool {
	return e.transient
}

func notConfigured(provider, message string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindNotConfigured, Message: message}
}

func upstream(provider, message string, err error, transient bool) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindUpstream, Message: message, Err: err, transient: transient}
}

func empty(provider string) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindEmpty, Message: "empty response from model"}
}

var boilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^If you want the text in bold[^.]+\.?`),
	regexp.MustCompile(`(?i)^I can do many things to help you[^.]*\.?`),
	regexp.MustCompile(`(?i)^I'm here to help[^.]*\.?`),
	regexp.MustCompile(`(?i)^Here are some things I can do[^.]*\.?`),
}

// CleanReply trims model output and strips stock openers.
func CleanReply(text string) string {
	out := strings.TrimSpace(text)
	for _, re := range boilerplate {
		out = strings.TrimSpace(re.ReplaceAllString(out, ""))
	}
	return out
}

// Window returns at most the last HistoryWindow turns.
func Window(history []Turn) []Turn {
	if len(history) > HistoryWindow {
		return history[len(history)-HistoryWindow:]
	}
	return history
}

// Retrying bounds every attempt with a timeout and retries transient failures.
// Replies are cleaned; a reply that cleans to nothing is an empty-kind error.
type Retrying struct {
	next    Provider
	timeout time.Duration
	retries int
	backoff func(attempt int) time.Duration
	logger  *slog.Logger
}

func NewRetrying(next Provider, timeout time.Duration, retries int, logger *slog.Logger) *Retrying {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if retries < 0 {
		retries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrying{
		next:    next,
		timeout: timeout,
		retries: retries,
		backoff: func(attempt int) time.Duration { return 500 * time.Millisecond * time.Duration(attempt+1) },
		logger:  logger.With("component", "assistant", "provider", next.Name()),
	}
}

func (r *Retrying) Name() string {
	return r.next.Name()
}

func (r *Retrying) GenerateReply(ctx context.Context, history []Turn, latest string) (string, error) {
	start := time.Now()
	reply, err := r.generate(ctx, Window(history), latest)
	metrics.AssistantLatency.WithLabelValues(r.Name()).Observe(time.Since(start).Seconds())

	outcome := "ok"
	var perr *ProviderError
	if errors.As(err, &perr) {
		outcome = perr.Kind
	} else if err != nil {
		outcome = "error"
	}
	metrics.AssistantReplies.WithLabelValues(r.Name(), outcome).Inc()
	return reply, err
}

func (r *Retrying) generate(ctx context.Context, history []Turn, latest string) (string, error) {
	for attempt := 0; ; attempt++ {
		reply, err := r.once(ctx, history, latest)
		if err == nil {
			if reply = CleanReply(reply); reply == "" {
				return "", empty(r.Name())
			}
			return reply, nil
		}

		var perr *ProviderError
		if !errors.As(err, &perr) || !perr.Temporary() || attempt >= r.retries {
			return "", err
		}
		r.logger.Warn("reply attempt failed, retrying", "attempt", attempt+1, "error", err)

		select {
		case <-ctx.Done():
			return "", upstream(r.Name(), "request cancelled", ctx.Err(), false)
		case <-time.After(r.backoff(attempt)):
		}
	}
}

func (r *Retrying) once(ctx context.Context, history []Turn, latest string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.next.GenerateReply(ctx, history, latest)
}

type Config struct {
	Provider      string
	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
	GeminiKey     string
	GeminiBaseURL string
	GeminiModel   string
	OllamaBaseURL string
	OllamaModel   string
	Temperature   float64
	Timeout       time.Duration
	Retries       int
}

// NewFromConfig builds the configured provider wrapped in Retrying.
// A provider without credentials is still returned; its calls fail with a
// not_configured ProviderError.
func NewFromConfig(cfg Config, logger *slog.Logger) (*Retrying, error) {
	var p Provider
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		p = NewOpenAIGenerator(cfg.OpenAIBaseURL, cfg.OpenAIKey, cfg.OpenAIModel, cfg.Temperature)
	case "", "gemini":
		p = NewGeminiGenerator(cfg.GeminiBaseURL, cfg.GeminiKey, cfg.GeminiModel, cfg.Temperature)
	case "ollama":
		p = NewOllamaGenerator(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown assistant provider %q", cfg.Provider)
	}
	return NewRetrying(p, cfg.Timeout, cfg.Retries, logger), nil
}
