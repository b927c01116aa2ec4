// Package chat provides a command sink that hands each command to a chat
// completion model (OpenAI or any server implementing the same endpoint)
// and logs the model's reply.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/zentra/pkg/provider/command"
)

const (
	defaultModel        = "gpt-4o-mini"
	defaultSystemPrompt = "You are a hands-free voice assistant. Each user message is a spoken command transcribed by a speech recogniser and may contain recognition errors. Answer briefly."
	defaultHistory      = 8
)

// Sink implements command.Sink by sending each command as a user message.
// The last few exchanges are replayed so follow-up commands keep context.
type Sink struct {
	client       oai.Client
	model        string
	systemPrompt string
	maxTokens    int
	historyLen   int
	logger       *slog.Logger
	onReply      func(command, reply string)

	mu      sync.Mutex
	history []exchange
}

type exchange struct {
	command string
	reply   string
}

var _ command.Sink = (*Sink)(nil)

type config struct {
	baseURL      string
	systemPrompt string
	maxTokens    int
	historyLen   int
	timeout      time.Duration
	logger       *slog.Logger
	onReply      func(command, reply string)
}

// Option is a functional option for Sink.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(p string) Option {
	return func(c *config) { c.systemPrompt = p }
}

// WithMaxTokens caps the reply length. Zero leaves the model default.
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = n }
}

// WithHistory sets how many previous exchanges are replayed. Zero disables
// history.
func WithHistory(n int) Option {
	return func(c *config) { c.historyLen = n }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithLogger sets the logger replies are written to.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithReplyHandler registers fn to receive every reply.
func WithReplyHandler(fn func(command, reply string)) Option {
	return func(c *config) { c.onReply = fn }
}

// New constructs a chat Sink.
func New(apiKey, model string, opts ...Option) (*Sink, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("chat: apiKey must not be empty")
	}
	if model == "" {
		model = defaultModel
	}
	cfg := &config{
		systemPrompt: defaultSystemPrompt,
		historyLen:   defaultHistory,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.historyLen < 0 {
		return nil, fmt.Errorf("chat: history must not be negative, got %d", cfg.historyLen)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		systemPrompt: cfg.systemPrompt,
		maxTokens:    cfg.maxTokens,
		historyLen:   cfg.historyLen,
		logger:       logger,
		onReply:      cfg.onReply,
	}, nil
}

// Submit implements command.Sink. It blocks until the model has replied.
func (s *Sink) Submit(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("chat: empty command")
	}

	resp, err := s.client.Chat.Completions.New(ctx, s.buildParams(text))
	if err != nil {
		return fmt.Errorf("chat: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("chat: empty choices in response")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)

	s.remember(text, reply)
	s.logger.InfoContext(ctx, "command reply",
		"command", text,
		"reply", reply,
		"total_tokens", resp.Usage.TotalTokens,
	)
	if s.onReply != nil {
		s.onReply(text, reply)
	}
	return nil
}

// Reset forgets the replayed history.
func (s *Sink) Reset() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

func (s *Sink) remember(cmd, reply string) {
	if s.historyLen == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, exchange{command: cmd, reply: reply})
	if over := len(s.history) - s.historyLen; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// buildParams assembles the system prompt, the replayed history and text.
func (s *Sink) buildParams(text string) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	if s.systemPrompt != "" {
		messages = append(messages, oai.SystemMessage(s.systemPrompt))
	}

	s.mu.Lock()
	for _, ex := range s.history {
		messages = append(messages, oai.UserMessage(ex.command))
		if ex.reply != "" {
			messages = append(messages, oai.AssistantMessage(ex.reply))
		}
	}
	s.mu.Unlock()

	messages = append(messages, oai.UserMessage(text))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(s.model),
		Messages: messages,
	}
	if s.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(s.maxTokens))
	}
	return params
}
