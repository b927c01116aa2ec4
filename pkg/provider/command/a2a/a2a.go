// Package a2a provides a command sink that forwards commands to an agent
// speaking the Agent2Agent (A2A) protocol.
//
// The agent card is resolved lazily on the first submission. Every command
// is sent as a user-role message with a single text part; the conversation
// context ID returned by the agent is remembered and attached to subsequent
// messages so that the agent sees one continuous conversation.
package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"

	"github.com/MrWong99/zentra/pkg/provider/command"
)

// ErrTaskFailed is returned when the agent reports the task as failed.
var ErrTaskFailed = errors.New("a2a: task failed")

var _ command.Sink = (*Sink)(nil)

// Sink is a [command.Sink] backed by an A2A client.
type Sink struct {
	url        string
	authToken  string
	httpClient *http.Client

	mu        sync.Mutex
	client    *a2aclient.Client
	card      *a2a.AgentCard
	contextID string
	lastReply string
}

// Option is a functional option for [New].
type Option func(*Sink)

// WithAuthToken attaches a bearer token to card resolution and messages.
func WithAuthToken(token string) Option {
	return func(s *Sink) {
		s.authToken = token
	}
}

// WithTimeout sets the HTTP timeout for card resolution. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Sink) {
		s.httpClient = &http.Client{Timeout: d}
	}
}

// New creates a sink for the agent at url. No network call is made until
// the first Submit.
func New(url string, opts ...Option) (*Sink, error) {
	if url == "" {
		return nil, errors.New("a2a: agent URL must not be empty")
	}
	s := &Sink{
		url:        url,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// connect resolves the agent card and creates the protocol client. The
// caller must hold s.mu.
func (s *Sink) connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	var resolveOpts []agentcard.ResolveOption
	var factoryOpts []a2aclient.FactoryOption
	if s.authToken != "" {
		resolveOpts = append(resolveOpts, agentcard.WithRequestHeader("Authorization", "Bearer "+s.authToken))

		creds := a2aclient.NewInMemoryCredentialsStore()
		creds.Set("default", "bearer", a2aclient.AuthCredential(s.authToken))
		factoryOpts = append(factoryOpts, a2aclient.WithInterceptors(&a2aclient.AuthInterceptor{Service: creds}))
	}

	card, err := agentcard.NewResolver(s.httpClient).Resolve(ctx, s.url, resolveOpts...)
	if err != nil {
		return fmt.Errorf("a2a: resolve agent card: %w", err)
	}
	client, err := a2aclient.NewFromCard(ctx, card, factoryOpts...)
	if err != nil {
		return fmt.Errorf("a2a: create client from card: %w", err)
	}

	slog.Info("a2a: connected to agent", "name", card.Name, "url", s.url)
	s.card = card
	s.client = client
	return nil
}

// Submit implements [command.Sink]. Submissions are serialised so that the
// context ID is threaded through consecutive commands in order.
func (s *Sink) Submit(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return err
	}

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
	msg.ContextID = s.contextID

	resp, err := s.client.SendMessage(ctx, &a2a.MessageSendParams{Message: msg})
	if err != nil {
		return fmt.Errorf("a2a: send message: %w", err)
	}

	switch r := resp.(type) {
	case *a2a.Task:
		if r.ContextID != "" {
			s.contextID = r.ContextID
		}
		if r.Status.State == a2a.TaskStateFailed {
			return fmt.Errorf("%w: %s", ErrTaskFailed, statusText(r))
		}
		s.lastReply = artifactText(r.Artifacts)
	case *a2a.Message:
		if r.ContextID != "" {
			s.contextID = r.ContextID
		}
		s.lastReply = partsText(r.Parts)
	}

	slog.Debug("a2a: command delivered", "context_id", s.contextID, "reply", s.lastReply)
	return nil
}

// ContextID returns the conversation context shared with the agent, or ""
// before the first successful submission.
func (s *Sink) ContextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contextID
}

// LastReply returns the text of the agent's most recent answer.
func (s *Sink) LastReply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReply
}

// Close releases the protocol client.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Destroy()
	s.client = nil
	return err
}

func statusText(t *a2a.Task) string {
	if t.Status.Message == nil {
		return "no details"
	}
	if txt := partsText(t.Status.Message.Parts); txt != "" {
		return txt
	}
	return "no details"
}

func artifactText(artifacts []*a2a.Artifact) string {
	var b strings.Builder
	for _, a := range artifacts {
		if a == nil {
			continue
		}
		b.WriteString(partsText(a.Parts))
	}
	return b.String()
}

func partsText(parts []a2a.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if tp, ok := p.(a2a.TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}
