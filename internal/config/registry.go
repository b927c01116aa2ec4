package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/zentra/pkg/provider/command"
	"github.com/MrWong99/zentra/pkg/provider/cue"
	"github.com/MrWong99/zentra/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory constructs a provider of type T from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name → constructor table.
type factories[T any] struct {
	kind string
	m    map[string]Factory[T]
}

func newFactories[T any](kind string) factories[T] {
	return factories[T]{kind: kind, m: make(map[string]Factory[T])}
}

func (f factories[T]) create(entry ProviderEntry) (T, error) {
	factory, ok := f.m[entry.Name]
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return factory(entry)
}

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	stt     factories[stt.Provider]
	command factories[command.Sink]
	cue     factories[cue.Player]
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:     newFactories[stt.Provider]("stt"),
		command: newFactories[command.Sink]("command"),
		cue:     newFactories[cue.Player]("cue"),
	}
}

// RegisterSTT registers a transcription provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory Factory[stt.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt.m[name] = factory
}

// RegisterCommand registers a command sink factory under name.
func (r *Registry) RegisterCommand(name string, factory Factory[command.Sink]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.command.m[name] = factory
}

// RegisterCue registers a cue player factory under name.
func (r *Registry) RegisterCue(name string, factory Factory[cue.Player]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cue.m[name] = factory
}

// CreateSTT instantiates the transcription provider registered under
// entry.Name. Returns [ErrProviderNotRegistered] if there is none.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateCommand instantiates the command sink registered under entry.Name.
func (r *Registry) CreateCommand(entry ProviderEntry) (command.Sink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.command.create(entry)
}

// CreateCue instantiates the cue player registered under entry.Name.
func (r *Registry) CreateCue(entry ProviderEntry) (cue.Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cue.create(entry)
}
