// Package mock provides a test double for the stt.Provider interface.
//
// Provider records every request and answers from a scripted queue of
// responses, falling back to Text/Err once the queue is empty.
//
// Example:
//
//	p := &mock.Provider{Responses: []mock.Response{{Text: "zentra"}, {Err: io.EOF}}}
//	res, err := p.Transcribe(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/zentra/pkg/provider/stt"
)

// Response is one scripted answer.
type Response struct {
	Text string
	Err  error
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses are consumed in order, one per Transcribe call.
	Responses []Response

	// Text is returned once Responses is exhausted.
	Text string

	// Err is returned once Responses is exhausted.
	Err error

	// Block, when non-nil, makes Transcribe wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// Requests records every request, in order.
	Requests []stt.Request
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the next scripted response.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	block := p.Block
	var resp Response
	if len(p.Responses) > 0 {
		resp, p.Responses = p.Responses[0], p.Responses[1:]
	} else {
		resp = Response{Text: p.Text, Err: p.Err}
	}
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}
	if resp.Err != nil {
		return stt.Result{}, resp.Err
	}
	return stt.Result{Text: resp.Text}, nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []stt.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]stt.Request, len(p.Requests))
	copy(out, p.Requests)
	return out
}
