// Package service holds the per-service protocol handlers of the
// streaming API: building subscription requests and decoding pushes.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/common/model"
	"github.com/YaganovValera/market-stream/services/streamer/internal/amtclient"
	"github.com/YaganovValera/market-stream/services/streamer/internal/sink"
)

// ErrUnsupportedService: no client is registered for the requested type.
var ErrUnsupportedService = errors.New("service: unsupported service type")

// ErrDecode: a pushed frame is not JSON.
var ErrDecode = errors.New("service: decode frame")

// Type is the streaming service name used on the wire.
type Type string

const (
	TypeQuote Type = "QUOTE"
)

// Client handles one streaming service.
type Client interface {
	Type() Type
	// Request builds the SUBS frame for this service.
	Request() ([]byte, error)
	// HandleMessage decodes one inbound frame, emits every entity and
	// returns them. Frames without data yield nothing.
	HandleMessage(ctx context.Context, raw []byte) ([]*model.Entity, error)
}

// Factory builds a client bound to a session's credentials.
type Factory func(creds amtclient.Credentials) Client

// Registry maps service types to client factories.
type Registry struct {
	factories map[Type]Factory
}

// Deps are the collaborators shared by all clients.
type Deps struct {
	Quote   QuoteConfig
	Emitter sink.Emitter
	Log     *logger.Logger
}

// NewRegistry registers every known service client.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{factories: make(map[Type]Factory)}
	r.Register(TypeQuote, func(creds amtclient.Credentials) Client {
		return NewQuoteClient(deps.Quote, creds, deps.Emitter, deps.Log)
	})
	return r
}

// Register adds or replaces the factory for t.
func (r *Registry) Register(t Type, f Factory) {
	r.factories[t] = f
}

// Client returns a client of type t for creds.
func (r *Registry) Client(t Type, creds amtclient.Credentials) (Client, error) {
	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedService, t)
	}
	return f(creds), nil
}
