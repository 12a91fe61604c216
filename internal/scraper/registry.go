// Package scraper defines the handler contract for the closed set of scraper
// kinds and the registry the orchestrator dispatches through.
package scraper

import (
	"context"
	"fmt"

	"github.com/Elviszyje/gpw-trading-advisor-sub001/internal/domain"
)

// Stats are the structured counts every handler reports. Handlers return them
// directly; nothing in the pipeline parses process output.
type Stats struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
}

// Handler runs one collection pass for its kind. config is the schedule's
// scraper_config, passed verbatim. A returned error marks the execution
// failed; Stats may still carry partial counts.
type Handler interface {
	Run(ctx context.Context, config map[string]any) (Stats, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, config map[string]any) (Stats, error)

func (f HandlerFunc) Run(ctx context.Context, config map[string]any) (Stats, error) {
	return f(ctx, config)
}

// Registry maps each ScraperKind to its handler. It is populated once at
// startup and read-only afterwards.
type Registry struct {
	handlers map[domain.ScraperKind]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[domain.ScraperKind]Handler)}
}

func (r *Registry) Register(kind domain.ScraperKind, h Handler) *Registry {
	r.handlers[kind] = h
	return r
}

// Lookup returns the handler for kind. A kind outside the closed enum, or one
// with no registered handler, is a configuration error.
func (r *Registry) Lookup(kind domain.ScraperKind) (Handler, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownScraperKind, kind)
	}
	h, ok := r.handlers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no handler registered for %q", domain.ErrUnknownScraperKind, kind)
	}
	return h, nil
}

// Kinds lists the registered kinds, for status displays.
func (r *Registry) Kinds() []domain.ScraperKind {
	kinds := make([]domain.ScraperKind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	return kinds
}
