// Package invalidate turns collection monitor messages into engine refreshes.
package invalidate

import (
	"context"
	"errors"
	"log/slog"

	"github.com/enduro-dash/enduro-dash/internal/collection"
	"github.com/enduro-dash/enduro-dash/internal/observability"
	"github.com/enduro-dash/enduro-dash/internal/search"
)

// Engine is the part of the search engine the listener drives.
type Engine interface {
	SearchDebounced()
	FocusedID() (string, bool)
	FetchFocused(ctx context.Context, id string) error
}

// Listener consumes monitor messages for one engine.
type Listener struct {
	engine  Engine
	logger  *slog.Logger
	metrics *observability.EngineMetrics
}

// NewListener constructs a Listener. logger and metrics may be nil.
func NewListener(engine Engine, logger *slog.Logger, metrics *observability.EngineMetrics) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{engine: engine, logger: logger, metrics: metrics}
}

// Run handles messages until ctx is done or messages is closed. A closed
// channel is not reopened; Run logs it and returns nil.
func (l *Listener) Run(ctx context.Context, messages <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				l.logger.Info("monitor stream closed")
				return nil
			}
			l.Handle(ctx, msg)
		}
	}
}

// Handle applies a single message. Every created or updated event triggers
// a debounced re-search, whether or not the subject is on the current page.
func (l *Listener) Handle(ctx context.Context, msg []byte) {
	event, err := collection.ParseEvent(msg)
	if err != nil {
		l.metrics.Event("malformed")
		l.logger.Debug("drop monitor message", slog.Any("error", err))
		return
	}
	l.metrics.Event(event.Kind.String())

	switch event.Kind {
	case collection.EventCreated:
		l.engine.SearchDebounced()
	case collection.EventUpdated:
		l.engine.SearchDebounced()
		focused, ok := l.engine.FocusedID()
		if !ok || focused != event.SubjectID {
			return
		}
		if err := l.engine.FetchFocused(ctx, event.SubjectID); err != nil && !errors.Is(err, search.ErrStaleResponse) {
			l.logger.Warn("refresh focused collection",
				slog.String("id", event.SubjectID),
				slog.Any("error", err))
		}
	}
}
