// Package pipeline resolves the pipeline a focused collection ran on.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/enduro-dash/enduro-dash/internal/collection"
	"github.com/enduro-dash/enduro-dash/internal/observability"
)

const opResolve = "resolve_pipeline"

// ErrInvalidID is returned for pipeline identifiers that are not UUIDs.
var ErrInvalidID = errors.New("pipeline: invalid identifier")

// Fetcher loads a pipeline by identifier.
type Fetcher interface {
	FetchPipeline(ctx context.Context, id string) (collection.Pipeline, error)
}

// Resolver keeps the last resolved pipeline and its own error flag.
type Resolver struct {
	fetcher Fetcher
	logger  *slog.Logger
	metrics *observability.EngineMetrics
	group   singleflight.Group

	mu      sync.Mutex
	result  *collection.Pipeline
	err     bool
	epoch   uint64
	settled uint64
}

// NewResolver wires a resolver over fetcher.
func NewResolver(fetcher Fetcher, logger *slog.Logger, metrics *observability.EngineMetrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: fetcher, logger: logger, metrics: metrics}
}

// Resolve fetches the pipeline and stores it. Concurrent calls for the same
// identifier share one request.
func (r *Resolver) Resolve(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	key := parsed.String()

	r.mu.Lock()
	r.epoch++
	epoch := r.epoch
	r.mu.Unlock()

	tracker := r.metrics.Track(opResolve)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.fetcher.FetchPipeline(ctx, key)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res = <-ch:
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if epoch < r.settled {
		tracker.Discard()
		return nil
	}
	r.settled = epoch
	if res.Err != nil {
		r.err = true
		return tracker.End(fmt.Errorf("pipeline %s: %w", key, res.Err))
	}
	p := res.Val.(collection.Pipeline)
	r.result = &p
	r.err = false
	r.logger.Debug("pipeline resolved", slog.String("pipeline_id", key), slog.Bool("shared", res.Shared))
	return tracker.End(nil)
}

// Reset clears the slot; resolutions still in flight are discarded.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	r.settled = r.epoch
	r.result = nil
	r.err = false
}

// Pipeline returns the last resolved pipeline, or nil.
func (r *Resolver) Pipeline() *collection.Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return nil
	}
	p := *r.result
	return &p
}

// Err reports whether the most recent resolution failed.
func (r *Resolver) Err() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
