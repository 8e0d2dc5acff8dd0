// Package search keeps a filtered, cursor paged view of the remote
// collection list and the focused collection consistent with the server.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/enduro-dash/enduro-dash/internal/collection"
	"github.com/enduro-dash/enduro-dash/internal/observability"
	"github.com/enduro-dash/enduro-dash/internal/transport"
)

const (
	opSearch       = "search"
	opFetchFocused = "fetch_focused"
)

var (
	// ErrInvalidID is returned by FetchFocused for identifiers that are
	// neither numeric nor UUIDs.
	ErrInvalidID = errors.New("search: invalid identifier")
	// ErrNoNextPage is returned when advancing past the last page.
	ErrNoNextPage = errors.New("search: no next page")
	// ErrNoPreviousPage is returned when retreating from the first page.
	ErrNoPreviousPage = errors.New("search: no previous page")
	// ErrStaleResponse reports a response discarded because a newer request
	// settled first or the query changed while it was in flight.
	ErrStaleResponse = errors.New("search: stale response discarded")
)

// Transport performs the remote calls the engine depends on.
type Transport interface {
	SearchCollections(ctx context.Context, params transport.ListParams) (transport.ListResult, error)
	FetchCollection(ctx context.Context, id string) (collection.RawCollection, error)
}

// Resolver loads the entity related to the focused collection.
type Resolver interface {
	Resolve(ctx context.Context, id string) error
	Reset()
}

// Config collects the engine dependencies.
type Config struct {
	Transport Transport
	// Resolver is optional; when set it is invoked with the pipeline of each
	// successfully fetched focused collection.
	Resolver Resolver
	// Normalize reconstructs wire items. Defaults to collection.Normalize.
	Normalize      func(collection.RawCollection) collection.Collection
	Logger         *slog.Logger
	Metrics        *observability.EngineMetrics
	DebounceWindow time.Duration
	AfterFunc      AfterFunc
	Clock          func() time.Time
	// BaseContext is used for work started outside a caller's request, i.e.
	// debounced searches and related-entity resolution.
	BaseContext context.Context
}

// Engine owns the query, pager and result cache. All state is guarded by mu;
// transport calls are made without holding it.
type Engine struct {
	transport Transport
	resolver  Resolver
	normalize func(collection.RawCollection) collection.Collection
	logger    *slog.Logger
	metrics   *observability.EngineMetrics
	clock     func() time.Time
	baseCtx   context.Context
	debouncer *Debouncer

	mu      sync.Mutex
	query   Query
	pager   Pager
	results Results
	// version changes with every query or pager mutation.
	version      uint64
	pageEpoch    uint64
	pageSettled  uint64
	focusEpoch   uint64
	focusSettled uint64
	closed       bool
	wg           sync.WaitGroup
}

// NewEngine constructs an Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Transport == nil {
		return nil, errors.New("search: transport required")
	}
	e := &Engine{
		transport: cfg.Transport,
		resolver:  cfg.Resolver,
		normalize: cfg.Normalize,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		baseCtx:   cfg.BaseContext,
		query:     NewQuery(),
	}
	if e.normalize == nil {
		e.normalize = collection.Normalize
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.baseCtx == nil {
		e.baseCtx = context.Background()
	}
	e.debouncer = NewDebouncer(cfg.DebounceWindow, cfg.AfterFunc, e.runDebounced)
	return e, nil
}

// Close cancels a pending debounced search and waits for background work.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.debouncer.Stop()
	e.wg.Wait()
}

// SetStatus filters by status; nil removes the filter.
func (e *Engine) SetStatus(status *collection.Status) {
	e.mutate(func() { e.query.setStatus(status) })
}

// SetField selects the attribute Text is matched against.
func (e *Engine) SetField(field collection.Field) {
	e.mutate(func() { e.query.setField(field) })
}

// SetText sets the free-text search value.
func (e *Engine) SetText(text string) {
	e.mutate(func() { e.query.setText(text) })
}

// SetDateRange applies a relative creation time shorthand such as "24h" or
// "7d". Unknown values and the empty string remove the bound.
func (e *Engine) SetDateRange(shorthand string) {
	now := e.clock()
	e.mutate(func() { e.query.setDateRange(shorthand, now) })
}

// ResetQuery restores the default filter.
func (e *Engine) ResetQuery() {
	e.mutate(func() { e.query = NewQuery() })
}

// mutate applies a query change and rewinds pagination.
func (e *Engine) mutate(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn()
	e.pager.ResetToFirstPage()
	e.version++
}

// ResetToFirstPage rewinds pagination without touching the query.
func (e *Engine) ResetToFirstPage() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pager.ResetToFirstPage()
	e.version++
}

// AdvanceToNextPage moves to the page after the current one. The caller is
// expected to Search afterwards.
func (e *Engine) AdvanceToNextPage() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.pager.AdvanceToNextPage() {
		return ErrNoNextPage
	}
	e.version++
	return nil
}

// RetreatToPreviousPage moves back to the previously displayed page.
func (e *Engine) RetreatToPreviousPage() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.pager.RetreatToPreviousPage() {
		return ErrNoPreviousPage
	}
	e.version++
	return nil
}

// Search runs the current query against the current cursor. It is a no-op
// while the query is invalid.
func (e *Engine) Search(ctx context.Context) error {
	e.mu.Lock()
	if e.query.Validity == ValidityInvalid {
		e.mu.Unlock()
		e.metrics.Skipped(opSearch)
		return nil
	}
	params := buildListParams(e.query, e.pager.Current())
	version := e.version
	e.pageEpoch++
	epoch := e.pageEpoch
	e.mu.Unlock()

	tracker := e.metrics.Track(opSearch)
	result, err := e.transport.SearchCollections(ctx, params)
	var items []collection.Collection
	if err == nil {
		items = make([]collection.Collection, 0, len(result.Items))
		for _, raw := range result.Items {
			items = append(items, e.normalize(raw))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if epoch < e.pageSettled || version != e.version {
		tracker.Discard()
		e.logger.Debug("discard stale search response", slog.Uint64("epoch", epoch), slog.Uint64("settled", e.pageSettled))
		return ErrStaleResponse
	}
	e.pageSettled = epoch
	if err != nil {
		e.results.fail()
		return tracker.End(fmt.Errorf("search: %w", err))
	}
	e.results.setPage(items)
	e.pager.RecordServerCursor(result.NextCursor)
	return tracker.End(nil)
}

// SearchDebounced schedules a Search after the quiet window. Calls within the
// window collapse into a single search that reads state when it fires.
func (e *Engine) SearchDebounced() {
	e.debouncer.Trigger()
}

func (e *Engine) runDebounced() {
	e.goBackground(func(ctx context.Context) {
		if err := e.Search(ctx); err != nil && !errors.Is(err, ErrStaleResponse) {
			e.logger.Warn("debounced search failed", slog.Any("error", err))
		}
	})
}

// FetchFocused loads a single collection by identifier into the focused
// slot. On success the related pipeline is resolved in the background.
func (e *Engine) FetchFocused(ctx context.Context, id string) error {
	if !isUUID(id) && validate.Var(id, "required,number") != nil {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	e.mu.Lock()
	e.focusEpoch++
	epoch := e.focusEpoch
	e.mu.Unlock()

	tracker := e.metrics.Track(opFetchFocused)
	raw, err := e.transport.FetchCollection(ctx, id)

	e.mu.Lock()
	if epoch < e.focusSettled {
		e.mu.Unlock()
		tracker.Discard()
		return ErrStaleResponse
	}
	e.focusSettled = epoch
	if err != nil {
		e.results.fail()
		e.mu.Unlock()
		return tracker.End(fmt.Errorf("fetch collection %s: %w", id, err))
	}
	c := e.normalize(raw)
	var previous string
	if e.results.focused != nil {
		previous = e.results.focused.Key()
	}
	e.results.setFocused(c)
	e.mu.Unlock()

	if e.resolver != nil && (c.PipelineID == "" || c.Key() != previous) {
		e.resolver.Reset()
	}
	if e.resolver != nil && c.PipelineID != "" {
		pipelineID := c.PipelineID
		e.goBackground(func(ctx context.Context) {
			if err := e.resolver.Resolve(ctx, pipelineID); err != nil {
				e.logger.Info("resolve pipeline", slog.String("pipeline_id", pipelineID), slog.Any("error", err))
			}
		})
	}
	return tracker.End(nil)
}

// ResetFocused clears the focused slot and the error flag. Fetches still in
// flight are discarded when they complete.
func (e *Engine) ResetFocused() {
	e.mu.Lock()
	e.focusEpoch++
	e.focusSettled = e.focusEpoch
	e.results.focused = nil
	e.results.err = false
	e.mu.Unlock()
	if e.resolver != nil {
		e.resolver.Reset()
	}
}

// FocusedID returns the identifier of the focused collection, if any.
func (e *Engine) FocusedID() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.results.focused == nil {
		return "", false
	}
	return e.results.focused.Key(), true
}

// Snapshot returns a consistent copy of query, page, focused record and
// pagination affordances.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.results.snapshot()
	s.Query = e.query.clone()
	s.HasPreviousPage = e.pager.HasPreviousPage()
	s.HasNextPage = e.pager.HasNextPage()
	return s
}

// Query returns a copy of the current filter.
func (e *Engine) Query() Query {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.query.clone()
}

// Page returns the current page of results.
func (e *Engine) Page() []collection.Collection {
	return e.Snapshot().Page
}

// Focused returns the focused collection, or nil.
func (e *Engine) Focused() *collection.Collection {
	return e.Snapshot().Focused
}

// Err reports whether the most recently settled request failed.
func (e *Engine) Err() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.results.err
}

// HasPreviousPage reports whether there is a page before the current one.
func (e *Engine) HasPreviousPage() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pager.HasPreviousPage()
}

// HasNextPage reports whether the server announced a following page.
func (e *Engine) HasNextPage() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pager.HasNextPage()
}

// goBackground runs fn on its own goroutine unless the engine is closed.
func (e *Engine) goBackground(fn func(ctx context.Context)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		fn(e.baseCtx)
	}()
}

func buildListParams(q Query, cursor string) transport.ListParams {
	params := transport.ListParams{Cursor: cursor}
	if q.Status != nil {
		s := *q.Status
		params.Status = &s
	}
	if q.Text != "" {
		switch q.Field {
		case collection.FieldName:
			params.Name = q.Text
		case collection.FieldPipelineID:
			params.PipelineID = q.Text
		case collection.FieldTransferID:
			params.TransferID = q.Text
		case collection.FieldAIPID:
			params.AIPID = q.Text
		case collection.FieldOriginalID:
			params.OriginalID = q.Text
		}
	}
	if q.EarliestCreatedTime != nil {
		t := *q.EarliestCreatedTime
		params.EarliestCreatedTime = &t
	}
	if q.LatestCreatedTime != nil {
		t := *q.LatestCreatedTime
		params.LatestCreatedTime = &t
	}
	return params
}
