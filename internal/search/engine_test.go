package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enduro-dash/enduro-dash/internal/collection"
	"github.com/enduro-dash/enduro-dash/internal/transport"
)

const validUUID = "3f9a1c52-8a51-4d3e-9f6b-2a7c0b1d4e55"

type listCall struct {
	params transport.ListParams
}

type fakeTransport struct {
	mu         sync.Mutex
	listCalls  []listCall
	pages      map[string]transport.ListResult
	listErr    error
	fetchCalls []string
	records    map[string]collection.RawCollection
	fetchErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		pages:   map[string]transport.ListResult{},
		records: map[string]collection.RawCollection{},
	}
}

func (f *fakeTransport) SearchCollections(ctx context.Context, params transport.ListParams) (transport.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, listCall{params: params})
	if f.listErr != nil {
		return transport.ListResult{}, f.listErr
	}
	return f.pages[params.Cursor], nil
}

func (f *fakeTransport) FetchCollection(ctx context.Context, id string) (collection.RawCollection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, id)
	if f.fetchErr != nil {
		return collection.RawCollection{}, f.fetchErr
	}
	raw, ok := f.records[id]
	if !ok {
		return collection.RawCollection{}, transport.ErrNotFound
	}
	return raw, nil
}

func (f *fakeTransport) calls() []listCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]listCall, len(f.listCalls))
	copy(out, f.listCalls)
	return out
}

func (f *fakeTransport) lastCall(t *testing.T) transport.ListParams {
	t.Helper()
	calls := f.calls()
	require.NotEmpty(t, calls)
	return calls[len(calls)-1].params
}

type fakeTimer struct {
	clock   *fakeClock
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

// fakeClock collects scheduled functions; Fire runs those still active.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	window []time.Duration
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, fn: f}
	c.timers = append(c.timers, timer)
	c.window = append(c.window, d)
	return timer
}

func (c *fakeClock) Fire() int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, timer := range c.timers {
		if !timer.stopped {
			timer.stopped = true
			due = append(due, timer)
		}
	}
	c.mu.Unlock()
	for _, timer := range due {
		timer.fn()
	}
	return len(due)
}

type stubResolver struct {
	mu       sync.Mutex
	resolved []string
	resets   int
	current  string
	failed   bool
	err      error
}

func (s *stubResolver) Resolve(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, id)
	if s.err != nil {
		s.failed = true
		return s.err
	}
	s.current = id
	s.failed = false
	return nil
}

func (s *stubResolver) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.current = ""
	s.failed = false
}

func (s *stubResolver) state() (current string, failed bool, resets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.failed, s.resets
}

func newTestEngine(t *testing.T, tr *fakeTransport, resolver Resolver) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	cfg := Config{
		Transport: tr,
		AfterFunc: clock.AfterFunc,
		Clock: func() time.Time {
			return time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC)
		},
	}
	if resolver != nil {
		cfg.Resolver = resolver
	}
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, clock
}

func raw(id uint) collection.RawCollection {
	return collection.RawCollection{ID: id, Status: "done", CreatedAt: "2024-06-01T00:00:00Z"}
}

func ids(items []collection.Collection) []uint {
	out := make([]uint, 0, len(items))
	for _, c := range items {
		out = append(out, c.ID)
	}
	return out
}

func TestNewEngineRequiresTransport(t *testing.T) {
	_, err := NewEngine(Config{})
	require.Error(t, err)
}

func TestSearchPagingScenario(t *testing.T) {
	tr := newFakeTransport()
	tr.pages[""] = transport.ListResult{Items: []collection.RawCollection{raw(1), raw(2)}, NextCursor: "c1"}
	tr.pages["c1"] = transport.ListResult{Items: []collection.RawCollection{raw(3)}}
	engine, _ := newTestEngine(t, tr, nil)
	ctx := context.Background()

	engine.SetField(collection.FieldName)
	engine.SetText("acme")
	require.NoError(t, engine.Search(ctx))

	first := tr.lastCall(t)
	assert.Equal(t, "acme", first.Name)
	assert.Empty(t, first.Cursor)
	assert.Equal(t, []uint{1, 2}, ids(engine.Page()))
	assert.True(t, engine.HasNextPage())
	assert.False(t, engine.HasPreviousPage())

	require.NoError(t, engine.AdvanceToNextPage())
	require.NoError(t, engine.Search(ctx))
	assert.Equal(t, "c1", tr.lastCall(t).Cursor)
	assert.Equal(t, []uint{3}, ids(engine.Page()))
	assert.False(t, engine.HasNextPage())
	assert.True(t, engine.HasPreviousPage())
	assert.ErrorIs(t, engine.AdvanceToNextPage(), ErrNoNextPage)

	require.NoError(t, engine.RetreatToPreviousPage())
	assert.False(t, engine.HasPreviousPage())
	require.NoError(t, engine.Search(ctx))
	assert.Empty(t, tr.lastCall(t).Cursor)
	assert.Equal(t, []uint{1, 2}, ids(engine.Page()))
	assert.ErrorIs(t, engine.RetreatToPreviousPage(), ErrNoPreviousPage)
}

func TestBuildListParamsMapsExactlyOneField(t *testing.T) {
	status := collection.StatusQueued
	earliest := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		field collection.Field
		check func(p transport.ListParams) string
	}{
		{collection.FieldName, func(p transport.ListParams) string { return p.Name }},
		{collection.FieldPipelineID, func(p transport.ListParams) string { return p.PipelineID }},
		{collection.FieldTransferID, func(p transport.ListParams) string { return p.TransferID }},
		{collection.FieldAIPID, func(p transport.ListParams) string { return p.AIPID }},
		{collection.FieldOriginalID, func(p transport.ListParams) string { return p.OriginalID }},
	}
	for _, tc := range cases {
		t.Run(string(tc.field), func(t *testing.T) {
			q := Query{Field: tc.field, Text: validUUID, Status: &status, EarliestCreatedTime: &earliest}
			p := buildListParams(q, "")
			assert.Equal(t, validUUID, tc.check(p))
			set := 0
			for _, v := range []string{p.Name, p.PipelineID, p.TransferID, p.AIPID, p.OriginalID} {
				if v != "" {
					set++
				}
			}
			assert.Equal(t, 1, set)
			require.NotNil(t, p.Status)
			assert.Equal(t, status, *p.Status)
			require.NotNil(t, p.EarliestCreatedTime)
			assert.Nil(t, p.LatestCreatedTime)
			assert.Empty(t, p.Cursor)
		})
	}
}

func TestBuildListParamsOmitsEmptyText(t *testing.T) {
	p := buildListParams(Query{Field: collection.FieldName}, "c9")
	assert.Equal(t, transport.ListParams{Cursor: "c9"}, p)
}

func TestInvalidIdentifierBlocksSearch(t *testing.T) {
	tr := newFakeTransport()
	engine, _ := newTestEngine(t, tr, nil)

	engine.SetField(collection.FieldPipelineID)
	engine.SetText("not-a-uuid")
	assert.Equal(t, ValidityInvalid, engine.Query().Validity)

	before := engine.Snapshot()
	require.NoError(t, engine.Search(context.Background()))
	assert.Empty(t, tr.calls())
	assert.Equal(t, before, engine.Snapshot())

	engine.SetText(validUUID)
	assert.Equal(t, ValidityValid, engine.Query().Validity)
	require.NoError(t, engine.Search(context.Background()))
	assert.Equal(t, validUUID, tr.lastCall(t).PipelineID)

	cases := []struct {
		text     string
		validity Validity
	}{
		{strings.ToUpper(validUUID), ValidityValid},
		{"3f9A1C52-8a51-4D3E-9f6b-2A7C0B1D4E55", ValidityValid},
		{strings.ReplaceAll(validUUID, "-", ""), ValidityInvalid},
		{"{" + validUUID + "}", ValidityInvalid},
		{"urn:uuid:" + validUUID, ValidityInvalid},
		{"", ValidityInvalid},
	}
	for _, tc := range cases {
		engine.SetText(tc.text)
		assert.Equal(t, tc.validity, engine.Query().Validity, tc.text)
	}

	engine.SetText(strings.ToUpper(validUUID))
	require.NoError(t, engine.Search(context.Background()))
	assert.Equal(t, strings.ToUpper(validUUID), tr.lastCall(t).PipelineID)
}

func TestValidityOnlyRecomputedForFieldAndText(t *testing.T) {
	tr := newFakeTransport()
	engine, _ := newTestEngine(t, tr, nil)
	assert.Equal(t, ValidityUnknown, engine.Query().Validity)

	engine.SetText("anything")
	assert.Equal(t, ValidityValid, engine.Query().Validity)

	engine.SetField(collection.FieldAIPID)
	assert.Equal(t, ValidityInvalid, engine.Query().Validity)

	status := collection.StatusDone
	engine.SetStatus(&status)
	engine.SetDateRange("7d")
	assert.Equal(t, ValidityInvalid, engine.Query().Validity)

	engine.SetField(collection.FieldOriginalID)
	assert.Equal(t, ValidityValid, engine.Query().Validity)
}

func TestQueryChangesResetPagination(t *testing.T) {
	status := collection.StatusError
	mutations := map[string]func(e *Engine){
		"status": func(e *Engine) { e.SetStatus(&status) },
		"field":  func(e *Engine) { e.SetField(collection.FieldOriginalID) },
		"text":   func(e *Engine) { e.SetText("other") },
		"date":   func(e *Engine) { e.SetDateRange("24h") },
		"reset":  func(e *Engine) { e.ResetQuery() },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tr := newFakeTransport()
			tr.pages[""] = transport.ListResult{Items: []collection.RawCollection{raw(1)}, NextCursor: "c1"}
			tr.pages["c1"] = transport.ListResult{Items: []collection.RawCollection{raw(2)}, NextCursor: "c2"}
			engine, _ := newTestEngine(t, tr, nil)
			ctx := context.Background()

			require.NoError(t, engine.Search(ctx))
			require.NoError(t, engine.AdvanceToNextPage())
			require.NoError(t, engine.Search(ctx))
			require.True(t, engine.HasPreviousPage())

			mutate(engine)

			assert.False(t, engine.HasPreviousPage())
			assert.False(t, engine.HasNextPage())
			require.NoError(t, engine.Search(ctx))
			assert.Empty(t, tr.lastCall(t).Cursor)
		})
	}
}

func TestSetDateRange(t *testing.T) {
	tr := newFakeTransport()
	engine, _ := newTestEngine(t, tr, nil)

	engine.SetDateRange("6h")
	q := engine.Query()
	require.NotNil(t, q.EarliestCreatedTime)
	assert.Equal(t, time.Date(2024, 6, 15, 7, 45, 0, 0, time.UTC), *q.EarliestCreatedTime)
	assert.Nil(t, q.LatestCreatedTime)
	assert.Equal(t, "6h", q.DateRange)

	engine.SetDateRange("3d")
	q = engine.Query()
	require.NotNil(t, q.EarliestCreatedTime)
	assert.Equal(t, time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), *q.EarliestCreatedTime)

	engine.SetDateRange("2w")
	q = engine.Query()
	assert.Nil(t, q.EarliestCreatedTime)
	assert.Empty(t, q.DateRange)

	engine.SetDateRange("30d")
	engine.SetDateRange("")
	assert.Nil(t, engine.Query().EarliestCreatedTime)
}

func TestResetQueryRestoresDefaults(t *testing.T) {
	tr := newFakeTransport()
	engine, _ := newTestEngine(t, tr, nil)
	status := collection.StatusPending
	engine.SetStatus(&status)
	engine.SetField(collection.FieldTransferID)
	engine.SetText("x")
	engine.SetDateRange("14d")

	engine.ResetQuery()

	assert.Equal(t, NewQuery(), engine.Query())
	assert.Equal(t, collection.FieldName, engine.Query().Field)
}

func TestSearchFailurePreservesLastGoodPage(t *testing.T) {
	tr := newFakeTransport()
	tr.pages[""] = transport.ListResult{Items: []collection.RawCollection{raw(1), raw(2)}, NextCursor: "c1"}
	engine, _ := newTestEngine(t, tr, nil)
	ctx := context.Background()
	require.NoError(t, engine.Search(ctx))
	before := engine.Snapshot()

	tr.listErr = transport.ErrTransport
	err := engine.Search(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, transport.ErrTransport))

	after := engine.Snapshot()
	assert.Equal(t, before.Page, after.Page)
	assert.True(t, after.Error)
	assert.True(t, after.HasNextPage)

	tr.listErr = nil
	require.NoError(t, engine.Search(ctx))
	assert.False(t, engine.Err())
}

func TestSearchDebouncedCoalesces(t *testing.T) {
	tr := newFakeTransport()
	engine, clock := newTestEngine(t, tr, nil)

	engine.SearchDebounced()
	engine.SetText("first")
	engine.SearchDebounced()
	engine.SetText("last")
	engine.SearchDebounced()

	assert.Empty(t, tr.calls())
	assert.Equal(t, 1, clock.Fire())
	require.Eventually(t, func() bool { return len(tr.calls()) == 1 }, time.Second, time.Millisecond)

	engine.Close()
	calls := tr.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "last", calls[0].params.Name)
	assert.Equal(t, DefaultDebounceWindow, clock.window[0])
}

type heldSearch struct {
	params  transport.ListParams
	release chan transport.ListResult
}

// holdingTransport parks every search until the test releases it, so the
// order in which responses settle is under the test's control.
type holdingTransport struct {
	calls chan heldSearch
}

func (h *holdingTransport) SearchCollections(ctx context.Context, params transport.ListParams) (transport.ListResult, error) {
	call := heldSearch{params: params, release: make(chan transport.ListResult)}
	h.calls <- call
	return <-call.release, nil
}

func (h *holdingTransport) FetchCollection(ctx context.Context, id string) (collection.RawCollection, error) {
	return collection.RawCollection{}, transport.ErrNotFound
}

func newHoldingEngine(t *testing.T) (*Engine, *holdingTransport) {
	t.Helper()
	tr := &holdingTransport{calls: make(chan heldSearch)}
	engine, err := NewEngine(Config{Transport: tr, AfterFunc: (&fakeClock{}).AfterFunc})
	require.NoError(t, err)
	t.Cleanup(engine.Close)
	return engine, tr
}

func TestOlderSearchResponseIsDiscarded(t *testing.T) {
	engine, tr := newHoldingEngine(t)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- engine.Search(ctx) }()
	older := <-tr.calls

	second := make(chan error, 1)
	go func() { second <- engine.Search(ctx) }()
	newer := <-tr.calls

	newer.release <- transport.ListResult{Items: []collection.RawCollection{raw(2)}, NextCursor: "n2"}
	require.NoError(t, <-second)

	older.release <- transport.ListResult{Items: []collection.RawCollection{raw(1)}, NextCursor: "n1"}
	require.ErrorIs(t, <-first, ErrStaleResponse)

	assert.Equal(t, []uint{2}, ids(engine.Page()))
	require.NoError(t, engine.AdvanceToNextPage())

	third := make(chan error, 1)
	go func() { third <- engine.Search(ctx) }()
	call := <-tr.calls
	assert.Equal(t, "n2", call.params.Cursor)
	call.release <- transport.ListResult{}
	require.NoError(t, <-third)
}

func TestResponseForChangedQueryIsDiscarded(t *testing.T) {
	engine, tr := newHoldingEngine(t)

	done := make(chan error, 1)
	go func() { done <- engine.Search(context.Background()) }()
	call := <-tr.calls

	engine.SetText("changed")
	call.release <- transport.ListResult{Items: []collection.RawCollection{raw(1)}, NextCursor: "c1"}
	require.ErrorIs(t, <-done, ErrStaleResponse)
	assert.Empty(t, engine.Page())
	assert.False(t, engine.HasNextPage())
}

func TestFetchFocused(t *testing.T) {
	tr := newFakeTransport()
	pid := validUUID
	rec := raw(7)
	rec.PipelineID = &pid
	tr.records["7"] = rec
	resolver := &stubResolver{}
	engine, _ := newTestEngine(t, tr, resolver)

	require.NoError(t, engine.FetchFocused(context.Background(), "7"))
	focused := engine.Focused()
	require.NotNil(t, focused)
	assert.Equal(t, uint(7), focused.ID)
	id, ok := engine.FocusedID()
	assert.True(t, ok)
	assert.Equal(t, "7", id)

	engine.Close()
	resolver.mu.Lock()
	assert.Equal(t, []string{validUUID}, resolver.resolved)
	resolver.mu.Unlock()
}

func TestFetchFocusedRejectsMalformedID(t *testing.T) {
	tr := newFakeTransport()
	engine, _ := newTestEngine(t, tr, nil)

	for _, id := range []string{"", "abc", "-1", "1.5", strings.ReplaceAll(validUUID, "-", ""), "{" + validUUID + "}"} {
		err := engine.FetchFocused(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidID, id)
	}
	assert.Empty(t, tr.fetchCalls)

	tr.records[validUUID] = raw(9)
	require.NoError(t, engine.FetchFocused(context.Background(), validUUID))

	upper := strings.ToUpper(validUUID)
	tr.records[upper] = raw(10)
	require.NoError(t, engine.FetchFocused(context.Background(), upper))
	assert.Equal(t, uint(10), engine.Focused().ID)
}

func TestFetchFocusedFailureKeepsRecord(t *testing.T) {
	tr := newFakeTransport()
	tr.records["7"] = raw(7)
	engine, _ := newTestEngine(t, tr, nil)
	ctx := context.Background()
	require.NoError(t, engine.FetchFocused(ctx, "7"))

	err := engine.FetchFocused(ctx, "8")
	require.ErrorIs(t, err, transport.ErrNotFound)
	assert.True(t, engine.Err())
	require.NotNil(t, engine.Focused())
	assert.Equal(t, uint(7), engine.Focused().ID)
}

func TestFocusedFailureDoesNotClearPage(t *testing.T) {
	tr := newFakeTransport()
	tr.pages[""] = transport.ListResult{Items: []collection.RawCollection{raw(1)}}
	engine, _ := newTestEngine(t, tr, nil)
	ctx := context.Background()
	require.NoError(t, engine.Search(ctx))

	require.Error(t, engine.FetchFocused(ctx, "404"))
	assert.True(t, engine.Err())
	assert.Equal(t, []uint{1}, ids(engine.Page()))
}

func TestResetFocused(t *testing.T) {
	tr := newFakeTransport()
	tr.records["7"] = raw(7)
	resolver := &stubResolver{}
	engine, _ := newTestEngine(t, tr, resolver)
	ctx := context.Background()
	require.NoError(t, engine.FetchFocused(ctx, "7"))
	_ = engine.FetchFocused(ctx, "8")
	require.True(t, engine.Err())

	_, _, before := resolver.state()
	engine.ResetFocused()
	assert.Nil(t, engine.Focused())
	assert.False(t, engine.Err())
	_, ok := engine.FocusedID()
	assert.False(t, ok)
	_, _, after := resolver.state()
	assert.Equal(t, before+1, after)
}

func TestFocusChangeClearsPipeline(t *testing.T) {
	tr := newFakeTransport()
	pid := validUUID
	withPipeline := raw(1)
	withPipeline.PipelineID = &pid
	tr.records["1"] = withPipeline
	tr.records["2"] = raw(2)
	resolver := &stubResolver{}
	engine, _ := newTestEngine(t, tr, resolver)
	ctx := context.Background()

	require.NoError(t, engine.FetchFocused(ctx, "1"))
	require.Eventually(t, func() bool {
		current, _, _ := resolver.state()
		return current == validUUID
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, engine.FetchFocused(ctx, "2"))
	current, _, _ := resolver.state()
	assert.Empty(t, current)
	assert.Equal(t, uint(2), engine.Focused().ID)
}

func TestRefetchSameFocusKeepsPipeline(t *testing.T) {
	tr := newFakeTransport()
	pid := validUUID
	rec := raw(1)
	rec.PipelineID = &pid
	tr.records["1"] = rec
	resolver := &stubResolver{}
	engine, _ := newTestEngine(t, tr, resolver)
	ctx := context.Background()

	require.NoError(t, engine.FetchFocused(ctx, "1"))
	_, _, resets := resolver.state()
	require.NoError(t, engine.FetchFocused(ctx, "1"))
	engine.Close()

	_, _, after := resolver.state()
	assert.Equal(t, resets, after)
}

func TestResolverFailureDoesNotSetEngineError(t *testing.T) {
	tr := newFakeTransport()
	pid := validUUID
	rec := raw(7)
	rec.PipelineID = &pid
	tr.records["7"] = rec
	resolver := &stubResolver{err: errors.New("pipeline unavailable")}
	engine, _ := newTestEngine(t, tr, resolver)

	require.NoError(t, engine.FetchFocused(context.Background(), "7"))
	engine.Close()

	_, failed, _ := resolver.state()
	assert.True(t, failed)
	assert.False(t, engine.Err())
	require.NotNil(t, engine.Focused())
	assert.Equal(t, uint(7), engine.Focused().ID)
}
