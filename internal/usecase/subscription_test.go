package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"FinFeed/internal/domain/models"
	"FinFeed/internal/middleware"
	"FinFeed/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollResult struct {
	res models.Result[models.Quote]
	err error
}

// fakeSource replays results in order and repeats the last one.
type fakeSource struct {
	mu      sync.Mutex
	results []pollResult
	calls   int
	cached  *models.Result[models.Quote]
}

func (f *fakeSource) RefreshQuote(_ context.Context, symbol string) (models.Result[models.Quote], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return models.Result[models.Quote]{}, errors.New("no data")
	}
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	r := f.results[i]
	r.res.Data.Symbol = symbol
	return r.res, r.err
}

func (f *fakeSource) CachedQuote(context.Context, string) (models.Result[models.Quote], bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cached == nil {
		return models.Result[models.Quote]{}, false
	}
	return *f.cached, true
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fresh(price float64) pollResult {
	return pollResult{res: models.Result[models.Quote]{Data: models.Quote{Price: price, Volume: 1}, Meta: models.Meta{Source: "a"}}}
}

func stale(price float64) pollResult {
	r := fresh(price)
	r.res.Meta.Stale = true
	return r
}

func failed() pollResult {
	return pollResult{err: errors.New("all sources failed")}
}

type recorder struct {
	mu      sync.Mutex
	updates []models.QuoteUpdate
}

func (r *recorder) On(u models.QuoteUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func (r *recorder) Last() models.QuoteUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func TestSubscriptionManager_OneLoopPerSymbol(t *testing.T) {
	src := &fakeSource{results: []pollResult{fresh(100)}}
	m := NewSubscriptionManager(src, metrics.Noop{}, WithPollInterval(5*time.Millisecond))
	defer m.Close()

	var r1, r2, r3 recorder
	sub1, unsub1, err := m.Subscribe("aapl", r1.On)
	require.NoError(t, err)
	_, unsub2, err := m.Subscribe("AAPL", r2.On)
	require.NoError(t, err)
	_, unsub3, err := m.Subscribe("MSFT", r3.On)
	require.NoError(t, err)

	assert.Equal(t, "AAPL", sub1.Symbol)
	assert.NotEmpty(t, sub1.ID)
	assert.Equal(t, 2, m.ActiveLoops())
	assert.Equal(t, map[string]int{"AAPL": 2, "MSFT": 1}, m.Symbols())

	require.Eventually(t, func() bool { return r1.Len() > 0 && r2.Len() > 0 && r3.Len() > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, "AAPL", r1.Last().Quote.Symbol)
	assert.Equal(t, "MSFT", r3.Last().Quote.Symbol)

	unsub1()
	assert.Equal(t, 2, m.ActiveLoops())
	unsub2()
	assert.Equal(t, 1, m.ActiveLoops())
	assert.Equal(t, []string{"MSFT"}, m.SortedSymbols())

	unsub2()
	unsub1()
	assert.Equal(t, 1, m.ActiveLoops())

	unsub3()
	assert.Zero(t, m.ActiveLoops())
}

func TestSubscriptionManager_StoppedLoopStopsPolling(t *testing.T) {
	src := &fakeSource{results: []pollResult{fresh(100)}}
	m := NewSubscriptionManager(src, metrics.Noop{}, WithPollInterval(2*time.Millisecond))
	defer m.Close()

	_, unsub, err := m.Subscribe("AAPL", func(models.QuoteUpdate) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return src.Calls() >= 2 }, time.Second, time.Millisecond)

	unsub()
	time.Sleep(10 * time.Millisecond)
	calls := src.Calls()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, src.Calls())
}

func TestSubscriptionManager_ReplaysCachedQuoteOnEverySubscribe(t *testing.T) {
	src := &fakeSource{
		results: []pollResult{failed()},
		cached: &models.Result[models.Quote]{
			Data: models.Quote{Symbol: "AAPL", Price: 150.25},
			Meta: models.Meta{Source: "fmp", Cached: true},
		},
	}
	m := NewSubscriptionManager(src, metrics.Noop{}, WithPollInterval(time.Hour))
	defer m.Close()

	var first recorder
	_, unsub, err := m.Subscribe("AAPL", first.On)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return first.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 150.25, first.Last().Quote.Price)
	assert.True(t, first.Last().Meta.Cached)
	unsub()

	var second recorder
	_, unsub, err = m.Subscribe("AAPL", second.On)
	require.NoError(t, err)
	defer unsub()
	require.Eventually(t, func() bool { return second.Len() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "fmp", second.Last().Meta.Source)
}

func TestSubscriptionManager_BackoffGrowsAndResets(t *testing.T) {
	src := &fakeSource{results: []pollResult{failed(), failed(), stale(99), failed(), fresh(100), failed()}}

	delays := make(chan time.Duration, 16)
	m := NewSubscriptionManager(src, metrics.Noop{},
		WithPollInterval(time.Millisecond),
		WithBackoff(2, 5*time.Millisecond),
		withDelayObserver(func(_ string, d time.Duration) {
			select {
			case delays <- d:
			default:
			}
		}),
	)
	defer m.Close()

	_, unsub, err := m.Subscribe("AAPL", func(models.QuoteUpdate) {})
	require.NoError(t, err)
	defer unsub()

	want := []time.Duration{
		2 * time.Millisecond,
		4 * time.Millisecond,
		5 * time.Millisecond,
		5 * time.Millisecond,
		time.Millisecond,
		2 * time.Millisecond,
	}
	for i, w := range want {
		select {
		case d := <-delays:
			assert.Equal(t, w, d, "tick %d", i)
		case <-time.After(time.Second):
			t.Fatalf("tick %d not observed", i)
		}
	}
}

func TestSubscriptionManager_StaleValueIsStillBroadcast(t *testing.T) {
	src := &fakeSource{results: []pollResult{stale(99)}}
	m := NewSubscriptionManager(src, metrics.Noop{}, WithPollInterval(time.Hour))
	defer m.Close()

	var r recorder
	_, unsub, err := m.Subscribe("AAPL", r.On)
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { return r.Len() == 1 }, time.Second, time.Millisecond)
	assert.True(t, r.Last().Meta.Stale)
}

type sinkRecorder struct {
	mu     sync.Mutex
	quotes []models.Quote
}

func (s *sinkRecorder) Process(_ context.Context, q *models.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, *q)
	return nil
}

func (s *sinkRecorder) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quotes)
}

func TestSubscriptionManager_SinkGetsOnlyFreshQuotes(t *testing.T) {
	src := &fakeSource{results: []pollResult{stale(99), fresh(100)}}
	sink := &sinkRecorder{}
	m := NewSubscriptionManager(src, metrics.Noop{}, WithPollInterval(time.Millisecond), WithQuoteSink(sink))
	defer m.Close()

	_, unsub, err := m.Subscribe("AAPL", func(models.QuoteUpdate) {})
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { return sink.Len() > 0 }, time.Second, time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, q := range sink.quotes {
		assert.Equal(t, 100.0, q.Price)
	}
}

func TestSubscriptionManager_SlowSubscriberSeesLatest(t *testing.T) {
	src := &fakeSource{}
	m := NewSubscriptionManager(src, metrics.Noop{}, WithPollInterval(time.Hour))
	defer m.Close()

	release := make(chan struct{})
	var r recorder
	_, unsub, err := m.Subscribe("AAPL", func(u models.QuoteUpdate) {
		<-release
		r.On(u)
	})
	require.NoError(t, err)
	defer unsub()

	m.mu.Lock()
	loop := m.loops["AAPL"]
	m.mu.Unlock()

	for i := 1; i <= 5; i++ {
		m.broadcast(loop, models.QuoteUpdate{Quote: models.Quote{Price: float64(i)}})
		time.Sleep(time.Millisecond)
	}
	close(release)

	require.Eventually(t, func() bool { return r.Len() >= 1 && r.Last().Quote.Price == 5 }, time.Second, time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 1; i < len(r.updates); i++ {
		assert.Greater(t, r.updates[i].Quote.Price, r.updates[i-1].Quote.Price)
	}
}

func TestSubscriptionManager_Errors(t *testing.T) {
	m := NewSubscriptionManager(&fakeSource{}, metrics.Noop{})

	_, _, err := m.Subscribe(" ", func(models.QuoteUpdate) {})
	assert.ErrorIs(t, err, models.ErrInvalidSymbol)

	_, _, err = m.Subscribe("AAPL", nil)
	assert.Error(t, err)

	m.Close()
	_, _, err = m.Subscribe("AAPL", func(models.QuoteUpdate) {})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

// gatedCacheSource blocks CachedQuote for one symbol until release is closed.
type gatedCacheSource struct {
	fakeSource
	symbol  string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCacheSource) CachedQuote(ctx context.Context, symbol string) (models.Result[models.Quote], bool) {
	if symbol == g.symbol {
		close(g.entered)
		<-g.release
	}
	return g.fakeSource.CachedQuote(ctx, symbol)
}

func TestSubscriptionManager_SlowCacheLookupDoesNotBlockOtherSymbols(t *testing.T) {
	src := &gatedCacheSource{
		fakeSource: fakeSource{results: []pollResult{fresh(100)}},
		symbol:     "SLOW",
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	m := NewSubscriptionManager(src, metrics.Noop{}, WithPollInterval(time.Hour))
	defer m.Close()

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, unsub, err := m.Subscribe("SLOW", func(models.QuoteUpdate) {})
		if err == nil {
			unsub()
		}
	}()
	<-src.entered

	start := time.Now()
	_, unsub, err := m.Subscribe("MSFT", func(models.QuoteUpdate) {})
	require.NoError(t, err)
	defer unsub()
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 1, m.ActiveLoops())

	close(src.release)
	<-slowDone
}

// blockingSource holds every RefreshQuote until release is closed, ignoring ctx.
type blockingSource struct {
	fakeSource
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSource) RefreshQuote(ctx context.Context, symbol string) (models.Result[models.Quote], error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.fakeSource.RefreshQuote(ctx, symbol)
}

func TestSubscriptionManager_FetchFinishingAfterLastUnsubscribeIsDiscarded(t *testing.T) {
	r := fresh(100)
	r.res.Data.Timestamp = time.Now()
	src := &blockingSource{
		fakeSource: fakeSource{results: []pollResult{r}},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	sink := &sinkRecorder{}
	m := NewSubscriptionManager(src, metrics.Noop{}, WithPollInterval(time.Millisecond), WithQuoteSink(sink))
	defer m.Close()

	var rec recorder
	_, unsub, err := m.Subscribe("AAPL", rec.On)
	require.NoError(t, err)
	<-src.entered

	unsub()
	close(src.release)

	assert.Never(t, func() bool { return rec.Len() > 0 || sink.Len() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, 1, src.Calls())
	assert.Zero(t, m.ActiveLoops())
}

// gatedProc is a sink backend that does not return until gate is closed.
type gatedProc struct {
	gate    chan struct{}
	entered atomic.Int32
}

func (g *gatedProc) Process(context.Context, *models.Quote) error {
	g.entered.Add(1)
	<-g.gate
	return nil
}

func (g *gatedProc) ProcessBatch(context.Context, []*models.Quote) error {
	g.entered.Add(1)
	<-g.gate
	return nil
}

func TestSubscriptionManager_SlowSinkDoesNotSlowPolling(t *testing.T) {
	proc := &gatedProc{gate: make(chan struct{})}
	pipe := middleware.NewRealtimePipeline(proc, metrics.Noop{},
		middleware.WithMaxRPS(0),
		middleware.WithBatch(1, time.Millisecond),
	)
	pipe.Start(context.Background())
	defer pipe.Stop()
	defer close(proc.gate)

	r := fresh(100)
	r.res.Data.Timestamp = time.Now()
	src := &fakeSource{results: []pollResult{r}}
	m := NewSubscriptionManager(src, metrics.Noop{}, WithPollInterval(5*time.Millisecond), WithQuoteSink(pipe))
	defer m.Close()

	_, unsub, err := m.Subscribe("AAPL", func(models.QuoteUpdate) {})
	require.NoError(t, err)
	defer unsub()

	require.Eventually(t, func() bool { return src.Calls() >= 10 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, proc.entered.Load())
}

func TestWithBackoff_IgnoresFactorThatCannotGrow(t *testing.T) {
	for _, f := range []float64{0, 0.5, 1} {
		m := NewSubscriptionManager(&fakeSource{}, metrics.Noop{}, WithBackoff(f, time.Minute))
		assert.Equal(t, 2.0, m.factor, "factor %v", f)
	}
	m := NewSubscriptionManager(&fakeSource{}, metrics.Noop{}, WithBackoff(1.5, time.Minute))
	assert.Equal(t, 1.5, m.factor)
}
