package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"FinFeed/internal/domain/models"
	drepo "FinFeed/internal/domain/repository"
	"FinFeed/pkg/logger"
	"FinFeed/pkg/util"

	"github.com/google/uuid"
)

// ErrManagerClosed is returned by Subscribe after Close.
var ErrManagerClosed = errors.New("subscription manager closed")

// QuoteSource is what poll loops read from. MarketData implements it.
type QuoteSource interface {
	RefreshQuote(ctx context.Context, symbol string) (models.Result[models.Quote], error)
	CachedQuote(ctx context.Context, symbol string) (models.Result[models.Quote], bool)
}

// QuoteSink receives every fresh polled quote. Process runs on the poll loop
// and must hand the quote off rather than wait on downstream I/O.
type QuoteSink interface {
	Process(ctx context.Context, q *models.Quote) error
}

// UpdateFunc is called on the subscriber's own goroutine.
type UpdateFunc func(models.QuoteUpdate)

// Subscription identifies one registered callback.
type Subscription struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
}

type subscriber struct {
	id      string
	fn      UpdateFunc
	mailbox chan models.QuoteUpdate
	done    chan struct{}
	log     *logger.Logger
}

func newSubscriber(fn UpdateFunc, log *logger.Logger) *subscriber {
	return &subscriber{
		id:      uuid.NewString(),
		fn:      fn,
		mailbox: make(chan models.QuoteUpdate, 1),
		done:    make(chan struct{}),
		log:     log,
	}
}

// offer replaces any undelivered update with u.
func (s *subscriber) offer(u models.QuoteUpdate) {
	for {
		select {
		case s.mailbox <- u:
			return
		default:
		}
		select {
		case <-s.mailbox:
		default:
		}
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case u := <-s.mailbox:
			s.deliver(u)
		}
	}
}

func (s *subscriber) deliver(u models.QuoteUpdate) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("subscriber callback panicked", logger.String("id", s.id), logger.Any("panic", r))
		}
	}()
	s.fn(u)
}

type pollLoop struct {
	symbol string
	subs   map[string]*subscriber
	cancel context.CancelFunc
	done   chan struct{}
}

// SubscriptionManager runs one poll loop per symbol for as long as it has subscribers.
type SubscriptionManager struct {
	mu     sync.Mutex
	loops  map[string]*pollLoop
	closed bool

	source       QuoteSource
	sink         QuoteSink
	metrics      drepo.Metrics
	log          *logger.Logger
	interval     time.Duration
	factor       float64
	maxBackoff   time.Duration
	observeDelay func(symbol string, d time.Duration)
}

type SubscriptionOption func(*SubscriptionManager)

func WithPollInterval(d time.Duration) SubscriptionOption {
	return func(m *SubscriptionManager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithBackoff sets how the poll delay grows after a failed or stale tick.
// A factor of 1 or less would never grow the delay and is ignored.
func WithBackoff(factor float64, maxDelay time.Duration) SubscriptionOption {
	return func(m *SubscriptionManager) {
		if factor > 1 {
			m.factor = factor
		}
		if maxDelay > 0 {
			m.maxBackoff = maxDelay
		}
	}
}

func WithQuoteSink(s QuoteSink) SubscriptionOption {
	return func(m *SubscriptionManager) { m.sink = s }
}

func WithSubscriptionLogger(l *logger.Logger) SubscriptionOption {
	return func(m *SubscriptionManager) { m.log = l }
}

func withDelayObserver(fn func(symbol string, d time.Duration)) SubscriptionOption {
	return func(m *SubscriptionManager) { m.observeDelay = fn }
}

// NewSubscriptionManager creates a new SubscriptionManager instance.
func NewSubscriptionManager(source QuoteSource, metrics drepo.Metrics, opts ...SubscriptionOption) *SubscriptionManager {
	m := &SubscriptionManager{
		loops:      make(map[string]*pollLoop),
		source:     source,
		metrics:    metrics,
		log:        logger.NewNop(),
		interval:   5 * time.Second,
		factor:     2,
		maxBackoff: time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxBackoff < m.interval {
		m.maxBackoff = m.interval
	}
	return m
}

// Subscribe registers fn for symbol, starting its poll loop if needed. The last
// cached quote, if any, is replayed right away. The returned func unsubscribes
// and may be called any number of times.
func (m *SubscriptionManager) Subscribe(symbol string, fn UpdateFunc) (Subscription, func(), error) {
	sym := util.NormalizeSymbol(symbol)
	if sym == "" {
		return Subscription{}, nil, models.ErrInvalidSymbol
	}
	if fn == nil {
		return Subscription{}, nil, fmt.Errorf("subscribe %s: nil callback", sym)
	}

	// the cache may be a network round trip; never hold m.mu across it
	cached, replay := m.source.CachedQuote(context.Background(), sym)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Subscription{}, nil, ErrManagerClosed
	}

	loop, ok := m.loops[sym]
	if !ok {
		loop = m.startLoop(sym)
	}

	sub := newSubscriber(fn, m.log)
	go sub.run()
	loop.subs[sub.id] = sub

	// offered before any broadcast can see sub, so a newer poll always replaces it
	if replay {
		sub.offer(models.QuoteUpdate{Quote: cached.Data, Meta: cached.Meta})
	}

	m.metrics.SetSubscribers(sym, len(loop.subs))
	m.log.Debug("subscribed",
		logger.String("symbol", sym),
		logger.String("id", sub.id),
		logger.Int("subscribers", len(loop.subs)),
		logger.Bool("replayed", replay),
	)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { m.unsubscribe(sym, sub.id) })
	}
	return Subscription{ID: sub.id, Symbol: sym}, unsubscribe, nil
}

// startLoop must be called with m.mu held.
func (m *SubscriptionManager) startLoop(sym string) *pollLoop {
	ctx, cancel := context.WithCancel(context.Background())
	loop := &pollLoop{
		symbol: sym,
		subs:   make(map[string]*subscriber),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.loops[sym] = loop
	m.metrics.SetActiveLoops(len(m.loops))
	m.log.Info("poll loop started", logger.String("symbol", sym))
	go m.run(ctx, loop)
	return loop
}

func (m *SubscriptionManager) unsubscribe(sym, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loop, ok := m.loops[sym]
	if !ok {
		return
	}
	sub, ok := loop.subs[id]
	if !ok {
		return
	}
	delete(loop.subs, id)
	close(sub.done)
	m.metrics.SetSubscribers(sym, len(loop.subs))

	if len(loop.subs) == 0 {
		delete(m.loops, sym)
		loop.cancel()
		m.metrics.SetActiveLoops(len(m.loops))
		m.log.Info("poll loop stopped", logger.String("symbol", sym))
	}
}

func (m *SubscriptionManager) run(ctx context.Context, loop *pollLoop) {
	defer close(loop.done)

	delay := m.interval
	for {
		res, err := m.source.RefreshQuote(ctx, loop.symbol)
		if ctx.Err() != nil {
			return
		}

		healthy := false
		switch {
		case err != nil:
			m.metrics.RecordError("poll")
			m.log.Warn("poll failed", logger.String("symbol", loop.symbol), logger.Error(err))
		default:
			healthy = !res.Meta.Stale
			if m.broadcast(loop, models.QuoteUpdate{Quote: res.Data, Meta: res.Meta}) && healthy {
				m.metrics.RecordLastPrice(loop.symbol, res.Data.Price)
				m.log.Debug("quote polled", logger.String("symbol", loop.symbol), logger.Float64("price", res.Data.Price))
				m.toSink(ctx, res.Data)
			}
		}

		delay = m.nextDelay(delay, healthy)
		if m.observeDelay != nil {
			m.observeDelay(loop.symbol, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *SubscriptionManager) nextDelay(cur time.Duration, healthy bool) time.Duration {
	if healthy {
		return m.interval
	}
	next := time.Duration(float64(cur) * m.factor)
	if next > m.maxBackoff {
		next = m.maxBackoff
	}
	return next
}

// broadcast delivers u to a snapshot of the loop's subscribers. It reports false
// when the loop was stopped while the fetch was in flight.
func (m *SubscriptionManager) broadcast(loop *pollLoop, u models.QuoteUpdate) bool {
	m.mu.Lock()
	if m.loops[loop.symbol] != loop || len(loop.subs) == 0 {
		m.mu.Unlock()
		return false
	}
	snapshot := make([]*subscriber, 0, len(loop.subs))
	for _, s := range loop.subs {
		snapshot = append(snapshot, s)
	}
	m.mu.Unlock()

	for _, s := range snapshot {
		s.offer(u)
	}
	return true
}

func (m *SubscriptionManager) toSink(ctx context.Context, q models.Quote) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Process(ctx, &q); err != nil {
		m.log.Debug("quote sink rejected update", logger.String("symbol", q.Symbol), logger.Error(err))
	}
}

// ActiveLoops returns how many symbols are being polled.
func (m *SubscriptionManager) ActiveLoops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loops)
}

// Symbols lists polled symbols with their subscriber counts.
func (m *SubscriptionManager) Symbols() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.loops))
	for sym, l := range m.loops {
		out[sym] = len(l.subs)
	}
	return out
}

// SortedSymbols is Symbols' keys in order.
func (m *SubscriptionManager) SortedSymbols() []string {
	syms := m.Symbols()
	out := make([]string, 0, len(syms))
	for s := range syms {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Close stops every loop and drops all subscribers. Later unsubscribes are no-ops.
func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	loops := make([]*pollLoop, 0, len(m.loops))
	for sym, l := range m.loops {
		for _, s := range l.subs {
			close(s.done)
		}
		l.cancel()
		loops = append(loops, l)
		delete(m.loops, sym)
	}
	m.metrics.SetActiveLoops(0)
	m.mu.Unlock()

	for _, l := range loops {
		<-l.done
	}
}
