package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"FinFeed/internal/domain/models"
	domrepo "FinFeed/internal/domain/repository"
	applogger "FinFeed/pkg/logger"
)

// ErrBufferFull is returned by Process when the sink has fallen too far behind.
var ErrBufferFull = errors.New("pipeline buffer full")

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, q *models.Quote) error
	ProcessBatch(ctx context.Context, quotes []*models.Quote) error
}

// RealtimePipeline sits between the poll loops and the sink backend.
// It validates and throttles quotes per symbol and hands them to a single
// flush goroutine, so sink latency never reaches the caller.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	log     *applogger.Logger

	maxRPS    int
	bufSize   int
	batchSize int
	batchTO   time.Duration
	transform func(*models.Quote) *models.Quote

	bufCh chan *models.Quote

	mu       sync.Mutex
	lastSeen map[string]time.Time
	started  bool
	stopCh   chan struct{}
	done     chan struct{}
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max quotes per second per symbol.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets how many quotes may wait for the sink.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatch sets the flush size and the longest a queued quote waits.
func WithBatch(size int, timeout time.Duration) PipelineOption {
	return func(p *RealtimePipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if timeout > 0 {
			p.batchTO = timeout
		}
	}
}

// WithTransform sets a hook applied to every quote before it is forwarded.
func WithTransform(fn func(*models.Quote) *models.Quote) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// RoundPrices returns a transform that rounds the price fields of a copy of q.
func RoundPrices(decimals int) func(*models.Quote) *models.Quote {
	scale := math.Pow10(decimals)
	round := func(v float64) float64 { return math.Round(v*scale) / scale }
	return func(q *models.Quote) *models.Quote {
		c := *q
		c.Price = round(c.Price)
		c.Change = round(c.Change)
		c.ChangePercent = round(c.ChangePercent)
		return &c
	}
}

func WithPipelineLogger(l *applogger.Logger) PipelineOption {
	return func(p *RealtimePipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:      proc,
		metrics:   metrics,
		log:       applogger.NewNop(),
		maxRPS:    5,
		bufSize:   1000,
		batchSize: 100,
		batchTO:   time.Second,
		lastSeen:  make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Quote, p.bufSize)
	return p
}

// Start launches the goroutine that drains the buffer into the sink.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stopCh, p.done
	p.mu.Unlock()

	go p.flushLoop(ctx, stop, done)
}

func (p *RealtimePipeline) flushLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	const minBackoff = 50 * time.Millisecond
	backoff := minBackoff
	batch := make([]*models.Quote, 0, p.batchSize)
	timer := time.NewTimer(p.batchTO)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := p.send(ctx, batch); err != nil {
			p.metrics.RecordError("pipeline_flush")
			p.log.Warn("pipeline flush failed",
				applogger.Int("size", len(batch)),
				applogger.Duration("backoff", backoff),
				applogger.Error(err),
			)
			select {
			case <-time.After(backoff):
			case <-stop:
			case <-ctx.Done():
			}
			backoff = time.Duration(math.Min(float64(backoff*2), float64(2*time.Second)))
			for _, q := range batch {
				p.enqueue(q)
			}
		} else {
			backoff = minBackoff
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-stop:
			p.drain(ctx, batch)
			return
		case <-ctx.Done():
			return
		case q := <-p.bufCh:
			batch = append(batch, q)
			if len(batch) >= p.batchSize {
				flush()
			}
		case <-timer.C:
			flush()
			timer.Reset(p.batchTO)
		}
	}
}

func (p *RealtimePipeline) send(ctx context.Context, batch []*models.Quote) error {
	start := time.Now()
	var err error
	if len(batch) == 1 {
		err = p.proc.Process(ctx, batch[0])
	} else {
		err = p.proc.ProcessBatch(ctx, batch)
	}
	if err == nil {
		p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
	}
	return err
}

// drain makes one last attempt at whatever is pending when the pipeline stops.
func (p *RealtimePipeline) drain(ctx context.Context, batch []*models.Quote) {
	for pending := true; pending; {
		select {
		case q := <-p.bufCh:
			batch = append(batch, q)
		default:
			pending = false
		}
	}
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.batchTO)
	defer cancel()
	if err := p.send(ctx, batch); err != nil {
		p.metrics.RecordError("pipeline_drain")
		p.log.Warn("pipeline dropped pending quotes", applogger.Int("size", len(batch)), applogger.Error(err))
	}
}

// Stop stops the flush goroutine and waits for its final drain.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	stop, done := p.stopCh, p.done
	p.mu.Unlock()
	close(stop)
	<-done
}

// Buffered reports the number of quotes waiting to be flushed.
func (p *RealtimePipeline) Buffered() int { return len(p.bufCh) }

// Process validates and throttles q, then queues it for the flush goroutine.
// It never waits on the sink; a full buffer drops q and returns ErrBufferFull.
func (p *RealtimePipeline) Process(_ context.Context, q *models.Quote) error {
	if err := validateQuote(q); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		q = p.transform(q)
		if err := validateQuote(q); err != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return err
		}
	}
	if !p.allow(q.Symbol, time.Now()) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}
	if !p.enqueue(q) {
		return ErrBufferFull
	}
	return nil
}

func (p *RealtimePipeline) enqueue(q *models.Quote) bool {
	select {
	case p.bufCh <- q:
		return true
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return false
	}
}

func validateQuote(q *models.Quote) error {
	switch {
	case q == nil:
		return fmt.Errorf("quote nil")
	case q.Symbol == "":
		return fmt.Errorf("symbol empty")
	case q.Timestamp.IsZero():
		return fmt.Errorf("timestamp missing")
	case q.Price <= 0 || q.Volume < 0:
		return fmt.Errorf("price or volume out of range")
	}
	return nil
}

func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
