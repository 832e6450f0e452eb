package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FinFeed/internal/domain/models"
	drepo "FinFeed/internal/domain/repository"
	"FinFeed/pkg/logger"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// QuoteProber is the call the heartbeat uses to test connectivity. The orchestrator
// implements it; the cache is never consulted.
type QuoteProber interface {
	Quote(ctx context.Context, symbol string) (models.Result[*models.Quote], error)
}

// ConnectionListener is called synchronously on every state transition.
type ConnectionListener func(models.ConnectionStatus)

// Heartbeat periodically probes the source chain and reports transitions.
type Heartbeat struct {
	mu        sync.Mutex
	status    models.ConnectionStatus
	listeners map[string]ConnectionListener
	order     []string

	prober   QuoteProber
	symbol   string
	interval time.Duration
	timeout  time.Duration
	metrics  drepo.Metrics
	log      *logger.Logger
	now      func() time.Time

	cron    *cron.Cron
	running bool
	first   sync.WaitGroup
}

type HeartbeatOption func(*Heartbeat)

func WithProbeSymbol(s string) HeartbeatOption {
	return func(h *Heartbeat) {
		if s != "" {
			h.symbol = s
		}
	}
}

func WithHeartbeatInterval(d time.Duration) HeartbeatOption {
	return func(h *Heartbeat) {
		if d > 0 {
			h.interval = d
		}
	}
}

func WithProbeTimeout(d time.Duration) HeartbeatOption {
	return func(h *Heartbeat) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func WithHeartbeatLogger(l *logger.Logger) HeartbeatOption {
	return func(h *Heartbeat) { h.log = l }
}

func WithHeartbeatClock(now func() time.Time) HeartbeatOption {
	return func(h *Heartbeat) { h.now = now }
}

// NewHeartbeat creates a new Heartbeat in the unknown state.
func NewHeartbeat(prober QuoteProber, metrics drepo.Metrics, opts ...HeartbeatOption) *Heartbeat {
	h := &Heartbeat{
		status:    models.ConnectionStatus{State: models.StateUnknown},
		listeners: make(map[string]ConnectionListener),
		prober:    prober,
		symbol:    "SPY",
		interval:  30 * time.Second,
		timeout:   10 * time.Second,
		metrics:   metrics,
		log:       logger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnConnectionChange registers l and returns its unregister func.
func (h *Heartbeat) OnConnectionChange(l ConnectionListener) func() {
	id := uuid.NewString()
	h.mu.Lock()
	h.listeners[id] = l
	h.order = append(h.order, id)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners, id)
			for i, v := range h.order {
				if v == id {
					h.order = append(h.order[:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Status returns the result of the last check.
func (h *Heartbeat) Status() models.ConnectionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Check probes once. Listeners hear about it only if the state changed.
func (h *Heartbeat) Check(ctx context.Context) models.ConnectionStatus {
	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	_, err := h.prober.Quote(cctx, h.symbol)
	st := models.ConnectionStatus{State: models.StateConnected, CheckedAt: h.now()}
	if err != nil {
		st.State = models.StateDisconnected
		st.Error = err.Error()
	}
	h.metrics.RecordConnection(err == nil)

	h.mu.Lock()
	prev := h.status.State
	h.status = st
	var notify []ConnectionListener
	if prev != st.State {
		for _, id := range h.order {
			notify = append(notify, h.listeners[id])
		}
	}
	h.mu.Unlock()

	if prev != st.State {
		h.log.Info("connection state changed",
			logger.String("from", string(prev)),
			logger.String("to", string(st.State)),
			logger.String("probe", h.symbol),
		)
	}
	for _, l := range notify {
		h.call(l, st)
	}
	return st
}

func (h *Heartbeat) call(l ConnectionListener, st models.ConnectionStatus) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("connection listener panicked", logger.Any("panic", r))
		}
	}()
	l(st)
}

// Start checks immediately and then on every interval.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}

	// one wrapped job for the immediate check and the ticks, so they never overlap
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() { h.Check(ctx) }))
	c := cron.New()
	if _, err := c.AddJob(fmt.Sprintf("@every %s", h.interval), job); err != nil {
		return fmt.Errorf("schedule heartbeat: %w", err)
	}
	c.Start()
	h.cron = c
	h.running = true

	h.first.Add(1)
	go func() {
		defer h.first.Done()
		job.Run()
	}()
	h.log.Info("heartbeat started", logger.Duration("interval", h.interval), logger.String("probe", h.symbol))
	return nil
}

// Stop halts scheduling and waits for any running check, the immediate one included.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	c := h.cron
	h.running = false
	h.cron = nil
	h.mu.Unlock()

	<-c.Stop().Done()
	h.first.Wait()
}
