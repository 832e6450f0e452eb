package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinFeed/internal/domain/models"
	drepo "FinFeed/internal/domain/repository"
	"FinFeed/internal/indicators"
	"FinFeed/internal/service/ratelimit"
	"FinFeed/internal/validator"
	"FinFeed/pkg/logger"
	"FinFeed/pkg/retry"
)

// indicatorLookback covers SMA50 and the MACD signal line with room for holidays.
const indicatorLookback = 180 * 24 * time.Hour

// Orchestrator walks the source chain for an operation and picks the best result.
type Orchestrator struct {
	registry  *Registry
	validator *validator.Validator
	limiter   *ratelimit.Limiter
	rules     map[string]ratelimit.Rule
	retryer   *retry.Retryer
	timeout   time.Duration
	metrics   drepo.Metrics
	log       *logger.Logger
	now       func() time.Time
}

type OrchestratorOption func(*Orchestrator)

// WithRateLimits puts a token bucket per source in front of every call.
func WithRateLimits(l *ratelimit.Limiter, rules map[string]ratelimit.Rule) OrchestratorOption {
	return func(o *Orchestrator) {
		o.limiter = l
		o.rules = rules
	}
}

func WithRetryer(r *retry.Retryer) OrchestratorOption {
	return func(o *Orchestrator) { o.retryer = r }
}

// WithRequestTimeout bounds each individual provider attempt.
func WithRequestTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithOrchestratorLogger(l *logger.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = l }
}

func WithOrchestratorClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates a new Orchestrator instance.
func NewOrchestrator(reg *Registry, v *validator.Validator, metrics drepo.Metrics, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry:  reg,
		validator: v,
		limiter:   ratelimit.New(),
		retryer:   retry.NewRetryer(2, 200*time.Millisecond, 2*time.Second),
		timeout:   8 * time.Second,
		metrics:   metrics,
		log:       logger.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry exposes the chains the orchestrator walks.
func (o *Orchestrator) Registry() *Registry { return o.registry }

type fetchFunc[T any] func(ctx context.Context, a drepo.Adapter) (T, error)

// checkFunc validates a candidate and may return a cleaned copy of it.
type checkFunc[T any] func(T) (T, validator.Verdict)

// run returns the first fully valid result, else the first partial one.
// Every source passed over is listed in Meta.Failures.
func run[T any](ctx context.Context, o *Orchestrator, op models.Operation, symbol string, fetch fetchFunc[T], check checkFunc[T]) (models.Result[T], error) {
	var (
		zero     models.Result[T]
		failures []models.SourceError
		best     *models.Result[T]
		bestIdx  int
	)

	chain := o.registry.AdaptersFor(op)
	for i, a := range chain {
		if err := ctx.Err(); err != nil {
			failures = append(failures, models.SourceError{Source: a.Name(), Error: err.Error()})
			break
		}

		val, err := attempt(ctx, o, a, op, symbol, fetch)
		if err != nil {
			o.log.Warn("provider call failed",
				logger.String("source", a.Name()),
				logger.String("op", string(op)),
				logger.String("symbol", symbol),
				logger.Error(err),
			)
			failures = append(failures, models.SourceError{Source: a.Name(), Error: err.Error()})
			continue
		}

		cleaned, vd := check(val)
		if !vd.Valid {
			o.metrics.RecordError("validation")
			o.log.Warn("provider result rejected",
				logger.String("source", a.Name()),
				logger.String("op", string(op)),
				logger.String("symbol", symbol),
				logger.Strings("reasons", vd.Reasons),
			)
			failures = append(failures, models.SourceError{Source: a.Name(), Error: "rejected by validation", Reasons: vd.Reasons})
			continue
		}

		meta := models.Meta{Source: a.Name(), FetchedAt: o.now()}
		if vd.Full {
			meta.Failures = append([]models.SourceError(nil), failures...)
			if i > 0 {
				o.metrics.RecordFallback(op, a.Name())
			}
			return models.Result[T]{Data: cleaned, Meta: meta}, nil
		}

		if best == nil {
			meta.Partial = true
			meta.Failures = append([]models.SourceError(nil), failures...)
			best = &models.Result[T]{Data: cleaned, Meta: meta}
			bestIdx = i
		}
		failures = append(failures, models.SourceError{Source: a.Name(), Error: "partial result", Reasons: vd.Reasons})
	}

	if best != nil {
		if bestIdx > 0 {
			o.metrics.RecordFallback(op, best.Meta.Source)
		}
		return *best, nil
	}

	o.metrics.RecordError("all_sources_failed")
	o.log.Error("all sources failed",
		logger.String("op", string(op)),
		logger.String("symbol", symbol),
		logger.Int("sources", len(chain)),
	)
	return zero, &models.AllSourcesFailedError{Op: op, Symbol: symbol, Errors: failures}
}

func attempt[T any](ctx context.Context, o *Orchestrator, a drepo.Adapter, op models.Operation, symbol string, fetch fetchFunc[T]) (T, error) {
	var (
		out     T
		limited bool
	)
	name := a.Name()

	start := time.Now()
	err := o.retryer.Do(ctx, func(ctx context.Context) (bool, error) {
		// every request, retries included, spends a token
		if !o.allow(name) {
			limited = true
			return false, models.NewProviderError(name, op, symbol, models.ErrRateLimited)
		}

		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		v, err := safeFetch(cctx, a, op, symbol, fetch)
		if err != nil {
			return retryable(err), err
		}
		out = v
		return false, nil
	})

	result := "ok"
	switch {
	case limited:
		result = "rate_limited"
	case err != nil:
		result = "error"
	}
	o.metrics.RecordProviderCall(name, op, result, time.Since(start).Seconds())
	return out, err
}

func (o *Orchestrator) allow(source string) bool {
	rule, ok := o.rules[source]
	if !ok || o.limiter == nil {
		return true
	}
	return o.limiter.AllowRule(source, rule)
}

func safeFetch[T any](ctx context.Context, a drepo.Adapter, op models.Operation, symbol string, fetch fetchFunc[T]) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = models.NewProviderError(a.Name(), op, symbol, fmt.Errorf("panic: %v", r))
		}
	}()
	return fetch(ctx, a)
}

func retryable(err error) bool {
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

// Quote fetches a validated quote.
func (o *Orchestrator) Quote(ctx context.Context, symbol string) (models.Result[*models.Quote], error) {
	return run(ctx, o, models.OpQuote, symbol,
		func(ctx context.Context, a drepo.Adapter) (*models.Quote, error) { return a.Quote(ctx, symbol) },
		func(q *models.Quote) (*models.Quote, validator.Verdict) { return q, o.validator.Quote(q) },
	)
}

// Historical fetches daily bars in [from, to]. Rejected bars are dropped from the result.
func (o *Orchestrator) Historical(ctx context.Context, symbol string, from, to time.Time) (models.Result[*models.Series], error) {
	return run(ctx, o, models.OpHistorical, symbol,
		func(ctx context.Context, a drepo.Adapter) (*models.Series, error) {
			return a.Historical(ctx, symbol, from, to)
		},
		o.validator.Series,
	)
}

func (o *Orchestrator) CompanyInfo(ctx context.Context, symbol string) (models.Result[*models.CompanyInfo], error) {
	return run(ctx, o, models.OpCompanyInfo, symbol,
		func(ctx context.Context, a drepo.Adapter) (*models.CompanyInfo, error) {
			return a.CompanyInfo(ctx, symbol)
		},
		func(c *models.CompanyInfo) (*models.CompanyInfo, validator.Verdict) {
			return c, o.validator.CompanyInfo(c)
		},
	)
}

func (o *Orchestrator) News(ctx context.Context, symbol string, from, to time.Time) (models.Result[*models.NewsFeed], error) {
	return run(ctx, o, models.OpNews, symbol,
		func(ctx context.Context, a drepo.Adapter) (*models.NewsFeed, error) {
			return a.News(ctx, symbol, from, to)
		},
		o.validator.News,
	)
}

// Indicators computes technical indicators from the orchestrated daily series.
// Missing history leaves indicators null and marks the result partial.
func (o *Orchestrator) Indicators(ctx context.Context, symbol string) (models.Result[*models.TechnicalIndicators], error) {
	to := o.now()
	hist, err := o.Historical(ctx, symbol, to.Add(-indicatorLookback), to)
	if err != nil {
		return models.Result[*models.TechnicalIndicators]{}, err
	}

	ti := indicators.Compute(hist.Data)
	meta := hist.Meta
	if !indicators.Complete(ti) {
		meta.Partial = true
	}
	return models.Result[*models.TechnicalIndicators]{Data: &ti, Meta: meta}, nil
}
