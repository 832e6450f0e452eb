package usecase

import (
	"context"
	"errors"
	"time"

	"FinFeed/internal/domain/models"
	drepo "FinFeed/internal/domain/repository"
	mcache "FinFeed/internal/service/cache"
	"FinFeed/pkg/logger"
	"FinFeed/pkg/util"
)

// MarketData is the cache-aware facade in front of the orchestrator.
// Fresh entries short-circuit; on total failure the last good value is served as stale.
type MarketData struct {
	orch    *Orchestrator
	cache   *mcache.Store
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

type MarketDataOption func(*MarketData)

func WithMarketDataLogger(l *logger.Logger) MarketDataOption {
	return func(m *MarketData) { m.log = l }
}

func WithMarketDataClock(now func() time.Time) MarketDataOption {
	return func(m *MarketData) { m.now = now }
}

// NewMarketData creates a new MarketData instance.
func NewMarketData(orch *Orchestrator, store *mcache.Store, metrics drepo.Metrics, opts ...MarketDataOption) *MarketData {
	m := &MarketData{
		orch:    orch,
		cache:   store,
		metrics: metrics,
		log:     logger.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Orchestrator returns the underlying orchestrator.
func (m *MarketData) Orchestrator() *Orchestrator { return m.orch }

func normalize(symbol string) (string, error) {
	s := util.NormalizeSymbol(symbol)
	if s == "" || len(s) > 16 {
		return "", models.ErrInvalidSymbol
	}
	return s, nil
}

func deref[T any](r models.Result[*T]) models.Result[T] {
	var out models.Result[T]
	if r.Data != nil {
		out.Data = *r.Data
	}
	out.Meta = r.Meta
	return out
}

func fetch[T any](ctx context.Context, m *MarketData, op models.Operation, key string, bypass bool, load func(context.Context) (models.Result[T], error)) (models.Result[T], error) {
	var zero models.Result[T]

	if !bypass {
		hit, err := m.cache.Lookup(ctx, op, key)
		switch {
		case err == nil && hit.Fresh:
			var v T
			if derr := hit.Decode(&v); derr == nil {
				m.metrics.RecordCache(op, true)
				return models.Result[T]{Data: v, Meta: hit.Meta()}, nil
			}
		case err != nil && !errors.Is(err, mcache.ErrMiss):
			m.log.Warn("cache lookup failed", logger.String("key", key), logger.Error(err))
		}
		m.metrics.RecordCache(op, false)
	}

	start := time.Now()
	res, err := load(ctx)
	m.metrics.RecordLatency(string(op), time.Since(start).Seconds())
	if err == nil {
		if perr := m.cache.Put(ctx, key, res.Data, res.Meta.Source, res.Meta.Partial); perr != nil {
			m.metrics.RecordError("cache_put")
			m.log.Warn("cache write failed", logger.String("key", key), logger.Error(perr))
		}
		return res, nil
	}

	var asf *models.AllSourcesFailedError
	if !errors.As(err, &asf) {
		return zero, err
	}

	hit, herr := m.cache.Lookup(context.WithoutCancel(ctx), op, key)
	if herr != nil {
		return zero, err
	}
	var v T
	if derr := hit.Decode(&v); derr != nil {
		m.log.Warn("cached value unreadable", logger.String("key", key), logger.Error(derr))
		return zero, err
	}

	meta := hit.Meta()
	meta.Stale = true
	meta.Failures = asf.Errors
	m.metrics.RecordStaleServed(op)
	m.log.Warn("serving stale data",
		logger.String("op", string(op)),
		logger.String("key", key),
		logger.Duration("age", hit.Age),
	)
	return models.Result[T]{Data: v, Meta: meta}, nil
}

func (m *MarketData) quote(ctx context.Context, symbol string, bypass bool) (models.Result[models.Quote], error) {
	sym, err := normalize(symbol)
	if err != nil {
		return models.Result[models.Quote]{}, err
	}
	return fetch(ctx, m, models.OpQuote, mcache.Key(models.OpQuote, sym), bypass,
		func(ctx context.Context) (models.Result[models.Quote], error) {
			r, err := m.orch.Quote(ctx, sym)
			return deref(r), err
		})
}

// Quote returns a fresh cached quote or fetches a new one.
func (m *MarketData) Quote(ctx context.Context, symbol string) (models.Result[models.Quote], error) {
	return m.quote(ctx, symbol, false)
}

// RefreshQuote skips the fresh-cache short-circuit. Poll loops use it.
func (m *MarketData) RefreshQuote(ctx context.Context, symbol string) (models.Result[models.Quote], error) {
	return m.quote(ctx, symbol, true)
}

// CachedQuote returns the last stored quote without contacting any source.
func (m *MarketData) CachedQuote(ctx context.Context, symbol string) (models.Result[models.Quote], bool) {
	var out models.Result[models.Quote]
	sym, err := normalize(symbol)
	if err != nil {
		return out, false
	}
	hit, err := m.cache.Lookup(ctx, models.OpQuote, mcache.Key(models.OpQuote, sym))
	if err != nil {
		return out, false
	}
	if err := hit.Decode(&out.Data); err != nil {
		return out, false
	}
	out.Meta = hit.Meta()
	out.Meta.Stale = !hit.Fresh
	return out, true
}

// Historical returns daily bars for the last days calendar days.
func (m *MarketData) Historical(ctx context.Context, symbol string, days int) (models.Result[[]models.HistoricalPoint], error) {
	sym, err := normalize(symbol)
	if err != nil {
		return models.Result[[]models.HistoricalPoint]{}, err
	}
	if days < 1 {
		days = 1
	}
	from, to := util.LastDays(m.now(), days)
	return fetch(ctx, m, models.OpHistorical, mcache.Key(models.OpHistorical, sym, days), false,
		func(ctx context.Context) (models.Result[[]models.HistoricalPoint], error) {
			r, err := m.orch.Historical(ctx, sym, from, to)
			if err != nil {
				return models.Result[[]models.HistoricalPoint]{}, err
			}
			return models.Result[[]models.HistoricalPoint]{Data: r.Data.Points, Meta: r.Meta}, nil
		})
}

func (m *MarketData) CompanyInfo(ctx context.Context, symbol string) (models.Result[models.CompanyInfo], error) {
	sym, err := normalize(symbol)
	if err != nil {
		return models.Result[models.CompanyInfo]{}, err
	}
	return fetch(ctx, m, models.OpCompanyInfo, mcache.Key(models.OpCompanyInfo, sym), false,
		func(ctx context.Context) (models.Result[models.CompanyInfo], error) {
			r, err := m.orch.CompanyInfo(ctx, sym)
			return deref(r), err
		})
}

// News returns headlines published in the last days calendar days.
func (m *MarketData) News(ctx context.Context, symbol string, days int) (models.Result[[]models.NewsItem], error) {
	sym, err := normalize(symbol)
	if err != nil {
		return models.Result[[]models.NewsItem]{}, err
	}
	if days < 1 {
		days = 1
	}
	from, to := util.LastDays(m.now(), days)
	return fetch(ctx, m, models.OpNews, mcache.Key(models.OpNews, sym, days), false,
		func(ctx context.Context) (models.Result[[]models.NewsItem], error) {
			r, err := m.orch.News(ctx, sym, from, to)
			if err != nil {
				return models.Result[[]models.NewsItem]{}, err
			}
			return models.Result[[]models.NewsItem]{Data: r.Data.Items, Meta: r.Meta}, nil
		})
}

func (m *MarketData) Indicators(ctx context.Context, symbol string) (models.Result[models.TechnicalIndicators], error) {
	sym, err := normalize(symbol)
	if err != nil {
		return models.Result[models.TechnicalIndicators]{}, err
	}
	return fetch(ctx, m, models.OpIndicators, mcache.Key(models.OpIndicators, sym), false,
		func(ctx context.Context) (models.Result[models.TechnicalIndicators], error) {
			r, err := m.orch.Indicators(ctx, sym)
			return deref(r), err
		})
}
