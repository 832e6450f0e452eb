// Package synthetic generates plausible market data for demos and local runs.
// It is never mixed into a chain with real providers.
package synthetic

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"FinFeed/internal/domain/models"
	"FinFeed/pkg/util"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/shopspring/decimal"
)

const Name = "synthetic"

type Adapter struct {
	mu   sync.Mutex
	rng  *rand.Rand
	last map[string]float64
	now  func() time.Time
}

type Option func(*Adapter)

func WithSeed(seed int64) Option {
	return func(a *Adapter) { a.rng = rand.New(rand.NewSource(seed)) }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func New(opts ...Option) *Adapter {
	a := &Adapter{
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
		last: make(map[string]float64),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Supports(op models.Operation) bool {
	switch op {
	case models.OpQuote, models.OpHistorical, models.OpCompanyInfo, models.OpNews:
		return true
	}
	return false
}

// basePrice is a stable per-symbol anchor in [20, 520).
func basePrice(symbol string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 20 + float64(h.Sum32()%50000)/100
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func (a *Adapter) Quote(_ context.Context, symbol string) (*models.Quote, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	base := basePrice(symbol)
	prev, ok := a.last[symbol]
	if !ok {
		prev = base
	}
	// random walk of at most 0.5% per tick, pulled back toward the anchor
	price := prev * (1 + (a.rng.Float64()-0.5)*0.01)
	price += (base - price) * 0.01
	price = round2(math.Max(price, 0.01))
	a.last[symbol] = price

	change := round2(price - base)
	return &models.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: round2(change / base * 100),
		Volume:        1_000_000 + a.rng.Int63n(9_000_000),
		Timestamp:     a.now().UTC(),
		Source:        Name,
	}, nil
}

func (a *Adapter) Historical(_ context.Context, symbol string, from, to time.Time) (*models.Series, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := &models.Series{Symbol: symbol, Source: Name}
	price := basePrice(symbol)
	for d := util.Day(from); !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := price
		closePx := math.Max(open*(1+(a.rng.Float64()-0.5)*0.04), 0.01)
		high := math.Max(open, closePx) * (1 + a.rng.Float64()*0.01)
		low := math.Min(open, closePx) * (1 - a.rng.Float64()*0.01)
		s.Points = append(s.Points, models.HistoricalPoint{
			Date:   d,
			Open:   round2(open),
			High:   round2(high),
			Low:    round2(low),
			Close:  round2(closePx),
			Volume: 1_000_000 + a.rng.Int63n(9_000_000),
		})
		price = closePx
	}
	if len(s.Points) == 0 {
		return nil, models.NewProviderError(Name, models.OpHistorical, symbol, models.ErrNoData)
	}
	return s, nil
}

func (a *Adapter) CompanyInfo(_ context.Context, symbol string) (*models.CompanyInfo, error) {
	base := basePrice(symbol)
	eps := round2(base / 25)
	return &models.CompanyInfo{
		Symbol:           symbol,
		PE:               null.FloatFrom(round2(base / eps)),
		EPS:              null.FloatFrom(eps),
		MarketCap:        null.FloatFrom(base * 1e9),
		DividendYield:    null.FloatFrom(1.5),
		Beta:             null.FloatFrom(1),
		AvgVolume:        null.FloatFrom(5e6),
		FiftyTwoWeekHigh: null.FloatFrom(round2(base * 1.25)),
		FiftyTwoWeekLow:  null.FloatFrom(round2(base * 0.75)),
		LastUpdated:      a.now().UTC(),
		Source:           Name,
	}, nil
}

func (a *Adapter) News(_ context.Context, symbol string, from, to time.Time) (*models.NewsFeed, error) {
	feed := &models.NewsFeed{Symbol: symbol, Source: Name}
	for i, d := 0, util.Day(to); i < 3 && !d.Before(util.Day(from)); i, d = i+1, d.AddDate(0, 0, -1) {
		feed.Items = append(feed.Items, models.NewsItem{
			Headline:    fmt.Sprintf("%s synthetic headline %d", symbol, i+1),
			Summary:     "Generated for demonstration.",
			URL:         "https://synthetic.invalid/news/" + uuid.NewString(),
			Publisher:   Name,
			PublishedAt: d.Add(14 * time.Hour),
			Source:      Name,
		})
	}
	return feed, nil
}
