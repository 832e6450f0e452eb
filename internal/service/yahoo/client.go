// Package yahoo adapts Yahoo Finance through piquette/finance-go.
// Yahoo reports absent fundamentals as zero, so zeros become null here.
package yahoo

import (
	"context"
	"time"

	"FinFeed/internal/domain/models"
	"FinFeed/pkg/util"

	"github.com/guregu/null/v6"
	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/equity"
	"github.com/pkg/errors"
)

const Name = "yahoo"

// EquityFunc fetches the combined quote and fundamentals record.
type EquityFunc func(symbol string) (*finance.Equity, error)

// BarsFunc fetches daily chart bars.
type BarsFunc func(params *chart.Params) ([]*finance.ChartBar, error)

type Option func(*Client)

// WithEquityFunc replaces the equity lookup, mainly for tests.
func WithEquityFunc(f EquityFunc) Option {
	return func(c *Client) { c.equity = f }
}

// WithBarsFunc replaces the chart lookup, mainly for tests.
func WithBarsFunc(f BarsFunc) Option {
	return func(c *Client) { c.bars = f }
}

type Client struct {
	equity EquityFunc
	bars   BarsFunc
}

func New(opts ...Option) *Client {
	c := &Client{equity: equity.Get, bars: chartBars}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func chartBars(params *chart.Params) ([]*finance.ChartBar, error) {
	iter := chart.Get(params)
	var bars []*finance.ChartBar
	for iter.Next() {
		bars = append(bars, iter.Bar())
	}
	return bars, iter.Err()
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(op models.Operation) bool {
	switch op {
	case models.OpQuote, models.OpHistorical, models.OpCompanyInfo:
		return true
	}
	return false
}

// call runs a blocking SDK call so that ctx cancellation still returns promptly.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (c *Client) getEquity(ctx context.Context, op models.Operation, symbol string) (*finance.Equity, error) {
	eq, err := call(ctx, func() (*finance.Equity, error) { return c.equity(symbol) })
	if err != nil {
		return nil, models.NewProviderError(Name, op, symbol, errors.Wrap(err, "equity"))
	}
	if eq == nil {
		return nil, models.NewProviderError(Name, op, symbol, models.ErrNoData)
	}
	return eq, nil
}

func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	eq, err := c.getEquity(ctx, models.OpQuote, symbol)
	if err != nil {
		return nil, err
	}
	if eq.RegularMarketPrice == 0 {
		return nil, models.NewProviderError(Name, models.OpQuote, symbol, errors.Wrap(models.ErrMissingField, "regularMarketPrice"))
	}
	ts := time.Now().UTC()
	if eq.RegularMarketTime > 0 {
		ts = time.Unix(int64(eq.RegularMarketTime), 0).UTC()
	}
	return &models.Quote{
		Symbol:        symbol,
		Price:         eq.RegularMarketPrice,
		Change:        eq.RegularMarketChange,
		ChangePercent: eq.RegularMarketChangePercent,
		Volume:        int64(eq.RegularMarketVolume),
		Timestamp:     ts,
		Source:        Name,
	}, nil
}

func (c *Client) Historical(ctx context.Context, symbol string, from, to time.Time) (*models.Series, error) {
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&from),
		End:      datetime.New(&to),
		Interval: datetime.OneDay,
	}
	bars, err := call(ctx, func() ([]*finance.ChartBar, error) { return c.bars(params) })
	if err != nil {
		return nil, models.NewProviderError(Name, models.OpHistorical, symbol, errors.Wrap(err, "chart"))
	}
	if len(bars) == 0 {
		return nil, models.NewProviderError(Name, models.OpHistorical, symbol, models.ErrNoData)
	}
	s := &models.Series{Symbol: symbol, Source: Name, Points: make([]models.HistoricalPoint, 0, len(bars))}
	for _, b := range bars {
		if b == nil {
			continue
		}
		s.Points = append(s.Points, models.HistoricalPoint{
			Date:   util.Day(time.Unix(int64(b.Timestamp), 0)),
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Close:  b.Close.InexactFloat64(),
			Volume: int64(b.Volume),
		})
	}
	return s, nil
}

func nonZero(v float64) null.Float {
	if v == 0 {
		return null.Float{}
	}
	return null.FloatFrom(v)
}

func (c *Client) CompanyInfo(ctx context.Context, symbol string) (*models.CompanyInfo, error) {
	eq, err := c.getEquity(ctx, models.OpCompanyInfo, symbol)
	if err != nil {
		return nil, err
	}
	info := &models.CompanyInfo{
		Symbol:           symbol,
		PE:               nonZero(eq.TrailingPE),
		EPS:              nonZero(eq.EpsTrailingTwelveMonths),
		MarketCap:        nonZero(float64(eq.MarketCap)),
		AvgVolume:        nonZero(float64(eq.AverageDailyVolume3Month)),
		FiftyTwoWeekHigh: nonZero(eq.FiftyTwoWeekHigh),
		FiftyTwoWeekLow:  nonZero(eq.FiftyTwoWeekLow),
		LastUpdated:      time.Now().UTC(),
		Source:           Name,
	}
	// trailingAnnualDividendYield is a fraction
	if eq.TrailingAnnualDividendYield > 0 {
		info.DividendYield = null.FloatFrom(eq.TrailingAnnualDividendYield * 100)
	}
	return info, nil
}

func (c *Client) News(_ context.Context, symbol string, _, _ time.Time) (*models.NewsFeed, error) {
	return nil, models.NewProviderError(Name, models.OpNews, symbol, models.ErrUnsupported)
}
