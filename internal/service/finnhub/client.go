// Package finnhub adapts the Finnhub REST API.
// Quotes carry no volume, so they are only ever partially valid.
package finnhub

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"FinFeed/internal/domain/models"
	"FinFeed/pkg/util"

	"github.com/go-resty/resty/v2"
	"github.com/guregu/null/v6"
	"github.com/pkg/errors"
)

const (
	Name           = "finnhub"
	DefaultBaseURL = "https://finnhub.io/api/v1"
)

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client is the Finnhub adapter.
type Client struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	http    *resty.Client
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{apiKey: apiKey, baseURL: DefaultBaseURL, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	c.http = resty.New().
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Accept", "application/json")
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) Supports(op models.Operation) bool {
	switch op {
	case models.OpQuote, models.OpHistorical, models.OpCompanyInfo, models.OpNews:
		return true
	}
	return false
}

func (c *Client) get(ctx context.Context, op models.Operation, symbol, path string, params map[string]string, dest any) error {
	params["token"] = c.apiKey
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return models.NewProviderError(Name, op, symbol, errors.Wrapf(err, "GET %s", path))
	}
	if resp.StatusCode() != 200 {
		return &models.ProviderError{
			Source: Name, Op: op, Symbol: symbol, StatusCode: resp.StatusCode(),
			Err: errors.Errorf("GET %s: %s", path, truncate(resp.String())),
		}
	}
	if err := json.Unmarshal(resp.Body(), dest); err != nil {
		return models.NewProviderError(Name, op, symbol, errors.Wrapf(err, "decode %s", path))
	}
	return nil
}

type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PrevClose     float64 `json:"pc"`
	Time          int64   `json:"t"`
}

func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var r quoteResponse
	if err := c.get(ctx, models.OpQuote, symbol, "/quote", map[string]string{"symbol": symbol}, &r); err != nil {
		return nil, err
	}
	// unknown symbols come back as all zeros
	if r.Current == 0 && r.PrevClose == 0 {
		return nil, models.NewProviderError(Name, models.OpQuote, symbol, errors.Wrap(models.ErrNoData, "zero quote"))
	}
	if r.Current == 0 {
		return nil, models.NewProviderError(Name, models.OpQuote, symbol, errors.Wrap(models.ErrMissingField, "price"))
	}
	ts := time.Now().UTC()
	if r.Time > 0 {
		ts = time.Unix(r.Time, 0).UTC()
	}
	return &models.Quote{
		Symbol:        symbol,
		Price:         r.Current,
		Change:        r.Change,
		ChangePercent: r.ChangePercent,
		Timestamp:     ts,
		Source:        Name,
	}, nil
}

type candleResponse struct {
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Time   []int64   `json:"t"`
	Volume []float64 `json:"v"`
	Status string    `json:"s"`
}

func (c *Client) Historical(ctx context.Context, symbol string, from, to time.Time) (*models.Series, error) {
	var r candleResponse
	params := map[string]string{
		"symbol":     symbol,
		"resolution": "D",
		"from":       strconv.FormatInt(from.Unix(), 10),
		"to":         strconv.FormatInt(to.Unix(), 10),
	}
	if err := c.get(ctx, models.OpHistorical, symbol, "/stock/candle", params, &r); err != nil {
		return nil, err
	}
	if r.Status != "ok" || len(r.Time) == 0 {
		return nil, models.NewProviderError(Name, models.OpHistorical, symbol, errors.Wrapf(models.ErrNoData, "status %q", r.Status))
	}
	n := len(r.Time)
	if len(r.Open) != n || len(r.High) != n || len(r.Low) != n || len(r.Close) != n {
		return nil, models.NewProviderError(Name, models.OpHistorical, symbol, errors.New("candle arrays differ in length"))
	}
	s := &models.Series{Symbol: symbol, Source: Name, Points: make([]models.HistoricalPoint, 0, n)}
	for i := 0; i < n; i++ {
		p := models.HistoricalPoint{
			Date:  util.Day(time.Unix(r.Time[i], 0)),
			Open:  r.Open[i],
			High:  r.High[i],
			Low:   r.Low[i],
			Close: r.Close[i],
		}
		if i < len(r.Volume) {
			p.Volume = int64(r.Volume[i])
		}
		s.Points = append(s.Points, p)
	}
	return s, nil
}

type metricResponse struct {
	Metric map[string]*float64 `json:"metric"`
}

func (r metricResponse) get(key string) null.Float {
	if v, ok := r.Metric[key]; ok && v != nil {
		return null.FloatFrom(*v)
	}
	return null.Float{}
}

// millions converts Finnhub's million-unit figures.
func millions(f null.Float) null.Float {
	if !f.Valid {
		return f
	}
	return null.FloatFrom(f.Float64 * 1e6)
}

func (c *Client) CompanyInfo(ctx context.Context, symbol string) (*models.CompanyInfo, error) {
	var r metricResponse
	params := map[string]string{"symbol": symbol, "metric": "all"}
	if err := c.get(ctx, models.OpCompanyInfo, symbol, "/stock/metric", params, &r); err != nil {
		return nil, err
	}
	if len(r.Metric) == 0 {
		return nil, models.NewProviderError(Name, models.OpCompanyInfo, symbol, models.ErrNoData)
	}

	pe := r.get("peTTM")
	if !pe.Valid {
		pe = r.get("peBasicExclExtraTTM")
	}
	eps := r.get("epsTTM")
	if !eps.Valid {
		eps = r.get("epsBasicExclExtraItemsTTM")
	}
	return &models.CompanyInfo{
		Symbol:           symbol,
		PE:               pe,
		EPS:              eps,
		MarketCap:        millions(r.get("marketCapitalization")),
		DividendYield:    r.get("dividendYieldIndicatedAnnual"),
		Beta:             r.get("beta"),
		AvgVolume:        millions(r.get("10DayAverageTradingVolume")),
		FiftyTwoWeekHigh: r.get("52WeekHigh"),
		FiftyTwoWeekLow:  r.get("52WeekLow"),
		ProfitMargin:     r.get("netProfitMarginTTM"),
		OperatingMargin:  r.get("operatingMarginTTM"),
		GrossMargin:      r.get("grossMarginTTM"),
		LastUpdated:      time.Now().UTC(),
		Source:           Name,
	}, nil
}

type newsItem struct {
	Datetime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

func (c *Client) News(ctx context.Context, symbol string, from, to time.Time) (*models.NewsFeed, error) {
	var items []newsItem
	params := map[string]string{
		"symbol": symbol,
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
	}
	if err := c.get(ctx, models.OpNews, symbol, "/company-news", params, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, models.NewProviderError(Name, models.OpNews, symbol, models.ErrNoData)
	}
	feed := &models.NewsFeed{Symbol: symbol, Source: Name, Items: make([]models.NewsItem, 0, len(items))}
	for _, it := range items {
		feed.Items = append(feed.Items, models.NewsItem{
			Headline:    it.Headline,
			Summary:     it.Summary,
			URL:         it.URL,
			Publisher:   it.Source,
			PublishedAt: time.Unix(it.Datetime, 0).UTC(),
			Source:      Name,
		})
	}
	return feed, nil
}

func truncate(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
