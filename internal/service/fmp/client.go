// Package fmp adapts the Financial Modeling Prep REST API.
package fmp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"FinFeed/internal/domain/models"
	httpclient "FinFeed/pkg/http"
	"FinFeed/pkg/util"

	"github.com/guregu/null/v6"
	pkgerrors "github.com/pkg/errors"
)

const (
	Name           = "fmp"
	DefaultBaseURL = "https://financialmodelingprep.com/api/v3"
)

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *httpclient.Client) Option {
	return func(c *Client) { c.http = hc }
}

type Client struct {
	apiKey  string
	baseURL string
	http    *httpclient.Client
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{apiKey: apiKey, baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewClient(httpclient.WithTimeout(10 * time.Second))
	}
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

func (c *Client) get(ctx context.Context, op models.Operation, symbol, path string, query map[string][]string, dest any) error {
	if query == nil {
		query = map[string][]string{}
	}
	query["apikey"] = []string{c.apiKey}
	err := c.http.SendAndParse(ctx, &httpclient.RequestOptions{
		Method:      httpclient.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: query,
	}, dest)
	if err == nil {
		return nil
	}
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return &models.ProviderError{Source: Name, Op: op, Symbol: symbol, StatusCode: se.Code, Err: pkgerrors.Wrapf(err, "GET %s", path)}
	}
	return models.NewProviderError(Name, op, symbol, pkgerrors.Wrapf(err, "GET %s", path))
}

type quoteRow struct {
	Symbol            string   `json:"symbol"`
	Price             *float64 `json:"price"`
	ChangesPercentage float64  `json:"changesPercentage"`
	Change            float64  `json:"change"`
	Volume            int64    `json:"volume"`
	AvgVolume         *float64 `json:"avgVolume"`
	MarketCap         *float64 `json:"marketCap"`
	YearHigh          *float64 `json:"yearHigh"`
	YearLow           *float64 `json:"yearLow"`
	EPS               *float64 `json:"eps"`
	PE                *float64 `json:"pe"`
	Timestamp         int64    `json:"timestamp"`
}

func (c *Client) quoteRow(ctx context.Context, op models.Operation, symbol string) (*quoteRow, error) {
	var rows []quoteRow
	if err := c.get(ctx, op, symbol, "/quote/"+url.PathEscape(symbol), nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, models.NewProviderError(Name, op, symbol, models.ErrNoData)
	}
	return &rows[0], nil
}

func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	r, err := c.quoteRow(ctx, models.OpQuote, symbol)
	if err != nil {
		return nil, err
	}
	if r.Price == nil {
		return nil, models.NewProviderError(Name, models.OpQuote, symbol, pkgerrors.Wrap(models.ErrMissingField, "price"))
	}
	ts := time.Now().UTC()
	if r.Timestamp > 0 {
		ts = time.Unix(r.Timestamp, 0).UTC()
	}
	return &models.Quote{
		Symbol:        symbol,
		Price:         *r.Price,
		Change:        r.Change,
		ChangePercent: r.ChangesPercentage,
		Volume:        r.Volume,
		Timestamp:     ts,
		Source:        Name,
	}, nil
}

type historicalResponse struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	} `json:"historical"`
}

func (c *Client) Historical(ctx context.Context, symbol string, from, to time.Time) (*models.Series, error) {
	var r historicalResponse
	q := map[string][]string{
		"from": {from.Format("2006-01-02")},
		"to":   {to.Format("2006-01-02")},
	}
	if err := c.get(ctx, models.OpHistorical, symbol, "/historical-price-full/"+url.PathEscape(symbol), q, &r); err != nil {
		return nil, err
	}
	if len(r.Historical) == 0 {
		return nil, models.NewProviderError(Name, models.OpHistorical, symbol, models.ErrNoData)
	}
	s := &models.Series{Symbol: symbol, Source: Name, Points: make([]models.HistoricalPoint, 0, len(r.Historical))}
	for _, h := range r.Historical {
		d, ok := util.ParseTime(h.Date)
		if !ok {
			continue
		}
		s.Points = append(s.Points, models.HistoricalPoint{
			Date: util.Day(d), Open: h.Open, High: h.High, Low: h.Low, Close: h.Close, Volume: int64(h.Volume),
		})
	}
	// FMP lists newest first
	sort.Slice(s.Points, func(i, j int) bool { return s.Points[i].Date.Before(s.Points[j].Date) })
	return s, nil
}

type profileRow struct {
	Price   float64  `json:"price"`
	Beta    *float64 `json:"beta"`
	LastDiv *float64 `json:"lastDiv"`
	MktCap  *float64 `json:"mktCap"`
	VolAvg  *float64 `json:"volAvg"`
}

func ptr(v *float64) null.Float {
	return null.FloatFromPtr(v)
}

// CompanyInfo merges the quote row (valuation) with the profile (beta, dividend).
// A failing profile call only leaves those fields null.
func (c *Client) CompanyInfo(ctx context.Context, symbol string) (*models.CompanyInfo, error) {
	r, err := c.quoteRow(ctx, models.OpCompanyInfo, symbol)
	if err != nil {
		return nil, err
	}
	info := &models.CompanyInfo{
		Symbol:           symbol,
		PE:               ptr(r.PE),
		EPS:              ptr(r.EPS),
		MarketCap:        ptr(r.MarketCap),
		AvgVolume:        ptr(r.AvgVolume),
		FiftyTwoWeekHigh: ptr(r.YearHigh),
		FiftyTwoWeekLow:  ptr(r.YearLow),
		LastUpdated:      time.Now().UTC(),
		Source:           Name,
	}

	var profiles []profileRow
	if err := c.get(ctx, models.OpCompanyInfo, symbol, "/profile/"+url.PathEscape(symbol), nil, &profiles); err == nil && len(profiles) > 0 {
		p := profiles[0]
		info.Beta = ptr(p.Beta)
		if !info.MarketCap.Valid {
			info.MarketCap = ptr(p.MktCap)
		}
		if !info.AvgVolume.Valid {
			info.AvgVolume = ptr(p.VolAvg)
		}
		// lastDiv is the annual dividend per share
		price := p.Price
		if r.Price != nil {
			price = *r.Price
		}
		if p.LastDiv != nil && price > 0 {
			info.DividendYield = null.FloatFrom(*p.LastDiv / price * 100)
		}
	}
	return info, nil
}

type newsRow struct {
	Symbol        string `json:"symbol"`
	PublishedDate string `json:"publishedDate"`
	Title         string `json:"title"`
	Site          string `json:"site"`
	Text          string `json:"text"`
	URL           string `json:"url"`
}

func (c *Client) News(ctx context.Context, symbol string, from, to time.Time) (*models.NewsFeed, error) {
	var rows []newsRow
	q := map[string][]string{"tickers": {symbol}, "limit": {"50"}}
	if err := c.get(ctx, models.OpNews, symbol, "/stock_news", q, &rows); err != nil {
		return nil, err
	}
	feed := &models.NewsFeed{Symbol: symbol, Source: Name}
	for _, r := range rows {
		published, ok := util.ParseTime(r.PublishedDate)
		if !ok || !util.Within(published, from, to) {
			continue
		}
		feed.Items = append(feed.Items, models.NewsItem{
			Headline:    r.Title,
			Summary:     r.Text,
			URL:         r.URL,
			Publisher:   r.Site,
			PublishedAt: published,
			Source:      Name,
		})
	}
	if len(feed.Items) == 0 {
		return nil, models.NewProviderError(Name, models.OpNews, symbol, fmt.Errorf("%w in range", models.ErrNoData))
	}
	return feed, nil
}
