// Package alphavantage adapts the Alpha Vantage query API. Every value arrives as a
// string; placeholders such as "None" become null fields.
package alphavantage

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"FinFeed/internal/domain/models"
	"FinFeed/pkg/util"

	"github.com/go-resty/resty/v2"
	"github.com/guregu/null/v6"
	"github.com/pkg/errors"
)

const (
	Name           = "alphavantage"
	DefaultBaseURL = "https://www.alphavantage.co"
)

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

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
	c.http = resty.New().SetBaseURL(c.baseURL).SetTimeout(c.timeout)
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

// envelope carries the in-band errors Alpha Vantage returns with status 200.
type envelope struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (e envelope) err() error {
	switch {
	case e.ErrorMessage != "":
		return errors.Wrap(models.ErrNoData, e.ErrorMessage)
	case e.Note != "":
		return errors.Wrap(models.ErrRateLimited, e.Note)
	case e.Information != "":
		return errors.Wrap(models.ErrRateLimited, e.Information)
	}
	return nil
}

func (c *Client) query(ctx context.Context, op models.Operation, symbol string, params map[string]string, dest any) error {
	params["apikey"] = c.apiKey
	resp, err := c.http.R().SetContext(ctx).SetQueryParams(params).Get("/query")
	if err != nil {
		return models.NewProviderError(Name, op, symbol, errors.Wrapf(err, "query %s", params["function"]))
	}
	if resp.StatusCode() != 200 {
		return &models.ProviderError{
			Source: Name, Op: op, Symbol: symbol, StatusCode: resp.StatusCode(),
			Err: errors.Errorf("query %s: %s", params["function"], resp.Status()),
		}
	}
	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err == nil {
		if err := env.err(); err != nil {
			return models.NewProviderError(Name, op, symbol, err)
		}
	}
	if err := json.Unmarshal(resp.Body(), dest); err != nil {
		return models.NewProviderError(Name, op, symbol, errors.Wrapf(err, "decode %s", params["function"]))
	}
	return nil
}

func num(s string) null.Float {
	if v, ok := util.ParseNumber(s); ok {
		return null.FloatFrom(v)
	}
	return null.Float{}
}

// percent scales a fraction such as "0.0052" to 0.52.
func percent(s string) null.Float {
	f := num(s)
	if !f.Valid {
		return f
	}
	return null.FloatFrom(f.Float64 * 100)
}

type globalQuote struct {
	Quote struct {
		Symbol        string `json:"01. symbol"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		LatestDay     string `json:"07. latest trading day"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

func (c *Client) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	var r globalQuote
	if err := c.query(ctx, models.OpQuote, symbol, map[string]string{"function": "GLOBAL_QUOTE", "symbol": symbol}, &r); err != nil {
		return nil, err
	}
	if r.Quote.Symbol == "" {
		return nil, models.NewProviderError(Name, models.OpQuote, symbol, errors.Wrap(models.ErrNoData, "empty Global Quote"))
	}
	price, ok := util.ParseNumber(r.Quote.Price)
	if !ok {
		return nil, models.NewProviderError(Name, models.OpQuote, symbol, errors.Wrapf(models.ErrMissingField, "price %q", r.Quote.Price))
	}
	change, _ := util.ParseNumber(r.Quote.Change)
	// "10. change percent" is already a percentage with a trailing %
	pct, _ := util.ParseNumber(r.Quote.ChangePercent)
	vol, _ := util.ParseNumber(r.Quote.Volume)

	return &models.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: pct,
		Volume:        int64(vol),
		Timestamp:     util.ParseTimeDefault(r.Quote.LatestDay, time.Now().UTC()),
		Source:        Name,
	}, nil
}

type dailySeries struct {
	Series map[string]struct {
		Open   string `json:"1. open"`
		High   string `json:"2. high"`
		Low    string `json:"3. low"`
		Close  string `json:"4. close"`
		Volume string `json:"5. volume"`
	} `json:"Time Series (Daily)"`
}

func (c *Client) Historical(ctx context.Context, symbol string, from, to time.Time) (*models.Series, error) {
	size := "compact"
	if time.Since(from) > 140*24*time.Hour {
		size = "full"
	}
	var r dailySeries
	params := map[string]string{"function": "TIME_SERIES_DAILY", "symbol": symbol, "outputsize": size}
	if err := c.query(ctx, models.OpHistorical, symbol, params, &r); err != nil {
		return nil, err
	}

	s := &models.Series{Symbol: symbol, Source: Name}
	for day, bar := range r.Series {
		d, ok := util.ParseTime(day)
		if !ok || !util.Within(d, from, to) {
			continue
		}
		o, h, l, cl := num(bar.Open), num(bar.High), num(bar.Low), num(bar.Close)
		if !o.Valid || !h.Valid || !l.Valid || !cl.Valid {
			continue
		}
		v, _ := util.ParseNumber(bar.Volume)
		s.Points = append(s.Points, models.HistoricalPoint{
			Date: d, Open: o.Float64, High: h.Float64, Low: l.Float64, Close: cl.Float64, Volume: int64(v),
		})
	}
	if len(s.Points) == 0 {
		return nil, models.NewProviderError(Name, models.OpHistorical, symbol, models.ErrNoData)
	}
	sort.Slice(s.Points, func(i, j int) bool { return s.Points[i].Date.Before(s.Points[j].Date) })
	return s, nil
}

type overview struct {
	Symbol             string `json:"Symbol"`
	PERatio            string `json:"PERatio"`
	EPS                string `json:"EPS"`
	MarketCap          string `json:"MarketCapitalization"`
	DividendYield      string `json:"DividendYield"`
	Beta               string `json:"Beta"`
	FiftyTwoWeekHigh   string `json:"52WeekHigh"`
	FiftyTwoWeekLow    string `json:"52WeekLow"`
	RevenueTTM         string `json:"RevenueTTM"`
	ProfitMargin       string `json:"ProfitMargin"`
	OperatingMarginTTM string `json:"OperatingMarginTTM"`
	GrossProfitTTM     string `json:"GrossProfitTTM"`
}

func (c *Client) CompanyInfo(ctx context.Context, symbol string) (*models.CompanyInfo, error) {
	var r overview
	if err := c.query(ctx, models.OpCompanyInfo, symbol, map[string]string{"function": "OVERVIEW", "symbol": symbol}, &r); err != nil {
		return nil, err
	}
	if r.Symbol == "" {
		return nil, models.NewProviderError(Name, models.OpCompanyInfo, symbol, models.ErrNoData)
	}

	info := &models.CompanyInfo{
		Symbol:           symbol,
		PE:               num(r.PERatio),
		EPS:              num(r.EPS),
		MarketCap:        num(r.MarketCap),
		DividendYield:    percent(r.DividendYield),
		Beta:             num(r.Beta),
		FiftyTwoWeekHigh: num(r.FiftyTwoWeekHigh),
		FiftyTwoWeekLow:  num(r.FiftyTwoWeekLow),
		Revenue:          num(r.RevenueTTM),
		ProfitMargin:     percent(r.ProfitMargin),
		OperatingMargin:  percent(r.OperatingMarginTTM),
		LastUpdated:      time.Now().UTC(),
		Source:           Name,
	}
	if gp := num(r.GrossProfitTTM); gp.Valid && info.Revenue.Valid && info.Revenue.Float64 > 0 {
		info.GrossMargin = null.FloatFrom(gp.Float64 / info.Revenue.Float64 * 100)
	}
	return info, nil
}

type newsSentiment struct {
	Feed []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		TimePublished string `json:"time_published"`
		Summary       string `json:"summary"`
		Source        string `json:"source"`
	} `json:"feed"`
}

func (c *Client) News(ctx context.Context, symbol string, from, to time.Time) (*models.NewsFeed, error) {
	var r newsSentiment
	params := map[string]string{
		"function":  "NEWS_SENTIMENT",
		"tickers":   symbol,
		"time_from": from.UTC().Format("20060102T1504"),
		"time_to":   to.UTC().Format("20060102T1504"),
		"limit":     strconv.Itoa(50),
	}
	if err := c.query(ctx, models.OpNews, symbol, params, &r); err != nil {
		return nil, err
	}
	if len(r.Feed) == 0 {
		return nil, models.NewProviderError(Name, models.OpNews, symbol, models.ErrNoData)
	}
	feed := &models.NewsFeed{Symbol: symbol, Source: Name, Items: make([]models.NewsItem, 0, len(r.Feed))}
	for _, it := range r.Feed {
		feed.Items = append(feed.Items, models.NewsItem{
			Headline:    it.Title,
			Summary:     it.Summary,
			URL:         it.URL,
			Publisher:   it.Source,
			PublishedAt: util.ParseTimeDefault(it.TimePublished, time.Time{}),
			Source:      Name,
		})
	}
	return feed, nil
}
