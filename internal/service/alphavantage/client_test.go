package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FinFeed/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newServer answers /query by the "function" parameter.
func newServer(t *testing.T, byFunction map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "demo", r.URL.Query().Get("apikey"))
		body, ok := byFunction[r.URL.Query().Get("function")]
		if !ok {
			body = `{}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Quote(t *testing.T) {
	srv := newServer(t, map[string]string{"GLOBAL_QUOTE": `{"Global Quote":{
		"01. symbol":"IBM","02. open":"166.00","05. price":"167.1300","06. volume":"3987531",
		"07. latest trading day":"2024-05-01","08. previous close":"166.20",
		"09. change":"0.9300","10. change percent":"0.5596%"}}`})
	c := New("demo", WithBaseURL(srv.URL))

	q, err := c.Quote(context.Background(), "IBM")

	require.NoError(t, err)
	assert.Equal(t, 167.13, q.Price)
	assert.InDelta(t, 0.5596, q.ChangePercent, 1e-9)
	assert.Equal(t, int64(3987531), q.Volume)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), q.Timestamp)
}

func TestClient_Quote_RateLimitNoteIsNotRetryable(t *testing.T) {
	srv := newServer(t, map[string]string{"GLOBAL_QUOTE": `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`})
	c := New("demo", WithBaseURL(srv.URL))

	_, err := c.Quote(context.Background(), "IBM")

	var perr *models.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, models.ErrRateLimited)
	assert.False(t, perr.Retryable())
}

func TestClient_Quote_EmptyAndMissingPrice(t *testing.T) {
	srv := newServer(t, map[string]string{"GLOBAL_QUOTE": `{"Global Quote":{}}`})
	c := New("demo", WithBaseURL(srv.URL))
	_, err := c.Quote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, models.ErrNoData)

	srv = newServer(t, map[string]string{"GLOBAL_QUOTE": `{"Global Quote":{"01. symbol":"IBM","05. price":"None"}}`})
	c = New("demo", WithBaseURL(srv.URL))
	_, err = c.Quote(context.Background(), "IBM")
	assert.ErrorIs(t, err, models.ErrMissingField)
}

func TestClient_Historical_FiltersAndSorts(t *testing.T) {
	srv := newServer(t, map[string]string{"TIME_SERIES_DAILY": `{
		"Meta Data":{"2. Symbol":"IBM"},
		"Time Series (Daily)":{
			"2024-05-01":{"1. open":"166.0","2. high":"168.0","3. low":"165.5","4. close":"167.1","5. volume":"100"},
			"2024-04-30":{"1. open":"165.0","2. high":"166.5","3. low":"164.0","4. close":"166.2","5. volume":"200"},
			"2024-01-02":{"1. open":"160.0","2. high":"161.0","3. low":"159.0","4. close":"160.5","5. volume":"300"}
		}}`})
	c := New("demo", WithBaseURL(srv.URL))

	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	s, err := c.Historical(context.Background(), "IBM", from, to)

	require.NoError(t, err)
	require.Len(t, s.Points, 2)
	assert.Equal(t, time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), s.Points[0].Date)
	assert.Equal(t, int64(100), s.Points[1].Volume)
}

func TestClient_CompanyInfo_UnitCorrections(t *testing.T) {
	srv := newServer(t, map[string]string{"OVERVIEW": `{
		"Symbol":"IBM","PERatio":"19.2","EPS":"8.69","MarketCapitalization":"153000000000",
		"DividendYield":"0.0398","Beta":"None","52WeekHigh":"199.18","52WeekLow":"120.55",
		"RevenueTTM":"61860000000","ProfitMargin":"0.121","OperatingMarginTTM":"0.127","GrossProfitTTM":"32688000000"}`})
	c := New("demo", WithBaseURL(srv.URL))

	info, err := c.CompanyInfo(context.Background(), "IBM")

	require.NoError(t, err)
	assert.InDelta(t, 3.98, info.DividendYield.Float64, 1e-9)
	assert.InDelta(t, 12.1, info.ProfitMargin.Float64, 1e-9)
	assert.False(t, info.Beta.Valid)
	assert.Equal(t, 1.53e11, info.MarketCap.Float64)
	assert.InDelta(t, 52.84, info.GrossMargin.Float64, 0.01)
}

func TestClient_News(t *testing.T) {
	srv := newServer(t, map[string]string{"NEWS_SENTIMENT": `{"items":"1","feed":[
		{"title":"IBM rallies","url":"https://example.com/ibm","time_published":"20240501T153000","summary":"s","source":"Benzinga"}]}`})
	c := New("demo", WithBaseURL(srv.URL))

	feed, err := c.News(context.Background(), "IBM", time.Now().AddDate(0, 0, -7), time.Now())

	require.NoError(t, err)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC), feed.Items[0].PublishedAt)
	assert.Equal(t, "Benzinga", feed.Items[0].Publisher)
}

func TestClient_ErrorMessageIsNoData(t *testing.T) {
	srv := newServer(t, map[string]string{"OVERVIEW": `{"Error Message":"Invalid API call."}`})
	c := New("demo", WithBaseURL(srv.URL))

	_, err := c.CompanyInfo(context.Background(), "IBM")
	assert.ErrorIs(t, err, models.ErrNoData)
}
