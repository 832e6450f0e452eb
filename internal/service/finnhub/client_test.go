package finnhub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"FinFeed/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("token"))
		body, ok := routes[r.URL.Path]
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Quote(t *testing.T) {
	// Arrange
	srv := newServer(t, map[string]string{
		"/quote": `{"c":150.25,"d":1.25,"dp":0.8389,"h":151,"l":149,"o":149.5,"pc":149,"t":1714579200}`,
	})
	c := New("test-key", WithBaseURL(srv.URL))

	// Act
	q, err := c.Quote(context.Background(), "AAPL")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 150.25, q.Price)
	assert.Equal(t, 0.8389, q.ChangePercent)
	assert.Equal(t, int64(0), q.Volume)
	assert.Equal(t, Name, q.Source)
	assert.Equal(t, time.Unix(1714579200, 0).UTC(), q.Timestamp)
}

func TestClient_Quote_UnknownSymbol(t *testing.T) {
	srv := newServer(t, map[string]string{"/quote": `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`})
	c := New("test-key", WithBaseURL(srv.URL))

	_, err := c.Quote(context.Background(), "ZZZZ")

	var perr *models.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, models.ErrNoData)
	assert.False(t, perr.Retryable())
}

func TestClient_Quote_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := New("test-key", WithBaseURL(srv.URL))

	_, err := c.Quote(context.Background(), "AAPL")

	var perr *models.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)
	assert.True(t, perr.Retryable())
}

func TestClient_Historical(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/stock/candle": `{"c":[10.5,11],"h":[11,11.5],"l":[10,10.5],"o":[10.2,10.6],"t":[1704153600,1704240000],"v":[1000,2000],"s":"ok"}`,
	})
	c := New("test-key", WithBaseURL(srv.URL))

	s, err := c.Historical(context.Background(), "AAPL", time.Unix(1704153600, 0), time.Unix(1704240000, 0))

	require.NoError(t, err)
	require.Len(t, s.Points, 2)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), s.Points[0].Date)
	assert.Equal(t, int64(2000), s.Points[1].Volume)
	assert.Equal(t, 11.5, s.Points[1].High)
}

func TestClient_Historical_NoData(t *testing.T) {
	srv := newServer(t, map[string]string{"/stock/candle": `{"s":"no_data"}`})
	c := New("test-key", WithBaseURL(srv.URL))

	_, err := c.Historical(context.Background(), "AAPL", time.Now().AddDate(0, 0, -5), time.Now())
	assert.ErrorIs(t, err, models.ErrNoData)
}

func TestClient_CompanyInfo_ScalesMillions(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/stock/metric": `{"metric":{"peTTM":28.5,"epsTTM":6.42,"marketCapitalization":2900000,"dividendYieldIndicatedAnnual":0.52,"beta":1.29,"10DayAverageTradingVolume":55.2,"52WeekHigh":199.62,"52WeekLow":164.08,"grossMarginTTM":45.6,"revenueGrowthTTMYoy":null}}`,
	})
	c := New("test-key", WithBaseURL(srv.URL))

	info, err := c.CompanyInfo(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, 2.9e12, info.MarketCap.Float64)
	assert.InDelta(t, 55.2e6, info.AvgVolume.Float64, 1)
	assert.Equal(t, 0.52, info.DividendYield.Float64)
	assert.Equal(t, 28.5, info.PE.Float64)
	assert.False(t, info.Revenue.Valid)
	assert.False(t, info.ProfitMargin.Valid)
}

func TestClient_News(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/company-news": `[{"category":"company","datetime":1714579200,"headline":"Apple beats","id":1,"source":"Reuters","summary":"...","url":"https://example.com/a"}]`,
	})
	c := New("test-key", WithBaseURL(srv.URL))

	feed, err := c.News(context.Background(), "AAPL", time.Now().AddDate(0, 0, -7), time.Now())

	require.NoError(t, err)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "Reuters", feed.Items[0].Publisher)
	assert.Equal(t, Name, feed.Items[0].Source)
}

func TestClient_Supports(t *testing.T) {
	c := New("k")
	assert.True(t, c.Supports(models.OpNews))
	assert.False(t, c.Supports(models.OpIndicators))
}
