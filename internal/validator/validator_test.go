package validator

import (
	"testing"
	"time"

	"FinFeed/internal/domain/models"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quote(price, changePct float64, volume int64) *models.Quote {
	return &models.Quote{Symbol: "AAPL", Price: price, ChangePercent: changePct, Volume: volume, Source: "test"}
}

func TestQuote_PriceBoundaries(t *testing.T) {
	v := New(DefaultBounds())

	tests := []struct {
		name  string
		price float64
		valid bool
	}{
		{"zero rejected", 0, false},
		{"negative rejected", -1, false},
		{"one cent accepted", 0.01, true},
		{"just under ceiling accepted", 99999.99, true},
		{"ceiling rejected", 100000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vd := v.Quote(quote(tt.price, 0, 100))
			assert.Equal(t, tt.valid, vd.Valid, vd.Reasons)
		})
	}
}

func TestQuote_ChangePercentBoundaries(t *testing.T) {
	v := New(DefaultBounds())

	assert.True(t, v.Quote(quote(10, 50, 1)).Valid)
	assert.True(t, v.Quote(quote(10, -50, 1)).Valid)
	assert.False(t, v.Quote(quote(10, 50.01, 1)).Valid)
	assert.False(t, v.Quote(quote(10, -50.01, 1)).Valid)
}

func TestQuote_VolumeDecidesFullness(t *testing.T) {
	v := New(DefaultBounds())

	vd := v.Quote(quote(150, 0.5, 0))
	assert.True(t, vd.Valid)
	assert.False(t, vd.Full)
	assert.Contains(t, vd.Reasons, "volume missing")

	vd = v.Quote(quote(150.25, 0.5, 58_000_000))
	assert.True(t, vd.Full)
	assert.Empty(t, vd.Reasons)

	assert.False(t, v.Quote(quote(150, 0.5, -1)).Valid)
}

func TestQuote_VolumeNotRequired(t *testing.T) {
	b := DefaultBounds()
	b.RequireVolume = false
	v := New(b)

	assert.True(t, v.Quote(quote(150, 0.5, 0)).Full)
}

func TestQuote_ConfigurableBounds(t *testing.T) {
	v := New(Bounds{MinPrice: 1, MaxPrice: 10000, MaxChangePercent: 20})

	assert.False(t, v.Quote(quote(0.5, 0, 1)).Valid)
	assert.False(t, v.Quote(quote(20000, 0, 1)).Valid)
	assert.False(t, v.Quote(quote(100, 25, 1)).Valid)
	assert.True(t, v.Quote(quote(100, 20, 1)).Valid)
}

func TestPoint_RejectsHighBelowLow(t *testing.T) {
	v := New(DefaultBounds())

	vd := v.Point(models.HistoricalPoint{Open: 10, High: 9, Low: 11, Close: 10})
	require.False(t, vd.Valid)
	assert.Contains(t, vd.Reasons[0], "high")

	assert.False(t, v.Point(models.HistoricalPoint{Open: 12, High: 11, Low: 9, Close: 10}).Valid)
	assert.False(t, v.Point(models.HistoricalPoint{Open: 10, High: 11, Low: 9, Close: 8}).Valid)
	assert.True(t, v.Point(models.HistoricalPoint{Open: 9, High: 11, Low: 9, Close: 11, Volume: 5}).Valid)
}

func TestSeries_FiltersSortsAndDeduplicates(t *testing.T) {
	v := New(DefaultBounds())
	d := func(day int) time.Time { return time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC) }

	in := &models.Series{Symbol: "AAPL", Source: "test", Points: []models.HistoricalPoint{
		{Date: d(3), Open: 10, High: 11, Low: 9, Close: 10},
		{Date: d(1), Open: 10, High: 11, Low: 9, Close: 10},
		{Date: d(2), Open: 10, High: 8, Low: 9, Close: 10},
		{Date: d(1), Open: 10, High: 12, Low: 9, Close: 11},
	}}

	out, vd := v.Series(in)
	require.True(t, vd.Valid)
	assert.False(t, vd.Full)
	require.Len(t, out.Points, 2)
	assert.Equal(t, d(1), out.Points[0].Date)
	assert.Equal(t, d(3), out.Points[1].Date)
	assert.Len(t, vd.Reasons, 2)
	assert.Len(t, in.Points, 4)
}

func TestSeries_CleanIsFull(t *testing.T) {
	v := New(DefaultBounds())
	in := &models.Series{Points: []models.HistoricalPoint{
		{Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Open: 10, High: 11, Low: 9, Close: 10},
	}}
	_, vd := v.Series(in)
	assert.True(t, vd.Full)
}

func TestSeries_AllRejected(t *testing.T) {
	v := New(DefaultBounds())
	_, vd := v.Series(&models.Series{Points: []models.HistoricalPoint{{Open: 10, High: 8, Low: 9, Close: 10}}})
	assert.False(t, vd.Valid)

	_, vd = v.Series(&models.Series{})
	assert.False(t, vd.Valid)
}

func TestCompanyInfo(t *testing.T) {
	v := New(DefaultBounds())

	assert.False(t, v.CompanyInfo(&models.CompanyInfo{}).Valid)

	partial := &models.CompanyInfo{Beta: null.FloatFrom(1.2)}
	vd := v.CompanyInfo(partial)
	assert.True(t, vd.Valid)
	assert.False(t, vd.Full)

	full := &models.CompanyInfo{
		PE:        null.FloatFrom(28.1),
		EPS:       null.FloatFrom(6.4),
		MarketCap: null.FloatFrom(2.9e12),
	}
	assert.True(t, v.CompanyInfo(full).Full)

	bad := &models.CompanyInfo{FiftyTwoWeekHigh: null.FloatFrom(100), FiftyTwoWeekLow: null.FloatFrom(120)}
	assert.False(t, v.CompanyInfo(bad).Valid)

	fraction := &models.CompanyInfo{DividendYield: null.FloatFrom(250)}
	assert.False(t, v.CompanyInfo(fraction).Valid)
}

func TestNews(t *testing.T) {
	v := New(DefaultBounds())

	out, vd := v.News(&models.NewsFeed{Items: []models.NewsItem{
		{Headline: "a", URL: "https://x/a"},
		{Headline: "", URL: "https://x/b"},
	}})
	assert.True(t, vd.Valid)
	assert.False(t, vd.Full)
	assert.Len(t, out.Items, 1)

	_, vd = v.News(&models.NewsFeed{Items: []models.NewsItem{{Headline: "a"}}})
	assert.False(t, vd.Valid)
}

func TestValidate_Dispatch(t *testing.T) {
	v := New(DefaultBounds())

	assert.True(t, v.Validate(models.OpQuote, quote(1, 0, 1)).Full)
	assert.False(t, v.Validate(models.OpQuote, "nope").Valid)
}
