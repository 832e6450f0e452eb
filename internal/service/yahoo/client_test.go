package yahoo

import (
	"context"
	"errors"
	"testing"
	"time"

	"FinFeed/internal/domain/models"

	finance "github.com/piquette/finance-go"
	"github.com/piquette/finance-go/chart"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func equityStub(eq *finance.Equity, err error) EquityFunc {
	return func(string) (*finance.Equity, error) { return eq, err }
}

func TestClient_Quote(t *testing.T) {
	eq := &finance.Equity{}
	eq.Symbol = "AAPL"
	eq.RegularMarketPrice = 150.25
	eq.RegularMarketChange = 1.25
	eq.RegularMarketChangePercent = 0.84
	eq.RegularMarketVolume = 58000000
	eq.RegularMarketTime = 1714579200
	c := New(WithEquityFunc(equityStub(eq, nil)))

	q, err := c.Quote(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, 150.25, q.Price)
	assert.Equal(t, int64(58000000), q.Volume)
	assert.Equal(t, time.Unix(1714579200, 0).UTC(), q.Timestamp)
	assert.Equal(t, Name, q.Source)
}

func TestClient_Quote_MissingPriceAndSDKError(t *testing.T) {
	c := New(WithEquityFunc(equityStub(&finance.Equity{}, nil)))
	_, err := c.Quote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, models.ErrMissingField)

	boom := errors.New("remote error")
	c = New(WithEquityFunc(equityStub(nil, boom)))
	_, err = c.Quote(context.Background(), "AAPL")
	var perr *models.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, boom)
	assert.True(t, perr.Retryable())
}

func TestClient_Quote_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := New(WithEquityFunc(func(string) (*finance.Equity, error) {
		<-block
		return nil, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Quote(ctx, "AAPL")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Historical_ConvertsDecimalBars(t *testing.T) {
	var gotParams *chart.Params
	c := New(WithBarsFunc(func(p *chart.Params) ([]*finance.ChartBar, error) {
		gotParams = p
		return []*finance.ChartBar{
			{Open: decimal.RequireFromString("168.5"), High: decimal.RequireFromString("170.25"),
				Low: decimal.RequireFromString("167.75"), Close: decimal.RequireFromString("169.3"),
				Volume: 1200, Timestamp: 1714570200},
		}, nil
	}))

	s, err := c.Historical(context.Background(), "AAPL", time.Now().AddDate(0, 0, -3), time.Now())

	require.NoError(t, err)
	require.NotNil(t, gotParams)
	assert.Equal(t, "AAPL", gotParams.Symbol)
	require.Len(t, s.Points, 1)
	assert.Equal(t, 170.25, s.Points[0].High)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), s.Points[0].Date)
}

func TestClient_CompanyInfo_ZerosAreNull(t *testing.T) {
	eq := &finance.Equity{TrailingPE: 28.1, EpsTrailingTwelveMonths: 6.4, MarketCap: 2900000000000, TrailingAnnualDividendYield: 0.0052}
	eq.FiftyTwoWeekHigh = 199.62
	c := New(WithEquityFunc(equityStub(eq, nil)))

	info, err := c.CompanyInfo(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, 2.9e12, info.MarketCap.Float64)
	assert.InDelta(t, 0.52, info.DividendYield.Float64, 1e-9)
	assert.False(t, info.FiftyTwoWeekLow.Valid)
	assert.False(t, info.Beta.Valid)
}

func TestClient_NewsUnsupported(t *testing.T) {
	c := New()
	assert.False(t, c.Supports(models.OpNews))
	_, err := c.News(context.Background(), "AAPL", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, models.ErrUnsupported)
}
