package sources

import (
	"testing"

	"FinFeed/internal/domain/repository"
	"FinFeed/pkg/config"

	"github.com/stretchr/testify/assert"
)

func names(as []repository.Adapter) []string {
	out := make([]string, 0, len(as))
	for _, a := range as {
		out = append(out, a.Name())
	}
	return out
}

func TestBuild_OnlyCredentialedProviders(t *testing.T) {
	var cfg config.ProvidersConfig
	assert.Empty(t, Build(cfg))

	cfg.Finnhub.APIKey = "fh"
	cfg.Yahoo.Enabled = true
	assert.Equal(t, []string{"yahoo", "finnhub"}, names(Build(cfg)))

	cfg.FMP.APIKey = "fmp"
	cfg.AlphaVantage.APIKey = "av"
	assert.Equal(t, []string{"yahoo", "fmp", "alphavantage", "finnhub"}, names(Build(cfg)))
}

func TestBuild_SyntheticReplacesEverything(t *testing.T) {
	var cfg config.ProvidersConfig
	cfg.Finnhub.APIKey = "fh"
	cfg.Yahoo.Enabled = true
	cfg.Synthetic.Enabled = true
	cfg.Synthetic.Seed = 7

	assert.Equal(t, []string{"synthetic"}, names(Build(cfg)))
}

func TestRules(t *testing.T) {
	var cfg config.ProvidersConfig
	cfg.AlphaVantage.RateLimit = config.RateLimit{Capacity: 5, RefillPerSec: 0.1}

	r := Rules(cfg)
	assert.Equal(t, 5.0, r["alphavantage"].Capacity)
	assert.Zero(t, r["finnhub"].Capacity)
}
