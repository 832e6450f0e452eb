// Package sources turns provider configuration into the adapter set.
package sources

import (
	"FinFeed/internal/domain/repository"
	"FinFeed/internal/service/alphavantage"
	"FinFeed/internal/service/finnhub"
	"FinFeed/internal/service/fmp"
	"FinFeed/internal/service/ratelimit"
	"FinFeed/internal/service/synthetic"
	"FinFeed/internal/service/yahoo"
	"FinFeed/pkg/config"
	httpclient "FinFeed/pkg/http"
)

// Build returns one adapter per provider whose credential or flag is present.
// Synthetic mode replaces every real provider.
func Build(cfg config.ProvidersConfig) []repository.Adapter {
	if cfg.Synthetic.Enabled {
		var opts []synthetic.Option
		if cfg.Synthetic.Seed != 0 {
			opts = append(opts, synthetic.WithSeed(cfg.Synthetic.Seed))
		}
		return []repository.Adapter{synthetic.New(opts...)}
	}

	var out []repository.Adapter
	if cfg.Yahoo.Enabled {
		out = append(out, yahoo.New())
	}
	if p := cfg.FMP; p.APIKey != "" {
		opts := []fmp.Option{fmp.WithHTTPClient(httpclient.NewClient(httpclient.WithTimeout(cfg.RequestTimeout)))}
		if p.BaseURL != "" {
			opts = append(opts, fmp.WithBaseURL(p.BaseURL))
		}
		out = append(out, fmp.New(p.APIKey, opts...))
	}
	if p := cfg.AlphaVantage; p.APIKey != "" {
		opts := []alphavantage.Option{alphavantage.WithTimeout(cfg.RequestTimeout)}
		if p.BaseURL != "" {
			opts = append(opts, alphavantage.WithBaseURL(p.BaseURL))
		}
		out = append(out, alphavantage.New(p.APIKey, opts...))
	}
	if p := cfg.Finnhub; p.APIKey != "" {
		opts := []finnhub.Option{finnhub.WithTimeout(cfg.RequestTimeout)}
		if p.BaseURL != "" {
			opts = append(opts, finnhub.WithBaseURL(p.BaseURL))
		}
		out = append(out, finnhub.New(p.APIKey, opts...))
	}
	return out
}

func rule(r config.RateLimit) ratelimit.Rule {
	return ratelimit.Rule{Capacity: r.Capacity, RefillPerSec: r.RefillPerSec}
}

// Rules returns the local rate limit per source name.
func Rules(cfg config.ProvidersConfig) map[string]ratelimit.Rule {
	return map[string]ratelimit.Rule{
		finnhub.Name:      rule(cfg.Finnhub.RateLimit),
		alphavantage.Name: rule(cfg.AlphaVantage.RateLimit),
		fmp.Name:          rule(cfg.FMP.RateLimit),
		yahoo.Name:        rule(cfg.Yahoo.RateLimit),
	}
}
