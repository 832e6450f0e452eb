package usecase

import (
	"FinFeed/internal/domain/models"
	drepo "FinFeed/internal/domain/repository"
)

// DefaultPriority orders sources per operation by data quality observed in production.
var DefaultPriority = map[models.Operation][]string{
	models.OpQuote:       {"yahoo", "fmp", "alphavantage", "finnhub"},
	models.OpHistorical:  {"yahoo", "alphavantage", "fmp", "finnhub"},
	models.OpCompanyInfo: {"fmp", "finnhub", "alphavantage", "yahoo"},
	models.OpNews:        {"finnhub", "fmp", "alphavantage"},
}

// Registry resolves the ordered fallback chain for an operation.
type Registry struct {
	adapters []drepo.Adapter
	chains   map[models.Operation][]drepo.Adapter
}

// NewRegistry builds chains from priority. Configured adapters missing from a
// priority list are appended in registration order; adapters that do not
// support an operation are left out of its chain.
func NewRegistry(adapters []drepo.Adapter, priority map[models.Operation][]string) *Registry {
	if priority == nil {
		priority = DefaultPriority
	}
	byName := make(map[string]drepo.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}

	r := &Registry{adapters: adapters, chains: make(map[models.Operation][]drepo.Adapter)}
	for _, op := range models.Operations {
		if op == models.OpIndicators {
			continue
		}
		seen := make(map[string]bool)
		var chain []drepo.Adapter
		add := func(a drepo.Adapter) {
			if a == nil || seen[a.Name()] || !a.Supports(op) {
				return
			}
			seen[a.Name()] = true
			chain = append(chain, a)
		}
		for _, name := range priority[op] {
			add(byName[name])
		}
		for _, a := range adapters {
			add(a)
		}
		r.chains[op] = chain
	}
	return r
}

// AdaptersFor returns a copy of the chain for op, best first.
func (r *Registry) AdaptersFor(op models.Operation) []drepo.Adapter {
	if op == models.OpIndicators {
		op = models.OpHistorical
	}
	chain := r.chains[op]
	out := make([]drepo.Adapter, len(chain))
	copy(out, chain)
	return out
}

// Names lists every configured adapter.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Name())
	}
	return out
}

// PriorityFromConfig converts string keyed priorities to operations.
func PriorityFromConfig(in map[string][]string) map[models.Operation][]string {
	if len(in) == 0 {
		return DefaultPriority
	}
	out := make(map[models.Operation][]string, len(DefaultPriority))
	for op, names := range DefaultPriority {
		out[op] = names
	}
	for op, names := range in {
		out[models.Operation(op)] = names
	}
	return out
}
