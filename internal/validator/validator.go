// Package validator holds the sanity checks applied to every provider response.
// Checks never fail loudly: they return a Verdict the orchestrator uses to rank results.
package validator

import (
	"fmt"
	"math"
	"sort"

	"FinFeed/internal/domain/models"
)

// Bounds are the configurable plausibility limits.
type Bounds struct {
	MinPrice         float64 // exclusive
	MaxPrice         float64 // exclusive
	MaxChangePercent float64 // inclusive, absolute
	RequireVolume    bool    // quote is only fully valid with volume > 0
}

// DefaultBounds returns provider-agnostic limits wide enough for equities and ETFs.
func DefaultBounds() Bounds {
	return Bounds{
		MinPrice:         0,
		MaxPrice:         100000,
		MaxChangePercent: 50,
		RequireVolume:    true,
	}
}

// Verdict is the outcome of a check. Full implies Valid.
type Verdict struct {
	Valid   bool     `json:"valid"`
	Full    bool     `json:"full"`
	Reasons []string `json:"reasons,omitempty"`
}

func reject(reasons ...string) Verdict { return Verdict{Reasons: reasons} }

type Validator struct {
	bounds Bounds
}

func New(b Bounds) *Validator {
	return &Validator{bounds: b}
}

// Bounds returns the limits in use.
func (v *Validator) Bounds() Bounds { return v.bounds }

func (v *Validator) checkPrice(field string, p float64) string {
	switch {
	case math.IsNaN(p) || math.IsInf(p, 0):
		return fmt.Sprintf("%s is not a number", field)
	case p <= v.bounds.MinPrice:
		return fmt.Sprintf("%s %.4f not above %.4f", field, p, v.bounds.MinPrice)
	case v.bounds.MaxPrice > 0 && p >= v.bounds.MaxPrice:
		return fmt.Sprintf("%s %.4f not below ceiling %.2f", field, p, v.bounds.MaxPrice)
	}
	return ""
}

// Quote checks a quote. Price, change percent and non-negative volume decide validity;
// a positive volume is additionally required for a full verdict when configured.
func (v *Validator) Quote(q *models.Quote) Verdict {
	if q == nil {
		return reject("quote missing")
	}
	var reasons []string
	if r := v.checkPrice("price", q.Price); r != "" {
		reasons = append(reasons, r)
	}
	if math.IsNaN(q.ChangePercent) || math.Abs(q.ChangePercent) > v.bounds.MaxChangePercent {
		reasons = append(reasons, fmt.Sprintf("change percent %.2f exceeds %.2f", q.ChangePercent, v.bounds.MaxChangePercent))
	}
	if q.Volume < 0 {
		reasons = append(reasons, fmt.Sprintf("volume %d negative", q.Volume))
	}
	if len(reasons) > 0 {
		return reject(reasons...)
	}

	if v.bounds.RequireVolume && q.Volume == 0 {
		return Verdict{Valid: true, Reasons: []string{"volume missing"}}
	}
	return Verdict{Valid: true, Full: true}
}

// Point checks one OHLC bar.
func (v *Validator) Point(p models.HistoricalPoint) Verdict {
	var reasons []string
	for _, f := range []struct {
		name string
		val  float64
	}{{"open", p.Open}, {"high", p.High}, {"low", p.Low}, {"close", p.Close}} {
		if r := v.checkPrice(f.name, f.val); r != "" {
			reasons = append(reasons, r)
		}
	}
	if p.High < p.Low {
		reasons = append(reasons, fmt.Sprintf("high %.4f below low %.4f", p.High, p.Low))
	} else {
		if p.Open < p.Low || p.Open > p.High {
			reasons = append(reasons, fmt.Sprintf("open %.4f outside [%.4f, %.4f]", p.Open, p.Low, p.High))
		}
		if p.Close < p.Low || p.Close > p.High {
			reasons = append(reasons, fmt.Sprintf("close %.4f outside [%.4f, %.4f]", p.Close, p.Low, p.High))
		}
	}
	if p.Volume < 0 {
		reasons = append(reasons, fmt.Sprintf("volume %d negative", p.Volume))
	}
	if len(reasons) > 0 {
		return reject(reasons...)
	}
	return Verdict{Valid: true, Full: true}
}

// Series drops rejected bars and returns the surviving, ascending and de-duplicated ones.
// The input is not modified.
func (v *Validator) Series(s *models.Series) (*models.Series, Verdict) {
	if s == nil || len(s.Points) == 0 {
		return s, reject("series empty")
	}

	kept := make([]models.HistoricalPoint, 0, len(s.Points))
	var reasons []string
	for _, p := range s.Points {
		if vd := v.Point(p); !vd.Valid {
			reasons = append(reasons, fmt.Sprintf("%s: %s", p.Date.Format("2006-01-02"), vd.Reasons[0]))
			continue
		}
		kept = append(kept, p)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Date.Before(kept[j].Date) })
	deduped := kept[:0]
	for i, p := range kept {
		if i > 0 && sameDay(p, deduped[len(deduped)-1]) {
			reasons = append(reasons, fmt.Sprintf("%s: duplicate date", p.Date.Format("2006-01-02")))
			continue
		}
		deduped = append(deduped, p)
	}

	out := &models.Series{Symbol: s.Symbol, Source: s.Source, Points: deduped}
	if len(deduped) == 0 {
		return out, reject(append([]string{"no valid points"}, reasons...)...)
	}
	return out, Verdict{Valid: true, Full: len(reasons) == 0, Reasons: reasons}
}

func sameDay(a, b models.HistoricalPoint) bool {
	ay, am, ad := a.Date.UTC().Date()
	by, bm, bd := b.Date.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// CompanyInfo requires at least one field and a coherent 52 week range.
// Market cap, PE and EPS together make it full.
func (v *Validator) CompanyInfo(c *models.CompanyInfo) Verdict {
	if c == nil {
		return reject("company info missing")
	}
	fields := []bool{
		c.PE.Valid, c.EPS.Valid, c.MarketCap.Valid, c.DividendYield.Valid, c.Beta.Valid,
		c.AvgVolume.Valid, c.FiftyTwoWeekHigh.Valid, c.FiftyTwoWeekLow.Valid, c.Revenue.Valid,
		c.ProfitMargin.Valid, c.OperatingMargin.Valid, c.GrossMargin.Valid,
	}
	present := 0
	for _, ok := range fields {
		if ok {
			present++
		}
	}
	if present == 0 {
		return reject("no fundamentals present")
	}

	var reasons []string
	if c.MarketCap.Valid && c.MarketCap.Float64 < 0 {
		reasons = append(reasons, "market cap negative")
	}
	if c.FiftyTwoWeekHigh.Valid && c.FiftyTwoWeekLow.Valid && c.FiftyTwoWeekHigh.Float64 < c.FiftyTwoWeekLow.Float64 {
		reasons = append(reasons, "52 week high below low")
	}
	if c.FiftyTwoWeekHigh.Valid && v.bounds.MaxPrice > 0 && c.FiftyTwoWeekHigh.Float64 >= v.bounds.MaxPrice {
		reasons = append(reasons, "52 week high above price ceiling")
	}
	if c.DividendYield.Valid && (c.DividendYield.Float64 < 0 || c.DividendYield.Float64 > 100) {
		reasons = append(reasons, fmt.Sprintf("dividend yield %.2f outside [0, 100]", c.DividendYield.Float64))
	}
	if len(reasons) > 0 {
		return reject(reasons...)
	}

	var missing []string
	if !c.MarketCap.Valid {
		missing = append(missing, "market cap missing")
	}
	if !c.PE.Valid {
		missing = append(missing, "pe missing")
	}
	if !c.EPS.Valid {
		missing = append(missing, "eps missing")
	}
	return Verdict{Valid: true, Full: len(missing) == 0, Reasons: missing}
}

// News keeps items with a headline and a URL.
func (v *Validator) News(f *models.NewsFeed) (*models.NewsFeed, Verdict) {
	if f == nil || len(f.Items) == 0 {
		return f, reject("no news items")
	}
	kept := make([]models.NewsItem, 0, len(f.Items))
	dropped := 0
	for _, it := range f.Items {
		if it.Headline == "" || it.URL == "" {
			dropped++
			continue
		}
		kept = append(kept, it)
	}
	out := &models.NewsFeed{Symbol: f.Symbol, Source: f.Source, Items: kept}
	if len(kept) == 0 {
		return out, reject("no news item has headline and url")
	}
	if dropped > 0 {
		return out, Verdict{Valid: true, Reasons: []string{fmt.Sprintf("%d items without headline or url", dropped)}}
	}
	return out, Verdict{Valid: true, Full: true}
}

// Validate dispatches on the candidate's type. Unknown candidates are rejected.
func (v *Validator) Validate(op models.Operation, candidate any) Verdict {
	switch c := candidate.(type) {
	case *models.Quote:
		return v.Quote(c)
	case *models.Series:
		_, vd := v.Series(c)
		return vd
	case *models.CompanyInfo:
		return v.CompanyInfo(c)
	case *models.NewsFeed:
		_, vd := v.News(c)
		return vd
	}
	return reject(fmt.Sprintf("unexpected %T for %s", candidate, op))
}
