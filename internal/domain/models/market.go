package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// Operation names a logical data request the orchestrator can serve.
type Operation string

const (
	OpQuote       Operation = "quote"
	OpHistorical  Operation = "historical"
	OpCompanyInfo Operation = "company_info"
	OpNews        Operation = "news"
	OpIndicators  Operation = "indicators"
)

// Operations lists every operation in a stable order.
var Operations = []Operation{OpQuote, OpHistorical, OpCompanyInfo, OpNews, OpIndicators}

// Quote is a point-in-time price snapshot produced by one source.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Volume        int64     `json:"volume"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
}

// HistoricalPoint is one daily OHLCV bar.
type HistoricalPoint struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Series is an ascending, de-duplicated run of daily bars.
type Series struct {
	Symbol string            `json:"symbol"`
	Points []HistoricalPoint `json:"points"`
	Source string            `json:"source"`
}

// CompanyInfo carries fundamentals. A null field means the source does not expose it.
// DividendYield and the margins are percentages; MarketCap and Revenue are currency units.
type CompanyInfo struct {
	Symbol           string     `json:"symbol"`
	PE               null.Float `json:"pe"`
	EPS              null.Float `json:"eps"`
	MarketCap        null.Float `json:"marketCap"`
	DividendYield    null.Float `json:"dividendYield"`
	Beta             null.Float `json:"beta"`
	AvgVolume        null.Float `json:"avgVolume"`
	FiftyTwoWeekHigh null.Float `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow  null.Float `json:"fiftyTwoWeekLow"`
	Revenue          null.Float `json:"revenue"`
	ProfitMargin     null.Float `json:"profitMargin"`
	OperatingMargin  null.Float `json:"operatingMargin"`
	GrossMargin      null.Float `json:"grossMargin"`
	LastUpdated      time.Time  `json:"lastUpdated"`
	Source           string     `json:"source"`
}

// NewsItem is a single headline about a symbol.
type NewsItem struct {
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	URL         string    `json:"url"`
	Publisher   string    `json:"publisher,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
	Source      string    `json:"source"`
}

// NewsFeed groups the news items of one symbol returned by one source.
type NewsFeed struct {
	Symbol string     `json:"symbol"`
	Items  []NewsItem `json:"items"`
	Source string     `json:"source"`
}

// TechnicalIndicators are computed from a daily series; null means not enough history.
type TechnicalIndicators struct {
	Symbol          string     `json:"symbol"`
	AsOf            time.Time  `json:"asOf"`
	SMA20           null.Float `json:"sma20"`
	SMA50           null.Float `json:"sma50"`
	EMA12           null.Float `json:"ema12"`
	EMA26           null.Float `json:"ema26"`
	RSI14           null.Float `json:"rsi14"`
	MACD            null.Float `json:"macd"`
	MACDSignal      null.Float `json:"macdSignal"`
	MACDHistogram   null.Float `json:"macdHistogram"`
	BollingerUpper  null.Float `json:"bollingerUpper"`
	BollingerMiddle null.Float `json:"bollingerMiddle"`
	BollingerLower  null.Float `json:"bollingerLower"`
	ATR14           null.Float `json:"atr14"`
	Source          string     `json:"source"`
}

// Meta describes where a result came from and how trustworthy it is.
type Meta struct {
	Source    string        `json:"source"`
	Partial   bool          `json:"partial"`
	Stale     bool          `json:"stale"`
	Cached    bool          `json:"cached"`
	FetchedAt time.Time     `json:"fetchedAt"`
	Age       time.Duration `json:"age"`
	// Failures lists the sources skipped before this result was chosen.
	Failures []SourceError `json:"failures,omitempty"`
}

// Result pairs canonical data with its provenance.
type Result[T any] struct {
	Data T    `json:"data"`
	Meta Meta `json:"meta"`
}

// QuoteUpdate is what subscribers receive on every poll tick.
type QuoteUpdate struct {
	Quote Quote `json:"quote"`
	Meta  Meta  `json:"meta"`
}

// ConnectionState is the aggregate connectivity reported by the heartbeat.
type ConnectionState string

const (
	StateUnknown      ConnectionState = "unknown"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// ConnectionStatus is delivered to connection listeners on transitions.
type ConnectionStatus struct {
	State     ConnectionState `json:"state"`
	CheckedAt time.Time       `json:"checkedAt"`
	Error     string          `json:"error,omitempty"`
}
