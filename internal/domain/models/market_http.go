package models

// Requests for market data HTTP endpoints. Defined in domain for consistency and reuse.

type SymbolRequest struct {
	Symbol  string `query:"symbol" json:"symbol" validate:"required,ticker"`
	Refresh bool   `query:"refresh" json:"refresh"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	Days   int    `query:"days" json:"days" default:"90" validate:"gte=1,lte=3650"`
}

type NewsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	Days   int    `query:"days" json:"days" default:"7" validate:"gte=1,lte=90"`
}

type ArchiveRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
}

type StreamRequest struct {
	Symbols []string `query:"symbol" json:"symbols" validate:"required,min=1,max=20,dive,required,ticker"`
}
