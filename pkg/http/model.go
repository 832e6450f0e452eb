package http

import (
	"errors"
	"time"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse wraps list results.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// TimeRange is a closed query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

var ErrInvertedRange = errors.New("from must not be after to")

// ResolveTimeRange fills a window from optional query values. A missing to is now,
// a missing from is window before to.
func ResolveTimeRange(from, to string, now time.Time, window time.Duration) (TimeRange, error) {
	r := TimeRange{To: ParseTimeDefault(to, now)}
	r.From = ParseTimeDefault(from, r.To.Add(-window))
	if r.From.After(r.To) {
		return r, ErrInvertedRange
	}
	return r, nil
}
