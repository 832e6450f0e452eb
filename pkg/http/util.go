package http

import (
	"time"

	xutil "FinFeed/pkg/util"
)

// ParseTimeDefault parses RFC3339, provider layouts or unix seconds, returning def if s is empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }
