// Package cache keeps the last good result per (operation, symbol).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"FinFeed/internal/domain/models"
	pkgcache "FinFeed/pkg/cache"
)

var ErrMiss = errors.New("market cache: miss")

// Entry is what the store persists for one key.
type Entry struct {
	Value     json.RawMessage `json:"value"`
	FetchedAt time.Time       `json:"fetchedAt"`
	Source    string          `json:"source"`
	Partial   bool            `json:"partial"`
}

// Decode unmarshals the cached value into dest.
func (e *Entry) Decode(dest any) error {
	return json.Unmarshal(e.Value, dest)
}

// Hit is a lookup result. Fresh is false once Age exceeds the operation TTL.
type Hit struct {
	Entry
	Age   time.Duration
	Fresh bool
}

// Meta renders the hit as response metadata.
func (h *Hit) Meta() models.Meta {
	return models.Meta{
		Source:    h.Source,
		Partial:   h.Partial,
		Cached:    true,
		FetchedAt: h.FetchedAt,
		Age:       h.Age,
	}
}

type Option func(*Store)

// WithTTL overrides the freshness window of one operation.
func WithTTL(op models.Operation, ttl time.Duration) Option {
	return func(s *Store) {
		s.ttls[op] = ttl
	}
}

// WithRetention sets how long entries survive in the backend. Stale serving
// can only reach back this far.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		s.retention = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// DefaultTTLs are the freshness windows used when none is configured.
func DefaultTTLs() map[models.Operation]time.Duration {
	return map[models.Operation]time.Duration{
		models.OpQuote:       15 * time.Second,
		models.OpHistorical:  time.Hour,
		models.OpCompanyInfo: 6 * time.Hour,
		models.OpNews:        10 * time.Minute,
		models.OpIndicators:  5 * time.Minute,
	}
}

// Store is a per-key replace cache. Freshness is decided on read from FetchedAt;
// the backend only enforces retention.
type Store struct {
	backend   pkgcache.Service
	ttls      map[models.Operation]time.Duration
	retention time.Duration
	prefix    string
	now       func() time.Time
}

func NewStore(backend pkgcache.Service, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		ttls:      DefaultTTLs(),
		retention: 24 * time.Hour,
		prefix:    "md",
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the freshness window for op.
func (s *Store) TTL(op models.Operation) time.Duration {
	return s.ttls[op]
}

// Key builds the backend key. Extra parts distinguish variants such as a history range.
func Key(op models.Operation, symbol string, parts ...any) string {
	params := append([]any{strings.ToUpper(symbol)}, parts...)
	return pkgcache.GenerateKeyWithParams(string(op), params...)
}

// Put unconditionally replaces the entry for key.
func (s *Store) Put(ctx context.Context, key string, value any, source string, partial bool) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	e := Entry{Value: raw, FetchedAt: s.now(), Source: source, Partial: partial}
	if err := s.backend.Set(ctx, pkgcache.GenerateKey(s.prefix, key), e, s.retention); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// Lookup returns the entry for key whatever its age, or ErrMiss.
func (s *Store) Lookup(ctx context.Context, op models.Operation, key string) (*Hit, error) {
	e, err := pkgcache.GetTyped[Entry](ctx, s.backend, pkgcache.GenerateKey(s.prefix, key))
	if err != nil {
		if errors.Is(err, pkgcache.ErrCacheMiss) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("lookup %s: %w", key, err)
	}
	age := s.now().Sub(e.FetchedAt)
	if age < 0 {
		age = 0
	}
	return &Hit{Entry: e, Age: age, Fresh: age <= s.ttls[op]}, nil
}
