package repository

import (
	"context"
	"time"

	"FinFeed/internal/domain/models"
)

// Adapter translates one provider's API into the canonical model.
// Implementations hold only their credential and base URL; they never cache or retry.
//
//go:generate mockgen -package=usecase -destination=../../usecase/mock_adapter_test.go -source=interfaces.go -exclude_interfaces=QuotePublisher,QuoteArchive,Metrics
type Adapter interface {
	Name() string
	Supports(op models.Operation) bool
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Historical(ctx context.Context, symbol string, from, to time.Time) (*models.Series, error)
	CompanyInfo(ctx context.Context, symbol string) (*models.CompanyInfo, error)
	News(ctx context.Context, symbol string, from, to time.Time) (*models.NewsFeed, error)
}

// QuotePublisher pushes accepted quotes to a message bus.
type QuotePublisher interface {
	Publish(ctx context.Context, q *models.Quote) error
	PublishBatch(ctx context.Context, quotes []*models.Quote) error
	Close() error
}

// QuoteArchive persists accepted quotes for later queries.
type QuoteArchive interface {
	Store(ctx context.Context, q *models.Quote) error
	StoreBatch(ctx context.Context, quotes []*models.Quote) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Quote, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordProviderCall(source string, op models.Operation, result string, seconds float64)
	RecordFallback(op models.Operation, source string)
	RecordStaleServed(op models.Operation)
	RecordCache(op models.Operation, hit bool)
	SetActiveLoops(n int)
	SetSubscribers(symbol string, n int)
	RecordConnection(connected bool)
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
