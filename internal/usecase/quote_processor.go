package usecase

import (
	"context"
	"fmt"
	"time"

	"FinFeed/internal/domain/models"
	drepo "FinFeed/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// QuoteProcessor routes accepted quotes to the configured sink backend.
type QuoteProcessor struct {
	pub     drepo.QuotePublisher
	archive drepo.QuoteArchive
	metrics drepo.Metrics
	backend string
}

// NewQuoteProcessor creates a new QuoteProcessor instance.
func NewQuoteProcessor(
	pub drepo.QuotePublisher,
	archive drepo.QuoteArchive,
	metrics drepo.Metrics,
	backend string,
) *QuoteProcessor {
	return &QuoteProcessor{
		pub:     pub,
		archive: archive,
		metrics: metrics,
		backend: backend,
	}
}

// Backend returns the sink name.
func (p *QuoteProcessor) Backend() string { return p.backend }

// Process sends one quote to the backend.
func (p *QuoteProcessor) Process(ctx context.Context, q *models.Quote) error {
	if q == nil {
		return fmt.Errorf("quote is nil")
	}

	start := time.Now()
	var err error
	switch {
	case p.backend == BackendKafka && p.pub != nil:
		err = p.pub.Publish(ctx, q)
	case p.backend == BackendClickHouse && p.archive != nil:
		err = p.archive.Store(ctx, q)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process quote: %w", err)
	}

	p.metrics.RecordMessageSent(p.backend, q.Symbol)
	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}

// ProcessBatch sends quotes to the backend in one call.
func (p *QuoteProcessor) ProcessBatch(ctx context.Context, quotes []*models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch {
	case p.backend == BackendKafka && p.pub != nil:
		err = p.pub.PublishBatch(ctx, quotes)
	case p.backend == BackendClickHouse && p.archive != nil:
		err = p.archive.StoreBatch(ctx, quotes)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, q := range quotes {
		p.metrics.RecordMessageSent(p.backend, q.Symbol)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())
	return nil
}
