package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"FinFeed/internal/domain/models"
	"FinFeed/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	published []*models.Quote
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, q *models.Quote) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, q)
	return nil
}

func (p *fakePublisher) PublishBatch(ctx context.Context, quotes []*models.Quote) error {
	for _, q := range quotes {
		if err := p.Publish(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeArchive struct {
	stored []*models.Quote
}

func (a *fakeArchive) Store(_ context.Context, q *models.Quote) error {
	a.stored = append(a.stored, q)
	return nil
}

func (a *fakeArchive) StoreBatch(_ context.Context, quotes []*models.Quote) error {
	a.stored = append(a.stored, quotes...)
	return nil
}

func (a *fakeArchive) Query(context.Context, string, time.Time, time.Time, int) ([]*models.Quote, error) {
	return a.stored, nil
}

func (a *fakeArchive) Health(context.Context) error { return nil }

func (a *fakeArchive) Close() error { return nil }

type countingMetrics struct {
	metrics.Noop
	mu     sync.Mutex
	sent   map[string]int
	errors map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{sent: map[string]int{}, errors: map[string]int{}}
}

func (m *countingMetrics) RecordMessageSent(backend, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[backend]++
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}

func (m *countingMetrics) Errors(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func TestQuoteProcessor_RoutesByBackend(t *testing.T) {
	pub, arch := &fakePublisher{}, &fakeArchive{}
	q := &models.Quote{Symbol: "AAPL", Price: 1, Timestamp: t0}

	m := newCountingMetrics()
	require.NoError(t, NewQuoteProcessor(pub, arch, m, BackendKafka).Process(context.Background(), q))
	assert.Len(t, pub.published, 1)
	assert.Empty(t, arch.stored)
	assert.Equal(t, 1, m.sent[BackendKafka])

	require.NoError(t, NewQuoteProcessor(pub, arch, m, BackendClickHouse).ProcessBatch(context.Background(), []*models.Quote{q, q}))
	assert.Len(t, arch.stored, 2)
	assert.Equal(t, 2, m.sent[BackendClickHouse])
}

func TestQuoteProcessor_Errors(t *testing.T) {
	m := newCountingMetrics()
	p := NewQuoteProcessor(&fakePublisher{err: errors.New("broker down")}, nil, m, BackendKafka)

	err := p.Process(context.Background(), &models.Quote{Symbol: "AAPL"})
	assert.ErrorContains(t, err, "broker down")
	assert.Equal(t, 1, m.Errors("process"))

	assert.Error(t, p.Process(context.Background(), nil))

	err = NewQuoteProcessor(nil, nil, m, BackendClickHouse).Process(context.Background(), &models.Quote{Symbol: "AAPL"})
	assert.ErrorContains(t, err, "unknown backend")

	assert.NoError(t, p.ProcessBatch(context.Background(), nil))
}
