package logger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topic   string
	batches [][]AggregatedLogEntry
	err     error
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return p.err
}

func (p *capturePublisher) Batches() [][]AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batches
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	assert.Error(t, err)
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.With(String("component", "test")).Info("hello", Int("n", 1), Error(nil))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"component":"test"`)
	assert.Contains(t, string(b), `"message":"hello"`)
}

func TestCollector_AggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Topic: "finfeed.logs", Publisher: pub})

	c.AddLog("error", "provider down", map[string]interface{}{"source": "fmp"}, "x.go:1")
	c.AddLog("error", "provider down", map[string]interface{}{"source": "fmp"}, "x.go:1")
	c.AddLog("error", "provider down", map[string]interface{}{"source": "yahoo"}, "x.go:1")
	c.AddLog("info", "ignored", nil, "x.go:2")
	assert.Equal(t, 2, c.Pending())

	c.Close()

	batches := pub.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)
	assert.Equal(t, 2, batches[0][0].Count)
	assert.Equal(t, "finfeed.logs", pub.topic)
}

func TestCollector_ThresholdForcesFlush(t *testing.T) {
	pub := &capturePublisher{err: errors.New("broker down")}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub, Levels: []string{"warn"}})
	defer c.Close()

	c.AddLog("warn", "a", nil, "")
	c.AddLog("warn", "b", nil, "")

	assert.Equal(t, 0, c.Pending())
	assert.Eventually(t, func() bool { return len(pub.Batches()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestLogger_ErrorsReachCollector(t *testing.T) {
	pub := &capturePublisher{}
	l := NewNop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 100, Publisher: pub})

	child := l.With(String("component", "orchestrator"))
	child.Error("all sources failed", String("symbol", "AAPL"), Error(errors.New("boom")))
	child.Warn("not collected")

	l.RemoveCollector()

	batches := pub.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 1)
	assert.Equal(t, "all sources failed", batches[0][0].Message)
	assert.Equal(t, "boom", batches[0][0].Fields["error"])
	assert.Contains(t, batches[0][0].Caller, "logger/logger_test.go:")
}
