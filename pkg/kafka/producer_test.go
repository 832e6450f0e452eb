package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishEncodes(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "snappy")
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, "quotes", []byte("AAPL"), map[string]any{"price": 150.25}))
	require.NoError(t, p.Publish(ctx, "quotes", nil, "raw"))
	require.NoError(t, p.PublishMessage(ctx, "logs", []byte(`{"a":1}`)))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "quotes", w.msgs[0].Topic)
	assert.Equal(t, []byte("AAPL"), w.msgs[0].Key)
	assert.JSONEq(t, `{"price":150.25}`, string(w.msgs[0].Value))
	assert.Equal(t, "raw", string(w.msgs[1].Value))
	assert.Equal(t, "logs", w.msgs[2].Topic)
	assert.Nil(t, w.msgs[2].Key)
}

func TestProducer_PublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "snappy")

	require.NoError(t, p.PublishBatch(context.Background(), "quotes", nil))
	assert.Empty(t, w.msgs)

	err := p.PublishBatch(context.Background(), "quotes", []Message{
		{Key: []byte("A"), Value: 1},
		{Key: []byte("B"), Value: 2},
	})
	require.NoError(t, err)
	assert.Len(t, w.msgs, 2)
}

func TestProducer_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewProducerWithWriter(w, "gzip")

	err := p.Publish(context.Background(), "quotes", nil, 1)
	assert.ErrorContains(t, err, "broker down")

	err = p.Publish(context.Background(), "quotes", nil, make(chan int))
	assert.ErrorContains(t, err, "marshal value")

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	assert.Error(t, err)
}
