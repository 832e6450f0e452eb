package repository

import (
	"context"

	"FinFeed/internal/domain/models"
	"FinFeed/internal/domain/repository"
	pkgkafka "FinFeed/pkg/kafka"
)

// quoteMessage is the wire format on the quotes topic.
type quoteMessage struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume"`
	Timestamp     int64   `json:"ts"`
	Source        string  `json:"source"`
}

func toMessage(q *models.Quote) quoteMessage {
	return quoteMessage{
		Symbol:        q.Symbol,
		Price:         q.Price,
		Change:        q.Change,
		ChangePercent: q.ChangePercent,
		Volume:        q.Volume,
		Timestamp:     q.Timestamp.UnixMilli(),
		Source:        q.Source,
	}
}

// KafkaPublisher implements QuotePublisher for Kafka, keyed by symbol.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.QuotePublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, q *models.Quote) error {
	return p.producer.Publish(ctx, p.topic, []byte(q.Symbol), toMessage(q))
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, quotes []*models.Quote) error {
	if len(quotes) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(quotes))
	for _, q := range quotes {
		if q == nil {
			continue
		}
		msgs = append(msgs, pkgkafka.Message{Key: []byte(q.Symbol), Value: toMessage(q)})
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
