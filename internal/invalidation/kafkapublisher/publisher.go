// Package kafkapublisher announces published releases on the invalidation
// topic.
package kafkapublisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/overture-extract/internal/invalidation"
)

type Publisher struct {
	topic string
	prod  sarama.SyncProducer
}

func New(brokers []string, topic string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafkapublisher: create producer: %w", err)
	}
	return NewWithProducer(prod, topic), nil
}

func NewWithProducer(prod sarama.SyncProducer, topic string) *Publisher {
	return &Publisher{topic: topic, prod: prod}
}

// Announce validates the version and sends it keyed by version so repeats
// land on the same partition.
func (p *Publisher) Announce(version string) (partition int32, offset int64, err error) {
	ev := invalidation.Event{ReleaseVersion: version, TS: time.Now().UTC()}
	if err := ev.Validate(); err != nil {
		return 0, 0, err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return 0, 0, fmt.Errorf("marshal event: %w", err)
	}
	partition, offset, err = p.prod.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(version),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return 0, 0, fmt.Errorf("send release %s: %w", version, err)
	}
	return partition, offset, nil
}

func (p *Publisher) Close() error { return p.prod.Close() }
