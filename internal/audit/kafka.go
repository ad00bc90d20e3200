package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// KafkaConfig holds the producer settings for the audit topic.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes records as JSON, keyed by record kind so that all
// records of one kind land on the same partition in order.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration
	log     zerolog.Logger
}

func NewKafkaSink(cfg KafkaConfig, log zerolog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newKafkaSink(w, cfg.WriteTimeout, log)
}

func newKafkaSink(w messageWriter, timeout time.Duration, log zerolog.Logger) *KafkaSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaSink{writer: w, timeout: timeout, log: log.With().Str("component", "audit-kafka").Logger()}
}

func (s *KafkaSink) Emit(ctx context.Context, rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Error().Err(err).Str("kind", string(rec.Kind)).Msg("marshal audit record")
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.Kind),
		Value: data,
		Time:  rec.At,
	})
	if err != nil {
		s.log.Error().Err(err).Str("id", rec.ID.String()).Msg("publish audit record")
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
