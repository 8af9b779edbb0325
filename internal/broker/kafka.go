// Package appkafka carries the event envelopes between the server's
// notifier queue and the realtime worker. The writer and reader are
// narrow interfaces so tests can swap in the in-memory mock.
package appkafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// Defaults mirror internal/init so a zero-value KafkaConfig targets the
// same broker as the configured paths.
const (
	defaultBroker  = "localhost:29092"
	defaultTimeout = 10 * time.Second
)

// KafkaWriter publishes event envelopes. The server's notify queue is
// the only producer.
type KafkaWriter interface {
	WriteMessages(messages ...kafka.Message) error
	Close() error
}

// KafkaReader consumes event envelopes; the worker is the only consumer.
type KafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConfig holds the broker parameters shared by writer and reader.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Partition    int // partition for the leader connection on the write side
	WriteTimeout time.Duration
	ReadTimeout  time.Duration // max wait per fetch on the consumer side
	GroupID      string
}

// withDefaults fills the gaps a zero-value config leaves.
func (c KafkaConfig) withDefaults() KafkaConfig {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{defaultBroker}
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = defaultTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = defaultTimeout
	}
	return c
}

// RealKafkaWriter writes through a leader connection. The notifier
// serializes all writes onto one goroutine, so a single conn is enough.
type RealKafkaWriter struct {
	conn   *kafka.Conn
	config KafkaConfig
}

// NewKafkaWriter dials the partition leader for the event topic.
func NewKafkaWriter(cfg KafkaConfig) (*RealKafkaWriter, error) {
	cfg = cfg.withDefaults()

	conn, err := kafka.DialLeader(context.Background(), "tcp", cfg.Brokers[0], cfg.Topic, cfg.Partition)
	if err != nil {
		return nil, err
	}

	return &RealKafkaWriter{
		conn:   conn,
		config: cfg,
	}, nil
}

func (w *RealKafkaWriter) WriteMessages(messages ...kafka.Message) error {
	if w.conn == nil {
		return errors.New("kafka connection is nil")
	}
	w.conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	_, err := w.conn.WriteMessages(messages...)
	return err
}

func (w *RealKafkaWriter) Close() error {
	if w.conn != nil {
		return w.conn.Close()
	}
	return nil
}

// RealKafkaReader consumes through a consumer group so multiple workers
// share the event stream without duplicating broadcasts.
type RealKafkaReader struct {
	reader *kafka.Reader
}

// NewKafkaReader builds the consumer-group reader for the worker.
func NewKafkaReader(cfg KafkaConfig) KafkaReader {
	cfg = cfg.withDefaults()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        cfg.ReadTimeout,
		CommitInterval: time.Second,
	})
	return &RealKafkaReader{reader: r}
}

func (r *RealKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	return r.reader.ReadMessage(ctx)
}

func (r *RealKafkaReader) Close() error {
	return r.reader.Close()
}
