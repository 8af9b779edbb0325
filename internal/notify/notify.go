// Package notify decouples entity creation from the realtime broadcast:
// the write path enqueues and returns, a background goroutine drains
// onto Kafka. Delivery is best-effort by contract.
package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	appkafka "example.com/threadfeed/internal/broker"
	"example.com/threadfeed/internal/logger"
	"example.com/threadfeed/internal/models"
)

var logg = logger.New()

// Notifier receives "entity created" notifications. Implementations
// must never block the caller and never report failure to it.
type Notifier interface {
	Notify(eventType string, payload any)
}

// Queue is the Kafka-backed Notifier. A full queue or a broker failure
// drops the event with a log line; persisted state is unaffected.
type Queue struct {
	writer    appkafka.KafkaWriter
	jobs      chan models.Event
	done      chan struct{}
	closeOnce sync.Once
}

// NewQueue starts the drain goroutine. size bounds the in-process queue.
func NewQueue(writer appkafka.KafkaWriter, size int) *Queue {
	if size <= 0 {
		size = 256
	}
	q := &Queue{
		writer: writer,
		jobs:   make(chan models.Event, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Notify(eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logg.Error("notify", "Failed to marshal event payload", err)
		return
	}

	ev := models.Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		Time:    time.Now(),
		Payload: data,
	}

	select {
	case q.jobs <- ev:
	default:
		logg.Info("notify", fmt.Sprintf("Queue full, dropping %s event", eventType))
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for ev := range q.jobs {
		data, err := json.Marshal(ev)
		if err != nil {
			logg.Error("notify", "Failed to marshal event envelope", err)
			continue
		}
		msg := kafka.Message{
			Key:   []byte(ev.Type),
			Value: data,
		}
		if err := q.writer.WriteMessages(msg); err != nil {
			logg.Error("notify", "Failed to publish event, dropping", err)
		}
	}
}

// Close stops accepting events and waits for the queue to drain.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.jobs)
		<-q.done
	})
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(eventType string, payload any) {}
