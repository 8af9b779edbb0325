package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/threadfeed/internal/broker"
	"example.com/threadfeed/internal/logger"
	"example.com/threadfeed/internal/models"
	"example.com/threadfeed/internal/realtime"
)

var logg = logger.New()

// Worker consumes creation events from Kafka and fans them out to the
// WebSocket subscribers of its hub.
type Worker struct {
	hub          *realtime.Hub
	reader       appkafka.KafkaReader
	wsAddr       string
	workerCount  int
	jobQueueSize int
}

// New creates a concurrent Worker using pre-initialized dependencies.
// An empty wsAddr disables the subscriber listener (used in tests).
func New(reader appkafka.KafkaReader, hub *realtime.Hub, wsAddr string, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		hub:          hub,
		reader:       reader,
		wsAddr:       wsAddr,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run starts the subscriber listener, message reading and concurrent
// broadcasting, and blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	var srv *http.Server
	if w.wsAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", w.hub.HandleWS)
		srv = &http.Server{Addr: w.wsAddr, Handler: mux}
		go func() {
			logg.Info("worker", "Subscriber endpoint listening on "+w.wsAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logg.Error("worker", "Subscriber endpoint stopped unexpectedly", err)
			}
		}()
	}

	jobs := make(chan []byte, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logg.Error("worker", "Error during subscriber endpoint shutdown", err)
		}
	}
	w.hub.CloseAll()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into the job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- []byte) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			select {
			case jobs <- msg.Value:
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
				logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
			}
		}
	}
}

// processLoop decodes event envelopes and broadcasts them.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-jobs:
			if !ok {
				return
			}

			var ev models.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				logg.Error("worker", "Invalid JSON in Kafka message", err)
				continue
			}
			if ev.Type != models.EventThreadCreated && ev.Type != models.EventReplyCreated {
				logg.Info("worker", "Skipping unknown event type "+ev.Type)
				continue
			}

			w.hub.Broadcast(ev)
			logg.Info("worker", "Event delivered to subscribers (event ID anonymized)")
		}
	}
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader and drops all subscribers.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}
	w.hub.CloseAll()
	return nil
}
