package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"
)

// UserReq is the payload for creating a load-test user.
type UserReq struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	UserImage string `json:"userImage"`
}

// ThreadReq is the payload for creating a thread.
type ThreadReq struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var csvFile string

	flag.StringVar(&server, "server", "http://localhost:4000", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	// --- Create users for each goroutine ---
	fmt.Printf("Creating %d users...\n", concurrency)
	users := make([]UserReq, concurrency)
	for i := 0; i < concurrency; i++ {
		users[i] = UserReq{
			ID:        uuid.NewString(),
			Username:  fmt.Sprintf("load-user-%d-%d", i, time.Now().UnixNano()),
			UserImage: "https://example.com/avatar.png",
		}
		b, _ := json.Marshal(users[i])

		resp, err := client.Post(server+"/api/users", "application/json", bytes.NewReader(b))
		if err != nil {
			panic(fmt.Sprintf("failed to create user: %v", err))
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			panic(fmt.Sprintf("unexpected status creating user: %d", resp.StatusCode))
		}
	}
	fmt.Println("Users created.")

	// --- Prepare concurrency test ---
	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	// Atomic counters for thread-safe tracking
	var requests int64
	var successes int64
	var errors4xx int64
	var errors5xx int64

	// Latencies recorded in microseconds, one histogram per goroutine,
	// merged at the end.
	hists := make([]*hdrhistogram.Histogram, concurrency)

	// --- Start concurrent goroutines for load test ---
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			user := users[idx]
			hist := hdrhistogram.New(1, 60_000_000, 3)

			// Keep posting threads until the test duration ends
			for time.Now().Before(stopTime) {
				start := time.Now()
				body := ThreadReq{
					ID:      uuid.NewString(),
					UserID:  user.ID,
					Content: fmt.Sprintf("load test thread %d", time.Now().UnixNano()),
				}
				b, _ := json.Marshal(body)

				req, _ := http.NewRequestWithContext(context.Background(), "POST", server+"/api/threads", bytes.NewReader(b))
				req.Header.Set("Content-Type", "application/json")

				resp, err := client.Do(req)
				hist.RecordValue(time.Since(start).Microseconds())
				atomic.AddInt64(&requests, 1)

				if err != nil {
					fmt.Printf("Request error: %v\n", err)
					continue
				}

				// Count success/failure by status code
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					atomic.AddInt64(&successes, 1)
				} else if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					atomic.AddInt64(&errors4xx, 1)
				} else if resp.StatusCode >= 500 {
					atomic.AddInt64(&errors5xx, 1)
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}

			hists[idx] = hist
		}(i)
	}

	wg.Wait()

	// --- Merge histograms and compute statistics ---
	merged := hdrhistogram.New(1, 60_000_000, 3)
	for _, h := range hists {
		if h != nil {
			merged.Merge(h)
		}
	}

	toMs := func(us int64) float64 { return float64(us) / 1000.0 }
	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d\n", requests, successes, errors4xx, errors5xx)
	fmt.Printf("Latency (ms): mean=%.2f p50=%.2f p90=%.2f p99=%.2f max=%.2f\n",
		merged.Mean()/1000.0,
		toMs(merged.ValueAtQuantile(50)),
		toMs(merged.ValueAtQuantile(90)),
		toMs(merged.ValueAtQuantile(99)),
		toMs(merged.Max()))

	// --- Save latency distribution to CSV ---
	f, err := os.Create(csvFile)
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"latency_ms", "count"})
	for _, bar := range merged.Distribution() {
		if bar.Count == 0 {
			continue
		}
		w.Write([]string{fmt.Sprintf("%.3f", toMs(bar.To)), fmt.Sprintf("%d", bar.Count)})
	}
	fmt.Printf("Saved latency distribution to %s\n", csvFile)
}
