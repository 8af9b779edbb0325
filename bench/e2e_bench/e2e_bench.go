package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ThreadReq defines the request payload for creating a thread.
type ThreadReq struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Content string `json:"content"`
}

// Event is the envelope broadcast to WebSocket subscribers.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

func main() {
	// CLI flags
	var serverAddr string
	var wsAddr string
	var S, P, concurrency int
	var pollTimeout int

	flag.StringVar(&serverAddr, "server", "http://localhost:4000", "server base URL")
	flag.StringVar(&wsAddr, "ws", "ws://localhost:4001/ws", "worker WebSocket endpoint")
	flag.IntVar(&S, "subscribers", 10, "number of WebSocket subscribers")
	flag.IntVar(&P, "threads", 100, "number of threads to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for publishing")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for event delivery")
	flag.Parse()

	ctx := context.Background()
	client := &http.Client{Timeout: 10 * time.Second}

	// --- 1) Create the publishing user ---
	authorID := uuid.NewString()
	payload := map[string]string{
		"id":        authorID,
		"username":  fmt.Sprintf("bench-author-%d", time.Now().UnixNano()),
		"userImage": "https://example.com/avatar.png",
	}
	b, _ := json.Marshal(payload)
	resp, err := client.Post(serverAddr+"/api/users", "application/json", bytes.NewReader(b))
	if err != nil {
		fmt.Printf("create user error: %v\n", err)
		os.Exit(1)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// --- 2) Connect WebSocket subscribers ---
	fmt.Printf("Connecting %d subscribers to %s...\n", S, wsAddr)
	type delivery struct {
		threadID string
		at       time.Time
	}
	deliveries := make(chan delivery, S*P)

	conns := make([]*websocket.Conn, 0, S)
	for i := 0; i < S; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsAddr, nil)
		if err != nil {
			fmt.Printf("websocket dial error: %v\n", err)
			os.Exit(1)
		}
		conns = append(conns, conn)

		go func(c *websocket.Conn) {
			for {
				var ev Event
				if err := c.ReadJSON(&ev); err != nil {
					return
				}
				if ev.Type != "threadCreated" {
					continue
				}
				var t ThreadReq
				if err := json.Unmarshal(ev.Payload, &t); err != nil {
					continue
				}
				deliveries <- delivery{threadID: t.ID, at: time.Now()}
			}
		}(conn)
	}
	fmt.Println("Subscribers connected.")

	// --- 3) Publish threads concurrently ---
	fmt.Printf("Publishing %d threads with concurrency %d...\n", P, concurrency)
	publishedAt := make(map[string]time.Time, P)
	var pubMu sync.Mutex

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // concurrency limiter

	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			threadID := uuid.NewString()
			reqBody := ThreadReq{ID: threadID, UserID: authorID, Content: fmt.Sprintf("e2e thread %d", i)}
			b, _ := json.Marshal(reqBody)

			req, _ := http.NewRequestWithContext(ctx, "POST", serverAddr+"/api/threads", bytes.NewReader(b))
			req.Header.Set("Content-Type", "application/json")

			start := time.Now()
			resp, err := client.Do(req)
			if err != nil {
				fmt.Printf("thread error: %v\n", err)
				return
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
				fmt.Printf("unexpected status publishing thread: %d\n", resp.StatusCode)
				return
			}

			pubMu.Lock()
			publishedAt[threadID] = start
			pubMu.Unlock()
		}(i)
	}

	wg.Wait()
	fmt.Printf("Published %d threads, waiting for deliveries...\n", len(publishedAt))

	// --- 4) Collect deliveries until every subscriber saw every thread
	// or the timeout expires ---
	expected := len(publishedAt) * S
	hist := hdrhistogram.New(1, 60_000_000, 3)
	received := 0
	deadline := time.After(time.Duration(pollTimeout) * time.Second)

collect:
	for received < expected {
		select {
		case d := <-deliveries:
			pubMu.Lock()
			start, ok := publishedAt[d.threadID]
			pubMu.Unlock()
			if !ok {
				continue
			}
			hist.RecordValue(d.at.Sub(start).Microseconds())
			received++
		case <-deadline:
			break collect
		}
	}

	for _, c := range conns {
		c.Close()
	}

	// --- 5) Report delivery statistics ---
	missed := expected - received
	if received == 0 {
		fmt.Println("No deliveries recorded.")
		os.Exit(1)
	}
	toMs := func(us int64) float64 { return float64(us) / 1000.0 }
	fmt.Printf("Delivery stats (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f missed=%d\n",
		received,
		hist.Mean()/1000.0,
		toMs(hist.ValueAtQuantile(50)),
		toMs(hist.ValueAtQuantile(90)),
		toMs(hist.ValueAtQuantile(99)),
		missed)
}
