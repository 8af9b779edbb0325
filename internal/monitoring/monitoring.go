package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	ThreadsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "threads_created_total",
		Help: "Total threads successfully created",
	})

	RepliesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "replies_created_total",
		Help: "Total replies successfully created",
	})

	LikeMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "like_mutations_total",
		Help: "Total like/unlike mutations applied",
	}, []string{"kind", "op"})

	FollowMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "follow_mutations_total",
		Help: "Total follow/unfollow mutations applied",
	}, []string{"op"})

	RelationConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relation_conflicts_total",
		Help: "Duplicate follow/like attempts rejected with Conflict",
	}, []string{"op"})
)

func init() {
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ThreadsCreated)
	prometheus.MustRegister(RepliesCreated)
	prometheus.MustRegister(LikeMutations)
	prometheus.MustRegister(FollowMutations)
	prometheus.MustRegister(RelationConflicts)
}

// Middleware to track request timing and status code
type statusRecordingWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecordingWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &statusRecordingWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		route := r.URL.Path
		method := r.Method
		status := fmt.Sprintf("%d", rw.statusCode)

		RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	})
}
