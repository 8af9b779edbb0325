package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/threadfeed/internal/feed"
	"example.com/threadfeed/internal/logger"
	"example.com/threadfeed/internal/monitoring"
	"example.com/threadfeed/internal/notify"
	"example.com/threadfeed/internal/relation"
	"example.com/threadfeed/internal/store"
)

type Server struct {
	store    store.StoreInterface
	mutator  *relation.Mutator
	feed     *feed.Assembler
	notifier notify.Notifier
}

var logg = logger.New()

// NewServer wires the components over one store.
func NewServer(st store.StoreInterface, notifier notify.Notifier) *Server {
	return &Server{
		store:    st,
		mutator:  relation.New(st),
		feed:     feed.New(st),
		notifier: notifier,
	}
}

// Router builds the REST surface. Fixed segments are registered before
// their {id} siblings so /users/basic/x never matches /users/{id}.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	// User routes
	api.HandleFunc("/users", s.createUserHandler).Methods("POST")
	api.HandleFunc("/users", s.listUsersHandler).Methods("GET")
	api.HandleFunc("/users/basic/{id}", s.getUserBasicHandler).Methods("GET")
	api.HandleFunc("/users/follow/{id}", s.followHandler).Methods("POST")
	api.HandleFunc("/users/unfollow/{id}", s.unfollowHandler).Methods("POST")
	api.HandleFunc("/users/{id}", s.getUserProfileHandler).Methods("GET")

	// Thread routes
	api.HandleFunc("/threads", s.createThreadHandler).Methods("POST")
	api.HandleFunc("/threads/range/{fromTime}/{toTime}", s.listThreadsRangeHandler).Methods("GET")
	api.HandleFunc("/threads/like/{id}", s.likeThreadHandler).Methods("POST")
	api.HandleFunc("/threads/unlike/{id}", s.unlikeThreadHandler).Methods("POST")
	api.HandleFunc("/threads/{includeDetails}", s.listThreadsHandler).Methods("GET")

	// Reply routes
	api.HandleFunc("/replies", s.createReplyHandler).Methods("POST")
	api.HandleFunc("/replies/like/{id}", s.likeReplyHandler).Methods("POST")
	api.HandleFunc("/replies/unlike/{id}", s.unlikeReplyHandler).Methods("POST")
	api.HandleFunc("/replies/{threadId}", s.getRepliesHandler).Methods("GET")

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return monitoring.InstrumentHandler(r)
}

// Run starts the HTTP server with graceful shutdown.
func Run(ctx context.Context, st store.StoreInterface, notifier notify.Notifier, addr string) {
	s := NewServer(st, notifier)

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		logg.Info("server", "Starting HTTP server on "+addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
