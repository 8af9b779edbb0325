package store

import (
	"context"
	"fmt"
	"time"

	config "example.com/threadfeed/internal/init"
	"example.com/threadfeed/internal/logger"
	"example.com/threadfeed/internal/models"
)

var logg = logger.New()

// Ordering controls chronological sort direction for thread and reply
// listings. Callers always pass it explicitly.
type Ordering string

const (
	OrderAsc  Ordering = "asc"
	OrderDesc Ordering = "desc"
)

// ParseOrdering maps a query-string value onto an Ordering, defaulting
// to newest-first.
func ParseOrdering(s string) Ordering {
	if s == string(OrderAsc) {
		return OrderAsc
	}
	return OrderDesc
}

// StoreInterface is the persistence contract shared by the Mongo and
// Cassandra backends and the in-memory mock.
//
// Creates fail with a Conflict error when the caller-supplied id collides
// with an existing document. Reads fail with NotFound. The relationship
// primitives (AddFollower/RemoveFollower/AddLike/RemoveLike) perform the
// membership check and the mutation as one atomic per-document write, so
// concurrent duplicate attempts cannot both succeed.
type StoreInterface interface {
	CreateUser(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	AddFollower(ctx context.Context, userID, followerID string) error
	RemoveFollower(ctx context.Context, userID, followerID string) error

	CreateThread(ctx context.Context, t models.Thread) error
	GetThread(ctx context.Context, id string) (models.Thread, error)
	ListThreads(ctx context.Context, ord Ordering) ([]models.Thread, error)
	ListThreadsBetween(ctx context.Context, from, to time.Time, ord Ordering) ([]models.Thread, error)
	ThreadsByUser(ctx context.Context, userID string) ([]models.Thread, error)

	CreateReply(ctx context.Context, r models.Reply) error
	GetReply(ctx context.Context, id string) (models.Reply, error)
	RepliesByThread(ctx context.Context, threadID string, ord Ordering) ([]models.Reply, error)
	RepliesByUser(ctx context.Context, userID string) ([]models.Reply, error)

	AddLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error
	RemoveLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error

	Close()
}

// New initializes the store backend selected by config.
func New() (StoreInterface, error) {
	cfg := config.Get()

	switch cfg.StoreBackend {
	case "mongo":
		return NewMongo(cfg)
	case "cassandra":
		return NewCassandra(cfg)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}
