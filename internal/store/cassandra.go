package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"example.com/threadfeed/internal/apperr"
	config "example.com/threadfeed/internal/init"
	"example.com/threadfeed/internal/models"
)

// SessionInterface abstracts the gocql session for testability.
type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	Close()
}

// CassandraStore is the alternate backend. Entities live in per-type
// tables; follower and like memberships are rows whose lightweight
// transactions (IF NOT EXISTS / IF EXISTS) provide the atomic
// check-then-append the duplicate invariant needs.
type CassandraStore struct {
	Session SessionInterface
}

// NewCassandra initializes the Cassandra connection using the config package.
func NewCassandra(cfg *config.Config) (*CassandraStore, error) {
	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = cfg.CassandraKeyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout

	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}

	if cfg.CassandraDC != "" {
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("store", "Connected to Cassandra keyspace (host anonymized)")
	return &CassandraStore{Session: sess}, nil
}

// --- Ensure keyspace exists before migrations ---

func ensureKeyspace(cfg *config.Config) error {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = "system"
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.CassandraKeyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("store", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

// --- Migration runner ---

func runMigrations(cfg *config.Config) error {
	migrationsPath := filepath.Join("./migrations/cassandra")
	sourceURL := fmt.Sprintf("file://%s", migrationsPath)
	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.CassandraHost, cfg.CassandraKeyspace,
	)

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if err == migrate.ErrNoChange {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// Close gracefully closes the Cassandra session.
func (s *CassandraStore) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("store", "Cassandra session closed")
	}
}

// --- User operations ---

func (s *CassandraStore) CreateUser(ctx context.Context, u models.User) error {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO users (id, username, user_image)
		VALUES (?, ?, ?) IF NOT EXISTS`,
		u.ID, u.Username, u.UserImage,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to insert user", err)
		return apperr.Internal("failed to create user", err)
	}
	if !applied {
		return apperr.Conflict("user id already exists")
	}
	return nil
}

func (s *CassandraStore) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := s.Session.Query(
		`SELECT id, username, user_image FROM users WHERE id = ?`, id,
	).WithContext(ctx).Scan(&u.ID, &u.Username, &u.UserImage)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.User{}, apperr.NotFound("User not found")
		}
		logg.Error("store", "Failed to query user", err)
		return models.User{}, apperr.Internal("failed to get user", err)
	}

	followers, err := s.followersOf(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	u.Followers = followers

	// User.likes is returned for shape parity but never mutated; like
	// state lives on the liked entity's likes_by_entity rows.
	u.Likes = []models.LikeRef{}
	return u, nil
}

func (s *CassandraStore) ListUsers(ctx context.Context) ([]models.User, error) {
	iter := s.Session.Query(
		`SELECT id, username, user_image FROM users`,
	).WithContext(ctx).Iter()

	users := []models.User{}
	var u models.User
	for iter.Scan(&u.ID, &u.Username, &u.UserImage) {
		users = append(users, u)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list users", err)
		return nil, apperr.Internal("failed to list users", err)
	}

	for i := range users {
		followers, err := s.followersOf(ctx, users[i].ID)
		if err != nil {
			return nil, err
		}
		users[i].Followers = followers
		users[i].Likes = []models.LikeRef{}
	}
	return users, nil
}

// followersOf reads the membership rows; ordering follows the
// clustering key rather than insertion order.
func (s *CassandraStore) followersOf(ctx context.Context, userID string) ([]string, error) {
	iter := s.Session.Query(
		`SELECT follower_id FROM followers_by_user WHERE user_id = ?`, userID,
	).WithContext(ctx).Iter()

	res := []string{}
	var id string
	for iter.Scan(&id) {
		res = append(res, id)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get followers", err)
		return nil, apperr.Internal("failed to get followers", err)
	}
	return res, nil
}

func (s *CassandraStore) userExists(ctx context.Context, id string) error {
	var found string
	err := s.Session.Query(
		`SELECT id FROM users WHERE id = ?`, id,
	).WithContext(ctx).Scan(&found)
	if err != nil {
		if err == gocql.ErrNotFound {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal("failed to check user", err)
	}
	return nil
}

// AddFollower inserts the membership row with CAS so a duplicate
// follow observes Conflict even under concurrent calls.
func (s *CassandraStore) AddFollower(ctx context.Context, userID, followerID string) error {
	if err := s.userExists(ctx, userID); err != nil {
		return err
	}

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO followers_by_user (user_id, follower_id)
		VALUES (?, ?) IF NOT EXISTS`,
		userID, followerID,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to add follower", err)
		return apperr.Internal("failed to add follower", err)
	}
	if !applied {
		return apperr.Conflict("Already following this user")
	}
	return nil
}

func (s *CassandraStore) RemoveFollower(ctx context.Context, userID, followerID string) error {
	if err := s.userExists(ctx, userID); err != nil {
		return err
	}

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		DELETE FROM followers_by_user
		WHERE user_id = ? AND follower_id = ? IF EXISTS`,
		userID, followerID,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to remove follower", err)
		return apperr.Internal("failed to remove follower", err)
	}
	if !applied {
		return apperr.Conflict("Not following this user")
	}
	return nil
}

// --- Thread operations ---

func (s *CassandraStore) CreateThread(ctx context.Context, t models.Thread) error {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO threads (id, user_id, content, created_at)
		VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		t.ID, t.UserID, t.Content, t.CreatedAt,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to insert thread", err)
		return apperr.Internal("failed to create thread", err)
	}
	if !applied {
		return apperr.Conflict("thread id already exists")
	}
	return nil
}

func (s *CassandraStore) GetThread(ctx context.Context, id string) (models.Thread, error) {
	var t models.Thread
	err := s.Session.Query(
		`SELECT id, user_id, content, created_at FROM threads WHERE id = ?`, id,
	).WithContext(ctx).Scan(&t.ID, &t.UserID, &t.Content, &t.CreatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Thread{}, apperr.NotFound("Thread not found")
		}
		logg.Error("store", "Failed to query thread", err)
		return models.Thread{}, apperr.Internal("failed to get thread", err)
	}

	liked, err := s.likedUsersOf(ctx, models.KindThread, id)
	if err != nil {
		return models.Thread{}, err
	}
	t.LikedUsers = liked
	return t, nil
}

func (s *CassandraStore) scanThreads(ctx context.Context, stmt string, values ...interface{}) ([]models.Thread, error) {
	iter := s.Session.Query(stmt, values...).WithContext(ctx).Iter()

	threads := []models.Thread{}
	var t models.Thread
	for iter.Scan(&t.ID, &t.UserID, &t.Content, &t.CreatedAt) {
		threads = append(threads, t)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to scan threads", err)
		return nil, apperr.Internal("failed to list threads", err)
	}

	for i := range threads {
		liked, err := s.likedUsersOf(ctx, models.KindThread, threads[i].ID)
		if err != nil {
			return nil, err
		}
		threads[i].LikedUsers = liked
	}
	return threads, nil
}

func sortThreads(threads []models.Thread, ord Ordering) {
	sort.SliceStable(threads, func(i, j int) bool {
		if ord == OrderAsc {
			return threads[i].CreatedAt.Before(threads[j].CreatedAt)
		}
		return threads[i].CreatedAt.After(threads[j].CreatedAt)
	})
}

// ListThreads scans the threads table and orders in memory; the table
// has no partition-wide clustering order to lean on.
func (s *CassandraStore) ListThreads(ctx context.Context, ord Ordering) ([]models.Thread, error) {
	threads, err := s.scanThreads(ctx, `SELECT id, user_id, content, created_at FROM threads`)
	if err != nil {
		return nil, err
	}
	sortThreads(threads, ord)
	return threads, nil
}

func (s *CassandraStore) ListThreadsBetween(ctx context.Context, from, to time.Time, ord Ordering) ([]models.Thread, error) {
	all, err := s.scanThreads(ctx, `SELECT id, user_id, content, created_at FROM threads`)
	if err != nil {
		return nil, err
	}
	threads := []models.Thread{}
	for _, t := range all {
		if !t.CreatedAt.Before(from) && !t.CreatedAt.After(to) {
			threads = append(threads, t)
		}
	}
	sortThreads(threads, ord)
	return threads, nil
}

func (s *CassandraStore) ThreadsByUser(ctx context.Context, userID string) ([]models.Thread, error) {
	threads, err := s.scanThreads(ctx,
		`SELECT id, user_id, content, created_at FROM threads WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	sortThreads(threads, OrderDesc)
	return threads, nil
}

// --- Reply operations ---

func (s *CassandraStore) CreateReply(ctx context.Context, r models.Reply) error {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO replies (id, user_id, content, time, thread_id)
		VALUES (?, ?, ?, ?, ?) IF NOT EXISTS`,
		r.ID, r.UserID, r.Content, r.Time, r.ThreadID,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to insert reply", err)
		return apperr.Internal("failed to create reply", err)
	}
	if !applied {
		return apperr.Conflict("reply id already exists")
	}
	return nil
}

func (s *CassandraStore) GetReply(ctx context.Context, id string) (models.Reply, error) {
	var r models.Reply
	err := s.Session.Query(
		`SELECT id, user_id, content, time, thread_id FROM replies WHERE id = ?`, id,
	).WithContext(ctx).Scan(&r.ID, &r.UserID, &r.Content, &r.Time, &r.ThreadID)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Reply{}, apperr.NotFound("Reply not found")
		}
		logg.Error("store", "Failed to query reply", err)
		return models.Reply{}, apperr.Internal("failed to get reply", err)
	}

	liked, err := s.likedUsersOf(ctx, models.KindReply, id)
	if err != nil {
		return models.Reply{}, err
	}
	r.LikedUsers = liked
	return r, nil
}

func (s *CassandraStore) scanReplies(ctx context.Context, stmt string, values ...interface{}) ([]models.Reply, error) {
	iter := s.Session.Query(stmt, values...).WithContext(ctx).Iter()

	replies := []models.Reply{}
	var r models.Reply
	for iter.Scan(&r.ID, &r.UserID, &r.Content, &r.Time, &r.ThreadID) {
		replies = append(replies, r)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to scan replies", err)
		return nil, apperr.Internal("failed to list replies", err)
	}

	for i := range replies {
		liked, err := s.likedUsersOf(ctx, models.KindReply, replies[i].ID)
		if err != nil {
			return nil, err
		}
		replies[i].LikedUsers = liked
	}
	return replies, nil
}

func sortReplies(replies []models.Reply, ord Ordering) {
	sort.SliceStable(replies, func(i, j int) bool {
		if ord == OrderAsc {
			return replies[i].Time.Before(replies[j].Time)
		}
		return replies[i].Time.After(replies[j].Time)
	})
}

func (s *CassandraStore) RepliesByThread(ctx context.Context, threadID string, ord Ordering) ([]models.Reply, error) {
	replies, err := s.scanReplies(ctx,
		`SELECT id, user_id, content, time, thread_id FROM replies WHERE thread_id = ?`, threadID)
	if err != nil {
		return nil, err
	}
	sortReplies(replies, ord)
	return replies, nil
}

func (s *CassandraStore) RepliesByUser(ctx context.Context, userID string) ([]models.Reply, error) {
	replies, err := s.scanReplies(ctx,
		`SELECT id, user_id, content, time, thread_id FROM replies WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	sortReplies(replies, OrderDesc)
	return replies, nil
}

// --- Like operations ---

func (s *CassandraStore) likedUsersOf(ctx context.Context, kind models.LikeKind, entityID string) ([]string, error) {
	iter := s.Session.Query(
		`SELECT user_id FROM likes_by_entity WHERE kind = ? AND entity_id = ?`,
		string(kind), entityID,
	).WithContext(ctx).Iter()

	res := []string{}
	var id string
	for iter.Scan(&id) {
		res = append(res, id)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get liked users", err)
		return nil, apperr.Internal("failed to get liked users", err)
	}
	return res, nil
}

func (s *CassandraStore) checkEntityExists(ctx context.Context, kind models.LikeKind, entityID string) error {
	switch kind {
	case models.KindThread:
		_, err := s.GetThread(ctx, entityID)
		return err
	case models.KindReply:
		_, err := s.GetReply(ctx, entityID)
		return err
	default:
		return apperr.InvalidArgument("unknown like kind")
	}
}

func (s *CassandraStore) AddLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error {
	if err := s.checkEntityExists(ctx, kind, entityID); err != nil {
		return err
	}

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO likes_by_entity (kind, entity_id, user_id)
		VALUES (?, ?, ?) IF NOT EXISTS`,
		string(kind), entityID, userID,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to add like", err)
		return apperr.Internal("failed to add like", err)
	}
	if !applied {
		return apperr.Conflict(fmt.Sprintf("Already liked this %s", kind))
	}
	return nil
}

func (s *CassandraStore) RemoveLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error {
	if err := s.checkEntityExists(ctx, kind, entityID); err != nil {
		return err
	}

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		DELETE FROM likes_by_entity
		WHERE kind = ? AND entity_id = ? AND user_id = ? IF EXISTS`,
		string(kind), entityID, userID,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to remove like", err)
		return apperr.Internal("failed to remove like", err)
	}
	if !applied {
		return apperr.Conflict(fmt.Sprintf("Not liked this %s", kind))
	}
	return nil
}
