package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"example.com/threadfeed/internal/apperr"
	config "example.com/threadfeed/internal/init"
	"example.com/threadfeed/internal/models"
)

// MongoStore persists each entity as one document in its collection.
// All relationship mutations are guarded single-document updates, which
// is what gives the check-then-append its atomicity.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// NewMongo connects, pings and ensures the unique id indexes that back
// the duplicate-id Conflict on create.
func NewMongo(cfg *config.Config) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.MongoTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{
		client:  client,
		db:      client.Database(cfg.MongoDatabase),
		timeout: cfg.MongoTimeout,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	logg.Info("store", "Connected to MongoDB (URI anonymized)")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	idIndex := mongo.IndexModel{Keys: bson.D{{Key: "id", Value: 1}}, Options: unique}

	for _, coll := range []string{"users", "threads", "replies"} {
		if _, err := s.db.Collection(coll).Indexes().CreateOne(ctx, idIndex); err != nil {
			return err
		}
	}

	secondary := []struct {
		coll string
		key  string
	}{
		{"threads", "userId"},
		{"replies", "threadId"},
		{"replies", "userId"},
	}
	for _, ix := range secondary {
		model := mongo.IndexModel{Keys: bson.D{{Key: ix.key, Value: 1}}}
		if _, err := s.db.Collection(ix.coll).Indexes().CreateOne(ctx, model); err != nil {
			return err
		}
	}
	return nil
}

// Close disconnects the Mongo client.
func (s *MongoStore) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		logg.Error("store", "Error disconnecting from MongoDB", err)
		return
	}
	logg.Info("store", "MongoDB connection closed")
}

func sortDir(ord Ordering) int {
	if ord == OrderAsc {
		return 1
	}
	return -1
}

// --- User operations ---

func (s *MongoStore) CreateUser(ctx context.Context, u models.User) error {
	if u.Followers == nil {
		u.Followers = []string{}
	}
	if u.Likes == nil {
		u.Likes = []models.LikeRef{}
	}
	if _, err := s.db.Collection("users").InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("user id already exists")
		}
		logg.Error("store", "Failed to insert user", err)
		return apperr.Internal("failed to create user", err)
	}
	return nil
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := s.db.Collection("users").FindOne(ctx, bson.M{"id": id}).Decode(&u)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, apperr.NotFound("User not found")
		}
		logg.Error("store", "Failed to query user", err)
		return models.User{}, apperr.Internal("failed to get user", err)
	}
	return u, nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	cur, err := s.db.Collection("users").Find(ctx, bson.M{})
	if err != nil {
		logg.Error("store", "Failed to list users", err)
		return nil, apperr.Internal("failed to list users", err)
	}
	users := []models.User{}
	if err := cur.All(ctx, &users); err != nil {
		return nil, apperr.Internal("failed to decode users", err)
	}
	return users, nil
}

// AddFollower appends followerID unless it is already present. The $ne
// guard in the filter makes check and append one atomic update.
func (s *MongoStore) AddFollower(ctx context.Context, userID, followerID string) error {
	res, err := s.db.Collection("users").UpdateOne(ctx,
		bson.M{"id": userID, "followers": bson.M{"$ne": followerID}},
		bson.M{"$push": bson.M{"followers": followerID}},
	)
	if err != nil {
		logg.Error("store", "Failed to add follower", err)
		return apperr.Internal("failed to add follower", err)
	}
	if res.MatchedCount == 0 {
		// Either the user is missing or the follower is already there.
		if _, err := s.GetUser(ctx, userID); err != nil {
			return err
		}
		return apperr.Conflict("Already following this user")
	}
	return nil
}

func (s *MongoStore) RemoveFollower(ctx context.Context, userID, followerID string) error {
	res, err := s.db.Collection("users").UpdateOne(ctx,
		bson.M{"id": userID, "followers": followerID},
		bson.M{"$pull": bson.M{"followers": followerID}},
	)
	if err != nil {
		logg.Error("store", "Failed to remove follower", err)
		return apperr.Internal("failed to remove follower", err)
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetUser(ctx, userID); err != nil {
			return err
		}
		return apperr.Conflict("Not following this user")
	}
	return nil
}

// --- Thread operations ---

func (s *MongoStore) CreateThread(ctx context.Context, t models.Thread) error {
	if t.LikedUsers == nil {
		t.LikedUsers = []string{}
	}
	if _, err := s.db.Collection("threads").InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("thread id already exists")
		}
		logg.Error("store", "Failed to insert thread", err)
		return apperr.Internal("failed to create thread", err)
	}
	return nil
}

func (s *MongoStore) GetThread(ctx context.Context, id string) (models.Thread, error) {
	var t models.Thread
	err := s.db.Collection("threads").FindOne(ctx, bson.M{"id": id}).Decode(&t)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Thread{}, apperr.NotFound("Thread not found")
		}
		logg.Error("store", "Failed to query thread", err)
		return models.Thread{}, apperr.Internal("failed to get thread", err)
	}
	return t, nil
}

func (s *MongoStore) listThreads(ctx context.Context, filter bson.M, ord Ordering) ([]models.Thread, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: sortDir(ord)}})
	cur, err := s.db.Collection("threads").Find(ctx, filter, opts)
	if err != nil {
		logg.Error("store", "Failed to list threads", err)
		return nil, apperr.Internal("failed to list threads", err)
	}
	threads := []models.Thread{}
	if err := cur.All(ctx, &threads); err != nil {
		return nil, apperr.Internal("failed to decode threads", err)
	}
	return threads, nil
}

func (s *MongoStore) ListThreads(ctx context.Context, ord Ordering) ([]models.Thread, error) {
	return s.listThreads(ctx, bson.M{}, ord)
}

func (s *MongoStore) ListThreadsBetween(ctx context.Context, from, to time.Time, ord Ordering) ([]models.Thread, error) {
	return s.listThreads(ctx, bson.M{"createdAt": bson.M{"$gte": from, "$lte": to}}, ord)
}

func (s *MongoStore) ThreadsByUser(ctx context.Context, userID string) ([]models.Thread, error) {
	return s.listThreads(ctx, bson.M{"userId": userID}, OrderDesc)
}

// --- Reply operations ---

func (s *MongoStore) CreateReply(ctx context.Context, r models.Reply) error {
	if r.LikedUsers == nil {
		r.LikedUsers = []string{}
	}
	if _, err := s.db.Collection("replies").InsertOne(ctx, r); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("reply id already exists")
		}
		logg.Error("store", "Failed to insert reply", err)
		return apperr.Internal("failed to create reply", err)
	}
	return nil
}

func (s *MongoStore) GetReply(ctx context.Context, id string) (models.Reply, error) {
	var r models.Reply
	err := s.db.Collection("replies").FindOne(ctx, bson.M{"id": id}).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Reply{}, apperr.NotFound("Reply not found")
		}
		logg.Error("store", "Failed to query reply", err)
		return models.Reply{}, apperr.Internal("failed to get reply", err)
	}
	return r, nil
}

func (s *MongoStore) listReplies(ctx context.Context, filter bson.M, ord Ordering) ([]models.Reply, error) {
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: sortDir(ord)}})
	cur, err := s.db.Collection("replies").Find(ctx, filter, opts)
	if err != nil {
		logg.Error("store", "Failed to list replies", err)
		return nil, apperr.Internal("failed to list replies", err)
	}
	replies := []models.Reply{}
	if err := cur.All(ctx, &replies); err != nil {
		return nil, apperr.Internal("failed to decode replies", err)
	}
	return replies, nil
}

func (s *MongoStore) RepliesByThread(ctx context.Context, threadID string, ord Ordering) ([]models.Reply, error) {
	return s.listReplies(ctx, bson.M{"threadId": threadID}, ord)
}

func (s *MongoStore) RepliesByUser(ctx context.Context, userID string) ([]models.Reply, error) {
	return s.listReplies(ctx, bson.M{"userId": userID}, OrderDesc)
}

// --- Like operations ---

func likeCollection(kind models.LikeKind) (string, error) {
	switch kind {
	case models.KindThread:
		return "threads", nil
	case models.KindReply:
		return "replies", nil
	default:
		return "", apperr.InvalidArgument("unknown like kind")
	}
}

// AddLike appends userID to likedUsers of the target entity; the filter
// guard rejects duplicates atomically.
func (s *MongoStore) AddLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error {
	coll, err := likeCollection(kind)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(coll).UpdateOne(ctx,
		bson.M{"id": entityID, "likedUsers": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"likedUsers": userID}},
	)
	if err != nil {
		logg.Error("store", "Failed to add like", err)
		return apperr.Internal("failed to add like", err)
	}
	if res.MatchedCount == 0 {
		if err := s.checkEntityExists(ctx, kind, entityID); err != nil {
			return err
		}
		return apperr.Conflict(fmt.Sprintf("Already liked this %s", kind))
	}
	return nil
}

func (s *MongoStore) RemoveLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error {
	coll, err := likeCollection(kind)
	if err != nil {
		return err
	}
	res, err := s.db.Collection(coll).UpdateOne(ctx,
		bson.M{"id": entityID, "likedUsers": userID},
		bson.M{"$pull": bson.M{"likedUsers": userID}},
	)
	if err != nil {
		logg.Error("store", "Failed to remove like", err)
		return apperr.Internal("failed to remove like", err)
	}
	if res.MatchedCount == 0 {
		if err := s.checkEntityExists(ctx, kind, entityID); err != nil {
			return err
		}
		return apperr.Conflict(fmt.Sprintf("Not liked this %s", kind))
	}
	return nil
}

func (s *MongoStore) checkEntityExists(ctx context.Context, kind models.LikeKind, entityID string) error {
	if kind == models.KindThread {
		_, err := s.GetThread(ctx, entityID)
		return err
	}
	_, err := s.GetReply(ctx, entityID)
	return err
}
