package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"example.com/threadfeed/internal/apperr"
	"example.com/threadfeed/internal/models"
)

// MockStore simulates the document store for testing. A single mutex
// stands in for the per-document write serialization the real backends
// get from guarded updates, so the Conflict invariants hold under
// concurrent access in tests too.
type MockStore struct {
	mu         sync.Mutex
	Users      map[string]*models.User
	Threads    map[string]*models.Thread
	Replies    map[string]*models.Reply
	ShouldFail bool // flag to simulate failures
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:   make(map[string]*models.User),
		Threads: make(map[string]*models.Thread),
		Replies: make(map[string]*models.Reply),
	}
}

func (m *MockStore) Close() {}

func (m *MockStore) failing() bool { return m.ShouldFail }

func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func copyUser(u *models.User) models.User {
	out := *u
	out.Followers = copyStrings(u.Followers)
	out.Likes = append([]models.LikeRef{}, u.Likes...)
	return out
}

func copyThread(t *models.Thread) models.Thread {
	out := *t
	out.LikedUsers = copyStrings(t.LikedUsers)
	return out
}

func copyReply(r *models.Reply) models.Reply {
	out := *r
	out.LikedUsers = copyStrings(r.LikedUsers)
	return out
}

// --- User operations ---

func (m *MockStore) CreateUser(ctx context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return errors.New("mock: create user failed")
	}
	if _, ok := m.Users[u.ID]; ok {
		return apperr.Conflict("user id already exists")
	}
	if u.Followers == nil {
		u.Followers = []string{}
	}
	if u.Likes == nil {
		u.Likes = []models.LikeRef{}
	}
	m.Users[u.ID] = &u
	return nil
}

func (m *MockStore) GetUser(ctx context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return models.User{}, errors.New("mock: get user failed")
	}
	u, ok := m.Users[id]
	if !ok {
		return models.User{}, apperr.NotFound("User not found")
	}
	return copyUser(u), nil
}

func (m *MockStore) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return nil, errors.New("mock: list users failed")
	}
	users := []models.User{}
	for _, u := range m.Users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MockStore) AddFollower(ctx context.Context, userID, followerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return errors.New("mock: add follower failed")
	}
	u, ok := m.Users[userID]
	if !ok {
		return apperr.NotFound("User not found")
	}
	for _, f := range u.Followers {
		if f == followerID {
			return apperr.Conflict("Already following this user")
		}
	}
	u.Followers = append(u.Followers, followerID)
	return nil
}

func (m *MockStore) RemoveFollower(ctx context.Context, userID, followerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return errors.New("mock: remove follower failed")
	}
	u, ok := m.Users[userID]
	if !ok {
		return apperr.NotFound("User not found")
	}
	for i, f := range u.Followers {
		if f == followerID {
			u.Followers = append(u.Followers[:i], u.Followers[i+1:]...)
			return nil
		}
	}
	return apperr.Conflict("Not following this user")
}

// --- Thread operations ---

func (m *MockStore) CreateThread(ctx context.Context, t models.Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return errors.New("mock: create thread failed")
	}
	if _, ok := m.Threads[t.ID]; ok {
		return apperr.Conflict("thread id already exists")
	}
	if t.LikedUsers == nil {
		t.LikedUsers = []string{}
	}
	m.Threads[t.ID] = &t
	return nil
}

func (m *MockStore) GetThread(ctx context.Context, id string) (models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return models.Thread{}, errors.New("mock: get thread failed")
	}
	t, ok := m.Threads[id]
	if !ok {
		return models.Thread{}, apperr.NotFound("Thread not found")
	}
	return copyThread(t), nil
}

func (m *MockStore) threadsWhere(keep func(*models.Thread) bool, ord Ordering) []models.Thread {
	threads := []models.Thread{}
	for _, t := range m.Threads {
		if keep(t) {
			threads = append(threads, copyThread(t))
		}
	}
	sortThreads(threads, ord)
	return threads
}

func (m *MockStore) ListThreads(ctx context.Context, ord Ordering) ([]models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return nil, errors.New("mock: list threads failed")
	}
	return m.threadsWhere(func(*models.Thread) bool { return true }, ord), nil
}

func (m *MockStore) ListThreadsBetween(ctx context.Context, from, to time.Time, ord Ordering) ([]models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return nil, errors.New("mock: list threads failed")
	}
	return m.threadsWhere(func(t *models.Thread) bool {
		return !t.CreatedAt.Before(from) && !t.CreatedAt.After(to)
	}, ord), nil
}

func (m *MockStore) ThreadsByUser(ctx context.Context, userID string) ([]models.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return nil, errors.New("mock: list threads failed")
	}
	return m.threadsWhere(func(t *models.Thread) bool { return t.UserID == userID }, OrderDesc), nil
}

// --- Reply operations ---

func (m *MockStore) CreateReply(ctx context.Context, r models.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return errors.New("mock: create reply failed")
	}
	if _, ok := m.Replies[r.ID]; ok {
		return apperr.Conflict("reply id already exists")
	}
	if r.LikedUsers == nil {
		r.LikedUsers = []string{}
	}
	m.Replies[r.ID] = &r
	return nil
}

func (m *MockStore) GetReply(ctx context.Context, id string) (models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return models.Reply{}, errors.New("mock: get reply failed")
	}
	r, ok := m.Replies[id]
	if !ok {
		return models.Reply{}, apperr.NotFound("Reply not found")
	}
	return copyReply(r), nil
}

func (m *MockStore) repliesWhere(keep func(*models.Reply) bool, ord Ordering) []models.Reply {
	replies := []models.Reply{}
	for _, r := range m.Replies {
		if keep(r) {
			replies = append(replies, copyReply(r))
		}
	}
	sortReplies(replies, ord)
	return replies
}

func (m *MockStore) RepliesByThread(ctx context.Context, threadID string, ord Ordering) ([]models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return nil, errors.New("mock: list replies failed")
	}
	return m.repliesWhere(func(r *models.Reply) bool { return r.ThreadID == threadID }, ord), nil
}

func (m *MockStore) RepliesByUser(ctx context.Context, userID string) ([]models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return nil, errors.New("mock: list replies failed")
	}
	return m.repliesWhere(func(r *models.Reply) bool { return r.UserID == userID }, OrderDesc), nil
}

// --- Like operations ---

func (m *MockStore) likedUsers(kind models.LikeKind, entityID string) (*[]string, error) {
	switch kind {
	case models.KindThread:
		t, ok := m.Threads[entityID]
		if !ok {
			return nil, apperr.NotFound("Thread not found")
		}
		return &t.LikedUsers, nil
	case models.KindReply:
		r, ok := m.Replies[entityID]
		if !ok {
			return nil, apperr.NotFound("Reply not found")
		}
		return &r.LikedUsers, nil
	default:
		return nil, apperr.InvalidArgument("unknown like kind")
	}
}

func (m *MockStore) AddLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return errors.New("mock: add like failed")
	}
	liked, err := m.likedUsers(kind, entityID)
	if err != nil {
		return err
	}
	for _, u := range *liked {
		if u == userID {
			return apperr.Conflict("Already liked this " + string(kind))
		}
	}
	*liked = append(*liked, userID)
	return nil
}

func (m *MockStore) RemoveLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing() {
		return errors.New("mock: remove like failed")
	}
	liked, err := m.likedUsers(kind, entityID)
	if err != nil {
		return err
	}
	for i, u := range *liked {
		if u == userID {
			*liked = append((*liked)[:i], (*liked)[i+1:]...)
			return nil
		}
	}
	return apperr.Conflict("Not liked this " + string(kind))
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(ctx context.Context, u models.User) error {
	return errors.New("mock store create user failed")
}

func (m *MockStoreFail) GetUser(ctx context.Context, id string) (models.User, error) {
	return models.User{}, errors.New("mock store get user failed")
}

func (m *MockStoreFail) ListUsers(ctx context.Context) ([]models.User, error) {
	return nil, errors.New("mock store list users failed")
}

func (m *MockStoreFail) AddFollower(ctx context.Context, userID, followerID string) error {
	return errors.New("mock store add follower failed")
}

func (m *MockStoreFail) RemoveFollower(ctx context.Context, userID, followerID string) error {
	return errors.New("mock store remove follower failed")
}

func (m *MockStoreFail) CreateThread(ctx context.Context, t models.Thread) error {
	return errors.New("mock store create thread failed")
}

func (m *MockStoreFail) GetThread(ctx context.Context, id string) (models.Thread, error) {
	return models.Thread{}, errors.New("mock store get thread failed")
}

func (m *MockStoreFail) ListThreads(ctx context.Context, ord Ordering) ([]models.Thread, error) {
	return nil, errors.New("mock store list threads failed")
}

func (m *MockStoreFail) ListThreadsBetween(ctx context.Context, from, to time.Time, ord Ordering) ([]models.Thread, error) {
	return nil, errors.New("mock store list threads failed")
}

func (m *MockStoreFail) ThreadsByUser(ctx context.Context, userID string) ([]models.Thread, error) {
	return nil, errors.New("mock store threads by user failed")
}

func (m *MockStoreFail) CreateReply(ctx context.Context, r models.Reply) error {
	return errors.New("mock store create reply failed")
}

func (m *MockStoreFail) GetReply(ctx context.Context, id string) (models.Reply, error) {
	return models.Reply{}, errors.New("mock store get reply failed")
}

func (m *MockStoreFail) RepliesByThread(ctx context.Context, threadID string, ord Ordering) ([]models.Reply, error) {
	return nil, errors.New("mock store replies by thread failed")
}

func (m *MockStoreFail) RepliesByUser(ctx context.Context, userID string) ([]models.Reply, error) {
	return nil, errors.New("mock store replies by user failed")
}

func (m *MockStoreFail) AddLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error {
	return errors.New("mock store add like failed")
}

func (m *MockStoreFail) RemoveLike(ctx context.Context, kind models.LikeKind, entityID, userID string) error {
	return errors.New("mock store remove like failed")
}
