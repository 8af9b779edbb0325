package relation

import (
	"context"
	"sync"
	"testing"
	"time"

	"example.com/threadfeed/internal/apperr"
	"example.com/threadfeed/internal/models"
	"example.com/threadfeed/internal/store"
)

func setupMutator(t *testing.T) (*Mutator, *store.MockStore) {
	t.Helper()
	st := store.NewMock()
	ctx := context.Background()

	users := []models.User{
		{ID: "u1", Username: "alice", UserImage: "x"},
		{ID: "u2", Username: "bob", UserImage: "y"},
	}
	for _, u := range users {
		if err := st.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	thread := models.Thread{ID: "t1", UserID: "u1", Content: "hi", CreatedAt: time.Now()}
	if err := st.CreateThread(ctx, thread); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	reply := models.Reply{ID: "r1", UserID: "u2", Content: "hello", ThreadID: "t1", Time: time.Now()}
	if err := st.CreateReply(ctx, reply); err != nil {
		t.Fatalf("CreateReply failed: %v", err)
	}

	return New(st), st
}

// follow twice: second call must report Conflict, follower stored once
func TestFollowTwiceConflicts(t *testing.T) {
	m, _ := setupMutator(t)
	ctx := context.Background()

	u, err := m.Follow(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("first follow failed: %v", err)
	}
	if len(u.Followers) != 1 || u.Followers[0] != "u2" {
		t.Fatalf("unexpected followers: %v", u.Followers)
	}

	if _, err := m.Follow(ctx, "u1", "u2"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}

	u, err = m.Follow(ctx, "u1", "u3")
	if err != nil {
		t.Fatalf("follow by another user failed: %v", err)
	}
	count := 0
	for _, f := range u.Followers {
		if f == "u2" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected u2 exactly once, got %d", count)
	}
}

func TestFollowValidation(t *testing.T) {
	m, _ := setupMutator(t)
	ctx := context.Background()

	if _, err := m.Follow(ctx, "missing", "u2"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	// a missing user reports NotFound even when followerId is also absent
	if _, err := m.Follow(ctx, "missing", ""); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := m.Follow(ctx, "u1", ""); !apperr.Is(err, apperr.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

// follow -> unfollow -> unfollow: last call Conflict, followers empty
func TestUnfollowAbsentConflicts(t *testing.T) {
	m, _ := setupMutator(t)
	ctx := context.Background()

	if _, err := m.Follow(ctx, "u1", "u2"); err != nil {
		t.Fatalf("follow failed: %v", err)
	}
	u, err := m.Unfollow(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("unfollow failed: %v", err)
	}
	if len(u.Followers) != 0 {
		t.Fatalf("expected no followers, got %v", u.Followers)
	}

	if _, err := m.Unfollow(ctx, "u1", "u2"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

// like -> unlike -> unlike: third call Conflict
func TestLikeUnlikeUnlikeConflicts(t *testing.T) {
	m, _ := setupMutator(t)
	ctx := context.Background()

	th, err := m.LikeThread(ctx, "t1", "u2")
	if err != nil {
		t.Fatalf("like failed: %v", err)
	}
	if len(th.LikedUsers) != 1 || th.LikedUsers[0] != "u2" {
		t.Fatalf("unexpected likedUsers: %v", th.LikedUsers)
	}

	if _, err := m.UnlikeThread(ctx, "t1", "u2"); err != nil {
		t.Fatalf("unlike failed: %v", err)
	}
	if _, err := m.UnlikeThread(ctx, "t1", "u2"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestLikeThreadTwiceConflicts(t *testing.T) {
	m, _ := setupMutator(t)
	ctx := context.Background()

	if _, err := m.LikeThread(ctx, "t1", "u2"); err != nil {
		t.Fatalf("like failed: %v", err)
	}
	if _, err := m.LikeThread(ctx, "t1", "u2"); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestLikeReplyValidation(t *testing.T) {
	m, _ := setupMutator(t)
	ctx := context.Background()

	if _, err := m.LikeReply(ctx, "missing", "u1"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := m.LikeReply(ctx, "r1", ""); !apperr.Is(err, apperr.KindInvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	r, err := m.LikeReply(ctx, "r1", "u1")
	if err != nil {
		t.Fatalf("like reply failed: %v", err)
	}
	if len(r.LikedUsers) != 1 {
		t.Fatalf("unexpected likedUsers: %v", r.LikedUsers)
	}
}

// concurrent duplicate likes: exactly one may win
func TestConcurrentLikeSingleWinner(t *testing.T) {
	m, st := setupMutator(t)
	ctx := context.Background()

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.LikeThread(ctx, "t1", "u2"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful like, got %d", successes)
	}
	th, err := st.GetThread(ctx, "t1")
	if err != nil {
		t.Fatalf("GetThread failed: %v", err)
	}
	if len(th.LikedUsers) != 1 {
		t.Fatalf("expected one liked user, got %v", th.LikedUsers)
	}
}
