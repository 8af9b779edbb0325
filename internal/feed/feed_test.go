package feed

import (
	"context"
	"testing"
	"time"

	"example.com/threadfeed/internal/apperr"
	"example.com/threadfeed/internal/models"
	"example.com/threadfeed/internal/store"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedStore(t *testing.T) *store.MockStore {
	t.Helper()
	st := store.NewMock()
	ctx := context.Background()

	if err := st.CreateUser(ctx, models.User{ID: "u1", Username: "alice", UserImage: "a.png"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := st.CreateUser(ctx, models.User{ID: "u2", Username: "bob", UserImage: "b.png"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	threads := []models.Thread{
		{ID: "t1", UserID: "u1", Content: "first", CreatedAt: base},
		{ID: "t2", UserID: "u2", Content: "second", CreatedAt: base.Add(1 * time.Hour)},
		{ID: "t3", UserID: "u1", Content: "third", CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, th := range threads {
		if err := st.CreateThread(ctx, th); err != nil {
			t.Fatalf("CreateThread failed: %v", err)
		}
	}

	replies := []models.Reply{
		{ID: "r1", UserID: "u2", Content: "re one", ThreadID: "t1", Time: base.Add(10 * time.Minute)},
		{ID: "r2", UserID: "u1", Content: "re two", ThreadID: "t1", Time: base.Add(20 * time.Minute)},
		{ID: "r3", UserID: "u2", Content: "elsewhere", ThreadID: "t2", Time: base.Add(30 * time.Minute)},
	}
	for _, r := range replies {
		if err := st.CreateReply(ctx, r); err != nil {
			t.Fatalf("CreateReply failed: %v", err)
		}
	}
	return st
}

func TestListThreadsOrdering(t *testing.T) {
	a := New(seedStore(t))
	ctx := context.Background()

	desc, err := a.ListThreads(ctx, store.OrderDesc)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(desc) != 3 || desc[0].ID != "t3" || desc[2].ID != "t1" {
		t.Fatalf("unexpected desc order: %v", threadIDs(desc))
	}

	asc, err := a.ListThreads(ctx, store.OrderAsc)
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if asc[0].ID != "t1" || asc[2].ID != "t3" {
		t.Fatalf("unexpected asc order: %v", threadIDs(asc))
	}
}

func TestListThreadsDetailed(t *testing.T) {
	a := New(seedStore(t))
	ctx := context.Background()

	details, err := a.ListThreadsDetailed(ctx, store.OrderAsc)
	if err != nil {
		t.Fatalf("ListThreadsDetailed failed: %v", err)
	}
	if len(details) != 3 {
		t.Fatalf("expected 3 threads, got %d", len(details))
	}

	// each thread carries exactly the replies whose threadId matches
	first := details[0]
	if first.ID != "t1" {
		t.Fatalf("expected t1 first, got %s", first.ID)
	}
	if len(first.Replies) != 2 || first.Replies[0].ID != "r1" || first.Replies[1].ID != "r2" {
		t.Fatalf("unexpected replies for t1: %v", first.Replies)
	}
	for _, r := range first.Replies {
		if r.ThreadID != "t1" {
			t.Fatalf("reply %s does not belong to t1", r.ID)
		}
	}
	if len(details[2].Replies) != 0 {
		t.Fatalf("expected no replies for t3, got %v", details[2].Replies)
	}

	// author snapshot is denormalized at read time
	if first.User.ID != "u1" || first.User.Username != "alice" || first.User.UserImage != "a.png" {
		t.Fatalf("unexpected author snapshot: %+v", first.User)
	}
}

func TestListThreadsDetailedMissingAuthor(t *testing.T) {
	st := seedStore(t)
	ctx := context.Background()
	if err := st.CreateThread(ctx, models.Thread{
		ID: "t4", UserID: "ghost", Content: "orphan", CreatedAt: base.Add(3 * time.Hour),
	}); err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}

	details, err := New(st).ListThreadsDetailed(ctx, store.OrderDesc)
	if err != nil {
		t.Fatalf("ListThreadsDetailed failed: %v", err)
	}
	if details[0].ID != "t4" || details[0].User.ID != "ghost" || details[0].User.Username != "" {
		t.Fatalf("expected empty snapshot for missing author, got %+v", details[0].User)
	}
}

func TestListThreadsBetween(t *testing.T) {
	a := New(seedStore(t))
	ctx := context.Background()

	threads, err := a.ListThreadsBetween(ctx, base.Add(30*time.Minute), base.Add(90*time.Minute), store.OrderAsc)
	if err != nil {
		t.Fatalf("ListThreadsBetween failed: %v", err)
	}
	if len(threads) != 1 || threads[0].ID != "t2" {
		t.Fatalf("unexpected range result: %v", threadIDs(threads))
	}
}

func TestRepliesOrdering(t *testing.T) {
	a := New(seedStore(t))
	ctx := context.Background()

	replies, err := a.Replies(ctx, "t1", store.OrderDesc)
	if err != nil {
		t.Fatalf("Replies failed: %v", err)
	}
	if len(replies) != 2 || replies[0].ID != "r2" || replies[1].ID != "r1" {
		t.Fatalf("unexpected reply order: %v", replies)
	}
}

func TestUserProfileLikesReceived(t *testing.T) {
	st := seedStore(t)
	a := New(st)
	ctx := context.Background()

	// u1 owns t1, t3 and r2; likes land on their content and elsewhere
	likes := []struct {
		kind models.LikeKind
		id   string
		by   string
	}{
		{models.KindThread, "t1", "u2"},
		{models.KindThread, "t1", "u3"},
		{models.KindReply, "r2", "u2"},
		{models.KindThread, "t2", "u1"}, // on u2's content, must not count for u1
	}
	for _, l := range likes {
		if err := st.AddLike(ctx, l.kind, l.id, l.by); err != nil {
			t.Fatalf("AddLike failed: %v", err)
		}
	}

	p, err := a.UserProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("UserProfile failed: %v", err)
	}
	if p.LikesCount != 3 {
		t.Fatalf("expected likesCount 3, got %d", p.LikesCount)
	}
	if len(p.Threads) != 2 {
		t.Fatalf("expected 2 owned threads, got %d", len(p.Threads))
	}
	if len(p.Replies) != 1 || p.Replies[0].ID != "r2" {
		t.Fatalf("unexpected owned replies: %v", p.Replies)
	}
}

func TestUserProfileMissingUser(t *testing.T) {
	a := New(seedStore(t))
	if _, err := a.UserProfile(context.Background(), "nobody"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func threadIDs(threads []models.Thread) []string {
	ids := make([]string, len(threads))
	for i, t := range threads {
		ids[i] = t.ID
	}
	return ids
}
