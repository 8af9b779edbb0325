// Package relation implements the checked add/remove operations on
// follower lists and liked-user sets.
package relation

import (
	"context"

	"example.com/threadfeed/internal/apperr"
	"example.com/threadfeed/internal/models"
	"example.com/threadfeed/internal/store"
)

// Mutator validates relationship mutations and applies them through the
// store's atomic primitives. Every operation is idempotency-checked,
// not idempotent: a repeated call observes Conflict.
type Mutator struct {
	store store.StoreInterface
}

func New(st store.StoreInterface) *Mutator {
	return &Mutator{store: st}
}

// Follow appends followerID to the user's follower list and returns the
// updated user. Missing user wins over a missing followerID, matching
// the order the API contract fixes.
func (m *Mutator) Follow(ctx context.Context, userID, followerID string) (models.User, error) {
	if _, err := m.store.GetUser(ctx, userID); err != nil {
		return models.User{}, err
	}
	if followerID == "" {
		return models.User{}, apperr.InvalidArgument("Follower ID is required")
	}
	if err := m.store.AddFollower(ctx, userID, followerID); err != nil {
		return models.User{}, err
	}
	return m.store.GetUser(ctx, userID)
}

// Unfollow removes followerID; removing an absent follower is Conflict.
func (m *Mutator) Unfollow(ctx context.Context, userID, followerID string) (models.User, error) {
	if _, err := m.store.GetUser(ctx, userID); err != nil {
		return models.User{}, err
	}
	if followerID == "" {
		return models.User{}, apperr.InvalidArgument("Follower ID is required")
	}
	if err := m.store.RemoveFollower(ctx, userID, followerID); err != nil {
		return models.User{}, err
	}
	return m.store.GetUser(ctx, userID)
}

func (m *Mutator) like(ctx context.Context, kind models.LikeKind, entityID, userID string, add bool) error {
	// Entity resolution first so a missing entity reports NotFound even
	// when userID is also absent.
	switch kind {
	case models.KindThread:
		if _, err := m.store.GetThread(ctx, entityID); err != nil {
			return err
		}
	case models.KindReply:
		if _, err := m.store.GetReply(ctx, entityID); err != nil {
			return err
		}
	default:
		return apperr.InvalidArgument("unknown like kind")
	}
	if userID == "" {
		return apperr.InvalidArgument("User ID is required")
	}
	if add {
		return m.store.AddLike(ctx, kind, entityID, userID)
	}
	return m.store.RemoveLike(ctx, kind, entityID, userID)
}

func (m *Mutator) LikeThread(ctx context.Context, threadID, userID string) (models.Thread, error) {
	if err := m.like(ctx, models.KindThread, threadID, userID, true); err != nil {
		return models.Thread{}, err
	}
	return m.store.GetThread(ctx, threadID)
}

func (m *Mutator) UnlikeThread(ctx context.Context, threadID, userID string) (models.Thread, error) {
	if err := m.like(ctx, models.KindThread, threadID, userID, false); err != nil {
		return models.Thread{}, err
	}
	return m.store.GetThread(ctx, threadID)
}

func (m *Mutator) LikeReply(ctx context.Context, replyID, userID string) (models.Reply, error) {
	if err := m.like(ctx, models.KindReply, replyID, userID, true); err != nil {
		return models.Reply{}, err
	}
	return m.store.GetReply(ctx, replyID)
}

func (m *Mutator) UnlikeReply(ctx context.Context, replyID, userID string) (models.Reply, error) {
	if err := m.like(ctx, models.KindReply, replyID, userID, false); err != nil {
		return models.Reply{}, err
	}
	return m.store.GetReply(ctx, replyID)
}
