// Package feed composes threads with their replies and denormalized
// author data for the read endpoints.
package feed

import (
	"context"
	"time"

	"example.com/threadfeed/internal/apperr"
	"example.com/threadfeed/internal/models"
	"example.com/threadfeed/internal/store"
)

// AuthorSnapshot is the denormalized author view embedded in detailed
// thread listings. It is captured at read time, not a live reference.
type AuthorSnapshot struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	UserImage string   `json:"userImage"`
	Followers []string `json:"followers"`
}

// ThreadDetail is a thread enriched with its replies and author.
type ThreadDetail struct {
	models.Thread
	Replies []models.Reply `json:"replies"`
	User    AuthorSnapshot `json:"user"`
}

// Profile is the user plus everything they have posted and the total
// likes their content has received.
type Profile struct {
	models.User
	Threads    []models.Thread `json:"threads"`
	Replies    []models.Reply  `json:"replies"`
	LikesCount int             `json:"likesCount"`
}

// Assembler composes feed responses from store reads.
type Assembler struct {
	store store.StoreInterface
}

func New(st store.StoreInterface) *Assembler {
	return &Assembler{store: st}
}

// ListThreads returns all threads ordered by creation time.
func (a *Assembler) ListThreads(ctx context.Context, ord store.Ordering) ([]models.Thread, error) {
	return a.store.ListThreads(ctx, ord)
}

// ListThreadsBetween returns threads created within [from, to].
func (a *Assembler) ListThreadsBetween(ctx context.Context, from, to time.Time, ord store.Ordering) ([]models.Thread, error) {
	return a.store.ListThreadsBetween(ctx, from, to, ord)
}

// ListThreadsDetailed returns threads enriched with replies (sub-ordered
// by time under the same ordering) and a point-in-time author snapshot.
func (a *Assembler) ListThreadsDetailed(ctx context.Context, ord store.Ordering) ([]ThreadDetail, error) {
	threads, err := a.store.ListThreads(ctx, ord)
	if err != nil {
		return nil, err
	}

	authors := map[string]AuthorSnapshot{}
	details := []ThreadDetail{}
	for _, t := range threads {
		replies, err := a.store.RepliesByThread(ctx, t.ID, ord)
		if err != nil {
			return nil, err
		}

		author, ok := authors[t.UserID]
		if !ok {
			author, err = a.authorSnapshot(ctx, t.UserID)
			if err != nil {
				return nil, err
			}
			authors[t.UserID] = author
		}

		details = append(details, ThreadDetail{
			Thread:  t,
			Replies: replies,
			User:    author,
		})
	}
	return details, nil
}

// authorSnapshot tolerates a missing author: threads reference their
// owner by id only, and nothing enforces that the user still resolves.
func (a *Assembler) authorSnapshot(ctx context.Context, userID string) (AuthorSnapshot, error) {
	u, err := a.store.GetUser(ctx, userID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return AuthorSnapshot{ID: userID, Followers: []string{}}, nil
		}
		return AuthorSnapshot{}, err
	}
	return AuthorSnapshot{
		ID:        u.ID,
		Username:  u.Username,
		UserImage: u.UserImage,
		Followers: u.Followers,
	}, nil
}

// Replies returns the replies of one thread ordered by time.
func (a *Assembler) Replies(ctx context.Context, threadID string, ord store.Ordering) ([]models.Reply, error) {
	return a.store.RepliesByThread(ctx, threadID, ord)
}

// UserProfile returns the user with their threads, replies and
// likesCount. likesCount counts likes *received*: the sum of
// len(likedUsers) across all threads and replies the user owns.
func (a *Assembler) UserProfile(ctx context.Context, userID string) (Profile, error) {
	u, err := a.store.GetUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	threads, err := a.store.ThreadsByUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	replies, err := a.store.RepliesByUser(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	likesCount := 0
	for _, t := range threads {
		likesCount += len(t.LikedUsers)
	}
	for _, r := range replies {
		likesCount += len(r.LikedUsers)
	}

	return Profile{
		User:       u,
		Threads:    threads,
		Replies:    replies,
		LikesCount: likesCount,
	}, nil
}
