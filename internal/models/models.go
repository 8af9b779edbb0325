package models

import (
	"encoding/json"
	"time"
)

// LikeKind distinguishes which entity collection a like targets.
type LikeKind string

const (
	KindThread LikeKind = "thread"
	KindReply  LikeKind = "reply"
)

// LikeRef points at a liked entity from a user document.
type LikeRef struct {
	Kind LikeKind `json:"type" bson:"type"`
	ID   string   `json:"id" bson:"id"`
}

type User struct {
	ID        string    `json:"id" bson:"id"`
	Username  string    `json:"username" bson:"username"`
	UserImage string    `json:"userImage" bson:"userImage"`
	Followers []string  `json:"followers" bson:"followers"`
	Likes     []LikeRef `json:"likes" bson:"likes"`
}

type Thread struct {
	ID         string    `json:"id" bson:"id"`
	UserID     string    `json:"userId" bson:"userId"`
	Content    string    `json:"content" bson:"content"`
	LikedUsers []string  `json:"likedUsers" bson:"likedUsers"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

type Reply struct {
	ID         string    `json:"id" bson:"id"`
	UserID     string    `json:"userId" bson:"userId"`
	Content    string    `json:"content" bson:"content"`
	Time       time.Time `json:"time" bson:"time"`
	ThreadID   string    `json:"threadId" bson:"threadId"`
	LikedUsers []string  `json:"likedUsers" bson:"likedUsers"`
}

// Event types published when entities are created.
const (
	EventThreadCreated = "threadCreated"
	EventReplyCreated  = "replyCreated"
)

// Event is the envelope carried through Kafka and broadcast to
// realtime subscribers. Payload holds the created entity as JSON.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}
