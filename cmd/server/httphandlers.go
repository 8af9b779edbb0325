package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"example.com/threadfeed/internal/apperr"
	"example.com/threadfeed/internal/models"
	"example.com/threadfeed/internal/monitoring"
	"example.com/threadfeed/internal/store"
)

// --- Response helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError translates the taxonomy into {"message": ...} responses.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.HTTPStatus(err), map[string]string{"message": apperr.Message(err)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		logg.Error("http", "Invalid request body", err)
		writeError(w, apperr.InvalidArgument("invalid request body"))
		return false
	}
	return true
}

// --- User handlers ---

// createUserHandler handles POST /api/users.
// Expects JSON body: {"id": ..., "username": ..., "userImage": ...}
func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID        string `json:"id"`
		Username  string `json:"username"`
		UserImage string `json:"userImage"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if body.ID == "" || body.Username == "" || body.UserImage == "" {
		writeError(w, apperr.InvalidArgument("User ID, username, and user image are required"))
		return
	}

	user := models.User{
		ID:        body.ID,
		Username:  body.Username,
		UserImage: body.UserImage,
		Followers: []string{},
		Likes:     []models.LikeRef{},
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		logg.Error("http/users", "Failed to create user", err)
		writeError(w, err)
		return
	}

	logg.Info("http/users", "User created successfully userId="+user.ID)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) listUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		logg.Error("http/users", "Failed to list users", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// getUserBasicHandler returns the user without their content or likes.
func (s *Server) getUserBasicHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        user.ID,
		"username":  user.Username,
		"userImage": user.UserImage,
		"followers": user.Followers,
	})
}

// getUserProfileHandler returns the user with all owned threads and
// replies plus the total likes their content has received.
func (s *Server) getUserProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := s.feed.UserProfile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// followHandler handles POST /api/users/follow/{id}.
// Expects JSON body: {"followerId": ...}
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FollowerID string `json:"followerId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	user, err := s.mutator.Follow(r.Context(), mux.Vars(r)["id"], body.FollowerID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			monitoring.RelationConflicts.WithLabelValues("follow").Inc()
		}
		writeError(w, err)
		return
	}

	monitoring.FollowMutations.WithLabelValues("follow").Inc()
	logg.Info("http/follow", "Follower added userId="+user.ID)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FollowerID string `json:"followerId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	user, err := s.mutator.Unfollow(r.Context(), mux.Vars(r)["id"], body.FollowerID)
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			monitoring.RelationConflicts.WithLabelValues("unfollow").Inc()
		}
		writeError(w, err)
		return
	}

	monitoring.FollowMutations.WithLabelValues("unfollow").Inc()
	logg.Info("http/follow", "Follower removed userId="+user.ID)
	writeJSON(w, http.StatusOK, user)
}

// --- Thread handlers ---

// createThreadHandler stores the thread and hands a threadCreated event
// to the notifier. The broadcast is best-effort and never fails the
// request.
func (s *Server) createThreadHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID      string `json:"id"`
		UserID  string `json:"userId"`
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if body.ID == "" || body.UserID == "" || body.Content == "" {
		writeError(w, apperr.InvalidArgument("Thread ID, user ID, and content are required"))
		return
	}

	thread := models.Thread{
		ID:         body.ID,
		UserID:     body.UserID,
		Content:    body.Content,
		LikedUsers: []string{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateThread(r.Context(), thread); err != nil {
		logg.Error("http/threads", "Failed to create thread", err)
		writeError(w, err)
		return
	}

	s.notifier.Notify(models.EventThreadCreated, thread)
	monitoring.ThreadsCreated.Inc()
	logg.Info("http/threads", "Thread created successfully userId="+thread.UserID)
	writeJSON(w, http.StatusOK, thread)
}

// listThreadsHandler handles GET /api/threads/{includeDetails}.
// ?order=asc|desc selects the chronological ordering, newest-first by
// default.
func (s *Server) listThreadsHandler(w http.ResponseWriter, r *http.Request) {
	ord := store.ParseOrdering(r.URL.Query().Get("order"))

	if mux.Vars(r)["includeDetails"] == "true" {
		details, err := s.feed.ListThreadsDetailed(r.Context(), ord)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, details)
		return
	}

	threads, err := s.feed.ListThreads(r.Context(), ord)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

// listThreadsRangeHandler handles GET /api/threads/range/{fromTime}/{toTime}
// with unix-second bounds.
func (s *Server) listThreadsRangeHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	from, err1 := strconv.ParseInt(vars["fromTime"], 10, 64)
	to, err2 := strconv.ParseInt(vars["toTime"], 10, 64)
	if err1 != nil || err2 != nil || from > to {
		writeError(w, apperr.InvalidArgument("fromTime and toTime must be unix seconds with fromTime <= toTime"))
		return
	}

	ord := store.ParseOrdering(r.URL.Query().Get("order"))
	threads, err := s.feed.ListThreadsBetween(r.Context(), time.Unix(from, 0), time.Unix(to, 0), ord)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

func (s *Server) likeThreadHandler(w http.ResponseWriter, r *http.Request) {
	s.likeHandler(w, r, models.KindThread, true)
}

func (s *Server) unlikeThreadHandler(w http.ResponseWriter, r *http.Request) {
	s.likeHandler(w, r, models.KindThread, false)
}

func (s *Server) likeReplyHandler(w http.ResponseWriter, r *http.Request) {
	s.likeHandler(w, r, models.KindReply, true)
}

func (s *Server) unlikeReplyHandler(w http.ResponseWriter, r *http.Request) {
	s.likeHandler(w, r, models.KindReply, false)
}

// likeHandler applies a like/unlike mutation and responds with the
// updated entity.
func (s *Server) likeHandler(w http.ResponseWriter, r *http.Request, kind models.LikeKind, add bool) {
	var body struct {
		UserID string `json:"userId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	entityID := mux.Vars(r)["id"]

	op := "unlike"
	if add {
		op = "like"
	}

	var entity any
	var err error
	switch {
	case kind == models.KindThread && add:
		entity, err = s.mutator.LikeThread(r.Context(), entityID, body.UserID)
	case kind == models.KindThread:
		entity, err = s.mutator.UnlikeThread(r.Context(), entityID, body.UserID)
	case add:
		entity, err = s.mutator.LikeReply(r.Context(), entityID, body.UserID)
	default:
		entity, err = s.mutator.UnlikeReply(r.Context(), entityID, body.UserID)
	}
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			monitoring.RelationConflicts.WithLabelValues(op).Inc()
		}
		writeError(w, err)
		return
	}

	monitoring.LikeMutations.WithLabelValues(string(kind), op).Inc()
	writeJSON(w, http.StatusOK, entity)
}

// --- Reply handlers ---

// createReplyHandler stores the reply and emits a replyCreated event.
// threadId is not validated against threads; a reply may reference a
// thread that does not exist.
func (s *Server) createReplyHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID       string `json:"id"`
		UserID   string `json:"userId"`
		Content  string `json:"content"`
		ThreadID string `json:"threadId"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if body.ID == "" || body.UserID == "" || body.Content == "" || body.ThreadID == "" {
		writeError(w, apperr.InvalidArgument("Reply ID, user ID, content, and thread ID are required"))
		return
	}

	reply := models.Reply{
		ID:         body.ID,
		UserID:     body.UserID,
		Content:    body.Content,
		ThreadID:   body.ThreadID,
		LikedUsers: []string{},
		Time:       time.Now().UTC(),
	}
	if err := s.store.CreateReply(r.Context(), reply); err != nil {
		logg.Error("http/replies", "Failed to create reply", err)
		writeError(w, err)
		return
	}

	s.notifier.Notify(models.EventReplyCreated, reply)
	monitoring.RepliesCreated.Inc()
	logg.Info("http/replies", "Reply created successfully userId="+reply.UserID)
	writeJSON(w, http.StatusOK, reply)
}

// getRepliesHandler handles GET /api/replies/{threadId}.
func (s *Server) getRepliesHandler(w http.ResponseWriter, r *http.Request) {
	ord := store.ParseOrdering(r.URL.Query().Get("order"))
	replies, err := s.feed.Replies(r.Context(), mux.Vars(r)["threadId"], ord)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, replies)
}
