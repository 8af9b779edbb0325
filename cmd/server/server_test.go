package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	appkafka "example.com/threadfeed/internal/broker"
	"example.com/threadfeed/internal/models"
	"example.com/threadfeed/internal/notify"
	"example.com/threadfeed/internal/store"
)

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T) (*Server, *store.MockStore, *appkafka.MockKafka, *httptest.Server) {
	t.Helper()
	mockStore := store.NewMock()
	mockKafka := &appkafka.MockKafka{}
	q := notify.NewQueue(mockKafka, 16)
	t.Cleanup(q.Close)

	s := NewServer(mockStore, q)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, mockStore, mockKafka, ts
}

//
// --- Helpers ---
//

// sendJSONRequest posts the body and asserts the response status.
func sendJSONRequest(t *testing.T, method, url string, body any, expectedStatus int) map[string]any {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != expectedStatus {
		t.Fatalf("expected %d, got %d: %s", expectedStatus, resp.StatusCode, string(raw))
	}

	var decoded map[string]any
	_ = json.Unmarshal(raw, &decoded)
	return decoded
}

func createUserHelper(t *testing.T, ts *httptest.Server, id, username string) {
	t.Helper()
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users",
		map[string]string{"id": id, "username": username, "userImage": "img.png"},
		http.StatusOK)
}

func createThreadHelper(t *testing.T, ts *httptest.Server, id, userID, content string) {
	t.Helper()
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/threads",
		map[string]string{"id": id, "userId": userID, "content": content},
		http.StatusOK)
}

//
// --- Tests ---
//

func TestCreateUser(t *testing.T) {
	_, _, _, ts := setupTestServer(t)

	res := sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users",
		map[string]string{"id": "u1", "username": "alice", "userImage": "x"},
		http.StatusOK)

	if res["id"] != "u1" || res["username"] != "alice" {
		t.Fatalf("unexpected user payload: %v", res)
	}
	if followers, ok := res["followers"].([]any); !ok || len(followers) != 0 {
		t.Fatalf("expected empty followers array, got %v", res["followers"])
	}
}

func TestCreateUser_MissingFields(t *testing.T) {
	_, _, _, ts := setupTestServer(t)

	res := sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users",
		map[string]string{"id": "u1"}, http.StatusBadRequest)
	if res["message"] == "" {
		t.Fatalf("expected error message, got %v", res)
	}
}

func TestCreateUser_DuplicateID(t *testing.T) {
	_, _, _, ts := setupTestServer(t)

	createUserHelper(t, ts, "u1", "alice")
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users",
		map[string]string{"id": "u1", "username": "other", "userImage": "y"},
		http.StatusConflict)
}

func TestCreateUser_InvalidJSON(t *testing.T) {
	_, _, _, ts := setupTestServer(t)

	resp, err := http.Post(ts.URL+"/api/users", "application/json",
		bytes.NewBufferString(`{"username":123}`))
	if err != nil {
		t.Fatalf("http.Post failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// follow u1 by u2, repeat follow conflicts, then unfollow twice:
// the second unfollow conflicts and the follower list is empty again
func TestFollowUnfollowFlow(t *testing.T) {
	_, mockStore, _, ts := setupTestServer(t)
	createUserHelper(t, ts, "u1", "alice")

	res := sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users/follow/u1",
		map[string]string{"followerId": "u2"}, http.StatusOK)
	followers, _ := res["followers"].([]any)
	if len(followers) != 1 || followers[0] != "u2" {
		t.Fatalf("unexpected followers: %v", res["followers"])
	}

	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users/follow/u1",
		map[string]string{"followerId": "u2"}, http.StatusConflict)

	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users/unfollow/u1",
		map[string]string{"followerId": "u2"}, http.StatusOK)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users/unfollow/u1",
		map[string]string{"followerId": "u2"}, http.StatusConflict)

	u, err := mockStore.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if len(u.Followers) != 0 {
		t.Fatalf("expected no followers, got %v", u.Followers)
	}
}

func TestFollowValidation(t *testing.T) {
	_, _, _, ts := setupTestServer(t)
	createUserHelper(t, ts, "u1", "alice")

	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users/follow/missing",
		map[string]string{"followerId": "u2"}, http.StatusNotFound)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users/follow/u1",
		map[string]string{}, http.StatusBadRequest)
}

// create user, thread, like by another user, repeat like conflicts
func TestLikeThreadScenario(t *testing.T) {
	_, _, _, ts := setupTestServer(t)
	createUserHelper(t, ts, "u1", "alice")
	createThreadHelper(t, ts, "t1", "u1", "hi")

	res := sendJSONRequest(t, http.MethodPost, ts.URL+"/api/threads/like/t1",
		map[string]string{"userId": "u2"}, http.StatusOK)
	liked, _ := res["likedUsers"].([]any)
	if len(liked) != 1 || liked[0] != "u2" {
		t.Fatalf("unexpected likedUsers: %v", res["likedUsers"])
	}

	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/threads/like/t1",
		map[string]string{"userId": "u2"}, http.StatusConflict)
}

func TestUnlikeReplyFlow(t *testing.T) {
	_, _, _, ts := setupTestServer(t)
	createUserHelper(t, ts, "u1", "alice")
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/replies",
		map[string]string{"id": "r1", "userId": "u1", "content": "re", "threadId": "t1"},
		http.StatusOK)

	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/replies/like/r1",
		map[string]string{"userId": "u2"}, http.StatusOK)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/replies/unlike/r1",
		map[string]string{"userId": "u2"}, http.StatusOK)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/replies/unlike/r1",
		map[string]string{"userId": "u2"}, http.StatusConflict)
}

func TestLikeMissingEntity(t *testing.T) {
	_, _, _, ts := setupTestServer(t)

	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/threads/like/ghost",
		map[string]string{"userId": "u1"}, http.StatusNotFound)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/replies/like/ghost",
		map[string]string{"userId": "u1"}, http.StatusNotFound)
}

// thread creation publishes a threadCreated envelope to the broker
func TestThreadCreatePublishesEvent(t *testing.T) {
	_, _, mockKafka, ts := setupTestServer(t)
	createUserHelper(t, ts, "u1", "alice")
	createThreadHelper(t, ts, "t1", "u1", "hello")

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		for _, msg := range mockKafka.Written() {
			if string(msg.Key) != models.EventThreadCreated {
				continue
			}
			var ev models.Event
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				t.Fatalf("bad envelope: %v", err)
			}
			var th models.Thread
			if err := json.Unmarshal(ev.Payload, &th); err != nil || th.ID != "t1" {
				t.Fatalf("bad payload: %v %v", err, th)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected threadCreated event")
}

// a broker outage never fails the write path
func TestThreadCreateSurvivesBrokerOutage(t *testing.T) {
	mockStore := store.NewMock()
	q := notify.NewQueue(&appkafka.MockKafkaFail{}, 16)
	defer q.Close()
	ts := httptest.NewServer(NewServer(mockStore, q).Router())
	defer ts.Close()

	createUserHelper(t, ts, "u1", "alice")
	createThreadHelper(t, ts, "t1", "u1", "still works")
}

func TestListThreadsOrderingParam(t *testing.T) {
	_, mockStore, _, ts := setupTestServer(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		err := mockStore.CreateThread(ctx, models.Thread{
			ID: id, UserID: "u1", Content: "c", CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("CreateThread failed: %v", err)
		}
	}

	var asc []models.Thread
	getJSON(t, ts.URL+"/api/threads/false?order=asc", &asc)
	if len(asc) != 3 || asc[0].ID != "t1" {
		t.Fatalf("unexpected asc order: %v", asc)
	}

	var desc []models.Thread
	getJSON(t, ts.URL+"/api/threads/false", &desc)
	if len(desc) != 3 || desc[0].ID != "t3" {
		t.Fatalf("unexpected default desc order: %v", desc)
	}
}

func TestListThreadsDetailed(t *testing.T) {
	_, _, _, ts := setupTestServer(t)
	createUserHelper(t, ts, "u1", "alice")
	createThreadHelper(t, ts, "t1", "u1", "hello")
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/replies",
		map[string]string{"id": "r1", "userId": "u1", "content": "re", "threadId": "t1"},
		http.StatusOK)

	var details []map[string]any
	getJSON(t, ts.URL+"/api/threads/true", &details)
	if len(details) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(details))
	}
	replies, _ := details[0]["replies"].([]any)
	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %v", details[0]["replies"])
	}
	author, _ := details[0]["user"].(map[string]any)
	if author["username"] != "alice" {
		t.Fatalf("unexpected author snapshot: %v", author)
	}
}

func TestListThreadsRange(t *testing.T) {
	_, mockStore, _, ts := setupTestServer(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"t1", "t2", "t3"} {
		err := mockStore.CreateThread(ctx, models.Thread{
			ID: id, UserID: "u1", Content: "c", CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("CreateThread failed: %v", err)
		}
	}

	from := base.Add(30 * time.Minute).Unix()
	to := base.Add(90 * time.Minute).Unix()
	var threads []models.Thread
	getJSON(t, ts.URL+"/api/threads/range/"+itoa(from)+"/"+itoa(to), &threads)
	if len(threads) != 1 || threads[0].ID != "t2" {
		t.Fatalf("unexpected range result: %v", threads)
	}

	sendJSONRequest(t, http.MethodGet, ts.URL+"/api/threads/range/notanumber/0",
		nil, http.StatusBadRequest)
}

func TestGetUserBasicAndProfile(t *testing.T) {
	_, _, _, ts := setupTestServer(t)
	createUserHelper(t, ts, "u1", "alice")
	createThreadHelper(t, ts, "t1", "u1", "hello")
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/threads/like/t1",
		map[string]string{"userId": "u2"}, http.StatusOK)

	var basic map[string]any
	getJSON(t, ts.URL+"/api/users/basic/u1", &basic)
	if basic["username"] != "alice" || basic["likes"] != nil {
		t.Fatalf("unexpected basic payload: %v", basic)
	}

	var profile map[string]any
	getJSON(t, ts.URL+"/api/users/u1", &profile)
	if profile["likesCount"] != float64(1) {
		t.Fatalf("expected likesCount 1, got %v", profile["likesCount"])
	}
	threads, _ := profile["threads"].([]any)
	if len(threads) != 1 {
		t.Fatalf("expected 1 owned thread, got %v", profile["threads"])
	}

	resp, err := http.Get(ts.URL + "/api/users/ghost")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetRepliesByThread(t *testing.T) {
	_, _, _, ts := setupTestServer(t)
	createUserHelper(t, ts, "u1", "alice")
	for _, id := range []string{"r1", "r2"} {
		sendJSONRequest(t, http.MethodPost, ts.URL+"/api/replies",
			map[string]string{"id": id, "userId": "u1", "content": "re", "threadId": "t1"},
			http.StatusOK)
	}
	sendJSONRequest(t, http.MethodPost, ts.URL+"/api/replies",
		map[string]string{"id": "r3", "userId": "u1", "content": "re", "threadId": "other"},
		http.StatusOK)

	var replies []models.Reply
	getJSON(t, ts.URL+"/api/replies/t1", &replies)
	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(replies))
	}
	for _, r := range replies {
		if r.ThreadID != "t1" {
			t.Fatalf("reply %s does not belong to t1", r.ID)
		}
	}
}

// store failures surface as 500 with a generic message
func TestStoreFailureReturnsInternal(t *testing.T) {
	q := notify.NewQueue(&appkafka.MockKafka{}, 16)
	defer q.Close()
	ts := httptest.NewServer(NewServer(&store.MockStoreFail{}, q).Router())
	defer ts.Close()

	res := sendJSONRequest(t, http.MethodPost, ts.URL+"/api/users",
		map[string]string{"id": "u1", "username": "alice", "userImage": "x"},
		http.StatusInternalServerError)
	if res["message"] != "internal server error" {
		t.Fatalf("unexpected message: %v", res)
	}

	// Read paths map store failures the same way
	res = sendJSONRequest(t, http.MethodGet, ts.URL+"/api/threads/false",
		nil, http.StatusInternalServerError)
	if res["message"] != "internal server error" {
		t.Fatalf("unexpected message on read path: %v", res)
	}
	res = sendJSONRequest(t, http.MethodGet, ts.URL+"/api/users/u1",
		nil, http.StatusInternalServerError)
	if res["message"] != "internal server error" {
		t.Fatalf("unexpected message on profile path: %v", res)
	}
}

//
// --- Small helpers ---
//

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: expected 200, got %d: %s", url, resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
