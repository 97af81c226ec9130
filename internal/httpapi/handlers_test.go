package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cheerside/league-chat/internal/apperr"
	"github.com/cheerside/league-chat/internal/chat"
	"github.com/cheerside/league-chat/internal/identity"
	"github.com/cheerside/league-chat/internal/moderation"
	"github.com/cheerside/league-chat/internal/ratelimit"
)

// fakeStore is an in-memory MessageStore for handler tests.
type fakeStore struct {
	messages map[int64]*chat.Message
	likes    map[int64]map[int64]bool // message -> account -> liked
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[int64]*chat.Message),
		likes:    make(map[int64]map[int64]bool),
		nextID:   1,
	}
}

func (s *fakeStore) Append(_ context.Context, roomID int64, author identity.Identity, body string) (*chat.Message, error) {
	if err := chat.ValidateBody(body); err != nil {
		return nil, err
	}
	if author.Nickname == "" {
		return nil, apperr.ErrProfileIncomplete
	}
	msg := &chat.Message{
		ID:         s.nextID,
		RoomID:     roomID,
		AuthorID:   author.AccountID,
		AuthorName: author.Nickname,
		AuthorTeam: author.Team,
		Body:       body,
		CreatedAt:  time.Now(),
		LikedBy:    []int64{},
	}
	s.nextID++
	s.messages[msg.ID] = msg
	return msg, nil
}

func (s *fakeStore) ToggleLike(_ context.Context, messageID, accountID int64) (*chat.LikeState, error) {
	msg, ok := s.messages[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: message %d", apperr.ErrNotFound, messageID)
	}
	if s.likes[messageID] == nil {
		s.likes[messageID] = make(map[int64]bool)
	}
	if s.likes[messageID][accountID] {
		delete(s.likes[messageID], accountID)
	} else {
		s.likes[messageID][accountID] = true
	}
	state := &chat.LikeState{MessageID: messageID, RoomID: msg.RoomID, LikedBy: []int64{}}
	for id := range s.likes[messageID] {
		state.LikedBy = append(state.LikedBy, id)
	}
	state.LikeCount = len(state.LikedBy)
	return state, nil
}

func (s *fakeStore) ListPage(_ context.Context, roomID int64, page, pageSize int) ([]chat.Message, error) {
	var all []chat.Message
	for id := s.nextID - 1; id >= 1; id-- {
		if m, ok := s.messages[id]; ok && m.RoomID == roomID {
			cp := *m
			cp.LikedBy = []int64{}
			for acct := range s.likes[id] {
				cp.LikedBy = append(cp.LikedBy, acct)
			}
			cp.LikeCount = len(cp.LikedBy)
			all = append(all, cp)
		}
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []chat.Message{}, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

// fakeGate records moderation calls.
type fakeGate struct {
	reported map[int64][]string
	hidden   map[int64]bool
	bans     map[int64]*moderation.ChatBan
}

func newFakeGate() *fakeGate {
	return &fakeGate{
		reported: make(map[int64][]string),
		hidden:   make(map[int64]bool),
		bans:     make(map[int64]*moderation.ChatBan),
	}
}

func (g *fakeGate) Report(_ context.Context, messageID, _ int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.ErrValidation
	}
	g.reported[messageID] = append(g.reported[messageID], reason)
	return nil
}

func (g *fakeGate) Hide(_ context.Context, messageID int64) error {
	g.hidden[messageID] = true
	return nil
}

func (g *fakeGate) Ban(_ context.Context, accountID, moderatorID int64, reason string) (*moderation.ChatBan, error) {
	if reason == "" {
		return nil, apperr.ErrValidation
	}
	if _, ok := g.bans[accountID]; ok {
		return nil, apperr.ErrConflict
	}
	ban := &moderation.ChatBan{ID: accountID, AccountID: accountID, ModeratorID: moderatorID, Reason: reason}
	g.bans[accountID] = ban
	return ban, nil
}

func (g *fakeGate) ReleaseBan(_ context.Context, accountID int64) error {
	if _, ok := g.bans[accountID]; !ok {
		return apperr.ErrConflict
	}
	delete(g.bans, accountID)
	return nil
}

func (g *fakeGate) ListActiveBans(_ context.Context) ([]moderation.ChatBan, error) {
	out := make([]moderation.ChatBan, 0, len(g.bans))
	for _, b := range g.bans {
		out = append(out, *b)
	}
	return out, nil
}

// denyLimiter refuses every request.
type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, ratelimit.Rule) (bool, error) {
	return false, nil
}

// recordPublisher collects published room events.
type recordPublisher struct {
	events map[int64][][]byte
}

func (p *recordPublisher) Publish(roomID int64, data []byte) error {
	if p.events == nil {
		p.events = make(map[int64][][]byte)
	}
	p.events[roomID] = append(p.events[roomID], data)
	return nil
}

var testResolver = identity.StaticResolver{
	"fan-token": {AccountID: 7, Nickname: "Fox", Team: "Hawks"},
	"mod-token": {AccountID: 1, Nickname: "Ref", Moderator: true},
	"new-token": {AccountID: 9},
}

func newTestHandler(limiter RateLimiter) (*Handler, *fakeStore, *fakeGate, *recordPublisher) {
	store := newFakeStore()
	gate := newFakeGate()
	pub := &recordPublisher{}
	h := NewHandler(store, gate, limiter, pub, testResolver)
	return h, store, gate, pub
}

func doRequest(h *Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPostMessage(t *testing.T) {
	h, _, _, pub := newTestHandler(nil)

	rec := doRequest(h, "POST", "/api/rooms/42/messages", "fan-token", `{"body":"Go team!"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var msg chat.Message
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("response not a message: %v", err)
	}
	if msg.RoomID != 42 || msg.AuthorName != "Fox" || msg.Body != "Go team!" {
		t.Errorf("unexpected message: %+v", msg)
	}

	// A new_message event went to the room.
	events := pub.events[42]
	if len(events) != 1 {
		t.Fatalf("published events = %d, want 1", len(events))
	}
	var event struct {
		Type string `json:"type"`
	}
	json.Unmarshal(events[0], &event)
	if event.Type != "new_message" {
		t.Errorf("event type = %q", event.Type)
	}
}

func TestPostMessage_Rejections(t *testing.T) {
	h, _, _, _ := newTestHandler(nil)

	tests := []struct {
		name   string
		token  string
		body   string
		status int
	}{
		{"anonymous", "", `{"body":"hi"}`, http.StatusUnauthorized},
		{"bad token", "nope", `{"body":"hi"}`, http.StatusUnauthorized},
		{"empty body", "fan-token", `{"body":"  "}`, http.StatusBadRequest},
		{"no nickname", "new-token", `{"body":"hi"}`, http.StatusUnprocessableEntity},
		{"broken json", "fan-token", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h, "POST", "/api/rooms/42/messages", tt.token, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body)
			}
		})
	}
}

func TestPostMessage_RateLimited(t *testing.T) {
	h, _, _, _ := newTestHandler(denyLimiter{})

	rec := doRequest(h, "POST", "/api/rooms/42/messages", "fan-token", `{"body":"hi"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestListMessages(t *testing.T) {
	h, store, _, _ := newTestHandler(nil)
	author := identity.Identity{AccountID: 7, Nickname: "Fox"}
	for i := 0; i < 3; i++ {
		store.Append(context.Background(), 42, author, fmt.Sprintf("msg %d", i))
	}

	// Anonymous spectators can read.
	rec := doRequest(h, "GET", "/api/rooms/42/messages", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Messages []chat.Message `json:"messages"`
		Page     int            `json:"page"`
		HasMore  bool           `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Messages) != 3 || resp.Page != 1 || resp.HasMore {
		t.Errorf("resp = %+v", resp)
	}
	// Newest first.
	if resp.Messages[0].Body != "msg 2" {
		t.Errorf("first message = %q, want newest", resp.Messages[0].Body)
	}

	rec = doRequest(h, "GET", "/api/rooms/42/messages?page=0", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("page=0 status = %d, want 400", rec.Code)
	}
}

func TestListMessages_LikedFlagPerRequester(t *testing.T) {
	h, store, _, _ := newTestHandler(nil)
	author := identity.Identity{AccountID: 7, Nickname: "Fox"}
	msg, _ := store.Append(context.Background(), 42, author, "like me")
	store.ToggleLike(context.Background(), msg.ID, 7)

	var resp struct {
		Messages []chat.Message `json:"messages"`
	}

	// The liker sees their own flag set.
	rec := doRequest(h, "GET", "/api/rooms/42/messages", "fan-token", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Messages[0].Liked {
		t.Error("liker should see liked=true")
	}

	// A different member and an anonymous spectator both see false.
	rec = doRequest(h, "GET", "/api/rooms/42/messages", "new-token", "")
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Messages[0].Liked {
		t.Error("non-liker should see liked=false")
	}
	rec = doRequest(h, "GET", "/api/rooms/42/messages", "", "")
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Messages[0].Liked {
		t.Error("anonymous reader should see liked=false")
	}
}

func TestToggleLike(t *testing.T) {
	h, store, _, pub := newTestHandler(nil)
	author := identity.Identity{AccountID: 7, Nickname: "Fox"}
	msg, _ := store.Append(context.Background(), 42, author, "like me")

	path := fmt.Sprintf("/api/messages/%d/like", msg.ID)

	rec := doRequest(h, "POST", path, "fan-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var state chat.LikeState
	json.Unmarshal(rec.Body.Bytes(), &state)
	if state.LikeCount != 1 {
		t.Errorf("first toggle: count = %d, want 1", state.LikeCount)
	}

	// Second toggle removes the like.
	rec = doRequest(h, "POST", path, "fan-token", "")
	json.Unmarshal(rec.Body.Bytes(), &state)
	if state.LikeCount != 0 {
		t.Errorf("second toggle: count = %d, want 0", state.LikeCount)
	}

	// Both toggles were pushed to the room.
	if len(pub.events[42]) != 2 {
		t.Errorf("published events = %d, want 2", len(pub.events[42]))
	}

	rec = doRequest(h, "POST", "/api/messages/9999/like", "fan-token", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown message status = %d, want 404", rec.Code)
	}
	rec = doRequest(h, "POST", path, "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous like status = %d, want 401", rec.Code)
	}
}

func TestReport(t *testing.T) {
	h, store, gate, _ := newTestHandler(nil)
	author := identity.Identity{AccountID: 7, Nickname: "Fox"}
	msg, _ := store.Append(context.Background(), 42, author, "sus")

	path := fmt.Sprintf("/api/messages/%d/report", msg.ID)

	rec := doRequest(h, "POST", path, "fan-token", `{"reason":"spam"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if got := gate.reported[msg.ID]; len(got) != 1 || got[0] != "spam" {
		t.Errorf("gate recorded %v", got)
	}

	rec = doRequest(h, "POST", path, "fan-token", `{"reason":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank reason status = %d, want 400", rec.Code)
	}
}

func TestModerationEndpoints_RequireModerator(t *testing.T) {
	h, _, _, _ := newTestHandler(nil)

	paths := []struct {
		method, path string
	}{
		{"POST", "/api/moderation/messages/1/hide"},
		{"POST", "/api/moderation/bans"},
		{"DELETE", "/api/moderation/bans/7"},
		{"GET", "/api/moderation/bans"},
	}
	for _, p := range paths {
		rec := doRequest(h, p.method, p.path, "fan-token", `{"account_id":7,"reason":"x"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s as member: status = %d, want 403", p.method, p.path, rec.Code)
		}
		rec = doRequest(h, p.method, p.path, "", `{}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s anonymous: status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestBanLifecycleOverHTTP(t *testing.T) {
	h, _, _, _ := newTestHandler(nil)

	rec := doRequest(h, "POST", "/api/moderation/bans", "mod-token", `{"account_id":66,"reason":"abuse"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ban status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = doRequest(h, "POST", "/api/moderation/bans", "mod-token", `{"account_id":66,"reason":"again"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("double ban status = %d, want 409", rec.Code)
	}

	rec = doRequest(h, "GET", "/api/moderation/bans", "mod-token", "")
	var resp struct {
		Bans []moderation.ChatBan `json:"bans"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Bans) != 1 || resp.Bans[0].AccountID != 66 {
		t.Errorf("bans = %+v", resp.Bans)
	}

	rec = doRequest(h, "DELETE", "/api/moderation/bans/66", "mod-token", "")
	if rec.Code != http.StatusOK {
		t.Errorf("release status = %d", rec.Code)
	}
	rec = doRequest(h, "DELETE", "/api/moderation/bans/66", "mod-token", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("double release status = %d, want 409", rec.Code)
	}
}

func TestHide(t *testing.T) {
	h, store, gate, _ := newTestHandler(nil)
	author := identity.Identity{AccountID: 7, Nickname: "Fox"}
	msg, _ := store.Append(context.Background(), 42, author, "gone soon")

	rec := doRequest(h, "POST", fmt.Sprintf("/api/moderation/messages/%d/hide", msg.ID), "mod-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if !gate.hidden[msg.ID] {
		t.Error("gate did not record the hide")
	}
}

func TestPathIDValidation(t *testing.T) {
	h, _, _, _ := newTestHandler(nil)

	for _, path := range []string{
		"/api/rooms/abc/messages",
		"/api/rooms/-1/messages",
		"/api/rooms/0/messages",
	} {
		rec := doRequest(h, "GET", path, "", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", path, rec.Code)
		}
	}
}
