// Package httpapi exposes the REST surface of the chat engine: message
// history and posting, like toggling, reporting, and the moderator
// endpoints. WebSocket push is delivery-only; every mutation enters
// through this package.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cheerside/league-chat/internal/apperr"
	"github.com/cheerside/league-chat/internal/chat"
	"github.com/cheerside/league-chat/internal/identity"
	"github.com/cheerside/league-chat/internal/metrics"
	"github.com/cheerside/league-chat/internal/moderation"
	"github.com/cheerside/league-chat/internal/protocol"
	"github.com/cheerside/league-chat/internal/ratelimit"
)

// DefaultPageSize is the fixed page size for message history.
const DefaultPageSize = 30

// MessageStore is the subset of the chat store the API uses.
type MessageStore interface {
	Append(ctx context.Context, roomID int64, author identity.Identity, body string) (*chat.Message, error)
	ToggleLike(ctx context.Context, messageID, accountID int64) (*chat.LikeState, error)
	ListPage(ctx context.Context, roomID int64, page, pageSize int) ([]chat.Message, error)
}

// ModerationGate is the subset of the moderation gate the API uses.
type ModerationGate interface {
	Report(ctx context.Context, messageID, reporterID int64, reason string) error
	Hide(ctx context.Context, messageID int64) error
	Ban(ctx context.Context, accountID, moderatorID int64, reason string) (*moderation.ChatBan, error)
	ReleaseBan(ctx context.Context, accountID int64) error
	ListActiveBans(ctx context.Context) ([]moderation.ChatBan, error)
}

// RateLimiter throttles per-account actions. Implemented by the Redis
// limiter; a nil limiter disables throttling.
type RateLimiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Publisher pushes an event to a room's current members. Satisfied by the
// broadcast dispatcher.
type Publisher interface {
	Publish(roomID int64, data []byte) error
}

// Handler serves the REST API. Mount it under /api/ on the main listener.
type Handler struct {
	store     MessageStore
	gate      ModerationGate
	limiter   RateLimiter       // may be nil
	publisher Publisher         // may be nil
	resolver  identity.Resolver // may be nil, all requests anonymous
	mux       *http.ServeMux
}

// NewHandler wires the API routes.
func NewHandler(store MessageStore, gate ModerationGate, limiter RateLimiter, publisher Publisher, resolver identity.Resolver) *Handler {
	h := &Handler{
		store:     store,
		gate:      gate,
		limiter:   limiter,
		publisher: publisher,
		resolver:  resolver,
		mux:       http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /api/rooms/{id}/messages", h.handleListMessages)
	h.mux.HandleFunc("POST /api/rooms/{id}/messages", h.handlePostMessage)
	h.mux.HandleFunc("POST /api/messages/{id}/like", h.handleToggleLike)
	h.mux.HandleFunc("POST /api/messages/{id}/report", h.handleReport)
	h.mux.HandleFunc("POST /api/moderation/messages/{id}/hide", h.handleHide)
	h.mux.HandleFunc("POST /api/moderation/bans", h.handleBan)
	h.mux.HandleFunc("DELETE /api/moderation/bans/{accountID}", h.handleReleaseBan)
	h.mux.HandleFunc("GET /api/moderation/bans", h.handleListBans)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// identify resolves the bearer credential on the request. Returns nil for
// absent or invalid credentials; HTTP reads are open to spectators.
func (h *Handler) identify(r *http.Request) *identity.Identity {
	if h.resolver == nil {
		return nil
	}
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return nil
	}
	ident, err := h.resolver.Resolve(r.Context(), strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		log.Printf("httpapi: credential resolution error: %v", err)
		return nil
	}
	return ident
}

// requireMember resolves the caller's identity or writes a 401.
func (h *Handler) requireMember(w http.ResponseWriter, r *http.Request) *identity.Identity {
	ident := h.identify(r)
	if ident == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "a valid member credential is required")
		return nil
	}
	return ident
}

// requireModerator resolves the caller and checks the moderator flag.
func (h *Handler) requireModerator(w http.ResponseWriter, r *http.Request) *identity.Identity {
	ident := h.requireMember(w, r)
	if ident == nil {
		return nil
	}
	if !ident.Moderator {
		writeError(w, http.StatusForbidden, "forbidden", "moderator privileges required")
		return nil
	}
	return ident
}

// allow applies the rate limit rule for the account. Writes a 429 and
// returns false when the account is over its limit.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, rule ratelimit.Rule, accountID int64) bool {
	if h.limiter == nil {
		return true
	}
	ok, _ := h.limiter.Allow(r.Context(), strconv.FormatInt(accountID, 10), rule)
	if !ok {
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
		return false
	}
	return ok
}

// publish sends a server event to a room, logging delivery failures. The
// mutation has already committed; push is best effort.
func (h *Handler) publish(roomID int64, msgType string, payload interface{}) {
	if h.publisher == nil {
		return
	}
	data, err := protocol.NewServerMessage(msgType, payload)
	if err != nil {
		log.Printf("httpapi: build %s event: %v", msgType, err)
		return
	}
	if err := h.publisher.Publish(roomID, data); err != nil {
		log.Printf("httpapi: publish %s to room=%d: %v", msgType, roomID, err)
	}
}

// GET /api/rooms/{id}/messages?page=N
//
// Returns one newest-first page. Open to anonymous spectators.
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
			return
		}
		page = n
	}

	messages, err := h.store.ListPage(r.Context(), roomID, page, DefaultPageSize)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Members get their own liked flag resolved; anonymous readers see false.
	if ident := h.identify(r); ident != nil {
		for i := range messages {
			messages[i].MarkLikedFor(ident.AccountID)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
		"page":     page,
		"has_more": len(messages) == DefaultPageSize,
	})
}

// POST /api/rooms/{id}/messages
//
// Body: {"body": "..."}. Member only.
func (h *Handler) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	roomID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ident := h.requireMember(w, r)
	if ident == nil {
		return
	}
	if !h.allow(w, r, ratelimit.RulePost, ident.AccountID) {
		metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	msg, err := h.store.Append(r.Context(), roomID, *ident, req.Body)
	if err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		writeStoreError(w, err)
		return
	}

	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	metrics.PostLatency.Observe(time.Since(started).Seconds())

	h.publish(roomID, protocol.TypeNewMessage, protocol.NewMessageMsg{Message: *msg})
	writeJSON(w, http.StatusCreated, msg)
}

// POST /api/messages/{id}/like
//
// Toggles the caller's like and returns the full post-toggle state.
func (h *Handler) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	messageID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ident := h.requireMember(w, r)
	if ident == nil {
		return
	}
	if !h.allow(w, r, ratelimit.RuleLike, ident.AccountID) {
		return
	}

	state, err := h.store.ToggleLike(r.Context(), messageID, ident.AccountID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	metrics.LikeTogglesTotal.Inc()

	h.publish(state.RoomID, protocol.TypeLikeStateChanged, protocol.LikeStateChangedMsg{
		MessageID: state.MessageID,
		LikeCount: state.LikeCount,
		LikedBy:   state.LikedBy,
	})
	writeJSON(w, http.StatusOK, state)
}

// POST /api/messages/{id}/report
//
// Body: {"reason": "..."}. The message stays visible until a moderator acts.
func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	messageID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	ident := h.requireMember(w, r)
	if ident == nil {
		return
	}
	if !h.allow(w, r, ratelimit.RuleReport, ident.AccountID) {
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}

	if err := h.gate.Report(r.Context(), messageID, ident.AccountID, req.Reason); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reported"})
}

// POST /api/moderation/messages/{id}/hide
func (h *Handler) handleHide(w http.ResponseWriter, r *http.Request) {
	messageID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if h.requireModerator(w, r) == nil {
		return
	}

	if err := h.gate.Hide(r.Context(), messageID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "hidden"})
}

// POST /api/moderation/bans
//
// Body: {"account_id": N, "reason": "..."}.
func (h *Handler) handleBan(w http.ResponseWriter, r *http.Request) {
	ident := h.requireModerator(w, r)
	if ident == nil {
		return
	}

	var req struct {
		AccountID int64  `json:"account_id"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return
	}
	if req.AccountID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_account", "account_id must be positive")
		return
	}

	ban, err := h.gate.Ban(r.Context(), req.AccountID, ident.AccountID, req.Reason)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ban)
}

// DELETE /api/moderation/bans/{accountID}
func (h *Handler) handleReleaseBan(w http.ResponseWriter, r *http.Request) {
	accountID, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	if h.requireModerator(w, r) == nil {
		return
	}

	if err := h.gate.ReleaseBan(r.Context(), accountID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

// GET /api/moderation/bans
func (h *Handler) handleListBans(w http.ResponseWriter, r *http.Request) {
	if h.requireModerator(w, r) == nil {
		return
	}

	bans, err := h.gate.ListActiveBans(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bans": bans})
}

// pathID parses a positive int64 path segment or writes a 400.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "path id must be a positive integer")
		return 0, false
	}
	return id, true
}

// writeStoreError maps domain errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, apperr.ErrProfileIncomplete):
		writeError(w, http.StatusUnprocessableEntity, "profile_incomplete", "set a nickname before posting")
	case errors.Is(err, apperr.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "this account is banned from chat")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		log.Printf("httpapi: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "error": message})
}
