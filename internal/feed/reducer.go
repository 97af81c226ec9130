// Package feed holds the client-side view of a room's messages. It
// reconciles paginated history loads with live push events: page 1
// replaces the list, older pages prepend, live appends de-duplicate by
// message id, and updates patch in place without reordering. Switching
// rooms discards everything — no cross-room bleed.
package feed

import (
	"sync"

	"github.com/cheerside/league-chat/internal/chat"
)

// State is the reducer's position in the load cycle for one room.
type State int

const (
	StateIdle        State = iota // no room data loaded
	StateLoading                  // first page in flight
	StateReady                    // list usable, no load in flight
	StateLoadingMore              // an older page in flight
)

// LoadToken identifies an in-flight page load. Results carrying a stale
// token (older generation, wrong page) are dropped, which covers the race
// between a room switch and a response for the previous room.
type LoadToken struct {
	Page int
	gen  uint64
}

// ScrollAnchor captures the viewport before older messages are prepended
// so the consumer can restore the user's visual position afterwards.
type ScrollAnchor struct {
	Height float64 // content height before the prepend
	Offset float64 // scroll offset before the prepend
}

// Reducer is the ordered, de-duplicated message list for the currently
// subscribed room. It is safe for concurrent use by the load path and the
// push-event path.
type Reducer struct {
	mu       sync.Mutex
	pageSize int

	state    State
	roomID   int64
	gen      uint64
	pending  LoadToken
	lastPage int
	hasMore  bool
	messages []chat.Message

	anchor    ScrollAnchor
	hasAnchor bool
}

// NewReducer creates an idle reducer with the given fixed page size.
func NewReducer(pageSize int) *Reducer {
	if pageSize < 1 {
		pageSize = 1
	}
	return &Reducer{pageSize: pageSize, hasMore: true}
}

// SwitchRoom subscribes the reducer to a room, discarding all loaded
// messages and returning to Idle. Switching to the current room is a
// no-op unless the reducer is still Idle.
func (r *Reducer) SwitchRoom(roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.roomID == roomID && r.state != StateIdle {
		return
	}
	r.roomID = roomID
	r.state = StateIdle
	r.gen++
	r.lastPage = 0
	r.hasMore = true
	r.messages = nil
	r.hasAnchor = false
}

// BeginLoad starts a page load when one is possible: page 1 from Idle, or
// the next older page from Ready while hasMore. It returns the token the
// consumer must hand back to LoadSucceeded/LoadFailed, and false when no
// load should be started (one already in flight, or pagination finished).
func (r *Reducer) BeginLoad() (LoadToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateIdle:
		r.state = StateLoading
		r.pending = LoadToken{Page: 1, gen: r.gen}
		return r.pending, true
	case StateReady:
		if !r.hasMore {
			return LoadToken{}, false
		}
		r.state = StateLoadingMore
		r.pending = LoadToken{Page: r.lastPage + 1, gen: r.gen}
		return r.pending, true
	default:
		return LoadToken{}, false
	}
}

// LoadSucceeded applies a fetched page. newestFirst is the page exactly as
// the history endpoint returns it; the reducer reverses it into
// chronological order. Page 1 replaces the list; older pages prepend ahead
// of it. hasMore turns false once a page comes back short. Stale results
// are ignored.
func (r *Reducer) LoadSucceeded(token LoadToken, newestFirst []chat.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.tokenCurrentLocked(token) {
		return
	}

	chrono := make([]chat.Message, len(newestFirst))
	for i, m := range newestFirst {
		chrono[len(newestFirst)-1-i] = m
	}

	if token.Page == 1 {
		r.messages = chrono
	} else {
		r.messages = append(chrono, r.messages...)
	}
	r.lastPage = token.Page
	r.hasMore = len(newestFirst) == r.pageSize
	r.state = StateReady
}

// LoadFailed abandons the in-flight load, returning to the state the
// reducer was in before BeginLoad. Stale failures are ignored.
func (r *Reducer) LoadFailed(token LoadToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.tokenCurrentLocked(token) {
		return
	}
	if token.Page == 1 {
		r.state = StateIdle
	} else {
		r.state = StateReady
	}
}

func (r *Reducer) tokenCurrentLocked(token LoadToken) bool {
	if token.gen != r.gen || token != r.pending {
		return false
	}
	return r.state == StateLoading || r.state == StateLoadingMore
}

// Append adds a live-pushed message to the end of the list. It is a no-op
// when the message belongs to another room or its id is already present
// (the page-load/broadcast race). Returns whether the list changed.
func (r *Reducer) Append(msg chat.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.RoomID != r.roomID || r.state == StateIdle {
		return false
	}
	for i := range r.messages {
		if r.messages[i].ID == msg.ID {
			return false
		}
	}
	r.messages = append(r.messages, msg)
	return true
}

// ApplyLikeState patches a message's like aggregate in place. List length
// and order never change. Returns whether a message matched.
func (r *Reducer) ApplyLikeState(messageID int64, likeCount int, likedBy []int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.messages {
		if r.messages[i].ID == messageID {
			r.messages[i].LikeCount = likeCount
			r.messages[i].LikedBy = likedBy
			return true
		}
	}
	return false
}

// ApplyUpdate replaces the body and moderation flags of the matching
// message in place, preserving its position. Used for message_updated
// pushes (hides). Returns whether a message matched.
func (r *Reducer) ApplyUpdate(msg chat.Message) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.messages {
		if r.messages[i].ID == msg.ID {
			r.messages[i].Body = msg.Body
			r.messages[i].Hidden = msg.Hidden
			r.messages[i].Reported = msg.Reported
			r.messages[i].LikeCount = msg.LikeCount
			r.messages[i].LikedBy = msg.LikedBy
			return true
		}
	}
	return false
}

// SetScrollAnchor records the viewport before a prepend of older messages.
func (r *Reducer) SetScrollAnchor(anchor ScrollAnchor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anchor = anchor
	r.hasAnchor = true
}

// RestoreScrollOffset consumes the recorded anchor and returns the offset
// that keeps the user's visual position after the content height changed:
// the old offset plus the height delta. The second return is false when no
// anchor was recorded.
func (r *Reducer) RestoreScrollOffset(newHeight float64) (float64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.hasAnchor {
		return 0, false
	}
	r.hasAnchor = false
	return r.anchor.Offset + (newHeight - r.anchor.Height), true
}

// Messages returns a snapshot of the list in chronological order.
func (r *Reducer) Messages() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]chat.Message(nil), r.messages...)
}

// State returns the reducer's current state.
func (r *Reducer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// HasMore reports whether older pages may remain.
func (r *Reducer) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasMore
}

// RoomID returns the currently subscribed room.
func (r *Reducer) RoomID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}
