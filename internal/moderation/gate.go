package moderation

import (
	"context"
	"fmt"
	"log"

	"github.com/cheerside/league-chat/internal/chat"
	"github.com/cheerside/league-chat/internal/protocol"
)

// Publisher delivers an event to a room's current members. Satisfied by
// the broadcast dispatcher.
type Publisher interface {
	Publish(roomID int64, data []byte) error
}

// Gate applies moderation state transitions: recording reports, hiding
// messages, and managing chat bans. Flag transitions are one-way; a
// moderator hide is pushed to the owning room immediately so connected
// clients swap in the placeholder body without a page reload.
type Gate struct {
	messages  *chat.Store
	bans      *BanStore
	reports   *ReportStore
	cache     *BanCache // may be nil
	publisher Publisher // may be nil (tests)
}

// NewGate wires the moderation gate.
func NewGate(messages *chat.Store, bans *BanStore, reports *ReportStore, cache *BanCache, publisher Publisher) *Gate {
	return &Gate{
		messages:  messages,
		bans:      bans,
		reports:   reports,
		cache:     cache,
		publisher: publisher,
	}
}

// Report records an abuse report and sets the message's reported flag in
// one transaction. Repeated reports all succeed and all set the same flag;
// each is kept for audit. The message stays visible until a moderator
// hides it.
func (g *Gate) Report(ctx context.Context, messageID, reporterID int64, reason string) error {
	if err := g.reports.File(ctx, messageID, reporterID, reason); err != nil {
		return err
	}
	log.Printf("moderation: message=%d reported by account=%d", messageID, reporterID)
	return nil
}

// Hide marks the message hidden and publishes a message_updated event to
// the owning room so already-connected clients see the placeholder
// immediately. A publish failure does not undo the hide.
func (g *Gate) Hide(ctx context.Context, messageID int64) error {
	roomID, err := g.messages.MarkHidden(ctx, messageID)
	if err != nil {
		return err
	}
	log.Printf("moderation: message=%d hidden (room=%d)", messageID, roomID)

	if g.publisher == nil {
		return nil
	}
	msg, err := g.messages.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("moderation: reload hidden message: %w", err)
	}
	data, err := protocol.NewServerMessage(protocol.TypeMessageUpdated, protocol.MessageUpdatedMsg{Message: *msg})
	if err != nil {
		return fmt.Errorf("moderation: build message_updated: %w", err)
	}
	if err := g.publisher.Publish(roomID, data); err != nil {
		log.Printf("moderation: publish message_updated for message=%d: %v", messageID, err)
	}
	return nil
}

// Ban places an active ban on the account. Fails with apperr.ErrConflict
// when one already exists. A banned account can still connect and read;
// only posting is refused.
func (g *Gate) Ban(ctx context.Context, accountID, moderatorID int64, reason string) (*ChatBan, error) {
	ban, err := g.bans.Ban(ctx, accountID, moderatorID, reason)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.Set(ctx, accountID, reason)
	}
	log.Printf("moderation: account=%d banned by moderator=%d", accountID, moderatorID)
	return ban, nil
}

// ReleaseBan ends the account's active ban. Fails with apperr.ErrConflict
// when none exists.
func (g *Gate) ReleaseBan(ctx context.Context, accountID int64) error {
	if err := g.bans.Release(ctx, accountID); err != nil {
		return err
	}
	if g.cache != nil {
		g.cache.Clear(ctx, accountID)
	}
	log.Printf("moderation: account=%d ban released", accountID)
	return nil
}

// ListActiveBans returns all active bans for the moderation UI.
func (g *Gate) ListActiveBans(ctx context.Context) ([]ChatBan, error) {
	return g.bans.ListActive(ctx)
}
