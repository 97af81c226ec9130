// Package moderation enforces who may post and applies report/hide/ban
// state transitions. Ban and report records live in PostgreSQL; a Redis
// cache keeps the hot "is this account banned" check off the database.
package moderation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/cheerside/league-chat/internal/apperr"
)

// ChatBan is an account-level posting restriction. An account has at most
// one active ban (released_at null) at a time; releasing sets the
// timestamp rather than deleting the row.
type ChatBan struct {
	ID          int64      `json:"id"`
	AccountID   int64      `json:"account_id"`
	ModeratorID int64      `json:"moderator_id"`
	Reason      string     `json:"reason"`
	CreatedAt   time.Time  `json:"created_at"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
}

// BanStore manages chat bans in PostgreSQL.
type BanStore struct {
	db *sql.DB
}

// NewBanStore creates a ban store backed by the given database handle.
func NewBanStore(db *sql.DB) *BanStore {
	return &BanStore{db: db}
}

// Ban inserts an active ban for the account. It fails with
// apperr.ErrConflict when an active ban already exists; the partial unique
// index on (account_id) WHERE released_at IS NULL makes the check atomic
// under concurrent moderators.
func (s *BanStore) Ban(ctx context.Context, accountID, moderatorID int64, reason string) (*ChatBan, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: ban reason is empty", apperr.ErrValidation)
	}

	const query = `
		INSERT INTO chat_bans (account_id, moderator_id, reason)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	ban := &ChatBan{AccountID: accountID, ModeratorID: moderatorID, Reason: reason}
	err := s.db.QueryRowContext(ctx, query, accountID, moderatorID, reason).
		Scan(&ban.ID, &ban.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: account %d already banned", apperr.ErrConflict, accountID)
		}
		return nil, fmt.Errorf("moderation: insert ban: %w", err)
	}
	return ban, nil
}

// Release ends the account's active ban by setting its released timestamp.
// It fails with apperr.ErrConflict when no active ban exists.
func (s *BanStore) Release(ctx context.Context, accountID int64) error {
	const query = `
		UPDATE chat_bans SET released_at = NOW()
		WHERE account_id = $1 AND released_at IS NULL`

	res, err := s.db.ExecContext(ctx, query, accountID)
	if err != nil {
		return fmt.Errorf("moderation: release ban: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("moderation: release result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: account %d has no active ban", apperr.ErrConflict, accountID)
	}
	return nil
}

// IsBanned reports whether the account currently has an active ban.
func (s *BanStore) IsBanned(ctx context.Context, accountID int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM chat_bans
			WHERE account_id = $1 AND released_at IS NULL
		)`

	var banned bool
	if err := s.db.QueryRowContext(ctx, query, accountID).Scan(&banned); err != nil {
		return false, fmt.Errorf("moderation: ban lookup: %w", err)
	}
	return banned, nil
}

// ListActive returns all active bans, newest first.
func (s *BanStore) ListActive(ctx context.Context) ([]ChatBan, error) {
	const query = `
		SELECT id, account_id, moderator_id, reason, created_at
		FROM chat_bans
		WHERE released_at IS NULL
		ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("moderation: list bans: %w", err)
	}
	defer rows.Close()

	bans := []ChatBan{}
	for rows.Next() {
		var b ChatBan
		if err := rows.Scan(&b.ID, &b.AccountID, &b.ModeratorID, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("moderation: scan ban: %w", err)
		}
		bans = append(bans, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("moderation: ban rows: %w", err)
	}
	return bans, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// isForeignKeyViolation reports whether err is a PostgreSQL foreign key
// violation (SQLSTATE 23503).
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
