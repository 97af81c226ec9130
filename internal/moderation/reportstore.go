package moderation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/cheerside/league-chat/internal/apperr"
)

// MaxReasonChars caps report and ban reason length.
const MaxReasonChars = 500

// ReportStore records abuse reports in PostgreSQL. Every report is kept
// for audit even though the first one already sets the message's reported
// flag.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore creates a report store backed by the given database handle.
func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// File records a report and sets the message's reported flag in one
// transaction: either both land or neither does. The reason must be
// non-empty; apperr.ErrNotFound is returned when the message does not exist.
func (s *ReportStore) File(ctx context.Context, messageID, reporterID int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: report reason is empty", apperr.ErrValidation)
	}
	if len([]rune(reason)) > MaxReasonChars {
		return fmt.Errorf("%w: report reason exceeds %d characters", apperr.ErrValidation, MaxReasonChars)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("moderation: begin report: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO message_reports (message_id, reporter_id, reason)
		 VALUES ($1, $2, $3)`,
		messageID, reporterID, reason)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: message %d", apperr.ErrNotFound, messageID)
		}
		return fmt.Errorf("moderation: insert report: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE messages SET reported = TRUE WHERE id = $1`, messageID); err != nil {
		return fmt.Errorf("moderation: mark reported: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("moderation: commit report: %w", err)
	}
	return nil
}

// CountForMessage returns how many reports a message has accumulated.
func (s *ReportStore) CountForMessage(ctx context.Context, messageID int64) (int, error) {
	const query = `SELECT COUNT(*) FROM message_reports WHERE message_id = $1`

	var count int
	if err := s.db.QueryRowContext(ctx, query, messageID).Scan(&count); err != nil {
		return 0, fmt.Errorf("moderation: count reports: %w", err)
	}
	return count, nil
}
