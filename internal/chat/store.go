package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/cheerside/league-chat/internal/apperr"
	"github.com/cheerside/league-chat/internal/identity"
)

// BanChecker reports whether an account currently has an active chat ban.
// It is implemented by the moderation package; the store only needs the
// answer at posting time.
type BanChecker interface {
	IsBanned(ctx context.Context, accountID int64) (bool, error)
}

// Store manages messages and likes in PostgreSQL.
type Store struct {
	db   *sql.DB
	bans BanChecker
}

// NewStore creates a message store backed by the given database handle.
// bans may be nil, in which case no ban check is performed (tests only).
func NewStore(db *sql.DB, bans BanChecker) *Store {
	return &Store{db: db, bans: bans}
}

// Append validates and inserts a message, snapshotting the author's
// nickname and team. It fails with apperr.ErrValidation for bad bodies,
// apperr.ErrProfileIncomplete when the author has no nickname, and
// apperr.ErrForbidden when the author holds an active ban.
func (s *Store) Append(ctx context.Context, roomID int64, author identity.Identity, body string) (*Message, error) {
	if err := ValidateBody(body); err != nil {
		return nil, err
	}
	if author.Nickname == "" {
		return nil, fmt.Errorf("%w: account %d has no nickname", apperr.ErrProfileIncomplete, author.AccountID)
	}
	if s.bans != nil {
		banned, err := s.bans.IsBanned(ctx, author.AccountID)
		if err != nil {
			return nil, fmt.Errorf("chat: ban check: %w", err)
		}
		if banned {
			return nil, fmt.Errorf("%w: account %d is banned from chat", apperr.ErrForbidden, author.AccountID)
		}
	}

	const query = `
		INSERT INTO messages (room_id, author_id, author_name, author_team, body)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	msg := &Message{
		RoomID:     roomID,
		AuthorID:   author.AccountID,
		AuthorName: author.Nickname,
		AuthorTeam: author.Team,
		Body:       body,
		LikedBy:    []int64{},
	}
	err := s.db.QueryRowContext(ctx, query,
		roomID, author.AccountID, author.Nickname, author.Team, body,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("chat: insert message: %w", err)
	}
	return msg, nil
}

// ToggleLike flips the (message, account) membership in the like set and
// returns the aggregate state computed in the same transaction. The toggle
// is keyed on the unique pair, so concurrent toggles by different accounts
// commute and never lose an update.
func (s *Store) ToggleLike(ctx context.Context, messageID, accountID int64) (*LikeState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chat: begin toggle: %w", err)
	}
	defer tx.Rollback()

	var roomID int64
	err = tx.QueryRowContext(ctx,
		`SELECT room_id FROM messages WHERE id = $1`, messageID,
	).Scan(&roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %d", apperr.ErrNotFound, messageID)
	}
	if err != nil {
		return nil, fmt.Errorf("chat: toggle lookup: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM message_likes WHERE message_id = $1 AND account_id = $2`,
		messageID, accountID)
	if err != nil {
		return nil, fmt.Errorf("chat: toggle delete: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("chat: toggle delete result: %w", err)
	}

	if deleted == 0 {
		// A concurrent toggle by the same account can commit the pair
		// between our delete and this insert. A raised 23505 would abort
		// the whole transaction, so the conflict is absorbed in-statement.
		_, err = tx.ExecContext(ctx,
			`INSERT INTO message_likes (message_id, account_id) VALUES ($1, $2)
			 ON CONFLICT (message_id, account_id) DO NOTHING`,
			messageID, accountID)
		if err != nil {
			return nil, fmt.Errorf("chat: toggle insert: %w", err)
		}
	}

	state := &LikeState{MessageID: messageID, RoomID: roomID, LikedBy: []int64{}}
	rows, err := tx.QueryContext(ctx,
		`SELECT account_id FROM message_likes WHERE message_id = $1 ORDER BY created_at, account_id`,
		messageID)
	if err != nil {
		return nil, fmt.Errorf("chat: toggle read set: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("chat: toggle scan: %w", err)
		}
		state.LikedBy = append(state.LikedBy, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: toggle rows: %w", err)
	}
	state.LikeCount = len(state.LikedBy)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("chat: commit toggle: %w", err)
	}
	return state, nil
}

const messageColumns = `
	m.id, m.room_id, m.author_id, m.author_name, m.author_team,
	m.body, m.hidden, m.reported, m.created_at,
	COALESCE(array_agg(l.account_id ORDER BY l.created_at, l.account_id)
	         FILTER (WHERE l.account_id IS NOT NULL), '{}')`

// ListPage returns one page of a room's messages, newest first. Page 1 is
// the most recent pageSize messages. Callers infer continuation from
// len(result) == pageSize and reverse for chronological display.
func (s *Store) ListPage(ctx context.Context, roomID int64, page, pageSize int) ([]Message, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("%w: page size must be positive", apperr.ErrValidation)
	}
	offset := (page - 1) * pageSize

	query := `
		SELECT` + messageColumns + `
		FROM messages m
		LEFT JOIN message_likes l ON l.message_id = m.id
		WHERE m.room_id = $1
		GROUP BY m.id
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $2 OFFSET $3`

	rows, err := s.db.QueryContext(ctx, query, roomID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("chat: list page: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0, pageSize)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("chat: list rows: %w", err)
	}
	return messages, nil
}

// GetMessage returns a single message with its like set, or
// apperr.ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, messageID int64) (*Message, error) {
	query := `
		SELECT` + messageColumns + `
		FROM messages m
		LEFT JOIN message_likes l ON l.message_id = m.id
		WHERE m.id = $1
		GROUP BY m.id`

	msg, err := scanMessage(s.db.QueryRowContext(ctx, query, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %d", apperr.ErrNotFound, messageID)
	}
	return msg, err
}

// MarkReported sets the message's reported flag. The transition is one-way;
// repeated calls are no-ops. Returns the owning room id.
func (s *Store) MarkReported(ctx context.Context, messageID int64) (int64, error) {
	return s.markFlag(ctx, messageID, "reported")
}

// MarkHidden sets the message's hidden flag. The transition is one-way;
// readers see the placeholder body from then on. Returns the owning room id.
func (s *Store) MarkHidden(ctx context.Context, messageID int64) (int64, error) {
	return s.markFlag(ctx, messageID, "hidden")
}

func (s *Store) markFlag(ctx context.Context, messageID int64, column string) (int64, error) {
	// column is one of the two fixed callers above, never user input.
	query := `UPDATE messages SET ` + column + ` = TRUE WHERE id = $1 RETURNING room_id`

	var roomID int64
	err := s.db.QueryRowContext(ctx, query, messageID).Scan(&roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: message %d", apperr.ErrNotFound, messageID)
	}
	if err != nil {
		return 0, fmt.Errorf("chat: mark %s: %w", column, err)
	}
	return roomID, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanMessage reads one message row and applies the hidden-body placeholder.
func scanMessage(row scanner) (*Message, error) {
	var (
		msg     Message
		likedBy pq.Int64Array
	)
	err := row.Scan(
		&msg.ID, &msg.RoomID, &msg.AuthorID, &msg.AuthorName, &msg.AuthorTeam,
		&msg.Body, &msg.Hidden, &msg.Reported, &msg.CreatedAt, &likedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("chat: scan message: %w", err)
	}

	msg.LikedBy = []int64(likedBy)
	if msg.LikedBy == nil {
		msg.LikedBy = []int64{}
	}
	msg.LikeCount = len(msg.LikedBy)
	if msg.Hidden {
		msg.Body = HiddenPlaceholder
	}
	return &msg, nil
}
