// Package apperr defines the error taxonomy shared by the chat, moderation,
// and HTTP layers. Callers classify failures with errors.Is against the
// sentinel values; packages add context with fmt.Errorf("...: %w", ...).
package apperr

import "errors"

var (
	// ErrValidation marks input rejected before touching persistence
	// (empty message body, empty report reason, oversized text).
	ErrValidation = errors.New("validation failed")

	// ErrForbidden marks an action the caller is not allowed to perform
	// (banned account posting, non-moderator calling moderator endpoints).
	ErrForbidden = errors.New("forbidden")

	// ErrProfileIncomplete marks an authenticated account without a
	// nickname attempting to post.
	ErrProfileIncomplete = errors.New("profile incomplete")

	// ErrNotFound marks operations against a nonexistent message.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks state-transition conflicts (banning an already
	// banned account, releasing an account with no active ban).
	ErrConflict = errors.New("conflict")
)
