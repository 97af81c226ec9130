package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cheerside/league-chat/internal/apperr"
)

const (
	MaxBodyBytes = 4096 // 4KB max message size
	MaxBodyChars = 500  // max character count
)

// ValidateBody checks that a message body meets content requirements.
// All failures wrap apperr.ErrValidation.
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: message body is empty", apperr.ErrValidation)
	}
	if len(body) > MaxBodyBytes {
		return fmt.Errorf("%w: message exceeds %d byte limit", apperr.ErrValidation, MaxBodyBytes)
	}
	if utf8.RuneCountInString(body) > MaxBodyChars {
		return fmt.Errorf("%w: message exceeds %d character limit", apperr.ErrValidation, MaxBodyChars)
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("%w: message contains invalid UTF-8", apperr.ErrValidation)
	}
	return nil
}
