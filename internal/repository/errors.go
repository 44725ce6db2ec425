package repository

import "errors"

// Per-operation error tags. Callers match with errors.Is; the underlying
// store error is folded into the message.
var (
	ErrCreateUserProfile = errors.New("failed to create user profile")
	ErrFindUserProfile   = errors.New("failed to find user profile")
	ErrUpdateUserProfile = errors.New("failed to update user profile")

	ErrCreateFamily = errors.New("failed to create family")
	ErrFindFamily   = errors.New("failed to find family")

	ErrCreateActivity = errors.New("failed to create activity")
	ErrFindActivity   = errors.New("failed to find activity")
	ErrUpdateActivity = errors.New("failed to update activity")

	ErrCreateSavingsEntry = errors.New("failed to create savings entry")
	ErrFindSavingsEntry   = errors.New("failed to find savings entries")

	// ErrDuplicateRecord marks a unique-index rejection (one profile per
	// external identity, one family per invite code).
	ErrDuplicateRecord = errors.New("record violates a uniqueness rule")

	// ErrNilRecord marks a write that reported success but confirmed no record.
	ErrNilRecord = errors.New("write reported success but returned no record")
)

// nullIfEmpty maps the empty string to SQL NULL for optional reference and
// asset columns.
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
