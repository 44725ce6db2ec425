package models

import "time"

// Family represents a savings group founded by exactly one creator. The
// creator is set at creation time and never changes.
type Family struct {
	ID         string
	InviteCode string
	CreatorID  string // empty only for rows written by an interrupted creation
	CreatedAt  time.Time
}
