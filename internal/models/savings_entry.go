package models

import "time"

// SavingsEntry records a single contribution toward an activity. Entries are
// immutable once created and are never deleted.
type SavingsEntry struct {
	ID          string
	AmountSaved float64
	DateLogged  time.Time
	Notes       string
	ActivityID  string
	ProfileID   string
	CreatedAt   time.Time
}
