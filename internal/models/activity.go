package models

import "time"

// Activity is a savings goal assigned by the family creator to one or more
// member profiles. AssignedTo preserves assignment order.
type Activity struct {
	ID           string
	Title        string
	MoneyGoal    float64
	EndDate      time.Time
	PictureAsset string
	FamilyID     string
	AssignedTo   []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
