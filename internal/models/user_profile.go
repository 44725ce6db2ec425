package models

import "time"

// UserProfile represents one person in the system, keyed to the platform
// identity provider by AppleUserID. A profile belongs to at most one family:
// either as its creator (FamilyID empty, a Family row points back at the
// profile) or as a member (FamilyID set).
type UserProfile struct {
	ID           string
	Name         string
	Email        string
	AppleUserID  string
	FamilyID     string // empty when the profile is not a member of any family
	PictureAsset string // empty when no profile picture has been set
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsMember reports whether the profile is linked to a family as a member.
func (p *UserProfile) IsMember() bool {
	return p.FamilyID != ""
}
