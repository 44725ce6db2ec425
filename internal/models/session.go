package models

// SessionState is the lifecycle state of the on-device session.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateRestoring       SessionState = "restoring"
	StateResolving       SessionState = "resolving"
	StateAuthenticated   SessionState = "authenticated"
	StateRejected        SessionState = "rejected"
	StateFailed          SessionState = "failed"
)

// Role distinguishes the two mutually exclusive ways an identity can be
// attached to a family.
type Role string

const (
	RoleCreator Role = "creator"
	RoleMember  Role = "member"
)

// Flow is the user-chosen path into a family.
type Flow string

const (
	FlowCreateFamily Flow = "create_family"
	FlowJoinFamily   Flow = "join_family"
)

// Session is an explicit snapshot of the authenticated state. It is returned
// by the reconciler and published to subscribers; nothing mutates it in place.
type Session struct {
	State   SessionState
	Role    Role
	Profile *UserProfile
	Family  *Family
}

// Authenticated reports whether the session holds a signed-in identity.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated
}
