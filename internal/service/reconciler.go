package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"savequest/internal/credentials"
	"savequest/internal/identity"
	"savequest/internal/keychain"
	"savequest/internal/models"
)

// Role-conflict rejections. These are business-rule outcomes, not transport
// failures: the sign-in succeeded but the identity may not act in the
// requested role.
var (
	ErrInvalidInviteCode   = &RejectionError{Reason: "invalid invite code"}
	ErrAlreadyCreator      = &RejectionError{Reason: "already a creator, cannot join as member"}
	ErrMemberOfOtherFamily = &RejectionError{Reason: "already a member of a different family"}
	ErrAlreadyMember       = &RejectionError{Reason: "already a member, cannot create a family"}
)

// RejectionError is a role-exclusivity rejection with a human-readable reason.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// ProfileStore is the slice of the record store the reconciler needs for
// user profiles.
type ProfileStore interface {
	Create(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error)
	FindByAppleUserID(ctx context.Context, appleUserID string) (*models.UserProfile, error)
	Update(ctx context.Context, profile *models.UserProfile) error
}

// FamilyStore is the slice of the record store the reconciler needs for
// families.
type FamilyStore interface {
	Create(ctx context.Context, family *models.Family) (*models.Family, error)
	FindByID(ctx context.Context, id string) (*models.Family, error)
	FindByInviteCode(ctx context.Context, code string) (*models.Family, error)
	FindByCreator(ctx context.Context, profileID string) (*models.Family, error)
}

// SessionReconciler reconciles a freshly authenticated or previously stored
// identity against the record store and decides whether it may act as family
// creator, family member, or neither.
//
// One restore or resolve flow runs at a time; the caller must not invoke them
// concurrently on the same reconciler. Individual record reads elsewhere in
// the app need no such coordination.
type SessionReconciler struct {
	profiles ProfileStore
	families FamilyStore
	provider identity.Provider
	store    keychain.Store
	checker  identity.CredentialChecker

	// delay before the single keychain write retry
	retryDelay time.Duration

	subsMu sync.Mutex
	subs   []chan models.Session
}

// NewSessionReconciler creates a reconciler. checker decides whether a stored
// identity is trusted at restore time; identity.OptimisticChecker{} preserves
// the default trust-the-cache behavior.
func NewSessionReconciler(
	profiles ProfileStore,
	families FamilyStore,
	provider identity.Provider,
	store keychain.Store,
	checker identity.CredentialChecker,
	retryDelay time.Duration,
) *SessionReconciler {
	return &SessionReconciler{
		profiles:   profiles,
		families:   families,
		provider:   provider,
		store:      store,
		checker:    checker,
		retryDelay: retryDelay,
	}
}

// Subscribe returns a channel that receives every session state transition.
// Slow subscribers miss transitions rather than blocking the reconciler.
func (r *SessionReconciler) Subscribe() <-chan models.Session {
	ch := make(chan models.Session, 8)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()
	return ch
}

func (r *SessionReconciler) publish(session models.Session) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- session:
		default:
		}
	}
}

// Restore silently rebuilds the previous session at launch, without
// re-prompting authentication.
//
// A nil error with an unauthenticated session means "nothing to restore" —
// clean installs and deleted accounts land here and must not see an error.
// A non-nil error means the remote store could not be consulted; the session
// is still unauthenticated, but the failure should be surfaced.
func (r *SessionReconciler) Restore(ctx context.Context) (models.Session, error) {
	appleUserID, ok := r.store.Load()
	if !ok {
		// No stored identity: straight to onboarding, no network call
		return r.transition(models.Session{State: models.StateUnauthenticated}), nil
	}

	r.publish(models.Session{State: models.StateRestoring})

	if err := r.checker.Check(ctx, appleUserID); err != nil {
		slog.Info("stored identity no longer valid, discarding", "error", err)
		r.store.Delete()
		return r.transition(models.Session{State: models.StateUnauthenticated}), nil
	}

	profile, err := r.profiles.FindByAppleUserID(ctx, appleUserID)
	if err != nil {
		return r.transition(models.Session{State: models.StateUnauthenticated}),
			fmt.Errorf("failed to restore session: %w", err)
	}
	if profile == nil {
		// Identity is cached locally but unknown remotely. Not an error:
		// proceed silently to onboarding.
		return r.transition(models.Session{State: models.StateUnauthenticated}), nil
	}

	if profile.IsMember() {
		family, err := r.families.FindByID(ctx, profile.FamilyID)
		if err != nil {
			return r.transition(models.Session{State: models.StateUnauthenticated}),
				fmt.Errorf("failed to restore session: %w", err)
		}
		if family != nil {
			return r.authenticate(models.RoleMember, profile, family), nil
		}
		// Dangling family reference: treat as nothing to restore
		return r.transition(models.Session{State: models.StateUnauthenticated}), nil
	}

	family, err := r.families.FindByCreator(ctx, profile.ID)
	if err != nil {
		return r.transition(models.Session{State: models.StateUnauthenticated}),
			fmt.Errorf("failed to restore session: %w", err)
	}
	if family != nil {
		return r.authenticate(models.RoleCreator, profile, family), nil
	}

	// Profile exists but is linked to no family in either direction
	return r.transition(models.Session{State: models.StateUnauthenticated}), nil
}

// Resolve runs a fresh sign-in and links the identity into the requested
// flow. inviteCode is required for FlowJoinFamily and ignored otherwise.
//
// Outcomes: an authenticated session with nil error; a rejected session with
// a *RejectionError; or a failed session with the underlying auth or
// transport error.
func (r *SessionReconciler) Resolve(ctx context.Context, flow models.Flow, inviteCode string) (models.Session, error) {
	r.publish(models.Session{State: models.StateResolving})

	// Resolve the invite code before the expensive interactive sign-in
	var target *models.Family
	if flow == models.FlowJoinFamily {
		var err error
		target, err = r.families.FindByInviteCode(ctx, inviteCode)
		if err != nil {
			return r.transition(models.Session{State: models.StateFailed}), err
		}
		if target == nil {
			return r.transition(models.Session{State: models.StateRejected}), ErrInvalidInviteCode
		}
	}

	ident, err := r.provider.SignIn(ctx)
	if err != nil {
		return r.transition(models.Session{State: models.StateFailed}), err
	}

	profile, err := r.profiles.FindByAppleUserID(ctx, ident.UserID)
	if err != nil {
		return r.transition(models.Session{State: models.StateFailed}), err
	}

	var (
		role   models.Role
		family *models.Family
	)

	switch {
	case profile == nil:
		profile, family, role, err = r.enroll(ctx, flow, ident, target)
	default:
		family, role, err = r.link(ctx, flow, profile, target)
	}
	if err != nil {
		var rejection *RejectionError
		if errors.As(err, &rejection) {
			return r.transition(models.Session{State: models.StateRejected}), err
		}
		return r.transition(models.Session{State: models.StateFailed}), err
	}

	r.persistIdentity(ident.UserID)

	return r.authenticate(role, profile, family), nil
}

// enroll creates records for an identity never seen before.
func (r *SessionReconciler) enroll(ctx context.Context, flow models.Flow, ident *identity.Identity, target *models.Family) (*models.UserProfile, *models.Family, models.Role, error) {
	name := ident.FullName
	if name == "" {
		name = "Unknown User"
	}

	newProfile := &models.UserProfile{
		Name:        name,
		Email:       ident.Email,
		AppleUserID: ident.UserID,
	}

	switch flow {
	case models.FlowJoinFamily:
		// Single write: the profile is created already pointing at the family
		newProfile.FamilyID = target.ID
		profile, err := r.profiles.Create(ctx, newProfile)
		if err != nil {
			return nil, nil, "", err
		}
		return profile, target, models.RoleMember, nil

	default: // FlowCreateFamily
		// Two sequential writes. If the family write fails the profile is
		// left orphaned; the next resolve for this identity repairs it.
		profile, err := r.profiles.Create(ctx, newProfile)
		if err != nil {
			return nil, nil, "", err
		}
		family, err := r.foundFamily(ctx, profile)
		if err != nil {
			return nil, nil, "", err
		}
		return profile, family, models.RoleCreator, nil
	}
}

// link enforces role exclusivity for an identity that already has a profile.
func (r *SessionReconciler) link(ctx context.Context, flow models.Flow, profile *models.UserProfile, target *models.Family) (*models.Family, models.Role, error) {
	owned, err := r.families.FindByCreator(ctx, profile.ID)
	if err != nil {
		return nil, "", err
	}

	switch {
	case owned != nil:
		if flow == models.FlowCreateFamily {
			// Idempotent re-entry: log in as the existing creator
			return owned, models.RoleCreator, nil
		}
		return nil, "", ErrAlreadyCreator

	case profile.IsMember():
		if flow == models.FlowJoinFamily {
			if profile.FamilyID == target.ID {
				// Idempotent re-entry: already a member of this family
				return target, models.RoleMember, nil
			}
			return nil, "", ErrMemberOfOtherFamily
		}
		return nil, "", ErrAlreadyMember

	default:
		// Orphaned profile from an interrupted enrollment: repair it in the
		// direction of the flow being attempted instead of locking the
		// account out.
		return r.repair(ctx, flow, profile, target)
	}
}

// repair completes an interrupted enrollment for a profile that is neither a
// creator nor a member.
func (r *SessionReconciler) repair(ctx context.Context, flow models.Flow, profile *models.UserProfile, target *models.Family) (*models.Family, models.Role, error) {
	slog.Info("repairing orphaned profile", "profile", profile.ID, "flow", flow)

	if flow == models.FlowJoinFamily {
		profile.FamilyID = target.ID
		if err := r.profiles.Update(ctx, profile); err != nil {
			return nil, "", err
		}
		return target, models.RoleMember, nil
	}

	family, err := r.foundFamily(ctx, profile)
	if err != nil {
		return nil, "", err
	}
	return family, models.RoleCreator, nil
}

// foundFamily creates a family with profile as its permanent creator.
func (r *SessionReconciler) foundFamily(ctx context.Context, profile *models.UserProfile) (*models.Family, error) {
	code, err := credentials.GenerateInviteCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invite code: %w", err)
	}

	return r.families.Create(ctx, &models.Family{
		InviteCode: code,
		CreatorID:  profile.ID,
	})
}

// persistIdentity writes the stable identity into the keychain, verifying the
// write and retrying once after a short delay. The store has no error
// channel, so a persistent failure is logged and tolerated: the worst case is
// one extra sign-in on the next launch.
func (r *SessionReconciler) persistIdentity(appleUserID string) {
	r.store.Save(appleUserID)
	if got, ok := r.store.Load(); ok && got == appleUserID {
		return
	}

	time.Sleep(r.retryDelay)
	r.store.Save(appleUserID)
	if got, ok := r.store.Load(); !ok || got != appleUserID {
		slog.Warn("keychain read-back mismatch after retry; session will not survive relaunch")
	}
}

func (r *SessionReconciler) authenticate(role models.Role, profile *models.UserProfile, family *models.Family) models.Session {
	return r.transition(models.Session{
		State:   models.StateAuthenticated,
		Role:    role,
		Profile: profile,
		Family:  family,
	})
}

func (r *SessionReconciler) transition(session models.Session) models.Session {
	r.publish(session)
	return session
}
