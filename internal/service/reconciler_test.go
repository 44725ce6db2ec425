package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"savequest/internal/identity"
	"savequest/internal/keychain"
	"savequest/internal/models"
)

// fakeProfileStore is an in-memory ProfileStore that counts calls and can be
// made to fail per method.
type fakeProfileStore struct {
	profiles map[string]*models.UserProfile // keyed by ID
	nextID   int

	createErr error
	findErr   error
	updateErr error

	createCalls int
	findCalls   int
	updateCalls int
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: map[string]*models.UserProfile{}}
}

func (s *fakeProfileStore) Create(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error) {
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextID++
	stored := *profile
	stored.ID = fmt.Sprintf("profile-%d", s.nextID)
	s.profiles[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

func (s *fakeProfileStore) FindByAppleUserID(ctx context.Context, appleUserID string) (*models.UserProfile, error) {
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, p := range s.profiles {
		if p.AppleUserID == appleUserID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeProfileStore) Update(ctx context.Context, profile *models.UserProfile) error {
	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	stored := *profile
	s.profiles[stored.ID] = &stored
	return nil
}

func (s *fakeProfileStore) add(profile *models.UserProfile) {
	s.profiles[profile.ID] = profile
}

// fakeFamilyStore mirrors fakeProfileStore for families.
type fakeFamilyStore struct {
	families map[string]*models.Family
	nextID   int

	createErr error
	findErr   error

	createCalls int
	findCalls   int
}

func newFakeFamilyStore() *fakeFamilyStore {
	return &fakeFamilyStore{families: map[string]*models.Family{}}
}

func (s *fakeFamilyStore) Create(ctx context.Context, family *models.Family) (*models.Family, error) {
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextID++
	stored := *family
	stored.ID = fmt.Sprintf("family-%d", s.nextID)
	s.families[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

func (s *fakeFamilyStore) FindByID(ctx context.Context, id string) (*models.Family, error) {
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	if f, ok := s.families[id]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeFamilyStore) FindByInviteCode(ctx context.Context, code string) (*models.Family, error) {
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, f := range s.families {
		if f.InviteCode == code {
			copied := *f
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeFamilyStore) FindByCreator(ctx context.Context, profileID string) (*models.Family, error) {
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, f := range s.families {
		if f.CreatorID == profileID {
			copied := *f
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeFamilyStore) add(family *models.Family) {
	s.families[family.ID] = family
}

// fakeProvider returns a canned identity or error and counts sign-ins.
type fakeProvider struct {
	identity *identity.Identity
	err      error
	calls    int
}

func (p *fakeProvider) SignIn(ctx context.Context) (*identity.Identity, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	copied := *p.identity
	return &copied, nil
}

// flakyStore drops the first n Save calls, then behaves like a MemoryStore.
type flakyStore struct {
	inner     *keychain.MemoryStore
	dropSaves int
	saveCalls int
}

func (s *flakyStore) Save(id string) {
	s.saveCalls++
	if s.saveCalls <= s.dropSaves {
		return
	}
	s.inner.Save(id)
}

func (s *flakyStore) Load() (string, bool) { return s.inner.Load() }
func (s *flakyStore) Delete()              { s.inner.Delete() }

func newTestReconciler(profiles *fakeProfileStore, families *fakeFamilyStore, provider *fakeProvider, store keychain.Store) *SessionReconciler {
	return NewSessionReconciler(profiles, families, provider, store, identity.OptimisticChecker{}, time.Millisecond)
}

func TestRestoreNoStoredIdentity(t *testing.T) {
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	provider := &fakeProvider{}
	r := newTestReconciler(profiles, families, provider, keychain.NewMemoryStore())

	session, err := r.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v, want nil", err)
	}
	if session.State != models.StateUnauthenticated {
		t.Errorf("Restore() state = %v, want %v", session.State, models.StateUnauthenticated)
	}
	if profiles.findCalls != 0 || families.findCalls != 0 {
		t.Errorf("Restore() consulted the record store with nothing to restore: %d profile, %d family lookups",
			profiles.findCalls, families.findCalls)
	}
	if provider.calls != 0 {
		t.Errorf("Restore() triggered %d sign-ins, want 0", provider.calls)
	}
}

func TestRestoreMember(t *testing.T) {
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	families.add(&models.Family{ID: "family-1", InviteCode: "ABC-123", CreatorID: "profile-9"})
	profiles.add(&models.UserProfile{ID: "profile-1", Name: "Kid", AppleUserID: "apple-kid", FamilyID: "family-1"})

	store := keychain.NewMemoryStore()
	store.Save("apple-kid")
	provider := &fakeProvider{}
	r := newTestReconciler(profiles, families, provider, store)

	session, err := r.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v, want nil", err)
	}
	if session.State != models.StateAuthenticated {
		t.Fatalf("Restore() state = %v, want %v", session.State, models.StateAuthenticated)
	}
	if session.Role != models.RoleMember {
		t.Errorf("Restore() role = %v, want %v", session.Role, models.RoleMember)
	}
	if session.Family == nil || session.Family.ID != "family-1" {
		t.Errorf("Restore() family = %+v, want family-1", session.Family)
	}
	if provider.calls != 0 {
		t.Errorf("Restore() triggered %d sign-ins, want 0", provider.calls)
	}
}

func TestRestoreCreator(t *testing.T) {
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	profiles.add(&models.UserProfile{ID: "profile-1", Name: "Parent", AppleUserID: "apple-parent"})
	families.add(&models.Family{ID: "family-1", InviteCode: "XYZ-789", CreatorID: "profile-1"})

	store := keychain.NewMemoryStore()
	store.Save("apple-parent")
	r := newTestReconciler(profiles, families, &fakeProvider{}, store)

	session, err := r.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v, want nil", err)
	}
	if session.Role != models.RoleCreator {
		t.Errorf("Restore() role = %v, want %v", session.Role, models.RoleCreator)
	}
	if session.Family == nil || session.Family.ID != "family-1" {
		t.Errorf("Restore() family = %+v, want family-1", session.Family)
	}
}

func TestRestoreUnknownIdentityIsSilent(t *testing.T) {
	// Stored identity with no matching remote profile: deleted account or
	// fresh store. Must land unauthenticated without an error.
	store := keychain.NewMemoryStore()
	store.Save("apple-ghost")
	r := newTestReconciler(newFakeProfileStore(), newFakeFamilyStore(), &fakeProvider{}, store)

	session, err := r.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v, want nil", err)
	}
	if session.State != models.StateUnauthenticated {
		t.Errorf("Restore() state = %v, want %v", session.State, models.StateUnauthenticated)
	}
}

func TestRestoreTransportErrorSurfaces(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.findErr = errors.New("network unreachable")

	store := keychain.NewMemoryStore()
	store.Save("apple-parent")
	r := newTestReconciler(profiles, newFakeFamilyStore(), &fakeProvider{}, store)

	session, err := r.Restore(context.Background())
	if err == nil {
		t.Fatal("Restore() error = nil, want transport error")
	}
	if session.State != models.StateUnauthenticated {
		t.Errorf("Restore() state = %v, want %v", session.State, models.StateUnauthenticated)
	}
}

func TestRestoreDanglingFamilyReference(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.add(&models.UserProfile{ID: "profile-1", AppleUserID: "apple-kid", FamilyID: "family-gone"})

	store := keychain.NewMemoryStore()
	store.Save("apple-kid")
	r := newTestReconciler(profiles, newFakeFamilyStore(), &fakeProvider{}, store)

	session, err := r.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v, want nil", err)
	}
	if session.State != models.StateUnauthenticated {
		t.Errorf("Restore() state = %v, want %v", session.State, models.StateUnauthenticated)
	}
}

func TestRestoreRejectedChecker(t *testing.T) {
	profiles := newFakeProfileStore()
	profiles.add(&models.UserProfile{ID: "profile-1", AppleUserID: "apple-parent"})

	store := keychain.NewMemoryStore()
	store.Save("apple-parent")

	checker := identity.CheckerFunc(func(ctx context.Context, userID string) error {
		return identity.NewAuthError(identity.AuthCredentialsRevoked, nil)
	})
	r := NewSessionReconciler(profiles, newFakeFamilyStore(), &fakeProvider{}, store, checker, time.Millisecond)

	session, err := r.Restore(context.Background())
	if err != nil {
		t.Fatalf("Restore() error = %v, want nil", err)
	}
	if session.State != models.StateUnauthenticated {
		t.Errorf("Restore() state = %v, want %v", session.State, models.StateUnauthenticated)
	}
	if _, ok := store.Load(); ok {
		t.Error("Restore() left a revoked identity in the keychain")
	}
	if profiles.findCalls != 0 {
		t.Errorf("Restore() consulted the record store after the checker rejected: %d lookups", profiles.findCalls)
	}
}

func TestResolveCreateFamilyNewIdentity(t *testing.T) {
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-parent", Email: "p@example.com", FullName: "Pat"}}
	store := keychain.NewMemoryStore()
	r := newTestReconciler(profiles, families, provider, store)

	session, err := r.Resolve(context.Background(), models.FlowCreateFamily, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want nil", err)
	}
	if session.State != models.StateAuthenticated || session.Role != models.RoleCreator {
		t.Fatalf("Resolve() = %v/%v, want authenticated creator", session.State, session.Role)
	}
	if session.Family == nil || session.Family.CreatorID != session.Profile.ID {
		t.Errorf("Resolve() family %+v does not point back at profile %+v", session.Family, session.Profile)
	}
	if session.Family.InviteCode == "" {
		t.Error("Resolve() created a family without an invite code")
	}
	if got, ok := store.Load(); !ok || got != "apple-parent" {
		t.Errorf("Resolve() stored identity = %q, %v; want apple-parent", got, ok)
	}
}

func TestResolveCreateFamilyIdempotent(t *testing.T) {
	// Signing in twice with the create flow must land in the same family,
	// not found a second one.
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-parent", FullName: "Pat"}}
	r := newTestReconciler(profiles, families, provider, keychain.NewMemoryStore())

	first, err := r.Resolve(context.Background(), models.FlowCreateFamily, "")
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	second, err := r.Resolve(context.Background(), models.FlowCreateFamily, "")
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if second.Family.ID != first.Family.ID {
		t.Errorf("second Resolve() family = %s, want %s", second.Family.ID, first.Family.ID)
	}
	if families.createCalls != 1 {
		t.Errorf("family Create called %d times, want 1", families.createCalls)
	}
	if profiles.createCalls != 1 {
		t.Errorf("profile Create called %d times, want 1", profiles.createCalls)
	}
}

func TestResolveJoinFamily(t *testing.T) {
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	families.add(&models.Family{ID: "family-1", InviteCode: "ABC-123", CreatorID: "profile-9"})
	provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-kid", FullName: "Sam"}}
	r := newTestReconciler(profiles, families, provider, keychain.NewMemoryStore())

	session, err := r.Resolve(context.Background(), models.FlowJoinFamily, "ABC-123")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want nil", err)
	}
	if session.Role != models.RoleMember {
		t.Errorf("Resolve() role = %v, want %v", session.Role, models.RoleMember)
	}
	if session.Profile.FamilyID != "family-1" {
		t.Errorf("Resolve() profile.FamilyID = %q, want family-1", session.Profile.FamilyID)
	}
	if profiles.createCalls != 1 || profiles.updateCalls != 0 {
		t.Errorf("join enrollment: %d creates + %d updates, want single create", profiles.createCalls, profiles.updateCalls)
	}
}

func TestResolveInvalidInviteCode(t *testing.T) {
	// The code is checked before the interactive sign-in runs.
	provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-kid"}}
	r := newTestReconciler(newFakeProfileStore(), newFakeFamilyStore(), provider, keychain.NewMemoryStore())

	session, err := r.Resolve(context.Background(), models.FlowJoinFamily, "NOP-000")
	if !errors.Is(err, ErrInvalidInviteCode) {
		t.Fatalf("Resolve() error = %v, want ErrInvalidInviteCode", err)
	}
	if session.State != models.StateRejected {
		t.Errorf("Resolve() state = %v, want %v", session.State, models.StateRejected)
	}
	if provider.calls != 0 {
		t.Errorf("Resolve() triggered %d sign-ins before rejecting the code, want 0", provider.calls)
	}
}

func TestResolveSignInFailure(t *testing.T) {
	provider := &fakeProvider{err: identity.NewAuthError(identity.AuthCancelled, nil)}
	r := newTestReconciler(newFakeProfileStore(), newFakeFamilyStore(), provider, keychain.NewMemoryStore())

	session, err := r.Resolve(context.Background(), models.FlowCreateFamily, "")
	if err == nil {
		t.Fatal("Resolve() error = nil, want auth error")
	}
	if identity.CodeOf(err) != identity.AuthCancelled {
		t.Errorf("Resolve() error code = %v, want %v", identity.CodeOf(err), identity.AuthCancelled)
	}
	if session.State != models.StateFailed {
		t.Errorf("Resolve() state = %v, want %v", session.State, models.StateFailed)
	}
}

func TestResolveRoleExclusivity(t *testing.T) {
	tests := []struct {
		name    string
		flow    models.Flow
		code    string
		wantErr *RejectionError
	}{
		{
			name:    "creator cannot join as member",
			flow:    models.FlowJoinFamily,
			code:    "OTH-456",
			wantErr: ErrAlreadyCreator,
		},
		{
			name:    "member cannot create a family",
			flow:    models.FlowCreateFamily,
			wantErr: ErrAlreadyMember,
		},
		{
			name:    "member cannot join a second family",
			flow:    models.FlowJoinFamily,
			code:    "OTH-456",
			wantErr: ErrMemberOfOtherFamily,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles := newFakeProfileStore()
			families := newFakeFamilyStore()
			families.add(&models.Family{ID: "family-other", InviteCode: "OTH-456", CreatorID: "profile-9"})

			switch tt.wantErr {
			case ErrAlreadyCreator:
				profiles.add(&models.UserProfile{ID: "profile-1", AppleUserID: "apple-u"})
				families.add(&models.Family{ID: "family-owned", InviteCode: "OWN-111", CreatorID: "profile-1"})
			default:
				profiles.add(&models.UserProfile{ID: "profile-1", AppleUserID: "apple-u", FamilyID: "family-home"})
			}

			provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-u"}}
			r := newTestReconciler(profiles, families, provider, keychain.NewMemoryStore())

			session, err := r.Resolve(context.Background(), tt.flow, tt.code)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
			if session.State != models.StateRejected {
				t.Errorf("Resolve() state = %v, want %v", session.State, models.StateRejected)
			}
		})
	}
}

func TestResolveIdempotentMemberReentry(t *testing.T) {
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	families.add(&models.Family{ID: "family-1", InviteCode: "ABC-123", CreatorID: "profile-9"})
	profiles.add(&models.UserProfile{ID: "profile-1", AppleUserID: "apple-kid", FamilyID: "family-1"})

	provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-kid"}}
	r := newTestReconciler(profiles, families, provider, keychain.NewMemoryStore())

	session, err := r.Resolve(context.Background(), models.FlowJoinFamily, "ABC-123")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want nil", err)
	}
	if session.Role != models.RoleMember || session.Family.ID != "family-1" {
		t.Errorf("Resolve() = %v in %v, want member of family-1", session.Role, session.Family.ID)
	}
	if profiles.createCalls != 0 || profiles.updateCalls != 0 {
		t.Error("re-entry wrote records for an identity already linked")
	}
}

func TestResolveRepairsOrphanedProfile(t *testing.T) {
	// A profile with no family in either direction is the residue of an
	// interrupted enrollment. The next resolve completes it.
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	profiles.add(&models.UserProfile{ID: "profile-1", Name: "Pat", AppleUserID: "apple-parent"})

	provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-parent"}}
	r := newTestReconciler(profiles, families, provider, keychain.NewMemoryStore())

	session, err := r.Resolve(context.Background(), models.FlowCreateFamily, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want nil", err)
	}
	if session.Role != models.RoleCreator {
		t.Errorf("Resolve() role = %v, want %v", session.Role, models.RoleCreator)
	}
	if session.Family.CreatorID != "profile-1" {
		t.Errorf("repaired family creator = %s, want profile-1", session.Family.CreatorID)
	}
	if profiles.createCalls != 0 {
		t.Errorf("repair created %d new profiles, want 0", profiles.createCalls)
	}
}

func TestResolveRepairsOrphanedProfileIntoJoin(t *testing.T) {
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	families.add(&models.Family{ID: "family-1", InviteCode: "ABC-123", CreatorID: "profile-9"})
	profiles.add(&models.UserProfile{ID: "profile-1", Name: "Sam", AppleUserID: "apple-kid"})

	provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-kid"}}
	r := newTestReconciler(profiles, families, provider, keychain.NewMemoryStore())

	session, err := r.Resolve(context.Background(), models.FlowJoinFamily, "ABC-123")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want nil", err)
	}
	if session.Role != models.RoleMember {
		t.Errorf("Resolve() role = %v, want %v", session.Role, models.RoleMember)
	}
	if profiles.updateCalls != 1 {
		t.Errorf("repair updated the profile %d times, want 1", profiles.updateCalls)
	}
	if got := profiles.profiles["profile-1"].FamilyID; got != "family-1" {
		t.Errorf("repaired profile FamilyID = %q, want family-1", got)
	}
}

func TestResolveDefaultsEmptyName(t *testing.T) {
	// Apple omits name and email on every sign-in after the first.
	profiles := newFakeProfileStore()
	provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-parent"}}
	r := newTestReconciler(profiles, newFakeFamilyStore(), provider, keychain.NewMemoryStore())

	session, err := r.Resolve(context.Background(), models.FlowCreateFamily, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want nil", err)
	}
	if session.Profile.Name != "Unknown User" {
		t.Errorf("Resolve() profile name = %q, want Unknown User", session.Profile.Name)
	}
}

func TestPersistIdentityRetriesOnce(t *testing.T) {
	store := &flakyStore{inner: keychain.NewMemoryStore(), dropSaves: 1}
	r := newTestReconciler(newFakeProfileStore(), newFakeFamilyStore(), &fakeProvider{}, store)

	r.persistIdentity("apple-parent")

	if store.saveCalls != 2 {
		t.Errorf("persistIdentity() saved %d times, want 2", store.saveCalls)
	}
	if got, ok := store.Load(); !ok || got != "apple-parent" {
		t.Errorf("persistIdentity() stored %q, %v; want apple-parent", got, ok)
	}
}

func TestSubscribeSeesTransitions(t *testing.T) {
	profiles := newFakeProfileStore()
	families := newFakeFamilyStore()
	provider := &fakeProvider{identity: &identity.Identity{UserID: "apple-parent", FullName: "Pat"}}
	r := newTestReconciler(profiles, families, provider, keychain.NewMemoryStore())

	ch := r.Subscribe()

	if _, err := r.Resolve(context.Background(), models.FlowCreateFamily, ""); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	var states []models.SessionState
	for len(ch) > 0 {
		states = append(states, (<-ch).State)
	}
	want := []models.SessionState{models.StateResolving, models.StateAuthenticated}
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, states[i], want[i])
		}
	}
}
