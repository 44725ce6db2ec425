package service

import (
	"context"
	"errors"
	"fmt"

	"savequest/internal/models"
	"savequest/internal/repository"
)

var ErrFamilyNotFound = errors.New("family not found")

// FamilyService handles family roster and invitation logic
type FamilyService struct {
	families *repository.FamilyRepository
	profiles *repository.UserProfileRepository
	email    *EmailService
}

// NewFamilyService creates a new family service. email may be a disabled
// service; invites then fail with a clear error instead of disappearing.
func NewFamilyService(families *repository.FamilyRepository, profiles *repository.UserProfileRepository, email *EmailService) *FamilyService {
	return &FamilyService{
		families: families,
		profiles: profiles,
		email:    email,
	}
}

// GetFamily retrieves a family by ID.
func (s *FamilyService) GetFamily(ctx context.Context, familyID string) (*models.Family, error) {
	family, err := s.families.FindByID(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family: %w", err)
	}
	if family == nil {
		return nil, ErrFamilyNotFound
	}
	return family, nil
}

// GetRoster retrieves the creator followed by the member profiles of a
// family. The creator is found through the family's creator reference, the
// members through their family reference.
func (s *FamilyService) GetRoster(ctx context.Context, familyID string) ([]models.UserProfile, error) {
	family, err := s.GetFamily(ctx, familyID)
	if err != nil {
		return nil, err
	}

	var roster []models.UserProfile

	if family.CreatorID != "" {
		creator, err := s.profiles.FindByID(ctx, family.CreatorID)
		if err != nil {
			return nil, fmt.Errorf("failed to get family creator: %w", err)
		}
		if creator != nil {
			roster = append(roster, *creator)
		}
	}

	members, err := s.profiles.FindByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family members: %w", err)
	}

	return append(roster, members...), nil
}

// InviteMember emails the family's invite code to a prospective member.
func (s *FamilyService) InviteMember(ctx context.Context, familyID, inviterName, toEmail string) error {
	if toEmail == "" {
		return errors.New("recipient email is required")
	}

	family, err := s.GetFamily(ctx, familyID)
	if err != nil {
		return err
	}

	if s.email == nil || !s.email.IsEnabled() {
		return errors.New("email sending is not configured")
	}

	if err := s.email.SendInviteEmail(ctx, toEmail, inviterName, family.InviteCode); err != nil {
		return fmt.Errorf("failed to send invite email: %w", err)
	}

	return nil
}
