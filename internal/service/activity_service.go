package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"savequest/internal/models"
	"savequest/internal/repository"
)

var (
	ErrTitleRequired        = errors.New("activity title is required")
	ErrMoneyGoalNotPositive = errors.New("money goal must be a positive amount")
	ErrEndDateInPast        = errors.New("end date must be in the future")
	ErrNoAssignees          = errors.New("at least one member must be assigned")
	ErrActivityNotFound     = errors.New("activity not found")
)

// ActivityService handles savings-activity business logic
type ActivityService struct {
	activities *repository.ActivityRepository
}

// NewActivityService creates a new activity service
func NewActivityService(activities *repository.ActivityRepository) *ActivityService {
	return &ActivityService{activities: activities}
}

// CreateActivity validates and creates a savings activity. Validation runs
// before any remote call so bad input never reaches the store.
func (s *ActivityService) CreateActivity(ctx context.Context, familyID, title string, moneyGoal float64, endDate time.Time, assignedTo []string) (*models.Activity, error) {
	if err := validateActivity(title, moneyGoal, endDate, assignedTo); err != nil {
		return nil, err
	}

	activity, err := s.activities.Create(ctx, &models.Activity{
		Title:      title,
		MoneyGoal:  moneyGoal,
		EndDate:    endDate,
		FamilyID:   familyID,
		AssignedTo: assignedTo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create activity: %w", err)
	}

	return activity, nil
}

// UpdateActivity re-validates and overwrites an activity's own fields.
func (s *ActivityService) UpdateActivity(ctx context.Context, activity *models.Activity) error {
	if err := validateActivity(activity.Title, activity.MoneyGoal, activity.EndDate, activity.AssignedTo); err != nil {
		return err
	}

	if err := s.activities.Update(ctx, activity); err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}

	return nil
}

// GetActivity retrieves an activity by ID.
func (s *ActivityService) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}
	return activity, nil
}

// GetFamilyActivities lists a family's activities. An empty family lists as
// empty, never as an error.
func (s *ActivityService) GetFamilyActivities(ctx context.Context, familyID string) ([]models.Activity, error) {
	activities, err := s.activities.FindByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get family activities: %w", err)
	}
	return activities, nil
}

// GetAssignedActivities lists the activities assigned to a profile.
func (s *ActivityService) GetAssignedActivities(ctx context.Context, profileID string) ([]models.Activity, error) {
	activities, err := s.activities.FindByAssignee(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get assigned activities: %w", err)
	}
	return activities, nil
}

func validateActivity(title string, moneyGoal float64, endDate time.Time, assignedTo []string) error {
	if strings.TrimSpace(title) == "" {
		return ErrTitleRequired
	}
	if moneyGoal <= 0 {
		return ErrMoneyGoalNotPositive
	}
	if !endDate.After(time.Now()) {
		return ErrEndDateInPast
	}
	if len(assignedTo) == 0 {
		return ErrNoAssignees
	}
	return nil
}
