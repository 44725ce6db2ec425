package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"savequest/internal/models"
	"savequest/internal/repository"
)

var ErrAmountNotPositive = errors.New("amount saved must be a positive amount")

// Progress is the derived saving state of one activity. Nothing here is
// persisted; it is recomputed from the entries on every fetch.
type Progress struct {
	TotalSaved float64
	// Fraction of the money goal reached, clamped to [0, 1]
	Fraction float64
}

// SavingsService handles progress logging and derived totals
type SavingsService struct {
	entries    *repository.SavingsEntryRepository
	activities *repository.ActivityRepository
}

// NewSavingsService creates a new savings service
func NewSavingsService(entries *repository.SavingsEntryRepository, activities *repository.ActivityRepository) *SavingsService {
	return &SavingsService{entries: entries, activities: activities}
}

// LogEntry records an immutable savings contribution against an activity.
func (s *SavingsService) LogEntry(ctx context.Context, activityID, profileID string, amount float64, notes string, dateLogged time.Time) (*models.SavingsEntry, error) {
	if amount <= 0 {
		return nil, ErrAmountNotPositive
	}
	if dateLogged.IsZero() {
		dateLogged = time.Now()
	}

	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up activity: %w", err)
	}
	if activity == nil {
		return nil, ErrActivityNotFound
	}

	entry, err := s.entries.Create(ctx, &models.SavingsEntry{
		AmountSaved: amount,
		DateLogged:  dateLogged,
		Notes:       notes,
		ActivityID:  activityID,
		ProfileID:   profileID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to log savings entry: %w", err)
	}

	return entry, nil
}

// EntriesForActivity lists all entries logged against an activity.
func (s *SavingsService) EntriesForActivity(ctx context.Context, activityID string) ([]models.SavingsEntry, error) {
	entries, err := s.entries.FindByActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to get savings entries: %w", err)
	}
	return entries, nil
}

// ActivityProgress computes an activity's total saved and clamped progress
// fraction from its entries.
func (s *SavingsService) ActivityProgress(ctx context.Context, activity *models.Activity) (Progress, error) {
	entries, err := s.entries.FindByActivity(ctx, activity.ID)
	if err != nil {
		return Progress{}, fmt.Errorf("failed to get savings entries: %w", err)
	}

	return computeProgress(sumAmounts(entries), activity.MoneyGoal), nil
}

// TotalSavedByProfile sums everything a profile has logged across all
// activities.
func (s *SavingsService) TotalSavedByProfile(ctx context.Context, profileID string) (float64, error) {
	entries, err := s.entries.FindByProfile(ctx, profileID)
	if err != nil {
		return 0, fmt.Errorf("failed to get savings entries: %w", err)
	}
	return sumAmounts(entries), nil
}

func sumAmounts(entries []models.SavingsEntry) float64 {
	var total float64
	for _, entry := range entries {
		total += entry.AmountSaved
	}
	return total
}

func computeProgress(totalSaved, moneyGoal float64) Progress {
	progress := Progress{TotalSaved: totalSaved}
	if moneyGoal <= 0 {
		return progress
	}

	fraction := totalSaved / moneyGoal
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	progress.Fraction = fraction

	return progress
}
