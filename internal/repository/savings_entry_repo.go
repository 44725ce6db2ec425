package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"savequest/internal/database"
	"savequest/internal/models"
)

// SavingsEntryRepository handles store operations for savings entries.
// Entries are append-only: no update or delete is exposed.
type SavingsEntryRepository struct {
	db *database.DB
}

// NewSavingsEntryRepository creates a new savings entry repository
func NewSavingsEntryRepository(db *database.DB) *SavingsEntryRepository {
	return &SavingsEntryRepository{db: db}
}

// Create inserts a new entry and returns it with its store-assigned ID.
func (r *SavingsEntryRepository) Create(ctx context.Context, entry *models.SavingsEntry) (*models.SavingsEntry, error) {
	created := *entry
	created.ID = uuid.New().String()
	created.CreatedAt = time.Now()

	query := `
		INSERT INTO savings_entries (id, amount_saved, date_logged, notes, activity_id, profile_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(ctx, query,
		created.ID,
		created.AmountSaved,
		created.DateLogged,
		created.Notes,
		created.ActivityID,
		created.ProfileID,
		created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateSavingsEntry, err)
	}

	return &created, nil
}

// FindByActivity retrieves all entries logged against an activity. A store
// that has never held any entry yields an empty list, not an error.
func (r *SavingsEntryRepository) FindByActivity(ctx context.Context, activityID string) ([]models.SavingsEntry, error) {
	return r.findMany(ctx, "activity_id = ?", activityID)
}

// FindByProfile retrieves all entries a profile has logged.
func (r *SavingsEntryRepository) FindByProfile(ctx context.Context, profileID string) ([]models.SavingsEntry, error) {
	return r.findMany(ctx, "profile_id = ?", profileID)
}

func (r *SavingsEntryRepository) findMany(ctx context.Context, predicate string, args ...interface{}) ([]models.SavingsEntry, error) {
	query := `
		SELECT id, amount_saved, date_logged, notes, activity_id, profile_id, created_at
		FROM savings_entries
		WHERE ` + predicate + `
		ORDER BY date_logged ASC, created_at ASC
	`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if r.db.Dialect.IsMissingRelation(err) {
			return []models.SavingsEntry{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrFindSavingsEntry, err)
	}
	defer rows.Close()

	entries := []models.SavingsEntry{}
	for rows.Next() {
		var entry models.SavingsEntry
		err := rows.Scan(
			&entry.ID,
			&entry.AmountSaved,
			&entry.DateLogged,
			&entry.Notes,
			&entry.ActivityID,
			&entry.ProfileID,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFindSavingsEntry, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFindSavingsEntry, err)
	}

	return entries, nil
}
