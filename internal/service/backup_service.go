package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"savequest/internal/database"
)

// BackupData represents the complete record-store backup structure
type BackupData struct {
	Version        string               `json:"version"`
	ExportedAt     time.Time            `json:"exported_at"`
	UserProfiles   []UserProfileBackup  `json:"user_profiles"`
	Families       []FamilyBackup       `json:"families"`
	Activities     []ActivityBackup     `json:"activities"`
	SavingsEntries []SavingsEntryBackup `json:"savings_entries"`
}

// UserProfileBackup represents a user profile record for backup
type UserProfileBackup struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AppleUserID  string    `json:"apple_user_id"`
	FamilyID     *string   `json:"family_id"`
	PictureAsset *string   `json:"picture_asset"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FamilyBackup represents a family record for backup
type FamilyBackup struct {
	ID         string    `json:"id"`
	InviteCode string    `json:"invite_code"`
	CreatorID  *string   `json:"creator_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityBackup represents an activity with its ordered assignee list
type ActivityBackup struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MoneyGoal    float64   `json:"money_goal"`
	EndDate      time.Time `json:"end_date"`
	PictureAsset *string   `json:"picture_asset"`
	FamilyID     string    `json:"family_id"`
	AssignedTo   []string  `json:"assigned_to"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SavingsEntryBackup represents a savings entry record for backup
type SavingsEntryBackup struct {
	ID          string    `json:"id"`
	AmountSaved float64   `json:"amount_saved"`
	DateLogged  time.Time `json:"date_logged"`
	Notes       string    `json:"notes"`
	ActivityID  string    `json:"activity_id"`
	ProfileID   string    `json:"profile_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// BackupService exports and imports the full record store. It talks to the
// database directly; this is an operator tool, not part of the app flows.
type BackupService struct {
	db *database.DB
}

// NewBackupService creates a new backup service
func NewBackupService(db *database.DB) *BackupService {
	return &BackupService{db: db}
}

// ExportToFile writes a JSON backup of all four record kinds to path.
func (s *BackupService) ExportToFile(ctx context.Context, path string) error {
	backup, err := s.Export(ctx)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(backup, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	return nil
}

// Export collects all records into a BackupData snapshot.
func (s *BackupService) Export(ctx context.Context) (*BackupData, error) {
	backup := &BackupData{
		Version:    "1",
		ExportedAt: time.Now(),
	}

	var err error
	if backup.UserProfiles, err = s.exportProfiles(ctx); err != nil {
		return nil, err
	}
	if backup.Families, err = s.exportFamilies(ctx); err != nil {
		return nil, err
	}
	if backup.Activities, err = s.exportActivities(ctx); err != nil {
		return nil, err
	}
	if backup.SavingsEntries, err = s.exportSavingsEntries(ctx); err != nil {
		return nil, err
	}

	return backup, nil
}

// ImportFromFile restores a JSON backup into the store. With clear set, all
// existing records are removed first.
func (s *BackupService) ImportFromFile(ctx context.Context, path string, clear bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	var backup BackupData
	if err := json.Unmarshal(data, &backup); err != nil {
		return fmt.Errorf("failed to decode backup: %w", err)
	}

	return s.Import(ctx, &backup, clear)
}

// Import writes a BackupData snapshot into the store.
func (s *BackupService) Import(ctx context.Context, backup *BackupData, clear bool) error {
	if clear {
		if err := s.clearAll(ctx); err != nil {
			return err
		}
	}

	for _, p := range backup.UserProfiles {
		_, err := s.db.Exec(ctx, `
			INSERT INTO user_profiles (id, name, email, apple_user_id, family_id, picture_asset, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Name, p.Email, p.AppleUserID, p.FamilyID, p.PictureAsset, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to import user profile %s: %w", p.ID, err)
		}
	}

	for _, f := range backup.Families {
		_, err := s.db.Exec(ctx, `
			INSERT INTO families (id, invite_code, creator_id, created_at)
			VALUES (?, ?, ?, ?)
		`, f.ID, f.InviteCode, f.CreatorID, f.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to import family %s: %w", f.ID, err)
		}
	}

	for _, a := range backup.Activities {
		_, err := s.db.Exec(ctx, `
			INSERT INTO activities (id, title, money_goal, end_date, picture_asset, family_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.Title, a.MoneyGoal, a.EndDate, a.PictureAsset, a.FamilyID, a.CreatedAt, a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to import activity %s: %w", a.ID, err)
		}
		for position, profileID := range a.AssignedTo {
			_, err := s.db.Exec(ctx, `
				INSERT INTO activity_assignees (activity_id, profile_id, position)
				VALUES (?, ?, ?)
			`, a.ID, profileID, position)
			if err != nil {
				return fmt.Errorf("failed to import assignees for activity %s: %w", a.ID, err)
			}
		}
	}

	for _, e := range backup.SavingsEntries {
		_, err := s.db.Exec(ctx, `
			INSERT INTO savings_entries (id, amount_saved, date_logged, notes, activity_id, profile_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.AmountSaved, e.DateLogged, e.Notes, e.ActivityID, e.ProfileID, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to import savings entry %s: %w", e.ID, err)
		}
	}

	return nil
}

func (s *BackupService) exportProfiles(ctx context.Context) ([]UserProfileBackup, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, email, apple_user_id, family_id, picture_asset, created_at, updated_at
		FROM user_profiles ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to export user profiles: %w", err)
	}
	defer rows.Close()

	profiles := []UserProfileBackup{}
	for rows.Next() {
		var p UserProfileBackup
		var familyID, pictureAsset sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.AppleUserID, &familyID, &pictureAsset, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user profile: %w", err)
		}
		if familyID.Valid {
			p.FamilyID = &familyID.String
		}
		if pictureAsset.Valid {
			p.PictureAsset = &pictureAsset.String
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

func (s *BackupService) exportFamilies(ctx context.Context) ([]FamilyBackup, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, invite_code, creator_id, created_at
		FROM families ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to export families: %w", err)
	}
	defer rows.Close()

	families := []FamilyBackup{}
	for rows.Next() {
		var f FamilyBackup
		var creatorID sql.NullString
		if err := rows.Scan(&f.ID, &f.InviteCode, &creatorID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan family: %w", err)
		}
		if creatorID.Valid {
			f.CreatorID = &creatorID.String
		}
		families = append(families, f)
	}
	return families, rows.Err()
}

func (s *BackupService) exportActivities(ctx context.Context) ([]ActivityBackup, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, money_goal, end_date, picture_asset, family_id, created_at, updated_at
		FROM activities ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to export activities: %w", err)
	}
	defer rows.Close()

	activities := []ActivityBackup{}
	for rows.Next() {
		var a ActivityBackup
		var pictureAsset sql.NullString
		if err := rows.Scan(&a.ID, &a.Title, &a.MoneyGoal, &a.EndDate, &pictureAsset, &a.FamilyID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		if pictureAsset.Valid {
			a.PictureAsset = &pictureAsset.String
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range activities {
		assignees, err := s.exportAssignees(ctx, activities[i].ID)
		if err != nil {
			return nil, err
		}
		activities[i].AssignedTo = assignees
	}

	return activities, nil
}

func (s *BackupService) exportAssignees(ctx context.Context, activityID string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT profile_id FROM activity_assignees
		WHERE activity_id = ? ORDER BY position ASC
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("failed to export assignees: %w", err)
	}
	defer rows.Close()

	assignees := []string{}
	for rows.Next() {
		var profileID string
		if err := rows.Scan(&profileID); err != nil {
			return nil, fmt.Errorf("failed to scan assignee: %w", err)
		}
		assignees = append(assignees, profileID)
	}
	return assignees, rows.Err()
}

func (s *BackupService) exportSavingsEntries(ctx context.Context) ([]SavingsEntryBackup, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, amount_saved, date_logged, notes, activity_id, profile_id, created_at
		FROM savings_entries ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to export savings entries: %w", err)
	}
	defer rows.Close()

	entries := []SavingsEntryBackup{}
	for rows.Next() {
		var e SavingsEntryBackup
		if err := rows.Scan(&e.ID, &e.AmountSaved, &e.DateLogged, &e.Notes, &e.ActivityID, &e.ProfileID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan savings entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *BackupService) clearAll(ctx context.Context) error {
	// Delete in dependency order
	tables := []string{"savings_entries", "activity_assignees", "activities", "user_profiles", "families"}
	for _, table := range tables {
		if _, err := s.db.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
