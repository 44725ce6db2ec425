package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"savequest/internal/database"
	"savequest/internal/models"
)

// UserProfileRepository handles store operations for user profiles
type UserProfileRepository struct {
	db *database.DB
}

// NewUserProfileRepository creates a new user profile repository
func NewUserProfileRepository(db *database.DB) *UserProfileRepository {
	return &UserProfileRepository{db: db}
}

// Create inserts a new profile and returns it with its store-assigned ID.
// The unique index on apple_user_id backs the query-before-create protocol.
func (r *UserProfileRepository) Create(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error) {
	created := *profile
	created.ID = uuid.New().String()
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt

	query := `
		INSERT INTO user_profiles (id, name, email, apple_user_id, family_id, picture_asset, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(ctx, query,
		created.ID,
		created.Name,
		created.Email,
		created.AppleUserID,
		nullIfEmpty(created.FamilyID),
		nullIfEmpty(created.PictureAsset),
		created.CreatedAt,
		created.UpdatedAt,
	)
	if err != nil {
		if r.db.Dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: apple user %s", ErrDuplicateRecord, created.AppleUserID)
		}
		return nil, fmt.Errorf("%w: %v", ErrCreateUserProfile, err)
	}

	return &created, nil
}

// FindByAppleUserID retrieves the profile for a stable external identity.
// Returns nil with no error when no profile exists.
func (r *UserProfileRepository) FindByAppleUserID(ctx context.Context, appleUserID string) (*models.UserProfile, error) {
	query := selectProfile + " WHERE apple_user_id = ?"
	return r.scanOne(r.db.QueryRow(ctx, query, appleUserID))
}

// FindByID retrieves a profile by its record ID. Returns nil when absent.
func (r *UserProfileRepository) FindByID(ctx context.Context, id string) (*models.UserProfile, error) {
	query := selectProfile + " WHERE id = ?"
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindByFamily retrieves all member profiles of a family. A store that has
// never held any profile yields an empty list, not an error.
func (r *UserProfileRepository) FindByFamily(ctx context.Context, familyID string) ([]models.UserProfile, error) {
	query := selectProfile + " WHERE family_id = ? ORDER BY created_at ASC"
	rows, err := r.db.Query(ctx, query, familyID)
	if err != nil {
		if r.db.Dialect.IsMissingRelation(err) {
			return []models.UserProfile{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrFindUserProfile, err)
	}
	defer rows.Close()

	var profiles []models.UserProfile
	for rows.Next() {
		profile, err := scanProfileRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFindUserProfile, err)
		}
		profiles = append(profiles, *profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFindUserProfile, err)
	}

	return profiles, nil
}

// Update overwrites the full record (name, email, family link, picture).
func (r *UserProfileRepository) Update(ctx context.Context, profile *models.UserProfile) error {
	query := `
		UPDATE user_profiles
		SET name = ?, email = ?, family_id = ?, picture_asset = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.Exec(ctx, query,
		profile.Name,
		profile.Email,
		nullIfEmpty(profile.FamilyID),
		nullIfEmpty(profile.PictureAsset),
		time.Now(),
		profile.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateUserProfile, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateUserProfile, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: user profile %s", ErrNilRecord, profile.ID)
	}

	return nil
}

const selectProfile = `
	SELECT id, name, email, apple_user_id, family_id, picture_asset, created_at, updated_at
	FROM user_profiles
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *UserProfileRepository) scanOne(row *sql.Row) (*models.UserProfile, error) {
	profile, err := scanProfileRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		// A store that has never held a profile behaves as "no match"
		if r.db.Dialect.IsMissingRelation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrFindUserProfile, err)
	}
	return profile, nil
}

func scanProfileRow(row rowScanner) (*models.UserProfile, error) {
	profile := &models.UserProfile{}
	var familyID, pictureAsset sql.NullString

	err := row.Scan(
		&profile.ID,
		&profile.Name,
		&profile.Email,
		&profile.AppleUserID,
		&familyID,
		&pictureAsset,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	profile.FamilyID = familyID.String
	profile.PictureAsset = pictureAsset.String

	return profile, nil
}
