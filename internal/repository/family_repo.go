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

// FamilyRepository handles store operations for families
type FamilyRepository struct {
	db *database.DB
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db *database.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// Create inserts a new family and returns it with its store-assigned ID.
// The creator reference is fixed at creation and never changed afterwards.
func (r *FamilyRepository) Create(ctx context.Context, family *models.Family) (*models.Family, error) {
	created := *family
	created.ID = uuid.New().String()
	created.CreatedAt = time.Now()

	query := `
		INSERT INTO families (id, invite_code, creator_id, created_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.db.Exec(ctx, query,
		created.ID,
		created.InviteCode,
		nullIfEmpty(created.CreatorID),
		created.CreatedAt,
	)
	if err != nil {
		if r.db.Dialect.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: invite code %s", ErrDuplicateRecord, created.InviteCode)
		}
		return nil, fmt.Errorf("%w: %v", ErrCreateFamily, err)
	}

	return &created, nil
}

// FindByID retrieves a family by its record ID. Returns nil when absent.
func (r *FamilyRepository) FindByID(ctx context.Context, id string) (*models.Family, error) {
	query := selectFamily + " WHERE id = ?"
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

// FindByInviteCode resolves a human-typed invite code to its family.
// Returns nil when the code matches nothing.
func (r *FamilyRepository) FindByInviteCode(ctx context.Context, code string) (*models.Family, error) {
	query := selectFamily + " WHERE invite_code = ?"
	return r.scanOne(r.db.QueryRow(ctx, query, code))
}

// FindByCreator retrieves the family a profile founded, if any.
func (r *FamilyRepository) FindByCreator(ctx context.Context, profileID string) (*models.Family, error) {
	query := selectFamily + " WHERE creator_id = ?"
	return r.scanOne(r.db.QueryRow(ctx, query, profileID))
}

const selectFamily = `
	SELECT id, invite_code, creator_id, created_at
	FROM families
`

func (r *FamilyRepository) scanOne(row *sql.Row) (*models.Family, error) {
	family := &models.Family{}
	var creatorID sql.NullString

	err := row.Scan(
		&family.ID,
		&family.InviteCode,
		&creatorID,
		&family.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		// A store that has never held a family behaves as "no match", which
		// single-row lookups report as absence rather than failure
		if r.db.Dialect.IsMissingRelation(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrFindFamily, err)
	}

	family.CreatorID = creatorID.String

	return family, nil
}
