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

// ActivityRepository handles store operations for activities and their
// ordered assignee lists
type ActivityRepository struct {
	db *database.DB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *database.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Create inserts a new activity together with its assignee list and returns
// it with its store-assigned ID.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) (*models.Activity, error) {
	created := *activity
	created.ID = uuid.New().String()
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateActivity, err)
	}
	defer tx.Rollback()

	query := r.db.Dialect.RewriteQuery(`
		INSERT INTO activities (id, title, money_goal, end_date, picture_asset, family_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = tx.ExecContext(ctx, query,
		created.ID,
		created.Title,
		created.MoneyGoal,
		created.EndDate,
		nullIfEmpty(created.PictureAsset),
		created.FamilyID,
		created.CreatedAt,
		created.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateActivity, err)
	}

	if err := insertAssignees(ctx, tx, r.db.Dialect, created.ID, created.AssignedTo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateActivity, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateActivity, err)
	}

	return &created, nil
}

// Update overwrites the full record, including the assignee list.
func (r *ActivityRepository) Update(ctx context.Context, activity *models.Activity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateActivity, err)
	}
	defer tx.Rollback()

	query := r.db.Dialect.RewriteQuery(`
		UPDATE activities
		SET title = ?, money_goal = ?, end_date = ?, picture_asset = ?, updated_at = ?
		WHERE id = ?
	`)
	result, err := tx.ExecContext(ctx, query,
		activity.Title,
		activity.MoneyGoal,
		activity.EndDate,
		nullIfEmpty(activity.PictureAsset),
		time.Now(),
		activity.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateActivity, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateActivity, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: activity %s", ErrNilRecord, activity.ID)
	}

	deleteQuery := r.db.Dialect.RewriteQuery("DELETE FROM activity_assignees WHERE activity_id = ?")
	if _, err := tx.ExecContext(ctx, deleteQuery, activity.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateActivity, err)
	}
	if err := insertAssignees(ctx, tx, r.db.Dialect, activity.ID, activity.AssignedTo); err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateActivity, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrUpdateActivity, err)
	}

	return nil
}

// FindByID retrieves an activity by its record ID. Returns nil when absent.
func (r *ActivityRepository) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	activities, err := r.findMany(ctx, "a.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(activities) == 0 {
		return nil, nil
	}
	return &activities[0], nil
}

// FindByFamily retrieves all activities of a family. A store that has never
// held any activity yields an empty list, not an error.
func (r *ActivityRepository) FindByFamily(ctx context.Context, familyID string) ([]models.Activity, error) {
	return r.findMany(ctx, "a.family_id = ?", familyID)
}

// FindByAssignee retrieves the activities whose assignee list contains the
// given profile.
func (r *ActivityRepository) FindByAssignee(ctx context.Context, profileID string) ([]models.Activity, error) {
	return r.findMany(ctx, `
		a.id IN (SELECT activity_id FROM activity_assignees WHERE profile_id = ?)
	`, profileID)
}

// findMany fetches activities matching the predicate along with their ordered
// assignee lists in one pass.
func (r *ActivityRepository) findMany(ctx context.Context, predicate string, args ...interface{}) ([]models.Activity, error) {
	query := `
		SELECT a.id, a.title, a.money_goal, a.end_date, a.picture_asset, a.family_id,
		       a.created_at, a.updated_at, aa.profile_id
		FROM activities a
		LEFT JOIN activity_assignees aa ON aa.activity_id = a.id
		WHERE ` + predicate + `
		ORDER BY a.created_at ASC, a.id ASC, aa.position ASC
	`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if r.db.Dialect.IsMissingRelation(err) {
			return []models.Activity{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrFindActivity, err)
	}
	defer rows.Close()

	var activities []models.Activity
	index := make(map[string]int)

	for rows.Next() {
		var (
			activity     models.Activity
			pictureAsset sql.NullString
			assignee     sql.NullString
		)
		err := rows.Scan(
			&activity.ID,
			&activity.Title,
			&activity.MoneyGoal,
			&activity.EndDate,
			&pictureAsset,
			&activity.FamilyID,
			&activity.CreatedAt,
			&activity.UpdatedAt,
			&assignee,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFindActivity, err)
		}
		activity.PictureAsset = pictureAsset.String

		i, seen := index[activity.ID]
		if !seen {
			activities = append(activities, activity)
			i = len(activities) - 1
			index[activity.ID] = i
		}
		if assignee.Valid {
			activities[i].AssignedTo = append(activities[i].AssignedTo, assignee.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFindActivity, err)
	}

	if activities == nil {
		activities = []models.Activity{}
	}

	return activities, nil
}

func insertAssignees(ctx context.Context, tx *sql.Tx, dialect database.Dialect, activityID string, assignees []string) error {
	query := dialect.RewriteQuery(`
		INSERT INTO activity_assignees (activity_id, profile_id, position)
		VALUES (?, ?, ?)
	`)
	for position, profileID := range assignees {
		if _, err := tx.ExecContext(ctx, query, activityID, profileID, position); err != nil {
			return err
		}
	}
	return nil
}
