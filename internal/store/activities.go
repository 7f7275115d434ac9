package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/showroom-auto/showroom/internal/domain"
)

const activityColumns = `id, action, subject_type, subject_id, summary, actor, details, created_at`

type activityRow struct {
	ID          uuid.UUID `db:"id"`
	Action      string    `db:"action"`
	SubjectType string    `db:"subject_type"`
	SubjectID   string    `db:"subject_id"`
	Summary     string    `db:"summary"`
	Actor       string    `db:"actor"`
	Details     JSONMap   `db:"details"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r activityRow) toDomain() domain.Activity {
	return domain.Activity{
		ID:          r.ID,
		Action:      r.Action,
		SubjectType: r.SubjectType,
		SubjectID:   r.SubjectID,
		Summary:     r.Summary,
		Actor:       r.Actor,
		Details:     map[string]any(r.Details),
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// AppendActivity records an entry in the activity log
func (q queries) AppendActivity(ctx context.Context, a *domain.Activity) error {
	if a.ID == uuid.Nil {
		a.ID = domain.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = timestamp(a.CreatedAt)

	_, err := q.exec(ctx, `INSERT INTO activities (`+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Action, a.SubjectType, a.SubjectID, a.Summary, a.Actor, JSONMap(a.Details), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending activity: %w", err)
	}
	return nil
}

// ListActivities returns the activity log newest first, starting after cursor
func (q queries) ListActivities(ctx context.Context, cursor *domain.Cursor, limit int) (domain.Page[domain.Activity], error) {
	page := domain.Page[domain.Activity]{Items: []domain.Activity{}}
	if limit <= 0 {
		return page, nil
	}

	w := &where{}
	if cursor != nil {
		if cursor.Sort != domain.SortNewest {
			return page, domain.ErrInvalidCursor
		}
		keyset{column: "created_at", desc: true}.after(w, cursor)
	}

	var rows []activityRow
	query := `SELECT ` + activityColumns + ` FROM activities ` + w.clause() +
		` ORDER BY created_at DESC, id DESC LIMIT ?`
	if err := q.selectAll(ctx, &rows, query, append(w.args, limit+1)...); err != nil {
		return page, fmt.Errorf("listing activities: %w", err)
	}

	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}
	for _, r := range rows {
		page.Items = append(page.Items, r.toDomain())
	}
	if page.HasMore {
		last := page.Items[len(page.Items)-1]
		page.NextCursor = domain.EncodeCursor(domain.ActivityCursor(&last))
	}
	return page, nil
}

// RecentActivities returns the n newest activities
func (q queries) RecentActivities(ctx context.Context, n int) ([]domain.Activity, error) {
	page, err := q.ListActivities(ctx, nil, n)
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// CountActivitiesSince returns the number of activities recorded at or after since
func (q queries) CountActivitiesSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM activities WHERE created_at >= ?`, timestamp(since)); err != nil {
		return 0, fmt.Errorf("counting activities: %w", err)
	}
	return n, nil
}

// PruneActivities deletes activities older than cutoff and returns how many were removed
func (q queries) PruneActivities(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := q.exec(ctx, `DELETE FROM activities WHERE created_at < ?`, timestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning activities: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected: %w", err)
	}
	return n, nil
}
