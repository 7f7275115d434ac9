package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/showroom-auto/showroom/internal/domain"
)

const imageColumns = `id, car_id, key, content_type, size, position, created_at`

type imageRow struct {
	ID          uuid.UUID `db:"id"`
	CarID       uuid.UUID `db:"car_id"`
	Key         string    `db:"key"`
	ContentType string    `db:"content_type"`
	Size        int64     `db:"size"`
	Position    int       `db:"position"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r imageRow) toDomain() domain.Image {
	return domain.Image{
		ID:          r.ID,
		CarID:       r.CarID,
		Key:         r.Key,
		ContentType: r.ContentType,
		Size:        r.Size,
		Position:    r.Position,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// AddImage appends img to its car's gallery; Position is set to the current image count.
// Call it inside WithTx so the car row lock holds until the insert commits.
func (q queries) AddImage(ctx context.Context, img *domain.Image) error {
	if img.ID == uuid.Nil {
		img.ID = domain.NewID()
	}
	img.CreatedAt = timestamp(time.Now())

	if err := q.lockCar(ctx, img.CarID); err != nil {
		return fmt.Errorf("locking car %s: %w", img.CarID, err)
	}

	var count int
	if err := q.get(ctx, &count, `SELECT COUNT(*) FROM car_images WHERE car_id = ?`, img.CarID); err != nil {
		return fmt.Errorf("counting images: %w", err)
	}
	img.Position = count

	_, err := q.exec(ctx, `INSERT INTO car_images (`+imageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		img.ID, img.CarID, img.Key, img.ContentType, img.Size, img.Position, img.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting image: %w", err)
	}
	return nil
}

// DeleteImage removes an image of carID and closes the gap in positions.
// It returns the deleted image so the caller can remove its blob.
func (q queries) DeleteImage(ctx context.Context, carID, imageID uuid.UUID) (*domain.Image, error) {
	if err := q.lockCar(ctx, carID); err != nil {
		return nil, fmt.Errorf("locking car %s: %w", carID, err)
	}

	var row imageRow
	err := q.get(ctx, &row, `SELECT `+imageColumns+` FROM car_images WHERE id = ? AND car_id = ?`, imageID, carID)
	if err != nil {
		return nil, fmt.Errorf("getting image %s: %w", imageID, err)
	}

	if err := q.execOne(ctx, `DELETE FROM car_images WHERE id = ?`, imageID); err != nil {
		return nil, fmt.Errorf("deleting image %s: %w", imageID, err)
	}

	_, err = q.exec(ctx, `UPDATE car_images SET position = position - 1 WHERE car_id = ? AND position > ?`,
		carID, row.Position)
	if err != nil {
		return nil, fmt.Errorf("repacking image positions: %w", err)
	}

	img := row.toDomain()
	return &img, nil
}

// lockCar serializes gallery writes for one car. PostgreSQL takes a row lock
// held until the transaction ends; SQLite runs a single writer connection and
// has no FOR UPDATE, so there it only checks that the car exists.
func (q queries) lockCar(ctx context.Context, carID uuid.UUID) error {
	query := `SELECT id FROM cars WHERE id = ?`
	if sqlx.BindType(q.ext.DriverName()) == sqlx.DOLLAR {
		query += ` FOR UPDATE`
	}
	var id uuid.UUID
	return q.get(ctx, &id, query, carID)
}

// ListImages returns the images of a car ordered by position
func (q queries) ListImages(ctx context.Context, carID uuid.UUID) ([]domain.Image, error) {
	var rows []imageRow
	err := q.selectAll(ctx, &rows, `SELECT `+imageColumns+` FROM car_images WHERE car_id = ? ORDER BY position`, carID)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	images := make([]domain.Image, 0, len(rows))
	for _, r := range rows {
		images = append(images, r.toDomain())
	}
	return images, nil
}

// AllImageKeys returns the blob keys referenced by any image
func (q queries) AllImageKeys(ctx context.Context) (map[string]struct{}, error) {
	var keys []string
	if err := q.selectAll(ctx, &keys, `SELECT key FROM car_images`); err != nil {
		return nil, fmt.Errorf("listing image keys: %w", err)
	}

	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

func (q queries) imagesFor(ctx context.Context, carIDs []uuid.UUID) (map[uuid.UUID][]domain.Image, error) {
	out := make(map[uuid.UUID][]domain.Image, len(carIDs))
	if len(carIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(carIDs))
	for i, id := range carIDs {
		args[i] = id
	}

	var rows []imageRow
	query := `SELECT ` + imageColumns + ` FROM car_images WHERE car_id IN (` + placeholders(len(args)) + `)
		ORDER BY car_id, position`
	if err := q.selectAll(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	for _, r := range rows {
		out[r.CarID] = append(out[r.CarID], r.toDomain())
	}
	return out, nil
}
