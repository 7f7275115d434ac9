package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/showroom-auto/showroom/internal/domain"
)

const carColumns = `id, make, model, year, price, mileage, body_type, fuel_type, transmission,
	color, description, featured, status, created_by, created_at, updated_at`

type carRow struct {
	ID           uuid.UUID `db:"id"`
	Make         string    `db:"make"`
	Model        string    `db:"model"`
	Year         int       `db:"year"`
	Price        int64     `db:"price"`
	Mileage      int       `db:"mileage"`
	BodyType     string    `db:"body_type"`
	FuelType     string    `db:"fuel_type"`
	Transmission string    `db:"transmission"`
	Color        string    `db:"color"`
	Description  string    `db:"description"`
	Featured     bool      `db:"featured"`
	Status       string    `db:"status"`
	CreatedBy    string    `db:"created_by"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r carRow) toDomain() domain.Car {
	return domain.Car{
		ID:           r.ID,
		Make:         r.Make,
		Model:        r.Model,
		Year:         r.Year,
		Price:        r.Price,
		Mileage:      r.Mileage,
		BodyType:     r.BodyType,
		FuelType:     r.FuelType,
		Transmission: r.Transmission,
		Color:        r.Color,
		Description:  r.Description,
		Featured:     r.Featured,
		Status:       domain.CarStatus(r.Status),
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
		Images:       []domain.Image{},
	}
}

// CreateCar inserts car, assigning an ID and timestamps when unset
func (q queries) CreateCar(ctx context.Context, car *domain.Car) error {
	if car.ID == uuid.Nil {
		car.ID = domain.NewID()
	}
	if car.CreatedAt.IsZero() {
		car.CreatedAt = time.Now()
	}
	car.CreatedAt = timestamp(car.CreatedAt)
	car.UpdatedAt = car.CreatedAt
	if car.Images == nil {
		car.Images = []domain.Image{}
	}

	_, err := q.exec(ctx, `INSERT INTO cars (`+carColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		car.ID, car.Make, car.Model, car.Year, car.Price, car.Mileage, car.BodyType,
		car.FuelType, car.Transmission, car.Color, car.Description, car.Featured,
		string(car.Status), car.CreatedBy, car.CreatedAt, car.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting car: %w", err)
	}
	return nil
}

// GetCar returns a car with its images ordered by position
func (q queries) GetCar(ctx context.Context, id uuid.UUID) (*domain.Car, error) {
	var row carRow
	if err := q.get(ctx, &row, `SELECT `+carColumns+` FROM cars WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("getting car %s: %w", id, err)
	}

	car := row.toDomain()
	images, err := q.ListImages(ctx, id)
	if err != nil {
		return nil, err
	}
	car.Images = images
	return &car, nil
}

// UpdateCar writes every mutable column of car and bumps updated_at
func (q queries) UpdateCar(ctx context.Context, car *domain.Car) error {
	car.UpdatedAt = timestamp(time.Now())
	err := q.execOne(ctx, `UPDATE cars SET make = ?, model = ?, year = ?, price = ?, mileage = ?,
		body_type = ?, fuel_type = ?, transmission = ?, color = ?, description = ?, featured = ?,
		status = ?, updated_at = ? WHERE id = ?`,
		car.Make, car.Model, car.Year, car.Price, car.Mileage, car.BodyType, car.FuelType,
		car.Transmission, car.Color, car.Description, car.Featured, string(car.Status),
		car.UpdatedAt, car.ID)
	if err != nil {
		return fmt.Errorf("updating car %s: %w", car.ID, err)
	}
	return nil
}

// DeleteCar removes a car; its images are removed by the foreign key cascade
func (q queries) DeleteCar(ctx context.Context, id uuid.UUID) error {
	if err := q.execOne(ctx, `DELETE FROM cars WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting car %s: %w", id, err)
	}
	return nil
}

// ListCars returns one page of cars matching filter in the given order.
// cursor is the position after which the page starts; nil starts at the top.
func (q queries) ListCars(ctx context.Context, filter domain.CarFilter, sort domain.Sort, cursor *domain.Cursor, limit int) (domain.Page[domain.Car], error) {
	page := domain.Page[domain.Car]{Items: []domain.Car{}}
	if limit <= 0 {
		return page, nil
	}

	ks, ok := carKeysets[sort]
	if !ok {
		sort = domain.SortNewest
		ks = carKeysets[sort]
	}

	filter.Normalize()
	w := carWhere(filter)
	if cursor != nil {
		if cursor.Sort != sort {
			return page, domain.ErrInvalidCursor
		}
		ks.after(w, cursor)
	}

	query := fmt.Sprintf(`SELECT %s FROM cars %s %s LIMIT ?`, carColumns, w.clause(), ks.orderBy())
	args := append(w.args, limit+1)

	var rows []carRow
	if err := q.selectAll(ctx, &rows, query, args...); err != nil {
		return page, fmt.Errorf("listing cars: %w", err)
	}

	if len(rows) > limit {
		page.HasMore = true
		rows = rows[:limit]
	}

	ids := make([]uuid.UUID, len(rows))
	for i, r := range rows {
		page.Items = append(page.Items, r.toDomain())
		ids[i] = r.ID
	}

	images, err := q.imagesFor(ctx, ids)
	if err != nil {
		return page, err
	}
	for i := range page.Items {
		if imgs, ok := images[page.Items[i].ID]; ok {
			page.Items[i].Images = imgs
		}
	}

	if page.HasMore {
		last := page.Items[len(page.Items)-1]
		page.NextCursor = domain.EncodeCursor(domain.CarCursor(&last, sort))
	}
	return page, nil
}

// CountCars returns the number of cars matching filter
func (q queries) CountCars(ctx context.Context, filter domain.CarFilter) (int, error) {
	filter.Normalize()
	w := carWhere(filter)

	var n int
	if err := q.get(ctx, &n, `SELECT COUNT(*) FROM cars `+w.clause(), w.args...); err != nil {
		return 0, fmt.Errorf("counting cars: %w", err)
	}
	return n, nil
}

// CountCarsByStatus returns the number of cars per status; every status is present
func (q queries) CountCarsByStatus(ctx context.Context) (map[domain.CarStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"n"`
	}
	if err := q.selectAll(ctx, &rows, `SELECT status, COUNT(*) AS n FROM cars GROUP BY status`); err != nil {
		return nil, fmt.Errorf("counting cars by status: %w", err)
	}

	counts := make(map[domain.CarStatus]int, len(domain.CarStatuses))
	for _, s := range domain.CarStatuses {
		counts[s] = 0
	}
	for _, r := range rows {
		counts[domain.CarStatus(r.Status)] = r.Count
	}
	return counts, nil
}

// InventoryValue returns the sum of prices of cars that are not sold
func (q queries) InventoryValue(ctx context.Context) (int64, error) {
	var total int64
	err := q.get(ctx, &total, `SELECT CAST(COALESCE(SUM(price), 0) AS BIGINT) FROM cars WHERE status <> ?`,
		string(domain.StatusSold))
	if err != nil {
		return 0, fmt.Errorf("summing inventory value: %w", err)
	}
	return total, nil
}

// DistinctMakes lists the makes of cars in the given statuses, alphabetically
func (q queries) DistinctMakes(ctx context.Context, statuses []string) ([]string, error) {
	w := &where{}
	w.in("status", statuses)

	makes := []string{}
	if err := q.selectAll(ctx, &makes, `SELECT DISTINCT make FROM cars `+w.clause()+` ORDER BY make`, w.args...); err != nil {
		return nil, fmt.Errorf("listing makes: %w", err)
	}
	return makes, nil
}
