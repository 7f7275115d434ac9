package inventory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/store"
	"github.com/showroom-auto/showroom/internal/web/cache"
)

// ListQuery selects one page of cars
type ListQuery struct {
	Filter domain.CarFilter
	Sort   domain.Sort
	Cursor *domain.Cursor
	Limit  int

	// Token is the encoded cursor, used to key the cache
	Token string
}

// ListCars returns a page of cars, served from the cache when possible
func (s *Service) ListCars(ctx context.Context, q ListQuery) (domain.Page[domain.Car], error) {
	q.Filter.Normalize()
	parts := []string{"list", listKey(q), q.Token, strconv.Itoa(q.Limit)}
	page, _, err := cache.Remember(ctx, s.listings, func(ctx context.Context) (domain.Page[domain.Car], error) {
		return s.store.ListCars(ctx, q.Filter, q.Sort, q.Cursor, q.Limit)
	}, parts...)
	return page, err
}

// listKey renders the filter without pointers so equal filters share a key
func listKey(q ListQuery) string {
	f := q.Filter
	deref := func(p any) string {
		switch v := p.(type) {
		case *int:
			if v != nil {
				return fmt.Sprint(*v)
			}
		case *int64:
			if v != nil {
				return fmt.Sprint(*v)
			}
		}
		return "-"
	}
	return strings.Join([]string{
		f.Make, f.BodyType, f.FuelType, f.Transmission, strings.Join(f.Statuses, ","),
		deref(f.MinPrice), deref(f.MaxPrice), deref(f.MinYear), deref(f.MaxYear), deref(f.MaxMileage),
		f.Query, fmt.Sprint(f.FeaturedOnly), string(q.Sort),
	}, "|")
}

// GetCar returns a car with its images
func (s *Service) GetCar(ctx context.Context, id uuid.UUID) (*domain.Car, error) {
	car, _, err := cache.Remember(ctx, s.listings, func(ctx context.Context) (*domain.Car, error) {
		return s.store.GetCar(ctx, id)
	}, "car", id.String())
	return car, err
}

// Makes returns the distinct makes among cars with the given statuses
func (s *Service) Makes(ctx context.Context, statuses []string) ([]string, error) {
	makes, _, err := cache.Remember(ctx, s.listings, func(ctx context.Context) ([]string, error) {
		return s.store.DistinctMakes(ctx, statuses)
	}, append([]string{"makes"}, statuses...)...)
	return makes, err
}

// CreateCar validates and stores a new car
func (s *Service) CreateCar(ctx context.Context, actor string, in domain.CarInput) (*domain.Car, error) {
	if errs := in.Validate(s.now()); errs.HasErrors() {
		return nil, errs
	}
	in.Description = s.sanitize(in.Description)

	car := &domain.Car{CreatedBy: actor}
	in.Apply(car)

	var activity *domain.Activity
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.CreateCar(ctx, car); err != nil {
			return err
		}
		activity = domain.NewActivity(domain.ActionCarCreated, domain.SubjectCar, car.ID.String(), actor,
			"Added "+car.Title()).
			WithDetail("status", string(car.Status)).
			WithDetail("price", car.Price)
		return tx.AppendActivity(ctx, activity)
	})
	if err != nil {
		return nil, fmt.Errorf("creating car: %w", err)
	}

	s.invalidateListings(ctx)
	s.publish(ctx, activity)
	return car, nil
}

// UpdateCar applies in to an existing car. It reports false, writing nothing,
// when the input changes no field.
func (s *Service) UpdateCar(ctx context.Context, actor string, id uuid.UUID, in domain.CarInput) (*domain.Car, bool, error) {
	if errs := in.Validate(s.now()); errs.HasErrors() {
		return nil, false, errs
	}
	in.Description = s.sanitize(in.Description)

	var (
		car      *domain.Car
		activity *domain.Activity
	)
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		before, err := tx.GetCar(ctx, id)
		if err != nil {
			return err
		}
		after := *before
		in.Apply(&after)
		car = &after

		changes := domain.DiffCar(before, &after)
		if len(changes) == 0 {
			return nil
		}
		if err := tx.UpdateCar(ctx, &after); err != nil {
			return err
		}
		activity = carActivity(actor, before, &after, changes)
		return tx.AppendActivity(ctx, activity)
	})
	if err != nil {
		return nil, false, fmt.Errorf("updating car: %w", err)
	}
	if activity == nil {
		return car, false, nil
	}

	s.invalidateListings(ctx)
	s.publish(ctx, activity)
	return car, true, nil
}

func carActivity(actor string, before, after *domain.Car, changes map[string][2]any) *domain.Activity {
	if status, ok := changes["status"]; ok && len(changes) == 1 {
		return domain.NewActivity(domain.ActionCarStatusChanged, domain.SubjectCar, after.ID.String(), actor,
			fmt.Sprintf("Marked %s as %s", after.Title(), after.Status)).
			WithDetail("from", status[0]).
			WithDetail("to", status[1])
	}

	activity := domain.NewActivity(domain.ActionCarUpdated, domain.SubjectCar, after.ID.String(), actor,
		"Updated "+after.Title())
	fields := make(map[string]any, len(changes))
	for field, change := range changes {
		if field == "description" {
			fields[field] = descriptionPatch(before.Description, after.Description)
			continue
		}
		fields[field] = change
	}
	return activity.WithDetail("changes", fields)
}

// descriptionPatch returns a unified-style patch between two descriptions
func descriptionPatch(before, after string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(before, after))
}

// DeleteCar removes a car and its images. Blob removal happens after commit;
// failures are left to the orphan sweep.
func (s *Service) DeleteCar(ctx context.Context, actor string, id uuid.UUID) error {
	var (
		car      *domain.Car
		activity *domain.Activity
	)
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		if car, err = tx.GetCar(ctx, id); err != nil {
			return err
		}
		if err := tx.DeleteCar(ctx, id); err != nil {
			return err
		}
		activity = domain.NewActivity(domain.ActionCarDeleted, domain.SubjectCar, id.String(), actor,
			"Removed "+car.Title()).
			WithDetail("images", len(car.Images))
		return tx.AppendActivity(ctx, activity)
	})
	if err != nil {
		return fmt.Errorf("deleting car: %w", err)
	}

	s.deleteCarBlobs(ctx, car)
	s.invalidateListings(ctx)
	s.publish(ctx, activity)
	return nil
}

func (s *Service) sanitize(html string) string {
	return strings.TrimSpace(s.policy.Sanitize(html))
}

// deleteCarBlobs removes every object under the car's prefix, including
// uploads whose rows were never written
func (s *Service) deleteCarBlobs(ctx context.Context, car *domain.Car) {
	keys := make(map[string]struct{}, len(car.Images))
	for _, img := range car.Images {
		keys[img.Key] = struct{}{}
	}
	objects, err := s.blobs.List(context.WithoutCancel(ctx), blob.CarPrefix(car.ID))
	if err != nil {
		s.logger.Warn("listing car blobs", zap.String("car_id", car.ID.String()), zap.Error(err))
	}
	for _, obj := range objects {
		keys[obj.Key] = struct{}{}
	}
	for key := range keys {
		s.deleteBlob(ctx, key)
	}
}
