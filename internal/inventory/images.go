package inventory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/store"
)

// AttachImage stores upload and appends it to the car's gallery. The blob is
// written first and deleted again if the database write fails.
func (s *Service) AttachImage(ctx context.Context, actor string, carID uuid.UUID, upload *blob.Upload) (*domain.Image, error) {
	car, err := s.store.GetCar(ctx, carID)
	if err != nil {
		return nil, fmt.Errorf("attaching image: %w", err)
	}

	img := &domain.Image{
		ID:          domain.NewID(),
		CarID:       carID,
		ContentType: upload.ContentType,
	}
	img.Key = blob.ImageKey(carID, img.ID, upload.Ext)

	r, err := upload.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	size, err := s.blobs.Put(ctx, img.Key, r, upload.ContentType)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}
	img.Size = size

	var activity *domain.Activity
	err = s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.AddImage(ctx, img); err != nil {
			return err
		}
		activity = domain.NewActivity(domain.ActionImageAdded, domain.SubjectCar, carID.String(), actor,
			"Added a photo to "+car.Title()).
			WithDetail("image_id", img.ID.String()).
			WithDetail("position", img.Position)
		return tx.AppendActivity(ctx, activity)
	})
	if err != nil {
		s.deleteBlob(ctx, img.Key)
		return nil, fmt.Errorf("attaching image: %w", err)
	}

	s.invalidateListings(ctx)
	s.publish(ctx, activity)
	return img, nil
}

// RemoveImage deletes an image row, closing the gap in positions, then its blob
func (s *Service) RemoveImage(ctx context.Context, actor string, carID, imageID uuid.UUID) error {
	var (
		img      *domain.Image
		activity *domain.Activity
	)
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		car, err := tx.GetCar(ctx, carID)
		if err != nil {
			return err
		}
		if img, err = tx.DeleteImage(ctx, carID, imageID); err != nil {
			return err
		}
		activity = domain.NewActivity(domain.ActionImageRemoved, domain.SubjectCar, carID.String(), actor,
			"Removed a photo from "+car.Title()).
			WithDetail("image_id", imageID.String())
		return tx.AppendActivity(ctx, activity)
	})
	if err != nil {
		return fmt.Errorf("removing image: %w", err)
	}

	s.deleteBlob(ctx, img.Key)
	s.invalidateListings(ctx)
	s.publish(ctx, activity)
	return nil
}

// OpenImage returns the blob stored under an image key
func (s *Service) OpenImage(ctx context.Context, key string) (io.ReadCloser, blob.Info, error) {
	return s.blobs.Open(ctx, key)
}

// SweepOrphans deletes image blobs that no row references and that are older
// than grace, and returns how many were removed
func (s *Service) SweepOrphans(ctx context.Context, grace time.Duration) (int, error) {
	referenced, err := s.store.AllImageKeys(ctx)
	if err != nil {
		return 0, err
	}
	objects, err := s.blobs.List(ctx, blob.CarsPrefix)
	if err != nil {
		return 0, fmt.Errorf("listing blobs: %w", err)
	}

	cutoff := s.now().Add(-grace)
	removed := 0
	for _, obj := range objects {
		if _, ok := referenced[obj.Key]; ok || obj.ModTime.After(cutoff) {
			continue
		}
		if err := s.blobs.Delete(ctx, obj.Key); err != nil && !isBlobNotFound(err) {
			s.logger.Warn("sweeping orphaned blob", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("swept orphaned blobs", zap.Int("removed", removed))
	}
	return removed, nil
}

func isBlobNotFound(err error) bool {
	return errors.Is(err, blob.ErrNotFound)
}

// IsNotFound reports whether err means the car, image or inquiry does not exist
func IsNotFound(err error) bool {
	return store.IsNotFound(err) || isBlobNotFound(err)
}

// IsValidation returns the field errors carried by err, if any
func IsValidation(err error) (*domain.ValidationErrors, bool) {
	var ve *domain.ValidationErrors
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
