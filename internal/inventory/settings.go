package inventory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/store"
	"github.com/showroom-auto/showroom/internal/web/cache"
)

// Settings returns the dealership profile
func (s *Service) Settings(ctx context.Context) (domain.Settings, error) {
	settings, _, err := cache.Remember(ctx, s.settings, s.store.GetSettings, "profile")
	return settings, err
}

// UpdateSettings validates and saves the dealership profile
func (s *Service) UpdateSettings(ctx context.Context, actor string, settings domain.Settings) (domain.Settings, error) {
	if errs := settings.Validate(); errs.HasErrors() {
		return settings, errs
	}

	var activity *domain.Activity
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.SaveSettings(ctx, settings); err != nil {
			return err
		}
		activity = domain.NewActivity(domain.ActionSettingsUpdated, domain.SubjectSettings, "", actor,
			"Updated dealership settings")
		return tx.AppendActivity(ctx, activity)
	})
	if err != nil {
		return settings, fmt.Errorf("updating settings: %w", err)
	}

	if err := s.settings.Invalidate(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("invalidating settings cache", zap.Error(err))
	}
	s.publish(ctx, activity)
	return settings, nil
}
