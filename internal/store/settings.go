package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/showroom-auto/showroom/internal/domain"
)

const settingsKey = "dealership"

// GetSettings returns the saved dealership profile, or the defaults when none was saved
func (q queries) GetSettings(ctx context.Context) (domain.Settings, error) {
	var raw string
	err := q.get(ctx, &raw, `SELECT value FROM settings WHERE key = ?`, settingsKey)
	if IsNotFound(err) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("reading settings: %w", err)
	}

	s := domain.DefaultSettings()
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return domain.Settings{}, fmt.Errorf("decoding settings: %w", err)
	}
	return s, nil
}

// SaveSettings upserts the dealership profile
func (q queries) SaveSettings(ctx context.Context, s domain.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	_, err = q.exec(ctx, `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		settingsKey, string(data), timestamp(time.Now()))
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}
