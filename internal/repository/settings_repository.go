package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot/postpilot/internal/models"
)

type SettingsRepository interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Settings, bool, error)
	Upsert(ctx context.Context, s *models.Settings) error
}

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) GetByUserID(ctx context.Context, userID int64) (*models.Settings, bool, error) {
	query := `SELECT id, user_id, timezone_offset_minutes, default_time_slot, created_at, updated_at
		FROM settings WHERE user_id = $1`
	row := r.db.QueryRowContext(ctx, query, userID)

	var s models.Settings
	err := row.Scan(&s.ID, &s.UserID, &s.TimezoneOffsetMinutes, &s.DefaultTimeSlot, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		slog.Info(err.Error())
		return nil, false, err
	}

	return &s, true, nil
}

func (r *settingsRepository) Upsert(ctx context.Context, s *models.Settings) error {
	query := `
		INSERT INTO settings (user_id, timezone_offset_minutes, default_time_slot)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET timezone_offset_minutes = $2, default_time_slot = $3, updated_at = $4
	`
	_, err := r.db.ExecContext(ctx, query, s.UserID, s.TimezoneOffsetMinutes, s.DefaultTimeSlot, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
