package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/postpilot/postpilot/internal/models"
	"github.com/postpilot/postpilot/internal/repository"
)

type SettingsService interface {
	Info(ctx context.Context, userID int64) (*models.Settings, error)
	Update(ctx context.Context, userID int64, offsetMinutes int, defaultTimeSlot string) error
}

type settingsService struct {
	sr repository.SettingsRepository
}

func NewSettingsService(sr repository.SettingsRepository) SettingsService {
	return &settingsService{sr: sr}
}

func (s *settingsService) Info(ctx context.Context, userID int64) (*models.Settings, error) {
	settings, found, err := s.sr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !found {
		// Defaults until the user saves anything.
		return &models.Settings{UserID: userID, DefaultTimeSlot: "09:00"}, nil
	}
	return settings, nil
}

func (s *settingsService) Update(ctx context.Context, userID int64, offsetMinutes int, defaultTimeSlot string) error {
	if offsetMinutes < -12*60 || offsetMinutes > 14*60 {
		err := errors.New("timezone offset out of range")
		slog.Info(err.Error())
		return err
	}
	if defaultTimeSlot != "" {
		if _, err := time.Parse("15:04", defaultTimeSlot); err != nil {
			return errors.New("default time slot must be HH:MM")
		}
	}

	return s.sr.Upsert(ctx, &models.Settings{
		UserID:                userID,
		TimezoneOffsetMinutes: offsetMinutes,
		DefaultTimeSlot:       defaultTimeSlot,
	})
}
