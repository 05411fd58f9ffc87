package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
	gonanoid "github.com/matoous/go-nanoid/v2"
	cfg "github.com/postpilot/postpilot/configs"
	"github.com/postpilot/postpilot/internal/lifecycle"
	"github.com/postpilot/postpilot/internal/models"
	"github.com/postpilot/postpilot/internal/planner"
	"github.com/postpilot/postpilot/internal/repository"
	"github.com/postpilot/postpilot/internal/transfer"
)

type RowService interface {
	CreatePlan(ctx context.Context, userID int64, pc *transfer.PlanCreation) ([]*models.ContentRow, error)
	CreateRow(ctx context.Context, userID int64, rc *transfer.RowCreation, files []*multipart.FileHeader) (string, error)
	List(ctx context.Context, userID int64) ([]*models.ContentRow, error)
	RowInfo(ctx context.Context, rowID string, userID int64) (*models.ContentRow, error)
	Cancel(ctx context.Context, userID int64, rowID string) error
	Edit(ctx context.Context, userID int64, edit *transfer.RowEdit) error
	Remove(ctx context.Context, userID int64, rowID string) error
}

type rowService struct {
	cfg      cfg.Config
	db       *sql.DB
	rr       repository.RowRepository
	rm       repository.RowMediaRepository
	ac       repository.SocialAccountRepository
	uploader Uploader
}

func NewRowService(
	cfg cfg.Config,
	db *sql.DB,
	rr repository.RowRepository,
	rm repository.RowMediaRepository,
	ac repository.SocialAccountRepository,
	uploader Uploader) RowService {
	return &rowService{
		cfg:      cfg,
		db:       db,
		rr:       rr,
		rm:       rm,
		ac:       ac,
		uploader: uploader,
	}
}

// CreatePlan expands a strategy into draft rows, one per planned slot, in a
// single transaction.
func (s *rowService) CreatePlan(ctx context.Context, userID int64, pc *transfer.PlanCreation) ([]*models.ContentRow, error) {
	if pc == nil {
		err := errors.New("plan creation data is nil")
		slog.Error(err.Error())
		return nil, err
	}

	if err := s.checkAccount(ctx, pc.AccountID, userID); err != nil {
		return nil, err
	}

	if err := lifecycle.CheckCardinality(pc.PostType, 0); err != nil {
		return nil, err
	}

	slots, err := planner.Plan(pc.Strategy, time.Now(), s.limitsFor(ctx, pc.AccountID))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	rows := make([]*models.ContentRow, 0, len(slots))
	for _, slot := range slots {
		id, idErr := gonanoid.New()
		if idErr != nil {
			err = idErr
			return nil, err
		}

		row := &models.ContentRow{
			ID:            id,
			UserID:        userID,
			AccountID:     pc.AccountID,
			PostType:      pc.PostType,
			Caption:       pc.Caption,
			ImagePrompt:   pc.ImagePrompt,
			CarouselCount: pc.CarouselCount,
			ScheduledDate: slot.Date,
			ScheduledTime: slot.Time,
			Status:        models.RowStatusDraft,
		}
		if err = s.rr.Create(ctx, tx, row); err != nil {
			return nil, fmt.Errorf("error creating row for %s: %w", slot.Date, err)
		}
		rows = append(rows, row)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return rows, nil
}

// CreateRow creates one row by hand, uploading any user-supplied media.
func (s *rowService) CreateRow(ctx context.Context, userID int64, rc *transfer.RowCreation, files []*multipart.FileHeader) (string, error) {
	if rc == nil {
		err := errors.New("row creation data is nil")
		slog.Error(err.Error())
		return "", err
	}

	if err := s.checkAccount(ctx, rc.AccountID, userID); err != nil {
		return "", err
	}

	if err := lifecycle.CheckCardinality(rc.PostType, len(files)); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	slots, err := planner.Plan(models.StrategyConfig{
		StartDate: rc.ScheduledDate,
		Frequency: models.FrequencyDaily,
		TimeSlot:  rc.ScheduledTime,
	}, time.Now(), s.limitsFor(ctx, rc.AccountID))
	if err != nil {
		return "", err
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	row := &models.ContentRow{
		ID:            id,
		UserID:        userID,
		AccountID:     rc.AccountID,
		PostType:      rc.PostType,
		Caption:       rc.Caption,
		ImagePrompt:   rc.ImagePrompt,
		CarouselCount: rc.CarouselCount,
		ScheduledDate: slots[0].Date,
		ScheduledTime: slots[0].Time,
		Status:        models.RowStatusDraft,
	}
	if err = s.rr.Create(ctx, tx, row); err != nil {
		return "", fmt.Errorf("error creating row: %w", err)
	}

	if err = s.processFiles(ctx, tx, id, rc.PostType, files); err != nil {
		return "", fmt.Errorf("error processing files: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

func (s *rowService) processFiles(ctx context.Context, tx *sql.Tx, rowID, postType string, files []*multipart.FileHeader) error {
	allowedTypes := map[string]string{
		"jpg": "image", "jpeg": "image", "png": "image", "mp4": "video", "mov": "video",
	}

	for i, file := range files {
		fileContent, err := file.Open()
		if err != nil {
			return fmt.Errorf("error opening file: %w", err)
		}
		defer fileContent.Close()

		fileBytes, err := io.ReadAll(fileContent)
		if err != nil {
			return fmt.Errorf("error reading file content: %w", err)
		}

		fileType, err := filetype.Match(fileBytes)
		if err != nil || fileType == types.Unknown {
			return fmt.Errorf("unsupported file type: %w", err)
		}
		mediaType, ok := allowedTypes[fileType.Extension]
		if !ok {
			return fmt.Errorf("file type %s is not allowed", fileType.Extension)
		}
		if postType == models.PostTypeReel && mediaType != "video" {
			return fmt.Errorf("reel posts require a video file")
		}
		if postType != models.PostTypeReel && mediaType != "image" {
			return fmt.Errorf("%s posts require image files", postType)
		}

		url, err := s.uploader.Upload(ctx, fileBytes, fileType.MIME.Value, InstagramImageTransform())
		if err != nil {
			return fmt.Errorf("error uploading file: %w", err)
		}

		ref := models.MediaRef{
			RowID:        rowID,
			URL:          url,
			MediaType:    mediaType,
			DisplayOrder: i,
		}
		if err := s.rm.Create(ctx, tx, &ref); err != nil {
			return fmt.Errorf("error saving media file: %w", err)
		}
	}
	return nil
}

func (s *rowService) RowInfo(ctx context.Context, rowID string, userID int64) (*models.ContentRow, error) {
	row, err := s.ownedRow(ctx, userID, rowID)
	if err != nil {
		return nil, err
	}

	media, err := s.rm.ListByRowID(ctx, rowID)
	if err != nil {
		return nil, err
	}
	for _, ref := range media {
		row.Media = append(row.Media, *ref)
	}

	return row, nil
}

func (s *rowService) List(ctx context.Context, userID int64) ([]*models.ContentRow, error) {
	rows, err := s.rr.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Error getting rows")
	}
	return rows, nil
}

// Cancel returns a scheduled row to draft. Rejected once the row is due or
// a live lease exists, in which case the row races to a terminal state.
func (s *rowService) Cancel(ctx context.Context, userID int64, rowID string) error {
	row, err := s.ownedRow(ctx, userID, rowID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if row.LeaseOwner != "" && row.LeaseExpiresAt != nil && row.LeaseExpiresAt.After(now) {
		err = errors.New("row is being executed and can no longer be cancelled")
		slog.Info(err.Error())
		return err
	}

	if err := lifecycle.Transition(row, models.RowStatusDraft, now); err != nil {
		slog.Info(err.Error())
		return err
	}

	return s.rr.MarkDraft(ctx, rowID)
}

// Edit updates the caption of a scheduled row before its due instant.
func (s *rowService) Edit(ctx context.Context, userID int64, edit *transfer.RowEdit) error {
	if edit == nil || edit.Caption == "" {
		err := errors.New("caption cannot be empty")
		slog.Info(err.Error())
		return err
	}

	row, err := s.ownedRow(ctx, userID, edit.RowID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if row.Status == models.RowStatusScheduled {
		if err := lifecycle.Transition(row, models.RowStatusScheduled, now); err != nil {
			slog.Info(err.Error())
			return err
		}
	} else if row.Status != models.RowStatusDraft && row.Status != models.RowStatusReady {
		err = fmt.Errorf("%w: cannot edit a %s row", lifecycle.ErrInvalidTransition, row.Status)
		slog.Info(err.Error())
		return err
	}

	return s.rr.UpdateCaption(ctx, edit.RowID, edit.Caption)
}

func (s *rowService) Remove(ctx context.Context, userID int64, rowID string) error {
	if _, err := s.ownedRow(ctx, userID, rowID); err != nil {
		return err
	}

	if err := s.rm.RemoveByRowID(ctx, rowID); err != nil {
		return fmt.Errorf("Error removing row media")
	}
	if err := s.rr.Remove(ctx, rowID); err != nil {
		return fmt.Errorf("Error removing row")
	}

	return nil
}

func (s *rowService) ownedRow(ctx context.Context, userID int64, rowID string) (*models.ContentRow, error) {
	if userID == 0 {
		err := errors.New("User is not valid")
		slog.Info(err.Error())
		return nil, err
	}
	if rowID == "" {
		err := errors.New("row id is not valid")
		slog.Info(err.Error())
		return nil, err
	}

	isValid, err := s.rr.CheckByUserID(ctx, rowID, userID)
	if err != nil {
		return nil, err
	}
	if !isValid {
		err = errors.New("Row doesn't exist")
		slog.Info(err.Error())
		return nil, err
	}

	return s.rr.GetByID(ctx, rowID)
}

func (s *rowService) checkAccount(ctx context.Context, accountID, userID int64) error {
	exists, err := s.ac.CheckByUserID(ctx, accountID, userID)
	if err != nil {
		return fmt.Errorf("error checking social account %d: %w", accountID, err)
	}
	if !exists {
		return fmt.Errorf("social account %d does not exist", accountID)
	}
	return nil
}

func (s *rowService) limitsFor(ctx context.Context, accountID int64) cfg.PlatformLimits {
	acc, err := s.ac.GetByID(ctx, accountID)
	if err == nil && acc != nil && acc.Platform == "facebook" {
		return s.cfg.Facebook
	}
	return s.cfg.Instagram
}
