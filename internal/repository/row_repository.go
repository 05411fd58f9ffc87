package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpilot/postpilot/internal/models"
)

// RowRepository is the row store for the scheduling pipeline, including the
// leasing primitive the execution engine relies on.
type RowRepository interface {
	Create(ctx context.Context, tx *sql.Tx, row *models.ContentRow) error
	GetByID(ctx context.Context, id string) (*models.ContentRow, error)
	GetByUserID(ctx context.Context, userID int64) ([]*models.ContentRow, error)
	CheckByUserID(ctx context.Context, rowID string, userID int64) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ContentRow, error)
	UpdateCaption(ctx context.Context, id, caption string) error
	MarkScheduled(ctx context.Context, id string, dueAt time.Time) error
	MarkDraft(ctx context.Context, id string) error
	AcquireLease(ctx context.Context, id, owner string, until, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, id, owner string) error
	Reschedule(ctx context.Context, id string, dueAt time.Time, attempts int) error
	MarkPublished(ctx context.Context, id, platformPostID string) error
	MarkFailed(ctx context.Context, id, errorMessage string, attempts int) error
	Remove(ctx context.Context, id string) error
}

type rowRepository struct {
	db *sql.DB
}

func NewRowRepository(db *sql.DB) RowRepository {
	return &rowRepository{db: db}
}

const rowColumns = `id, user_id, account_id, post_type, caption, image_prompt, carousel_count,
	scheduled_date, scheduled_time, due_at, status, error_message, platform_post_id,
	attempt_count, lease_owner, lease_expires_at, created_at, updated_at`

func (r *rowRepository) Create(ctx context.Context, tx *sql.Tx, row *models.ContentRow) error {
	query := `
		INSERT INTO content_rows (id, user_id, account_id, post_type, caption, image_prompt,
			carousel_count, scheduled_date, scheduled_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var err error
	args := []any{row.ID, row.UserID, row.AccountID, row.PostType, row.Caption,
		row.ImagePrompt, row.CarouselCount, row.ScheduledDate, row.ScheduledTime, row.Status}

	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func scanRow(scanner interface{ Scan(...any) error }) (*models.ContentRow, error) {
	var row models.ContentRow
	var dueAt, leaseExpiresAt sql.NullTime
	var leaseOwner sql.NullString

	err := scanner.Scan(&row.ID, &row.UserID, &row.AccountID, &row.PostType, &row.Caption,
		&row.ImagePrompt, &row.CarouselCount, &row.ScheduledDate, &row.ScheduledTime,
		&dueAt, &row.Status, &row.ErrorMessage, &row.PlatformPostID,
		&row.AttemptCount, &leaseOwner, &leaseExpiresAt, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if dueAt.Valid {
		row.DueAt = dueAt.Time
	}
	if leaseOwner.Valid {
		row.LeaseOwner = leaseOwner.String
	}
	if leaseExpiresAt.Valid {
		row.LeaseExpiresAt = &leaseExpiresAt.Time
	}
	return &row, nil
}

func (r *rowRepository) GetByID(ctx context.Context, id string) (*models.ContentRow, error) {
	query := `SELECT ` + rowColumns + ` FROM content_rows WHERE id = $1`
	row, err := scanRow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return row, nil
}

func (r *rowRepository) GetByUserID(ctx context.Context, userID int64) ([]*models.ContentRow, error) {
	query := `SELECT ` + rowColumns + ` FROM content_rows WHERE user_id = $1 ORDER BY scheduled_date, scheduled_time`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []*models.ContentRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *rowRepository) CheckByUserID(ctx context.Context, rowID string, userID int64) (bool, error) {
	query := `SELECT 1 FROM content_rows WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, rowID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// ListDue returns scheduled rows whose due instant has passed and that are
// not currently leased by a live owner.
func (r *rowRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ContentRow, error) {
	query := `SELECT ` + rowColumns + `
		FROM content_rows
		WHERE status = $1 AND due_at <= $2
		  AND (lease_owner IS NULL OR lease_expires_at < $2)
		ORDER BY due_at
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, models.RowStatusScheduled, now, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []*models.ContentRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *rowRepository) UpdateCaption(ctx context.Context, id, caption string) error {
	query := `UPDATE content_rows SET caption = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, caption, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *rowRepository) MarkScheduled(ctx context.Context, id string, dueAt time.Time) error {
	query := `
		UPDATE content_rows
		SET status = $1, due_at = $2, error_message = '', updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.RowStatusScheduled, dueAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *rowRepository) MarkDraft(ctx context.Context, id string) error {
	query := `
		UPDATE content_rows
		SET status = $1, due_at = NULL, lease_owner = NULL, lease_expires_at = NULL, updated_at = $2
		WHERE id = $3
	`
	_, err := r.db.ExecContext(ctx, query, models.RowStatusDraft, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// AcquireLease claims a row for execution. The claim succeeds only when no
// live lease exists, so a second poll cycle or a second engine instance
// observes zero affected rows and walks away.
func (r *rowRepository) AcquireLease(ctx context.Context, id, owner string, until, now time.Time) (bool, error) {
	query := `
		UPDATE content_rows
		SET lease_owner = $1, lease_expires_at = $2, updated_at = $3
		WHERE id = $4 AND status = $5
		  AND (lease_owner IS NULL OR lease_expires_at < $3)
	`
	result, err := r.db.ExecContext(ctx, query, owner, until, now, id, models.RowStatusScheduled)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *rowRepository) ReleaseLease(ctx context.Context, id, owner string) error {
	query := `
		UPDATE content_rows
		SET lease_owner = NULL, lease_expires_at = NULL, updated_at = $1
		WHERE id = $2 AND lease_owner = $3
	`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id, owner)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Reschedule pushes a leased row to a later due instant after a recoverable
// failure and releases the lease in the same statement.
func (r *rowRepository) Reschedule(ctx context.Context, id string, dueAt time.Time, attempts int) error {
	query := `
		UPDATE content_rows
		SET due_at = $1, attempt_count = $2, lease_owner = NULL, lease_expires_at = NULL, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, dueAt, attempts, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *rowRepository) MarkPublished(ctx context.Context, id, platformPostID string) error {
	query := `
		UPDATE content_rows
		SET status = $1, platform_post_id = $2, error_message = '',
			lease_owner = NULL, lease_expires_at = NULL, updated_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(ctx, query, models.RowStatusPublished, platformPostID, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *rowRepository) MarkFailed(ctx context.Context, id, errorMessage string, attempts int) error {
	query := `
		UPDATE content_rows
		SET status = $1, error_message = $2, attempt_count = $3,
			lease_owner = NULL, lease_expires_at = NULL, updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query, models.RowStatusFailed, errorMessage, attempts, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *rowRepository) Remove(ctx context.Context, id string) error {
	query := `DELETE FROM content_rows WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
