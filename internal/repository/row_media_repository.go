package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postpilot/postpilot/internal/models"
)

type RowMediaRepository interface {
	Create(ctx context.Context, tx *sql.Tx, ref *models.MediaRef) error
	ListByRowID(ctx context.Context, rowID string) ([]*models.MediaRef, error)
	ReplaceForRow(ctx context.Context, rowID string, refs []models.MediaRef) error
	RemoveByRowID(ctx context.Context, rowID string) error
}

type rowMediaRepository struct {
	db *sql.DB
}

func NewRowMediaRepository(db *sql.DB) RowMediaRepository {
	return &rowMediaRepository{db: db}
}

func (r *rowMediaRepository) Create(ctx context.Context, tx *sql.Tx, ref *models.MediaRef) error {
	query := `
		INSERT INTO row_media (row_id, url, media_type, display_order)
		VALUES ($1, $2, $3, $4)
	`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, ref.RowID, ref.URL, ref.MediaType, ref.DisplayOrder)
	} else {
		_, err = r.db.ExecContext(ctx, query, ref.RowID, ref.URL, ref.MediaType, ref.DisplayOrder)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *rowMediaRepository) ListByRowID(ctx context.Context, rowID string) ([]*models.MediaRef, error) {
	query := `SELECT row_id, url, media_type, display_order, created_at
		FROM row_media WHERE row_id = $1 ORDER BY display_order`

	rows, err := r.db.QueryContext(ctx, query, rowID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var refs []*models.MediaRef
	for rows.Next() {
		var ref models.MediaRef
		err := rows.Scan(&ref.RowID, &ref.URL, &ref.MediaType, &ref.DisplayOrder, &ref.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		refs = append(refs, &ref)
	}
	return refs, rows.Err()
}

// ReplaceForRow swaps a row's media set atomically; the resolver uses it
// when it fills in generated media.
func (r *rowMediaRepository) ReplaceForRow(ctx context.Context, rowID string, refs []models.MediaRef) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM row_media WHERE row_id = $1`, rowID); err != nil {
		tx.Rollback()
		slog.Info(err.Error())
		return err
	}

	for _, ref := range refs {
		ref.RowID = rowID
		if err := r.Create(ctx, tx, &ref); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func (r *rowMediaRepository) RemoveByRowID(ctx context.Context, rowID string) error {
	query := `DELETE FROM row_media WHERE row_id = $1`
	_, err := r.db.ExecContext(ctx, query, rowID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
