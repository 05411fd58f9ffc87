package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpilot/postpilot/internal/models"
)

func newMockRepo(t *testing.T) (RowRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRowRepository(db), mock
}

func rowMockColumns() []string {
	return []string{"id", "user_id", "account_id", "post_type", "caption", "image_prompt",
		"carousel_count", "scheduled_date", "scheduled_time", "due_at", "status",
		"error_message", "platform_post_id", "attempt_count", "lease_owner",
		"lease_expires_at", "created_at", "updated_at"}
}

func mockRowValues(id string, status string, dueAt time.Time) []driver.Value {
	now := time.Now()
	return []driver.Value{id, int64(1), int64(7), models.PostTypePhoto, "caption", "",
		0, "2026-08-20", "09:00", dueAt, status, "", "", 0, nil, nil, now, now}
}

func TestAcquireLeaseWinsOnAffectedRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	until := now.Add(5 * time.Minute)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE content_rows")).
		WithArgs("worker-a", until, now, "row_1", models.RowStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 1))

	leased, err := repo.AcquireLease(context.Background(), "row_1", "worker-a", until, now)
	require.NoError(t, err)
	assert.True(t, leased)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLeaseLosesWhenAlreadyHeld(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	until := now.Add(5 * time.Minute)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE content_rows")).
		WithArgs("worker-b", until, now, "row_1", models.RowStatusScheduled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	leased, err := repo.AcquireLease(context.Background(), "row_1", "worker-b", until, now)
	require.NoError(t, err)
	assert.False(t, leased, "a live lease must not be stolen")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueFiltersByStatusAndLease(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(rowMockColumns()).
		AddRow(mockRowValues("row_1", models.RowStatusScheduled, now.Add(-time.Minute))...).
		AddRow(mockRowValues("row_2", models.RowStatusScheduled, now.Add(-time.Hour))...)

	mock.ExpectQuery(regexp.QuoteMeta("lease_owner IS NULL OR lease_expires_at <")).
		WithArgs(models.RowStatusScheduled, now, 50).
		WillReturnRows(rows)

	due, err := repo.ListDue(context.Background(), now, 50)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "row_1", due[0].ID)
	assert.Equal(t, "row_2", due[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(rowMockColumns()))

	row, err := repo.GetByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestGetByIDScansLease(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Now().UTC()
	expires := now.Add(time.Minute)
	values := mockRowValues("row_1", models.RowStatusScheduled, now)
	values[14] = "worker-a" // lease_owner
	values[15] = expires    // lease_expires_at

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("row_1").
		WillReturnRows(sqlmock.NewRows(rowMockColumns()).AddRow(values...))

	row, err := repo.GetByID(context.Background(), "row_1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "worker-a", row.LeaseOwner)
	require.NotNil(t, row.LeaseExpiresAt)
	assert.WithinDuration(t, expires, *row.LeaseExpiresAt, time.Second)
}

func TestCreateInsertsDraft(t *testing.T) {
	repo, mock := newMockRepo(t)

	row := &models.ContentRow{
		ID:            "row_1",
		UserID:        1,
		AccountID:     7,
		PostType:      models.PostTypePhoto,
		Caption:       "c",
		ScheduledDate: "2026-08-20",
		ScheduledTime: "09:00",
		Status:        models.RowStatusDraft,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content_rows")).
		WithArgs(row.ID, row.UserID, row.AccountID, row.PostType, row.Caption,
			row.ImagePrompt, row.CarouselCount, row.ScheduledDate, row.ScheduledTime, row.Status).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Create(context.Background(), nil, row))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkPublishedClearsLease(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("lease_owner = NULL")).
		WithArgs(models.RowStatusPublished, "ig_123", sqlmock.AnyArg(), "row_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkPublished(context.Background(), "row_1", "ig_123"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailedStoresAttempts(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE content_rows")).
		WithArgs(models.RowStatusFailed, "publish failed", 3, sqlmock.AnyArg(), "row_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkFailed(context.Background(), "row_1", "publish failed", 3))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRescheduleReleasesLease(t *testing.T) {
	repo, mock := newMockRepo(t)

	dueAt := time.Now().UTC().Add(2 * time.Minute)
	mock.ExpectExec(regexp.QuoteMeta("lease_owner = NULL")).
		WithArgs(dueAt, 1, sqlmock.AnyArg(), "row_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Reschedule(context.Background(), "row_1", dueAt, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckByUserID(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM content_rows")).
		WithArgs("row_1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	owned, err := repo.CheckByUserID(context.Background(), "row_1", 1)
	require.NoError(t, err)
	assert.True(t, owned)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM content_rows")).
		WithArgs("row_1", int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	owned, err = repo.CheckByUserID(context.Background(), "row_1", 2)
	require.NoError(t, err)
	assert.False(t, owned)
}
