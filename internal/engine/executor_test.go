package engine

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/postpilot/postpilot/configs"
	"github.com/postpilot/postpilot/internal/models"
	"github.com/postpilot/postpilot/internal/service"
)

// memRowStore is an in-memory RowRepository with the same lease CAS
// semantics as the SQL store.
type memRowStore struct {
	mu   sync.Mutex
	rows map[string]*models.ContentRow
}

func newMemRowStore(rows ...*models.ContentRow) *memRowStore {
	s := &memRowStore{rows: make(map[string]*models.ContentRow)}
	for _, r := range rows {
		s.rows[r.ID] = r
	}
	return s
}

func (s *memRowStore) get(id string) *models.ContentRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id]
}

func (s *memRowStore) Create(ctx context.Context, tx *sql.Tx, row *models.ContentRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.ID] = row
	return nil
}

func (s *memRowStore) GetByID(ctx context.Context, id string) (*models.ContentRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (s *memRowStore) GetByUserID(ctx context.Context, userID int64) ([]*models.ContentRow, error) {
	return nil, nil
}

func (s *memRowStore) CheckByUserID(ctx context.Context, rowID string, userID int64) (bool, error) {
	return true, nil
}

func (s *memRowStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.ContentRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.ContentRow
	for _, row := range s.rows {
		if row.Status != models.RowStatusScheduled || row.DueAt.After(now) {
			continue
		}
		if row.LeaseOwner != "" && row.LeaseExpiresAt != nil && !row.LeaseExpiresAt.Before(now) {
			continue
		}
		copied := *row
		due = append(due, &copied)
	}
	return due, nil
}

func (s *memRowStore) UpdateCaption(ctx context.Context, id, caption string) error { return nil }

func (s *memRowStore) MarkScheduled(ctx context.Context, id string, dueAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Status = models.RowStatusScheduled
	row.DueAt = dueAt
	row.ErrorMessage = ""
	return nil
}

func (s *memRowStore) MarkDraft(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Status = models.RowStatusDraft
	row.LeaseOwner = ""
	row.LeaseExpiresAt = nil
	return nil
}

func (s *memRowStore) AcquireLease(ctx context.Context, id, owner string, until, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.Status != models.RowStatusScheduled {
		return false, nil
	}
	if row.LeaseOwner != "" && row.LeaseExpiresAt != nil && !row.LeaseExpiresAt.Before(now) {
		return false, nil
	}
	row.LeaseOwner = owner
	expires := until
	row.LeaseExpiresAt = &expires
	return true, nil
}

func (s *memRowStore) ReleaseLease(ctx context.Context, id, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok && row.LeaseOwner == owner {
		row.LeaseOwner = ""
		row.LeaseExpiresAt = nil
	}
	return nil
}

func (s *memRowStore) Reschedule(ctx context.Context, id string, dueAt time.Time, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.DueAt = dueAt
	row.AttemptCount = attempts
	row.LeaseOwner = ""
	row.LeaseExpiresAt = nil
	return nil
}

func (s *memRowStore) MarkPublished(ctx context.Context, id, platformPostID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Status = models.RowStatusPublished
	row.PlatformPostID = platformPostID
	row.ErrorMessage = ""
	row.LeaseOwner = ""
	row.LeaseExpiresAt = nil
	return nil
}

func (s *memRowStore) MarkFailed(ctx context.Context, id, errorMessage string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.rows[id]
	row.Status = models.RowStatusFailed
	row.ErrorMessage = errorMessage
	row.AttemptCount = attempts
	row.LeaseOwner = ""
	row.LeaseExpiresAt = nil
	return nil
}

func (s *memRowStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

type memRowMedia struct{}

func (memRowMedia) Create(ctx context.Context, tx *sql.Tx, ref *models.MediaRef) error { return nil }
func (memRowMedia) ListByRowID(ctx context.Context, rowID string) ([]*models.MediaRef, error) {
	return nil, nil
}
func (memRowMedia) ReplaceForRow(ctx context.Context, rowID string, refs []models.MediaRef) error {
	return nil
}
func (memRowMedia) RemoveByRowID(ctx context.Context, rowID string) error { return nil }

type memAccounts struct {
	account *models.SocialAccount
}

func (m *memAccounts) GetByID(ctx context.Context, id int64) (*models.SocialAccount, error) {
	return m.account, nil
}
func (m *memAccounts) CheckByUserID(ctx context.Context, accountID, userID int64) (bool, error) {
	return true, nil
}
func (m *memAccounts) ListByUserID(ctx context.Context, userID int64) ([]*models.SocialAccount, error) {
	return nil, nil
}

type memAttempts struct {
	mu       sync.Mutex
	attempts []*models.PublishAttempt
}

func (m *memAttempts) Create(ctx context.Context, attempt *models.PublishAttempt) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempt)
	return int64(len(m.attempts)), nil
}

func (m *memAttempts) ListByRowID(ctx context.Context, rowID string) ([]*models.PublishAttempt, error) {
	return m.attempts, nil
}

type noopResolver struct {
	err error
}

func (r *noopResolver) Resolve(ctx context.Context, row *models.ContentRow) error { return r.err }

type countingAdapter struct {
	mu       sync.Mutex
	calls    int
	err      error
	postID   string
	errUntil int // fail the first N calls, 0 = use err unconditionally
}

func (a *countingAdapter) Publish(ctx context.Context, account *models.SocialAccount, postType, caption string, media []models.MediaRef) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil && (a.errUntil == 0 || a.calls <= a.errUntil) {
		return "", a.err
	}
	if a.postID == "" {
		return "ig_123", nil
	}
	return a.postID, nil
}

func testConfig() cfg.Config {
	c := cfg.Config{}
	c.Scheduler.LeaseTTL = 5 * time.Minute
	c.Scheduler.MaxAttempts = 3
	c.Scheduler.BackoffBase = time.Minute
	c.Scheduler.ResolveTimeout = time.Minute
	c.Scheduler.PublishTimeout = time.Minute
	return c
}

func scheduledRow(id string) *models.ContentRow {
	return &models.ContentRow{
		ID:        id,
		UserID:    1,
		AccountID: 7,
		PostType:  models.PostTypePhoto,
		Caption:   "hello",
		Status:    models.RowStatusScheduled,
		DueAt:     time.Now().UTC().Add(-time.Minute),
	}
}

func connectedAccount() *models.SocialAccount {
	return &models.SocialAccount{ID: 7, UserID: 1, Platform: "instagram", AccountID: "ig_acc", IsConnected: true}
}

func newTestExecutor(store *memRowStore, resolver service.MediaResolver, adapter service.PlatformAdapter, attempts *memAttempts) *Executor {
	return NewExecutor(testConfig(), store, memRowMedia{}, &memAccounts{account: connectedAccount()}, attempts, resolver, adapter)
}

func TestExecuteRowPublishes(t *testing.T) {
	store := newMemRowStore(scheduledRow("row_1"))
	adapter := &countingAdapter{}
	attempts := &memAttempts{}
	e := newTestExecutor(store, &noopResolver{}, adapter, attempts)

	result := e.ExecuteRow(context.Background(), "row_1")

	require.True(t, result.Success, "error: %s", result.Error)
	assert.Equal(t, "ig_123", result.PlatformPostID)

	row := store.get("row_1")
	assert.Equal(t, models.RowStatusPublished, row.Status)
	assert.Equal(t, "ig_123", row.PlatformPostID)
	assert.Empty(t, row.LeaseOwner, "lease released on terminal state")
	require.Len(t, attempts.attempts, 1)
	assert.Equal(t, 1, attempts.attempts[0].AttemptNo)
}

func TestExecuteRowDoublePollSingleExecution(t *testing.T) {
	store := newMemRowStore(scheduledRow("row_1"))
	adapter := &countingAdapter{}
	e := newTestExecutor(store, &noopResolver{}, adapter, &memAttempts{})

	const workers = 8
	var wg sync.WaitGroup
	successes := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			successes <- e.ExecuteRow(context.Background(), "row_1").Success
		}()
	}
	wg.Wait()
	close(successes)

	succeeded := 0
	for ok := range successes {
		if ok {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one worker wins the lease")
	assert.Equal(t, 1, adapter.calls, "adapter must be called exactly once")
	assert.Equal(t, models.RowStatusPublished, store.get("row_1").Status)
}

func TestExecuteRowRecoverableRetryThenFailed(t *testing.T) {
	store := newMemRowStore(scheduledRow("row_1"))
	adapter := &countingAdapter{err: &service.PublishError{Message: "rate limited", Recoverable: true}}
	attempts := &memAttempts{}
	e := newTestExecutor(store, &noopResolver{}, adapter, attempts)

	// Attempts 1 and 2 defer with growing backoff.
	for want := 1; want <= 2; want++ {
		before := time.Now().UTC()
		result := e.ExecuteRow(context.Background(), "row_1")

		assert.True(t, result.Deferred, "attempt %d should defer", want)
		row := store.get("row_1")
		assert.Equal(t, models.RowStatusScheduled, row.Status)
		assert.Equal(t, want, row.AttemptCount)
		wantBackoff := time.Minute << (want - 1)
		assert.True(t, row.DueAt.Sub(before) >= wantBackoff-time.Second,
			"attempt %d: due pushed by at least %s, got %s", want, wantBackoff, row.DueAt.Sub(before))
		assert.Empty(t, row.LeaseOwner, "lease released for the next cycle")
	}

	// Attempt 3 exhausts the budget.
	result := e.ExecuteRow(context.Background(), "row_1")
	assert.False(t, result.Success)
	assert.False(t, result.Deferred)

	row := store.get("row_1")
	assert.Equal(t, models.RowStatusFailed, row.Status)
	assert.Equal(t, 3, row.AttemptCount)
	assert.Contains(t, row.ErrorMessage, "rate limited")
	assert.Len(t, attempts.attempts, 3)

	// A stale activation after the terminal state does nothing.
	result = e.ExecuteRow(context.Background(), "row_1")
	assert.False(t, result.Success)
	assert.Equal(t, 3, adapter.calls)
}

func TestExecuteRowRecoversAfterTransientFailure(t *testing.T) {
	store := newMemRowStore(scheduledRow("row_1"))
	adapter := &countingAdapter{err: &service.PublishError{Message: "flaky", Recoverable: true}, errUntil: 1}
	e := newTestExecutor(store, &noopResolver{}, adapter, &memAttempts{})

	assert.True(t, e.ExecuteRow(context.Background(), "row_1").Deferred)
	assert.True(t, e.ExecuteRow(context.Background(), "row_1").Success)
	assert.Equal(t, models.RowStatusPublished, store.get("row_1").Status)
}

func TestExecuteRowNonRecoverableFailsImmediately(t *testing.T) {
	store := newMemRowStore(scheduledRow("row_1"))
	adapter := &countingAdapter{err: &service.PublishError{Message: "invalid token"}}
	e := newTestExecutor(store, &noopResolver{}, adapter, &memAttempts{})

	result := e.ExecuteRow(context.Background(), "row_1")
	assert.False(t, result.Success)

	row := store.get("row_1")
	assert.Equal(t, models.RowStatusFailed, row.Status)
	assert.Equal(t, 1, row.AttemptCount, "no retries for non-recoverable errors")
	assert.Equal(t, 1, adapter.calls)
}

func TestExecuteRowResolverConfigurationError(t *testing.T) {
	store := newMemRowStore(scheduledRow("row_1"))
	adapter := &countingAdapter{}
	resolver := &noopResolver{err: &service.ConfigurationError{Reason: "media storage is not configured"}}
	e := newTestExecutor(store, resolver, adapter, &memAttempts{})

	result := e.ExecuteRow(context.Background(), "row_1")
	assert.False(t, result.Success)
	assert.Equal(t, 0, adapter.calls, "publish must not run without media")

	row := store.get("row_1")
	assert.Equal(t, models.RowStatusFailed, row.Status)
	assert.Contains(t, row.ErrorMessage, "not configured")
}

func TestExecuteRowSkipsNonScheduled(t *testing.T) {
	row := scheduledRow("row_1")
	row.Status = models.RowStatusDraft
	store := newMemRowStore(row)
	adapter := &countingAdapter{}
	e := newTestExecutor(store, &noopResolver{}, adapter, &memAttempts{})

	result := e.ExecuteRow(context.Background(), "row_1")
	assert.False(t, result.Success)
	assert.Equal(t, 0, adapter.calls)
	assert.Equal(t, models.RowStatusDraft, store.get("row_1").Status)
}

func TestExecuteRowMissingRow(t *testing.T) {
	store := newMemRowStore()
	e := newTestExecutor(store, &noopResolver{}, &countingAdapter{}, &memAttempts{})

	result := e.ExecuteRow(context.Background(), "nope")
	assert.False(t, result.Success)
	assert.Equal(t, "row not found", result.Error)
}

func TestExecuteRowDisconnectedAccount(t *testing.T) {
	store := newMemRowStore(scheduledRow("row_1"))
	adapter := &countingAdapter{}
	attempts := &memAttempts{}
	acc := connectedAccount()
	acc.IsConnected = false
	e := NewExecutor(testConfig(), store, memRowMedia{}, &memAccounts{account: acc}, attempts, &noopResolver{}, adapter)

	result := e.ExecuteRow(context.Background(), "row_1")
	assert.False(t, result.Success)
	assert.Equal(t, 0, adapter.calls)
	assert.Equal(t, models.RowStatusFailed, store.get("row_1").Status)
	assert.Contains(t, store.get("row_1").ErrorMessage, "not connected")
}

func TestSweepRunsDueRows(t *testing.T) {
	due := scheduledRow("row_due")
	future := scheduledRow("row_future")
	future.DueAt = time.Now().UTC().Add(time.Hour)
	store := newMemRowStore(due, future)
	adapter := &countingAdapter{}
	e := newTestExecutor(store, &noopResolver{}, adapter, &memAttempts{})

	NewSweep(store, e, 4).Run()

	assert.Equal(t, models.RowStatusPublished, store.get("row_due").Status)
	assert.Equal(t, models.RowStatusScheduled, store.get("row_future").Status)
	assert.Equal(t, 1, adapter.calls)
}

func TestSweepReclaimsExpiredLease(t *testing.T) {
	row := scheduledRow("row_1")
	owner := "crashed-worker"
	expired := time.Now().UTC().Add(-time.Minute)
	row.LeaseOwner = owner
	row.LeaseExpiresAt = &expired
	store := newMemRowStore(row)
	adapter := &countingAdapter{}
	e := newTestExecutor(store, &noopResolver{}, adapter, &memAttempts{})

	NewSweep(store, e, 4).Run()

	got := store.get("row_1")
	assert.Equal(t, models.RowStatusPublished, got.Status)
	assert.Equal(t, 1, adapter.calls)
}

func TestExecuteRowTimeoutIsRecoverable(t *testing.T) {
	store := newMemRowStore(scheduledRow("row_1"))
	adapter := &countingAdapter{err: context.DeadlineExceeded}
	e := newTestExecutor(store, &noopResolver{}, adapter, &memAttempts{})

	result := e.ExecuteRow(context.Background(), "row_1")
	assert.True(t, result.Deferred, "timeouts are transient: %s", result.Error)
	assert.Equal(t, models.RowStatusScheduled, store.get("row_1").Status)
}
