package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"rezerva/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(transactionID string) *models.DeliveryJob {
	return &models.DeliveryJob{
		JobType:           models.JobTypeSendConfirmation,
		TransactionID:     transactionID,
		BookingID:         42,
		ReservationNumber: "PX041346",
		Payload:           `{"booking_id":42,"reservation_number":"PX041346"}`,
		MaxAttempts:       3,
	}
}

func TestDeliveryJobLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	job := newTestJob("tx-1")
	require.NoError(t, db.CreateDeliveryJob(ctx, job))
	assert.NotZero(t, job.ID)
	assert.Equal(t, models.JobStatusWaiting, job.Status)

	claimed, err := db.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, models.JobStatusActive, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].AttemptCount)
	assert.NotNil(t, claimed[0].StartedAt)

	// An active job is not claimable again.
	again, err := db.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, db.UpdateDeliveryJobStatus(ctx, claimed[0].ID, models.JobStatusCompleted, "", nil))
	got, err := db.GetDeliveryJob(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, got.Status)
	assert.NotNil(t, got.ProcessedAt)
}

func TestClaimDeliveryJob_ByID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	job := newTestJob("tx-2")
	require.NoError(t, db.CreateDeliveryJob(ctx, job))

	claimed, err := db.ClaimDeliveryJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, models.JobStatusActive, claimed.Status)

	// Second claim of the same job yields nothing.
	second, err := db.ClaimDeliveryJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, second)

	// Unknown job id is not an error, just not claimable.
	missing, err := db.ClaimDeliveryJob(ctx, 99999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestClaimDueJobs_RespectsBackoff(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	job := newTestJob("tx-3")
	require.NoError(t, db.CreateDeliveryJob(ctx, job))

	claimed, err := db.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	future := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateDeliveryJobStatus(ctx, job.ID, models.JobStatusWaiting, "transient fault", &future))

	due, err := db.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "job with future backoff deadline must not be claimable")

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.UpdateDeliveryJobStatus(ctx, job.ID, models.JobStatusWaiting, "transient fault", &past))

	due, err = db.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 2, due[0].AttemptCount, "attempt count accumulates across claims")
	require.NotNil(t, due[0].LastError)
	assert.Equal(t, "transient fault", *due[0].LastError)
}

func TestGetFailedDeliveryJobs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	job := newTestJob("tx-4")
	require.NoError(t, db.CreateDeliveryJob(ctx, job))
	require.NoError(t, db.UpdateDeliveryJobStatus(ctx, job.ID, models.JobStatusFailed, "provider exploded", nil))

	failed, err := db.GetFailedDeliveryJobs(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.NotNil(t, failed[0].LastError)
	assert.Equal(t, "provider exploded", *failed[0].LastError)
}

func TestRequeueDeliveryJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	job := newTestJob("tx-5")
	require.NoError(t, db.CreateDeliveryJob(ctx, job))
	require.NoError(t, db.UpdateDeliveryJobStatus(ctx, job.ID, models.JobStatusFailed, "dead", nil))

	require.NoError(t, db.RequeueDeliveryJob(ctx, job.ID))

	got, err := db.GetDeliveryJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusWaiting, got.Status)
	assert.Zero(t, got.AttemptCount)
	assert.Nil(t, got.LastError)

	// Only parked jobs can be requeued.
	err = db.RequeueDeliveryJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestReclaimStaleJobs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	job := newTestJob("tx-6")
	require.NoError(t, db.CreateDeliveryJob(ctx, job))
	claimed, err := db.ClaimDueJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// Fresh active jobs are left alone.
	n, err := db.ReclaimStaleJobs(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.ReclaimStaleJobs(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := db.GetDeliveryJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusWaiting, got.Status)
}

func TestTrimCompletedJobs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		job := newTestJob(fmt.Sprintf("tx-trim-%d", i))
		require.NoError(t, db.CreateDeliveryJob(ctx, job))
		require.NoError(t, db.UpdateDeliveryJobStatus(ctx, job.ID, models.JobStatusCompleted, "", nil))
	}
	parked := newTestJob("tx-parked")
	require.NoError(t, db.CreateDeliveryJob(ctx, parked))
	require.NoError(t, db.UpdateDeliveryJobStatus(ctx, parked.ID, models.JobStatusFailed, "boom", nil))

	require.NoError(t, db.TrimCompletedJobs(ctx, 2))

	var completed int
	row := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivery_jobs WHERE status = ?`, models.JobStatusCompleted)
	require.NoError(t, row.Scan(&completed))
	assert.Equal(t, 2, completed)

	// Parked jobs are never trimmed.
	failed, err := db.GetFailedDeliveryJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}
