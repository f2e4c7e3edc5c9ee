package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rezerva/internal/models"
)

const jobColumns = `id, job_type, transaction_id, booking_id, reservation_number, payload, status,
              attempt_count, max_attempts, last_error, created_at, started_at, processed_at, next_retry_at`

// CreateDeliveryJob persists a new job in waiting state and fills in its id.
func (db *DB) CreateDeliveryJob(ctx context.Context, job *models.DeliveryJob) error {
	query := `INSERT INTO delivery_jobs (job_type, transaction_id, booking_id, reservation_number, payload,
              status, attempt_count, max_attempts, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	if job.Status == "" {
		job.Status = models.JobStatusWaiting
	}
	result, err := db.ExecContext(ctx, query,
		job.JobType,
		job.TransactionID,
		job.BookingID,
		job.ReservationNumber,
		job.Payload,
		job.Status,
		job.AttemptCount,
		job.MaxAttempts,
		job.LastError,
		now,
		job.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.CreatedAt = now

	return nil
}

// ClaimDueJobs atomically moves up to limit due waiting jobs to active and
// returns them. A job claimed here is invisible to other claimers until it
// is marked completed, failed or re-waiting.
func (db *DB) ClaimDueJobs(ctx context.Context, limit int) ([]models.DeliveryJob, error) {
	query := `SELECT ` + jobColumns + `
              FROM delivery_jobs
              WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.JobStatusWaiting, time.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due delivery jobs: %w", err)
	}
	candidates, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	claimed := make([]models.DeliveryJob, 0, len(candidates))
	for i := range candidates {
		ok, err := db.claimJob(ctx, &candidates[i])
		if err != nil {
			return claimed, err
		}
		if ok {
			claimed = append(claimed, candidates[i])
		}
	}
	return claimed, nil
}

// ClaimDeliveryJob claims one specific job by id. Returns (nil, nil) when
// the job is not currently claimable (already active, completed or parked).
func (db *DB) ClaimDeliveryJob(ctx context.Context, id int64) (*models.DeliveryJob, error) {
	job, err := db.GetDeliveryJob(ctx, id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if job.Status != models.JobStatusWaiting {
		return nil, nil
	}
	if job.NextRetryAt != nil && job.NextRetryAt.After(time.Now()) {
		return nil, nil
	}
	ok, err := db.claimJob(ctx, job)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return job, nil
}

func (db *DB) claimJob(ctx context.Context, job *models.DeliveryJob) (bool, error) {
	now := time.Now()
	result, err := db.ExecContext(ctx,
		`UPDATE delivery_jobs
         SET status = ?, started_at = ?, attempt_count = attempt_count + 1
         WHERE id = ? AND status = ?`,
		models.JobStatusActive, now, job.ID, models.JobStatusWaiting,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim delivery job %d: %w", job.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result for job %d: %w", job.ID, err)
	}
	if affected == 0 {
		return false, nil
	}
	job.Status = models.JobStatusActive
	job.StartedAt = &now
	job.AttemptCount++
	return true, nil
}

// GetDeliveryJob loads one job by id.
func (db *DB) GetDeliveryJob(ctx context.Context, id int64) (*models.DeliveryJob, error) {
	query := `SELECT ` + jobColumns + ` FROM delivery_jobs WHERE id = ?`
	row := db.QueryRowContext(ctx, query, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get delivery job %d: %w", id, err)
	}
	return job, nil
}

// UpdateDeliveryJobStatus moves a job to a new status. Jobs going back to
// waiting keep their attempt count and get a backoff deadline; terminal
// transitions stamp processed_at.
func (db *DB) UpdateDeliveryJobStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []interface{}
	now := time.Now()

	switch status {
	case models.JobStatusWaiting:
		query = `UPDATE delivery_jobs SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []interface{}{status, nullableString(errMsg), nextRetryAt, id}
	case models.JobStatusCompleted, models.JobStatusFailed:
		query = `UPDATE delivery_jobs SET status = ?, last_error = ?, next_retry_at = NULL, processed_at = ? WHERE id = ?`
		args = []interface{}{status, nullableString(errMsg), &now, id}
	default:
		query = `UPDATE delivery_jobs SET status = ?, last_error = ? WHERE id = ?`
		args = []interface{}{status, nullableString(errMsg), id}
	}

	_, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update delivery job status: %w", err)
	}
	return nil
}

// RequeueDeliveryJob puts a parked job back in the waiting state with a
// fresh attempt budget. Used by the admin tool for manual remediation.
func (db *DB) RequeueDeliveryJob(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE delivery_jobs
         SET status = ?, attempt_count = 0, last_error = NULL, next_retry_at = NULL, processed_at = NULL
         WHERE id = ? AND status = ?`,
		models.JobStatusWaiting, id, models.JobStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue delivery job %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetFailedDeliveryJobs returns all parked jobs, newest first. Parked jobs
// are retained without bound for manual inspection.
func (db *DB) GetFailedDeliveryJobs(ctx context.Context) ([]models.DeliveryJob, error) {
	query := `SELECT ` + jobColumns + ` FROM delivery_jobs WHERE status = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, models.JobStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed delivery jobs: %w", err)
	}
	return scanJobs(rows)
}

// ReclaimStaleJobs returns active jobs older than the given age to the
// waiting state so a crashed worker's claims are redelivered.
func (db *DB) ReclaimStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := db.ExecContext(ctx,
		`UPDATE delivery_jobs SET status = ?, next_retry_at = NULL WHERE status = ? AND started_at <= ?`,
		models.JobStatusWaiting, models.JobStatusActive, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale delivery jobs: %w", err)
	}
	return result.RowsAffected()
}

// TrimCompletedJobs deletes completed jobs beyond the keep newest rows.
// Failed jobs are never trimmed.
func (db *DB) TrimCompletedJobs(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	query := `DELETE FROM delivery_jobs
              WHERE status = ? AND id NOT IN (
                  SELECT id FROM delivery_jobs WHERE status = ?
                  ORDER BY processed_at DESC, id DESC LIMIT ?)`
	if _, err := db.ExecContext(ctx, query, models.JobStatusCompleted, models.JobStatusCompleted, keep); err != nil {
		return fmt.Errorf("failed to trim completed delivery jobs: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*models.DeliveryJob, error) {
	var j models.DeliveryJob
	err := row.Scan(
		&j.ID, &j.JobType, &j.TransactionID, &j.BookingID, &j.ReservationNumber, &j.Payload, &j.Status,
		&j.AttemptCount, &j.MaxAttempts, &j.LastError, &j.CreatedAt, &j.StartedAt, &j.ProcessedAt, &j.NextRetryAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]models.DeliveryJob, error) {
	defer rows.Close()

	var jobs []models.DeliveryJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
