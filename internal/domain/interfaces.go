package domain

import (
	"context"
	"time"

	"rezerva/internal/models"
)

// JobRepository is the durable queue storage contract.
type JobRepository interface {
	CreateDeliveryJob(ctx context.Context, job *models.DeliveryJob) error
	ClaimDueJobs(ctx context.Context, limit int) ([]models.DeliveryJob, error)
	ClaimDeliveryJob(ctx context.Context, id int64) (*models.DeliveryJob, error)
	GetDeliveryJob(ctx context.Context, id int64) (*models.DeliveryJob, error)
	UpdateDeliveryJobStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	RequeueDeliveryJob(ctx context.Context, id int64) error
	GetFailedDeliveryJobs(ctx context.Context) ([]models.DeliveryJob, error)
	ReclaimStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	TrimCompletedJobs(ctx context.Context, keep int) error
}

// AttemptRepository is the append-only delivery audit log contract.
type AttemptRepository interface {
	RecordDeliveryAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	GetAttemptsByTransaction(ctx context.Context, transactionID string) ([]models.DeliveryAttempt, error)
	GetAttemptsByReservation(ctx context.Context, reservationNumber string) ([]models.DeliveryAttempt, error)
	GetAllAttempts(ctx context.Context) ([]models.DeliveryAttempt, error)
}

// BookingRepository is the thin booking-record boundary the pipeline
// writes its artifact bookkeeping through.
type BookingRepository interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, id int64, status string) error
	SetBookingArtifactPath(ctx context.Context, id int64, path string) error
	GetBookingArtifactPath(ctx context.Context, id int64) (string, error)
}

// DeliveryCache provides the idempotency markers and the fast artifact
// path lookup. Implementations may lose data (TTL, process restart); the
// database remains the source of truth.
type DeliveryCache interface {
	MarkEnqueued(ctx context.Context, transactionID string) (bool, error)
	ArtifactPath(ctx context.Context, bookingID int64) (string, error)
	SetArtifactPath(ctx context.Context, bookingID int64, path string) error
}

// EventPublisher publishes in-process domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Alerter reports parked jobs to operators. Best-effort only.
type Alerter interface {
	JobParked(ctx context.Context, job *models.DeliveryJob, reason string)
}

// Enqueuer accepts new delivery jobs for processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.DeliveryJob) error
}
