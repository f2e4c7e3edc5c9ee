package models

import "time"

const (
	JobStatusWaiting   = "waiting"
	JobStatusActive    = "active"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// JobTypeSendConfirmation is the only job type the pipeline processes today.
const JobTypeSendConfirmation = "send_booking_confirmation"

// DeliveryJob represents one queued "notify this completed transaction"
// unit of work. Failed jobs are parked, never deleted; completed jobs are
// trimmed down to a bounded number of recent rows.
type DeliveryJob struct {
	ID                int64      `json:"id"`
	JobType           string     `json:"job_type"`
	TransactionID     string     `json:"transaction_id"`
	BookingID         int64      `json:"booking_id"`
	ReservationNumber string     `json:"reservation_number"`
	Payload           string     `json:"payload"`
	Status            string     `json:"status"`
	AttemptCount      int        `json:"attempt_count"`
	MaxAttempts       int        `json:"max_attempts"`
	LastError         *string    `json:"last_error"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at"`
	ProcessedAt       *time.Time `json:"processed_at"`
	NextRetryAt       *time.Time `json:"next_retry_at"`
}
