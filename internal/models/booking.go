package models

import "time"

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusCompleted = "completed"
)

// Booking is the thin slice of the booking record this pipeline touches:
// identity, reservation number and the artifact path bookkeeping column.
// Everything else about a booking lives in the booking subsystem.
type Booking struct {
	ID                int64     `json:"id"`
	ReservationNumber string    `json:"reservation_number"`
	Status            string    `json:"status"`
	ArtifactPath      *string   `json:"artifact_path"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
