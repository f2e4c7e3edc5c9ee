package models

import "time"

const (
	AttemptStatusSuccess = "SUCCESS"
	AttemptStatusFailed  = "FAILED"
)

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// DeliveryAttempt is one append-only audit row: the outcome of one
// channel for one worker execution. Rows are never updated in place;
// retries append further rows for the same transaction and channel.
type DeliveryAttempt struct {
	ID                int64     `json:"id"`
	TransactionID     string    `json:"transaction_id"`
	ReservationNumber string    `json:"reservation_number"`
	Channel           string    `json:"channel"`
	Recipient         string    `json:"recipient"`
	Status            string    `json:"status"`
	Message           string    `json:"message"`
	ProviderMessageID *string   `json:"provider_message_id"`
	CreatedAt         time.Time `json:"created_at"`
}
