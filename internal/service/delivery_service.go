package service

import (
	"context"
	"encoding/json"
	"fmt"

	"rezerva/internal/domain"
	"rezerva/internal/events"
	"rezerva/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DeliveryService is the boundary the booking subsystem calls when a
// transaction completes. It enqueues exactly one confirmation job per
// transaction and publishes the completion event; the booking flow itself
// is never blocked or rolled back by anything that happens downstream.
type DeliveryService struct {
	enqueuer domain.Enqueuer
	cache    domain.DeliveryCache
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewDeliveryService(enqueuer domain.Enqueuer, cache domain.DeliveryCache, eventBus domain.EventPublisher, logger *zerolog.Logger) *DeliveryService {
	return &DeliveryService{
		enqueuer: enqueuer,
		cache:    cache,
		eventBus: eventBus,
		logger:   logger,
	}
}

// NotifyTransactionCompleted enqueues the confirmation delivery job for a
// completed booking transaction. A missing transaction id gets one
// assigned. Duplicate calls within the idempotency window are absorbed.
func (s *DeliveryService) NotifyTransactionCompleted(ctx context.Context, transactionID string, res *models.Reservation) error {
	if res == nil {
		return fmt.Errorf("reservation payload is required")
	}
	if transactionID == "" {
		transactionID = uuid.NewString()
	}

	if s.cache != nil {
		fresh, err := s.cache.MarkEnqueued(ctx, transactionID)
		if err != nil {
			// Idempotency degrades to at-least-once when the cache is down.
			s.logger.Warn().Err(err).Str("transaction_id", transactionID).Msg("idempotency marker unavailable")
		} else if !fresh {
			s.logger.Info().Str("transaction_id", transactionID).Msg("confirmation already enqueued, skipping")
			return nil
		}
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode reservation payload: %w", err)
	}

	job := models.DeliveryJob{
		JobType:           models.JobTypeSendConfirmation,
		TransactionID:     transactionID,
		BookingID:         res.BookingID,
		ReservationNumber: res.ReservationNumber,
		Payload:           string(payload),
	}
	if err := s.enqueuer.Enqueue(ctx, &job); err != nil {
		return fmt.Errorf("enqueue confirmation job: %w", err)
	}

	if s.eventBus != nil {
		_ = s.eventBus.PublishJSON(events.EventTransactionCompleted, events.TransactionCompletedPayload{
			TransactionID:     transactionID,
			BookingID:         res.BookingID,
			ReservationNumber: res.ReservationNumber,
			Reservation:       payload,
		})
	}

	s.logger.Info().
		Str("transaction_id", transactionID).
		Int64("booking_id", res.BookingID).
		Str("reservation_number", res.ReservationNumber).
		Int64("job_id", job.ID).
		Msg("confirmation delivery enqueued")
	return nil
}
