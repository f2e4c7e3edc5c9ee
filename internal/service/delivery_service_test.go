package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"rezerva/internal/events"
	"rezerva/internal/models"
	"rezerva/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []*models.DeliveryJob
	err  error
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, job *models.DeliveryJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, job)
	return nil
}

type failingCache struct{}

func (failingCache) MarkEnqueued(context.Context, string) (bool, error) {
	return false, errors.New("cache unavailable")
}
func (failingCache) ArtifactPath(context.Context, int64) (string, error) { return "", nil }
func (failingCache) SetArtifactPath(context.Context, int64, string) error {
	return nil
}

func testReservation() *models.Reservation {
	return &models.Reservation{
		BookingID:         42,
		ReservationNumber: "PX041346",
		Travellers: []models.Traveller{
			{FirstName: "Ahmet", Email: "ahmet@x.com", IsLeader: true},
		},
	}
}

func newService(enq *recordingEnqueuer) *DeliveryService {
	logger := zerolog.Nop()
	return NewDeliveryService(enq, repository.NewMemoryDeliveryCache(time.Hour), events.NewEventBus(), &logger)
}

func TestNotifyTransactionCompleted_EnqueuesJob(t *testing.T) {
	enq := &recordingEnqueuer{}
	svc := newService(enq)

	err := svc.NotifyTransactionCompleted(context.Background(), "tx-1", testReservation())
	require.NoError(t, err)

	require.Len(t, enq.jobs, 1)
	job := enq.jobs[0]
	assert.Equal(t, models.JobTypeSendConfirmation, job.JobType)
	assert.Equal(t, "tx-1", job.TransactionID)
	assert.Equal(t, int64(42), job.BookingID)
	assert.Equal(t, "PX041346", job.ReservationNumber)

	var decoded models.Reservation
	require.NoError(t, json.Unmarshal([]byte(job.Payload), &decoded))
	assert.Equal(t, "PX041346", decoded.ReservationNumber)
	require.NotNil(t, decoded.Leader())
}

func TestNotifyTransactionCompleted_DuplicateIsAbsorbed(t *testing.T) {
	enq := &recordingEnqueuer{}
	svc := newService(enq)
	ctx := context.Background()

	require.NoError(t, svc.NotifyTransactionCompleted(ctx, "tx-dup", testReservation()))
	require.NoError(t, svc.NotifyTransactionCompleted(ctx, "tx-dup", testReservation()))

	assert.Len(t, enq.jobs, 1, "second call within the idempotency window must be a no-op")
}

func TestNotifyTransactionCompleted_GeneratesTransactionID(t *testing.T) {
	enq := &recordingEnqueuer{}
	svc := newService(enq)

	require.NoError(t, svc.NotifyTransactionCompleted(context.Background(), "", testReservation()))

	require.Len(t, enq.jobs, 1)
	assert.NotEmpty(t, enq.jobs[0].TransactionID)
}

func TestNotifyTransactionCompleted_CacheFailureDegradesToAtLeastOnce(t *testing.T) {
	enq := &recordingEnqueuer{}
	logger := zerolog.Nop()
	svc := NewDeliveryService(enq, failingCache{}, nil, &logger)
	ctx := context.Background()

	require.NoError(t, svc.NotifyTransactionCompleted(ctx, "tx-1", testReservation()))
	require.NoError(t, svc.NotifyTransactionCompleted(ctx, "tx-1", testReservation()))

	// With the marker unavailable both calls go through.
	assert.Len(t, enq.jobs, 2)
}

func TestNotifyTransactionCompleted_RequiresReservation(t *testing.T) {
	svc := newService(&recordingEnqueuer{})
	err := svc.NotifyTransactionCompleted(context.Background(), "tx-1", nil)
	assert.Error(t, err)
}

func TestNotifyTransactionCompleted_EnqueueErrorPropagates(t *testing.T) {
	enq := &recordingEnqueuer{err: errors.New("disk full")}
	svc := newService(enq)

	err := svc.NotifyTransactionCompleted(context.Background(), "tx-1", testReservation())
	assert.ErrorContains(t, err, "enqueue confirmation job")
}

func TestNotifyTransactionCompleted_PublishesCompletionEvent(t *testing.T) {
	enq := &recordingEnqueuer{}
	bus := events.NewEventBus()
	logger := zerolog.Nop()
	svc := NewDeliveryService(enq, repository.NewMemoryDeliveryCache(time.Hour), bus, &logger)

	var got events.TransactionCompletedPayload
	bus.Subscribe(events.EventTransactionCompleted, func(e *events.Event) error {
		return json.Unmarshal(e.Payload, &got)
	})

	require.NoError(t, svc.NotifyTransactionCompleted(context.Background(), "tx-evt", testReservation()))

	assert.Equal(t, "tx-evt", got.TransactionID)
	assert.Equal(t, int64(42), got.BookingID)
	assert.NotEmpty(t, got.Reservation)
}
