package database

import (
	"context"
	"testing"

	"rezerva/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDeliveryAttempt_AppendOnly(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	providerID := "msg-123"
	first := &models.DeliveryAttempt{
		TransactionID:     "tx-1",
		ReservationNumber: "PX041346",
		Channel:           models.ChannelEmail,
		Recipient:         "ahmet@x.com",
		Status:            models.AttemptStatusSuccess,
		Message:           "email accepted by provider",
		ProviderMessageID: &providerID,
	}
	require.NoError(t, db.RecordDeliveryAttempt(ctx, first))
	assert.NotZero(t, first.ID)

	// A later execution appends a second row for the same channel.
	second := &models.DeliveryAttempt{
		TransactionID:     "tx-1",
		ReservationNumber: "PX041346",
		Channel:           models.ChannelEmail,
		Recipient:         "ahmet@x.com",
		Status:            models.AttemptStatusFailed,
		Message:           "provider error 503",
	}
	require.NoError(t, db.RecordDeliveryAttempt(ctx, second))

	attempts, err := db.GetAttemptsByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, models.AttemptStatusSuccess, attempts[0].Status)
	assert.Equal(t, models.AttemptStatusFailed, attempts[1].Status)
	require.NotNil(t, attempts[0].ProviderMessageID)
	assert.Equal(t, "msg-123", *attempts[0].ProviderMessageID)
	assert.Nil(t, attempts[1].ProviderMessageID)
}

func TestGetAttemptsByReservation(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	for _, channel := range []string{models.ChannelEmail, models.ChannelSMS} {
		attempt := &models.DeliveryAttempt{
			TransactionID:     "tx-2",
			ReservationNumber: "PX041346",
			Channel:           channel,
			Status:            models.AttemptStatusSuccess,
		}
		require.NoError(t, db.RecordDeliveryAttempt(ctx, attempt))
	}

	attempts, err := db.GetAttemptsByReservation(ctx, "PX041346")
	require.NoError(t, err)
	assert.Len(t, attempts, 2)

	none, err := db.GetAttemptsByReservation(ctx, "UNKNOWN")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetAllAttempts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, db.RecordDeliveryAttempt(ctx, &models.DeliveryAttempt{
		TransactionID: "tx-3", ReservationNumber: "AA000001", Channel: models.ChannelSMS, Status: models.AttemptStatusFailed,
	}))
	require.NoError(t, db.RecordDeliveryAttempt(ctx, &models.DeliveryAttempt{
		TransactionID: "tx-4", ReservationNumber: "AA000002", Channel: models.ChannelEmail, Status: models.AttemptStatusSuccess,
	}))

	all, err := db.GetAllAttempts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
