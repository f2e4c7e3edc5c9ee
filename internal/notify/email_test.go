package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"rezerva/internal/artifact"
	"rezerva/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEmailReservation() *models.Reservation {
	return &models.Reservation{
		BookingID:          42,
		ReservationNumber:  "PX041346",
		ConfirmationNumber: "CNF-7781",
		Travellers: []models.Traveller{
			{FirstName: "Ahmet", Email: "ahmet@x.com", Phone: "+905551234567", IsLeader: true},
		},
	}
}

func newEmailChannel(t *testing.T, apiURL string) *EmailChannel {
	t.Helper()
	logger := zerolog.Nop()
	ch, err := NewEmailChannel(EmailConfig{
		APIURL:     apiURL,
		APIKey:     "test-key",
		From:       "noreply@rezerva.example",
		FromName:   "Rezerva",
		AgencyName: "Rezerva Travel",
		Timeout:    2 * time.Second,
	}, &logger)
	require.NoError(t, err)
	return ch
}

func TestEmailChannel_Success(t *testing.T) {
	var gotReq emailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "tx-1", r.Header.Get("X-Transaction-Id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "queued", "message_id": "em-100"})
	}))
	defer server.Close()

	ch := newEmailChannel(t, server.URL)
	art := &artifact.Artifact{Buffer: []byte("%PDF fake"), Path: "PX041346.pdf"}

	outcome := ch.Deliver(context.Background(), testEmailReservation(), "tx-1", art)

	assert.True(t, outcome.Success)
	assert.Equal(t, "em-100", outcome.ProviderID)
	assert.Equal(t, "ahmet@x.com", outcome.Recipient)

	assert.Equal(t, "ahmet@x.com", gotReq.To)
	assert.Contains(t, gotReq.Subject, "PX041346")
	assert.Contains(t, gotReq.HTML, "PX041346")
	assert.Contains(t, gotReq.HTML, "Ahmet")
	require.Len(t, gotReq.Attachments, 1)
	assert.Equal(t, "confirmation_PX041346.pdf", gotReq.Attachments[0].Filename)
}

func TestEmailChannel_NoAttachment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req emailRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Empty(t, req.Attachments)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "sent"})
	}))
	defer server.Close()

	ch := newEmailChannel(t, server.URL)
	outcome := ch.Deliver(context.Background(), testEmailReservation(), "tx-2", nil)
	assert.True(t, outcome.Success)
}

func TestEmailChannel_MissingRecipientSkipsTransport(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	ch := newEmailChannel(t, server.URL)

	// No leader at all.
	res := testEmailReservation()
	res.Travellers[0].IsLeader = false
	outcome := ch.Deliver(context.Background(), res, "tx-3", nil)
	assert.False(t, outcome.Success)
	assert.False(t, outcome.Transient)
	assert.Contains(t, outcome.Message, "recipient not found")

	// Leader without an email address.
	res = testEmailReservation()
	res.Travellers[0].Email = ""
	outcome = ch.Deliver(context.Background(), res, "tx-4", nil)
	assert.False(t, outcome.Success)
	assert.False(t, outcome.Transient)
	assert.Contains(t, outcome.Message, "recipient not found")

	assert.Zero(t, calls.Load(), "unresolvable recipient must not reach the provider")
}

func TestEmailChannel_ProviderErrorClasses(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"server error is transient", http.StatusServiceUnavailable, `upstream down`, true},
		{"client rejection is terminal", http.StatusUnprocessableEntity, `{"error":"invalid address"}`, false},
		{"unknown provider status is terminal", http.StatusOK, `{"status":"bounced","error":"hard bounce"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			ch := newEmailChannel(t, server.URL)
			outcome := ch.Deliver(context.Background(), testEmailReservation(), "tx-5", nil)

			assert.False(t, outcome.Success)
			assert.Equal(t, tt.transient, outcome.Transient)
			assert.NotEmpty(t, outcome.Message)
		})
	}
}

func TestEmailChannel_TimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	logger := zerolog.Nop()
	ch, err := NewEmailChannel(EmailConfig{
		APIURL:  server.URL,
		APIKey:  "test-key",
		From:    "noreply@rezerva.example",
		Timeout: 20 * time.Millisecond,
	}, &logger)
	require.NoError(t, err)

	outcome := ch.Deliver(context.Background(), testEmailReservation(), "tx-6", nil)
	assert.False(t, outcome.Success)
	assert.True(t, outcome.Transient)
}

func TestNewEmailChannel_Validation(t *testing.T) {
	logger := zerolog.Nop()

	_, err := NewEmailChannel(EmailConfig{APIKey: "k", From: "a@b.c"}, &logger)
	assert.Error(t, err)

	_, err = NewEmailChannel(EmailConfig{APIURL: "http://x", From: "a@b.c"}, &logger)
	assert.Error(t, err)

	_, err = NewEmailChannel(EmailConfig{APIURL: "http://x", APIKey: "k"}, &logger)
	assert.Error(t, err)
}
