package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventTransactionCompleted = "transaction_completed"
	EventDeliveryParked       = "delivery_parked"
)

// TransactionCompletedPayload announces a completed booking transaction
// to the delivery pipeline.
type TransactionCompletedPayload struct {
	TransactionID     string `json:"transaction_id"`
	BookingID         int64  `json:"booking_id"`
	ReservationNumber string `json:"reservation_number"`
	Reservation       []byte `json:"reservation"`
}

// DeliveryParkedPayload announces a job that exhausted its retries.
type DeliveryParkedPayload struct {
	JobID             int64  `json:"job_id"`
	TransactionID     string `json:"transaction_id"`
	ReservationNumber string `json:"reservation_number"`
	AttemptCount      int    `json:"attempt_count"`
	LastError         string `json:"last_error,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
