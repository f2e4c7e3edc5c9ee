package models

import "time"

const (
	CategoryLodging   = "lodging"
	CategoryTransport = "transport"
)

// Traveller is one person on a reservation. Exactly one traveller is
// expected to carry the leader flag; the leader's contact fields are the
// delivery targets for confirmation notices.
type Traveller struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	IsLeader  bool   `json:"is_leader"`
}

func (t Traveller) FullName() string {
	if t.LastName == "" {
		return t.FirstName
	}
	return t.FirstName + " " + t.LastName
}

// ServiceDetail describes one purchased service on the reservation.
// Category selects the voucher template (lodging vs transport).
type ServiceDetail struct {
	Category    string    `json:"category"`
	Name        string    `json:"name"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date,omitempty"`
	Origin      string    `json:"origin,omitempty"`
	Destination string    `json:"destination,omitempty"`
	RoomType    string    `json:"room_type,omitempty"`
}

// Reservation is the payload handed to the delivery pipeline when a
// booking transaction completes. It is owned by the booking subsystem
// and read-only here.
type Reservation struct {
	BookingID          int64           `json:"booking_id"`
	ReservationNumber  string          `json:"reservation_number"`
	ConfirmationNumber string          `json:"confirmation_number,omitempty"`
	Travellers         []Traveller     `json:"travellers"`
	Services           []ServiceDetail `json:"services,omitempty"`
	TotalAmount        float64         `json:"total_amount,omitempty"`
	Currency           string          `json:"currency,omitempty"`
	CreatedAt          time.Time       `json:"created_at,omitempty"`
}

// Leader returns the traveller flagged as group leader, or nil when the
// payload carries none. When more than one traveller is flagged, the
// first one wins.
func (r *Reservation) Leader() *Traveller {
	for i := range r.Travellers {
		if r.Travellers[i].IsLeader {
			return &r.Travellers[i]
		}
	}
	return nil
}

// PrimaryCategory returns the category of the first service, used for
// voucher template selection. Empty when the reservation has no services.
func (r *Reservation) PrimaryCategory() string {
	if len(r.Services) == 0 {
		return ""
	}
	return r.Services[0].Category
}
