package notify

import (
	"context"
	"errors"

	"rezerva/internal/artifact"
	"rezerva/internal/models"
)

// Outcome is the result of one channel attempt. Channels never return
// errors for business-level failure; every call settles into an Outcome.
// Transient marks failures that a later execution of the whole job could
// plausibly resolve (timeouts, provider 5xx); terminal failures (missing
// recipient, provider rejection) leave it false.
type Outcome struct {
	Success    bool
	Message    string
	Recipient  string
	ProviderID string
	Transient  bool
}

// Channel is one independent notification transport. Implementations are
// stateless per call and mutually order-insensitive.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, res *models.Reservation, transactionID string, art *artifact.Artifact) Outcome
}

var errNoLeader = errors.New("no traveller flagged as leader")

// leader resolves the lead traveller from the payload. Exactly one is
// expected; resolution failure is a terminal channel outcome.
func leader(res *models.Reservation) (*models.Traveller, error) {
	if res == nil {
		return nil, errors.New("reservation payload is missing")
	}
	t := res.Leader()
	if t == nil {
		return nil, errNoLeader
	}
	return t, nil
}

func terminalFailure(msg string) Outcome {
	return Outcome{Success: false, Message: msg, Transient: false}
}

func transientFailure(msg string) Outcome {
	return Outcome{Success: false, Message: msg, Transient: true}
}
