package inject

import (
	"time"

	"github.com/google/uuid"
)

// Status classifies how one delivery attempt ended.
type Status string

const (
	// StatusDelivered means the text reached the target.
	StatusDelivered Status = "delivered"
	// StatusDeclined means the backend refused the target without trying.
	StatusDeclined Status = "declined"
	// StatusFailed means the backend tried and the attempt errored.
	StatusFailed Status = "failed"
	// StatusTimedOut means the attempt exceeded its deadline.
	StatusTimedOut Status = "timed_out"
	// StatusAborted means the session or policy cancelled the delivery.
	StatusAborted Status = "aborted"
)

// Outcome is the result of one backend attempt or one whole delivery.
type Outcome struct {
	Method  Method
	Status  Status
	Reason  string
	Latency time.Duration
}

// Delivered reports terminal success.
func (o Outcome) Delivered() bool {
	return o.Status == StatusDelivered
}

// Unit is one flushed piece of transcript text awaiting delivery.
type Unit struct {
	ID        uuid.UUID
	Text      string
	FlushedAt time.Time
}

// NewUnit stamps text with identity and flush time.
func NewUnit(text string) Unit {
	return Unit{
		ID:        uuid.New(),
		Text:      text,
		FlushedAt: time.Now(),
	}
}
