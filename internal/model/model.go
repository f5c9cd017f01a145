package model

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// ProcessorType identifies which of the two upstream payment processors
// handled a payment. The default processor charges a lower fee and is
// always tried first.
type ProcessorType string

const (
	ProcessorDefault  ProcessorType = "DEFAULT"
	ProcessorFallback ProcessorType = "FALLBACK"
)

// KeySuffix returns the lowercase form used in shared-store key names,
// e.g. "payments:history:default".
func (t ProcessorType) KeySuffix() string {
	switch t {
	case ProcessorDefault:
		return "default"
	case ProcessorFallback:
		return "fallback"
	default:
		return ""
	}
}

// Valid reports whether t is one of the two known processor identities.
func (t ProcessorType) Valid() bool {
	return t == ProcessorDefault || t == ProcessorFallback
}

// Status is the in-memory lifecycle marker of a payment within a single
// dispatch. It is serialised back to the queue on re-enqueue so that
// retryCount survives, but nothing reads it across process restarts.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusRetry      Status = "RETRY"
)

// Amount is a monetary value. External readers of the queue and history
// lists require it to appear on the wire as a JSON number with exactly
// two fractional digits.
type Amount float64

func (a Amount) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(a), 'f', 2, 64), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("amount must be a number: %w", err)
	}
	*a = Amount(f)
	return nil
}

// Payment is the unit of work drained from the main queue. CorrelationID,
// Amount and RequestedAt never change after construction; ProcessorType is
// set exactly once, when a processor accepts the payment.
type Payment struct {
	CorrelationID uuid.UUID     `json:"correlationId"`
	Amount        Amount        `json:"amount"`
	RequestedAt   time.Time     `json:"requestedAt"`
	ProcessorType ProcessorType `json:"paymentProcessorType,omitempty"`
	Status        Status        `json:"status,omitempty"`
	RetryCount    int           `json:"retryCount"`
}

// NewPayment builds a pending payment with its timestamp normalised to UTC.
func NewPayment(correlationID uuid.UUID, amount Amount, requestedAt time.Time) Payment {
	return Payment{
		CorrelationID: correlationID,
		Amount:        amount,
		RequestedAt:   requestedAt.UTC(),
		Status:        StatusPending,
	}
}

// HealthView is one processor's readiness snapshot as published by the
// health-check leader. A missing view means "no fresh opinion".
type HealthView struct {
	Failing         bool      `json:"failing"`
	MinResponseTime int       `json:"minResponseTime"`
	LastCheckedAt   time.Time `json:"lastCheckedAt"`
}
