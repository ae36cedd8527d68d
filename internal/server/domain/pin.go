package domain

import (
	"context"
	"fmt"
	"time"
)

const (
	PinMin = 100000
	PinMax = 999999

	DefaultPinValidity = 30 * time.Minute
)

// Pin is a six digit admission secret relayed to the requester out of band.
type Pin struct {
	Value    int
	IssuedAt time.Time
}

func (p Pin) String() string {
	return fmt.Sprintf("%06d", p.Value)
}

func ValidPinValue(v int) bool {
	return v >= PinMin && v <= PinMax
}

// IssuedPin is a pin recorded by the host that issued it.
type IssuedPin struct {
	Pin
	ConsumedAt time.Time
}

func (p IssuedPin) Consumed() bool {
	return !p.ConsumedAt.IsZero()
}

type PinRepository interface {
	Save(ctx context.Context, pin Pin) error
	GetByIssuedAt(ctx context.Context, issuedAt time.Time) (IssuedPin, error)
	Consume(ctx context.Context, issuedAt time.Time, at time.Time) error
	DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
