package service

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"

	server "github.com/charadev96/dchat/internal/server/domain"
	"github.com/charadev96/dchat/internal/shared/clock"
)

// PinAuthority issues pins and tells whether they are still inside their
// validity window. It keeps no record of what it issued.
type PinAuthority struct {
	Validity time.Duration
	Clock    clock.Clock
	Rand     io.Reader
}

func (a *PinAuthority) Generate() (server.Pin, error) {
	rnd := a.Rand
	if rnd == nil {
		rnd = rand.Reader
	}
	n, err := rand.Int(rnd, big.NewInt(server.PinMax-server.PinMin+1))
	if err != nil {
		return server.Pin{}, fmt.Errorf("failed to generate pin: %w", err)
	}
	return server.Pin{
		Value:    int(n.Int64()) + server.PinMin,
		IssuedAt: a.now(),
	}, nil
}

// IsValid reports whether pin is at most Validity old. The check is made
// against the clock on every call.
func (a *PinAuthority) IsValid(pin server.Pin) bool {
	return a.now().Sub(pin.IssuedAt) <= a.validity()
}

// ExpiresAt is the last instant at which pin is still valid.
func (a *PinAuthority) ExpiresAt(pin server.Pin) time.Time {
	return pin.IssuedAt.Add(a.validity())
}

func (a *PinAuthority) validity() time.Duration {
	if a.Validity <= 0 {
		return server.DefaultPinValidity
	}
	return a.Validity
}

func (a *PinAuthority) now() time.Time {
	if a.Clock == nil {
		return time.Now()
	}
	return a.Clock.Now()
}
