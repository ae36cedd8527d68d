package service

import (
	"context"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	server "github.com/charadev96/dchat/internal/server/domain"
	shared "github.com/charadev96/dchat/internal/shared/domain"
)

// SessionSink receives the session key of every accepted request. It is
// the hand-off point to whatever keys the chat transport.
type SessionSink interface {
	Deliver(ctx context.Context, req server.ConnectionRequest, link server.SecureLink, key server.SessionKey) error
}

// LogSessionSink records accepted sessions by key fingerprint and wipes
// the key.
type LogSessionSink struct {
	Logger *zerolog.Logger
}

func (s LogSessionSink) Deliver(ctx context.Context, req server.ConnectionRequest, link server.SecureLink, key server.SessionKey) error {
	if s.Logger != nil {
		s.Logger.Info().
			Str("request", req.ID.String()).
			Str("token", link.Token).
			Str("key", key.Fingerprint()).
			Msg("session key ready")
	}
	key.Wipe()
	return nil
}

// AdmissionService is the host side of the admission flow: it issues
// pins, admits requests presenting one of them and builds the link for
// every accepted request.
type AdmissionService struct {
	Pins     *PinAuthority
	Registry *Registry
	Links    *LinkBuilder
	Issued   server.PinRepository
	HostKey  *rsa.PublicKey
	Sink     SessionSink
	TXRunner shared.TransactionRunner
	Logger   *zerolog.Logger

	// SingleUsePins makes a pin unusable after its first admitted request.
	SingleUsePins bool
}

func (s *AdmissionService) IssuePin(ctx context.Context) (server.Pin, error) {
	pin, err := s.Pins.Generate()
	if err != nil {
		return server.Pin{}, err
	}
	if err := s.Issued.Save(ctx, pin); err != nil {
		return server.Pin{}, err
	}
	s.logger().Info().
		Time("expires", s.Pins.ExpiresAt(pin)).
		Msg("issued pin")
	return pin, nil
}

// SubmitRequest admits requester if pin was issued here and is still
// valid.
func (s *AdmissionService) SubmitRequest(ctx context.Context, requester string, pin server.Pin) (server.ConnectionRequest, error) {
	if !s.Pins.IsValid(pin) {
		return server.ConnectionRequest{}, fmt.Errorf(
			"%w: valid until %s",
			shared.ErrPinExpired, s.Pins.ExpiresAt(pin).Format(time.RFC3339),
		)
	}

	var req server.ConnectionRequest
	err := s.TXRunner.Exec(ctx, func(ctx context.Context) error {
		issued, err := s.Issued.GetByIssuedAt(ctx, pin.IssuedAt)
		if errors.Is(err, shared.ErrNotExist) {
			return shared.ErrPinMismatch
		}
		if err != nil {
			return err
		}
		if subtle.ConstantTimeEq(int32(issued.Value), int32(pin.Value)) == 0 {
			return shared.ErrPinMismatch
		}

		if s.SingleUsePins {
			if err := s.Issued.Consume(ctx, pin.IssuedAt, s.Pins.now()); err != nil {
				return err
			}
		}

		req, err = s.Registry.Submit(ctx, requester, pin)
		return err
	})
	if err != nil {
		s.logger().Warn().
			Err(err).
			Str("requester", requester).
			Msg("connection request refused")
		return server.ConnectionRequest{}, err
	}
	return req, nil
}

// Accept builds a link for the request and accepts it. The link is built
// first so that a failure leaves the request pending.
func (s *AdmissionService) Accept(ctx context.Context, id uuid.UUID) (server.ConnectionRequest, server.SecureLink, error) {
	link, key, err := s.Links.Build(s.HostKey)
	if err != nil {
		return server.ConnectionRequest{}, server.SecureLink{}, err
	}

	req, err := s.Registry.AcceptWithLink(ctx, id, link)
	if err != nil {
		key.Wipe()
		return server.ConnectionRequest{}, server.SecureLink{}, err
	}

	if s.Sink != nil {
		if err := s.Sink.Deliver(ctx, req, link, key); err != nil {
			return req, link, fmt.Errorf("failed to hand over session key: %w", err)
		}
	} else {
		key.Wipe()
	}
	return req, link, nil
}

func (s *AdmissionService) Reject(ctx context.Context, id uuid.UUID) (server.ConnectionRequest, error) {
	return s.Registry.Reject(ctx, id)
}

func (s *AdmissionService) Get(ctx context.Context, id uuid.UUID) (server.ConnectionRequest, error) {
	return s.Registry.Get(ctx, id)
}

func (s *AdmissionService) ListPending(ctx context.Context) ([]server.ConnectionRequest, error) {
	return s.Registry.ListPending(ctx)
}

// PurgeExpiredPins forgets pins that can no longer admit anyone.
func (s *AdmissionService) PurgeExpiredPins(ctx context.Context) (int64, error) {
	cutoff := s.Pins.now().Add(-s.Pins.validity())
	n, err := s.Issued.DeleteIssuedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger().Debug().
			Int64("count", n).
			Msg("purged expired pins")
	}
	return n, nil
}

func (s *AdmissionService) logger() *zerolog.Logger {
	if s.Logger == nil {
		return s.Registry.logger()
	}
	return s.Logger
}
