package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	server "github.com/charadev96/dchat/internal/server/domain"
	shared "github.com/charadev96/dchat/internal/shared/domain"
)

// Registry tracks connection requests through pending → accepted or
// pending → rejected. Both outcomes are final.
type Registry struct {
	Pins     *PinAuthority
	Requests server.RequestRepository
	Logger   *zerolog.Logger

	locks keyedMutex
}

// Submit records a pending request for requester if pin is still valid.
// Nothing is stored when it fails.
func (r *Registry) Submit(ctx context.Context, requester string, pin server.Pin) (server.ConnectionRequest, error) {
	if requester == "" {
		return server.ConnectionRequest{}, shared.ErrMissingRequester
	}
	if !server.ValidPinValue(pin.Value) {
		return server.ConnectionRequest{}, shared.ErrMalformedPin
	}
	if !r.Pins.IsValid(pin) {
		return server.ConnectionRequest{}, fmt.Errorf(
			"%w: valid until %s",
			shared.ErrPinExpired, r.Pins.ExpiresAt(pin).Format(time.RFC3339),
		)
	}

	req := server.ConnectionRequest{
		ID:        server.RequestID(requester, pin),
		Requester: requester,
		Pin:       pin.Value,
		IssuedAt:  pin.IssuedAt,
		Status:    server.StatusPending,
		CreatedAt: r.Pins.now(),
	}
	if err := r.Requests.Create(ctx, req); err != nil {
		return server.ConnectionRequest{}, err
	}

	r.logger().Info().
		Str("request", req.ID.String()).
		Str("requester", requester).
		Msg("connection request pending")
	return req, nil
}

func (r *Registry) Accept(ctx context.Context, id uuid.UUID) (server.ConnectionRequest, error) {
	return r.decide(ctx, id, server.StatusAccepted, "")
}

// AcceptWithLink accepts the request and stores link with it in the same
// step, so an accepted request is never observed without its link.
func (r *Registry) AcceptWithLink(ctx context.Context, id uuid.UUID, link server.SecureLink) (server.ConnectionRequest, error) {
	return r.decide(ctx, id, server.StatusAccepted, link.URI)
}

func (r *Registry) Reject(ctx context.Context, id uuid.UUID) (server.ConnectionRequest, error) {
	return r.decide(ctx, id, server.StatusRejected, "")
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (server.ConnectionRequest, error) {
	return r.Requests.GetByID(ctx, id)
}

func (r *Registry) ListPending(ctx context.Context) ([]server.ConnectionRequest, error) {
	return r.Requests.ListByStatus(ctx, server.StatusPending)
}

func (r *Registry) decide(ctx context.Context, id uuid.UUID, to server.RequestStatus, link string) (server.ConnectionRequest, error) {
	unlock := r.locks.lock(id)
	defer unlock()

	d := server.RequestDecision{
		From: server.StatusPending,
		To:   to,
		At:   r.Pins.now(),
		Link: link,
	}
	if err := r.Requests.Decide(ctx, id, d); err != nil {
		return server.ConnectionRequest{}, err
	}

	req, err := r.Requests.GetByID(ctx, id)
	if err != nil {
		return server.ConnectionRequest{}, err
	}
	r.logger().Info().
		Str("request", id.String()).
		Str("requester", req.Requester).
		Str("status", to.String()).
		Msg("connection request decided")
	return req, nil
}

func (r *Registry) logger() *zerolog.Logger {
	if r.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return r.Logger
}

// keyedMutex hands out one mutex per request ID and forgets it once no
// caller holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id uuid.UUID) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uuid.UUID]*keyedLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &keyedLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
