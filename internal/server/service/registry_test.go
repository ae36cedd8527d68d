package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	server "github.com/charadev96/dchat/internal/server/domain"
	shared "github.com/charadev96/dchat/internal/shared/domain"
)

func TestRegistry_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := server.Pin{Value: 482913, IssuedAt: t0}

	f.clock.Set(t0.Add(29 * time.Minute))
	if !f.pins.IsValid(pin) {
		t.Fatal("pin should be valid 29 minutes after issue")
	}
	f.clock.Set(t0.Add(31 * time.Minute))
	if f.pins.IsValid(pin) {
		t.Fatal("pin should be expired 31 minutes after issue")
	}

	if _, err := f.registry.Submit(ctx, "alice", pin); !errors.Is(err, shared.ErrPinExpired) {
		t.Fatalf("want ErrPinExpired, got %v", err)
	}
	if _, err := f.registry.Get(ctx, server.RequestID("alice", pin)); !errors.Is(err, shared.ErrNotExist) {
		t.Fatalf("expired submission left a record behind: %v", err)
	}
	pending, err := f.registry.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("want no pending requests, got %d", len(pending))
	}

	f.clock.Set(t0.Add(5 * time.Minute))
	req, err := f.registry.Submit(ctx, "alice", pin)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.Status != server.StatusPending {
		t.Fatalf("want pending, got %s", req.Status)
	}
	if req.Requester != "alice" || req.Pin != 482913 || !req.IssuedAt.Equal(t0) {
		t.Fatalf("unexpected request %+v", req)
	}

	accepted, err := f.registry.Accept(ctx, req.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != server.StatusAccepted {
		t.Fatalf("want accepted, got %s", accepted.Status)
	}

	if _, err := f.registry.Reject(ctx, req.ID); !errors.Is(err, shared.ErrInvalidTransition) {
		t.Fatalf("want ErrInvalidTransition, got %v", err)
	}
	got, err := f.registry.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != server.StatusAccepted {
		t.Fatalf("status changed after failed reject: %s", got.Status)
	}
}

func TestRegistry_TerminalStates(t *testing.T) {
	ctx := context.Background()
	for _, first := range []server.RequestStatus{server.StatusAccepted, server.StatusRejected} {
		f := newFixture(t)
		req, err := f.registry.Submit(ctx, "bob", server.Pin{Value: 111111, IssuedAt: t0})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if first == server.StatusAccepted {
			_, err = f.registry.Accept(ctx, req.ID)
		} else {
			_, err = f.registry.Reject(ctx, req.ID)
		}
		if err != nil {
			t.Fatalf("first decision: %v", err)
		}

		if _, err := f.registry.Accept(ctx, req.ID); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Fatalf("%s then accept: want ErrInvalidTransition, got %v", first, err)
		}
		if _, err := f.registry.Reject(ctx, req.ID); !errors.Is(err, shared.ErrInvalidTransition) {
			t.Fatalf("%s then reject: want ErrInvalidTransition, got %v", first, err)
		}
		got, err := f.registry.Get(ctx, req.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != first {
			t.Fatalf("want %s, got %s", first, got.Status)
		}
		if got.DecidedAt.IsZero() {
			t.Fatal("decided request has no decision time")
		}
	}
}

func TestRegistry_UnknownRequest(t *testing.T) {
	f := newFixture(t)
	if _, err := f.registry.Accept(context.Background(), uuid.New()); !errors.Is(err, shared.ErrNotExist) {
		t.Fatalf("want ErrNotExist, got %v", err)
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pin := server.Pin{Value: 222222, IssuedAt: t0}
	if _, err := f.registry.Submit(ctx, "carol", pin); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.registry.Submit(ctx, "carol", pin); !errors.Is(err, shared.ErrRequestExists) {
		t.Fatalf("want ErrRequestExists, got %v", err)
	}
	// The same pin presented by someone else is a different request.
	if _, err := f.registry.Submit(ctx, "dave", pin); err != nil {
		t.Fatalf("Submit for second requester: %v", err)
	}
	pending, err := f.registry.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("want 2 pending requests, got %d", len(pending))
	}
}

func TestRegistry_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.registry.Submit(ctx, "erin", server.Pin{Value: 99999, IssuedAt: t0}); !errors.Is(err, shared.ErrMalformedPin) {
		t.Fatalf("want ErrMalformedPin, got %v", err)
	}
	if _, err := f.registry.Submit(ctx, "", server.Pin{Value: 123456, IssuedAt: t0}); !errors.Is(err, shared.ErrMissingRequester) {
		t.Fatalf("want ErrMissingRequester, got %v", err)
	}
}

func TestRegistry_ConcurrentDecisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.registry.Submit(ctx, "frank", server.Pin{Value: 654321, IssuedAt: t0})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		winner  server.RequestStatus
		badErrs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(accept bool) {
			defer wg.Done()
			var (
				got server.ConnectionRequest
				err error
			)
			if accept {
				got, err = f.registry.Accept(ctx, req.ID)
			} else {
				got, err = f.registry.Reject(ctx, req.ID)
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
				winner = got.Status
			case !errors.Is(err, shared.ErrInvalidTransition):
				badErrs = append(badErrs, err)
			}
		}(i%2 == 0)
	}
	wg.Wait()

	if len(badErrs) > 0 {
		t.Fatalf("unexpected errors: %v", badErrs)
	}
	if wins != 1 {
		t.Fatalf("want exactly one successful decision, got %d", wins)
	}
	got, err := f.registry.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != winner {
		t.Fatalf("stored status %s differs from winner %s", got.Status, winner)
	}
}
