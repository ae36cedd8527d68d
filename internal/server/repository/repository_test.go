package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	server "github.com/charadev96/dchat/internal/server/domain"
	"github.com/charadev96/dchat/internal/server/repository"
	shared "github.com/charadev96/dchat/internal/shared/domain"
	"github.com/charadev96/dchat/internal/shared/infra"
)

var t0 = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func openDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := infra.OpenSQLite(context.Background(), infra.MemoryDSN(uuid.NewString()))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRequestRepository_CreateGetDecide(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.NewBunRequestRepository(ctx, openDB(t))
	if err != nil {
		t.Fatalf("NewBunRequestRepository: %v", err)
	}

	pin := server.Pin{Value: 482913, IssuedAt: t0}
	req := server.ConnectionRequest{
		ID:        server.RequestID("alice", pin),
		Requester: "alice",
		Pin:       pin.Value,
		IssuedAt:  pin.IssuedAt,
		Status:    server.StatusPending,
		CreatedAt: t0.Add(time.Minute),
	}
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Create(ctx, req); !errors.Is(err, shared.ErrRequestExists) {
		t.Fatalf("want ErrRequestExists, got %v", err)
	}

	got, err := repo.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Requester != "alice" || got.Pin != 482913 || !got.IssuedAt.Equal(t0) || got.Status != server.StatusPending {
		t.Fatalf("unexpected request %+v", got)
	}
	if !got.DecidedAt.IsZero() || got.Link != "" {
		t.Fatalf("pending request carries a decision: %+v", got)
	}

	d := server.RequestDecision{
		From: server.StatusPending,
		To:   server.StatusAccepted,
		At:   t0.Add(2 * time.Minute),
		Link: "https://dchat.test/chat/0123456789abcdef0123456789abcdef?key=AAAA",
	}
	if err := repo.Decide(ctx, req.ID, d); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if err := repo.Decide(ctx, req.ID, d); !errors.Is(err, shared.ErrInvalidTransition) {
		t.Fatalf("second Decide: want ErrInvalidTransition, got %v", err)
	}
	if err := repo.Decide(ctx, uuid.New(), d); !errors.Is(err, shared.ErrNotExist) {
		t.Fatalf("unknown id: want ErrNotExist, got %v", err)
	}

	got, err = repo.GetByID(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != server.StatusAccepted || got.Link != d.Link || !got.DecidedAt.Equal(d.At) {
		t.Fatalf("decision not stored: %+v", got)
	}

	pending, err := repo.ListByStatus(ctx, server.StatusPending)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("want no pending requests, got %d", len(pending))
	}
	accepted, err := repo.ListByStatus(ctx, server.StatusAccepted)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(accepted) != 1 || accepted[0].ID != req.ID {
		t.Fatalf("want the accepted request listed, got %+v", accepted)
	}
}

func TestPinRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo, err := repository.NewBunPinRepository(ctx, openDB(t))
	if err != nil {
		t.Fatalf("NewBunPinRepository: %v", err)
	}

	first := server.Pin{Value: 111111, IssuedAt: t0}
	second := server.Pin{Value: 222222, IssuedAt: t0.Add(40 * time.Minute)}
	for _, p := range []server.Pin{first, second} {
		if err := repo.Save(ctx, p); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	got, err := repo.GetByIssuedAt(ctx, first.IssuedAt)
	if err != nil {
		t.Fatalf("GetByIssuedAt: %v", err)
	}
	if got.Value != first.Value || !got.IssuedAt.Equal(first.IssuedAt) || got.Consumed() {
		t.Fatalf("unexpected pin %+v", got)
	}

	if err := repo.Consume(ctx, first.IssuedAt, t0.Add(time.Minute)); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := repo.Consume(ctx, first.IssuedAt, t0.Add(2*time.Minute)); !errors.Is(err, shared.ErrPinConsumed) {
		t.Fatalf("want ErrPinConsumed, got %v", err)
	}
	if err := repo.Consume(ctx, t0.Add(time.Hour), t0); !errors.Is(err, shared.ErrNotExist) {
		t.Fatalf("want ErrNotExist, got %v", err)
	}
	got, err = repo.GetByIssuedAt(ctx, first.IssuedAt)
	if err != nil {
		t.Fatalf("GetByIssuedAt: %v", err)
	}
	if !got.Consumed() {
		t.Fatal("pin not marked consumed")
	}

	n, err := repo.DeleteIssuedBefore(ctx, t0.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("DeleteIssuedBefore: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 deleted pin, got %d", n)
	}
	if _, err := repo.GetByIssuedAt(ctx, first.IssuedAt); !errors.Is(err, shared.ErrNotExist) {
		t.Fatalf("want ErrNotExist, got %v", err)
	}
	if _, err := repo.GetByIssuedAt(ctx, second.IssuedAt); err != nil {
		t.Fatalf("later pin deleted: %v", err)
	}
}
