package admission

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	server "github.com/charadev96/dchat/internal/server/domain"
	shared "github.com/charadev96/dchat/internal/shared/domain"
	"github.com/charadev96/dchat/internal/shared/log"
)

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{shared.ErrNotExist, codes.NotFound},
		{shared.ErrRequestExists, codes.AlreadyExists},
		{shared.ErrInvalidTransition, codes.FailedPrecondition},
		{shared.ErrMalformedPin, codes.InvalidArgument},
		{shared.ErrMissingRequester, codes.InvalidArgument},
		{shared.ErrPinExpired, codes.PermissionDenied},
		{shared.ErrPinMismatch, codes.PermissionDenied},
		{shared.ErrPinConsumed, codes.PermissionDenied},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{context.Canceled, codes.Canceled},
		{errors.New("disk on fire"), codes.Internal},
	}
	for _, tc := range cases {
		wrapped := fmt.Errorf("failed to do something: %w", tc.err)
		if got := status.Code(toStatus(log.Nop(), wrapped)); got != tc.code {
			t.Errorf("%v: want %s, got %s", tc.err, tc.code, got)
		}
	}

	st := status.Convert(toStatus(log.Nop(), errors.New("/var/lib/dchat/dchat.db: disk I/O error")))
	if st.Message() != "internal error" {
		t.Fatalf("internal error leaked detail: %q", st.Message())
	}
}

func TestRequestMessage(t *testing.T) {
	at := time.Date(2026, 10, 15, 9, 2, 0, 0, time.UTC)
	req := server.ConnectionRequest{
		ID:        uuid.MustParse("0b9a3b8e-4c52-5d1a-9f0e-8a1b2c3d4e5f"),
		Requester: "alice",
		Pin:       482913,
		IssuedAt:  at.Add(-2 * time.Minute),
		Status:    server.StatusAccepted,
		CreatedAt: at,
		DecidedAt: at.Add(time.Minute),
		Link:      "https://dchat.com/chat/00112233445566778899aabbccddeeff?key=AA",
	}
	r, err := requestMessage(req)
	if err != nil {
		t.Fatalf("requestMessage: %v", err)
	}
	if r.ID != req.ID.String() || r.Status != "accepted" || r.Requester != "alice" {
		t.Fatalf("unexpected message %+v", r)
	}
	if !r.CreatedAt.Equal(at) || !r.DecidedAt.Equal(req.DecidedAt) || r.Link != req.Link {
		t.Fatalf("unexpected message %+v", r)
	}
}
