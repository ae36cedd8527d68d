package domain

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type RequestStatus int

const (
	StatusPending RequestStatus = iota
	StatusAccepted
	StatusRejected
)

func (s RequestStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	}
	return "status(" + strconv.Itoa(int(s)) + ")"
}

func ParseRequestStatus(s string) (RequestStatus, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "accepted":
		return StatusAccepted, nil
	case "rejected":
		return StatusRejected, nil
	}
	return 0, fmt.Errorf("unknown request status '%s'", s)
}

func (s RequestStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// ConnectionRequest is a snapshot of an admission request. Its status is
// owned by the registry; changing the snapshot changes nothing.
type ConnectionRequest struct {
	ID        uuid.UUID
	Requester string
	Pin       int
	IssuedAt  time.Time
	Status    RequestStatus
	CreatedAt time.Time
	DecidedAt time.Time
	Link      string
}

var requestNamespace = uuid.MustParse("6f1c2a4e-52b8-4d0b-9a53-2f7e1d3c8b90")

// RequestID derives the identity of a request from the requester and the
// pin it presented. The same tuple always yields the same ID.
func RequestID(requester string, pin Pin) uuid.UUID {
	name := fmt.Sprintf("%s\x00%d\x00%d", requester, pin.Value, pin.IssuedAt.UnixNano())
	return uuid.NewSHA1(requestNamespace, []byte(name))
}

// RequestDecision moves a request out of From. Link is stored alongside
// an acceptance when set.
type RequestDecision struct {
	From RequestStatus
	To   RequestStatus
	At   time.Time
	Link string
}

type RequestRepository interface {
	Create(ctx context.Context, req ConnectionRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (ConnectionRequest, error)
	ListByStatus(ctx context.Context, s RequestStatus) ([]ConnectionRequest, error)
	Decide(ctx context.Context, id uuid.UUID, d RequestDecision) error
}
