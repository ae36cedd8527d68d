package admission

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/charadev96/dchat/api/admission"
	server "github.com/charadev96/dchat/internal/server/domain"
	"github.com/charadev96/dchat/internal/server/service"
	shared "github.com/charadev96/dchat/internal/shared/domain"
)

// HostServiceHandler serves the host's own tooling. It must only be
// reachable locally.
type HostServiceHandler struct {
	Service *service.AdmissionService
	Logger  *zerolog.Logger
}

func (h *HostServiceHandler) IssuePin(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	pin, err := h.Service.IssuePin(ctx)
	if err != nil {
		return nil, toStatus(h.Logger, err)
	}
	return reply(h.Logger, api.Pin{
		Value:     pin.Value,
		IssuedAt:  pin.IssuedAt,
		ExpiresAt: h.Service.Pins.ExpiresAt(pin),
	})
}

func (h *HostServiceHandler) ListPendingRequests(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := h.Service.ListPending(ctx)
	if err != nil {
		return nil, toStatus(h.Logger, err)
	}
	var out api.RequestList
	for _, req := range list {
		r, err := requestMessage(req)
		if err != nil {
			return nil, toStatus(h.Logger, err)
		}
		out.Requests = append(out.Requests, r)
	}
	return reply(h.Logger, out)
}

func (h *HostServiceHandler) AcceptRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requestID(in)
	if err != nil {
		return nil, err
	}
	req, _, err := h.Service.Accept(ctx, id)
	if err != nil {
		return nil, toStatus(h.Logger, err)
	}
	return requestReply(h.Logger, req)
}

func (h *HostServiceHandler) RejectRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requestID(in)
	if err != nil {
		return nil, err
	}
	req, err := h.Service.Reject(ctx, id)
	if err != nil {
		return nil, toStatus(h.Logger, err)
	}
	return requestReply(h.Logger, req)
}

// AdmissionServiceHandler serves requesters.
type AdmissionServiceHandler struct {
	Service *service.AdmissionService
	Logger  *zerolog.Logger
}

func (h *AdmissionServiceHandler) SubmitRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	msg, err := api.SubmitRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if msg.IssuedAt.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "issued_at must be set")
	}
	pin := server.Pin{Value: msg.Pin, IssuedAt: msg.IssuedAt}
	req, err := h.Service.SubmitRequest(ctx, msg.Requester, pin)
	if err != nil {
		return nil, toStatus(h.Logger, err)
	}
	return requestReply(h.Logger, req)
}

func (h *AdmissionServiceHandler) GetRequest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requestID(in)
	if err != nil {
		return nil, err
	}
	req, err := h.Service.Get(ctx, id)
	if err != nil {
		return nil, toStatus(h.Logger, err)
	}
	return requestReply(h.Logger, req)
}

var requestConverters = []copier.TypeConverter{
	{
		SrcType: uuid.UUID{},
		DstType: copier.String,
		Fn: func(src any) (any, error) {
			return src.(uuid.UUID).String(), nil
		},
	},
	{
		SrcType: server.RequestStatus(0),
		DstType: copier.String,
		Fn: func(src any) (any, error) {
			return src.(server.RequestStatus).String(), nil
		},
	},
}

func requestMessage(req server.ConnectionRequest) (api.Request, error) {
	var r api.Request
	err := copier.CopyWithOption(&r, &req, copier.Option{Converters: requestConverters})
	return r, err
}

func requestReply(logger *zerolog.Logger, req server.ConnectionRequest) (*structpb.Struct, error) {
	r, err := requestMessage(req)
	if err != nil {
		return nil, toStatus(logger, err)
	}
	return reply(logger, r)
}

type message interface {
	Struct() (*structpb.Struct, error)
}

func reply(logger *zerolog.Logger, m message) (*structpb.Struct, error) {
	s, err := m.Struct()
	if err != nil {
		return nil, toStatus(logger, err)
	}
	return s, nil
}

func requestID(in *structpb.Struct) (uuid.UUID, error) {
	ref, err := api.RequestRefFromStruct(in)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := uuid.Parse(ref.ID)
	if err != nil {
		return uuid.Nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return id, nil
}

// toStatus maps domain errors to gRPC codes. Anything unrecognised is
// logged and reported without detail.
func toStatus(logger *zerolog.Logger, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, shared.ErrNotExist):
		code = codes.NotFound
	case errors.Is(err, shared.ErrRequestExists):
		code = codes.AlreadyExists
	case errors.Is(err, shared.ErrInvalidTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, shared.ErrMalformedPin), errors.Is(err, shared.ErrMissingRequester):
		code = codes.InvalidArgument
	case errors.Is(err, shared.ErrPinExpired),
		errors.Is(err, shared.ErrPinMismatch),
		errors.Is(err, shared.ErrPinConsumed):
		code = codes.PermissionDenied
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		if logger != nil {
			logger.Error().Err(err).Msg("request failed")
		}
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
