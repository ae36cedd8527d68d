package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	api "github.com/charadev96/dchat/api/admission"
)

// Admin drives a host through its local control listener.
type Admin struct {
	conn *grpc.ClientConn
	api  *api.HostServiceClient
}

// DialAdmin connects to the host's admin address. The listener is local
// and carries no transport security.
func DialAdmin(addr string) (*Admin, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to establish connection: %w", err)
	}
	return &Admin{conn: conn, api: api.NewHostServiceClient(conn)}, nil
}

func (a *Admin) Close() error {
	return a.conn.Close()
}

func (a *Admin) IssuePin(ctx context.Context) (api.Pin, error) {
	out, err := a.api.IssuePin(ctx, &structpb.Struct{})
	if err != nil {
		return api.Pin{}, fmt.Errorf("failed to issue pin: %w", err)
	}
	return api.PinFromStruct(out)
}

func (a *Admin) ListPending(ctx context.Context) ([]api.Request, error) {
	out, err := a.api.ListPendingRequests(ctx, &structpb.Struct{})
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	list, err := api.RequestListFromStruct(out)
	if err != nil {
		return nil, err
	}
	return list.Requests, nil
}

func (a *Admin) Accept(ctx context.Context, id string) (api.Request, error) {
	return a.decide(ctx, id, a.api.AcceptRequest)
}

func (a *Admin) Reject(ctx context.Context, id string) (api.Request, error) {
	return a.decide(ctx, id, a.api.RejectRequest)
}

type decideCall func(context.Context, *structpb.Struct, ...grpc.CallOption) (*structpb.Struct, error)

func (a *Admin) decide(ctx context.Context, id string, call decideCall) (api.Request, error) {
	in, err := api.RequestRef{ID: id}.Struct()
	if err != nil {
		return api.Request{}, err
	}
	out, err := call(ctx, in)
	if err != nil {
		return api.Request{}, fmt.Errorf("failed to decide request: %w", err)
	}
	return api.RequestFromStruct(out)
}
