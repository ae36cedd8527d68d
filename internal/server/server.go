package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	api "github.com/charadev96/dchat/api/admission"
	"github.com/charadev96/dchat/internal/server/handler/admission"
	"github.com/charadev96/dchat/internal/server/service"
)

type AdminConfig struct {
	Addr   string
	Logger *zerolog.Logger
}

type PublicConfig struct {
	Addr        string
	Certificate tls.Certificate
	Logger      *zerolog.Logger
}

type Server struct {
	Admin  AdminConfig
	Public PublicConfig

	AdmissionService *service.AdmissionService
}

// ServeAdmin serves the host service without transport security. Addr
// should be a loopback address.
func (s *Server) ServeAdmin(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Admin.Addr)
	if err != nil {
		return fmt.Errorf("failed to init server: %w", err)
	}
	return s.ServeAdminListener(ctx, ln)
}

func (s *Server) ServeAdminListener(ctx context.Context, ln net.Listener) error {
	s.Admin.Logger.Info().
		Str("address", ln.Addr().String()).
		Msg("started server")

	inst := grpc.NewServer(grpc.UnaryInterceptor(logCalls(s.Admin.Logger)))
	api.RegisterHostServiceServer(inst, &admission.HostServiceHandler{
		Service: s.AdmissionService,
		Logger:  s.Admin.Logger,
	})
	return serve(ctx, inst, ln, s.Admin.Logger)
}

// ServePublic serves the admission service to requesters over TLS.
func (s *Server) ServePublic(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Public.Addr)
	if err != nil {
		return fmt.Errorf("failed to init server: %w", err)
	}
	return s.ServePublicListener(ctx, ln)
}

func (s *Server) ServePublicListener(ctx context.Context, ln net.Listener) error {
	s.Public.Logger.Info().
		Str("address", ln.Addr().String()).
		Msg("started server")

	config := &tls.Config{
		Certificates: []tls.Certificate{s.Public.Certificate},
		MinVersion:   tls.VersionTLS13,
	}
	inst := grpc.NewServer(
		grpc.Creds(credentials.NewTLS(config)),
		grpc.UnaryInterceptor(logCalls(s.Public.Logger)),
	)
	api.RegisterAdmissionServiceServer(inst, &admission.AdmissionServiceHandler{
		Service: s.AdmissionService,
		Logger:  s.Public.Logger,
	})
	return serve(ctx, inst, ln, s.Public.Logger)
}

func serve(ctx context.Context, inst *grpc.Server, ln net.Listener, logger *zerolog.Logger) error {
	go func() {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		inst.GracefulStop()
	}()
	return inst.Serve(ln)
}

func logCalls(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("took", time.Since(start)).
			Msg("handled call")
		return resp, err
	}
}
