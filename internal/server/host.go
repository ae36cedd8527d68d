package server

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"

	"github.com/charadev96/dchat/internal/server/repository"
	"github.com/charadev96/dchat/internal/server/service"
	"github.com/charadev96/dchat/internal/shared/clock"
	"github.com/charadev96/dchat/internal/shared/infra"
	"github.com/charadev96/dchat/internal/shared/log"
)

// Host is a fully wired admission host.
type Host struct {
	Config    Config
	DB        *bun.DB
	Keys      HostKeyMaterial
	Admission *service.AdmissionService
	Server    *Server

	logger zerolog.Logger
}

// OpenHost loads or creates the host key material, opens the database and
// wires the services behind both listeners.
func OpenHost(ctx context.Context, cfg Config) (*Host, error) {
	h := &Host{
		Config: cfg,
		logger: log.New("host"),
	}

	keys := &service.KeyExchangeService{GenerateTimeout: cfg.Keys.GenerateTimeout.Duration}
	tmpl, err := CertificateTemplate(cfg.Server.Hosts, time.Now().Add(-time.Hour), cfg.Server.CertValidity.Duration)
	if err != nil {
		return nil, err
	}
	h.Keys, err = EnsureHostKeyPair(ctx, cfg.Server.KeyPaths(), tmpl, keys, &h.logger)
	if err != nil {
		return nil, err
	}
	cert, err := h.Keys.TLSCertificate()
	if err != nil {
		return nil, err
	}

	h.DB, err = infra.OpenSQLite(ctx, cfg.Server.Database)
	if err != nil {
		return nil, err
	}
	h.Admission, err = NewAdmissionService(ctx, h.DB, cfg, keys, h.Keys)
	if err != nil {
		h.DB.Close()
		return nil, err
	}

	adminLogger := log.New("admin")
	publicLogger := log.New("public")
	h.Server = &Server{
		Admin: AdminConfig{
			Addr:   cfg.Server.AdminAddr,
			Logger: &adminLogger,
		},
		Public: PublicConfig{
			Addr:        cfg.Server.PublicAddr,
			Certificate: cert,
			Logger:      &publicLogger,
		},
		AdmissionService: h.Admission,
	}
	return h, nil
}

// NewAdmissionService wires the admission flow on top of db.
func NewAdmissionService(
	ctx context.Context,
	db *bun.DB,
	cfg Config,
	keys *service.KeyExchangeService,
	material HostKeyMaterial,
) (*service.AdmissionService, error) {
	requests, err := repository.NewBunRequestRepository(ctx, db)
	if err != nil {
		return nil, err
	}
	issued, err := repository.NewBunPinRepository(ctx, db)
	if err != nil {
		return nil, err
	}

	logger := log.New("admission")
	pins := &service.PinAuthority{
		Validity: cfg.Pin.Validity.Duration,
		Clock:    clock.Real(),
	}
	return &service.AdmissionService{
		Pins: pins,
		Registry: &service.Registry{
			Pins:     pins,
			Requests: requests,
			Logger:   &logger,
		},
		Links: &service.LinkBuilder{
			Scheme: cfg.Link.Scheme,
			Host:   cfg.Link.Host,
			Keys:   keys,
		},
		Issued:        issued,
		HostKey:       &material.Key.PublicKey,
		Sink:          service.LogSessionSink{Logger: &logger},
		TXRunner:      infra.NewBunTransactionRunner(db),
		Logger:        &logger,
		SingleUsePins: cfg.Pin.SingleUse,
	}, nil
}

// Run serves both listeners and purges expired pins until ctx ends or one
// of them fails.
func (h *Host) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return h.Server.ServeAdmin(ctx)
	})
	g.Go(func() error {
		return h.Server.ServePublic(ctx)
	})
	g.Go(func() error {
		return h.purgePins(ctx)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *Host) purgePins(ctx context.Context) error {
	ticker := time.NewTicker(h.Config.Pin.PurgeInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := h.Admission.PurgeExpiredPins(ctx); err != nil && ctx.Err() == nil {
				h.logger.Error().
					Err(err).
					Msg("failed to purge expired pins")
			}
		}
	}
}

func (h *Host) Close() error {
	return h.DB.Close()
}
