package client

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	api "github.com/charadev96/dchat/api/admission"
	"github.com/charadev96/dchat/internal/client/domain"
	server "github.com/charadev96/dchat/internal/server/domain"
	"github.com/charadev96/dchat/internal/server/service"
)

const DefaultPollInterval = 2 * time.Second

var ErrRejected = errors.New("connection request was rejected")

// Client is the requester side of admission. It talks to one host at a
// time, identified by its keyring ID.
type Client struct {
	Hosts        domain.HostRepository
	Links        *service.LinkBuilder
	PollInterval time.Duration
	Logger       *zerolog.Logger

	host domain.HostEntry
	conn *grpc.ClientConn
	api  *api.AdmissionServiceClient
}

// DialHost connects to the host registered as id. The connection is only
// trusted when the host presents a certificate for the key pinned in the
// keyring.
func (c *Client) DialHost(id string) error {
	host, err := c.Hosts.Get(id)
	if err != nil {
		return fmt.Errorf("failed to get host '%s': %w", id, err)
	}
	if host.Key == nil {
		return fmt.Errorf("host '%s' has no key", id)
	}
	if err := service.CheckPublicKeyPin(host.TLSPin); err != nil {
		return fmt.Errorf("host '%s': %w", id, err)
	}

	config := &tls.Config{
		VerifyPeerCertificate: verifyHostCertificate(host.TLSPin, time.Now),
		InsecureSkipVerify:    true,
		MinVersion:            tls.VersionTLS13,
	}
	conn, err := grpc.NewClient(host.Address, grpc.WithTransportCredentials(credentials.NewTLS(config)))
	if err != nil {
		return fmt.Errorf("failed to establish connection: %w", err)
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.host = host
	c.conn = conn
	c.api = api.NewAdmissionServiceClient(conn)

	c.logger().Info().
		Str("host", id).
		Str("address", host.Address).
		Str("fingerprint", service.PublicKeyFingerprint(&host.Key.PublicKey)).
		Str("tls_pin", host.TLSPin).
		Msg("dialed host")
	return nil
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.api = nil
	return err
}

// Submit asks the host to admit the keyring's requester with pin.
func (c *Client) Submit(ctx context.Context, pin server.Pin) (api.Request, error) {
	if c.api == nil {
		return api.Request{}, fmt.Errorf("not connected")
	}
	in, err := api.SubmitRequest{
		Requester: c.host.Requester,
		Pin:       pin.Value,
		IssuedAt:  pin.IssuedAt,
	}.Struct()
	if err != nil {
		return api.Request{}, err
	}
	out, err := c.api.SubmitRequest(ctx, in)
	if err != nil {
		return api.Request{}, fmt.Errorf("failed to submit request: %w", err)
	}
	return api.RequestFromStruct(out)
}

func (c *Client) Status(ctx context.Context, id string) (api.Request, error) {
	if c.api == nil {
		return api.Request{}, fmt.Errorf("not connected")
	}
	in, err := api.RequestRef{ID: id}.Struct()
	if err != nil {
		return api.Request{}, err
	}
	out, err := c.api.GetRequest(ctx, in)
	if err != nil {
		return api.Request{}, fmt.Errorf("failed to get request: %w", err)
	}
	return api.RequestFromStruct(out)
}

// Await polls the request until the host decides it. A rejection is
// returned as ErrRejected along with the request.
func (c *Client) Await(ctx context.Context, id string) (api.Request, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		req, err := c.Status(ctx, id)
		if err != nil {
			return api.Request{}, err
		}
		switch req.Status {
		case server.StatusAccepted.String():
			return req, nil
		case server.StatusRejected.String():
			return req, ErrRejected
		}
		c.logger().Debug().
			Str("request", id).
			Msg("request still pending")

		select {
		case <-ctx.Done():
			return api.Request{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// OpenLink recovers the session key from a link issued by the current
// host.
func (c *Client) OpenLink(uri string) (server.SecureLink, server.SessionKey, error) {
	if c.host.Key == nil {
		return server.SecureLink{}, nil, fmt.Errorf("not connected")
	}
	return c.Links.Open(uri, c.host.Key)
}

func (c *Client) logger() *zerolog.Logger {
	if c.Logger == nil {
		l := zerolog.Nop()
		return &l
	}
	return c.Logger
}

// verifyHostCertificate accepts a leaf certificate only if it is current
// and its public key hashes to pin. The host's certificate is self-signed,
// so the key is what identifies it.
func verifyHostCertificate(pin string, now func() time.Time) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("host presented no certificate")
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("failed to parse certificate: %w", err)
		}

		t := now()
		if t.Before(cert.NotBefore) {
			return fmt.Errorf(
				"certificate not yet valid, current time %s is before %s",
				t.Format(time.RFC3339),
				cert.NotBefore.Format(time.RFC3339),
			)
		}
		if t.After(cert.NotAfter) {
			return fmt.Errorf(
				"certificate expired, current time %s is after %s",
				t.Format(time.RFC3339),
				cert.NotAfter.Format(time.RFC3339),
			)
		}

		key, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("incorrect certificate public key format (must be rsa)")
		}
		if got := service.PublicKeyPin(key); got != pin {
			return fmt.Errorf("failed to verify certificate: key %s does not match pin %s",
				got, pin)
		}
		return nil
	}
}
