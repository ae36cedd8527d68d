package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/charadev96/dchat/internal/server/service"
)

const (
	permKey  = 0600
	permCert = 0644
)

// HostKeyPaths locates the host key material on disk.
type HostKeyPaths struct {
	// Key is the session key wrapping key. Requesters get a copy of it.
	Key string
	// TLSKey is the host's own identity and never leaves the host.
	TLSKey string
	Cert   string
}

// HostKeyMaterial holds the two host keys and the self-signed certificate
// for the TLS key. Key wraps session keys and is what requesters are
// given out of band. TLSKey identifies the host; requesters pin its
// public half.
type HostKeyMaterial struct {
	Key       *rsa.PrivateKey
	KeyPEM    []byte
	TLSKey    *rsa.PrivateKey
	TLSKeyPEM []byte
	CertPEM   []byte
}

// TLSPin is what requesters record to recognise this host.
func (m HostKeyMaterial) TLSPin() string {
	return service.PublicKeyPin(&m.TLSKey.PublicKey)
}

func (m HostKeyMaterial) TLSCertificate() (tls.Certificate, error) {
	cert, err := tls.X509KeyPair(m.CertPEM, m.TLSKeyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load key pair: %w", err)
	}
	return cert, nil
}

// CertificateTemplate returns a template for a self-signed server
// certificate covering hosts, which may be names or IP addresses.
func CertificateTemplate(hosts []string, notBefore time.Time, validity time.Duration) (x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return x509.Certificate{}, fmt.Errorf("failed to generate serial number: %w", err)
	}
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "dchat host"},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else if h != "" {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}
	return tmpl, nil
}

// EnsureHostKeyPair loads both host keys and the certificate, creating
// whichever is missing. A certificate that does not match the TLS key is
// replaced.
func EnsureHostKeyPair(
	ctx context.Context,
	paths HostKeyPaths,
	template x509.Certificate,
	keys *service.KeyExchangeService,
	logger *zerolog.Logger,
) (HostKeyMaterial, error) {
	var m HostKeyMaterial
	if logger == nil {
		logger = zerolog.DefaultContextLogger
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	var err error
	m.Key, m.KeyPEM, _, err = ensureKeyFile(ctx, paths.Key, keys, logger)
	if err != nil {
		return HostKeyMaterial{}, err
	}
	var tlsKeyIsNew bool
	m.TLSKey, m.TLSKeyPEM, tlsKeyIsNew, err = ensureKeyFile(ctx, paths.TLSKey, keys, logger)
	if err != nil {
		return HostKeyMaterial{}, err
	}
	if m.TLSKey.Equal(m.Key) {
		return HostKeyMaterial{}, fmt.Errorf(
			"%s and %s hold the same key, the TLS key must not be shared with requesters",
			paths.TLSKey, paths.Key,
		)
	}

	certOK := false
	if !tlsKeyIsNew {
		m.CertPEM, certOK, err = loadCertificateFile(paths.Cert, m.TLSKey)
		if err != nil {
			return HostKeyMaterial{}, err
		}
	}
	if !certOK {
		logger.Warn().
			Str("file", paths.Cert).
			Msg("certificate does not exist or invalid")
		m.CertPEM, err = generateCertificateFile(paths.Cert, m.TLSKey, template)
		if err != nil {
			return HostKeyMaterial{}, err
		}
		logger.Info().
			Str("file", paths.Cert).
			Msg("created new certificate")
	}

	logger.Info().
		Str("file", paths.Cert).
		Str("pin", m.TLSPin()).
		Msg("parsed certificate")

	return m, nil
}

func ensureKeyFile(
	ctx context.Context,
	keyPath string,
	keys *service.KeyExchangeService,
	logger *zerolog.Logger,
) (*rsa.PrivateKey, []byte, bool, error) {
	_, err := os.Stat(keyPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, false, fmt.Errorf("failed to retrieve private key: %w", err)
	}
	if err == nil {
		key, keyPEM, err := loadKeyFile(keyPath)
		if err != nil {
			return nil, nil, false, err
		}
		logger.Info().
			Str("file", keyPath).
			Msg("parsed private key")
		return key, keyPEM, false, nil
	}

	logger.Warn().
		Str("file", keyPath).
		Msg("private key does not exist")
	key, keyPEM, err := generateKeyFile(ctx, keyPath, keys)
	if err != nil {
		return nil, nil, false, err
	}
	logger.Info().
		Str("file", keyPath).
		Str("fingerprint", service.PublicKeyFingerprint(&key.PublicKey)).
		Msg("created new private key")
	return key, keyPEM, true, nil
}

func generateKeyFile(ctx context.Context, keyPath string, keys *service.KeyExchangeService) (*rsa.PrivateKey, []byte, error) {
	pair, err := keys.GenerateKeyPair(ctx)
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := service.EncodePrivateKeyPEM(pair.Private)
	if err != nil {
		return nil, nil, err
	}
	if err := writeFile(keyPath, keyPEM, permKey); err != nil {
		return nil, nil, fmt.Errorf("failed to write key PEM file to disk: %w", err)
	}
	return pair.Private, keyPEM, nil
}

func loadKeyFile(keyPath string) (*rsa.PrivateKey, []byte, error) {
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key: %w", err)
	}
	key, err := service.DecodePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", keyPath, err)
	}
	return key, keyPEM, nil
}

// loadCertificateFile reports ok=false when the file is missing, does not
// parse or was issued for another key.
func loadCertificateFile(certPath string, key *rsa.PrivateKey) ([]byte, bool, error) {
	certPEM, err := os.ReadFile(certPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(certPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, false, nil
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, false, nil
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		return nil, false, nil
	}
	return certPEM, true, nil
}

func generateCertificateFile(certPath string, key *rsa.PrivateKey, template x509.Certificate) ([]byte, error) {
	cert, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("failed generating certificate: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "CERTIFICATE",
		Bytes: cert,
	})
	if err := writeFile(certPath, certPEM, permCert); err != nil {
		return nil, fmt.Errorf("failed to write certificate PEM file to disk: %w", err)
	}
	return certPEM, nil
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
