package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"strings"
	"time"

	server "github.com/charadev96/dchat/internal/server/domain"
	shared "github.com/charadev96/dchat/internal/shared/domain"
)

// Key exchange parameters. Every host and requester must agree on them,
// so they are fixed rather than configurable.
const (
	// ModulusBits is the RSA modulus size of generated key pairs.
	ModulusBits = 2048
	// ModulusBytes is the length of every wrapped session key.
	ModulusBytes = ModulusBits / 8
	// OAEPHash is the digest used for both the OAEP label hash and MGF1.
	OAEPHash = crypto.SHA256
	// MaxWrapPayload is the largest plaintext OAEP can carry for the
	// modulus and digest above.
	MaxWrapPayload = ModulusBytes - 2*sha256.Size - 2
	// SessionKeySize is the length of generated session keys.
	SessionKeySize = 32

	DefaultKeyGenerationTimeout = 30 * time.Second
)

var transportEncoding = base64.RawURLEncoding.Strict()

type KeyExchangeService struct {
	GenerateTimeout time.Duration
	Rand            io.Reader
}

// GenerateKeyPair generates an RSA key pair on a separate goroutine. The
// caller gets either a complete pair or an error; when ctx ends or the
// timeout passes first the pair being generated is discarded.
func (s *KeyExchangeService) GenerateKeyPair(ctx context.Context) (server.KeyPair, error) {
	timeout := s.GenerateTimeout
	if timeout <= 0 {
		timeout = DefaultKeyGenerationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		key *rsa.PrivateKey
		err error
	}
	done := make(chan result, 1)
	rnd := s.rand()
	go func() {
		key, err := rsa.GenerateKey(rnd, ModulusBits)
		done <- result{key: key, err: err}
	}()

	select {
	case <-ctx.Done():
		return server.KeyPair{}, fmt.Errorf("key pair generation aborted: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return server.KeyPair{}, fmt.Errorf("failed to generate key pair: %w", res.err)
		}
		return server.KeyPair{Public: &res.key.PublicKey, Private: res.key}, nil
	}
}

func (s *KeyExchangeService) GenerateSessionKey() (server.SessionKey, error) {
	key := make(server.SessionKey, SessionKeySize)
	if _, err := io.ReadFull(s.rand(), key); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}
	return key, nil
}

// WrapSessionKey encrypts key to pub with RSA-OAEP. The ciphertext is
// always exactly pub.Size() bytes.
func (s *KeyExchangeService) WrapSessionKey(key server.SessionKey, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.N == nil {
		return nil, fmt.Errorf("%w: missing public key", shared.ErrEncryptionFailure)
	}
	if limit := pub.Size() - 2*OAEPHash.Size() - 2; len(key) > limit {
		return nil, fmt.Errorf(
			"%w: %d byte key exceeds the %d byte capacity of a %d bit modulus",
			shared.ErrEncryptionFailure, len(key), limit, pub.N.BitLen(),
		)
	}
	ct, err := rsa.EncryptOAEP(OAEPHash.New(), s.rand(), pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrEncryptionFailure, err)
	}
	return ct, nil
}

// UnwrapSessionKey reverses WrapSessionKey. Any failure yields no key.
func (s *KeyExchangeService) UnwrapSessionKey(ciphertext []byte, priv *rsa.PrivateKey) (server.SessionKey, error) {
	if priv == nil || priv.N == nil {
		return nil, fmt.Errorf("%w: missing private key", shared.ErrDecryptionFailure)
	}
	if len(ciphertext) != priv.Size() {
		return nil, fmt.Errorf(
			"%w: ciphertext is %d bytes, modulus is %d",
			shared.ErrDecryptionFailure, len(ciphertext), priv.Size(),
		)
	}
	key, err := rsa.DecryptOAEP(OAEPHash.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrDecryptionFailure, err)
	}
	return key, nil
}

// EncodeForTransport encodes b as unpadded URL-safe base64 (RFC 4648 §5).
func (s *KeyExchangeService) EncodeForTransport(b []byte) string {
	return transportEncoding.EncodeToString(b)
}

func (s *KeyExchangeService) DecodeFromTransport(text string) ([]byte, error) {
	// The decoder skips line breaks; they never come out of the encoder.
	if strings.ContainsAny(text, "\r\n") {
		return nil, fmt.Errorf("%w: line break in input", shared.ErrMalformedEncoding)
	}
	b, err := transportEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrMalformedEncoding, err)
	}
	return b, nil
}

func (s *KeyExchangeService) rand() io.Reader {
	if s.Rand == nil {
		return rand.Reader
	}
	return s.Rand
}

func EncodePrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// DecodePrivateKeyPEM parses a PKCS#8 RSA key and rejects moduli other
// than ModulusBits.
func DecodePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("incorrect private key format (must be rsa)")
	}
	if bits := key.N.BitLen(); bits != ModulusBits {
		return nil, fmt.Errorf("incorrect private key size %d (must be %d bits)", bits, ModulusBits)
	}
	return key, nil
}

// PublicKeyPin is the hex SHA-256 of pub's PKIX encoding. Unlike
// PublicKeyFingerprint it is not truncated, so it can be pinned.
func PublicKeyPin(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])
}

// CheckPublicKeyPin reports whether pin has the form PublicKeyPin produces.
func CheckPublicKeyPin(pin string) error {
	if len(pin) != 2*sha256.Size || strings.ToLower(pin) != pin {
		return fmt.Errorf("public key pin must be %d lowercase hex characters: %w", 2*sha256.Size, shared.ErrMalformedEncoding)
	}
	if _, err := hex.DecodeString(pin); err != nil {
		return fmt.Errorf("public key pin: %w", shared.ErrMalformedEncoding)
	}
	return nil
}

// PublicKeyFingerprint identifies pub in logs and prompts.
func PublicKeyFingerprint(pub *rsa.PublicKey) string {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "invalid"
	}
	sum := sha256.Sum256(der)
	return fmt.Sprintf("%x", sum[:10])
}
