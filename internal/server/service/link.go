package service

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"

	server "github.com/charadev96/dchat/internal/server/domain"
	shared "github.com/charadev96/dchat/internal/shared/domain"
)

const (
	// TokenSize is the number of random bytes behind a room token.
	TokenSize = 16

	DefaultLinkScheme = "https"
	DefaultLinkHost   = "dchat.com"

	linkKeyParam = "key"
)

var (
	linkPath  = regexp.MustCompile(`^/chat/([0-9a-f]{32})$`)
	linkQuery = regexp.MustCompile(`^` + linkKeyParam + `=([A-Za-z0-9_-]+)$`)
)

// LinkBuilder composes and takes apart links of the form
// scheme://host/chat/{token}?key={wrapped session key}.
type LinkBuilder struct {
	Scheme string
	Host   string
	Keys   *KeyExchangeService
	Rand   io.Reader
}

// Build creates a link for a new room. The returned session key is the
// plaintext the link wraps; it is never part of the link itself.
func (b *LinkBuilder) Build(pub *rsa.PublicKey) (server.SecureLink, server.SessionKey, error) {
	raw := make([]byte, TokenSize)
	if _, err := io.ReadFull(b.rand(), raw); err != nil {
		return server.SecureLink{}, nil, fmt.Errorf("failed to generate room token: %w", err)
	}
	token := hex.EncodeToString(raw)

	key, err := b.Keys.GenerateSessionKey()
	if err != nil {
		return server.SecureLink{}, nil, err
	}
	wrapped, err := b.Keys.WrapSessionKey(key, pub)
	if err != nil {
		key.Wipe()
		return server.SecureLink{}, nil, err
	}
	encoded := b.Keys.EncodeForTransport(wrapped)

	u := url.URL{
		Scheme:   b.scheme(),
		Host:     b.host(),
		Path:     "/chat/" + token,
		RawQuery: url.Values{linkKeyParam: {encoded}}.Encode(),
	}
	link := server.SecureLink{
		Token:      token,
		EncodedKey: encoded,
		URI:        u.String(),
	}
	return link, key, nil
}

// Parse splits uri into its token and encoded wrapped key. Anything but
// the exact link shape is rejected.
func (b *LinkBuilder) Parse(uri string) (server.SecureLink, error) {
	if strings.Contains(uri, "#") {
		return server.SecureLink{}, fmt.Errorf("%w: unexpected fragment", shared.ErrMalformedLink)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return server.SecureLink{}, fmt.Errorf("%w: %v", shared.ErrMalformedLink, err)
	}
	switch {
	case u.Scheme == "" || u.Host == "" || u.Opaque != "":
		return server.SecureLink{}, fmt.Errorf("%w: missing scheme or host", shared.ErrMalformedLink)
	case u.User != nil:
		return server.SecureLink{}, fmt.Errorf("%w: unexpected user info", shared.ErrMalformedLink)
	case u.RawPath != "":
		return server.SecureLink{}, fmt.Errorf("%w: escaped path", shared.ErrMalformedLink)
	}

	m := linkPath.FindStringSubmatch(u.Path)
	if m == nil {
		return server.SecureLink{}, fmt.Errorf("%w: path must be /chat/ followed by a 32 character hex token", shared.ErrMalformedLink)
	}

	// The encoded key only uses unreserved characters, so the raw query
	// is matched as is and never form-decoded.
	q := linkQuery.FindStringSubmatch(u.RawQuery)
	if q == nil {
		return server.SecureLink{}, fmt.Errorf("%w: query must be a single non-empty key parameter", shared.ErrMalformedLink)
	}

	return server.SecureLink{
		Token:      m[1],
		EncodedKey: q[1],
		URI:        uri,
	}, nil
}

// Open is the requester side of Build: it parses uri and unwraps the
// session key with priv.
func (b *LinkBuilder) Open(uri string, priv *rsa.PrivateKey) (server.SecureLink, server.SessionKey, error) {
	link, err := b.Parse(uri)
	if err != nil {
		return server.SecureLink{}, nil, err
	}
	wrapped, err := b.Keys.DecodeFromTransport(link.EncodedKey)
	if err != nil {
		return server.SecureLink{}, nil, err
	}
	key, err := b.Keys.UnwrapSessionKey(wrapped, priv)
	if err != nil {
		return server.SecureLink{}, nil, err
	}
	if len(key) != SessionKeySize {
		key.Wipe()
		return server.SecureLink{}, nil, fmt.Errorf(
			"%w: unwrapped %d bytes, want %d", shared.ErrDecryptionFailure, len(key), SessionKeySize,
		)
	}
	return link, key, nil
}

func (b *LinkBuilder) scheme() string {
	if b.Scheme == "" {
		return DefaultLinkScheme
	}
	return b.Scheme
}

func (b *LinkBuilder) host() string {
	if b.Host == "" {
		return DefaultLinkHost
	}
	return b.Host
}

func (b *LinkBuilder) rand() io.Reader {
	if b.Rand == nil {
		return rand.Reader
	}
	return b.Rand
}
