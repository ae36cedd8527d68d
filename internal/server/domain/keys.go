package domain

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"runtime"
)

// KeyPair is the host's asymmetric key material. Private never leaves
// the host process except as the PEM pre-shared with requesters.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// SessionKey is a symmetric secret that keys the chat session.
type SessionKey []byte

// Fingerprint is safe to log; the key itself is not.
func (k SessionKey) Fingerprint() string {
	sum := sha256.Sum256(k)
	return hex.EncodeToString(sum[:8])
}

// Wipe zeroes the key in place.
//
//go:noinline
func (k SessionKey) Wipe() {
	for i := range k {
		k[i] = 0
	}
	runtime.KeepAlive(&k)
}
