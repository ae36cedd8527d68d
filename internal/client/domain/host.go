package domain

import (
	"crypto/rsa"
)

// HostEntry is a host this requester has been given key material for.
// Key unwraps session keys. TLSPin is the hex SHA-256 of the public key
// the host's certificate must carry.
type HostEntry struct {
	ID        string
	Address   string
	Requester string
	Key       *rsa.PrivateKey
	TLSPin    string
}

type HostRepository interface {
	Get(id string) (HostEntry, error)
	Set(id string, host HostEntry) error
	Delete(id string) error
	List() ([]HostEntry, error)
}
