package repository

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/BurntSushi/toml"

	client "github.com/charadev96/dchat/internal/client/domain"
	"github.com/charadev96/dchat/internal/server/service"
	shared "github.com/charadev96/dchat/internal/shared/domain"
)

const (
	permRepository = 0600
)

// TOMLHostRepository keeps the requester's keyring in a TOML file. The
// file is reread whenever it changed on disk since the last access, and
// a missing file reads as an empty keyring.
type TOMLHostRepository struct {
	FilePath string

	data       schema
	modifiedAt time.Time
}

func (r *TOMLHostRepository) Get(id string) (client.HostEntry, error) {
	if err := r.refresh(); err != nil {
		return client.HostEntry{}, err
	}
	repr, ok := r.data.Hosts[id]
	if !ok {
		return client.HostEntry{}, fmt.Errorf("host '%s': %w", id, shared.ErrNotExist)
	}
	return repr.toDomain(id), nil
}

func (r *TOMLHostRepository) Set(id string, host client.HostEntry) error {
	if host.Key == nil {
		return fmt.Errorf("host '%s' has no key", id)
	}
	if err := service.CheckPublicKeyPin(host.TLSPin); err != nil {
		return fmt.Errorf("host '%s': %w", id, err)
	}
	if host.TLSPin == service.PublicKeyPin(&host.Key.PublicKey) {
		return fmt.Errorf("host '%s': TLS pin names the shared host key", id)
	}
	if err := r.refresh(); err != nil {
		return err
	}
	if r.data.Hosts == nil {
		r.data.Hosts = make(map[string]*hostEntry)
	}
	if _, ok := r.data.Hosts[id]; !ok {
		r.data.Hosts[id] = &hostEntry{}
	}
	r.data.Hosts[id].fromDomain(host)
	return r.save()
}

func (r *TOMLHostRepository) Delete(id string) error {
	if err := r.refresh(); err != nil {
		return err
	}
	if _, ok := r.data.Hosts[id]; !ok {
		return fmt.Errorf("host '%s': %w", id, shared.ErrNotExist)
	}
	delete(r.data.Hosts, id)
	return r.save()
}

func (r *TOMLHostRepository) List() ([]client.HostEntry, error) {
	if err := r.refresh(); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(r.data.Hosts))
	for id := range r.data.Hosts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	hosts := make([]client.HostEntry, 0, len(ids))
	for _, id := range ids {
		hosts = append(hosts, r.data.Hosts[id].toDomain(id))
	}
	return hosts, nil
}

// privateKey is written as the PKCS#8 PEM text of the key.
type privateKey struct {
	value *rsa.PrivateKey
}

func (p *privateKey) UnmarshalText(text []byte) error {
	key, err := service.DecodePrivateKeyPEM(text)
	if err != nil {
		return err
	}
	p.value = key
	return nil
}

func (p privateKey) MarshalText() ([]byte, error) {
	return service.EncodePrivateKeyPEM(p.value)
}

type hostEntry struct {
	Address   string     `toml:"address"`
	Requester string     `toml:"requester"`
	Key       privateKey `toml:"key"`
	TLSPin    string     `toml:"tls_pin"`
}

func (h *hostEntry) toDomain(id string) client.HostEntry {
	return client.HostEntry{
		ID:        id,
		Address:   h.Address,
		Requester: h.Requester,
		Key:       h.Key.value,
		TLSPin:    h.TLSPin,
	}
}

func (h *hostEntry) fromDomain(host client.HostEntry) {
	h.Address = host.Address
	h.Requester = host.Requester
	h.Key = privateKey{value: host.Key}
	h.TLSPin = host.TLSPin
}

type schema struct {
	Hosts map[string]*hostEntry `toml:"hosts"`
}

func (r *TOMLHostRepository) refresh() error {
	info, err := os.Stat(r.FilePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read file timestamp: %w", err)
	}
	modTime := info.ModTime()
	if r.modifiedAt.Equal(modTime) {
		return nil
	}
	if err := r.load(); err != nil {
		return err
	}
	r.modifiedAt = modTime
	return nil
}

func (r *TOMLHostRepository) load() error {
	var data schema
	if _, err := toml.DecodeFile(r.FilePath, &data); err != nil {
		return fmt.Errorf("failed to load repository: %w", err)
	}
	r.data = data
	return nil
}

func (r *TOMLHostRepository) save() error {
	file, err := os.OpenFile(r.FilePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, permRepository)
	if err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	enc := toml.NewEncoder(file)
	enc.Indent = ""
	if err := enc.Encode(r.data); err != nil {
		file.Close()
		return fmt.Errorf("failed to save repository: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to save repository: %w", err)
	}
	if info, err := os.Stat(r.FilePath); err == nil {
		r.modifiedAt = info.ModTime()
	}
	return nil
}
