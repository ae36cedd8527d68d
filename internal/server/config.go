package server

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/charadev96/dchat/internal/server/domain"
	"github.com/charadev96/dchat/internal/server/service"
)

const (
	DefaultAdminAddr      = "127.0.0.1:7070"
	DefaultPublicAddr     = ":7443"
	DefaultDatabase       = "dchat.db"
	DefaultCertFile       = "host.crt"
	DefaultKeyFile        = "host.key"
	DefaultTLSKeyFile     = "host-tls.key"
	DefaultPurgeInterval  = 5 * time.Minute
	DefaultCertValidity   = 365 * 24 * time.Hour
	DefaultLogLevel       = "info"
	DefaultConfigFileName = "dchat.toml"
)

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration %s is negative", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	LogLevel string       `toml:"log_level"`
	Server   ServerConfig `toml:"server"`
	Link     LinkConfig   `toml:"link"`
	Pin      PinConfig    `toml:"pin"`
	Keys     KeysConfig   `toml:"keys"`
}

type ServerConfig struct {
	AdminAddr  string `toml:"admin_address"`
	PublicAddr string `toml:"public_address"`
	Database   string `toml:"database"`
	CertFile   string `toml:"cert_file"`
	KeyFile    string `toml:"key_file"`
	TLSKeyFile string `toml:"tls_key_file"`
	// Hosts are the names and addresses the certificate is issued for.
	Hosts        []string `toml:"hosts"`
	CertValidity Duration `toml:"cert_validity"`
}

func (c ServerConfig) KeyPaths() HostKeyPaths {
	return HostKeyPaths{Key: c.KeyFile, TLSKey: c.TLSKeyFile, Cert: c.CertFile}
}

type LinkConfig struct {
	Scheme string `toml:"scheme"`
	Host   string `toml:"host"`
}

type PinConfig struct {
	Validity      Duration `toml:"validity"`
	SingleUse     bool     `toml:"single_use"`
	PurgeInterval Duration `toml:"purge_interval"`
}

type KeysConfig struct {
	GenerateTimeout Duration `toml:"generate_timeout"`
}

func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

// LoadConfig reads path. A missing file yields the defaults; fields left
// out of the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	var c Config
	md, err := toml.DecodeFile(path, &c)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key '%s'", undecoded[0])
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Server.AdminAddr == "" {
		c.Server.AdminAddr = DefaultAdminAddr
	}
	if c.Server.PublicAddr == "" {
		c.Server.PublicAddr = DefaultPublicAddr
	}
	if c.Server.Database == "" {
		c.Server.Database = DefaultDatabase
	}
	if c.Server.CertFile == "" {
		c.Server.CertFile = DefaultCertFile
	}
	if c.Server.KeyFile == "" {
		c.Server.KeyFile = DefaultKeyFile
	}
	if c.Server.TLSKeyFile == "" {
		c.Server.TLSKeyFile = DefaultTLSKeyFile
	}
	if len(c.Server.Hosts) == 0 {
		c.Server.Hosts = []string{"localhost", "127.0.0.1"}
	}
	if c.Server.CertValidity.Duration == 0 {
		c.Server.CertValidity.Duration = DefaultCertValidity
	}
	if c.Link.Scheme == "" {
		c.Link.Scheme = service.DefaultLinkScheme
	}
	if c.Link.Host == "" {
		c.Link.Host = service.DefaultLinkHost
	}
	if c.Pin.Validity.Duration == 0 {
		c.Pin.Validity.Duration = domain.DefaultPinValidity
	}
	if c.Pin.PurgeInterval.Duration == 0 {
		c.Pin.PurgeInterval.Duration = DefaultPurgeInterval
	}
	if c.Keys.GenerateTimeout.Duration == 0 {
		c.Keys.GenerateTimeout.Duration = service.DefaultKeyGenerationTimeout
	}
}
