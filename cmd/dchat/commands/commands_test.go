package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charadev96/dchat/internal/server/service"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	keyringPath, logLevel = "", ""
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHostsAndOpen(t *testing.T) {
	dir := t.TempDir()
	ring := filepath.Join(dir, "keys", "hosts.toml")
	conf := filepath.Join(dir, "dchat.toml")

	keyFile := filepath.Join(dir, "host.key")
	config := strings.Join([]string{
		"[server]",
		`key_file = "` + filepath.ToSlash(keyFile) + `"`,
		`tls_key_file = "` + filepath.ToSlash(filepath.Join(dir, "host-tls.key")) + `"`,
		`cert_file = "` + filepath.ToSlash(filepath.Join(dir, "host.crt")) + `"`,
	}, "\n")
	if err := os.WriteFile(conf, []byte(config), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out, err := run(t, "--config", conf, "keygen")
	if err != nil {
		t.Fatalf("keygen: %v\n%s", err, out)
	}
	tlsPin := lineValue(out, "TLS pin:")
	if service.CheckPublicKeyPin(tlsPin) != nil {
		t.Fatalf("keygen output lacks a TLS pin:\n%s", out)
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	hostKey, err := service.DecodePrivateKeyPEM(keyPEM)
	if err != nil {
		t.Fatalf("DecodePrivateKeyPEM: %v", err)
	}
	if tlsPin == service.PublicKeyPin(&hostKey.PublicKey) {
		t.Fatal("TLS pin names the shared host key")
	}

	_, err = run(t, "--config", conf, "--keyring", ring,
		"hosts", "add", "home", "--address", "127.0.0.1:7443", "--as", "alice", "--key", keyFile)
	if err == nil {
		t.Fatal("want error without --tls-pin")
	}

	out, err = run(t, "--config", conf, "--keyring", ring,
		"hosts", "add", "home", "--address", "127.0.0.1:7443", "--as", "alice", "--key", keyFile, "--tls-pin", tlsPin)
	if err != nil {
		t.Fatalf("hosts add: %v\n%s", err, out)
	}
	fp := service.PublicKeyFingerprint(&hostKey.PublicKey)
	if !strings.Contains(out, fp) {
		t.Fatalf("hosts add output lacks fingerprint %s:\n%s", fp, out)
	}

	out, err = run(t, "--config", conf, "--keyring", ring, "hosts", "list")
	if err != nil {
		t.Fatalf("hosts list: %v", err)
	}
	if !strings.Contains(out, "home") || !strings.Contains(out, "alice") {
		t.Fatalf("unexpected hosts list:\n%s", out)
	}

	links := &service.LinkBuilder{Keys: &service.KeyExchangeService{}}
	link, key, err := links.Build(&hostKey.PublicKey)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out, err = run(t, "--config", conf, "--keyring", ring, "open", "home", link.URI)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !strings.Contains(out, link.Token) || !strings.Contains(out, key.Fingerprint()) {
		t.Fatalf("unexpected open output:\n%s", out)
	}

	if _, err := run(t, "--config", conf, "--keyring", ring, "open", "home", "https://dchat.com/chat/xyz?key=AA"); err == nil {
		t.Fatal("want error for malformed link")
	}

	if _, err := run(t, "--config", conf, "--keyring", ring, "hosts", "remove", "home"); err != nil {
		t.Fatalf("hosts remove: %v", err)
	}
	if _, err := run(t, "--config", conf, "--keyring", ring, "open", "home", link.URI); err == nil {
		t.Fatal("want error for removed host")
	}
}

func lineValue(out, prefix string) string {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, prefix); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func TestJoinRequiresIssuedAt(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "--config", filepath.Join(dir, "dchat.toml"), "--keyring", filepath.Join(dir, "hosts.toml"),
		"join", "home", "--pin", "482913")
	if err == nil {
		t.Fatal("want error without --issued-at")
	}
}
