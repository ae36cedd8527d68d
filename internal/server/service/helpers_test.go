package service_test

import (
	"context"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/charadev96/dchat/internal/server/repository"
	"github.com/charadev96/dchat/internal/server/service"
	"github.com/charadev96/dchat/internal/shared/clock"
	"github.com/charadev96/dchat/internal/shared/infra"
)

var t0 = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

var (
	hostKeyOnce sync.Once
	hostKey     *rsa.PrivateKey
	otherKey    *rsa.PrivateKey
	hostKeyErr  error
)

// testKeys returns two RSA key pairs shared by every test in the package.
func testKeys(t *testing.T) (host, other *rsa.PrivateKey) {
	t.Helper()
	hostKeyOnce.Do(func() {
		keys := &service.KeyExchangeService{}
		hp, err := keys.GenerateKeyPair(context.Background())
		if err != nil {
			hostKeyErr = err
			return
		}
		op, err := keys.GenerateKeyPair(context.Background())
		if err != nil {
			hostKeyErr = err
			return
		}
		hostKey, otherKey = hp.Private, op.Private
	})
	if hostKeyErr != nil {
		t.Fatalf("GenerateKeyPair: %v", hostKeyErr)
	}
	return hostKey, otherKey
}

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()
	db, err := infra.OpenSQLite(ctx, infra.MemoryDSN(uuid.NewString()))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type fixture struct {
	clock     *clock.Fake
	pins      *service.PinAuthority
	registry  *service.Registry
	admission *service.AdmissionService
	keys      *service.KeyExchangeService
	links     *service.LinkBuilder
	hostKey   *rsa.PrivateKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db := openTestDB(t)

	requests, err := repository.NewBunRequestRepository(ctx, db)
	if err != nil {
		t.Fatalf("NewBunRequestRepository: %v", err)
	}
	issued, err := repository.NewBunPinRepository(ctx, db)
	if err != nil {
		t.Fatalf("NewBunPinRepository: %v", err)
	}

	host, _ := testKeys(t)
	c := clock.NewFake(t0)
	pins := &service.PinAuthority{Clock: c}
	keys := &service.KeyExchangeService{}
	links := &service.LinkBuilder{Scheme: "https", Host: "dchat.test", Keys: keys}
	registry := &service.Registry{Pins: pins, Requests: requests}

	return &fixture{
		clock:    c,
		pins:     pins,
		registry: registry,
		admission: &service.AdmissionService{
			Pins:     pins,
			Registry: registry,
			Links:    links,
			Issued:   issued,
			HostKey:  &host.PublicKey,
			TXRunner: infra.NewBunTransactionRunner(db),
		},
		keys:    keys,
		links:   links,
		hostKey: host,
	}
}
