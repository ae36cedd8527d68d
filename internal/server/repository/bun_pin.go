package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	server "github.com/charadev96/dchat/internal/server/domain"
	shared "github.com/charadev96/dchat/internal/shared/domain"
	"github.com/charadev96/dchat/internal/shared/infra"
)

// BunPinRepository stores pins issued by this host, keyed by their issue
// instant in nanoseconds.
type BunPinRepository struct {
	db *bun.DB
}

func NewBunPinRepository(ctx context.Context, db *bun.DB) (*BunPinRepository, error) {
	r := &BunPinRepository{
		db: db,
	}
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewCreateTable().
		Model((*issuedPin)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunPinRepository) Save(ctx context.Context, pin server.Pin) error {
	tx := infra.ExtractTx(ctx, r.db)
	p := new(issuedPin)
	p.fromDomain(server.IssuedPin{Pin: pin})
	_, err := tx.NewInsert().
		Model(p).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save pin: %w", err)
	}
	return nil
}

func (r *BunPinRepository) GetByIssuedAt(ctx context.Context, issuedAt time.Time) (server.IssuedPin, error) {
	tx := infra.ExtractTx(ctx, r.db)
	p := new(issuedPin)
	err := tx.NewSelect().
		Model(p).
		Where("issued_at = ?", issuedAt.UnixNano()).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = shared.ErrNotExist
		}
		return server.IssuedPin{}, fmt.Errorf("failed to get pin: %w", err)
	}
	return p.toDomain(), nil
}

func (r *BunPinRepository) Consume(ctx context.Context, issuedAt time.Time, at time.Time) error {
	tx := infra.ExtractTx(ctx, r.db)
	p := &issuedPin{ConsumedAt: at}
	res, err := tx.NewUpdate().
		Model(p).
		Column("consumed_at").
		Where("issued_at = ?", issuedAt.UnixNano()).
		Where("consumed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to consume pin: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to consume pin: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetByIssuedAt(ctx, issuedAt); err != nil {
		return err
	}
	return fmt.Errorf("failed to consume pin: %w", shared.ErrPinConsumed)
}

func (r *BunPinRepository) DeleteIssuedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx := infra.ExtractTx(ctx, r.db)
	res, err := tx.NewDelete().
		Model((*issuedPin)(nil)).
		Where("issued_at < ?", cutoff.UnixNano()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete pins: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete pins: %w", err)
	}
	return n, nil
}

type issuedPin struct {
	bun.BaseModel `bun:"table:issued_pins"`

	IssuedAt   int64     `bun:",pk"`
	Value      int       `bun:",notnull"`
	ConsumedAt time.Time `bun:",nullzero"`
}

func (p *issuedPin) toDomain() server.IssuedPin {
	return server.IssuedPin{
		Pin: server.Pin{
			Value:    p.Value,
			IssuedAt: time.Unix(0, p.IssuedAt),
		},
		ConsumedAt: p.ConsumedAt,
	}
}

func (p *issuedPin) fromDomain(pin server.IssuedPin) {
	p.IssuedAt = pin.IssuedAt.UnixNano()
	p.Value = pin.Value
	p.ConsumedAt = pin.ConsumedAt
}
