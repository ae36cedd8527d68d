package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/uptrace/bun"

	server "github.com/charadev96/dchat/internal/server/domain"
	shared "github.com/charadev96/dchat/internal/shared/domain"
	"github.com/charadev96/dchat/internal/shared/infra"
)

type BunRequestRepository struct {
	db *bun.DB
}

func NewBunRequestRepository(ctx context.Context, db *bun.DB) (*BunRequestRepository, error) {
	r := &BunRequestRepository{
		db: db,
	}
	tx := infra.ExtractTx(ctx, r.db)
	_, err := tx.NewCreateTable().
		Model((*connectionRequest)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return r, fmt.Errorf("failed to create repository: %w", err)
	}
	return r, nil
}

func (r *BunRequestRepository) Create(ctx context.Context, req server.ConnectionRequest) error {
	tx := infra.ExtractTx(ctx, r.db)
	m := new(connectionRequest)
	copier.Copy(m, &req)
	res, err := tx.NewInsert().
		Model(m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to save request: %w", shared.ErrRequestExists)
	}
	return nil
}

func (r *BunRequestRepository) GetByID(ctx context.Context, id uuid.UUID) (server.ConnectionRequest, error) {
	tx := infra.ExtractTx(ctx, r.db)
	m := new(connectionRequest)
	req := server.ConnectionRequest{}
	err := tx.NewSelect().
		Model(m).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = shared.ErrNotExist
		}
		return req, fmt.Errorf("failed to get request: %w", err)
	}
	copier.Copy(&req, m)
	return req, nil
}

func (r *BunRequestRepository) ListByStatus(ctx context.Context, s server.RequestStatus) ([]server.ConnectionRequest, error) {
	tx := infra.ExtractTx(ctx, r.db)
	var ms []connectionRequest
	err := tx.NewSelect().
		Model(&ms).
		Where("status = ?", int(s)).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	reqs := make([]server.ConnectionRequest, 0, len(ms))
	for i := range ms {
		req := server.ConnectionRequest{}
		copier.Copy(&req, &ms[i])
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Decide applies d only while the stored status still equals d.From, so
// of two racing decisions at most one changes the row.
func (r *BunRequestRepository) Decide(ctx context.Context, id uuid.UUID, d server.RequestDecision) error {
	tx := infra.ExtractTx(ctx, r.db)
	m := &connectionRequest{
		Status:    d.To,
		DecidedAt: d.At,
		Link:      d.Link,
	}
	res, err := tx.NewUpdate().
		Model(m).
		Column("status", "decided_at", "link").
		Where("id = ?", id).
		Where("status = ?", int(d.From)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	if n > 0 {
		return nil
	}

	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: request is %s", shared.ErrInvalidTransition, cur.Status)
}

type connectionRequest struct {
	bun.BaseModel `bun:"table:connection_requests"`

	ID        uuid.UUID            `bun:",pk"`
	Requester string               `bun:",notnull"`
	Pin       int                  `bun:",notnull"`
	IssuedAt  time.Time            `bun:",notnull"`
	Status    server.RequestStatus `bun:",notnull"`
	CreatedAt time.Time            `bun:",notnull"`
	DecidedAt time.Time            `bun:",nullzero"`
	Link      string               `bun:",nullzero"`
}
