package domain

import (
	"context"
)

// TransactionRunner runs fn inside a transaction. Calls made while a
// transaction is already carried by ctx join it instead of nesting.
type TransactionRunner interface {
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}
