package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/gym-platform/pkg/audit"
	"github.com/prohmpiriya/gym-platform/pkg/database"
)

// errNoRowsAffected aborts a transaction whose target row is missing
var errNoRowsAffected = errors.New("no rows affected")

// withAudit runs fn and the audit insert in one transaction
func withAudit(ctx context.Context, pool *pgxpool.Pool, entry *audit.Entry, fn func(tx pgx.Tx) error) error {
	return database.WithTx(ctx, pool, func(tx pgx.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		if entry == nil {
			return nil
		}
		return audit.InsertTx(ctx, tx, entry)
	})
}

func nullStringOrValue(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
