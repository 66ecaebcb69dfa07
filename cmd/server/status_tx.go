package main

import (
	"context"
	"database/sql"
	"time"

	statusservice "freightdesk/internal/shipment/status/service"
	statusstore "freightdesk/internal/shipment/status/store"
	dErrors "freightdesk/pkg/domain-errors"
	txcontext "freightdesk/pkg/platform/tx"
)

const defaultStatusTxTimeout = 5 * time.Second

// statusPostgresTx is the transactional boundary for status mutations. The
// transaction rides in the context so the status store and the audit outbox
// store both join it; a status change and its audit rows commit or roll back
// as one.
type statusPostgresTx struct {
	db      *sql.DB
	store   *statusstore.PostgresStore
	timeout time.Duration
}

func newStatusPostgresTx(db *sql.DB, store *statusstore.PostgresStore) *statusPostgresTx {
	return &statusPostgresTx{db: db, store: store}
}

func (t *statusPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store statusservice.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultStatusTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx), t.store); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
