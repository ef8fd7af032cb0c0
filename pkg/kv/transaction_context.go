package kv

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// cleanupTimeout bounds the rollback issued on a failed or cancelled scope.
const cleanupTimeout = 10 * time.Second

var errScopeAborted = errors.New("kv: transaction scope aborted")

// TransactionContext scopes one transaction: Enter begins it, Exit commits
// it on success and rolls it back on failure. It holds at most one live
// transaction and may be reused once exited.
type TransactionContext struct {
	session *Session

	mu sync.Mutex
	tx *Transaction
}

// Enter begins a transaction. Entering a context whose transaction is still
// live fails with ErrContextEntered.
func (c *TransactionContext) Enter(ctx context.Context) (*Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx != nil {
		return nil, ErrContextEntered
	}
	tx, err := c.session.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	c.tx = tx
	return tx, nil
}

// Exit completes the live transaction: commit when cause is nil, rollback
// otherwise. The context returns to idle whatever happens. A non-nil cause
// is returned unchanged; a failed rollback is only logged.
func (c *TransactionContext) Exit(ctx context.Context, cause error) error {
	c.mu.Lock()
	tx := c.tx
	c.tx = nil
	c.mu.Unlock()

	if tx == nil {
		if cause != nil {
			return cause
		}
		return errors.New("kv: transaction context not entered")
	}

	if cause == nil {
		return tx.Commit(ctx)
	}

	// The caller's ctx may be the reason we are failing; cleanup must not
	// inherit its cancellation.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := tx.Rollback(cleanupCtx); err != nil {
		c.session.logger.Warn("transaction rollback failed",
			zap.Int64("index", tx.Index()),
			zap.NamedError("cause", cause),
			zap.Error(err))
	}
	return cause
}

// Run enters the context, calls fn and exits on every path: fn's error
// rolls back, a nil return commits, a panic rolls back and is re-raised.
func (c *TransactionContext) Run(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) error {
	tx, err := c.Enter(ctx)
	if err != nil {
		return err
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		r := recover()
		_ = c.Exit(ctx, errScopeAborted)
		if r != nil {
			panic(r)
		}
	}()

	err = fn(ctx, tx)
	finished = true
	return c.Exit(ctx, err)
}
