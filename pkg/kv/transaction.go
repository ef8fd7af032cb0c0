package kv

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Transaction is a server-side atomic scope. Writes made through its
// Entries and Cursors stay invisible to everyone else until Commit; Rollback
// discards them.
type Transaction struct {
	session *Session
	index   int64

	mu        sync.Mutex
	completed bool
}

// Index returns the server-assigned transaction index.
func (t *Transaction) Index() int64 { return t.index }

// Completed reports whether Commit or Rollback already succeeded locally.
func (t *Transaction) Completed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

func (t *Transaction) ref() *int64 {
	index := t.index
	return &index
}

// Commit applies every write issued in the transaction. Once the
// transaction is locally completed further calls do nothing.
func (t *Transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return nil
	}
	if err := t.session.backend.CommitTransaction(ctx, t.index); err != nil {
		return err
	}
	t.completed = true
	t.session.logger.Debug("transaction committed", zap.Int64("index", t.index))
	return nil
}

// Rollback discards every write issued in the transaction. It is a silent
// no-op once the transaction is locally completed, so it is always safe as
// cleanup.
func (t *Transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.completed {
		return nil
	}
	if err := t.session.backend.RollbackTransaction(ctx, t.index); err != nil {
		return err
	}
	t.completed = true
	t.session.logger.Debug("transaction rolled back", zap.Int64("index", t.index))
	return nil
}

// KeepAlive renews the server-side liveness timer. It is sent even after
// local completion so the server's verdict (ErrTransactionCompleted,
// ErrTransactionNotFound) reaches the caller.
func (t *Transaction) KeepAlive(ctx context.Context) error {
	return t.session.backend.KeepAliveTransaction(ctx, t.index)
}

// Entry returns a local handle for key inside this transaction.
func (t *Transaction) Entry(key Key, q Quorum) (*Entry, error) {
	return newEntry(t.session.backend, key, q, t.ref())
}

// GetEntry fetches key inside this transaction.
func (t *Transaction) GetEntry(ctx context.Context, key Key, q Quorum) (*Entry, error) {
	e, err := t.Entry(key, q)
	if err != nil {
		return nil, err
	}
	if _, err := e.Get(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// DefaultKeepAliveInterval is used by StartKeepAlive for non-positive
// intervals.
const DefaultKeepAliveInterval = 10 * time.Second

// KeepAliver renews a transaction in the background.
type KeepAliver struct {
	cancel context.CancelFunc
	group  *errgroup.Group
}

// StartKeepAlive calls KeepAlive every interval until Stop is called, ctx is
// done, or a renewal fails.
func (t *Transaction) StartKeepAlive(ctx context.Context, interval time.Duration) *KeepAliver {
	if interval <= 0 {
		interval = DefaultKeepAliveInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := t.KeepAlive(ctx); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					t.session.logger.Warn("transaction keep-alive failed", zap.Int64("index", t.index), zap.Error(err))
					return err
				}
			}
		}
	})
	return &KeepAliver{cancel: cancel, group: group}
}

// Stop ends the renewal loop and returns the renewal error that ended it
// early, if any.
func (k *KeepAliver) Stop() error {
	k.cancel()
	return k.group.Wait()
}
