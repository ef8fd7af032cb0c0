package kv

import (
	"context"

	"go.uber.org/zap"

	"github.com/acapella/kv_sdk_go/internal/httpx"
)

// Session is the entry point to the store. It owns the backend and hands out
// Entries, Trees and Transactions bound to it. A Session is safe for
// concurrent use.
type Session struct {
	backend Backend
	logger  *zap.Logger
}

// New constructs a Session talking HTTP to the store node at baseURL
// (e.g. "http://127.0.0.1:12000").
func New(baseURL string, opts ...Option) (*Session, error) {
	o := newOptions(opts)
	httpOpts := append([]httpx.Option{httpx.WithLogger(o.logger.Named("httpx"))}, o.httpOpts...)
	cl, err := httpx.NewClient(baseURL, httpOpts...)
	if err != nil {
		return nil, err
	}
	return &Session{
		backend: newHTTPBackend(cl, o.prefix),
		logger:  o.logger,
	}, nil
}

// NewWithBackend builds a Session over a custom backend (e.g. mocks).
// Transport options are ignored.
func NewWithBackend(b Backend, opts ...Option) *Session {
	o := newOptions(opts)
	return &Session{backend: b, logger: o.logger}
}

// Backend exposes the session's backend.
func (s *Session) Backend() Backend {
	return s.backend
}

// Transaction returns a fresh TransactionContext. Use Run for scoped
// commit-or-rollback semantics.
func (s *Session) Transaction() *TransactionContext {
	return &TransactionContext{session: s}
}

// WithTransaction runs fn inside a new transaction, committing when fn
// returns nil and rolling back otherwise.
func (s *Session) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) error {
	return s.Transaction().Run(ctx, fn)
}

// BeginTransaction starts a transaction whose completion is left to the
// caller. Prefer WithTransaction unless the lifetime spans scopes.
func (s *Session) BeginTransaction(ctx context.Context) (*Transaction, error) {
	index, err := s.backend.BeginTransaction(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("transaction started", zap.Int64("index", index))
	return &Transaction{session: s, index: index}, nil
}

// Entry returns a local handle for key outside any transaction. No request
// is sent; version starts at zero and value is absent.
func (s *Session) Entry(key Key, q Quorum) (*Entry, error) {
	return newEntry(s.backend, key, q, nil)
}

// GetEntry fetches key outside any transaction.
func (s *Session) GetEntry(ctx context.Context, key Key, q Quorum) (*Entry, error) {
	e, err := s.Entry(key, q)
	if err != nil {
		return nil, err
	}
	if _, err := e.Get(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// GetVersion fetches only the current version of key, skipping the value.
func (s *Session) GetVersion(ctx context.Context, key Key, q Quorum) (int64, error) {
	if err := validateTarget(key, q); err != nil {
		return 0, err
	}
	return s.backend.GetVersion(ctx, key.clone(), q)
}

// Tree returns a handle on the tree called name.
func (s *Session) Tree(name Key, q Quorum) (*Tree, error) {
	if err := validateTarget(name, q); err != nil {
		return nil, err
	}
	return &Tree{backend: s.backend, name: name.clone(), quorum: q}, nil
}
