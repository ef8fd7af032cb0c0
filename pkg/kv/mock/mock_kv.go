// Package mock implements an in-memory kv.Backend that honours the store's
// client-visible contract: per-key versions, compare-and-set, transaction
// isolation with commit/rollback, keep-alive reaping, long-poll listening
// and ordered trees. Quorum parameters are validated but there is a single
// replica.
package mock

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/acapella/kv_sdk_go/internal/kvapi"
	"github.com/acapella/kv_sdk_go/pkg/kv"
)

const (
	// DefaultTransactionTTL is how long a transaction survives without a
	// keep-alive before it is reaped.
	DefaultTransactionTTL = 30 * time.Second
	// DefaultWaitTimeout is the long-poll window used when a listener does
	// not ask for one.
	DefaultWaitTimeout = 30 * time.Second

	treeDegree = 32
)

var _ kv.Backend = (*Store)(nil)

type record struct {
	version int64
	value   json.RawMessage
}

// txWrite is an entry written inside a transaction. base is the committed
// version the transaction first saw, checked again at commit.
type txWrite struct {
	key     kv.Key
	base    int64
	version int64
	value   json.RawMessage
}

type txState struct {
	writes    map[string]*txWrite
	trees     map[string]*btree.BTreeG[*node]
	completed bool
	lastSeen  time.Time
}

// Store is the in-memory backend. The zero value is not usable; call New.
type Store struct {
	mu      sync.Mutex
	entries map[string]*record
	trees   map[string]*btree.BTreeG[*node]
	txs     map[int64]*txState
	nextTx  int64
	changed chan struct{}

	now         func() time.Time
	txTTL       time.Duration
	defaultWait time.Duration
}

// Option configures the mock instance.
type Option func(*Store)

// WithClock overrides the clock used for transaction reaping (useful in tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTransactionTTL sets how long an unrenewed transaction lives.
func WithTransactionTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.txTTL = d
		}
	}
}

// WithDefaultWaitTimeout sets the long-poll window used when the listener
// does not specify one.
func WithDefaultWaitTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.defaultWait = d
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:     make(map[string]*record),
		trees:       make(map[string]*btree.BTreeG[*node]),
		txs:         make(map[int64]*txState),
		changed:     make(chan struct{}),
		now:         func() time.Time { return time.Now().UTC() },
		txTTL:       DefaultTransactionTTL,
		defaultWait: DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// notifyLocked wakes every listener; they re-check their condition.
func (s *Store) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// reapLocked drops transactions whose liveness window has passed. Reaped
// transactions are reported as not found afterwards.
func (s *Store) reapLocked() {
	now := s.now()
	for index, tx := range s.txs {
		if now.Sub(tx.lastSeen) > s.txTTL {
			delete(s.txs, index)
		}
	}
}

// txLocked resolves an optional transaction reference to an active
// transaction.
func (s *Store) txLocked(ref *int64) (*txState, error) {
	s.reapLocked()
	if ref == nil {
		return nil, nil
	}
	tx, ok := s.txs[*ref]
	if !ok {
		return nil, kv.ErrTransactionNotFound
	}
	if tx.completed {
		return nil, kv.ErrTransactionCompleted
	}
	return tx, nil
}

func checkTarget(key kv.Key, q kv.Quorum) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return q.Validate()
}

// viewLocked returns the entry as seen from tx (or outside any transaction).
func (s *Store) viewLocked(tx *txState, key kv.Key) record {
	id := kvapi.EncodeKey(key)
	if tx != nil {
		if w, ok := tx.writes[id]; ok {
			return record{version: w.version, value: w.value}
		}
	}
	if rec, ok := s.entries[id]; ok {
		return *rec
	}
	return record{}
}

// GetEntry returns the entry, long-polling when req.WaitVersion is set.
func (s *Store) GetEntry(ctx context.Context, req *kv.GetEntryRequest) (*kv.EntryState, error) {
	if err := checkTarget(req.Key, req.Quorum); err != nil {
		return nil, err
	}
	if req.WaitVersion == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		tx, err := s.txLocked(req.Transaction)
		if err != nil {
			return nil, err
		}
		rec := s.viewLocked(tx, req.Key)
		return stateOf(rec), nil
	}
	return s.listen(ctx, req)
}

func (s *Store) listen(ctx context.Context, req *kv.GetEntryRequest) (*kv.EntryState, error) {
	window := req.WaitTimeout
	if window <= 0 {
		window = s.defaultWait
	}
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		s.mu.Lock()
		tx, err := s.txLocked(req.Transaction)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		rec := s.viewLocked(tx, req.Key)
		changed := s.changed
		s.mu.Unlock()

		if rec.version > *req.WaitVersion {
			return stateOf(rec), nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return nil, kv.ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetVersion returns the committed version of key.
func (s *Store) GetVersion(ctx context.Context, key kv.Key, q kv.Quorum) (int64, error) {
	if err := checkTarget(key, q); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(nil, key).version, nil
}

// PutEntry writes the entry, checking req.OldVersion when present.
func (s *Store) PutEntry(ctx context.Context, req *kv.PutEntryRequest) (int64, error) {
	if err := checkTarget(req.Key, req.Quorum); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	value := kvapi.NormalizeValue(req.Value)

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.txLocked(req.Transaction)
	if err != nil {
		return 0, err
	}

	current := s.viewLocked(tx, req.Key)
	if req.OldVersion != nil && *req.OldVersion != current.version {
		return 0, kv.ErrCasConflict
	}
	next := current.version + 1
	id := kvapi.EncodeKey(req.Key)

	if tx != nil {
		w, ok := tx.writes[id]
		if !ok {
			w = &txWrite{key: req.Key, base: s.viewLocked(nil, req.Key).version}
			tx.writes[id] = w
		}
		w.version, w.value = next, value
	} else {
		s.entries[id] = &record{version: next, value: value}
	}
	s.notifyLocked()
	return next, nil
}

// BeginTransaction allocates a new transaction index.
func (s *Store) BeginTransaction(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	s.nextTx++
	s.txs[s.nextTx] = &txState{
		writes:   make(map[string]*txWrite),
		trees:    make(map[string]*btree.BTreeG[*node]),
		lastSeen: s.now(),
	}
	return s.nextTx, nil
}

func (s *Store) completeLocked(index int64) (*txState, error) {
	tx, err := s.txLocked(&index)
	if err != nil {
		return nil, err
	}
	tx.completed = true
	tx.lastSeen = s.now()
	return tx, nil
}

// CommitTransaction publishes the transaction's writes. A key whose
// committed version moved since the transaction first wrote it aborts the
// commit with kv.ErrCasConflict; the transaction is completed either way.
func (s *Store) CommitTransaction(ctx context.Context, index int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.completeLocked(index)
	if err != nil {
		return err
	}

	for id, w := range tx.writes {
		if s.viewLocked(nil, w.key).version != w.base {
			return errors.Wrapf(kv.ErrCasConflict, "mock: key %s changed outside transaction %d", id, index)
		}
	}
	for id, w := range tx.writes {
		s.entries[id] = &record{version: w.version, value: w.value}
	}
	for id, overlay := range tx.trees {
		committed := s.treeLocked(id, true)
		overlay.Ascend(func(n *node) bool {
			committed.ReplaceOrInsert(n)
			return true
		})
	}
	tx.writes, tx.trees = nil, nil
	s.notifyLocked()
	return nil
}

// RollbackTransaction discards the transaction's writes.
func (s *Store) RollbackTransaction(ctx context.Context, index int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.completeLocked(index)
	if err != nil {
		return err
	}
	tx.writes, tx.trees = nil, nil
	s.notifyLocked()
	return nil
}

// KeepAliveTransaction renews the transaction's liveness window.
func (s *Store) KeepAliveTransaction(ctx context.Context, index int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.txLocked(&index)
	if err != nil {
		return err
	}
	tx.lastSeen = s.now()
	return nil
}

// ActiveTransactions reports how many transactions are live.
func (s *Store) ActiveTransactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reapLocked()
	n := 0
	for _, tx := range s.txs {
		if !tx.completed {
			n++
		}
	}
	return n
}

func stateOf(rec record) *kv.EntryState {
	return &kv.EntryState{Version: rec.version, Value: rec.value}
}
