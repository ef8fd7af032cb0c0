package kv

import (
	"context"
	"encoding/json"
	"time"
)

// Backend performs the store operations behind a Session. The HTTP backend
// speaks the store's wire protocol; pkg/kv/mock provides an in-memory one.
//
// Implementations report failures using the package error taxonomy
// (ErrTimeout, ErrCasConflict, ErrTransactionNotFound, ErrTransactionCompleted,
// *StoreError). Inputs have already been validated by the caller.
type Backend interface {
	GetEntry(ctx context.Context, req *GetEntryRequest) (*EntryState, error)
	GetVersion(ctx context.Context, key Key, q Quorum) (int64, error)
	PutEntry(ctx context.Context, req *PutEntryRequest) (int64, error)

	BeginTransaction(ctx context.Context) (int64, error)
	CommitTransaction(ctx context.Context, index int64) error
	RollbackTransaction(ctx context.Context, index int64) error
	KeepAliveTransaction(ctx context.Context, index int64) error

	// GetCursor, NextCursor and PrevCursor return nil when no such position
	// exists.
	GetCursor(ctx context.Context, req *CursorRequest) (*CursorState, error)
	NextCursor(ctx context.Context, req *CursorRequest) (*CursorState, error)
	PrevCursor(ctx context.Context, req *CursorRequest) (*CursorState, error)
	PutCursor(ctx context.Context, req *PutCursorRequest) error
	Range(ctx context.Context, req *RangeRequest) ([]CursorState, error)
}

// GetEntryRequest fetches an entry. A non-nil WaitVersion turns the fetch
// into a long-poll.
type GetEntryRequest struct {
	Key         Key
	Quorum      Quorum
	Transaction *int64
	WaitVersion *int64
	WaitTimeout time.Duration
}

// PutEntryRequest writes an entry. A non-nil OldVersion makes it a CAS.
type PutEntryRequest struct {
	Key         Key
	Quorum      Quorum
	Transaction *int64
	OldVersion  *int64
	Value       json.RawMessage
}

// EntryState is one authoritative (version, value) pair. Value is nil when
// the key holds nothing.
type EntryState struct {
	Version int64
	Value   json.RawMessage
}

// CursorRequest addresses one position of a tree.
type CursorRequest struct {
	Tree        Key
	Key         Key
	Quorum      Quorum
	Transaction *int64
}

// PutCursorRequest writes the value at a tree position.
type PutCursorRequest struct {
	CursorRequest
	Value json.RawMessage
}

// RangeRequest scans a tree. First is exclusive, Last inclusive.
type RangeRequest struct {
	Tree        Key
	Quorum      Quorum
	Transaction *int64
	First       Key
	Last        Key
	Limit       int
}

// CursorState is one (key, value) position of a tree.
type CursorState struct {
	Key   Key
	Value json.RawMessage
}
