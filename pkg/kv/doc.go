// Package kv is a client for a quorum-replicated key-value store that also
// offers ordered trees and multi-key transactions.
//
// A Session hands out three kinds of handles:
//
//   - Entry: one versioned key with Get, Listen (long-poll), Set and CAS.
//   - Tree and Cursor: an ordered namespace with point lookups, Next/Prev
//     navigation and Range scans (first bound exclusive, last inclusive).
//   - Transaction: an isolated scope; Entries and Cursors created from it
//     read and write inside the scope until Commit or Rollback.
//
// Every request carries a Quorum (N replicas, R read acks, W write acks).
// Keys and quorums are validated locally and fail with *ValidationError
// before anything is sent. Server answers map onto ErrTimeout,
// ErrCasConflict, ErrTransactionNotFound, ErrTransactionCompleted or
// *StoreError.
//
// Values are opaque JSON documents; pass any JSON-marshalable value to Set
// and use DecodeValue or Decode to read them back.
package kv
