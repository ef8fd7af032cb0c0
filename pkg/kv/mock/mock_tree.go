package mock

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/btree"

	"github.com/acapella/kv_sdk_go/internal/kvapi"
	"github.com/acapella/kv_sdk_go/pkg/kv"
)

// node is one tree position.
type node struct {
	key   kv.Key
	value json.RawMessage
}

// Compare orders keys segment by segment; a key sorts before every longer
// key it prefixes.
func Compare(a, b kv.Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

func nodeLess(a, b *node) bool {
	return Compare(a.key, b.key) < 0
}

func newTree() *btree.BTreeG[*node] {
	return btree.NewG(treeDegree, nodeLess)
}

// treeLocked returns the committed tree, creating it when create is set.
func (s *Store) treeLocked(id string, create bool) *btree.BTreeG[*node] {
	t, ok := s.trees[id]
	if !ok && create {
		t = newTree()
		s.trees[id] = t
	}
	return t
}

// viewTreeLocked returns the tree as seen from tx. The result must be
// treated as read-only.
func (s *Store) viewTreeLocked(tx *txState, name kv.Key) *btree.BTreeG[*node] {
	id := kvapi.EncodeKey(name)
	committed := s.treeLocked(id, false)
	var overlay *btree.BTreeG[*node]
	if tx != nil {
		overlay = tx.trees[id]
	}
	switch {
	case overlay == nil && committed == nil:
		return newTree()
	case overlay == nil:
		return committed
	}

	var merged *btree.BTreeG[*node]
	if committed != nil {
		merged = committed.Clone()
	} else {
		merged = newTree()
	}
	overlay.Ascend(func(n *node) bool {
		merged.ReplaceOrInsert(n)
		return true
	})
	return merged
}

func (s *Store) cursorView(ctx context.Context, req *kv.CursorRequest) (*btree.BTreeG[*node], error) {
	if err := req.Tree.Validate(); err != nil {
		return nil, err
	}
	if err := checkTarget(req.Key, req.Quorum); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := s.txLocked(req.Transaction)
	if err != nil {
		return nil, err
	}
	return s.viewTreeLocked(tx, req.Tree), nil
}

// GetCursor returns the position at req.Key, nil when it was never set.
func (s *Store) GetCursor(ctx context.Context, req *kv.CursorRequest) (*kv.CursorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := s.cursorView(ctx, req)
	if err != nil {
		return nil, err
	}
	n, ok := view.Get(&node{key: req.Key})
	if !ok {
		return nil, nil
	}
	return cursorState(n), nil
}

// NextCursor returns the first position strictly after req.Key.
func (s *Store) NextCursor(ctx context.Context, req *kv.CursorRequest) (*kv.CursorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := s.cursorView(ctx, req)
	if err != nil {
		return nil, err
	}
	var found *node
	view.AscendGreaterOrEqual(&node{key: req.Key}, func(n *node) bool {
		if Compare(n.key, req.Key) == 0 {
			return true
		}
		found = n
		return false
	})
	if found == nil {
		return nil, nil
	}
	return cursorState(found), nil
}

// PrevCursor returns the last position strictly before req.Key.
func (s *Store) PrevCursor(ctx context.Context, req *kv.CursorRequest) (*kv.CursorState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, err := s.cursorView(ctx, req)
	if err != nil {
		return nil, err
	}
	var found *node
	view.DescendLessOrEqual(&node{key: req.Key}, func(n *node) bool {
		if Compare(n.key, req.Key) == 0 {
			return true
		}
		found = n
		return false
	})
	if found == nil {
		return nil, nil
	}
	return cursorState(found), nil
}

// PutCursor stores the value at req.Key, inside the transaction's overlay
// when one is given.
func (s *Store) PutCursor(ctx context.Context, req *kv.PutCursorRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.cursorView(ctx, &req.CursorRequest); err != nil {
		return err
	}
	tx, err := s.txLocked(req.Transaction)
	if err != nil {
		return err
	}

	n := &node{key: append(kv.Key(nil), req.Key...), value: kvapi.NormalizeValue(req.Value)}
	id := kvapi.EncodeKey(req.Tree)
	if tx != nil {
		overlay, ok := tx.trees[id]
		if !ok {
			overlay = newTree()
			tx.trees[id] = overlay
		}
		overlay.ReplaceOrInsert(n)
		return nil
	}
	s.treeLocked(id, true).ReplaceOrInsert(n)
	s.notifyLocked()
	return nil
}

// Range returns positions after req.First up to and including req.Last,
// keeping at most req.Limit of them.
func (s *Store) Range(ctx context.Context, req *kv.RangeRequest) ([]kv.CursorState, error) {
	if err := req.Tree.Validate(); err != nil {
		return nil, err
	}
	if err := req.Quorum.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.txLocked(req.Transaction)
	if err != nil {
		return nil, err
	}
	view := s.viewTreeLocked(tx, req.Tree)

	out := make([]kv.CursorState, 0)
	visit := func(n *node) bool {
		if req.First != nil && Compare(n.key, req.First) <= 0 {
			return true
		}
		if req.Last != nil && Compare(n.key, req.Last) > 0 {
			return false
		}
		out = append(out, *cursorState(n))
		return req.Limit <= 0 || len(out) < req.Limit
	}
	if req.First != nil {
		view.AscendGreaterOrEqual(&node{key: req.First}, visit)
	} else {
		view.Ascend(visit)
	}
	return out, nil
}

// Positions returns every committed position of the named tree in order.
func (s *Store) Positions(name kv.Key) []kv.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.treeLocked(kvapi.EncodeKey(name), false)
	if t == nil {
		return nil
	}
	keys := make([]kv.Key, 0, t.Len())
	t.Ascend(func(n *node) bool {
		keys = append(keys, append(kv.Key(nil), n.key...))
		return true
	})
	return keys
}

func cursorState(n *node) *kv.CursorState {
	return &kv.CursorState{
		Key:   append(kv.Key(nil), n.key...),
		Value: n.value,
	}
}
