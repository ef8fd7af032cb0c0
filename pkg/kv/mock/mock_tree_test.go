package mock_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acapella/kv_sdk_go/pkg/kv"
	"github.com/acapella/kv_sdk_go/pkg/kv/mock"
)

var tree = kv.Key{"index"}

func setCursor(t *testing.T, s *mock.Store, key kv.Key, value string, tx *int64) {
	t.Helper()
	err := s.PutCursor(context.Background(), &kv.PutCursorRequest{
		CursorRequest: kv.CursorRequest{Tree: tree, Key: key, Quorum: q, Transaction: tx},
		Value:         json.RawMessage(value),
	})
	require.NoError(t, err)
}

func cursorReq(key kv.Key, tx *int64) *kv.CursorRequest {
	return &kv.CursorRequest{Tree: tree, Key: key, Quorum: q, Transaction: tx}
}

func keys(states []kv.CursorState) []kv.Key {
	out := make([]kv.Key, 0, len(states))
	for _, st := range states {
		out = append(out, st.Key)
	}
	return out
}

func TestCompare(t *testing.T) {
	assert.Equal(t, 0, mock.Compare(kv.Key{"a", "b"}, kv.Key{"a", "b"}))
	assert.Equal(t, -1, mock.Compare(kv.Key{"a"}, kv.Key{"a", "b"}))
	assert.Equal(t, 1, mock.Compare(kv.Key{"b"}, kv.Key{"a", "z"}))
	assert.Equal(t, -1, mock.Compare(kv.Key{"a", "b"}, kv.Key{"a", "c"}))
}

func TestCursorNavigation(t *testing.T) {
	s := mock.New()
	ctx := context.Background()
	for _, k := range []string{"3", "1", "2"} {
		setCursor(t, s, kv.Key{k}, `"v`+k+`"`, nil)
	}

	st, err := s.GetCursor(ctx, cursorReq(kv.Key{"2"}, nil))
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.JSONEq(t, `"v2"`, string(st.Value))

	missing, err := s.GetCursor(ctx, cursorReq(kv.Key{"9"}, nil))
	require.NoError(t, err)
	assert.Nil(t, missing)

	next, err := s.NextCursor(ctx, cursorReq(kv.Key{"1"}, nil))
	require.NoError(t, err)
	assert.Equal(t, kv.Key{"2"}, next.Key)

	prev, err := s.PrevCursor(ctx, cursorReq(kv.Key{"2"}, nil))
	require.NoError(t, err)
	assert.Equal(t, kv.Key{"1"}, prev.Key)

	end, err := s.NextCursor(ctx, cursorReq(kv.Key{"3"}, nil))
	require.NoError(t, err)
	assert.Nil(t, end)

	start, err := s.PrevCursor(ctx, cursorReq(kv.Key{"1"}, nil))
	require.NoError(t, err)
	assert.Nil(t, start)

	between, err := s.NextCursor(ctx, cursorReq(kv.Key{"1", "5"}, nil))
	require.NoError(t, err)
	assert.Equal(t, kv.Key{"2"}, between.Key)
}

func TestRange(t *testing.T) {
	s := mock.New()
	ctx := context.Background()
	for _, k := range []string{"1", "2", "3", "4", "5"} {
		setCursor(t, s, kv.Key{k}, `0`, nil)
	}

	all, err := s.Range(ctx, &kv.RangeRequest{Tree: tree, Quorum: q})
	require.NoError(t, err)
	assert.Equal(t, []kv.Key{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}, keys(all))

	bounded, err := s.Range(ctx, &kv.RangeRequest{Tree: tree, Quorum: q, First: kv.Key{"2"}, Last: kv.Key{"4"}})
	require.NoError(t, err)
	assert.Equal(t, []kv.Key{{"3"}, {"4"}}, keys(bounded))

	limited, err := s.Range(ctx, &kv.RangeRequest{Tree: tree, Quorum: q, First: kv.Key{"1"}, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []kv.Key{{"2"}, {"3"}}, keys(limited))

	empty, err := s.Range(ctx, &kv.RangeRequest{Tree: tree, Quorum: q, First: kv.Key{"5"}})
	require.NoError(t, err)
	assert.Empty(t, empty)

	none, err := s.Range(ctx, &kv.RangeRequest{Tree: kv.Key{"other"}, Quorum: q})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTreeTransactionOverlay(t *testing.T) {
	s := mock.New()
	ctx := context.Background()
	setCursor(t, s, kv.Key{"1"}, `"committed"`, nil)

	index, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	setCursor(t, s, kv.Key{"2"}, `"pending"`, &index)
	setCursor(t, s, kv.Key{"1"}, `"rewritten"`, &index)

	outside, err := s.Range(ctx, &kv.RangeRequest{Tree: tree, Quorum: q})
	require.NoError(t, err)
	assert.Equal(t, []kv.Key{{"1"}}, keys(outside))
	assert.JSONEq(t, `"committed"`, string(outside[0].Value))

	inside, err := s.Range(ctx, &kv.RangeRequest{Tree: tree, Quorum: q, Transaction: &index})
	require.NoError(t, err)
	assert.Equal(t, []kv.Key{{"1"}, {"2"}}, keys(inside))
	assert.JSONEq(t, `"rewritten"`, string(inside[0].Value))

	next, err := s.NextCursor(ctx, cursorReq(kv.Key{"1"}, &index))
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, kv.Key{"2"}, next.Key)

	require.NoError(t, s.CommitTransaction(ctx, index))
	assert.Equal(t, []kv.Key{{"1"}, {"2"}}, s.Positions(tree))
}

func TestTreeRollbackDiscardsOverlay(t *testing.T) {
	s := mock.New()
	ctx := context.Background()

	index, err := s.BeginTransaction(ctx)
	require.NoError(t, err)
	setCursor(t, s, kv.Key{"1"}, `1`, &index)
	require.NoError(t, s.RollbackTransaction(ctx, index))

	assert.Empty(t, s.Positions(tree))
}
