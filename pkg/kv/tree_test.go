package kv_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acapella/kv_sdk_go/pkg/kv"
)

func cursorKeys(cursors []*kv.Cursor) []kv.Key {
	keys := make([]kv.Key, 0, len(cursors))
	for _, c := range cursors {
		keys = append(keys, c.Key())
	}
	return keys
}

func fillTree(t *testing.T, tree *kv.Tree, tx *kv.Transaction, keys ...string) {
	t.Helper()
	for _, k := range keys {
		c, err := tree.Cursor(kv.Key{k}, tx)
		require.NoError(t, err)
		require.NoError(t, c.Set(context.Background(), "v"+k))
		assert.JSONEq(t, `"v`+k+`"`, string(c.Value()))
	}
}

func TestCursorNavigation(t *testing.T) {
	for name, s := range sessions(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tree, err := s.Tree(kv.Key{"events", "2024"}, q)
			require.NoError(t, err)
			assert.Equal(t, kv.Key{"events", "2024"}, tree.Name())
			assert.Equal(t, q, tree.Quorum())
			fillTree(t, tree, nil, "3", "1", "2")

			missing, err := tree.GetCursor(ctx, kv.Key{"9"}, nil)
			require.NoError(t, err)
			assert.Nil(t, missing)

			first, err := tree.GetCursor(ctx, kv.Key{"1"}, nil)
			require.NoError(t, err)
			require.NotNil(t, first)
			assert.Same(t, tree, first.Tree())
			var value string
			ok, err := first.Decode(&value)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v1", value)

			second, err := first.Next(ctx)
			require.NoError(t, err)
			require.NotNil(t, second)
			assert.Equal(t, kv.Key{"2"}, second.Key())
			assert.JSONEq(t, `"v2"`, string(second.Value()))
			assert.Equal(t, kv.Key{"1"}, first.Key())

			back, err := second.Prev(ctx)
			require.NoError(t, err)
			require.NotNil(t, back)
			assert.Equal(t, kv.Key{"1"}, back.Key())

			third, err := second.Next(ctx)
			require.NoError(t, err)
			end, err := third.Next(ctx)
			require.NoError(t, err)
			assert.Nil(t, end)

			start, err := first.Prev(ctx)
			require.NoError(t, err)
			assert.Nil(t, start)

			// Navigation works from positions that were never set.
			probe, err := tree.Cursor(kv.Key{"1", "5"}, nil)
			require.NoError(t, err)
			assert.Nil(t, probe.Value())
			after, err := probe.Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, kv.Key{"2"}, after.Key())
		})
	}
}

func TestRange(t *testing.T) {
	for name, s := range sessions(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tree, err := s.Tree(kv.Key{"ranged"}, q)
			require.NoError(t, err)
			fillTree(t, tree, nil, "5", "4", "3", "2", "1")

			all, err := tree.Range(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, []kv.Key{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}, cursorKeys(all))

			bounded, err := tree.Range(ctx, &kv.RangeOptions{First: kv.Key{"1"}, Last: kv.Key{"3"}})
			require.NoError(t, err)
			assert.Equal(t, []kv.Key{{"2"}, {"3"}}, cursorKeys(bounded))
			assert.JSONEq(t, `"v3"`, string(bounded[1].Value()))

			limited, err := tree.Range(ctx, &kv.RangeOptions{First: kv.Key{"1"}, Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []kv.Key{{"2"}, {"3"}}, cursorKeys(limited))

			tail, err := tree.Range(ctx, &kv.RangeOptions{Last: kv.Key{"2"}})
			require.NoError(t, err)
			assert.Equal(t, []kv.Key{{"1"}, {"2"}}, cursorKeys(tail))

			empty, err := tree.Range(ctx, &kv.RangeOptions{First: kv.Key{"5"}})
			require.NoError(t, err)
			assert.Empty(t, empty)

			inverted, err := tree.Range(ctx, &kv.RangeOptions{First: kv.Key{"4"}, Last: kv.Key{"2"}})
			require.NoError(t, err)
			assert.Empty(t, inverted)

			next, err := limited[1].Next(ctx)
			require.NoError(t, err)
			assert.Equal(t, kv.Key{"4"}, next.Key())
		})
	}
}

func TestTreeInsideTransaction(t *testing.T) {
	for name, s := range sessions(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tree, err := s.Tree(kv.Key{"queue"}, q)
			require.NoError(t, err)
			fillTree(t, tree, nil, "1")

			tx, err := s.BeginTransaction(ctx)
			require.NoError(t, err)
			fillTree(t, tree, tx, "2")

			outside, err := tree.Range(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, []kv.Key{{"1"}}, cursorKeys(outside))

			inside, err := tree.Range(ctx, &kv.RangeOptions{Transaction: tx})
			require.NoError(t, err)
			assert.Equal(t, []kv.Key{{"1"}, {"2"}}, cursorKeys(inside))

			head, err := tree.GetCursor(ctx, kv.Key{"1"}, tx)
			require.NoError(t, err)
			next, err := head.Next(ctx)
			require.NoError(t, err)
			require.NotNil(t, next)
			assert.Equal(t, kv.Key{"2"}, next.Key())

			require.NoError(t, tx.Commit(ctx))
			committed, err := tree.Range(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, []kv.Key{{"1"}, {"2"}}, cursorKeys(committed))
		})
	}
}

func TestMultiSegmentOrdering(t *testing.T) {
	aa, ab, ba := kv.Key{"A", "A"}, kv.Key{"A", "B"}, kv.Key{"B", "A"}
	for name, s := range sessions(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			tree, err := s.Tree(kv.Key{"ordered"}, q)
			require.NoError(t, err)
			for _, k := range []kv.Key{ba, aa, ab} {
				c, err := tree.Cursor(k, nil)
				require.NoError(t, err)
				require.NoError(t, c.Set(ctx, k.String()))
			}

			c, err := tree.GetCursor(ctx, aa, nil)
			require.NoError(t, err)
			require.NotNil(t, c)
			forward := []kv.Key{c.Key()}
			for {
				c, err = c.Next(ctx)
				require.NoError(t, err)
				if c == nil {
					break
				}
				forward = append(forward, c.Key())
			}
			assert.Equal(t, []kv.Key{aa, ab, ba}, forward)

			c, err = tree.GetCursor(ctx, ba, nil)
			require.NoError(t, err)
			require.NotNil(t, c)
			backward := []kv.Key{c.Key()}
			for {
				c, err = c.Prev(ctx)
				require.NoError(t, err)
				if c == nil {
					break
				}
				backward = append(backward, c.Key())
			}
			assert.Equal(t, []kv.Key{ba, ab, aa}, backward)

			cases := []struct {
				name string
				opts *kv.RangeOptions
				want []kv.Key
			}{
				{name: "all", opts: nil, want: []kv.Key{aa, ab, ba}},
				{name: "first exclusive", opts: &kv.RangeOptions{First: aa}, want: []kv.Key{ab, ba}},
				{name: "last inclusive", opts: &kv.RangeOptions{Last: ab}, want: []kv.Key{aa, ab}},
				{name: "limit", opts: &kv.RangeOptions{Limit: 2}, want: []kv.Key{aa, ab}},
			}
			for _, tc := range cases {
				got, err := tree.Range(ctx, tc.opts)
				require.NoError(t, err, tc.name)
				assert.Equal(t, tc.want, cursorKeys(got), tc.name)
			}
		})
	}
}
