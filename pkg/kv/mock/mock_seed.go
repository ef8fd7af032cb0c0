package mock

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/acapella/kv_sdk_go/internal/devseed"
	"github.com/acapella/kv_sdk_go/internal/kvapi"
	"github.com/acapella/kv_sdk_go/pkg/kv"
)

// Seed loads committed entries and tree positions (typically decoded via
// devseed.Load). Seeded entries overwrite existing ones.
func (s *Store) Seed(seed *devseed.Seed) error {
	if seed == nil {
		return nil
	}
	if err := seed.Validate(); err != nil {
		return errors.Wrap(err, "mock: seed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range seed.Entries {
		version := e.Version
		if version == 0 {
			version = 1
		}
		s.entries[kvapi.EncodeKey(e.Key)] = &record{version: version, value: seedValue(e.Value)}
	}
	for _, t := range seed.Trees {
		tree := s.treeLocked(kvapi.EncodeKey(t.Name), true)
		for _, c := range t.Cursors {
			tree.ReplaceOrInsert(&node{key: kv.Key(append([]string(nil), c.Key...)), value: seedValue(c.Value)})
		}
	}
	s.notifyLocked()
	return nil
}

func seedValue(raw json.RawMessage) json.RawMessage {
	return kvapi.NormalizeValue(append(json.RawMessage(nil), raw...))
}
