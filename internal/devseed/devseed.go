// Package devseed loads fixture data for the in-memory store used by the
// sandbox and by mock-mode sessions.
package devseed

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// EntrySeed is one versioned entry. Version 0 lets the store assign 1.
type EntrySeed struct {
	Key     []string        `json:"key"`
	Value   json.RawMessage `json:"value"`
	Version int64           `json:"version,omitempty"`
}

// CursorSeed is one tree position.
type CursorSeed struct {
	Key   []string        `json:"key"`
	Value json.RawMessage `json:"value"`
}

// TreeSeed lists the positions of one tree.
type TreeSeed struct {
	Name    []string     `json:"name"`
	Cursors []CursorSeed `json:"cursors"`
}

// Seed is the document stored in a seed file.
type Seed struct {
	Entries []EntrySeed `json:"entries"`
	Trees   []TreeSeed  `json:"trees"`
}

// Load reads and validates a seed file.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "devseed: read %s", path)
	}
	seed, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "devseed: %s", path)
	}
	return seed, nil
}

// Parse decodes a seed document. Unknown fields are rejected so typos in
// fixtures surface early.
func Parse(data []byte) (*Seed, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks every key and tree name is non-empty with non-empty
// segments, and versions are not negative.
func (s *Seed) Validate() error {
	for i, e := range s.Entries {
		if err := checkKey(e.Key); err != nil {
			return errors.Wrapf(err, "entries[%d].key", i)
		}
		if e.Version < 0 {
			return errors.Errorf("entries[%d].version must not be negative", i)
		}
	}
	for i, t := range s.Trees {
		if err := checkKey(t.Name); err != nil {
			return errors.Wrapf(err, "trees[%d].name", i)
		}
		for j, c := range t.Cursors {
			if err := checkKey(c.Key); err != nil {
				return errors.Wrapf(err, "trees[%d].cursors[%d].key", i, j)
			}
		}
	}
	return nil
}

func checkKey(key []string) error {
	if len(key) == 0 {
		return errors.New("key is required")
	}
	for _, part := range key {
		if strings.TrimSpace(part) == "" {
			return errors.New("key segments must not be blank")
		}
	}
	return nil
}
