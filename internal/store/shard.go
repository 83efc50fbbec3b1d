// Package store implements the C1 keyed stores: sharded on-disk maps with
// a planning/query/mutation/flush discipline.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by shardSet.get when the key is absent; the
// stores' Get methods turn it into ok == false.
var ErrNotFound = errors.New("store: not found")

// noopLogger silences pebble's own logging; the indexer's own syslogs
// package is the single place structured diagnostics are emitted to.
type noopLogger struct{}

func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Fatalf(string, ...interface{}) {}
func (noopLogger) Errorf(string, ...interface{}) {}

// shardSet is the engine behind every C1 store: a fixed array of pebble
// shards plus a pending-puts/removals buffer that is only made visible to
// Get on Flush.
type shardSet struct {
	shards []*pebble.DB
	opened []bool

	mu       sync.Mutex // guards pending maps; touched only by the driver thread
	pending  map[int]map[string][]byte
	removed  map[int]map[string]struct{}
}

func openShardSet(dir string, shardCount int) (*shardSet, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create dir %s: %w", dir, err)
	}
	s := &shardSet{
		shards:  make([]*pebble.DB, shardCount),
		opened:  make([]bool, shardCount),
		pending: make(map[int]map[string][]byte),
		removed: make(map[int]map[string]struct{}),
	}
	opts := &pebble.Options{Logger: noopLogger{}}
	for i := 0; i < shardCount; i++ {
		db, err := pebble.Open(filepath.Join(dir, fmt.Sprintf("shard_%03d", i)), opts)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("store: open shard %d: %w", i, err)
		}
		s.shards[i] = db
		s.opened[i] = true
	}
	return s, nil
}

// openShard is a no-op once every shard is opened eagerly at construction;
// it exists to satisfy the planning-phase contract when a future store
// variant lazily opens shards on first touch.
func (s *shardSet) openShard(shard int) error {
	if shard < 0 || shard >= len(s.shards) {
		return fmt.Errorf("store: shard %d out of range", shard)
	}
	return nil
}

// get is only valid for keys whose shard was opened during this block's
// planning phase; callers enforce that by construction (all shards are
// opened up front here).
func (s *shardSet) get(shard int, key []byte) ([]byte, error) {
	db := s.shards[shard]
	v, closer, err := db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), v...), nil
}

func (s *shardSet) getPending(shard int, key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[shard]
	if !ok {
		return nil, false
	}
	v, ok := m[string(key)]
	return v, ok
}

// insert buffers a put; it is not visible to get until Flush applies it.
// It returns the previous pending value, if one existed for this key.
func (s *shardSet) insert(shard int, key, value []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[shard]
	if !ok {
		m = make(map[string][]byte)
		s.pending[shard] = m
	}
	prev := m[string(key)]
	m[string(key)] = append([]byte(nil), value...)
	return prev
}

func (s *shardSet) removePending(shard int, key []byte) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[shard]
	if !ok {
		return nil, false
	}
	v, ok := m[string(key)]
	if ok {
		delete(m, string(key))
	}
	return v, ok
}

func (s *shardSet) remove(shard int, key []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.removed[shard]
	if !ok {
		m = make(map[string]struct{})
		s.removed[shard] = m
	}
	m[string(key)] = struct{}{}
}

// flush applies every pending put and removal to disk, shard by shard, in
// parallel (§5: "per-shard flush at export"). A failed shard flush aborts
// the whole export and leaves pending buffers untouched so the caller can
// retry or abort the run without losing data.
func (s *shardSet) flush() error {
	type result struct {
		shard int
		err   error
	}
	results := make(chan result, len(s.shards))
	var wg sync.WaitGroup

	s.mu.Lock()
	pending := s.pending
	removed := s.removed
	s.mu.Unlock()

	for shard, db := range s.shards {
		puts := pending[shard]
		dels := removed[shard]
		if len(puts) == 0 && len(dels) == 0 {
			continue
		}
		wg.Add(1)
		go func(shard int, db *pebble.DB, puts map[string][]byte, dels map[string]struct{}) {
			defer wg.Done()
			batch := db.NewBatch()
			for k, v := range puts {
				if err := batch.Set([]byte(k), v, nil); err != nil {
					results <- result{shard, err}
					return
				}
			}
			for k := range dels {
				if err := batch.Delete([]byte(k), nil); err != nil {
					results <- result{shard, err}
					return
				}
			}
			if err := batch.Commit(pebble.Sync); err != nil {
				results <- result{shard, err}
				return
			}
			results <- result{shard, nil}
		}(shard, db, puts, dels)
	}
	wg.Wait()
	close(results)

	var firstErr error
	for r := range results {
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("store: flush shard %d: %w", r.shard, r.err)
		}
	}
	if firstErr != nil {
		return firstErr
	}

	s.mu.Lock()
	s.pending = make(map[int]map[string][]byte)
	s.removed = make(map[int]map[string]struct{})
	s.mu.Unlock()
	return nil
}

func (s *shardSet) Close() error {
	var firstErr error
	for _, db := range s.shards {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
