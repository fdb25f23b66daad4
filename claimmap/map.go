/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package claimmap implements an expiring claim map: a mapping from file
// path to a set of (client_id -> expiry_time) entries with automatic
// eviction. Mutation is serialized per path by a small sharded lock (see
// DESIGN.md) instead of one global mutex, so unrelated files proceed in
// parallel under concurrent servlet handlers.
package claimmap

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jaustindavid/backupnet/persist"
)

const shardCount = 32

type shard struct {
	mu     sync.Mutex
	claims map[string]map[string]time.Time
}

// Map is the expiring claim map. It is safe for concurrent Add/Remove/Count
// from many servlet request handlers and a periodic expiry sweeper.
type Map struct {
	shards [shardCount]*shard
	dict   persist.Dict
}

// New builds an empty, unpersisted claim map.
func New() *Map {
	m := &Map{}
	for i := range m.shards {
		m.shards[i] = &shard{claims: map[string]map[string]time.Time{}}
	}
	return m
}

// NewPersisted builds a claim map whose state is backed by dict: existing
// entries are loaded immediately and every mutation is lazily persisted
// through dict's own flush cadence.
func NewPersisted(dict persist.Dict) *Map {
	m := New()
	m.dict = dict
	dict.Iterate(func(path string, raw json.RawMessage) bool {
		var claims map[string]time.Time
		if json.Unmarshal(raw, &claims) != nil {
			return true
		}
		m.shardFor(path).claims[path] = claims
		return true
	})
	return m
}

func (m *Map) shardFor(path string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(path))
	return m.shards[h.Sum32()%shardCount]
}

func (m *Map) persist(path string, claims map[string]time.Time) {
	if m.dict == nil {
		return
	}
	if len(claims) == 0 {
		m.dict.Delete(path)
		return
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return
	}
	m.dict.Set(path, raw)
}

// Add sets claimants[path][client] = now + ttl. Idempotent: repeating the
// same Add simply extends the expiry again.
func (m *Map) Add(path, client string, ttl time.Duration) {
	s := m.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	claims, ok := s.claims[path]
	if !ok {
		claims = map[string]time.Time{}
		s.claims[path] = claims
	}
	claims[client] = time.Now().Add(ttl)
	m.persist(path, claims)
}

// Remove deletes client's claim on path, if any.
func (m *Map) Remove(path, client string) {
	s := m.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	claims, ok := s.claims[path]
	if !ok {
		return
	}
	delete(claims, client)
	if len(claims) == 0 {
		delete(s.claims, path)
	}
	m.persist(path, claims)
}

// RemoveAll removes every claim held by client across every path, atomically
// with respect to concurrent requests: every shard is locked, in index order,
// before any claim is removed, and all are released together afterwards.
// Every other operation holds at most one shard at a time, so this never
// deadlocks against them.
func (m *Map) RemoveAll(client string) {
	for _, s := range m.shards {
		s.mu.Lock()
	}
	defer func() {
		for _, s := range m.shards {
			s.mu.Unlock()
		}
	}()

	for _, s := range m.shards {
		for path, claims := range s.claims {
			if _, ok := claims[client]; !ok {
				continue
			}
			delete(claims, client)
			if len(claims) == 0 {
				delete(s.claims, path)
			}
			m.persist(path, claims)
		}
	}
}

// Active returns the clients with a live claim on path, transparently
// dropping any expired entry it encounters.
func (m *Map) Active(path string) []string {
	s := m.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	claims, ok := s.claims[path]
	if !ok {
		return nil
	}

	now := time.Now()
	out := make([]string, 0, len(claims))
	for client, expiry := range claims {
		if expiry.After(now) {
			out = append(out, client)
		} else {
			delete(claims, client)
		}
	}
	if len(claims) == 0 {
		delete(s.claims, path)
	}
	m.persist(path, claims)
	return out
}

// Count returns the cardinality of Active(path).
func (m *Map) Count(path string) int {
	return len(m.Active(path))
}

// Paths returns every path currently tracked (including paths whose claims
// have since expired but not yet been swept).
func (m *Map) Paths() []string {
	out := make([]string, 0)
	for _, s := range m.shards {
		s.mu.Lock()
		for path := range s.claims {
			out = append(out, path)
		}
		s.mu.Unlock()
	}
	return out
}

// Sweep walks every tracked path and evicts expired claimants. Intended to
// run on a periodic timer alongside Active's lazy, per-path eviction.
func (m *Map) Sweep() {
	for _, path := range m.Paths() {
		m.Active(path)
	}
}

// Snapshot returns a deep copy of the whole claim map for audit purposes.
func (m *Map) Snapshot() map[string]map[string]time.Time {
	out := map[string]map[string]time.Time{}
	for _, s := range m.shards {
		s.mu.Lock()
		for path, claims := range s.claims {
			cp := make(map[string]time.Time, len(claims))
			for c, t := range claims {
				cp[c] = t
			}
			out[path] = cp
		}
		s.mu.Unlock()
	}
	return out
}
