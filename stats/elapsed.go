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

package stats

import (
	"sync"
	"time"
)

// Elapsed is a small start/stop/total timer (see DESIGN.md supplemented
// features).
type Elapsed struct {
	start   time.Time
	running bool
	total   time.Duration
}

func (e *Elapsed) Start() {
	if e.running {
		return
	}
	e.start = time.Now()
	e.running = true
}

func (e *Elapsed) Stop() time.Duration {
	if !e.running {
		return e.total
	}
	e.total += time.Since(e.start)
	e.running = false
	return e.total
}

func (e *Elapsed) Total() time.Duration {
	if e.running {
		return e.total + time.Since(e.start)
	}
	return e.total
}

func (e *Elapsed) Reset() {
	e.total = 0
	e.running = false
}

// State is the clientlet's monotonic time-in-state accumulator: purely
// informational, no semantics depend on it.
type State struct {
	mu      sync.Mutex
	current string
	since   time.Time
	totals  map[string]time.Duration
}

func NewState(initial string) *State {
	return &State{current: initial, since: time.Now(), totals: map[string]time.Duration{}}
}

// Enter switches the accumulator to label, folding the time spent in the
// previous label into its running total.
func (s *State) Enter(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.totals[s.current] += now.Sub(s.since)
	s.current = label
	s.since = now
}

func (s *State) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *State) Totals() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]time.Duration, len(s.totals)+1)
	for k, v := range s.totals {
		out[k] = v
	}
	out[s.current] += time.Since(s.since)
	return out
}
