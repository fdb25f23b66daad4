/***********************************************************************************************************************
 *
 *   MIT License
 *
 *   Copyright (c) 2022 Nicolas JUHEL
 *
 *   Permission is hereby granted, free of charge, to any person obtaining a copy
 *   of this software and associated documentation files (the "Software"), to deal
 *   in the Software without restriction, including without limitation the rights
 *   to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 *   copies of the Software, and to permit persons to whom the Software is
 *   furnished to do so, subject to the following conditions:
 *
 *   The above copyright notice and this permission notice shall be included in all
 *   copies or substantial portions of the Software.
 *
 *   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 *   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 *   AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 *   LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 *   OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 *   SOFTWARE.
 *
 *
 **********************************************************************************************************************/

// Package startStop wraps a pair of start/stop functions into a supervised
// runner with idempotent Start/Stop/Restart and uptime tracking.
package startStop

import (
	"context"
	"fmt"
	"sync"
	"time"

	librun "github.com/jaustindavid/backupnet/runner"
)

// StartStop supervises one background task described by a start and a stop
// function. Start launches the task (spawning a goroutine if the start
// function blocks); Stop invokes the stop function and waits for the task to
// return. Both are safe to call repeatedly and concurrently.
type StartStop interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	IsRunning() bool
	Uptime() time.Duration
}

type runFunc func(ctx context.Context) error

type runner struct {
	mu      sync.Mutex
	start   runFunc
	stop    runFunc
	running bool
	since   time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns a StartStop wrapping the given start/stop functions. Either may
// be nil; invoking Start/Stop in that case returns an error instead of
// panicking.
func New(start, stop runFunc) StartStop {
	return &runner{
		start: start,
		stop:  stop,
	}
}

func (r *runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.startLocked(ctx)
}

func (r *runner) startLocked(ctx context.Context) error {
	if r.running {
		if e := r.stopLocked(ctx); e != nil {
			return e
		}
	}

	if r.start == nil {
		return fmt.Errorf("runner: no start function configured")
	}

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	r.cancel = cancel
	r.done = done
	r.running = true
	r.since = time.Now()

	go func() {
		defer close(done)
		defer func() { librun.RecoveryCaller("runner/startStop/run", recover()) }()
		_ = r.start(cctx)
	}()

	return nil
}

func (r *runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.stopLocked(ctx)
}

func (r *runner) stopLocked(ctx context.Context) error {
	if !r.running {
		return nil
	}

	var err error
	if r.stop != nil {
		err = r.stop(ctx)
	}

	if r.cancel != nil {
		r.cancel()
	}

	if r.done != nil {
		<-r.done
	}

	r.running = false
	r.cancel = nil
	r.done = nil

	return err
}

func (r *runner) Restart(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e := r.stopLocked(ctx); e != nil {
		return e
	}

	return r.startLocked(ctx)
}

func (r *runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.running
}

func (r *runner) Uptime() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return 0
	}

	return time.Since(r.since)
}
