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

// Package semaphore bounds the number of worker goroutines running at once.
// It wraps golang.org/x/sync/semaphore.Weighted with the worker/defer calling
// convention used by the aggregator and the clientlet's source polling.
package semaphore

import (
	"context"
	"runtime"
)

// Semaphore bounds concurrent workers. A caller acquires a slot with
// NewWorker (blocking) or NewWorkerTry (non-blocking), releases it with
// DeferWorker, and waits for all outstanding workers with WaitAll. DeferMain
// cancels the semaphore's own context; call it when abandoning the semaphore.
type Semaphore interface {
	// NewWorker blocks until a worker slot is free or the context is done.
	NewWorker() error

	// NewWorkerTry acquires a slot without blocking, reporting success.
	NewWorkerTry() bool

	// DeferWorker releases one worker slot. Call it (usually deferred) once
	// per successful NewWorker / NewWorkerTry.
	DeferWorker()

	// WaitAll blocks until every outstanding worker slot has been released
	// or the context is done.
	WaitAll() error

	// DeferMain cancels the context derived for the semaphore, so blocked
	// NewWorker and WaitAll calls return. Slots still held are not released.
	DeferMain()

	// Weighted returns the configured number of simultaneous workers.
	Weighted() int

	// Context returns the context bounding every blocking acquire.
	Context() context.Context
}

// MaxSimultaneous returns the default worker bound: the number of usable CPUs.
func MaxSimultaneous() int {
	return runtime.GOMAXPROCS(0)
}

// SetSimultaneous returns nbr, falling back to MaxSimultaneous when nbr is
// zero or negative.
func SetSimultaneous(nbr int) int {
	if nbr > 0 {
		return nbr
	}
	return MaxSimultaneous()
}
