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

package semaphore

import (
	"context"

	sdksem "golang.org/x/sync/semaphore"
)

type sem struct {
	s *sdksem.Weighted
	x context.Context
	c context.CancelFunc
	n int
}

// New returns a Semaphore allowing nbrSimultaneous concurrent workers,
// bounded by ctx. A zero or negative bound falls back to MaxSimultaneous.
func New(ctx context.Context, nbrSimultaneous int, progress bool) Semaphore {
	n := SetSimultaneous(nbrSimultaneous)
	x, c := context.WithCancel(ctx)

	return &sem{
		s: sdksem.NewWeighted(int64(n)),
		x: x,
		c: c,
		n: n,
	}
}

func (o *sem) NewWorker() error {
	return o.s.Acquire(o.x, 1)
}

func (o *sem) NewWorkerTry() bool {
	return o.s.TryAcquire(1)
}

func (o *sem) DeferWorker() {
	o.s.Release(1)
}

func (o *sem) WaitAll() error {
	if err := o.s.Acquire(o.x, int64(o.n)); err != nil {
		return err
	}
	o.s.Release(int64(o.n))
	return nil
}

func (o *sem) DeferMain() {
	o.c()
}

func (o *sem) Weighted() int {
	return o.n
}

func (o *sem) Context() context.Context {
	return o.x
}
