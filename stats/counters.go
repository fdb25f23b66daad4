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

// Package stats holds running counters, an elapsed-time timer, and the
// clientlet's state-label accumulator, used for periodic audit logging.
package stats

import "sync/atomic"

// Counters holds the per-servlet/per-clientlet statistics: claims,
// unclaims, files listed, premature drops.
type Counters struct {
	Claims         atomic.Int64
	Unclaims       atomic.Int64
	FilesListed    atomic.Int64
	PrematureDrops atomic.Int64
}

func (c *Counters) Snapshot() map[string]int64 {
	return map[string]int64{
		"claims":          c.Claims.Load(),
		"unclaims":        c.Unclaims.Load(),
		"files_listed":    c.FilesListed.Load(),
		"premature_drops": c.PrematureDrops.Load(),
	}
}
