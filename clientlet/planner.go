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

package clientlet

import (
	"math"
	"sort"
)

// URI is one candidate file in the planner's working set: where it lives,
// how big it is, and how well served it already is across the fleet.
type URI struct {
	Source string
	Path   string
	Size   int64
	Have   int
	Need   int
}

// Ratio is have/need, the planner's sort key: below 1.0 the file is
// underserved, above it overserved.
func (u *URI) Ratio() float64 {
	if u.Need <= 0 {
		return math.Inf(1)
	}
	return float64(u.Have) / float64(u.Need)
}

type uriKey struct {
	source string
	path   string
}

// Plan is one cycle's rehearsal: the files to hold, rehearsed entirely in
// memory before anything touches the network or the disk.
type Plan struct {
	alloc int64
	uris  []*URI
	owned map[uriKey]*URI
	used  int64

	adds  []*URI
	drops []*URI
}

// NewPlan builds the priority list from the fleet inventory and marks the
// files currently held on disk as owned. uris is sorted by size ascending,
// then stably by ratio ascending, so underserved-and-small come first.
func NewPlan(alloc int64, uris []*URI, ownedOnDisk map[uriKey]int64) *Plan {
	sorted := make([]*URI, len(uris))
	copy(sorted, uris)

	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Size < sorted[j].Size })
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ratio() < sorted[j].Ratio() })

	p := &Plan{
		alloc: alloc,
		uris:  sorted,
		owned: map[uriKey]*URI{},
	}

	for _, u := range sorted {
		k := uriKey{u.Source, u.Path}
		if _, ok := ownedOnDisk[k]; ok {
			p.owned[k] = u
			p.used += u.Size
		}
	}

	return p
}

// ProbableFree is the allocation headroom left once every planned file is
// accounted for. It goes negative when a dynamic reserve shrank under us.
func (p *Plan) ProbableFree() int64 { return p.alloc - p.used }

func (p *Plan) Owns(u *URI) bool {
	_, ok := p.owned[uriKey{u.Source, u.Path}]
	return ok
}

// Owned returns the planned set as {source → paths}.
func (p *Plan) Owned() map[string][]string {
	out := map[string][]string{}
	for k := range p.owned {
		out[k.source] = append(out[k.source], k.path)
	}
	for s := range out {
		sort.Strings(out[s])
	}
	return out
}

// Adds returns the files the rehearsal decided to take on, Drops the ones it
// decided to let go.
func (p *Plan) Adds() []*URI  { return p.adds }
func (p *Plan) Drops() []*URI { return p.drops }

func (p *Plan) add(u *URI) {
	p.owned[uriKey{u.Source, u.Path}] = u
	p.used += u.Size
	p.adds = append(p.adds, u)
	u.Have++
}

func (p *Plan) drop(u *URI) {
	delete(p.owned, uriKey{u.Source, u.Path})
	p.used -= u.Size
	p.drops = append(p.drops, u)
	u.Have--
}

// PseudoCopy walks the priority list in order and takes every file that fits
// in the remaining headroom, bumping its coverage as it goes.
func (p *Plan) PseudoCopy() {
	for _, u := range p.uris {
		if p.Owns(u) {
			continue
		}
		if u.Size <= p.ProbableFree() {
			p.add(u)
		}
	}
}

// PseudoRebalance trades overserved files for underserved ones once the easy
// headroom is gone. First it digs out of a negative headroom (dynamic
// reserve shrank); then it walks the priority list again, dropping
// much-better-served files to make room for the candidate at hand.
func (p *Plan) PseudoRebalance() {
	for p.ProbableFree() < 0 {
		if p.DropOverserved(-p.ProbableFree(), 1.0) == 0 {
			break
		}
	}

	for _, u := range p.uris {
		if p.Owns(u) {
			continue
		}

		r := u.Ratio()
		if r > 1.0 && r+2 > p.topServedRatio() {
			break
		}

		if u.Size <= p.ProbableFree() {
			p.add(u)
			continue
		}

		minRatio := r + 2
		if r < 1 {
			minRatio = 1.0
		}

		if p.DropOverserved(u.Size-p.ProbableFree(), minRatio) > 0 {
			if u.Size <= p.ProbableFree() {
				p.add(u)
			}
		}
	}
}

func (p *Plan) topServedRatio() float64 {
	top := math.Inf(-1)
	for _, u := range p.owned {
		if r := u.Ratio(); r > top {
			top = r
		}
	}
	return top
}

// DropOverserved walks the priority list from the most-served end, collecting
// owned files whose ratio exceeds minRatio until it has reclaimed need bytes.
// All-or-nothing: if the walk cannot cover need, nothing is dropped.
func (p *Plan) DropOverserved(need int64, minRatio float64) int64 {
	var (
		victims   []*URI
		reclaimed int64
	)

	for i := len(p.uris) - 1; i >= 0 && reclaimed < need; i-- {
		u := p.uris[i]
		if u.Ratio() < minRatio {
			break
		}
		if !p.Owns(u) || u.Ratio() <= minRatio {
			continue
		}
		victims = append(victims, u)
		reclaimed += u.Size
	}

	if reclaimed < need {
		return 0
	}

	for _, u := range victims {
		p.drop(u)
	}
	return reclaimed
}
