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
	"context"
	"os"
	"path/filepath"
	"sync"

	errpool "github.com/jaustindavid/backupnet/errors/pool"
	libsem "github.com/jaustindavid/backupnet/semaphore"
	libsts "github.com/jaustindavid/backupnet/stats"
	"github.com/jaustindavid/backupnet/wire"
)

// sourceView is one source's inventory as fetched this cycle.
type sourceView struct {
	handle *sourceHandle
	copies int
	uris   []*URI
	ok     bool
}

// Crawl is one full cycle: fetch every source's metadata and inventory,
// rehearse the plan, then commit it: drops, claims, copies, re-claims.
func (o *clt) Crawl(ctx context.Context) error {
	var el libsts.Elapsed
	el.Start()

	o.state.Enter(stateScanning)

	local := o.scanLocal()
	views := o.fetchViews(ctx)

	// bytes held for sources we could not reach stay pinned: their files are
	// not up for planning, but they still occupy the allocation
	reachable := map[string]bool{}
	for _, v := range views {
		if v.ok {
			reachable[v.handle.src.ID] = true
		}
	}

	var pinned int64
	planLocal := map[uriKey]int64{}
	for k, size := range local {
		if reachable[k.source] {
			planLocal[k] = size
		} else {
			pinned += size
		}
	}

	var uris []*URI
	for _, v := range views {
		uris = append(uris, v.uris...)
	}

	o.state.Enter(stateSelecting)
	plan := NewPlan(o.Allocation()-pinned, uris, planLocal)
	plan.PseudoCopy()

	o.state.Enter(stateRebalancing)
	plan.PseudoRebalance()

	o.state.Enter(stateCopying)
	o.commit(plan, views)

	o.logInfo("crawl finished", map[string]interface{}{
		"backup_context": o.cfg.ID,
		"elapsed":        el.Stop().String(),
		"last_copy":      o.lastCopy,
	})
	return nil
}

// fetchViews polls every source concurrently, bounded by a worker semaphore.
// A source that cannot be reached simply contributes nothing this cycle.
func (o *clt) fetchViews(ctx context.Context) []*sourceView {
	sem := libsem.New(ctx, libsem.MaxSimultaneous(), false)
	defer sem.DeferMain()

	views := make([]*sourceView, len(o.sources))
	var wg sync.WaitGroup

	for i, h := range o.sources {
		if err := sem.NewWorker(); err != nil {
			break
		}

		wg.Add(1)
		go func(i int, h *sourceHandle) {
			defer wg.Done()
			defer sem.DeferWorker()
			views[i] = o.fetchView(h)
		}(i, h)
	}

	wg.Wait()

	out := make([]*sourceView, 0, len(views))
	for _, v := range views {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func (o *clt) fetchView(h *sourceHandle) *sourceView {
	v := &sourceView{handle: h}

	copies, _, err := o.metadata(h)
	if err != nil {
		o.logError("metadata fetch failed", err)
		return v
	}
	v.copies = copies

	resp, err := o.call(h, wire.ActionList, nil)
	if err != nil {
		o.logError("list fetch failed", err)
		return v
	}
	if resp.IsNull() {
		// source not ready or unknown: nothing to do this cycle
		return v
	}

	for _, path := range resp.Keys() {
		entry, _ := resp.Get(path)
		pair, ok := entry.List()
		if !ok || len(pair) != 2 {
			continue
		}
		size, _ := pair[0].Int()
		have, _ := pair[1].Int()
		v.uris = append(v.uris, &URI{
			Source: h.src.ID,
			Path:   path,
			Size:   size,
			Have:   int(have),
			Need:   copies,
		})
	}

	v.ok = true
	return v
}

// commit realizes the rehearsed plan: send the drops away, renew or take
// claims, copy what is missing, then look at the disk and claim what
// actually landed.
func (o *clt) commit(plan *Plan, views []*sourceView) {
	// one pool gathers every failure of the cycle; none of them aborts it
	ep := errpool.New()

	handles := map[string]*sourceHandle{}
	for _, v := range views {
		if v.ok {
			handles[v.handle.src.ID] = v.handle
		}
	}

	// drops: delete locally, then tell the source
	dropsPerSource := map[string][]string{}
	for _, u := range plan.Drops() {
		dropsPerSource[u.Source] = append(dropsPerSource[u.Source], u.Path)
	}
	for sourceID, paths := range dropsPerSource {
		h := handles[sourceID]
		if h == nil {
			continue
		}
		for _, p := range paths {
			_ = os.Remove(filepath.Join(o.root(sourceID), filepath.FromSlash(p)))
			o.forgetRenewal(sourceID, p)
		}
		if _, err := o.call(h, wire.ActionUnclaim, paths); err != nil {
			ep.Add(err)
		} else {
			o.cnt.Unclaims.Add(int64(len(paths)))
		}
	}

	// claims: every planned path whose renewal is stale, batched per source
	for sourceID, paths := range plan.Owned() {
		h := handles[sourceID]
		if h == nil {
			continue
		}

		var batch []string
		for _, p := range paths {
			if !o.renewalValid(h, p) {
				batch = append(batch, p)
			}
		}
		if len(batch) == 0 {
			continue
		}

		if resp, err := o.call(h, wire.ActionClaim, batch); err != nil {
			ep.Add(err)
		} else if !resp.IsNull() {
			o.recordRenewals(sourceID, batch)
			o.cnt.Claims.Add(int64(len(batch)))
		}
	}

	// copies: per source, everything the plan added
	addsPerSource := map[string][]string{}
	for _, u := range plan.Adds() {
		addsPerSource[u.Source] = append(addsPerSource[u.Source], u.Path)
	}

	// a cycle that just ran out of space skips its copies once instead of
	// hammering the transfer path with the same doomed plan
	throttle := o.lastCopy == copyNoSpace && plan.ProbableFree() < 0

	outcome := copySuccess
	for sourceID, paths := range addsPerSource {
		h := handles[sourceID]
		if h == nil || throttle {
			continue
		}

		if err := o.opt.Transfer(h.src.Addr, o.root(sourceID), paths); err != nil {
			ep.Add(err)
			if outcome == copySuccess {
				outcome = copyUnknown
			}
			continue
		}
	}
	if len(addsPerSource) > 0 {
		if plan.ProbableFree() < 0 {
			outcome = copyNoSpace
		}
		o.setLastCopy(outcome)
	}

	// observe reality and claim what actually landed
	local := o.scanLocal()
	claimed := map[string][]string{}
	for k := range local {
		h := handles[k.source]
		if h == nil {
			continue
		}
		if !o.renewalValid(h, k.path) {
			claimed[k.source] = append(claimed[k.source], k.path)
		}
	}
	for sourceID, paths := range claimed {
		h := handles[sourceID]
		if resp, err := o.call(h, wire.ActionClaim, paths); err != nil {
			ep.Add(err)
		} else if !resp.IsNull() {
			o.recordRenewals(sourceID, paths)
			o.cnt.Claims.Add(int64(len(paths)))
		}
	}

	if err := ep.Error(); err != nil {
		o.logError("cycle committed with errors", err)
	}

	o.logInfo("cycle committed", map[string]interface{}{
		"backup_context": o.cfg.ID,
		"planned":        len(plan.Owned()),
		"adds":           len(plan.Adds()),
		"drops":          len(plan.Drops()),
		"free":           plan.ProbableFree(),
	})
}
