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
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/jaustindavid/backupnet/cfgfile"
	liblog "github.com/jaustindavid/backupnet/logger"
	"github.com/jaustindavid/backupnet/persist"
	librun "github.com/jaustindavid/backupnet/runner"
	libscn "github.com/jaustindavid/backupnet/scanner"
	libsts "github.com/jaustindavid/backupnet/stats"
	"github.com/jaustindavid/backupnet/transport"
	"github.com/jaustindavid/backupnet/wire"
)

// State labels, purely informational.
const (
	stateStartup     = "startup"
	stateScanning    = "scanning"
	stateSelecting   = "selecting files"
	stateRebalancing = "rebalancing files"
	stateCopying     = "copying & claiming"
	stateResting     = "resting"
)

// lastCopy outcomes throttle fruitless retries across cycles.
const (
	copySuccess    = "success"
	copyNoSpace    = "not enough space"
	copyUnknown    = "unknown"
	historyKeyCopy = "last_copy"
)

// sourceHandle is one source context seen from this clientlet: its config,
// its connection, and the metadata learned from its servlet.
type sourceHandle struct {
	src *cfgfile.SourceConfig
	cli *transport.Client

	mu      sync.Mutex
	copies  int
	rescan  time.Duration
	metaAge time.Time
}

type clt struct {
	snap *cfgfile.Snapshot
	cfg  *cfgfile.BackupConfig
	opt  Options
	log  liblog.Logger
	cnt  *libsts.Counters

	sources []*sourceHandle

	renewals persist.Dict
	history  persist.Dict

	state    *libsts.State
	bailOnce sync.Once
	bail     chan struct{}

	lastCopy string
}

func (o *clt) ID() string { return o.cfg.ID }

func (o *clt) State() string { return o.state.Current() }

func (o *clt) StateTotals() map[string]time.Duration { return o.state.Totals() }

func (o *clt) Bail() { o.bailOnce.Do(func() { close(o.bail) }) }

func (o *clt) Stats() map[string]int64 { return o.cnt.Snapshot() }

func (o *clt) Close() error {
	for _, h := range o.sources {
		h.cli.Close()
	}
	if o.renewals != nil {
		_ = o.renewals.Close()
	}
	if o.history != nil {
		return o.history.Close()
	}
	return nil
}

// root returns the local directory holding replicas of one source context.
func (o *clt) root(sourceID string) string {
	return filepath.Join(o.cfg.Path, sourceID)
}

// Run is the forever loop: a one-time startup reconciliation, then
// rescan / crawl / rest until stopped.
func (o *clt) Run(ctx context.Context) error {
	defer func() {
		librun.RecoveryCaller("clientlet/Run", recover())
	}()

	o.startup()

	for {
		if err := o.Crawl(ctx); err != nil {
			o.logError("crawl failed", err)
		}

		o.state.Enter(stateResting)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.bail:
			return nil
		case <-time.After(o.restInterval()):
		}
	}
}

// startup resets this client's footprint at every source: forget whatever
// the fleet remembers about us, then re-claim exactly what is on disk.
func (o *clt) startup() {
	o.state.Enter(stateStartup)

	local := o.scanLocal()

	for _, h := range o.sources {
		if _, err := o.call(h, wire.ActionUnclaimAll, nil); err != nil {
			o.logError("startup unclaim all failed", err)
			continue
		}

		var paths []string
		for k := range local {
			if k.source == h.src.ID {
				paths = append(paths, k.path)
			}
		}
		if len(paths) == 0 {
			continue
		}
		if _, err := o.call(h, wire.ActionClaim, paths); err != nil {
			o.logError("startup claim failed", err)
			continue
		}
		o.recordRenewals(h.src.ID, paths)
	}
}

// restInterval is a randomized [rescan/4, rescan/2] over the smallest rescan
// of any source, so clientlets never beat in lockstep.
func (o *clt) restInterval() time.Duration {
	min := time.Duration(0)
	for _, h := range o.sources {
		h.mu.Lock()
		r := h.rescan
		h.mu.Unlock()
		if r > 0 && (min == 0 || r < min) {
			min = r
		}
	}
	if min == 0 {
		if d := o.snap.DefaultRescan.Time(); d > 0 {
			min = d
		} else {
			min = time.Minute
		}
	}

	quarter := min / 4
	return quarter + time.Duration(rand.Int63n(int64(quarter)+1))
}

// Allocation recomputes the byte budget: static size, or free-space-derived
// when the context runs on a reserve.
func (o *clt) Allocation() int64 {
	if o.cfg.HasSize {
		return o.cfg.Size
	}

	used := int64(0)
	for _, size := range o.scanLocal() {
		used += size
	}

	free, err := o.opt.FreeBytes(o.cfg.Path)
	if err != nil {
		o.logError("cannot stat filesystem", err)
		return used // stand pat: keep what we have, take nothing new
	}

	alloc := used + free - o.cfg.Reserve
	if alloc < 0 {
		return 0
	}
	return alloc
}

// scanLocal walks every per-source subdirectory under the backup root.
func (o *clt) scanLocal() map[uriKey]int64 {
	out := map[uriKey]int64{}
	for _, h := range o.sources {
		root := o.root(h.src.ID)
		if _, err := os.Stat(root); err != nil {
			continue
		}
		listing, err := libscn.New(root, o.cfg.IgnoreSuffix).Scan()
		if err != nil {
			o.logError("local scan failed", err)
			continue
		}
		for path, size := range listing {
			out[uriKey{h.src.ID, path}] = size
		}
	}
	return out
}

// call performs one RPC against a source servlet. A nil response with no
// transport error means "nothing to do for that source this cycle".
func (o *clt) call(h *sourceHandle, action wire.Action, paths []string) (wire.Value, error) {
	req := wire.Request{
		Action:   action,
		Source:   h.src.ID,
		ClientID: o.cfg.ID,
	}
	if paths != nil {
		req.Args = []wire.Value{wire.FromStrings(paths)}
	}
	return h.cli.Call(req.Encode())
}

// metadata returns the source's copies/rescan pair, refreshing it from the
// servlet once per rescan period.
func (o *clt) metadata(h *sourceHandle) (copies int, rescan time.Duration, err error) {
	h.mu.Lock()
	fresh := h.copies > 0 && h.rescan > 0 && time.Since(h.metaAge) < h.rescan
	copies, rescan = h.copies, h.rescan
	h.mu.Unlock()
	if fresh {
		return copies, rescan, nil
	}

	resp, err := o.call(h, wire.ActionMetadata, nil)
	if err != nil {
		return 0, 0, err
	}
	if resp.IsNull() {
		return 0, 0, transport.ErrorNotConnected.Error(nil)
	}

	c, _ := mapInt(resp, "copies")
	r, _ := mapInt(resp, "rescan")

	h.mu.Lock()
	h.copies = int(c)
	h.rescan = time.Duration(r) * time.Second
	h.metaAge = time.Now()
	copies, rescan = h.copies, h.rescan
	h.mu.Unlock()

	return copies, rescan, nil
}

func mapInt(v wire.Value, key string) (int64, bool) {
	e, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	return e.Int()
}

// renewal bookkeeping: a local claim is valid while its recorded timestamp
// plus the source's rescan is still in the future.

func renewalKey(sourceID, path string) string { return sourceID + "/" + path }

func (o *clt) renewalValid(h *sourceHandle, path string) bool {
	if o.renewals == nil {
		return false
	}
	raw, ok := o.renewals.Get(renewalKey(h.src.ID, path))
	if !ok {
		return false
	}
	var ts int64
	if json.Unmarshal(raw, &ts) != nil {
		return false
	}

	h.mu.Lock()
	rescan := h.rescan
	h.mu.Unlock()

	return time.Unix(ts, 0).Add(rescan).After(time.Now())
}

func (o *clt) recordRenewals(sourceID string, paths []string) {
	if o.renewals == nil {
		return
	}
	now := []byte(strconv.FormatInt(time.Now().Unix(), 10))
	for _, p := range paths {
		o.renewals.Set(renewalKey(sourceID, p), json.RawMessage(now))
	}
}

func (o *clt) forgetRenewal(sourceID, path string) {
	if o.renewals != nil {
		o.renewals.Delete(renewalKey(sourceID, path))
	}
}

func (o *clt) setLastCopy(v string) {
	o.lastCopy = v
	if o.history != nil {
		raw, _ := json.Marshal(v)
		o.history.Set(historyKeyCopy, raw)
	}
}

func (o *clt) logError(msg string, err error) {
	if o.log != nil {
		o.log.Error(msg, nil, err)
	}
}

func (o *clt) logInfo(msg string, data interface{}) {
	if o.log != nil {
		o.log.Info(msg, data)
	}
}
