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

package servlet

import (
	"context"
	"sync/atomic"
	"time"

	libatm "github.com/jaustindavid/backupnet/atomic"
	"github.com/jaustindavid/backupnet/cfgfile"
	"github.com/jaustindavid/backupnet/claimmap"
	liblog "github.com/jaustindavid/backupnet/logger"
	librun "github.com/jaustindavid/backupnet/runner"
	libscn "github.com/jaustindavid/backupnet/scanner"
	libsts "github.com/jaustindavid/backupnet/stats"
	"github.com/jaustindavid/backupnet/wire"
)

type srv struct {
	cfg    *cfgfile.SourceConfig
	scn    libscn.Scanner
	claims *claimmap.Map
	log    liblog.Logger
	cnt    *libsts.Counters

	// inv is the stable inventory snapshot list readers observe; only the
	// scan loop replaces it.
	inv   libatm.Value[map[string]int64]
	ready atomic.Bool
}

func (o *srv) ID() string { return o.cfg.ID }

func (o *srv) Ready() bool { return o.ready.Load() }

func (o *srv) Claims() *claimmap.Map { return o.claims }

func (o *srv) Stats() map[string]int64 { return o.cnt.Snapshot() }

func (o *srv) inventory() map[string]int64 {
	return o.inv.Load()
}

func (o *srv) Rescan() error {
	m, err := o.scn.Scan()
	if err != nil {
		return err
	}

	o.inv.Store(m)
	o.ready.Store(true)

	o.logDebug("inventory rebuilt", map[string]interface{}{"files": len(m)})
	return nil
}

// Run is the scan loop: first scan gates readiness, then one rescan per
// interval. A filesystem watch, when available, only accelerates the next
// tick; the periodic rescan stays authoritative.
func (o *srv) Run(ctx context.Context) error {
	defer func() {
		librun.RecoveryCaller("servlet/Run", recover())
	}()

	if err := o.Rescan(); err != nil {
		return ErrorFirstScan.Error(err)
	}

	kick := make(chan struct{}, 1)
	if stop, err := o.scn.Watch(func() {
		select {
		case kick <- struct{}{}:
		default:
		}
	}); err == nil {
		defer stop()
	}

	tick := time.NewTicker(o.rescanInterval())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		case <-kick:
		}

		if err := o.Rescan(); err != nil {
			o.logError("rescan failed", err)
		}
	}
}

func (o *srv) rescanInterval() time.Duration {
	if d := o.cfg.Rescan.Time(); d > 0 {
		return d
	}
	return time.Minute
}

func (o *srv) Dispatch(req wire.Request) wire.Response {
	if !o.ready.Load() {
		return wire.Null()
	}

	switch req.Action {
	case wire.ActionMetadata:
		return o.metadata()
	case wire.ActionList:
		return o.list()
	case wire.ActionClaim:
		return o.claim(req.ClientID, argPaths(req.Args))
	case wire.ActionUnclaim:
		return o.unclaim(req.ClientID, argPaths(req.Args))
	case wire.ActionUnclaimAll:
		return o.unclaimAll(req.ClientID)
	default:
		return wire.Null()
	}
}

func (o *srv) metadata() wire.Response {
	return wire.NewMap().
		Set("copies", wire.Int(int64(o.cfg.Copies))).
		Set("rescan", wire.Int(int64(o.rescanInterval()/time.Second)))
}

func (o *srv) list() wire.Response {
	// sweep first so stale clients are invisible to deciding clients
	o.claims.Sweep()

	inv := o.inventory()
	out := wire.NewMap()
	for path, size := range inv {
		out = out.Set(path, wire.List(
			wire.Int(size),
			wire.Int(int64(o.claims.Count(path))),
		))
	}

	o.cnt.FilesListed.Add(int64(len(inv)))
	return out
}

func (o *srv) claim(client string, paths []string) wire.Response {
	if client == "" {
		return wire.Null()
	}

	ttl := o.rescanInterval()
	for _, p := range paths {
		o.claims.Add(p, client, ttl)
	}

	o.cnt.Claims.Add(int64(len(paths)))
	return wire.Ack()
}

func (o *srv) unclaim(client string, paths []string) wire.Response {
	if client == "" {
		return wire.Null()
	}

	inv := o.inventory()
	for _, p := range paths {
		held := false
		for _, c := range o.claims.Active(p) {
			if c == client {
				held = true
				break
			}
		}
		if !held {
			continue
		}

		if _, ok := inv[p]; ok && o.claims.Count(p) <= o.cfg.Copies {
			o.cnt.PrematureDrops.Add(1)
			o.logWarn("premature drop", map[string]interface{}{
				"path":   p,
				"client": client,
			})
		}

		o.claims.Remove(p, client)
		o.cnt.Unclaims.Add(1)
	}

	return wire.Ack()
}

func (o *srv) unclaimAll(client string) wire.Response {
	if client == "" {
		return wire.Null()
	}

	o.claims.RemoveAll(client)
	return wire.Ack()
}

// argPaths flattens request arguments into a path list: the client sends one
// List argument, but plain string tails are accepted too.
func argPaths(args []wire.Value) []string {
	var out []string
	for _, a := range args {
		if s, ok := a.Str(); ok {
			out = append(out, s)
			continue
		}
		out = append(out, a.Strings()...)
	}
	return out
}

func (o *srv) logDebug(msg string, data interface{}) {
	if o.log != nil {
		o.log.Debug(msg, data)
	}
}

func (o *srv) logWarn(msg string, data interface{}) {
	if o.log != nil {
		o.log.Warning(msg, data)
	}
}

func (o *srv) logError(msg string, err error) {
	if o.log != nil {
		o.log.Error(msg, nil, err)
	}
}
