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

// Package clientlet runs one backup context: it polls every source servlet,
// rehearses a legal set of files to hold under its byte budget, realizes
// that set on disk, and keeps its claims renewed. Many independent
// clientlets converging is what balances the fleet.
package clientlet

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaustindavid/backupnet/cfgfile"
	liblog "github.com/jaustindavid/backupnet/logger"
	"github.com/jaustindavid/backupnet/persist"
	libsts "github.com/jaustindavid/backupnet/stats"
	"github.com/jaustindavid/backupnet/transfer"
	"github.com/jaustindavid/backupnet/transport"
)

// Clientlet is the per-backup-context worker.
type Clientlet interface {
	// ID returns the backup context id, which doubles as this clientlet's
	// client_id on the wire.
	ID() string

	// Run loops forever: rescan, crawl, rest. It returns when ctx is done
	// or Bail was called.
	Run(ctx context.Context) error

	// Crawl performs one plan-and-commit cycle.
	Crawl(ctx context.Context) error

	// Bail cooperatively stops Run at the next cycle boundary.
	Bail()

	// State returns the current state label; StateTotals the accumulated
	// time per label. Purely informational.
	State() string
	StateTotals() map[string]time.Duration

	// Allocation returns the byte budget currently in force.
	Allocation() int64

	// Stats returns the clientlet's counter snapshot for status logging.
	Stats() map[string]int64

	// Close flushes and closes the persistent dicts and source connections.
	Close() error
}

// Options carries the collaborators a clientlet needs; zero values select
// working defaults.
type Options struct {
	// StateDir hosts the clientlet's persistent dicts. Empty disables
	// persistence (claims are still renewed, just not remembered across
	// restarts).
	StateDir string

	// Transfer realizes a plan on disk. Defaults to the native copier,
	// which treats the source address's path component as a local path.
	Transfer transfer.Func

	// Dial maps a source config to the TCP address of its server. Defaults
	// to host:port with the snapshot's port.
	Dial func(src *cfgfile.SourceConfig) string

	// FreeBytes reports the free space of the filesystem holding the
	// backup root; only consulted when the context uses reserve.
	FreeBytes func(path string) (int64, error)

	Log liblog.Logger
}

// New builds a clientlet for one backup context from the fleet snapshot.
func New(snap *cfgfile.Snapshot, cfg *cfgfile.BackupConfig, opt Options) (Clientlet, error) {
	if cfg.HasSize == cfg.HasReserve {
		return nil, ErrorNoAllocation.Error(nil)
	}

	if opt.Dial == nil {
		opt.Dial = func(src *cfgfile.SourceConfig) string {
			return fmt.Sprintf("%s:%d", src.Host, snap.Port)
		}
	}
	if opt.Transfer == nil {
		cp := transfer.New(transfer.Config{
			Timeout:   snap.RsyncTimeout.Time(),
			BwLimit:   snap.RsyncBwlimit,
			Blocksize: snap.Blocksize,
			Nblocks:   snap.Nblocks,
		})
		opt.Transfer = func(srcRoot, dstRoot string, paths []string) error {
			// rsync-style "host:path" source addresses fall back to their
			// path component for the native copier
			if i := strings.Index(srcRoot, ":"); i >= 0 {
				srcRoot = srcRoot[i+1:]
			}
			return cp.Transfer(srcRoot, dstRoot, paths)
		}
	}
	if opt.FreeBytes == nil {
		opt.FreeBytes = fsFree
	}

	o := &clt{
		snap:  snap,
		cfg:   cfg,
		opt:   opt,
		log:   opt.Log,
		cnt:   &libsts.Counters{},
		state: libsts.NewState(stateStartup),
		bail:  make(chan struct{}),
	}

	for _, src := range snap.Sources {
		if ignoredSource(cfg, src) {
			continue
		}
		o.sources = append(o.sources, &sourceHandle{
			src: src,
			cli: transport.NewClient(opt.Dial(src), false),
		})
	}

	if opt.StateDir != "" {
		var err error
		if o.renewals, err = persist.NewFileDict(
			filepath.Join(opt.StateDir, cfg.ID+".renewals.bz2"), cfg.LazyWrite.Time()); err != nil {
			return nil, err
		}
		if o.history, err = persist.NewFileDict(
			filepath.Join(opt.StateDir, cfg.ID+".history.bz2"), cfg.LazyWrite.Time()); err != nil {
			return nil, err
		}
	}

	return o, nil
}

func ignoredSource(cfg *cfgfile.BackupConfig, src *cfgfile.SourceConfig) bool {
	for _, prefix := range cfg.IgnoreSource {
		if prefix != "" && strings.HasPrefix(src.Addr, prefix) {
			return true
		}
	}
	return false
}
