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

// Package servlet owns one source context: its scanner, its claim map, and
// the metadata/list/claim/unclaim/unclaim-all request handlers. A servlet is
// ready once its first scan completes; every rescan interval it rebuilds the
// inventory from the scanner.
package servlet

import (
	"context"

	libatm "github.com/jaustindavid/backupnet/atomic"
	"github.com/jaustindavid/backupnet/cfgfile"
	"github.com/jaustindavid/backupnet/claimmap"
	liblog "github.com/jaustindavid/backupnet/logger"
	"github.com/jaustindavid/backupnet/persist"
	libscn "github.com/jaustindavid/backupnet/scanner"
	libsts "github.com/jaustindavid/backupnet/stats"
	"github.com/jaustindavid/backupnet/wire"
)

// Servlet serves one source context.
type Servlet interface {
	// ID returns the source context id this servlet answers for.
	ID() string

	// Ready reports whether the first scan has completed; a servlet refuses
	// requests until then.
	Ready() bool

	// Dispatch routes one decoded request to its handler. Unknown actions
	// return Null, never an error: a bad request must not kill the
	// connection serving it.
	Dispatch(req wire.Request) wire.Response

	// Rescan synchronously rebuilds the inventory from the scanner.
	Rescan() error

	// Run owns the scan loop: an immediate first scan, then one rescan per
	// configured interval until ctx is done.
	Run(ctx context.Context) error

	// Stats returns the servlet's counter snapshot for audit logging.
	Stats() map[string]int64

	// Claims exposes the claim map, for audit snapshots.
	Claims() *claimmap.Map
}

// New builds a Servlet from its source config. dict persists the claim map
// across restarts; pass nil for an ephemeral claim map. scn defaults to a
// filesystem scanner rooted at cfg.Path.
func New(cfg *cfgfile.SourceConfig, scn libscn.Scanner, dict persist.Dict, log liblog.Logger) Servlet {
	if scn == nil {
		scn = libscn.New(cfg.Path, cfg.IgnoreSuffix)
	}

	var claims *claimmap.Map
	if dict != nil {
		claims = claimmap.NewPersisted(dict)
	} else {
		claims = claimmap.New()
	}

	return &srv{
		cfg:    cfg,
		scn:    scn,
		claims: claims,
		log:    log,
		cnt:    &libsts.Counters{},
		inv:    libatm.NewValue[map[string]int64](),
	}
}
