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

// Package client supervises this host's clientlets: one per local backup
// context, started staggered so a fleet restart does not stampede the
// sources, restarted when one dies, and status-logged periodically.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/jaustindavid/backupnet/cfgfile"
	"github.com/jaustindavid/backupnet/clientlet"
	liblog "github.com/jaustindavid/backupnet/logger"
	librun "github.com/jaustindavid/backupnet/runner"
)

const (
	// startStagger spaces clientlet startups so many backups on one host do
	// not hit every source at once.
	startStagger = 30 * time.Second

	// statusInterval is the cadence of per-clientlet status log lines.
	statusInterval = time.Minute

	// respawnDelay is how long a crashed clientlet stays down before the
	// supervisor brings it back.
	respawnDelay = 10 * time.Second
)

// Client runs every backup context local to one host.
type Client struct {
	snap *cfgfile.Snapshot
	log  liblog.Logger
	opt  clientlet.Options

	mu    sync.Mutex
	lets  map[string]clientlet.Clientlet
	cfgs  []*cfgfile.BackupConfig
}

// New enumerates the backup contexts whose host matches hostname. opt is
// handed to every clientlet.
func New(snap *cfgfile.Snapshot, hostname string, opt clientlet.Options, log liblog.Logger) (*Client, error) {
	cfgs := snap.BackupsOnHost(hostname)
	if len(cfgs) == 0 {
		return nil, ErrorNoLocalBackup.Error(nil)
	}

	if opt.Log == nil {
		opt.Log = log
	}

	return &Client{
		snap: snap,
		log:  log,
		opt:  opt,
		lets: map[string]clientlet.Clientlet{},
		cfgs: cfgs,
	}, nil
}

// Clientlet returns the running clientlet for a backup context id, or nil.
func (c *Client) Clientlet(id string) clientlet.Clientlet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lets[id]
}

// Run starts one supervised clientlet per context, staggered, then logs
// status until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for i, cfg := range c.cfgs {
		wg.Add(1)
		go func(i int, cfg *cfgfile.BackupConfig) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(i) * startStagger):
			}

			c.supervise(ctx, cfg)
		}(i, cfg)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.status(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

// supervise keeps one clientlet alive: build, run, and on an unexpected
// return rebuild it after a pause. Local data on disk is the ground truth,
// so a respawned clientlet simply reconciles from scratch.
func (c *Client) supervise(ctx context.Context, cfg *cfgfile.BackupConfig) {
	defer func() {
		librun.RecoveryCaller("client/supervise", recover())
	}()

	for ctx.Err() == nil {
		let, err := clientlet.New(c.snap, cfg, c.opt)
		if err != nil {
			c.logError("cannot build clientlet", err)
			return
		}

		c.mu.Lock()
		c.lets[cfg.ID] = let
		c.mu.Unlock()

		err = let.Run(ctx)
		_ = let.Close()

		c.mu.Lock()
		delete(c.lets, cfg.ID)
		c.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		c.logError("clientlet stopped, respawning", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(respawnDelay):
		}
	}
}

func (c *Client) status(ctx context.Context) {
	tick := time.NewTicker(statusInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		c.mu.Lock()
		for id, let := range c.lets {
			c.logInfo("clientlet status", map[string]interface{}{
				"backup_context": id,
				"state":          let.State(),
				"allocation":     let.Allocation(),
				"stats":          let.Stats(),
			})
		}
		c.mu.Unlock()
	}
}

func (c *Client) logInfo(msg string, data interface{}) {
	if c.log != nil {
		c.log.Info(msg, data)
	}
}

func (c *Client) logError(msg string, err error) {
	if c.log != nil {
		c.log.Error(msg, nil, err)
	}
}
