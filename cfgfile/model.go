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

// Package cfgfile parses a line-oriented configuration format. The format
// is bespoke (not YAML/TOML), so it is parsed here rather than forced
// through viper; cfgfile.Snapshot is the immutable value passed into every
// constructor instead of a global config singleton.
package cfgfile

import (
	"github.com/jaustindavid/backupnet/duration"
	"github.com/jaustindavid/backupnet/ident"
)

const DefaultPort = 5005

// SourceConfig is one `source: host:path` context and the keys scoped to it.
type SourceConfig struct {
	ID           string
	Addr         string
	Host         string
	Path         string
	Copies       int
	Rescan       duration.Duration
	IgnoreSuffix []string
	LazyWrite    duration.Duration
}

// BackupConfig is one `backup: host:path` context and the keys scoped to it.
// Exactly one of Size/Reserve is set.
type BackupConfig struct {
	ID           string
	Addr         string
	Host         string
	Path         string
	Size         int64
	HasSize      bool
	Reserve      int64
	HasReserve   bool
	IgnoreSource []string
	IgnoreSuffix []string
	LazyWrite    duration.Duration
}

// Snapshot is the whole, immutable parsed configuration: global settings
// plus every source and backup context, keyed by their derived context id.
type Snapshot struct {
	Port          int
	LazyWrite     duration.Duration
	RsyncTimeout  duration.Duration
	RsyncBwlimit  int64
	Blocksize     int64
	Nblocks       int
	DefaultRescan duration.Duration

	Sources map[string]*SourceConfig
	Backups map[string]*BackupConfig
}

// SourcesOnHost returns the sources whose address's host component matches
// hostname: the source contexts local to that host.
func (s *Snapshot) SourcesOnHost(hostname string) []*SourceConfig {
	var out []*SourceConfig
	for _, sc := range s.Sources {
		if sc.Host == hostname {
			out = append(out, sc)
		}
	}
	return out
}

// BackupsOnHost returns the backups whose address's host component matches
// hostname: the backup contexts local to that host.
func (s *Snapshot) BackupsOnHost(hostname string) []*BackupConfig {
	var out []*BackupConfig
	for _, bc := range s.Backups {
		if bc.Host == hostname {
			out = append(out, bc)
		}
	}
	return out
}

func contextID(addr string) string { return ident.Context(addr) }
