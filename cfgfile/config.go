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

package cfgfile

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jaustindavid/backupnet/cfgunits"
	liberr "github.com/jaustindavid/backupnet/errors"
)

// contextKind distinguishes which primary key opened the current context.
type contextKind int

const (
	noContext contextKind = iota
	sourceContext
	backupContext
)

// Load reads and parses a config file from path.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, liberr.New(uint16(ErrorOpen), getMessage(ErrorOpen), err)
	}
	defer func() { _ = f.Close() }()

	return Parse(f)
}

// Parse reads the line-oriented config grammar from r.
func Parse(r io.Reader) (*Snapshot, error) {
	snap := &Snapshot{
		Port:    DefaultPort,
		Sources: map[string]*SourceConfig{},
		Backups: map[string]*BackupConfig{},
	}

	var (
		kind    contextKind
		src     *SourceConfig
		bkp     *BackupConfig
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, val, err := splitKV(line)
		if err != nil {
			return nil, err
		}
		normKey := strings.ToLower(key)

		switch normKey {
		case "source":
			src = &SourceConfig{Addr: val, Copies: 1}
			src.Host, src.Path = splitAddr(val)
			src.ID = contextID(val)
			snap.Sources[src.ID] = src
			kind = sourceContext
			continue
		case "backup":
			bkp = &BackupConfig{Addr: val}
			bkp.Host, bkp.Path = splitAddr(val)
			bkp.ID = contextID(val)
			snap.Backups[bkp.ID] = bkp
			kind = backupContext
			continue
		}

		// "rescan" and "lazy write" are global only before any context has
		// been opened; inside a context they scope to that context (§6).
		if normKey == "rescan" && kind == noContext {
			d, perr := cfgunits.ParseDuration(val)
			if perr != nil {
				return nil, perr
			}
			snap.DefaultRescan = d
			continue
		}
		if normKey == "lazy write" && kind == noContext {
			d, perr := cfgunits.ParseDuration(val)
			if perr != nil {
				return nil, perr
			}
			snap.LazyWrite = d
			continue
		}

		// Global keys always apply globally, regardless of current context.
		if applyGlobal(snap, normKey, val) {
			continue
		}

		switch kind {
		case sourceContext:
			if err = applySource(src, normKey, val); err != nil {
				return nil, err
			}
		case backupContext:
			if err = applyBackup(bkp, normKey, val); err != nil {
				return nil, err
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, liberr.New(uint16(ErrorOpen), getMessage(ErrorOpen), err)
	}

	for _, sc := range snap.Sources {
		if sc.Rescan == 0 {
			sc.Rescan = snap.DefaultRescan
		}
		if sc.LazyWrite == 0 {
			sc.LazyWrite = snap.LazyWrite
		}
	}
	for _, bc := range snap.Backups {
		if bc.LazyWrite == 0 {
			bc.LazyWrite = snap.LazyWrite
		}
		if !bc.HasSize && !bc.HasReserve {
			return nil, liberr.New(uint16(ErrorMissingAllocation), getMessage(ErrorMissingAllocation))
		}
		if bc.HasSize && bc.HasReserve {
			return nil, liberr.New(uint16(ErrorBothAllocations), getMessage(ErrorBothAllocations))
		}
	}

	return snap, nil
}

func splitKV(line string) (key, val string, err error) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", liberr.New(uint16(ErrorBadLine), getMessage(ErrorBadLine))
	}
	key = strings.TrimSpace(line[:idx])
	val = strings.TrimSpace(line[idx+1:])
	if key == "" {
		return "", "", liberr.New(uint16(ErrorBadLine), getMessage(ErrorBadLine))
	}
	return key, val, nil
}

func splitAddr(addr string) (host, path string) {
	idx := strings.Index(addr, ":")
	if idx < 0 {
		return addr, ""
	}
	return addr[:idx], addr[idx+1:]
}

func splitList(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyGlobal handles the keys that are always global: PORT, RSYNC TIMEOUT,
// RSYNC BWLIMIT, BLOCKSIZE, NBLOCKS. LAZY WRITE is not handled here.
// It returns true if it recognized and consumed the key.
func applyGlobal(snap *Snapshot, key, val string) bool {
	switch key {
	case "port":
		if n, err := strconv.Atoi(val); err == nil {
			snap.Port = n
		}
		return true
	case "rsync timeout":
		if d, err := cfgunits.ParseDuration(val); err == nil {
			snap.RsyncTimeout = d
		}
		return true
	case "rsync bwlimit":
		if n, err := cfgunits.ParseSize(val); err == nil {
			snap.RsyncBwlimit = n
		}
		return true
	case "blocksize":
		if n, err := cfgunits.ParseSize(val); err == nil {
			snap.Blocksize = n
		}
		return true
	case "nblocks":
		if n, err := strconv.Atoi(val); err == nil {
			snap.Nblocks = n
		}
		return true
	}
	return false
}

func applySource(src *SourceConfig, key, val string) error {
	if src == nil {
		return nil
	}
	switch key {
	case "copies":
		if n, err := strconv.Atoi(val); err == nil {
			src.Copies = n
		}
	case "rescan":
		d, err := cfgunits.ParseDuration(val)
		if err != nil {
			return err
		}
		src.Rescan = d
	case "ignore suffix":
		src.IgnoreSuffix = splitList(val)
	case "lazy write":
		d, err := cfgunits.ParseDuration(val)
		if err != nil {
			return err
		}
		src.LazyWrite = d
	}
	return nil
}

func applyBackup(bkp *BackupConfig, key, val string) error {
	if bkp == nil {
		return nil
	}
	switch key {
	case "size":
		n, err := cfgunits.ParseSize(val)
		if err != nil {
			return err
		}
		bkp.Size = n
		bkp.HasSize = true
	case "reserve":
		n, err := cfgunits.ParseSize(val)
		if err != nil {
			return err
		}
		bkp.Reserve = n
		bkp.HasReserve = true
	case "ignore source":
		bkp.IgnoreSource = splitList(val)
	case "ignore suffix":
		bkp.IgnoreSuffix = splitList(val)
	case "lazy write":
		d, err := cfgunits.ParseDuration(val)
		if err != nil {
			return err
		}
		bkp.LazyWrite = d
	}
	return nil
}
