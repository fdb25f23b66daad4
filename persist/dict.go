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

// Package persist defines an on-disk persistent-dict contract and a
// bz2-compressed JSON implementation, written with atomic rename and lazy
// flush.
package persist

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	arcomp "github.com/jaustindavid/backupnet/archive/compress"
	liberr "github.com/jaustindavid/backupnet/errors"
	iotbuf "github.com/jaustindavid/backupnet/ioutils/bufferReadCloser"
	"github.com/jaustindavid/backupnet/ioutils/nopwritecloser"
)

// Dict is a small key/value store with an iterate and an explicit flush:
// get/set/delete/iterate/flush.
type Dict interface {
	Get(key string) (json.RawMessage, bool)
	Set(key string, val json.RawMessage)
	Delete(key string)
	Iterate(fn func(key string, val json.RawMessage) bool)
	// Flush forces an immediate write, bypassing the lazy-write interval.
	Flush() error
	// Close stops the lazy-write goroutine (if any) and performs a final flush.
	Close() error
}

type entry = json.RawMessage

// FileDict is a Dict backed by a single bz2-compressed JSON file, written
// with write-temp-then-rename so readers never observe a torn file.
type FileDict struct {
	path      string
	lazy      time.Duration
	mu        sync.RWMutex
	data      map[string]entry
	dirty     bool
	pending   bool
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewFileDict loads path (if present) and starts a lazy-write goroutine that
// flushes at most once per `lazy` interval, with at most one write pending
// at a time.
func NewFileDict(path string, lazy time.Duration) (*FileDict, error) {
	d := &FileDict{
		path:   path,
		lazy:   lazy,
		data:   map[string]entry{},
		stopCh: make(chan struct{}),
	}

	if err := d.load(); err != nil {
		return nil, err
	}

	if lazy > 0 {
		go d.lazyLoop()
	}

	return d, nil
}

func (d *FileDict) load() error {
	raw, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return nil
	}

	decoded, err := decompress(raw)
	if err != nil {
		return d.quarantine()
	}

	var m map[string]entry
	if err = json.Unmarshal(decoded, &m); err != nil {
		return d.quarantine()
	}

	d.data = m
	return nil
}

// quarantine renames an undecodable file aside with a .busted suffix and
// starts empty: a decode failure on load quarantines the old file instead
// of failing the caller, and the dict starts fresh.
func (d *FileDict) quarantine() error {
	busted := d.path + ".busted"
	_ = os.Rename(d.path, busted)
	d.data = map[string]entry{}
	return nil
}

func (d *FileDict) Get(key string) (json.RawMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.data[key]
	return v, ok
}

func (d *FileDict) Set(key string, val json.RawMessage) {
	d.mu.Lock()
	d.data[key] = val
	d.dirty = true
	d.mu.Unlock()
}

func (d *FileDict) Delete(key string) {
	d.mu.Lock()
	delete(d.data, key)
	d.dirty = true
	d.mu.Unlock()
}

func (d *FileDict) Iterate(fn func(key string, val json.RawMessage) bool) {
	d.mu.RLock()
	snapshot := make(map[string]entry, len(d.data))
	for k, v := range d.data {
		snapshot[k] = v
	}
	d.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

func (d *FileDict) lazyLoop() {
	t := time.NewTicker(d.lazy)
	defer t.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-t.C:
			_ = d.Flush()
		}
	}
}

// Flush writes the current state to disk if dirty. Only one write is ever
// pending at a time.
func (d *FileDict) Flush() error {
	d.mu.Lock()
	if !d.dirty || d.pending {
		d.mu.Unlock()
		return nil
	}
	d.pending = true
	snapshot := make(map[string]entry, len(d.data))
	for k, v := range d.data {
		snapshot[k] = v
	}
	d.mu.Unlock()

	err := writeAtomic(d.path, snapshot)

	d.mu.Lock()
	d.pending = false
	if err == nil {
		d.dirty = false
	}
	d.mu.Unlock()

	return err
}

func (d *FileDict) Close() error {
	d.closeOnce.Do(func() { close(d.stopCh) })
	return d.Flush()
}

func writeAtomic(path string, m map[string]entry) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return liberr.New(uint16(ErrorFlush), getMessage(ErrorFlush), err)
	}

	compressed, err := compress(raw)
	if err != nil {
		return liberr.New(uint16(ErrorFlush), getMessage(ErrorFlush), err)
	}

	tmp := path + ".tmp"
	if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return liberr.New(uint16(ErrorFlush), getMessage(ErrorFlush), err)
	}
	if err = os.WriteFile(tmp, compressed, 0o644); err != nil {
		return liberr.New(uint16(ErrorFlush), getMessage(ErrorFlush), err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return liberr.New(uint16(ErrorRename), getMessage(ErrorRename), err)
	}
	return nil
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := arcomp.Bzip2.Writer(nopwritecloser.New(&buf))
	if err != nil {
		return nil, err
	}
	if _, err = w.Write(raw); err != nil {
		return nil, err
	}
	if err = w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(raw []byte) ([]byte, error) {
	src := iotbuf.New(bytes.NewBuffer(raw))
	defer func() { _ = src.Close() }()

	r, err := arcomp.Bzip2.Reader(src)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}
