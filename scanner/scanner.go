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

// Package scanner walks a directory tree, returning each file's path mapped
// to its size in bytes. It walks a root directory and, optionally, watches
// it with fsnotify so a caller can rescan sooner than its periodic tick when
// the tree changes.
package scanner

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	liberr "github.com/jaustindavid/backupnet/errors"
)

// Scanner produces {relative_path -> size} for a directory tree.
type Scanner interface {
	// Scan walks the root and returns the current {path -> size} listing.
	Scan() (map[string]int64, error)
	// Root returns the scanner's configured root directory.
	Root() string
	// Watch installs an fsnotify watch on the root and invokes onChange
	// (best-effort, coalesced) whenever the tree is touched. It is an
	// optional accelerant on top of the periodic rescan tick, never a
	// replacement for it. Watch returns a stop function.
	Watch(onChange func()) (stop func(), err error)
}

// FS is the default Scanner, backed by filepath.WalkDir.
type FS struct {
	root         string
	ignoreSuffix []string
}

// New builds a Scanner rooted at root, skipping any file whose name ends
// with one of ignoreSuffix.
func New(root string, ignoreSuffix []string) *FS {
	return &FS{root: root, ignoreSuffix: ignoreSuffix}
}

func (f *FS) Root() string { return f.root }

func (f *FS) Scan() (map[string]int64, error) {
	out := map[string]int64{}

	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if f.ignored(d.Name()) {
			return nil
		}

		rel, relErr := filepath.Rel(f.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}

		out[rel] = info.Size()
		return nil
	})

	if err != nil {
		return nil, liberr.New(uint16(ErrorRootUnreadable), getMessage(ErrorRootUnreadable), err)
	}

	return out, nil
}

func (f *FS) ignored(name string) bool {
	for _, suffix := range f.ignoreSuffix {
		if suffix != "" && strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func (f *FS) Watch(onChange func()) (func(), error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = w.Add(f.root); err != nil {
		_ = w.Close()
		return nil, err
	}

	var (
		mu      sync.Mutex
		stopped bool
	)

	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				mu.Lock()
				if !stopped {
					onChange()
				}
				mu.Unlock()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	stop := func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
		_ = w.Close()
	}

	return stop, nil
}
