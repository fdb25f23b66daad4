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

// Package transfer realizes a clientlet's plan on disk: given a source root,
// a destination root and a list of relative paths, it copies the files that
// are missing or changed, under a per-run deadline and an optional bandwidth
// cap. Change detection compares size first, then a sampled checksum.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	libcch "github.com/jaustindavid/backupnet/cache"
	iotwrp "github.com/jaustindavid/backupnet/ioutils/iowrapper"
	iotmlt "github.com/jaustindavid/backupnet/ioutils/multi"
)

const DefaultTimeout = 180 * time.Second

// Config carries the RSYNC TIMEOUT / RSYNC BWLIMIT / BLOCKSIZE / NBLOCKS
// settings from the config file. Zero values select the defaults.
type Config struct {
	Timeout   time.Duration
	BwLimit   int64 // bytes per second, 0 = unlimited
	Blocksize int64
	Nblocks   int
}

// Func is the file-transfer collaborator contract: copy the given relative
// paths from srcRoot into dstRoot, in place, returning the first failure.
type Func func(srcRoot, dstRoot string, paths []string) error

// checksumTTL bounds how long a sampled digest is trusted for an unchanged
// (path, size, mtime) triple.
const checksumTTL = 10 * time.Minute

// Copier implements Func with a native copy loop.
type Copier struct {
	cfg Config
	lim *rate.Limiter
	chk libcch.Cache[string, string]
}

func New(cfg Config) *Copier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Copier{
		cfg: cfg,
		chk: libcch.New[string, string](context.Background(), checksumTTL),
	}
	if cfg.BwLimit > 0 {
		c.lim = rate.NewLimiter(rate.Limit(cfg.BwLimit), int(cfg.BwLimit))
	}
	return c
}

// checksum memoizes Checksum per (path, size, mtime): a file that has not
// changed keeps its digest for checksumTTL instead of being re-read every
// cycle.
func (c *Copier) checksum(path string, fi os.FileInfo) (string, error) {
	key := fmt.Sprintf("%s|%d|%d", path, fi.Size(), fi.ModTime().UnixNano())
	if sum, _, ok := c.chk.Load(key); ok {
		return sum, nil
	}

	sum, err := Checksum(path, c.cfg.Blocksize, c.cfg.Nblocks)
	if err != nil {
		return "", err
	}
	c.chk.Store(key, sum)
	return sum, nil
}

// Transfer is the Func bound to this Copier.
func (c *Copier) Transfer(srcRoot, dstRoot string, paths []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return ErrorTimeout.Error(err)
		}

		src := filepath.Join(srcRoot, filepath.FromSlash(p))
		dst := filepath.Join(dstRoot, filepath.FromSlash(p))

		same, err := c.upToDate(src, dst)
		if err != nil {
			return err
		}
		if same {
			continue
		}

		if err = c.copyFile(ctx, src, dst); err != nil {
			return err
		}
	}

	return nil
}

// upToDate reports whether dst already matches src: same size and, when
// checksum sampling is configured, same sampled digest.
func (c *Copier) upToDate(src, dst string) (bool, error) {
	ss, err := os.Stat(src)
	if err != nil {
		return false, ErrorSourceOpen.Error(err)
	}

	ds, err := os.Stat(dst)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, ErrorDestWrite.Error(err)
	}

	if ss.Size() != ds.Size() {
		return false, nil
	}

	sc, err := c.checksum(src, ss)
	if err != nil {
		return false, err
	}
	dc, err := c.checksum(dst, ds)
	if err != nil {
		return false, err
	}

	return sc == dc, nil
}

// copyFile writes src to dst via a temp file and rename, applying the
// bandwidth cap and honoring ctx on every chunk.
func (c *Copier) copyFile(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return ErrorSourceOpen.Error(err)
	}
	defer func() { _ = in.Close() }()

	if err = os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ErrorDestWrite.Error(err)
	}

	tmp := dst + ".part"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return ErrorDestWrite.Error(err)
	}

	// the reader side enforces ctx and the bandwidth cap chunk by chunk
	rd := iotwrp.New(in)
	rd.SetRead(func(p []byte) []byte {
		if ctx.Err() != nil {
			return nil
		}
		n, rerr := in.Read(p)
		if n < 1 || rerr != nil && rerr != io.EOF {
			return nil
		}
		if c.lim != nil {
			if werr := c.lim.WaitN(ctx, n); werr != nil {
				return nil
			}
		}
		return p[:n]
	})

	mlt := iotmlt.New()
	mlt.AddWriter(out)
	mlt.SetInput(rd)

	_, cerr := mlt.Copy()

	if err = out.Close(); err != nil {
		_ = os.Remove(tmp)
		return ErrorDestWrite.Error(err)
	}

	// the wrapper signals both EOF and abort the same way; distinguish by
	// comparing what landed on disk
	if si, serr := os.Stat(src); serr == nil {
		if di, derr := os.Stat(tmp); derr != nil || di.Size() != si.Size() {
			_ = os.Remove(tmp)
			if ctx.Err() != nil {
				return ErrorTimeout.Error(ctx.Err())
			}
			return ErrorDestWrite.Error(cerr)
		}
	}

	if err = os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return ErrorDestWrite.Error(err)
	}

	return nil
}
