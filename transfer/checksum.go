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

package transfer

import (
	"encoding/hex"
	"io"
	"os"
	"strconv"

	encsha "github.com/jaustindavid/backupnet/encoding/sha256"
)

const (
	// DefaultBlocksize and DefaultNblocks drive the sampled checksum when the
	// config leaves BLOCKSIZE / NBLOCKS unset.
	DefaultBlocksize int64 = 64 << 10
	DefaultNblocks         = 8
)

// Checksum computes a sampled digest of the file at path: nblocks blocks of
// blocksize bytes, spread evenly across the file, folded into one SHA-256.
// Sampling keeps the cost of change detection independent of file size; the
// file length is mixed in so a pure append is still noticed.
func Checksum(path string, blocksize int64, nblocks int) (string, error) {
	if blocksize <= 0 {
		blocksize = DefaultBlocksize
	}
	if nblocks <= 0 {
		nblocks = DefaultNblocks
	}

	f, err := os.Open(path)
	if err != nil {
		return "", ErrorChecksum.Error(err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return "", ErrorChecksum.Error(err)
	}

	hsh := encsha.New()
	defer hsh.Reset()

	size := st.Size()
	buf := make([]byte, blocksize)

	// mix the length first so two files differing only in size never collide
	sum := hsh.Encode([]byte(strconv.FormatInt(size, 16)))

	if size <= blocksize*int64(nblocks) {
		// small file: hash it whole
		for {
			n, rerr := f.Read(buf)
			if n > 0 {
				sum = hsh.Encode(buf[:n])
			}
			if rerr == io.EOF {
				break
			} else if rerr != nil {
				return "", ErrorChecksum.Error(rerr)
			}
		}
		return hex.EncodeToString(sum), nil
	}

	stride := (size - blocksize) / int64(nblocks-1)
	for i := 0; i < nblocks; i++ {
		off := int64(i) * stride
		n, rerr := f.ReadAt(buf, off)
		if n > 0 {
			sum = hsh.Encode(buf[:n])
		}
		if rerr != nil && rerr != io.EOF {
			return "", ErrorChecksum.Error(rerr)
		}
	}

	return hex.EncodeToString(sum), nil
}
