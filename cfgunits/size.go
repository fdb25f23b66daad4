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

package cfgunits

import (
	"strconv"
	"strings"

	liberr "github.com/jaustindavid/backupnet/errors"
)

const (
	kib int64 = 1 << 10
	mib int64 = 1 << 20
	gib int64 = 1 << 30
	tib int64 = 1 << 40
)

// ParseSize parses tokens like "500m", "2.5g", "1024" (bytes). Suffix is
// case-insensitive and a trailing "b" is ignored ("500mb" == "500m").
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, liberr.New(uint16(ErrorBadSize), getMessage(ErrorBadSize))
	}

	lower := strings.ToLower(s)
	lower = strings.TrimSuffix(lower, "b")

	mult := int64(1)
	if n := len(lower); n > 0 {
		switch lower[n-1] {
		case 'k':
			mult = kib
			lower = lower[:n-1]
		case 'm':
			mult = mib
			lower = lower[:n-1]
		case 'g':
			mult = gib
			lower = lower[:n-1]
		case 't':
			mult = tib
			lower = lower[:n-1]
		}
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(lower), 64)
	if err != nil {
		return 0, liberr.New(uint16(ErrorBadSize), getMessage(ErrorBadSize), err)
	}

	return int64(f * float64(mult)), nil
}
