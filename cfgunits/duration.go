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

// Package cfgunits parses the config grammar's duration and size tokens,
// which differ enough from time.ParseDuration (day notation, unknown-letter
// tolerance, missing-unit-means-seconds) and from plain byte counts (k/m/g/t
// suffixes) that neither stdlib nor this module's duration package can be
// used unmodified. It wraps the result in this module's own duration.Duration
// type, following small functions returning (T, error).
package cfgunits

import (
	"strconv"
	"strings"

	liberr "github.com/jaustindavid/backupnet/errors"
	"github.com/jaustindavid/backupnet/duration"
)

// ParseDuration parses tokens like "1d2h3m4s". Any run of digits not
// followed by a recognized unit letter (d, h, m, s) is treated as seconds;
// unrecognized letters are ignored rather than rejected.
func ParseDuration(s string) (duration.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, liberr.New(uint16(ErrorBadDuration), getMessage(ErrorBadDuration))
	}

	var (
		total   int64
		numBuf  strings.Builder
		sawUnit bool
	)

	flush := func(unit byte) bool {
		if numBuf.Len() == 0 {
			return true
		}
		n, err := strconv.ParseInt(numBuf.String(), 10, 64)
		numBuf.Reset()
		if err != nil {
			return false
		}
		switch unit {
		case 'd':
			total += n * 24 * 3600
		case 'h':
			total += n * 3600
		case 'm':
			total += n * 60
		case 's', 0:
			total += n
		}
		return true
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			numBuf.WriteByte(c)
		case c == 'd' || c == 'D':
			if !flush('d') {
				return 0, liberr.New(uint16(ErrorBadDuration), getMessage(ErrorBadDuration))
			}
			sawUnit = true
		case c == 'h' || c == 'H':
			if !flush('h') {
				return 0, liberr.New(uint16(ErrorBadDuration), getMessage(ErrorBadDuration))
			}
			sawUnit = true
		case c == 'm' || c == 'M':
			if !flush('m') {
				return 0, liberr.New(uint16(ErrorBadDuration), getMessage(ErrorBadDuration))
			}
			sawUnit = true
		case c == 's' || c == 'S':
			if !flush('s') {
				return 0, liberr.New(uint16(ErrorBadDuration), getMessage(ErrorBadDuration))
			}
			sawUnit = true
		default:
			// unknown letters are ignored.
		}
	}

	// any trailing digits with no trailing unit letter are seconds.
	if numBuf.Len() > 0 {
		if !flush(0) {
			return 0, liberr.New(uint16(ErrorBadDuration), getMessage(ErrorBadDuration))
		}
		sawUnit = true
	}

	if !sawUnit {
		return 0, liberr.New(uint16(ErrorBadDuration), getMessage(ErrorBadDuration))
	}

	return duration.Seconds(total), nil
}
