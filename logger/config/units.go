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

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Perm is an os.FileMode that round-trips through JSON/YAML as an octal
// string ("0644") so config files stay readable.
type Perm os.FileMode

func (p Perm) FileMode() os.FileMode { return os.FileMode(p) }

// Parse reads an octal permission string ("0644") into a Perm.
func Parse(s string) (Perm, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "0o"), 8, 32)
	if err != nil {
		return 0, err
	}
	return Perm(v), nil
}

func (p Perm) String() string { return fmt.Sprintf("%04o", uint32(p)) }

func (p Perm) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

func (p *Perm) UnmarshalJSON(b []byte) error {
	s, err := strconv.Unquote(string(b))
	if err != nil {
		s = string(b)
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0o"), 8, 32)
	if err != nil {
		return err
	}
	*p = Perm(v)
	return nil
}

// Size is a byte count accepting a plain number or a "32k"/"4M"-style
// suffixed string in JSON/YAML.
type Size uint64

func (s Size) Int64() int64 { return int64(s) }

func (s *Size) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if u, err := strconv.Unquote(raw); err == nil {
		raw = u
	}
	raw = strings.TrimSpace(strings.ToLower(strings.TrimSuffix(strings.ToLower(raw), "b")))

	mult := uint64(1)
	switch {
	case strings.HasSuffix(raw, "k"):
		mult, raw = 1<<10, strings.TrimSuffix(raw, "k")
	case strings.HasSuffix(raw, "m"):
		mult, raw = 1<<20, strings.TrimSuffix(raw, "m")
	case strings.HasSuffix(raw, "g"):
		mult, raw = 1<<30, strings.TrimSuffix(raw, "g")
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return err
	}
	*s = Size(v * float64(mult))
	return nil
}

func (s Size) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(s), 10)), nil
}
