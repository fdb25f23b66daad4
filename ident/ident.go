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

// Package ident derives the short, stable context identifiers used to name
// source and backup contexts throughout the wire protocol.
package ident

import (
	"encoding/hex"

	encsha "github.com/jaustindavid/backupnet/encoding/sha256"
)

// idLen is the number of hex characters kept from the tail of the digest.
const idLen = 8

// Context returns the 8 hex char identifier derived from the last bytes of
// SHA-256(addr). addr is the configured "host:path" address of a source or
// backup context.
func Context(addr string) string {
	sum := encsha.New().Encode([]byte(addr))
	enc := hex.EncodeToString(sum)

	if len(enc) <= idLen {
		return enc
	}

	return enc[len(enc)-idLen:]
}
