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

// Package transport implements the framed, optionally-compressed
// request/response protocol carried over a long-lived TCP connection: an
// immutable wire.Value exchanged over a Conn that owns the socket.
package transport

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	liberr "github.com/jaustindavid/backupnet/errors"
	"github.com/jaustindavid/backupnet/wire"
)

const (
	// headerLen is the fixed "SIZE: %10d" ASCII header: 6 literal bytes
	// plus a 10-digit decimal byte count.
	headerLen = 16

	pingLiteral = "PING"
	pongLiteral = "PONG"

	// DefaultReadTimeout is the per-read socket timeout used for liveness.
	DefaultReadTimeout = 5 * time.Second
)

// Conn wraps one TCP connection and enforces single-writer framing. A
// connection is owned by one logical caller at a time; the mutex below
// protects interleaved Send calls on that same connection.
type Conn struct {
	nc          net.Conn
	compress    bool
	readTimeout time.Duration
	mu          sync.Mutex
}

// NewConn wraps an already-dialed/accepted net.Conn. compress fixes this
// connection's compression mode for its whole lifetime.
func NewConn(nc net.Conn, compress bool) *Conn {
	return &Conn{nc: nc, compress: compress, readTimeout: DefaultReadTimeout}
}

func (c *Conn) SetReadTimeout(d time.Duration) { c.readTimeout = d }

func (c *Conn) Close() error { return c.nc.Close() }

func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Send serializes v, optionally zlib-compresses it, and writes header+payload
// as one logical write so concurrent callers on the same Conn never interleave.
func (c *Conn) Send(v wire.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(v)
	if err != nil {
		return liberr.New(uint16(ErrorMalformedPayload), getMessage(ErrorMalformedPayload), err)
	}

	if c.compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err = zw.Write(payload); err != nil {
			return mapNetError(err)
		}
		if err = zw.Close(); err != nil {
			return mapNetError(err)
		}
		payload = buf.Bytes()
	}

	header := fmt.Sprintf("SIZE: %10d", len(payload))
	if len(header) != headerLen {
		return liberr.New(uint16(ErrorMalformedPayload), getMessage(ErrorMalformedPayload))
	}

	if _, err = c.nc.Write(append([]byte(header), payload...)); err != nil {
		return mapNetError(err)
	}
	return nil
}

// Receive reads exactly one frame: a 16-byte header, then exactly the
// declared number of bytes. A PING literal found at the header boundary is
// consumed and answered with PONG before the next message is awaited.
func (c *Conn) Receive() (wire.Value, error) {
	for {
		_ = c.nc.SetReadDeadline(time.Now().Add(c.readTimeout))

		lead := make([]byte, 4)
		if err := readFull(c.nc, lead); err != nil {
			return wire.Null(), err
		}

		if string(lead) == pingLiteral {
			if _, err := c.nc.Write([]byte(pongLiteral)); err != nil {
				return wire.Null(), mapNetError(err)
			}
			continue
		}

		rest := make([]byte, headerLen-4)
		if err := readFull(c.nc, rest); err != nil {
			return wire.Null(), err
		}

		size, err := parseHeader(append(lead, rest...))
		if err != nil {
			return wire.Null(), err
		}

		payload := make([]byte, size)
		if err = readFull(c.nc, payload); err != nil {
			return wire.Null(), err
		}

		return c.decode(payload)
	}
}

func (c *Conn) decode(payload []byte) (wire.Value, error) {
	if c.compress {
		zr, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return wire.Null(), liberr.New(uint16(ErrorMalformedPayload), getMessage(ErrorMalformedPayload), err)
		}
		defer func() { _ = zr.Close() }()

		decompressed, err := io.ReadAll(zr)
		if err != nil {
			return wire.Null(), liberr.New(uint16(ErrorMalformedPayload), getMessage(ErrorMalformedPayload), err)
		}
		payload = decompressed
	}

	var v wire.Value
	if err := json.Unmarshal(payload, &v); err != nil {
		return wire.Null(), liberr.New(uint16(ErrorMalformedPayload), getMessage(ErrorMalformedPayload), err)
	}
	return v, nil
}

// Ping sends the 4-byte PING control literal and waits for PONG. It is used
// by callers wishing to check liveness without a full request/response.
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.nc.Write([]byte(pingLiteral)); err != nil {
		return mapNetError(err)
	}

	_ = c.nc.SetReadDeadline(time.Now().Add(c.readTimeout))
	buf := make([]byte, 4)
	if err := readFull(c.nc, buf); err != nil {
		return err
	}
	if string(buf) != pongLiteral {
		return liberr.New(uint16(ErrorBadHeader), getMessage(ErrorBadHeader))
	}
	return nil
}

func parseHeader(hdr []byte) (int, error) {
	if len(hdr) != headerLen || string(hdr[:6]) != "SIZE: " {
		return 0, liberr.New(uint16(ErrorBadHeader), getMessage(ErrorBadHeader))
	}
	var size int
	if _, err := fmt.Sscanf(string(hdr[6:]), "%d", &size); err != nil || size < 0 {
		return 0, liberr.New(uint16(ErrorBadHeader), getMessage(ErrorBadHeader))
	}
	return size, nil
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return liberr.New(uint16(ErrorShortRead), getMessage(ErrorShortRead), err)
	} else if err != nil {
		return mapNetError(err)
	}
	return nil
}

// mapNetError collapses connection-refused/reset/broken-pipe/timeout errors
// into a single "not connected" state; the caller is expected to
// reconstruct the connection on its next operation.
func mapNetError(err error) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok {
		if ne.Timeout() {
			return liberr.New(uint16(ErrorNotConnected), getMessage(ErrorNotConnected), err)
		}
	}
	return liberr.New(uint16(ErrorNotConnected), getMessage(ErrorNotConnected), err)
}
