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

package transport

import (
	"net"
	"sync"
	"time"

	"github.com/jaustindavid/backupnet/wire"
)

// Client caches its dial parameters and transparently redials on the next
// Call after a "not connected" error, so a caller never has to
// reconstruct it by hand (see DESIGN.md).
type Client struct {
	addr        string
	compress    bool
	dialTimeout time.Duration

	mu   sync.Mutex
	conn *Conn
}

func NewClient(addr string, compress bool) *Client {
	return &Client{addr: addr, compress: compress, dialTimeout: 5 * time.Second}
}

func (c *Client) ensure() (*Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	nc, err := net.DialTimeout("tcp", c.addr, c.dialTimeout)
	if err != nil {
		return nil, mapNetError(err)
	}
	c.conn = NewConn(nc, c.compress)
	return c.conn, nil
}

func (c *Client) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Call sends req and returns the matching response, redialing once if the
// cached connection turned out to be dead.
func (c *Client) Call(req wire.Value) (wire.Value, error) {
	for attempt := 0; attempt < 2; attempt++ {
		conn, err := c.ensure()
		if err != nil {
			return wire.Null(), err
		}

		if err = conn.Send(req); err != nil {
			c.drop()
			continue
		}

		resp, err := conn.Receive()
		if err != nil {
			c.drop()
			continue
		}

		return resp, nil
	}

	return wire.Null(), ErrorNotConnected.Error(nil)
}

func (c *Client) Close() { c.drop() }
