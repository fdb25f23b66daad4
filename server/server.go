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

// Package server accepts connections on the configured port and dispatches
// each request to the servlet owning its source context. One host runs one
// server; each accepted connection gets its own long-lived handler goroutine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/jaustindavid/backupnet/cfgfile"
	iotfds "github.com/jaustindavid/backupnet/ioutils/fileDescriptor"
	liblog "github.com/jaustindavid/backupnet/logger"
	"github.com/jaustindavid/backupnet/persist"
	librun "github.com/jaustindavid/backupnet/runner"
	"github.com/jaustindavid/backupnet/servlet"
	"github.com/jaustindavid/backupnet/transport"
	"github.com/jaustindavid/backupnet/wire"
)

const (
	// auditInterval is how often per-servlet statistics are logged.
	auditInterval = 15 * time.Second

	// wantedFds is the file-descriptor ceiling requested at startup; many
	// clientlets may hold connections open at once.
	wantedFds = 4096
)

// Server routes requests to the servlets of this host's source contexts.
type Server struct {
	snap     *cfgfile.Snapshot
	log      liblog.Logger
	compress bool

	mu       sync.Mutex
	servlets map[string]servlet.Servlet
	dicts    []persist.Dict
	ln       net.Listener
}

// New enumerates the source contexts local to hostname and builds one
// servlet per context. stateDir hosts the persisted claim maps, one file per
// source context.
func New(snap *cfgfile.Snapshot, hostname, stateDir string, log liblog.Logger) (*Server, error) {
	sources := snap.SourcesOnHost(hostname)
	if len(sources) == 0 {
		return nil, ErrorNoLocalSource.Error(nil)
	}

	s := &Server{
		snap:     snap,
		log:      log,
		servlets: map[string]servlet.Servlet{},
	}

	for _, src := range sources {
		var dict persist.Dict
		if stateDir != "" {
			d, err := persist.NewFileDict(
				filepath.Join(stateDir, src.ID+".claims.bz2"),
				src.LazyWrite.Time(),
			)
			if err != nil {
				return nil, err
			}
			dict = d
			s.dicts = append(s.dicts, d)
		}

		s.servlets[src.ID] = servlet.New(src, nil, dict, log)
	}

	return s, nil
}

// SetCompression fixes the framing compression mode offered to every peer.
// Both endpoints of a connection must agree; the fleet shares one setting.
func (s *Server) SetCompression(on bool) { s.compress = on }

// Servlet returns the servlet owning id, or nil.
func (s *Server) Servlet(id string) servlet.Servlet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.servlets[id]
}

// Run binds the port and serves until ctx is done. Each servlet's scan loop,
// the audit loop, and every connection handler run as their own goroutines.
func (s *Server) Run(ctx context.Context) error {
	if _, _, err := iotfds.SystemFileDescriptor(wantedFds); err != nil {
		s.logInfo("cannot raise file descriptor limit", map[string]interface{}{"err": err.Error()})
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.snap.Port))
	if err != nil {
		return ErrorListen.Error(err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	for _, sv := range s.servlets {
		wg.Add(1)
		go func(sv servlet.Servlet) {
			defer wg.Done()
			_ = sv.Run(ctx)
		}(sv)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.audit(ctx)
	}()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, aerr := ln.Accept()
		if aerr != nil {
			if ctx.Err() != nil || errors.Is(aerr, net.ErrClosed) {
				break
			}
			s.logInfo("accept failed", map[string]interface{}{"err": aerr.Error()})
			continue
		}

		wg.Add(1)
		go func(nc net.Conn) {
			defer wg.Done()
			s.handle(ctx, nc)
		}(nc)
	}

	cancel()
	wg.Wait()

	for _, d := range s.dicts {
		_ = d.Close()
	}

	return nil
}

// Close stops the listener; Run unwinds from there.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// Addr returns the bound listen address once Run has started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// handle serves one connection: receive, dispatch, respond, until the peer
// closes or goes quiet past the read timeout.
func (s *Server) handle(ctx context.Context, nc net.Conn) {
	defer func() {
		librun.RecoveryCaller("server/handle", recover())
	}()

	conn := transport.NewConn(nc, s.compress)
	defer func() { _ = conn.Close() }()

	for ctx.Err() == nil {
		v, err := conn.Receive()
		if err != nil {
			return
		}

		req, err := wire.DecodeRequest(v)
		if err != nil {
			if serr := conn.Send(wire.Null()); serr != nil {
				return
			}
			continue
		}

		resp := s.dispatch(req)
		if err = conn.Send(resp); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req wire.Request) wire.Response {
	sv := s.Servlet(req.Source)
	if sv == nil {
		return wire.Null()
	}
	return sv.Dispatch(req)
}

// audit logs per-servlet statistics on a fixed cadence.
func (s *Server) audit(ctx context.Context) {
	tick := time.NewTicker(auditInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		s.mu.Lock()
		for id, sv := range s.servlets {
			s.logInfo("servlet stats", map[string]interface{}{
				"source_context": id,
				"ready":          sv.Ready(),
				"stats":          sv.Stats(),
			})
		}
		s.mu.Unlock()
	}
}

func (s *Server) logInfo(msg string, data interface{}) {
	if s.log != nil {
		s.log.Info(msg, data)
	}
}
