// This file is part of kvoverlay, an unstructured peer-to-peer
// key/value lookup overlay written in Go.
//
// kvoverlay is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License,
// or (at your option) any later version.
//
// kvoverlay is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package node wires together the store, neighbor table, duplicate set and
// search engine into a running peer: a TCP accept loop plus an outbound
// connection pool, per §4.2/§4.3 of the design.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bfix/gospel/logger"
	"golang.org/x/sync/errgroup"

	"kvoverlay/config"
	"kvoverlay/dedup"
	"kvoverlay/metrics"
	"kvoverlay/neighbor"
	"kvoverlay/proto"
	"kvoverlay/search"
	"kvoverlay/store"
	"kvoverlay/transport"
	"kvoverlay/util"
)

// Runtime is a single overlay node: its identity, local state, and the
// machinery that moves frames in and out over TCP.
type Runtime struct {
	local     util.PeerAddress
	store     *store.LocalStore
	neighbors *neighbor.Table
	seen      *dedup.SeenSet
	engine    *search.Engine
	metrics   *metrics.Metrics
	pool      *pool

	srv    transport.ChannelServer
	accept chan transport.Channel
	wg     sync.WaitGroup
}

// New builds a Runtime from cfg. The local store and neighbor file, if
// configured, are loaded synchronously; a node with neither is a valid
// (if useless) empty peer.
func New(cfg *config.Config) (*Runtime, error) {
	local, err := util.ParsePeerAddress(cfg.Node.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("node: bad listen address: %w", err)
	}

	var st *store.LocalStore
	if cfg.Node.StoreFile != "" {
		if st, err = store.Load(cfg.Node.StoreFile); err != nil {
			return nil, fmt.Errorf("node: load store: %w", err)
		}
	} else {
		st = store.New()
	}

	nt := neighbor.New(local)
	seen := dedup.New()
	p := newPool()
	m := metrics.New(cfg.Node.ListenAddr)
	p.SetOnResize(m.SetConnPoolSize)

	eng := search.New(local, st, nt, seen, p, search.LogNotifier{}, cfg.Node.DefaultTTL)
	eng.SetMetrics(m)

	r := &Runtime{
		local:     local,
		store:     st,
		neighbors: nt,
		seen:      seen,
		engine:    eng,
		metrics:   m,
		pool:      p,
		accept:    make(chan transport.Channel),
	}

	if cfg.Node.NeighborsFile != "" {
		addrs, err := loadNeighborsFile(cfg.Node.NeighborsFile)
		if err != nil {
			return nil, fmt.Errorf("node: load neighbors file: %w", err)
		}
		for _, a := range addrs {
			nt.Add(a)
		}
	}
	m.SetNeighborCount(nt.Len())

	return r, nil
}

// Local returns this node's own overlay address.
func (r *Runtime) Local() util.PeerAddress { return r.local }

// Store returns the node's local key/value store.
func (r *Runtime) Store() *store.LocalStore { return r.store }

// Neighbors returns the node's neighbor table.
func (r *Runtime) Neighbors() *neighbor.Table { return r.neighbors }

// Engine returns the node's search engine.
func (r *Runtime) Engine() *search.Engine { return r.engine }

// Metrics returns the node's Prometheus collectors.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Serve starts the accept loop and greets every configured neighbor. It
// blocks until ctx is cancelled, then sends BYE to every neighbor and
// drains in-flight connection handlers before returning.
func (r *Runtime) Serve(ctx context.Context) error {
	srv, err := transport.NewChannelServer(fmt.Sprintf("tcp+%s", r.local.String()), r.accept)
	if err != nil {
		return fmt.Errorf("node: listen on %s: %w", r.local, err)
	}
	r.srv = srv
	logger.Printf(logger.INFO, "[node] listening on %s\n", r.local)

	r.greetKnownNeighbors(ctx)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ch := <-r.accept:
				if ch == nil {
					return errors.New("node: listener terminated")
				}
				r.wg.Add(1)
				go func() {
					defer r.wg.Done()
					r.handleConn(gctx, ch)
				}()
			}
		}
	})

	<-ctx.Done()
	err = group.Wait()
	r.shutdown()
	if err == nil {
		// Once shutdown has closed the listener, its accept goroutine sends
		// nil on r.accept and exits; receive until then, closing any
		// connection it accepted in the meantime.
		for ch := range r.accept {
			if ch == nil {
				break
			}
			_ = ch.Close()
		}
	}
	r.wg.Wait()
	return err
}

// shutdown notifies every neighbor with a BYE frame and tears down the
// listener and connection pool, per §4.1's graceful-departure behaviour.
func (r *Runtime) shutdown() {
	bye := proto.Frame{Origin: r.local, SeqNo: 0, TTL: 0, Op: proto.OpBye}
	for _, n := range r.neighbors.List() {
		if err := r.pool.Send(context.Background(), n, bye); err != nil {
			logger.Printf(logger.WARN, "[node] BYE to %s failed: %v\n", n, err)
		}
	}
	if r.srv != nil {
		_ = r.srv.Close()
	}
	r.pool.CloseAll()
}

// handleConn dispatches every frame received on an accepted connection to
// the engine (or the neighbor table, for HELLO/BYE) until the peer closes
// the connection or sends something unreadable.
func (r *Runtime) handleConn(ctx context.Context, ch transport.Channel) {
	id := util.NextID()
	lc := newLineConn(ch)
	defer func() { _ = lc.Close() }()
	defer func() {
		if p := recover(); p != nil {
			logger.Printf(logger.ERROR, "[node:%d] handler panic: %v\n", id, p)
		}
	}()

	for {
		line, err := lc.ReadLine()
		if err != nil {
			return
		}
		f, err := proto.Parse(line)
		if err != nil {
			r.metrics.IncFrameDecodeError()
			logger.Printf(logger.WARN, "[node:%d] malformed frame: %v\n", id, err)
			continue
		}
		if !proto.KnownOp(f.Op) {
			logger.Printf(logger.WARN, "[node:%d] dropping unknown op %q\n", id, f.Op)
			continue
		}

		switch f.Op {
		case proto.OpHello:
			r.neighbors.Add(f.Origin)
			r.metrics.SetNeighborCount(r.neighbors.Len())
			reply := proto.Frame{Origin: r.local, SeqNo: 0, TTL: 0, Op: proto.OpHelloOK}
			if err := lc.WriteLine(reply.Encode()); err != nil {
				return
			}
		case proto.OpHelloOK:
			r.neighbors.Add(f.Origin)
			r.metrics.SetNeighborCount(r.neighbors.Len())
		case proto.OpBye:
			r.engine.OnBye(f.Origin)
			r.metrics.SetNeighborCount(r.neighbors.Len())
		case proto.OpSearch:
			r.engine.OnSearch(ctx, f)
		case proto.OpVal:
			r.engine.OnVal(f)
		}
	}
}

// Greet dials addr, performs the HELLO/HELLO_OK handshake of §4.1, and
// admits addr as a neighbor on success.
func (r *Runtime) Greet(addr util.PeerAddress) error {
	lc, err := r.pool.connect(addr)
	if err != nil {
		return err
	}
	hello := proto.Frame{Origin: r.local, SeqNo: 0, TTL: 0, Op: proto.OpHello}
	if err := lc.WriteLine(hello.Encode()); err != nil {
		r.pool.evict(addr)
		return fmt.Errorf("greet %s: %w", addr, err)
	}
	line, err := lc.ReadLine()
	if err != nil {
		r.pool.evict(addr)
		return fmt.Errorf("greet %s: no reply: %w", addr, err)
	}
	reply, err := proto.Parse(line)
	if err != nil || reply.Op != proto.OpHelloOK {
		return fmt.Errorf("greet %s: unexpected reply %q", addr, line)
	}
	r.neighbors.Add(addr)
	r.metrics.SetNeighborCount(r.neighbors.Len())
	return nil
}

// greetKnownNeighbors greets every neighbor already present at startup
// (loaded from the neighbors file). A neighbor that does not answer is
// logged and left in the table: a TransportFailure is not a reason to
// tear it down (§4.2, §7) — only an explicit BYE removes a neighbor. It
// may simply not be up yet, and the operator can still retry with CLI
// code 1 once it is.
func (r *Runtime) greetKnownNeighbors(_ context.Context) {
	for _, n := range r.neighbors.List() {
		if err := r.Greet(n); err != nil {
			logger.Printf(logger.WARN, "[node] initial greet of %s failed: %v\n", n, err)
		}
	}
	r.metrics.SetNeighborCount(r.neighbors.Len())
}

// Bye sends BYE to addr and removes it from the neighbor table, for the
// operator's explicit "disconnect" command.
func (r *Runtime) Bye(addr util.PeerAddress) error {
	bye := proto.Frame{Origin: r.local, SeqNo: 0, TTL: 0, Op: proto.OpBye}
	err := r.pool.Send(context.Background(), addr, bye)
	r.neighbors.Remove(addr)
	r.metrics.SetNeighborCount(r.neighbors.Len())
	return err
}
