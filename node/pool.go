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

package node

import (
	"context"
	"fmt"
	"sync"

	"kvoverlay/proto"
	"kvoverlay/transport"
	"kvoverlay/util"
)

// pool is the outbound connection manager of §4.2: one lazily-dialed
// connection per peer, evicted on the first write failure rather than
// retried in place. The caller's next Send redials.
type pool struct {
	mtx      sync.Mutex
	conns    map[util.PeerAddress]*lineConn
	onResize func(int) // reports the new pool size; nil is a valid no-op
}

func newPool() *pool {
	return &pool{conns: make(map[util.PeerAddress]*lineConn)}
}

// SetOnResize registers a callback invoked whenever the pooled-connection
// count changes, used to drive the connection-pool-size gauge.
func (p *pool) SetOnResize(f func(int)) {
	p.mtx.Lock()
	p.onResize = f
	p.mtx.Unlock()
}

// reportSize calls onResize with the current size, if one is registered.
// Must be called without p.mtx held.
func (p *pool) reportSize() {
	p.mtx.Lock()
	f := p.onResize
	n := len(p.conns)
	p.mtx.Unlock()
	if f != nil {
		f(n)
	}
}

// connect returns the cached connection to addr, dialing a new one if
// none is cached. A connection whose write failed has already been evicted
// by Send, so the next connect dials fresh.
func (p *pool) connect(addr util.PeerAddress) (*lineConn, error) {
	p.mtx.Lock()
	if c, ok := p.conns[addr]; ok {
		p.mtx.Unlock()
		return c, nil
	}
	p.mtx.Unlock()

	ch, err := transport.NewChannel(fmt.Sprintf("tcp+%s", addr.String()))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	lc := newLineConn(ch)

	p.mtx.Lock()
	if c, ok := p.conns[addr]; ok {
		// another caller dialed addr meanwhile: keep one stream per peer
		p.mtx.Unlock()
		_ = lc.Close()
		return c, nil
	}
	p.conns[addr] = lc
	p.mtx.Unlock()
	p.reportSize()
	return lc, nil
}

// evict closes and forgets the connection to addr, if any. Called after a
// send fails, so the next attempt dials fresh.
func (p *pool) evict(addr util.PeerAddress) {
	p.mtx.Lock()
	c, ok := p.conns[addr]
	delete(p.conns, addr)
	p.mtx.Unlock()
	if ok {
		_ = c.Close()
		p.reportSize()
	}
}

// CloseAll closes every pooled connection, used on shutdown.
func (p *pool) CloseAll() {
	p.mtx.Lock()
	conns := p.conns
	p.conns = make(map[util.PeerAddress]*lineConn)
	p.mtx.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
	p.reportSize()
}

// Send implements search.Sender: write frame to addr's connection,
// evicting the connection on failure so the next attempt dials fresh.
func (p *pool) Send(_ context.Context, addr util.PeerAddress, f proto.Frame) error {
	lc, err := p.connect(addr)
	if err != nil {
		return err
	}
	if err := lc.WriteLine(f.Encode()); err != nil {
		p.evict(addr)
		return fmt.Errorf("send to %s: %w", addr, err)
	}
	return nil
}
