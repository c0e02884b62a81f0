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

// Package search implements the core routing logic of §4.4: the three
// forwarding strategies (flooding, random walk, backtracking) layered over
// the shared duplicate-suppression and TTL discipline of §3, plus the
// per-mode statistics of §4.5.
package search

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bfix/gospel/logger"

	"kvoverlay/dedup"
	"kvoverlay/neighbor"
	"kvoverlay/proto"
	"kvoverlay/store"
	"kvoverlay/util"
)

// Sender delivers a frame to a single peer. The engine is agnostic of how
// the byte gets there (pooled connection, one-shot dial); node.Runtime
// supplies the implementation.
type Sender interface {
	Send(ctx context.Context, to util.PeerAddress, f proto.Frame) error
}

// Notifier reports search outcomes to whatever is watching this node: the
// interactive CLI, the control API, or (in tests) nothing at all.
type Notifier interface {
	// Hit reports a resolved search this node originated: either the key
	// was already in the local store, or a VAL for it arrived. A relay that
	// answers someone else's SEARCH only sends the VAL and does not call Hit.
	Hit(mode proto.Mode, key, value string, hopCount int)
	// NotFound reports a search this node originated that could not go on:
	// an RW or BP search with no neighbor to start from, or a BP search
	// that dead-ends at this node. A walker that dies further away is not
	// reported.
	NotFound(mode proto.Mode, key string)
}

// NopNotifier discards every event; the zero value is ready to use.
type NopNotifier struct{}

func (NopNotifier) Hit(proto.Mode, string, string, int) {}
func (NopNotifier) NotFound(proto.Mode, string)         {}

// LogNotifier reports outcomes through gospel's leveled logger, the way the
// rest of this codebase surfaces operator-facing events.
type LogNotifier struct{}

func (LogNotifier) Hit(mode proto.Mode, key, value string, hopCount int) {
	logger.Printf(logger.INFO, "[search] %s hit: %s=%s (%d hops)\n", mode, key, value, hopCount)
}

func (LogNotifier) NotFound(mode proto.Mode, key string) {
	logger.Printf(logger.INFO, "[search] %s miss: %s not found\n", mode, key)
}

// MetricsRecorder receives the Prometheus-facing events the engine
// produces. metrics.Metrics satisfies this interface; tests and
// stats-only callers can leave it nil (NopMetrics is used instead).
type MetricsRecorder interface {
	IncInitiated(mode string)
	IncForwarded(mode string)
	IncDropped(mode, reason string)
	ObserveHit(mode string, hopCount int)
}

// NopMetrics discards every event; the zero value is ready to use.
type NopMetrics struct{}

func (NopMetrics) IncInitiated(string)       {}
func (NopMetrics) IncForwarded(string)       {}
func (NopMetrics) IncDropped(string, string) {}
func (NopMetrics) ObserveHit(string, int)    {}

// Engine dispatches the four entry points of §4.4 against a node's local
// store, neighbor table and duplicate set, and reports what it finds
// through a Notifier, a Stats view, and a MetricsRecorder.
type Engine struct {
	local     util.PeerAddress
	store     *store.LocalStore
	neighbors *neighbor.Table
	seen      *dedup.SeenSet
	sender    Sender
	notify    Notifier
	stats     *Stats
	rec       MetricsRecorder

	seq int64 // next outbound sequence number, incremented atomically

	ttlMtx sync.RWMutex
	ttl    int
}

// SetMetrics attaches a MetricsRecorder. Safe to call once at construction
// time before any searches are in flight; not synchronized for later
// swaps.
func (e *Engine) SetMetrics(rec MetricsRecorder) {
	if rec == nil {
		rec = NopMetrics{}
	}
	e.rec = rec
}

// New returns an Engine bound to the given node. defaultTTL seeds the TTL
// every locally-initiated search starts with; it can be changed later with
// SetTTL (§4.3's operator command 6).
func New(local util.PeerAddress, st *store.LocalStore, nt *neighbor.Table, seen *dedup.SeenSet, sender Sender, notify Notifier, defaultTTL int) *Engine {
	if notify == nil {
		notify = NopNotifier{}
	}
	return &Engine{
		local:     local,
		store:     st,
		neighbors: nt,
		seen:      seen,
		sender:    sender,
		notify:    notify,
		stats:     NewStats(),
		rec:       NopMetrics{},
		ttl:       defaultTTL,
	}
}

// Stats returns the engine's statistics view.
func (e *Engine) Stats() *Stats { return e.stats }

// TTL returns the default TTL new searches are initiated with.
func (e *Engine) TTL() int {
	e.ttlMtx.RLock()
	defer e.ttlMtx.RUnlock()
	return e.ttl
}

// SetTTL changes the default TTL for searches initiated from now on.
// Existing in-flight searches are unaffected: TTL travels in the frame.
func (e *Engine) SetTTL(ttl int) {
	e.ttlMtx.Lock()
	defer e.ttlMtx.Unlock()
	e.ttl = ttl
}

// nextSeq returns the next sequence number for a locally-originated search.
func (e *Engine) nextSeq() int {
	return int(atomic.AddInt64(&e.seq, 1))
}

// Initiate starts a new search for key using the given mode, per §4.4 step
// "a node originates a search". A local hit short-circuits the network
// entirely, matching the reference behaviour of checking one's own store
// before asking anyone else.
func (e *Engine) Initiate(ctx context.Context, mode proto.Mode, key string) error {
	if !mode.Valid() {
		return fmt.Errorf("search: unknown mode %q", mode)
	}
	e.stats.RecordInitiated(mode)
	e.rec.IncInitiated(string(mode))

	if val, ok := e.store.Get(key); ok {
		e.stats.RecordHit(mode, 0)
		e.rec.ObserveHit(string(mode), 0)
		e.notify.Hit(mode, key, val, 0)
		return nil
	}

	seqno := e.nextSeq()
	id := proto.SearchID{Origin: e.local, SeqNo: seqno}
	e.seen.MarkIfNew(id) // the origin has, by definition, already "seen" its own search

	frame := proto.Frame{
		Origin:   e.local,
		SeqNo:    seqno,
		TTL:      e.TTL(),
		Op:       proto.OpSearch,
		Mode:     mode,
		LastHop:  e.local,
		Key:      key,
		HopCount: 0,
	}

	switch mode {
	case proto.ModeFlood:
		e.sendToAll(ctx, frame, -1)
	case proto.ModeRandomWalk, proto.ModeBacktrack:
		if next, ok := e.neighbors.ChooseRandom(); ok {
			e.sendOne(ctx, next, frame)
		} else {
			e.notify.NotFound(mode, key)
		}
	}
	return nil
}

// OnSearch handles an inbound SEARCH frame, per §4.4 steps 1-5: drop
// duplicates, answer local hits, otherwise decrement TTL and forward
// according to mode.
func (e *Engine) OnSearch(ctx context.Context, f proto.Frame) {
	if !e.seen.MarkIfNew(f.ID()) {
		e.rec.IncDropped(string(f.Mode), "duplicate")
		return // already processed this (origin, seqno); drop silently
	}

	// HOP_COUNT counts edges traversed so far, so it advances on arrival at
	// this node, before the local-store check: the §8 scenarios measure a
	// key held by the originator's immediate neighbor as 1 hop away, not 0.
	// A forward carries this same already-advanced count onward; the next
	// node to receive it advances it again on its own arrival.
	hopCount := f.HopCount + 1

	if val, ok := e.store.Get(f.Key); ok {
		reply := proto.Frame{
			Origin:   f.Origin,
			SeqNo:    f.SeqNo,
			TTL:      f.TTL,
			Op:       proto.OpVal,
			Mode:     f.Mode,
			Key:      f.Key,
			Value:    val,
			HopCount: hopCount,
		}
		e.sendOne(ctx, f.Origin, reply)
		return
	}

	if f.TTL-1 <= 0 {
		e.rec.IncDropped(string(f.Mode), "ttl_exhausted")
		return // TTL exhausted, dead end, drop silently
	}
	forwarded := proto.Frame{
		Origin:   f.Origin,
		SeqNo:    f.SeqNo,
		TTL:      f.TTL - 1,
		Op:       proto.OpSearch,
		Mode:     f.Mode,
		LastHop:  e.local,
		Key:      f.Key,
		HopCount: hopCount,
	}
	e.rec.IncForwarded(string(f.Mode))

	switch f.Mode {
	case proto.ModeFlood:
		e.sendToAll(ctx, forwarded, f.LastHop.Port)

	case proto.ModeRandomWalk:
		// Prefer a neighbor whose port differs from LAST_HOP_PORT, but §4.4
		// allows bouncing back to it if that is the only way forward.
		next, ok := e.neighbors.ChooseRandomExcluding(f.LastHop.Port)
		if !ok {
			next, ok = e.neighbors.ChooseRandom()
		}
		if ok {
			e.sendOne(ctx, next, forwarded)
		}
		// else: no neighbors at all; the walker dies here.

	case proto.ModeBacktrack:
		if next, ok := e.neighbors.ChooseRandomExcluding(f.LastHop.Port); ok {
			e.sendOne(ctx, next, forwarded)
			return
		}
		// Dead end: every neighbor but the one we came from has been
		// exhausted at this depth. Backtrack to LAST_HOP, unless we are
		// the origin ourselves, in which case there is nowhere left to
		// backtrack to and the search has failed.
		if f.Origin.Equals(e.local) {
			e.notify.NotFound(f.Mode, f.Key)
			return
		}
		e.sendOne(ctx, f.LastHop, forwarded)
	}
}

// OnVal handles an inbound VAL frame: it is only ever addressed to this
// node's own originated search (§4.1), so there is no further forwarding;
// just record the hit and report it.
func (e *Engine) OnVal(f proto.Frame) {
	e.stats.RecordHit(f.Mode, f.HopCount)
	e.rec.ObserveHit(string(f.Mode), f.HopCount)
	e.notify.Hit(f.Mode, f.Key, f.Value, f.HopCount)
}

// OnBye handles an inbound BYE frame by forgetting the sender as a
// neighbor, per §4.1. It is one of the engine's four entry points rather
// than living directly on the neighbor table because the engine is the
// single dispatch point the connection manager hands every post-handshake
// frame to.
func (e *Engine) OnBye(origin util.PeerAddress) {
	e.neighbors.Remove(origin)
}

// sendOne forwards frame to a single peer, logging (not failing) on error:
// a dead neighbor is discovered by later connection attempts, not here.
func (e *Engine) sendOne(ctx context.Context, to util.PeerAddress, frame proto.Frame) {
	if err := e.sender.Send(ctx, to, frame); err != nil {
		logger.Printf(logger.WARN, "[search] send to %s failed: %v\n", to, err)
	}
}

// sendToAll forwards frame to every neighbor whose port differs from
// excludePort (§4.4 flooding). excludePort of -1 excludes nothing, used at
// the originating node where there is no previous hop to avoid bouncing
// back to.
func (e *Engine) sendToAll(ctx context.Context, frame proto.Frame, excludePort int) {
	e.neighbors.ForEachExcluding(excludePort, func(to util.PeerAddress) {
		e.sendOne(ctx, to, frame)
	})
}
