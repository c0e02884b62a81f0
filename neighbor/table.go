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

// Package neighbor implements the ordered, deduplicated peer table of §4.3:
// mutated by HELLO/BYE reception and by operator commands, read under a
// single coarse mutex per §5.
package neighbor

import (
	"math/rand"
	"sync"

	"kvoverlay/util"
)

// Table is an ordered collection of PeerAddress with no duplicates.
// Insertion order is preserved for the CLI's index-based commands (§4.3).
type Table struct {
	mtx   sync.RWMutex
	local util.PeerAddress
	order []util.PeerAddress
	index map[util.PeerAddress]int
}

// New returns an empty table bound to the given local address. The local
// address is never admitted as a neighbor (§3 invariant a).
func New(local util.PeerAddress) *Table {
	return &Table{
		local: local,
		index: make(map[util.PeerAddress]int),
	}
}

// Add inserts addr if it is absent and is not the local address. Returns
// true if the table was modified.
func (t *Table) Add(addr util.PeerAddress) bool {
	if addr.Equals(t.local) {
		return false
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if _, ok := t.index[addr]; ok {
		return false
	}
	t.index[addr] = len(t.order)
	t.order = append(t.order, addr)
	return true
}

// Remove deletes addr if present. Returns true if the table was modified.
func (t *Table) Remove(addr util.PeerAddress) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	pos, ok := t.index[addr]
	if !ok {
		return false
	}
	t.order = append(t.order[:pos], t.order[pos+1:]...)
	delete(t.index, addr)
	for i := pos; i < len(t.order); i++ {
		t.index[t.order[i]] = i
	}
	return true
}

// List returns a snapshot of the table in insertion order.
func (t *Table) List() []util.PeerAddress {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	out := make([]util.PeerAddress, len(t.order))
	copy(out, t.order)
	return out
}

// At returns the neighbor at the given CLI-visible index.
func (t *Table) At(i int) (util.PeerAddress, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	if i < 0 || i >= len(t.order) {
		return util.PeerAddress{}, false
	}
	return t.order[i], true
}

// Len returns the number of known neighbors.
func (t *Table) Len() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return len(t.order)
}

// ChooseRandom returns a uniformly random neighbor, or ok=false if the
// table is empty.
func (t *Table) ChooseRandom() (addr util.PeerAddress, ok bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	if len(t.order) == 0 {
		return util.PeerAddress{}, false
	}
	return t.order[rand.Intn(len(t.order))], true //nolint:gosec // selection only, not security sensitive
}

// ChooseRandomExcluding returns a uniformly random neighbor whose port
// differs from excludePort, or ok=false if none exists (§4.3).
func (t *Table) ChooseRandomExcluding(excludePort int) (addr util.PeerAddress, ok bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	eligible := make([]util.PeerAddress, 0, len(t.order))
	for _, a := range t.order {
		if a.Port != excludePort {
			eligible = append(eligible, a)
		}
	}
	if len(eligible) == 0 {
		return util.PeerAddress{}, false
	}
	return eligible[rand.Intn(len(eligible))], true //nolint:gosec // selection only, not security sensitive
}

// ForEachExcluding calls f for every neighbor whose port differs from
// excludePort, used by flooding forwards (§4.4).
func (t *Table) ForEachExcluding(excludePort int, f func(util.PeerAddress)) {
	t.mtx.RLock()
	snapshot := make([]util.PeerAddress, len(t.order))
	copy(snapshot, t.order)
	t.mtx.RUnlock()
	for _, a := range snapshot {
		if a.Port != excludePort {
			f(a)
		}
	}
}
