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

// Package dedup implements the duplicate-suppression set of §3/§4.4: the
// only cross-connection ordering guarantee the protocol relies on is "at
// most one forward per (ORIGIN, SEQNO) per node" (§5).
package dedup

import (
	"kvoverlay/proto"
	"kvoverlay/util"
)

// SeenSet remembers SearchIDs already processed by this node. Membership
// implies the node has already forwarded or resolved that search and will
// not forward it again (§3 invariant b). Grows monotonically for the
// lifetime of the process; the map type is the same thread-safe generic
// Map used elsewhere so a bounded (LRU) variant could swap in later without
// changing the call sites, per the "duplicate set growth" design note.
type SeenSet struct {
	seen *util.Map[proto.SearchID, struct{}]
}

// New returns an empty SeenSet.
func New() *SeenSet {
	return &SeenSet{seen: util.NewMap[proto.SearchID, struct{}]()}
}

// MarkIfNew records id if it has not been seen before and reports whether
// this call was the one that recorded it. It is the single test-and-set
// operation §4.4 step 1/2 require: a second call for the same id returns
// false without forwarding the frame again.
func (s *SeenSet) MarkIfNew(id proto.SearchID) bool {
	var added bool
	s.seen.Process(func(pid int) error {
		if _, ok := s.seen.Get(id, pid); ok {
			return nil
		}
		s.seen.Put(id, struct{}{}, pid)
		added = true
		return nil
	}, false)
	return added
}

// Seen reports whether id has already been recorded.
func (s *SeenSet) Seen(id proto.SearchID) bool {
	_, ok := s.seen.Get(id, 0)
	return ok
}
