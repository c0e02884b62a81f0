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

package controlapi

import (
	"fmt"
	"net/http"

	"kvoverlay/node"
	"kvoverlay/proto"
	"kvoverlay/search"
	"kvoverlay/util"
)

// ControlService is the gorilla/rpc JSON-RPC surface: every exported
// method with the (http.Request, *Args, *Reply) error signature becomes a
// callable "ControlService.Method".
type ControlService struct {
	rt *node.Runtime
}

// GreetArgs names a peer to greet.
type GreetArgs struct {
	Addr string `json:"addr"`
}

// GreetReply is empty; an error return is how failure is signalled.
type GreetReply struct{}

// Greet performs the HELLO/HELLO_OK handshake with the given peer and
// admits it as a neighbor on success.
func (s *ControlService) Greet(_ *http.Request, args *GreetArgs, _ *GreetReply) error {
	addr, err := util.ParsePeerAddress(args.Addr)
	if err != nil {
		return fmt.Errorf("greet: %w", err)
	}
	return s.rt.Greet(addr)
}

// SearchArgs names a search to originate.
type SearchArgs struct {
	Mode string `json:"mode"`
	Key  string `json:"key"`
}

// SearchReply is empty; results surface asynchronously through Stats or
// the Notifier, per §4.4 (a search has no synchronous "did it hit"
// return).
type SearchReply struct{}

// Search originates a search in the given mode for key.
func (s *ControlService) Search(r *http.Request, args *SearchArgs, _ *SearchReply) error {
	mode := proto.Mode(args.Mode)
	if !mode.Valid() {
		return fmt.Errorf("search: unknown mode %q", args.Mode)
	}
	return s.rt.Engine().Initiate(r.Context(), mode, args.Key)
}

// StatsArgs is empty; Stats takes no parameters.
type StatsArgs struct{}

// StatsReply carries the per-mode statistics snapshot.
type StatsReply struct {
	Modes []search.ModeSummary `json:"modes"`
}

// Stats returns the current per-mode statistics snapshot.
func (s *ControlService) Stats(_ *http.Request, _ *StatsArgs, reply *StatsReply) error {
	reply.Modes = s.rt.Engine().Stats().Snapshot()
	return nil
}

// NeighborsArgs is empty; Neighbors takes no parameters.
type NeighborsArgs struct{}

// NeighborsReply carries the current neighbor list.
type NeighborsReply struct {
	Addrs []string `json:"addrs"`
}

// Neighbors returns the current neighbor table, in insertion order.
func (s *ControlService) Neighbors(_ *http.Request, _ *NeighborsArgs, reply *NeighborsReply) error {
	list := s.rt.Neighbors().List()
	reply.Addrs = make([]string, len(list))
	for i, a := range list {
		reply.Addrs[i] = a.String()
	}
	return nil
}
