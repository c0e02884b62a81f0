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

package util

import (
	"fmt"
	"strconv"
	"strings"
)

// PeerAddress identifies a node on the overlay by its listening endpoint.
// Equality is by both fields (§3).
type PeerAddress struct {
	Host string
	Port int
}

// ParsePeerAddress parses a "host:port" string into a PeerAddress.
func ParsePeerAddress(s string) (addr PeerAddress, err error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		err = fmt.Errorf("invalid peer address %q: missing port", s)
		return
	}
	host := s[:idx]
	var port int
	if port, err = strconv.Atoi(s[idx+1:]); err != nil {
		err = fmt.Errorf("invalid peer address %q: %w", s, err)
		return
	}
	addr = PeerAddress{Host: host, Port: port}
	return
}

// Equals returns true if both PeerAddress values name the same endpoint.
func (a PeerAddress) Equals(b PeerAddress) bool {
	return a.Host == b.Host && a.Port == b.Port
}

// String renders the address the way it travels on the wire: "host:port".
func (a PeerAddress) String() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}
