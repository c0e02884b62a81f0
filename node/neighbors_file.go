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
	"bufio"
	"fmt"
	"os"
	"strings"

	"kvoverlay/util"
)

// loadNeighborsFile reads one "host:port" address per line, skipping blank
// lines, for a node's starting neighbor set (§6).
func loadNeighborsFile(path string) ([]util.PeerAddress, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []util.PeerAddress
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		addr, err := util.ParsePeerAddress(line)
		if err != nil {
			return nil, fmt.Errorf("neighbors file %s line %d: %w", path, lineNo, err)
		}
		out = append(out, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
