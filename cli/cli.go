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

// Package cli is the operator menu of §6: a thin external collaborator
// that only pokes node.Runtime's public operations and prints what comes
// back. It carries no protocol or routing logic of its own.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"kvoverlay/node"
	"kvoverlay/proto"
)

// Menu codes, per §6.
const (
	codeListNeighbors = 0
	codeHello         = 1
	codeFlood         = 2
	codeRandomWalk    = 3
	codeBacktrack     = 4
	codeStats         = 5
	codeSetTTL        = 6
	codeShutdown      = 9
)

// Run drives the interactive menu against rt, reading commands from in and
// writing prompts/output to out, until the operator chooses shutdown (9)
// or in reaches EOF. Returns nil on a clean shutdown.
func Run(ctx context.Context, rt *node.Runtime, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n0) list neighbors\n1) hello\n2) flood search\n3) random-walk search\n4) backtrack search\n5) stats\n6) set TTL\n9) shutdown\n> ")
		if !scanner.Scan() {
			return nil
		}
		choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err != nil {
			fmt.Fprintln(out, "invalid menu choice, expected a number")
			continue
		}

		switch choice {
		case codeListNeighbors:
			printNeighbors(rt, out)

		case codeHello:
			idx, ok := promptInt(scanner, out, "neighbor index: ")
			if !ok {
				continue
			}
			addr, ok := rt.Neighbors().At(idx)
			if !ok {
				fmt.Fprintln(out, "no such neighbor index")
				continue
			}
			if err := rt.Greet(addr); err != nil {
				fmt.Fprintf(out, "hello failed: %v\n", err)
			}

		case codeFlood, codeRandomWalk, codeBacktrack:
			key, ok := promptString(scanner, out, "key: ")
			if !ok {
				continue
			}
			mode := modeFor(choice)
			if err := rt.Engine().Initiate(ctx, mode, key); err != nil {
				fmt.Fprintf(out, "search failed: %v\n", err)
			}

		case codeStats:
			printStats(rt, out)

		case codeSetTTL:
			ttl, ok := promptInt(scanner, out, "new default TTL: ")
			if !ok {
				continue
			}
			if ttl <= 0 {
				fmt.Fprintln(out, "TTL must be > 0")
				continue
			}
			rt.Engine().SetTTL(ttl)

		case codeShutdown:
			return nil

		default:
			fmt.Fprintln(out, "unknown menu code")
		}
	}
}

func modeFor(choice int) proto.Mode {
	switch choice {
	case codeFlood:
		return proto.ModeFlood
	case codeRandomWalk:
		return proto.ModeRandomWalk
	default:
		return proto.ModeBacktrack
	}
}

func printNeighbors(rt *node.Runtime, out io.Writer) {
	for i, a := range rt.Neighbors().List() {
		fmt.Fprintf(out, "%d: %s\n", i, a)
	}
}

func printStats(rt *node.Runtime, out io.Writer) {
	for _, m := range rt.Engine().Stats().Snapshot() {
		fmt.Fprintf(out, "%s: initiated=%d hits=%d mean_hops=%.2f stddev_hops=%.2f\n",
			m.Mode, m.Initiated, m.Hits, m.MeanHops, m.StddevHops)
	}
}

func promptInt(scanner *bufio.Scanner, out io.Writer, prompt string) (int, bool) {
	fmt.Fprint(out, prompt)
	if !scanner.Scan() {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		fmt.Fprintln(out, "expected an integer")
		return 0, false
	}
	return n, true
}

func promptString(scanner *bufio.Scanner, out io.Writer, prompt string) (string, bool) {
	fmt.Fprint(out, prompt)
	if !scanner.Scan() {
		return "", false
	}
	s := strings.TrimSpace(scanner.Text())
	if s == "" {
		fmt.Fprintln(out, "expected a non-empty value")
		return "", false
	}
	return s, true
}
