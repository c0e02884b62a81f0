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
	"sync"

	"github.com/bfix/gospel/concurrent"

	"kvoverlay/transport"
)

// chanReader adapts transport.Channel's signaller-based Read to io.Reader
// so bufio can split it into lines. Every connection gets its own
// Signaller so closing one connection never interrupts another.
type chanReader struct {
	ch  transport.Channel
	sig *concurrent.Signaller
}

func (r *chanReader) Read(p []byte) (int, error) {
	return r.ch.Read(p, r.sig)
}

// chanWriter is the write-side counterpart of chanReader.
type chanWriter struct {
	ch  transport.Channel
	sig *concurrent.Signaller
}

func (w *chanWriter) Write(p []byte) (int, error) {
	return w.ch.Write(p, w.sig)
}

// lineConn bundles a Channel with buffered line-oriented read/write, one
// frame per newline-terminated line per §4.1. writeMtx serializes WriteLine
// calls: a pooled connection is shared by whichever goroutine currently
// needs to forward to that peer (a flood fan-out, a VAL reply, an operator
// command), and without serialization two concurrent writers could
// interleave the bytes of two frames on one stream (§5).
type lineConn struct {
	ch       transport.Channel
	sig      *concurrent.Signaller
	reader   *bufio.Reader
	writer   *chanWriter
	writeMtx sync.Mutex
}

func newLineConn(ch transport.Channel) *lineConn {
	sig := concurrent.NewSignaller()
	return &lineConn{
		ch:     ch,
		sig:    sig,
		reader: bufio.NewReader(&chanReader{ch: ch, sig: sig}),
		writer: &chanWriter{ch: ch, sig: sig},
	}
}

// ReadLine blocks for the next newline-terminated line, with the trailing
// newline stripped.
func (c *lineConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// WriteLine writes line verbatim; callers pass proto.Frame.Encode(), which
// already carries its own trailing newline. Serialized so concurrent
// senders on a shared pooled connection cannot interleave two frames.
func (c *lineConn) WriteLine(line string) error {
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()
	_, err := c.writer.Write([]byte(line))
	return err
}

// Close closes the underlying channel, which unblocks any in-flight
// Read/Write with an error (the signaller is for peer-initiated
// interruption, not needed on our own shutdown path).
func (c *lineConn) Close() error {
	return c.ch.Close()
}
