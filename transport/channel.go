// This file is part of kvoverlay, an unstructured peer-to-peer
// key/value lookup overlay written in Go.
//
// SPDX-License-Identifier: AGPL3.0-or-later

// Package transport provides a generic, protocol-pluggable byte channel
// abstraction used by the connection manager to dial and accept peer
// connections. It is deliberately agnostic of the line-oriented frame
// format defined in package proto; callers read/write raw bytes and
// split frames themselves.
package transport

import (
	"fmt"
	"strings"

	"github.com/bfix/gospel/concurrent"
)

// Error codes
var (
	ErrChannelNotImplemented = fmt.Errorf("protocol not implemented")
	ErrChannelNotOpened      = fmt.Errorf("channel not opened")
	ErrChannelInterrupted    = fmt.Errorf("channel interrupted")
)

////////////////////////////////////////////////////////////////////////
// CHANNEL

// Channel is an abstraction for exchanging bytes over various transport
// protocols. They are created by clients via 'NewChannel()' or by
// listeners via 'NewChannelServer()'.
// A string specifies the end-point of the channel:
//
//	"tcp+1.2.3.4:5"  -- for TCP channels
//	"udp+1.2.3.4:5"  -- for UDP channels
type Channel interface {
	Open(spec string) error                           // open channel (for read/write)
	Close() error                                     // close open channel
	IsOpen() bool                                     // check if channel is open
	Read([]byte, *concurrent.Signaller) (int, error)  // read from channel
	Write([]byte, *concurrent.Signaller) (int, error) // write to channel
}

// ChannelFactory instantiates specific Channel implementations.
type ChannelFactory func() Channel

// Known channel implementations.
var channelImpl = map[string]ChannelFactory{
	"tcp": NewTCPChannel,
	"udp": NewUDPChannel,
}

// NewChannel creates a new channel to the specified endpoint.
// Called by a client to connect to a peer.
func NewChannel(spec string) (Channel, error) {
	parts := strings.Split(spec, "+")
	if fac, ok := channelImpl[parts[0]]; ok {
		inst := fac()
		err := inst.Open(spec)
		return inst, err
	}
	return nil, ErrChannelNotImplemented
}

////////////////////////////////////////////////////////////////////////
// CHANNEL SERVER

// ChannelServer creates a listener for the specified endpoint.
type ChannelServer interface {
	Open(spec string, hdlr chan<- Channel) error
	Close() error
}

// ChannelServerFactory instantiates specific ChannelServer implementations.
type ChannelServerFactory func() ChannelServer

// Known channel server implementations.
var channelServerImpl = map[string]ChannelServerFactory{
	"tcp": NewTCPChannelServer,
	"udp": NewUDPChannelServer,
}

// NewChannelServer starts a listener for the given endpoint specification.
// Accepted channels are delivered on hdlr; a nil value signals that the
// listener has terminated.
func NewChannelServer(spec string, hdlr chan<- Channel) (cs ChannelServer, err error) {
	parts := strings.Split(spec, "+")
	if fac, ok := channelServerImpl[parts[0]]; ok {
		cs = fac()
		err = cs.Open(spec, hdlr)
		return
	}
	return nil, ErrChannelNotImplemented
}
