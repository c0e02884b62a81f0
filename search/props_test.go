package search

import (
	"context"
	"testing"

	"pgregory.net/rapid"

	"kvoverlay/dedup"
	"kvoverlay/neighbor"
	"kvoverlay/proto"
	"kvoverlay/store"
	"kvoverlay/util"
)

// TestPropertyNoDuplicateForward is the §8 "no-duplicate-forward" property:
// however many times the same (ORIGIN, SEQNO) frame is offered to OnSearch,
// it is only ever forwarded once.
func TestPropertyNoDuplicateForward(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numNeighbors := rapid.IntRange(0, 6).Draw(rt, "numNeighbors")
		repeats := rapid.IntRange(1, 10).Draw(rt, "repeats")

		local := addr(5000)
		nt := neighbor.New(local)
		for i := 0; i < numNeighbors; i++ {
			nt.Add(addr(6000 + i))
		}
		sender := &fakeSender{}
		e := New(local, store.New(), nt, dedup.New(), sender, NopNotifier{}, 10)

		frame := proto.Frame{
			Origin: addr(9999), SeqNo: 1, TTL: 5, Op: proto.OpSearch,
			Mode: proto.ModeFlood, LastHop: addr(9998), Key: "NOPE", HopCount: 0,
		}
		for i := 0; i < repeats; i++ {
			e.OnSearch(context.Background(), frame)
		}

		want := numNeighbors // LastHop (port 9998) is never a neighbor here
		if got := len(sender.sent); got != want {
			rt.Fatalf("expected exactly one forwarding round (%d sends), got %d after %d calls", want, got, repeats)
		}
	})
}

// TestPropertyTTLMonotoneDecreasing is the §8 "monotone TTL" property: every
// frame OnSearch forwards carries a TTL strictly less than the TTL it
// received, never equal or greater.
func TestPropertyTTLMonotoneDecreasing(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		inTTL := rapid.IntRange(2, 50).Draw(rt, "inTTL")
		mode := rapid.SampledFrom([]proto.Mode{proto.ModeFlood, proto.ModeRandomWalk, proto.ModeBacktrack}).Draw(rt, "mode")

		local := addr(5000)
		lastHop := addr(4000)
		nt := neighbor.New(local)
		nt.Add(lastHop)
		nt.Add(addr(6001))
		sender := &fakeSender{}
		e := New(local, store.New(), nt, dedup.New(), sender, NopNotifier{}, 10)

		frame := proto.Frame{
			Origin: addr(9999), SeqNo: 1, TTL: inTTL, Op: proto.OpSearch,
			Mode: mode, LastHop: lastHop, Key: "NOPE", HopCount: 0,
		}
		e.OnSearch(context.Background(), frame)

		for _, s := range sender.sent {
			if s.frame.TTL >= inTTL {
				rt.Fatalf("forwarded TTL %d must be strictly less than received TTL %d", s.frame.TTL, inTTL)
			}
		}
	})
}

// TestPropertyTTLExhaustionStopsForwarding is the boundary case of the same
// invariant: a frame arriving with TTL 1 must never be forwarded at all,
// regardless of mode or neighbor count.
func TestPropertyTTLExhaustionStopsForwarding(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numNeighbors := rapid.IntRange(0, 6).Draw(rt, "numNeighbors")
		mode := rapid.SampledFrom([]proto.Mode{proto.ModeFlood, proto.ModeRandomWalk, proto.ModeBacktrack}).Draw(rt, "mode")

		local := addr(5000)
		nt := neighbor.New(local)
		for i := 0; i < numNeighbors; i++ {
			nt.Add(addr(6000 + i))
		}
		sender := &fakeSender{}
		e := New(local, store.New(), nt, dedup.New(), sender, NopNotifier{}, 10)

		frame := proto.Frame{
			Origin: addr(9999), SeqNo: 1, TTL: 1, Op: proto.OpSearch,
			Mode: mode, LastHop: addr(4000), Key: "NOPE", HopCount: 0,
		}
		e.OnSearch(context.Background(), frame)

		if len(sender.sent) != 0 {
			rt.Fatalf("TTL=1 must decrement to 0 and drop, got %d sends", len(sender.sent))
		}
	})
}

// TestPropertyFloodingCoverage is the §8 "flooding coverage" property: a
// flooded frame reaches every neighbor except the one it came from, never
// more, never fewer.
func TestPropertyFloodingCoverage(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numNeighbors := rapid.IntRange(1, 8).Draw(rt, "numNeighbors")

		local := addr(5000)
		lastHop := addr(6000) // one of the generated neighbors will collide with this port
		nt := neighbor.New(local)
		nt.Add(lastHop)
		expected := 0
		for i := 1; i < numNeighbors; i++ {
			nt.Add(addr(6000 + i))
			expected++
		}
		sender := &fakeSender{}
		e := New(local, store.New(), nt, dedup.New(), sender, NopNotifier{}, 10)

		frame := proto.Frame{
			Origin: addr(9999), SeqNo: 1, TTL: 5, Op: proto.OpSearch,
			Mode: proto.ModeFlood, LastHop: lastHop, Key: "NOPE", HopCount: 0,
		}
		e.OnSearch(context.Background(), frame)

		if got := len(sender.sent); got != expected {
			rt.Fatalf("expected flood to reach %d neighbors (excluding LAST_HOP), got %d", expected, got)
		}
		for _, s := range sender.sent {
			if s.to.Equals(lastHop) {
				rt.Fatal("flood must never return to LAST_HOP")
			}
		}
	})
}

// TestPropertyRandomWalkBoundedness is the §8 "random-walk boundedness"
// property: a single forward call produces at most one outbound frame,
// regardless of neighbor count, so a random walk can never branch.
func TestPropertyRandomWalkBoundedness(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numNeighbors := rapid.IntRange(0, 8).Draw(rt, "numNeighbors")

		local := addr(5000)
		nt := neighbor.New(local)
		for i := 0; i < numNeighbors; i++ {
			nt.Add(addr(6000 + i))
		}
		sender := &fakeSender{}
		e := New(local, store.New(), nt, dedup.New(), sender, NopNotifier{}, 10)

		frame := proto.Frame{
			Origin: addr(9999), SeqNo: 1, TTL: 5, Op: proto.OpSearch,
			Mode: proto.ModeRandomWalk, LastHop: addr(4000), Key: "NOPE", HopCount: 0,
		}
		e.OnSearch(context.Background(), frame)

		if len(sender.sent) > 1 {
			rt.Fatalf("random walk must forward to at most one neighbor, got %d", len(sender.sent))
		}
	})
}

// TestPropertyBacktrackTerminatesOnLinearChain is the §8 "BP backtracking
// termination" property: on a node with exactly one neighbor (the one it
// came from), a BP frame always backtracks rather than looping or hanging,
// unless this node is itself the search's origin.
func TestPropertyBacktrackTerminatesOnLinearChain(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		isOrigin := rapid.Bool().Draw(rt, "isOrigin")

		local := addr(5000)
		lastHop := addr(4000)
		nt := neighbor.New(local)
		nt.Add(lastHop)
		sender := &fakeSender{}
		e := New(local, store.New(), nt, dedup.New(), sender, NopNotifier{}, 10)

		origin := addr(9999)
		if isOrigin {
			origin = local
		}
		frame := proto.Frame{
			Origin: origin, SeqNo: 1, TTL: 5, Op: proto.OpSearch,
			Mode: proto.ModeBacktrack, LastHop: lastHop, Key: "NOPE", HopCount: 1,
		}
		e.OnSearch(context.Background(), frame)

		if isOrigin {
			if len(sender.sent) != 0 {
				rt.Fatalf("origin at a dead end has nowhere to backtrack, got %d sends", len(sender.sent))
			}
			return
		}
		if len(sender.sent) != 1 || !sender.sent[0].to.Equals(lastHop) {
			rt.Fatalf("expected exactly one backtrack to LAST_HOP, got %v", sender.destinations())
		}
	})
}

// TestPropertyNeighborIdempotence is the §8 "neighbor idempotence" property,
// exercised here at the Table's real concurrency surface rather than via a
// mock: adding the same address any number of times leaves exactly one
// entry.
func TestPropertyNeighborIdempotence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(rt, "port")
		repeats := rapid.IntRange(1, 20).Draw(rt, "repeats")

		local := addr(5000)
		nt := neighbor.New(local)
		peer := util.PeerAddress{Host: "127.0.0.1", Port: port}
		for i := 0; i < repeats; i++ {
			nt.Add(peer)
		}
		if port == local.Port {
			if nt.Len() != 0 {
				rt.Fatalf("local address must never be admitted, got len=%d", nt.Len())
			}
			return
		}
		if nt.Len() != 1 {
			rt.Fatalf("expected exactly 1 entry after %d repeated Adds, got %d", repeats, nt.Len())
		}
	})
}
