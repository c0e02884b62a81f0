package neighbor

import (
	"testing"

	"kvoverlay/util"
)

func addr(host string, port int) util.PeerAddress {
	return util.PeerAddress{Host: host, Port: port}
}

func TestAddRemoveList(t *testing.T) {
	tbl := New(addr("127.0.0.1", 5000))
	if !tbl.Add(addr("127.0.0.1", 5001)) {
		t.Fatal("expected Add to succeed")
	}
	if !tbl.Add(addr("127.0.0.1", 5002)) {
		t.Fatal("expected Add to succeed")
	}
	if got := tbl.List(); len(got) != 2 || got[0].Port != 5001 || got[1].Port != 5002 {
		t.Fatalf("unexpected order: %v", got)
	}
	if !tbl.Remove(addr("127.0.0.1", 5001)) {
		t.Fatal("expected Remove to succeed")
	}
	if got := tbl.List(); len(got) != 1 || got[0].Port != 5002 {
		t.Fatalf("unexpected list after remove: %v", got)
	}
}

func TestAddRejectsLocalAndDuplicates(t *testing.T) {
	local := addr("127.0.0.1", 5000)
	tbl := New(local)
	if tbl.Add(local) {
		t.Fatal("local address must never be admitted")
	}
	if !tbl.Add(addr("127.0.0.1", 5001)) {
		t.Fatal("expected first Add to succeed")
	}
	if tbl.Add(addr("127.0.0.1", 5001)) {
		t.Fatal("duplicate HELLO must be a no-op (neighbor idempotence)")
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 neighbor, got %d", tbl.Len())
	}
}

func TestChooseRandomExcluding(t *testing.T) {
	tbl := New(addr("127.0.0.1", 5000))
	tbl.Add(addr("127.0.0.1", 5001))
	if _, ok := tbl.ChooseRandomExcluding(5001); ok {
		t.Fatal("expected no eligible neighbor when excluding the only one")
	}
	tbl.Add(addr("127.0.0.1", 5002))
	got, ok := tbl.ChooseRandomExcluding(5001)
	if !ok || got.Port != 5002 {
		t.Fatalf("expected 5002, got %v ok=%v", got, ok)
	}
}

func TestForEachExcluding(t *testing.T) {
	tbl := New(addr("127.0.0.1", 5000))
	tbl.Add(addr("127.0.0.1", 5001))
	tbl.Add(addr("127.0.0.1", 5002))
	var visited []int
	tbl.ForEachExcluding(5001, func(a util.PeerAddress) {
		visited = append(visited, a.Port)
	})
	if len(visited) != 1 || visited[0] != 5002 {
		t.Fatalf("unexpected visited set: %v", visited)
	}
}
