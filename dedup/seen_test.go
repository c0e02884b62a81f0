package dedup

import (
	"sync"
	"testing"

	"kvoverlay/proto"
	"kvoverlay/util"
)

func TestMarkIfNew(t *testing.T) {
	s := New()
	id := proto.SearchID{Origin: util.PeerAddress{Host: "127.0.0.1", Port: 5000}, SeqNo: 1}
	if !s.MarkIfNew(id) {
		t.Fatal("first sighting should be new")
	}
	if s.MarkIfNew(id) {
		t.Fatal("second sighting must be suppressed")
	}
	if !s.Seen(id) {
		t.Fatal("expected id to be recorded as seen")
	}
}

func TestMarkIfNewConcurrentOnlyOneWinner(t *testing.T) {
	s := New()
	id := proto.SearchID{Origin: util.PeerAddress{Host: "127.0.0.1", Port: 5000}, SeqNo: 1}
	const n = 50
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.MarkIfNew(id)
		}(i)
	}
	wg.Wait()
	wins := 0
	for _, r := range results {
		if r {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner across concurrent callers, got %d", wins)
	}
}
