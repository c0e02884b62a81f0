package proto

import (
	"testing"

	"kvoverlay/util"
)

func TestParseSearchRoundTrip(t *testing.T) {
	line := "10.0.0.1:5000 7 9 SEARCH FL 10.0.0.2:5001 KEY1 2"
	f, err := Parse(line)
	if err != nil {
		t.Fatal(err)
	}
	if f.Origin != (util.PeerAddress{Host: "10.0.0.1", Port: 5000}) {
		t.Fatalf("unexpected origin: %v", f.Origin)
	}
	if f.SeqNo != 7 || f.TTL != 9 || f.Op != OpSearch {
		t.Fatalf("unexpected leading fields: %+v", f)
	}
	wantLastHop := util.PeerAddress{Host: "10.0.0.2", Port: 5001}
	if f.Mode != ModeFlood || f.LastHop != wantLastHop || f.Key != "KEY1" || f.HopCount != 2 {
		t.Fatalf("unexpected SEARCH fields: %+v", f)
	}
	if got := f.Encode(); got != line+"\n" {
		t.Fatalf("encode mismatch: got %q want %q", got, line+"\n")
	}
}

func TestParseVal(t *testing.T) {
	line := "10.0.0.1:5000 7 9 VAL FL KEY1 V1 2"
	f, err := Parse(line)
	if err != nil {
		t.Fatal(err)
	}
	if f.Op != OpVal || f.Key != "KEY1" || f.Value != "V1" || f.HopCount != 2 {
		t.Fatalf("unexpected VAL fields: %+v", f)
	}
}

func TestParseHello(t *testing.T) {
	for _, op := range []Op{OpHello, OpHelloOK, OpBye} {
		line := "10.0.0.1:5000 0 1 " + string(op)
		f, err := Parse(line)
		if err != nil {
			t.Fatal(err)
		}
		if f.Op != op {
			t.Fatalf("unexpected op: %v", f.Op)
		}
	}
}

func TestParseRejectsShortFrame(t *testing.T) {
	if _, err := Parse("10.0.0.1:5000 0 HELLO"); err == nil {
		t.Fatal("expected error for short frame")
	}
}

func TestParseRejectsNonIntegerFields(t *testing.T) {
	cases := []string{
		"10.0.0.1:5000 x 1 HELLO",
		"10.0.0.1:5000 0 x HELLO",
		"not-an-address 0 1 HELLO",
	}
	for _, line := range cases {
		if _, err := Parse(line); err == nil {
			t.Fatalf("expected error for %q", line)
		}
	}
}

func TestParseUnknownOpIsNotAnError(t *testing.T) {
	f, err := Parse("10.0.0.1:5000 0 1 WHATEVER extra fields here")
	if err != nil {
		t.Fatalf("unknown op should not be a parse error: %v", err)
	}
	if KnownOp(f.Op) {
		t.Fatal("WHATEVER should not be a known op")
	}
}

func TestSearchIDIdentity(t *testing.T) {
	a, err := Parse("10.0.0.1:5000 7 9 SEARCH FL 10.0.0.2:5001 KEY1 2")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("10.0.0.1:5000 7 3 SEARCH RW 10.0.0.3:6000 KEY2 9")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID() != b.ID() {
		t.Fatal("frames sharing (origin, seqno) must share a SearchID regardless of other fields")
	}
}
