package rudp

import (
	"bytes"
	"testing"
	"time"

	"github.com/qiminjie89/gameserver/internal/protocol"
)

func TestSplitPayload(t *testing.T) {
	small := make([]byte, 100)
	if got := splitPayload(small, 1188); len(got) != 1 {
		t.Errorf("small payload split into %d chunks", len(got))
	}

	// 3000 字节按 1188 切：1188 + 1188 + 624
	big := make([]byte, 3000)
	for i := range big {
		big[i] = byte(i)
	}
	chunks := splitPayload(big, 1188)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if len(chunks[0]) != 1188 || len(chunks[1]) != 1188 || len(chunks[2]) != 624 {
		t.Errorf("chunk sizes = %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}

	var joined []byte
	for _, c := range chunks {
		joined = append(joined, c...)
	}
	if !bytes.Equal(joined, big) {
		t.Error("chunks do not reassemble to original")
	}
}

func fragHeader(seq uint16, last bool) *protocol.Header {
	flags := protocol.FlagReliable | protocol.FlagFragmented
	if last {
		flags |= protocol.FlagLastFragment
	}
	return &protocol.Header{Type: protocol.PacketData, Flags: flags, Sequence: seq}
}

func TestReassembleInOrder(t *testing.T) {
	a := newReassembler(time.Second, 0)
	now := time.Now()

	if out, err := a.add(fragHeader(10, false), []byte("aa"), now); err != nil || out != nil {
		t.Fatalf("frag 10: out=%v err=%v", out, err)
	}
	if out, err := a.add(fragHeader(11, false), []byte("bb"), now); err != nil || out != nil {
		t.Fatalf("frag 11: out=%v err=%v", out, err)
	}
	out, err := a.add(fragHeader(12, true), []byte("cc"), now)
	if err != nil {
		t.Fatalf("frag 12: %v", err)
	}
	if string(out) != "aabbcc" {
		t.Errorf("assembled = %q, want aabbcc", out)
	}
	if a.pending() != 0 {
		t.Errorf("pending groups = %d after completion", a.pending())
	}
}

// 中间片先到：组根要往回挪到真正的首片
func TestReassembleReordered(t *testing.T) {
	a := newReassembler(time.Second, 0)
	now := time.Now()

	a.add(fragHeader(11, false), []byte("bb"), now)
	a.add(fragHeader(10, false), []byte("aa"), now)
	out, err := a.add(fragHeader(12, true), []byte("cc"), now)
	if err != nil {
		t.Fatalf("frag 12: %v", err)
	}
	if string(out) != "aabbcc" {
		t.Errorf("assembled = %q, want aabbcc", out)
	}
}

func TestReassembleDuplicateFragment(t *testing.T) {
	a := newReassembler(time.Second, 0)
	now := time.Now()

	a.add(fragHeader(5, false), []byte("xx"), now)
	a.add(fragHeader(5, false), []byte("xx"), now)
	out, err := a.add(fragHeader(6, true), []byte("yy"), now)
	if err != nil {
		t.Fatalf("frag 6: %v", err)
	}
	if string(out) != "xxyy" {
		t.Errorf("assembled = %q, want xxyy", out)
	}
}

func TestReassembleTimeout(t *testing.T) {
	a := newReassembler(time.Second, 0)
	now := time.Now()

	a.add(fragHeader(1, false), []byte("aa"), now)
	if n := a.expire(now.Add(500 * time.Millisecond)); n != 0 {
		t.Errorf("expired %d groups before deadline", n)
	}
	if n := a.expire(now.Add(2 * time.Second)); n != 1 {
		t.Errorf("expired %d groups after deadline, want 1", n)
	}
	if a.pending() != 0 {
		t.Errorf("pending = %d after expiry", a.pending())
	}
}

func TestReassembleSizeLimit(t *testing.T) {
	a := newReassembler(time.Second, 10)
	now := time.Now()

	if _, err := a.add(fragHeader(1, false), make([]byte, 8), now); err != nil {
		t.Fatalf("first frag: %v", err)
	}
	if _, err := a.add(fragHeader(2, false), make([]byte, 8), now); err != ErrPayloadTooBig {
		t.Fatalf("err = %v, want ErrPayloadTooBig", err)
	}
	if a.pending() != 0 {
		t.Error("oversized group must be dropped")
	}
}

// 两个独立分片组间隔超过接收窗口时不得互相吞并
func TestReassembleSeparateGroups(t *testing.T) {
	a := newReassembler(time.Second, 0)
	now := time.Now()

	a.add(fragHeader(1, false), []byte("aa"), now)
	a.add(fragHeader(1000, false), []byte("bb"), now)
	if a.pending() != 2 {
		t.Fatalf("pending = %d, want 2 distinct groups", a.pending())
	}

	out, err := a.add(fragHeader(2, true), []byte("cc"), now)
	if err != nil || string(out) != "aacc" {
		t.Errorf("group 1: out=%q err=%v", out, err)
	}
	out, err = a.add(fragHeader(1001, true), []byte("dd"), now)
	if err != nil || string(out) != "bbdd" {
		t.Errorf("group 2: out=%q err=%v", out, err)
	}
}
