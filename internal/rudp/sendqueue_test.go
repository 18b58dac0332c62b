package rudp

import (
	"testing"

	"github.com/qiminjie89/gameserver/internal/protocol"
)

func qmsg(prio uint8, reliable bool, tagByte byte) *outMsg {
	return &outMsg{
		payload: []byte{tagByte},
		class:   protocol.Class{Reliable: reliable, Priority: prio},
	}
}

func TestSendQueuePriorityOrder(t *testing.T) {
	q := newSendQueue(16)

	q.push(qmsg(protocol.PriorityMove, false, 'm'))
	q.push(qmsg(protocol.PriorityCritical, true, 'c'))
	q.push(qmsg(protocol.PriorityHigh, true, 'h'))
	q.push(qmsg(protocol.PriorityMove, false, 'n'))

	want := []byte{'c', 'h', 'm', 'n'}
	for i, w := range want {
		m := q.pop()
		if m == nil || m.payload[0] != w {
			t.Fatalf("pop %d = %v, want %c", i, m, w)
		}
	}
	if q.pop() != nil {
		t.Error("queue should be empty")
	}
}

func TestSendQueueFIFOWithinPriority(t *testing.T) {
	q := newSendQueue(16)
	for _, b := range []byte{'1', '2', '3'} {
		q.push(qmsg(protocol.PriorityHigh, true, b))
	}
	for _, want := range []byte{'1', '2', '3'} {
		if m := q.pop(); m.payload[0] != want {
			t.Fatalf("got %c, want %c", m.payload[0], want)
		}
	}
}

// 队列满时高优先级要挤掉低优先级的队尾
func TestSendQueueEviction(t *testing.T) {
	q := newSendQueue(3)

	q.push(qmsg(protocol.PriorityMove, false, 'a'))
	q.push(qmsg(protocol.PriorityMove, false, 'b'))
	q.push(qmsg(protocol.PriorityMove, false, 'c'))

	evicted, ok := q.push(qmsg(protocol.PriorityCritical, true, 'x'))
	if !ok {
		t.Fatal("critical message rejected")
	}
	if evicted == nil || evicted.payload[0] != 'c' {
		t.Fatalf("evicted = %v, want tail of move bucket", evicted)
	}

	if m := q.pop(); m.payload[0] != 'x' {
		t.Errorf("head = %c, want x", m.payload[0])
	}
}

// 满队列里全是更高或同级的消息时，新消息被拒
func TestSendQueueRejectLowest(t *testing.T) {
	q := newSendQueue(2)
	q.push(qmsg(protocol.PriorityHigh, true, 'a'))
	q.push(qmsg(protocol.PriorityHigh, true, 'b'))

	evicted, ok := q.push(qmsg(protocol.PriorityMove, false, 'm'))
	if ok || evicted != nil {
		t.Errorf("low-priority push on full queue: evicted=%v ok=%v", evicted, ok)
	}

	evicted, ok = q.push(qmsg(protocol.PriorityHigh, true, 'c'))
	if ok || evicted != nil {
		t.Errorf("same-priority push on full queue: evicted=%v ok=%v", evicted, ok)
	}
	if q.len() != 2 {
		t.Errorf("len = %d, want 2", q.len())
	}
}

func TestSendQueuePeek(t *testing.T) {
	q := newSendQueue(4)
	if q.peek() != nil {
		t.Error("peek on empty queue")
	}
	q.push(qmsg(protocol.PriorityState, true, 's'))
	q.push(qmsg(protocol.PriorityCritical, true, 'c'))
	if m := q.peek(); m.payload[0] != 'c' {
		t.Errorf("peek = %c, want c", m.payload[0])
	}
	if q.len() != 2 {
		t.Error("peek must not consume")
	}
}
