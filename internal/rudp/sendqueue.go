package rudp

import (
	"sort"

	"github.com/qiminjie89/gameserver/internal/protocol"
)

// outMsg 待发送的游戏消息（已序列化）
// ptype 为零值时按普通 Data 包发出，握手响应用 ConnectAck
type outMsg struct {
	payload []byte
	class   protocol.Class
	ptype   protocol.PacketType
}

// sendQueue 按优先级分桶的出站队列
// 数值小的优先级先发，同优先级内 FIFO；总量有界，
// 满了先挤掉更低优先级的队尾消息
type sendQueue struct {
	buckets map[uint8][]*outMsg
	prios   []uint8 // 升序维护
	total   int
	limit   int
}

func newSendQueue(limit int) *sendQueue {
	return &sendQueue{
		buckets: make(map[uint8][]*outMsg),
		limit:   limit,
	}
}

// push 入队
// 返回 (被挤掉的消息, 本条是否入队成功)；两者都可能指示丢弃，
// 丢的是可靠消息时调用方必须关闭连接
func (q *sendQueue) push(m *outMsg) (evicted *outMsg, ok bool) {
	if q.total >= q.limit {
		victim := q.lowestPrio()
		if victim <= m.class.Priority {
			// 自己就是最低优先级，丢进来的这条
			return nil, false
		}
		evicted = q.evictTail(victim)
	}

	b, exists := q.buckets[m.class.Priority]
	if !exists {
		i := sort.Search(len(q.prios), func(i int) bool { return q.prios[i] >= m.class.Priority })
		q.prios = append(q.prios, 0)
		copy(q.prios[i+1:], q.prios[i:])
		q.prios[i] = m.class.Priority
	}
	q.buckets[m.class.Priority] = append(b, m)
	q.total++
	return evicted, true
}

// pop 取最高优先级的队首消息，空队列返回 nil
func (q *sendQueue) pop() *outMsg {
	for _, p := range q.prios {
		b := q.buckets[p]
		if len(b) == 0 {
			continue
		}
		m := b[0]
		q.buckets[p] = b[1:]
		q.total--
		return m
	}
	return nil
}

// peek 查看最高优先级的队首消息
func (q *sendQueue) peek() *outMsg {
	for _, p := range q.prios {
		if b := q.buckets[p]; len(b) > 0 {
			return b[0]
		}
	}
	return nil
}

func (q *sendQueue) len() int { return q.total }

// lowestPrio 当前最低优先级档位（数值最大的非空桶）
func (q *sendQueue) lowestPrio() uint8 {
	for i := len(q.prios) - 1; i >= 0; i-- {
		if len(q.buckets[q.prios[i]]) > 0 {
			return q.prios[i]
		}
	}
	return 0
}

// evictTail 从指定优先级桶的队尾挤掉一条
func (q *sendQueue) evictTail(prio uint8) *outMsg {
	b := q.buckets[prio]
	if len(b) == 0 {
		return nil
	}
	m := b[len(b)-1]
	q.buckets[prio] = b[:len(b)-1]
	q.total--
	return m
}
