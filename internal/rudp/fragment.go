package rudp

import (
	"errors"
	"time"

	"github.com/qiminjie89/gameserver/internal/protocol"
)

const (
	// DefaultFragTimeout 分片组未集齐的丢弃期限
	DefaultFragTimeout = 2 * time.Second

	// DefaultMaxFragBytes 单个分片组的总大小上限
	DefaultMaxFragBytes = 64 * 1024
)

var (
	ErrFragmentTimeout = errors.New("fragment group timeout")
	ErrPayloadTooBig   = errors.New("payload exceeds max fragment bytes")
)

// splitPayload 把超过单包上限的载荷切成连续分片
// 除最后一片外每片正好 fragSize 字节
func splitPayload(payload []byte, fragSize int) [][]byte {
	if len(payload) <= fragSize {
		return [][]byte{payload}
	}
	chunks := make([][]byte, 0, (len(payload)+fragSize-1)/fragSize)
	for off := 0; off < len(payload); off += fragSize {
		end := off + fragSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, payload[off:end])
	}
	return chunks
}

// fragGroup 一个重组中的分片组
// 组 id 即第一片的序号，片内偏移由序号差推出
type fragGroup struct {
	groupID  uint16
	frags    map[uint16][]byte
	lastSeq  uint16
	haveLast bool
	bytes    int
	deadline time.Time
}

// complete 是否已集齐
func (g *fragGroup) complete() bool {
	if !g.haveLast {
		return false
	}
	count := int(g.lastSeq-g.groupID) + 1
	return len(g.frags) == count
}

// assemble 按序号顺序拼接
func (g *fragGroup) assemble() []byte {
	out := make([]byte, 0, g.bytes)
	for seq := g.groupID; ; seq++ {
		out = append(out, g.frags[seq]...)
		if seq == g.lastSeq {
			break
		}
	}
	return out
}

// reassembler 分片重组器（每连接一个）
type reassembler struct {
	groups   map[uint16]*fragGroup
	timeout  time.Duration
	maxBytes int
}

func newReassembler(timeout time.Duration, maxBytes int) *reassembler {
	if timeout <= 0 {
		timeout = DefaultFragTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFragBytes
	}
	return &reassembler{
		groups:   make(map[uint16]*fragGroup),
		timeout:  timeout,
		maxBytes: maxBytes,
	}
}

// add 收下一个分片，集齐时返回完整载荷
// 分片携带的组 id 在包头里没有显式字段：组 id = 首片序号，
// 收包侧通过往回找已知组来归队
func (a *reassembler) add(h *protocol.Header, payload []byte, now time.Time) ([]byte, error) {
	g := a.findGroup(h.Sequence)
	if g == nil {
		// 新组：当前片视为首片
		g = &fragGroup{
			groupID:  h.Sequence,
			frags:    make(map[uint16][]byte),
			deadline: now.Add(a.timeout),
		}
		a.groups[h.Sequence] = g
	}

	if _, ok := g.frags[h.Sequence]; ok {
		return nil, nil
	}

	// 调用方保证 payload 所有权已转移
	g.frags[h.Sequence] = payload
	g.bytes += len(payload)

	if g.bytes > a.maxBytes {
		delete(a.groups, g.groupID)
		return nil, ErrPayloadTooBig
	}

	if h.HasFlag(protocol.FlagLastFragment) {
		g.lastSeq = h.Sequence
		g.haveLast = true
	}

	if g.complete() {
		delete(a.groups, g.groupID)
		return g.assemble(), nil
	}
	return nil, nil
}

// findGroup 把分片序号归到既有组
//
// 包头没有显式的组字段，组 id 约定为首片序号。正序到达时首个分片
// 就是真正的组根；乱序到达时允许把组根往更小的序号挪。
// 末片先于所有前片到达的情况无法区分组边界，分片只在 ORDERED
// 流上产生，排序缓冲保证不会出现这种到达序
func (a *reassembler) findGroup(seq uint16) *fragGroup {
	for id, g := range a.groups {
		fwd := seq - id
		if int(fwd) < DefaultRecvWindow {
			if g.haveLast && seqNewer(seq, g.lastSeq) {
				continue
			}
			return g
		}
		back := id - seq
		if int(back) < DefaultRecvWindow {
			delete(a.groups, id)
			g.groupID = seq
			a.groups[seq] = g
			return g
		}
	}
	return nil
}

// expire 丢弃过期的分片组，返回丢弃数量
func (a *reassembler) expire(now time.Time) int {
	n := 0
	for id, g := range a.groups {
		if now.After(g.deadline) {
			delete(a.groups, id)
			n++
		}
	}
	return n
}

// pending 当前重组中的组数（测试用）
func (a *reassembler) pending() int {
	return len(a.groups)
}
