package rudp

import "errors"

const (
	// DupBitmapSize 重复检测位图覆盖的序号范围
	DupBitmapSize = 1024

	// DefaultRecvWindow 乱序缓冲容量
	DefaultRecvWindow = 256
)

var ErrReceiveWindowOverflow = errors.New("receive window overflow")

// seqNewer 模 2^16 比较：a 是否在 b 之后
// (a-b) mod 2^16 落在 (0, 2^15) 视为更新
func seqNewer(a, b uint16) bool {
	d := a - b
	return d != 0 && d < 0x8000
}

// recvWindow 单连接的接收端可靠性状态
//
// 三个互相纠缠的量：
//   - maxSeen：见过的最大序号，重复位图以它为基准滚动
//   - cumAck：最高连续收到的序号，放进出包的 ack 字段
//   - expected：ORDERED 通道下一个要上送的序号
type recvWindow struct {
	started bool
	maxSeen uint16
	cumAck  uint16

	// 以 maxSeen 为基准的滚动位图，bit delta 表示 maxSeen-delta 已收到
	seen [DupBitmapSize / 64]uint64

	expected uint16
	buffered map[uint16]orderedItem
	capacity int
}

// orderedItem 乱序缓冲里的一个载荷（seq 和 flags 留给分片重组用）
type orderedItem struct {
	seq     uint16
	payload []byte
	flags   uint8
}

func newRecvWindow(capacity int) *recvWindow {
	if capacity <= 0 {
		capacity = DefaultRecvWindow
	}
	return &recvWindow{
		cumAck:   0,
		expected: 1,
		buffered: make(map[uint16]orderedItem),
		capacity: capacity,
	}
}

// observe 登记一个收到的可靠序号
// 返回 false 表示重复（或太旧），应当只补 ACK 不再处理
func (r *recvWindow) observe(seq uint16) bool {
	if !r.started {
		r.started = true
		r.maxSeen = seq
		r.setBit(0)
		r.advanceCum()
		return true
	}

	if seqNewer(seq, r.maxSeen) {
		r.shift(seq - r.maxSeen)
		r.maxSeen = seq
		r.setBit(0)
		r.advanceCum()
		return true
	}

	delta := r.maxSeen - seq
	if int(delta) >= DupBitmapSize {
		// 早于位图窗口的一律按重复丢弃
		return false
	}
	if r.getBit(delta) {
		return false
	}
	r.setBit(delta)
	r.advanceCum()
	return true
}

// advanceCum 把连续收到的上界往前推
func (r *recvWindow) advanceCum() {
	for {
		next := r.cumAck + 1
		delta := r.maxSeen - next
		if seqNewer(next, r.maxSeen) || int(delta) >= DupBitmapSize {
			return
		}
		if !r.getBit(delta) {
			return
		}
		r.cumAck = next
	}
}

func (r *recvWindow) shift(n uint16) {
	if int(n) >= DupBitmapSize {
		for i := range r.seen {
			r.seen[i] = 0
		}
		return
	}
	words := int(n) / 64
	bits := uint(n) % 64

	if words > 0 {
		copy(r.seen[words:], r.seen[:len(r.seen)-words])
		for i := 0; i < words; i++ {
			r.seen[i] = 0
		}
	}
	if bits > 0 {
		for i := len(r.seen) - 1; i >= 0; i-- {
			r.seen[i] <<= bits
			if i > 0 {
				r.seen[i] |= r.seen[i-1] >> (64 - bits)
			}
		}
	}
}

func (r *recvWindow) setBit(delta uint16) {
	r.seen[delta/64] |= 1 << (delta % 64)
}

func (r *recvWindow) getBit(delta uint16) bool {
	return r.seen[delta/64]&(1<<(delta%64)) != 0
}

// deliverOrdered 把一个 ORDERED 载荷送进排序缓冲
// 返回此刻可以按序上送的载荷序列；缓冲溢出时返回 ErrReceiveWindowOverflow，
// 调用方必须关闭连接
func (r *recvWindow) deliverOrdered(seq uint16, payload []byte, flags uint8) ([]orderedItem, error) {
	if seq == r.expected {
		out := []orderedItem{{seq: seq, payload: payload, flags: flags}}
		r.expected++
		// 连带放出已缓冲的后继
		for {
			item, ok := r.buffered[r.expected]
			if !ok {
				break
			}
			delete(r.buffered, r.expected)
			out = append(out, item)
			r.expected++
		}
		return out, nil
	}

	if !seqNewer(seq, r.expected-1) {
		// 已经上送过的旧序号，幂等丢弃
		return nil, nil
	}

	if len(r.buffered) >= r.capacity {
		return nil, ErrReceiveWindowOverflow
	}
	if _, ok := r.buffered[seq]; !ok {
		r.buffered[seq] = orderedItem{seq: seq, payload: payload, flags: flags}
	}
	return nil, nil
}

// sackBitmap 生成选择性 ACK 位图：bit i 表示 cumAck-i 已收到
// 仅当存在乱序接收（maxSeen 超前于 cumAck）时随 ACK 包携带
func (r *recvWindow) sackBitmap() (uint64, bool) {
	if !r.started || r.maxSeen == r.cumAck {
		return 0, false
	}
	var bm uint64
	for i := uint16(0); i < 64; i++ {
		seq := r.cumAck - i
		delta := r.maxSeen - seq
		if int(delta) < DupBitmapSize && r.getBit(delta) {
			bm |= 1 << i
		}
	}
	return bm, true
}
