package rudp

import (
	"context"
	"sync"
	"time"
)

const (
	// WheelTick 时间轮粒度
	WheelTick = 10 * time.Millisecond

	// wheelSlots 槽数量（tick * slots = 一圈 5.12 秒，大于 MaxRTO）
	wheelSlots = 512
)

// TimerToken 定时任务句柄，用于取消
type TimerToken uint64

// timerEntry 时间轮里的一个定时任务
type timerEntry struct {
	token    TimerToken
	deadline time.Time
	rounds   int
	fn       func()
	canceled bool
}

// TimerWheel 哈希时间轮
// RTO、心跳、分片超时、房间清理等所有定时任务共享一个轮
// 取消是惰性的：条目留在槽里，触发时发现已取消就跳过
type TimerWheel struct {
	mu      sync.Mutex
	slots   [wheelSlots][]*timerEntry
	entries map[TimerToken]*timerEntry
	pos     int
	nextTok TimerToken
	last    time.Time
	clock   Clock
}

// NewTimerWheel 创建时间轮
func NewTimerWheel(clock Clock) *TimerWheel {
	return &TimerWheel{
		entries: make(map[TimerToken]*timerEntry),
		last:    clock.Now(),
		clock:   clock,
	}
}

// Schedule 注册一个在 delay 之后触发的任务，返回可取消的句柄
// 回调在时间轮推进的 goroutine 上执行，必须是非阻塞的
func (w *TimerWheel) Schedule(delay time.Duration, fn func()) TimerToken {
	if delay < 0 {
		delay = 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.nextTok++
	token := w.nextTok

	ticks := int(delay / WheelTick)
	if ticks < 1 {
		ticks = 1
	}

	e := &timerEntry{
		token:    token,
		deadline: w.last.Add(delay),
		rounds:   ticks / wheelSlots,
		fn:       fn,
	}

	slot := (w.pos + ticks) % wheelSlots
	w.slots[slot] = append(w.slots[slot], e)
	w.entries[token] = e

	return token
}

// Cancel 取消定时任务
// 对已触发或不存在的 token 调用是无害的
func (w *TimerWheel) Cancel(token TimerToken) {
	w.mu.Lock()
	if e, ok := w.entries[token]; ok {
		e.canceled = true
		delete(w.entries, token)
	}
	w.mu.Unlock()
}

// Advance 推进时间轮到 now，触发所有到期任务
func (w *TimerWheel) Advance(now time.Time) {
	for {
		w.mu.Lock()
		if now.Sub(w.last) < WheelTick {
			w.mu.Unlock()
			return
		}
		w.last = w.last.Add(WheelTick)
		w.pos = (w.pos + 1) % wheelSlots

		var due []*timerEntry
		var keep []*timerEntry
		for _, e := range w.slots[w.pos] {
			switch {
			case e.canceled:
				// 惰性移除
			case e.rounds > 0:
				e.rounds--
				keep = append(keep, e)
			default:
				due = append(due, e)
				delete(w.entries, e.token)
			}
		}
		w.slots[w.pos] = keep
		w.mu.Unlock()

		// 回调在锁外执行，允许回调里再 Schedule/Cancel
		for _, e := range due {
			e.fn()
		}
	}
}

// Run 以真实时间驱动时间轮，直到 ctx 取消
func (w *TimerWheel) Run(ctx context.Context) {
	ticker := time.NewTicker(WheelTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Advance(w.clock.Now())
		}
	}
}

// Pending 返回未触发的任务数（测试用）
func (w *TimerWheel) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
