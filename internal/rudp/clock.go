// Package rudp 实现可靠 UDP 传输核心：
// 连接生命周期、序号与 ACK、重传、拥塞控制、分片重组
package rudp

import (
	"sync"
	"time"
)

// Clock 单调时钟抽象
// 生产环境用系统时钟，测试里用 FakeClock 推进虚拟时间
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock 返回系统时钟
func SystemClock() Clock { return systemClock{} }

// FakeClock 可手动推进的时钟（测试用）
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock 创建 FakeClock
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now 返回当前虚拟时间
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 推进虚拟时间
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
