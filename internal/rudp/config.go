package rudp

import "time"

// Config 传输层参数
type Config struct {
	MTU               int
	MaxConnections    int
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	AckDelay          time.Duration
	AckThreshold      int
	MinRTO            time.Duration
	MaxRTO            time.Duration
	MaxRetries        int
	CwndInit          int
	SsthreshInit      int
	RecvWindow        int
	SendQueueSize     int
	FragTimeout       time.Duration
	MaxFragBytes      int
	MailboxSize       int
}

// DefaultConfig 返回默认传输参数
func DefaultConfig() *Config {
	return &Config{
		MTU:               1200,
		MaxConnections:    2000,
		HeartbeatInterval: time.Second,
		IdleTimeout:       15 * time.Second,
		AckDelay:          20 * time.Millisecond,
		AckThreshold:      2,
		MinRTO:            100 * time.Millisecond,
		MaxRTO:            4 * time.Second,
		MaxRetries:        8,
		CwndInit:          2,
		SsthreshInit:      64,
		RecvWindow:        DefaultRecvWindow,
		SendQueueSize:     512,
		FragTimeout:       DefaultFragTimeout,
		MaxFragBytes:      DefaultMaxFragBytes,
		MailboxSize:       1024,
	}
}

// normalize 填平零值，避免调用方漏配
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.MTU <= 0 {
		c.MTU = d.MTU
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.AckDelay <= 0 {
		c.AckDelay = d.AckDelay
	}
	if c.AckThreshold <= 0 {
		c.AckThreshold = d.AckThreshold
	}
	if c.MinRTO <= 0 {
		c.MinRTO = d.MinRTO
	}
	if c.MaxRTO <= 0 {
		c.MaxRTO = d.MaxRTO
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.CwndInit <= 0 {
		c.CwndInit = d.CwndInit
	}
	if c.SsthreshInit <= 0 {
		c.SsthreshInit = d.SsthreshInit
	}
	if c.RecvWindow <= 0 {
		c.RecvWindow = d.RecvWindow
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = d.SendQueueSize
	}
	if c.FragTimeout <= 0 {
		c.FragTimeout = d.FragTimeout
	}
	if c.MaxFragBytes <= 0 {
		c.MaxFragBytes = d.MaxFragBytes
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = d.MailboxSize
	}
}
