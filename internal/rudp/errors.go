package rudp

import "errors"

// 连接级错误（关闭原因）
var (
	ErrPeerUnreachable   = errors.New("peer unreachable: retransmission limit reached")
	ErrIdleTimeout       = errors.New("idle timeout")
	ErrSendQueueOverflow = errors.New("send queue overflow")
	ErrConnClosed        = errors.New("connection closed")
	ErrServerFull        = errors.New("server full")
)
