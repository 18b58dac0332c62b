package rudp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/qiminjie89/gameserver/internal/protocol"
	"github.com/qiminjie89/gameserver/pkg/auth"
	"github.com/qiminjie89/gameserver/pkg/logger"
	"github.com/qiminjie89/gameserver/pkg/metrics"
)

const connShardCount = 64

// Handler 游戏层回调
// OnConnect 在握手校验通过后调用，返回要发给客户端的 ConnectResponse；
// 返回非零错误码表示拒绝，连接不会建立
type Handler interface {
	OnConnect(c *Conn, req *protocol.Connect) (*protocol.ConnectResponse, protocol.ErrorCode)
	OnMessage(c *Conn, msg protocol.Message)
	OnDisconnect(c *Conn, reason string)
}

// connShard 连接表分片
type connShard struct {
	mu    sync.RWMutex
	conns map[string]*Conn // addr → conn
}

// Server RUDP 服务器
// 单 socket；收包循环按对端地址分发到各连接的邮箱，
// 连接各自的 goroutine 单线程处理自己的状态
type Server struct {
	cfg             *Config
	sock            net.PacketConn
	handler         Handler
	validator       auth.Validator
	requiredVersion string

	clock Clock
	wheel *TimerWheel

	shards     [connShardCount]*connShard
	byID       map[uint32]*Conn
	byIDMu     sync.RWMutex
	connCount  atomic.Int64
	nextConnID atomic.Uint32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *zap.Logger
}

// Options 服务器依赖项
type Options struct {
	Handler         Handler
	Validator       auth.Validator
	RequiredVersion string
	Clock           Clock // 缺省用系统时钟
}

// NewServer 绑定 UDP 端口并创建服务器
func NewServer(bindAddr string, cfg *Config, opts Options) (*Server, error) {
	sock, err := net.ListenPacket("udp", bindAddr)
	if err != nil {
		return nil, err
	}
	return NewServerWithConn(sock, cfg, opts), nil
}

// NewServerWithConn 在现成的 PacketConn 上创建服务器（测试用内存管道）
func NewServerWithConn(sock net.PacketConn, cfg *Config, opts Options) *Server {
	cfg.normalize()

	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:             cfg,
		sock:            sock,
		handler:         opts.Handler,
		validator:       opts.Validator,
		requiredVersion: opts.RequiredVersion,
		clock:           clock,
		wheel:           NewTimerWheel(clock),
		byID:            make(map[uint32]*Conn),
		ctx:             ctx,
		cancel:          cancel,
		log:             logger.Named("rudp"),
	}
	for i := range s.shards {
		s.shards[i] = &connShard{conns: make(map[string]*Conn)}
	}
	return s
}

// Start 启动收包循环和时间轮
func (s *Server) Start() {
	s.log.Info("rudp server starting",
		zap.String("addr", s.sock.LocalAddr().String()),
		zap.Int("mtu", s.cfg.MTU),
		zap.Int("max_connections", s.cfg.MaxConnections),
	)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.wheel.Run(s.ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.recvLoop()
	}()
}

// Stop 优雅停机：向所有已建立连接发 Disconnect 后关闭 socket
func (s *Server) Stop() {
	for _, c := range s.Conns() {
		c.Close("server_shutdown")
	}

	s.cancel()
	s.sock.Close()
	s.wg.Wait()

	s.log.Info("rudp server stopped")
}

// Wheel 共享时间轮（游戏层的复活、房间清理定时也挂在这里）
func (s *Server) Wheel() *TimerWheel { return s.wheel }

// Clock 共享时钟
func (s *Server) Clock() Clock { return s.clock }

// GetConn 按连接 id 查询
func (s *Server) GetConn(id uint32) *Conn {
	s.byIDMu.RLock()
	defer s.byIDMu.RUnlock()
	return s.byID[id]
}

// ConnCount 活跃连接数
func (s *Server) ConnCount() int {
	return int(s.connCount.Load())
}

// Conns 当前全部连接的快照
func (s *Server) Conns() []*Conn {
	out := make([]*Conn, 0, s.ConnCount())
	s.byIDMu.RLock()
	for _, c := range s.byID {
		out = append(out, c)
	}
	s.byIDMu.RUnlock()
	return out
}

// recvLoop 收包循环：解码、查表、投递
func (s *Server) recvLoop() {
	buf := make([]byte, 65536)

	for {
		n, addr, err := s.sock.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.log.Debug("socket read failed", zap.Error(err))
			continue
		}

		h, payload, err := protocol.DecodePacket(buf[:n])
		if err != nil {
			// 坏包静默丢弃，绝不关连接
			switch err {
			case protocol.ErrBadChecksum:
				metrics.RudpPacketsDropped.WithLabelValues("bad_checksum").Inc()
			case protocol.ErrLengthMismatch:
				metrics.RudpPacketsDropped.WithLabelValues("length_mismatch").Inc()
			default:
				metrics.RudpPacketsDropped.WithLabelValues("malformed").Inc()
			}
			continue
		}

		if !h.Type.Valid() {
			metrics.RudpPacketsDropped.WithLabelValues("unknown_type").Inc()
			continue
		}

		// 载荷是读缓冲的切片，投递前必须复制
		owned := make([]byte, len(payload))
		copy(owned, payload)

		if c := s.lookupConn(addr); c != nil {
			_ = c.post(connEvent{kind: evPacket, header: h, payload: owned})
			continue
		}

		s.acceptHandshake(&h, owned, addr)
	}
}

// acceptHandshake 未知地址的首包：只接受 Connect，走认证和容量检查
func (s *Server) acceptHandshake(h *protocol.Header, payload []byte, addr net.Addr) {
	if h.Type != protocol.PacketConnect {
		metrics.RudpPacketsDropped.WithLabelValues("no_connection").Inc()
		return
	}

	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		metrics.RudpPacketsDropped.WithLabelValues("malformed").Inc()
		return
	}
	req, ok := msg.(*protocol.Connect)
	if !ok {
		metrics.RudpPacketsDropped.WithLabelValues("no_connection").Inc()
		return
	}

	if int(s.connCount.Load()) >= s.cfg.MaxConnections {
		s.rejectHandshake(addr, protocol.CodeServerFull)
		return
	}

	user, err := s.validator.Validate(req.Token)
	if err != nil {
		s.log.Info("handshake auth failed",
			zap.String("peer", addr.String()),
			zap.Error(err),
		)
		s.rejectHandshake(addr, protocol.CodeAuthFailed)
		return
	}

	if s.requiredVersion != "" && req.ClientVersion != s.requiredVersion {
		s.rejectHandshake(addr, protocol.CodeVersionMismatch)
		return
	}

	c := newConn(s.nextConnID.Add(1), addr, s)
	s.registerConn(c)

	go c.run()
	_ = c.post(connEvent{kind: evHandshake, header: *h, connect: req, user: user.UserID})
}

// rejectHandshake 拒绝握手：回带错误码的 ConnectAck，不保留状态
func (s *Server) rejectHandshake(addr net.Addr, code protocol.ErrorCode) {
	payload, err := protocol.EncodeMessage(&protocol.Error{Code: code, Message: code.String()})
	if err != nil {
		return
	}
	h := &protocol.Header{Type: protocol.PacketConnectAck}
	data := protocol.EncodePacket(h, payload)
	s.sock.WriteTo(data, addr)

	metrics.RudpConnectionCloseReason.WithLabelValues(code.String()).Inc()
}

func (s *Server) shardFor(addr string) *connShard {
	return s.shards[fnvHash(addr)%connShardCount]
}

// fnvHash FNV-1a
func fnvHash(s string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func (s *Server) lookupConn(addr net.Addr) *Conn {
	key := addr.String()
	shard := s.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	return shard.conns[key]
}

func (s *Server) registerConn(c *Conn) {
	key := c.addr.String()
	shard := s.shardFor(key)
	shard.mu.Lock()
	shard.conns[key] = c
	shard.mu.Unlock()

	s.byIDMu.Lock()
	s.byID[c.id] = c
	s.byIDMu.Unlock()

	s.connCount.Add(1)
	metrics.RudpConnections.Inc()
}

func (s *Server) removeConn(c *Conn) {
	key := c.addr.String()
	shard := s.shardFor(key)
	shard.mu.Lock()
	cur, ok := shard.conns[key]
	if ok && cur == c {
		delete(shard.conns, key)
	}
	shard.mu.Unlock()
	if !ok || cur != c {
		return
	}

	s.byIDMu.Lock()
	delete(s.byID, c.id)
	s.byIDMu.Unlock()

	s.connCount.Add(-1)
	metrics.RudpConnections.Dec()
}
