package rudp

import (
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/gameserver/internal/protocol"
	"github.com/qiminjie89/gameserver/pkg/logger"
	"github.com/qiminjie89/gameserver/pkg/metrics"
)

// ConnState 连接状态
// 只允许 Handshaking → Established → Closing → Closed 单向迁移
type ConnState int32

const (
	StateHandshaking ConnState = iota
	StateEstablished
	StateClosing
	StateClosed
)

// String 返回状态名
func (s ConnState) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// eventKind 连接邮箱里的事件类别
type eventKind int

const (
	evPacket    eventKind = iota // 入站包
	evSend                       // 出站游戏消息
	evHandshake                  // 握手完成前的 Connect
	evRTO                        // 某个序号的重传超时
	evAckFlush                   // 延迟 ACK 到期
	evTick                       // 心跳 / 空闲 / 分片过期巡检
	evLinger                     // Closing 驻留结束
	evClose                      // 主动关闭
)

// connEvent 投进连接邮箱的事件
// 连接的全部状态只在连接自己的 goroutine 里动，邮箱是唯一入口
type connEvent struct {
	kind    eventKind
	header  protocol.Header
	payload []byte
	msg     *outMsg
	seq     uint16
	user    string
	connect *protocol.Connect
	reason  string
}

// pendingPacket 已发送待确认的可靠包
type pendingPacket struct {
	seq       uint16
	ptype     protocol.PacketType
	flags     uint8
	payload   []byte
	firstSent time.Time
	lastSent  time.Time
	retries   int
	rto       time.Duration
	timer     TimerToken
}

// Stats 连接传输统计
type Stats struct {
	PacketsSent     atomic.Uint64
	PacketsReceived atomic.Uint64
	BytesSent       atomic.Uint64
	BytesReceived   atomic.Uint64
	Retransmissions atomic.Uint64
	PacketsLost     atomic.Uint64
	Duplicates      atomic.Uint64
}

// Conn 一条 RUDP 连接
type Conn struct {
	id   uint32
	addr net.Addr
	srv  *Server

	userID     string
	playerName string
	playerID   atomic.Uint32

	state  atomic.Int32
	events chan connEvent
	done   chan struct{}
	closed sync.Once

	// 以下字段仅在 run goroutine 内访问
	nextSeq    uint16 // 可靠通道序号（先自增，首个为 1）
	unrelSeq   uint16 // 不可靠通道自用序号
	unacked    map[uint16]*pendingPacket
	queue      *sendQueue
	inFlight   int
	cc         *congestion
	rw         *recvWindow
	frag       *reassembler
	dupAcks    int
	lastCumAck uint16

	pendingAcks int
	ackTimer    TimerToken
	tickTimer   TimerToken
	lingerTimer TimerToken

	lastHeard time.Time
	lastSent  time.Time

	closeReason string

	stats Stats
	log   *zap.Logger
}

func newConn(id uint32, addr net.Addr, srv *Server) *Conn {
	cfg := srv.cfg
	c := &Conn{
		id:      id,
		addr:    addr,
		srv:     srv,
		events:  make(chan connEvent, cfg.MailboxSize),
		done:    make(chan struct{}),
		unacked: make(map[uint16]*pendingPacket),
		queue:   newSendQueue(cfg.SendQueueSize),
		cc:      newCongestion(cfg.CwndInit, cfg.SsthreshInit, cfg.MinRTO, cfg.MaxRTO),
		rw:      newRecvWindow(cfg.RecvWindow),
		frag:    newReassembler(cfg.FragTimeout, cfg.MaxFragBytes),
		log: logger.Named("rudp").With(
			zap.Uint32("conn_id", id),
			zap.String("peer", addr.String()),
		),
	}
	c.state.Store(int32(StateHandshaking))
	now := srv.clock.Now()
	c.lastHeard = now
	c.lastSent = now
	return c
}

// ID 本地连接 id
func (c *Conn) ID() uint32 { return c.id }

// Addr 对端地址
func (c *Conn) Addr() net.Addr { return c.addr }

// UserID 认证通过的用户 id
func (c *Conn) UserID() string { return c.userID }

// PlayerName 握手时上报的玩家名
func (c *Conn) PlayerName() string { return c.playerName }

// PlayerID 游戏层分配的玩家 id
func (c *Conn) PlayerID() uint32 { return c.playerID.Load() }

// SetPlayerID 绑定玩家 id（握手回调里由游戏层调用）
func (c *Conn) SetPlayerID(id uint32) { c.playerID.Store(id) }

// State 当前连接状态
func (c *Conn) State() ConnState { return ConnState(c.state.Load()) }

// Stats 传输统计
func (c *Conn) Stats() *Stats { return &c.stats }

// Send 发送一条游戏消息
// 按消息标签分类进优先级队列；背压时先丢低优先级的不可靠消息，
// 可靠消息丢弃意味着连接要被关掉
func (c *Conn) Send(msg protocol.Message) error {
	if c.State() >= StateClosing {
		return ErrConnClosed
	}

	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}

	m := &outMsg{payload: payload, class: protocol.Classify(msg.Tag())}
	return c.post(connEvent{kind: evSend, msg: m})
}

// Close 主动关闭连接（发 Disconnect 并走 Closing 驻留）
func (c *Conn) Close(reason string) {
	_ = c.post(connEvent{kind: evClose, reason: reason})
}

// post 非阻塞投递事件
func (c *Conn) post(ev connEvent) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.events <- ev:
		return nil
	default:
		// 邮箱满：入站包和不可靠消息可以丢，计数即可；
		// 可靠消息丢失等同发送队列溢出，连接必须关闭
		metrics.RudpPacketsDropped.WithLabelValues("mailbox_full").Inc()
		if ev.kind == evSend && ev.msg != nil && ev.msg.class.Reliable {
			c.postTimer(connEvent{kind: evClose, reason: ErrSendQueueOverflow.Error()})
		}
		return ErrSendQueueOverflow
	}
}

// postTimer 定时器事件不容丢失，投不进去就把定时器往后挪一格重试
func (c *Conn) postTimer(ev connEvent) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.events <- ev:
	default:
		c.srv.wheel.Schedule(WheelTick, func() { c.postTimer(ev) })
	}
}

// run 连接主循环，处理邮箱事件直到连接关闭
func (c *Conn) run() {
	c.tickTimer = c.srv.wheel.Schedule(c.srv.cfg.HeartbeatInterval, func() {
		c.postTimer(connEvent{kind: evTick})
	})

	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.handleEvent(ev)
			if c.State() < StateClosing {
				c.pump()
			}
		}
	}
}

func (c *Conn) handleEvent(ev connEvent) {
	switch ev.kind {
	case evPacket:
		c.handlePacket(&ev.header, ev.payload)
	case evSend:
		c.enqueue(ev.msg)
	case evHandshake:
		c.handleHandshake(&ev.header, ev.connect, ev.user)
	case evRTO:
		c.handleRTO(ev.seq)
	case evAckFlush:
		c.ackTimer = 0
		if c.pendingAcks > 0 {
			c.sendAck()
		}
	case evTick:
		c.handleTick()
	case evLinger:
		c.finalize()
	case evClose:
		c.beginClose(ev.reason, true)
	}
}

// handleHandshake 完成握手：登记 Connect 包的序号并回 ConnectAck
func (c *Conn) handleHandshake(h *protocol.Header, req *protocol.Connect, userID string) {
	c.userID = userID
	c.playerName = req.PlayerName
	c.lastHeard = c.srv.clock.Now()

	if h.HasFlag(protocol.FlagReliable) {
		c.rw.observe(h.Sequence)
		if h.HasFlag(protocol.FlagOrdered) {
			// Connect 占用了有序通道的首个序号，后续数据从它的下一个开始
			c.rw.expected = h.Sequence + 1
		}
		c.scheduleAck()
	}

	resp, code := c.srv.handler.OnConnect(c, req)
	if code != 0 {
		// 拒绝连接：带错误码回包，不保留连接状态
		c.sendHandshakeReject(code)
		c.finalize()
		return
	}

	payload, err := protocol.EncodeMessage(resp)
	if err != nil {
		c.log.Error("encode connect response failed", zap.Error(err))
		c.finalize()
		return
	}

	c.enqueue(&outMsg{
		payload: payload,
		class:   protocol.Classify(protocol.TagConnectResponse),
		ptype:   protocol.PacketConnectAck,
	})

	c.state.Store(int32(StateEstablished))
	c.log.Info("connection established",
		zap.String("user_id", c.userID),
		zap.String("player", c.playerName),
	)
}

// sendHandshakeReject 握手拒绝：单发一个 ConnectAck 携带 Error
func (c *Conn) sendHandshakeReject(code protocol.ErrorCode) {
	payload, err := protocol.EncodeMessage(&protocol.Error{Code: code, Message: code.String()})
	if err != nil {
		return
	}
	h := &protocol.Header{Type: protocol.PacketConnectAck, Ack: c.rw.cumAck}
	c.writePacket(h, payload)
}

// handlePacket 入站包处理
func (c *Conn) handlePacket(h *protocol.Header, payload []byte) {
	c.lastHeard = c.srv.clock.Now()
	c.stats.PacketsReceived.Add(1)
	c.stats.BytesReceived.Add(uint64(protocol.HeaderSize + len(payload)))
	metrics.RudpPacketsReceived.WithLabelValues(h.Type.String()).Inc()

	// 所有包的 ack 字段都生效（捎带确认）
	c.processAck(h, payload)

	switch h.Type {
	case protocol.PacketAck:
		// processAck 已消化
	case protocol.PacketHeartbeat:
		// 只刷新活跃时间
	case protocol.PacketPing:
		// 原样把载荷放回 Pong，对端用来测 RTT
		pong := &protocol.Header{Type: protocol.PacketPong, Ack: c.rw.cumAck}
		c.writePacket(pong, payload)
	case protocol.PacketPong:
		// 对端响应，活跃时间已刷新
	case protocol.PacketNak:
		c.handleNak(h.Ack)
	case protocol.PacketCongestionControl:
		// 预留类型，计数后忽略
		metrics.RudpPacketsDropped.WithLabelValues("unhandled_type").Inc()
	case protocol.PacketData, protocol.PacketConnect:
		c.handleData(h, payload)
	case protocol.PacketDisconnect:
		c.handlePeerDisconnect(payload)
	case protocol.PacketDisconnectAck:
		if c.State() == StateClosing {
			c.finalize()
		}
	default:
		metrics.RudpPacketsDropped.WithLabelValues("unknown_type").Inc()
	}
}

// handleData 数据包接收路径：去重 → 记 ACK → 排序 → 重组 → 上送
func (c *Conn) handleData(h *protocol.Header, payload []byte) {
	if h.HasFlag(protocol.FlagReliable) {
		if !c.rw.observe(h.Sequence) {
			c.stats.Duplicates.Add(1)
			metrics.RudpDuplicates.Inc()
			// 重复包也要补 ACK，对端可能没收到上一个
			c.scheduleAck()
			return
		}
		c.scheduleAck()
	}

	// payload 在收包循环里已经复制过，可以长期持有
	if h.HasFlag(protocol.FlagOrdered) {
		items, err := c.rw.deliverOrdered(h.Sequence, payload, h.Flags)
		if err != nil {
			c.log.Warn("receive window overflow", zap.Uint16("seq", h.Sequence))
			c.beginClose(ErrReceiveWindowOverflow.Error(), false)
			return
		}
		for _, item := range items {
			c.consume(item.payload, item.flags, item.seq)
		}
		return
	}

	c.consume(payload, h.Flags, h.Sequence)
}

// consume 处理一个已通过去重和排序的载荷
func (c *Conn) consume(payload []byte, flags uint8, seq uint16) {
	if flags&protocol.FlagFragmented != 0 {
		fh := &protocol.Header{Sequence: seq, Flags: flags}
		full, err := c.frag.add(fh, payload, c.srv.clock.Now())
		if err != nil {
			c.log.Warn("fragment group dropped", zap.Error(err))
			metrics.RudpFragmentTimeouts.Inc()
			return
		}
		if full == nil {
			return
		}
		payload = full
	}
	c.deliverUp(payload)
}

// deliverUp 反序列化并交给游戏层
func (c *Conn) deliverUp(payload []byte) {
	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		// 协议错误不关连接，回 Error 让对端自查
		c.log.Debug("malformed game message", zap.Error(err))
		code := protocol.CodeProtocolError
		if err == protocol.ErrUnknownTag {
			code = protocol.CodeUnknownMessage
		}
		_ = c.Send(&protocol.Error{Code: code, Message: code.String()})
		return
	}
	c.srv.handler.OnMessage(c, msg)
}

// processAck 消化 ack 字段与选择性确认位图
func (c *Conn) processAck(h *protocol.Header, payload []byte) {
	ack := h.Ack

	var sack uint64
	if h.Type == protocol.PacketAck && len(payload) >= 8 {
		sack = binary.BigEndian.Uint64(payload[:8])
	}

	fresh := seqNewer(ack, c.lastCumAck)
	if fresh {
		c.lastCumAck = ack
		c.dupAcks = 0
	} else if h.Type == protocol.PacketAck && ack == c.lastCumAck && len(c.unacked) > 0 {
		// 重复 ACK：三次视为丢包
		c.dupAcks++
		if c.dupAcks >= 3 {
			c.dupAcks = 0
			c.fastRetransmit()
		}
	}

	now := c.srv.clock.Now()
	freshData := false
	for seq, p := range c.unacked {
		covered := !seqNewer(seq, ack)
		if !covered && sack != 0 {
			// 位图 bit i 表示 ack-i 已收到。本端生成的位图只覆盖
			// 累计确认以下的序号，此分支只对携带扩展位图的对端生效
			if d := ack - seq; d < 64 && sack&(1<<d) != 0 {
				covered = true
			}
		}
		if !covered {
			continue
		}

		delete(c.unacked, seq)
		c.inFlight--
		c.srv.wheel.Cancel(p.timer)
		freshData = true

		// Karn：重传过的包不采样
		if p.retries == 0 {
			rtt := now.Sub(p.firstSent)
			c.cc.onSample(rtt)
			metrics.RudpRTT.Observe(rtt.Seconds())
		}
	}

	if fresh && freshData {
		c.cc.onFreshAck()
	}
}

// fastRetransmit 三次重复 ACK：立刻重发最早的在途包
func (c *Conn) fastRetransmit() {
	var oldest *pendingPacket
	for _, p := range c.unacked {
		if oldest == nil || seqNewer(oldest.seq, p.seq) {
			oldest = p
		}
	}
	if oldest == nil {
		return
	}

	c.cc.onLoss()
	c.stats.PacketsLost.Add(1)
	c.resend(oldest)
}

// handleNak 对端点名要求重传
func (c *Conn) handleNak(seq uint16) {
	if p, ok := c.unacked[seq]; ok {
		c.cc.onLoss()
		c.resend(p)
	}
}

// handleRTO 单包重传超时
func (c *Conn) handleRTO(seq uint16) {
	p, ok := c.unacked[seq]
	if !ok {
		// 已被 ACK，惰性取消的残留
		return
	}

	if p.retries >= c.srv.cfg.MaxRetries {
		c.log.Warn("retransmission limit reached",
			zap.Uint16("seq", seq),
			zap.Int("retries", p.retries),
		)
		c.beginClose(ErrPeerUnreachable.Error(), false)
		return
	}

	c.cc.onLoss()
	c.stats.PacketsLost.Add(1)

	// 该包的 RTO 指数退避
	p.rto *= 2
	if p.rto > c.srv.cfg.MaxRTO {
		p.rto = c.srv.cfg.MaxRTO
	}
	c.resend(p)
}

// resend 重发一个在途包并重挂定时器
func (c *Conn) resend(p *pendingPacket) {
	c.srv.wheel.Cancel(p.timer)

	h := &protocol.Header{
		Type:     p.ptype,
		Flags:    p.flags,
		Sequence: p.seq,
		Ack:      c.rw.cumAck,
	}
	c.writePacket(h, p.payload)

	p.retries++
	p.lastSent = c.srv.clock.Now()
	c.stats.Retransmissions.Add(1)
	metrics.RudpRetransmissions.Inc()

	seq := p.seq
	p.timer = c.srv.wheel.Schedule(p.rto, func() {
		c.postTimer(connEvent{kind: evRTO, seq: seq})
	})
}

// enqueue 出站消息进优先级队列
func (c *Conn) enqueue(m *outMsg) {
	evicted, ok := c.queue.push(m)
	if evicted != nil {
		metrics.RudpSendQueueDropped.WithLabelValues(protocol.PriorityName(evicted.class.Priority)).Inc()
		if evicted.class.Reliable {
			c.beginClose(ErrSendQueueOverflow.Error(), false)
			return
		}
	}
	if !ok {
		metrics.RudpSendQueueDropped.WithLabelValues(protocol.PriorityName(m.class.Priority)).Inc()
		if m.class.Reliable {
			c.beginClose(ErrSendQueueOverflow.Error(), false)
		}
	}
}

// pump 出包泵：窗口允许时按优先级出队发送
// 拥塞窗口在消息边界生效，分片组整组连续发出，
// 保证组内序号连续（组 id 即首片序号）
func (c *Conn) pump() {
	for c.queue.len() > 0 && c.cc.canSend(c.inFlight) {
		m := c.queue.pop()
		c.sendMsg(m)
	}
}

// sendMsg 把一条消息切片、编号并发出
func (c *Conn) sendMsg(m *outMsg) {
	ptype := m.ptype
	if ptype == 0 {
		ptype = protocol.PacketData
	}

	maxFrag := c.srv.cfg.MTU - protocol.HeaderSize
	chunks := splitPayload(m.payload, maxFrag)

	// 分片组必须走可靠有序通道，重组依赖排序缓冲保证片内到达序
	if len(chunks) > 1 {
		m.class.Reliable = true
		m.class.Ordered = true
	}

	var baseFlags uint8
	if m.class.Reliable {
		baseFlags |= protocol.FlagReliable
	}
	if m.class.Ordered {
		baseFlags |= protocol.FlagOrdered
	}

	now := c.srv.clock.Now()
	for i, chunk := range chunks {
		flags := baseFlags
		if len(chunks) > 1 {
			flags |= protocol.FlagFragmented
			if i == len(chunks)-1 {
				flags |= protocol.FlagLastFragment
			}
		}

		var seq uint16
		if m.class.Reliable {
			c.nextSeq++
			seq = c.nextSeq
		} else {
			c.unrelSeq++
			seq = c.unrelSeq
		}

		h := &protocol.Header{
			Type:     ptype,
			Flags:    flags,
			Sequence: seq,
			Ack:      c.rw.cumAck,
		}
		c.writePacket(h, chunk)

		if m.class.Reliable {
			p := &pendingPacket{
				seq:       seq,
				ptype:     ptype,
				flags:     flags,
				payload:   chunk,
				firstSent: now,
				lastSent:  now,
				rto:       c.cc.currentRTO(),
			}
			c.unacked[seq] = p
			c.inFlight++

			sn := seq
			p.timer = c.srv.wheel.Schedule(p.rto, func() {
				c.postTimer(connEvent{kind: evRTO, seq: sn})
			})
		}
	}
}

// scheduleAck ACK 合并：凑满阈值立即发，否则挂延迟定时器
func (c *Conn) scheduleAck() {
	c.pendingAcks++
	if c.pendingAcks >= c.srv.cfg.AckThreshold {
		c.sendAck()
		return
	}
	if c.ackTimer == 0 {
		c.ackTimer = c.srv.wheel.Schedule(c.srv.cfg.AckDelay, func() {
			c.postTimer(connEvent{kind: evAckFlush})
		})
	}
}

// sendAck 发独立 ACK 包，必要时附选择性确认位图
func (c *Conn) sendAck() {
	var payload []byte
	if bm, ok := c.rw.sackBitmap(); ok {
		payload = make([]byte, 8)
		binary.BigEndian.PutUint64(payload, bm)
	}

	h := &protocol.Header{Type: protocol.PacketAck, Ack: c.rw.cumAck}
	c.writePacket(h, payload)
}

// writePacket 编码并写 socket；任何出包都顺带清掉待发 ACK
func (c *Conn) writePacket(h *protocol.Header, payload []byte) {
	data := protocol.EncodePacket(h, payload)
	if _, err := c.srv.sock.WriteTo(data, c.addr); err != nil {
		c.log.Debug("socket write failed", zap.Error(err))
		return
	}

	c.lastSent = c.srv.clock.Now()
	c.stats.PacketsSent.Add(1)
	c.stats.BytesSent.Add(uint64(len(data)))
	metrics.RudpPacketsSent.WithLabelValues(h.Type.String()).Inc()

	// ack 已捎带出去
	c.pendingAcks = 0
	if c.ackTimer != 0 {
		c.srv.wheel.Cancel(c.ackTimer)
		c.ackTimer = 0
	}
}

// handleTick 周期巡检：空闲超时、心跳、分片过期
func (c *Conn) handleTick() {
	now := c.srv.clock.Now()
	cfg := c.srv.cfg

	if now.Sub(c.lastHeard) > cfg.IdleTimeout {
		c.log.Info("idle timeout", zap.Duration("since", now.Sub(c.lastHeard)))
		c.beginClose(ErrIdleTimeout.Error(), false)
		return
	}

	if n := c.frag.expire(now); n > 0 {
		metrics.RudpFragmentTimeouts.Add(float64(n))
	}

	if c.State() == StateEstablished && now.Sub(c.lastSent) >= cfg.HeartbeatInterval {
		h := &protocol.Header{Type: protocol.PacketHeartbeat, Ack: c.rw.cumAck}
		c.writePacket(h, nil)
	}

	c.tickTimer = c.srv.wheel.Schedule(cfg.HeartbeatInterval, func() {
		c.postTimer(connEvent{kind: evTick})
	})
}

// handlePeerDisconnect 对端主动断开
func (c *Conn) handlePeerDisconnect(payload []byte) {
	reason := "peer_disconnect"
	if msg, err := protocol.DecodeMessage(payload); err == nil {
		if d, ok := msg.(*protocol.Disconnect); ok && d.Reason != "" {
			reason = d.Reason
		}
	}

	ackH := &protocol.Header{Type: protocol.PacketDisconnectAck, Ack: c.rw.cumAck}
	c.writePacket(ackH, nil)

	c.closeReason = reason
	c.enterClosing()
}

// beginClose 本端发起关闭
// graceful 为 true 时先发 Disconnect 再驻留，传输故障直接终结
func (c *Conn) beginClose(reason string, graceful bool) {
	if c.State() >= StateClosing {
		return
	}
	c.closeReason = reason

	if graceful {
		payload, err := protocol.EncodeMessage(&protocol.Disconnect{
			PlayerID: c.PlayerID(),
			Reason:   reason,
		})
		if err == nil {
			h := &protocol.Header{Type: protocol.PacketDisconnect, Ack: c.rw.cumAck}
			c.writePacket(h, payload)
		}
		c.enterClosing()
		return
	}

	c.state.Store(int32(StateClosing))
	c.finalize()
}

// enterClosing 进入 Closing，驻留 2×SRTT 吸收在途包
func (c *Conn) enterClosing() {
	if c.State() >= StateClosing {
		return
	}
	c.state.Store(int32(StateClosing))

	linger := 2 * c.cc.smoothedRTT()
	if linger < 2*WheelTick {
		linger = 2 * WheelTick
	}
	c.lingerTimer = c.srv.wheel.Schedule(linger, func() {
		c.postTimer(connEvent{kind: evLinger})
	})
}

// finalize 终结连接：释放缓冲、注销定时器、摘出连接表
func (c *Conn) finalize() {
	if c.State() == StateClosed {
		return
	}
	c.state.Store(int32(StateClosed))

	for _, p := range c.unacked {
		c.srv.wheel.Cancel(p.timer)
	}
	c.unacked = make(map[uint16]*pendingPacket)
	c.srv.wheel.Cancel(c.ackTimer)
	c.srv.wheel.Cancel(c.tickTimer)
	c.srv.wheel.Cancel(c.lingerTimer)

	reason := c.closeReason
	if reason == "" {
		reason = "closed"
	}

	c.closed.Do(func() { close(c.done) })
	c.srv.removeConn(c)

	metrics.RudpConnectionCloseReason.WithLabelValues(reason).Inc()
	c.log.Info("connection closed", zap.String("reason", reason))

	c.srv.handler.OnDisconnect(c, reason)
}
