package rudp

import (
	"bytes"
	"encoding/binary"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/qiminjie89/gameserver/internal/protocol"
	"github.com/qiminjie89/gameserver/pkg/auth"
)

// memPacket 内存管道里的一个数据报
type memPacket struct {
	data []byte
	addr net.Addr
}

// memConn 内存版 net.PacketConn，测试用
// in 是服务器收到的包，out 是服务器发出的包
type memConn struct {
	in     chan memPacket
	out    chan memPacket
	local  net.Addr
	closed chan struct{}
	once   sync.Once
}

func newMemConn() *memConn {
	return &memConn{
		in:     make(chan memPacket, 256),
		out:    make(chan memPacket, 256),
		local:  &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000},
		closed: make(chan struct{}),
	}
}

func (m *memConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case pkt := <-m.in:
		return copy(p, pkt.data), pkt.addr, nil
	case <-m.closed:
		return 0, nil, net.ErrClosed
	}
}

func (m *memConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case m.out <- memPacket{data: buf, addr: addr}:
	default:
	}
	return len(p), nil
}

func (m *memConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *memConn) LocalAddr() net.Addr              { return m.local }
func (m *memConn) SetDeadline(time.Time) error      { return nil }
func (m *memConn) SetReadDeadline(time.Time) error  { return nil }
func (m *memConn) SetWriteDeadline(time.Time) error { return nil }

// testHandler 把回调转成通道，断言方好轮询
type testHandler struct {
	reject protocol.ErrorCode
	msgs   chan protocol.Message
	disc   chan string
}

func newTestHandler() *testHandler {
	return &testHandler{
		msgs: make(chan protocol.Message, 64),
		disc: make(chan string, 16),
	}
}

func (h *testHandler) OnConnect(c *Conn, req *protocol.Connect) (*protocol.ConnectResponse, protocol.ErrorCode) {
	if h.reject != 0 {
		return nil, h.reject
	}
	return &protocol.ConnectResponse{
		Success:  true,
		PlayerID: 7,
		Message:  "welcome " + req.PlayerName,
	}, 0
}

func (h *testHandler) OnMessage(c *Conn, msg protocol.Message) {
	select {
	case h.msgs <- msg:
	default:
	}
}

func (h *testHandler) OnDisconnect(c *Conn, reason string) {
	select {
	case h.disc <- reason:
	default:
	}
}

// testEnv 一套完整的内存服务器
type testEnv struct {
	srv     *Server
	sock    *memConn
	clock   *FakeClock
	handler *testHandler
}

func newTestEnv(t *testing.T, mutate func(cfg *Config, h *testHandler)) *testEnv {
	t.Helper()

	cfg := DefaultConfig()
	cfg.MaxConnections = 8
	h := newTestHandler()
	if mutate != nil {
		mutate(cfg, h)
	}

	sock := newMemConn()
	clock := NewFakeClock(time.Unix(1000, 0))
	srv := NewServerWithConn(sock, cfg, Options{
		Handler:         h,
		Validator:       auth.NewJWTValidator("test-secret", true),
		RequiredVersion: "1.0",
		Clock:           clock,
	})
	srv.Start()
	t.Cleanup(srv.Stop)

	return &testEnv{srv: srv, sock: sock, clock: clock, handler: h}
}

// tick 推进假时钟并驱动时间轮
func (e *testEnv) tick(d time.Duration) {
	e.clock.Advance(d)
	e.srv.wheel.Advance(e.clock.Now())
	// 给连接 goroutine 消化定时事件的机会
	time.Sleep(5 * time.Millisecond)
}

func (e *testEnv) send(addr net.Addr, h *protocol.Header, payload []byte) {
	e.sock.in <- memPacket{data: protocol.EncodePacket(h, payload), addr: addr}
}

func (e *testEnv) sendMsg(addr net.Addr, ptype protocol.PacketType, flags uint8, seq uint16, msg protocol.Message) {
	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		panic(err)
	}
	e.send(addr, &protocol.Header{Type: ptype, Flags: flags, Sequence: seq}, payload)
}

// expect 等待第一个满足谓词的出站包，其余丢弃
func (e *testEnv) expect(t *testing.T, want string, pred func(h *protocol.Header, payload []byte) bool) (protocol.Header, []byte) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case pkt := <-e.sock.out:
			h, payload, err := protocol.DecodePacket(pkt.data)
			if err != nil {
				t.Fatalf("服务器发出坏包: %v", err)
			}
			if pred(&h, payload) {
				return h, payload
			}
		case <-deadline:
			t.Fatalf("等待 %s 超时", want)
		}
	}
}

// expectNone 在窗口期内不允许出现满足谓词的包
func (e *testEnv) expectNone(t *testing.T, what string, window time.Duration, pred func(h *protocol.Header, payload []byte) bool) {
	t.Helper()
	deadline := time.After(window)
	for {
		select {
		case pkt := <-e.sock.out:
			h, payload, err := protocol.DecodePacket(pkt.data)
			if err != nil {
				t.Fatalf("服务器发出坏包: %v", err)
			}
			if pred(&h, payload) {
				t.Fatalf("不应出现 %s，收到 type=%v seq=%d", what, h.Type, h.Sequence)
			}
		case <-deadline:
			return
		}
	}
}

func isType(pt protocol.PacketType) func(h *protocol.Header, payload []byte) bool {
	return func(h *protocol.Header, payload []byte) bool { return h.Type == pt }
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("等待 %s 超时", what)
}

func clientAddr(port int) net.Addr {
	return &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: port}
}

// connect 完成一次握手并确认服务器的 ConnectAck
func (e *testEnv) connect(t *testing.T, addr net.Addr, name string) *protocol.ConnectResponse {
	t.Helper()
	e.sendMsg(addr, protocol.PacketConnect, protocol.FlagReliable|protocol.FlagOrdered, 1, &protocol.Connect{
		PlayerName:    name,
		Token:         "dev_" + name,
		ClientVersion: "1.0",
	})

	h, payload := e.expect(t, "ConnectAck", isType(protocol.PacketConnectAck))
	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		t.Fatalf("解码 ConnectAck 载荷: %v", err)
	}
	resp, ok := msg.(*protocol.ConnectResponse)
	if !ok {
		t.Fatalf("ConnectAck 载荷类型 %T", msg)
	}

	// 确认服务器的可靠 ConnectAck，避免它在后续测试里重传
	e.send(addr, &protocol.Header{Type: protocol.PacketAck, Ack: h.Sequence}, nil)
	return resp
}

func TestHandshake(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40001)

	e.sendMsg(addr, protocol.PacketConnect, protocol.FlagReliable|protocol.FlagOrdered, 1, &protocol.Connect{
		PlayerName:    "alice",
		Token:         "dev_alice",
		ClientVersion: "1.0",
	})

	h, payload := e.expect(t, "ConnectAck", isType(protocol.PacketConnectAck))
	if h.Ack != 1 {
		t.Errorf("ConnectAck 应捎带确认握手包, ack=%d", h.Ack)
	}
	if !h.HasFlag(protocol.FlagReliable) {
		t.Error("ConnectAck 应为可靠包")
	}

	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		t.Fatalf("解码载荷: %v", err)
	}
	resp, ok := msg.(*protocol.ConnectResponse)
	if !ok {
		t.Fatalf("载荷类型 %T", msg)
	}
	if !resp.Success || resp.PlayerID != 7 {
		t.Errorf("响应 success=%v player=%d", resp.Success, resp.PlayerID)
	}

	waitFor(t, "连接建立", func() bool { return e.srv.ConnCount() == 1 })
	c := e.srv.GetConn(1)
	if c == nil {
		t.Fatal("连接表中找不到 id=1")
	}
	waitFor(t, "状态 Established", func() bool { return c.State() == StateEstablished })
	if c.UserID() != "alice" {
		t.Errorf("UserID = %q", c.UserID())
	}
}

func TestOrderedDeliveryAfterHandshake(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40021)
	e.connect(t, addr, "judy")

	// 握手占用了序号 1，紧随其后的有序消息必须立即上送，
	// 不能卡在排序缓冲里等一个永远不会来的序号
	e.sendMsg(addr, protocol.PacketData, protocol.FlagReliable|protocol.FlagOrdered, 2, &protocol.Respawn{PlayerID: 7})

	select {
	case msg := <-e.handler.msgs:
		if _, ok := msg.(*protocol.Respawn); !ok {
			t.Fatalf("消息类型 %T", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("握手后的首条有序消息未上送")
	}
}

func TestHandshakeAuthFailed(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40002)

	e.sendMsg(addr, protocol.PacketConnect, protocol.FlagReliable|protocol.FlagOrdered, 1, &protocol.Connect{
		PlayerName:    "eve",
		Token:         "not-a-token",
		ClientVersion: "1.0",
	})

	_, payload := e.expect(t, "拒绝 ConnectAck", isType(protocol.PacketConnectAck))
	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		t.Fatalf("解码载荷: %v", err)
	}
	errMsg, ok := msg.(*protocol.Error)
	if !ok {
		t.Fatalf("载荷类型 %T", msg)
	}
	if errMsg.Code != protocol.CodeAuthFailed {
		t.Errorf("code = %d, 期望 %d", errMsg.Code, protocol.CodeAuthFailed)
	}
	if e.srv.ConnCount() != 0 {
		t.Errorf("拒绝后连接数 = %d", e.srv.ConnCount())
	}
}

func TestHandshakeVersionMismatch(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40003)

	e.sendMsg(addr, protocol.PacketConnect, protocol.FlagReliable|protocol.FlagOrdered, 1, &protocol.Connect{
		PlayerName:    "bob",
		Token:         "dev_bob",
		ClientVersion: "9.9",
	})

	_, payload := e.expect(t, "拒绝 ConnectAck", isType(protocol.PacketConnectAck))
	msg, _ := protocol.DecodeMessage(payload)
	errMsg, ok := msg.(*protocol.Error)
	if !ok || errMsg.Code != protocol.CodeVersionMismatch {
		t.Fatalf("期望版本不匹配错误, 得到 %#v", msg)
	}
}

func TestHandshakeServerFull(t *testing.T) {
	e := newTestEnv(t, func(cfg *Config, h *testHandler) {
		cfg.MaxConnections = 1
	})

	e.connect(t, clientAddr(40004), "first")
	waitFor(t, "首个连接建立", func() bool { return e.srv.ConnCount() == 1 })

	e.sendMsg(clientAddr(40005), protocol.PacketConnect, protocol.FlagReliable|protocol.FlagOrdered, 1, &protocol.Connect{
		PlayerName:    "second",
		Token:         "dev_second",
		ClientVersion: "1.0",
	})

	_, payload := e.expect(t, "拒绝 ConnectAck", isType(protocol.PacketConnectAck))
	msg, _ := protocol.DecodeMessage(payload)
	errMsg, ok := msg.(*protocol.Error)
	if !ok || errMsg.Code != protocol.CodeServerFull {
		t.Fatalf("期望服务器已满错误, 得到 %#v", msg)
	}
	if e.srv.ConnCount() != 1 {
		t.Errorf("连接数 = %d", e.srv.ConnCount())
	}
}

func TestReliableDeliveryAndAckCoalescing(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40010)
	e.connect(t, addr, "carol")

	rel := protocol.FlagReliable | protocol.FlagOrdered
	e.sendMsg(addr, protocol.PacketData, rel, 2, &protocol.Attack{
		AttackerID: 7,
		Target:     protocol.AttackTarget{Kind: protocol.TargetPlayer, PlayerID: 8},
	})
	e.sendMsg(addr, protocol.PacketData, rel, 3, &protocol.Attack{
		AttackerID: 7,
		Target:     protocol.AttackTarget{Kind: protocol.TargetPlayer, PlayerID: 9},
	})

	// 凑满阈值 2，应立即发独立 ACK
	h, _ := e.expect(t, "合并 ACK", isType(protocol.PacketAck))
	if h.Ack != 3 {
		t.Errorf("ack = %d, 期望 3", h.Ack)
	}

	for i := 0; i < 2; i++ {
		select {
		case msg := <-e.handler.msgs:
			if _, ok := msg.(*protocol.Attack); !ok {
				t.Errorf("第 %d 条消息类型 %T", i+1, msg)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("第 %d 条消息未上送", i+1)
		}
	}
}

func TestDelayedAck(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40011)
	e.connect(t, addr, "dave")

	e.sendMsg(addr, protocol.PacketData, protocol.FlagReliable|protocol.FlagOrdered, 2, &protocol.Respawn{PlayerID: 7})

	// 单个包不到阈值，等延迟定时器到期。
	// 小步推进，保证定时器在推进之间完成挂载
	for i := 0; i < 10; i++ {
		e.tick(10 * time.Millisecond)
	}

	h, _ := e.expect(t, "延迟 ACK", isType(protocol.PacketAck))
	if h.Ack != 2 {
		t.Errorf("ack = %d, 期望 2", h.Ack)
	}
}

func TestDuplicateSuppressed(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40012)
	e.connect(t, addr, "erin")

	rel := protocol.FlagReliable | protocol.FlagOrdered
	msg := &protocol.Respawn{PlayerID: 7}
	e.sendMsg(addr, protocol.PacketData, rel, 2, msg)
	e.sendMsg(addr, protocol.PacketData, rel, 2, msg)

	select {
	case <-e.handler.msgs:
	case <-time.After(2 * time.Second):
		t.Fatal("消息未上送")
	}
	select {
	case m := <-e.handler.msgs:
		t.Fatalf("重复包被上送: %#v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRetransmission(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40013)
	e.connect(t, addr, "frank")

	c := e.srv.GetConn(1)
	waitFor(t, "状态 Established", func() bool { return c != nil && c.State() == StateEstablished })

	if err := c.Send(&protocol.ServerNotice{Level: 1, Text: "maintenance soon"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	first, firstPayload := e.expect(t, "数据包", isType(protocol.PacketData))

	// 不确认，超过初始 RTO 后应原序号重传
	e.tick(1100 * time.Millisecond)

	second, secondPayload := e.expect(t, "重传包", isType(protocol.PacketData))
	if second.Sequence != first.Sequence {
		t.Errorf("重传序号 %d != 原序号 %d", second.Sequence, first.Sequence)
	}
	if !bytes.Equal(firstPayload, secondPayload) {
		t.Error("重传载荷与原载荷不一致")
	}

	// 确认后不再重传
	e.send(addr, &protocol.Header{Type: protocol.PacketAck, Ack: first.Sequence}, nil)
	time.Sleep(20 * time.Millisecond)
	e.tick(2500 * time.Millisecond)
	e.expectNone(t, "已确认包的重传", 200*time.Millisecond, func(h *protocol.Header, _ []byte) bool {
		return h.Type == protocol.PacketData && h.Sequence == first.Sequence
	})
}

func TestRetransmissionGivesUp(t *testing.T) {
	e := newTestEnv(t, func(cfg *Config, h *testHandler) {
		cfg.MaxRetries = 2
		cfg.IdleTimeout = time.Hour
	})
	addr := clientAddr(40014)
	e.connect(t, addr, "grace")

	c := e.srv.GetConn(1)
	waitFor(t, "状态 Established", func() bool { return c != nil && c.State() == StateEstablished })

	if err := c.Send(&protocol.ServerNotice{Text: "are you there"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	e.expect(t, "数据包", isType(protocol.PacketData))

	// RTO 指数退避 1s/2s/4s，重试耗尽后连接关闭
	var reason string
	for i := 0; i < 40 && reason == ""; i++ {
		e.tick(500 * time.Millisecond)
		select {
		case reason = <-e.handler.disc:
		default:
		}
	}
	if !strings.Contains(reason, "peer unreachable") {
		t.Fatalf("断开原因 = %q", reason)
	}
	waitFor(t, "连接注销", func() bool { return e.srv.ConnCount() == 0 })
}

func TestReliableSendMailboxOverflowCloses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MailboxSize = 1
	clock := NewFakeClock(time.Unix(1000, 0))
	srv := &Server{cfg: cfg, clock: clock, wheel: NewTimerWheel(clock)}
	c := newConn(1, clientAddr(40022), srv)

	// 占满邮箱，不启动主循环，投递结果完全确定
	c.events <- connEvent{kind: evTick}

	payload, err := protocol.EncodeMessage(&protocol.Die{PlayerID: 3})
	if err != nil {
		t.Fatalf("编码: %v", err)
	}
	m := &outMsg{payload: payload, class: protocol.Classify(protocol.TagDie)}
	if err := c.post(connEvent{kind: evSend, msg: m}); err != ErrSendQueueOverflow {
		t.Fatalf("post = %v, 期望 ErrSendQueueOverflow", err)
	}

	// 腾出邮箱后推进时间轮，补投进来的必须是关闭事件
	<-c.events
	clock.Advance(5 * WheelTick)
	srv.wheel.Advance(clock.Now())

	select {
	case ev := <-c.events:
		if ev.kind != evClose {
			t.Fatalf("事件类别 %d, 期望关闭事件", ev.kind)
		}
		if ev.reason != ErrSendQueueOverflow.Error() {
			t.Errorf("关闭原因 %q", ev.reason)
		}
	default:
		t.Fatal("可靠消息投递失败后未触发连接关闭")
	}

	// 不可靠消息丢弃保持静默
	c.events <- connEvent{kind: evTick}
	um := &outMsg{payload: payload, class: protocol.Classify(protocol.TagMoveUpdate)}
	if err := c.post(connEvent{kind: evSend, msg: um}); err != ErrSendQueueOverflow {
		t.Fatalf("post = %v, 期望 ErrSendQueueOverflow", err)
	}
	if n := srv.wheel.Pending(); n != 0 {
		t.Errorf("不可靠丢弃后仍有 %d 个挂起任务", n)
	}
}

func TestFragmentedInbound(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40015)
	e.connect(t, addr, "heidi")

	text := strings.Repeat("冒险者公会通告。", 200)
	payload, err := protocol.EncodeMessage(&protocol.ServerNotice{Level: 2, Text: text})
	if err != nil {
		t.Fatalf("编码: %v", err)
	}
	maxFrag := e.srv.cfg.MTU - protocol.HeaderSize
	chunks := splitPayload(payload, maxFrag)
	if len(chunks) < 2 {
		t.Fatalf("测试载荷太小, 只切出 %d 片", len(chunks))
	}

	seq := uint16(2)
	for i, chunk := range chunks {
		flags := protocol.FlagReliable | protocol.FlagOrdered | protocol.FlagFragmented
		if i == len(chunks)-1 {
			flags |= protocol.FlagLastFragment
		}
		e.send(addr, &protocol.Header{Type: protocol.PacketData, Flags: flags, Sequence: seq}, chunk)
		seq++
	}

	select {
	case msg := <-e.handler.msgs:
		notice, ok := msg.(*protocol.ServerNotice)
		if !ok {
			t.Fatalf("消息类型 %T", msg)
		}
		if notice.Text != text {
			t.Error("重组后的文本与原文不一致")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("重组消息未上送")
	}
}

func TestFragmentedOutbound(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40016)
	e.connect(t, addr, "ivan")

	c := e.srv.GetConn(1)
	waitFor(t, "状态 Established", func() bool { return c != nil && c.State() == StateEstablished })

	text := strings.Repeat("world state dump ", 200)
	if err := c.Send(&protocol.ServerNotice{Text: text}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var parts [][]byte
	var lastSeq uint16
	for {
		h, payload := e.expect(t, "分片包", func(h *protocol.Header, _ []byte) bool {
			return h.Type == protocol.PacketData && h.HasFlag(protocol.FlagFragmented)
		})
		if len(parts) > 0 && h.Sequence != lastSeq+1 {
			t.Fatalf("分片序号不连续: %d 之后是 %d", lastSeq, h.Sequence)
		}
		lastSeq = h.Sequence
		parts = append(parts, payload)
		if h.HasFlag(protocol.FlagLastFragment) {
			break
		}
	}
	if len(parts) < 2 {
		t.Fatalf("只收到 %d 片", len(parts))
	}

	msg, err := protocol.DecodeMessage(bytes.Join(parts, nil))
	if err != nil {
		t.Fatalf("重组解码: %v", err)
	}
	notice, ok := msg.(*protocol.ServerNotice)
	if !ok || notice.Text != text {
		t.Fatalf("重组结果不符: %T", msg)
	}
}

func TestUnknownMessageTag(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40017)
	e.connect(t, addr, "judy")

	e.send(addr, &protocol.Header{
		Type:     protocol.PacketData,
		Flags:    protocol.FlagReliable | protocol.FlagOrdered,
		Sequence: 2,
	}, []byte{0xEE})

	_, payload := e.expect(t, "Error 响应", func(h *protocol.Header, payload []byte) bool {
		if h.Type != protocol.PacketData {
			return false
		}
		msg, err := protocol.DecodeMessage(payload)
		if err != nil {
			return false
		}
		_, ok := msg.(*protocol.Error)
		return ok
	})
	msg, _ := protocol.DecodeMessage(payload)
	if errMsg := msg.(*protocol.Error); errMsg.Code != protocol.CodeUnknownMessage {
		t.Errorf("code = %d, 期望 %d", errMsg.Code, protocol.CodeUnknownMessage)
	}

	// 协议错误不关连接
	if e.srv.ConnCount() != 1 {
		t.Errorf("连接数 = %d", e.srv.ConnCount())
	}
}

func TestCorruptPacketDropped(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40018)

	payload, _ := protocol.EncodeMessage(&protocol.Connect{
		PlayerName:    "mallory",
		Token:         "dev_mallory",
		ClientVersion: "1.0",
	})
	data := protocol.EncodePacket(&protocol.Header{
		Type:     protocol.PacketConnect,
		Flags:    protocol.FlagReliable | protocol.FlagOrdered,
		Sequence: 1,
	}, payload)
	data[len(data)-1] ^= 0x01

	e.sock.in <- memPacket{data: data, addr: addr}

	e.expectNone(t, "对坏包的任何响应", 150*time.Millisecond, func(h *protocol.Header, _ []byte) bool { return true })
	if e.srv.ConnCount() != 0 {
		t.Errorf("坏包建立了连接: %d", e.srv.ConnCount())
	}
}

func TestPingPong(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40019)
	e.connect(t, addr, "kate")

	probe := make([]byte, 8)
	binary.BigEndian.PutUint64(probe, 12345678)
	e.send(addr, &protocol.Header{Type: protocol.PacketPing}, probe)

	_, payload := e.expect(t, "Pong", isType(protocol.PacketPong))
	if !bytes.Equal(payload, probe) {
		t.Error("Pong 未原样带回 Ping 载荷")
	}
}

func TestHeartbeat(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40020)
	e.connect(t, addr, "leo")

	c := e.srv.GetConn(1)
	waitFor(t, "状态 Established", func() bool { return c != nil && c.State() == StateEstablished })

	// 静默超过心跳间隔，服务器应主动探活
	e.tick(1100 * time.Millisecond)
	e.expect(t, "心跳包", isType(protocol.PacketHeartbeat))
}

func TestIdleTimeout(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40021)
	e.connect(t, addr, "mia")
	waitFor(t, "连接建立", func() bool { return e.srv.ConnCount() == 1 })

	e.tick(16 * time.Second)

	select {
	case reason := <-e.handler.disc:
		if !strings.Contains(reason, "idle timeout") {
			t.Errorf("断开原因 = %q", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("空闲连接未被回收")
	}
	waitFor(t, "连接注销", func() bool { return e.srv.ConnCount() == 0 })
}

func TestPeerDisconnect(t *testing.T) {
	e := newTestEnv(t, nil)
	addr := clientAddr(40022)
	e.connect(t, addr, "nick")
	waitFor(t, "连接建立", func() bool { return e.srv.ConnCount() == 1 })

	e.sendMsg(addr, protocol.PacketDisconnect, 0, 0, &protocol.Disconnect{PlayerID: 7, Reason: "client_quit"})

	e.expect(t, "DisconnectAck", isType(protocol.PacketDisconnectAck))

	// 驻留期过后连接终结
	e.tick(100 * time.Millisecond)
	select {
	case reason := <-e.handler.disc:
		if reason != "client_quit" {
			t.Errorf("断开原因 = %q", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("未收到断开回调")
	}
	waitFor(t, "连接注销", func() bool { return e.srv.ConnCount() == 0 })
}
