package main

import (
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/qiminjie89/gameserver/internal/protocol"
)

// pendingSend 等待 ACK 的已发包
type pendingSend struct {
	data    []byte
	sentAt  time.Time
	retries int
}

// Client 简化版 RUDP 客户端
// 只做测试需要的最小可靠性：固定间隔重传、收包即回 ACK，不做拥塞控制和分片
type Client struct {
	conn    *net.UDPConn
	verbose bool

	mu         sync.Mutex
	relSeq     uint16
	unrelSeq   uint16
	connectSeq uint16
	unacked    map[uint16]*pendingSend
	seen       map[uint16]bool

	playerID  uint32
	connectCh chan *protocol.ConnectResponse

	// 收到游戏消息时的回调，nil 则只打日志
	OnMessage func(protocol.Message)

	done      chan struct{}
	closeOnce sync.Once
}

const (
	clientRetransmitDelay = 300 * time.Millisecond
	clientMaxRetries      = 8
	clientHeartbeat       = time.Second
)

// DialClient 建立 UDP 连接并启动收包与重传循环
func DialClient(addr string, verbose bool) (*Client, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}

	c := &Client{
		conn:      conn,
		verbose:   verbose,
		unacked:   make(map[uint16]*pendingSend),
		seen:      make(map[uint16]bool),
		connectCh: make(chan *protocol.ConnectResponse, 1),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	go c.retransmitLoop()
	return c, nil
}

// Connect 发握手请求并等待响应
func (c *Client) Connect(name, token, version string, timeout time.Duration) (*protocol.ConnectResponse, error) {
	payload, err := protocol.EncodeMessage(&protocol.Connect{
		PlayerName:    name,
		Token:         token,
		ClientVersion: version,
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.relSeq++
	seq := c.relSeq
	c.connectSeq = seq
	c.mu.Unlock()

	c.sendPacket(protocol.PacketConnect, protocol.FlagReliable|protocol.FlagOrdered, seq, payload, true)

	select {
	case resp := <-c.connectCh:
		c.playerID = resp.PlayerID
		go c.heartbeatLoop()
		return resp, nil
	case <-time.After(timeout):
		return nil, errors.New("connect timeout")
	case <-c.done:
		return nil, errors.New("connection closed")
	}
}

// PlayerID 服务端分配的玩家 id
func (c *Client) PlayerID() uint32 { return c.playerID }

// SendReliable 发一条可靠有序消息
func (c *Client) SendReliable(msg protocol.Message) error {
	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.relSeq++
	seq := c.relSeq
	c.mu.Unlock()
	c.sendPacket(protocol.PacketData, protocol.FlagReliable|protocol.FlagOrdered, seq, payload, true)
	return nil
}

// SendUnreliable 发一条不可靠消息（移动用）
func (c *Client) SendUnreliable(msg protocol.Message) error {
	payload, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.unrelSeq++
	seq := c.unrelSeq
	c.mu.Unlock()
	c.sendPacket(protocol.PacketData, 0, seq, payload, false)
	return nil
}

func (c *Client) sendPacket(ptype protocol.PacketType, flags uint8, seq uint16, payload []byte, track bool) {
	data := protocol.EncodePacket(&protocol.Header{
		Type:     ptype,
		Flags:    flags,
		Sequence: seq,
	}, payload)

	if track {
		c.mu.Lock()
		c.unacked[seq] = &pendingSend{data: data, sentAt: time.Now()}
		c.mu.Unlock()
	}

	if _, err := c.conn.Write(data); err != nil && c.verbose {
		log.Printf("write failed: %v", err)
	}
}

func (c *Client) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("read failed: %v", err)
			}
			return
		}

		h, payload, err := protocol.DecodePacket(buf[:n])
		if err != nil {
			log.Printf("bad packet: %v", err)
			continue
		}
		if c.verbose {
			log.Printf("<< %s seq=%d ack=%d len=%d", h.Type, h.Sequence, h.Ack, len(payload))
		}

		c.processAck(h.Ack)

		switch h.Type {
		case protocol.PacketAck:
			// 已在 processAck 处理
		case protocol.PacketConnectAck:
			c.mu.Lock()
			delete(c.unacked, c.connectSeq)
			c.mu.Unlock()
			c.handleData(&h, payload, true)
		case protocol.PacketData:
			c.handleData(&h, payload, false)
		case protocol.PacketPing:
			echo := make([]byte, len(payload))
			copy(echo, payload)
			c.sendPacket(protocol.PacketPong, 0, 0, echo, false)
		case protocol.PacketHeartbeat:
			// 服务端心跳，不需要响应
		case protocol.PacketDisconnect:
			c.sendPacket(protocol.PacketDisconnectAck, 0, 0, nil, false)
			log.Printf("server closed the connection")
			c.Close()
			return
		}
	}
}

func (c *Client) handleData(h *protocol.Header, payload []byte, isConnectAck bool) {
	if h.HasFlag(protocol.FlagReliable) {
		c.sendAck(h.Sequence)

		c.mu.Lock()
		dup := c.seen[h.Sequence]
		c.seen[h.Sequence] = true
		c.mu.Unlock()
		if dup {
			return
		}
	}
	if h.HasFlag(protocol.FlagFragmented) {
		// 测试客户端不做重组
		log.Printf("fragmented payload ignored (seq=%d)", h.Sequence)
		return
	}

	msg, err := protocol.DecodeMessage(payload)
	if err != nil {
		log.Printf("bad message: %v", err)
		return
	}

	if isConnectAck {
		if resp, ok := msg.(*protocol.ConnectResponse); ok {
			select {
			case c.connectCh <- resp:
			default:
			}
			return
		}
	}

	if c.OnMessage != nil {
		c.OnMessage(msg)
	} else {
		log.Printf("<< %s %+v", msg.Tag(), msg)
	}
}

// processAck 累计确认：清掉所有 ≤ ack 的未确认包
func (c *Client) processAck(ack uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for seq := range c.unacked {
		if d := ack - seq; d < 0x8000 {
			delete(c.unacked, seq)
		}
	}
}

func (c *Client) sendAck(seq uint16) {
	data := protocol.EncodePacket(&protocol.Header{
		Type: protocol.PacketAck,
		Ack:  seq,
	}, nil)
	_, _ = c.conn.Write(data)
}

func (c *Client) retransmitLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for seq, p := range c.unacked {
				if now.Sub(p.sentAt) < clientRetransmitDelay {
					continue
				}
				if p.retries >= clientMaxRetries {
					log.Printf("giving up on seq=%d after %d retries", seq, p.retries)
					delete(c.unacked, seq)
					continue
				}
				p.retries++
				p.sentAt = now
				_, _ = c.conn.Write(p.data)
				if c.verbose {
					log.Printf(">> retransmit seq=%d try=%d", seq, p.retries)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(clientHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sendPacket(protocol.PacketHeartbeat, 0, 0, nil, false)
		}
	}
}

// Close 通知服务端断开并关闭 socket
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		payload, err := protocol.EncodeMessage(&protocol.Disconnect{
			PlayerID: c.playerID,
			Reason:   "client_quit",
		})
		if err == nil {
			c.sendPacket(protocol.PacketDisconnect, 0, 0, payload, false)
		}
		close(c.done)
		c.conn.Close()
	})
}
