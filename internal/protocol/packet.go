// Package protocol 定义 RUDP 包帧格式与游戏消息编码
package protocol

import (
	"encoding/binary"
	"errors"
)

/*
RUDP 包头格式（12 字节，大端序）：

	+------+-------+----------+----------+----------+----------+------+------+
	| Type | Flags | Sequence |   Ack    | Checksum |  Length  | Rsvd | Pad  |
	|  1B  |  1B   |    2B    |    2B    |    2B    |    2B    |  1B  |  1B  |
	+------+-------+----------+----------+----------+----------+------+------+

Checksum 为 CRC16-CCITT（多项式 0x1021，初值 0xFFFF，结果取反），
计算范围是校验和字段清零后的包头 + 载荷。
*/

const (
	HeaderSize = 12

	// DefaultMTU 保守的 UDP 有效载荷上限
	DefaultMTU = 1200

	// MaxPayloadSize 单个未分片包的最大载荷
	MaxPayloadSize = DefaultMTU - HeaderSize
)

var (
	ErrMalformedHeader = errors.New("malformed header")
	ErrBadChecksum     = errors.New("bad checksum")
	ErrLengthMismatch  = errors.New("payload length mismatch")
)

// PacketType 包类型（包头第 0 字节）
type PacketType uint8

const (
	PacketData              PacketType = 0x01
	PacketAck               PacketType = 0x02
	PacketNak               PacketType = 0x03
	PacketConnect           PacketType = 0x04
	PacketConnectAck        PacketType = 0x05
	PacketDisconnect        PacketType = 0x06
	PacketDisconnectAck     PacketType = 0x07
	PacketHeartbeat         PacketType = 0x08
	PacketCongestionControl PacketType = 0x09
	PacketPing              PacketType = 0x0A
	PacketPong              PacketType = 0x0B
)

// String 返回包类型名（用于日志和指标 label）
func (t PacketType) String() string {
	switch t {
	case PacketData:
		return "data"
	case PacketAck:
		return "ack"
	case PacketNak:
		return "nak"
	case PacketConnect:
		return "connect"
	case PacketConnectAck:
		return "connect_ack"
	case PacketDisconnect:
		return "disconnect"
	case PacketDisconnectAck:
		return "disconnect_ack"
	case PacketHeartbeat:
		return "heartbeat"
	case PacketCongestionControl:
		return "congestion_control"
	case PacketPing:
		return "ping"
	case PacketPong:
		return "pong"
	}
	return "unknown"
}

// Valid 返回是否为已知包类型
func (t PacketType) Valid() bool {
	return t >= PacketData && t <= PacketPong
}

// 包头 Flags 位
const (
	FlagReliable     uint8 = 0x01 // 需要 ACK + 重传
	FlagOrdered      uint8 = 0x02 // 按序上送
	FlagFragmented   uint8 = 0x04 // 分片包
	FlagLastFragment uint8 = 0x08 // 分片组的最后一片
	FlagCompressed   uint8 = 0x10 // 载荷已压缩（当前不发送，解码容忍）
	FlagEncrypted    uint8 = 0x20 // 载荷已加密（当前不发送，解码容忍）
)

// Header RUDP 包头
type Header struct {
	Type       PacketType
	Flags      uint8
	Sequence   uint16
	Ack        uint16
	Checksum   uint16
	PayloadLen uint16
}

// HasFlag 返回指定 flag 位是否置位
func (h *Header) HasFlag(flag uint8) bool {
	return h.Flags&flag != 0
}

// EncodePacket 编码一个完整的包：包头（校验和清零）+ 载荷，再回填 CRC16
func EncodePacket(h *Header, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))

	buf[0] = uint8(h.Type)
	buf[1] = h.Flags
	binary.BigEndian.PutUint16(buf[2:4], h.Sequence)
	binary.BigEndian.PutUint16(buf[4:6], h.Ack)
	// buf[6:8] 校验和先保持 0
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(payload)))
	// buf[10] reserved, buf[11] padding

	copy(buf[HeaderSize:], payload)

	crc := crc16(buf[:HeaderSize], payload)
	binary.BigEndian.PutUint16(buf[6:8], crc)
	h.Checksum = crc
	h.PayloadLen = uint16(len(payload))

	return buf
}

// DecodePacket 解码一个包，返回包头和载荷
// 载荷是 data 的零拷贝切片，调用方在 data 复用前必须消费完
func DecodePacket(data []byte) (Header, []byte, error) {
	if len(data) < HeaderSize {
		return Header{}, nil, ErrMalformedHeader
	}

	h := Header{
		Type:       PacketType(data[0]),
		Flags:      data[1],
		Sequence:   binary.BigEndian.Uint16(data[2:4]),
		Ack:        binary.BigEndian.Uint16(data[4:6]),
		Checksum:   binary.BigEndian.Uint16(data[6:8]),
		PayloadLen: binary.BigEndian.Uint16(data[8:10]),
	}

	payload := data[HeaderSize:]
	if int(h.PayloadLen) != len(payload) {
		return Header{}, nil, ErrLengthMismatch
	}

	// 校验和按字段清零后的包头重算，不能用在线值
	var hdr [HeaderSize]byte
	copy(hdr[:], data[:HeaderSize])
	hdr[6], hdr[7] = 0, 0
	if crc16(hdr[:], payload) != h.Checksum {
		return Header{}, nil, ErrBadChecksum
	}

	return h, payload, nil
}

// crc16 计算 CRC16-CCITT，覆盖包头和载荷两段
func crc16(header, payload []byte) uint16 {
	crc := uint16(0xFFFF)

	update := func(data []byte) {
		for _, b := range data {
			crc ^= uint16(b) << 8
			for i := 0; i < 8; i++ {
				if crc&0x8000 != 0 {
					crc = (crc << 1) ^ 0x1021
				} else {
					crc <<= 1
				}
			}
		}
	}

	update(header)
	update(payload)

	return ^crc
}
