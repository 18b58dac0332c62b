package protocol

import (
	"encoding/binary"
	"errors"
	"math"
)

/*
游戏消息编码：1 字节标签 + 定宽字段。
整数和 IEEE 754 浮点均为小端序，字符串为 2 字节长度前缀的 UTF-8。
*/

var (
	ErrUnknownTag   = errors.New("unknown message tag")
	ErrTruncated    = errors.New("truncated message")
	ErrStringTooBig = errors.New("string exceeds length prefix")
)

const maxStringLen = math.MaxUint16

// EncodeMessage 编码游戏消息
func EncodeMessage(m Message) ([]byte, error) {
	w := &msgWriter{buf: make([]byte, 0, 64)}
	w.u8(uint8(m.Tag()))

	switch v := m.(type) {
	case *Connect:
		w.str(v.PlayerName)
		w.str(v.Token)
		w.str(v.ClientVersion)
	case *ConnectResponse:
		w.bool(v.Success)
		w.u32(v.PlayerID)
		w.pos(v.Spawn)
		w.u32(v.Settings.HeartbeatIntervalMs)
		w.u8(v.Settings.MoveBroadcastHz)
		w.f32(v.Settings.WorldMin)
		w.f32(v.Settings.WorldMax)
		w.str(v.Message)
	case *Disconnect:
		w.u32(v.PlayerID)
		w.str(v.Reason)
	case *Move:
		w.u32(v.PlayerID)
		w.pos(v.Position)
		w.vel(v.Velocity)
		w.u64(v.TimestampMs)
	case *MoveUpdate:
		w.u32(v.PlayerID)
		w.pos(v.Position)
		w.vel(v.Velocity)
		w.u64(v.TimestampMs)
	case *Attack:
		w.u32(v.AttackerID)
		w.target(v.Target)
		w.u8(uint8(v.AttackType))
		w.u32(v.SkillID)
	case *AttackResult:
		w.u32(v.AttackerID)
		w.target(v.Target)
		w.u32(v.Damage)
		w.u32(v.TargetHealth)
		w.bool(v.Killed)
	case *Die:
		w.u32(v.PlayerID)
		w.u32(v.KillerID)
		w.u32(v.PenaltyGold)
		w.u32(v.PenaltyExp)
		w.u64(v.RespawnAtMs)
	case *Respawn:
		w.u32(v.PlayerID)
	case *RespawnComplete:
		w.u32(v.PlayerID)
		w.pos(v.Position)
		w.u32(v.Health)
		w.u32(v.Mana)
	case *StateUpdate:
		w.u32(v.PlayerID)
		w.u32(v.Health)
		w.u32(v.MaxHealth)
		w.u32(v.Mana)
		w.u32(v.MaxMana)
		w.u32(v.Level)
		w.pos(v.Position)
	case *Error:
		w.u16(uint16(v.Code))
		w.str(v.Message)
	case *ServerNotice:
		w.u8(v.Level)
		w.str(v.Text)
	case *Skill:
		w.u32(v.CasterID)
		w.u32(v.SkillID)
		w.target(v.Target)
	default:
		return nil, ErrUnknownTag
	}

	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// DecodeMessage 解码游戏消息
func DecodeMessage(data []byte) (Message, error) {
	r := &msgReader{data: data}
	tag := MessageTag(r.u8())

	var m Message
	switch tag {
	case TagConnect:
		m = &Connect{
			PlayerName:    r.str(),
			Token:         r.str(),
			ClientVersion: r.str(),
		}
	case TagConnectResponse:
		v := &ConnectResponse{}
		v.Success = r.bool()
		v.PlayerID = r.u32()
		v.Spawn = r.pos()
		v.Settings.HeartbeatIntervalMs = r.u32()
		v.Settings.MoveBroadcastHz = r.u8()
		v.Settings.WorldMin = r.f32()
		v.Settings.WorldMax = r.f32()
		v.Message = r.str()
		m = v
	case TagDisconnect:
		m = &Disconnect{
			PlayerID: r.u32(),
			Reason:   r.str(),
		}
	case TagMove:
		m = &Move{
			PlayerID:    r.u32(),
			Position:    r.pos(),
			Velocity:    r.vel(),
			TimestampMs: r.u64(),
		}
	case TagMoveUpdate:
		m = &MoveUpdate{
			PlayerID:    r.u32(),
			Position:    r.pos(),
			Velocity:    r.vel(),
			TimestampMs: r.u64(),
		}
	case TagAttack:
		m = &Attack{
			AttackerID: r.u32(),
			Target:     r.target(),
			AttackType: AttackType(r.u8()),
			SkillID:    r.u32(),
		}
	case TagAttackResult:
		m = &AttackResult{
			AttackerID:   r.u32(),
			Target:       r.target(),
			Damage:       r.u32(),
			TargetHealth: r.u32(),
			Killed:       r.bool(),
		}
	case TagDie:
		m = &Die{
			PlayerID:    r.u32(),
			KillerID:    r.u32(),
			PenaltyGold: r.u32(),
			PenaltyExp:  r.u32(),
			RespawnAtMs: r.u64(),
		}
	case TagRespawn:
		m = &Respawn{PlayerID: r.u32()}
	case TagRespawnComplete:
		m = &RespawnComplete{
			PlayerID: r.u32(),
			Position: r.pos(),
			Health:   r.u32(),
			Mana:     r.u32(),
		}
	case TagStateUpdate:
		m = &StateUpdate{
			PlayerID:  r.u32(),
			Health:    r.u32(),
			MaxHealth: r.u32(),
			Mana:      r.u32(),
			MaxMana:   r.u32(),
			Level:     r.u32(),
			Position:  r.pos(),
		}
	case TagError:
		m = &Error{
			Code:    ErrorCode(r.u16()),
			Message: r.str(),
		}
	case TagServerNotice:
		m = &ServerNotice{
			Level: r.u8(),
			Text:  r.str(),
		}
	case TagSkill:
		m = &Skill{
			CasterID: r.u32(),
			SkillID:  r.u32(),
			Target:   r.target(),
		}
	default:
		return nil, ErrUnknownTag
	}

	if r.err != nil {
		return nil, r.err
	}
	return m, nil
}

// msgWriter 小端序编码器
type msgWriter struct {
	buf []byte
	err error
}

func (w *msgWriter) u8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *msgWriter) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *msgWriter) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *msgWriter) u32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

func (w *msgWriter) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *msgWriter) f32(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *msgWriter) str(s string) {
	if len(s) > maxStringLen {
		if w.err == nil {
			w.err = ErrStringTooBig
		}
		return
	}
	w.u16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *msgWriter) pos(p Position) {
	w.f32(p.X)
	w.f32(p.Y)
	w.f32(p.Z)
}

func (w *msgWriter) vel(v Velocity) {
	w.f32(v.X)
	w.f32(v.Y)
	w.f32(v.Z)
}

func (w *msgWriter) target(t AttackTarget) {
	w.u8(uint8(t.Kind))
	switch t.Kind {
	case TargetPlayer:
		w.u32(t.PlayerID)
	case TargetPosition:
		w.pos(t.Position)
	case TargetNPC:
		w.u32(t.NPCID)
	}
}

// msgReader 小端序解码器
// 首个越界读取记下错误，后续读取全部返回零值
type msgReader struct {
	data []byte
	off  int
	err  error
}

func (r *msgReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *msgReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *msgReader) bool() bool {
	return r.u8() != 0
}

func (r *msgReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *msgReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *msgReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *msgReader) f32() float32 {
	return math.Float32frombits(r.u32())
}

func (r *msgReader) str() string {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *msgReader) pos() Position {
	return Position{X: r.f32(), Y: r.f32(), Z: r.f32()}
}

func (r *msgReader) vel() Velocity {
	return Velocity{X: r.f32(), Y: r.f32(), Z: r.f32()}
}

func (r *msgReader) target() AttackTarget {
	t := AttackTarget{Kind: TargetKind(r.u8())}
	switch t.Kind {
	case TargetPlayer:
		t.PlayerID = r.u32()
	case TargetPosition:
		t.Position = r.pos()
	case TargetNPC:
		t.NPCID = r.u32()
	}
	return t
}
