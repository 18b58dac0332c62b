// Package gameserver 实现 RUDP 之上的游戏逻辑：
// 房间成员管理、消息派发、技能与战斗结算
package gameserver

import (
	"sync"

	"github.com/qiminjie89/gameserver/internal/protocol"
)

// Room 房间数据结构
// 成员表由房间锁保护，锁只做短临界区，绝不跨网络操作持有
type Room struct {
	ID uint16

	mu      sync.RWMutex
	members map[uint32]*UserState // player_id → state
}

// UserState 房间内的玩家状态
type UserState struct {
	PlayerID uint32
	Name     string
	ConnID   uint32

	Position protocol.Position
	Velocity protocol.Velocity

	Health    uint32
	MaxHealth uint32
	Mana      uint32
	MaxMana   uint32
	Level     uint32
	Gold      uint32
	Exp       uint32

	Alive     bool
	Connected bool

	// 毫秒时间戳
	LastUpdatedMs       int64
	RespawnEligibleAtMs int64
	lastMoveBroadcastMs int64

	// 技能冷却：skill_id → 冷却结束时间（毫秒）
	cooldowns map[uint32]int64

	// 业务自定义数据，核心不解释
	GameData map[string]string
}

// OnCooldown 技能是否在冷却中
func (u *UserState) OnCooldown(skillID uint32, nowMs int64) bool {
	return u.cooldowns[skillID] > nowMs
}

// SetCooldown 记一次技能冷却
func (u *UserState) SetCooldown(skillID uint32, untilMs int64) {
	if u.cooldowns == nil {
		u.cooldowns = make(map[uint32]int64)
	}
	u.cooldowns[skillID] = untilMs
}

// NewRoom 创建房间
func NewRoom(id uint16) *Room {
	return &Room{
		ID:      id,
		members: make(map[uint32]*UserState),
	}
}

// MemberCount 成员数量
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// PlayerIDs 全部成员 id
func (r *Room) PlayerIDs() []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]uint32, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}
