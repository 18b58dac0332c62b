package gameserver

import (
	"github.com/qiminjie89/gameserver/internal/protocol"
)

const (
	baseHealth       = 100
	baseMana         = 100
	healthPerLevel   = 20
	manaPerLevel     = 10
	basicAttackPower = 10

	// 死亡惩罚比例，千分制
	deathGoldPenaltyPermille = 100 // 10%
	deathExpPenaltyPermille  = 50  // 5%
)

// 出生点按 player_id 轮转，避免叠在一起
var spawnPoints = []protocol.Position{
	{X: 0, Y: 0, Z: 0},
	{X: 50, Y: 0, Z: 50},
	{X: -50, Y: 0, Z: 50},
	{X: 50, Y: 0, Z: -50},
	{X: -50, Y: 0, Z: -50},
}

// NewUserState 初始化新玩家
func NewUserState(playerID uint32, name string, connID uint32) *UserState {
	u := &UserState{
		PlayerID:  playerID,
		Name:      name,
		ConnID:    connID,
		Level:     1,
		Alive:     true,
		Connected: true,
		GameData:  make(map[string]string),
	}
	u.MaxHealth = maxHealthFor(u.Level)
	u.MaxMana = maxManaFor(u.Level)
	u.Health = u.MaxHealth
	u.Mana = u.MaxMana
	u.Position = SpawnPoint(playerID)
	return u
}

func maxHealthFor(level uint32) uint32 {
	return baseHealth + (level-1)*healthPerLevel
}

func maxManaFor(level uint32) uint32 {
	return baseMana + (level-1)*manaPerLevel
}

// SpawnPoint 为玩家选出生点
func SpawnPoint(playerID uint32) protocol.Position {
	return spawnPoints[playerID%uint32(len(spawnPoints))]
}

// ApplyDamage 扣血，返回扣完后的血量和是否致死
func (u *UserState) ApplyDamage(amount uint32) (uint32, bool) {
	if !u.Alive {
		return u.Health, false
	}
	if amount >= u.Health {
		u.Health = 0
		u.Alive = false
		return 0, true
	}
	u.Health -= amount
	return u.Health, false
}

// ApplyHealing 回血，封顶到血量上限
func (u *UserState) ApplyHealing(amount uint32) uint32 {
	if !u.Alive {
		return u.Health
	}
	u.Health += amount
	if u.Health > u.MaxHealth {
		u.Health = u.MaxHealth
	}
	return u.Health
}

// SpendMana 扣蓝，蓝不够返回 false 且不扣
func (u *UserState) SpendMana(cost uint32) bool {
	if u.Mana < cost {
		return false
	}
	u.Mana -= cost
	return true
}

// DeathPenalty 按当前财产算死亡惩罚
func (u *UserState) DeathPenalty() (gold uint32, exp uint32) {
	gold = u.Gold * deathGoldPenaltyPermille / 1000
	exp = u.Exp * deathExpPenaltyPermille / 1000
	return gold, exp
}

// ApplyDeath 结算一次死亡：标记死亡、扣财产、记录可复活时间
func (u *UserState) ApplyDeath(nowMs int64, respawnCooldownMs int64) (gold uint32, exp uint32) {
	gold, exp = u.DeathPenalty()
	u.Gold -= gold
	u.Exp -= exp
	u.Alive = false
	u.Health = 0
	u.RespawnEligibleAtMs = nowMs + respawnCooldownMs
	return gold, exp
}

// CanRespawn 是否到复活时间
func (u *UserState) CanRespawn(nowMs int64) bool {
	return !u.Alive && nowMs >= u.RespawnEligibleAtMs
}

// ApplyRespawn 复活：满状态回出生点
func (u *UserState) ApplyRespawn() protocol.Position {
	u.Alive = true
	u.Health = u.MaxHealth
	u.Mana = u.MaxMana
	u.Position = SpawnPoint(u.PlayerID)
	u.Velocity = protocol.Velocity{}
	u.RespawnEligibleAtMs = 0
	return u.Position
}
