package protocol

// MessageTag 游戏消息标签（编码的第 1 字节）
// 线上数值固定，兼容版本之间不得重排
type MessageTag uint8

const (
	TagConnect         MessageTag = 0x01
	TagConnectResponse MessageTag = 0x02
	TagDisconnect      MessageTag = 0x03
	TagMove            MessageTag = 0x04
	TagMoveUpdate      MessageTag = 0x05
	TagAttack          MessageTag = 0x06
	TagAttackResult    MessageTag = 0x07
	TagDie             MessageTag = 0x08
	TagRespawn         MessageTag = 0x09
	TagRespawnComplete MessageTag = 0x0A
	TagStateUpdate     MessageTag = 0x0B
	TagError           MessageTag = 0x0C
	TagServerNotice    MessageTag = 0x0D
	TagSkill           MessageTag = 0x0E
)

// String 返回消息标签名（用于日志和指标 label）
func (t MessageTag) String() string {
	switch t {
	case TagConnect:
		return "connect"
	case TagConnectResponse:
		return "connect_response"
	case TagDisconnect:
		return "disconnect"
	case TagMove:
		return "move"
	case TagMoveUpdate:
		return "move_update"
	case TagAttack:
		return "attack"
	case TagAttackResult:
		return "attack_result"
	case TagDie:
		return "die"
	case TagRespawn:
		return "respawn"
	case TagRespawnComplete:
		return "respawn_complete"
	case TagStateUpdate:
		return "state_update"
	case TagError:
		return "error"
	case TagServerNotice:
		return "server_notice"
	case TagSkill:
		return "skill"
	}
	return "unknown"
}

// Message 游戏消息的和类型接口
// 派发端对 Tag 做穷举 switch，未知标签统一回 ProtocolError
type Message interface {
	Tag() MessageTag
}

// Position 世界坐标
type Position struct {
	X float32
	Y float32
	Z float32
}

// IsValid 检查坐标是否落在世界边界内
func (p Position) IsValid(min, max float32) bool {
	return p.X >= min && p.X <= max &&
		p.Y >= min && p.Y <= max &&
		p.Z >= min && p.Z <= max
}

// DistanceSq 返回到另一坐标的距离平方（避免开方）
func (p Position) DistanceSq(o Position) float32 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// Velocity 移动速度向量
type Velocity struct {
	X float32
	Y float32
	Z float32
}

// TargetKind 攻击目标类别
type TargetKind uint8

const (
	TargetPlayer   TargetKind = 1
	TargetPosition TargetKind = 2
	TargetNPC      TargetKind = 3
)

// AttackTarget 攻击目标（玩家 / 坐标 / NPC 三选一）
type AttackTarget struct {
	Kind     TargetKind
	PlayerID uint32
	Position Position
	NPCID    uint32
}

// AttackType 攻击类别
type AttackType uint8

const (
	AttackNormal AttackType = 0
	AttackSkill  AttackType = 1
)

// ServerSettings ConnectResponse 附带的服务端参数
type ServerSettings struct {
	HeartbeatIntervalMs uint32
	MoveBroadcastHz     uint8
	WorldMin            float32
	WorldMax            float32
}

// Connect 连接请求（握手与重入共用）
type Connect struct {
	PlayerName    string
	Token         string
	ClientVersion string
}

// ConnectResponse 连接响应
type ConnectResponse struct {
	Success  bool
	PlayerID uint32
	Spawn    Position
	Settings ServerSettings
	Message  string
}

// Disconnect 断开通知
type Disconnect struct {
	PlayerID uint32
	Reason   string
}

// Move 移动请求
type Move struct {
	PlayerID    uint32
	Position    Position
	Velocity    Velocity
	TimestampMs uint64
}

// MoveUpdate 移动广播
type MoveUpdate struct {
	PlayerID    uint32
	Position    Position
	Velocity    Velocity
	TimestampMs uint64
}

// Attack 攻击请求
type Attack struct {
	AttackerID uint32
	Target     AttackTarget
	AttackType AttackType
	SkillID    uint32 // AttackType 为 Skill 时有效
}

// AttackResult 攻击结果广播
type AttackResult struct {
	AttackerID   uint32
	Target       AttackTarget
	Damage       uint32
	TargetHealth uint32
	Killed       bool
}

// Die 死亡广播
type Die struct {
	PlayerID    uint32
	KillerID    uint32
	PenaltyGold uint32
	PenaltyExp  uint32
	RespawnAtMs uint64
}

// Respawn 复活请求
type Respawn struct {
	PlayerID uint32
}

// RespawnComplete 复活完成广播
type RespawnComplete struct {
	PlayerID uint32
	Position Position
	Health   uint32
	Mana     uint32
}

// StateUpdate 服务端状态推送（仅下行）
type StateUpdate struct {
	PlayerID  uint32
	Health    uint32
	MaxHealth uint32
	Mana      uint32
	MaxMana   uint32
	Level     uint32
	Position  Position
}

// Error 错误响应
type Error struct {
	Code    ErrorCode
	Message string
}

// ServerNotice 服务端公告
type ServerNotice struct {
	Level uint8
	Text  string
}

// Skill 技能使用请求
type Skill struct {
	CasterID uint32
	SkillID  uint32
	Target   AttackTarget
}

func (*Connect) Tag() MessageTag         { return TagConnect }
func (*ConnectResponse) Tag() MessageTag { return TagConnectResponse }
func (*Disconnect) Tag() MessageTag      { return TagDisconnect }
func (*Move) Tag() MessageTag            { return TagMove }
func (*MoveUpdate) Tag() MessageTag      { return TagMoveUpdate }
func (*Attack) Tag() MessageTag          { return TagAttack }
func (*AttackResult) Tag() MessageTag    { return TagAttackResult }
func (*Die) Tag() MessageTag             { return TagDie }
func (*Respawn) Tag() MessageTag         { return TagRespawn }
func (*RespawnComplete) Tag() MessageTag { return TagRespawnComplete }
func (*StateUpdate) Tag() MessageTag     { return TagStateUpdate }
func (*Error) Tag() MessageTag           { return TagError }
func (*ServerNotice) Tag() MessageTag    { return TagServerNotice }
func (*Skill) Tag() MessageTag           { return TagSkill }
