package protocol

// Class 消息的传输分类：是否可靠、是否有序、优先级
// Priority 数值越小越紧急
type Class struct {
	Reliable bool
	Ordered  bool
	Priority uint8
}

// 优先级档位
const (
	PriorityCritical uint8 = 0   // 死亡/复活：不容丢失且最先发
	PriorityHigh     uint8 = 1   // 攻击/技能/错误
	PriorityControl  uint8 = 2   // 连接建立与断开
	PriorityState    uint8 = 3   // 状态推送
	PriorityDefault  uint8 = 50  // 其余消息
	PriorityMove     uint8 = 100 // 移动：高频且可丢
)

// Classify 按消息标签决定传输分类
// 映射是确定性的，兼容版本之间不得改动
func Classify(tag MessageTag) Class {
	switch tag {
	case TagConnect, TagConnectResponse, TagDisconnect:
		return Class{Reliable: true, Ordered: true, Priority: PriorityControl}
	case TagAttack, TagAttackResult, TagSkill:
		return Class{Reliable: true, Ordered: true, Priority: PriorityHigh}
	case TagDie, TagRespawn, TagRespawnComplete:
		return Class{Reliable: true, Ordered: true, Priority: PriorityCritical}
	case TagStateUpdate:
		return Class{Reliable: true, Ordered: false, Priority: PriorityState}
	case TagMove, TagMoveUpdate:
		return Class{Reliable: false, Ordered: false, Priority: PriorityMove}
	case TagError:
		return Class{Reliable: true, Ordered: true, Priority: PriorityHigh}
	default:
		return Class{Reliable: true, Ordered: false, Priority: PriorityDefault}
	}
}

// PriorityName 返回优先级档位名（指标 label）
func PriorityName(p uint8) string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityControl:
		return "control"
	case PriorityState:
		return "state"
	case PriorityMove:
		return "move"
	}
	return "default"
}
