package protocol

// ErrorCode Error 消息携带的稳定错误码
// 数值在线上固定，兼容版本之间不得改动
type ErrorCode uint16

const (
	// 协议层错误
	CodeUnknownMessage  ErrorCode = 100
	CodeProtocolError   ErrorCode = 101
	CodeVersionMismatch ErrorCode = 102
	CodeAuthFailed      ErrorCode = 103
	CodeServerFull      ErrorCode = 104

	// 游戏层错误
	CodeUnknownSkill     ErrorCode = 200
	CodeOnCooldown       ErrorCode = 201
	CodeInsufficientMana ErrorCode = 202
	CodeOutOfRange       ErrorCode = 203
	CodeInvalidTarget    ErrorCode = 204
	CodeNotAlive         ErrorCode = 205
)

// String 返回错误码名（用于日志和指标 label）
func (c ErrorCode) String() string {
	switch c {
	case CodeUnknownMessage:
		return "unknown_message"
	case CodeProtocolError:
		return "protocol_error"
	case CodeVersionMismatch:
		return "version_mismatch"
	case CodeAuthFailed:
		return "auth_failed"
	case CodeServerFull:
		return "server_full"
	case CodeUnknownSkill:
		return "unknown_skill"
	case CodeOnCooldown:
		return "on_cooldown"
	case CodeInsufficientMana:
		return "insufficient_mana"
	case CodeOutOfRange:
		return "out_of_range"
	case CodeInvalidTarget:
		return "invalid_target"
	case CodeNotAlive:
		return "not_alive"
	}
	return "unknown"
}
