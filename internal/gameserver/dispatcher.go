package gameserver

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/qiminjie89/gameserver/internal/persist"
	"github.com/qiminjie89/gameserver/internal/protocol"
	"github.com/qiminjie89/gameserver/internal/rudp"
	"github.com/qiminjie89/gameserver/pkg/config"
	"github.com/qiminjie89/gameserver/pkg/logger"
	"github.com/qiminjie89/gameserver/pkg/metrics"
	"github.com/qiminjie89/gameserver/pkg/skills"
)

// SkillSource 技能规则表来源
type SkillSource interface {
	Snapshot() *skills.Table
}

// Dispatcher 游戏消息派发器，实现传输层的 Handler 回调
// 连接级回调在各自连接的 goroutine 里执行，跨玩家状态一律走 RoomService
type Dispatcher struct {
	cfg    *config.GameServerConfig
	rooms  *RoomService
	skills SkillSource
	pub    *persist.Publisher // 可为 nil，表示不落快照
	log    *zap.Logger

	transport *rudp.Server
	clock     rudp.Clock

	mu           sync.RWMutex
	byUser       map[string]uint32 // user_id → player_id
	nextPlayerID atomic.Uint32
}

// NewDispatcher 创建派发器
func NewDispatcher(cfg *config.GameServerConfig, rooms *RoomService, src SkillSource, pub *persist.Publisher) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		rooms:  rooms,
		skills: src,
		pub:    pub,
		log:    logger.Named("game"),
		byUser: make(map[string]uint32),
	}
}

// SetTransport 绑定传输层，必须在 Start 前调用
func (d *Dispatcher) SetTransport(srv *rudp.Server) {
	d.transport = srv
	d.clock = srv.Clock()
}

func (d *Dispatcher) settings() protocol.ServerSettings {
	return protocol.ServerSettings{
		HeartbeatIntervalMs: uint32(d.cfg.RUDP.HeartbeatInterval.Milliseconds()),
		MoveBroadcastHz:     uint8(d.cfg.Game.MoveBroadcastHz),
		WorldMin:            d.cfg.Game.WorldMin,
		WorldMax:            d.cfg.Game.WorldMax,
	}
}

// OnConnect 握手回调：分配玩家 id、进默认房间、回连接响应
// 同一 user_id 重复握手幂等，返回当前状态而不是再建一份
func (d *Dispatcher) OnConnect(c *rudp.Conn, req *protocol.Connect) (*protocol.ConnectResponse, protocol.ErrorCode) {
	d.mu.Lock()
	playerID, known := d.byUser[c.UserID()]
	if !known {
		playerID = d.nextPlayerID.Add(1)
		d.byUser[c.UserID()] = playerID
	}
	d.mu.Unlock()

	c.SetPlayerID(playerID)

	var spawn protocol.Position
	if known {
		// 已在房间里：刷新连接信息，按当前位置应答
		ok := d.rooms.Update(playerID, func(u *UserState) {
			u.ConnID = c.ID()
			u.Connected = true
			spawn = u.Position
		})
		if !ok {
			known = false
		}
	}
	if !known {
		u := NewUserState(playerID, req.PlayerName, c.ID())
		spawn = u.Position
		d.rooms.Join(d.cfg.Game.DefaultRoom, u)
	}

	d.log.Info("player connected",
		zap.Uint32("player_id", playerID),
		zap.String("user_id", c.UserID()),
		zap.String("name", req.PlayerName),
		zap.Bool("rejoin", known),
	)
	d.snapshot(playerID, "connect")

	return &protocol.ConnectResponse{
		Success:  true,
		PlayerID: playerID,
		Spawn:    spawn,
		Settings: d.settings(),
	}, 0
}

// OnMessage 单条游戏消息派发
func (d *Dispatcher) OnMessage(c *rudp.Conn, msg protocol.Message) {
	metrics.GameMessagesDispatched.WithLabelValues(msg.Tag().String()).Inc()

	switch m := msg.(type) {
	case *protocol.Connect:
		// 已建连后的重复 Connect：按幂等重入处理
		resp, code := d.OnConnect(c, m)
		if code == 0 {
			_ = c.Send(resp)
		}
	case *protocol.Move:
		d.handleMove(c, m)
	case *protocol.Attack:
		d.handleAttack(c, m)
	case *protocol.Skill:
		d.handleSkill(c, m)
	case *protocol.Respawn:
		d.handleRespawn(c)
	case *protocol.Die:
		// 客户端只报自己的死亡（坠落、环境伤害）
		d.killPlayer(c.PlayerID(), m.KillerID)
	case *protocol.Disconnect:
		c.Close("client_disconnect")
	default:
		d.sendError(c, protocol.CodeProtocolError, "unexpected message: "+msg.Tag().String())
	}
}

// OnDisconnect 连接关闭回调：广播离场并退出房间
func (d *Dispatcher) OnDisconnect(c *rudp.Conn, reason string) {
	playerID := c.PlayerID()
	if playerID == 0 {
		return
	}

	d.snapshot(playerID, "disconnect")

	if roomID, ok := d.rooms.UserRoom(playerID); ok {
		d.broadcast(roomID, &protocol.Disconnect{PlayerID: playerID, Reason: reason}, playerID)
	}
	d.rooms.Leave(playerID)

	d.mu.Lock()
	if d.byUser[c.UserID()] == playerID {
		delete(d.byUser, c.UserID())
	}
	d.mu.Unlock()

	d.log.Info("player disconnected",
		zap.Uint32("player_id", playerID),
		zap.String("reason", reason),
	)
}

func (d *Dispatcher) handleMove(c *rudp.Conn, m *protocol.Move) {
	playerID := c.PlayerID()
	game := &d.cfg.Game

	if !m.Position.IsValid(game.WorldMin, game.WorldMax) {
		d.sendError(c, protocol.CodeOutOfRange, "position outside world bounds")
		return
	}

	nowMs := d.clock.Now().UnixMilli()
	minGapMs := int64(1000 / game.MoveBroadcastHz)
	alive := false
	shouldBroadcast := false

	ok := d.rooms.Update(playerID, func(u *UserState) {
		alive = u.Alive
		if !alive {
			return
		}
		u.Position = m.Position
		u.Velocity = m.Velocity
		if nowMs-u.lastMoveBroadcastMs >= minGapMs {
			u.lastMoveBroadcastMs = nowMs
			shouldBroadcast = true
		}
	})
	if !ok {
		return
	}
	if !alive {
		d.sendError(c, protocol.CodeNotAlive, "dead players cannot move")
		return
	}

	if !shouldBroadcast {
		metrics.GameMoveUpdatesSuppressed.Inc()
		return
	}

	roomID, ok := d.rooms.UserRoom(playerID)
	if !ok {
		return
	}
	d.broadcast(roomID, &protocol.MoveUpdate{
		PlayerID:    playerID,
		Position:    m.Position,
		Velocity:    m.Velocity,
		TimestampMs: m.TimestampMs,
	}, playerID)
}

func (d *Dispatcher) handleAttack(c *rudp.Conn, m *protocol.Attack) {
	attackerID := c.PlayerID()

	var attackerPos protocol.Position
	var attackerLevel uint32
	alive := false
	d.rooms.View(attackerID, func(u *UserState) {
		alive = u.Alive
		attackerPos = u.Position
		attackerLevel = u.Level
	})
	if !alive {
		d.sendError(c, protocol.CodeNotAlive, "dead players cannot attack")
		return
	}

	if m.Target.Kind != protocol.TargetPlayer {
		d.sendError(c, protocol.CodeInvalidTarget, "only player targets are attackable")
		return
	}
	targetID := m.Target.PlayerID
	if targetID == attackerID {
		d.sendError(c, protocol.CodeInvalidTarget, "cannot attack self")
		return
	}

	roomID, ok := d.rooms.UserRoom(attackerID)
	if !ok {
		return
	}
	if tr, ok := d.rooms.UserRoom(targetID); !ok || tr != roomID {
		d.sendError(c, protocol.CodeInvalidTarget, "target not in room")
		return
	}

	var targetPos protocol.Position
	targetAlive := false
	d.rooms.View(targetID, func(u *UserState) {
		targetPos = u.Position
		targetAlive = u.Alive
	})
	if !targetAlive {
		d.sendError(c, protocol.CodeInvalidTarget, "target already dead")
		return
	}

	attackRange := d.cfg.Game.AttackRange
	if attackerPos.DistanceSq(targetPos) > attackRange*attackRange {
		d.sendError(c, protocol.CodeOutOfRange, "target out of attack range")
		return
	}

	damage := basicAttackPower + 2*(attackerLevel-1)
	var health uint32
	killed := false
	d.rooms.Update(targetID, func(u *UserState) {
		health, killed = u.ApplyDamage(damage)
	})

	d.broadcast(roomID, &protocol.AttackResult{
		AttackerID:   attackerID,
		Target:       m.Target,
		Damage:       damage,
		TargetHealth: health,
		Killed:       killed,
	}, 0)

	if killed {
		d.killPlayer(targetID, attackerID)
	}
}

func (d *Dispatcher) handleSkill(c *rudp.Conn, m *protocol.Skill) {
	casterID := c.PlayerID()

	def := d.skills.Snapshot().Get(m.SkillID)
	if def == nil {
		metrics.GameSkillUsage.WithLabelValues("unknown_skill").Inc()
		d.sendError(c, protocol.CodeUnknownSkill, "unknown skill")
		return
	}

	nowMs := d.clock.Now().UnixMilli()

	var casterPos protocol.Position
	var casterLevel uint32
	alive := false
	onCooldown := false
	d.rooms.View(casterID, func(u *UserState) {
		alive = u.Alive
		onCooldown = u.OnCooldown(m.SkillID, nowMs)
		casterPos = u.Position
		casterLevel = u.Level
	})
	if !alive {
		metrics.GameSkillUsage.WithLabelValues("not_alive").Inc()
		d.sendError(c, protocol.CodeNotAlive, "dead players cannot cast")
		return
	}
	if onCooldown {
		metrics.GameSkillUsage.WithLabelValues("on_cooldown").Inc()
		d.sendError(c, protocol.CodeOnCooldown, "skill on cooldown")
		return
	}

	// 解析目标：自身、其他玩家或地面点
	targetID := casterID
	targetPos := casterPos
	switch m.Target.Kind {
	case protocol.TargetPlayer:
		targetID = m.Target.PlayerID
		roomID, _ := d.rooms.UserRoom(casterID)
		if tr, ok := d.rooms.UserRoom(targetID); !ok || tr != roomID {
			metrics.GameSkillUsage.WithLabelValues("invalid_target").Inc()
			d.sendError(c, protocol.CodeInvalidTarget, "target not in room")
			return
		}
		d.rooms.View(targetID, func(u *UserState) { targetPos = u.Position })
	case protocol.TargetPosition:
		targetPos = m.Target.Position
	default:
		metrics.GameSkillUsage.WithLabelValues("invalid_target").Inc()
		d.sendError(c, protocol.CodeInvalidTarget, "unsupported target kind")
		return
	}

	if def.Range > 0 && casterPos.DistanceSq(targetPos) > def.Range*def.Range {
		metrics.GameSkillUsage.WithLabelValues("out_of_range").Inc()
		d.sendError(c, protocol.CodeOutOfRange, "target out of skill range")
		return
	}

	// 扣蓝和记冷却要在同一次状态更新里完成
	manaOK := false
	d.rooms.Update(casterID, func(u *UserState) {
		if !u.SpendMana(def.ManaCost) {
			return
		}
		u.SetCooldown(m.SkillID, nowMs+int64(def.CooldownMs))
		manaOK = true
	})
	if !manaOK {
		metrics.GameSkillUsage.WithLabelValues("insufficient_mana").Inc()
		d.sendError(c, protocol.CodeInsufficientMana, "insufficient mana")
		return
	}

	metrics.GameSkillUsage.WithLabelValues("ok").Inc()

	roomID, ok := d.rooms.UserRoom(casterID)
	if !ok {
		return
	}

	if def.AOE && m.Target.Kind == protocol.TargetPosition {
		d.castAOE(casterID, casterLevel, def, m, roomID, targetPos)
		return
	}

	if damage := def.ScaledDamage(casterLevel); damage > 0 && m.Target.Kind == protocol.TargetPlayer {
		var health uint32
		killed := false
		d.rooms.Update(targetID, func(u *UserState) {
			health, killed = u.ApplyDamage(damage)
		})

		d.broadcast(roomID, &protocol.AttackResult{
			AttackerID:   casterID,
			Target:       m.Target,
			Damage:       damage,
			TargetHealth: health,
			Killed:       killed,
		}, 0)

		if killed {
			d.killPlayer(targetID, casterID)
		}
	}

	if healing := def.ScaledHealing(casterLevel); healing > 0 {
		healTarget := targetID
		if m.Target.Kind != protocol.TargetPlayer {
			healTarget = casterID
		}
		var state protocol.StateUpdate
		d.rooms.Update(healTarget, func(u *UserState) {
			u.ApplyHealing(healing)
			state = stateOf(u)
		})
		d.broadcast(roomID, &state, 0)
	}
}

// castAOE 对落点半径内的所有存活玩家结算范围伤害，施法者自己也算在内
func (d *Dispatcher) castAOE(casterID, casterLevel uint32, def *skills.Definition, m *protocol.Skill, roomID uint16, center protocol.Position) {
	damage := def.ScaledDamage(casterLevel)
	if damage == 0 {
		return
	}
	radiusSq := def.Range * def.Range

	type hit struct {
		playerID uint32
		health   uint32
		killed   bool
	}
	var hits []hit
	d.rooms.EachMember(roomID, func(u *UserState) {
		if !u.Alive || u.Position.DistanceSq(center) > radiusSq {
			return
		}
		health, killed := u.ApplyDamage(damage)
		hits = append(hits, hit{playerID: u.PlayerID, health: health, killed: killed})
	})

	for _, h := range hits {
		d.broadcast(roomID, &protocol.AttackResult{
			AttackerID:   casterID,
			Target:       protocol.AttackTarget{Kind: protocol.TargetPlayer, PlayerID: h.playerID},
			Damage:       damage,
			TargetHealth: h.health,
			Killed:       h.killed,
		}, 0)
	}
	for _, h := range hits {
		if h.killed {
			d.killPlayer(h.playerID, casterID)
		}
	}
}

func (d *Dispatcher) handleRespawn(c *rudp.Conn) {
	playerID := c.PlayerID()
	nowMs := d.clock.Now().UnixMilli()

	alive := true
	eligible := false
	d.rooms.View(playerID, func(u *UserState) {
		alive = u.Alive
		eligible = u.CanRespawn(nowMs)
	})
	if alive {
		d.sendError(c, protocol.CodeProtocolError, "player is not dead")
		return
	}
	if !eligible {
		d.sendError(c, protocol.CodeOnCooldown, "respawn not ready")
		return
	}

	var done protocol.RespawnComplete
	d.rooms.Update(playerID, func(u *UserState) {
		pos := u.ApplyRespawn()
		done = protocol.RespawnComplete{
			PlayerID: playerID,
			Position: pos,
			Health:   u.Health,
			Mana:     u.Mana,
		}
	})

	if roomID, ok := d.rooms.UserRoom(playerID); ok {
		d.broadcast(roomID, &done, 0)
	}
	d.snapshot(playerID, "respawn")
}

// killPlayer 结算一次死亡并广播，复活资格时间随 Die 一起下发
func (d *Dispatcher) killPlayer(victimID, killerID uint32) {
	nowMs := d.clock.Now().UnixMilli()
	cooldownMs := d.cfg.Game.RespawnCooldown.Milliseconds()

	var die protocol.Die
	dead := false
	d.rooms.Update(victimID, func(u *UserState) {
		if !u.Alive && u.RespawnEligibleAtMs != 0 {
			// 已经结算过，不重复扣惩罚
			return
		}
		gold, exp := u.ApplyDeath(nowMs, cooldownMs)
		die = protocol.Die{
			PlayerID:    victimID,
			KillerID:    killerID,
			PenaltyGold: gold,
			PenaltyExp:  exp,
			RespawnAtMs: uint64(u.RespawnEligibleAtMs),
		}
		dead = true
	})
	if !dead {
		return
	}

	d.log.Info("player died",
		zap.Uint32("player_id", victimID),
		zap.Uint32("killer_id", killerID),
	)

	if roomID, ok := d.rooms.UserRoom(victimID); ok {
		d.broadcast(roomID, &die, 0)
	}
	d.snapshot(victimID, "death")
}

// broadcast 把消息发给房间内除 exclude 外的所有在线玩家
// 每个目标走自己连接的可靠性状态，互不影响
func (d *Dispatcher) broadcast(roomID uint16, msg protocol.Message, exclude uint32) {
	targets := d.rooms.BroadcastTargets(roomID, exclude)
	for _, connID := range targets {
		c := d.transport.GetConn(connID)
		if c == nil {
			continue
		}
		if err := c.Send(msg); err != nil {
			d.log.Debug("broadcast send failed",
				zap.Uint32("conn_id", connID),
				zap.Error(err),
			)
		}
	}
	metrics.GameBroadcasts.Inc()
}

func (d *Dispatcher) sendError(c *rudp.Conn, code protocol.ErrorCode, text string) {
	metrics.GameErrors.WithLabelValues(code.String()).Inc()
	_ = c.Send(&protocol.Error{Code: code, Message: text})
}

// snapshot 投递玩家状态快照
func (d *Dispatcher) snapshot(playerID uint32, reason string) {
	if d.pub == nil {
		return
	}
	roomID, _ := d.rooms.UserRoom(playerID)

	var snap persist.Snapshot
	ok := d.rooms.View(playerID, func(u *UserState) {
		snap = persist.Snapshot{
			PlayerID:    playerID,
			RoomID:      roomID,
			Name:        u.Name,
			X:           u.Position.X,
			Y:           u.Position.Y,
			Z:           u.Position.Z,
			Health:      u.Health,
			Mana:        u.Mana,
			Level:       u.Level,
			Gold:        u.Gold,
			Exp:         u.Exp,
			Alive:       u.Alive,
			Reason:      reason,
			TimestampMs: d.clock.Now().UnixMilli(),
		}
	})
	if ok {
		d.pub.Publish(snap)
	}
}

func stateOf(u *UserState) protocol.StateUpdate {
	return protocol.StateUpdate{
		PlayerID:  u.PlayerID,
		Health:    u.Health,
		MaxHealth: u.MaxHealth,
		Mana:      u.Mana,
		MaxMana:   u.MaxMana,
		Level:     u.Level,
		Position:  u.Position,
	}
}
