package gameserver

import (
	"sync"
	"time"

	"github.com/qiminjie89/gameserver/internal/rudp"
	"github.com/qiminjie89/gameserver/pkg/metrics"
)

const (
	roomShardCount  = 16
	indexShardCount = 32
)

type roomShard struct {
	mu    sync.RWMutex
	rooms map[uint16]*Room
}

type indexShard struct {
	mu    sync.RWMutex
	index map[uint32]uint16 // player_id → room_id
}

// RoomService 房间与玩家索引的管理服务
// 两级分片：房间表按 room_id 分片，玩家索引按 player_id 分片
type RoomService struct {
	shards [roomShardCount]*roomShard
	index  [indexShardCount]*indexShard
	clock  rudp.Clock
}

// NewRoomService 创建房间服务
func NewRoomService(clock rudp.Clock) *RoomService {
	s := &RoomService{clock: clock}
	for i := range s.shards {
		s.shards[i] = &roomShard{rooms: make(map[uint16]*Room)}
	}
	for i := range s.index {
		s.index[i] = &indexShard{index: make(map[uint32]uint16)}
	}
	return s
}

func (s *RoomService) roomShard(roomID uint16) *roomShard {
	return s.shards[roomID%roomShardCount]
}

func (s *RoomService) indexShard(playerID uint32) *indexShard {
	return s.index[playerID%indexShardCount]
}

// getOrCreate 取房间，不存在则建
func (s *RoomService) getOrCreate(roomID uint16) *Room {
	sh := s.roomShard(roomID)
	sh.mu.RLock()
	r := sh.rooms[roomID]
	sh.mu.RUnlock()
	if r != nil {
		return r
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if r = sh.rooms[roomID]; r == nil {
		r = NewRoom(roomID)
		sh.rooms[roomID] = r
		metrics.GameRooms.Inc()
	}
	return r
}

// getRoom 取房间，不存在返回 nil
func (s *RoomService) getRoom(roomID uint16) *Room {
	sh := s.roomShard(roomID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.rooms[roomID]
}

// Join 玩家加入房间
// 如果玩家已在别的房间，先退出再加入，保证索引始终指向唯一房间
func (s *RoomService) Join(roomID uint16, user *UserState) {
	ish := s.indexShard(user.PlayerID)
	ish.mu.Lock()
	defer ish.mu.Unlock()

	if old, ok := ish.index[user.PlayerID]; ok && old != roomID {
		s.removeFromRoom(old, user.PlayerID)
	}

	r := s.getOrCreate(roomID)
	r.mu.Lock()
	if _, exists := r.members[user.PlayerID]; !exists {
		metrics.GameUsers.Inc()
	}
	user.LastUpdatedMs = s.clock.Now().UnixMilli()
	r.members[user.PlayerID] = user
	r.mu.Unlock()

	ish.index[user.PlayerID] = roomID
}

// Leave 玩家退出房间
func (s *RoomService) Leave(playerID uint32) {
	ish := s.indexShard(playerID)
	ish.mu.Lock()
	defer ish.mu.Unlock()

	roomID, ok := ish.index[playerID]
	if !ok {
		return
	}
	delete(ish.index, playerID)
	s.removeFromRoom(roomID, playerID)
}

func (s *RoomService) removeFromRoom(roomID uint16, playerID uint32) {
	r := s.getRoom(roomID)
	if r == nil {
		return
	}
	r.mu.Lock()
	if _, ok := r.members[playerID]; ok {
		delete(r.members, playerID)
		metrics.GameUsers.Dec()
	}
	r.mu.Unlock()
}

// UserRoom 查玩家所在房间
func (s *RoomService) UserRoom(playerID uint32) (uint16, bool) {
	ish := s.indexShard(playerID)
	ish.mu.RLock()
	defer ish.mu.RUnlock()
	roomID, ok := ish.index[playerID]
	return roomID, ok
}

// Update 在房间锁内更新玩家状态，返回是否命中
func (s *RoomService) Update(playerID uint32, fn func(*UserState)) bool {
	roomID, ok := s.UserRoom(playerID)
	if !ok {
		return false
	}
	r := s.getRoom(roomID)
	if r == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.members[playerID]
	if !ok {
		return false
	}
	fn(u)
	u.LastUpdatedMs = s.clock.Now().UnixMilli()
	return true
}

// View 在房间读锁内读玩家状态
func (s *RoomService) View(playerID uint32, fn func(*UserState)) bool {
	roomID, ok := s.UserRoom(playerID)
	if !ok {
		return false
	}
	r := s.getRoom(roomID)
	if r == nil {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.members[playerID]
	if !ok {
		return false
	}
	fn(u)
	return true
}

// EachMember 在房间写锁内遍历成员，fn 里不得再调用房间服务
func (s *RoomService) EachMember(roomID uint16, fn func(*UserState)) {
	r := s.getRoom(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.members {
		fn(u)
	}
}

// BroadcastTargets 取房间内除 exclude 外所有在线玩家的连接 id
// 返回快照，发送在锁外进行
func (s *RoomService) BroadcastTargets(roomID uint16, exclude uint32) []uint32 {
	r := s.getRoom(roomID)
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint32, 0, len(r.members))
	for id, u := range r.members {
		if id == exclude || !u.Connected {
			continue
		}
		out = append(out, u.ConnID)
	}
	return out
}

// ReapIdle 清理超时未更新的玩家和空房间，返回清掉的玩家数
func (s *RoomService) ReapIdle(timeout time.Duration) int {
	cutoff := s.clock.Now().Add(-timeout).UnixMilli()
	type reapedUser struct {
		playerID uint32
		roomID   uint16
	}
	var stale []reapedUser

	for _, sh := range s.shards {
		sh.mu.Lock()
		for roomID, r := range sh.rooms {
			r.mu.Lock()
			for id, u := range r.members {
				if u.LastUpdatedMs < cutoff {
					delete(r.members, id)
					metrics.GameUsers.Dec()
					stale = append(stale, reapedUser{playerID: id, roomID: roomID})
				}
			}
			empty := len(r.members) == 0
			r.mu.Unlock()
			if empty {
				delete(sh.rooms, roomID)
				metrics.GameRooms.Dec()
			}
		}
		sh.mu.Unlock()
	}

	// 索引清理和 Join 保持索引→房间的加锁顺序。
	// 清理窗口内玩家可能已重新 Join 同一房间，索引锁内
	// 必须复核成员表，玩家仍在房间里就不能删索引
	for _, ru := range stale {
		ish := s.indexShard(ru.playerID)
		ish.mu.Lock()
		if cur, ok := ish.index[ru.playerID]; ok && cur == ru.roomID && !s.roomHasMember(ru.roomID, ru.playerID) {
			delete(ish.index, ru.playerID)
		}
		ish.mu.Unlock()
	}
	return len(stale)
}

func (s *RoomService) roomHasMember(roomID uint16, playerID uint32) bool {
	r := s.getRoom(roomID)
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[playerID]
	return ok
}

// RoomCount 房间总数
func (s *RoomService) RoomCount() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.rooms)
		sh.mu.RUnlock()
	}
	return n
}

// UserCount 玩家总数
func (s *RoomService) UserCount() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, r := range sh.rooms {
			n += r.MemberCount()
		}
		sh.mu.RUnlock()
	}
	return n
}
