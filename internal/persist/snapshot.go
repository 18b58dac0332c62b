// Package persist 将玩家状态快照异步投递到 Kafka，供离线落库消费
package persist

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/qiminjie89/gameserver/pkg/logger"
	"github.com/qiminjie89/gameserver/pkg/metrics"
)

// Snapshot 玩家状态快照
type Snapshot struct {
	EventID  string `msgpack:"event_id"`
	ServerID string `msgpack:"server_id"`

	PlayerID uint32 `msgpack:"player_id"`
	RoomID   uint16 `msgpack:"room_id"`
	Name     string `msgpack:"name"`

	X float32 `msgpack:"x"`
	Y float32 `msgpack:"y"`
	Z float32 `msgpack:"z"`

	Health uint32 `msgpack:"health"`
	Mana   uint32 `msgpack:"mana"`
	Level  uint32 `msgpack:"level"`
	Gold   uint32 `msgpack:"gold"`
	Exp    uint32 `msgpack:"exp"`
	Alive  bool   `msgpack:"alive"`

	// 触发快照的原因：connect / disconnect / death / respawn / skill
	Reason string `msgpack:"reason"`

	TimestampMs int64 `msgpack:"timestamp_ms"`
}

// Publisher 快照发布器
// Publish 只往缓冲投递不等待写入，Kafka 抖动不能拖慢游戏循环
type Publisher struct {
	writer   *kafka.Writer
	serverID string

	ch   chan Snapshot
	wg   sync.WaitGroup
	once sync.Once
	done chan struct{}
}

// Config 发布器配置
type Config struct {
	Brokers  []string
	Topic    string
	ServerID string
	Buffer   int
}

// NewPublisher 创建快照发布器并启动后台写入
func NewPublisher(cfg *Config) *Publisher {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}

	p := &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{}, // 按 player_id 哈希分区
			BatchTimeout: 50 * time.Millisecond,
		},
		serverID: cfg.ServerID,
		ch:       make(chan Snapshot, cfg.Buffer),
		done:     make(chan struct{}),
	}

	p.wg.Add(1)
	go p.loop()
	return p
}

// Publish 投递一条快照，缓冲满则丢弃并计数
func (p *Publisher) Publish(snap Snapshot) {
	snap.EventID = uuid.NewString()
	snap.ServerID = p.serverID

	select {
	case p.ch <- snap:
	default:
		metrics.PersistSnapshotFailures.WithLabelValues("buffer_full").Inc()
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()

	for {
		select {
		case snap := <-p.ch:
			p.write(snap)
		case <-p.done:
			// 停机前清空缓冲
			for {
				select {
				case snap := <-p.ch:
					p.write(snap)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) write(snap Snapshot) {
	value, err := msgpack.Marshal(&snap)
	if err != nil {
		metrics.PersistSnapshotFailures.WithLabelValues("encode").Inc()
		logger.Error("snapshot encode failed",
			zap.Error(err),
			zap.Uint32("player_id", snap.PlayerID),
		)
		return
	}

	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, snap.PlayerID)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value}); err != nil {
		metrics.PersistSnapshotFailures.WithLabelValues("kafka").Inc()
		logger.Error("snapshot publish failed",
			zap.Error(err),
			zap.Uint32("player_id", snap.PlayerID),
			zap.String("reason", snap.Reason),
		)
		return
	}
	metrics.PersistSnapshots.Inc()
}

// Close 停止后台写入并关闭生产者
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
	return p.writer.Close()
}
