// Package config 提供配置加载功能
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GameServerConfig 游戏服务器配置
type GameServerConfig struct {
	Server  ServerConfig  `yaml:"server"`
	RUDP    RUDPConfig    `yaml:"rudp"`
	Game    GameConfig    `yaml:"game"`
	Room    RoomConfig    `yaml:"room"`
	Skills  SkillsConfig  `yaml:"skills"`
	Auth    AuthConfig    `yaml:"auth"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig 服务器基础配置
type ServerConfig struct {
	ID             string `yaml:"id"`
	BindAddr       string `yaml:"bind_addr"`
	HealthAddr     string `yaml:"health_addr"`
	MaxConnections int    `yaml:"max_connections"`
}

// RUDPConfig 传输层配置
type RUDPConfig struct {
	MTU               int           `yaml:"mtu"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	AckDelay          time.Duration `yaml:"ack_delay"`
	AckThreshold      int           `yaml:"ack_threshold"`
	MinRTO            time.Duration `yaml:"min_rto"`
	MaxRTO            time.Duration `yaml:"max_rto"`
	MaxRetries        int           `yaml:"max_retries"`
	CwndInit          int           `yaml:"cwnd_init"`
	SsthreshInit      int           `yaml:"ssthresh_init"`
	RecvWindow        int           `yaml:"recv_window"`
	SendQueueSize     int           `yaml:"send_queue_size"`
	FragTimeout       time.Duration `yaml:"frag_timeout"`
	MaxFragBytes      int           `yaml:"max_frag_bytes"`
}

// GameConfig 游戏逻辑配置
type GameConfig struct {
	DefaultRoom     uint16        `yaml:"default_room"`
	MoveBroadcastHz int           `yaml:"move_broadcast_hz"`
	RespawnCooldown time.Duration `yaml:"respawn_cooldown"`
	AttackRange     float32       `yaml:"attack_range"`
	WorldMin        float32       `yaml:"world_min"`
	WorldMax        float32       `yaml:"world_max"`
}

// RoomConfig 房间配置
type RoomConfig struct {
	ReapInterval    time.Duration `yaml:"reap_interval"`
	IdleUserTimeout time.Duration `yaml:"idle_user_timeout"`
}

// SkillsConfig 技能规则表配置
type SkillsConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret       string `yaml:"jwt_secret"`
	RequiredVersion string `yaml:"required_version"`
	AllowMock       bool   `yaml:"allow_mock"`
}

// KafkaConfig 快照持久化 Kafka 配置
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default 返回默认配置（测试和本地开发用）
func Default() *GameServerConfig {
	return &GameServerConfig{
		Server: ServerConfig{
			ID:             "gameserver-1",
			BindAddr:       "0.0.0.0:5000",
			HealthAddr:     "0.0.0.0:8081",
			MaxConnections: 2000,
		},
		RUDP: RUDPConfig{
			MTU:               1200,
			HeartbeatInterval: time.Second,
			IdleTimeout:       15 * time.Second,
			AckDelay:          20 * time.Millisecond,
			AckThreshold:      2,
			MinRTO:            100 * time.Millisecond,
			MaxRTO:            4 * time.Second,
			MaxRetries:        8,
			CwndInit:          2,
			SsthreshInit:      64,
			RecvWindow:        256,
			SendQueueSize:     512,
			FragTimeout:       2 * time.Second,
			MaxFragBytes:      64 * 1024,
		},
		Game: GameConfig{
			DefaultRoom:     1,
			MoveBroadcastHz: 20,
			RespawnCooldown: 5 * time.Second,
			AttackRange:     30,
			WorldMin:        -1000,
			WorldMax:        1000,
		},
		Room: RoomConfig{
			ReapInterval:    5 * time.Second,
			IdleUserTimeout: 60 * time.Second,
		},
		Skills: SkillsConfig{
			Path: "configs/skills.yaml",
		},
		Auth: AuthConfig{
			JWTSecret:       "dev_secret",
			RequiredVersion: "1.0",
			AllowMock:       true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "0.0.0.0:9100",
		},
	}
}

// LoadGameServerConfig 加载游戏服务器配置
// 文件里缺省的字段回落到 Default 的取值
func LoadGameServerConfig(path string) (*GameServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.sanitize()

	return cfg, nil
}

// sanitize 钳住会导致运行时出错的配置取值
func (c *GameServerConfig) sanitize() {
	if c.Game.MoveBroadcastHz < 1 {
		c.Game.MoveBroadcastHz = 1
	}
}
