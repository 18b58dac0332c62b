package gameserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qiminjie89/gameserver/internal/persist"
	"github.com/qiminjie89/gameserver/internal/rudp"
	"github.com/qiminjie89/gameserver/pkg/auth"
	"github.com/qiminjie89/gameserver/pkg/config"
	"github.com/qiminjie89/gameserver/pkg/logger"
	"github.com/qiminjie89/gameserver/pkg/skills"
)

// Server 游戏服务器：传输层、房间服务、派发器和运维端口的组装
type Server struct {
	cfg        *config.GameServerConfig
	transport  *rudp.Server
	rooms      *RoomService
	dispatcher *Dispatcher
	skills     *skills.Loader
	pub        *persist.Publisher
	log        *zap.Logger

	healthSrv  *http.Server
	metricsSrv *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startTime time.Time
}

// New 按配置组装服务器
func New(cfg *config.GameServerConfig) (*Server, error) {
	loader, err := skills.NewLoader(cfg.Skills.Path)
	if err != nil {
		return nil, err
	}

	var pub *persist.Publisher
	if cfg.Kafka.Enabled {
		pub = persist.NewPublisher(&persist.Config{
			Brokers:  cfg.Kafka.Brokers,
			Topic:    cfg.Kafka.Topic,
			ServerID: cfg.Server.ID,
		})
	}

	clock := rudp.SystemClock()
	rooms := NewRoomService(clock)
	dispatcher := NewDispatcher(cfg, rooms, loader, pub)

	transport, err := rudp.NewServer(cfg.Server.BindAddr, transportConfig(cfg), rudp.Options{
		Handler:         dispatcher,
		Validator:       auth.NewJWTValidator(cfg.Auth.JWTSecret, cfg.Auth.AllowMock),
		RequiredVersion: cfg.Auth.RequiredVersion,
		Clock:           clock,
	})
	if err != nil {
		if pub != nil {
			pub.Close()
		}
		return nil, err
	}
	dispatcher.SetTransport(transport)

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		transport:  transport,
		rooms:      rooms,
		dispatcher: dispatcher,
		skills:     loader,
		pub:        pub,
		log:        logger.Named("server"),
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
	}, nil
}

// transportConfig 把顶层配置映射成传输层参数
func transportConfig(cfg *config.GameServerConfig) *rudp.Config {
	return &rudp.Config{
		MTU:               cfg.RUDP.MTU,
		MaxConnections:    cfg.Server.MaxConnections,
		HeartbeatInterval: cfg.RUDP.HeartbeatInterval,
		IdleTimeout:       cfg.RUDP.IdleTimeout,
		AckDelay:          cfg.RUDP.AckDelay,
		AckThreshold:      cfg.RUDP.AckThreshold,
		MinRTO:            cfg.RUDP.MinRTO,
		MaxRTO:            cfg.RUDP.MaxRTO,
		MaxRetries:        cfg.RUDP.MaxRetries,
		CwndInit:          cfg.RUDP.CwndInit,
		SsthreshInit:      cfg.RUDP.SsthreshInit,
		RecvWindow:        cfg.RUDP.RecvWindow,
		SendQueueSize:     cfg.RUDP.SendQueueSize,
		FragTimeout:       cfg.RUDP.FragTimeout,
		MaxFragBytes:      cfg.RUDP.MaxFragBytes,
	}
}

// Start 启动各子系统
func (s *Server) Start() {
	s.transport.Start()

	s.wg.Add(1)
	go s.reapLoop()

	s.wg.Add(1)
	go s.runHealthServer()

	if s.cfg.Metrics.Enabled {
		s.wg.Add(1)
		go s.runMetricsServer()
	}

	s.log.Info("game server started",
		zap.String("bind_addr", s.cfg.Server.BindAddr),
		zap.String("server_id", s.cfg.Server.ID),
		zap.Int("skills", s.skills.Snapshot().Len()),
	)
}

// Stop 优雅停机：先断连接、再停后台任务、最后冲刷快照
func (s *Server) Stop() {
	s.log.Info("game server stopping")

	s.cancel()
	s.transport.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.healthSrv != nil {
		_ = s.healthSrv.Shutdown(shutdownCtx)
	}
	if s.metricsSrv != nil {
		_ = s.metricsSrv.Shutdown(shutdownCtx)
	}

	s.wg.Wait()

	if s.pub != nil {
		_ = s.pub.Close()
	}
	s.log.Info("game server stopped")
}

// ReloadSkills 热更新技能规则表
func (s *Server) ReloadSkills() error {
	if err := s.skills.Reload(); err != nil {
		return err
	}
	s.log.Info("skill rules reloaded",
		zap.Int("skills", s.skills.Snapshot().Len()),
	)
	return nil
}

// reapLoop 周期清理空闲玩家和空房间
func (s *Server) reapLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Room.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if n := s.rooms.ReapIdle(s.cfg.Room.IdleUserTimeout); n > 0 {
				s.log.Info("reaped idle users", zap.Int("count", n))
			}
		}
	}
}

// HealthStatus 健康状态
type HealthStatus struct {
	Status        string  `json:"status"`
	Connections   int     `json:"connections"`
	Rooms         int     `json:"rooms"`
	Users         int     `json:"users"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// runHealthServer 运行健康检查服务
func (s *Server) runHealthServer() {
	defer s.wg.Done()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)

	s.healthSrv = &http.Server{
		Addr:    s.cfg.Server.HealthAddr,
		Handler: mux,
	}

	s.log.Info("starting health server",
		zap.String("addr", s.cfg.Server.HealthAddr),
	)

	if err := s.healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error("health server error", zap.Error(err))
	}
}

// healthHandler 健康检查处理
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := &HealthStatus{
		Status:        "healthy",
		Connections:   s.transport.ConnCount(),
		Rooms:         s.rooms.RoomCount(),
		Users:         s.rooms.UserCount(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// runMetricsServer 暴露 Prometheus 指标
func (s *Server) runMetricsServer() {
	defer s.wg.Done()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsSrv = &http.Server{
		Addr:    s.cfg.Metrics.Addr,
		Handler: mux,
	}

	s.log.Info("starting metrics server",
		zap.String("addr", s.cfg.Metrics.Addr),
	)

	if err := s.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error("metrics server error", zap.Error(err))
	}
}
