package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/qiminjie89/gameserver/internal/gameserver"
	"github.com/qiminjie89/gameserver/pkg/config"
	"github.com/qiminjie89/gameserver/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "configs/gameserver.yaml", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadGameServerConfig(*configPath)
	if err != nil {
		panic("load config failed: " + err.Error())
	}

	// 初始化日志
	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting gameserver",
		zap.String("config", *configPath),
	)

	// 创建并启动服务
	server, err := gameserver.New(cfg)
	if err != nil {
		logger.Error("create server failed", zap.Error(err))
		os.Exit(1)
	}
	server.Start()

	// SIGHUP 热更新技能规则，SIGINT/SIGTERM 退出
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if err := server.ReloadSkills(); err != nil {
				logger.Error("skill reload failed", zap.Error(err))
			}
			continue
		}
		break
	}

	logger.Info("received shutdown signal")
	server.Stop()
}
