package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"smarthub/internal/config"
	"smarthub/internal/database"
	"smarthub/internal/decoder"
	"smarthub/internal/detector"
	"smarthub/internal/directory"
	"smarthub/internal/dispatcher"
	"smarthub/internal/evaluator"
	"smarthub/internal/logger"
	"smarthub/internal/mqtt"
	"smarthub/internal/notifier"
	"smarthub/internal/redisclient"
	"smarthub/internal/repository"
	"smarthub/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "smarthub")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database",
			zap.Error(err),
		)
	}
	defer database.Close(db)

	// 4. 连接Redis
	redisClient := redisclient.NewRedisClient(&cfg.Redis)
	if err := redisclient.Ping(context.Background(), redisClient); err != nil {
		log.Fatal("Failed to connect to Redis",
			zap.Error(err),
		)
	}
	defer redisclient.Close(redisClient)

	// 5. 连接MQTT broker
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, log)
	if err != nil {
		log.Fatal("Failed to connect to MQTT broker",
			zap.Error(err),
		)
	}
	defer mqttClient.Disconnect()

	// 6. 创建仓库
	hardwareRepo := repository.NewHardwareDeviceRepository(db, log)
	userDeviceRepo := repository.NewUserDeviceRepository(db, log)
	stateRepo := repository.NewDeviceStateRepository(db, log)
	eventRepo := repository.NewEventRepository(db, log)
	triggerLogRepo := repository.NewTriggerLogRepository(db, log)
	notificationRepo := repository.NewNotificationRepository(db, log)
	messageRepo := repository.NewMessageRepository(db, log)

	// 7. 创建管道组件
	hubService := service.NewHubService(
		cfg,
		log,
		mqttClient,
		decoder.NewDecoder(cfg, log),
		detector.NewDetector(cfg, redisClient, log),
		directory.NewResolver(hardwareRepo, userDeviceRepo, stateRepo, log),
		evaluator.NewEvaluator(log),
		dispatcher.NewDispatcher(cfg, eventRepo, stateRepo, triggerLogRepo, mqttClient, log),
		notifier.NewNotifier(cfg, notificationRepo, log),
		notifier.BuildMessage,
		messageRepo,
		hardwareRepo,
		userDeviceRepo,
		eventRepo,
	)

	// 8. 启动服务
	if err := hubService.Start(); err != nil {
		log.Fatal("Failed to start hub service",
			zap.Error(err),
		)
	}
	defer hubService.Stop()

	log.Info("Hub service started",
		zap.String("broker", cfg.MQTT.Broker),
		zap.String("base_topic", cfg.Hub.BaseTopic),
	)

	// 9. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, shutting down",
		zap.String("signal", sig.String()),
	)
}
