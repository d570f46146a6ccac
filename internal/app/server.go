package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"greenos-alerts/internal/config"
	"greenos-alerts/internal/consumer"
	"greenos-alerts/internal/service"
	"greenos-alerts/internal/evaluator"
	"greenos-alerts/internal/httpapi"
	"greenos-alerts/internal/jobs"
	"greenos-alerts/internal/notifier"
	"greenos-alerts/internal/repository"
	"greenos-alerts/pkg/database"
	"greenos-alerts/pkg/redisx"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

// Server 告警服务（整合各层）
type Server struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	httpServer *http.Server
	consumer   *consumer.StreamConsumer
	scheduler  *jobs.Scheduler
}

// NewServer 组装全部组件
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// 1. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redisx.NewRedisClient(&cfg.Redis)
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. Repository 层
	rulesRepo := repository.NewPostgresAlertRulesRepository(db, logger)
	alertsRepo := repository.NewPostgresAlertsRepository(db, logger)
	sensorsRepo := repository.NewPostgresSensorsRepository(db, logger)
	readingsRepo := repository.NewPostgresReadingsRepository(db, logger)
	policiesRepo := repository.NewPostgresEscalationPoliciesRepository(db, logger)

	// 4. 通知层
	publisher := notifier.NewRedisPublisher(redisClient, logger, notifier.RedisPublisherConfig{
		AlertsChannel:  cfg.Alerts.Notify.AlertsChannel,
		SensorsChannel: cfg.Alerts.Notify.SensorsChannel,
		UserKeyPrefix:  cfg.Alerts.Notify.UserKeyPrefix,
		UserCacheTTL:   time.Duration(cfg.Alerts.Notify.UserCacheTTL) * time.Second,
	})

	// 5. 评估引擎与服务层
	engine := evaluator.NewEngine(rulesRepo, alertsRepo, publisher, logger)
	rulesService := service.NewRulesService(rulesRepo, logger)
	alertsService := service.NewAlertsService(alertsRepo, publisher, redisClient, service.AlertsCacheConfig{
		KeyPrefix: cfg.Alerts.Cache.ActiveKeyPrefix,
		TTL:       time.Duration(cfg.Alerts.Cache.ActiveTTL) * time.Second,
	}, logger)
	ingestService := service.NewIngestService(sensorsRepo, readingsRepo, engine, publisher, logger)
	policiesService := service.NewPoliciesService(policiesRepo, logger)

	// 6. HTTP 层
	router := httpapi.NewRouter(logger)
	router.RegisterRoutes(
		httpapi.NewReadingsHandler(ingestService, logger),
		httpapi.NewRulesHandler(rulesService, logger),
		httpapi.NewAlertsHandler(alertsService, logger),
		httpapi.NewPoliciesHandler(policiesService, logger),
	)
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// 7. Streams 消费者
	streamConsumer := consumer.NewStreamConsumer(redisClient, ingestService, consumer.StreamConsumerConfig{
		Stream:    cfg.Alerts.Stream.Name,
		Group:     cfg.Alerts.Stream.Group,
		Consumer:  cfg.Alerts.Stream.Consumer,
		BatchSize: int64(cfg.Alerts.Stream.BatchSize),
	}, logger)

	// 8. 后台任务
	scheduler := jobs.NewScheduler(logger)
	if cfg.Jobs.Enabled {
		staleJob := jobs.NewStaleSensorJob(sensorsRepo, publisher,
			time.Duration(cfg.Jobs.StaleAfterMinutes)*time.Minute, logger)
		if err := scheduler.Register(cfg.Jobs.StaleSensorCron, "stale-sensors", func() {
			if err := staleJob.Run(context.Background()); err != nil {
				logger.Error("Stale sensor job failed", zap.Error(err))
			}
		}); err != nil {
			return nil, err
		}

		retentionJob := jobs.NewRetentionJob(alertsRepo,
			time.Duration(cfg.Jobs.RetentionDays)*24*time.Hour, logger)
		if err := scheduler.Register(cfg.Jobs.RetentionCron, "alert-retention", func() {
			if err := retentionJob.Run(context.Background()); err != nil {
				logger.Error("Retention job failed", zap.Error(err))
			}
		}); err != nil {
			return nil, err
		}

		expiryJob := jobs.NewExpiryJob(alertsRepo,
			time.Duration(cfg.Jobs.ExpireAfterDays)*24*time.Hour, logger)
		if err := scheduler.Register(cfg.Jobs.ExpiryCron, "alert-expiry", func() {
			if err := expiryJob.Run(context.Background()); err != nil {
				logger.Error("Expiry job failed", zap.Error(err))
			}
		}); err != nil {
			return nil, err
		}

		reportJob := jobs.NewReportJob(alertsRepo, cfg.Jobs.ReportDir,
			time.Duration(cfg.Jobs.ReportWindowHours)*time.Hour, logger)
		if err := scheduler.Register(cfg.Jobs.ReportCron, "alert-report", func() {
			if _, err := reportJob.Run(context.Background()); err != nil {
				logger.Error("Report job failed", zap.Error(err))
			}
		}); err != nil {
			return nil, err
		}
	}

	return &Server{
		config:      cfg,
		db:          db,
		redisClient: redisClient,
		logger:      logger,
		httpServer:  httpServer,
		consumer:    streamConsumer,
		scheduler:   scheduler,
	}, nil
}

// Start 启动 HTTP / 消费者 / 定时任务（阻塞直到 ctx 取消或出错）
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting alert service",
		zap.String("addr", s.config.HTTP.Addr),
	)

	errChan := make(chan error, 2)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	go func() {
		if err := s.consumer.Start(ctx); err != nil {
			errChan <- fmt.Errorf("stream consumer error: %w", err)
		}
	}()

	s.scheduler.Start()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return err
	}
}

// Stop 优雅关闭
func (s *Server) Stop() error {
	s.logger.Info("Stopping alert service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Failed to shutdown http server", zap.Error(err))
	}

	s.scheduler.Stop()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}
