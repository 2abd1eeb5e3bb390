package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seu-repo/ocpp-csms/internal/adapter/cache"
	"github.com/seu-repo/ocpp-csms/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/ocpp-csms/internal/adapter/http/fiber/middleware"
	"github.com/seu-repo/ocpp-csms/internal/adapter/queue"
	"github.com/seu-repo/ocpp-csms/internal/adapter/storage/postgres"
	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/ocpp"
	"github.com/seu-repo/ocpp-csms/internal/registry"
	"github.com/seu-repo/ocpp-csms/internal/service/charger"
	"github.com/seu-repo/ocpp-csms/internal/service/charging"
	"github.com/seu-repo/ocpp-csms/internal/service/command"
	"github.com/seu-repo/ocpp-csms/internal/service/history"
	"github.com/seu-repo/ocpp-csms/internal/session"
	"github.com/seu-repo/ocpp-csms/internal/transport"
	"github.com/seu-repo/ocpp-csms/pkg/config"

	// Import metrics to register them
	_ "github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
)

// Exit codes: 1 invalid configuration, 2 persistence unavailable,
// 3 no transport could be started.
const (
	exitConfig      = 1
	exitPersistence = 2
	exitTransport   = 3
)

func main() {
	// 1. Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(exitConfig)
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("Invalid configuration: %v", err)
		os.Exit(exitConfig)
	}

	// 2. Logger
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		os.Exit(exitConfig)
	}
	defer logger.Sync()

	logger.Info("Starting CSMS",
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	// 3. PostgreSQL
	db, err := postgres.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		os.Exit(exitPersistence)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get underlying SQL DB", zap.Error(err))
		os.Exit(exitPersistence)
	}
	defer sqlDB.Close()

	if cfg.Database.AutoMigrate {
		if err := postgres.RunMigrations(db); err != nil {
			logger.Error("Failed to run migrations", zap.Error(err))
			os.Exit(exitPersistence)
		}
	}

	// 4. Redis (cluster mode only)
	var (
		rdb   *redis.Client
		dist  *registry.Distributed
		relay *registry.Relay
	)
	local := registry.NewLocal()
	var connReg transport.Registry = registry.NewStandalone(local)
	if cfg.Cluster.Enabled {
		client, err := cache.NewClient(cfg.Redis, logger)
		if err != nil {
			logger.Error("Failed to connect to Redis", zap.Error(err))
			os.Exit(exitPersistence)
		}
		rdb = client
		defer client.Close()

		dist = registry.NewDistributed(local, client, cfg.Cluster.NodeID, cfg.Cluster.RegistryTTL, logger)
		relay = registry.NewRelay(client, dist.NodeID(), cfg.Cluster.ResponsePollInterval, logger)
		connReg = dist
		logger.Info("Cluster mode enabled", zap.String("node_id", dist.NodeID()))
	}

	// 5. Message queue (optional)
	mq, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Warn("Message queue unavailable, events disabled", zap.Error(err))
		mq = nil
	}
	if mq != nil {
		defer mq.Close()
	}

	// 6. Repositories
	guard := postgres.NewGuard(cfg.CircuitBreaker, logger)
	chargerRepo := postgres.NewChargerRepository(db, guard, logger)
	transactionRepo := postgres.NewTransactionRepository(db, guard, logger)
	orderRepo := postgres.NewOrderRepository(db, guard, logger)
	meterValueRepo := postgres.NewMeterValueRepository(db, guard, logger)
	historyRepo := postgres.NewHistoryRepository(db, guard, logger)

	// 7. Services
	sessions := session.NewStore()
	recorder := history.NewRecorder(historyRepo, logger)
	chargingService := charging.NewService(transactionRepo, orderRepo, meterValueRepo, sessions, logger)
	chargerService := charger.NewService(chargerRepo, transactionRepo, historyRepo, logger)

	// 8. Protocol dispatcher and handlers
	dispatcher := ocpp.NewDispatcher(logger)
	ocppHandlers := ocpp.NewHandlers(sessions, chargerRepo, chargingService, recorder, mq, ocpp.Defaults{
		HeartbeatInterval: cfg.OCPP.HeartbeatInterval,
		ChargingRateKW:    cfg.OCPP.DefaultChargingRateKW,
		PricePerKWh:       cfg.OCPP.DefaultPricePerKWh,
		ConnectorType:     cfg.OCPP.DefaultConnectorType,
	}, logger)
	ocppHandlers.Register(dispatcher)

	// 9. Transports
	var adapters []transport.Adapter
	var httpPull *transport.HTTPPullAdapter
	if cfg.Transports.WebsocketEnabled {
		ws := transport.NewWebsocketAdapter(
			fmt.Sprintf(":%d", cfg.OCPP.Port),
			cfg.OCPP.WebsocketPingInterval,
			cfg.OCPP.WebsocketPongWait,
			connReg,
			logger,
		)
		ws.OnDisconnect = func(chargerID string, pingTimeout bool) {
			sessions.MarkOffline(chargerID)
			dispatcher.Release(chargerID)
			if !pingTimeout {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			ch, err := chargerRepo.FindByID(ctx, chargerID)
			if err != nil || ch == nil {
				return
			}
			if _, err := recorder.RecordStatusChange(ctx, ch, domain.StatusOffline, "", time.Now()); err != nil {
				logger.Warn("Failed to record offline transition",
					zap.String("charger_id", chargerID), zap.Error(err))
			}
		}
		adapters = append(adapters, ws)
	}
	if cfg.Transports.HTTPEnabled {
		httpPull = transport.NewHTTPPullAdapter(cfg.Transports.HTTPFreshness, connReg, logger)
		adapters = append(adapters, httpPull)
	}
	if cfg.Transports.MQTTEnabled {
		mqttAdapter := transport.NewMQTTAdapter(transport.MQTTOptions{
			BrokerHost: cfg.MQTT.BrokerHost,
			BrokerPort: cfg.MQTT.BrokerPort,
			ClientID:   cfg.MQTT.ClientID,
			Username:   cfg.MQTT.Username,
			Password:   cfg.MQTT.Password,
			KeepAlive:  cfg.MQTT.KeepAlive,
			QoS:        cfg.MQTT.QoS,
		}, connReg, logger)
		adapters = append(adapters, mqttAdapter)
	}

	manager := transport.NewManager(cfg.Transports.Priority, logger, adapters...)
	manager.SetHandler(dispatcher.Dispatch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Start(ctx); err != nil {
		if errors.Is(err, transport.ErrNoTransportStarted) {
			logger.Error("No transport could be started", zap.Error(err))
			os.Exit(exitTransport)
		}
		logger.Error("Transport startup failed", zap.Error(err))
		os.Exit(exitTransport)
	}

	// 10. Outbound command dispatcher
	commandService := command.NewDispatcher(manager, dist, relay, chargerRepo, chargingService, recorder, command.Defaults{
		ChargingRateKW:       cfg.OCPP.DefaultChargingRateKW,
		PricePerKWh:          cfg.OCPP.DefaultPricePerKWh,
		CallTimeout:          cfg.OCPP.CallTimeout,
		SimulateOnDisconnect: cfg.OCPP.SimulateOnDisconnect,
	}, logger)

	// 11. Cross-node relay consumer
	if relay != nil {
		go func() {
			if err := relay.Serve(ctx, dist.IsLocal, commandService.ExecLocal); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Relay consumer stopped", zap.Error(err))
			}
		}()
	}

	// 12. HTTP server
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	app.Use(recover.New())
	if cfg.CORS.Enabled {
		app.Use(cors.New(cors.Config{
			AllowOrigins: strings.Join(cfg.CORS.AllowedOrigins, ","),
			AllowMethods: strings.Join(cfg.CORS.AllowedMethods, ","),
			AllowHeaders: strings.Join(cfg.CORS.AllowedHeaders, ","),
		}))
	}

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := sqlDB.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Database not ready")
		}
		if rdb != nil {
			if err := rdb.Ping(c.Context()).Err(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).SendString("Redis not ready")
			}
		}
		return c.SendString("Ready")
	})

	if cfg.Prometheus.Enabled {
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}

	if httpPull != nil {
		httpPull.RegisterRoutes(app)
	}

	v1 := app.Group("/api/v1")
	// In cluster mode the admin view consults Redis ownership so
	// chargers attached to other nodes still show connected.
	var ownerView handlers.OwnerResolver
	if dist != nil {
		ownerView = dist
	}
	handlers.NewChargerHandler(chargerService, local, ownerView, logger).RegisterRoutes(v1)
	handlers.NewCommandHandler(commandService, logger).RegisterRoutes(v1)
	handlers.NewOrderHandler(orderRepo, transactionRepo, logger).RegisterRoutes(v1)

	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Error("HTTP Server failed", zap.Error(err))
			stop()
		}
	}()

	// 13. Graceful shutdown
	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	manager.Stop(shutdownCtx)
	dispatcher.Close()
	if dist != nil {
		dist.Shutdown(shutdownCtx)
	}

	logger.Info("Server exited gracefully")
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Output != "" {
		zc.OutputPaths = []string{cfg.Output}
	}
	return zc.Build()
}
