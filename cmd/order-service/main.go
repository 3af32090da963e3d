// cmd/order-service/main.go
package main

import (
	"context"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"storefront/internal/pkg/bootstrap"
	"storefront/internal/pkg/httpclient"
	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/mq"
	"storefront/internal/pkg/redis"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/application/placement"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure"
	"storefront/internal/service/order/infrastructure/adapter"
	"storefront/internal/service/order/interfaces"
	"storefront/internal/service/order/port"
)

const serviceName = "order-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/order-service.yaml"
	}
	if _, err := os.Stat(configPath); err != nil {
		configPath = ""
	}

	cfg, err := bootstrap.Init(configPath)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to load config")
	}
	logger.Init(serviceName, cfg.App.LogLevel, cfg.App.PrettyLog)

	tracer := otel.Tracer(serviceName)
	var cleanups []func(ctx context.Context) error

	// 1. 存储
	var (
		store   domain.Store
		queries domain.OrderQueryRepository
	)
	switch cfg.App.StoreDriver {
	case "memory":
		mem := infrastructure.NewMemoryStore(cfg.Infra.MySQL.LockWaitTimeout)
		store, queries = mem, mem
		logger.L().Warn().Msg("using in-memory store, data is lost on restart")
	default:
		db, err := infrastructure.OpenMySQL(cfg.Infra.MySQL)
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to connect to mysql")
		}
		if cfg.Infra.MySQL.AutoMigrate {
			if err := infrastructure.AutoMigrate(db); err != nil {
				logger.L().Fatal().Err(err).Msg("failed to migrate schema")
			}
		}
		store, queries = infrastructure.NewGormStore(db), infrastructure.NewGormOrderQueryRepository(db)
		cleanups = append(cleanups, closeDB(db))
	}

	// 2. 出站适配器
	payment := adapter.NewPaymentHTTPAdapter(
		httpclient.NewClient(tracer, cfg.Infra.Payment.Timeout),
		cfg.Infra.Payment.AuthorizeURL,
		cfg.Infra.Payment.VoidURL,
	)

	var cart port.CartProvider
	if cfg.App.FeatureFlags.UseRedisCart {
		redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to initialize redis client")
		}
		cartAdapter, err := adapter.NewCartRedisAdapter(redisClient)
		if err != nil {
			logger.L().Fatal().Err(err).Msg("failed to initialize cart adapter")
		}
		cart = cartAdapter
		cleanups = append(cleanups, func(context.Context) error { return redisClient.Close() })
	}

	var publisher port.OrderEventPublisher
	if cfg.App.FeatureFlags.PublishOrderEvents {
		writer := mq.NewKafkaWriter(strings.Split(cfg.Infra.Kafka.Brokers, ","), cfg.Infra.Kafka.OrderPlacedTopic)
		producer := infrastructure.NewOrderEventProducer(writer)
		publisher = producer
		cleanups = append(cleanups, func(context.Context) error { return producer.Close() })
	}

	// 3. 应用服务
	coordinator := placement.NewCoordinator(store, tracer)
	checkout := application.NewOrderApplicationService(coordinator, payment, cart, publisher, cfg.App.ProcessingTimeout, tracer)
	queryService := application.NewOrderQueryService(queries, tracer)
	handler := interfaces.NewOrderHandler(checkout, queryService)

	// 4. 启动服务
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        cfg.App.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		Cleanups: cleanups,
	})
}

func closeDB(db *gorm.DB) func(context.Context) error {
	return func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
}
