// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"storefront/internal/pkg/logger"
	"storefront/internal/pkg/tracing"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Config *Config
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 一个函数，允许每个服务注册自己独特的 HTTP 路由
	// Cleanups 在 HTTP 服务关闭后按后进先出的顺序执行
	Cleanups []func(ctx context.Context) error
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()

	// 1. 初始化核心组件
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint, cfg.Infra.Jaeger.SampleRatio)
	if err != nil {
		logger.L().Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. 创建并启动 HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
	}
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(info.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.L().Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 3. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 阻塞主 goroutine，直到接收到退出信号
	<-quit
	logger.L().Info().Msgf("Shutting down service %s...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// a. 先停止接收新请求，等待进行中的下单完成
	if err := server.Shutdown(ctx); err != nil {
		logger.L().Error().Err(err).Msg("Error shutting down http server")
	} else {
		logger.L().Info().Msg("HTTP server shut down.")
	}

	// b. 释放数据库、Redis、Kafka 等资源
	for i := len(info.Cleanups) - 1; i >= 0; i-- {
		if err := info.Cleanups[i](ctx); err != nil {
			logger.L().Error().Err(err).Msg("Error during cleanup")
		}
	}

	// c. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		logger.L().Error().Err(err).Msg("Error shutting down tracer provider")
	}

	logger.L().Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}
