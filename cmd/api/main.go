package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/NewsDigest/internal/api"
	"github.com/LJTian/NewsDigest/internal/app"
	"github.com/LJTian/NewsDigest/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, closer, err := app.NewLogger(cfg.AppEnv, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer closer.Close()

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("配置验证失败")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init app failed")
	}
	defer a.Close()

	if a.LLM != nil {
		if err := a.LLM.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("llm ping failed, rule-based analysis will be used on errors")
		}
	}

	// 自检失败只告警，服务照常启动
	if report := a.Service.SelfTest(ctx); !report.Success {
		logger.Warn().Interface("report", report).Msg("self test failed")
	} else {
		logger.Info().Msg("self test passed")
	}

	if cfg.SchedulerEnabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("start scheduler failed")
		}
		defer a.Scheduler.Stop()
	}

	if cfg.AppEnv != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(&logger))
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}

	var store api.Store
	if a.Store != nil {
		store = a.Store
	}
	api.NewServer(a.Scheduler, a.Service, store, &logger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting api server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api server exited")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api server shutdown failed")
	}
}
