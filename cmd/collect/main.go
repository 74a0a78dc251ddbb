package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/NewsDigest/internal/app"
	"github.com/LJTian/NewsDigest/internal/config"
)

// 一个仅执行一次采集任务的命令行入口：适合手动触发采集，结果以 JSON 输出到 stdout
func main() {
	selfTest := flag.Bool("test", false, "只运行系统自检")
	flag.Parse()

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

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	ok := true
	if *selfTest {
		report := a.Service.SelfTest(ctx)
		ok = report.Success
		_ = enc.Encode(report)
	} else {
		res := a.Service.Run(ctx)
		ok = res.Success
		_ = enc.Encode(res)
	}
	if !ok {
		a.Close()
		_ = closer.Close()
		os.Exit(1)
	}
}
