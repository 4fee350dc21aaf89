package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jobvine/sentinel/internal/config"
	"github.com/jobvine/sentinel/internal/database"
	"github.com/jobvine/sentinel/internal/logger"
	"github.com/jobvine/sentinel/internal/sentinel"
	"github.com/jobvine/sentinel/internal/server"
	"github.com/jobvine/sentinel/internal/services"
	"github.com/jobvine/sentinel/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Log to stdout and a rotated file.
	logDir := filepath.Join(filepath.Dir(cfg.DatabasePath), "logs")
	_ = os.MkdirAll(logDir, 0o755)
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "sentinel.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.Environment == "development", io.MultiWriter(os.Stdout, rotator))

	logger.Log().Infof("starting %s %s", version.Name, version.Full())

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		logger.Log().WithError(err).Fatal("load policy")
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Log().WithError(err).Fatal("open database")
	}

	archive, err := services.NewArchiveService(db)
	if err != nil {
		logger.Log().WithError(err).Fatal("start event archive")
	}
	defer archive.Close()

	alerts := services.NewAlertService(cfg.AlertURLs)

	svc := sentinel.NewService(sentinel.Options{
		Whitelist:    policy.Whitelist,
		RatePolicies: policy.RatePolicies,
		Alert:        alerts.Send,
		Archive:      archive.Enqueue,
		Reports:      archive,
	})
	if err := svc.StartSweeps(cfg.SweepInterval); err != nil {
		logger.Log().WithError(err).Fatal("start maintenance sweeps")
	}
	defer svc.Stop()

	srv := server.New(svc, archive, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log().Infof("listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil {
		logger.Log().WithError(err).Fatal("server error")
	}
}
