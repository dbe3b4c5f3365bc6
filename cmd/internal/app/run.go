package app

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
)

// Run loads configuration from the environment, builds the App and serves
// until SIGINT or SIGTERM. cmd/sessiond only maps the returned error to an
// exit code.
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	log := NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("sessiond.boot", "version", buildVersion(), "pid", os.Getpid())

	a, err := New(cfg, log)
	if err != nil {
		log.Error("sessiond.boot.fail", "err", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}

func buildVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "devel"
	}
	return bi.Main.Version
}
