package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ammsim/internal/amm"
	"ammsim/internal/api"
	"ammsim/internal/config"
	"ammsim/internal/risk"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := amm.NewEngine(amm.WithDefaultFee(cfg.DefaultFee))
	riskMgr := risk.NewManager(logger)
	server := api.NewServer(engine, riskMgr, logger)

	logger.Info("serve start",
		zap.String("addr", cfg.Addr),
		zap.Float64("default_fee", cfg.DefaultFee),
	)

	return server.Run(ctx, cfg.Addr)
}
