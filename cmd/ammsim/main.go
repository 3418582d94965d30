package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "ammsim",
		Short:        "Constant-product AMM engine and market simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE:  runServe,
	}

	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().Float64("default-fee", 0.003, "fee rate for new pools")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a market scenario against a fresh pool",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("scenario", "stable", "scenario (stable, high_volatility, large_trades)")
	simulateCmd.Flags().Int("steps", 0, "step count override (0 keeps the scenario default)")
	simulateCmd.Flags().Int64("seed", 1, "random seed")
	simulateCmd.Flags().String("token-a", "ETH", "first token symbol")
	simulateCmd.Flags().String("token-b", "USDC", "second token symbol")
	simulateCmd.Flags().Float64("initial-a", 1000, "initial reserve of token A")
	simulateCmd.Flags().Float64("initial-b", 2000000, "initial reserve of token B")
	simulateCmd.Flags().Float64("stop-loss-pct", 0.2, "drawdown fraction that halts the pool")
	simulateCmd.Flags().String("out", "./data/sim_steps.jsonl", "output JSONL path")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN for run persistence")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
