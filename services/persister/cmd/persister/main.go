package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/YaganovValera/market-stream/common/configloader"
	"github.com/YaganovValera/market-stream/common/logger"
	"github.com/YaganovValera/market-stream/services/persister/internal/app"
	"github.com/YaganovValera/market-stream/services/persister/internal/config"
)

type options struct {
	configPath  string
	envFile     string
	printConfig bool
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "path to config file (optional)")
	fs.StringVar(&o.envFile, "env-file", ".env", "dotenv file with PERSISTER_* variables")
	fs.BoolVar(&o.printConfig, "print-config", false, "print the effective config to stderr")
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:           "persister",
		Short:         "Stores streamed entities in PostgreSQL or SQLite",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := configloader.LoadDotEnv(opts.envFile); err != nil {
				return fmt.Errorf("env file: %w", err)
			}
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if opts.printConfig {
				configloader.PrintConfig(cfg)
			}

			log, err := logger.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.Sugar().Infow("starting service",
				"service.name", cfg.ServiceName,
				"service.version", cfg.ServiceVersion,
				"source", cfg.Source.Type,
				"storage", cfg.Storage.Driver,
			)
			if err := app.Run(ctx, cfg, os.Stdin, log); err != nil {
				log.Sugar().Errorw("application exited with error", "error", err)
				return err
			}
			log.Sugar().Infow("shutdown complete")
			return nil
		},
	}

	opts.register(root.Flags())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "persister: %v\n", err)
		os.Exit(1)
	}
}
