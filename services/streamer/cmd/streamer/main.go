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
	"github.com/YaganovValera/market-stream/services/streamer/internal/app"
	"github.com/YaganovValera/market-stream/services/streamer/internal/config"
)

type options struct {
	configPath  string
	envFile     string
	printConfig bool
}

func (o *options) register(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "path to config file (optional)")
	fs.StringVar(&o.envFile, "env-file", ".env", "dotenv file with STREAMER_* variables")
	fs.BoolVar(&o.printConfig, "print-config", false, "print the effective config to stderr")
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:           "streamer",
		Short:         "Streams QUOTE updates and writes one JSON entity per line",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// 1. .env (если есть) и конфиг
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

			// 2. Логгер (stderr: stdout занят сущностями)
			log, err := logger.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			// 3. Контекст с отменой по сигналам
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.Sugar().Infow("starting service",
				"service.name", cfg.ServiceName,
				"service.version", cfg.ServiceVersion,
			)
			if err := app.Run(ctx, cfg, os.Stdout, log); err != nil {
				log.Sugar().Errorw("application exited with error", "error", err)
				return err
			}
			log.Sugar().Infow("shutdown complete")
			return nil
		},
	}

	opts.register(root.Flags())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "streamer: %v\n", err)
		os.Exit(1)
	}
}
