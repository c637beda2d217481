package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crimemap/internal/server"
)

var (
	servePort    int
	servePreload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the crime map JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		if servePreload {
			years := env.Registry.Years()
			if err := env.Pipeline.Preload(ctx, years, 4); err != nil {
				return err
			}
			zap.L().Info("snapshots preloaded", zap.Ints("years", years))
		}

		if cfg.Data.Watch {
			go func() {
				err := env.Registry.Watch(ctx, func() {
					env.Pipeline.Invalidate()
					zap.L().Info("dataset changed, snapshot cache invalidated",
						zap.Ints("years", env.Registry.Years()))
				})
				if err != nil {
					zap.L().Warn("dataset watcher stopped", zap.Error(err))
				}
			}()
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv, err := server.New(env.Pipeline, env.Registry, env.Set, env.Table, server.Options{
			Addr:           fmt.Sprintf(":%d", port),
			AllowedOrigins: cfg.Server.AllowedOrigins,
			RateLimit:      rate.Limit(cfg.Server.RateLimit),
			RateBurst:      cfg.Server.RateBurst,
		})
		if err != nil {
			return err
		}

		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&servePreload, "preload", true, "build all year snapshots before accepting requests")
	rootCmd.AddCommand(serveCmd)
}
