package commands

import (
	"context"
	"log/slog"
	"time"

	"londoncinemas/internal/api"
	"londoncinemas/internal/components/chrono"
	"londoncinemas/internal/components/telemetry"
	"londoncinemas/lib/serviceutil"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var servePort *int

func init() {
	servePort = serveCmd.Flags().Int("port", 0, "The port to listen on, defaults to http.port in the config.")
	rootCmd.AddCommand(serveCmd)
}

// openCache returns nil when redis is not configured or unreachable, the
// API then serves every request from the snapshot.
func openCache(ctx context.Context, cfg Config) api.Cache {
	if cfg.Http.Cache.RedisAddr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Http.Cache.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := rdb.Ping(pingCtx).Err()
	if err != nil {
		slog.Warn("redis unreachable, response cache disabled", "addr", cfg.Http.Cache.RedisAddr, "err", err)
		rdb.Close()
		return nil
	}

	ttl, _ := cfg.cacheTtl()
	slog.Info("response cache enabled", "addr", cfg.Http.Cache.RedisAddr, "ttl", ttl)
	return api.NewRedisCache(rdb, ttl)
}

var serveCmd = &cobra.Command{
	Use:   "serve [--port <port>]",
	Short: "Serves the latest snapshot over HTTP, optionally refreshing it on a schedule.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := loadConfig(*configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if *servePort > 0 {
			cfg.Http.Port = *servePort
		}

		a, err := newApp(cfg)
		if err != nil {
			serviceutil.Fatal("failed to initialize venues", err)
		}
		err = telemetry.InstrumentPerfStats()
		if err != nil {
			slog.Warn("failed to register perf stats", "err", err)
		}

		if cfg.RefreshCron != "" {
			scheduler := chrono.NewScheduler(a.time, a.tel)
			defer scheduler.Stop()

			agg := a.aggregator(cfg.DaysAhead)
			err = scheduler.Schedule("refresh", cfg.RefreshCron, func(ctx context.Context) error {
				_, err := agg.Run(ctx)
				return err
			})
			if err != nil {
				serviceutil.Fatal("failed to schedule refresh", err)
			}
			slog.Info("scheduled snapshot refresh", "cron", cfg.RefreshCron, "next", scheduler.Next())
		}

		cache := openCache(ctx, cfg)
		server := api.NewServer(a.store, a.registry.Cinemas, a.time, a.tel)
		e := server.Echo(api.Options{Cache: cache})

		err = serviceutil.StartEchoServer(ctx, cfg.Http.Port, e, 10*time.Second)
		if err != nil {
			serviceutil.Fatal("http server failed", err)
		}
	},
}
