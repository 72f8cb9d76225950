package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lobbyd/internal/broker"
	"github.com/DoyleJ11/lobbyd/internal/config"
	"github.com/DoyleJ11/lobbyd/internal/history"
	"github.com/DoyleJ11/lobbyd/internal/httpapi"
	"github.com/DoyleJ11/lobbyd/internal/hub"
	"github.com/DoyleJ11/lobbyd/internal/launcher"
	"github.com/DoyleJ11/lobbyd/internal/logging"
	"github.com/DoyleJ11/lobbyd/internal/metrics"
	"github.com/DoyleJ11/lobbyd/internal/ports"
	"github.com/DoyleJ11/lobbyd/internal/tcp"
	"github.com/DoyleJ11/lobbyd/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "lobbyd: %s\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lobbyd",
		Short: "Matchmaking broker that pairs players into lobbies and launches game servers",
		Long: `lobbyd accepts create/join/ready/start/list/exit requests over TCP
(and websocket on the admin port), tracks lobbies in memory, leases a
game port per lobby and spawns a dedicated game server when a lobby starts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return run(cmd.Context(), cfg, log)
		},
	}

	f := cmd.Flags()
	f.StringSlice("env-file", nil, "dotenv files to load (default .env)")
	f.String("broker-addr", "", "TCP listen address for the broker protocol")
	f.String("admin-addr", "", "HTTP listen address for health, lobbies, metrics and websocket")
	f.Int("min-port", 0, "first game server port (inclusive)")
	f.Int("max-port", 0, "end of the game server port range (exclusive)")
	f.String("game-server", "", "path to the game server executable")
	f.Duration("start-reset", 0, "how long a started lobby keeps answering ready polls with the start notice")
	f.String("log-level", "", "debug, info, warn or error")
	f.String("log-format", "", "json or console")
	f.String("database-url", "", "Postgres DSN for match history (disabled when empty)")
	return cmd
}

// loadConfig reads the environment and lets explicitly set flags win.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	f := cmd.Flags()
	files, _ := f.GetStringSlice("env-file")
	cfg, err := config.Load(files...)
	if err != nil {
		return cfg, err
	}

	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	str("broker-addr", &cfg.BrokerAddr)
	str("admin-addr", &cfg.AdminAddr)
	num("min-port", &cfg.MinPort)
	num("max-port", &cfg.MaxPort)
	str("game-server", &cfg.GameServer)
	if f.Changed("start-reset") {
		cfg.StartReset, _ = f.GetDuration("start-reset")
	}
	str("log-level", &cfg.LogLevel)
	str("log-format", &cfg.LogFormat)
	str("database-url", &cfg.DatabaseURL)

	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) (err error) {
	pool, err := ports.New(cfg.MinPort, cfg.MaxPort)
	if err != nil {
		return err
	}

	rec, closeRec, err := openHistory(cfg, log)
	if err != nil {
		return err
	}
	queue := history.NewAsync(rec, log, 64)

	m := metrics.New()
	// the hub outlives the transports so disconnect cleanup still reaches it
	h := hub.New(context.WithoutCancel(ctx), hub.Config{
		Pool:              pool,
		Launcher:          launcher.NewExec(cfg.GameServer, cfg.GameServerArgs, log),
		StartedResetDelay: cfg.StartReset,
		Metrics:           m,
		History:           queue,
		Log:               log,
	})
	d := broker.NewDispatcher(h, m, log)

	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = multierr.Combine(err, h.Stop(sctx), queue.Close(sctx), closeRec())
		log.Info("broker stopped", zap.Error(err))
	}()

	ln, err := net.Listen("tcp", cfg.BrokerAddr)
	if err != nil {
		return fmt.Errorf("listen broker: %w", err)
	}

	wsSrv := ws.NewServer(d, nil, log)
	admin := &http.Server{
		Addr: cfg.AdminAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Lobbies: h,
			Metrics: m.Handler(),
			WS:      wsSrv,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("lobbyd starting",
		zap.String("broker_addr", cfg.BrokerAddr),
		zap.String("admin_addr", cfg.AdminAddr),
		zap.Int("min_port", cfg.MinPort),
		zap.Int("max_port", cfg.MaxPort),
		zap.String("game_server", cfg.GameServer),
		zap.Bool("history", cfg.DatabaseURL != ""))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return tcp.New(d, log).Serve(gctx, ln)
	})
	g.Go(func() error {
		if err := admin.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		// hijacked websocket connections are invisible to admin.Shutdown
		return multierr.Combine(admin.Shutdown(sctx), wsSrv.Shutdown(sctx))
	})
	return g.Wait()
}

func openHistory(cfg config.Config, log *zap.Logger) (history.Recorder, func() error, error) {
	if cfg.DatabaseURL == "" {
		return history.Nop{}, func() error { return nil }, nil
	}
	pg, err := history.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open match history: %w", err)
	}
	log.Info("match history enabled")
	return pg, pg.Close, nil
}
