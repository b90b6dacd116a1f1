package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"dispatch-backend/internal/config"
	"dispatch-backend/internal/domain"
	"dispatch-backend/internal/infrastructure/broker"
	"dispatch-backend/internal/infrastructure/repo"
	"dispatch-backend/internal/logging"
	"dispatch-backend/internal/metrics"
	"dispatch-backend/internal/server"
	"dispatch-backend/internal/usecase"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type rootOptions struct {
	configPath string
	cfg        config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	defaults := config.EnvDefaults()

	cmd := &cobra.Command{
		Use:           "dispatch",
		Short:         "Order dispatch and tracking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(opts.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", os.Getenv("DISPATCH_CONFIG"), "path to a YAML config file")
	f.String("env", defaults.Env, "deployment environment")
	f.Int("port", defaults.Port, "HTTP listen port")
	f.String("store", defaults.StoreDriver, "store backend (memory|postgres|sqlite)")
	f.String("database-url", "", "postgres DSN or sqlite file path")
	f.String("amqp-url", "", "RabbitMQ URL for notification fan-out")
	f.String("jwt-secret", "", "enable bearer auth with this HS256 secret")
	f.Bool("log-json", defaults.LogJSON, "log as JSON")
	f.String("log-level", defaults.LogLevel, "log level (debug|info|warn|error)")

	cmd.AddCommand(newServeCommand(opts), newMigrateCommand(opts), newTokenCommand(opts))
	return cmd
}

// applyFlags overrides file and environment settings with flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("env") {
		cfg.Env, _ = f.GetString("env")
	}
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("store") {
		cfg.StoreDriver, _ = f.GetString("store")
	}
	if f.Changed("database-url") {
		cfg.DatabaseURL, _ = f.GetString("database-url")
	}
	if f.Changed("amqp-url") {
		cfg.AMQPURL, _ = f.GetString("amqp-url")
	}
	if f.Changed("jwt-secret") {
		cfg.JWTSecret, _ = f.GetString("jwt-secret")
	}
	if f.Changed("log-json") {
		cfg.LogJSON, _ = f.GetBool("log-json")
	}
	if f.Changed("log-level") {
		cfg.LogLevel, _ = f.GetString("log-level")
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), opts.cfg)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if cfg.StoreDriver == "memory" {
				return errors.New("migrate needs --store postgres or sqlite")
			}
			log := logging.New(os.Stderr, cfg.LogJSON, cfg.LogLevel, cfg.Env)
			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			log.Info("schema up to date", "store", cfg.StoreDriver)
			return nil
		},
	}
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var role, subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an admin or driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			auth := &usecase.AuthService{JWTSecret: opts.cfg.JWTSecret, TTL: ttl}
			if !auth.Enabled() {
				return errors.New("token needs --jwt-secret or DISPATCH_JWT_SECRET")
			}
			tok, err := auth.Issue(domain.Actor{ID: subject, Type: domain.ActorType(role)})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(domain.ActorAdmin), "token role (admin|driver)")
	cmd.Flags().StringVar(&subject, "subject", "admin", "actor id carried in the sub claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 7*24*time.Hour, "token lifetime")
	return cmd
}

func serve(parent context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.New(os.Stdout, cfg.LogJSON, cfg.LogLevel, cfg.Env)
	slog.SetDefault(log)
	b, _ := json.Marshal(cfg)
	log.Info("starting", "config", string(b))

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	m := metrics.New()
	var pub usecase.Publisher
	if cfg.AMQPURL != "" {
		p, err := broker.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
		if err != nil {
			return err
		}
		defer p.Close()
		pub = p
		log.Info("notification fan-out enabled", "exchange", cfg.AMQPExchange)
	}

	drivers := &usecase.DriverService{Repo: st, Log: log}
	srv := server.New(cfg, server.Deps{
		Store:         st,
		Orders:        &usecase.OrderService{Repo: st, Publisher: pub, Observer: m, Log: log},
		Drivers:       drivers,
		Notifications: &usecase.NotificationService{Repo: st, Publisher: pub, Log: log},
		Auth:          &usecase.AuthService{Drivers: drivers, JWTSecret: cfg.JWTSecret},
		Metrics:       m,
		Log:           log,
	})
	hs := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", "addr", hs.Addr)
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return hs.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (usecase.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		return repo.NewMemoryRepo(), nil
	case "postgres", "sqlite":
		open := repo.NewPostgresRepo
		if cfg.StoreDriver == "sqlite" {
			open = repo.NewSQLiteRepo
		}
		st, err := open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
