package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/acapella/kv_sdk_go/internal/config"
	"github.com/acapella/kv_sdk_go/internal/devseed"
	"github.com/acapella/kv_sdk_go/internal/server"
	"github.com/acapella/kv_sdk_go/pkg/kv/mock"
)

const shutdownTimeout = 5 * time.Second

type sandboxFlags struct {
	configFile string
	addr       string
	seed       string
	latency    time.Duration
	fail       string
	txTTL      time.Duration
	wait       time.Duration
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return newCommand(&sandboxFlags{})
}

func newCommand(flags *sandboxFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kv-sandbox",
		Short:         "Serve an in-memory key-value store over the store's HTTP protocol",
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, flags)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configFile, "config", "", "path to a TOML config file")
	f.StringVar(&flags.addr, "addr", ":12000", "listen address")
	f.StringVar(&flags.seed, "seed", "", "path to a JSON seed for the store")
	f.DurationVar(&flags.latency, "latency", 0, "artificial latency to inject per request")
	f.StringVar(&flags.fail, "fail", "", "failure injection (rate=<float>,code=<httpStatus>)")
	f.DurationVar(&flags.txTTL, "tx-ttl", mock.DefaultTransactionTTL, "how long a transaction lives without keep-alive")
	f.DurationVar(&flags.wait, "wait-timeout", mock.DefaultWaitTimeout, "default long-poll window")
	f.StringVar(&flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

// resolveConfig layers explicitly set flags over the config file.
func resolveConfig(cmd *cobra.Command, flags *sandboxFlags) (*config.SandboxConfig, error) {
	cfg := config.Default()
	if flags.configFile != "" {
		loaded, err := config.Load(flags.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	sb := cfg.Sandbox

	changed := cmd.Flags().Changed
	if changed("addr") {
		sb.Addr = flags.addr
	}
	if changed("seed") {
		sb.Seed = flags.seed
	}
	if changed("latency") {
		sb.Latency = config.NewDuration(flags.latency)
	}
	if changed("fail") {
		sb.Fail = flags.fail
	}
	if changed("tx-ttl") || sb.TransactionTTL.Duration == 0 {
		sb.TransactionTTL = config.NewDuration(flags.txTTL)
	}
	if changed("wait-timeout") || sb.WaitTimeout.Duration == 0 {
		sb.WaitTimeout = config.NewDuration(flags.wait)
	}
	if changed("log-level") {
		sb.LogLevel = flags.logLevel
	}
	for _, msg := range cfg.WarningMsgs {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", msg)
	}
	return &sb, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func newStore(cfg *config.SandboxConfig) (*mock.Store, error) {
	store := mock.New(
		mock.WithTransactionTTL(cfg.TransactionTTL.Duration),
		mock.WithDefaultWaitTimeout(cfg.WaitTimeout.Duration),
	)
	if cfg.Seed != "" {
		seed, err := devseed.Load(cfg.Seed)
		if err != nil {
			return nil, err
		}
		if err := store.Seed(seed); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newHandler(cfg *config.SandboxConfig, store *mock.Store, logger *zap.Logger) (http.Handler, error) {
	failCfg, err := parseFailConfig(cfg.Fail)
	if err != nil {
		return nil, errors.Wrap(err, "parse fail flag")
	}
	return server.New(store,
		server.WithLogger(logger),
		server.WithMiddleware(withFaults(cfg.Latency.Duration, failCfg)),
	), nil
}

func run(ctx context.Context, cfg *config.SandboxConfig) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	handler, err := newHandler(cfg, store, logger)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("kv-sandbox listening",
		zap.String("addr", cfg.Addr),
		zap.Duration("tx-ttl", cfg.TransactionTTL.Duration),
		zap.Duration("wait-timeout", cfg.WaitTimeout.Duration))
	fmt.Println()
	fmt.Println("export KV_RUNTIME_MODE=http")
	host := cfg.Addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	fmt.Printf("export KV_API_URL=http://%s\n", host)
	fmt.Println()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
