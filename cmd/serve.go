package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hwkim3330/webxr/config"
	"github.com/hwkim3330/webxr/httpserver"
	"github.com/hwkim3330/webxr/hub"
	"github.com/hwkim3330/webxr/metrics"
	"github.com/hwkim3330/webxr/protocol"
)

var (
	flagConfigFile     string
	flagEnvFile        string
	flagListen         string
	flagStaticDir      string
	flagDefaultRoom    string
	flagLogLevel       string
	flagLogFormat      string
	flagAllowedOrigins []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the signaling server",
	Long: `Run the signaling server.

Configuration is layered: built-in defaults, then the YAML file given by
--config, then environment variables (a .env file is loaded first when
present), then flags.

Examples:
  webxr-signal serve
  webxr-signal serve --listen :8080 --static-dir ./public
  PORT=3000 LOG_LEVEL=debug webxr-signal serve`,
	RunE: runServe,
}

func addServeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&flagConfigFile, "config", "c", "", "path to a YAML config file")
	f.StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	f.StringVarP(&flagListen, "listen", "l", "", "listen address (default "+config.DefaultListenAddr+")")
	f.StringVar(&flagStaticDir, "static-dir", "", "directory of client pages served at / (default "+config.DefaultStaticDir+")")
	f.StringVar(&flagDefaultRoom, "default-room", "", "room used when a join names none (default "+config.DefaultRoom+")")
	f.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&flagLogFormat, "log-format", "", "text or json")
	f.StringSliceVar(&flagAllowedOrigins, "allowed-origins", nil, "origins allowed to open a websocket (* for any)")
}

func init() {
	addServeFlags(serveCmd)
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil && cmd.Flags().Changed("env-file") {
			return config.Config{}, fmt.Errorf("load env file: %w", err)
		} else if err != nil {
			slog.Debug("no .env file found, using environment variables")
		}
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.ListenAddr = flagListen
	}
	if flags.Changed("static-dir") {
		cfg.StaticDir = flagStaticDir
	}
	if flags.Changed("default-room") {
		cfg.DefaultRoom = flagDefaultRoom
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = flagLogFormat
	}
	if flags.Changed("allowed-origins") {
		cfg.AllowedOrigins = flagAllowedOrigins
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	rooms := hub.New()
	registry := hub.NewRegistry()
	m := metrics.New()
	handler := protocol.NewHandler(rooms, registry, m, cfg.DefaultRoom)

	srv := httpserver.New(cfg, logger, httpserver.Deps{
		Rooms:   rooms,
		Handler: handler,
		Metrics: m,
	})

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	logger.Info("server starting",
		"listen_addr", ln.Addr().String(),
		"static_dir", cfg.StaticDir,
		"default_room", cfg.DefaultRoom,
		"allowed_origins", cfg.AllowedOrigins,
		"ice_servers", len(cfg.ICEServers),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("server shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
