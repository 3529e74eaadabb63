package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dhruvsoni1802/browser-hub/internal/api"
	"github.com/dhruvsoni1802/browser-hub/internal/config"
	"github.com/dhruvsoni1802/browser-hub/internal/core"
	"github.com/dhruvsoni1802/browser-hub/internal/engine"
	"github.com/dhruvsoni1802/browser-hub/internal/mcp"
)

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

var port string

var rootCmd = &cobra.Command{
	Use:   "browser-hub",
	Short: "Browser automation hub with saved logins, stealth contexts and MCP tools",
	Long: `browser-hub keeps a headless and a headed Chromium running and hands out isolated,
session-seeded browser contexts over REST, a websocket relay and the Model Context Protocol.
It can also drive the user's own Chrome through its remote debugging endpoint.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API, the websocket relay and MCP over HTTP (default)",
	RunE:  runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP tools over stdio",
	RunE:  runMCP,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "browser-hub", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&port, "port", "p", "", "HTTP port (overrides SERVER_PORT)")
	rootCmd.AddCommand(serveCmd, mcpCmd, versionCmd)
	rootCmd.Version = Version
}

// Function to parse LOG_LEVEL, falling back when it is empty or unknown
func parseLevel(value string, fallback slog.Level) slog.Level {
	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// Function to initialize the logger
func setupLogger(out io.Writer, level string) *slog.Logger {
	var handler slog.Handler

	if os.Getenv("ENV") == "production" {

		// JSON handler for production
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: parseLevel(level, slog.LevelInfo)})
	} else {

		// Text handler for development with readable timestamps
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{
			Level:     parseLevel(level, slog.LevelDebug),
			AddSource: false,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					t := a.Value.Time()
					return slog.String("time", t.Format(time.DateTime))
				}
				return a
			},
		})
	}

	return slog.New(handler)
}

// bootstrap loads configuration, installs the logger and builds the hub
func bootstrap(ctx context.Context, logOut io.Writer) (*core.Core, error) {
	// a missing .env is fine, the environment may already be set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: could not load .env:", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if port != "" {
		cfg.ServerPort = port
	}

	slog.SetDefault(setupLogger(logOut, cfg.LogLevel))

	store, closeStore, err := core.OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	hub := core.New(cfg, engine.NewPlaywright(cfg.InstallBrowsers), store)
	hub.AddCloser(closeStore)

	slog.Info("browser hub ready",
		"version", Version,
		"session_backend", cfg.SessionBackend,
		"profiles_dir", cfg.ProfilesDir,
		"cdp_endpoint", cfg.CDPEndpoint)
	return hub, nil
}

func shutdownHub(hub *core.Core) error {
	ctx, cancel := context.WithTimeout(context.Background(), hub.Config.ShutdownTimeout)
	defer cancel()

	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("browser hub shutdown incomplete", "error", err)
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	hub, err := bootstrap(cmd.Context(), os.Stdout)
	if err != nil {
		return err
	}

	server := api.NewServer(hub, mcp.HTTPHandler(hub, Version))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Ctrl+C is SIGINT, kill signal is SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	slog.Info("service ready", "port", hub.Config.ServerPort, "mcp_endpoint", mcp.EndpointPath)

	select {
	case sig := <-quit:
		slog.Info("shutdown initiated", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			slog.Error("server stopped", "error", err)
		}
		shutdownHub(hub)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), hub.Config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}

	err = shutdownHub(hub)
	slog.Info("shutdown complete")
	return err
}

func runMCP(cmd *cobra.Command, args []string) error {
	// stdout carries the protocol, so logs go to stderr
	hub, err := bootstrap(cmd.Context(), os.Stderr)
	if err != nil {
		return err
	}

	serveErr := mcp.ServeStdio(hub, Version)
	if errors.Is(serveErr, context.Canceled) {
		serveErr = nil
	}
	if serveErr != nil {
		slog.Error("MCP stdio server stopped", "error", serveErr)
	}

	return errors.Join(serveErr, shutdownHub(hub))
}

// Main entry point of the program
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
