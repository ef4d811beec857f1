// ABOUTME: Entry point for the flink-sql-mcp tool server
// ABOUTME: Bridges stdio MCP clients to a Flink SQL gateway

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/MegaGrindStone/go-mcp"
	"github.com/fatih/color"

	"github.com/datalane/flink-sql-mcp/internal/config"
	"github.com/datalane/flink-sql-mcp/internal/gateway"
	"github.com/datalane/flink-sql-mcp/internal/jobs"
	"github.com/datalane/flink-sql-mcp/internal/session"
	"github.com/datalane/flink-sql-mcp/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const serverName = "flink-sql-mcp"

// getConfigPath returns the path to the config file.
// Priority: FLINK_MCP_CONFIG env var > XDG_CONFIG_HOME/flink-sql-mcp/config.yaml > ~/.config/flink-sql-mcp/config.yaml
// An empty return means no config file; built-in defaults apply.
func getConfigPath() string {
	if envPath := os.Getenv("FLINK_MCP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	path := filepath.Join(configDir, "flink-sql-mcp", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		// The default location is optional; only an explicit path must exist.
		return ""
	}
	return path
}

func main() {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "serve":
		err = runServe(ctx)
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(serverName + " " + version)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w *os.File) {
	fmt.Fprintln(w, "Usage: flink-sql-mcp [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Serve tools over stdio (default)")
	fmt.Fprintln(w, "  health   Check that the SQL gateway is reachable")
	fmt.Fprintln(w, "  version  Print the version")
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Stdout carries the MCP wire protocol; all logging goes to stderr.
	logger := setupLogging(cfg.Logging)
	logger.Info("starting", "version", version, "gateway_url", cfg.Gateway.BaseURL)

	client := gateway.NewClient(cfg.Gateway.BaseURL,
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Gateway.RequestTimeout}))
	owner := session.NewOwner(client, cfg.Session.Properties, logger)
	tracker := jobs.NewTracker(logger)
	runner := jobs.NewRunner(client, owner, tracker, logger)
	canceller := jobs.NewCanceller(client, owner, tracker, logger)

	toolServer := tools.NewServer(tools.Pack(owner, runner, canceller, client), logger)

	srv := mcp.NewServer(mcp.Info{
		Name:    serverName,
		Version: version,
	}, mcp.NewStdIO(os.Stdin, os.Stdout),
		mcp.WithToolServer(toolServer),
		mcp.WithServerLogger(logger),
	)

	go srv.Serve()
	logger.Info("serving tools over stdio")

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", "error", err)
	}

	// Best-effort: release the gateway session so the cluster does not hold
	// resources for a client that is gone.
	owner.Close(shutdownCtx)
	logger.Info("stopped")
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client := gateway.NewClient(cfg.Gateway.BaseURL,
		gateway.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}))

	info, err := client.GetClusterInfo(ctx)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "unhealthy: %v\n", err)
		os.Exit(1)
	}

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)
	green.Println("healthy")
	gray.Printf("  gateway: %s\n", cfg.Gateway.BaseURL)
	if name, ok := info["productName"].(string); ok {
		gray.Printf("  product: %s\n", name)
	}
	if v, ok := info["version"].(string); ok {
		gray.Printf("  version: %s\n", v)
	}
	return nil
}

func setupLogging(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output on stderr with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
