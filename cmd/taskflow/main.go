// TaskFlow is a task-management backend with a conversational AI
// assistant.
//
// It exposes a JSON HTTP API for accounts, tasks, and chat. The chat
// endpoint drives an agent loop that lets a language model manage the
// user's tasks through tool calls. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	taskflow serve           Start the API server
//	taskflow init [dir]      Write a starter config.yaml (default: .)
//	taskflow version         Print version and build information
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/UzairGhori/todo-app-fullstack/internal/agent"
	"github.com/UzairGhori/todo-app-fullstack/internal/api"
	"github.com/UzairGhori/todo-app-fullstack/internal/auth"
	"github.com/UzairGhori/todo-app-fullstack/internal/buildinfo"
	"github.com/UzairGhori/todo-app-fullstack/internal/chat"
	"github.com/UzairGhori/todo-app-fullstack/internal/config"
	"github.com/UzairGhori/todo-app-fullstack/internal/events"
	"github.com/UzairGhori/todo-app-fullstack/internal/llm"
	"github.com/UzairGhori/todo-app-fullstack/internal/tasks"
	"github.com/UzairGhori/todo-app-fullstack/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// starterConfig is written by "taskflow init".
const starterConfig = `# TaskFlow configuration
listen:
  address: ""
  port: 8000

database:
  path: taskflow.db

auth:
  # Pulled from the environment at load time.
  jwt_secret: ${TASKFLOW_JWT_SECRET}

llm:
  # Any OpenAI-compatible chat completions endpoint works.
  base_url: https://openrouter.ai/api/v1
  api_key: ${OPENROUTER_API_KEY}
  model: google/gemma-3-4b-it:free
  max_tokens: 1000
  timeout_sec: 120

cors:
  allowed_origins: []

log_level: info
`

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the taskflow command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "TaskFlow - Task management backend with an AI assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: taskflow [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Write a starter config.yaml (default: .)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/taskflow/config.yaml, /etc/taskflow/config.yaml")
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// runInit writes a starter config file into dir, refusing to overwrite
// an existing one.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Fprintf(stdout, "Wrote %s\n", path)
	fmt.Fprintln(stdout, "Set TASKFLOW_JWT_SECRET and OPENROUTER_API_KEY, then run: taskflow serve")
	return nil
}

// runServe is the primary operating mode: loads config, opens the
// database, wires the stores, agent loop, and HTTP server, and blocks
// until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting TaskFlow", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config %s: %w", cfgPath, err)
	}

	// Reconfigure the logger now that we know the desired level. The
	// initial Info-level logger only covers the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("config %s: %w", cfgPath, err)
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"database", cfg.Database.Path,
		"model", cfg.LLM.Model,
	)

	// --- Database ---
	// A single SQLite file holds users, tasks, conversations, and
	// messages. WAL mode lets the HTTP handlers and agent tools share it.
	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite3", cfg.Database.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	// --- Event bus ---
	// Fan-out for live task and agent events to WebSocket subscribers.
	bus := events.New()

	// --- Stores ---
	taskStore, err := tasks.NewStore(db, bus)
	if err != nil {
		return fmt.Errorf("task store: %w", err)
	}
	chatStore, err := chat.NewStore(db)
	if err != nil {
		return fmt.Errorf("chat store: %w", err)
	}
	userStore, err := auth.NewStore(db)
	if err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret)

	// --- LLM client and agent loop ---
	llmClient := llm.NewOpenRouterClient(
		cfg.LLM.BaseURL,
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		time.Duration(cfg.LLM.TimeoutSec)*time.Second,
	)
	registry := tools.NewRegistry(logger, taskStore)
	loop := agent.NewLoop(logger, llmClient, registry, bus, cfg.LLM.MaxTokens)
	logger.Info("agent loop initialized", "model", cfg.LLM.Model, "max_tokens", cfg.LLM.MaxTokens)

	// --- API server ---
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, logger,
		userStore, tokens, taskStore, chatStore, loop, bus)
	server.SetAllowedOrigins(cfg.CORS.AllowedOrigins)

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("TaskFlow stopped")
	return nil
}

// newLogger creates a structured text logger writing to w at the given
// level. All log output goes through slog.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
