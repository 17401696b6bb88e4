package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/herald/internal/api"
	"github.com/mattjoyce/herald/internal/audit"
	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/gateway"
	"github.com/mattjoyce/herald/internal/lock"
	"github.com/mattjoyce/herald/internal/log"
	"github.com/mattjoyce/herald/internal/storage"
	"github.com/mattjoyce/herald/internal/tui/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- ROOT ALIASES ---
	case "start":
		return runStart(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: herald version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("herald %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`herald - Signed webhook gateway for Slack-style event deliveries

Usage:
  herald <noun> <action> [flags]

Core Resources (Nouns):
  system    Gateway lifecycle and health
  config    System configuration and integrity

System Commands:
  system start      Start the gateway service in foreground
  system status     Show gateway health (config, audit database, PID lock)
  system watch      Real-time delivery monitoring TUI

Config Commands:
  config lock       Authorize current state (update integrity hashes)
  config check      Validate syntax, policy, and integrity
  config show       Show resolved configuration

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'herald <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printSystemWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: herald system <action>")
	fmt.Fprintln(w, "Actions: start, status, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: herald config <action> [flags]")
	fmt.Fprintln(w, "Actions: lock, check, show")
}

func printSystemStartHelp() {
	fmt.Println("Usage: herald system start [--config PATH]")
	fmt.Println("Start the gateway service in the foreground.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: herald system status [--config PATH] [--json]")
	fmt.Println("Show gateway health (config validity, audit database readiness, and PID lock state).")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func printSystemWatchHelp() {
	fmt.Println("Usage: herald system watch [flags]")
	fmt.Println()
	fmt.Println("Real-time delivery monitoring TUI.")
	fmt.Println("Shows gateway health, recent deliveries, and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Gateway API URL (default: http://localhost:8080)")
	fmt.Println("  --api-key KEY    API Bearer Token (or HERALD_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll deliveries")
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Gateway API URL")
	apiKey := fs.String("api-key", os.Getenv("HERALD_API_KEY"), "API Bearer Token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or HERALD_API_KEY env var.")
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("herald starting", "version", version, "config", *configPath)

	pidLockPath := getPIDLockPath(cfg)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(256)

	var recorder gateway.Recorder
	var auditReader api.AuditReader
	var pruner *audit.Pruner
	if cfg.Audit.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.Audit.Path)
		if err != nil {
			logger.Error("failed to open audit database", "path", cfg.Audit.Path, "error", err)
			return 1
		}
		defer db.Close()
		logger.Info("audit database opened", "path", cfg.Audit.Path)

		store := audit.NewStore(db)
		recorder = store
		auditReader = store
		pruner = audit.NewPruner(store, cfg.Audit.Retention, cfg.Audit.PruneInterval, log.WithComponent("audit"))
	}

	gw, err := gateway.New(cfg, hub, recorder, log.WithComponent("gateway"))
	if err != nil {
		logger.Error("failed to build gateway", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 3)

	go func() {
		if err := gw.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("gateway: %w", err)
		}
	}()
	logger.Info("gateway enabled", "listen", cfg.Gateway.Listen)

	if pruner != nil {
		go func() {
			if err := pruner.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("audit pruner: %w", err)
			}
		}()
		defer pruner.Stop()
	}

	if cfg.API.Enabled {
		tokens := make([]auth.TokenConfig, 0, len(cfg.API.Auth.Tokens))
		for _, t := range cfg.API.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{
				Token:  t.Token,
				Scopes: t.Scopes,
			})
		}
		apiConfig := api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: tokens,
		}
		apiServer := api.New(apiConfig, hub, auditReader, gw, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("herald running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("herald stopped")
	return 0
}

type statusReport struct {
	ConfigPath   string `json:"config_path"`
	ConfigOK     bool   `json:"config_ok"`
	ConfigError  string `json:"config_error,omitempty"`
	AuditEnabled bool   `json:"audit_enabled"`
	AuditOK      bool   `json:"audit_ok"`
	AuditError   string `json:"audit_error,omitempty"`
	PIDLockPath  string `json:"pid_lock_path"`
	Running      bool   `json:"running"`
	RunningPID   int    `json:"running_pid,omitempty"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output status report as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
	}

	report := statusReport{ConfigPath: *configPath}

	cfg, err := config.Load(*configPath)
	if err != nil {
		report.ConfigError = err.Error()
	} else {
		report.ConfigOK = true
		report.AuditEnabled = cfg.Audit.Enabled
		report.PIDLockPath = getPIDLockPath(cfg)
		report.RunningPID, report.Running = lock.HolderPID(report.PIDLockPath)

		if cfg.Audit.Enabled {
			db, err := storage.OpenSQLite(context.Background(), cfg.Audit.Path)
			if err != nil {
				report.AuditError = err.Error()
			} else {
				report.AuditOK = true
				db.Close()
			}
		}
	}

	failed := !report.ConfigOK || (report.AuditEnabled && !report.AuditOK)

	if *jsonOut {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(data))
	} else {
		printStatusReport(report)
	}

	if failed {
		return 1
	}
	return 0
}

func printStatusReport(r statusReport) {
	fmt.Printf("Config: %s\n", r.ConfigPath)
	if r.ConfigOK {
		fmt.Println("  config: OK")
	} else {
		fmt.Printf("  config: FAILED (%s)\n", r.ConfigError)
		return
	}

	if r.AuditEnabled {
		if r.AuditOK {
			fmt.Println("  audit database: OK")
		} else {
			fmt.Printf("  audit database: FAILED (%s)\n", r.AuditError)
		}
	} else {
		fmt.Println("  audit database: disabled")
	}

	if r.Running {
		fmt.Printf("  service: running (pid %d, lock %s)\n", r.RunningPID, r.PIDLockPath)
	} else {
		fmt.Println("  service: not running")
	}
}

// getPIDLockPath derives the lock location: next to the audit database when
// the audit trail is enabled, the working directory otherwise.
func getPIDLockPath(cfg *config.Config) string {
	if cfg.Audit.Enabled && cfg.Audit.Path != "" {
		dbDir := filepath.Dir(cfg.Audit.Path)
		dbBase := filepath.Base(cfg.Audit.Path)
		ext := filepath.Ext(dbBase)
		return filepath.Join(dbDir, dbBase[:len(dbBase)-len(ext)]+".pid")
	}
	return "./herald.pid"
}
