package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Jcapehart2/lockerlink/internal/config"
	"github.com/Jcapehart2/lockerlink/internal/lock"
	"github.com/Jcapehart2/lockerlink/internal/log"
	"github.com/Jcapehart2/lockerlink/internal/registrar"
)

const version = "0.3.0"

const defaultConfigPath = "./config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	os.Exit(run(os.Args[1], os.Args[2:]))
}

func run(cmd string, args []string) int {
	switch cmd {
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "webhooks":
		return runWebhooksNoun(args)
	case "start":
		return runStart(args)
	case "version":
		fmt.Printf("lockerlink version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`lockerlink - smart-locker pickup bridge for store orders

Usage:
  lockerlink <noun> <action> [flags]

System Commands:
  system start        Start the callback server, webhook deliverer and mail worker

Config Commands:
  config check        Validate syntax, values and integrity
  config lock         Record the config hash in .checksums

Webhook Commands:
  webhooks register   Recreate the order webhooks for the stored credentials
  webhooks delete     Remove every webhook owned by the integration
  webhooks list       Show owned webhooks

General:
  version             Show version information
  help                Show this help message

All actions accept --config PATH (default ./config.yaml).
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: lockerlink system start [--config PATH]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	switch args[0] {
	case "start":
		return runStart(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: lockerlink config <check|lock> [--config PATH]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "lock":
		return runConfigLock(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runWebhooksNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: lockerlink webhooks <register|delete|list> [--config PATH]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}
	switch args[0] {
	case "register", "delete", "list":
		return runWebhooks(args[0], args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown webhooks action: %s\n", args[0])
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func parseConfigFlag(name string, args []string) (string, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	return *configPath, true
}

// --- ACTIONS ---

func runStart(args []string) int {
	configPath, ok := parseConfigFlag("start", args)
	if !ok {
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("lockerlink starting", "version", version, "config", configPath)

	lockPath := pidLockPath(cfg)
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, log.Get())
	if err != nil {
		logger.Error("failed to initialise", "error", err)
		return 1
	}
	defer a.db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	seeded, err := a.seed(ctx)
	if err != nil {
		logger.Error("failed to seed integration credentials", "error", err)
		return 1
	}
	if seeded {
		logger.Info("integration credentials seeded from config")
	}
	// Registration is best-effort; the next settings save retries it.
	if err := a.registrar.EnsureRegistered(ctx); err != nil {
		logger.Warn("webhook registration failed", "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	deliverer := a.deliverer(log.WithComponent("deliverer"))
	worker := a.notifyWorker(log.WithComponent("notify"))
	srv := a.server(log.Get())

	logger.Info("lockerlink running (press Ctrl+C to stop)")

	// Returns only once the components have stopped, so the deferred database
	// close and PID release run last.
	err = runComponents(ctx, sigCh, shutdownGrace, logger,
		component{name: "deliverer", run: deliverer.Run},
		component{name: "notify worker", run: worker.Run},
		component{name: "http", run: srv.Start},
	)
	if err != nil {
		return 1
	}

	logger.Info("lockerlink stopped")
	return 0
}

func runConfigCheck(args []string) int {
	configPath, ok := parseConfigFlag("check", args)
	if !ok {
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	fmt.Printf("Config OK: %s\n", configPath)
	fmt.Printf("  callback:  %s/assignment-update on %s\n", cfg.Callback.PathPrefix, cfg.API.Listen)
	fmt.Printf("  admin api: %t (%d tokens)\n", cfg.API.Enabled, len(cfg.API.Auth.Tokens))
	fmt.Printf("  mail:      %s\n", cfg.Mail.Driver)
	fmt.Printf("  state:     %s\n", cfg.State.Path)

	path, _ := config.ResolvePath(configPath)
	if err := config.VerifyChecksum(path); errors.Is(err, config.ErrNoChecksums) {
		fmt.Println("WARN: config is not locked; run 'lockerlink config lock'")
	}
	return 0
}

func runConfigLock(args []string) int {
	configPath, ok := parseConfigFlag("lock", args)
	if !ok {
		return 1
	}
	path, err := config.ResolvePath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	// Refuse to pin a config that would not load.
	if _, err := config.LoadUnverified(path); err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}

	hash, err := config.Lock(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}
	fmt.Printf("Locked %s (blake3 %s)\n", path, hash)
	return 0
}

func runWebhooks(action string, args []string) int {
	configPath, ok := parseConfigFlag(action, args)
	if !ok {
		return 1
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	logger := log.New(os.Stderr, cfg.Service.LogLevel, "text")
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer a.db.Close()

	switch action {
	case "register":
		if _, err := a.seed(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
			return 1
		}
		status, err := a.settings.Status(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		if !status.Configured {
			fmt.Fprintln(os.Stderr, "Integration is not configured: webhook_url and api_key are required")
			return 1
		}
		if err := a.registrar.Create(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Register failed: %v\n", err)
			return 1
		}
		fmt.Printf("Registered %d webhooks for %s\n", len(registrar.Topics), status.WebhookURL)
		return 0

	case "delete":
		if err := a.registrar.Delete(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			return 1
		}
		fmt.Println("Webhooks deleted")
		return 0

	default:
		subs, err := a.registrar.Owned(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			return 1
		}
		if len(subs) == 0 {
			fmt.Println("No webhooks registered")
			return 0
		}
		for _, s := range subs {
			fmt.Printf("%d\t%s\t%s\t%s\t%s\n", s.ID, s.Topic, s.Status, s.Name, s.DeliveryURL)
		}
		return 0
	}
}
