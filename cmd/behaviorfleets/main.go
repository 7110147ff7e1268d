// Fleet process entry point. One binary hosts either side of the
// delegation protocol, plus a loopback mode that runs a small fleet in
// a single process for demos and smoke testing.
//
// Usage:
//
//	behaviorfleets executor --config fleet.yaml   # run an executor agent
//	behaviorfleets delegate --config fleet.yaml   # delegate a mission
//	behaviorfleets loopback --agents 3            # in-process demo fleet
//	behaviorfleets version                        # show version info
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/Juancams/behaviorfleets/bus"
	"github.com/Juancams/behaviorfleets/bus/inproc"
	"github.com/Juancams/behaviorfleets/bus/redisbus"
	"github.com/Juancams/behaviorfleets/config"
	"github.com/Juancams/behaviorfleets/engine/btree"
	"github.com/Juancams/behaviorfleets/fleet"
	"github.com/Juancams/behaviorfleets/internal/metrics"
	"github.com/Juancams/behaviorfleets/types"
)

// Build-time version info, injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "executor":
		runExecutor(os.Args[2:])
	case "delegate":
		runDelegate(os.Args[2:])
	case "loopback":
		runLoopback(os.Args[2:])
	case "version":
		printVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runExecutor(args []string) {
	fs := flag.NewFlagSet("executor", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting executor",
		zap.String("version", Version),
		zap.String("agent_id", cfg.Agent.AgentID),
		zap.String("mission_id", cfg.Agent.MissionID),
	)

	b := openBus(cfg.Bus, logger)
	defer b.Close()

	eng, err := newEngine(logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}

	agent := fleet.NewExecutorAgent(cfg.Agent, b, eng, logger)
	if cfg.Metrics.Enabled {
		agent.SetMetrics(metrics.NewCollector(cfg.Metrics.Namespace, logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agent.Start(ctx); err != nil {
		logger.Fatal("failed to start executor", zap.Error(err))
	}
	defer agent.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics, logger) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("executor exited with error", zap.Error(err))
	}
	logger.Info("executor stopped")
}

func runDelegate(args []string) {
	fs := flag.NewFlagSet("delegate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	templatePath := fs.String("template", "", "Mission template file (overrides config)")
	watch := fs.Bool("watch", false, "Keep running and re-delegate when the template changes")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *templatePath != "" {
		cfg.Delegate.TemplateFile = *templatePath
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("starting delegate",
		zap.String("version", Version),
		zap.String("mission_id", cfg.Delegate.MissionID),
	)

	b := openBus(cfg.Bus, logger)
	defer b.Close()

	proxy, err := fleet.NewDelegateProxy(cfg.Delegate, b, logger)
	if err != nil {
		logger.Fatal("failed to create delegate proxy", zap.Error(err))
	}
	if cfg.Metrics.Enabled {
		proxy.SetMetrics(metrics.NewCollector(cfg.Metrics.Namespace, logger))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := proxy.Start(ctx); err != nil {
		logger.Fatal("failed to start delegate proxy", zap.Error(err))
	}
	defer proxy.Stop()

	if *watch && cfg.Delegate.TemplateFile != "" {
		if err := watchTemplate(ctx, cfg.Delegate, proxy, logger); err != nil {
			logger.Fatal("failed to watch template", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics, logger) })
	}
	g.Go(func() error { return evaluateLoop(gctx, proxy, cfg.Agent.TickInterval, *watch, logger) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("delegate exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("delegate stopped")
}

// evaluateLoop drives the proxy the way an embedding task graph would:
// one Evaluate per control cycle. In watch mode a terminal delegation
// does not end the process; a template change restarts discovery.
func evaluateLoop(ctx context.Context, proxy *fleet.DelegateProxy, interval time.Duration, watch bool, logger *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	reported := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status := proxy.Evaluate()
			if !status.Terminal() {
				reported = false
				continue
			}
			if !reported {
				logger.Info("delegation finished",
					zap.String("remote_id", proxy.RemoteID()),
					zap.String("status", string(status)),
				)
				reported = true
			}
			if !watch {
				return nil
			}
		}
	}
}

// watchTemplate reloads the mission template on change and hands the
// new definition to the proxy, abandoning any in-flight delegation.
func watchTemplate(ctx context.Context, cfg fleet.ProxyConfig, proxy *fleet.DelegateProxy, logger *zap.Logger) error {
	watcher, err := config.NewFileWatcher(
		[]string{cfg.TemplateFile},
		config.WithWatcherLogger(logger),
	)
	if err != nil {
		return err
	}

	watcher.OnChange(func(event config.FileEvent) {
		if event.Op == config.FileOpRemove {
			logger.Warn("mission template removed", zap.String("path", event.Path))
			return
		}
		data, err := os.ReadFile(event.Path)
		if err != nil {
			logger.Error("failed to reload mission template", zap.Error(err))
			return
		}
		def := types.TaskDefinition{Tree: string(data), Plugins: cfg.Task.Plugins}
		if err := proxy.SetTask(def); err != nil {
			logger.Error("reloaded template rejected", zap.Error(err))
			return
		}
		logger.Info("mission template reloaded", zap.String("path", event.Path))
	})

	return watcher.Start(ctx)
}

// demoTree is the mission used by loopback mode when the config names
// no task of its own.
const demoTree = `{
	"type": "sequence",
	"children": [
		{"type": "action", "plugin": "countdown", "params": {"ticks": 5}},
		{"type": "action", "plugin": "succeed"}
	]
}`

func runLoopback(args []string) {
	fs := flag.NewFlagSet("loopback", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	agents := fs.Int("agents", 2, "Number of executor agents to run")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	if *agents < 1 {
		logger.Fatal("loopback needs at least one agent")
	}

	// Loopback is single-process by definition.
	b := inproc.New(inproc.WithMailboxSize(cfg.Bus.MailboxSize), inproc.WithLogger(logger))
	defer b.Close()

	if cfg.Delegate.Task.Empty() && cfg.Delegate.TemplateFile == "" {
		cfg.Delegate.Task = types.TaskDefinition{
			Tree:    demoTree,
			Plugins: []string{"countdown", "succeed"},
		}
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}

	for i := 0; i < *agents; i++ {
		agentCfg := cfg.Agent
		agentCfg.AgentID = fmt.Sprintf("robot-%d", i+1)
		agentCfg.MissionID = cfg.Delegate.MissionID

		agent := fleet.NewExecutorAgent(agentCfg, b, eng, logger)
		if collector != nil {
			agent.SetMetrics(collector)
		}
		if err := agent.Start(ctx); err != nil {
			logger.Fatal("failed to start agent", zap.Error(err))
		}
		defer agent.Stop()
	}

	proxy, err := fleet.NewDelegateProxy(cfg.Delegate, b, logger)
	if err != nil {
		logger.Fatal("failed to create delegate proxy", zap.Error(err))
	}
	if collector != nil {
		proxy.SetMetrics(collector)
	}
	if err := proxy.Start(ctx); err != nil {
		logger.Fatal("failed to start delegate proxy", zap.Error(err))
	}
	defer proxy.Stop()

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics, logger) })
	}
	g.Go(func() error { return evaluateLoop(gctx, proxy, cfg.Agent.TickInterval, false, logger) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("loopback exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("loopback fleet stopped")
}

func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func openBus(cfg config.BusConfig, logger *zap.Logger) bus.Bus {
	switch cfg.Kind {
	case "redis":
		b, err := redisbus.New(cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect bus", zap.Error(err))
		}
		return b
	default:
		// Validate() has already rejected anything but inproc here.
		logger.Warn("in-process bus reaches no other process; use the redis bus for a real fleet")
		return inproc.New(inproc.WithMailboxSize(cfg.MailboxSize), inproc.WithLogger(logger))
	}
}

func newEngine(logger *zap.Logger) (*btree.Engine, error) {
	registry := btree.NewRegistry(logger)
	if err := btree.RegisterStockActions(registry); err != nil {
		return nil, err
	}
	return btree.New(registry, logger), nil
}

func serveMetrics(ctx context.Context, cfg config.MetricsConfig, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	logger.Info("metrics endpoint listening", zap.String("addr", cfg.Addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics endpoint failed: %w", err)
		}
		return nil
	}
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format != "console" {
		zapConfig.Encoding = "json"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}

func printVersion() {
	fmt.Printf("behaviorfleets %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`behaviorfleets - robot fleet task delegation

Usage:
  behaviorfleets <command> [options]

Commands:
  executor  Run an executor agent that bids for and runs missions
  delegate  Delegate a mission to the first capable agent
  loopback  Run a whole fleet in one process (demo / smoke test)
  version   Show version information
  help      Show this help message

Options for 'executor':
  --config <path>     Path to configuration file (YAML)

Options for 'delegate':
  --config <path>     Path to configuration file (YAML)
  --template <path>   Mission template file (overrides config)
  --watch             Re-delegate when the template file changes

Options for 'loopback':
  --config <path>     Path to configuration file (YAML)
  --agents <n>        Number of executor agents (default 2)

Examples:
  behaviorfleets executor --config /etc/behaviorfleets/fleet.yaml
  behaviorfleets delegate --template missions/patrol.tree
  behaviorfleets delegate --template missions/patrol.tree --watch
  behaviorfleets loopback --agents 3
  behaviorfleets version`)
}
