package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"lumen-hq/relay/pkg/agent"
	"lumen-hq/relay/pkg/cache"
	"lumen-hq/relay/pkg/cache/storage"
	"lumen-hq/relay/pkg/config"
	"lumen-hq/relay/pkg/engine"
	"lumen-hq/relay/pkg/keypool"
	"lumen-hq/relay/pkg/mcp"
	"lumen-hq/relay/pkg/providerfactory"
	"lumen-hq/relay/pkg/providers"
	"lumen-hq/relay/pkg/rotation"
	"lumen-hq/relay/pkg/router"
	"lumen-hq/relay/pkg/server"
	"lumen-hq/relay/pkg/session"
	"lumen-hq/relay/pkg/telemetry/logging"
	"lumen-hq/relay/pkg/telemetry/metrics"
	"lumen-hq/relay/pkg/tools"
)

var runFlags struct {
	listenAddress string
	logLevel      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the relay gateway",
	Long: `Start the relay gateway with the specified configuration.

Examples:
  # Start with default config
  relay run

  # Start with custom config
  relay run --config /etc/relay/config.yaml

  # Override listen address
  relay run --listen 0.0.0.0:8080`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, overrideFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Logging.Level = runFlags.logLevel
	}

	// Every credential loaded into the pool registers with the redactor,
	// so keys never appear in log output.
	redactor := logging.NewRedactor()
	logger := logging.New(cfg.Logging, redactor)
	slog.SetDefault(logger)

	met := metrics.New()
	ctx := cmd.Context()

	rdb := connectRedis(ctx, cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	pool := keypool.NewManager(keypool.Options{
		AcquireTimeout: cfg.Keys.AcquireTimeout,
		QuarantineTTL:  cfg.Keys.QuarantineTTL,
		OnKeyLoaded:    redactor.Register,
		Logger:         logger,
	})
	if err := pool.LoadDir(cfg.Keys.Dir); err != nil {
		// Not fatal: callers with their own upstream keys still work.
		logger.Warn("key pool load failed", "dir", cfg.Keys.Dir, "error", err)
	}

	httpClient := providers.NewHTTPClient()
	provs, err := providerfactory.Build(cfg.Providers, providerfactory.Options{
		Redis:  rdb,
		Mock:   cfg.Mock,
		HTTP:   httpClient,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	if cfg.Mock.Enabled {
		logger.Warn("mock mode enabled: no upstream calls will be made")
	}

	var media *providers.MediaExternalizer
	if cfg.Media.UploadURL != "" {
		uploader := providers.NewHTTPUploader(cfg.Media.UploadURL, cfg.Media.APIKey, cfg.Media.Timeout, httpClient)
		media = providers.NewMediaExternalizer(uploader, logger)
	}

	stripParams := make(map[string][]string, len(cfg.Providers))
	for name, providerCfg := range cfg.Providers {
		if len(providerCfg.StripParams) > 0 {
			stripParams[name] = providerCfg.StripParams
		}
	}

	var counter rotation.Counter
	if rdb != nil {
		counter = rotation.NewRedisCounter(rdb, "relay:rotation")
	}
	rt := router.New(cfg, rotation.NewIndex(counter, logger), logger)

	eng := engine.New(engine.Options{
		Providers:   provs,
		Pool:        pool,
		Models:      rotation.NewModelRotator(),
		StripParams: stripParams,
		Media:       media,
		Metrics:     met,
		Logger:      logger,
	})

	var respCache *cache.Cache
	if cfg.Cache.Enabled {
		backend, err := buildCacheBackend(cfg.Cache)
		if err != nil {
			return fmt.Errorf("cache backend: %w", err)
		}
		respCache = cache.New(backend, cache.Options{
			TTL:     cfg.Cache.TTL,
			Metrics: met,
			Logger:  logger,
		})
		defer respCache.Close()
	}

	sess := session.NewStore(rdb, session.Options{
		LeaseTTL: cfg.Session.LeaseTTL,
		TaskTTL:  cfg.Session.TaskTTL,
		Logger:   logger,
	})

	mcpRegistry := buildMCPRegistry(ctx, cfg.MCP, logger)

	toolToggles := tools.NewRegistry(cfg.Tools.RegistryPath, logger)
	if cfg.Tools.Watch == nil || *cfg.Tools.Watch {
		go func() {
			if err := toolToggles.Watch(ctx); err != nil {
				logger.Warn("tool registry watch stopped", "error", err)
			}
		}()
	}

	natives := tools.Builtins()
	orch := tools.NewOrchestrator(tools.OrchestratorOptions{
		Natives:  natives,
		Registry: toolToggles,
		MCP:      mcpRegistry,
		Metrics:  met,
		Logger:   logger,
	})

	drivers := make(map[string]agent.Driver, len(cfg.Agents))
	for name, agentCfg := range cfg.Agents {
		driver, err := agent.NewDriver(agentCfg.Mode, agent.Deps{
			Engine:  eng,
			Router:  rt,
			Tools:   orch,
			Session: sess,
			Metrics: met,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("agent %q: %w", name, err)
		}
		drivers[name] = driver
	}

	scheduler, err := startScheduler(ctx, cfg, pool, mcpRegistry, met, logger)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	srv := server.New(server.Options{
		Config:      cfg,
		Engine:      eng,
		Router:      rt,
		Drivers:     drivers,
		Cache:       respCache,
		Session:     sess,
		Pool:        pool,
		MCP:         mcpRegistry,
		Natives:     natives,
		ToolToggles: toolToggles,
		Metrics:     met,
		Logger:      logger,
	})
	return srv.Start(ctx)
}

// connectRedis dials Redis when configured. Failures degrade to in-process
// state rather than refusing to start.
func connectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, using in-process state", "addr", cfg.Addr, "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected", "addr", cfg.Addr)
	return client
}

func buildCacheBackend(cfg config.CacheConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "sqlite":
		return storage.NewSQLiteBackend(cfg.SQLitePath)
	case "memory", "":
		return storage.NewMemoryBackend(cfg.MaxEntries), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q (supported: memory, sqlite)", cfg.Backend)
	}
}

// buildMCPRegistry constructs clients for every configured server and kicks
// off the first discovery pass in the background so startup never blocks on
// a slow tool server.
func buildMCPRegistry(ctx context.Context, cfg config.MCPConfig, logger *slog.Logger) *mcp.Registry {
	clients := make([]*mcp.Client, 0, len(cfg.Servers))
	for _, serverCfg := range cfg.Servers {
		clients = append(clients, mcp.NewClient(serverCfg.Name, serverCfg.URL, mcp.ClientOptions{
			Headers:        serverCfg.Headers,
			ConnectTimeout: cfg.ConnectTimeout,
			CallTimeout:    cfg.CallTimeout,
			Logger:         logger,
		}))
	}
	registry := mcp.NewRegistry(clients, mcp.RegistryOptions{
		StatePath: cfg.StatePath,
		Logger:    logger,
	})
	if len(clients) > 0 {
		go func() {
			refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			registry.Refresh(refreshCtx)
		}()
	}
	return registry
}

// startScheduler runs the periodic jobs: the key quarantine sweep with
// pool gauge updates, and MCP tool re-discovery.
func startScheduler(ctx context.Context, cfg *config.Config, pool *keypool.Manager, registry *mcp.Registry, met *metrics.Metrics, logger *slog.Logger) (*cron.Cron, error) {
	scheduler := cron.New(cron.WithSeconds())

	_, err := scheduler.AddFunc(cfg.Keys.SweepSchedule, func() {
		pool.Sweep()
		for _, status := range pool.Status() {
			met.SetKeypoolGauge(status.Provider, "available", status.Available)
			met.SetKeypoolGauge(status.Provider, "in_flight", status.InFlight)
			met.SetKeypoolGauge(status.Provider, "quarantined", status.Quarantined)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("keys.sweep_schedule %q: %w", cfg.Keys.SweepSchedule, err)
	}

	if len(cfg.MCP.Servers) > 0 {
		_, err := scheduler.AddFunc(cfg.MCP.RefreshSchedule, func() {
			refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			registry.Refresh(refreshCtx)
			logger.Debug("mcp registry refreshed")
		})
		if err != nil {
			return nil, fmt.Errorf("mcp.refresh_schedule %q: %w", cfg.MCP.RefreshSchedule, err)
		}
	}

	scheduler.Start()
	return scheduler, nil
}
