// Package main implements the ingest engine CLI. It creates one adapter from
// the registry, syncs the requested resources into the graph store, and
// prints a per-resource summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/nucleus/ingest-core/internal/config"
	"github.com/nucleus/ingest-core/internal/graph"
	"github.com/nucleus/ingest-core/internal/source"
	"github.com/nucleus/ingest-core/internal/sync"

	// Import connector packages to register all adapters
	_ "github.com/nucleus/ingest-core/internal/connector/objectstore"
	_ "github.com/nucleus/ingest-core/internal/connector/outlook"
)

func main() {
	var (
		connectorID  = flag.String("connector", "", "connector instance ID (defaults to template)")
		templateID   = flag.String("template", "", "adapter template ID, e.g. object.s3 or mail.outlook")
		configPath   = flag.String("config", "", "path to adapter config JSON")
		resourceList = flag.String("resources", "", "comma-separated resource keys (buckets, mail folders)")
		resourceType = flag.String("type", graph.TypeFile, "resource type: file or message")
		scope        = flag.String("scope", string(sync.ScopeTeam), "permission scope: TEAM or PERSONAL")
		ownerEmail   = flag.String("owner", "", "owner email hint for PERSONAL scope and mailboxes")
	)
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.LoadEngineConfig()

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(log)

	if err := run(context.Background(), cfg, log, runArgs{
		connectorID:  *connectorID,
		templateID:   *templateID,
		configPath:   *configPath,
		resourceList: *resourceList,
		resourceType: *resourceType,
		scope:        *scope,
		ownerEmail:   *ownerEmail,
	}); err != nil {
		log.Error("ingest failed", "error", err)
		os.Exit(1)
	}
}

type runArgs struct {
	connectorID  string
	templateID   string
	configPath   string
	resourceList string
	resourceType string
	scope        string
	ownerEmail   string
}

func run(ctx context.Context, cfg *config.EngineConfig, log *slog.Logger, args runArgs) error {
	if args.templateID == "" {
		return fmt.Errorf("-template is required")
	}
	if args.resourceList == "" {
		return fmt.Errorf("-resources is required")
	}
	if args.connectorID == "" {
		args.connectorID = args.templateID
	}

	adapterCfg, err := loadAdapterConfig(args.configPath)
	if err != nil {
		return err
	}

	adapter, err := source.DefaultRegistry().Create(ctx, args.templateID, adapterCfg)
	if err != nil {
		return fmt.Errorf("create adapter: %w", err)
	}
	defer adapter.Close()

	store, syncPoints, cleanup, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	orch := sync.NewOrchestrator(args.connectorID, adapter, store, syncPoints, sync.Options{
		FileBatchSize:    cfg.FileBatchSize,
		MessageBatchSize: cfg.MessageBatchSize,
		RatePerSecond:    cfg.RatePerSecond,
		RateBurst:        cfg.RateBurst,
		AccessURLTTL:     cfg.AccessURLTTL,
		IdentityCacheTTL: cfg.IdentityCacheTTL,
		Logger:           log,
	})

	var resources []sync.Resource
	for _, key := range strings.Split(args.resourceList, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		resources = append(resources, sync.Resource{
			Key:        key,
			Type:       args.resourceType,
			Scope:      sync.Scope(args.scope),
			OwnerEmail: args.ownerEmail,
		})
	}

	result := orch.Run(ctx, resources)
	for key, err := range result.Errors {
		log.Error("resource failed", "resource", key, "error", err)
	}
	if result.AllFailed() {
		return fmt.Errorf("all %d resources failed", len(result.Errors))
	}
	return nil
}

func loadAdapterConfig(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read adapter config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse adapter config: %w", err)
	}
	return m, nil
}

// openStores connects the Postgres-backed stores, or falls back to in-memory
// stores when no database is configured.
func openStores(ctx context.Context, cfg *config.EngineConfig, log *slog.Logger) (graph.Store, sync.SyncPointStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("INGEST_DATABASE_URL not set, using in-memory stores")
		return graph.NewMemoryStore(), sync.NewMemorySyncPoints(), func() {}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parse database URL: %w", err)
	}
	graph.PoolConfigDefaults(poolCfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("ping database: %w", err)
	}

	return graph.NewPostgresStore(pool), sync.NewPostgresSyncPoints(pool), pool.Close, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
