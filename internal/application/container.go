package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/application/sitesync"
	"github.com/headwalluk/vulnz-agent/internal/cache"
	"github.com/headwalluk/vulnz-agent/internal/domain/website"
	"github.com/headwalluk/vulnz-agent/internal/infrastructure/persistence/boltdb"
	"github.com/headwalluk/vulnz-agent/internal/inventory"
	"github.com/headwalluk/vulnz-agent/internal/runs"
	"github.com/headwalluk/vulnz-agent/internal/settings"
	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
	"github.com/headwalluk/vulnz-agent/internal/vulnz"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheBolt   = "bolt"
	CacheRedis  = "redis"
)

// Options configures the container.
type Options struct {
	DBPath     string
	SiteRoot   string
	PluginsDir string
	SiteURL    string
	SiteTitle  string

	CacheBackend string
	RedisURL     string
	CacheTTL     time.Duration
	APITimeout   time.Duration

	Overrides *settings.OverrideSource
	MaxRuns   int
	Logger    *zap.Logger
}

// Container holds all application services and repositories
// This is a simple dependency injection container
type Container struct {
	DB           *bbolt.DB
	Settings     *settings.Service
	Cache        *cache.WebsiteCache
	Inventory    *inventory.Scanner
	Site         inventory.Site
	Runs         *runs.Manager
	Orchestrator *sitesync.Orchestrator

	apiTimeout time.Duration
	sortOrder  website.SortOrder
	logger     *zap.Logger
	closers    []func() error
}

// NewContainer opens storage and wires every service.
func NewContainer(opts Options) (*Container, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sortOrder, err := website.ParseSortOrder(constants.ExtensionSortOrder)
	if err != nil {
		return nil, err
	}

	db, err := boltdb.Open(opts.DBPath, boltdb.BucketOptions, boltdb.BucketTransients)
	if err != nil {
		return nil, err
	}

	c := &Container{
		DB:         db,
		apiTimeout: opts.APITimeout,
		sortOrder:  sortOrder,
		logger:     logger,
		closers:    []func() error{db.Close},
	}

	store, err := settings.NewOptionStore(db)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create option store: %w", err)
	}
	c.Settings = settings.NewService(settings.NewResolver(opts.Overrides, store), store)

	transients, err := c.openTransients(opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	ttl := opts.CacheTTL
	if ttl < 0 {
		ttl = 0
	}
	c.Cache = cache.NewWebsiteCache(transients, ttl, logger)

	c.Inventory = inventory.NewScanner(opts.SiteRoot, opts.PluginsDir, logger)
	c.Site = inventory.NewSite(opts.SiteURL, opts.SiteTitle)
	c.Runs = runs.NewManager(opts.MaxRuns, logger)
	c.Orchestrator = sitesync.NewOrchestrator(liveClient{c}, c.Inventory, c.Site, c.Settings, logger)

	return c, nil
}

func (c *Container) openTransients(opts Options) (cache.Store, error) {
	switch opts.CacheBackend {
	case "", CacheMemory:
		return cache.NewMemoryStore(), nil
	case CacheBolt:
		store, err := cache.NewBoltStore(c.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to create bolt cache: %w", err)
		}
		return store, nil
	case CacheRedis:
		client, err := cache.ConnectRedis(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		store := cache.NewRedisStore(client)
		c.closers = append(c.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", opts.CacheBackend)
	}
}

// NewClient builds an API client from the settings in effect right now.
func (c *Container) NewClient() (*vulnz.Client, error) {
	eff, err := c.Settings.Effective()
	if err != nil {
		return nil, err
	}
	return vulnz.NewClient(vulnz.Config{
		BaseURL:   eff.APIURL,
		APIKey:    eff.APIKey,
		Timeout:   c.apiTimeout,
		Cache:     c.Cache,
		SortOrder: c.sortOrder,
		Logger:    c.logger,
	}), nil
}

// SyncNow runs an interactive sync and records it.
func (c *Container) SyncNow(ctx context.Context) (runs.Run, error) {
	return c.Runs.Track(ctx, runs.TriggerManual, c.Orchestrator.Sync)
}

// RunScheduled is the scheduler tick. Disabled ticks are not recorded.
func (c *Container) RunScheduled(ctx context.Context) error {
	eff, err := c.Settings.Effective()
	if err != nil {
		return err
	}
	if !eff.Enabled {
		return sharedErrors.ErrSyncDisabled
	}
	_, err = c.Runs.Track(ctx, runs.TriggerSchedule, c.Orchestrator.RunScheduled)
	return err
}

// Overview feeds the summary screen.
func (c *Container) Overview(ctx context.Context) (sitesync.Overview, error) {
	return c.Orchestrator.Overview(ctx)
}

// Check reports whether storage is usable.
func (c *Container) Check(context.Context) error {
	return c.DB.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(boltdb.BucketOptions)) == nil {
			return errors.New("options bucket missing")
		}
		return nil
	})
}

// Ready reports whether the API client could be used.
func (c *Container) Ready(context.Context) error {
	client, err := c.NewClient()
	if err != nil {
		return err
	}
	return client.CheckAvailability()
}

// Uninstall removes every option and cached website record.
func (c *Container) Uninstall(ctx context.Context) (int, error) {
	if err := c.Settings.Purge(); err != nil {
		return 0, err
	}
	removed, err := c.Cache.Purge(ctx)
	if err != nil {
		return removed, fmt.Errorf("failed to purge cached websites: %w", err)
	}
	return removed, nil
}

// Close releases storage handles in reverse order of opening.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// liveClient resolves a fresh API client per call so settings edits apply
// to the next sync without a restart.
type liveClient struct {
	c *Container
}

func (l liveClient) CheckAvailability() error {
	client, err := l.c.NewClient()
	if err != nil {
		return err
	}
	return client.CheckAvailability()
}

func (l liveClient) UpsertWebsite(ctx context.Context, domain string, upd *website.Update) error {
	client, err := l.c.NewClient()
	if err != nil {
		l.c.Cache.Invalidate(context.WithoutCancel(ctx), domain)
		return err
	}
	return client.UpsertWebsite(ctx, domain, upd)
}

func (l liveClient) FetchWebsite(ctx context.Context, domain string) (*website.Record, error) {
	client, err := l.c.NewClient()
	if err != nil {
		return nil, err
	}
	return client.FetchWebsite(ctx, domain)
}
