package sitesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/domain/website"
	"github.com/headwalluk/vulnz-agent/internal/inventory"
	"github.com/headwalluk/vulnz-agent/internal/settings"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
	"go.uber.org/zap"
)

// Client is the part of the Vulnz API client the orchestrator needs.
type Client interface {
	CheckAvailability() error
	UpsertWebsite(ctx context.Context, domain string, upd *website.Update) error
	FetchWebsite(ctx context.Context, domain string) (*website.Record, error)
}

// Inventory reads the local installation.
type Inventory interface {
	InstalledExtensions() ([]website.InstalledExtension, error)
	CoreVersion() (string, error)
}

// Settings exposes effective configuration and the last-run record.
type Settings interface {
	Effective() (settings.Effective, error)
	RecordLastRun(at time.Time) error
	LastRun() (time.Time, bool, error)
}

// Orchestrator pushes the local site's state to the Vulnz API.
type Orchestrator struct {
	client    Client
	inventory Inventory
	site      inventory.Site
	settings  Settings
	logger    *zap.Logger
	now       func() time.Time
}

// NewOrchestrator wires the sync use case.
func NewOrchestrator(client Client, inv Inventory, site inventory.Site, cfg Settings, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		client:    client,
		inventory: inv,
		site:      site,
		settings:  cfg,
		logger:    logger.Named("sitesync"),
		now:       time.Now,
	}
}

// Site returns the identity the orchestrator reports for.
func (o *Orchestrator) Site() inventory.Site {
	return o.site
}

// BuildUpdate collects the payload describing the local site.
func (o *Orchestrator) BuildUpdate() (*website.Update, error) {
	plugins, err := o.inventory.InstalledExtensions()
	if err != nil {
		return nil, fmt.Errorf("list installed plugins: %w", err)
	}

	coreVersion, err := o.inventory.CoreVersion()
	if err != nil {
		return nil, fmt.Errorf("read core version: %w", err)
	}

	return &website.Update{
		Title: o.site.Title,
		IsSSL: o.site.IsSSL,
		Meta: map[string]string{
			website.MetaAdminURL:  o.site.LoginURL,
			website.MetaWPVersion: coreVersion,
		},
		Plugins: plugins,
	}, nil
}

// Sync reports the site to the API. It performs no network I/O when the
// client is unavailable or the site has no domain.
func (o *Orchestrator) Sync(ctx context.Context) error {
	if err := o.client.CheckAvailability(); err != nil {
		return err
	}

	if o.site.Domain == "" {
		return fmt.Errorf("%w: site url %q", sharedErrors.ErrSiteDomainUnknown, o.site.URL)
	}

	upd, err := o.BuildUpdate()
	if err != nil {
		return err
	}

	if err := o.client.UpsertWebsite(ctx, o.site.Domain, upd); err != nil {
		return fmt.Errorf("sync %s: %w", o.site.Domain, err)
	}

	o.logger.Info("website synced",
		zap.String("domain", o.site.Domain),
		zap.Int("plugins", len(upd.Plugins)),
	)
	return nil
}

// RunScheduled is the periodic entry point. It does nothing and returns
// ErrSyncDisabled unless sync is enabled; otherwise it syncs and records
// the run time whatever the outcome.
func (o *Orchestrator) RunScheduled(ctx context.Context) error {
	eff, err := o.settings.Effective()
	if err != nil {
		return fmt.Errorf("resolve settings: %w", err)
	}
	if !eff.Enabled {
		return sharedErrors.ErrSyncDisabled
	}

	syncErr := o.Sync(ctx)
	if syncErr != nil {
		o.logger.Warn("scheduled sync failed", zap.Error(syncErr))
	}

	if err := o.settings.RecordLastRun(o.now()); err != nil {
		o.logger.Warn("failed to record last run", zap.Error(err))
	}

	return syncErr
}

// Overview is what the summary screen shows.
type Overview struct {
	Enabled bool
	Site    inventory.Site
	// Record is nil when the API has nothing to show.
	Record     *website.Record
	FetchError error
	LastRun    time.Time
	HasLastRun bool
}

// Overview gathers the summary data. API failures are reported in
// FetchError rather than returned.
func (o *Orchestrator) Overview(ctx context.Context) (Overview, error) {
	eff, err := o.settings.Effective()
	if err != nil {
		return Overview{}, fmt.Errorf("resolve settings: %w", err)
	}

	ov := Overview{Enabled: eff.Enabled, Site: o.site}

	ov.LastRun, ov.HasLastRun, err = o.settings.LastRun()
	if err != nil {
		o.logger.Debug("last run unavailable", zap.Error(err))
	}

	if o.site.Domain == "" {
		ov.FetchError = sharedErrors.ErrSiteDomainUnknown
		return ov, nil
	}

	ov.Record, ov.FetchError = o.client.FetchWebsite(ctx, o.site.Domain)
	if ov.FetchError != nil && !errors.Is(ov.FetchError, sharedErrors.ErrUnavailable) {
		o.logger.Debug("website fetch failed", zap.String("domain", o.site.Domain), zap.Error(ov.FetchError))
	}
	return ov, nil
}
