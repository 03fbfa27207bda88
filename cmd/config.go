package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/application"
	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultConfigName      = "vulnz-agent"
	defaultDBFile          = "vulnz-agent.db"
	defaultServeAddr       = "127.0.0.1:8787"
	defaultRateLimit       = 10
	defaultRateBurst       = 20
	defaultShutdownTimeout = 30 * time.Second
	defaultMaxRuns         = 500
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Site     SiteConfig
	Data     DataConfig
	Cache    CacheConfig
	API      APIConfig
	Log      LogConfig
	Serve    ServeConfig
	Schedule ScheduleConfig
}

// SiteConfig locates the WordPress installation the agent reports on.
type SiteConfig struct {
	Root       string
	PluginsDir string
	URL        string
	Title      string
}

type DataConfig struct {
	DBPath string
}

// CacheConfig selects the transient store used for website records.
type CacheConfig struct {
	Backend  string
	RedisURL string
	TTL      time.Duration
}

type APIConfig struct {
	Timeout time.Duration
}

type LogConfig struct {
	Debug bool
}

// ServeConfig holds admin API options.
type ServeConfig struct {
	Addr            string
	AuthToken       string
	NonceSecret     string
	RateLimit       int
	RateBurst       int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	MaxRuns         int
}

// ScheduleConfig drives the periodic sync inside serve.
type ScheduleConfig struct {
	Interval   time.Duration
	RunOnStart bool
}

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Site: SiteConfig{
			Root: ".",
		},
		Data: DataConfig{
			DBPath: defaultDBPath(),
		},
		Cache: CacheConfig{
			Backend: application.CacheMemory,
			TTL:     constants.WebsiteDataCacheTTL,
		},
		API: APIConfig{
			Timeout: constants.APIRequestTimeout,
		},
		Serve: ServeConfig{
			Addr:            defaultServeAddr,
			RateLimit:       defaultRateLimit,
			RateBurst:       defaultRateBurst,
			CORSOrigins:     []string{},
			ShutdownTimeout: defaultShutdownTimeout,
			MaxRuns:         defaultMaxRuns,
		},
		Schedule: ScheduleConfig{
			Interval:   constants.SyncInterval,
			RunOnStart: true,
		},
	}
}

// loadCLIConfig overlays config-file and environment values onto the
// defaults. Keys that are not set keep their default.
func loadCLIConfig(v *viper.Viper) (*CLIConfig, error) {
	cfg := newCLIConfig()

	setString(v, "site.root", &cfg.Site.Root)
	setString(v, "site.plugins_dir", &cfg.Site.PluginsDir)
	setString(v, "site.url", &cfg.Site.URL)
	setString(v, "site.title", &cfg.Site.Title)
	setString(v, "data.db_path", &cfg.Data.DBPath)
	setString(v, "cache.backend", &cfg.Cache.Backend)
	setString(v, "cache.redis_url", &cfg.Cache.RedisURL)
	setString(v, "serve.addr", &cfg.Serve.Addr)
	setString(v, "serve.auth_token", &cfg.Serve.AuthToken)
	setString(v, "serve.nonce_secret", &cfg.Serve.NonceSecret)

	if v.IsSet("log.debug") {
		cfg.Log.Debug = v.GetBool("log.debug")
	}
	if v.IsSet("schedule.run_on_start") {
		cfg.Schedule.RunOnStart = v.GetBool("schedule.run_on_start")
	}
	if v.IsSet("serve.rate_limit") {
		cfg.Serve.RateLimit = v.GetInt("serve.rate_limit")
	}
	if v.IsSet("serve.rate_burst") {
		cfg.Serve.RateBurst = v.GetInt("serve.rate_burst")
	}
	if v.IsSet("serve.max_runs") {
		cfg.Serve.MaxRuns = v.GetInt("serve.max_runs")
	}
	if v.IsSet("serve.cors_origins") {
		cfg.Serve.CORSOrigins = v.GetStringSlice("serve.cors_origins")
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"cache.ttl", &cfg.Cache.TTL},
		{"api.timeout", &cfg.API.Timeout},
		{"serve.shutdown_timeout", &cfg.Serve.ShutdownTimeout},
		{"schedule.interval", &cfg.Schedule.Interval},
	}
	for _, d := range durations {
		if !v.IsSet(d.key) {
			continue
		}
		parsed, err := parseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.target = parsed
	}

	if cfg.Schedule.Interval <= 0 {
		return nil, fmt.Errorf("schedule.interval must be positive")
	}
	if cfg.API.Timeout <= 0 {
		return nil, fmt.Errorf("api.timeout must be positive")
	}

	return cfg, nil
}

// parseDuration accepts Go durations ("90s") or a bare number of seconds.
func parseDuration(raw string) (time.Duration, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return 0, fmt.Errorf("cannot parse %q as a duration", raw)
}

func setString(v *viper.Viper, key string, target *string) {
	if v.IsSet(key) {
		*target = v.GetString(key)
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}

func applyDurationDefault(flags *pflag.FlagSet, name string, value time.Duration, setter func(time.Duration)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}
