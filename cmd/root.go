package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/headwalluk/vulnz-agent/internal/application"
	"github.com/headwalluk/vulnz-agent/internal/settings"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "VULNZ_AGENT"

var cfgFile string
var debug bool

// AppContext carries what every command needs: configuration, the logger
// and, opened on first use, the service container.
type AppContext struct {
	Logger    *zap.SugaredLogger
	Config    *CLIConfig
	Overrides *settings.OverrideSource

	services *application.Container
}

type appContextKey struct{}

var globalAppContext *AppContext

var rootCmd = &cobra.Command{
	Use:           "vulnz-agent",
	Short:         "Report a WordPress site's plugins to the Vulnz API and show known vulnerabilities",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := readConfig(viper.GetViper()); err != nil {
			return err
		}

		cfg, err := loadCLIConfig(viper.GetViper())
		if err != nil {
			return err
		}
		applyBoolDefault(cmd.Flags(), "debug", cfg.Log.Debug, func(v bool) { debug = v })
		cfg.Log.Debug = debug

		l, err := newLogger(cfg.Log.Debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		storeAppContext(cmd, &AppContext{
			Logger:    l.Sugar(),
			Config:    cfg,
			Overrides: settings.NewOverrideSource(viper.GetViper()),
		})
		l.Debug("configuration loaded",
			zap.String("config_file", viper.ConfigFileUsed()),
			zap.String("db_path", cfg.Data.DBPath),
			zap.String("cache_backend", cfg.Cache.Backend),
		)
		return nil
	},
}

// readConfig loads the config file and binds VULNZ_AGENT_* environment
// variables. A missing config file is not an error unless one was named.
func readConfig(v *viper.Viper) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, defaultConfigName))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && cfgFile == "" {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// newLogger returns a development logger in debug mode, where API client
// diagnostics are visible, and a production logger otherwise.
func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
	if cmd == nil {
		return
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(context.WithValue(ctx, appContextKey{}, appCtx))
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if cmd != nil && cmd.Context() != nil {
		if appCtx, ok := cmd.Context().Value(appContextKey{}).(*AppContext); ok {
			return appCtx
		}
	}
	return globalAppContext
}

// Services opens the container on first use.
func (a *AppContext) Services() (*application.Container, error) {
	if a.services != nil {
		return a.services, nil
	}
	cfg := a.Config
	services, err := application.NewContainer(application.Options{
		DBPath:       cfg.Data.DBPath,
		SiteRoot:     cfg.Site.Root,
		PluginsDir:   cfg.Site.PluginsDir,
		SiteURL:      cfg.Site.URL,
		SiteTitle:    cfg.Site.Title,
		CacheBackend: cfg.Cache.Backend,
		RedisURL:     cfg.Cache.RedisURL,
		CacheTTL:     cfg.Cache.TTL,
		APITimeout:   cfg.API.Timeout,
		Overrides:    a.Overrides,
		MaxRuns:      cfg.Serve.MaxRuns,
		Logger:       a.Logger.Desugar(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	a.services = services
	return services, nil
}

// Close releases the container and flushes the logger.
func (a *AppContext) Close() error {
	if a == nil {
		return nil
	}
	var err error
	if a.services != nil {
		err = a.services.Close()
		a.services = nil
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return err
}

func Execute() {
	err := rootCmd.Execute()
	if closeErr := globalAppContext.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./vulnz-agent.yaml or $XDG_CONFIG_HOME/vulnz-agent/vulnz-agent.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (API client diagnostics)")

	rootCmd.AddCommand(versionCmd)
}
