package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/headwalluk/vulnz-agent/internal/application"
	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	initForce bool
	initDir   string
)

// fileConfig is the on-disk layout of vulnz-agent.yaml.
type fileConfig struct {
	Site      fileSite      `yaml:"site"`
	Data      fileData      `yaml:"data"`
	Cache     fileCache     `yaml:"cache"`
	API       fileAPI       `yaml:"api"`
	Log       fileLog       `yaml:"log"`
	Serve     fileServe     `yaml:"serve"`
	Schedule  fileSchedule  `yaml:"schedule"`
	Overrides fileOverrides `yaml:"overrides"`
}

type fileSite struct {
	Root       string `yaml:"root"`
	PluginsDir string `yaml:"plugins_dir"`
	URL        string `yaml:"url"`
	Title      string `yaml:"title"`
}

type fileData struct {
	DBPath string `yaml:"db_path"`
}

type fileCache struct {
	Backend  string `yaml:"backend"`
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

type fileAPI struct {
	Timeout string `yaml:"timeout"`
}

type fileLog struct {
	Debug bool `yaml:"debug"`
}

type fileServe struct {
	Addr            string   `yaml:"addr"`
	AuthToken       string   `yaml:"auth_token"`
	NonceSecret     string   `yaml:"nonce_secret"`
	RateLimit       int      `yaml:"rate_limit"`
	RateBurst       int      `yaml:"rate_burst"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	MaxRuns         int      `yaml:"max_runs"`
}

type fileSchedule struct {
	Interval   string `yaml:"interval"`
	RunOnStart bool   `yaml:"run_on_start"`
}

// fileOverrides stays empty by default; any value set here wins over the
// persisted options.
type fileOverrides struct {
	Enabled string `yaml:"enabled,omitempty"`
	APIURL  string `yaml:"api_url,omitempty"`
	APIKey  string `yaml:"api_key,omitempty"`
}

func defaultFileConfig() fileConfig {
	cfg := newCLIConfig()
	return fileConfig{
		Site: fileSite{Root: cfg.Site.Root},
		Data: fileData{DBPath: cfg.Data.DBPath},
		Cache: fileCache{
			Backend: application.CacheMemory,
			TTL:     cfg.Cache.TTL.String(),
		},
		API: fileAPI{Timeout: cfg.API.Timeout.String()},
		Serve: fileServe{
			Addr:            cfg.Serve.Addr,
			RateLimit:       cfg.Serve.RateLimit,
			RateBurst:       cfg.Serve.RateBurst,
			CORSOrigins:     []string{},
			ShutdownTimeout: cfg.Serve.ShutdownTimeout.String(),
			MaxRuns:         cfg.Serve.MaxRuns,
		},
		Schedule: fileSchedule{
			Interval:   constants.SyncInterval.String(),
			RunOnStart: cfg.Schedule.RunOnStart,
		},
	}
}

// writeDefaultConfig writes a default configuration to path.
func writeDefaultConfig(path string) error {
	data, err := yaml.Marshal(defaultFileConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default vulnz-agent.yaml",
	Long: `Creates a default configuration file (vulnz-agent.yaml) in the chosen
directory. Edit site.root and site.url, then set the API key with
"vulnz-agent settings set api_key ..." and enable the agent.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := filepath.Join(initDir, defaultConfigName+".yaml")

		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("config file already exists at %s. Use --force to overwrite", configPath)
		}
		if err := os.MkdirAll(initDir, 0o750); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := writeDefaultConfig(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Created %s with default configuration\n", colorSuccess("✓"), configPath)
		fmt.Fprintln(out, "Next: set site.root and site.url, then run 'vulnz-agent settings set api_key <key>'.")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "output directory")
	rootCmd.AddCommand(initCmd)
}
