package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DatabaseFilePerm protects the option database, which holds the API key.
	DatabaseFilePerm fs.FileMode = 0o600
)

// Persisted option names.
const (
	OptionEnabled     = "wp_vulnz_enabled"
	OptionAPIURL      = "wp_vulnz_api_url"
	OptionAPIKey      = "wp_vulnz_api_key"
	OptionLastCronRun = "wp_vulnz_last_cron_run"
)

// Deployment override names, read from the environment.
const (
	OverrideEnabled = "VULNZ_AGENT_ENABLED"
	OverrideAPIURL  = "VULNZ_AGENT_API_URL"
	OverrideAPIKey  = "VULNZ_AGENT_API_KEY"
)

const (
	// DefaultAPIURL is the Vulnz API base URL (without the /api path).
	DefaultAPIURL = "https://api.vulnz.net"
	// APIRequestTimeout bounds every request sent to the Vulnz API.
	APIRequestTimeout = 10 * time.Second
	// MaxResponseBytes caps how much of an API response body is read.
	MaxResponseBytes = 1 << 20
	// UserAgent identifies the agent to the Vulnz API.
	UserAgent = "vulnz-agent"
)

const (
	// WebsiteCacheKeyPrefix namespaces cached website records.
	WebsiteCacheKeyPrefix = "wp_vulnz_website_"
	// WebsiteDataCacheTTL is how long a fetched website record is reused.
	WebsiteDataCacheTTL = time.Minute
)

// ExtensionSortOrder selects the secondary sort key for plugin listings:
// "title" or "slug".
const ExtensionSortOrder = "title"

const (
	// SyncInterval is the period of the scheduled sync.
	SyncInterval = time.Hour
	// SyncNowAction names the nonce action guarding the interactive sync.
	SyncNowAction = "vulnz_agent_sync_now"
	// NonceLifetime matches the WordPress nonce lifetime.
	NonceLifetime = 24 * time.Hour
)

// DummyAPIKey is shown in place of a stored key; submitting it back keeps
// the stored key unchanged.
const DummyAPIKey = "API KEY HIDDEN FOR PRIVACY"

// MaskedKeyLength is the number of bullets used to display a stored key.
const MaskedKeyLength = 32

// User-facing messages shared by the CLI and the admin API.
const (
	MessageNotEnabled     = "Vulnz Agent API is not enabled."
	MessageOverridden     = "Note: Some settings are configured by deployment overrides and cannot be changed here."
	MessageNoWebsiteData  = `No data available for this website. Run "sync" to send data to the API.`
	MessageNoPluginData   = "No plugin data available for this website."
	MessageNoVulns        = "No known vulnerabilities"
	MessageSyncSuccessful = "Sync successful."
	MessageSyncFailed     = "Failed to sync with the API."
	MessageNonceFailed    = "Nonce verification failed."
)
