package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/headwalluk/vulnz-agent/internal/application/sitesync"
	"github.com/headwalluk/vulnz-agent/internal/domain/website"
	"github.com/headwalluk/vulnz-agent/internal/inventory"
	"github.com/headwalluk/vulnz-agent/internal/settings"
	"github.com/headwalluk/vulnz-agent/internal/shared/constants"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap/zaptest"
)

func TestRenderSummary(t *testing.T) {
	disableColor(t)
	site := inventory.NewSite("https://example.com/", "Example")

	t.Run("not enabled and no record", func(t *testing.T) {
		var buf bytes.Buffer
		if err := renderSummary(&buf, sitesync.Overview{Site: site}); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		for _, want := range []string{constants.MessageNotEnabled, constants.MessageNoWebsiteData, "Last run: never"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in:\n%s", want, out)
			}
		}
	})

	t.Run("record without plugin list", func(t *testing.T) {
		var buf bytes.Buffer
		ov := sitesync.Overview{Enabled: true, Site: site, Record: &website.Record{Domain: "example.com"}}
		if err := renderSummary(&buf, ov); err != nil {
			t.Fatal(err)
		}
		out := buf.String()
		if !strings.Contains(out, constants.MessageNoPluginData) {
			t.Fatalf("expected no plugin data message:\n%s", out)
		}
		if strings.Contains(out, constants.MessageNotEnabled) {
			t.Fatalf("unexpected not-enabled notice:\n%s", out)
		}
	})

	t.Run("plugin table", func(t *testing.T) {
		var buf bytes.Buffer
		ov := sitesync.Overview{
			Enabled:    true,
			Site:       site,
			HasLastRun: true,
			LastRun:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			Record: &website.Record{
				Domain: "example.com",
				Extensions: []website.Extension{
					{Slug: "forms", Title: "Forms", Version: "1.0", Vulnerabilities: []website.Reference{website.NewReference("https://vulnz.test/a"), website.NewReference("https://vulnz.test/b")}},
					{Slug: "flagged", Version: "2.0", HasVulnerabilities: true},
					{Slug: "akismet", Title: "Akismet", Version: "5.3"},
				},
			},
		}
		if err := renderSummary(&buf, ov); err != nil {
			t.Fatal(err)
		}
		out := buf.String()

		if !strings.Contains(out, "2 of 3 plugins have known vulnerabilities") {
			t.Errorf("expected vulnerable count:\n%s", out)
		}
		if strings.Contains(out, "Last run: never") {
			t.Errorf("expected last run timestamp:\n%s", out)
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		var tableRows []string
		for i, line := range lines {
			if strings.HasPrefix(line, "PLUGIN") {
				tableRows = lines[i+1:]
				break
			}
		}
		if len(tableRows) != 4 {
			t.Fatalf("expected 4 table rows, got %d:\n%s", len(tableRows), out)
		}
		if !strings.HasPrefix(tableRows[0], "Forms") || !strings.Contains(tableRows[0], "https://vulnz.test/a") {
			t.Errorf("unexpected first row %q", tableRows[0])
		}
		if strings.TrimSpace(tableRows[1]) != "https://vulnz.test/b" {
			t.Errorf("expected continuation row, got %q", tableRows[1])
		}
		if !strings.HasPrefix(tableRows[2], "flagged") || !strings.Contains(tableRows[2], "vulnerable") {
			t.Errorf("expected slug fallback and vulnerable marker, got %q", tableRows[2])
		}
		if !strings.Contains(tableRows[3], constants.MessageNoVulns) {
			t.Errorf("expected no vulnerabilities message, got %q", tableRows[3])
		}
	})
}

func TestRenderSettings(t *testing.T) {
	disableColor(t)
	views := []settings.View{
		{Name: "enabled", Value: "1", Origin: settings.OriginOption},
		{Name: "api_url", Value: "https://vulnz.test", Origin: settings.OriginOverride, Overridden: true},
		{Name: "api_key", Value: "", Origin: settings.OriginDefault},
	}

	var buf bytes.Buffer
	if err := renderSettings(&buf, views, true); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "! "+constants.MessageOverridden) {
		t.Fatalf("expected override notice first:\n%s", out)
	}
	if !strings.Contains(out, "api_key") || !strings.Contains(out, "-") {
		t.Fatalf("expected empty value rendered as dash:\n%s", out)
	}

	buf.Reset()
	if err := renderSettings(&buf, views, false); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), constants.MessageOverridden) {
		t.Fatalf("unexpected notice:\n%s", buf.String())
	}
}

func TestSettingsCommandError(t *testing.T) {
	err := settingsCommandError("api_url", sharedErrors.ErrSettingOverridden)
	if !strings.Contains(err.Error(), "deployment override") {
		t.Fatalf("unexpected message %q", err)
	}
	other := errors.New("boom")
	if got := settingsCommandError("api_url", other); got != other {
		t.Fatalf("expected other errors unchanged, got %v", got)
	}
}

func TestWriteDefaultConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vulnz-agent.yaml")
	if err := writeDefaultConfig(path); err != nil {
		t.Fatalf("writeDefaultConfig: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "interval: 1h0m0s") {
		t.Fatalf("expected readable durations:\n%s", data)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("read back: %v", err)
	}
	cfg, err := loadCLIConfig(v)
	if err != nil {
		t.Fatalf("loadCLIConfig: %v", err)
	}
	want := newCLIConfig()
	if cfg.Schedule.Interval != want.Schedule.Interval || cfg.Cache.TTL != want.Cache.TTL || cfg.API.Timeout != want.API.Timeout {
		t.Fatalf("durations did not round trip: %+v", cfg)
	}
	if cfg.Serve.Addr != want.Serve.Addr || cfg.Cache.Backend != want.Cache.Backend {
		t.Fatalf("defaults did not round trip: %+v", cfg)
	}
	if settings.NewOverrideSource(v).Any() {
		t.Fatal("default config must not carry overrides")
	}
}

func TestInitCommandRefusesToOverwrite(t *testing.T) {
	disableColor(t)
	t.Cleanup(func() {
		viper.Reset()
		initDir = "."
		initForce = false
	})
	dir := t.TempDir()

	out, err := executeCLI(t, "init", "--dir", dir)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, filepath.Join(dir, "vulnz-agent.yaml")) {
		t.Fatalf("unexpected output:\n%s", out)
	}

	if _, err := executeCLI(t, "init", "--dir", dir); err == nil {
		t.Fatal("expected init to refuse an existing config")
	}
	if _, err := executeCLI(t, "init", "--dir", dir, "--force"); err != nil {
		t.Fatalf("init --force: %v", err)
	}
}

type countingRunner struct {
	calls atomic.Int32
	err   error
}

func (r *countingRunner) RunScheduled(ctx context.Context) error {
	r.calls.Add(1)
	return r.err
}

func TestRunSchedulerRunsOnStartAndStops(t *testing.T) {
	runner := &countingRunner{err: sharedErrors.ErrSyncDisabled}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runScheduler(ctx, runner, time.Hour, true, zaptest.NewLogger(t))
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("expected a run on start")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if got := runner.calls.Load(); got != 1 {
		t.Fatalf("expected exactly one run, got %d", got)
	}
}

func TestRunSchedulerTicks(t *testing.T) {
	runner := &countingRunner{err: errors.New("api down")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		runScheduler(ctx, runner, 5*time.Millisecond, false, nil)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runner.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected ticks, got %d", runner.calls.Load())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done
}
