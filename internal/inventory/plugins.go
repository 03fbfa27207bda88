package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/headwalluk/vulnz-agent/internal/domain/website"
	sharedErrors "github.com/headwalluk/vulnz-agent/internal/shared/errors"
	"github.com/headwalluk/vulnz-agent/internal/shared/security"
	"go.uber.org/zap"
)

// Plugin is one installed plugin found on disk.
type Plugin struct {
	// File is the main file relative to the plugins directory, using
	// forward slashes ("akismet/akismet.php" or "hello.php").
	File    string
	Slug    string
	Name    string
	Version string
}

// Scanner reads a WordPress installation from disk.
type Scanner struct {
	root       string
	pluginsDir string
	logger     *zap.Logger
}

// NewScanner returns a scanner for the installation at root. An empty
// pluginsDir means wp-content/plugins under root.
func NewScanner(root, pluginsDir string, logger *zap.Logger) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{root: root, pluginsDir: pluginsDir, logger: logger}
}

// Root returns the installation directory.
func (s *Scanner) Root() string {
	return s.root
}

func (s *Scanner) checkRoot() error {
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", sharedErrors.ErrSiteRootMissing, s.root)
	}
	return nil
}

func (s *Scanner) resolvePluginsDir() (string, error) {
	if s.pluginsDir != "" {
		return filepath.Abs(s.pluginsDir)
	}
	return security.ResolveWithin(s.root, "wp-content", "plugins")
}

// Plugins lists installed plugins sorted by name, case-insensitively, as
// WordPress lists them. A plugin directory holding several main files
// contributes only its first one.
func (s *Scanner) Plugins() ([]Plugin, error) {
	if err := s.checkRoot(); err != nil {
		return nil, err
	}

	dir, err := s.resolvePluginsDir()
	if err != nil {
		return nil, fmt.Errorf("resolve plugins directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("plugins directory not found", zap.String("dir", dir))
		return []Plugin{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read plugins directory: %w", err)
	}

	linkBase := s.root
	if s.pluginsDir != "" {
		linkBase = dir
	}

	var candidates []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		full, err := security.ResolveWithin(dir, name)
		if err != nil {
			continue
		}

		info, err := os.Stat(full)
		if err != nil {
			s.logger.Debug("skipping unreadable plugin entry", zap.String("path", full), zap.Error(err))
			continue
		}

		if !info.IsDir() {
			if isPHP(name) {
				candidates = append(candidates, name)
			}
			continue
		}

		if entry.Type()&fs.ModeSymlink != 0 && !security.RealWithin(linkBase, full) {
			s.logger.Debug("skipping plugin directory linked outside the site", zap.String("path", full))
			continue
		}

		subEntries, err := os.ReadDir(full)
		if err != nil {
			s.logger.Debug("skipping unreadable plugin directory", zap.String("path", full), zap.Error(err))
			continue
		}
		for _, sub := range subEntries {
			if sub.IsDir() || strings.HasPrefix(sub.Name(), ".") || !isPHP(sub.Name()) {
				continue
			}
			candidates = append(candidates, name+"/"+sub.Name())
		}
	}
	sort.Strings(candidates)

	seen := make(map[string]bool, len(candidates))
	plugins := make([]Plugin, 0, len(candidates))
	for _, rel := range candidates {
		slug := SlugFromFile(rel)
		if seen[slug] {
			continue
		}

		headers, err := ReadHeaders(filepath.Join(dir, filepath.FromSlash(rel)), FieldPluginName, FieldVersion)
		if err != nil {
			s.logger.Debug("skipping unreadable plugin file", zap.String("file", rel), zap.Error(err))
			continue
		}
		if headers[FieldPluginName] == "" {
			continue
		}

		seen[slug] = true
		plugins = append(plugins, Plugin{
			File:    rel,
			Slug:    slug,
			Name:    headers[FieldPluginName],
			Version: headers[FieldVersion],
		})
	}

	sort.SliceStable(plugins, func(i, j int) bool {
		ni, nj := strings.ToLower(plugins[i].Name), strings.ToLower(plugins[j].Name)
		if ni != nj {
			return ni < nj
		}
		return plugins[i].Slug < plugins[j].Slug
	})

	return plugins, nil
}

// InstalledExtensions is Plugins reduced to the slug/version pairs the
// API accepts.
func (s *Scanner) InstalledExtensions() ([]website.InstalledExtension, error) {
	plugins, err := s.Plugins()
	if err != nil {
		return nil, err
	}
	out := make([]website.InstalledExtension, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, website.InstalledExtension{Slug: p.Slug, Version: p.Version})
	}
	return out, nil
}

// SlugFromFile derives a plugin slug from its main file path relative to
// the plugins directory: the directory name, or the file name without
// ".php" for single-file plugins.
func SlugFromFile(rel string) string {
	rel = filepath.ToSlash(rel)
	if dir := path.Dir(rel); dir != "." {
		return strings.SplitN(dir, "/", 2)[0]
	}
	return strings.TrimSuffix(path.Base(rel), ".php")
}

func isPHP(name string) bool {
	return strings.HasSuffix(name, ".php")
}
