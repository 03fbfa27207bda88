package inventory

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/headwalluk/vulnz-agent/internal/shared/security"
)

var wpVersionPattern = regexp.MustCompile(`\$wp_version\s*=\s*['"]([^'"]+)['"]`)

// CoreVersion reads the WordPress version from wp-includes/version.php.
func (s *Scanner) CoreVersion() (string, error) {
	if err := s.checkRoot(); err != nil {
		return "", err
	}

	path, err := security.ResolveWithin(s.root, "wp-includes", "version.php")
	if err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open core version file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read core version file: %w", err)
	}

	m := wpVersionPattern.FindSubmatch(data)
	if m == nil {
		return "", fmt.Errorf("no $wp_version assignment in %s", path)
	}
	return string(m[1]), nil
}
