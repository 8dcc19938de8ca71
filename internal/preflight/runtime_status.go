package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"renote/internal/config"
	"renote/internal/sources"
)

// WatchProbe reports the current watch-directory intake snapshot.
type WatchProbe struct {
	Configured bool
	Path       string
	Sessions   int
}

// ProbeWatchDir inspects the configured watch directory and counts session
// directories holding at least one model stream.
func ProbeWatchDir(cfg *config.Config) WatchProbe {
	var probe WatchProbe
	if cfg == nil {
		return probe
	}
	path := strings.TrimSpace(cfg.Paths.WatchDir)
	if path == "" {
		return probe
	}
	probe.Configured = true
	probe.Path = path

	entries, err := os.ReadDir(path)
	if err != nil {
		return probe
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		found, err := sources.DiscoverSources(filepath.Join(path, entry.Name()))
		if err != nil || len(found) == 0 {
			continue
		}
		probe.Sessions++
	}
	return probe
}

// Detail renders a display-friendly summary for status UIs.
func (p WatchProbe) Detail() string {
	if !p.Configured {
		return "Watch directory not configured"
	}
	switch p.Sessions {
	case 0:
		return fmt.Sprintf("No sessions waiting in %s", p.Path)
	case 1:
		return fmt.Sprintf("1 session waiting in %s", p.Path)
	default:
		return fmt.Sprintf("%d sessions waiting in %s", p.Sessions, p.Path)
	}
}
