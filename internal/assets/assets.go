// Package assets manages the static file the connectivity probe requests.
package assets

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Prefix is the URL path under which the server exposes the assets directory.
const Prefix = "/assets/"

const pingContent = "pong\n"

// Dir returns the assets directory inside the data directory.
func Dir(dataDir string) string {
	return filepath.Join(dataDir, "assets")
}

// EnsurePingAsset creates the probe file for target inside dir unless it
// already exists, so this server can answer the same probe for other
// monitors. Absolute targets, or paths outside Prefix, are left alone and
// the returned path is then empty.
func EnsurePingAsset(dir, target string, log *zap.Logger) (string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse probe target: %w", err)
	}
	if u.IsAbs() || !strings.HasPrefix(u.Path, Prefix) {
		log.Debug("probe target is not a local asset", zap.String("target", target))
		return "", nil
	}

	clean := path.Clean(u.Path)
	rel := strings.TrimPrefix(clean, Prefix)
	if rel == clean || rel == "" {
		return "", fmt.Errorf("probe target %q does not name a file", target)
	}
	file := filepath.Join(dir, filepath.FromSlash(rel))

	if _, err := os.Stat(file); err == nil {
		log.Info("ping asset already exists, skipping", zap.String("path", file))
		return file, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat ping asset: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return "", fmt.Errorf("ensure assets directory: %w", err)
	}
	if err := os.WriteFile(file, []byte(pingContent), 0o644); err != nil {
		return "", fmt.Errorf("write ping asset: %w", err)
	}
	log.Info("created ping asset", zap.String("path", file))
	return file, nil
}
