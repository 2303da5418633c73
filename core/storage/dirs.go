// Package storage resolves where the preprocessing cache lives, with XDG
// support and a project-local override.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const appDir = "sentgraph"

var (
	cacheDir     string
	cacheDirOnce sync.Once
	cacheDirErr  error
)

// ResolveCacheDir returns the platform-appropriate cache root for the
// preprocessing store: $XDG_CACHE_HOME/sentgraph when set, the user cache
// directory otherwise. The result is cached after the first call.
func ResolveCacheDir() (string, error) {
	cacheDirOnce.Do(func() {
		cacheDir, cacheDirErr = resolveCacheDirImpl()
	})
	return cacheDir, cacheDirErr
}

func resolveCacheDirImpl() (string, error) {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, appDir), nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("storage: resolve user cache dir: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// ProjectCacheDir returns the project-local cache root used when a dataset
// directory carries its own cache.
func ProjectCacheDir(datasetDir string) string {
	return filepath.Join(datasetDir, ".sentgraph-cache")
}
