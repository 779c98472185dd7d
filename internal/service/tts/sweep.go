package tts

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const tempPrefix = "personal-dj-"

// Sweep удаляет из dir синтезированную речь старше ttl, оставшуюся после аварийного выхода.
// Возвращает число удалённых файлов.
func Sweep(dir string, ttl time.Duration, logger *zap.SugaredLogger) int {
	if ttl <= 0 || dir == "" {
		return 0
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warnw("Failed to read temp dir for sweep", "dir", dir, "error", err)
		}
		return 0
	}

	deadline := time.Now().Add(-ttl)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, tempPrefix) {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".mp3", ".wav":
		default:
			continue
		}
		fi, err := e.Info()
		if err != nil || !fi.ModTime().Before(deadline) {
			continue
		}
		full := filepath.Join(dir, name)
		if err := os.Remove(full); err != nil {
			logger.Warnw("Failed to remove stale audio", "path", full, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Infow("Stale audio removed", "dir", dir, "removed", removed)
	}
	return removed
}
