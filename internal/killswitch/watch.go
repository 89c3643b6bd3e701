package killswitch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"basegraph.app/pagebot/common/logger"
)

// Watch keeps s in sync with a flag file: the switch is engaged while the
// file exists, unless its content is "0", "false" or "off".
// It blocks until ctx is done.
func Watch(ctx context.Context, s *Switch, path string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "pagebot.killswitch"})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and config management replace files
	// instead of writing them in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	apply(ctx, s, path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			apply(ctx, s, path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "kill switch watcher error", "error", err)
		}
	}
}

func apply(ctx context.Context, s *Switch, path string) {
	engaged := FileEngaged(path)
	if s.Set(engaged) {
		slog.WarnContext(ctx, "kill switch changed by file", "engaged", engaged, "path", path)
	}
}

// FileEngaged reports the switch state the file at path asks for.
func FileEngaged(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(string(raw))) {
	case "0", "false", "off":
		return false
	}
	return true
}
