// Package inbox turns files dropped into a directory into saves. .md
// and .txt files are parsed for capture frontmatter and handed to the
// save service; .url shortcuts become link saves. Every handled file is
// archived under processed/ (or failed/ when it cannot be captured), so
// a drop folder doubles as an import queue.
package inbox

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/parser"
	"github.com/starford/othala/internal/saveservice"
)

// Archive subdirectories inside the inbox. Files under these are never
// picked up again.
const (
	processedDir = "processed"
	failedDir    = "failed"
)

// settleDelay is how long a file must stay quiet after its last write
// before it is captured. Editors and browsers write in bursts.
const settleDelay = 200 * time.Millisecond

// Creator is the single service call the inbox needs.
type Creator interface {
	CreateSave(ctx context.Context, in saveservice.SaveInput) (*models.Record, error)
}

// Watch processes capture files under root until ctx is cancelled.
// Files already present at startup are captured first.
func Watch(ctx context.Context, svc Creator, root string, logger *slog.Logger) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("inbox: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("inbox: create root: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("inbox: start watcher: %w", err)
	}
	defer w.Close()

	if err := addDirsRecursive(w, abs); err != nil {
		return fmt.Errorf("inbox: watch root: %w", err)
	}

	logger.Info("inbox: started", slog.String("root", abs))

	// Capture whatever was dropped while the daemon was down.
	scanExisting(ctx, svc, abs, abs, logger)

	// settleTimer debounces bursts of writes; pending holds the files
	// waiting for their content to settle.
	var settleTimer *time.Timer
	var settleCh <-chan time.Time
	pending := make(map[string]struct{})

	scheduleSettle := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("inbox: stopped")
			return nil

		case <-settleCh:
			for p := range pending {
				delete(pending, p)
				processFile(ctx, svc, abs, p, logger)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			path := ev.Name
			if archived(abs, path) {
				continue
			}

			// Watch directories dropped in whole.
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, path); addErr != nil {
						logger.Warn("inbox: add new dir failed",
							slog.String("path", path),
							slog.String("error", addErr.Error()))
					}
					scanExisting(ctx, svc, abs, path, logger)
					continue
				}
			}

			if !isCaptureFile(path) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[path] = struct{}{}
				scheduleSettle()

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, path)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("inbox: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

// processFile captures one dropped file and archives it. Every outcome
// moves the file out of the inbox so nothing is tried twice.
func processFile(ctx context.Context, svc Creator, root, path string, logger *slog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("inbox: read failed", slog.String("path", path), slog.String("error", err.Error()))
		}
		return
	}

	rec, err := capture(ctx, svc, path, data)
	if err != nil {
		logger.Warn("inbox: capture failed",
			slog.String("path", path), slog.String("error", err.Error()))
		archive(root, path, failedDir, logger)
		return
	}

	logger.Info("inbox: captured",
		slog.String("path", filepath.Base(path)), slog.String("slug", rec.Slug))
	archive(root, path, processedDir, logger)
}

// captureExts are the file types the inbox accepts: Markdown captures,
// plain-text notes, and .url link shortcuts.
var captureExts = map[string]bool{".md": true, ".txt": true, ".url": true}

func isCaptureFile(path string) bool {
	return captureExts[strings.ToLower(filepath.Ext(path))]
}

// capture maps a dropped file onto a save. Markdown and text run
// through the capture parser; .url shortcuts become link saves titled
// after the file.
func capture(ctx context.Context, svc Creator, path string, data []byte) (*models.Record, error) {
	if strings.EqualFold(filepath.Ext(path), ".url") {
		u := shortcutURL(data)
		if u == "" {
			return nil, fmt.Errorf("inbox: no URL line in %s", filepath.Base(path))
		}
		return svc.CreateSave(ctx, saveservice.SaveInput{
			URL:   u,
			Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		})
	}

	c, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	in := saveservice.SaveInput{
		Slug:        c.Slug,
		URL:         c.URL,
		Title:       c.Title,
		Body:        c.Body,
		Type:        models.ContentType(c.Type),
		Tags:        c.Tags,
		Refs:        c.Refs,
		Visibility:  models.Visibility(c.Visibility),
		Collections: c.Collections,
		Recipients:  c.Recipients,
	}
	if in.URL == "" && in.Type == "" {
		in.Type = models.TypeNote
	}
	return svc.CreateSave(ctx, in)
}

// archive moves a handled file into an inbox subdirectory, stamped so
// repeated drops of the same name never clobber each other.
func archive(root, path, subdir string, logger *slog.Logger) {
	dir := filepath.Join(root, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("inbox: create archive dir failed", slog.String("error", err.Error()))
		return
	}
	dest := filepath.Join(dir, time.Now().Format("20060102-150405")+"-"+filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		logger.Warn("inbox: archive failed",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}

// scanExisting captures files already under dir, skipping archives.
// root is the inbox root, where handled files get archived.
func scanExisting(ctx context.Context, svc Creator, root, dir string, logger *slog.Logger) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if base := d.Name(); base == processedDir || base == failedDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !isCaptureFile(path) {
			return nil
		}
		processFile(ctx, svc, root, path, logger)
		return nil
	})
}

// shortcutURL pulls the URL= line out of an [InternetShortcut] file.
func shortcutURL(data []byte) string {
	for _, line := range strings.Split(string(data), "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "URL="); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// archived reports whether path sits under one of the archive dirs.
func archived(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	sep := string(os.PathSeparator)
	return strings.HasPrefix(rel, processedDir+sep) || strings.HasPrefix(rel, failedDir+sep)
}

// addDirsRecursive adds root and all its subdirectories to the
// watcher, leaving the archive dirs alone.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if base := d.Name(); base == processedDir || base == failedDir {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
