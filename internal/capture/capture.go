// Package capture turns a browser download into a file at a caller-chosen path.
// The filesystem is the ground truth: the download directory is diffed against
// a snapshot taken before the trigger, rather than trusting download events.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
)

// TempDirPrefix names the private per-capture directory created next to the output.
const TempDirPrefix = ".nano-banana-dl-"

// Trigger starts the download, typically by clicking the download control.
type Trigger func(ctx context.Context) error

// File is one entry of a directory snapshot.
type File struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Capturer implements the snapshot, trigger, diff and move sequence.
type Capturer struct {
	cfg    config.DownloadConfig
	logger *zap.Logger
}

// NewCapturer creates a Capturer.
func NewCapturer(cfg config.DownloadConfig, logger *zap.Logger) *Capturer {
	return &Capturer{cfg: cfg, logger: logger.Named("capture")}
}

// Timeout is how long Capture waits for a completed file once triggered.
func (c *Capturer) Timeout() time.Duration { return c.cfg.Timeout }

// Capture routes the next download of page into a private directory beside
// outputPath, runs trigger, waits for a completed file and moves it to
// outputPath. It returns outputPath unchanged on success.
func (c *Capturer) Capture(ctx context.Context, page schemas.Page, trigger Trigger, outputPath string) (string, error) {
	log := c.logger.With(zap.String("page_id", page.ID()), zap.String("output", outputPath))

	dest := filepath.Dir(outputPath)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", &schemas.DownloadFailureError{Detail: "could not create the output directory", Err: err}
	}

	// Concurrent attempts writing to the same destination each get their own
	// directory, so one attempt's diff never sees another's file.
	tmp := filepath.Join(dest, TempDirPrefix+uuid.NewString())
	if err := os.Mkdir(tmp, 0o700); err != nil {
		return "", &schemas.DownloadFailureError{Detail: "could not create the download directory", Err: err}
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			log.Warn("Failed to remove the download directory.", zap.String("dir", tmp), zap.Error(err))
		}
	}()

	before, err := Snapshot(tmp)
	if err != nil {
		return "", &schemas.DownloadFailureError{Detail: "could not list the download directory", Err: err}
	}

	release, err := page.ExpectDownload(ctx, tmp)
	if err != nil {
		return "", &schemas.DownloadFailureError{Detail: "could not route the download", Err: err}
	}
	defer release()

	watcher := c.watch(tmp, log)
	if watcher != nil {
		defer watcher.Close()
	}

	if err := trigger(ctx); err != nil {
		return "", err
	}
	log.Debug("Download triggered.", zap.String("dir", tmp))

	name, err := c.await(ctx, tmp, before, watcher)
	if err != nil {
		return "", err
	}
	if err := move(filepath.Join(tmp, name), outputPath); err != nil {
		return "", &schemas.DownloadFailureError{Detail: "could not move the downloaded file into place", Err: err}
	}
	log.Info("Download captured.", zap.String("file", name))
	return outputPath, nil
}

// watch returns a watcher on dir, or nil when notifications are unavailable;
// the ticker alone still drives the wait in that case.
func (c *Capturer) watch(dir string, log *zap.Logger) *fsnotify.Watcher {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		log.Debug("Filesystem notifications unavailable; polling only.", zap.Error(err))
		return nil
	}
	if err := w.Add(dir); err != nil {
		log.Debug("Could not watch the download directory; polling only.", zap.Error(err))
		_ = w.Close()
		return nil
	}
	return w
}

func (c *Capturer) await(ctx context.Context, dir string, before []File, watcher *fsnotify.Watcher) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events, errs = watcher.Events, watcher.Errors
	}

	start := time.Now()
	for {
		after, err := Snapshot(dir)
		if err != nil {
			return "", &schemas.DownloadFailureError{Detail: "could not list the download directory", Err: err}
		}
		if f, ok := Pick(Added(before, after), c.cfg.PartialSuffixes); ok {
			return f.Name, nil
		}

		select {
		case <-ticker.C:
		case <-events:
		case err := <-errs:
			c.logger.Debug("Download directory watcher error.", zap.Error(err))
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", &schemas.DownloadFailureError{
				Detail: fmt.Sprintf("no completed download appeared within %v", time.Since(start).Round(time.Millisecond)),
			}
		}
	}
}

// Snapshot lists the regular files in dir.
func Snapshot(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]File, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Renamed away between ReadDir and Info, as partial files are.
			continue
		}
		files = append(files, File{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	return files, nil
}

// Added returns the files of after whose names are absent from before.
func Added(before, after []File) []File {
	seen := make(map[string]struct{}, len(before))
	for _, f := range before {
		seen[f.Name] = struct{}{}
	}
	var out []File
	for _, f := range after {
		if _, ok := seen[f.Name]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Pick selects the most recently modified file that does not carry one of the
// partial-download suffixes.
func Pick(candidates []File, partialSuffixes []string) (File, bool) {
	var best File
	found := false
	for _, f := range candidates {
		if IsPartial(f.Name, partialSuffixes) {
			continue
		}
		if !found || f.ModTime.After(best.ModTime) {
			best, found = f, true
		}
	}
	return best, found
}

// IsPartial reports whether name is an in-progress download.
func IsPartial(name string, partialSuffixes []string) bool {
	lower := strings.ToLower(name)
	for _, s := range partialSuffixes {
		if s != "" && strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across devices and, on some platforms, onto an existing file.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return errors.Join(in.Close(), os.Remove(src))
}
