// internal/capture/capture_test.go
package capture_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
	"github.com/hffmnnj/nano-banana-cli/internal/capture"
	"github.com/hffmnnj/nano-banana-cli/internal/config"
	"github.com/hffmnnj/nano-banana-cli/internal/mocks"
)

func testConfig() config.DownloadConfig {
	return config.DownloadConfig{
		Timeout:         2 * time.Second,
		PollInterval:    10 * time.Millisecond,
		PartialSuffixes: []string{".crdownload", ".part"},
	}
}

func tempDirs(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, capture.TempDirPrefix+"*"))
	require.NoError(t, err)
	return matches
}

func TestCapture_SingleFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "nested", "cat.png")
	page := mocks.NewFakePage("p1")
	c := capture.NewCapturer(testConfig(), zaptest.NewLogger(t))

	got, err := c.Capture(context.Background(), page, func(ctx context.Context) error {
		return page.EmitDownload("Gemini_Generated_Image.png", []byte("png-bytes"))
	}, out)
	require.NoError(t, err)
	assert.Equal(t, out, got)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Empty(t, tempDirs(t, filepath.Dir(out)), "private download directory is removed")
}

func TestCapture_DelayedDownload(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "late.png")
	page := mocks.NewFakePage("p1")
	c := capture.NewCapturer(testConfig(), zaptest.NewLogger(t))

	trigger := func(ctx context.Context) error {
		if err := page.EmitDownload("img.png.crdownload", []byte("par")); err != nil {
			return err
		}
		go func() {
			time.Sleep(50 * time.Millisecond)
			tmp := page.DownloadDir()
			_ = os.Rename(filepath.Join(tmp, "img.png.crdownload"), filepath.Join(tmp, "img.png"))
		}()
		return nil
	}

	_, err := c.Capture(context.Background(), page, trigger, out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "par", string(data))
}

func TestCapture_PrefersCompleteOverPartial(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "pick.png")
	page := mocks.NewFakePage("p1")
	c := capture.NewCapturer(testConfig(), zaptest.NewLogger(t))

	trigger := func(ctx context.Context) error {
		tmp := page.DownloadDir()
		now := time.Now()
		for name, data := range map[string]string{"a.png.crdownload": "partial", "b.png": "complete"} {
			path := filepath.Join(tmp, name)
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				return err
			}
			if err := os.Chtimes(path, now, now); err != nil {
				return err
			}
		}
		return nil
	}

	_, err := c.Capture(context.Background(), page, trigger, out)
	require.NoError(t, err)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "complete", string(data))
}

func TestCapture_Timeout(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Timeout = 60 * time.Millisecond
	page := mocks.NewFakePage("p1")
	c := capture.NewCapturer(cfg, zaptest.NewLogger(t))

	_, err := c.Capture(context.Background(), page, func(ctx context.Context) error {
		return page.EmitDownload("still.png.part", []byte("x"))
	}, filepath.Join(dir, "never.png"))

	var dlErr *schemas.DownloadFailureError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, schemas.KindDownloadFailure, schemas.KindOf(err))
	assert.NoFileExists(t, filepath.Join(dir, "never.png"))
	assert.Empty(t, tempDirs(t, dir))
}

func TestCapture_TriggerErrorPropagates(t *testing.T) {
	dir := t.TempDir()
	page := mocks.NewFakePage("p1")
	c := capture.NewCapturer(testConfig(), zaptest.NewLogger(t))
	want := schemas.NewSelectorNotFoundError("download button")

	_, err := c.Capture(context.Background(), page, func(ctx context.Context) error { return want }, filepath.Join(dir, "x.png"))
	assert.ErrorIs(t, err, want)
	assert.Empty(t, tempDirs(t, dir))
}

func TestCapture_ClosedPage(t *testing.T) {
	page := mocks.NewFakePage("p1")
	require.NoError(t, page.Close(context.Background()))
	c := capture.NewCapturer(testConfig(), zaptest.NewLogger(t))

	_, err := c.Capture(context.Background(), page, func(ctx context.Context) error { return nil }, filepath.Join(t.TempDir(), "x.png"))
	assert.Equal(t, schemas.KindDownloadFailure, schemas.KindOf(err))
	assert.ErrorIs(t, err, mocks.ErrPageClosed)
}

func TestCapture_ConcurrentSameDirectory(t *testing.T) {
	dir := t.TempDir()
	c := capture.NewCapturer(testConfig(), zaptest.NewLogger(t))

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page := mocks.NewFakePage(fmt.Sprintf("p%d", i))
			out := filepath.Join(dir, fmt.Sprintf("img-%d.png", i))
			_, errs[i] = c.Capture(context.Background(), page, func(ctx context.Context) error {
				// Every browser names the file the same; the private directories keep them apart.
				return page.EmitDownload("image.png", []byte(fmt.Sprint(i)))
			}, out)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err)
		data, err := os.ReadFile(filepath.Join(dir, fmt.Sprintf("img-%d.png", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), string(data))
	}
}

func TestCapture_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	page := mocks.NewFakePage("p1")
	c := capture.NewCapturer(testConfig(), zaptest.NewLogger(t))

	_, err := c.Capture(ctx, page, func(context.Context) error {
		cancel()
		return nil
	}, filepath.Join(t.TempDir(), "x.png"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPick(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	suffixes := []string{".crdownload", ".part"}

	tests := []struct {
		name  string
		files []capture.File
		want  string
		ok    bool
	}{
		{"empty", nil, "", false},
		{"only partials", []capture.File{{Name: "a.png.crdownload", ModTime: t0}, {Name: "b.PART", ModTime: t0}}, "", false},
		{"latest wins", []capture.File{{Name: "old.png", ModTime: t0}, {Name: "new.png", ModTime: t0.Add(time.Second)}}, "new.png", true},
		{"partial newer than complete", []capture.File{{Name: "done.png", ModTime: t0}, {Name: "next.png.crdownload", ModTime: t0.Add(time.Second)}}, "done.png", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := capture.Pick(tt.files, suffixes)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestAdded(t *testing.T) {
	before := []capture.File{{Name: "a"}, {Name: "b"}}
	after := []capture.File{{Name: "a"}, {Name: "b"}, {Name: "c"}}
	added := capture.Added(before, after)
	require.Len(t, added, 1)
	assert.Equal(t, "c", added[0].Name)
}
