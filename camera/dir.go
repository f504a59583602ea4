package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// Dir serves the newest image written into a watched directory.
// It lets an external grabber (a phone app, a webcam daemon) feed frames.
type Dir struct {
	dir     string
	pattern glob.Glob
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	latest  string
	modTime time.Time

	stop chan struct{}
	done chan struct{}
}

// NewDir starts watching dir for files whose base name matches pattern.
func NewDir(dir, pattern string) (*Dir, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: frame directory is required", ErrUnavailable)
	}
	if pattern == "" {
		pattern = "*.{jpg,jpeg}"
	}
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, fmt.Errorf("compile frame pattern %q: %w", pattern, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnavailable, dir)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	d := &Dir{
		dir:     dir,
		pattern: g,
		watcher: w,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	d.scan()
	go d.loop()
	return d, nil
}

// Latest returns the path of the newest matching file, or "".
func (d *Dir) Latest() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.latest
}

// Frame reads the newest matching file.
func (d *Dir) Frame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := d.Latest()
	if path == "" {
		return nil, fmt.Errorf("%w: no frames in %s", ErrUnavailable, d.dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(data) == 0 {
		// Still being written.
		return nil, fmt.Errorf("%w: %s is empty", ErrUnavailable, path)
	}
	return data, nil
}

// Close stops watching.
func (d *Dir) Close() error {
	select {
	case <-d.stop:
		return nil
	default:
	}
	close(d.stop)
	err := d.watcher.Close()
	<-d.done
	return err
}

func (d *Dir) matches(path string) bool {
	return d.pattern.Match(strings.ToLower(filepath.Base(path)))
}

// scan picks the newest matching file already present.
func (d *Dir) scan() {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		slog.Warn("failed to scan frame directory", "dir", d.dir, "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !d.matches(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		d.offer(filepath.Join(d.dir, e.Name()), info.ModTime())
	}
}

// offer records path if it is newer than the current latest frame.
func (d *Dir) offer(path string, mod time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latest == "" || !mod.Before(d.modTime) {
		d.latest = path
		d.modTime = mod
	}
}

func (d *Dir) forget(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.latest == path {
		d.latest = ""
		d.modTime = time.Time{}
	}
}

func (d *Dir) loop() {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if !d.matches(ev.Name) {
				continue
			}
			switch {
			case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
				info, err := os.Stat(ev.Name)
				if err != nil || info.IsDir() {
					continue
				}
				d.offer(ev.Name, info.ModTime())
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				d.forget(ev.Name)
				d.scan()
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("frame directory watcher error", "dir", d.dir, "error", err)
		}
	}
}
