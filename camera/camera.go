// Package camera provides frame sources for the capture loop.
package camera

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrUnavailable is returned when no frame can be produced.
// Source failures wrap it.
var ErrUnavailable = errors.New("camera unavailable")

// Source produces one encoded JPEG frame per call.
type Source interface {
	Frame(ctx context.Context) ([]byte, error)
}

// Kind selects a Source implementation.
type Kind string

const (
	KindDevice Kind = "device" // Grab frames from a capture device with ffmpeg
	KindDir    Kind = "dir"    // Newest image dropped into a directory
	KindFile   Kind = "file"   // A single static image
)

// Config holds configuration for frame acquisition.
type Config struct {
	Kind    Kind   `json:"kind"`
	Device  string `json:"device"`  // Device name, index or stream URL
	Format  string `json:"format"`  // ffmpeg input format, default per platform
	Width   int    `json:"width"`   // Optional scale-down width
	Path    string `json:"path"`    // Directory or file path
	Pattern string `json:"pattern"` // Glob for the dir source, default "*.{jpg,jpeg}"
	FFmpeg  string `json:"ffmpeg"`  // ffmpeg binary, default "ffmpeg"
}

// DefaultConfig returns the default camera configuration.
func DefaultConfig() Config {
	return Config{
		Kind:    KindDevice,
		Device:  defaultDevice,
		Format:  defaultFormat,
		Width:   1280,
		Pattern: "*.{jpg,jpeg}",
		FFmpeg:  "ffmpeg",
	}
}

// New creates the source described by cfg.
// The returned source may hold resources; close it with Close.
func New(cfg Config) (Source, error) {
	switch cfg.Kind {
	case KindDevice, "":
		return NewCommand(cfg), nil
	case KindDir:
		return NewDir(cfg.Path, cfg.Pattern)
	case KindFile:
		return NewFile(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown camera kind: %q", cfg.Kind)
	}
}

// Close releases the source if it holds resources.
func Close(src Source) error {
	if c, ok := src.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// File
// ─────────────────────────────────────────────────────────────────────────────

// File serves the same image on every call.
type File struct {
	path string
}

// NewFile creates a source for a static image.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: image path is required", ErrUnavailable)
	}
	return &File{path: path}, nil
}

// Frame reads the image from disk. The file is read on each call so that it
// can be replaced while running.
func (f *File) Frame(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnavailable, f.path)
	}
	return data, nil
}
