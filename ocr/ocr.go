// Package ocr recognizes text in images with the tesseract CLI.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoBinary is returned when tesseract cannot be found.
var ErrNoBinary = errors.New("tesseract not found")

// Config holds configuration for the recognizer.
type Config struct {
	BinPath   string   // Optional, searched in PATH and common locations
	Languages []string // Tesseract language codes, e.g. "ara", "eng"
	PSM       int      // Page segmentation mode, 0 keeps the tesseract default
}

// DefaultConfig returns the default recognizer configuration.
func DefaultConfig() Config {
	return Config{
		Languages: []string{"ara", "eng"},
		PSM:       3,
	}
}

// Recognizer runs tesseract on encoded images.
type Recognizer struct {
	bin  string
	args []string
}

// New locates tesseract and prepares the command line.
func New(cfg Config) (*Recognizer, error) {
	bin := cfg.BinPath
	if bin == "" {
		bin = findBinary()
	}
	if bin == "" {
		return nil, ErrNoBinary
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultConfig().Languages
	}

	// Read the image from stdin and write plain text to stdout.
	args := []string{"stdin", "stdout", "-l", strings.Join(cfg.Languages, "+")}
	if cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprint(cfg.PSM))
	}
	return &Recognizer{bin: bin, args: args}, nil
}

// Args returns the tesseract arguments.
func (r *Recognizer) Args() []string {
	return append([]string(nil), r.args...)
}

// RecognizeText returns the text found in image.
func (r *Recognizer) RecognizeText(ctx context.Context, image []byte) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.bin, r.args...)
	cmd.Stdin = bytes.NewReader(image)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("tesseract: %s: %w", msg, err)
		}
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func findBinary() string {
	if path, err := exec.LookPath("tesseract"); err == nil {
		return path
	}
	locations := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		"/usr/bin",
	}
	for _, loc := range locations {
		path := filepath.Join(loc, "tesseract")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
