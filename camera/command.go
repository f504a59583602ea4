package camera

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Command grabs a single frame per call by running ffmpeg.
type Command struct {
	bin    string
	device string
	format string
	width  int
}

// NewCommand creates an ffmpeg-backed source.
func NewCommand(cfg Config) *Command {
	c := &Command{
		bin:    cfg.FFmpeg,
		device: cfg.Device,
		format: cfg.Format,
		width:  cfg.Width,
	}
	if c.bin == "" {
		c.bin = "ffmpeg"
	}
	if c.device == "" {
		c.device = defaultDevice
	}
	if c.format == "" && !isStreamURL(c.device) {
		c.format = defaultFormat
	}
	return c
}

// Args returns the ffmpeg arguments used to grab one JPEG to stdout.
func (c *Command) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	if c.format != "" {
		args = append(args, "-f", c.format)
	}
	args = append(args, "-i", c.device, "-frames:v", "1")
	if c.width > 0 {
		args = append(args, "-vf", "scale="+strconv.Itoa(c.width)+":-2")
	}
	return append(args, "-f", "image2", "-c:v", "mjpeg", "-q:v", "4", "pipe:1")
}

// Frame runs ffmpeg and returns the JPEG it writes.
func (c *Command) Frame(ctx context.Context) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.bin, c.Args()...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, c.bin, msg)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.bin, err)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: %s produced no frame", ErrUnavailable, c.bin)
	}
	return stdout.Bytes(), nil
}

func isStreamURL(device string) bool {
	return strings.Contains(device, "://")
}
