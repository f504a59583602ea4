//go:build !darwin

package camera

const (
	defaultDevice = "/dev/video0"
	defaultFormat = "v4l2"
)
