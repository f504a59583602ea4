package camera

// AVFoundation video device 0 is the built-in camera.
const (
	defaultDevice = "0"
	defaultFormat = "avfoundation"
)
