package perception

import (
	"context"
	"fmt"
	"strings"

	"go.aimuz.me/basar/internal/types"
)

// Router sends each mode to its own client, e.g. detection to the remote
// service and reading to local tesseract.
type Router struct {
	detect Client
	read   Client
}

// NewRouter creates a router. Either client may be nil if the mode is unused.
func NewRouter(detect, read Client) *Router {
	return &Router{detect: detect, read: read}
}

// Name returns "detect+read" client names, or a single name when shared.
func (r *Router) Name() string {
	var names []string
	if r.detect != nil {
		names = append(names, r.detect.Name())
	}
	if r.read != nil && (r.detect == nil || r.read.Name() != r.detect.Name()) {
		names = append(names, r.read.Name())
	}
	return strings.Join(names, "+")
}

// Client returns the client that serves mode.
func (r *Router) Client(mode types.Mode) (Client, error) {
	var c Client
	switch mode {
	case types.ModeDetecting:
		c = r.detect
	case types.ModeReading:
		c = r.read
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
	return c, nil
}

func (r *Router) Submit(ctx context.Context, mode types.Mode, image []byte) (types.Result, error) {
	c, err := r.Client(mode)
	if err != nil {
		return types.Result{}, err
	}
	return c.Submit(ctx, mode, image)
}
