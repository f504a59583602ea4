// Package perception provides the perception client interface and its
// implementations: the remote detection/OCR service, a vision LLM, local
// tesseract OCR, a result cache and a per-mode router.
package perception

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.aimuz.me/basar/internal/types"
)

// Client submits one frame for analysis.
// Implementations must be safe for concurrent use.
type Client interface {
	// Name returns the client identifier.
	Name() string

	// Submit sends a JPEG frame and returns the decoded result.
	// Failures are *NetworkError or *ServiceError. A decodable payload with
	// missing fields yields an empty result and no error.
	Submit(ctx context.Context, mode types.Mode, image []byte) (types.Result, error)
}

// ErrUnsupportedMode is returned for modes a client cannot serve.
var ErrUnsupportedMode = errors.New("unsupported mode")

// NetworkError reports a transport failure or timeout.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("perception %s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServiceError reports a non-success status or an undecodable payload.
type ServiceError struct {
	Status int // HTTP status, 0 when not applicable
	Body   string
	Err    error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Err != nil && e.Status != 0:
		return fmt.Sprintf("perception service error %d: %v", e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("perception service error: %v", e.Err)
	default:
		return fmt.Sprintf("perception service error %d: %s", e.Status, e.Body)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// ─────────────────────────────────────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────────────────────────────────────

// Registry holds named perception clients.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
	}
}

// Register adds a client, replacing any client with the same name.
func (r *Registry) Register(c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.Name()] = c
}

// Get returns a client by name.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("perception client not registered: %s", name)
	}
	return c, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every registered client that holds resources.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, c := range r.clients {
		if cl, ok := c.(interface{ Close() error }); ok {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
