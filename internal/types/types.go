// Package types provides shared type definitions for the application.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Mode is the active perception task.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDetecting
	ModeReading
)

// String returns the mode name used in logs and status output.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeDetecting:
		return "detecting"
	case ModeReading:
		return "reading"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// WireName returns the name the perception service expects for the mode.
// Idle has no wire name.
func (m Mode) WireName() string {
	switch m {
	case ModeDetecting:
		return "detect"
	case ModeReading:
		return "ocr"
	default:
		return ""
	}
}

// ParseMode accepts both the display and the wire spelling of a mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "idle", "none", "":
		return ModeIdle, nil
	case "detecting", "detect":
		return ModeDetecting, nil
	case "reading", "read", "ocr":
		return ModeReading, nil
	default:
		return ModeIdle, fmt.Errorf("unknown mode: %q", s)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Perception Results
// ─────────────────────────────────────────────────────────────────────────────

// ResultKind tags the variant held by a Result.
type ResultKind int

const (
	ResultDetection ResultKind = iota
	ResultText
)

// BoundingBox is an object box in frame pixel coordinates.
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Object is a single detected object.
type Object struct {
	Label    string      `json:"label"`
	Box      BoundingBox `json:"box"`
	HasBox   bool        `json:"hasBox"`
	Distance string      `json:"distance,omitempty"` // e.g. "near", "2m"
}

// Caption returns "label distance" as shown on the overlay.
func (o Object) Caption() string {
	if o.Distance == "" {
		return o.Label
	}
	return o.Label + " " + o.Distance
}

// Result is the outcome of one perception request.
// Kind selects which of Objects/Summary or Text is meaningful.
type Result struct {
	Kind      ResultKind    `json:"kind"`
	Mode      Mode          `json:"mode"`
	Objects   []Object      `json:"objects,omitempty"`
	Summary   string        `json:"summary,omitempty"` // Service-provided detection summary
	Text      string        `json:"text,omitempty"`    // Recognized text
	Message   string        `json:"message,omitempty"` // Service status text
	RequestID string        `json:"requestId,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// IsEmpty reports whether the result found nothing: no objects, or blank
// text. A summary alone does not count.
func (r Result) IsEmpty() bool {
	switch r.Kind {
	case ResultDetection:
		return len(r.Objects) == 0
	default:
		return strings.TrimSpace(r.Text) == ""
	}
}

// Status is a snapshot of the session shown on the status display.
type Status struct {
	Mode      Mode      `json:"mode"`
	Text      string    `json:"text"`
	Err       string    `json:"error,omitempty"`
	Busy      bool      `json:"busy"`     // A capture cycle is in flight
	Speaking  bool      `json:"speaking"` // Narration is audible
	Cycles    int       `json:"cycles"`   // Completed capture cycles in this mode
	Skipped   int       `json:"skipped"`  // Ticks skipped by the single-flight guard
	UpdatedAt time.Time `json:"updatedAt"`
}
