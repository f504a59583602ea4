package perception

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go.aimuz.me/basar/internal/types"
	"go.aimuz.me/basar/ocr"
)

// Tesseract reads text locally. It serves only the reading mode.
type Tesseract struct {
	rec *ocr.Recognizer
}

// NewTesseract creates a local OCR client.
func NewTesseract(cfg ocr.Config) (*Tesseract, error) {
	rec, err := ocr.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create tesseract client: %w", err)
	}
	return &Tesseract{rec: rec}, nil
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Submit(ctx context.Context, mode types.Mode, image []byte) (types.Result, error) {
	if mode != types.ModeReading {
		return types.Result{}, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}

	start := time.Now()
	text, err := t.rec.RecognizeText(ctx, image)
	if err != nil {
		return types.Result{}, &ServiceError{Err: err}
	}
	return types.Result{
		Kind:      types.ResultText,
		Mode:      mode,
		Text:      text,
		RequestID: uuid.NewString(),
		Latency:   time.Since(start),
	}, nil
}
