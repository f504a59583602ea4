package perception

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"go.aimuz.me/basar/internal/types"
)

const defaultVisionModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for the vision model client.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string        // Optional, for OpenAI-compatible servers
	Model    string        // Optional, defaults to gpt-4o-mini
	Language string        // Language the labels are written in, e.g. "Arabic"
	Timeout  time.Duration // Optional, defaults to 30s
}

// OpenAI asks a vision-capable chat model to detect objects or read text.
// The model is instructed to answer in the same JSON shape as the remote
// perception service.
type OpenAI struct {
	client   openai.Client
	model    string
	language string
}

// NewOpenAI creates a vision model client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultVisionModel
	}
	if cfg.Language == "" {
		cfg.Language = "Arabic"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		// The next capture cycle is the retry.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client:   openai.NewClient(opts...),
		model:    cfg.Model,
		language: cfg.Language,
	}, nil
}

func (o *OpenAI) Name() string { return "openai" }

// Submit sends the frame inline as a data URL.
func (o *OpenAI) Submit(ctx context.Context, mode types.Mode, image []byte) (types.Result, error) {
	prompt, err := o.prompt(mode)
	if err != nil {
		return types.Result{}, err
	}

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    dataURL,
					Detail: "low",
				}),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return types.Result{}, &ServiceError{Status: apiErr.StatusCode, Err: err}
		}
		return types.Result{}, &NetworkError{Op: "chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return types.Result{}, &ServiceError{Err: errors.New("no choices")}
	}

	result, err := decodeResult(mode, []byte(resp.Choices[0].Message.Content))
	if err != nil {
		return types.Result{}, &ServiceError{Err: err}
	}
	result.RequestID = resp.ID
	if result.RequestID == "" {
		result.RequestID = uuid.NewString()
	}
	result.Latency = time.Since(start)
	return result, nil
}

func (o *OpenAI) prompt(mode types.Mode) (string, error) {
	switch mode {
	case types.ModeDetecting:
		return fmt.Sprintf(
			"You describe a camera frame for a blind person. List the main objects in view, nearest first. "+
				"Answer only with JSON: {\"objects\":[{\"label\":string,\"distance_label\":string}]}. "+
				"Write labels and distances in %s. Use short distance words such as near or far. "+
				"Return {\"objects\":[]} if nothing is recognizable.", o.language), nil
	case types.ModeReading:
		return "You read printed text in a camera frame for a blind person. " +
			"Answer only with JSON: {\"text\":string}, the text exactly as written, in reading order. " +
			"Return {\"text\":\"\"} if there is no legible text.", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
}
