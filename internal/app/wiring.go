package app

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"go.aimuz.me/basar/cache"
	"go.aimuz.me/basar/camera"
	"go.aimuz.me/basar/config"
	"go.aimuz.me/basar/langdetect"
	"go.aimuz.me/basar/ocr"
	"go.aimuz.me/basar/perception"
	"go.aimuz.me/basar/session"
	"go.aimuz.me/basar/speech"
)

// CameraConfig converts the capture section to a camera configuration.
// Empty fields keep the platform defaults.
func CameraConfig(c config.CameraConfig) camera.Config {
	cc := camera.DefaultConfig()
	if c.Kind != "" {
		cc.Kind = camera.Kind(c.Kind)
	}
	if c.Device != "" {
		cc.Device = c.Device
	}
	if c.Format != "" {
		cc.Format = c.Format
	}
	if c.Width > 0 {
		cc.Width = c.Width
	}
	if c.Pattern != "" {
		cc.Pattern = c.Pattern
	}
	if c.FFmpeg != "" {
		cc.FFmpeg = c.FFmpeg
	}
	cc.Path = c.Path
	return cc
}

// Phrases merges the configured phrases over the built-in ones.
func Phrases(p config.PhrasesConfig) session.Phrases {
	out := session.DefaultPhrases()
	if p.Detecting != "" {
		out.Detecting = p.Detecting
	}
	if p.Reading != "" {
		out.Reading = p.Reading
	}
	if p.Idle != "" {
		out.Idle = p.Idle
	}
	if p.Greeting != "" {
		out.Greeting = p.Greeting
	}
	if p.NoObjects != "" {
		out.NoObjects = p.NoObjects
	}
	return out
}

// ControllerConfig builds the session controller configuration.
func ControllerConfig(cfg *config.Config) session.ControllerConfig {
	cc := session.ControllerConfig{
		DetectInterval: cfg.DetectInterval(),
		ReadInterval:   cfg.ReadInterval(),
		CycleTimeout:   cfg.CycleTimeout(),
		Locale:         cfg.Narration.Locale,
		Phrases:        Phrases(cfg.Narration.Phrases),
	}
	if cfg.Narration.DetectLanguage {
		cc.ReadingLocale = readingLocale
	}
	return cc
}

// readingLocale narrates recognized text in the language it is written in.
func readingLocale(text string) string {
	code := langdetect.Locale(text)
	if code == "" {
		return ""
	}
	return speech.LanguageToLocale(code)
}

// ─────────────────────────────────────────────────────────────────────────────
// Perception
// ─────────────────────────────────────────────────────────────────────────────

// Perception bundles the configured providers and the client the session
// talks to.
type Perception struct {
	Registry *perception.Registry
	Client   perception.Client
}

// Close releases every provider.
func (p *Perception) Close() error {
	return p.Registry.Close()
}

// NewPerception creates the providers named for each mode and routes
// requests between them. c may be nil to disable result caching.
func NewPerception(cfg *config.Config, c *cache.Cache) (*Perception, error) {
	reg := perception.NewRegistry()
	for _, name := range []string{cfg.Perception.Detect, cfg.Perception.Read} {
		if _, err := reg.Get(name); err == nil {
			continue
		}
		client, err := newProvider(name, cfg)
		if err != nil {
			return nil, fmt.Errorf("create %s provider: %w", name, err)
		}
		reg.Register(client)
	}

	detect, err := reg.Get(cfg.Perception.Detect)
	if err != nil {
		return nil, err
	}
	read, err := reg.Get(cfg.Perception.Read)
	if err != nil {
		return nil, err
	}

	var client perception.Client = perception.NewRouter(detect, read)
	if c != nil {
		client = perception.NewCached(client, c, cfg.CacheTTL())
	}
	slog.Info("perception ready", "detect", detect.Name(), "read", read.Name(), "cached", c != nil)
	return &Perception{Registry: reg, Client: client}, nil
}

func newProvider(name string, cfg *config.Config) (perception.Client, error) {
	p := cfg.Perception
	switch name {
	case config.ProviderHTTP:
		return perception.NewHTTP(perception.HTTPConfig{
			URL:       p.URL,
			DetectURL: p.DetectURL,
			ReadURL:   p.ReadURL,
			Timeout:   cfg.PerceptionTimeout(),
			APIKey:    p.APIKey,
		})
	case config.ProviderOpenAI:
		return perception.NewOpenAI(perception.OpenAIConfig{
			APIKey:   p.OpenAI.APIKey,
			BaseURL:  p.OpenAI.BaseURL,
			Model:    p.OpenAI.Model,
			Language: p.OpenAI.Language,
			Timeout:  cfg.PerceptionTimeout(),
		})
	case config.ProviderTesseract:
		return perception.NewTesseract(ocr.Config{
			BinPath:   p.Tesseract.Bin,
			Languages: p.Tesseract.Languages,
			PSM:       p.Tesseract.PSM,
		})
	default:
		return nil, fmt.Errorf("unknown perception provider: %q", name)
	}
}

// OpenCache opens the result cache when enabled. It returns nil, nil when
// caching is off.
func OpenCache(cfg *config.Config) (*cache.Cache, error) {
	cc := cfg.Perception.Cache
	if !cc.Enabled {
		return nil, nil
	}
	if cc.Path == "" {
		return cache.NewInMemory()
	}
	path := cc.Path
	if !filepath.IsAbs(path) {
		dir, err := config.CacheDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, path)
	}
	c, err := cache.New(path)
	if err != nil {
		return nil, err
	}
	slog.Info("cache initialized", "path", path)
	return c, nil
}

// NewSpeaker creates the configured speech engine.
func NewSpeaker(cfg *config.Config) (*speech.Speaker, error) {
	engine, err := speech.New(cfg.Narration.Engine)
	if err != nil {
		if errors.Is(err, speech.ErrNoEngine) {
			return nil, fmt.Errorf("%w (set narration.engine = \"console\" to print instead)", err)
		}
		return nil, err
	}
	return speech.NewSpeaker(engine), nil
}
