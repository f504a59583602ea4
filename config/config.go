// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	appName         = "basar"
	configName      = "config"
	configType      = "toml"
	envPrefix       = "BASAR"
	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".config-*.toml.tmp"
)

// Perception provider names.
const (
	ProviderHTTP      = "http"
	ProviderOpenAI    = "openai"
	ProviderTesseract = "tesseract"
)

// Config represents the application configuration.
type Config struct {
	Gesture    GestureConfig    `mapstructure:"gesture" toml:"gesture"`
	Capture    CaptureConfig    `mapstructure:"capture" toml:"capture"`
	Perception PerceptionConfig `mapstructure:"perception" toml:"perception"`
	Narration  NarrationConfig  `mapstructure:"narration" toml:"narration"`
	Input      InputConfig      `mapstructure:"input" toml:"input"`
	Log        LogConfig        `mapstructure:"log" toml:"log"`
}

// GestureConfig configures tap recognition.
type GestureConfig struct {
	WindowMS int `mapstructure:"window_ms" toml:"window_ms"`
}

// CaptureConfig configures the capture loop and the frame source.
type CaptureConfig struct {
	DetectIntervalMS int          `mapstructure:"detect_interval_ms" toml:"detect_interval_ms"`
	ReadIntervalMS   int          `mapstructure:"read_interval_ms" toml:"read_interval_ms"`
	CycleTimeoutMS   int          `mapstructure:"cycle_timeout_ms" toml:"cycle_timeout_ms"`
	Camera           CameraConfig `mapstructure:"camera" toml:"camera"`
}

// CameraConfig selects where frames come from.
type CameraConfig struct {
	Kind    string `mapstructure:"kind" toml:"kind"` // device, dir or file
	Device  string `mapstructure:"device" toml:"device"`
	Format  string `mapstructure:"format" toml:"format"`
	Width   int    `mapstructure:"width" toml:"width"`
	Path    string `mapstructure:"path" toml:"path"`
	Pattern string `mapstructure:"pattern" toml:"pattern"`
	FFmpeg  string `mapstructure:"ffmpeg" toml:"ffmpeg"`
}

// PerceptionConfig configures the detection and OCR backends.
type PerceptionConfig struct {
	Detect    string          `mapstructure:"detect" toml:"detect"` // Provider for detection
	Read      string          `mapstructure:"read" toml:"read"`     // Provider for text reading
	URL       string          `mapstructure:"url" toml:"url"`
	DetectURL string          `mapstructure:"detect_url" toml:"detect_url,omitempty"`
	ReadURL   string          `mapstructure:"read_url" toml:"read_url,omitempty"`
	APIKey    string          `mapstructure:"api_key" toml:"api_key,omitempty"`
	TimeoutMS int             `mapstructure:"timeout_ms" toml:"timeout_ms"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" toml:"openai"`
	Tesseract TesseractConfig `mapstructure:"tesseract" toml:"tesseract"`
	Cache     CacheConfig     `mapstructure:"cache" toml:"cache"`
}

// OpenAIConfig configures the vision model backend.
type OpenAIConfig struct {
	APIKey   string `mapstructure:"api_key" toml:"api_key,omitempty"`
	BaseURL  string `mapstructure:"base_url" toml:"base_url,omitempty"`
	Model    string `mapstructure:"model" toml:"model"`
	Language string `mapstructure:"language" toml:"language"`
}

// TesseractConfig configures local OCR.
type TesseractConfig struct {
	Bin       string   `mapstructure:"bin" toml:"bin,omitempty"`
	Languages []string `mapstructure:"languages" toml:"languages"`
	PSM       int      `mapstructure:"psm" toml:"psm"`
}

// CacheConfig configures the perception result cache.
type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled" toml:"enabled"`
	Path       string `mapstructure:"path" toml:"path,omitempty"` // Empty keeps the cache in memory
	TTLSeconds int    `mapstructure:"ttl_seconds" toml:"ttl_seconds"`
}

// NarrationConfig configures speech output.
type NarrationConfig struct {
	Locale          string        `mapstructure:"locale" toml:"locale"`
	Engine          string        `mapstructure:"engine" toml:"engine"`
	DetectLanguage  bool          `mapstructure:"detect_language" toml:"detect_language"`
	Greeting        bool          `mapstructure:"greeting" toml:"greeting"`
	GreetingDelayMS int           `mapstructure:"greeting_delay_ms" toml:"greeting_delay_ms"`
	Phrases         PhrasesConfig `mapstructure:"phrases" toml:"phrases"`
}

// PhrasesConfig holds the fixed sentences spoken by the session.
// Empty phrases keep the built-in Arabic ones.
type PhrasesConfig struct {
	Detecting string `mapstructure:"detecting" toml:"detecting,omitempty"`
	Reading   string `mapstructure:"reading" toml:"reading,omitempty"`
	Idle      string `mapstructure:"idle" toml:"idle,omitempty"`
	Greeting  string `mapstructure:"greeting" toml:"greeting,omitempty"`
	NoObjects string `mapstructure:"no_objects" toml:"no_objects,omitempty"`
}

// InputConfig configures where taps come from.
type InputConfig struct {
	Hotkey      bool   `mapstructure:"hotkey" toml:"hotkey"`
	Key         string `mapstructure:"key" toml:"key"`
	ControlAddr string `mapstructure:"control_addr" toml:"control_addr,omitempty"` // Empty disables the HTTP control endpoint
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"` // text or json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Gesture: GestureConfig{WindowMS: 600},
		Capture: CaptureConfig{
			DetectIntervalMS: 5000,
			ReadIntervalMS:   3000,
			CycleTimeoutMS:   20000,
			Camera: CameraConfig{
				Kind:    "device",
				Width:   1280,
				Pattern: "*.{jpg,jpeg}",
				FFmpeg:  "ffmpeg",
			},
		},
		Perception: PerceptionConfig{
			Detect:    ProviderHTTP,
			Read:      ProviderHTTP,
			TimeoutMS: 15000,
			OpenAI: OpenAIConfig{
				Model:    "gpt-4o-mini",
				Language: "Arabic",
			},
			Tesseract: TesseractConfig{
				Languages: []string{"ara", "eng"},
				PSM:       3,
			},
			Cache: CacheConfig{TTLSeconds: 600},
		},
		Narration: NarrationConfig{
			Locale:          "ar-SA",
			Engine:          "auto",
			DetectLanguage:  true,
			Greeting:        true,
			GreetingDelayMS: 1500,
		},
		Input: InputConfig{Key: "space"},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Dir returns the directory holding the configuration file.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// Path returns the default configuration file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName+"."+configType), nil
}

// CacheDir returns the directory for logs and cached data.
func CacheDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("get user cache dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

// Load reads the configuration from path, or from the default location when
// path is empty. A missing default file yields the default configuration.
// Environment variables such as BASAR_PERCEPTION_URL override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()

	if cfg.Perception.OpenAI.APIKey == "" {
		cfg.Perception.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so that environment overrides apply
// even when the file does not mention the key.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("gesture.window_ms", d.Gesture.WindowMS)

	v.SetDefault("capture.detect_interval_ms", d.Capture.DetectIntervalMS)
	v.SetDefault("capture.read_interval_ms", d.Capture.ReadIntervalMS)
	v.SetDefault("capture.cycle_timeout_ms", d.Capture.CycleTimeoutMS)
	v.SetDefault("capture.camera.kind", d.Capture.Camera.Kind)
	v.SetDefault("capture.camera.device", d.Capture.Camera.Device)
	v.SetDefault("capture.camera.format", d.Capture.Camera.Format)
	v.SetDefault("capture.camera.width", d.Capture.Camera.Width)
	v.SetDefault("capture.camera.path", d.Capture.Camera.Path)
	v.SetDefault("capture.camera.pattern", d.Capture.Camera.Pattern)
	v.SetDefault("capture.camera.ffmpeg", d.Capture.Camera.FFmpeg)

	v.SetDefault("perception.detect", d.Perception.Detect)
	v.SetDefault("perception.read", d.Perception.Read)
	v.SetDefault("perception.url", d.Perception.URL)
	v.SetDefault("perception.detect_url", d.Perception.DetectURL)
	v.SetDefault("perception.read_url", d.Perception.ReadURL)
	v.SetDefault("perception.api_key", d.Perception.APIKey)
	v.SetDefault("perception.timeout_ms", d.Perception.TimeoutMS)
	v.SetDefault("perception.openai.api_key", d.Perception.OpenAI.APIKey)
	v.SetDefault("perception.openai.base_url", d.Perception.OpenAI.BaseURL)
	v.SetDefault("perception.openai.model", d.Perception.OpenAI.Model)
	v.SetDefault("perception.openai.language", d.Perception.OpenAI.Language)
	v.SetDefault("perception.tesseract.bin", d.Perception.Tesseract.Bin)
	v.SetDefault("perception.tesseract.languages", d.Perception.Tesseract.Languages)
	v.SetDefault("perception.tesseract.psm", d.Perception.Tesseract.PSM)
	v.SetDefault("perception.cache.enabled", d.Perception.Cache.Enabled)
	v.SetDefault("perception.cache.path", d.Perception.Cache.Path)
	v.SetDefault("perception.cache.ttl_seconds", d.Perception.Cache.TTLSeconds)

	v.SetDefault("narration.locale", d.Narration.Locale)
	v.SetDefault("narration.engine", d.Narration.Engine)
	v.SetDefault("narration.detect_language", d.Narration.DetectLanguage)
	v.SetDefault("narration.greeting", d.Narration.Greeting)
	v.SetDefault("narration.greeting_delay_ms", d.Narration.GreetingDelayMS)
	v.SetDefault("narration.phrases.detecting", d.Narration.Phrases.Detecting)
	v.SetDefault("narration.phrases.reading", d.Narration.Phrases.Reading)
	v.SetDefault("narration.phrases.idle", d.Narration.Phrases.Idle)
	v.SetDefault("narration.phrases.greeting", d.Narration.Phrases.Greeting)
	v.SetDefault("narration.phrases.no_objects", d.Narration.Phrases.NoObjects)

	v.SetDefault("input.hotkey", d.Input.Hotkey)
	v.SetDefault("input.key", d.Input.Key)
	v.SetDefault("input.control_addr", d.Input.ControlAddr)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// applyDefaults fills zero values a file may have set explicitly.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Gesture.WindowMS <= 0 {
		c.Gesture.WindowMS = d.Gesture.WindowMS
	}
	if c.Capture.DetectIntervalMS <= 0 {
		c.Capture.DetectIntervalMS = d.Capture.DetectIntervalMS
	}
	if c.Capture.ReadIntervalMS <= 0 {
		c.Capture.ReadIntervalMS = d.Capture.ReadIntervalMS
	}
	if c.Capture.CycleTimeoutMS <= 0 {
		c.Capture.CycleTimeoutMS = d.Capture.CycleTimeoutMS
	}
	if c.Perception.Detect == "" {
		c.Perception.Detect = d.Perception.Detect
	}
	if c.Perception.Read == "" {
		c.Perception.Read = d.Perception.Read
	}
	if c.Perception.Cache.TTLSeconds <= 0 {
		c.Perception.Cache.TTLSeconds = d.Perception.Cache.TTLSeconds
	}
	if c.Narration.Locale == "" {
		c.Narration.Locale = d.Narration.Locale
	}
	if c.Narration.Engine == "" {
		c.Narration.Engine = d.Narration.Engine
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	if err := validateProvider(c.Perception.Detect, false); err != nil {
		return fmt.Errorf("perception.detect: %w", err)
	}
	if err := validateProvider(c.Perception.Read, true); err != nil {
		return fmt.Errorf("perception.read: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	switch c.Capture.Camera.Kind {
	case "", "device", "dir", "file":
	default:
		return fmt.Errorf("capture.camera.kind: unknown kind %q", c.Capture.Camera.Kind)
	}
	return nil
}

func validateProvider(name string, ocr bool) error {
	switch name {
	case ProviderHTTP, ProviderOpenAI:
		return nil
	case ProviderTesseract:
		if ocr {
			return nil
		}
		return fmt.Errorf("tesseract cannot detect objects")
	default:
		return fmt.Errorf("unknown provider %q", name)
	}
}

// Warnings lists settings outside the recommended ranges. They are logged,
// not rejected.
func (c *Config) Warnings() []string {
	var out []string
	if w := c.GestureWindow(); w < 300*time.Millisecond || w > 600*time.Millisecond {
		out = append(out, fmt.Sprintf("gesture.window_ms %d is outside the recommended 300-600", c.Gesture.WindowMS))
	}
	if d := c.DetectInterval(); d < 3*time.Second || d > 5*time.Second {
		out = append(out, fmt.Sprintf("capture.detect_interval_ms %d is outside the recommended 3000-5000", c.Capture.DetectIntervalMS))
	}
	if d := c.ReadInterval(); d < 2*time.Second || d > 5*time.Second {
		out = append(out, fmt.Sprintf("capture.read_interval_ms %d is outside the recommended 2000-5000", c.Capture.ReadIntervalMS))
	}
	if c.usesProvider(ProviderHTTP) && c.Perception.URL == "" && (c.Perception.DetectURL == "" || c.Perception.ReadURL == "") {
		out = append(out, "perception.url is not set")
	}
	if c.usesProvider(ProviderOpenAI) && c.Perception.OpenAI.APIKey == "" {
		out = append(out, "perception.openai.api_key is not set")
	}
	return out
}

func (c *Config) usesProvider(name string) bool {
	return c.Perception.Detect == name || c.Perception.Read == name
}

// GestureWindow returns the tap grouping window.
func (c *Config) GestureWindow() time.Duration {
	return ms(c.Gesture.WindowMS)
}

// DetectInterval returns the capture period in detection mode.
func (c *Config) DetectInterval() time.Duration {
	return ms(c.Capture.DetectIntervalMS)
}

// ReadInterval returns the capture period in reading mode.
func (c *Config) ReadInterval() time.Duration {
	return ms(c.Capture.ReadIntervalMS)
}

// CycleTimeout returns the upper bound of one capture cycle.
func (c *Config) CycleTimeout() time.Duration {
	return ms(c.Capture.CycleTimeoutMS)
}

// PerceptionTimeout returns the perception request timeout.
func (c *Config) PerceptionTimeout() time.Duration {
	return ms(c.Perception.TimeoutMS)
}

// CacheTTL returns how long perception results are reused.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Perception.Cache.TTLSeconds) * time.Second
}

// GreetingDelay returns the pause before the startup greeting.
func (c *Config) GreetingDelay() time.Duration {
	return ms(c.Narration.GreetingDelayMS)
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Save writes the configuration to path, or to the default location when
// path is empty. The file is replaced atomically.
func (c *Config) Save(path string) (string, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return "", err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), configDirMode); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), tempFilePattern)
	if err != nil {
		return "", fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Chmod(configFileMode); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("chmod temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return "", fmt.Errorf("replace config: %w", err)
	}
	cleanup = false
	return path, nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
