// Package config holds narrator's settings, their defaults and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/segment"
	"github.com/dgnsrekt/narrator/internal/synth"
)

// AppName scopes config, data and cache directories.
const AppName = "narrator"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the full settings tree, as read from narrator.yml.
type Config struct {
	Debug     bool            `yaml:"debug" mapstructure:"debug"`
	Library   LibraryConfig   `yaml:"library" mapstructure:"library"`
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
	Synthesis SynthesisConfig `yaml:"synthesis" mapstructure:"synthesis"`
	Segment   SegmentConfig   `yaml:"segment" mapstructure:"segment"`
	Job       JobConfig       `yaml:"job" mapstructure:"job"`
	Playback  PlaybackConfig  `yaml:"playback" mapstructure:"playback"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
}

// LibraryConfig locates the book metadata database.
type LibraryConfig struct {
	// Path to the SQLite database, or ":memory:"
	Path string `yaml:"path" mapstructure:"path"`
}

// ArtifactsConfig locates recorded audio.
type ArtifactsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// SynthesisConfig configures the speech service.
type SynthesisConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
	Voice   string `yaml:"voice" mapstructure:"voice"`
	// Prefer OPENAI_API_KEY over storing the key here.
	APIKey            string `yaml:"api_key" mapstructure:"api_key"`
	Format            string `yaml:"format" mapstructure:"format"`
	TimeoutSeconds    int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// SegmentConfig bounds the text sent per request.
type SegmentConfig struct {
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`
	// Sentences above this estimate are split on words; 0 never splits.
	HardLimit int `yaml:"hard_limit" mapstructure:"hard_limit"`
}

// JobConfig tunes recording runs.
type JobConfig struct {
	MinChapterChars int `yaml:"min_chapter_chars" mapstructure:"min_chapter_chars"`
}

// PlaybackConfig tunes the audio output.
type PlaybackConfig struct {
	Volume float64 `yaml:"volume" mapstructure:"volume"`
}

// CacheConfig controls the synthesis response cache. When enabled,
// re-recording unchanged text reuses earlier audio instead of calling the
// service again.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
	MemoryMB int    `yaml:"memory_mb" mapstructure:"memory_mb"`
	DiskMB   int    `yaml:"disk_mb" mapstructure:"disk_mb"`
}

// Env is read from the process environment.
type Env struct {
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	NoTUI        bool   `env:"NARRATOR_NO_TUI"`
	Editor       string `env:"EDITOR" envDefault:"nano"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Library:   LibraryConfig{Path: filepath.Join(DataDir(), "library.db")},
		Artifacts: ArtifactsConfig{Dir: filepath.Join(DataDir(), "audio")},
		Synthesis: SynthesisConfig{
			BaseURL:        synth.DefaultBaseURL,
			Model:          synth.DefaultModel,
			Voice:          synth.DefaultVoice,
			Format:         synth.DefaultFormat,
			TimeoutSeconds: int(synth.DefaultTimeout / time.Second),
		},
		Segment:  SegmentConfig{MaxTokens: segment.DefaultMaxTokens},
		Job:      JobConfig{MinChapterChars: 10},
		Playback: PlaybackConfig{Volume: 1.0},
		Cache: CacheConfig{
			Dir:      filepath.Join(CacheDir(), "synthesis"),
			MemoryMB: 64,
			DiskMB:   512,
		},
	}
}

// DataDir is where the library and recordings live by default.
func DataDir() string {
	scope := gap.NewScope(gap.User, AppName)
	if dirs, err := scope.DataDirs(); err == nil && len(dirs) > 0 {
		return dirs[0]
	}
	if home, err := homedir.Dir(); err == nil {
		return filepath.Join(home, ".local", "share", AppName)
	}
	return AppName
}

// CacheDir is where disposable files such as the log and the synthesis
// cache live.
func CacheDir() string {
	if dir, err := gap.NewScope(gap.User, AppName).CacheDir(); err == nil {
		return dir
	}
	return filepath.Join(os.TempDir(), AppName)
}

// ConfigDirs lists where narrator.yml is looked for, most specific first.
func ConfigDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, fmt.Errorf("could not find configuration directory: %w", err)
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("NARRATOR_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// SetDefaults registers every key with v so environment overrides such as
// NARRATOR_SYNTHESIS_VOICE apply even when the key is absent from the file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("debug", d.Debug)
	v.SetDefault("library.path", d.Library.Path)
	v.SetDefault("artifacts.dir", d.Artifacts.Dir)
	v.SetDefault("synthesis.base_url", d.Synthesis.BaseURL)
	v.SetDefault("synthesis.model", d.Synthesis.Model)
	v.SetDefault("synthesis.voice", d.Synthesis.Voice)
	v.SetDefault("synthesis.api_key", d.Synthesis.APIKey)
	v.SetDefault("synthesis.format", d.Synthesis.Format)
	v.SetDefault("synthesis.timeout_seconds", d.Synthesis.TimeoutSeconds)
	v.SetDefault("synthesis.requests_per_minute", d.Synthesis.RequestsPerMinute)
	v.SetDefault("segment.max_tokens", d.Segment.MaxTokens)
	v.SetDefault("segment.hard_limit", d.Segment.HardLimit)
	v.SetDefault("job.min_chapter_chars", d.Job.MinChapterChars)
	v.SetDefault("playback.volume", d.Playback.Volume)
	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_mb", d.Cache.MemoryMB)
	v.SetDefault("cache.disk_mb", d.Cache.DiskMB)
}

// BindEnv makes NARRATOR_SECTION_KEY override section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.Library.Path = ExpandPath(cfg.Library.Path)
	cfg.Artifacts.Dir = ExpandPath(cfg.Artifacts.Dir)
	cfg.Cache.Dir = ExpandPath(cfg.Cache.Dir)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Library.Path == "" {
		errs = append(errs, errors.New("library.path must be set"))
	}
	if c.Artifacts.Dir == "" {
		errs = append(errs, errors.New("artifacts.dir must be set"))
	}
	if c.Synthesis.BaseURL == "" {
		errs = append(errs, errors.New("synthesis.base_url must be set"))
	}
	if c.Synthesis.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("synthesis.timeout_seconds must be positive, got %d", c.Synthesis.TimeoutSeconds))
	}
	if c.Synthesis.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("synthesis.requests_per_minute cannot be negative, got %d", c.Synthesis.RequestsPerMinute))
	}
	if c.Segment.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("segment.max_tokens must be positive, got %d", c.Segment.MaxTokens))
	}
	if c.Segment.HardLimit < 0 {
		errs = append(errs, fmt.Errorf("segment.hard_limit cannot be negative, got %d", c.Segment.HardLimit))
	}
	if c.Segment.HardLimit > 0 && c.Segment.HardLimit < c.Segment.MaxTokens {
		errs = append(errs, fmt.Errorf("segment.hard_limit (%d) must not be below segment.max_tokens (%d)",
			c.Segment.HardLimit, c.Segment.MaxTokens))
	}
	if c.Job.MinChapterChars < 0 {
		errs = append(errs, fmt.Errorf("job.min_chapter_chars cannot be negative, got %d", c.Job.MinChapterChars))
	}
	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		errs = append(errs, fmt.Errorf("playback.volume must be between 0.0 and 1.0, got %.2f", c.Playback.Volume))
	}
	if c.Cache.Enabled {
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir must be set when the cache is enabled"))
		}
		if c.Cache.MemoryMB < 0 || c.Cache.DiskMB <= 0 {
			errs = append(errs, fmt.Errorf("cache sizes must be positive, got memory_mb=%d disk_mb=%d", c.Cache.MemoryMB, c.Cache.DiskMB))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// ClientConfig maps synthesis settings to the HTTP client's config.
func (s SynthesisConfig) ClientConfig() synth.Config {
	return synth.Config{
		BaseURL:           s.BaseURL,
		Model:             s.Model,
		Format:            s.Format,
		Timeout:           time.Duration(s.TimeoutSeconds) * time.Second,
		RequestsPerMinute: s.RequestsPerMinute,
	}
}

// CacheOptions maps cache settings to the cache's config.
func (c CacheConfig) CacheOptions() cache.Config {
	cfg := cache.DefaultConfig(c.Dir)
	cfg.MemoryBytes = int64(c.MemoryMB) << 20
	cfg.DiskBytes = int64(c.DiskMB) << 20
	return cfg
}

// Options maps segment settings to segmenter options.
func (s SegmentConfig) Options() segment.Options {
	return segment.Options{MaxTokens: s.MaxTokens, HardLimit: s.HardLimit}
}

// Credential picks the API key: the flag, then the config file, then
// OPENAI_API_KEY.
func (c Config) Credential(flag string, e Env) string {
	switch {
	case flag != "":
		return flag
	case c.Synthesis.APIKey != "":
		return c.Synthesis.APIKey
	default:
		return e.OpenAIAPIKey
	}
}

// ParseEnv loads an optional .env file from the working directory, then
// reads the environment. Variables already set win over the file.
func ParseEnv() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Env{}, fmt.Errorf("failed to read .env: %w", err)
	}
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return e, nil
}

// Marshal renders c as YAML with a short header.
func Marshal(c Config) ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	header := `# narrator configuration
#
# Every key can be overridden with an environment variable, e.g.
# NARRATOR_SYNTHESIS_VOICE=nova. The API key is read from OPENAI_API_KEY
# when synthesis.api_key is empty.

`
	return append([]byte(header), data...), nil
}

// WriteDefault writes the default configuration to path unless a file is
// already there.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("unable to create directory: %w", err)
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}

// ExpandPath expands a leading ~ and environment variables.
func ExpandPath(path string) string {
	if path == "" || path == ":memory:" {
		return path
	}
	path = os.ExpandEnv(path)
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	return path
}
