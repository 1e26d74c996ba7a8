package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all live-scribe environment variables.
const EnvPrefix = "LIVE_SCRIBE_"

// Supported speech-to-text backends.
const (
	TranscriberGemini   = "gemini"
	TranscriberOpenAI   = "openai"
	TranscriberDeepgram = "deepgram"
)

const defaultTranscribeModel = "gemini-2.5-flash"

// DefaultDenylist holds phrases speech models tend to hallucinate on silence.
var DefaultDenylist = []string{"I'm getting into it", "Thank you", "Amara.org", "subtitle"}

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string   `yaml:"listen_addr"`
	DBPath                string   `yaml:"db_path"`
	AudioDir              string   `yaml:"audio_dir"`
	NotesDir              string   `yaml:"notes_dir"`
	Transcriber           string   `yaml:"transcriber"`
	TranscribeModel       string   `yaml:"transcribe_model"`
	TranscribeTimeout     string   `yaml:"transcribe_timeout"`
	SummaryModel          string   `yaml:"summary_model"`
	DrainTimeout          string   `yaml:"drain_timeout"`
	IdleTimeout           string   `yaml:"idle_timeout"`
	HistoryLimit          int      `yaml:"history_limit"`
	Denylist              []string `yaml:"denylist"`
	LogLevel              string   `yaml:"log_level"`
	GDriveFolderID        string   `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string   `yaml:"google_credentials_file"`

	// Secrets come from env vars only and are never serialized to YAML.
	GeminiAPIKey    string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	AnthropicAPIKey string `yaml:"-"`
	DeepgramAPIKey  string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            ":3000",
		DBPath:                "data/live-scribe.db",
		AudioDir:              "data/audio",
		NotesDir:              "data/notes",
		Transcriber:           TranscriberGemini,
		TranscribeModel:       defaultTranscribeModel,
		TranscribeTimeout:     "60s",
		SummaryModel:          "gemini/gemini-2.5-flash",
		DrainTimeout:          "10s",
		IdleTimeout:           "0s",
		HistoryLimit:          10,
		Denylist:              append([]string(nil), DefaultDenylist...),
		LogLevel:              "info",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedTranscribeTimeout returns TranscribeTimeout, falling back to 60s.
func (c *Config) ParsedTranscribeTimeout() time.Duration {
	return parseDuration(c.TranscribeTimeout, 60*time.Second)
}

// ParsedDrainTimeout returns DrainTimeout, falling back to 10s.
func (c *Config) ParsedDrainTimeout() time.Duration {
	return parseDuration(c.DrainTimeout, 10*time.Second)
}

// ParsedIdleTimeout returns IdleTimeout. Zero disables the idle watchdog.
func (c *Config) ParsedIdleTimeout() time.Duration {
	return parseDuration(c.IdleTimeout, 0)
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// APIKeyFor returns the secret for an LLM or speech provider name.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "anthropic":
		return c.AnthropicAPIKey
	case "deepgram":
		return c.DeepgramAPIKey
	default:
		return ""
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_DIR"); v != "" {
		cfg.AudioDir = v
	}
	if v := os.Getenv(EnvPrefix + "NOTES_DIR"); v != "" {
		cfg.NotesDir = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBER"); v != "" {
		cfg.Transcriber = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_MODEL"); v != "" {
		cfg.TranscribeModel = v
	}
	if v := os.Getenv(EnvPrefix + "TRANSCRIBE_TIMEOUT"); v != "" {
		cfg.TranscribeTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "SUMMARY_MODEL"); v != "" {
		cfg.SummaryModel = v
	}
	if v := os.Getenv(EnvPrefix + "DRAIN_TIMEOUT"); v != "" {
		cfg.DrainTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "IDLE_TIMEOUT"); v != "" {
		cfg.IdleTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.HistoryLimit = n
		}
	}
	if v := os.Getenv(EnvPrefix + "DENYLIST"); v != "" {
		cfg.Denylist = parseList(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.GeminiAPIKey = os.Getenv(EnvPrefix + "GEMINI_API_KEY")
	cfg.OpenAIAPIKey = os.Getenv(EnvPrefix + "OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv(EnvPrefix + "ANTHROPIC_API_KEY")
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	switch cfg.Transcriber {
	case TranscriberGemini, TranscriberOpenAI, TranscriberDeepgram:
		if cfg.APIKeyFor(cfg.Transcriber) == "" {
			warnings = append(warnings, fmt.Sprintf("%s API key not configured; transcription will fail. Set %s%s_API_KEY.",
				cfg.Transcriber, EnvPrefix, strings.ToUpper(cfg.Transcriber)))
		}
	default:
		warnings = append(warnings, fmt.Sprintf("Unknown transcriber %q, using %s.", cfg.Transcriber, TranscriberGemini))
		cfg.Transcriber = TranscriberGemini
	}
	// The default model only names a Gemini model; other backends pick their own.
	if cfg.Transcriber != TranscriberGemini && cfg.TranscribeModel == defaultTranscribeModel {
		cfg.TranscribeModel = ""
	}

	if provider, _, ok := strings.Cut(cfg.SummaryModel, "/"); !ok || provider == "" {
		warnings = append(warnings, fmt.Sprintf("Invalid summary_model %q, expected provider/model.", cfg.SummaryModel))
	} else if cfg.APIKeyFor(provider) == "" {
		warnings = append(warnings, fmt.Sprintf("%s API key not configured; summaries will use the failure placeholder.", provider))
	}

	for name, raw := range map[string]string{
		"transcribe_timeout": cfg.TranscribeTimeout,
		"drain_timeout":      cfg.DrainTimeout,
		"idle_timeout":       cfg.IdleTimeout,
	} {
		if d, err := time.ParseDuration(strings.TrimSpace(raw)); err != nil || d < 0 {
			warnings = append(warnings, fmt.Sprintf("Invalid %s %q, using default.", name, raw))
		}
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}

	return warnings
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
