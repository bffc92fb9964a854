package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP server settings
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
	Transcription TranscriptionConfig `toml:"transcription"` // Speech-to-text and windowing settings
	Analysis      AnalysisConfig      `toml:"analysis"`      // Transcript analysis (LLM) settings
	Upload        UploadConfig        `toml:"upload"`        // Upload validation settings
	Storage       StorageConfig       `toml:"storage"`       // Job ledger settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, long recordings need this)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir     string   `toml:"static_files_dir"`      // Optional directory to serve a frontend from (empty = disabled)
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// TranscriptionConfig contains settings for the remote speech-to-text service
// and for splitting long recordings into overlapping windows
type TranscriptionConfig struct {
	// OpenAI API settings
	OpenAIAPIKey  string `toml:"openai_api_key"`      // OpenAI API key (falls back to OPENAI_API_KEY)
	OpenAIBaseURL string `toml:"openai_api_base_url"` // Optional OpenAI base URL (e.g., for proxies). Defaults to https://api.openai.com
	Model         string `toml:"model"`               // Transcription model (e.g., "whisper-1")
	Language      string `toml:"language"`            // Optional language hint (e.g., "ja"); empty lets the service detect it

	// Retry settings
	TimeoutSeconds   int `toml:"timeout_seconds"`    // Per-attempt timeout in seconds
	RetryMaxAttempts int `toml:"retry_max_attempts"` // Maximum number of attempts per window
	RetryBackoffMs   int `toml:"retry_backoff_ms"`   // Fixed wait between attempts in milliseconds

	// Windowing settings
	SingleFileLimitMB int64   `toml:"single_file_limit_mb"` // Files up to this size are sent in one request
	WindowMs          int64   `toml:"window_ms"`            // Nominal window length in milliseconds
	OverlapMs         int64   `toml:"overlap_ms"`           // Overlap appended to each window in milliseconds (0 = default 15000)
	DisableOverlap    bool    `toml:"disable_overlap"`      // Cut windows back to back; overlap_ms is ignored
	MinWindowMs       int64   `toml:"min_window_ms"`        // Windows shorter than this are skipped
	ParallelWindows   int     `toml:"parallel_windows"`     // Number of windows transcribed concurrently (1 = sequential)
	RealTimeFactor    float64 `toml:"real_time_factor"`     // Estimated processing time per second of audio, drives the progress simulator

	// Audio tooling
	FFmpegPath string `toml:"ffmpeg_path"` // Path to FFmpeg executable
	TempDir    string `toml:"temp_dir"`    // Parent directory for per-job scratch directories (empty = system default)
}

// AnalysisConfig contains settings for the transcript analysis step
type AnalysisConfig struct {
	Provider       string  `toml:"provider"`        // "openai" (any OpenAI-compatible chat API, e.g. Groq) or "gemini"
	APIKey         string  `toml:"api_key"`         // Provider API key (falls back to GROQ_API_KEY / GEMINI_API_KEY)
	BaseURL        string  `toml:"base_url"`        // API base URL; /v1/chat/completions is appended for the openai provider
	Model          string  `toml:"model"`           // Model name
	Temperature    float64 `toml:"temperature"`     // Sampling temperature
	MaxTokens      int     `toml:"max_tokens"`      // Maximum tokens in the response (0 = provider default)
	TimeoutSeconds int     `toml:"timeout_seconds"` // HTTP timeout for the analysis request
	PromptPath     string  `toml:"prompt_path"`     // Optional prompt template file (empty = built-in template)
}

// UploadConfig contains settings for validating uploaded recordings
type UploadConfig struct {
	MaxSizeMB    int64    `toml:"max_size_mb"`   // Maximum accepted upload size in megabytes
	AllowedTypes []string `toml:"allowed_types"` // Accepted Content-Type values
}

// StorageConfig contains job ledger configuration
type StorageConfig struct {
	JobsDSN string `toml:"jobs_dsn"` // SQLite DSN for the job ledger (":memory:" keeps nothing across restarts)
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Default returns a configuration with every default applied, used when no file is present
func Default() *Config {
	c := &Config{}
	// Validate only fails on explicit bad values, never on an empty config
	_ = c.Validate()
	return c
}

// Validate fills in defaults and validates the configuration
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.ValidateTranscription(); err != nil {
		return err
	}
	if err := c.ValidateAnalysis(); err != nil {
		return err
	}

	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = 1024
	}
	if c.Upload.MaxSizeMB < 0 {
		return fmt.Errorf("invalid upload max_size_mb: %d", c.Upload.MaxSizeMB)
	}
	if len(c.Upload.AllowedTypes) == 0 {
		c.Upload.AllowedTypes = []string{"audio/mpeg", "audio/wav", "audio/mp4", "audio/m4a"}
	}

	if c.Storage.JobsDSN == "" {
		c.Storage.JobsDSN = ":memory:"
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 || c.Server.IdleTimeoutSecs < 0 {
		return fmt.Errorf("server timeouts must not be negative")
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 120
	}
	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be 'debug', 'info', 'warn', or 'error')", c.Logging.Level)
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}
	return nil
}

// ValidateTranscription applies defaults to the transcription section and checks the window geometry
func (c *Config) ValidateTranscription() error {
	t := &c.Transcription

	if t.OpenAIAPIKey == "" {
		t.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if t.Model == "" {
		t.Model = "whisper-1"
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = 120
	}
	if t.RetryMaxAttempts == 0 {
		t.RetryMaxAttempts = 3
	}
	if t.RetryBackoffMs == 0 {
		t.RetryBackoffMs = 5000
	}
	if t.SingleFileLimitMB == 0 {
		t.SingleFileLimitMB = 25
	}
	if t.WindowMs == 0 {
		t.WindowMs = 120000
	}
	if t.DisableOverlap {
		t.OverlapMs = 0
	} else if t.OverlapMs == 0 {
		t.OverlapMs = 15000
	}
	if t.MinWindowMs == 0 {
		t.MinWindowMs = 100
	}
	if t.ParallelWindows == 0 {
		t.ParallelWindows = 1
	}
	if t.RealTimeFactor == 0 {
		t.RealTimeFactor = 0.07
	}
	if t.FFmpegPath == "" {
		t.FFmpegPath = "ffmpeg"
	}

	if t.TimeoutSeconds < 0 {
		return fmt.Errorf("transcription timeout_seconds must be positive: %d", t.TimeoutSeconds)
	}
	if t.RetryMaxAttempts < 0 {
		return fmt.Errorf("transcription retry_max_attempts must be positive: %d", t.RetryMaxAttempts)
	}
	if t.RetryBackoffMs < 0 {
		return fmt.Errorf("transcription retry_backoff_ms must not be negative: %d", t.RetryBackoffMs)
	}
	if t.WindowMs < 0 {
		return fmt.Errorf("transcription window_ms must be positive: %d", t.WindowMs)
	}
	if t.OverlapMs < 0 || t.OverlapMs >= t.WindowMs {
		return fmt.Errorf("transcription overlap_ms must be in [0, window_ms): %d", t.OverlapMs)
	}
	if t.ParallelWindows < 0 {
		return fmt.Errorf("transcription parallel_windows must be positive: %d", t.ParallelWindows)
	}
	if t.SingleFileLimitMB < 0 {
		return fmt.Errorf("transcription single_file_limit_mb must be positive: %d", t.SingleFileLimitMB)
	}
	return nil
}

// ValidateAnalysis applies defaults to the analysis section
func (c *Config) ValidateAnalysis() error {
	a := &c.Analysis

	if a.Provider == "" {
		a.Provider = "openai"
	}
	switch a.Provider {
	case "openai":
		if a.APIKey == "" {
			a.APIKey = os.Getenv("GROQ_API_KEY")
		}
		if a.BaseURL == "" {
			a.BaseURL = "https://api.groq.com/openai"
		}
		if a.Model == "" {
			a.Model = "meta-llama/llama-4-scout-17b-16e-instruct"
		}
	case "gemini":
		if a.APIKey == "" {
			a.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		if a.Model == "" {
			a.Model = "gemini-2.5-flash"
		}
	default:
		return fmt.Errorf("invalid analysis provider: %s (must be 'openai' or 'gemini')", a.Provider)
	}

	if a.Temperature == 0 {
		a.Temperature = 0.1
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		return fmt.Errorf("analysis temperature must be between 0 and 2: %f", a.Temperature)
	}
	if a.TimeoutSeconds == 0 {
		a.TimeoutSeconds = 300
	}
	if a.TimeoutSeconds < 0 {
		return fmt.Errorf("analysis timeout_seconds must be positive: %d", a.TimeoutSeconds)
	}
	return nil
}

// SingleFileLimitBytes returns the single-request size limit in bytes
func (t TranscriptionConfig) SingleFileLimitBytes() int64 {
	return t.SingleFileLimitMB * 1024 * 1024
}

// MaxSizeBytes returns the upload size limit in bytes
func (u UploadConfig) MaxSizeBytes() int64 {
	return u.MaxSizeMB * 1024 * 1024
}
