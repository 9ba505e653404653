// Package config provides configuration loading and structs for the kokuban server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Vision      VisionConfig      `yaml:"vision"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Speech      SpeechConfig      `yaml:"speech"`
	Capture     CaptureConfig     `yaml:"capture"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects and configures the persistent store.
// Driver is "sqlite" (local, default) or "postgres" (hosted, e.g. Supabase).
type StorageConfig struct {
	Driver          string `yaml:"driver"`
	DatabasePath    string `yaml:"database_path"`
	DatabaseURL     string `yaml:"database_url"`
	SearchIndexPath string `yaml:"search_index_path"`
}

// VisionConfig holds extraction model settings. APIKey falls back to the
// OPENROUTER_API_KEY environment variable when unset.
type VisionConfig struct {
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	ImageModel       string `yaml:"image_model"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
	GenerateDiagrams *bool  `yaml:"generate_diagrams"`
}

// GenerateDiagramsOrDefault returns whether diagram illustrations should be
// generated; defaults to true when unset.
func (v *VisionConfig) GenerateDiagramsOrDefault() bool {
	if v.GenerateDiagrams != nil {
		return *v.GenerateDiagrams
	}
	return true
}

// ObjectStoreConfig configures where generated diagram images are uploaded.
// Provider is "supabase" or "disk". SupabaseKey falls back to SUPABASE_KEY.
type ObjectStoreConfig struct {
	Provider    string `yaml:"provider"`
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`
	Bucket      string `yaml:"bucket"`
	Dir         string `yaml:"dir"`
}

// SpeechConfig holds text-to-speech settings. APIKey falls back to the
// ELEVENLABS_API_KEY environment variable when unset.
type SpeechConfig struct {
	APIKey  string `yaml:"elevenlabs_api_key"`
	VoiceID string `yaml:"voice_id"`
	ModelID string `yaml:"model_id"`
}

// CaptureConfig holds camera poller settings for the capture subcommand.
type CaptureConfig struct {
	CameraURL       string `yaml:"camera_url"`
	CameraUsername  string `yaml:"camera_username"`
	CameraPassword  string `yaml:"camera_password"`
	BackendURL      string `yaml:"backend_url"`
	RoomCode        string `yaml:"room_code"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	WatchDir        string `yaml:"watch_dir"`
}

// Load reads and parses the config file at path, expands paths, applies
// defaults, and resolves environment fallbacks for secrets.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.SearchIndexPath = expandPath(cfg.Storage.SearchIndexPath, configDir)
	if cfg.ObjectStore.Dir != "" {
		cfg.ObjectStore.Dir = expandPath(cfg.ObjectStore.Dir, configDir)
	}
	if cfg.Capture.WatchDir != "" {
		cfg.Capture.WatchDir = expandPath(cfg.Capture.WatchDir, configDir)
	}

	if cfg.Vision.APIKey == "" {
		cfg.Vision.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if cfg.ObjectStore.SupabaseKey == "" {
		cfg.ObjectStore.SupabaseKey = os.Getenv("SUPABASE_KEY")
	}
	if cfg.ObjectStore.SupabaseURL == "" {
		cfg.ObjectStore.SupabaseURL = os.Getenv("SUPABASE_URL")
	}
	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.Speech.APIKey == "" {
		cfg.Speech.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
