package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kokuban/data/db/kokuban.db"
	}
	if cfg.Storage.SearchIndexPath == "" {
		cfg.Storage.SearchIndexPath = "/usr/local/var/kokuban/data/indices/notes"
	}
	if cfg.Vision.BaseURL == "" {
		cfg.Vision.BaseURL = "https://openrouter.ai/api/v1/chat/completions"
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = "google/gemini-2.0-flash-001"
	}
	if cfg.Vision.ImageModel == "" {
		cfg.Vision.ImageModel = "google/gemini-2.5-flash-image-preview"
	}
	// Vision model responses for a full board photo routinely take minutes.
	if cfg.Vision.TimeoutSeconds == 0 {
		cfg.Vision.TimeoutSeconds = 180
	}
	if cfg.ObjectStore.Provider == "" {
		cfg.ObjectStore.Provider = "disk"
	}
	if cfg.ObjectStore.Bucket == "" {
		cfg.ObjectStore.Bucket = "diagrams"
	}
	if cfg.ObjectStore.Dir == "" {
		cfg.ObjectStore.Dir = "/usr/local/var/kokuban/data/diagrams"
	}
	if cfg.Speech.VoiceID == "" {
		cfg.Speech.VoiceID = "onwK4e9ZLuTAKqWW03F9"
	}
	if cfg.Speech.ModelID == "" {
		cfg.Speech.ModelID = "eleven_flash_v2_5"
	}
	if cfg.Capture.BackendURL == "" {
		cfg.Capture.BackendURL = "http://localhost:8080"
	}
	if cfg.Capture.IntervalSeconds == 0 {
		cfg.Capture.IntervalSeconds = 30
	}
}
