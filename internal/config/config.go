package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

// Storage backends.
const (
	StorageMemory    = "memory"
	StorageSQLite    = "sqlite"
	StorageFirestore = "firestore"
)

type Config struct {
	Mode Mode

	Port string

	GCPProjectID string
	GCPLocation  string
	ModelName    string

	StorageBackend string // "memory", "sqlite" or "firestore"
	SQLitePath     string
	UseMockLLM     bool // true = use mock even on GCP

	LogLevel string

	// DevAuthToken is used for backend calls when a request carries no bearer
	// token. Empty means such calls fail as unauthenticated.
	DevAuthToken string
}

// fileConfig is the optional TOML file. Every field is a pointer so that a
// key absent from the file leaves the default in place.
type fileConfig struct {
	Mode           *string `toml:"mode"`
	Port           *string `toml:"port"`
	GCPProjectID   *string `toml:"gcp_project"`
	GCPLocation    *string `toml:"gcp_location"`
	ModelName      *string `toml:"model_name"`
	StorageBackend *string `toml:"storage_backend"`
	SQLitePath     *string `toml:"sqlite_path"`
	UseMockLLM     *bool   `toml:"use_mock_llm"`
	LogLevel       *string `toml:"log_level"`
	DevAuthToken   *string `toml:"dev_auth_token"`
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

// Path returns the config file location: FARUM_CONFIG, else
// ~/.config/farum/config.toml.
func Path() string {
	if p := os.Getenv("FARUM_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "farum", "config.toml")
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "farum.db"
	}
	return filepath.Join(home, ".local", "share", "farum", "farum.db")
}

// Load builds the config from defaults, then the TOML file if present, then
// FARUM_* environment variables.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// LoadFile is Load with an explicit config file path. A missing file is not
// an error; a malformed one is.
func LoadFile(path string) (*Config, error) {
	fc := fileConfig{}
	if path != "" {
		if _, err := toml.DecodeFile(path, &fc); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	str := func(p *string, def string) string {
		if p != nil {
			return *p
		}
		return def
	}

	modeStr := getEnv("FARUM_MODE", str(fc.Mode, string(ModeLocal)))
	var mode Mode
	switch modeStr {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	mock := mode == ModeLocal
	if fc.UseMockLLM != nil {
		mock = *fc.UseMockLLM
	}

	cfg := &Config{
		Mode: mode,

		Port: getEnv("FARUM_PORT", str(fc.Port, "8080")),

		GCPProjectID: getEnv("FARUM_GCP_PROJECT", str(fc.GCPProjectID, "")),
		GCPLocation:  getEnv("FARUM_GCP_LOCATION", str(fc.GCPLocation, "us-central1")),
		ModelName:    getEnv("FARUM_MODEL_NAME", str(fc.ModelName, "gemini-2.5-flash-lite")),

		StorageBackend: getEnv("FARUM_STORAGE_BACKEND", str(fc.StorageBackend, StorageMemory)),
		SQLitePath:     getEnv("FARUM_SQLITE_PATH", str(fc.SQLitePath, defaultSQLitePath())),
		UseMockLLM:     getBoolEnv("FARUM_USE_MOCK_LLM", mock),

		LogLevel:     getEnv("FARUM_LOG_LEVEL", str(fc.LogLevel, "info")),
		DevAuthToken: getEnv("FARUM_DEV_AUTH_TOKEN", str(fc.DevAuthToken, "")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageMemory, StorageSQLite, StorageFirestore:
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		return fmt.Errorf("FARUM_GCP_PROJECT must be set in gcp mode")
	}
	if c.StorageBackend == StorageFirestore && c.GCPProjectID == "" {
		return fmt.Errorf("FARUM_GCP_PROJECT must be set for firestore storage")
	}
	if !c.UseMockLLM && c.GCPProjectID == "" {
		return fmt.Errorf("FARUM_GCP_PROJECT must be set unless the mock LLM is used")
	}
	return nil
}
