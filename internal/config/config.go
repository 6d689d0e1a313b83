package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultTimezone is used when Timezone is unset or cannot be loaded.
const DefaultTimezone = "Asia/Jakarta"

// Config holds application configuration.
// Values come from config.json files and can be overridden with TEMPLAR_* environment variables.
type Config struct {
	// PatternsFile is an optional YAML pattern library that replaces the built-in one.
	PatternsFile string `json:"patterns_file,omitempty" env:"TEMPLAR_PATTERNS_FILE"`

	// SignaturePlaces lists the place names that make a signature line variable.
	SignaturePlaces []string `json:"signature_places,omitempty" env:"TEMPLAR_SIGNATURE_PLACES"`

	// ProgramExamples are suggested for "Program Studi" content fields.
	ProgramExamples []string `json:"program_examples,omitempty" env:"TEMPLAR_PROGRAM_EXAMPLES"`

	// Timezone is the IANA zone used for "today" in date suggestions.
	Timezone string `json:"timezone,omitempty" env:"TEMPLAR_TIMEZONE"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" env:"TEMPLAR_LOG_LEVEL"`

	// MaxTemplateBytes caps the size of an imported template file.
	MaxTemplateBytes int `json:"max_template_bytes,omitempty" env:"TEMPLAR_MAX_TEMPLATE_BYTES"`

	// AllowedPaths is an allowlist of directories for import and generated output.
	// Paths outside ~/.templar/{imports,outputs} require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty" env:"TEMPLAR_ALLOWED_PATHS"`

	// AllowUnsafePaths disables directory restrictions for import and output.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty" env:"TEMPLAR_ALLOW_UNSAFE_PATHS"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" env:"TEMPLAR_DB_MAX_OPEN_CONNS"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" env:"TEMPLAR_DB_MAX_IDLE_CONNS"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" env:"TEMPLAR_DISABLED_TOOLS"`

	// DisabledTypes disables every tool of a type ("template", "session", "document").
	DisabledTypes []string `json:"disabled_types,omitempty" env:"TEMPLAR_DISABLED_TYPES"`

	// WebBind and WebPort are the defaults for `templar serve`.
	WebBind string `json:"web_bind,omitempty" env:"TEMPLAR_WEB_BIND"`
	WebPort int    `json:"web_port,omitempty" env:"TEMPLAR_WEB_PORT"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SignaturePlaces: []string{"Jakarta", "Bandung"},
		ProgramExamples: []string{
			"Program Studi Teknik Informatika",
			"Program Studi Sistem Informasi",
			"Program Studi Manajemen",
		},
		Timezone:         DefaultTimezone,
		LogLevel:         "info",
		MaxTemplateBytes: 10 << 20,
		WebBind:          "127.0.0.1",
		WebPort:          8420,
	}
}

// Load loads configuration from baseDir/config.json and applies environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.templar.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithRepo loads configuration from both global (~/.templar) and repo (.templar) directories.
// Repo config is found by walking upward from startDir to find the nearest .templar/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Environment variables are applied last.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from TEMPLAR_* environment variables.
// Unset variables leave the current value alone.
func ApplyEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// FindRepoConfig walks upward from startDir to find the nearest .templar/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	if startDir == "" {
		return ""
	}
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".templar", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Location returns the configured time zone, falling back to Asia/Jakarta and then UTC.
func (c *Config) Location() *time.Location {
	if c != nil && strings.TrimSpace(c.Timezone) != "" {
		if loc, err := time.LoadLocation(strings.TrimSpace(c.Timezone)); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the path is empty or the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.PatternsFile = firstNonEmpty(overlay.PatternsFile, base.PatternsFile)
	result.Timezone = firstNonEmpty(overlay.Timezone, base.Timezone)
	result.LogLevel = firstNonEmpty(overlay.LogLevel, base.LogLevel)
	result.WebBind = firstNonEmpty(overlay.WebBind, base.WebBind)

	result.MaxTemplateBytes = firstNonZero(overlay.MaxTemplateBytes, base.MaxTemplateBytes)
	result.DBMaxOpenConns = firstNonZero(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstNonZero(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.WebPort = firstNonZero(overlay.WebPort, base.WebPort)

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	// Arrays: merge and deduplicate
	result.SignaturePlaces = mergeStringSlice(base.SignaturePlaces, overlay.SignaturePlaces)
	result.ProgramExamples = mergeStringSlice(base.ProgramExamples, overlay.ProgramExamples)
	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func firstNonZero(a, b int) int {
	if a != 0 {
		return a
	}
	return b
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
