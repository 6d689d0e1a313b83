package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxTemplateBytes != DefaultConfig().MaxTemplateBytes {
		t.Fatalf("MaxTemplateBytes = %d, want %d", cfg.MaxTemplateBytes, DefaultConfig().MaxTemplateBytes)
	}
	if cfg.Timezone != DefaultTimezone {
		t.Errorf("Timezone = %q, want %q", cfg.Timezone, DefaultTimezone)
	}
	if len(cfg.SignaturePlaces) != 2 {
		t.Errorf("SignaturePlaces = %v, want default pair", cfg.SignaturePlaces)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"max_template_bytes": 500, "log_level": "debug"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxTemplateBytes != 500 {
		t.Fatalf("MaxTemplateBytes = %d, want %d", cfg.MaxTemplateBytes, 500)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_SignaturePlacesMerged(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"signature_places": ["Surabaya", "Jakarta"]}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"Jakarta", "Bandung", "Surabaya"}
	if len(cfg.SignaturePlaces) != len(want) {
		t.Fatalf("SignaturePlaces = %v, want %v", cfg.SignaturePlaces, want)
	}
	for i := range want {
		if cfg.SignaturePlaces[i] != want[i] {
			t.Errorf("SignaturePlaces[%d] = %q, want %q", i, cfg.SignaturePlaces[i], want[i])
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"web_port": 9000}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("TEMPLAR_WEB_PORT", "9100")
	t.Setenv("TEMPLAR_TIMEZONE", "UTC")
	t.Setenv("TEMPLAR_DISABLED_TOOLS", "template_purge,session_save")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.WebPort != 9100 {
		t.Errorf("WebPort = %d, want 9100 (env wins over file)", cfg.WebPort)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Timezone)
	}
	if len(cfg.DisabledTools) != 2 || cfg.DisabledTools[1] != "session_save" {
		t.Errorf("DisabledTools = %v, want [template_purge session_save]", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	globalConfig := `{"max_template_bytes": 8000, "disabled_tools": ["template_purge"]}`
	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	repoDir := filepath.Join(repoRoot, ".templar")
	if err := os.MkdirAll(repoDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	repoConfig := `{"max_template_bytes": 5000, "disabled_tools": ["document_generate"]}`
	if err := os.WriteFile(filepath.Join(repoDir, "config.json"), []byte(repoConfig), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.MaxTemplateBytes != 5000 {
		t.Errorf("MaxTemplateBytes = %d, want 5000 (repo override)", cfg.MaxTemplateBytes)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools = %v, want merged pair", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_FindsConfigInParent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	nested := filepath.Join(repoRoot, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.MkdirAll(filepath.Join(repoRoot, ".templar"), 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoRoot, ".templar", "config.json"), []byte(`{"timezone": "Asia/Makassar"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, nested)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.Timezone != "Asia/Makassar" {
		t.Errorf("Timezone = %q, want Asia/Makassar", cfg.Timezone)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if got := FindRepoConfig(t.TempDir()); got != "" {
		t.Errorf("FindRepoConfig() = %q, want empty", got)
	}
}

func TestMerge_ScalarsAndBooleans(t *testing.T) {
	base := &Config{WebPort: 1, LogLevel: "info", AllowUnsafePaths: true}
	overlay := &Config{WebPort: 2}

	got := Merge(base, overlay)
	if got.WebPort != 2 {
		t.Errorf("WebPort = %d, want 2", got.WebPort)
	}
	if got.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info (base kept)", got.LogLevel)
	}
	if !got.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should stay true")
	}
}

func TestMergeStringSlice(t *testing.T) {
	got := mergeStringSlice([]string{" a ", "b", ""}, []string{"b", "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if mergeStringSlice(nil, []string{" "}) != nil {
		t.Error("all-empty input should merge to nil")
	}
}

func TestLocation_Fallback(t *testing.T) {
	cfg := &Config{Timezone: "Not/AZone"}
	loc := cfg.Location()
	if loc == nil {
		t.Fatal("Location() returned nil")
	}

	cfg.Timezone = "UTC"
	if cfg.Location().String() != "UTC" {
		t.Errorf("Location() = %s, want UTC", cfg.Location())
	}
}
