package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (c *testConfig) Validate() error {
	if c.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_CONFIG_NAME", "from-env")
	path := writeFile(t, "name: ${TEST_CONFIG_NAME}\nport: 8080\n")

	var cfg testConfig
	if err := Load(path, &cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("name = %q, want %q", cfg.Name, "from-env")
	}
}

func TestLoadRunsValidation(t *testing.T) {
	path := writeFile(t, "name: bad\nport: 0\n")

	var cfg testConfig
	err := Load(path, &cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	var cfg testConfig
	if err := Load(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadIfPresentMissingFileKeepsDefaults(t *testing.T) {
	cfg := testConfig{Name: "default", Port: 9090}
	read, err := LoadIfPresent(filepath.Join(t.TempDir(), "absent.yaml"), &cfg)
	if err != nil {
		t.Fatalf("LoadIfPresent: %v", err)
	}
	if read {
		t.Error("read = true, want false for missing file")
	}
	if cfg.Name != "default" || cfg.Port != 9090 {
		t.Errorf("cfg = %+v, defaults should be untouched", cfg)
	}
}

func TestLoadIfPresentValidatesDefaults(t *testing.T) {
	cfg := testConfig{Port: 0}
	if _, err := LoadIfPresent(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err == nil {
		t.Fatal("expected validation error for bad defaults")
	}
}

func TestLoadIfPresentReadsExistingFile(t *testing.T) {
	path := writeFile(t, "name: on-disk\nport: 7070\n")

	cfg := testConfig{Name: "default", Port: 9090}
	read, err := LoadIfPresent(path, &cfg)
	if err != nil {
		t.Fatalf("LoadIfPresent: %v", err)
	}
	if !read {
		t.Error("read = false, want true")
	}
	if cfg.Name != "on-disk" || cfg.Port != 7070 {
		t.Errorf("cfg = %+v, want values from file", cfg)
	}
}
