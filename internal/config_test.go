package internal

import (
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/store"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestSQLiteConfig_DisabledLocalStorage(t *testing.T) {
	cfg := SQLiteConfig{DisableLocalStorage: true}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled local storage needs no path: %v", err)
	}
	if got := cfg.StorePath(); got != store.MemoryPath {
		t.Errorf("StorePath() = %q, want %q", got, store.MemoryPath)
	}
}

func TestSQLiteConfig_RequiresPath(t *testing.T) {
	cfg := SQLiteConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty path should fail validation")
	}
	cfg.Path = "./othala.db"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("path set should pass: %v", err)
	}
	if got := cfg.StorePath(); got != "./othala.db" {
		t.Errorf("StorePath() = %q", got)
	}
}

func TestRelayConfig_URLValidation(t *testing.T) {
	cfg := RelayConfig{URLs: []string{"https://relay.example", "http://127.0.0.1:8580"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("http(s) URLs should pass: %v", err)
	}

	cfg.URLs = []string{"ftp://relay.example"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("non-http scheme should fail")
	}

	cfg.URLs = []string{"not a url"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("garbage URL should fail")
	}
}

func TestSyncConfig_RejectsUnknownEnums(t *testing.T) {
	cfg := SyncConfig{Frequency: "hourly"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown frequency should fail")
	}
	cfg = SyncConfig{ConflictPolicy: "coin-flip"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown conflict policy should fail")
	}
	cfg = SyncConfig{Parallelism: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative parallelism should fail")
	}
}

func TestSyncConfig_SettingsSeed(t *testing.T) {
	cfg := SyncConfig{Enabled: true, Frequency: models.FrequencyManual}
	s := cfg.Settings(true)
	if !s.RelaySyncEnabled {
		t.Error("seed should enable relay sync")
	}
	if s.SyncFrequency != models.FrequencyManual {
		t.Errorf("frequency = %q", s.SyncFrequency)
	}
	if s.ConflictPolicy != models.PolicyAsk {
		t.Errorf("unset policy should default to ask, got %q", s.ConflictPolicy)
	}
	if !s.LocalStorageEnabled {
		t.Error("local storage flag should mirror the argument")
	}
}

func TestSyncConfig_TickInterval(t *testing.T) {
	cfg := SyncConfig{}
	if got := cfg.TickInterval(); got != 5*time.Minute {
		t.Errorf("default tick = %v", got)
	}
	cfg.Interval = Duration(30 * time.Second)
	if got := cfg.TickInterval(); got != 30*time.Second {
		t.Errorf("tick = %v, want 30s", got)
	}
}

func TestInboxConfig_RequiresPathWhenEnabled(t *testing.T) {
	cfg := InboxConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled inbox without path should fail")
	}
	cfg.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled inbox needs no path: %v", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	var out struct {
		Interval Duration `yaml:"interval"`
	}
	if err := yaml.Unmarshal([]byte("interval: 90s"), &out); err != nil {
		t.Fatalf("string duration: %v", err)
	}
	if time.Duration(out.Interval) != 90*time.Second {
		t.Errorf("interval = %v, want 90s", time.Duration(out.Interval))
	}

	if err := yaml.Unmarshal([]byte("interval: 1000000000"), &out); err != nil {
		t.Fatalf("integer duration: %v", err)
	}
	if time.Duration(out.Interval) != time.Second {
		t.Errorf("interval = %v, want 1s", time.Duration(out.Interval))
	}

	if err := yaml.Unmarshal([]byte("interval: soon"), &out); err == nil {
		t.Fatal("unparseable duration should fail")
	}
}

func TestFullConfig_ValidationChain(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}

	cfg = NewDefaultConfig()
	cfg.Identity.Keystore = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch missing keystore")
	}
}
