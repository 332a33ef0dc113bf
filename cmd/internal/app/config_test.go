package app

import (
	"testing"
	"time"
)

// Env helper tests mutate process env, so none of them run parallel.

func TestEnvStringTrimsAndDefaults(t *testing.T) {
	t.Setenv("PARLEY_TEST_STR", "  value  ")
	if got := EnvString("PARLEY_TEST_STR", "def"); got != "value" {
		t.Fatalf("got %q, want value", got)
	}
	if got := EnvString("PARLEY_TEST_STR_UNSET", "def"); got != "def" {
		t.Fatalf("got %q, want def", got)
	}
}

func TestEnvBool(t *testing.T) {
	cases := []struct {
		raw  string
		def  bool
		want bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"nonsense", true, true},
		{"", false, false},
	}
	for _, tc := range cases {
		t.Setenv("PARLEY_TEST_BOOL", tc.raw)
		if got := EnvBool("PARLEY_TEST_BOOL", tc.def); got != tc.want {
			t.Fatalf("EnvBool(%q, %v) = %v, want %v", tc.raw, tc.def, got, tc.want)
		}
	}
}

func TestEnvIntRejectsNonPositive(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"42", 42},
		{"0", 7},
		{"-3", 7},
		{"abc", 7},
		{"", 7},
	}
	for _, tc := range cases {
		t.Setenv("PARLEY_TEST_INT", tc.raw)
		if got := EnvInt("PARLEY_TEST_INT", 7); got != tc.want {
			t.Fatalf("EnvInt(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestEnvDurationRejectsNonPositive(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{"90s", 90 * time.Second},
		{"-5s", time.Minute},
		{"0", time.Minute},
		{"soon", time.Minute},
	}
	for _, tc := range cases {
		t.Setenv("PARLEY_TEST_DUR", tc.raw)
		if got := EnvDuration("PARLEY_TEST_DUR", time.Minute); got != tc.want {
			t.Fatalf("EnvDuration(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.HTTPAddr == "" {
		t.Fatal("HTTPAddr must have a default")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" && cfg.LogFormat != "pretty" {
		t.Fatalf("unexpected log format default: %q", cfg.LogFormat)
	}
	if cfg.DBSchema == "" {
		t.Fatal("DBSchema must have a default")
	}
	if cfg.TokenTTL <= 0 {
		t.Fatalf("TokenTTL = %v, want positive", cfg.TokenTTL)
	}
}

func TestLoadConfigReadsOverrides(t *testing.T) {
	t.Setenv("PARLEY_HTTP_ADDR", "127.0.0.1:9999")
	t.Setenv("PARLEY_DB_MAX_CONNS", "25")
	t.Setenv("PARLEY_TOKEN_TTL", "2h")
	t.Setenv("PARLEY_READINESS_REQUIRE_DB", "true")

	cfg := LoadConfig()
	if cfg.HTTPAddr != "127.0.0.1:9999" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.DBMaxConns != 25 {
		t.Fatalf("DBMaxConns = %d", cfg.DBMaxConns)
	}
	if cfg.TokenTTL != 2*time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.TokenTTL)
	}
	if !cfg.ReadinessRequireDB {
		t.Fatal("ReadinessRequireDB must be true")
	}
}
