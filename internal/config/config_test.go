package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	path := writeConfig(t, "server:\n  appVersion: 2.0.0\nmedia:\n  fragments: 8\n")
	t.Setenv("MEDIA_WORKDIR", "/tmp/media-jobs")

	v, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg, err := ParseConfig(v)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.Server.AppVersion != "2.0.0" || cfg.Media.Fragments != 8 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Media.WorkDir != "/tmp/media-jobs" {
		t.Fatalf("env override ignored: %q", cfg.Media.WorkDir)
	}
	if cfg.Media.ExtractorPath != "yt-dlp" || cfg.Cleanup.ExpiryMinutes != 60 || cfg.Jobs.MaxActivePerRequester != 3 {
		t.Fatalf("defaults missing: %+v", cfg)
	}
}

func TestParseConfigValidation(t *testing.T) {
	cases := map[string]string{
		"cleanup.intervalminutes": "cleanup:\n  intervalMinutes: -1\n",
		"jobs.retentionminutes":   "jobs:\n  retentionMinutes: 0\n",
		"s3.bucket":               "s3:\n  enabled: true\n  bucket: \"\"\n",
	}
	for want, body := range cases {
		v, err := LoadConfig(writeConfig(t, body))
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		if _, err := ParseConfig(v); err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("ParseConfig(%q) err = %v, want mention of %s", body, err, want)
		}
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
