package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/filegate/pkg/cli"
	"mercator-hq/filegate/pkg/config"
)

func TestWriteValidation(t *testing.T) {
	cfg := config.Default()
	cfg.Decision.PolicyVersion = "2026-10-a"
	cfg.Cache.Redis.Password = "hunter2"

	tests := []struct {
		name    string
		dump    bool
		want    []string
		notWant []string
	}{
		{
			name: "summary",
			want: []string{"✓ Configuration valid (defaults)", "policy version: 2026-10-a", "warn 0.70, block 0.90"},
			notWant: []string{"matching:"},
		},
		{
			name:    "dump redacts secrets",
			dump:    true,
			want:    []string{"matching:", "password: '********'"},
			notWant: []string{"hunter2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := writeValidation(&buf, "", cfg, tt.dump); err != nil {
				t.Fatalf("writeValidation() error = %v", err)
			}
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output should not contain %q:\n%s", w, out)
				}
			}
		})
	}
	if cfg.Cache.Redis.Password != "hunter2" {
		t.Error("writeValidation modified the caller's config")
	}
}

func TestRunValidate_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	body := "decision:\n  warn_threshold: 0.95\n  block_threshold: 0.5\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	validateCmd.SetOut(&buf)
	defer validateCmd.SetOut(nil)

	err := runValidate(validateCmd, []string{path})
	if cli.ExitCode(err) != cli.ExitFailure {
		t.Fatalf("exit code = %d, want %d (err %v)", cli.ExitCode(err), cli.ExitFailure, err)
	}
	if !strings.Contains(buf.String(), "✗ Configuration invalid") {
		t.Errorf("output = %q", buf.String())
	}
}
