package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_ExitStatus(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"version", []string{"-version"}, 0},
		{"version word", []string{"version"}, 0},
		{"help", []string{"-h"}, 0},
		{"unknown flag", []string{"-no-such-flag"}, 1},
		{"missing command", []string{"-skip-preflight"}, 1},
		{"invalid chunk size", []string{"-chunk-size", "0", "--", "true"}, 1},
		{"success", []string{"-quiet", "-log-level", "error", "--", "true"}, 0},
		{"child exit code", []string{"-quiet", "-log-level", "error", "--", "sh", "-c", "exit 5"}, 5},
		{"not found", []string{"-quiet", "-log-level", "error", "-skip-preflight", "--", "go-proc-relay-no-such-command"}, 127},
		{"preflight not found", []string{"-quiet", "-log-level", "error", "--", "go-proc-relay-no-such-command"}, 127},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(tt.args); got != tt.want {
				t.Errorf("run(%q) = %d, want %d", tt.args, got, tt.want)
			}
		})
	}
}

func TestRun_DumpConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")

	if code := run([]string{"-log-level", "error", "-prefix", "relay", "-dump-config", path, "--", "echo", "hi"}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config not written: %v", err)
	}
	for _, want := range []string{"command: echo", "prefix: relay"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("dumped config missing %q:\n%s", want, data)
		}
	}
}
