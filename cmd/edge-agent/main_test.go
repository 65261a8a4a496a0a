// v1
// cmd/edge-agent/main_test.go
package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"it.uniroma2.dicii/nrg-champ/edge-agent/internal/config"
)

func TestRunPrintsUsageWithTooFewArguments(t *testing.T) {
	cases := map[string][]string{
		"no arguments":  nil,
		"address only":  {"ws://only-an-address/ws"},
		"empty app key": {"ws://only-an-address/ws", " "},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			if code := run(args, &out); code != 0 {
				t.Fatalf("exit code = %d, want 0", code)
			}
			if strings.TrimSpace(out.String()) != config.Usage {
				t.Fatalf("stdout = %q, want usage text", out.String())
			}
		})
	}
}

func TestRunRejectsInvalidAddress(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("EDGE_ENV_FILE", filepath.Join(dir, "none.env"))
	t.Setenv("EDGE_PROPERTIES_PATH", filepath.Join(dir, "none.properties"))
	t.Setenv("EDGE_LOG_PATH", filepath.Join(dir, "edge.log"))
	t.Setenv("EDGE_LISTEN_ADDRESS", "")

	var out bytes.Buffer
	if code := run([]string{"http://not-a-broker", "key"}, &out); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if out.Len() != 0 {
		t.Fatalf("usage must not be printed for a startup failure: %q", out.String())
	}
}
