package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "tokdash version "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestConfigSetAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokdash.yaml")

	if _, err := run(t, "--config", path, "config", "set", "sources.openclaw.enabled", "false"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "--config", path, "config", "set", "server.port", "0"); err == nil {
		t.Error("expected validation error for port 0")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "enabled: false") {
		t.Errorf("saved config:\n%s", data)
	}

	out, err := run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, line := range strings.Split(out, "\n") {
		if f := strings.Fields(line); len(f) == 3 && f[0] == "openclaw" && f[1] == "false" {
			found = true
		}
	}
	if !found {
		t.Errorf("show output:\n%s", out)
	}
}

func TestExportInvalidPeriod(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "tokdash.yaml")
	_, err := run(t, "--config", path, "export", "--period", "fortnight")
	if err == nil || !strings.Contains(err.Error(), "fortnight") {
		t.Errorf("err = %v", err)
	}
}
