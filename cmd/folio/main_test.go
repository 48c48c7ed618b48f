package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "folio.yaml")
	body := fmt.Sprintf("store:\n  driver: sqlite\n  dsn: %s\nlog:\n  level: error\n", filepath.Join(dir, "folio.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"-config", cfgPath}, args...), &stdout, &stderr)
	return strings.TrimSpace(stdout.String()), err
}

func TestCommands(t *testing.T) {
	cfg := writeConfig(t)

	out, err := runCLI(t, cfg, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "migrated sqlite store", out)

	userID, err := runCLI(t, cfg, "register-user", "cli@example.com", "CLI")
	require.NoError(t, err)
	require.NotEmpty(t, userID)

	_, err = runCLI(t, cfg, "set-prefix", userID, "quote", "QT")
	require.NoError(t, err)

	year := time.Now().UTC().Year()
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"next-number", userID, "invoice"}, fmt.Sprintf("FACT-%d-0001", year)},
		{[]string{"next-number", userID, "invoice"}, fmt.Sprintf("FACT-%d-0002", year)},
		{[]string{"next-number", userID, "quote"}, fmt.Sprintf("QT-%d-0001", year)},
		{[]string{"jobs", "expire-quotes"}, "expire-quotes: 0 affected"},
		{[]string{"jobs", "-older-than", "24h", "purge-audit"}, "purge-audit: 0 affected"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out, err := runCLI(t, cfg, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}

	out, err = runCLI(t, cfg, "usage", userID)
	require.NoError(t, err)
	assert.Contains(t, out, "invoices")
	assert.Contains(t, out, "0/5")
}

func TestCommandErrors(t *testing.T) {
	cfg := writeConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"missing args", []string{"next-number"}},
		{"bad document type", []string{"next-number", "usr_x", "receipt"}},
		{"unknown user", []string{"usage", "usr_missing"}},
		{"unknown job", []string{"jobs", "vacuum"}},
		{"invalid email", []string{"register-user", "not-an-email"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, cfg, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestUsageText(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), nil, &stdout, &stderr))
	for name := range commands {
		assert.Contains(t, stderr.String(), name)
	}
}
