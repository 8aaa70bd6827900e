package main

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
	"github.com/ajitpratap0/aztable-extractor/pkg/tableclient"
)

func withClient(t *testing.T, client tableclient.Client) {
	t.Helper()
	prev := clientFactory
	clientFactory = func(string, *zap.Logger) (tableclient.Client, error) { return client, nil }
	t.Cleanup(func() { clientFactory = prev })
}

func writeConfig(t *testing.T, dir, action string) {
	t.Helper()
	cfg := fmt.Sprintf(`{"action":"%s","parameters":{"db":{"#connectionString":"conn"},"table":"people","output":"people","mode":"raw"}}`, action)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0o644))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New(errors.ErrorTypeConfig, "bad")))
	assert.Equal(t, 2, exitCode(errors.New(errors.ErrorTypeInternal, "defect")))
	assert.Equal(t, 2, exitCode(fmt.Errorf("unclassified")))
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "run")
	withClient(t, tableclient.NewMemory().AddTable("people", []*entity.Entity{
		entity.MustDecode(`{"PartitionKey":"p","RowKey":"1"}`),
	}))

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"run", "--data-dir", dir, "--log-level", "error"})
	require.NoError(t, cmd.Execute())

	assert.FileExists(t, filepath.Join(dir, "out", "tables", "people.csv"))
	assert.FileExists(t, filepath.Join(dir, "out", "tables", "people.csv.manifest"))
}

func TestConfiguredAction(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "testConnection")
	withClient(t, tableclient.NewMemory())

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"--data-dir", dir, "--log-level", "error"})
	require.NoError(t, cmd.Execute())
	assert.JSONEq(t, `{"success": true}`, out.String())
}

func TestConnectionOnlyConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
		args   []string
	}{
		{"configured action", `{"action":"testConnection","parameters":{"db":{"#connectionString":"conn"}}}`, nil},
		{"command", `{"parameters":{"db":{"#connectionString":"conn"}}}`, []string{"test-connection"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(tt.config), 0o644))
			withClient(t, tableclient.NewMemory())

			var out bytes.Buffer
			cmd := newRootCmd(&out)
			cmd.SetArgs(append(tt.args, "--data-dir", dir, "--log-level", "error"))
			require.NoError(t, cmd.Execute())
			assert.JSONEq(t, `{"success": true}`, out.String())
		})
	}
}

func TestTestConnectionFailure(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "run")
	client := tableclient.NewMemory()
	client.ProbeErr = &tableclient.StatusError{StatusCode: http.StatusForbidden, Message: "conn rejected"}
	withClient(t, client)

	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"test-connection", "--data-dir", dir, "--log-level", "error"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Equal(t, "Forbidden: ***** rejected", err.Error())
	assert.Empty(t, out.String())
}

func TestMissingConfig(t *testing.T) {
	cmd := newRootCmd(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--data-dir", t.TempDir(), "--log-level", "error"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "aztable-extractor v"+version)
}
