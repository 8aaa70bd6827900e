package testutil

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z`)

// DataDirSuite runs every test against a fresh data directory laid out as
// <dir>/config.json, <dir>/in/state.json and <dir>/out/tables.
type DataDirSuite struct {
	suite.Suite
	ctx     context.Context
	cancel  context.CancelFunc
	dataDir string
}

// SetupTest creates the data directory
func (s *DataDirSuite) SetupTest() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), time.Minute)

	dir, err := os.MkdirTemp("", "aztable-datadir-*")
	require.NoError(s.T(), err)
	s.dataDir = dir
	require.NoError(s.T(), os.MkdirAll(filepath.Join(dir, "in"), 0o755))
}

// TearDownTest removes the data directory
func (s *DataDirSuite) TearDownTest() {
	s.cancel()
	if s.dataDir != "" {
		_ = os.RemoveAll(s.dataDir)
	}
}

// Context returns the test context
func (s *DataDirSuite) Context() context.Context {
	return s.ctx
}

// DataDir returns the data directory path
func (s *DataDirSuite) DataDir() string {
	return s.dataDir
}

// WriteConfig writes config.json
func (s *DataDirSuite) WriteConfig(content string) {
	require.NoError(s.T(), os.WriteFile(filepath.Join(s.dataDir, "config.json"), []byte(content), 0o644))
}

// WriteInputState writes in/state.json
func (s *DataDirSuite) WriteInputState(content string) {
	require.NoError(s.T(), os.WriteFile(filepath.Join(s.dataDir, "in", "state.json"), []byte(content), 0o644))
}

// OutputState returns out/state.json, empty when it does not exist
func (s *DataDirSuite) OutputState() string {
	data, err := os.ReadFile(filepath.Join(s.dataDir, "out", "state.json"))
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(s.T(), err)
	return string(data)
}

// TableFiles lists the file names under out/tables, sorted
func (s *DataDirSuite) TableFiles() []string {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "out", "tables"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(s.T(), err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// ReadTable parses out/tables/<name>. Timestamps are masked as "***".
func (s *DataDirSuite) ReadTable(name string) [][]string {
	data, err := os.ReadFile(filepath.Join(s.dataDir, "out", "tables", name))
	require.NoError(s.T(), err)

	rows, err := csv.NewReader(strings.NewReader(MaskTimestamps(string(data)))).ReadAll()
	require.NoError(s.T(), err)
	return rows
}

// MaskTimestamps replaces ISO 8601 timestamps with fractional seconds
func MaskTimestamps(s string) string {
	return timestampPattern.ReplaceAllString(s, "***")
}
