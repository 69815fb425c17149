package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielsiegl/dumpfilter/internal/timing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.Format)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "dumpfilter.yaml", `
except:
  - audit_log
  - "sessions, cache"
log: true
format: csv
progress: true
timings_db: timings.db
log_dir: stderr
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"audit_log", "sessions, cache"}, cfg.Except)
	assert.True(t, cfg.Log)
	assert.True(t, cfg.Progress)
	assert.Equal(t, timing.FormatCSV, cfg.TimingFormat())
	assert.Equal(t, "timings.db", cfg.TimingsDB)
	assert.Equal(t, "stderr", cfg.LogDir)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeFile(t, "bad.yaml", "except: [unterminated\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.ErrorIs(t, cfg.Validate(), ErrNoInput)

	cfg.Input = "dump.sql"
	assert.NoError(t, cfg.Validate())

	cfg.Format = "xml"
	err := cfg.Validate()
	assert.True(t, errors.Is(err, timing.ErrUnknownFormat))
}

func TestReadSkipList(t *testing.T) {
	path := writeFile(t, "skip.txt", "# tables we never restore\naudit_log\n\n  sessions  \n#cache\n")

	tables, err := ReadSkipList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit_log", "sessions"}, tables)

	_, err = ReadSkipList(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestExceptValues(t *testing.T) {
	cfg := Default()
	cfg.Except = []string{"a,b"}

	values, err := cfg.ExceptValues()
	require.NoError(t, err)
	assert.Equal(t, []string{"a,b"}, values)

	cfg.ExceptFile = writeFile(t, "skip.txt", "c\n")
	values, err = cfg.ExceptValues()
	require.NoError(t, err)
	assert.Equal(t, []string{"a,b", "c"}, values)
	assert.Equal(t, []string{"a,b"}, cfg.Except, "Except must not be modified")
}
