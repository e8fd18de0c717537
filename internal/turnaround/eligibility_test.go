package turnaround

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	data := `
same_day:
  - source_language: es
    target_language: en
    document_type: birth_certificate
    intended_use: uscis
holidays:
  - "2026-01-19"
  - "2026-12-25"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	table, cal, err := LoadTables(path)
	require.NoError(t, err)
	assert.True(t, table.Eligible("es", "en", "birth_certificate", "uscis"))
	assert.Len(t, cal, 2)
	assert.Contains(t, cal, "2026-12-25")
}

func TestLoadTablesMissingFile(t *testing.T) {
	table, cal, err := LoadTables(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.False(t, table.Eligible("es", "en", "x", "y"))
	assert.Empty(t, cal)
}

func TestLoadTablesBadHoliday(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("holidays:\n  - \"Jan 1\"\n"), 0o644))
	_, _, err := LoadTables(path)
	assert.Error(t, err)
}
