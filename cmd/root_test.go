package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"serve", "migrate", "price", "export", "watchdog"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "quoteflow", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("out")
	require.NotNil(t, flag, "export command should have --out flag")
	assert.Equal(t, "quotes.xlsx", flag.DefValue)
	require.NotNil(t, exportCmd.Flags().Lookup("status"))
	require.NotNil(t, exportCmd.Flags().Lookup("customer"))
}

func TestPriceCommand(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	input := `{
  "documents": [
    {"id": "passport", "complexity": "medium", "word_counts": [250, 250]}
  ],
  "certifications": [
    {"quantity": 1, "unit_price": "25.00"}
  ]
}`
	path := filepath.Join(dir, "quote.json")
	require.NoError(t, os.WriteFile(path, []byte(input), 0644))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"price", path})
	require.NoError(t, rootCmd.Execute())

	var result struct {
		Breakdown struct {
			Subtotal           string `json:"subtotal"`
			CertificationTotal string `json:"certification_total"`
			Total              string `json:"total"`
		} `json:"breakdown"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	// 500 words medium: 2.6 pages x $65 = $169, ceiled to $170; plus $25 cert
	assert.Equal(t, "170", result.Breakdown.Subtotal)
	assert.Equal(t, "25", result.Breakdown.CertificationTotal)
	assert.Equal(t, "195", result.Breakdown.Total)
}

func TestPriceCommand_MissingFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"price", filepath.Join(dir, "missing.json")})
	assert.Error(t, rootCmd.Execute())
}
