package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bill-extract/internal/config"
	"github.com/sells-group/bill-extract/internal/extract"
	"github.com/sells-group/bill-extract/internal/model"
)

const sampleBill = "Bill No : AB123BIL1234567\nRunning Bill No : 4\nWO No : WO/2023-118\nTotal Work Done Amount\n1,000.00\n2,500.00\n3,500.00\n125.00\n2,625.00\n"

// execute runs the root command in a temp working directory so no config
// file is picked up.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err = rootCmd.Execute()
	return out.String(), err
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"extract", "parse", "count", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "bill-extract", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestExtractCommand_Flags(t *testing.T) {
	for _, name := range []string{"root", "output", "driver", "chunk-size", "workers", "resume", "limit"} {
		assert.NotNil(t, extractCmd.Flags().Lookup(name), "extract should have --%s", name)
	}
	assert.Equal(t, "false", extractCmd.Flags().Lookup("resume").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestNewExtractor_TaxonomyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`categories:
  - key: TDS
    aliases: ["income tax"]
`), 0o644))

	ext, err := newExtractor(config.ExtractConfig{TaxonomyFile: path})
	require.NoError(t, err)
	cats := ext.Taxonomy().Categories()
	require.Len(t, cats, 1)
	assert.Equal(t, model.DeductionTDS, cats[0].Key)

	_, err = newExtractor(config.ExtractConfig{TaxonomyFile: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init: taxonomy")
}

func TestWriteResult_JSONAndYAML(t *testing.T) {
	ext, err := newExtractor(config.ExtractConfig{})
	require.NoError(t, err)
	res := ext.Extract(model.Document{SourceName: "bill.pdf", RawText: sampleBill})

	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, res, sampleBill))
	var fromJSON extract.ResultView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fromJSON))
	assert.Equal(t, "AB123BIL1234567", fromJSON.Record.DocumentNo)
	assert.Equal(t, "125.00", fromJSON.Record.TaxAmount)
	assert.NotContains(t, buf.String(), `"text"`)

	parseYAML = true
	t.Cleanup(func() { parseYAML = false })
	buf.Reset()
	require.NoError(t, writeResult(&buf, res, sampleBill))
	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	rec, ok := fromYAML["record"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "WO/2023-118", rec["work_order_ref"])
}

func TestParseCommand_TextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bill.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleBill), 0o644))

	out, err := execute(t, "parse", path)
	require.NoError(t, err)

	var res extract.ResultView
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "bill.txt", res.Record.SourceName)
	assert.Equal(t, "4", res.Record.SequenceNo)
	assert.Equal(t, "2625.00", res.Record.TotalAmount)
}

func TestCountCommand(t *testing.T) {
	root := t.TempDir()
	for _, p := range []string{"WO-1/Bills/a.pdf", "WO-1/Bills/b.pdf", "WO-2/Bills/c.pdf", "WO-2/other.pdf"} {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0o644))
	}

	out, err := execute(t, "count", "--root", root)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), ": 3"), out)
}

func TestExtractCommand_CSV(t *testing.T) {
	root := t.TempDir()
	bills := filepath.Join(root, "WO-1", "Bills")
	require.NoError(t, os.MkdirAll(bills, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bills, "bill.txt"), []byte(sampleBill), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bills, "empty.txt"), nil, 0o644))
	output := filepath.Join(t.TempDir(), "out.csv")

	out, err := execute(t, "extract", "--root", root, "--output", output, "--driver", "csv", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "documents=2 flushed=2")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(model.Columns(), ","), lines[0])
	assert.Contains(t, string(data), "WO-1/Bills/bill.txt,AB123BIL1234567,4,WO/2023-118")
	assert.Contains(t, string(data), "WO-1/Bills/empty.txt,empty,MISSING")
}
