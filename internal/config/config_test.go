package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Log.File)
	assert.Equal(t, ".", cfg.Source.Root)
	assert.Equal(t, "Bills", cfg.Source.DirName)
	assert.Equal(t, []string{".pdf", ".txt"}, cfg.Source.Extensions)
	assert.Equal(t, "local", cfg.OCR.Provider)
	assert.Equal(t, "pdftotext", cfg.OCR.PdfToTextPath)
	assert.Empty(t, cfg.OCR.Fallback)
	assert.Equal(t, "pixtral-large-latest", cfg.OCR.MistralModel)
	assert.InDelta(t, 2.0, cfg.OCR.MistralRPS, 0.001)
	assert.Equal(t, 3, cfg.OCR.MistralRetries)
	assert.Equal(t, 10, cfg.Extract.LabelLookahead)
	assert.Equal(t, 8, cfg.Extract.AnchorLookahead)
	assert.Equal(t, 5, cfg.Extract.AmountWindow)
	assert.Equal(t, 500, cfg.Batch.ChunkSize)
	assert.Equal(t, 0, cfg.Batch.Workers)
	assert.Equal(t, 50, cfg.Batch.MaxTasksPerWorker)
	assert.Equal(t, 120, cfg.Batch.DocumentTimeoutSecs)
	assert.Equal(t, "csv", cfg.Output.Driver)
	assert.Equal(t, "lnt_bills_output.csv", cfg.Output.Path)
	assert.Equal(t, "bills", cfg.Output.Table)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 32, cfg.Server.MaxUploadMB)
	assert.Empty(t, cfg.Monitor.WebhookURL)
	assert.InDelta(t, 0.10, cfg.Monitor.UnreadableRateThreshold, 1e-9)
	assert.InDelta(t, 0.25, cfg.Monitor.FilenameBillNoThreshold, 1e-9)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
output:
  driver: sqlite
  path: bills.db
batch:
  chunk_size: 50
  workers: 3
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "sqlite", cfg.Output.Driver)
	assert.Equal(t, "bills.db", cfg.Output.Path)
	assert.Equal(t, 50, cfg.Batch.ChunkSize)
	assert.Equal(t, 3, cfg.Batch.Workers)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Batch.MaxTasksPerWorker)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
output:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("BILLS_OUTPUT_DRIVER", "xlsx")
	t.Setenv("BILLS_LOG_LEVEL", "warn")
	t.Setenv("BILLS_OCR_MISTRAL_API_KEY", "mk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "xlsx", cfg.Output.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "mk-test", cfg.OCR.MistralKey)
}

func TestLoadBadFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [\n"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestBatchConfigHelpers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, runtime.NumCPU(), BatchConfig{}.WorkerCount())
	assert.Equal(t, 4, BatchConfig{Workers: 4}.WorkerCount())
	assert.Equal(t, time.Duration(0), BatchConfig{}.DocumentTimeout())
	assert.Equal(t, 2*time.Second, BatchConfig{DocumentTimeoutSecs: 2}.DocumentTimeout())
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.OCR.Provider = "local"
	cfg.Output.Driver = "csv"
	cfg.Output.Path = "out.csv"
	cfg.Batch.ChunkSize = 500
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateExtract(t *testing.T) {
	t.Parallel()

	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("extract"))

	cfg.Output.Driver = "postgres"
	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.database_url is required")

	cfg.Output.DatabaseURL = "postgres://localhost/bills"
	assert.NoError(t, cfg.Validate("extract"))
}

func TestValidateExtract_CollectsProblems(t *testing.T) {
	t.Parallel()

	cfg := validDefaults()
	cfg.Output.Driver = "parquet"
	cfg.Batch.ChunkSize = 0
	cfg.OCR.Fallback = "mistral"

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output.driver "parquet"`)
	assert.Contains(t, err.Error(), "batch.chunk_size must be > 0")
	assert.Contains(t, err.Error(), "ocr.mistral_api_key is required")
}

func TestValidateServe(t *testing.T) {
	t.Parallel()

	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := validDefaults()
	cfg.OCR.Provider = "tesseract"
	err := cfg.Validate("parse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown ocr provider "tesseract"`)

	assert.NoError(t, cfg.Validate("count"), "count never extracts text")
}

func TestValidateUnknownMode(t *testing.T) {
	t.Parallel()

	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

func TestInitLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extract.log")
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json", File: path}))

	zap.L().Info("bill processed", zap.String("file", "a.pdf"))
	_ = zap.L().Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "bill processed")
	assert.Contains(t, string(data), `"file":"a.pdf"`)
}

func TestInitLoggerFileUnwritable(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json", File: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open log file")
}
