package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/bill-extract/internal/config"
	"github.com/sells-group/bill-extract/internal/resilience"
)

func TestNewExtractor_Providers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		want     Extractor
	}{
		{"", &PdfToText{}},
		{"local", &PdfToText{}},
		{"native", &Native{}},
		{"mistral", &MistralOCR{}},
	}
	for _, tt := range tests {
		ext, err := NewExtractor(config.OCRConfig{Provider: tt.provider, MistralKey: "k"})
		require.NoError(t, err, tt.provider)
		require.IsType(t, &TextFiles{}, ext)
		assert.IsType(t, tt.want, ext.(*TextFiles).Next, tt.provider)
	}
}

func TestNewExtractor_MistralMissingKey(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor(config.OCRConfig{Provider: "mistral"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mistral provider requires mistral_api_key")
}

func TestNewExtractor_UnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := NewExtractor(config.OCRConfig{Provider: "unknown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "unknown"`)
}

func TestNewExtractor_MistralSettings(t *testing.T) {
	t.Parallel()

	ext, err := newProvider(config.OCRConfig{MistralKey: "k", MistralModel: "m", MistralRPS: 5, MistralRetries: 7}, "mistral")
	require.NoError(t, err)
	m := ext.(*MistralOCR)
	assert.Equal(t, "m", m.model)
	assert.Equal(t, rate.Limit(5), m.limiter.Limit())
	assert.Equal(t, 7, m.backoff.Attempts)
}

func TestNewFallback(t *testing.T) {
	t.Parallel()

	fb, err := NewFallback(config.OCRConfig{})
	require.NoError(t, err)
	assert.Nil(t, fb)

	fb, err = NewFallback(config.OCRConfig{Fallback: "native"})
	require.NoError(t, err)
	assert.IsType(t, &Native{}, fb)
}

func TestNewFactory_FreshInstances(t *testing.T) {
	t.Parallel()

	f := NewFactory(config.OCRConfig{Provider: "local"})
	a, err := f()
	require.NoError(t, err)
	b, err := f()
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.NoError(t, Close(a))
}

func TestTextFiles_ReadsTextDirectly(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	txt := filepath.Join(dir, "bill.TXT")
	require.NoError(t, os.WriteFile(txt, []byte("AB123BIL1234567\n"), 0o644))

	tf := &TextFiles{Next: NewPdfToText("/nonexistent/pdftotext")}
	text, err := tf.ExtractText(context.Background(), txt)
	require.NoError(t, err)
	assert.Equal(t, "AB123BIL1234567\n", text)

	_, err = tf.ExtractText(context.Background(), filepath.Join(dir, "bill.pdf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocr: pdftotext")

	_, err = tf.ExtractText(context.Background(), filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read text")
}

func TestPdfToText_BinPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pdftotext", NewPdfToText("").binPath)
	assert.Equal(t, "/custom/pdftotext", NewPdfToText("/custom/pdftotext").binPath)
}

func TestPdfToText_ExtractText_Success(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fakeBin := filepath.Join(dir, "pdftotext")
	script := "#!/bin/sh\nprintf 'Bill No : AB123BIL1234567\\fRunning Bill No : 4\\n'\n"
	require.NoError(t, os.WriteFile(fakeBin, []byte(script), 0o755))

	text, err := NewPdfToText(fakeBin).ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Bill No : AB123BIL1234567\n\nRunning Bill No : 4\n", text)
}

func TestPdfToText_ScannedBillIsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fakeBin := filepath.Join(dir, "pdftotext")
	require.NoError(t, os.WriteFile(fakeBin, []byte("#!/bin/sh\nprintf '   \\n\\f\\n\\f'\n"), 0o755))

	text, err := NewPdfToText(fakeBin).ExtractText(context.Background(), "/tmp/scan.pdf")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestLayoutText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"single page", "Bill No : AB123BIL1234567\n", "Bill No : AB123BIL1234567\n"},
		{"column padding trimmed", "Total Work Done Amount   125.00     \r\nJob : LE1   \n", "Total Work Done Amount   125.00\nJob : LE1\n"},
		{"pages separated", "page one\n\fpage two\n\f", "page one\n\npage two\n"},
		{"blank pages dropped", "\n\n\fANNEXURE-III\n\f   \n\f", "ANNEXURE-III\n"},
		{"leading indent kept", "    WO No : WO/1\n", "    WO No : WO/1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, layoutText(tt.in))
		})
	}
}

func TestPdfToText_ExtractText_Failure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fakeBin := filepath.Join(dir, "pdftotext")
	require.NoError(t, os.WriteFile(fakeBin, []byte("#!/bin/sh\necho 'Syntax Error: broken' >&2\nexit 1\n"), 0o755))

	_, err := NewPdfToText(fakeBin).ExtractText(context.Background(), "/tmp/dummy.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Syntax Error: broken")
}

func testMistral(endpoint string) *MistralOCR {
	m := NewMistralOCR("test-key", "test-model")
	m.endpoint = endpoint
	m.limiter = rate.NewLimiter(rate.Inf, 1)
	m.backoff = resilience.Backoff{Attempts: 3, Base: time.Millisecond, Cap: 2 * time.Millisecond}
	return m
}

func writePDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bill.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o644))
	return path
}

func TestMistralOCR_Defaults(t *testing.T) {
	t.Parallel()

	m := NewMistralOCR("key", "")
	assert.Equal(t, defaultMistralModel, m.model)
	assert.Equal(t, mistralOCREndpoint, m.endpoint)
	assert.NoError(t, m.Close())
}

func TestMistralOCR_ExtractText(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req mistralOCRRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.Contains(t, req.Document.DocumentURL, "data:application/pdf;base64,")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pages":[{"index":0,"markdown":"Page one"},{"index":1,"markdown":"Page two"}]}`))
	}))
	defer srv.Close()

	text, err := testMistral(srv.URL).ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "Page one\n\nPage two", text)
}

func TestMistralOCR_RetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"pages":[{"index":0,"markdown":"ok"}]}`))
	}))
	defer srv.Close()

	text, err := testMistral(srv.URL).ExtractText(context.Background(), writePDF(t))
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMistralOCR_PermanentErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	_, err := testMistral(srv.URL).ExtractText(context.Background(), writePDF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 401")
	assert.Equal(t, int32(1), calls.Load())
}

func TestMistralOCR_MalformedResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{invalid json`))
	}))
	defer srv.Close()

	_, err := testMistral(srv.URL).ExtractText(context.Background(), writePDF(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal mistral response")
}

func TestMistralOCR_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := NewMistralOCR("key", "model").ExtractText(context.Background(), "/nonexistent/file.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read bill")
}

func TestNative_InvalidFile(t *testing.T) {
	t.Parallel()

	_, err := NewNative().ExtractText(context.Background(), writePDF(t))
	require.Error(t, err)
}

func TestJoinRow(t *testing.T) {
	t.Parallel()

	row := []pdf.Text{
		{S: "BIL1234567", X: 45, W: 50, FontSize: 10},
		{S: "Bill", X: 0, W: 15, FontSize: 10},
		{S: "No", X: 20, W: 10, FontSize: 10},
		{S: "AB123", X: 35, W: 10, FontSize: 10},
	}
	assert.Equal(t, "Bill No AB123BIL1234567", joinRow(row))
}
