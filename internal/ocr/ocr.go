package ocr

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/bill-extract/internal/config"
)

// Extractor extracts text content from bill files.
type Extractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// Factory builds a fresh Extractor. Batch workers call it again when they
// recycle their instance.
type Factory func() (Extractor, error)

// Close releases an extractor's resources if it holds any.
func Close(e Extractor) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NewExtractor creates the primary Extractor for cfg.Provider. Plain-text
// sources are always read directly.
func NewExtractor(cfg config.OCRConfig) (Extractor, error) {
	e, err := newProvider(cfg, cfg.Provider)
	if err != nil {
		return nil, err
	}
	return &TextFiles{Next: e}, nil
}

// NewFallback creates the secondary Extractor named by cfg.Fallback, or nil
// when no fallback is configured.
func NewFallback(cfg config.OCRConfig) (Extractor, error) {
	if cfg.Fallback == "" {
		return nil, nil
	}
	return newProvider(cfg, cfg.Fallback)
}

// NewFactory returns a Factory for the primary extractor.
func NewFactory(cfg config.OCRConfig) Factory {
	return func() (Extractor, error) { return NewExtractor(cfg) }
}

func newProvider(cfg config.OCRConfig, provider string) (Extractor, error) {
	switch provider {
	case "local", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "native":
		return NewNative(), nil
	case "mistral":
		if cfg.MistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		m := NewMistralOCR(cfg.MistralKey, cfg.MistralModel)
		if cfg.MistralRPS > 0 {
			m.limiter = rate.NewLimiter(rate.Limit(cfg.MistralRPS), 1)
		}
		if cfg.MistralRetries > 0 {
			m.backoff.Attempts = cfg.MistralRetries
		}
		return m, nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", provider)
	}
}

// TextFiles reads .txt sources as-is and hands everything else to Next.
type TextFiles struct {
	Next Extractor
}

// ExtractText implements Extractor.
func (t *TextFiles) ExtractText(ctx context.Context, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", eris.Wrapf(err, "ocr: read text %s", path)
		}
		return string(data), nil
	}
	return t.Next.ExtractText(ctx, path)
}

// Close implements io.Closer.
func (t *TextFiles) Close() error {
	return Close(t.Next)
}
