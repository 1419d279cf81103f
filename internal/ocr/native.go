package ocr

import (
	"context"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Native extracts the embedded text layer of a PDF in pure Go. It produces
// one line per text row, so it needs no external binary but cannot read
// scanned pages.
type Native struct{}

// NewNative creates a Native extractor.
func NewNative() *Native { return &Native{} }

// ExtractText implements Extractor.
func (n *Native) ExtractText(ctx context.Context, path string) (text string, err error) {
	// The PDF library panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("ocr: native pdf parse panicked for %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "ocr: open pdf %s", path)
	}
	defer f.Close() //nolint:errcheck

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", eris.Wrap(err, "ocr: native extraction cancelled")
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			zap.L().Debug("ocr: skip unreadable page", zap.String("file", path), zap.Int("page", i), zap.Error(err))
			continue
		}
		if i > 1 {
			sb.WriteString("\n")
		}
		for _, row := range rows {
			sb.WriteString(joinRow(row.Content))
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

// joinRow orders a row's glyph runs left to right and inserts a space where
// the horizontal gap is wider than a fraction of the font size.
func joinRow(texts []pdf.Text) string {
	sort.SliceStable(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

	var sb strings.Builder
	for i, t := range texts {
		if i > 0 {
			prev := texts[i-1]
			if t.X-(prev.X+prev.W) > prev.FontSize*0.2 {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.S)
	}
	return strings.TrimSpace(sb.String())
}
