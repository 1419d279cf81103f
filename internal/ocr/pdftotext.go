package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts bill text using the pdftotext CLI tool in layout mode,
// which keeps amount columns on the same line as their labels.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText runs pdftotext -layout on the given PDF and returns its pages
// as cleaned lines. A scanned bill with no text layer yields "".
func (p *PdfToText) ExtractText(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", eris.Wrapf(err, "ocr: pdftotext %s: %s", path, strings.TrimSpace(stderr.String()))
	}

	return layoutText(stdout.String()), nil
}

// layoutText splits pdftotext output on form feeds, strips the column
// padding that layout mode leaves at line ends, drops pages with no text and
// separates the remaining pages with a blank line.
func layoutText(raw string) string {
	var pages []string
	for _, page := range strings.Split(raw, "\f") {
		lines := strings.Split(page, "\n")
		for i, l := range lines {
			lines[i] = strings.TrimRight(l, " \t\r")
		}
		if text := strings.Trim(strings.Join(lines, "\n"), "\n"); strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}
	if len(pages) == 0 {
		return ""
	}
	return strings.Join(pages, "\n\n") + "\n"
}
