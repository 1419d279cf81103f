package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/bill-extract/internal/model"
)

type extractRequest struct {
	SourceName string `json:"source_name"`
	Text       string `json:"text"`
}

// handleExtract accepts either a JSON body with inline text or a multipart
// upload with the bill in the "file" field.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		doc model.Document
		ok  bool
	)
	switch mediaType {
	case "multipart/form-data":
		doc, ok = s.readUpload(w, r)
	case "application/json", "":
		doc, ok = readInline(w, r)
	default:
		jsonError(w, fmt.Sprintf("unsupported content type %q", mediaType), http.StatusUnsupportedMediaType)
		return
	}
	if !ok {
		return
	}

	res := s.ext.Extract(doc)
	writeJSON(w, http.StatusOK, res.View())
}

func readInline(w http.ResponseWriter, r *http.Request) (model.Document, bool) {
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return model.Document{}, false
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return model.Document{}, false
	}
	name := sanitizeFilename(req.SourceName)
	if name == "" {
		name = "inline.txt"
	}
	return model.Document{SourceName: name, RawText: req.Text}, true
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (model.Document, bool) {
	if s.text == nil {
		jsonError(w, "file uploads are not enabled", http.StatusNotImplemented)
		return model.Document{}, false
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return model.Document{}, false
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required", http.StatusBadRequest)
		return model.Document{}, false
	}
	defer file.Close() //nolint:errcheck

	name := sanitizeFilename(header.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".pdf" && ext != ".txt" {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(name)), http.StatusBadRequest)
		return model.Document{}, false
	}

	tmp, err := os.CreateTemp("", "bill-*"+ext)
	if err != nil {
		jsonError(w, "failed to stage upload", http.StatusInternalServerError)
		return model.Document{}, false
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, io.LimitReader(file, s.maxUpload+1))
	tmp.Close() //nolint:errcheck
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return model.Document{}, false
	}
	if n > s.maxUpload {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.maxUpload), http.StatusRequestEntityTooLarge)
		return model.Document{}, false
	}

	text, err := s.text.ExtractText(r.Context(), tmp.Name())
	if err != nil {
		// The record is still produced from empty text.
		zap.L().Warn("api: text extraction failed", zap.String("source", name), zap.Error(err))
		text = ""
	}
	return model.Document{SourceName: name, RawText: text}, true
}

func (s *Server) handleColumns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"columns": model.Columns()})
}

type categoryView struct {
	Key     string   `json:"key"`
	Aliases []string `json:"aliases"`
	Policy  string   `json:"policy"`
}

func (s *Server) handleTaxonomy(w http.ResponseWriter, _ *http.Request) {
	cats := s.ext.Taxonomy().Categories()
	out := make([]categoryView, len(cats))
	for i, c := range cats {
		out[i] = categoryView{Key: string(c.Key), Aliases: c.Aliases, Policy: c.Policy.String()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": out})
}

// sanitizeFilename keeps only the base name and drops control characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
}
