// Package scan discovers bill files on disk.
package scan

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bill-extract/internal/config"
	"github.com/sells-group/bill-extract/internal/model"
)

// Options selects which files count as bills.
type Options struct {
	Root string
	// DirName is the folder name bills live in, matched case-insensitively.
	// Empty accepts files in any folder.
	DirName    string
	Extensions []string
}

// FromConfig builds Options from the source section.
func FromConfig(cfg config.SourceConfig) Options {
	return Options{Root: cfg.Root, DirName: cfg.DirName, Extensions: cfg.Extensions}
}

func (o Options) extSet() map[string]bool {
	exts := map[string]bool{}
	for _, e := range o.Extensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts[e] = true
		}
	}
	if len(exts) == 0 {
		exts["pdf"] = true
	}
	return exts
}

// Find walks opts.Root and returns every matching file, sorted by path.
// Unreadable directories are logged and skipped. Hidden directories are
// not entered.
func Find(ctx context.Context, opts Options) ([]model.Source, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	exts := opts.extSet()

	var out []model.Source
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			zap.L().Warn("scan: skipping unreadable path", zap.String("path", path), zap.Error(walkErr))
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if opts.DirName != "" && !strings.EqualFold(filepath.Base(filepath.Dir(path)), opts.DirName) {
			return nil
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if !exts[ext] {
			return nil
		}
		out = append(out, model.NewSource(root, path))
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "scan: walk %s", root)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Count returns the number of files Find would return, grouped by the
// folder that contains the bills folder (the work order).
func Count(ctx context.Context, opts Options) (int, map[string]int, error) {
	found, err := Find(ctx, opts)
	if err != nil {
		return 0, nil, err
	}
	byParent := map[string]int{}
	for _, s := range found {
		byParent[filepath.Dir(filepath.Dir(s.Path))]++
	}
	return len(found), byParent, nil
}
