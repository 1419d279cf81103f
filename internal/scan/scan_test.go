package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bill-extract/internal/config"
)

func touch(t *testing.T, root string, rel ...string) {
	t.Helper()
	for _, r := range rel {
		p := filepath.Join(root, filepath.FromSlash(r))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
}

func layout(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	touch(t, root,
		"WO-1/Bills/b1.pdf",
		"WO-1/Bills/b2.PDF",
		"WO-1/Bills/notes.docx",
		"WO-1/WorkOrder.pdf",
		"WO-2/bills/b3.pdf",
		"WO-2/bills/b3.txt",
		"WO-3/Bills/archive/old.pdf",
		"WO-4/.hidden/Bills/h.pdf",
	)
	return root
}

func rel(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out[i] = filepath.ToSlash(r)
	}
	return out
}

func TestFind_BillsFolders(t *testing.T) {
	root := layout(t)

	found, err := Find(context.Background(), Options{Root: root, DirName: "Bills", Extensions: []string{".pdf"}})
	require.NoError(t, err)

	paths := make([]string, len(found))
	for i, s := range found {
		paths[i] = s.Path
	}
	assert.Equal(t, []string{"WO-1/Bills/b1.pdf", "WO-1/Bills/b2.PDF", "WO-2/bills/b3.pdf"}, rel(t, root, paths))
	assert.Equal(t, "WO-1/Bills/b1.pdf", found[0].Name)
}

func TestFind_ExtensionsAndAnyFolder(t *testing.T) {
	root := layout(t)

	found, err := Find(context.Background(), Options{Root: root, Extensions: []string{"pdf", " .TXT "}})
	require.NoError(t, err)
	assert.Len(t, found, 6)
}

func TestFind_DefaultExtension(t *testing.T) {
	assert.Equal(t, map[string]bool{"pdf": true}, Options{}.extSet())
}

func TestFind_MissingRoot(t *testing.T) {
	_, err := Find(context.Background(), Options{Root: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scan: walk")
}

func TestFind_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Find(ctx, Options{Root: layout(t)})
	require.Error(t, err)
}

func TestCount(t *testing.T) {
	root := layout(t)

	n, byWO, err := Count(context.Background(), Options{Root: root, DirName: "bills", Extensions: []string{".pdf"}})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, byWO[filepath.Join(root, "WO-1")])
	assert.Equal(t, 1, byWO[filepath.Join(root, "WO-2")])
}

func TestFromConfig(t *testing.T) {
	o := FromConfig(config.SourceConfig{Root: "/data", DirName: "Bills", Extensions: []string{".pdf"}})
	assert.Equal(t, Options{Root: "/data", DirName: "Bills", Extensions: []string{".pdf"}}, o)
}
