package bulkindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	calls   map[string]int
	failFor map[string]int // path -> failures before success
	stopAt  string
	deleted []string
	n       int
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{calls: map[string]int{}, failFor: map[string]int{}}
}

func (f *fakeUploader) IndexFile(_ context.Context, sf SourceFile, project string) (string, error) {
	f.calls[sf.RelPath]++
	if sf.RelPath == f.stopAt {
		return "", fmt.Errorf("402: %w", ErrStop)
	}
	if f.failFor[sf.RelPath] > 0 {
		f.failFor[sf.RelPath]--
		return "", errors.New("503")
	}
	f.n++
	return fmt.Sprintf("doc-%d", f.n), nil
}

func (f *fakeUploader) DeleteDocument(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	p := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
}

func newTestIndexer(t *testing.T, up Uploader) *Indexer {
	t.Helper()
	st, err := NewState(t.TempDir())
	require.NoError(t, err)
	return New(Config{UserID: "alice", BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond}, up, st, zerolog.Nop())
}

func TestScan_FiltersAndSorts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.go", "package b")
	writeFile(t, root, "a/util.py", "def f(): pass")
	writeFile(t, root, "README.md", "# readme")
	writeFile(t, root, "node_modules/x.js", "x")
	writeFile(t, root, ".git/config.go", "package git")
	writeFile(t, root, "big.go", "package big\n\nvar x = 1")

	files, err := Scan(root, 16)
	require.NoError(t, err)
	var rels []string
	for _, f := range files {
		rels = append(rels, f.RelPath)
	}
	assert.Equal(t, []string{"a/util.py", "b.go"}, rels)
	assert.Equal(t, "python", files[0].Language)
	assert.NotEmpty(t, files[0].Hash)
}

func TestIndexer_SkipsUnchangedAndReplacesChanged(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "lib.go", "package lib")

	up := newFakeUploader()
	ix := newTestIndexer(t, up)

	sum, err := ix.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 2, Indexed: 2}, sum)

	sum, err = ix.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 2, Unchanged: 2}, sum)

	writeFile(t, root, "main.go", "package main\n\nfunc main() {}")
	sum, err = ix.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 2, Indexed: 1, Unchanged: 1, Replaced: 1}, sum)
	require.Len(t, up.deleted, 1)
	assert.Equal(t, 2, up.calls["main.go"])
}

func TestIndexer_RetriesTransientFailures(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")

	up := newFakeUploader()
	up.failFor["a.go"] = 2
	up.failFor["b.go"] = 5

	sum, err := newTestIndexer(t, up).Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, up.calls["a.go"])
	assert.Equal(t, 3, up.calls["b.go"])
}

func TestIndexer_StopsOnErrStop(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a")
	writeFile(t, root, "b.go", "package b")
	writeFile(t, root, "c.go", "package c")

	up := newFakeUploader()
	up.stopAt = "b.go"

	sum, err := newTestIndexer(t, up).Run(context.Background(), root)
	require.ErrorIs(t, err, ErrStop)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 1, up.calls["b.go"])
	assert.Zero(t, up.calls["c.go"])
}
