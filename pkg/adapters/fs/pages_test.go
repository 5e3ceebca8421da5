package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/canopy/pkg/adapters/fs"
	"github.com/aretw0/canopy/pkg/core"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	full := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func newDir(t *testing.T) (*fs.PageDir, string) {
	t.Helper()
	path := t.TempDir()
	d, err := fs.NewPageDir(fs.Config{Path: path})
	require.NoError(t, err)
	return d, path
}

func TestPageDir_ReadsEveryFormat(t *testing.T) {
	d, path := newDir(t)
	write(t, path, "notes/b.md", "---\nid: 2\nemoji: \"🌲\"\n---\n# Forest\n\nbody\n")
	write(t, path, "a.md", "---\nid: 1\ntitle: Alpha\n---\n")
	write(t, path, "c.yaml", "id: 3\ntitle: Gamma\n")
	write(t, path, "deep/d.json", `{"id": 4, "title": "Delta", "emoji": "📄"}`)

	pages, err := d.Pages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Page{
		{ID: 1, Title: "Alpha"},
		{ID: 2, Title: "Forest", Emoji: "🌲"},
		{ID: 3, Title: "Gamma"},
		{ID: 4, Title: "Delta", Emoji: "📄"},
	}, pages)
}

func TestPageDir_SkipsInvalidFiles(t *testing.T) {
	d, path := newDir(t)
	write(t, path, "plain.md", "no frontmatter here")
	write(t, path, "noid.yaml", "title: Orphan\n")
	write(t, path, "broken.json", "{")
	write(t, path, "notes.txt", "id: 9")
	write(t, path, "dup-a.md", "---\nid: 5\ntitle: First\n---\n")
	write(t, path, "dup-b.md", "---\nid: 5\ntitle: Second\n---\n")
	write(t, path, "untitled.md", "---\nid: 6\n---\n")

	pages, err := d.Pages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []core.Page{{ID: 5, Title: "First"}, {ID: 6, Title: "untitled"}}, pages)

	st := d.State().(fs.PageDirState)
	assert.Equal(t, 2, st.Pages)
	assert.Equal(t, 4, st.Skipped)
}

func TestPageDir_IgnoresSystemDir(t *testing.T) {
	d, path := newDir(t)
	write(t, path, "a.md", "---\nid: 1\n---\n")
	_, err := d.Pages(context.Background())
	require.NoError(t, err)

	// The cache lives in the system dir and is never read back as a page.
	_, err = os.Stat(filepath.Join(path, fs.DefaultSystemDir, "index.json"))
	require.NoError(t, err)
	write(t, path, fs.DefaultSystemDir+"/fake.json", `{"id": 7}`)

	pages, err := d.Pages(context.Background())
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestPageDir_CacheFollowsEdits(t *testing.T) {
	d, path := newDir(t)
	write(t, path, "a.md", "---\nid: 1\ntitle: Before\n---\n")
	pages, err := d.Pages(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Before", pages[0].Title)

	full := filepath.Join(path, "a.md")
	require.NoError(t, os.WriteFile(full, []byte("---\nid: 1\ntitle: After\n---\n"), 0644))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(full, later, later))

	pages, err = d.Pages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "After", pages[0].Title)
}

func TestPageDir_WritePageAssignsNextID(t *testing.T) {
	d, path := newDir(t)
	write(t, path, "a.md", "---\nid: 4\n---\n")

	p, err := d.WritePage(context.Background(), core.Page{Title: "New", Emoji: "✨"})
	require.NoError(t, err)
	assert.Equal(t, 5, p.ID)

	pages, err := d.Pages(context.Background())
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, core.Page{ID: 5, Title: "New", Emoji: "✨"}, pages[1])

	_, err = d.WritePage(context.Background(), core.Page{ID: -1})
	assert.Error(t, err)
}

func TestPageDir_Config(t *testing.T) {
	_, err := fs.NewPageDir(fs.Config{Path: filepath.Join(t.TempDir(), "missing"), MustExist: true})
	assert.Error(t, err)

	_, err = fs.NewPageDir(fs.Config{Path: t.TempDir(), Pattern: "[unclosed"})
	assert.Error(t, err)

	created := filepath.Join(t.TempDir(), "new")
	_, err = fs.NewPageDir(fs.Config{Path: created})
	require.NoError(t, err)
	assert.DirExists(t, created)

	d, err := fs.NewPageDir(fs.Config{Path: t.TempDir(), Pattern: "*.md"})
	require.NoError(t, err)
	assert.Equal(t, "page-dir", d.ComponentType())
}

func TestPageDir_WatchSignalsChanges(t *testing.T) {
	d, _ := newDir(t)
	ctx, cancel := context.WithCancel(context.Background())

	changes, err := d.WatchPages(ctx)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return d.State().(fs.PageDirState).WatcherActive
	}, 2*time.Second, 10*time.Millisecond)

	_, err = d.WritePage(ctx, core.Page{ID: 1, Title: "Watched"})
	require.NoError(t, err)

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("no change signal")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-changes:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
