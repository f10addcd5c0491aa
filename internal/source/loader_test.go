package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const geometryMarkdown = `# Geometry Quiz

1. How many sides does a triangle have?
   A. 3
   B. 4
   Answer: A
`

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestLoadDir(t *testing.T) {
	root := writeTree(t, map[string]string{
		"algebra.md":          algebraMarkdown,
		"math/geometry.md":    geometryMarkdown,
		"physics/geometry.md": geometryMarkdown,
		"broken.md":           "# Nothing here\n",
		"notes.txt":           "not a question bank",
		".drafts/hidden.md":   geometryMarkdown,
		".hidden.md":          geometryMarkdown,
	})

	res, err := LoadDir(context.Background(), root, "*.md")
	require.NoError(t, err)

	require.Len(t, res.Sets, 3)
	assert.Equal(t, "algebra", res.Sets[0].ID)
	assert.Equal(t, "Math", res.Sets[0].Subject)

	assert.Equal(t, "geometry", res.Sets[1].ID)
	assert.Equal(t, "math", res.Sets[1].Subject)
	assert.Equal(t, "geometry-2", res.Sets[2].ID)
	assert.Equal(t, "physics", res.Sets[2].Subject)

	require.Len(t, res.Errors, 1)
	var perr *ParseError
	require.ErrorAs(t, res.Errors[0], &perr)
	assert.Equal(t, filepath.Join(root, "broken.md"), perr.Path)
}

func TestLoadDirDefaultsToEveryFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.md":  geometryMarkdown,
		"b.csv": "stem,answer\nIs the sky blue?,true\n",
	})

	res, err := LoadDir(context.Background(), root, "")
	require.NoError(t, err)
	assert.Len(t, res.Sets, 2)
	assert.Empty(t, res.Errors)
}

func TestLoadDirErrors(t *testing.T) {
	_, err := LoadDir(context.Background(), filepath.Join(t.TempDir(), "missing"), "*.md")
	assert.Error(t, err)

	file := writeFile(t, "single.md", geometryMarkdown)
	_, err = LoadDir(context.Background(), file, "*.md")
	assert.Error(t, err)

	_, err = LoadDir(context.Background(), t.TempDir(), "[")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = LoadDir(ctx, writeTree(t, map[string]string{"a.md": geometryMarkdown}), "*.md")
	assert.ErrorIs(t, err, context.Canceled)
}
