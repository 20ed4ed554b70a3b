package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "banesco.yaml"), []byte(`
text_anchors: [Banesco]
per_field_roi:
  monto: { left_rel: 0.3, top_rel: 0.25, width_rel: 0.4, height_rel: 0.1 }
`), 0o644))

	rep, err := checkCatalog("", dir)
	require.NoError(t, err)
	assert.True(t, rep.ok())
	assert.Contains(t, rep.Fields, "monto")
	assert.Contains(t, rep.RequiredFields, "monto")
	assert.Equal(t, []string{"banesco"}, rep.Templates)
}

func TestCheckCatalog_Problems(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("text_anchors: [\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(`
text_anchors: [Mercantil]
per_field_roi:
  propina: { left_rel: 0.3, top_rel: 0.25, width_rel: 0.4, height_rel: 0.1 }
`), 0o644))

	rep, err := checkCatalog("", dir)
	require.NoError(t, err)
	assert.False(t, rep.ok())
	require.Len(t, rep.Problems, 1)
	assert.Equal(t, map[string][]string{"b": {"propina"}}, rep.UnknownROIs)
}

func TestCheckCatalog_BadFieldsFile(t *testing.T) {
	_, err := checkCatalog(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
}
