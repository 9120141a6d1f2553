package limits

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/shaderlink/ir"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestStageLookup(t *testing.T) {
	l := Default()
	l.Fragment.MaxTextureImageUnits = 32
	assert.Equal(t, uint32(32), l.Stage(ir.StageFragment).MaxTextureImageUnits)
	assert.Equal(t, uint32(16), l.Stage(ir.StageVertex).MaxTextureImageUnits)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.toml")
	content := `
max_vertex_attribs = 32
max_varying_slots = 60

[fragment]
max_texture_image_units = 64
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	l, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(32), l.MaxVertexAttribs)
	assert.Equal(t, uint32(60), l.MaxVaryingSlots)
	assert.Equal(t, uint32(64), l.Fragment.MaxTextureImageUnits)
	// Untouched keys keep their defaults.
	assert.Equal(t, uint32(8), l.MaxDrawBuffers)
	assert.Equal(t, uint32(16), l.Vertex.MaxTextureImageUnits)
}

func TestLoadRejectsOversizedMaskSpace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "limits.toml")
	require.NoError(t, os.WriteFile(path, []byte("max_vertex_attribs = 128\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_vertex_attribs")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}
