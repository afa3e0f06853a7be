package assets

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joedavisdev/kiln/engine/assets/loaders"
)

// fakeSpirv builds a minimal blob with the SPIR-V magic word.
func fakeSpirv(words int) []byte {
	data := make([]byte, 4*words)
	binary.LittleEndian.PutUint32(data[:4], 0x07230203)
	return data
}

func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "scenes"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "shaders"), 0o755))
	return root
}

func newTestManager(t *testing.T, root string) *AssetManager {
	t.Helper()
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(root, false))
	t.Cleanup(func() { am.Shutdown() })
	return am
}

func TestLoadSceneBytes(t *testing.T) {
	root := newTestRoot(t)
	sceneJSON := []byte(`{"effects": []}`)
	require.NoError(t, os.WriteFile(filepath.Join(root, "scenes", "demo.json"), sceneJSON, 0o644))

	am := newTestManager(t, root)

	data, err := am.LoadSceneBytes("demo")
	require.NoError(t, err)
	assert.Equal(t, sceneJSON, data)

	_, err = am.LoadSceneBytes("missing")
	require.Error(t, err)
}

func TestLoadShaderLibrary(t *testing.T) {
	root := newTestRoot(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "flat.vert.spv"), fakeSpirv(8), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "flat.frag.spv"), fakeSpirv(6), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "notes.txt"), []byte("x"), 0o644))

	am := newTestManager(t, root)

	library, err := am.LoadShaderLibrary()
	require.NoError(t, err)
	require.Len(t, library, 2)
	assert.Len(t, library["flat.vert"], 32)
	assert.Len(t, library["flat.frag"], 24)
}

func TestLoadShaderLibraryMissingDirIsEmpty(t *testing.T) {
	root := t.TempDir()
	am := newTestManager(t, root)

	library, err := am.LoadShaderLibrary()
	require.NoError(t, err)
	assert.Empty(t, library)
}

func TestShaderLoaderRejectsBadBinaries(t *testing.T) {
	root := newTestRoot(t)

	bad := fakeSpirv(4)
	bad[3] = 0xAA // corrupt the magic
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "broken.vert.spv"), bad, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "shaders", "short.frag.spv"), []byte{1, 2, 3}, 0o644))

	am := newTestManager(t, root)

	_, err := am.LoadAsset("broken.vert", loaders.ResourceTypeShaderBinary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not SPIR-V")

	_, err = am.LoadAsset("short.frag", loaders.ResourceTypeShaderBinary)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid size")
}

func TestLoadModelMeshes(t *testing.T) {
	root := newTestRoot(t)
	am := newTestManager(t, root)

	meshes, err := am.LoadModelMeshes("cube")
	require.NoError(t, err)
	require.Len(t, meshes, 1)
	assert.Len(t, meshes[0].Vertices, 24)

	_, err = am.LoadModelMeshes("nonsense")
	require.Error(t, err)
}

func TestScenePath(t *testing.T) {
	root := newTestRoot(t)
	am := newTestManager(t, root)
	assert.Equal(t, filepath.Join(root, "scenes", "demo.json"), am.ScenePath("demo"))
}
