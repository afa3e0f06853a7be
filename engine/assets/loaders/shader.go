package loaders

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joedavisdev/kiln/engine/core"
)

// spirvMagic is the first word of every valid SPIR-V module.
const spirvMagic = 0x07230203

// ShaderLoader reads compiled SPIR-V shader binaries.
type ShaderLoader struct{}

func (l *ShaderLoader) Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read shader binary %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}

	if len(data) < 4 || len(data)%4 != 0 {
		err := fmt.Errorf("shader binary %s has invalid size %d", path, len(data))
		core.LogError(err.Error())
		return nil, err
	}
	if magic := binary.LittleEndian.Uint32(data[:4]); magic != spirvMagic {
		err := fmt.Errorf("shader binary %s is not SPIR-V (magic 0x%08x)", path, magic)
		core.LogError(err.Error())
		return nil, err
	}

	// "flat.vert.spv" is referenced by scenes as "flat.vert".
	name := strings.TrimSuffix(filepath.Base(path), ".spv")
	return &Resource{
		Name:     name,
		FullPath: path,
		Type:     ResourceTypeShaderBinary,
		Data:     data,
		DataSize: uint64(len(data)),
	}, nil
}

func (l *ShaderLoader) Unload(resource *Resource) error {
	resource.Data = nil
	resource.DataSize = 0
	return nil
}
