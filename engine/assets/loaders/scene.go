package loaders

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joedavisdev/kiln/engine/core"
)

// SceneLoader reads textual scene descriptions. Parsing is left to
// the caller; the loader only produces bytes.
type SceneLoader struct{}

func (l *SceneLoader) Load(path string) (*Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read scene description %s: %w", path, err)
		core.LogError(err.Error())
		return nil, err
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Resource{
		Name:     name,
		FullPath: path,
		Type:     ResourceTypeScene,
		Data:     data,
		DataSize: uint64(len(data)),
	}, nil
}

func (l *SceneLoader) Unload(resource *Resource) error {
	resource.Data = nil
	resource.DataSize = 0
	return nil
}
