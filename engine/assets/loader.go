package assets

import "github.com/joedavisdev/kiln/engine/assets/loaders"

type Loader interface {
	Load(path string) (*loaders.Resource, error) // `interface{}` data here allows loaders to return various asset types
	Unload(*loaders.Resource) error
}
