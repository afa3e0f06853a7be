package assets

import (
	"time"

	"github.com/joedavisdev/kiln/engine/assets/loaders"
)

// AssetInfo is one entry of the manager's on-disk inventory.
type AssetInfo struct {
	Path       string
	Type       loaders.ResourceType
	LastLoaded time.Time
}
