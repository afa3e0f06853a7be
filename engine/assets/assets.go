// Package assets inventories the asset root, loads scenes, shader
// binaries and models through registered loaders, and watches the
// filesystem so scene edits can trigger a hot reload.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joedavisdev/kiln/engine/assets/loaders"
	"github.com/joedavisdev/kiln/engine/core"
)

type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[loaders.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[loaders.ResourceType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}, nil
}

// Initialize registers the loaders, inventories the asset root and,
// when watch is set, starts the filesystem watcher that fires
// EVENT_CODE_SCENE_FILE_CHANGED on scene edits.
func (am *AssetManager) Initialize(root string, watch bool) error {
	am.root = root

	// Register loaders
	am.registerLoader(loaders.ResourceTypeScene, &loaders.SceneLoader{})
	am.registerLoader(loaders.ResourceTypeShaderBinary, &loaders.ShaderLoader{})
	am.registerLoader(loaders.ResourceTypeModel, &loaders.ModelLoader{})

	if _, err := os.Stat(root); err != nil {
		return fmt.Errorf("asset root %s is not accessible: %w", root, err)
	}

	if watch {
		go am.start()
		if err := am.addRecursive(root); err != nil {
			return err
		}
	} else if err := am.inventory(root); err != nil {
		return err
	}

	core.LogInfo("asset manager initialized at %s (%d assets, watch=%t)", root, am.assetCount(), watch)
	return nil
}

func (am *AssetManager) registerLoader(assetType loaders.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

func (am *AssetManager) assetCount() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

// LoadAsset resolves a logical name through the path conventions of
// its resource type and runs the registered loader.
func (am *AssetManager) LoadAsset(name string, resourceType loaders.ResourceType) (*loaders.Resource, error) {
	var path string
	switch resourceType {
	case loaders.ResourceTypeScene:
		path = filepath.Join(am.root, "scenes", name+".json")
	case loaders.ResourceTypeShaderBinary:
		path = filepath.Join(am.root, "shaders", name+".spv")
	case loaders.ResourceTypeModel:
		// Models are generated; the name is the whole address.
		path = name
	default:
		err := fmt.Errorf("unknown resource type %d for asset %q", resourceType, name)
		core.LogError(err.Error())
		return nil, err
	}

	loader, exists := am.loaders[resourceType]
	if !exists {
		err := fmt.Errorf("no loader registered for asset type %d", resourceType)
		core.LogError(err.Error())
		return nil, err
	}

	resource, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Type: resourceType, LastLoaded: time.Now()}
	am.mutex.Unlock()

	return resource, nil
}

func (am *AssetManager) UnloadAsset(resource *loaders.Resource) error {
	loader, exists := am.loaders[resource.Type]
	if !exists {
		return fmt.Errorf("no loader registered for asset type %d", resource.Type)
	}
	return loader.Unload(resource)
}

// LoadSceneBytes returns the raw scene description for the parser.
func (am *AssetManager) LoadSceneBytes(name string) ([]byte, error) {
	resource, err := am.LoadAsset(name, loaders.ResourceTypeScene)
	if err != nil {
		return nil, err
	}
	return resource.Data.([]byte), nil
}

// ScenePath returns where a named scene lives on disk, whether or not
// it has been loaded.
func (am *AssetManager) ScenePath(name string) string {
	return filepath.Join(am.root, "scenes", name+".json")
}

// LoadModelMeshes returns the CPU geometry of a named model.
func (am *AssetManager) LoadModelMeshes(name string) ([]loaders.MeshData, error) {
	resource, err := am.LoadAsset(name, loaders.ResourceTypeModel)
	if err != nil {
		return nil, err
	}
	return resource.Data.([]loaders.MeshData), nil
}

// LoadShaderLibrary loads every compiled shader under the asset
// root's shaders directory, keyed by name as scenes reference them
// ("flat.vert.spv" loads as "flat.vert"). A missing directory yields
// an empty library; backends report unresolved shaders per effect.
func (am *AssetManager) LoadShaderLibrary() (map[string][]byte, error) {
	dir := filepath.Join(am.root, "shaders")
	library := make(map[string][]byte)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			core.LogWarn("shader directory %s does not exist; shader library is empty", dir)
			return library, nil
		}
		return nil, fmt.Errorf("failed to read shader directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".spv") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".spv")
		resource, err := am.LoadAsset(name, loaders.ResourceTypeShaderBinary)
		if err != nil {
			return nil, err
		}
		library[resource.Name] = resource.Data.([]byte)
	}

	core.LogInfo("shader library loaded: %d modules", len(library))
	return library, nil
}

// inventory records every asset under the root without watching.
func (am *AssetManager) inventory(root string) error {
	return filepath.Walk(root, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			am.handleFileEvent(walkPath)
		}
		return nil
	})
}

// addRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

func (am *AssetManager) start() {
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					am.watchRecursive(e.Name, false)
				}
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
				if determineAssetType(e.Name) == loaders.ResourceTypeScene {
					core.LogDebug("scene description changed on disk: %s", e.Name)
					core.EventFire(core.EVENT_CODE_SCENE_FILE_CHANGED, am, core.EventContext{Data: e.Name})
				}
			}
			// Can't stat a deleted path, so just try to remove it from
			// both the inventory and the watch list.
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
				am.fsnotify.Remove(e.Name)
			}

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(e.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch list.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				if err = am.fsnotify.Remove(walkPath); err != nil {
					return err
				}
			} else {
				if err = am.fsnotify.Add(walkPath); err != nil {
					return err
				}
			}
		} else {
			am.handleFileEvent(walkPath)
		}
		return nil
	})
}

// handleFileEvent records the creation or modification of a file.
func (am *AssetManager) handleFileEvent(path string) {
	assetType := determineAssetType(path)
	if assetType == loaders.ResourceTypeNone {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[path] = AssetInfo{
		Path:       path,
		Type:       assetType,
		LastLoaded: time.Now(),
	}
}

func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, path)
}

func determineAssetType(path string) loaders.ResourceType {
	switch filepath.Ext(path) {
	case ".json":
		return loaders.ResourceTypeScene
	case ".spv":
		return loaders.ResourceTypeShaderBinary
	default:
		return loaders.ResourceTypeNone
	}
}

func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	return nil
}
