package core

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var ownersMu sync.Mutex
var owners map[uuid.UUID]interface{}

// IdentifierAcquireNewID generates a unique id and registers its owner.
// Device backends use these to tag buffers and command buffers.
func IdentifierAcquireNewID(owner interface{}) uuid.UUID {
	ownersMu.Lock()
	defer ownersMu.Unlock()
	if owners == nil {
		owners = make(map[uuid.UUID]interface{}, 100)
	}
	id := uuid.New()
	owners[id] = owner
	return id
}

// IdentifierReleaseID frees the id for reuse by dropping its owner entry.
func IdentifierReleaseID(id uuid.UUID) error {
	ownersMu.Lock()
	defer ownersMu.Unlock()
	if owners == nil {
		err := fmt.Errorf("identifier_release_id called before any id was acquired. Nothing was done")
		return err
	}
	if _, ok := owners[id]; !ok {
		err := fmt.Errorf("identifier_release_id: id '%s' not registered. Nothing was done", id)
		return err
	}
	delete(owners, id)
	return nil
}
