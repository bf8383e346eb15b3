package session

import (
	"slices"
	"sync"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/schema"
)

type identityKey struct {
	entity *schema.Entity
	pk     any
}

// IdentityMap holds the single live instance of every (entity, primary key)
// pair of a session. Keys are canonical field values, so an int64 key and
// the int it was built from address the same slot.
type IdentityMap struct {
	mu    sync.Mutex
	m     map[identityKey]*Instance
	order []identityKey
}

// NewIdentityMap returns an empty identity map.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{m: make(map[identityKey]*Instance)}
}

// Get returns the instance of e with key pk.
func (im *IdentityMap) Get(e *schema.Entity, pk any) (*Instance, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	inst, ok := im.m[identityKey{e, pk}]
	return inst, ok
}

// Add registers inst under its key. Adding a second instance for an
// occupied key is an IdentityConflictError.
func (im *IdentityMap) Add(inst *Instance) error {
	pk := inst.PK()
	if pk == nil {
		return &blazeorm.IdentityConflictError{Entity: inst.entity.Name, Key: nil}
	}
	k := identityKey{inst.entity, pk}
	im.mu.Lock()
	defer im.mu.Unlock()
	if cur, ok := im.m[k]; ok {
		if cur != inst {
			return &blazeorm.IdentityConflictError{Entity: inst.entity.Name, Key: pk}
		}
		return nil
	}
	im.m[k] = inst
	im.order = append(im.order, k)
	return nil
}

// Remove unregisters inst.
func (im *IdentityMap) Remove(inst *Instance) {
	k := identityKey{inst.entity, inst.PK()}
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.m[k] != inst {
		return
	}
	delete(im.m, k)
	im.order = slices.DeleteFunc(im.order, func(o identityKey) bool { return o == k })
}

// All returns the registered instances of e in registration order.
func (im *IdentityMap) All(e *schema.Entity) []*Instance {
	im.mu.Lock()
	defer im.mu.Unlock()
	var out []*Instance
	for _, k := range im.order {
		if k.entity == e {
			out = append(out, im.m[k])
		}
	}
	return out
}

// Len returns the number of registered instances.
func (im *IdentityMap) Len() int {
	im.mu.Lock()
	defer im.mu.Unlock()
	return len(im.m)
}

// Clear unregisters every instance.
func (im *IdentityMap) Clear() {
	im.mu.Lock()
	defer im.mu.Unlock()
	clear(im.m)
	im.order = nil
}
