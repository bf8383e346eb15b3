package session

import (
	"sync"

	"github.com/KipianiNikoloz/blazeorm"
)

// Op classifies a unit of work entry.
type Op uint8

// Unit of work operations.
const (
	OpInsert Op = iota + 1
	OpUpdate
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	}
	return "unknown"
}

type entry struct {
	inst *Instance
	op   Op
	seq  int
}

// UnitOfWork tracks the instances waiting to be inserted, updated or
// deleted by the next flush, in registration order.
type UnitOfWork struct {
	mu      sync.Mutex
	entries []*entry
	byInst  map[*Instance]*entry
	seq     int
}

// NewUnitOfWork returns an empty unit of work.
func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{byInst: make(map[*Instance]*entry)}
}

// RegisterNew schedules the insert of inst.
func (u *UnitOfWork) RegisterNew(inst *Instance) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if e, ok := u.byInst[inst]; ok {
		if e.op == OpDelete {
			return blazeorm.ErrInstanceDeleted
		}
		return nil
	}
	u.add(inst, OpInsert)
	return nil
}

// MarkDirty schedules the update of inst. Instances waiting for their
// insert stay scheduled for insert.
func (u *UnitOfWork) MarkDirty(inst *Instance) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if e, ok := u.byInst[inst]; ok {
		if e.op == OpDelete {
			return blazeorm.ErrInstanceDeleted
		}
		return nil
	}
	u.add(inst, OpUpdate)
	return nil
}

// MarkDeleted schedules the delete of inst. An instance waiting for its
// insert is dropped instead, and an update is replaced by the delete.
func (u *UnitOfWork) MarkDeleted(inst *Instance) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if e, ok := u.byInst[inst]; ok {
		switch e.op {
		case OpInsert:
			u.remove(inst)
			return
		case OpDelete:
			return
		}
		u.remove(inst)
	}
	u.add(inst, OpDelete)
}

// IsDeleted reports if inst is scheduled for deletion.
func (u *UnitOfWork) IsDeleted(inst *Instance) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.byInst[inst]
	return ok && e.op == OpDelete
}

// Op returns the scheduled operation of inst.
func (u *UnitOfWork) Op(inst *Instance) (Op, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.byInst[inst]
	if !ok {
		return 0, false
	}
	return e.op, true
}

// Instances returns the instances scheduled for op in registration order.
func (u *UnitOfWork) Instances(op Op) []*Instance {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []*Instance
	for _, e := range u.entries {
		if e.op == op {
			out = append(out, e.inst)
		}
	}
	return out
}

// Remove forgets inst, typically after its statement was executed.
func (u *UnitOfWork) Remove(inst *Instance) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.remove(inst)
}

// Len returns the number of scheduled instances.
func (u *UnitOfWork) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.entries)
}

// Clear forgets every scheduled instance.
func (u *UnitOfWork) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.entries = nil
	clear(u.byInst)
}

// Mark returns a position in the registration sequence. Entries
// registered afterwards can be discarded with DiscardSince.
func (u *UnitOfWork) Mark() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.seq++
	return u.seq
}

// DiscardSince forgets the entries registered after mark and returns their
// instances.
func (u *UnitOfWork) DiscardSince(mark int) []*Instance {
	u.mu.Lock()
	defer u.mu.Unlock()
	var (
		kept      = u.entries[:0]
		discarded []*Instance
	)
	for _, e := range u.entries {
		if e.seq > mark {
			delete(u.byInst, e.inst)
			discarded = append(discarded, e.inst)
			continue
		}
		kept = append(kept, e)
	}
	clear(u.entries[len(kept):])
	u.entries = kept
	return discarded
}

// add and remove must be called with mu held.
func (u *UnitOfWork) add(inst *Instance, op Op) {
	u.seq++
	e := &entry{inst: inst, op: op, seq: u.seq}
	u.entries = append(u.entries, e)
	u.byInst[inst] = e
}

func (u *UnitOfWork) remove(inst *Instance) {
	e, ok := u.byInst[inst]
	if !ok {
		return
	}
	delete(u.byInst, inst)
	for i, x := range u.entries {
		if x == e {
			u.entries = append(u.entries[:i], u.entries[i+1:]...)
			return
		}
	}
}
