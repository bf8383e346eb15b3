package session

import (
	"fmt"
	"slices"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// State is the persistence state of an Instance.
type State uint8

// Instance states.
const (
	// Transient instances were created but not added to a session.
	Transient State = iota
	// Pending instances were added to a session and wait for their insert.
	Pending
	// Persistent instances have a row in the database.
	Persistent
	// Deleted instances had their row deleted.
	Deleted
)

var stateNames = [...]string{
	Transient:  "transient",
	Pending:    "pending",
	Persistent: "persistent",
	Deleted:    "deleted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// Instance is one row of an entity bound to a session. Field values are
// held in their canonical Go types (see package field).
//
// Relations are resolved explicitly: Related and RelatedOne report false
// until the relation was loaded, and an empty collection once it was
// loaded without rows.
type Instance struct {
	entity  *schema.Entity
	session *Session
	state   State
	values  map[string]any
	dirty   map[string]bool
	related map[string][]*Instance
	// links holds to-one parents assigned with SetRelated whose keys are
	// written at flush.
	links map[string]*Instance
}

// NewInstance returns a transient instance of e holding the defaults of
// its fields.
func NewInstance(e *schema.Entity) *Instance {
	inst := &Instance{
		entity:  e,
		values:  make(map[string]any, len(e.Fields())),
		dirty:   make(map[string]bool),
		related: make(map[string][]*Instance),
		links:   make(map[string]*Instance),
	}
	for _, fd := range e.Fields() {
		var v any
		if fd.Default != nil {
			v, _ = field.Coerce(fd.Type, fd.Default())
		}
		inst.values[fd.Name] = v
	}
	return inst
}

// Entity returns the entity of the instance.
func (i *Instance) Entity() *schema.Entity { return i.entity }

// State returns the persistence state of the instance.
func (i *Instance) State() State { return i.state }

// Deleted reports if the row of the instance was deleted or is scheduled
// for deletion.
func (i *Instance) Deleted() bool {
	if i.state == Deleted {
		return true
	}
	return i.session != nil && i.session.uow.IsDeleted(i)
}

// PK returns the primary key value, or nil before the insert of an
// instance with a generated key.
func (i *Instance) PK() any {
	return i.values[i.entity.PK().Name]
}

// Get returns the value of the named field.
func (i *Instance) Get(name string) any {
	fd, ok := i.field(name)
	if !ok {
		return nil
	}
	return i.values[fd.Name]
}

// Lookup returns the value of the named field, or an UnknownFieldError.
func (i *Instance) Lookup(name string) (any, error) {
	fd, ok := i.field(name)
	if !ok {
		return nil, blazeorm.NewUnknownFieldError(i.entity.Name, name)
	}
	return i.values[fd.Name], nil
}

// field resolves a field name, or the name of a to-one relation to its
// foreign key field.
func (i *Instance) field(name string) (*field.Descriptor, bool) {
	if fd, ok := i.entity.Field(name); ok {
		return fd, true
	}
	if rel, ok := i.entity.Relation(name); ok && rel.Kind.Local() {
		return i.entity.FieldByColumn(rel.Column)
	}
	return nil, false
}

// Set assigns the named field. The value is converted to the canonical type
// of the field and the field is marked dirty. Persistent instances are
// registered as dirty with their session.
func (i *Instance) Set(name string, v any) error {
	fd, ok := i.field(name)
	if !ok {
		return blazeorm.NewUnknownFieldError(i.entity.Name, name)
	}
	if i.Deleted() {
		return blazeorm.ErrInstanceDeleted
	}
	cv, err := field.Coerce(fd.Type, v)
	if err != nil {
		return blazeorm.NewValidationError(fd.Name, err)
	}
	if i.state == Persistent {
		switch {
		case fd.PrimaryKey:
			return blazeorm.NewValidationError(fd.Name, fmt.Errorf("primary key of a persistent instance cannot change"))
		case fd.Immutable:
			return blazeorm.NewValidationError(fd.Name, fmt.Errorf("field is immutable"))
		}
	}
	i.values[fd.Name] = cv
	i.dirty[fd.Name] = true
	for _, rel := range i.entity.Relations() {
		if rel.Kind.Local() && rel.Column == fd.Column {
			delete(i.links, rel.Name)
			i.invalidateLink(rel)
		}
	}
	if i.session != nil && i.state == Persistent {
		return i.session.uow.MarkDirty(i)
	}
	return nil
}

// invalidateLink drops the cached parent of a to-one relation and the
// collection of the inverse side that may list this instance.
func (i *Instance) invalidateLink(rel *schema.Relation) {
	if parents, ok := i.related[rel.Name]; ok {
		for _, p := range parents {
			p.Invalidate(rel.Inverse.Name)
		}
	}
	delete(i.related, rel.Name)
	if i.session != nil {
		for _, p := range i.session.identity.All(rel.Target) {
			if members, ok := p.related[rel.Inverse.Name]; ok && slices.Contains(members, i) {
				p.Invalidate(rel.Inverse.Name)
			}
		}
	}
}

// SetRelated links the instance to parent through a to-one relation. The
// foreign key is written when the session flushes, after parent was
// inserted if parent is pending.
func (i *Instance) SetRelated(name string, parent *Instance) error {
	rel, ok := i.entity.Relation(name)
	if !ok {
		return blazeorm.NewUnknownFieldError(i.entity.Name, name)
	}
	if !rel.Kind.Local() {
		return fmt.Errorf("session: %s is a %s relation; use AddMembers or the foreign key of %s", rel, rel.Kind, rel.Target.Name)
	}
	if i.Deleted() {
		return blazeorm.ErrInstanceDeleted
	}
	fk, _ := i.entity.FieldByColumn(rel.Column)
	if parent == nil {
		if err := i.Set(fk.Name, nil); err != nil {
			return err
		}
		i.related[rel.Name] = []*Instance{}
		return nil
	}
	if parent.entity != rel.Target {
		return fmt.Errorf("session: %s expects %s, got %s", rel, rel.Target.Name, parent.entity.Name)
	}
	if pk := parent.PK(); pk != nil && parent.state == Persistent {
		if err := i.Set(fk.Name, pk); err != nil {
			return err
		}
	} else {
		i.invalidateLink(rel)
		i.links[rel.Name] = parent
		i.dirty[fk.Name] = true
		if i.session != nil && i.state == Persistent {
			if err := i.session.uow.MarkDirty(i); err != nil {
				return err
			}
		}
	}
	i.related[rel.Name] = []*Instance{parent}
	return nil
}

// IsDirty reports if any field changed since the instance was loaded or
// last flushed.
func (i *Instance) IsDirty() bool { return len(i.dirty) > 0 }

// DirtyFields returns the names of the changed fields in field order.
func (i *Instance) DirtyFields() []string {
	var names []string
	for _, fd := range i.entity.Fields() {
		if i.dirty[fd.Name] {
			names = append(names, fd.Name)
		}
	}
	return names
}

// Values returns a copy of the field values keyed by field name.
func (i *Instance) Values() map[string]any {
	out := make(map[string]any, len(i.values))
	for k, v := range i.values {
		out[k] = v
	}
	return out
}

// Row returns a copy of the field values keyed by column name.
func (i *Instance) Row() map[string]any {
	out := make(map[string]any, len(i.values))
	for _, fd := range i.entity.Fields() {
		out[fd.Column] = i.values[fd.Name]
	}
	return out
}

// Related returns the loaded instances of the named relation. ok is false
// if the relation was not loaded.
func (i *Instance) Related(name string) (related []*Instance, ok bool) {
	rs, ok := i.related[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(rs), true
}

// RelatedOne returns the loaded instance of a to-one relation, or nil if
// the relation was loaded and is empty. ok is false if the relation was not
// loaded.
func (i *Instance) RelatedOne(name string) (related *Instance, ok bool) {
	rs, ok := i.related[name]
	if !ok || len(rs) == 0 {
		return nil, ok
	}
	return rs[0], true
}

// RelatedOrErr returns the loaded instances of the named relation, or a
// NotLoadedError if the relation was not loaded.
func (i *Instance) RelatedOrErr(name string) ([]*Instance, error) {
	if rs, ok := i.Related(name); ok {
		return rs, nil
	}
	return nil, blazeorm.NewNotLoadedError(name)
}

// Invalidate forgets the loaded instances of the named relation.
func (i *Instance) Invalidate(name string) {
	delete(i.related, name)
}

// resolve records the loaded instances of a relation.
func (i *Instance) resolve(rel *schema.Relation, related []*Instance) {
	if related == nil {
		related = []*Instance{}
	}
	i.related[rel.Name] = related
}

// resolved reports if a relation is loaded.
func (i *Instance) resolved(name string) bool {
	_, ok := i.related[name]
	return ok
}

// addMember appends a member to a loaded collection.
func (i *Instance) addMember(name string, m *Instance) {
	if rs, ok := i.related[name]; ok && !slices.Contains(rs, m) {
		i.related[name] = append(rs, m)
	}
}

// removeMember removes a member from a loaded collection.
func (i *Instance) removeMember(name string, m *Instance) {
	if rs, ok := i.related[name]; ok {
		i.related[name] = slices.DeleteFunc(slices.Clone(rs), func(x *Instance) bool { return x == m })
	}
}

// refresh overwrites the clean fields with values of a fetched row. A
// to-one relation whose foreign key changed is unloaded.
func (i *Instance) refresh(values map[string]any) {
	for _, rel := range i.entity.Relations() {
		if !rel.Kind.Local() {
			continue
		}
		fk, _ := i.entity.FieldByColumn(rel.Column)
		if v, ok := values[fk.Name]; ok && !i.dirty[fk.Name] && i.values[fk.Name] != v {
			delete(i.related, rel.Name)
		}
	}
	for name, v := range values {
		if !i.dirty[name] {
			i.values[name] = v
		}
	}
}

// clean marks every field as unchanged.
func (i *Instance) clean() {
	clear(i.dirty)
}

// String returns "<Entity>(<pk>)".
func (i *Instance) String() string {
	return fmt.Sprintf("%s(%v)", i.entity.Name, i.PK())
}
