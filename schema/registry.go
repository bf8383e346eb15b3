package schema

import (
	"fmt"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

const (
	// DefaultPK is the name of the key added to entities that declare none.
	DefaultPK = "id"
	// PathSeparator joins relation names in paths and lookups.
	PathSeparator = "__"
)

// Registry owns every entity of an application. Populate it with Register,
// then call Freeze once before opening sessions.
type Registry struct {
	builders []*EntityBuilder
	names    map[string]bool
	entities map[string]*Entity
	order    []*Entity
	frozen   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Build registers the given entities and freezes a new registry.
func Build(bs ...*EntityBuilder) (*Registry, error) {
	r := NewRegistry()
	if err := r.Register(bs...); err != nil {
		return nil, err
	}
	if err := r.Freeze(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds entity declarations.
func (r *Registry) Register(bs ...*EntityBuilder) error {
	if r.frozen {
		return blazeorm.ErrRegistryFrozen
	}
	for _, b := range bs {
		if b.name == "" {
			return fmt.Errorf("schema: entity without name")
		}
		if r.names[b.name] {
			return fmt.Errorf("schema: entity %q registered twice", b.name)
		}
		r.names[b.name] = true
		r.builders = append(r.builders, b)
	}
	return nil
}

// Frozen reports whether Freeze completed.
func (r *Registry) Frozen() bool {
	return r.frozen
}

// Entity returns a frozen entity by name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// MustEntity is like Entity but panics if the entity does not exist.
func (r *Registry) MustEntity(name string) *Entity {
	e, ok := r.Entity(name)
	if !ok {
		panic(fmt.Sprintf("schema: unknown entity %q", name))
	}
	return e
}

// Entities returns all entities in registration order.
func (r *Registry) Entities() []*Entity {
	return append([]*Entity(nil), r.order...)
}

// Freeze resolves every declaration. After a successful Freeze the registry
// and its entities never change.
func (r *Registry) Freeze() error {
	if r.frozen {
		return blazeorm.ErrRegistryFrozen
	}
	entities := make(map[string]*Entity, len(r.builders))
	order := make([]*Entity, 0, len(r.builders))
	tables := make(map[string]string)
	for _, b := range r.builders {
		e, err := newEntity(b)
		if err != nil {
			return err
		}
		if prev, ok := tables[e.Table]; ok {
			return fmt.Errorf("schema: entities %q and %q share table %q", prev, e.Name, e.Table)
		}
		tables[e.Table] = e.Name
		entities[e.Name] = e
		order = append(order, e)
	}
	for i, b := range r.builders {
		owner := order[i]
		for _, eb := range b.edges {
			if err := resolveEdge(owner, eb.Descriptor(), entities); err != nil {
				return err
			}
		}
	}
	r.entities = entities
	r.order = order
	r.frozen = true
	r.builders = nil
	return nil
}

func newEntity(b *EntityBuilder) (*Entity, error) {
	e := &Entity{
		Name:      b.name,
		Table:     b.table,
		Comment:   b.comment,
		byName:    make(map[string]*field.Descriptor),
		byColumn:  make(map[string]*field.Descriptor),
		relByName: make(map[string]*Relation),
	}
	if e.Table == "" {
		e.Table = inflect.Underscore(b.name)
	}
	var builders []*field.Builder
	for _, m := range b.mixins {
		builders = append(builders, m.Fields()...)
	}
	builders = append(builders, b.fields...)
	var fields []*field.Descriptor
	for _, fb := range builders {
		fd := fb.Descriptor()
		if err := fd.Err(); err != nil {
			return nil, fmt.Errorf("schema: entity %q: %w", b.name, err)
		}
		if fd.PrimaryKey {
			if e.pk != nil {
				return nil, fmt.Errorf("schema: entity %q: composite primary keys are not supported", b.name)
			}
			e.pk = fd
		}
		fields = append(fields, fd)
	}
	if e.pk == nil {
		for _, fd := range fields {
			if fd.Name == DefaultPK {
				return nil, fmt.Errorf("schema: entity %q: field %q must be the primary key", b.name, DefaultPK)
			}
		}
		e.pk = field.AutoID(DefaultPK).Descriptor()
		fields = append([]*field.Descriptor{e.pk}, fields...)
	} else if fields[0] != e.pk {
		rest := make([]*field.Descriptor, 0, len(fields))
		rest = append(rest, e.pk)
		for _, fd := range fields {
			if fd != e.pk {
				rest = append(rest, fd)
			}
		}
		fields = rest
	}
	for _, fd := range fields {
		if err := e.addField(fd); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Entity) addField(fd *field.Descriptor) error {
	if strings.Contains(fd.Name, PathSeparator) {
		return fmt.Errorf("schema: entity %q: field %q contains %q", e.Name, fd.Name, PathSeparator)
	}
	if _, ok := e.byName[fd.Name]; ok {
		return fmt.Errorf("schema: entity %q: duplicate field %q", e.Name, fd.Name)
	}
	if _, ok := e.byColumn[fd.Column]; ok {
		return fmt.Errorf("schema: entity %q: duplicate column %q", e.Name, fd.Column)
	}
	e.fields = append(e.fields, fd)
	e.byName[fd.Name] = fd
	e.byColumn[fd.Column] = fd
	return nil
}

func (e *Entity) addRelation(r *Relation) error {
	if strings.Contains(r.Name, PathSeparator) {
		return fmt.Errorf("schema: entity %q: relation %q contains %q", e.Name, r.Name, PathSeparator)
	}
	if _, ok := e.relByName[r.Name]; ok {
		return fmt.Errorf("schema: entity %q: duplicate relation %q", e.Name, r.Name)
	}
	if fd, ok := e.byName[r.Name]; ok && fd.Column != r.Column {
		return fmt.Errorf("schema: entity %q: relation %q shadows field %q", e.Name, r.Name, fd.Name)
	}
	e.relations = append(e.relations, r)
	e.relByName[r.Name] = r
	return nil
}

func resolveEdge(owner *Entity, d *edge.Descriptor, entities map[string]*Entity) error {
	if err := d.Err(); err != nil {
		return fmt.Errorf("schema: entity %q: %w", owner.Name, err)
	}
	target, ok := entities[d.Target]
	if !ok {
		return fmt.Errorf("schema: entity %q: relation %q targets unknown entity %q", owner.Name, d.Name, d.Target)
	}
	rel := &Relation{
		Name:     d.Name,
		Kind:     d.Kind,
		Owner:    owner,
		Target:   target,
		Nullable: d.Nullable,
		Declared: true,
	}
	inv := &Relation{
		Name:     d.Ref,
		Owner:    target,
		Target:   owner,
		Nullable: d.Nullable,
		Inverse:  rel,
	}
	rel.Inverse = inv
	if inv.Name == "" {
		inv.Name = inflect.Underscore(owner.Name) + "_set"
	}
	switch d.Kind {
	case edge.KindToOne, edge.KindOneToOne:
		rel.Column = d.Column
		if rel.Column == "" {
			rel.Column = d.Name + "_id"
		}
		if err := addForeignKey(owner, target, rel.Column, d); err != nil {
			return err
		}
		inv.Column = rel.Column
		inv.Kind = edge.KindReverseMany
		if d.Kind == edge.KindOneToOne {
			inv.Kind = edge.KindReverseOne
		}
	case edge.KindManyToMany:
		th := edge.Through{}
		if d.Through != nil {
			th = *d.Through
		}
		if th.Table == "" {
			th.Table = owner.Table + "_" + target.Table
		}
		if th.OwnerColumn == "" && th.TargetColumn == "" && owner == target {
			th.OwnerColumn, th.TargetColumn = "from_"+owner.Table+"_id", "to_"+target.Table+"_id"
		}
		if th.OwnerColumn == "" {
			th.OwnerColumn = owner.Table + "_id"
		}
		if th.TargetColumn == "" {
			th.TargetColumn = target.Table + "_id"
		}
		if th.OwnerColumn == th.TargetColumn {
			return fmt.Errorf("schema: entity %q: relation %q uses column %q for both sides", owner.Name, d.Name, th.OwnerColumn)
		}
		rel.Through = &th
		inv.Kind = edge.KindManyToMany
		inv.Through = &edge.Through{Table: th.Table, OwnerColumn: th.TargetColumn, TargetColumn: th.OwnerColumn}
	default:
		return fmt.Errorf("schema: entity %q: relation %q has undeclarable kind %s", owner.Name, d.Name, d.Kind)
	}
	if err := owner.addRelation(rel); err != nil {
		return err
	}
	return target.addRelation(inv)
}

// addForeignKey adds the column backing a to-one relation, or reuses an
// explicitly declared field stored in that column.
func addForeignKey(owner, target *Entity, column string, d *edge.Descriptor) error {
	if fd, ok := owner.byColumn[column]; ok {
		if fd.Type != field.TypeInt && target.pk.Type.Numeric() {
			return fmt.Errorf("schema: entity %q: foreign key %q must be an int field", owner.Name, column)
		}
		return nil
	}
	typ := target.pk.Type
	if typ == field.TypeAutoID {
		typ = field.TypeInt
	}
	fd := &field.Descriptor{
		Name:     column,
		Column:   column,
		Type:     typ,
		Nullable: d.Nullable,
		Unique:   d.Kind == edge.KindOneToOne,
		Comment:  "foreign key of " + d.Name,
	}
	return owner.addField(fd)
}
