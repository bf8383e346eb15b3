package schema

import (
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// Entity is the frozen description of a mapped table.
type Entity struct {
	Name    string
	Table   string
	Comment string

	fields    []*field.Descriptor
	byName    map[string]*field.Descriptor
	byColumn  map[string]*field.Descriptor
	pk        *field.Descriptor
	relations []*Relation
	relByName map[string]*Relation
}

// Fields returns the fields in declaration order, primary key first.
func (e *Entity) Fields() []*field.Descriptor {
	return append([]*field.Descriptor(nil), e.fields...)
}

// Field returns the field with the given name.
func (e *Entity) Field(name string) (*field.Descriptor, bool) {
	f, ok := e.byName[name]
	return f, ok
}

// FieldByColumn returns the field stored in the given column.
func (e *Entity) FieldByColumn(column string) (*field.Descriptor, bool) {
	f, ok := e.byColumn[column]
	return f, ok
}

// PK returns the primary key field.
func (e *Entity) PK() *field.Descriptor {
	return e.pk
}

// Columns returns the column names in field order.
func (e *Entity) Columns() []string {
	cols := make([]string, len(e.fields))
	for i, f := range e.fields {
		cols[i] = f.Column
	}
	return cols
}

// Relations returns declared and derived relations in registration order.
func (e *Entity) Relations() []*Relation {
	return append([]*Relation(nil), e.relations...)
}

// Relation returns the relation with the given name.
func (e *Entity) Relation(name string) (*Relation, bool) {
	r, ok := e.relByName[name]
	return r, ok
}

// Relation is a resolved relation between two entities.
//
// For KindToOne and KindOneToOne, Column lives on Owner and references Target's key.
// For KindReverseMany and KindReverseOne, Column lives on Target and references
// Owner's key. ManyToMany uses Through, whose OwnerColumn references Owner.
type Relation struct {
	Name     string
	Kind     edge.Kind
	Owner    *Entity
	Target   *Entity
	Column   string
	Nullable bool
	Through  *edge.Through
	Inverse  *Relation
	Declared bool // declared by the user rather than derived
}

// String returns "<owner>.<name>".
func (r *Relation) String() string {
	return r.Owner.Name + "." + r.Name
}

// FK returns the foreign key field for relations backed by a column.
func (r *Relation) FK() *field.Descriptor {
	switch r.Kind {
	case edge.KindToOne, edge.KindOneToOne:
		f, _ := r.Owner.FieldByColumn(r.Column)
		return f
	case edge.KindReverseMany, edge.KindReverseOne:
		f, _ := r.Target.FieldByColumn(r.Column)
		return f
	}
	return nil
}
