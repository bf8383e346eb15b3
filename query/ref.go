package query

import (
	"strings"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// Ref is a validated reference to a field of an entity.
type Ref struct {
	entity *schema.Entity
	field  *field.Descriptor
}

// Field returns a reference to the named field. The name of a to-one
// relation resolves to its foreign key field.
func Field(e *schema.Entity, name string) (Ref, error) {
	if fd, ok := e.Field(name); ok {
		return Ref{entity: e, field: fd}, nil
	}
	if rel, ok := e.Relation(name); ok && rel.Kind.Local() {
		return Ref{entity: e, field: rel.FK()}, nil
	}
	return Ref{}, blazeorm.NewUnknownFieldError(e.Name, name)
}

// MustField is like Field but panics on unknown names.
func MustField(e *schema.Entity, name string) Ref {
	r, err := Field(e, name)
	if err != nil {
		panic(err)
	}
	return r
}

// PK returns a reference to the primary key of e.
func PK(e *schema.Entity) Ref {
	return Ref{entity: e, field: e.PK()}
}

// Entity returns the entity the field belongs to.
func (r Ref) Entity() *schema.Entity { return r.entity }

// Descriptor returns the referenced field.
func (r Ref) Descriptor() *field.Descriptor { return r.field }

// Name returns the field name.
func (r Ref) Name() string {
	if r.field == nil {
		return ""
	}
	return r.field.Name
}

// Valid reports whether r was obtained from Field.
func (r Ref) Valid() bool { return r.entity != nil && r.field != nil }

// ResolvePath walks a "__"-separated relation path starting at e.
func ResolvePath(e *schema.Entity, path string) ([]*schema.Relation, error) {
	if path == "" {
		return nil, blazeorm.NewUnknownFieldError(e.Name, path)
	}
	segs := strings.Split(path, schema.PathSeparator)
	rels := make([]*schema.Relation, 0, len(segs))
	cur := e
	for _, seg := range segs {
		rel, ok := cur.Relation(seg)
		if !ok {
			return nil, blazeorm.NewUnknownFieldError(cur.Name, seg)
		}
		rels = append(rels, rel)
		cur = rel.Target
	}
	return rels, nil
}

// joinable reports if a relation yields at most one row per owner.
func joinable(k edge.Kind) bool {
	return !k.Collection()
}
