package schema

import (
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// Mixin is a reusable set of fields shared by several entities.
type Mixin interface {
	Fields() []*field.Builder
}

// EntityBuilder collects the declaration of one entity until the registry
// is frozen.
type EntityBuilder struct {
	name    string
	table   string
	comment string
	mixins  []Mixin
	fields  []*field.Builder
	edges   []*edge.Builder
}

// Define starts the declaration of an entity.
func Define(name string) *EntityBuilder {
	return &EntityBuilder{name: name}
}

// Name returns the entity name.
func (b *EntityBuilder) Name() string {
	return b.name
}

// Table overrides the table name. Defaults to the snake_case entity name.
func (b *EntityBuilder) Table(name string) *EntityBuilder {
	b.table = name
	return b
}

// Comment sets the entity comment.
func (b *EntityBuilder) Comment(c string) *EntityBuilder {
	b.comment = c
	return b
}

// Fields appends field declarations.
func (b *EntityBuilder) Fields(fs ...*field.Builder) *EntityBuilder {
	b.fields = append(b.fields, fs...)
	return b
}

// Edges appends relation declarations.
func (b *EntityBuilder) Edges(es ...*edge.Builder) *EntityBuilder {
	b.edges = append(b.edges, es...)
	return b
}

// Mixin appends mixins. Mixin fields precede the entity's own fields.
func (b *EntityBuilder) Mixin(ms ...Mixin) *EntityBuilder {
	b.mixins = append(b.mixins, ms...)
	return b
}
