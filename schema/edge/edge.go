package edge

import "fmt"

// Kind is the cardinality of a relation, seen from the side that declares it.
type Kind uint8

// Relation kinds. KindReverseMany and KindReverseOne are never declared
// directly; they are derived on the target of to-one relations.
const (
	KindToOne Kind = iota + 1
	KindOneToOne
	KindManyToMany
	KindReverseMany
	KindReverseOne
)

var kindNames = [...]string{
	KindToOne:       "to-one",
	KindOneToOne:    "one-to-one",
	KindManyToMany:  "many-to-many",
	KindReverseMany: "reverse-many",
	KindReverseOne:  "reverse-one",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Collection reports if the relation resolves to many instances.
func (k Kind) Collection() bool {
	return k == KindManyToMany || k == KindReverseMany
}

// Local reports if the declaring side stores the foreign key.
func (k Kind) Local() bool {
	return k == KindToOne || k == KindOneToOne
}

// Through describes the link table of a many-to-many relation.
type Through struct {
	Table        string
	OwnerColumn  string // references the declaring entity
	TargetColumn string // references the target entity
}

// Descriptor is the static description of a declared relation.
type Descriptor struct {
	Name     string
	Target   string
	Kind     Kind
	Column   string // foreign key column for ToOne and OneToOne
	Nullable bool
	Ref      string // inverse accessor name on the target
	Through  *Through
	Comment  string
}

// Err is set when the builder was configured inconsistently.
func (d *Descriptor) Err() error {
	switch {
	case d.Name == "":
		return fmt.Errorf("edge: missing name")
	case d.Target == "":
		return fmt.Errorf("edge %q: missing target", d.Name)
	case d.Through != nil && d.Kind != KindManyToMany:
		return fmt.Errorf("edge %q: through table on %s relation", d.Name, d.Kind)
	case d.Column != "" && !d.Kind.Local():
		return fmt.Errorf("edge %q: column on %s relation", d.Name, d.Kind)
	}
	return nil
}

// Builder configures a Descriptor.
type Builder struct {
	desc *Descriptor
}

// ForeignKey declares a to-one relation stored as a foreign key column on
// the declaring entity.
func ForeignKey(name, target string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Target: target, Kind: KindToOne}}
}

// OneToOne declares a to-one relation whose foreign key is unique.
func OneToOne(name, target string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Target: target, Kind: KindOneToOne}}
}

// ManyToMany declares a relation resolved through a link table.
func ManyToMany(name, target string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Target: target, Kind: KindManyToMany}}
}

// Field overrides the foreign key column. Defaults to "<name>_id".
func (b *Builder) Field(column string) *Builder {
	b.desc.Column = column
	return b
}

// Nillable allows the foreign key to be NULL.
func (b *Builder) Nillable() *Builder {
	b.desc.Nullable = true
	return b
}

// Ref sets the name of the inverse accessor on the target.
func (b *Builder) Ref(name string) *Builder {
	b.desc.Ref = name
	return b
}

// Through sets the link table and its columns. Empty values keep the defaults.
func (b *Builder) Through(table, ownerColumn, targetColumn string) *Builder {
	b.desc.Through = &Through{Table: table, OwnerColumn: ownerColumn, TargetColumn: targetColumn}
	return b
}

// Comment sets the relation comment.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor returns the configured descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
