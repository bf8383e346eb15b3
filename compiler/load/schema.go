// Package load reads entity models declared in YAML files and turns them
// into schema declarations.
//
// A model file holds one or more YAML documents, one entity each:
//
//	name: Post
//	mixins: [time]
//	fields:
//	  - name: title
//	    type: string
//	    max_len: 120
//	    not_empty: true
//	edges:
//	  - name: author
//	    kind: foreign_key
//	    target: Author
//	    ref: posts
package load

import (
	"fmt"
	"regexp"
	"time"

	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
	"github.com/KipianiNikoloz/blazeorm/schema/mixin"
)

// DefaultNow is the default value of time fields set to the current time.
const DefaultNow = "now"

// Schema is an entity model loaded from YAML.
type Schema struct {
	Name    string   `yaml:"name"`
	Table   string   `yaml:"table,omitempty"`
	Comment string   `yaml:"comment,omitempty"`
	Mixins  []string `yaml:"mixins,omitempty"`
	Fields  []*Field `yaml:"fields,omitempty"`
	Edges   []*Edge  `yaml:"edges,omitempty"`
	// Pos is the file the schema was read from.
	Pos string `yaml:"-"`
}

// Field is a field model.
type Field struct {
	Name          string   `yaml:"name"`
	Type          string   `yaml:"type"`
	Column        string   `yaml:"column,omitempty"`
	Nillable      bool     `yaml:"nillable,omitempty"`
	PrimaryKey    bool     `yaml:"primary_key,omitempty"`
	Unique        bool     `yaml:"unique,omitempty"`
	Immutable     bool     `yaml:"immutable,omitempty"`
	Sensitive     bool     `yaml:"sensitive,omitempty"`
	NotEmpty      bool     `yaml:"not_empty,omitempty"`
	MaxLen        int      `yaml:"max_len,omitempty"`
	Min           *float64 `yaml:"min,omitempty"`
	Max           *float64 `yaml:"max,omitempty"`
	Match         string   `yaml:"match,omitempty"`
	Default       any      `yaml:"default,omitempty"`
	UpdateDefault any      `yaml:"update_default,omitempty"`
	Comment       string   `yaml:"comment,omitempty"`
}

// Edge is a relation model.
type Edge struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Target   string   `yaml:"target"`
	Ref      string   `yaml:"ref,omitempty"`
	Column   string   `yaml:"column,omitempty"`
	Nillable bool     `yaml:"nillable,omitempty"`
	Through  *Through `yaml:"through,omitempty"`
	Comment  string   `yaml:"comment,omitempty"`
}

// Through is the link table model of a many-to-many edge.
type Through struct {
	Table        string `yaml:"table,omitempty"`
	OwnerColumn  string `yaml:"owner_column,omitempty"`
	TargetColumn string `yaml:"target_column,omitempty"`
}

// Edge kinds accepted in models.
const (
	KindForeignKey = "foreign_key"
	KindOneToOne   = "one_to_one"
	KindManyToMany = "many_to_many"
)

// Mixins maps model mixin names to their implementations.
var Mixins = map[string]schema.Mixin{
	"time":        mixin.Time{},
	"create_time": mixin.CreateTime{},
	"update_time": mixin.UpdateTime{},
	"soft_delete": mixin.SoftDelete{},
	"uuid":        mixin.UUID{},
}

// FieldType returns the field type of f.
func (f *Field) FieldType() (field.Type, error) {
	t, err := field.ParseType(f.Type)
	if err != nil {
		return field.TypeInvalid, fmt.Errorf("field %q: %w", f.Name, err)
	}
	return t, nil
}

// EdgeKind returns the relation kind of e.
func (e *Edge) EdgeKind() (edge.Kind, error) {
	switch e.Kind {
	case KindForeignKey, "":
		return edge.KindToOne, nil
	case KindOneToOne:
		return edge.KindOneToOne, nil
	case KindManyToMany:
		return edge.KindManyToMany, nil
	}
	return 0, fmt.Errorf("edge %q: unknown kind %q", e.Name, e.Kind)
}

// Validate checks the model without resolving references to other
// entities.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("load: %s: schema without name", s.Pos)
	}
	for _, m := range s.Mixins {
		if _, ok := Mixins[m]; !ok {
			return fmt.Errorf("load: schema %q: unknown mixin %q", s.Name, m)
		}
	}
	for _, f := range s.Fields {
		if _, err := f.Builder(); err != nil {
			return fmt.Errorf("load: schema %q: %w", s.Name, err)
		}
	}
	for _, e := range s.Edges {
		if _, err := e.EdgeKind(); err != nil {
			return fmt.Errorf("load: schema %q: %w", s.Name, err)
		}
		if e.Target == "" {
			return fmt.Errorf("load: schema %q: edge %q: missing target", s.Name, e.Name)
		}
	}
	return nil
}

// Builder returns the entity declaration of s.
func (s *Schema) Builder() (*schema.EntityBuilder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	b := schema.Define(s.Name)
	if s.Table != "" {
		b.Table(s.Table)
	}
	if s.Comment != "" {
		b.Comment(s.Comment)
	}
	for _, m := range s.Mixins {
		b.Mixin(Mixins[m])
	}
	fields := make([]*field.Builder, 0, len(s.Fields))
	for _, f := range s.Fields {
		fb, _ := f.Builder()
		fields = append(fields, fb)
	}
	edges := make([]*edge.Builder, 0, len(s.Edges))
	for _, e := range s.Edges {
		edges = append(edges, e.Builder())
	}
	return b.Fields(fields...).Edges(edges...), nil
}

// Builder returns the field declaration of f.
func (f *Field) Builder() (*field.Builder, error) {
	t, err := f.FieldType()
	if err != nil {
		return nil, err
	}
	var b *field.Builder
	switch t {
	case field.TypeInt:
		b = field.Int(f.Name)
	case field.TypeFloat:
		b = field.Float(f.Name)
	case field.TypeString:
		b = field.String(f.Name)
	case field.TypeBool:
		b = field.Bool(f.Name)
	case field.TypeTime:
		b = field.Time(f.Name)
	case field.TypeAutoID:
		b = field.AutoID(f.Name)
	}
	if f.Column != "" {
		b.Column(f.Column)
	}
	if f.Nillable {
		b.Nillable()
	}
	if f.PrimaryKey {
		b.PrimaryKey()
	}
	if f.Unique {
		b.Unique()
	}
	if f.Immutable {
		b.Immutable()
	}
	if f.Sensitive {
		b.Sensitive()
	}
	if f.NotEmpty {
		b.NotEmpty()
	}
	if f.MaxLen > 0 {
		b.MaxLen(f.MaxLen)
	}
	if f.Min != nil {
		b.Min(*f.Min)
	}
	if f.Max != nil {
		b.Max(*f.Max)
	}
	if f.Match != "" {
		re, err := regexp.Compile(f.Match)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		b.Match(re)
	}
	if f.Default != nil {
		v, err := f.value(t, f.Default)
		if err != nil {
			return nil, err
		}
		b.Default(v)
	}
	if f.UpdateDefault != nil {
		v, err := f.value(t, f.UpdateDefault)
		if err != nil {
			return nil, err
		}
		b.UpdateDefault(v)
	}
	if f.Comment != "" {
		b.Comment(f.Comment)
	}
	if err := b.Descriptor().Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// value converts a default from YAML. Time fields accept DefaultNow.
func (f *Field) value(t field.Type, v any) (any, error) {
	if t == field.TypeTime && v == DefaultNow {
		return func() time.Time { return time.Now().UTC() }, nil
	}
	cv, err := field.Coerce(t, v)
	if err != nil {
		return nil, fmt.Errorf("field %q: default: %w", f.Name, err)
	}
	return cv, nil
}

// Builder returns the relation declaration of e. The kind must be valid.
func (e *Edge) Builder() *edge.Builder {
	var b *edge.Builder
	switch k, _ := e.EdgeKind(); k {
	case edge.KindOneToOne:
		b = edge.OneToOne(e.Name, e.Target)
	case edge.KindManyToMany:
		b = edge.ManyToMany(e.Name, e.Target)
	default:
		b = edge.ForeignKey(e.Name, e.Target)
	}
	if e.Ref != "" {
		b.Ref(e.Ref)
	}
	if e.Column != "" {
		b.Field(e.Column)
	}
	if e.Nillable {
		b.Nillable()
	}
	if th := e.Through; th != nil {
		b.Through(th.Table, th.OwnerColumn, th.TargetColumn)
	}
	if e.Comment != "" {
		b.Comment(e.Comment)
	}
	return b
}

// Registry declares every schema in a frozen registry, resolving edges.
func Registry(schemas ...*Schema) (*schema.Registry, error) {
	bs := make([]*schema.EntityBuilder, 0, len(schemas))
	for _, s := range schemas {
		b, err := s.Builder()
		if err != nil {
			return nil, err
		}
		bs = append(bs, b)
	}
	return schema.Build(bs...)
}
