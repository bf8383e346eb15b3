package field

import (
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"
)

// Type is the semantic type of a field.
type Type uint8

// Field types.
const (
	TypeInvalid Type = iota
	TypeInt
	TypeFloat
	TypeString
	TypeBool
	TypeTime
	TypeAutoID
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeString:  "string",
	TypeBool:    "bool",
	TypeTime:    "time",
	TypeAutoID:  "autoid",
}

// String returns the type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// Numeric reports if the type holds numbers.
func (t Type) Numeric() bool {
	return t == TypeInt || t == TypeFloat || t == TypeAutoID
}

// ParseType returns the Type for a name produced by Type.String.
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name && Type(i) != TypeInvalid {
			return Type(i), nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown type %q", name)
}

// A Validator checks a canonical, non-nil field value.
type Validator func(any) error

// Descriptor is the static description of one field.
type Descriptor struct {
	Name          string
	Column        string
	Type          Type
	Nullable      bool
	PrimaryKey    bool
	Unique        bool
	Immutable     bool
	Sensitive     bool // values are masked in logs and errors
	Size          int  // maximum length of string values; 0 means unbounded
	Default       func() any
	UpdateDefault func() any
	Validators    []Validator
	Comment       string
}

// Err is set when the builder was configured inconsistently.
func (d *Descriptor) Err() error {
	switch {
	case d.Name == "":
		return errors.New("field: missing name")
	case d.Type == TypeInvalid:
		return fmt.Errorf("field %q: invalid type", d.Name)
	case d.PrimaryKey && d.Nullable:
		return fmt.Errorf("field %q: primary key cannot be nillable", d.Name)
	case d.Size < 0:
		return fmt.Errorf("field %q: negative size", d.Name)
	}
	return nil
}

// Generated reports if the database assigns the value on insert.
func (d *Descriptor) Generated() bool {
	return d.Type == TypeAutoID
}

// Validate checks a canonical value against nullability, size and the
// field validators. It returns the first failure.
func (d *Descriptor) Validate(v any) error {
	if v == nil {
		if d.Nullable || d.Generated() {
			return nil
		}
		return errors.New("value is required")
	}
	if s, ok := v.(string); ok && d.Size > 0 && utf8.RuneCountInString(s) > d.Size {
		return fmt.Errorf("value exceeds max length %d", d.Size)
	}
	for _, fn := range d.Validators {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

// Builder configures a Descriptor.
type Builder struct {
	desc *Descriptor
}

func newBuilder(name string, t Type) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Column: name, Type: t}}
}

// Int returns a new integer field builder.
func Int(name string) *Builder { return newBuilder(name, TypeInt) }

// Float returns a new float field builder.
func Float(name string) *Builder { return newBuilder(name, TypeFloat) }

// String returns a new string field builder.
func String(name string) *Builder { return newBuilder(name, TypeString) }

// Bool returns a new bool field builder.
func Bool(name string) *Builder { return newBuilder(name, TypeBool) }

// Time returns a new timestamp field builder.
func Time(name string) *Builder { return newBuilder(name, TypeTime) }

// AutoID returns an auto-increment primary key builder.
func AutoID(name string) *Builder {
	b := newBuilder(name, TypeAutoID)
	b.desc.PrimaryKey = true
	b.desc.Immutable = true
	return b
}

// Column overrides the column name.
func (b *Builder) Column(name string) *Builder {
	b.desc.Column = name
	return b
}

// Nillable allows NULL values.
func (b *Builder) Nillable() *Builder {
	b.desc.Nullable = true
	return b
}

// PrimaryKey marks the field as the entity key.
func (b *Builder) PrimaryKey() *Builder {
	b.desc.PrimaryKey = true
	b.desc.Immutable = true
	return b
}

// Unique adds a unique constraint.
func (b *Builder) Unique() *Builder {
	b.desc.Unique = true
	return b
}

// Immutable excludes the field from updates.
func (b *Builder) Immutable() *Builder {
	b.desc.Immutable = true
	return b
}

// Sensitive masks the field's parameter values in logs and errors.
func (b *Builder) Sensitive() *Builder {
	b.desc.Sensitive = true
	return b
}

// Comment sets the field comment.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// MaxLen limits the length of string values.
func (b *Builder) MaxLen(n int) *Builder {
	b.desc.Size = n
	return b
}

// NotEmpty rejects empty strings.
func (b *Builder) NotEmpty() *Builder {
	return b.Validate(NotEmpty)
}

// Min rejects numbers below i.
func (b *Builder) Min(i float64) *Builder {
	return b.Validate(MinValue(i))
}

// Max rejects numbers above i.
func (b *Builder) Max(i float64) *Builder {
	return b.Validate(MaxValue(i))
}

// Range rejects numbers outside [lo, hi].
func (b *Builder) Range(lo, hi float64) *Builder {
	return b.Validate(MinValue(lo)).Validate(MaxValue(hi))
}

// Match rejects strings that do not match re.
func (b *Builder) Match(re *regexp.Regexp) *Builder {
	return b.Validate(Match(re))
}

// Validate appends a custom validator.
func (b *Builder) Validate(fn Validator) *Builder {
	b.desc.Validators = append(b.desc.Validators, fn)
	return b
}

// Default sets the value used on insert when none was given. v is either a
// constant or a function such as time.Now.
func (b *Builder) Default(v any) *Builder {
	b.desc.Default = valueFunc(v)
	return b
}

// UpdateDefault sets the value applied whenever a dirty instance is updated.
func (b *Builder) UpdateDefault(v any) *Builder {
	b.desc.UpdateDefault = valueFunc(v)
	return b
}

// Descriptor returns the configured descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}

func valueFunc(v any) func() any {
	switch f := v.(type) {
	case func() any:
		return f
	case func() time.Time:
		return func() any { return f() }
	case func() string:
		return func() any { return f() }
	case func() int64:
		return func() any { return f() }
	case func() int:
		return func() any { return f() }
	case func() float64:
		return func() any { return f() }
	case func() bool:
		return func() any { return f() }
	default:
		return func() any { return v }
	}
}

// NotEmpty is a validator rejecting empty strings.
func NotEmpty(v any) error {
	if s, ok := v.(string); ok && s == "" {
		return errors.New("value is empty")
	}
	return nil
}

// MinValue returns a validator rejecting numbers below lo.
func MinValue(lo float64) Validator {
	return func(v any) error {
		if f, ok := toFloat(v); ok && f < lo {
			return fmt.Errorf("value %v is less than %v", v, lo)
		}
		return nil
	}
}

// MaxValue returns a validator rejecting numbers above hi.
func MaxValue(hi float64) Validator {
	return func(v any) error {
		if f, ok := toFloat(v); ok && f > hi {
			return fmt.Errorf("value %v is greater than %v", v, hi)
		}
		return nil
	}
}

// Match returns a validator rejecting strings that do not match re.
func Match(re *regexp.Regexp) Validator {
	return func(v any) error {
		if s, ok := v.(string); ok && !re.MatchString(s) {
			return fmt.Errorf("value %q does not match %s", s, re)
		}
		return nil
	}
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
