// Package field provides fluent builders for declaring entity fields.
//
// Field names double as column names unless Column overrides them:
//
//	field.Int("age").Min(0)
//	field.String("email").Unique().MaxLen(255)
//	field.String("password_hash").Sensitive()
//	field.Time("created_at").Default(time.Now).Immutable()
//	field.Float("rating").Nillable().Range(0, 5)
//
// Every builder produces a Descriptor, which is what the rest of the engine
// consumes. Values read from a driver are normalized with Coerce so that an
// instance always holds one canonical Go type per field Type:
//
//	TypeInt, TypeAutoID  int64
//	TypeFloat            float64
//	TypeString           string
//	TypeBool             bool
//	TypeTime             time.Time
//
// NULL is represented as an untyped nil.
package field
