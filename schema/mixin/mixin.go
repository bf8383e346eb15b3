// Package mixin provides reusable field sets for entity declarations.
//
//	schema.Define("Post").Mixin(mixin.Time{}).Fields(field.String("title"))
package mixin

import (
	"time"

	"github.com/google/uuid"

	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

func now() time.Time {
	return time.Now().UTC()
}

// CreateTime adds an immutable created_at field set on insert.
type CreateTime struct{}

// Fields of the create time mixin.
func (CreateTime) Fields() []*field.Builder {
	return []*field.Builder{
		field.Time("created_at").
			Default(now).
			Immutable(),
	}
}

// UpdateTime adds an updated_at field refreshed on every update.
type UpdateTime struct{}

// Fields of the update time mixin.
func (UpdateTime) Fields() []*field.Builder {
	return []*field.Builder{
		field.Time("updated_at").
			Default(now).
			UpdateDefault(now),
	}
}

// Time composes CreateTime and UpdateTime.
type Time struct{}

// Fields of the time mixin.
func (Time) Fields() []*field.Builder {
	return append(
		CreateTime{}.Fields(),
		UpdateTime{}.Fields()...,
	)
}

// SoftDelete adds a nillable deleted_at field.
type SoftDelete struct{}

// Fields of the soft delete mixin.
func (SoftDelete) Fields() []*field.Builder {
	return []*field.Builder{
		field.Time("deleted_at").Nillable(),
	}
}

// UUID replaces the default auto-increment key with a random UUID string.
type UUID struct{}

// Fields of the UUID mixin.
func (UUID) Fields() []*field.Builder {
	return []*field.Builder{
		field.String("id").
			PrimaryKey().
			MaxLen(36).
			Default(uuid.NewString),
	}
}

var (
	_ schema.Mixin = CreateTime{}
	_ schema.Mixin = UpdateTime{}
	_ schema.Mixin = Time{}
	_ schema.Mixin = SoftDelete{}
	_ schema.Mixin = UUID{}
)
