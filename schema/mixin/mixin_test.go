package mixin_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
	"github.com/KipianiNikoloz/blazeorm/schema/mixin"
)

func TestTime(t *testing.T) {
	fields := mixin.Time{}.Fields()
	require.Len(t, fields, 2)

	created := fields[0].Descriptor()
	assert.Equal(t, "created_at", created.Name)
	assert.Equal(t, field.TypeTime, created.Type)
	assert.True(t, created.Immutable)
	assert.Nil(t, created.UpdateDefault)
	require.NotNil(t, created.Default)
	assert.Equal(t, time.UTC, created.Default().(time.Time).Location())

	updated := fields[1].Descriptor()
	assert.Equal(t, "updated_at", updated.Name)
	assert.False(t, updated.Immutable)
	require.NotNil(t, updated.UpdateDefault)
}

func TestSoftDelete(t *testing.T) {
	fields := mixin.SoftDelete{}.Fields()
	require.Len(t, fields, 1)
	assert.True(t, fields[0].Descriptor().Nullable)
}

func TestUUID(t *testing.T) {
	reg, err := schema.Build(
		schema.Define("Token").Mixin(mixin.UUID{}, mixin.CreateTime{}).Fields(field.String("scope")),
	)
	require.NoError(t, err)
	e := reg.MustEntity("Token")
	assert.Equal(t, "id", e.PK().Name)
	assert.Equal(t, field.TypeString, e.PK().Type)
	assert.Equal(t, []string{"id", "created_at", "scope"}, e.Columns())

	id := e.PK().Default().(string)
	_, err = uuid.Parse(id)
	assert.NoError(t, err)
}
