package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Build(
		schema.Define("Author").Fields(field.String("name").MaxLen(20)),
		schema.Define("Post").Fields(field.String("title")).Edges(
			edge.ForeignKey("author", "Author").Ref("posts"),
			edge.ManyToMany("tags", "Tag").Ref("posts"),
		),
		schema.Define("Tag").Fields(field.String("label")),
	)
	require.NoError(t, err)
	return reg
}

func persistent(e *schema.Entity, pk int64) *Instance {
	inst := NewInstance(e)
	inst.values[e.PK().Name] = pk
	inst.state = Persistent
	return inst
}

func TestIdentityMap(t *testing.T) {
	reg := testRegistry(t)
	author, post := reg.MustEntity("Author"), reg.MustEntity("Post")
	im := NewIdentityMap()

	a1, a2 := persistent(author, 1), persistent(author, 2)
	p1 := persistent(post, 1)
	require.NoError(t, im.Add(a1))
	require.NoError(t, im.Add(a2))
	require.NoError(t, im.Add(p1))
	require.NoError(t, im.Add(a1), "re-adding the same instance is a no-op")
	assert.Equal(t, 3, im.Len())

	got, ok := im.Get(author, int64(1))
	require.True(t, ok)
	assert.Same(t, a1, got)
	_, ok = im.Get(post, int64(2))
	assert.False(t, ok)
	assert.Equal(t, []*Instance{a1, a2}, im.All(author))

	err := im.Add(persistent(author, 1))
	require.Error(t, err)
	assert.True(t, blazeorm.IsIdentityConflict(err))

	err = im.Add(NewInstance(author))
	assert.True(t, blazeorm.IsIdentityConflict(err), "instances without key cannot be registered")

	im.Remove(a1)
	_, ok = im.Get(author, int64(1))
	assert.False(t, ok)
	require.NoError(t, im.Add(a1))
	assert.Equal(t, []*Instance{a2, a1}, im.All(author))

	im.Clear()
	assert.Zero(t, im.Len())
	assert.Empty(t, im.All(author))
}

func TestUnitOfWork(t *testing.T) {
	reg := testRegistry(t)
	author := reg.MustEntity("Author")
	u := NewUnitOfWork()

	n, d, x := NewInstance(author), persistent(author, 1), persistent(author, 2)
	require.NoError(t, u.RegisterNew(n))
	require.NoError(t, u.MarkDirty(n))
	op, ok := u.Op(n)
	require.True(t, ok)
	assert.Equal(t, OpInsert, op, "dirty pending instances stay inserts")

	require.NoError(t, u.MarkDirty(d))
	u.MarkDeleted(x)
	assert.True(t, u.IsDeleted(x))
	assert.ErrorIs(t, u.MarkDirty(x), blazeorm.ErrInstanceDeleted)
	assert.Equal(t, []*Instance{n}, u.Instances(OpInsert))
	assert.Equal(t, []*Instance{d}, u.Instances(OpUpdate))
	assert.Equal(t, []*Instance{x}, u.Instances(OpDelete))

	u.MarkDeleted(d)
	op, _ = u.Op(d)
	assert.Equal(t, OpDelete, op, "delete replaces update")

	u.MarkDeleted(n)
	_, ok = u.Op(n)
	assert.False(t, ok, "deleting a pending instance cancels its insert")
	assert.Equal(t, 2, u.Len())

	mark := u.Mark()
	late := NewInstance(author)
	require.NoError(t, u.RegisterNew(late))
	assert.Equal(t, []*Instance{late}, u.DiscardSince(mark))
	assert.Equal(t, 2, u.Len())

	u.Remove(x)
	assert.False(t, u.IsDeleted(x))
	u.Clear()
	assert.Zero(t, u.Len())
}

func TestInstance(t *testing.T) {
	reg := testRegistry(t)
	author, post := reg.MustEntity("Author"), reg.MustEntity("Post")

	p := NewInstance(post)
	require.NoError(t, p.Set("title", "Hello"))
	require.NoError(t, p.Set("author", 7), "to-one names resolve to their foreign key")
	assert.Equal(t, int64(7), p.Get("author_id"))
	assert.Equal(t, []string{"title", "author_id"}, p.DirtyFields())
	assert.True(t, blazeorm.IsUnknownField(p.Set("nope", 1)))
	_, err := p.Lookup("nope")
	assert.True(t, blazeorm.IsUnknownField(err))
	assert.True(t, blazeorm.IsValidationError(p.Set("author_id", "x")))

	a := persistent(author, 3)
	assert.True(t, blazeorm.IsValidationError(a.Set("id", 4)), "primary key is immutable once persistent")

	_, ok := p.Related("author")
	assert.False(t, ok)
	parent := NewInstance(author)
	require.NoError(t, p.SetRelated("author", parent))
	got, ok := p.RelatedOne("author")
	require.True(t, ok)
	assert.Same(t, parent, got)
	assert.Same(t, parent, p.links["author"])

	require.NoError(t, p.Set("author_id", 9))
	_, ok = p.RelatedOne("author")
	assert.False(t, ok, "changing the foreign key unloads the relation")
	assert.Empty(t, p.links)

	require.NoError(t, p.SetRelated("author", a))
	assert.Equal(t, int64(3), p.Get("author_id"))
	assert.Error(t, p.SetRelated("tags", a))

	p.clean()
	p.refresh(map[string]any{"title": "Fresh", "author_id": int64(3)})
	assert.Equal(t, "Fresh", p.Get("title"))
	_, ok = p.RelatedOne("author")
	assert.True(t, ok, "unchanged foreign key keeps the relation")
	require.NoError(t, p.Set("title", "Mine"))
	p.refresh(map[string]any{"title": "Theirs"})
	assert.Equal(t, "Mine", p.Get("title"), "dirty fields survive a refresh")
	assert.Equal(t, "Post(<nil>)", p.String())
}
