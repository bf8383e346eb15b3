package session_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/cache"
	"github.com/KipianiNikoloz/blazeorm/dialect"
	"github.com/KipianiNikoloz/blazeorm/dialect/sql"
	migrate "github.com/KipianiNikoloz/blazeorm/dialect/sql/schema"
	"github.com/KipianiNikoloz/blazeorm/query"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
	"github.com/KipianiNikoloz/blazeorm/session"
)

type fixture struct {
	drv    *sql.Driver
	reg    *schema.Registry
	author *schema.Entity
	post   *schema.Entity
	tag    *schema.Entity
}

func setup(t *testing.T) *fixture {
	t.Helper()
	reg, err := schema.Build(
		schema.Define("Author").Fields(field.String("name").MaxLen(20)),
		schema.Define("Post").Fields(
			field.String("title").NotEmpty(),
			field.Int("views").Default(0).UpdateDefault(1),
		).Edges(
			edge.ForeignKey("author", "Author").Ref("posts"),
			edge.ManyToMany("tags", "Tag").Ref("posts"),
		),
		schema.Define("Tag").Fields(field.String("label")),
	)
	require.NoError(t, err)
	drv, err := sql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = drv.Close()
	})
	require.NoError(t, migrate.Create(context.Background(), drv, reg))
	return &fixture{
		drv:    drv,
		reg:    reg,
		author: reg.MustEntity("Author"),
		post:   reg.MustEntity("Post"),
		tag:    reg.MustEntity("Tag"),
	}
}

func (f *fixture) session(t *testing.T, opts ...session.Option) *session.Session {
	t.Helper()
	s, err := session.New(f.drv, f.reg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// seed stores two authors, the first with three posts, and two tags.
func (f *fixture) seed(t *testing.T) {
	t.Helper()
	s := f.session(t)
	err := s.Run(context.Background(), func(ctx context.Context, s *session.Session) error {
		ada, err := s.New(f.author, map[string]any{"name": "Ada"})
		if err != nil {
			return err
		}
		if _, err := s.New(f.author, map[string]any{"name": "Bob"}); err != nil {
			return err
		}
		for _, title := range []string{"one", "two", "three"} {
			p, err := s.New(f.post, map[string]any{"title": title})
			if err != nil {
				return err
			}
			if err := p.SetRelated("author", ada); err != nil {
				return err
			}
		}
		for _, label := range []string{"go", "sql"} {
			if _, err := s.New(f.tag, map[string]any{"label": label}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func statements(s *session.Session) int {
	n := 0
	for _, c := range s.QueryStats() {
		n += c
	}
	return n
}

func titles(insts []*session.Instance) []any {
	out := make([]any, len(insts))
	for i, inst := range insts {
		out[i] = inst.Get("title")
	}
	return out
}

func TestFlushInsertsParentsFirst(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	authors, err := s.Query(f.author).OrderBy("id").All(ctx)
	require.NoError(t, err)
	require.Len(t, authors, 2)
	ada := authors[0]
	assert.Equal(t, "Ada", ada.Get("name"))
	assert.Equal(t, session.Persistent, ada.State())

	posts, err := s.Query(f.post).Filter("author", ada.PK()).OrderBy("id").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two", "three"}, titles(posts))
	assert.Equal(t, int64(0), posts[0].Get("views"))
}

func TestPrefetchOneQueryPerLevel(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	authors, err := s.Query(f.author).OrderBy("name").Prefetch("posts").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, statements(s), "one select and one batch")

	posts, ok := authors[0].Related("posts")
	require.True(t, ok)
	assert.Equal(t, []any{"one", "two", "three"}, titles(posts))
	posts, ok = authors[1].Related("posts")
	require.True(t, ok, "authors without posts resolve to empty")
	assert.Empty(t, posts)

	n := statements(s)
	again, err := s.Query(f.author).OrderBy("name").Prefetch("posts").All(ctx)
	require.NoError(t, err)
	assert.Same(t, authors[0], again[0])
	assert.Equal(t, n+1, statements(s), "loaded relations are not queried again")
}

func TestRelatedOrErr(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	authors, err := s.Query(f.author).OrderBy("name").All(ctx)
	require.NoError(t, err)
	_, err = authors[0].RelatedOrErr("posts")
	assert.True(t, blazeorm.IsNotLoaded(err))
	assert.EqualError(t, err, `blazeorm: relation "posts" was not loaded`)

	_, err = s.Related(ctx, authors[0], "posts")
	require.NoError(t, err)
	posts, err := authors[0].RelatedOrErr("posts")
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two", "three"}, titles(posts))

	authors[0].Invalidate("posts")
	_, err = authors[0].RelatedOrErr("posts")
	assert.True(t, blazeorm.IsNotLoaded(err))
}

func TestJoinSharesIdentity(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	posts, err := s.Query(f.post).Join("author").OrderBy("id").All(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, 1, statements(s))
	a0, ok := posts[0].RelatedOne("author")
	require.True(t, ok)
	a1, _ := posts[1].RelatedOne("author")
	assert.Same(t, a0, a1)
	assert.Equal(t, "Ada", a0.Get("name"))

	got, err := s.Get(ctx, f.author, a0.PK())
	require.NoError(t, err)
	assert.Same(t, a0, got)
	assert.Equal(t, 1, statements(s), "identity map hit")

	_, err = s.Query(f.author).Join("posts").All(ctx)
	assert.True(t, blazeorm.IsUnsupportedEagerStrategy(err))
}

func TestNestedPrefetch(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	posts, err := s.Query(f.post).OrderBy("id").All(ctx)
	require.NoError(t, err)
	tags, err := s.Query(f.tag).OrderBy("label").All(ctx)
	require.NoError(t, err)
	require.NoError(t, s.AddMembers(ctx, posts[0], "tags", tags...))
	require.NoError(t, s.AddMembers(ctx, posts[1], "tags", tags[0]))

	other := f.session(t)
	authors, err := other.Query(f.author).OrderBy("id").Prefetch("posts__tags", "posts").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, statements(other))
	ps, _ := authors[0].Related("posts")
	require.Len(t, ps, 3)
	ts, ok := ps[0].Related("tags")
	require.True(t, ok)
	assert.Len(t, ts, 2)
	ts, _ = ps[2].Related("tags")
	assert.Empty(t, ts)

	back, err := other.Query(f.tag).Filter("label", "go").Prefetch("posts").Only(ctx)
	require.NoError(t, err)
	ps, _ = back.Related("posts")
	assert.Len(t, ps, 2)
}

func TestManyToManyMutations(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	post, err := s.Query(f.post).First(ctx)
	require.NoError(t, err)
	tags, err := s.Query(f.tag).OrderBy("label").All(ctx)
	require.NoError(t, err)

	members, err := s.Members(ctx, post, "tags")
	require.NoError(t, err)
	assert.Empty(t, members)
	for _, tg := range tags {
		_, err := s.Related(ctx, tg, "posts")
		require.NoError(t, err)
	}

	require.NoError(t, s.AddMembers(ctx, post, "tags", tags...))
	members, ok := post.Related("tags")
	require.True(t, ok)
	assert.Len(t, members, 2)
	inverse, _ := tags[0].Related("posts")
	assert.Equal(t, []*session.Instance{post}, inverse)

	require.NoError(t, s.RemoveMembers(ctx, post, "tags", tags[1]))
	members, _ = post.Related("tags")
	assert.Equal(t, []*session.Instance{tags[0]}, members)

	n := statements(s)
	require.NoError(t, s.ClearMembers(ctx, post, "tags"))
	members, ok = post.Related("tags")
	require.True(t, ok)
	assert.Empty(t, members)
	inverse, ok = tags[0].Related("posts")
	require.True(t, ok)
	assert.Empty(t, inverse, "inverse side empties without a fresh query")
	assert.Equal(t, n+1, statements(s))

	fresh := f.session(t)
	p, err := fresh.Get(ctx, f.post, post.PK())
	require.NoError(t, err)
	members, err = fresh.Related(ctx, p, "tags")
	require.NoError(t, err)
	assert.Empty(t, members)

	_, err = s.Members(ctx, post, "author")
	assert.Error(t, err)
}

func TestUpdateAndDelete(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	post, err := s.Query(f.post).Filter("title", "two").Only(ctx)
	require.NoError(t, err)
	require.NoError(t, post.Set("title", "deux"))
	assert.True(t, post.IsDirty())
	victim, err := s.Query(f.post).Filter("title", "three").Only(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Delete(victim))
	assert.True(t, victim.Deleted())
	assert.ErrorIs(t, victim.Set("title", "x"), blazeorm.ErrInstanceDeleted)

	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.Commit(ctx))
	assert.False(t, post.IsDirty())
	assert.Equal(t, session.Deleted, victim.State())

	fresh := f.session(t)
	got, err := fresh.Get(ctx, f.post, post.PK())
	require.NoError(t, err)
	assert.Equal(t, "deux", got.Get("title"))
	assert.Equal(t, int64(1), got.Get("views"), "update defaults apply on update")
	_, err = fresh.Get(ctx, f.post, victim.PK())
	assert.True(t, blazeorm.IsNotFound(err))
	n, err := fresh.Query(f.post).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestValidationRunsBeforeStatements(t *testing.T) {
	f := setup(t)
	s := f.session(t)
	ctx := context.Background()

	_, err := s.New(f.author, map[string]any{"name": "a name that is much too long"})
	require.NoError(t, err)
	_, err = s.New(f.post, map[string]any{"title": ""})
	require.NoError(t, err)

	err = s.Flush(ctx)
	var agg *blazeorm.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 3, "author name too long, empty title and missing author")
	for _, e := range agg.Errors {
		assert.True(t, blazeorm.IsValidationError(e))
	}
	assert.Zero(t, statements(s))
	assert.Equal(t, 2, s.UnitOfWork().Len())
}

func TestNestedRollbackWithSavepoints(t *testing.T) {
	f := setup(t)
	s := f.session(t)
	ctx := context.Background()

	require.NoError(t, s.Begin(ctx))
	kept, err := s.New(f.author, map[string]any{"name": "kept"})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Begin(ctx))
	assert.Equal(t, 2, s.Tx().Depth())
	lost, err := s.New(f.author, map[string]any{"name": "lost"})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Rollback(ctx))
	assert.Equal(t, session.Transient, lost.State())
	require.NoError(t, s.Commit(ctx))
	assert.Equal(t, session.Persistent, kept.State())

	n, err := f.session(t).Query(f.author).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNestedRollbackKeepsOuterWork(t *testing.T) {
	f := setup(t)
	s := f.session(t)
	ctx := context.Background()

	require.NoError(t, s.Begin(ctx))
	outer, err := s.New(f.author, map[string]any{"name": "outer"})
	require.NoError(t, err)
	require.NoError(t, s.Begin(ctx))
	assert.Equal(t, session.Persistent, outer.State(), "enclosing work is flushed before the savepoint")
	inner, err := s.New(f.author, map[string]any{"name": "inner"})
	require.NoError(t, err)
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, s.Rollback(ctx))
	assert.Equal(t, session.Persistent, outer.State())
	assert.Equal(t, session.Transient, inner.State())
	require.NoError(t, s.Commit(ctx))

	authors, err := f.session(t).Query(f.author).All(ctx)
	require.NoError(t, err)
	require.Len(t, authors, 1)
	assert.Equal(t, "outer", authors[0].Get("name"))
}

func TestAddAfterDelete(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	ada, err := s.Query(f.author).Filter("name", "Ada").Only(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ada))
	assert.ErrorIs(t, s.Add(ada), blazeorm.ErrInstanceDeleted, "scheduled for deletion")
}

// noSavepoints hides the savepoint support of the wrapped adapter.
type noSavepoints struct {
	dialect.Adapter
}

func (a noSavepoints) Dialect() dialect.Dialect {
	return dialect.WithoutSavepoints(a.Adapter.Dialect())
}

func TestNestedRollbackWithoutSavepoints(t *testing.T) {
	f := setup(t)
	var logs bytes.Buffer
	s, err := session.New(noSavepoints{f.drv}, f.reg,
		session.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	err = s.Run(ctx, func(ctx context.Context, s *session.Session) error {
		if _, err := s.New(f.author, map[string]any{"name": "outer"}); err != nil {
			return err
		}
		var pending, flushed *session.Instance
		err := s.Run(ctx, func(ctx context.Context, s *session.Session) error {
			var err error
			if flushed, err = s.New(f.author, map[string]any{"name": "flushed"}); err != nil {
				return err
			}
			if err := s.Flush(ctx); err != nil {
				return err
			}
			if pending, err = s.New(f.author, map[string]any{"name": "pending"}); err != nil {
				return err
			}
			return errors.New("abort inner")
		})
		require.EqualError(t, err, "abort inner")
		assert.Equal(t, session.Transient, pending.State(), "unflushed work of the frame is discarded")
		assert.Equal(t, session.Persistent, flushed.State())
		assert.Equal(t, 1, s.Tx().Depth(), "outer transaction stays active")
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "nested rollback without savepoint support")

	authors, err := f.session(t).Query(f.author).OrderBy("id").All(ctx)
	require.NoError(t, err)
	names := make([]any, len(authors))
	for i, a := range authors {
		names[i] = a.Get("name")
	}
	assert.Equal(t, []any{"outer", "flushed"}, names, "statements executed in the frame are kept")
}

func TestRunRollsBackOnErrorAndPanic(t *testing.T) {
	f := setup(t)
	s := f.session(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Run(ctx, func(ctx context.Context, s *session.Session) error {
		_, err := s.New(f.author, map[string]any{"name": "gone"})
		require.NoError(t, err)
		require.NoError(t, s.Flush(ctx))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, session.TxIdle, s.Tx().State())
	assert.Zero(t, s.IdentityMap().Len(), "rolled back inserts leave the identity map")

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = s.Run(ctx, func(ctx context.Context, s *session.Session) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, session.TxIdle, s.Tx().State())

	n, err := s.Query(f.author).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, blazeorm.IsTransactionState(s.Commit(ctx)))
}

func TestImplicitBinding(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	unbound := session.From(f.author).Filter("name__startswith", "A")
	_, err := unbound.All(ctx)
	assert.True(t, blazeorm.IsNoActiveSession(err))
	_, err = session.FromContext(ctx)
	assert.True(t, blazeorm.IsNoActiveSession(err))

	err = s.Run(ctx, func(ctx context.Context, _ *session.Session) error {
		bound, err := session.FromContext(ctx)
		require.NoError(t, err)
		assert.Same(t, s, bound)
		authors, err := unbound.All(ctx)
		require.NoError(t, err)
		require.Len(t, authors, 1)
		assert.Equal(t, "Ada", authors[0].Get("name"))
		return nil
	})
	require.NoError(t, err)
}

func TestQuerySetErrors(t *testing.T) {
	f := setup(t)
	s := f.session(t)
	ctx := context.Background()

	qs := s.Query(f.author).Filter("nope__gt", 1).OrderBy("name")
	require.Error(t, qs.Err())
	_, err := qs.All(ctx)
	assert.True(t, blazeorm.IsUnknownField(err))
	_, err = qs.Count(ctx)
	assert.True(t, blazeorm.IsUnknownField(err))
	_, err = s.Query(f.author).OrderBy("-missing").First(ctx)
	assert.True(t, blazeorm.IsUnknownField(err))
	_, err = s.Query(f.author).Prefetch("posts__nope").All(ctx)
	assert.True(t, blazeorm.IsUnknownField(err))
	assert.Zero(t, statements(s))

	_, err = s.Query(f.author).First(ctx)
	assert.True(t, blazeorm.IsNotFound(err))
	_, err = s.Get(ctx, f.author, 42)
	assert.True(t, blazeorm.IsNotFound(err))

	st, err := query.Compile(query.Select(f.author), dialect.MustGet(dialect.Postgres))
	require.NoError(t, err)
	_, err = s.Execute(ctx, st)
	assert.True(t, blazeorm.IsDialectMismatch(err))
}

func TestOnlyAndExclude(t *testing.T) {
	f := setup(t)
	f.seed(t)
	s := f.session(t)
	ctx := context.Background()

	_, err := s.Query(f.post).Only(ctx)
	assert.True(t, blazeorm.IsNotSingular(err))
	posts, err := s.Query(f.post).Exclude("title__in", []string{"one", "three"}).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"two"}, titles(posts))
	st, err := s.Query(f.post).OrderBy("-title").Limit(2).Offset(1).SQL(ctx)
	require.NoError(t, err)
	assert.Equal(t, `SELECT "post"."id", "post"."title", "post"."views", "post"."author_id" FROM "post" ORDER BY "post"."title" DESC LIMIT 2 OFFSET 1`, st.SQL)
	posts, err = s.Query(f.post).OrderBy("-title").Limit(2).Offset(1).All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"three", "one"}, titles(posts))
}

func TestRoundTrip(t *testing.T) {
	f := setup(t)
	s := f.session(t)
	ctx := context.Background()

	var author, post *session.Instance
	err := s.Run(ctx, func(ctx context.Context, s *session.Session) error {
		var err error
		if author, err = s.New(f.author, map[string]any{"name": "Round"}); err != nil {
			return err
		}
		if post, err = s.New(f.post, map[string]any{"title": "Trip", "views": 5}); err != nil {
			return err
		}
		return post.SetRelated("author", author)
	})
	require.NoError(t, err)

	fresh := f.session(t)
	got, err := fresh.Get(ctx, f.post, post.PK())
	require.NoError(t, err)
	assert.Equal(t, post.Values(), got.Values())
	assert.Equal(t, author.PK(), got.Get("author"))
	parent, err := fresh.Related(ctx, got, "author")
	require.NoError(t, err)
	require.Len(t, parent, 1)
	assert.Equal(t, author.Values(), parent[0].Values())
}

func TestSecondLevelCache(t *testing.T) {
	f := setup(t)
	f.seed(t)
	ctx := context.Background()
	c := cache.NewMemory()

	s1 := f.session(t, session.WithCache(c))
	a, err := s1.Get(ctx, f.author, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, statements(s1))
	assert.Equal(t, 1, c.Len())

	s2 := f.session(t, session.WithCache(c))
	b, err := s2.Get(ctx, f.author, int64(1))
	require.NoError(t, err)
	assert.Zero(t, statements(s2), "served from the cache")
	assert.Equal(t, a.Values(), b.Values())
	assert.NotSame(t, a, b)

	require.NoError(t, b.Set("name", "Ada L."))
	require.NoError(t, s2.Flush(ctx))
	assert.Zero(t, c.Len(), "updates invalidate the cached row")

	s3 := f.session(t, session.WithCache(c))
	got, err := s3.Get(ctx, f.author, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", got.Get("name"))
}

func TestHooks(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	var events []string
	hooks := session.HooksFunc(func(_ context.Context, ev session.Event, _ *session.Session, inst *session.Instance) error {
		events = append(events, ev.String()+":"+inst.Entity().Name)
		if ev == session.PreSave && inst.Get("name") == "forbidden" {
			return errors.New("forbidden name")
		}
		return nil
	})
	s := f.session(t, session.WithHooks(hooks))

	err := s.Run(ctx, func(ctx context.Context, s *session.Session) error {
		_, err := s.New(f.author, map[string]any{"name": "fine"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"pre_validate:Author", "post_validate:Author", "pre_save:Author", "post_save:Author", "post_commit:Author",
	}, events)

	err = s.Run(ctx, func(ctx context.Context, s *session.Session) error {
		_, err := s.New(f.author, map[string]any{"name": "forbidden"})
		return err
	})
	require.Error(t, err)
	assert.True(t, blazeorm.IsMutationError(err))
	assert.ErrorContains(t, err, "forbidden name")
}

func TestNPlusOneWarning(t *testing.T) {
	f := setup(t)
	f.seed(t)
	var logs bytes.Buffer
	s := f.session(t,
		session.WithNPlusOneThreshold(2),
		session.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	ctx := context.Background()

	authors, err := s.Query(f.author).All(ctx)
	require.NoError(t, err)
	for _, a := range authors {
		_, err := s.Related(ctx, a, "posts")
		require.NoError(t, err)
	}
	assert.Contains(t, logs.String(), "possible N+1 query detected")
	assert.Contains(t, logs.String(), "session_id="+s.ID())
}

func TestSessionVariables(t *testing.T) {
	f := setup(t)
	s := f.session(t)

	ctx := sql.WithVar(context.Background(), "statement_timeout", "5s")
	_, err := s.Query(f.author).All(ctx)
	assert.ErrorContains(t, err, "not supported by sqlite", "variables reach the adapter")
}

func TestClose(t *testing.T) {
	f := setup(t)
	s := f.session(t)
	ctx := context.Background()

	require.NoError(t, s.Begin(ctx))
	_, err := s.New(f.author, map[string]any{"name": "x"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Begin(ctx), blazeorm.ErrSessionClosed)
	_, err = s.Query(f.author).All(ctx)
	assert.ErrorIs(t, err, blazeorm.ErrSessionClosed)
	assert.False(t, f.drv.InTx())
}
