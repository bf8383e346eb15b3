package query_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/dialect"
	"github.com/KipianiNikoloz/blazeorm/internal/redact"
	"github.com/KipianiNikoloz/blazeorm/query"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

var dialects = []string{dialect.SQLite, dialect.Postgres, dialect.MySQL}

func registry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Build(
		schema.Define("Publisher").Fields(field.String("name")),
		schema.Define("Author").Fields(
			field.String("name"),
			field.String("password").Sensitive(),
			field.Int("age").Nillable(),
		).Edges(
			edge.ForeignKey("publisher", "Publisher").Nillable().Ref("authors"),
			edge.ManyToMany("books", "Book").Ref("authors"),
		),
		schema.Define("Book").Fields(field.String("title")),
		schema.Define("Profile").Fields(field.String("bio")).Edges(
			edge.OneToOne("author", "Author").Ref("profile"),
		),
		schema.Define("Post").Fields(
			field.String("title"),
			field.Time("created_at"),
		).Edges(
			edge.ForeignKey("author", "Author").Ref("posts"),
		),
	)
	require.NoError(t, err)
	return reg
}

func TestField(t *testing.T) {
	reg := registry(t)
	post := reg.MustEntity("Post")

	ref, err := query.Field(post, "title")
	require.NoError(t, err)
	assert.Equal(t, "title", ref.Name())
	assert.Same(t, post, ref.Entity())
	assert.True(t, ref.Valid())

	ref, err = query.Field(post, "author")
	require.NoError(t, err)
	assert.Equal(t, "author_id", ref.Name())

	_, err = query.Field(post, "titel")
	var ufe *blazeorm.UnknownFieldError
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, "Post", ufe.Entity)
	assert.Equal(t, "titel", ufe.Field)

	assert.Panics(t, func() { query.MustField(post, "nope") })
	assert.False(t, query.Ref{}.Valid())
}

func TestCompileScenario(t *testing.T) {
	reg := registry(t)
	post := reg.MustEntity("Post")
	authorID := query.MustField(post, "author_id")
	createdAt := query.MustField(post, "created_at")

	spec := query.Select(post).
		Where(authorID.EQ(1)).
		OrderBy(query.Desc(createdAt)).
		Limit(5)
	st, err := query.Compile(spec, dialect.MustGet(dialect.Postgres))
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "post"."id", "post"."title", "post"."created_at", "post"."author_id" FROM "post" WHERE "post"."author_id" = %s ORDER BY "post"."created_at" DESC LIMIT 5`,
		st.SQL)
	assert.Equal(t, []any{int64(1)}, st.Args)
	assert.Equal(t, dialect.Postgres, st.Dialect)
	assert.NotContains(t, st.SQL, "OFFSET")
}

func TestCompileDeterministic(t *testing.T) {
	reg := registry(t)
	author := reg.MustEntity("Author")
	name, age := query.MustField(author, "name"), query.MustField(author, "age")
	spec := query.Select(author).
		Where(query.Or(
			query.And(name.EQ("a"), age.GT(3)),
			query.Not(age.In(1, 2, 3)),
			name.ContainsFold("Ö"),
		)).
		OrderBy(query.Asc(name)).
		Offset(10).
		Join("publisher")
	for _, name := range dialects {
		t.Run(name, func(t *testing.T) {
			d := dialect.MustGet(name)
			first, err := query.Compile(spec, d)
			require.NoError(t, err)
			for i := 0; i < 5; i++ {
				again, err := query.Compile(spec, d)
				require.NoError(t, err)
				assert.Equal(t, first.SQL, again.SQL)
				assert.Equal(t, first.Args, again.Args)
			}
			assert.Equal(t, len(first.Args), dialect.CountPlaceholders(first.SQL, d.ParamStyle()))
			assert.Equal(t, []any{"a", int64(3), int64(1), int64(2), int64(3), "%ö%"}, first.Args)
		})
	}
}

func TestCompilePredicates(t *testing.T) {
	reg := registry(t)
	author := reg.MustEntity("Author")
	name, age := query.MustField(author, "name"), query.MustField(author, "age")
	d := dialect.MustGet(dialect.SQLite)

	tests := []struct {
		name  string
		pred  query.Predicate
		where string
		args  []any
	}{
		{"eq", name.EQ("x"), `"author"."name" = ?`, []any{"x"}},
		{"eq_nil", name.EQ(nil), `"author"."name" IS NULL`, nil},
		{"neq_nil", name.NEQ(nil), `"author"."name" IS NOT NULL`, nil},
		{"neq", age.NEQ(3), `"author"."age" <> ?`, []any{int64(3)}},
		{"range", query.And(age.GTE(1), age.LT(9)), `("author"."age" >= ? AND "author"."age" < ?)`, []any{int64(1), int64(9)}},
		{"lte_gt", query.Or(age.LTE(1), age.GT(9)), `("author"."age" <= ? OR "author"."age" > ?)`, []any{int64(1), int64(9)}},
		{"in", age.In(1, 2), `"author"."age" IN (?, ?)`, []any{int64(1), int64(2)}},
		{"in_empty", age.In(), `1 = 0`, nil},
		{"not_in_empty", age.NotIn(), `1 = 1`, nil},
		{"not_in", age.NotIn(5), `"author"."age" NOT IN (?)`, []any{int64(5)}},
		{"not_leaf", query.Not(age.IsNull()), `NOT ("author"."age" IS NULL)`, nil},
		{"not_junction", query.Not(query.And(age.NotNull(), name.EQ("a"))), `NOT ("author"."age" IS NOT NULL AND "author"."name" = ?)`, []any{"a"}},
		{"contains", name.Contains("oh"), `"author"."name" LIKE ?`, []any{"%oh%"}},
		{"prefix_suffix", query.And(name.HasPrefix("J"), name.HasSuffix("n")), `("author"."name" LIKE ? AND "author"."name" LIKE ?)`, []any{"J%", "%n"}},
		{"equal_fold", name.EqualFold("JOHN"), `LOWER("author"."name") = ?`, []any{"john"}},
		{"nested", query.Or(query.And(name.EQ("a"), query.Or(age.EQ(1), age.EQ(2))), name.EQ("b")),
			`(("author"."name" = ? AND ("author"."age" = ? OR "author"."age" = ?)) OR "author"."name" = ?)`,
			[]any{"a", int64(1), int64(2), "b"}},
		{"empty_and", query.And(), `1 = 1`, nil},
		{"empty_or", query.Or(), `1 = 0`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := query.Compile(query.Select(author).Where(tt.pred), d)
			require.NoError(t, err)
			_, where, ok := strings.Cut(st.SQL, " WHERE ")
			require.True(t, ok, st.SQL)
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, st.Args)
			assert.Equal(t, len(st.Args), dialect.CountPlaceholders(st.SQL, d.ParamStyle()))
		})
	}
}

func TestCompileWhereChaining(t *testing.T) {
	reg := registry(t)
	author := reg.MustEntity("Author")
	name, age := query.MustField(author, "name"), query.MustField(author, "age")
	st, err := query.Compile(query.Select(author).Where(name.EQ("a")).Where(age.GT(2)), dialect.MustGet(dialect.MySQL))
	require.NoError(t, err)
	assert.Contains(t, st.SQL, "WHERE (`author`.`name` = %s AND `author`.`age` > %s)")
}

func TestCompileForeignEntityRef(t *testing.T) {
	reg := registry(t)
	author, post := reg.MustEntity("Author"), reg.MustEntity("Post")
	title := query.MustField(post, "title")

	_, err := query.Compile(query.Select(author).Where(title.EQ("x")), dialect.MustGet(dialect.SQLite))
	assert.True(t, blazeorm.IsUnknownField(err))
	_, err = query.Compile(query.Select(author).OrderBy(query.Asc(title)), dialect.MustGet(dialect.SQLite))
	assert.True(t, blazeorm.IsUnknownField(err))
}

func TestCompileSensitive(t *testing.T) {
	reg := registry(t)
	author := reg.MustEntity("Author")
	pw := query.MustField(author, "password")
	st, err := query.Compile(query.Select(author).Where(pw.EQ("hunter2")), dialect.MustGet(dialect.SQLite))
	require.NoError(t, err)
	require.Len(t, st.Args, 1)
	assert.Equal(t, redact.Mark("hunter2"), st.Args[0])
	assert.Equal(t, "hunter2", redact.Unwrap(st.Args[0]))
}

func TestCompileJoin(t *testing.T) {
	reg := registry(t)
	post := reg.MustEntity("Post")

	t.Run("nested", func(t *testing.T) {
		st, err := query.Compile(query.Select(post).Join("author__publisher"), dialect.MustGet(dialect.SQLite))
		require.NoError(t, err)
		assert.Equal(t,
			`SELECT "post"."id", "post"."title", "post"."created_at", "post"."author_id", `+
				`"author"."id" AS "author__id", "author"."name" AS "author__name", "author"."password" AS "author__password", `+
				`"author"."age" AS "author__age", "author"."publisher_id" AS "author__publisher_id", `+
				`"author__publisher"."id" AS "author__publisher__id", "author__publisher"."name" AS "author__publisher__name" `+
				`FROM "post" LEFT JOIN "author" ON "post"."author_id" = "author"."id" `+
				`LEFT JOIN "publisher" AS "author__publisher" ON "author"."publisher_id" = "author__publisher"."id"`,
			st.SQL)
		require.Len(t, st.Joins, 2)
		assert.Equal(t, "author", st.Joins[0].Path)
		assert.Equal(t, "", st.Joins[0].Parent)
		assert.Equal(t, "author__publisher", st.Joins[1].Path)
		assert.Equal(t, "author", st.Joins[1].Parent)
		assert.Equal(t, "author__publisher__name", st.Joins[1].ColumnAlias("name"))
	})

	t.Run("reverse_one", func(t *testing.T) {
		author := reg.MustEntity("Author")
		st, err := query.Compile(query.Select(author).Join("profile"), dialect.MustGet(dialect.Postgres))
		require.NoError(t, err)
		assert.Contains(t, st.SQL, `LEFT JOIN "profile" ON "profile"."author_id" = "author"."id"`)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := query.Compile(query.Select(post).Join("editor"), dialect.MustGet(dialect.SQLite))
		assert.True(t, blazeorm.IsUnknownField(err))
		_, err = query.Compile(query.Select(post).Batch("author__agent"), dialect.MustGet(dialect.SQLite))
		assert.True(t, blazeorm.IsUnknownField(err))
	})
}

func TestCompileJoinUnsupported(t *testing.T) {
	reg := registry(t)
	author, post := reg.MustEntity("Author"), reg.MustEntity("Post")
	tests := []struct {
		entity *schema.Entity
		path   string
	}{
		{author, "books"},
		{author, "posts"},
		{post, "author__books"},
		{reg.MustEntity("Publisher"), "authors"},
	}
	for _, name := range dialects {
		for _, tt := range tests {
			t.Run(name+"/"+tt.path, func(t *testing.T) {
				_, err := query.Compile(query.Select(tt.entity).Join(tt.path), dialect.MustGet(name))
				var ue *blazeorm.UnsupportedEagerStrategyError
				require.ErrorAs(t, err, &ue)
				assert.Equal(t, tt.path, ue.Path)
			})
		}
	}
	// Batch loading accepts the same paths.
	_, err := query.Compile(query.Select(author).Batch("books", "posts"), dialect.MustGet(dialect.SQLite))
	assert.NoError(t, err)
}

func TestSpecImmutable(t *testing.T) {
	reg := registry(t)
	author := reg.MustEntity("Author")
	name := query.MustField(author, "name")
	d := dialect.MustGet(dialect.SQLite)

	base := query.Select(author).Where(name.EQ("a"))
	before, err := query.Compile(base, d)
	require.NoError(t, err)

	a := base.Where(name.EQ("b")).OrderBy(query.Desc(name)).Limit(1).Join("publisher")
	b := base.Where(name.EQ("c")).Batch("books")
	_, err = query.Compile(a, d)
	require.NoError(t, err)
	stB, err := query.Compile(b, d)
	require.NoError(t, err)
	after, err := query.Compile(base, d)
	require.NoError(t, err)

	assert.Equal(t, before.SQL, after.SQL)
	assert.Equal(t, []any{"a", "c"}, stB.Args)
	assert.Empty(t, base.Order())
	assert.Empty(t, base.Joins())
	assert.Equal(t, []string{"books"}, b.Batches())
	_, ok := base.LimitValue()
	assert.False(t, ok)
	n, ok := a.LimitValue()
	assert.True(t, ok)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"publisher"}, a.Join("publisher").Joins())
}

func TestCompileCount(t *testing.T) {
	reg := registry(t)
	author := reg.MustEntity("Author")
	name := query.MustField(author, "name")
	d := dialect.MustGet(dialect.SQLite)

	st, err := query.CompileCount(query.Select(author).Where(name.EQ("a")), d)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "author" WHERE "author"."name" = ?`, st.SQL)

	st, err = query.CompileCount(query.Select(author).Offset(2), d)
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM (SELECT "author"."id" FROM "author" LIMIT -1 OFFSET 2) AS "paged"`, st.SQL)
}

func TestCompileWrites(t *testing.T) {
	reg := registry(t)
	author, book := reg.MustEntity("Author"), reg.MustEntity("Book")
	nameF, _ := author.Field("name")
	pwF, _ := author.Field("password")
	books, _ := author.Relation("books")
	pg, my, lite := dialect.MustGet(dialect.Postgres), dialect.MustGet(dialect.MySQL), dialect.MustGet(dialect.SQLite)

	t.Run("insert", func(t *testing.T) {
		values := []query.Assignment{{Field: nameF, Value: "a"}, {Field: pwF, Value: "pw"}}
		st, err := query.CompileInsert(author, values, pg)
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "author" ("name", "password") VALUES (%s, %s) RETURNING "id"`, st.SQL)
		assert.True(t, st.Returning)
		assert.Equal(t, []any{"a", redact.Mark("pw")}, st.Args)

		st, err = query.CompileInsert(author, values, lite)
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "author" ("name", "password") VALUES (?, ?)`, st.SQL)
		assert.False(t, st.Returning)

		st, err = query.CompileInsert(book, nil, lite)
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "book" DEFAULT VALUES`, st.SQL)
		st, err = query.CompileInsert(book, nil, my)
		require.NoError(t, err)
		assert.Equal(t, "INSERT INTO `book` () VALUES ()", st.SQL)
	})

	t.Run("update_delete", func(t *testing.T) {
		st, err := query.CompileUpdate(author, []query.Assignment{{Field: nameF, Value: "b"}}, int64(3), my)
		require.NoError(t, err)
		assert.Equal(t, "UPDATE `author` SET `name` = %s WHERE `id` = %s", st.SQL)
		assert.Equal(t, []any{"b", int64(3)}, st.Args)

		_, err = query.CompileUpdate(author, nil, int64(3), my)
		assert.Error(t, err)

		st, err = query.CompileDelete(author, int64(3), lite)
		require.NoError(t, err)
		assert.Equal(t, `DELETE FROM "author" WHERE "id" = ?`, st.SQL)
	})

	t.Run("links", func(t *testing.T) {
		st, err := query.CompileLink(books, int64(1), int64(2), lite)
		require.NoError(t, err)
		assert.Equal(t, `INSERT INTO "author_book" ("author_id", "book_id") VALUES (?, ?)`, st.SQL)

		st, err = query.CompileUnlink(books, int64(1), []any{int64(2), int64(3)}, lite)
		require.NoError(t, err)
		assert.Equal(t, `DELETE FROM "author_book" WHERE "author_id" = ? AND "book_id" IN (?, ?)`, st.SQL)

		st, err = query.CompileUnlink(books, int64(1), nil, lite)
		require.NoError(t, err)
		assert.Equal(t, `DELETE FROM "author_book" WHERE "author_id" = ?`, st.SQL)

		st, err = query.CompileLinked(books, int64(1), lite)
		require.NoError(t, err)
		assert.Equal(t, `SELECT "book_id" FROM "author_book" WHERE "author_id" = ?`, st.SQL)

		posts, _ := author.Relation("posts")
		_, err = query.CompileLink(posts, int64(1), int64(2), lite)
		assert.Error(t, err)
	})

	t.Run("through", func(t *testing.T) {
		st, err := query.CompileThrough(books, []any{int64(1), int64(2)}, lite)
		require.NoError(t, err)
		assert.Equal(t,
			`SELECT "book"."id", "book"."title", "author_book"."author_id" AS "__link" FROM "book" `+
				`INNER JOIN "author_book" ON "author_book"."book_id" = "book"."id" WHERE "author_book"."author_id" IN (?, ?)`,
			st.SQL)

		inv, _ := book.Relation("authors")
		st, err = query.CompileThrough(inv, []any{int64(9)}, pg)
		require.NoError(t, err)
		assert.Contains(t, st.SQL, `"author_book"."book_id" AS "__link" FROM "author" INNER JOIN "author_book" ON "author_book"."author_id" = "author"."id"`)
	})
}

func TestLookup(t *testing.T) {
	reg := registry(t)
	post := reg.MustEntity("Post")
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := dialect.MustGet(dialect.SQLite)

	tests := []struct {
		expr  string
		value any
		where string
		args  []any
	}{
		{"author", 1, `"post"."author_id" = ?`, []any{int64(1)}},
		{"author_id__exact", 1, `"post"."author_id" = ?`, []any{int64(1)}},
		{"created_at__gte", ts, `"post"."created_at" >= ?`, []any{ts}},
		{"id__in", []int{1, 2}, `"post"."id" IN (?, ?)`, []any{int64(1), int64(2)}},
		{"title__isnull", true, `"post"."title" IS NULL`, nil},
		{"title__isnull", false, `"post"."title" IS NOT NULL`, nil},
		{"title__icontains", "Go", `LOWER("post"."title") LIKE ?`, []any{"%go%"}},
		{"title__iexact", "Go", `LOWER("post"."title") = ?`, []any{"go"}},
		{"title__startswith", "Go", `"post"."title" LIKE ?`, []any{"Go%"}},
		{"title__neq", "x", `"post"."title" <> ?`, []any{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := query.Lookup(post, tt.expr, tt.value)
			require.NoError(t, err)
			st, err := query.Compile(query.Select(post).Where(p), d)
			require.NoError(t, err)
			_, where, _ := strings.Cut(st.SQL, " WHERE ")
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, st.Args)
		})
	}

	_, err := query.Lookup(post, "titel__gte", 1)
	assert.True(t, blazeorm.IsUnknownField(err))
	_, err = query.Lookup(post, "title__isnull", "yes")
	assert.Error(t, err)
	_, err = query.Lookup(post, "title__contains", 3)
	assert.Error(t, err)
}

func TestTypedFields(t *testing.T) {
	reg := registry(t)
	author := reg.MustEntity("Author")
	age := query.Typed[int64](query.MustField(author, "age"))
	name := query.Text(query.MustField(author, "name"))

	st, err := query.Compile(query.Select(author).
		Where(age.In(1, 2), name.ContainsFold("A"), name.NEQ("b")).
		OrderBy(age.Desc()), dialect.MustGet(dialect.SQLite))
	require.NoError(t, err)
	assert.Contains(t, st.SQL, `WHERE ("author"."age" IN (?, ?) AND LOWER("author"."name") LIKE ? AND "author"."name" <> ?) ORDER BY "author"."age" DESC`)
	assert.Equal(t, []any{int64(1), int64(2), "%a%", "b"}, st.Args)
	assert.Equal(t, "age", age.Name())
}

func TestPredicateString(t *testing.T) {
	reg := registry(t)
	author := reg.MustEntity("Author")
	name, age := query.MustField(author, "name"), query.MustField(author, "age")
	p := query.Or(query.And(name.EQ("a"), age.In(1)), query.Not(age.IsNull()), query.Not(query.Or(name.EqualFold("X"))))
	assert.Equal(t, "((name = a AND age IN [1]) OR NOT (age IS NULL) OR NOT (lower(name) = x))", p.String())
}
