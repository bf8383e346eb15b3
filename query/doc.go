// Package query builds predicate trees and query specifications over
// registered entities and compiles them into dialect-specific statements.
//
// Field references are validated when they are created, so a misspelled
// field fails before any SQL is rendered:
//
//	age, err := query.Field(author, "age")       // *blazeorm.UnknownFieldError on typos
//	p := query.And(age.GTE(18), query.Not(name.IsNull()))
//
// Specifications are immutable values. Every chaining call returns a new
// Spec and leaves its receiver untouched:
//
//	base := query.Select(post).Where(authorID.EQ(1))
//	recent := base.OrderBy(query.Desc(createdAt)).Limit(5)
//	stmt, err := query.Compile(recent, dialect.MustGet(dialect.Postgres))
//	// SELECT ... FROM "post" WHERE "post"."author_id" = %s ORDER BY "post"."created_at" DESC LIMIT 5
//
// Compile is deterministic: the same Spec and Dialect always produce the
// same SQL and argument order.
package query
