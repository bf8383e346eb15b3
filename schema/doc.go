// Package schema holds the entity registry shared by every session.
//
// Entities are declared with builders from the field and edge packages and
// registered once at startup:
//
//	reg := schema.NewRegistry()
//	err := reg.Register(
//	    schema.Define("Author").Fields(
//	        field.String("name").NotEmpty().MaxLen(100),
//	    ).Edges(
//	        edge.ManyToMany("books", "Book").Ref("authors"),
//	    ),
//	    schema.Define("Book").Fields(
//	        field.String("title"),
//	    ).Mixin(mixin.Time{}),
//	)
//	if err == nil {
//	    err = reg.Freeze()
//	}
//
// Freeze resolves relation targets, adds foreign key fields, derives the
// inverse relations and fills in default table and link table names. A frozen
// registry is read-only and safe to share across goroutines.
package schema
