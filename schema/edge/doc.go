// Package edge provides fluent builders for declaring relations between entities.
//
// Relations are declared once, on the side that owns the link, and the
// registry derives the inverse accessor on the target:
//
//	// Post owns author_id; Author gets the reverse collection "posts".
//	edge.ForeignKey("author", "Author").Ref("posts")
//
//	// User owns profile_id (unique); Profile gets the reverse accessor "user".
//	edge.OneToOne("profile", "Profile").Ref("user")
//
//	// Author and Book are linked through author_book; Book gets "authors".
//	edge.ManyToMany("books", "Book").Ref("authors")
//
// Without Ref the inverse name is the snake_case owner name followed by
// "_set", e.g. "author_set".
package edge
