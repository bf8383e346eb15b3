package query

import (
	"fmt"

	"github.com/KipianiNikoloz/blazeorm/dialect"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// Assignment is one column value of an INSERT or UPDATE.
type Assignment struct {
	Field *field.Descriptor
	Value any
}

// CompileInsert renders an INSERT of one row. When the dialect supports it
// and the key is generated, the statement returns the key as a row.
func CompileInsert(e *schema.Entity, values []Assignment, d dialect.Dialect) (*Statement, error) {
	b := newBuilder(d, e)
	b.write("INSERT INTO ", d.FormatTable(e.Table))
	switch {
	case len(values) > 0:
		b.write(" (")
		for i, a := range values {
			if i > 0 {
				b.write(", ")
			}
			b.ident(a.Field.Column)
		}
		b.write(") VALUES (")
		for i, a := range values {
			if i > 0 {
				b.write(", ")
			}
			b.arg(a.Field, a.Value)
		}
		b.write(")")
	case d.Name() == dialect.MySQL:
		b.write(" () VALUES ()")
	default:
		b.write(" DEFAULT VALUES")
	}
	returning := e.PK().Generated() && d.Capabilities().Returning
	if returning {
		b.write(" RETURNING ").ident(e.PK().Column)
	}
	st := b.statement()
	st.Returning = returning
	return st, nil
}

// CompileUpdate renders an UPDATE of the given columns of the row with key pk.
func CompileUpdate(e *schema.Entity, values []Assignment, pk any, d dialect.Dialect) (*Statement, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("query: update of %s without columns", e.Name)
	}
	b := newBuilder(d, e)
	b.write("UPDATE ", d.FormatTable(e.Table), " SET ")
	for i, a := range values {
		if i > 0 {
			b.write(", ")
		}
		b.ident(a.Field.Column).write(" = ").arg(a.Field, a.Value)
	}
	b.write(" WHERE ").ident(e.PK().Column).write(" = ").arg(e.PK(), pk)
	return b.statement(), nil
}

// CompileDelete renders a DELETE of the row with key pk.
func CompileDelete(e *schema.Entity, pk any, d dialect.Dialect) (*Statement, error) {
	b := newBuilder(d, e)
	b.write("DELETE FROM ", d.FormatTable(e.Table), " WHERE ").ident(e.PK().Column).write(" = ").arg(e.PK(), pk)
	return b.statement(), nil
}

func throughOf(rel *schema.Relation) (*edge.Through, error) {
	if rel.Kind != edge.KindManyToMany || rel.Through == nil {
		return nil, fmt.Errorf("query: %s is not a many-to-many relation", rel)
	}
	return rel.Through, nil
}

// CompileLink renders the insert of one link row of a many-to-many relation.
func CompileLink(rel *schema.Relation, owner, target any, d dialect.Dialect) (*Statement, error) {
	th, err := throughOf(rel)
	if err != nil {
		return nil, err
	}
	b := newBuilder(d, nil)
	b.write("INSERT INTO ", d.FormatTable(th.Table), " (").
		ident(th.OwnerColumn).write(", ").ident(th.TargetColumn).write(") VALUES (").
		arg(rel.Owner.PK(), owner).write(", ").arg(rel.Target.PK(), target).write(")")
	return b.statement(), nil
}

// CompileUnlink renders the removal of the links between owner and targets.
// Without targets every link of owner is removed.
func CompileUnlink(rel *schema.Relation, owner any, targets []any, d dialect.Dialect) (*Statement, error) {
	th, err := throughOf(rel)
	if err != nil {
		return nil, err
	}
	b := newBuilder(d, nil)
	b.write("DELETE FROM ", d.FormatTable(th.Table), " WHERE ").
		ident(th.OwnerColumn).write(" = ").arg(rel.Owner.PK(), owner)
	if len(targets) > 0 {
		b.write(" AND ").ident(th.TargetColumn).write(" IN ").argList(rel.Target.PK(), targets)
	}
	return b.statement(), nil
}

// CompileLinked renders the select of the target keys linked to owner.
func CompileLinked(rel *schema.Relation, owner any, d dialect.Dialect) (*Statement, error) {
	th, err := throughOf(rel)
	if err != nil {
		return nil, err
	}
	b := newBuilder(d, nil)
	b.write("SELECT ").ident(th.TargetColumn).write(" FROM ", d.FormatTable(th.Table), " WHERE ").
		ident(th.OwnerColumn).write(" = ").arg(rel.Owner.PK(), owner)
	return b.statement(), nil
}
