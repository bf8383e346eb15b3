package query

import (
	"strings"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/dialect"
	"github.com/KipianiNikoloz/blazeorm/internal/redact"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// LinkColumn is the alias of the owner key in many-to-many batch statements.
const LinkColumn = "__link"

// Statement is compiled SQL with its ordered arguments. Statements are
// read-only and belong to the dialect they were compiled with.
type Statement struct {
	SQL     string
	Args    []any
	Dialect string
	// Joins lists the joined relation paths, parents first. Joined columns
	// are aliased "<path>__<column>".
	Joins []JoinedPath
	// Returning is set for inserts that return the generated key as a row.
	Returning bool
}

// JoinedPath is one relation joined into a SELECT.
type JoinedPath struct {
	Path     string
	Parent   string // "" for the selected entity
	Relation *schema.Relation
}

// ColumnAlias returns the result column of a joined field.
func (j JoinedPath) ColumnAlias(column string) string {
	return j.Path + schema.PathSeparator + column
}

// builder accumulates SQL and arguments.
type builder struct {
	d      dialect.Dialect
	entity *schema.Entity
	alias  string
	sb     strings.Builder
	args   []any
}

func newBuilder(d dialect.Dialect, e *schema.Entity) *builder {
	b := &builder{d: d, entity: e}
	if e != nil {
		b.alias = tableAlias(e.Table)
	}
	return b
}

func (b *builder) write(ss ...string) *builder {
	for _, s := range ss {
		b.sb.WriteString(s)
	}
	return b
}

func (b *builder) ident(s string) *builder {
	return b.write(b.d.QuoteIdent(s))
}

func (b *builder) column(alias, column string) *builder {
	return b.ident(alias).write(".").ident(column)
}

// table writes the table of e, aliased when the quoted name differs from
// the alias columns are qualified with.
func (b *builder) table(table, alias string) *builder {
	b.write(b.d.FormatTable(table))
	if b.d.FormatTable(table) != b.d.QuoteIdent(alias) {
		b.write(" AS ").ident(alias)
	}
	return b
}

// arg appends v and writes its placeholder. Values of sensitive fields are
// wrapped so they never reach logs in clear text.
func (b *builder) arg(fd *field.Descriptor, v any) *builder {
	if fd != nil && fd.Sensitive && v != nil {
		v = redact.Mark(v)
	}
	b.args = append(b.args, v)
	return b.write(b.d.Placeholder(len(b.args)))
}

func (b *builder) argList(fd *field.Descriptor, vs []any) *builder {
	b.write("(")
	for i, v := range vs {
		if i > 0 {
			b.write(", ")
		}
		b.arg(fd, v)
	}
	return b.write(")")
}

func (b *builder) statement() *Statement {
	return &Statement{SQL: b.sb.String(), Args: b.args, Dialect: b.d.Name()}
}

// tableAlias strips a schema qualifier from a table name.
func tableAlias(table string) string {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[i+1:]
	}
	return table
}

func (c *Comparison) render(b *builder) error {
	if c.ref.entity != b.entity {
		return blazeorm.NewUnknownFieldError(b.entity.Name, c.ref.entity.Name+"."+c.ref.Name())
	}
	fd := c.ref.field
	switch c.op {
	case OpIn, OpNotIn:
		if len(c.values) == 0 {
			if c.op == OpIn {
				b.write("1 = 0")
			} else {
				b.write("1 = 1")
			}
			return nil
		}
		b.column(b.alias, fd.Column).write(" ", c.op.String(), " ").argList(fd, c.values)
	case OpIsNull, OpNotNull:
		b.column(b.alias, fd.Column).write(" ", c.op.String())
	case OpEqualFold, OpLikeFold:
		b.write("LOWER(").column(b.alias, fd.Column).write(") ", c.op.String(), " ").arg(fd, c.value)
	default:
		b.column(b.alias, fd.Column).write(" ", c.op.String(), " ").arg(fd, c.value)
	}
	return nil
}

func (j *Junction) render(b *builder) error {
	if len(j.children) == 0 {
		if j.kind == AndKind {
			b.write("1 = 1")
		} else {
			b.write("1 = 0")
		}
		return nil
	}
	b.write("(")
	for i, c := range j.children {
		if i > 0 {
			b.write(" ", j.kind.String(), " ")
		}
		if err := c.render(b); err != nil {
			return err
		}
	}
	b.write(")")
	return nil
}

func (n *Negation) render(b *builder) error {
	if _, ok := n.child.(*Junction); ok {
		b.write("NOT ")
		return n.child.render(b)
	}
	b.write("NOT (")
	if err := n.child.render(b); err != nil {
		return err
	}
	b.write(")")
	return nil
}

// Compile renders s as a SELECT in dialect d.
func Compile(s Spec, d dialect.Dialect) (*Statement, error) {
	if s.entity == nil {
		return nil, blazeorm.NewUnknownFieldError("", "entity")
	}
	joins, err := resolveJoins(s.entity, s.joins)
	if err != nil {
		return nil, err
	}
	for _, p := range s.batches {
		if _, err := ResolvePath(s.entity, p); err != nil {
			return nil, err
		}
	}
	b := newBuilder(d, s.entity)
	b.write("SELECT ")
	for i, f := range s.entity.Fields() {
		if i > 0 {
			b.write(", ")
		}
		b.column(b.alias, f.Column)
	}
	for _, j := range joins {
		for _, f := range j.Relation.Target.Fields() {
			b.write(", ").column(j.Path, f.Column).write(" AS ").ident(j.ColumnAlias(f.Column))
		}
	}
	b.write(" FROM ").table(s.entity.Table, b.alias)
	for _, j := range joins {
		parent := b.alias
		if j.Parent != "" {
			parent = j.Parent
		}
		rel := j.Relation
		b.write(" LEFT JOIN ").table(rel.Target.Table, j.Path).write(" ON ")
		if rel.Kind.Local() {
			b.column(parent, rel.Column).write(" = ").column(j.Path, rel.Target.PK().Column)
		} else {
			b.column(j.Path, rel.Column).write(" = ").column(parent, rel.Owner.PK().Column)
		}
	}
	if err := b.where(s.Predicate()); err != nil {
		return nil, err
	}
	if err := b.orderBy(s.order); err != nil {
		return nil, err
	}
	b.limitOffset(s)
	st := b.statement()
	st.Joins = joins
	return st, nil
}

// CompileCount renders a COUNT(*) of the rows s selects.
func CompileCount(s Spec, d dialect.Dialect) (*Statement, error) {
	if s.entity == nil {
		return nil, blazeorm.NewUnknownFieldError("", "entity")
	}
	b := newBuilder(d, s.entity)
	paged := s.limit != nil || s.offset != nil
	if paged {
		b.write("SELECT COUNT(*) FROM (SELECT ").column(b.alias, s.entity.PK().Column).write(" FROM ")
	} else {
		b.write("SELECT COUNT(*) FROM ")
	}
	b.table(s.entity.Table, b.alias)
	if err := b.where(s.Predicate()); err != nil {
		return nil, err
	}
	if paged {
		if err := b.orderBy(s.order); err != nil {
			return nil, err
		}
		b.limitOffset(s)
		b.write(") AS ").ident("paged")
	}
	return b.statement(), nil
}

func (b *builder) where(p Predicate) error {
	if p == nil {
		return nil
	}
	b.write(" WHERE ")
	return p.render(b)
}

func (b *builder) orderBy(keys []OrderKey) error {
	for i, k := range keys {
		if k.Ref.entity != b.entity {
			return blazeorm.NewUnknownFieldError(b.entity.Name, k.Ref.Name())
		}
		if i == 0 {
			b.write(" ORDER BY ")
		} else {
			b.write(", ")
		}
		b.column(b.alias, k.Ref.field.Column)
		if k.Desc {
			b.write(" DESC")
		} else {
			b.write(" ASC")
		}
	}
	return nil
}

func (b *builder) limitOffset(s Spec) {
	if lo := b.d.LimitOffset(s.limit, s.offset); lo != "" {
		b.write(" ", lo)
	}
}

// resolveJoins expands the requested paths into joined relations, adding
// every prefix of a nested path before the path itself.
func resolveJoins(e *schema.Entity, paths []string) ([]JoinedPath, error) {
	var (
		joins []JoinedPath
		seen  = make(map[string]bool)
	)
	for _, p := range paths {
		rels, err := ResolvePath(e, p)
		if err != nil {
			return nil, err
		}
		segs := strings.Split(p, schema.PathSeparator)
		for i, rel := range rels {
			sub := strings.Join(segs[:i+1], schema.PathSeparator)
			if !joinable(rel.Kind) {
				return nil, blazeorm.NewUnsupportedEagerStrategyError(p, "join",
					rel.String()+" is a "+rel.Kind.String()+" relation; load it by batch")
			}
			if seen[sub] {
				continue
			}
			seen[sub] = true
			joins = append(joins, JoinedPath{
				Path:     sub,
				Parent:   strings.Join(segs[:i], schema.PathSeparator),
				Relation: rel,
			})
		}
	}
	return joins, nil
}

// CompileThrough renders the batch query of a many-to-many relation: the
// target rows linked to any of the owner keys, each with the owner key
// aliased as LinkColumn.
func CompileThrough(rel *schema.Relation, keys []any, d dialect.Dialect) (*Statement, error) {
	if rel.Kind != edge.KindManyToMany || rel.Through == nil {
		return nil, blazeorm.NewUnsupportedEagerStrategyError(rel.Name, "through", rel.Kind.String()+" relation has no link table")
	}
	target, th := rel.Target, rel.Through
	b := newBuilder(d, target)
	link := tableAlias(th.Table)
	b.write("SELECT ")
	for i, f := range target.Fields() {
		if i > 0 {
			b.write(", ")
		}
		b.column(b.alias, f.Column)
	}
	b.write(", ").column(link, th.OwnerColumn).write(" AS ").ident(LinkColumn)
	b.write(" FROM ").table(target.Table, b.alias)
	b.write(" INNER JOIN ").table(th.Table, link).write(" ON ").
		column(link, th.TargetColumn).write(" = ").column(b.alias, target.PK().Column)
	b.write(" WHERE ")
	if len(keys) == 0 {
		b.write("1 = 0")
	} else {
		b.column(link, th.OwnerColumn).write(" IN ").argList(rel.Owner.PK(), keys)
	}
	return b.statement(), nil
}
