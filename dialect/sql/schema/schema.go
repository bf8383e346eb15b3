// Package schema renders the tables of a frozen registry as DDL and
// validates table definitions and their changes.
package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/KipianiNikoloz/blazeorm/dialect"
	bschema "github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

// Table is the definition of one table.
type Table struct {
	Name        string
	Columns     []*Column
	PrimaryKey  []*Column
	Indexes     []*Index
	ForeignKeys []*ForeignKey
	Comment     string
}

// NewTable returns a new table with the given name.
func NewTable(name string) *Table {
	return &Table{Name: name}
}

// AddColumn adds a column to the table.
func (t *Table) AddColumn(c *Column) *Table {
	t.Columns = append(t.Columns, c)
	return t
}

// AddPrimary adds a column to the primary key of the table.
func (t *Table) AddPrimary(c *Column) *Table {
	t.PrimaryKey = append(t.PrimaryKey, c)
	return t
}

// AddForeignKey adds a foreign key to the table.
func (t *Table) AddForeignKey(fk *ForeignKey) *Table {
	t.ForeignKeys = append(t.ForeignKeys, fk)
	return t
}

// AddIndex adds an index over the named columns.
func (t *Table) AddIndex(name string, unique bool, columns ...string) *Table {
	idx := &Index{Name: name, Unique: unique}
	for _, c := range columns {
		col, _ := t.Column(c)
		idx.Columns = append(idx.Columns, col)
	}
	t.Indexes = append(t.Indexes, idx)
	return t
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Column is the definition of one column.
type Column struct {
	Name     string
	Type     field.Type
	Size     int
	Nullable bool
	Unique   bool
	Default  any
	Comment  string
}

// Index is a secondary index.
type Index struct {
	Name    string
	Unique  bool
	Columns []*Column
}

// ForeignKey references the key of another table.
type ForeignKey struct {
	Symbol     string
	Columns    []*Column
	RefTable   *Table
	RefColumns []*Column
	OnDelete   string
}

// Tables returns the tables of a frozen registry: one per entity, ordered
// so referenced tables come first, followed by the link tables of
// many-to-many relations.
func Tables(reg *bschema.Registry) ([]*Table, error) {
	if !reg.Frozen() {
		return nil, fmt.Errorf("dialect/sql/schema: registry is not frozen")
	}
	byEntity := make(map[*bschema.Entity]*Table)
	var tables []*Table
	for _, e := range reg.Entities() {
		t := NewTable(e.Table)
		t.Comment = e.Comment
		for _, fd := range e.Fields() {
			c := &Column{
				Name:     fd.Column,
				Type:     fd.Type,
				Size:     fd.Size,
				Nullable: fd.Nullable,
				Unique:   fd.Unique,
				Comment:  fd.Comment,
			}
			t.AddColumn(c)
			if fd.PrimaryKey {
				t.AddPrimary(c)
			}
		}
		byEntity[e] = t
		tables = append(tables, t)
	}
	var links []*Table
	for _, e := range reg.Entities() {
		t := byEntity[e]
		for _, rel := range e.Relations() {
			switch {
			case rel.Kind.Local():
				col, _ := t.Column(rel.Column)
				ref := byEntity[rel.Target]
				t.AddForeignKey(&ForeignKey{
					Symbol:     t.Name + "_" + rel.Column + "_fkey",
					Columns:    []*Column{col},
					RefTable:   ref,
					RefColumns: ref.PrimaryKey,
				})
				t.AddIndex(t.Name+"_"+rel.Column, false, rel.Column)
			case rel.Kind == edge.KindManyToMany && rel.Declared:
				links = append(links, linkTable(rel, byEntity))
			}
		}
	}
	return append(sortTables(tables), links...), nil
}

// linkTable builds the through table of a many-to-many relation.
func linkTable(rel *bschema.Relation, byEntity map[*bschema.Entity]*Table) *Table {
	th := rel.Through
	t := NewTable(th.Table)
	owner, target := byEntity[rel.Owner], byEntity[rel.Target]
	oc := &Column{Name: th.OwnerColumn, Type: keyType(rel.Owner.PK()), Size: rel.Owner.PK().Size}
	tc := &Column{Name: th.TargetColumn, Type: keyType(rel.Target.PK()), Size: rel.Target.PK().Size}
	t.AddColumn(oc).AddColumn(tc).AddPrimary(oc).AddPrimary(tc)
	t.AddForeignKey(&ForeignKey{
		Symbol:     t.Name + "_" + oc.Name + "_fkey",
		Columns:    []*Column{oc},
		RefTable:   owner,
		RefColumns: owner.PrimaryKey,
		OnDelete:   "CASCADE",
	})
	t.AddForeignKey(&ForeignKey{
		Symbol:     t.Name + "_" + tc.Name + "_fkey",
		Columns:    []*Column{tc},
		RefTable:   target,
		RefColumns: target.PrimaryKey,
		OnDelete:   "CASCADE",
	})
	t.AddIndex(t.Name+"_"+tc.Name, false, tc.Name)
	return t
}

func keyType(fd *field.Descriptor) field.Type {
	if fd.Type == field.TypeAutoID {
		return field.TypeInt
	}
	return fd.Type
}

// sortTables orders tables so every referenced table precedes the tables
// referencing it. Cycles keep their registration order.
func sortTables(tables []*Table) []*Table {
	var (
		out     = make([]*Table, 0, len(tables))
		visited = make(map[*Table]int)
		visit   func(*Table)
	)
	visit = func(t *Table) {
		if visited[t] != 0 {
			return
		}
		visited[t] = 1
		for _, fk := range t.ForeignKeys {
			if fk.RefTable != t {
				visit(fk.RefTable)
			}
		}
		visited[t] = 2
		out = append(out, t)
	}
	for _, t := range tables {
		visit(t)
	}
	return out
}

// MigrateOption configures DDL generation.
type MigrateOption func(*migrateConfig)

type migrateConfig struct {
	foreignKeys bool
	indexes     bool
}

// WithForeignKeys enables or disables foreign key constraints. Enabled by
// default.
func WithForeignKeys(b bool) MigrateOption {
	return func(c *migrateConfig) {
		c.foreignKeys = b
	}
}

// WithIndexes enables or disables the creation of foreign key indexes.
// Enabled by default.
func WithIndexes(b bool) MigrateOption {
	return func(c *migrateConfig) {
		c.indexes = b
	}
}

// CreateStatements returns the statements creating every table of the
// registry in dialect d. Statements are idempotent.
func CreateStatements(reg *bschema.Registry, d dialect.Dialect, opts ...MigrateOption) ([]string, error) {
	cfg := &migrateConfig{foreignKeys: true, indexes: true}
	for _, opt := range opts {
		opt(cfg)
	}
	tables, err := Tables(reg)
	if err != nil {
		return nil, err
	}
	if res := ValidateSchema(tables); res.HasErrors() {
		return nil, fmt.Errorf("dialect/sql/schema: invalid schema:\n%s", res)
	}
	var stmts []string
	for _, t := range tables {
		stmts = append(stmts, createTable(t, d, cfg))
	}
	// MySQL has no CREATE INDEX IF NOT EXISTS and indexes foreign keys itself.
	if cfg.indexes && d.Name() != dialect.MySQL {
		for _, t := range tables {
			for _, idx := range t.Indexes {
				stmts = append(stmts, createIndex(t, idx, d))
			}
		}
	}
	return stmts, nil
}

func createTable(t *Table, d dialect.Dialect, cfg *migrateConfig) string {
	var (
		b        strings.Builder
		compound = len(t.PrimaryKey) > 1
		refs     = make(map[*Column]*ForeignKey)
	)
	if cfg.foreignKeys {
		for _, fk := range t.ForeignKeys {
			if len(fk.Columns) == 1 && fk.OnDelete == "" {
				refs[fk.Columns[0]] = fk
			}
		}
	}
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(d.FormatTable(t.Name))
	b.WriteString(" (")
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		def := dialect.ColumnDef{
			Name:       c.Name,
			Type:       c.Type,
			Size:       c.Size,
			Nullable:   c.Nullable,
			PrimaryKey: !compound && len(t.PrimaryKey) == 1 && t.PrimaryKey[0] == c,
			Unique:     c.Unique,
		}
		if fk, ok := refs[c]; ok {
			def.References = &dialect.Reference{Table: fk.RefTable.Name, Column: fk.RefColumns[0].Name}
		}
		b.WriteString(d.RenderColumn(def))
	}
	if compound {
		b.WriteString(", PRIMARY KEY (")
		b.WriteString(quoteColumns(d, t.PrimaryKey))
		b.WriteString(")")
	}
	if cfg.foreignKeys {
		for _, fk := range t.ForeignKeys {
			if _, inline := refs[fk.Columns[0]]; inline && len(fk.Columns) == 1 {
				continue
			}
			b.WriteString(", FOREIGN KEY (")
			b.WriteString(quoteColumns(d, fk.Columns))
			b.WriteString(") REFERENCES ")
			b.WriteString(d.FormatTable(fk.RefTable.Name))
			b.WriteString(" (")
			b.WriteString(quoteColumns(d, fk.RefColumns))
			b.WriteString(")")
			if fk.OnDelete != "" {
				b.WriteString(" ON DELETE " + fk.OnDelete)
			}
		}
	}
	b.WriteString(")")
	return b.String()
}

func createIndex(t *Table, idx *Index, d dialect.Dialect) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX IF NOT EXISTS ")
	b.WriteString(d.QuoteIdent(idx.Name))
	b.WriteString(" ON ")
	b.WriteString(d.FormatTable(t.Name))
	b.WriteString(" (")
	b.WriteString(quoteColumns(d, idx.Columns))
	b.WriteString(")")
	return b.String()
}

func quoteColumns(d dialect.Dialect, cols []*Column) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = d.QuoteIdent(c.Name)
	}
	return strings.Join(names, ", ")
}

// Create executes the create statements of the registry through a.
func Create(ctx context.Context, a dialect.Adapter, reg *bschema.Registry, opts ...MigrateOption) error {
	stmts, err := CreateStatements(reg, a.Dialect(), opts...)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := a.Exec(ctx, stmt, nil); err != nil {
			return fmt.Errorf("dialect/sql/schema: create: %w", err)
		}
	}
	return nil
}
