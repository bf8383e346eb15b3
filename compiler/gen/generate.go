package gen

import (
	"context"
	"fmt"
	"go/token"
	"reflect"
	"strings"
	"time"

	"github.com/dave/jennifer/jen"
	"github.com/go-openapi/inflect"

	"github.com/KipianiNikoloz/blazeorm/compiler/load"
	"github.com/KipianiNikoloz/blazeorm/schema"
	"github.com/KipianiNikoloz/blazeorm/schema/edge"
	"github.com/KipianiNikoloz/blazeorm/schema/field"
)

const (
	modulePath = "github.com/KipianiNikoloz/blazeorm"
	schemaPkg  = modulePath + "/schema"
	fieldPkg   = schemaPkg + "/field"
	edgePkg    = schemaPkg + "/edge"
	mixinPkg   = schemaPkg + "/mixin"
	queryPkg   = modulePath + "/query"
	sessionPkg = modulePath + "/session"
)

// Generator renders the packages of one set of models.
type Generator struct {
	cfg      *Config
	schemas  []*load.Schema
	registry *schema.Registry
	metrics  Metrics
}

// New checks the models by declaring them in a registry and returns a
// generator for them.
func New(cfg *Config, schemas []*load.Schema) (*Generator, error) {
	if len(schemas) == 0 {
		return nil, NewGenerationError("load", "", fmt.Errorf("no models"))
	}
	reg, err := load.Registry(schemas...)
	if err != nil {
		return nil, NewGenerationError("load", "", err)
	}
	return &Generator{cfg: cfg, schemas: schemas, registry: reg}, nil
}

// Generate renders schemas into cfg.Target and reports what it wrote.
func Generate(ctx context.Context, cfg *Config, schemas []*load.Schema) (*Metrics, error) {
	g, err := New(cfg, schemas)
	if err != nil {
		return nil, err
	}
	if err := g.Generate(ctx); err != nil {
		return nil, err
	}
	return g.Metrics(), nil
}

// task is one file to write, relative to the target directory.
type task struct {
	name string
	file *jen.File
}

// tasks builds every file of the generation.
func (g *Generator) tasks() []task {
	tasks := []task{{name: "registry.go", file: g.registryFile()}}
	for _, e := range g.registry.Entities() {
		pkg := PackageName(e.Name)
		tasks = append(tasks, task{name: pkg + "/" + pkg + ".go", file: g.entityFile(e)})
	}
	return tasks
}

func (g *Generator) newFile(pkg string) *jen.File {
	f := jen.NewFile(pkg)
	if g.cfg.Header != "" {
		f.HeaderComment(g.cfg.Header)
	}
	return f
}

// multi renders items one per line with trailing commas.
func multi(open, close string) jen.Options {
	return jen.Options{Open: open, Close: close, Separator: ",", Multi: true}
}

func (g *Generator) registryFile() *jen.File {
	f := g.newFile(g.cfg.PackageName())
	f.PackageComment(fmt.Sprintf("Package %s declares the entities of the application.", g.cfg.PackageName()))

	f.Comment("Builders returns the declarations of every entity, in model order.")
	f.Func().Id("Builders").Params().Index().Op("*").Qual(schemaPkg, "EntityBuilder").Block(
		jen.Return(jen.Index().Op("*").Qual(schemaPkg, "EntityBuilder").CustomFunc(multi("{", "}"), func(grp *jen.Group) {
			for _, s := range g.schemas {
				grp.Add(g.entityBuilder(s))
			}
		})),
	)

	f.Var().Id("registry").Op("=").Id("build").Call()
	f.Func().Id("build").Params().Op("*").Qual(schemaPkg, "Registry").Block(
		jen.List(jen.Id("reg"), jen.Err()).Op(":=").Qual(schemaPkg, "Build").Call(jen.Id("Builders").Call().Op("...")),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Panic(jen.Err())),
		jen.Return(jen.Id("reg")),
	)
	f.Comment("Registry returns the frozen registry of the entities.")
	f.Func().Id("Registry").Params().Op("*").Qual(schemaPkg, "Registry").Block(
		jen.Return(jen.Id("registry")),
	)
	return f
}

func (g *Generator) entityBuilder(s *load.Schema) *jen.Statement {
	code := jen.Qual(schemaPkg, "Define").Call(jen.Lit(s.Name))
	if s.Table != "" {
		code.Dot("Table").Call(jen.Lit(s.Table))
	}
	if s.Comment != "" {
		code.Dot("Comment").Call(jen.Lit(s.Comment))
	}
	if len(s.Mixins) > 0 {
		code.Dot("Mixin").CallFunc(func(grp *jen.Group) {
			for _, m := range s.Mixins {
				grp.Qual(mixinPkg, reflect.TypeOf(load.Mixins[m]).Name()).Values()
			}
		})
	}
	if len(s.Fields) > 0 {
		code.Dot("Fields").CustomFunc(multi("(", ")"), func(grp *jen.Group) {
			for _, f := range s.Fields {
				grp.Add(fieldBuilder(f))
			}
		})
	}
	if len(s.Edges) > 0 {
		code.Dot("Edges").CustomFunc(multi("(", ")"), func(grp *jen.Group) {
			for _, e := range s.Edges {
				grp.Add(edgeBuilder(e))
			}
		})
	}
	return code
}

var fieldConstructors = map[field.Type]string{
	field.TypeInt:    "Int",
	field.TypeFloat:  "Float",
	field.TypeString: "String",
	field.TypeBool:   "Bool",
	field.TypeTime:   "Time",
	field.TypeAutoID: "AutoID",
}

// fieldBuilder renders the declaration of a validated field model.
func fieldBuilder(f *load.Field) *jen.Statement {
	t, _ := f.FieldType()
	code := jen.Qual(fieldPkg, fieldConstructors[t]).Call(jen.Lit(f.Name))
	if f.Column != "" {
		code.Dot("Column").Call(jen.Lit(f.Column))
	}
	flags := []struct {
		on   bool
		name string
	}{
		{f.Nillable, "Nillable"},
		{f.PrimaryKey, "PrimaryKey"},
		{f.Unique, "Unique"},
		{f.Immutable, "Immutable"},
		{f.Sensitive, "Sensitive"},
		{f.NotEmpty, "NotEmpty"},
	}
	for _, fl := range flags {
		if fl.on {
			code.Dot(fl.name).Call()
		}
	}
	if f.MaxLen > 0 {
		code.Dot("MaxLen").Call(jen.Lit(f.MaxLen))
	}
	if f.Min != nil {
		code.Dot("Min").Call(jen.Lit(*f.Min))
	}
	if f.Max != nil {
		code.Dot("Max").Call(jen.Lit(*f.Max))
	}
	if f.Match != "" {
		code.Dot("Match").Call(jen.Qual("regexp", "MustCompile").Call(jen.Lit(f.Match)))
	}
	if f.Default != nil {
		code.Dot("Default").Call(value(t, f.Default))
	}
	if f.UpdateDefault != nil {
		code.Dot("UpdateDefault").Call(value(t, f.UpdateDefault))
	}
	if f.Comment != "" {
		code.Dot("Comment").Call(jen.Lit(f.Comment))
	}
	return code
}

// value renders a default value that load accepted.
func value(t field.Type, v any) jen.Code {
	if t == field.TypeTime && v == load.DefaultNow {
		return jen.Func().Params().Qual("time", "Time").Block(
			jen.Return(jen.Qual("time", "Now").Call().Dot("UTC").Call()),
		)
	}
	cv, _ := field.Coerce(t, v)
	if tv, ok := cv.(time.Time); ok {
		tv = tv.UTC()
		return jen.Qual("time", "Date").Call(
			jen.Lit(tv.Year()), jen.Qual("time", "Month").Call(jen.Lit(int(tv.Month()))), jen.Lit(tv.Day()),
			jen.Lit(tv.Hour()), jen.Lit(tv.Minute()), jen.Lit(tv.Second()), jen.Lit(tv.Nanosecond()),
			jen.Qual("time", "UTC"),
		)
	}
	return jen.Lit(cv)
}

// edgeBuilder renders the declaration of a validated edge model.
func edgeBuilder(e *load.Edge) *jen.Statement {
	ctor := "ForeignKey"
	switch k, _ := e.EdgeKind(); k {
	case edge.KindOneToOne:
		ctor = "OneToOne"
	case edge.KindManyToMany:
		ctor = "ManyToMany"
	}
	code := jen.Qual(edgePkg, ctor).Call(jen.Lit(e.Name), jen.Lit(e.Target))
	if e.Ref != "" {
		code.Dot("Ref").Call(jen.Lit(e.Ref))
	}
	if e.Column != "" {
		code.Dot("Field").Call(jen.Lit(e.Column))
	}
	if e.Nillable {
		code.Dot("Nillable").Call()
	}
	if th := e.Through; th != nil {
		code.Dot("Through").Call(jen.Lit(th.Table), jen.Lit(th.OwnerColumn), jen.Lit(th.TargetColumn))
	}
	if e.Comment != "" {
		code.Dot("Comment").Call(jen.Lit(e.Comment))
	}
	return code
}

// reserved names of entity packages that typed fields must not take.
var reserved = []string{"Label", "Table", "Columns", "Entity", "Query", "From", "New", "Get"}

func (g *Generator) entityFile(e *schema.Entity) *jen.File {
	pkg := PackageName(e.Name)
	f := g.newFile(pkg)
	f.PackageComment(fmt.Sprintf("Package %s provides the typed fields of the %s entity.", pkg, e.Name))

	used := make(map[string]bool)
	for _, name := range reserved {
		used[name] = true
	}
	f.Const().Defs(
		jen.Comment("Label is the entity name."),
		jen.Id("Label").Op("=").Lit(e.Name),
		jen.Comment("Table is the table name."),
		jen.Id("Table").Op("=").Lit(e.Table),
	)
	fieldConsts := make(map[string]string, len(e.Fields()))
	f.Const().DefsFunc(func(grp *jen.Group) {
		for _, fd := range e.Fields() {
			id := unique(used, "Field"+Pascal(fd.Name))
			fieldConsts[fd.Name] = id
			grp.Commentf("%s is the name of the %q field.", id, fd.Name)
			grp.Id(id).Op("=").Lit(fd.Name)
		}
	})
	if rels := e.Relations(); len(rels) > 0 {
		f.Const().DefsFunc(func(grp *jen.Group) {
			for _, rel := range rels {
				id := unique(used, "Edge"+Pascal(rel.Name))
				grp.Commentf("%s is the %s relation to %s.", id, rel.Kind, rel.Target.Name)
				grp.Id(id).Op("=").Lit(rel.Name)
			}
		})
	}
	f.Comment("Columns lists the table columns in declaration order.")
	f.Var().Id("Columns").Op("=").Index().String().CustomFunc(multi("{", "}"), func(grp *jen.Group) {
		for _, c := range e.Columns() {
			grp.Lit(c)
		}
	})

	f.Var().Id("entity").Op("=").Qual(g.cfg.Package, "Registry").Call().Dot("MustEntity").Call(jen.Id("Label"))
	f.Commentf("Entity returns the %s entity.", e.Name)
	f.Func().Id("Entity").Params().Op("*").Qual(schemaPkg, "Entity").Block(jen.Return(jen.Id("entity")))

	f.Comment("Typed fields for predicates and ordering.")
	f.Var().DefsFunc(func(grp *jen.Group) {
		for _, fd := range e.Fields() {
			ref := jen.Qual(queryPkg, "MustField").Call(jen.Id("entity"), jen.Id(fieldConsts[fd.Name]))
			grp.Id(unique(used, Pascal(fd.Name))).Op("=").Add(typedField(fd.Type, ref))
		}
	})

	session := func(name string) *jen.Statement { return jen.Qual(sessionPkg, name) }
	f.Commentf("Query returns a query set of %s bound to s.", e.Name)
	f.Func().Id("Query").Params(jen.Id("s").Op("*").Add(session("Session"))).Op("*").Add(session("QuerySet")).Block(
		jen.Return(jen.Id("s").Dot("Query").Call(jen.Id("entity"))),
	)
	f.Commentf("From returns a query set of %s that resolves its session from the context.", e.Name)
	f.Func().Id("From").Params().Op("*").Add(session("QuerySet")).Block(
		jen.Return(session("From").Call(jen.Id("entity"))),
	)
	f.Commentf("New adds a pending %s holding values to s.", e.Name)
	f.Func().Id("New").Params(
		jen.Id("s").Op("*").Add(session("Session")),
		jen.Id("values").Map(jen.String()).Interface(),
	).Params(jen.Op("*").Add(session("Instance")), jen.Error()).Block(
		jen.Return(jen.Id("s").Dot("New").Call(jen.Id("entity"), jen.Id("values"))),
	)
	f.Commentf("Get returns the %s with the given key.", e.Name)
	f.Func().Id("Get").Params(
		jen.Id("ctx").Qual("context", "Context"),
		jen.Id("s").Op("*").Add(session("Session")),
		jen.Id("id").Add(goType(e.PK().Type)),
	).Params(jen.Op("*").Add(session("Instance")), jen.Error()).Block(
		jen.Return(jen.Id("s").Dot("Get").Call(jen.Id("ctx"), jen.Id("entity"), jen.Id("id"))),
	)
	return f
}

func goType(t field.Type) jen.Code {
	switch t {
	case field.TypeInt, field.TypeAutoID:
		return jen.Int64()
	case field.TypeFloat:
		return jen.Float64()
	case field.TypeBool:
		return jen.Bool()
	case field.TypeTime:
		return jen.Qual("time", "Time")
	default:
		return jen.String()
	}
}

func typedField(t field.Type, ref jen.Code) jen.Code {
	if t == field.TypeString {
		return jen.Qual(queryPkg, "Text").Call(ref)
	}
	return jen.Qual(queryPkg, "Typed").Types(goType(t)).Call(ref)
}

// unique returns name, or name suffixed until it is not used.
func unique(used map[string]bool, name string) string {
	for used[name] {
		name += "Field"
	}
	used[name] = true
	return name
}

// initialisms are rendered upper case in identifiers.
var initialisms = map[string]bool{
	"id": true, "url": true, "uri": true, "uuid": true, "api": true,
	"http": true, "ip": true, "sql": true, "json": true, "html": true,
}

// Pascal converts a snake_case name to an exported Go identifier.
func Pascal(name string) string {
	var b strings.Builder
	for _, part := range strings.Split(inflect.Underscore(name), "_") {
		if part == "" {
			continue
		}
		if initialisms[part] {
			b.WriteString(strings.ToUpper(part))
			continue
		}
		b.WriteString(inflect.Camelize(part))
	}
	if b.Len() == 0 || !token.IsIdentifier(b.String()) {
		return "X" + b.String()
	}
	return b.String()
}

// PackageName returns the name of the package generated for an entity.
func PackageName(entity string) string {
	name := strings.ToLower(entity)
	if token.IsKeyword(name) {
		name += "entity"
	}
	return name
}
