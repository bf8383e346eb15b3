// blazegen generates typed entity packages from YAML models.
//
//	blazegen generate -schema ./models -target ./internal/blog -package github.com/org/app/internal/blog
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"gopkg.in/urfave/cli.v2"

	"github.com/KipianiNikoloz/blazeorm/compiler/gen"
	"github.com/KipianiNikoloz/blazeorm/compiler/load"
)

const (
	flagSchema  = "schema"
	flagTarget  = "target"
	flagPackage = "package"
	flagNames   = "names"
	flagWorkers = "workers"
	flagHeader  = "header"
)

var (
	app = &cli.App{
		Name:        "blazegen",
		Usage:       "blazegen [command]",
		Description: "Code generator for blazeorm entity models.",
	}
	generateCmd = &cli.Command{
		Name:        "generate",
		Aliases:     []string{"gen"},
		Usage:       "blazegen generate -schema DIR -target DIR -package PATH",
		Description: "Generate the registry and typed entity packages",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return generate(ctx, options{
				schema:  c.String(flagSchema),
				target:  c.String(flagTarget),
				pkg:     c.String(flagPackage),
				names:   c.StringSlice(flagNames),
				workers: c.Int(flagWorkers),
				header:  c.String(flagHeader),
			})
		},
	}
)

func init() {
	generateCmd.Flags = append(generateCmd.Flags,
		&cli.StringFlag{
			Name:    flagSchema,
			Aliases: []string{"s"},
			Value:   "./schema",
			Usage:   "model file or directory of model files",
		},
		&cli.StringFlag{
			Name:    flagTarget,
			Aliases: []string{"t"},
			Usage:   "output directory of the generated root package",
		},
		&cli.StringFlag{
			Name:    flagPackage,
			Aliases: []string{"p"},
			Usage:   "import path of the generated root package",
		},
		&cli.StringSliceFlag{
			Name:  flagNames,
			Usage: "entities to generate (default all)",
		},
		&cli.IntFlag{
			Name:  flagWorkers,
			Usage: "files rendered in parallel (default GOMAXPROCS)",
		},
		&cli.StringFlag{
			Name:  flagHeader,
			Value: gen.DefaultHeader,
			Usage: "header comment of generated files",
		},
	)
	app.Commands = append(app.Commands, generateCmd)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "blazegen: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	schema  string
	target  string
	pkg     string
	names   []string
	workers int
	header  string
}

func generate(ctx context.Context, o options) error {
	opts := []gen.Option{
		gen.WithPackage(o.pkg),
		gen.WithTarget(o.target),
		gen.WithHeader(o.header),
	}
	if o.workers > 0 {
		opts = append(opts, gen.WithWorkers(o.workers))
	}
	cfg, err := gen.NewConfig(opts...)
	if err != nil {
		return err
	}
	schemas, err := (&load.Config{Path: o.schema, Names: o.names}).Load()
	if err != nil {
		return err
	}
	m, err := gen.Generate(ctx, cfg, schemas)
	if err != nil {
		return err
	}
	for _, f := range m.Files {
		fmt.Println(f)
	}
	fmt.Printf("%d files, %d bytes\n", len(m.Files), m.Bytes)
	return nil
}
