package gen

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"
)

// Metrics tracks the output of a generation.
type Metrics struct {
	Files []string // written files, relative to the target directory
	Bytes int64
}

var formatOptions = &imports.Options{
	Comments:   true,
	TabIndent:  true,
	TabWidth:   8,
	FormatOnly: true,
}

// Metrics returns the generation metrics.
func (g *Generator) Metrics() *Metrics {
	m := g.metrics
	m.Files = append([]string(nil), g.metrics.Files...)
	sort.Strings(m.Files)
	return &m
}

// Generate renders and writes every file in parallel.
func (g *Generator) Generate(ctx context.Context) error {
	if err := os.MkdirAll(g.cfg.Target, 0o755); err != nil {
		return NewGenerationError("write", g.cfg.Target, err)
	}
	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for _, t := range g.tasks() {
		t := t
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			n, err := g.write(t)
			if err != nil {
				return err
			}
			mu.Lock()
			g.metrics.Files = append(g.metrics.Files, t.name)
			g.metrics.Bytes += n
			mu.Unlock()
			return nil
		})
	}
	return eg.Wait()
}

// write renders one file, formats it and writes it under the target.
func (g *Generator) write(t task) (int64, error) {
	var buf bytes.Buffer
	if err := t.file.Render(&buf); err != nil {
		return 0, NewGenerationError("render", t.name, err)
	}
	fullPath := filepath.Join(g.cfg.Target, filepath.FromSlash(t.name))
	formatted, err := imports.Process(fullPath, buf.Bytes(), formatOptions)
	if err != nil {
		debugPath := fullPath + ".error"
		_ = os.MkdirAll(filepath.Dir(debugPath), 0o755)
		_ = os.WriteFile(debugPath, buf.Bytes(), 0o644)
		return 0, NewGenerationError("format", t.name, fmt.Errorf("%w (unformatted written to %s)", err, debugPath))
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, NewGenerationError("write", t.name, err)
	}
	if err := os.WriteFile(fullPath, formatted, 0o644); err != nil {
		return 0, NewGenerationError("write", t.name, err)
	}
	return int64(len(formatted)), nil
}
