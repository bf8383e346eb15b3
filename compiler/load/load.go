package load

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Extensions of model files read by Dir.
var Extensions = []string{".yaml", ".yml"}

// Config configures loading.
type Config struct {
	// Path is a model file or a directory of model files.
	Path string
	// Names restricts loading to the named entities. Empty loads all.
	Names []string
}

// Load reads the models at c.Path and checks that names are unique and
// that every edge targets a loaded entity.
func (c *Config) Load() ([]*Schema, error) {
	info, err := os.Stat(c.Path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	var schemas []*Schema
	if info.IsDir() {
		schemas, err = Dir(c.Path)
	} else {
		schemas, err = File(c.Path)
	}
	if err != nil {
		return nil, err
	}
	if err := check(schemas); err != nil {
		return nil, err
	}
	if len(c.Names) == 0 {
		return schemas, nil
	}
	filtered := make([]*Schema, 0, len(c.Names))
	for _, s := range schemas {
		if slices.Contains(c.Names, s.Name) {
			filtered = append(filtered, s)
		}
	}
	return filtered, nil
}

// Dir reads every model file of dir in lexical order.
func Dir(dir string) ([]*Schema, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	var schemas []*Schema
	for _, ent := range entries {
		if ent.IsDir() || !slices.Contains(Extensions, filepath.Ext(ent.Name())) {
			continue
		}
		ss, err := File(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, ss...)
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("load: no models found in %s", dir)
	}
	return schemas, nil
}

// File reads the models of one file.
func File(path string) ([]*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	schemas, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load: %s: %w", path, err)
	}
	for _, s := range schemas {
		s.Pos = path
	}
	return schemas, nil
}

// Parse decodes the YAML documents of data, one model each. Unknown keys
// are rejected.
func Parse(data []byte) ([]*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var schemas []*Schema
	for {
		s := &Schema{}
		err := dec.Decode(s)
		if errors.Is(err, io.EOF) {
			return schemas, nil
		}
		if err != nil {
			return nil, err
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
}

// check validates references between models.
func check(schemas []*Schema) error {
	names := make(map[string]*Schema, len(schemas))
	for _, s := range schemas {
		if prev, ok := names[s.Name]; ok {
			return fmt.Errorf("load: schema %q declared in %s and %s", s.Name, prev.Pos, s.Pos)
		}
		names[s.Name] = s
	}
	for _, s := range schemas {
		for _, e := range s.Edges {
			if _, ok := names[e.Target]; !ok {
				return fmt.Errorf("load: schema %q: edge %q targets unknown schema %q", s.Name, e.Name, e.Target)
			}
		}
	}
	return nil
}
