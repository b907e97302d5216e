// Package schema holds the canonical GETS field table the analysis maps records onto.
//
// A Registry is built once at process start and never mutated afterwards, so
// concurrent analyses share it freely.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed gets_v0_1.yaml
var defaultSchema []byte

// Field types
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeDate    = "date"
	TypeBoolean = "boolean"
)

// LinePrefix marks line-scoped field paths such as lines[].qty
const LinePrefix = "lines[]."

var ErrEmptySchema = errors.New("canonical schema is missing or empty")

var schemaValidate = validator.New()

// Field is one canonical target field
type Field struct {
	Path     string `yaml:"-" validate:"required"`
	Type     string `yaml:"type" validate:"required,oneof=string number date boolean"`
	Required bool   `yaml:"required"`
	Category string `yaml:"category" validate:"required"`
}

// IsLinePath reports whether a canonical path is line-scoped
func IsLinePath(path string) bool {
	return strings.HasPrefix(path, LinePrefix)
}

// Category groups fields and carries a relative weight
type Category struct {
	Name   string  `yaml:"-" validate:"required"`
	Weight float64 `yaml:"weight" validate:"gt=0"`
}

// Registry is the ordered, immutable canonical field table
type Registry struct {
	version    string
	fields     []Field
	byPath     map[string]int
	categories []Category
}

type document struct {
	Version    string    `yaml:"version"`
	Categories yaml.Node `yaml:"categories"`
	Fields     yaml.Node `yaml:"fields"`
}

// Default returns the embedded GETS v0.1 registry
func Default() (*Registry, error) {
	return Parse(defaultSchema)
}

// Load reads a registry from a YAML (or JSON) file
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry, keeping fields and categories in declared order
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	reg := &Registry{
		version: doc.Version,
		byPath:  make(map[string]int),
	}

	err := eachPair(&doc.Categories, func(name string, node *yaml.Node) error {
		var c Category
		if err := node.Decode(&c); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		c.Name = name
		if err := schemaValidate.Struct(c); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		reg.categories = append(reg.categories, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(reg.categories))
	for _, c := range reg.categories {
		known[c.Name] = true
	}

	err = eachPair(&doc.Fields, func(path string, node *yaml.Node) error {
		var f Field
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("field %q: %w", path, err)
		}
		f.Path = path
		if err := schemaValidate.Struct(f); err != nil {
			return fmt.Errorf("field %q: %w", path, err)
		}
		if !known[f.Category] {
			return fmt.Errorf("field %q: unknown category %q", path, f.Category)
		}
		if _, dup := reg.byPath[path]; dup {
			return fmt.Errorf("field %q declared twice", path)
		}
		reg.byPath[path] = len(reg.fields)
		reg.fields = append(reg.fields, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(reg.fields) == 0 {
		return nil, ErrEmptySchema
	}
	return reg, nil
}

// eachPair walks a YAML mapping node in document order
func eachPair(node *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if err := fn(node.Content[i].Value, node.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Version is the schema version tag, e.g. "gets-0.1"
func (r *Registry) Version() string { return r.version }

// Fields returns the canonical fields in declared order
func (r *Registry) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Paths returns the canonical field paths in declared order
func (r *Registry) Paths() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Path
	}
	return out
}

// Field looks up a field by path
func (r *Registry) Field(path string) (Field, bool) {
	i, ok := r.byPath[path]
	if !ok {
		return Field{}, false
	}
	return r.fields[i], true
}

// Categories returns the categories in declared order
func (r *Registry) Categories() []Category {
	out := make([]Category, len(r.categories))
	copy(out, r.categories)
	return out
}

// Len is the number of canonical fields
func (r *Registry) Len() int { return len(r.fields) }

// Check returns ErrEmptySchema for a nil or empty registry
func Check(r *Registry) error {
	if r == nil || len(r.fields) == 0 {
		return ErrEmptySchema
	}
	return nil
}
