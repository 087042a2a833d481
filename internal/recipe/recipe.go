// Package recipe reads declarative class recipes and compiles them through
// the assembler. A recipe describes value-style classes: fields, a
// constructor over them, getters, constant-returning methods, toString and
// an optional main that prints a line.
package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"classbuilder/internal/diag"
)

// File is one recipe document.
type File struct {
	Package string  `toml:"package" yaml:"package"`
	Classes []Class `toml:"class" yaml:"classes"`

	// Path is the file the recipe was read from, if any.
	Path string `toml:"-" yaml:"-"`
}

// Class declares one generated class.
type Class struct {
	Name       string   `toml:"name" yaml:"name"`
	Extends    string   `toml:"extends" yaml:"extends"`
	Implements []string `toml:"implements" yaml:"implements"`
	Final      bool     `toml:"final" yaml:"final"`

	// Constructor generates a public constructor taking every instance
	// field without a value, in declaration order. Without it the class
	// gets a public no-argument constructor.
	Constructor bool `toml:"constructor" yaml:"constructor"`
	Getters     bool `toml:"getters" yaml:"getters"`
	ToString    bool `toml:"to_string" yaml:"to_string"`

	// Main, when set, generates main(String[]) printing this line.
	Main string `toml:"main" yaml:"main"`

	Fields  []Field  `toml:"field" yaml:"fields"`
	Methods []Method `toml:"method" yaml:"methods"`
}

// Field declares a field. Value is an optional constant initializer.
type Field struct {
	Name   string `toml:"name" yaml:"name"`
	Type   string `toml:"type" yaml:"type"`
	Access string `toml:"access" yaml:"access"`
	Static bool   `toml:"static" yaml:"static"`
	Final  bool   `toml:"final" yaml:"final"`
	Value  any    `toml:"value" yaml:"value"`
}

// Method declares a method returning either a constant Value or the
// value of the named Field.
type Method struct {
	Name    string `toml:"name" yaml:"name"`
	Returns string `toml:"returns" yaml:"returns"`
	Static  bool   `toml:"static" yaml:"static"`
	Value   any    `toml:"value" yaml:"value"`
	Field   string `toml:"field" yaml:"field"`
}

// Format selects the recipe syntax.
type Format uint8

const (
	FormatTOML Format = iota
	FormatYAML
)

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return 0, diag.Errorf(diag.RecDecode, "%s: unknown recipe extension (want .toml, .yaml or .yml)", path)
}

// Load reads and validates the recipe at path.
func Load(path string) (*File, error) {
	if _, err := FormatFor(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.Errorf(diag.RecDecode, "%s: %v", path, err)
	}
	return LoadBytes(path, data)
}

// LoadBytes is Load for contents already read from path.
func LoadBytes(path string, data []byte) (*File, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	f, err := Parse(data, format)
	if err != nil {
		var de *diag.Error
		if errors.As(err, &de) {
			return nil, de.At(path)
		}
		return nil, err
	}
	f.Path = path
	return f, nil
}

// Parse decodes and validates a recipe document.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case FormatTOML:
		meta, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, diag.Errorf(diag.RecDecode, "failed to parse TOML: %v", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, diag.Errorf(diag.RecInvalid, "unknown key %s", undecoded[0])
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, diag.Errorf(diag.RecDecode, "failed to parse YAML: %v", err)
		}
	default:
		return nil, diag.Errorf(diag.RecDecode, "unknown recipe format %d", format)
	}
	f.normalize()
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// normalize trims names and brings them to NFC so that visually equal
// identifiers intern to the same Utf8 entry.
func (f *File) normalize() {
	clean := func(s string) string { return norm.NFC.String(strings.TrimSpace(s)) }
	f.Package = strings.ReplaceAll(clean(f.Package), ".", "/")
	for i := range f.Classes {
		c := &f.Classes[i]
		c.Name = clean(c.Name)
		c.Extends = clean(c.Extends)
		for j := range c.Implements {
			c.Implements[j] = clean(c.Implements[j])
		}
		for j := range c.Fields {
			fd := &c.Fields[j]
			fd.Name, fd.Type = clean(fd.Name), clean(fd.Type)
			fd.Access = strings.ToLower(clean(fd.Access))
			if s, ok := fd.Value.(string); ok {
				fd.Value = norm.NFC.String(s)
			}
		}
		for j := range c.Methods {
			m := &c.Methods[j]
			m.Name, m.Returns, m.Field = clean(m.Name), clean(m.Returns), clean(m.Field)
			if s, ok := m.Value.(string); ok {
				m.Value = norm.NFC.String(s)
			}
		}
	}
}

func (f *File) validate() error {
	if len(f.Classes) == 0 {
		return diag.Errorf(diag.RecInvalid, "recipe declares no classes")
	}
	names := make(map[string]bool, len(f.Classes))
	for i := range f.Classes {
		c := &f.Classes[i]
		if c.Name == "" {
			return diag.Errorf(diag.RecInvalid, "class %d has no name", i+1)
		}
		if names[c.Name] {
			return diag.Errorf(diag.RecInvalid, "class %s declared twice", c.Name)
		}
		names[c.Name] = true
		where := f.InternalName(c.Name)
		fields := make(map[string]*Field, len(c.Fields))
		for j := range c.Fields {
			fd := &c.Fields[j]
			if fd.Name == "" || fd.Type == "" {
				return diag.Errorf(diag.RecInvalid, "field %d needs a name and a type", j+1).At(where)
			}
			if fields[fd.Name] != nil {
				return diag.Errorf(diag.RecInvalid, "field %s declared twice", fd.Name).At(where)
			}
			if _, err := accessFlags(fd.Access); err != nil {
				return at(err, where+"."+fd.Name)
			}
			fields[fd.Name] = fd
		}
		for j := range c.Methods {
			m := &c.Methods[j]
			if m.Name == "" || m.Returns == "" {
				return diag.Errorf(diag.RecInvalid, "method %d needs a name and a return type", j+1).At(where)
			}
			switch {
			case m.Field != "" && m.Value != nil:
				return diag.Errorf(diag.RecInvalid, "method %s sets both value and field", m.Name).At(where)
			case m.Field == "" && m.Value == nil:
				return diag.Errorf(diag.RecInvalid, "method %s needs a value or a field", m.Name).At(where)
			case m.Field != "":
				fd := fields[m.Field]
				if fd == nil {
					return diag.Errorf(diag.RecInvalid, "method %s returns unknown field %s", m.Name, m.Field).At(where)
				}
				if m.Static && !fd.Static {
					return diag.Errorf(diag.RecInvalid, "static method %s returns instance field %s", m.Name, m.Field).At(where)
				}
			}
		}
	}
	return nil
}

// InternalName qualifies a recipe class name with the package.
func (f *File) InternalName(name string) string {
	name = strings.ReplaceAll(name, ".", "/")
	if f.Package == "" || strings.Contains(name, "/") {
		return name
	}
	return f.Package + "/" + name
}

// String describes the recipe for logs.
func (f *File) String() string {
	if f.Path != "" {
		return fmt.Sprintf("%s (%d classes)", f.Path, len(f.Classes))
	}
	return fmt.Sprintf("recipe (%d classes)", len(f.Classes))
}
