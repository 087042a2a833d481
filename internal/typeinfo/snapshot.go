package typeinfo

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// Current schema version - increment when the snapshot layout changes
const snapshotSchemaVersion uint16 = 1

// Format selects the snapshot encoding.
type Format uint8

const (
	FormatMsgpack Format = iota
	FormatCBOR
)

func (f Format) String() string {
	if f == FormatCBOR {
		return "cbor"
	}
	return "msgpack"
}

// FormatFor picks the encoding from a file extension (.cbor or anything else).
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".cbor") {
		return FormatCBOR
	}
	return FormatMsgpack
}

// Snapshot is the on-disk form of a registry. Types are stored as
// descriptor strings so the file stays readable by other tools.
type Snapshot struct {
	Schema  uint16          `msgpack:"schema" cbor:"1,keyasint"`
	Classes []SnapshotClass `msgpack:"classes" cbor:"2,keyasint"`
}

type SnapshotClass struct {
	Name       string           `msgpack:"name" cbor:"1,keyasint"`
	Super      string           `msgpack:"super,omitempty" cbor:"2,keyasint,omitempty"`
	Interfaces []string         `msgpack:"interfaces,omitempty" cbor:"3,keyasint,omitempty"`
	Flags      uint16           `msgpack:"flags" cbor:"4,keyasint"`
	Fields     []SnapshotMember `msgpack:"fields,omitempty" cbor:"5,keyasint,omitempty"`
	Methods    []SnapshotMember `msgpack:"methods,omitempty" cbor:"6,keyasint,omitempty"`
}

type SnapshotMember struct {
	Name       string `msgpack:"name" cbor:"1,keyasint"`
	Descriptor string `msgpack:"desc" cbor:"2,keyasint"`
	Flags      uint16 `msgpack:"flags" cbor:"3,keyasint"`
}

// Snapshot captures the registry in name order.
func (r *Registry) Snapshot() *Snapshot {
	snap := &Snapshot{Schema: snapshotSchemaVersion}
	for _, name := range r.Names() {
		c := r.classes[name]
		sc := SnapshotClass{
			Name:       c.Name,
			Super:      c.Super,
			Interfaces: c.Interfaces,
			Flags:      uint16(c.Flags),
		}
		for _, f := range c.Fields {
			sc.Fields = append(sc.Fields, SnapshotMember{Name: f.Name, Descriptor: f.Descriptor(), Flags: uint16(f.Flags)})
		}
		for _, m := range c.Methods {
			sc.Methods = append(sc.Methods, SnapshotMember{Name: m.Name, Descriptor: m.Descriptor(), Flags: uint16(m.Flags)})
		}
		snap.Classes = append(snap.Classes, sc)
	}
	return snap
}

// Registry rebuilds a registry from the snapshot.
func (s *Snapshot) Registry() (*Registry, error) {
	if s.Schema != snapshotSchemaVersion {
		return nil, diag.Errorf(diag.RecDecode, "snapshot schema %d, want %d", s.Schema, snapshotSchemaVersion)
	}
	r := NewRegistry()
	for _, sc := range s.Classes {
		c := &Class{
			Name:       sc.Name,
			Super:      sc.Super,
			Interfaces: sc.Interfaces,
			Flags:      classfile.AccessFlags(sc.Flags),
		}
		for _, sf := range sc.Fields {
			t, err := jtype.ParseDescriptor(sf.Descriptor)
			if err != nil {
				return nil, diag.Errorf(diag.RecDecode, "%s.%s: %v", sc.Name, sf.Name, err)
			}
			c.Fields = append(c.Fields, &Field{Owner: sc.Name, Name: sf.Name, Type: t, Flags: classfile.AccessFlags(sf.Flags)})
		}
		for _, sm := range sc.Methods {
			ret, params, err := jtype.ParseMethodDescriptor(sm.Descriptor)
			if err != nil {
				return nil, diag.Errorf(diag.RecDecode, "%s.%s: %v", sc.Name, sm.Name, err)
			}
			c.Methods = append(c.Methods, &Method{Owner: sc.Name, Name: sm.Name, Params: params, Return: ret, Flags: classfile.AccessFlags(sm.Flags)})
		}
		r.Add(c)
	}
	return r, nil
}

// Encode writes the registry snapshot in the given format.
func Encode(w io.Writer, r *Registry, format Format) error {
	snap := r.Snapshot()
	if format == FormatCBOR {
		em, err := cbor.CanonicalEncOptions().EncMode()
		if err != nil {
			return err
		}
		return em.NewEncoder(w).Encode(snap)
	}
	return msgpack.NewEncoder(w).Encode(snap)
}

// Decode reads a snapshot written by Encode.
func Decode(rd io.Reader, format Format) (*Registry, error) {
	var snap Snapshot
	var err error
	if format == FormatCBOR {
		err = cbor.NewDecoder(rd).Decode(&snap)
	} else {
		err = msgpack.NewDecoder(rd).Decode(&snap)
	}
	if err != nil {
		return nil, diag.Errorf(diag.RecDecode, "decode %s snapshot: %v", format, err)
	}
	return snap.Registry()
}

// SaveFile writes the snapshot atomically, choosing the format by extension.
func SaveFile(path string, r *Registry) error {
	var buf bytes.Buffer
	if err := Encode(&buf, r, FormatFor(path)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	// Атомарная замена
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadFile reads a snapshot file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, FormatFor(path))
}
