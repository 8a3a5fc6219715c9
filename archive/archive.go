// Package archive persists a compiler.Bytecode to disk as a zip container,
// the way spec.md §6's "compile" mode produces a reusable artifact instead
// of re-parsing source on every run. The container holds three entries:
//
//	output/instructions  raw bytecode (code.Instructions)
//	output/constants     the constants pool, CBOR-encoded
//	output/buildid       a ULID stamped at build time, for cache-busting
//
// Constants are CBOR-encoded rather than gob-encoded because
// object.Object is an interface with shared sentinel values (NULL,
// TRUE, FALSE); archive defines its own tagged record type and converts
// to/from it explicitly instead of teaching cbor to walk the interface.
package archive

import (
	"archive/zip"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/oklog/ulid/v2"

	"github.com/ember-lang/ember/code"
	"github.com/ember-lang/ember/compiler"
	"github.com/ember-lang/ember/object"
)

const (
	instructionsEntry = "output/instructions"
	constantsEntry    = "output/constants"
	buildIDEntry      = "output/buildid"
)

// record is the CBOR wire shape for a single object.Object constant.
// Exactly one of the value fields is meaningful, selected by Kind.
type record struct {
	Kind  string          `cbor:"kind"`
	Int   int64           `cbor:"int,omitempty"`
	Float float64         `cbor:"float,omitempty"`
	Str   string          `cbor:"str,omitempty"`
	Bool  bool            `cbor:"bool,omitempty"`
	Fn    *functionRecord `cbor:"fn,omitempty"`
}

type functionRecord struct {
	Instructions  []byte `cbor:"instructions"`
	NumLocals     int    `cbor:"num_locals"`
	NumParameters int    `cbor:"num_parameters"`
}

// Write encodes bytecode into a zip archive on w and returns the ULID
// stamped into output/buildid, so callers (the CLI's "compile" subcommand)
// can report it back to the user.
func Write(w io.Writer, bytecode *compiler.Bytecode, entropy io.Reader) (string, error) {
	records, err := encodeConstants(bytecode.Constants)
	if err != nil {
		return "", fmt.Errorf("archive: encode constants: %w", err)
	}
	constantsBytes, err := cbor.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("archive: marshal constants: %w", err)
	}

	id := ulid.MustNew(ulid.Now(), entropy).String()

	zw := zip.NewWriter(w)

	if err := writeEntry(zw, instructionsEntry, []byte(bytecode.Instructions)); err != nil {
		return "", err
	}
	if err := writeEntry(zw, constantsEntry, constantsBytes); err != nil {
		return "", err
	}
	if err := writeEntry(zw, buildIDEntry, []byte(id)); err != nil {
		return "", err
	}

	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("archive: close zip writer: %w", err)
	}
	return id, nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("archive: create entry %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("archive: write entry %s: %w", name, err)
	}
	return nil
}

// Bundle is a decoded archive: ready-to-run bytecode plus the build stamp
// it was compiled under.
type Bundle struct {
	Bytecode *compiler.Bytecode
	BuildID  string
}

// Read decodes a zip archive previously produced by Write.
func Read(r io.ReaderAt, size int64) (*Bundle, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("archive: open zip: %w", err)
	}

	instructions, err := readEntry(zr, instructionsEntry)
	if err != nil {
		return nil, err
	}
	constantsBytes, err := readEntry(zr, constantsEntry)
	if err != nil {
		return nil, err
	}
	buildIDBytes, err := readEntry(zr, buildIDEntry)
	if err != nil {
		return nil, err
	}

	var records []record
	if err := cbor.Unmarshal(constantsBytes, &records); err != nil {
		return nil, fmt.Errorf("archive: unmarshal constants: %w", err)
	}
	constants, err := decodeConstants(records)
	if err != nil {
		return nil, fmt.Errorf("archive: decode constants: %w", err)
	}

	return &Bundle{
		Bytecode: &compiler.Bytecode{
			Instructions: code.Instructions(instructions),
			Constants:    constants,
		},
		BuildID: string(buildIDBytes),
	}, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("archive: missing entry %s: %w", name, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("archive: read entry %s: %w", name, err)
	}
	return data, nil
}

func encodeConstants(constants []object.Object) ([]record, error) {
	records := make([]record, len(constants))
	for i, c := range constants {
		r, err := encodeConstant(c)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		records[i] = r
	}
	return records, nil
}

func encodeConstant(obj object.Object) (record, error) {
	switch obj := obj.(type) {
	case *object.Integer:
		return record{Kind: "int", Int: obj.Value}, nil
	case *object.Float:
		return record{Kind: "float", Float: obj.Value}, nil
	case *object.String:
		return record{Kind: "str", Str: obj.Value}, nil
	case *object.Boolean:
		return record{Kind: "bool", Bool: obj.Value}, nil
	case *object.Null:
		return record{Kind: "null"}, nil
	case *object.CompiledFunction:
		return record{Kind: "fn", Fn: &functionRecord{
			Instructions:  []byte(obj.Instructions),
			NumLocals:     obj.NumLocals,
			NumParameters: obj.NumParameters,
		}}, nil
	default:
		return record{}, fmt.Errorf("constant of type %s cannot be archived", obj.Type())
	}
}

func decodeConstants(records []record) ([]object.Object, error) {
	constants := make([]object.Object, len(records))
	for i, r := range records {
		obj, err := decodeConstant(r)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		constants[i] = obj
	}
	return constants, nil
}

func decodeConstant(r record) (object.Object, error) {
	switch r.Kind {
	case "int":
		return object.IntValue(r.Int), nil
	case "float":
		return &object.Float{Value: r.Float}, nil
	case "str":
		return &object.String{Value: r.Str}, nil
	case "bool":
		return object.NativeBool(r.Bool), nil
	case "null":
		return object.NULL, nil
	case "fn":
		if r.Fn == nil {
			return nil, fmt.Errorf("fn record missing body")
		}
		return &object.CompiledFunction{
			Instructions:  code.Instructions(r.Fn.Instructions),
			NumLocals:     r.Fn.NumLocals,
			NumParameters: r.Fn.NumParameters,
		}, nil
	default:
		return nil, fmt.Errorf("unknown constant kind %q", r.Kind)
	}
}
