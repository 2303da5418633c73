// Package cache wraps expensive preprocessing stages with a
// content-addressed compute-or-load cycle: a stage declares the attributes
// it derives and the configuration values that fingerprint them, and
// repeated construction against an unchanged backing store loads instead of
// recomputing.
package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/adalundhe/sentgraph/core/neural"
)

var (
	// ErrUnknownStorageKind indicates a declared attribute kind outside the
	// supported set. Fatal: the stage's declaration is wrong.
	ErrUnknownStorageKind = errors.New("unknown storage kind")

	// ErrMissingAttribute indicates Process returned without binding every
	// declared attribute, or an attribute was declared without a valid
	// target. Fatal: no partial cache is ever written.
	ErrMissingAttribute = errors.New("missing attribute")
)

// Kind names one serialization strategy. The set is closed: adding a kind
// means adding a serializer implementation, not a string branch.
type Kind string

const (
	// KindTensor is the native binary format for *neural.Matrix values.
	KindTensor Kind = "tensor"

	// KindObject is gob encoding for arbitrary Go values.
	KindObject Kind = "object"

	// KindRecord is JSON, for structured records meant to stay readable
	// during manual cache inspection.
	KindRecord Kind = "record"
)

// serializerFor returns the strategy for a kind.
func serializerFor(kind Kind) (serializer, error) {
	switch kind {
	case KindTensor:
		return tensorSerializer{}, nil
	case KindObject:
		return objectSerializer{}, nil
	case KindRecord:
		return recordSerializer{}, nil
	default:
		return nil, fmt.Errorf("cache: kind %q: %w", kind, ErrUnknownStorageKind)
	}
}

// serializer encodes the value a declared attribute pointer refers to, and
// decodes a blob back into it.
type serializer interface {
	encode(value any) ([]byte, error)
	decode(blob []byte, into any) error
}

type objectSerializer struct{}

func (objectSerializer) encode(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return nil, fmt.Errorf("cache: gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (objectSerializer) decode(blob []byte, into any) error {
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(into); err != nil {
		return fmt.Errorf("cache: gob decode: %w", err)
	}
	return nil
}

type recordSerializer struct{}

func (recordSerializer) encode(value any) ([]byte, error) {
	blob, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("cache: json encode: %w", err)
	}
	return blob, nil
}

func (recordSerializer) decode(blob []byte, into any) error {
	if err := json.Unmarshal(blob, into); err != nil {
		return fmt.Errorf("cache: json decode: %w", err)
	}
	return nil
}

// tensorSerializer writes matrices as a little-endian header (rows, cols)
// followed by the flat float32 data.
type tensorSerializer struct{}

func (tensorSerializer) encode(value any) ([]byte, error) {
	ptr, ok := value.(**neural.Matrix)
	if !ok || *ptr == nil {
		return nil, fmt.Errorf("cache: tensor kind needs a bound **neural.Matrix, got %T: %w",
			value, ErrMissingAttribute)
	}
	m := *ptr

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, int64(m.Rows)); err != nil {
		return nil, fmt.Errorf("cache: tensor encode: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, int64(m.Cols)); err != nil {
		return nil, fmt.Errorf("cache: tensor encode: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, m.Data); err != nil {
		return nil, fmt.Errorf("cache: tensor encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (tensorSerializer) decode(blob []byte, into any) error {
	ptr, ok := into.(**neural.Matrix)
	if !ok {
		return fmt.Errorf("cache: tensor kind needs a **neural.Matrix target, got %T: %w",
			into, ErrMissingAttribute)
	}

	r := bytes.NewReader(blob)
	var rows, cols int64
	if err := binary.Read(r, binary.LittleEndian, &rows); err != nil {
		return fmt.Errorf("cache: tensor decode: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cols); err != nil {
		return fmt.Errorf("cache: tensor decode: %w", err)
	}
	if rows < 0 || cols < 0 || int64(len(blob)) != 16+rows*cols*4 {
		return fmt.Errorf("cache: tensor decode: blob of %d bytes does not hold %dx%d", len(blob), rows, cols)
	}

	m := neural.NewMatrix(int(rows), int(cols))
	if err := binary.Read(r, binary.LittleEndian, m.Data); err != nil {
		return fmt.Errorf("cache: tensor decode: %w", err)
	}
	*ptr = m
	return nil
}
