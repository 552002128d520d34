// Package ggml - GGUF Decode Operations
//
// Dieses Modul enthaelt Funktionen zum Lesen von GGUF-Dateien:
// - gguf: Hauptstruktur fuer GGUF-Checkpoints
// - Decode: Deserialisierung von KV-Paaren und Tensor-Infos
// - ggufType*: Typ-Kennungen der KV-Werte im Dateiformat
package ggml

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Typ-Kennungen der KV-Werte, Reihenfolge durch das Dateiformat festgelegt
const (
	ggufTypeUint8 uint32 = iota
	ggufTypeInt8
	ggufTypeUint16
	ggufTypeInt16
	ggufTypeUint32
	ggufTypeInt32
	ggufTypeFloat32
	ggufTypeBool
	ggufTypeString
	ggufTypeArray
	ggufTypeUint64
	ggufTypeInt64
	ggufTypeFloat64
)

// gguf repraesentiert einen geladenen GGUF-Header
type gguf struct {
	ByteOrder binary.ByteOrder
	Version   uint32

	NumTensor uint64
	NumKV     uint64

	kv      KV
	tensors []*Tensor

	parameters   uint64
	tensorOffset uint64

	scratch [16 << 10]byte
}

// newGGUF erstellt eine neue gguf-Instanz
func newGGUF(byteOrder binary.ByteOrder) *gguf {
	return &gguf{
		ByteOrder: byteOrder,
		kv:        make(KV),
	}
}

// KV gibt die Key-Value Paare zurueck
func (llm *gguf) KV() KV {
	return llm.kv
}

// Tensors gibt die Tensor-Liste zurueck
func (llm *gguf) Tensors() Tensors {
	return Tensors{
		items:  llm.tensors,
		Offset: llm.tensorOffset,
	}
}

// Decode liest Version, KV-Paare und Tensor-Infos aus dem Reader
func (llm *gguf) Decode(r *countingReader) error {
	var err error
	if llm.Version, err = readGGUF[uint32](llm, r); err != nil {
		return err
	}

	// V1 hat 32-Bit-Zaehler und nullterminierte Strings
	if llm.Version < 2 {
		return fmt.Errorf("%w: gguf version %d", ErrUnsupportedFormat, llm.Version)
	}

	if llm.NumTensor, err = readGGUF[uint64](llm, r); err != nil {
		return err
	}
	if llm.NumKV, err = readGGUF[uint64](llm, r); err != nil {
		return err
	}

	// KV-Paare dekodieren
	for range llm.NumKV {
		k, err := readGGUFString(llm, r)
		if err != nil {
			return err
		}

		t, err := readGGUF[uint32](llm, r)
		if err != nil {
			return err
		}

		var v any
		switch t {
		case ggufTypeUint8:
			v, err = readGGUF[uint8](llm, r)
		case ggufTypeInt8:
			v, err = readGGUF[int8](llm, r)
		case ggufTypeUint16:
			v, err = readGGUF[uint16](llm, r)
		case ggufTypeInt16:
			v, err = readGGUF[int16](llm, r)
		case ggufTypeUint32:
			v, err = readGGUF[uint32](llm, r)
		case ggufTypeInt32:
			v, err = readGGUF[int32](llm, r)
		case ggufTypeUint64:
			v, err = readGGUF[uint64](llm, r)
		case ggufTypeInt64:
			v, err = readGGUF[int64](llm, r)
		case ggufTypeFloat32:
			v, err = readGGUF[float32](llm, r)
		case ggufTypeFloat64:
			v, err = readGGUF[float64](llm, r)
		case ggufTypeBool:
			v, err = readGGUF[bool](llm, r)
		case ggufTypeString:
			v, err = readGGUFString(llm, r)
		case ggufTypeArray:
			v, err = readGGUFArray(llm, r)
		default:
			return fmt.Errorf("invalid type: %d", t)
		}

		if err != nil {
			return err
		}
		llm.kv[k] = v
	}

	// Tensors dekodieren
	if err := llm.decodeTensors(r); err != nil {
		return err
	}

	llm.kv["general.parameter_count"] = llm.parameters

	alignment := llm.kv.Uint("general.alignment", 32)
	llm.tensorOffset = uint64(r.n + ggufPadding(r.n, int64(alignment)))
	return nil
}

// decodeTensors liest alle Tensor-Metadaten
func (llm *gguf) decodeTensors(r io.Reader) error {
	for range llm.NumTensor {
		name, err := readGGUFString(llm, r)
		if err != nil {
			return fmt.Errorf("failed to read tensor name: %w", err)
		}

		dims, err := readGGUF[uint32](llm, r)
		if err != nil {
			return fmt.Errorf("failed to read tensor dimensions: %w", err)
		}

		shape := make([]uint64, dims)
		for i := range shape {
			shape[i], err = readGGUF[uint64](llm, r)
			if err != nil {
				return fmt.Errorf("failed to read tensor shape: %w", err)
			}
		}

		kind, err := readGGUF[uint32](llm, r)
		if err != nil {
			return fmt.Errorf("failed to read tensor kind: %w", err)
		}

		offset, err := readGGUF[uint64](llm, r)
		if err != nil {
			return fmt.Errorf("failed to read tensor offset: %w", err)
		}

		tensor := Tensor{
			Name:   name,
			Kind:   kind,
			Offset: offset,
			Shape:  shape,
		}

		llm.tensors = append(llm.tensors, &tensor)
		llm.parameters += tensor.Elements()
	}
	return nil
}

// readGGUF liest einen typisierten Wert aus dem Reader
func readGGUF[T any](llm *gguf, r io.Reader) (T, error) {
	var t T
	err := binary.Read(r, llm.ByteOrder, &t)
	return t, err
}

// readGGUFString liest einen String aus dem Reader
func readGGUFString(llm *gguf, r io.Reader) (string, error) {
	buf := llm.scratch[:8]
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}

	length := int(llm.ByteOrder.Uint64(buf))
	if length > len(llm.scratch) {
		buf = make([]byte, length)
	} else {
		buf = llm.scratch[:length]
	}

	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readGGUFArray liest ein typisiertes Array als Go-Slice
func readGGUFArray(llm *gguf, r io.Reader) (any, error) {
	t, err := readGGUF[uint32](llm, r)
	if err != nil {
		return nil, err
	}

	n, err := readGGUF[uint64](llm, r)
	if err != nil {
		return nil, err
	}

	switch t {
	case ggufTypeUint8:
		return readGGUFArrayData[uint8](llm, r, n)
	case ggufTypeInt8:
		return readGGUFArrayData[int8](llm, r, n)
	case ggufTypeUint16:
		return readGGUFArrayData[uint16](llm, r, n)
	case ggufTypeInt16:
		return readGGUFArrayData[int16](llm, r, n)
	case ggufTypeUint32:
		return readGGUFArrayData[uint32](llm, r, n)
	case ggufTypeInt32:
		return readGGUFArrayData[int32](llm, r, n)
	case ggufTypeUint64:
		return readGGUFArrayData[uint64](llm, r, n)
	case ggufTypeInt64:
		return readGGUFArrayData[int64](llm, r, n)
	case ggufTypeFloat32:
		return readGGUFArrayData[float32](llm, r, n)
	case ggufTypeFloat64:
		return readGGUFArrayData[float64](llm, r, n)
	case ggufTypeBool:
		return readGGUFArrayData[bool](llm, r, n)
	case ggufTypeString:
		s := make([]string, n)
		for i := range s {
			if s[i], err = readGGUFString(llm, r); err != nil {
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("invalid array type: %d", t)
	}
}

// readGGUFArrayData liest n typisierte Array-Elemente
func readGGUFArrayData[T any](llm *gguf, r io.Reader, n uint64) ([]T, error) {
	s := make([]T, n)
	if err := binary.Read(r, llm.ByteOrder, s); err != nil {
		return nil, err
	}
	return s, nil
}
