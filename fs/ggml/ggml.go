// Package ggml - GGUF-Checkpoints
//
// Dieses Modul definiert die Kernstrukturen:
// - GGML: Geladener Checkpoint (KV + Tensor-Infos + Reader fuer Tensordaten)
// - Decode: Laedt Header, KV und Tensor-Infos aus einem Reader
// - ReadFloats: Liest die Daten eines Tensors als float32
// - Magic Constants: File-Format Erkennung
package ggml

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// GGML repraesentiert einen geladenen GGUF-Checkpoint
type GGML struct {
	*gguf
	rs io.ReadSeeker

	Length int64
}

// Magic Constants fuer GGUF
const (
	// FILE_MAGIC_GGUF_LE fuer GGUF Little-Endian
	FILE_MAGIC_GGUF_LE = 0x46554747
	// FILE_MAGIC_GGUF_BE fuer GGUF Big-Endian
	FILE_MAGIC_GGUF_BE = 0x47475546
)

// ErrUnsupportedFormat wird zurueckgegeben wenn das Format nicht unterstuetzt wird
var ErrUnsupportedFormat = errors.New("ggml: unsupported file format")

// DetectContentType erkennt das Format anhand der Magic-Bytes
func DetectContentType(b []byte) string {
	if len(b) < 4 {
		return ""
	}

	switch binary.LittleEndian.Uint32(b[:4]) {
	case FILE_MAGIC_GGUF_LE, FILE_MAGIC_GGUF_BE:
		return "gguf"
	default:
		return ""
	}
}

// Decode dekodiert Header, KV und Tensor-Infos aus dem Reader.
// Tensordaten werden erst bei ReadFloats gelesen, rs muss bis dahin offen bleiben.
func Decode(rs io.ReadSeeker) (*GGML, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(rs, 32<<10)

	var magic uint32
	if err := binary.Read(br, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}

	var byteOrder binary.ByteOrder
	switch magic {
	case FILE_MAGIC_GGUF_LE:
		byteOrder = binary.LittleEndian
	case FILE_MAGIC_GGUF_BE:
		byteOrder = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: invalid file magic %#x", ErrUnsupportedFormat, magic)
	}

	llm := newGGUF(byteOrder)
	cr := &countingReader{r: br, n: 4}
	if err := llm.Decode(cr); err != nil {
		return nil, err
	}

	return &GGML{gguf: llm, rs: rs, Length: cr.n}, nil
}

// ReadFloats liest die Daten eines Tensors und konvertiert sie nach float32
func (g *GGML) ReadFloats(t *Tensor) ([]float32, error) {
	if _, err := g.rs.Seek(int64(g.tensorOffset+t.Offset), io.SeekStart); err != nil {
		return nil, err
	}

	b := make([]byte, t.Size())
	if _, err := io.ReadFull(g.rs, b); err != nil {
		return nil, fmt.Errorf("failed to read tensor %q: %w", t.Name, err)
	}

	return DecodeFloats(TensorType(t.Kind), g.ByteOrder, b)
}

// countingReader zaehlt gelesene Bytes fuer die Offset-Berechnung
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
