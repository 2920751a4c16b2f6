package gguf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/x448/float16"
)

type kvEntry struct {
	key string
	val interface{}
}

type tensorEntry struct {
	name string
	ne   []uint64
	typ  GGMLType
	raw  []byte
}

// Writer builds GGUF v3 files. Metadata and tensors are written in the order
// they were added.
type Writer struct {
	kv        []kvEntry
	tensors   []tensorEntry
	alignment uint64
}

func NewWriter() *Writer {
	return &Writer{alignment: DefaultAlignment}
}

// AddKV records a metadata value. Supported Go types are string, bool,
// uint8, int8, uint16, int16, uint32, int32, float32, uint64, int64, float64
// and []string.
func (w *Writer) AddKV(key string, val interface{}) error {
	if _, err := valueType(val); err != nil {
		return fmt.Errorf("kv %q: %w", key, err)
	}
	if key == "general.alignment" {
		a, ok := val.(uint32)
		if !ok || a == 0 || a&(a-1) != 0 {
			return fmt.Errorf("general.alignment must be a power-of-two uint32")
		}
		w.alignment = uint64(a)
	}
	w.kv = append(w.kv, kvEntry{key: key, val: val})
	return nil
}

// AddTensor encodes row-major values with the given shape (slowest-varying
// first) as F32, F16 or Q8_0.
func (w *Writer) AddTensor(name string, shape []int, typ GGMLType, values []float32) error {
	ne := make([]uint64, len(shape))
	n := 1
	for i, d := range shape {
		if d <= 0 {
			return fmt.Errorf("tensor %s: non-positive dimension %d", name, d)
		}
		ne[len(shape)-1-i] = uint64(d)
		n *= d
	}
	if n != len(values) {
		return fmt.Errorf("tensor %s: %d values for shape %v", name, len(values), shape)
	}

	var raw []byte
	switch typ {
	case GGMLTypeF32:
		raw = make([]byte, 4*n)
		for i, v := range values {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
		}
	case GGMLTypeF16:
		raw = make([]byte, 2*n)
		for i, v := range values {
			binary.LittleEndian.PutUint16(raw[2*i:], float16.Fromfloat32(v).Bits())
		}
	case GGMLTypeQ8_0:
		if n%QK8_0 != 0 {
			return fmt.Errorf("tensor %s: Q8_0 needs a multiple of %d values", name, QK8_0)
		}
		raw = quantizeQ8_0(values)
	default:
		return ErrUnsupportedType{Type: typ}
	}
	return w.AddRawTensor(name, ne, typ, raw)
}

// AddRawTensor adds pre-encoded data. ne is in GGUF order (fastest-varying
// first).
func (w *Writer) AddRawTensor(name string, ne []uint64, typ GGMLType, raw []byte) error {
	t := TensorInfo{Name: name, Dimensions: ne, Type: typ}
	if size := t.SizeBytes(); size != 0 && size != uint64(len(raw)) {
		return fmt.Errorf("tensor %s: %d bytes, %s shape %v needs %d", name, len(raw), typ, ne, size)
	}
	w.tensors = append(w.tensors, tensorEntry{name: name, ne: ne, typ: typ, raw: raw})
	return nil
}

func quantizeQ8_0(values []float32) []byte {
	out := make([]byte, 0, len(values)/QK8_0*blockBytesQ8_0)
	for b := 0; b < len(values); b += QK8_0 {
		blk := values[b : b+QK8_0]
		var amax float32
		for _, v := range blk {
			amax = max(amax, float32(math.Abs(float64(v))))
		}
		d := amax / 127
		id := float32(0)
		if d != 0 {
			id = 1 / d
		}
		out = binary.LittleEndian.AppendUint16(out, float16.Fromfloat32(d).Bits())
		for _, v := range blk {
			out = append(out, byte(int8(math.Round(float64(v*id)))))
		}
	}
	return out
}

func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	var buf bytes.Buffer
	le := binary.LittleEndian

	_ = binary.Write(&buf, le, uint32(GGUFMagic))
	_ = binary.Write(&buf, le, uint32(GGUFVersion))
	_ = binary.Write(&buf, le, uint64(len(w.tensors)))
	_ = binary.Write(&buf, le, uint64(len(w.kv)))

	for _, e := range w.kv {
		writeString(&buf, e.key)
		typ, _ := valueType(e.val)
		_ = binary.Write(&buf, le, uint32(typ))
		writeValue(&buf, e.val)
	}

	var offset uint64
	offsets := make([]uint64, len(w.tensors))
	for i, t := range w.tensors {
		offsets[i] = offset
		offset = align(offset+uint64(len(t.raw)), w.alignment)
	}
	for i, t := range w.tensors {
		writeString(&buf, t.name)
		_ = binary.Write(&buf, le, uint32(len(t.ne)))
		for _, d := range t.ne {
			_ = binary.Write(&buf, le, d)
		}
		_ = binary.Write(&buf, le, uint32(t.typ))
		_ = binary.Write(&buf, le, offsets[i])
	}

	buf.Write(make([]byte, align(uint64(buf.Len()), w.alignment)-uint64(buf.Len())))
	for _, t := range w.tensors {
		buf.Write(t.raw)
		buf.Write(make([]byte, align(uint64(len(t.raw)), w.alignment)-uint64(len(t.raw))))
	}

	return buf.WriteTo(out)
}

// Bytes returns the encoded file.
func (w *Writer) Bytes() []byte {
	var buf bytes.Buffer
	_, _ = w.WriteTo(&buf)
	return buf.Bytes()
}

func (w *Writer) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if _, err := w.WriteTo(bw); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func align(n, a uint64) uint64 {
	if r := n % a; r != 0 {
		return n + a - r
	}
	return n
}

func valueType(v interface{}) (GGUFMetadataValueType, error) {
	switch v.(type) {
	case uint8:
		return GGUFMetadataValueTypeUint8, nil
	case int8:
		return GGUFMetadataValueTypeInt8, nil
	case uint16:
		return GGUFMetadataValueTypeUint16, nil
	case int16:
		return GGUFMetadataValueTypeInt16, nil
	case uint32:
		return GGUFMetadataValueTypeUint32, nil
	case int32:
		return GGUFMetadataValueTypeInt32, nil
	case float32:
		return GGUFMetadataValueTypeFloat32, nil
	case bool:
		return GGUFMetadataValueTypeBool, nil
	case string:
		return GGUFMetadataValueTypeString, nil
	case uint64:
		return GGUFMetadataValueTypeUint64, nil
	case int64:
		return GGUFMetadataValueTypeInt64, nil
	case float64:
		return GGUFMetadataValueTypeFloat64, nil
	case []string:
		return GGUFMetadataValueTypeArray, nil
	default:
		return 0, fmt.Errorf("unsupported metadata value %T", v)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	_ = binary.Write(buf, binary.LittleEndian, uint64(len(s)))
	buf.WriteString(s)
}

func writeValue(buf *bytes.Buffer, v interface{}) {
	switch x := v.(type) {
	case string:
		writeString(buf, x)
	case bool:
		var b uint8
		if x {
			b = 1
		}
		buf.WriteByte(b)
	case []string:
		_ = binary.Write(buf, binary.LittleEndian, uint32(GGUFMetadataValueTypeString))
		_ = binary.Write(buf, binary.LittleEndian, uint64(len(x)))
		for _, s := range x {
			writeString(buf, s)
		}
	default:
		_ = binary.Write(buf, binary.LittleEndian, x)
	}
}
