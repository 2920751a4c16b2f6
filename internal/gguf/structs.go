package gguf

import "fmt"

const (
	GGUFMagic   = 0x46554747 // "GGUF"
	GGUFVersion = 3

	DefaultAlignment = 32
)

type GGMLType uint32

const (
	GGMLTypeF32  GGMLType = 0
	GGMLTypeF16  GGMLType = 1
	GGMLTypeQ4_0 GGMLType = 2
	GGMLTypeQ4_1 GGMLType = 3
	GGMLTypeQ5_0 GGMLType = 6
	GGMLTypeQ5_1 GGMLType = 7
	GGMLTypeQ8_0 GGMLType = 8
	GGMLTypeQ8_1 GGMLType = 9
	GGMLTypeQ2_K GGMLType = 10
	GGMLTypeQ3_K GGMLType = 11
	GGMLTypeQ4_K GGMLType = 12
	GGMLTypeQ5_K GGMLType = 13
	GGMLTypeQ6_K GGMLType = 14
	GGMLTypeQ8_K GGMLType = 15
	GGMLTypeI8   GGMLType = 24
	GGMLTypeI16  GGMLType = 25
	GGMLTypeI32  GGMLType = 26
	GGMLTypeI64  GGMLType = 27
	GGMLTypeF64  GGMLType = 28
	GGMLTypeBF16 GGMLType = 30
)

// blockLayout is (values per block, bytes per block).
var blockLayout = map[GGMLType][2]uint64{
	GGMLTypeF32:  {1, 4},
	GGMLTypeF16:  {1, 2},
	GGMLTypeQ4_0: {32, 18},
	GGMLTypeQ4_1: {32, 20},
	GGMLTypeQ5_0: {32, 22},
	GGMLTypeQ5_1: {32, 24},
	GGMLTypeQ8_0: {32, 34},
	GGMLTypeQ8_1: {32, 36},
	GGMLTypeQ2_K: {256, 84},
	GGMLTypeQ3_K: {256, 110},
	GGMLTypeQ4_K: {256, 144},
	GGMLTypeQ5_K: {256, 176},
	GGMLTypeQ6_K: {256, 210},
	GGMLTypeQ8_K: {256, 292},
	GGMLTypeI8:   {1, 1},
	GGMLTypeI16:  {1, 2},
	GGMLTypeI32:  {1, 4},
	GGMLTypeI64:  {1, 8},
	GGMLTypeF64:  {1, 8},
	GGMLTypeBF16: {1, 2},
}

// BlockSize returns the number of values per quantization block, or 0 for
// an unknown type.
func (t GGMLType) BlockSize() uint64 {
	return blockLayout[t][0]
}

func (t GGMLType) String() string {
	switch t {
	case GGMLTypeF32:
		return "F32"
	case GGMLTypeF16:
		return "F16"
	case GGMLTypeQ4_0:
		return "Q4_0"
	case GGMLTypeQ4_1:
		return "Q4_1"
	case GGMLTypeQ5_0:
		return "Q5_0"
	case GGMLTypeQ5_1:
		return "Q5_1"
	case GGMLTypeQ8_0:
		return "Q8_0"
	case GGMLTypeQ8_1:
		return "Q8_1"
	case GGMLTypeQ2_K:
		return "Q2_K"
	case GGMLTypeQ3_K:
		return "Q3_K"
	case GGMLTypeQ4_K:
		return "Q4_K"
	case GGMLTypeQ5_K:
		return "Q5_K"
	case GGMLTypeQ6_K:
		return "Q6_K"
	case GGMLTypeQ8_K:
		return "Q8_K"
	case GGMLTypeI8:
		return "I8"
	case GGMLTypeI16:
		return "I16"
	case GGMLTypeI32:
		return "I32"
	case GGMLTypeI64:
		return "I64"
	case GGMLTypeF64:
		return "F64"
	case GGMLTypeBF16:
		return "BF16"
	default:
		return fmt.Sprintf("UNKNOWN_TYPE_%d", t)
	}
}

type GGUFMetadataValueType uint32

const (
	GGUFMetadataValueTypeUint8   GGUFMetadataValueType = 0
	GGUFMetadataValueTypeInt8    GGUFMetadataValueType = 1
	GGUFMetadataValueTypeUint16  GGUFMetadataValueType = 2
	GGUFMetadataValueTypeInt16   GGUFMetadataValueType = 3
	GGUFMetadataValueTypeUint32  GGUFMetadataValueType = 4
	GGUFMetadataValueTypeInt32   GGUFMetadataValueType = 5
	GGUFMetadataValueTypeFloat32 GGUFMetadataValueType = 6
	GGUFMetadataValueTypeBool    GGUFMetadataValueType = 7
	GGUFMetadataValueTypeString  GGUFMetadataValueType = 8
	GGUFMetadataValueTypeArray   GGUFMetadataValueType = 9
	GGUFMetadataValueTypeUint64  GGUFMetadataValueType = 10
	GGUFMetadataValueTypeInt64   GGUFMetadataValueType = 11
	GGUFMetadataValueTypeFloat64 GGUFMetadataValueType = 12
)

type TensorInfo struct {
	Name       string
	Dimensions []uint64 // ne, fastest-varying first
	Type       GGMLType
	Offset     uint64 // relative to the start of the data section
	Data       []byte // exactly SizeBytes() long once parsed
}

func (t *TensorInfo) NumElements() uint64 {
	n := uint64(1)
	for _, d := range t.Dimensions {
		n *= d
	}
	return n
}

// SizeBytes returns the encoded size, or 0 for an unknown type.
func (t *TensorInfo) SizeBytes() uint64 {
	l, ok := blockLayout[t.Type]
	if !ok {
		return 0
	}
	return t.NumElements() / l[0] * l[1]
}

// Shape returns the dimensions in row-major order (slowest-varying first).
func (t *TensorInfo) Shape() []int {
	shape := make([]int, len(t.Dimensions))
	for i, d := range t.Dimensions {
		shape[len(shape)-1-i] = int(d)
	}
	return shape
}

type File struct {
	Header     GGUFHeader
	KV         map[string]interface{}
	Tensors    []*TensorInfo
	Data       []byte
	DataOffset uint64
	Alignment  uint64

	mapped bool
}

type GGUFHeader struct {
	Magic       uint32
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// Tensor looks a tensor up by name.
func (f *File) Tensor(name string) (*TensorInfo, bool) {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Error types
type ErrInvalidMagic struct{ Magic uint32 }

func (e ErrInvalidMagic) Error() string {
	return fmt.Sprintf("invalid GGUF magic: %x", e.Magic)
}

type ErrUnsupportedVersion struct{ Version uint32 }

func (e ErrUnsupportedVersion) Error() string {
	return fmt.Sprintf("unsupported GGUF version: %d", e.Version)
}

type ErrUnsupportedType struct{ Type GGMLType }

func (e ErrUnsupportedType) Error() string {
	return fmt.Sprintf("unsupported tensor type: %s", e.Type)
}
