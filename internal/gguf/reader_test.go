package gguf

import (
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleWriter(t *testing.T) *Writer {
	t.Helper()
	w := NewWriter()
	require.NoError(t, w.AddKV("general.architecture", "llama"))
	require.NoError(t, w.AddKV("general.name", "tiny"))
	require.NoError(t, w.AddKV("llama.block_count", uint32(1)))
	require.NoError(t, w.AddKV("llama.context_length", uint64(2048)))
	require.NoError(t, w.AddKV("llama.rope.freq_base", float32(10000)))
	require.NoError(t, w.AddKV("tokenizer.ggml.tokens", []string{"<s>", "</s>", "a"}))
	require.NoError(t, w.AddKV("general.quantized", true))

	vals := make([]float32, 6)
	for i := range vals {
		vals[i] = float32(i) - 2.5
	}
	require.NoError(t, w.AddTensor("blk.0.attn_q.weight", []int{2, 3}, GGMLTypeF32, vals))
	require.NoError(t, w.AddTensor("output_norm.weight", []int{3}, GGMLTypeF16, []float32{1, 0.5, -2}))
	return w
}

func TestParseRoundTrip(t *testing.T) {
	f, err := Parse(sampleWriter(t).Bytes())
	require.NoError(t, err)

	assert.Equal(t, uint32(GGUFVersion), f.Header.Version)
	assert.Equal(t, uint64(2), f.Header.TensorCount)
	assert.Equal(t, uint64(7), f.Header.KVCount)
	assert.Equal(t, "llama", f.KV["general.architecture"])
	assert.Equal(t, uint32(1), f.KV["llama.block_count"])
	assert.Equal(t, uint64(2048), f.KV["llama.context_length"])
	assert.Equal(t, float32(10000), f.KV["llama.rope.freq_base"])
	assert.Equal(t, true, f.KV["general.quantized"])
	assert.Equal(t, []interface{}{"<s>", "</s>", "a"}, f.KV["tokenizer.ggml.tokens"])
	assert.Equal(t, uint64(0), f.DataOffset%f.Alignment)

	q, ok := f.Tensor("blk.0.attn_q.weight")
	require.True(t, ok)
	assert.Equal(t, []uint64{3, 2}, q.Dimensions)
	assert.Equal(t, []int{2, 3}, q.Shape())
	assert.Len(t, q.Data, 24)

	vals, err := Dequantize(q)
	require.NoError(t, err)
	assert.Equal(t, []float64{-2.5, -1.5, -0.5, 0.5, 1.5, 2.5}, vals)

	norm, ok := f.Tensor("output_norm.weight")
	require.True(t, ok)
	vals, err = Dequantize(norm)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0.5, -2}, vals)

	_, ok = f.Tensor("missing")
	assert.False(t, ok)
	assert.NoError(t, f.Close())
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.gguf")
	require.NoError(t, sampleWriter(t).WriteFile(path))

	f, err := Open(path)
	require.NoError(t, err)
	assert.Len(t, f.Tensors, 2)
	require.NoError(t, f.Close())
	assert.NoError(t, f.Close(), "second close is a no-op")

	_, err = Open(filepath.Join(t.TempDir(), "missing.gguf"))
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	good := sampleWriter(t).Bytes()

	badMagic := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(badMagic, 0xdeadbeef)
	_, err := Parse(badMagic)
	var magicErr ErrInvalidMagic
	assert.True(t, errors.As(err, &magicErr))

	badVersion := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(badVersion[4:], 9)
	_, err = Parse(badVersion)
	var versionErr ErrUnsupportedVersion
	assert.True(t, errors.As(err, &versionErr))

	_, err = Parse(good[:10])
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = Parse(good[:60])
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	// cut into the tensor data
	_, err = Parse(good[:len(good)-40])
	assert.Error(t, err)
}

func TestCustomAlignment(t *testing.T) {
	w := NewWriter()
	require.NoError(t, w.AddKV("general.alignment", uint32(64)))
	require.NoError(t, w.AddTensor("a.weight", []int{1, 3}, GGMLTypeF32, []float32{1, 2, 3}))
	require.NoError(t, w.AddTensor("b.weight", []int{1, 2}, GGMLTypeF32, []float32{4, 5}))

	f, err := Parse(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(64), f.Alignment)
	assert.Equal(t, uint64(0), f.DataOffset%64)
	assert.Equal(t, uint64(64), f.Tensors[1].Offset)

	b, err := Dequantize(f.Tensors[1])
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5}, b)

	assert.Error(t, w.AddKV("general.alignment", uint32(48)))
}

func TestWriterRejects(t *testing.T) {
	w := NewWriter()
	assert.Error(t, w.AddKV("bad", struct{}{}))
	assert.Error(t, w.AddTensor("x", []int{2, 2}, GGMLTypeF32, []float32{1}))
	assert.Error(t, w.AddTensor("x", []int{0, 2}, GGMLTypeF32, nil))
	assert.Error(t, w.AddTensor("x", []int{1, 5}, GGMLTypeQ8_0, make([]float32, 5)))
	assert.Error(t, w.AddRawTensor("x", []uint64{256}, GGMLTypeQ4_K, make([]byte, 10)))

	var unsupported ErrUnsupportedType
	assert.True(t, errors.As(w.AddTensor("x", []int{32}, GGMLTypeQ4_K, make([]float32, 32)), &unsupported))
}
