package gguf

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

const (
	QK4_0 = 32
	QK8_0 = 32
	QK_K  = 256

	blockBytesQ4_0 = 18
	blockBytesQ8_0 = 34
	blockBytesQ4_K = 144
	blockBytesQ6_K = 210
)

// Dequantize decodes a tensor into float64 values in storage order.
func Dequantize(t *TensorInfo) ([]float64, error) {
	n := t.NumElements()
	if bs := t.Type.BlockSize(); bs > 1 && n%bs != 0 {
		return nil, fmt.Errorf("tensor %s: %d elements not a multiple of block size %d", t.Name, n, bs)
	}
	size := t.SizeBytes()
	if size == 0 {
		return nil, ErrUnsupportedType{Type: t.Type}
	}
	if uint64(len(t.Data)) < size {
		return nil, fmt.Errorf("tensor %s: have %d bytes, need %d", t.Name, len(t.Data), size)
	}
	data := t.Data[:size]
	out := make([]float64, n)

	switch t.Type {
	case GGMLTypeF32:
		for i := range out {
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
		}
	case GGMLTypeF64:
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))
		}
	case GGMLTypeF16:
		for i := range out {
			out[i] = fp16(data[2*i:])
		}
	case GGMLTypeBF16:
		for i := range out {
			out[i] = float64(math.Float32frombits(uint32(binary.LittleEndian.Uint16(data[2*i:])) << 16))
		}
	case GGMLTypeQ4_0:
		dequantQ4_0(data, out)
	case GGMLTypeQ8_0:
		dequantQ8_0(data, out)
	case GGMLTypeQ4_K:
		dequantQ4K(data, out)
	case GGMLTypeQ6_K:
		dequantQ6K(data, out)
	default:
		return nil, ErrUnsupportedType{Type: t.Type}
	}
	return out, nil
}

// Supported reports whether Dequantize can decode typ.
func Supported(typ GGMLType) bool {
	switch typ {
	case GGMLTypeF32, GGMLTypeF64, GGMLTypeF16, GGMLTypeBF16,
		GGMLTypeQ4_0, GGMLTypeQ8_0, GGMLTypeQ4_K, GGMLTypeQ6_K:
		return true
	}
	return false
}

func fp16(b []byte) float64 {
	return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
}

// Q4_0 block: d f16, qs[16]. Low nibbles hold values 0..15, high nibbles 16..31.
func dequantQ4_0(data []byte, out []float64) {
	for b := 0; b < len(out)/QK4_0; b++ {
		blk := data[b*blockBytesQ4_0:]
		d := fp16(blk)
		qs := blk[2:18]
		y := out[b*QK4_0:]
		for j := 0; j < QK4_0/2; j++ {
			y[j] = float64(int(qs[j]&0xF)-8) * d
			y[j+QK4_0/2] = float64(int(qs[j]>>4)-8) * d
		}
	}
}

// Q8_0 block: d f16, qs[32] int8.
func dequantQ8_0(data []byte, out []float64) {
	for b := 0; b < len(out)/QK8_0; b++ {
		blk := data[b*blockBytesQ8_0:]
		d := fp16(blk)
		y := out[b*QK8_0:]
		for j := 0; j < QK8_0; j++ {
			y[j] = float64(int8(blk[2+j])) * d
		}
	}
}

// scaleMinK4 unpacks the j-th 6-bit scale and min of a Q4_K block.
func scaleMinK4(j int, q []byte) (sc, m uint8) {
	if j < 4 {
		return q[j] & 63, q[j+4] & 63
	}
	sc = (q[j+4] & 0xF) | ((q[j-4] >> 6) << 4)
	m = (q[j+4] >> 4) | ((q[j] >> 6) << 4)
	return sc, m
}

// Q4_K block: d f16, dmin f16, scales[12], qs[128]. Each 64-value chunk uses
// the low nibbles of 32 bytes with one scale pair, then the high nibbles with
// the next.
func dequantQ4K(data []byte, out []float64) {
	for b := 0; b < len(out)/QK_K; b++ {
		blk := data[b*blockBytesQ4_K:]
		d := fp16(blk[0:])
		dmin := fp16(blk[2:])
		scales := blk[4:16]
		q := blk[16:144]
		y := out[b*QK_K:]

		is := 0
		for j := 0; j < QK_K; j += 64 {
			sc, m := scaleMinK4(is, scales)
			d1, m1 := d*float64(sc), dmin*float64(m)
			sc, m = scaleMinK4(is+1, scales)
			d2, m2 := d*float64(sc), dmin*float64(m)
			for l := 0; l < 32; l++ {
				y[j+l] = d1*float64(q[l]&0xF) - m1
			}
			for l := 0; l < 32; l++ {
				y[j+32+l] = d2*float64(q[l]>>4) - m2
			}
			q = q[32:]
			is += 2
		}
	}
}

// Q6_K block: ql[128], qh[64], scales[16] int8, d f16. Values are 6-bit,
// split into 4 low bits in ql and 2 high bits in qh, offset by 32.
func dequantQ6K(data []byte, out []float64) {
	for b := 0; b < len(out)/QK_K; b++ {
		blk := data[b*blockBytesQ6_K:]
		ql := blk[0:128]
		qh := blk[128:192]
		sc := blk[192:208]
		d := fp16(blk[208:])
		y := out[b*QK_K:]

		for n := 0; n < QK_K; n += 128 {
			for l := 0; l < 32; l++ {
				is := l / 16
				q1 := int(ql[l]&0xF|((qh[l]>>0)&3)<<4) - 32
				q2 := int(ql[l+32]&0xF|((qh[l]>>2)&3)<<4) - 32
				q3 := int(ql[l]>>4|((qh[l]>>4)&3)<<4) - 32
				q4 := int(ql[l+32]>>4|((qh[l]>>6)&3)<<4) - 32
				y[n+l] = d * float64(int8(sc[is])) * float64(q1)
				y[n+l+32] = d * float64(int8(sc[is+2])) * float64(q2)
				y[n+l+64] = d * float64(int8(sc[is+4])) * float64(q3)
				y[n+l+96] = d * float64(int8(sc[is+6])) * float64(q4)
			}
			ql = ql[64:]
			qh = qh[32:]
			sc = sc[8:]
		}
	}
}
