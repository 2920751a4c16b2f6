package gguf

import (
	"fmt"
	"sort"
	"strings"
)

// ModelInfo summarizes a GGUF file for display.
type ModelInfo struct {
	Architecture    string
	Name            string
	Version         uint32
	Alignment       uint64
	BlockCount      int
	ContextLength   int
	EmbeddingLength int
	TensorCount     int
	Parameters      int64
	Bytes           int64
	// TypeCounts maps tensor type names to how many tensors use them.
	TypeCounts map[string]int
	// Unsupported lists tensors Dequantize cannot decode.
	Unsupported []string
}

func Describe(f *File) ModelInfo {
	info := ModelInfo{
		Version:     f.Header.Version,
		Alignment:   f.Alignment,
		TensorCount: len(f.Tensors),
		TypeCounts:  make(map[string]int),
	}
	info.Architecture, _ = f.KV["general.architecture"].(string)
	info.Name, _ = f.KV["general.name"].(string)

	arch := info.Architecture
	info.BlockCount = int(getKVInt(f.KV, arch+".block_count"))
	info.ContextLength = int(getKVInt(f.KV, arch+".context_length", "general.context_length"))
	info.EmbeddingLength = int(getKVInt(f.KV, arch+".embedding_length", arch+".hidden_size"))

	for _, t := range f.Tensors {
		info.Parameters += int64(t.NumElements())
		info.Bytes += int64(t.SizeBytes())
		info.TypeCounts[t.Type.String()]++
		if !Supported(t.Type) {
			info.Unsupported = append(info.Unsupported, t.Name)
		}
	}
	return info
}

// TypeSummary renders TypeCounts as "F16:12 Q4_K:40" sorted by type name.
func (m ModelInfo) TypeSummary() string {
	names := make([]string, 0, len(m.TypeCounts))
	for n := range m.TypeCounts {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s:%d", n, m.TypeCounts[n])
	}
	return strings.Join(parts, " ")
}

func getKVInt(kv map[string]interface{}, keys ...string) uint64 {
	for _, key := range keys {
		if val, ok := kv[key]; ok {
			switch v := val.(type) {
			case uint64:
				return v
			case int64:
				return uint64(v)
			case uint32:
				return uint64(v)
			case int32:
				return uint64(v)
			case uint16:
				return uint64(v)
			case uint8:
				return uint64(v)
			case int:
				return uint64(v)
			}
		}
	}
	return 0
}
