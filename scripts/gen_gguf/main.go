// gen_gguf writes a small synthetic GGUF model for trying the analyzer
// without downloading weights. Heavy-tailed layers (Student-t entries with
// few degrees of freedom) produce lower alphas than Gaussian ones.
package main

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/23skdu/longbow-weightwatcher/internal/gguf"
	"github.com/spf13/cobra"
)

type genOptions struct {
	out    string
	blocks int
	dim    int
	ffn    int
	typ    string
	seed   int64
	nu     int
}

func main() {
	var o genOptions
	cmd := &cobra.Command{
		Use:   "gen_gguf",
		Short: "Write a synthetic GGUF model",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := generate(o); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", o.out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.out, "out", "synthetic.gguf", "output file")
	f.IntVar(&o.blocks, "blocks", 2, "transformer blocks")
	f.IntVar(&o.dim, "dim", 128, "embedding width")
	f.IntVar(&o.ffn, "ffn", 256, "feed-forward width")
	f.StringVar(&o.typ, "type", "F16", "tensor type (F32, F16, Q8_0)")
	f.Int64Var(&o.seed, "seed", 1, "random seed")
	f.IntVar(&o.nu, "nu", 0, "Student-t degrees of freedom for the ffn weights (0 means Gaussian)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func generate(o genOptions) error {
	var typ gguf.GGMLType
	switch o.typ {
	case "F32":
		typ = gguf.GGMLTypeF32
	case "F16":
		typ = gguf.GGMLTypeF16
	case "Q8_0":
		typ = gguf.GGMLTypeQ8_0
	default:
		return fmt.Errorf("unsupported type %q", o.typ)
	}

	rng := rand.New(rand.NewSource(o.seed))
	scale := 1 / math.Sqrt(float64(o.dim))

	w := gguf.NewWriter()
	kvs := []struct {
		key string
		val interface{}
	}{
		{"general.architecture", "llama"},
		{"general.name", "synthetic"},
		{"llama.block_count", uint32(o.blocks)},
		{"llama.embedding_length", uint32(o.dim)},
		{"llama.feed_forward_length", uint32(o.ffn)},
		{"llama.context_length", uint32(2048)},
	}
	for _, kv := range kvs {
		if err := w.AddKV(kv.key, kv.val); err != nil {
			return err
		}
	}

	add := func(name string, shape []int, values []float32) error {
		return w.AddTensor(name, shape, typ, values)
	}
	if err := add("token_embd.weight", []int{4 * o.dim, o.dim}, gaussian(rng, 4*o.dim*o.dim, scale)); err != nil {
		return err
	}
	for b := 0; b < o.blocks; b++ {
		p := fmt.Sprintf("blk.%d.", b)
		if err := w.AddTensor(p+"attn_norm.weight", []int{o.dim}, gguf.GGMLTypeF32, ones(o.dim)); err != nil {
			return err
		}
		for _, name := range []string{"attn_q", "attn_k", "attn_v", "attn_output"} {
			if err := add(p+name+".weight", []int{o.dim, o.dim}, gaussian(rng, o.dim*o.dim, scale)); err != nil {
				return err
			}
		}
		if err := add(p+"ffn_up.weight", []int{o.ffn, o.dim}, ffnValues(rng, o.ffn*o.dim, scale, o.nu)); err != nil {
			return err
		}
		if err := add(p+"ffn_down.weight", []int{o.dim, o.ffn}, ffnValues(rng, o.ffn*o.dim, scale, o.nu)); err != nil {
			return err
		}
	}
	return w.WriteFile(o.out)
}

func gaussian(rng *rand.Rand, n int, scale float64) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = float32(rng.NormFloat64() * scale)
	}
	return v
}

func ffnValues(rng *rand.Rand, n int, scale float64, nu int) []float32 {
	if nu <= 0 {
		return gaussian(rng, n, scale)
	}
	v := make([]float32, n)
	for i := range v {
		var chi2 float64
		for k := 0; k < nu; k++ {
			z := rng.NormFloat64()
			chi2 += z * z
		}
		v[i] = float32(rng.NormFloat64() / math.Sqrt(chi2/float64(nu)) * scale)
	}
	return v
}

func ones(n int) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
