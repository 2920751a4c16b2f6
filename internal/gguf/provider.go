package gguf

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/23skdu/longbow-weightwatcher/internal/logger"
	"github.com/23skdu/longbow-weightwatcher/internal/watcher"
)

// Provider yields the tensors of a GGUF file as layers, in file order. Weights
// are decoded lazily through LayerDescriptor.Load, so peak memory is bounded by
// the layers being analyzed at once rather than the whole model.
type Provider struct {
	file    *File
	pattern string
	types   watcher.LayerTypeSet
	log     *logger.Logger
}

type ProviderOption func(*Provider)

// WithTensorFilter keeps only tensors whose name matches a path.Match glob.
func WithTensorFilter(glob string) ProviderOption {
	return func(p *Provider) { p.pattern = glob }
}

// WithLayerTypes yields tensors whose layer type is outside set without a
// loader, so they are never decoded.
func WithLayerTypes(set watcher.LayerTypeSet) ProviderOption {
	return func(p *Provider) { p.types = set }
}

func WithLogger(l *logger.Logger) ProviderOption {
	return func(p *Provider) { p.log = l }
}

func NewProvider(f *File, opts ...ProviderOption) (*Provider, error) {
	p := &Provider{file: f, log: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.pattern != "" {
		if _, err := path.Match(p.pattern, ""); err != nil {
			return nil, fmt.Errorf("tensor filter %q: %w", p.pattern, err)
		}
	}
	return p, nil
}

func (p *Provider) Layers(ctx context.Context) ([]watcher.LayerDescriptor, error) {
	var descs []watcher.LayerDescriptor
	for _, t := range p.file.Tensors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.pattern != "" {
			if ok, _ := path.Match(p.pattern, t.Name); !ok {
				continue
			}
		}

		typ, shape := Classify(t)
		desc := watcher.LayerDescriptor{ID: len(descs), Name: t.Name, Type: typ}
		if p.types.Has(typ) {
			desc.Load = p.loader(t, shape)
		}
		descs = append(descs, desc)
	}
	p.log.Debug("layers loaded", "count", len(descs), "tensors", len(p.file.Tensors))
	return descs, nil
}

// loader decodes t on demand. Nothing is decoded while listing layers.
func (p *Provider) loader(t *TensorInfo, shape []int) func() (*watcher.Matrix, error) {
	return func() (*watcher.Matrix, error) {
		values, err := Dequantize(t)
		if err != nil {
			p.log.Debug("tensor not decoded", "tensor", t.Name, "type", t.Type.String(), "error", err)
			return nil, err
		}
		return &watcher.Matrix{Shape: shape, Data: values}, nil
	}
}

// Classify maps a tensor to a layer type and the row-major shape its values
// are handed over in. 4-D convolution kernels (out, in, kh, kw) are unfolded
// to (out, in·kh·kw). 1-D and 3-D tensors keep their shape.
func Classify(t *TensorInfo) (watcher.LayerType, []int) {
	shape := t.Shape()
	switch len(shape) {
	case 1:
		return watcher.LayerOther, shape
	case 2:
		if isEmbedding(t.Name) {
			return watcher.LayerOther, shape
		}
		return watcher.LayerDense, shape
	case 4:
		return watcher.LayerConv2D, []int{shape[0], shape[1] * shape[2] * shape[3]}
	default:
		return watcher.LayerUnknown, shape
	}
}

func isEmbedding(name string) bool {
	return strings.HasPrefix(name, "token_embd") ||
		strings.Contains(name, "embd") ||
		strings.Contains(name, "embed")
}
