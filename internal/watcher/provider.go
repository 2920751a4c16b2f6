package watcher

import "context"

// LayerProvider yields the layers of one model in order.
type LayerProvider interface {
	Layers(ctx context.Context) ([]LayerDescriptor, error)
}

// SliceProvider serves layers already in memory.
type SliceProvider []LayerDescriptor

func (p SliceProvider) Layers(ctx context.Context) ([]LayerDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// LayerProviderFunc adapts a function to LayerProvider.
type LayerProviderFunc func(ctx context.Context) ([]LayerDescriptor, error)

func (f LayerProviderFunc) Layers(ctx context.Context) ([]LayerDescriptor, error) {
	return f(ctx)
}
