package watcher

import "errors"

var (
	// ErrInputShape marks a weight that is not a non-empty 2-D matrix.
	ErrInputShape = errors.New("invalid weight shape")
	// ErrWeightAbsent marks a layer that carries no weight matrix.
	ErrWeightAbsent = errors.New("layer has no weight")
	// ErrEmptyModel is reported when no layer matched the filter. It is a
	// warning on the summary, never a failed analysis.
	ErrEmptyModel = errors.New("no layer matched the analysis filter")
	ErrUnknownLayerType = errors.New("unknown layer type")
	ErrUnknownFamily    = errors.New("unknown metric family")
)
