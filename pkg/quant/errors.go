package quant

import "errors"

var (
	ErrInvalidScale   = errors.New("scale must be finite, normalized and positive")
	ErrScaleRange     = errors.New("scale outside supported range")
	ErrZeroPointRange = errors.New("zero point outside output type range")
	ErrEmptyRange     = errors.New("output range is empty")
	ErrUnknownType    = errors.New("unknown quantized type")
)
