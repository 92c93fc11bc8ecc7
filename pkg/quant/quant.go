// Package quant describes affine quantization parameters and the constants
// the requantization kernels derive from them.
//
// A quantized element q of type T represents the real value
//
//	v = (q - ZeroPoint) * Scale
//
// Parameters are built once, validated, and then read by kernels without
// further checks.
package quant

import (
	"fmt"
	"math"
	"strings"

	"github.com/samcharles93/qkernel/internal/satmath"
)

// Type identifies the output element encoding of a kernel.
type Type uint8

const (
	TypeUnknown Type = iota
	TypeInt8
	TypeUint8
	TypeInt16
)

func (t Type) String() string {
	switch t {
	case TypeInt8:
		return "int8"
	case TypeUint8:
		return "uint8"
	case TypeInt16:
		return "int16"
	default:
		return "unknown"
	}
}

// Range returns the representable range of the type.
func (t Type) Range() (lo, hi int32) {
	switch t {
	case TypeInt8:
		return satmath.Bounds[int8]()
	case TypeUint8:
		return satmath.Bounds[uint8]()
	case TypeInt16:
		return satmath.Bounds[int16]()
	default:
		return 0, 0
	}
}

// ParseType accepts the names produced by String plus the XNNPACK prefixes
// qs8, qu8 and qs16.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int8", "qs8", "s8":
		return TypeInt8, nil
	case "uint8", "qu8", "u8":
		return TypeUint8, nil
	case "int16", "qs16", "s16":
		return TypeInt16, nil
	default:
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

func (t Type) MarshalText() ([]byte, error) {
	if t == TypeUnknown {
		return nil, ErrUnknownType
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TypeOf returns the Type tag for T.
func TypeOf[T satmath.Narrow]() Type {
	switch lo, hi := satmath.Bounds[T](); {
	case lo == 0:
		return TypeUint8
	case hi == math.MaxInt8:
		return TypeInt8
	default:
		return TypeInt16
	}
}

// Params holds per-tensor output quantization parameters.
type Params[T satmath.Narrow] struct {
	Scale     float32
	ZeroPoint int32
	Min       T
	Max       T
}

// NewParams validates and returns per-tensor parameters.
func NewParams[T satmath.Narrow](scale float32, zeroPoint int32, minV, maxV T) (Params[T], error) {
	p := Params[T]{Scale: scale, ZeroPoint: zeroPoint, Min: minV, Max: maxV}
	if err := p.Validate(); err != nil {
		return Params[T]{}, err
	}
	return p, nil
}

// FullRange returns parameters spanning the whole range of T.
func FullRange[T satmath.Narrow](scale float32, zeroPoint int32) (Params[T], error) {
	lo, hi := satmath.Bounds[T]()
	return NewParams(scale, zeroPoint, T(lo), T(hi))
}

func (p Params[T]) Validate() error {
	if err := validateScale(p.Scale); err != nil {
		return err
	}
	lo, hi := satmath.Bounds[T]()
	if p.ZeroPoint < lo || p.ZeroPoint > hi {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrZeroPointRange, p.ZeroPoint, lo, hi)
	}
	if p.Min > p.Max {
		return fmt.Errorf("%w: [%d, %d]", ErrEmptyRange, p.Min, p.Max)
	}
	return nil
}

// Intersect narrows the output range with an activation range such as
// ReLU6 expressed in the quantized domain.
func (p Params[T]) Intersect(lo, hi T) (Params[T], error) {
	out := p
	out.Min = max(p.Min, lo)
	out.Max = min(p.Max, hi)
	if out.Min > out.Max {
		return Params[T]{}, fmt.Errorf("%w: [%d, %d] ∩ [%d, %d]", ErrEmptyRange, p.Min, p.Max, lo, hi)
	}
	return out, nil
}

// Dequantize maps q back to the real line.
func (p Params[T]) Dequantize(q T) float32 {
	return float32(int32(q)-p.ZeroPoint) * p.Scale
}

func validateScale(scale float32) error {
	f := float64(scale)
	if !(f > 0) || math.IsInf(f, 0) || f < 0x1p-126 {
		return fmt.Errorf("%w: %g", ErrInvalidScale, scale)
	}
	return nil
}
