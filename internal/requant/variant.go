package requant

import (
	"fmt"
	"strings"

	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/pkg/quant"
)

// Variant names a rounding strategy.
type Variant uint8

const (
	VariantReference Variant = iota
	VariantLrint
	VariantFMagic
	VariantIMagic
	// VariantRNDNU is the integer-only pipeline. It is only ever compared
	// against its own reference, never against fp32 results.
	VariantRNDNU
)

var variantNames = [...]string{
	VariantReference: "reference",
	VariantLrint:     "lrint",
	VariantFMagic:    "fmagic",
	VariantIMagic:    "imagic",
	VariantRNDNU:     "rndnu",
}

func (v Variant) String() string {
	if int(v) < len(variantNames) {
		return variantNames[v]
	}
	return fmt.Sprintf("variant(%d)", uint8(v))
}

// FP32Variants lists the strategies that must match FP32 bit for bit.
func FP32Variants() []Variant {
	return []Variant{VariantReference, VariantLrint, VariantFMagic, VariantIMagic}
}

// ParseVariant accepts the names produced by String.
func ParseVariant(s string) (Variant, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range variantNames {
		if n == name {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("unknown variant %q", s)
}

func (v Variant) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Variant) UnmarshalText(b []byte) error {
	parsed, err := ParseVariant(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Scalar requantizes one accumulator with the given fp32 strategy.
// VariantRNDNU is not an fp32 strategy and falls back to the reference.
func Scalar[T satmath.Narrow](v Variant, acc int32, p *quant.FP32Params[T]) T {
	switch v {
	case VariantLrint:
		return Lrint(acc, p)
	case VariantFMagic:
		return FMagic(acc, p)
	case VariantIMagic:
		return IMagic(acc, p)
	default:
		return FP32(acc, p)
	}
}
