package api

import (
	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/verify"
)

const (
	ModeFP32  = "fp32"
	ModeRNDNU = "rndnu"
)

// RequantizeRequest asks for a batch of accumulators to be requantized.
// Exactly one of Scale and Scales must be set; Scales selects per-channel
// mode with len(Acc) a multiple of len(Scales). Min and Max default to the
// full range of Type.
type RequantizeRequest struct {
	Type      string    `json:"type"`
	Backend   string    `json:"backend,omitempty"`
	Acc       []int32   `json:"acc"`
	Scale     *float32  `json:"scale,omitempty"`
	Scales    []float32 `json:"scales,omitempty"`
	ZeroPoint int32     `json:"zero_point"`
	Min       *int32    `json:"min,omitempty"`
	Max       *int32    `json:"max,omitempty"`
	Mode      string    `json:"mode,omitempty"`
}

type RequantizeResponse struct {
	ID      string  `json:"id"`
	Object  string  `json:"object"`
	Backend string  `json:"backend"`
	Type    string  `json:"type"`
	Mode    string  `json:"mode"`
	Output  []int32 `json:"output"`
}

type ParamsRequest struct {
	Type      string  `json:"type"`
	Scale     float32 `json:"scale"`
	ZeroPoint int32   `json:"zero_point"`
	Min       *int32  `json:"min,omitempty"`
	Max       *int32  `json:"max,omitempty"`
}

// ParamsResponse lists the constants the kernels derive from a parameter
// set. RNDNU is omitted when the scale is outside the integer pipeline's
// range; RNDNUError says why.
type ParamsResponse struct {
	Type       string     `json:"type" yaml:"type"`
	Scale      float32    `json:"scale" yaml:"scale"`
	ZeroPoint  int32      `json:"zero_point" yaml:"zero_point"`
	Min        int32      `json:"min" yaml:"min"`
	Max        int32      `json:"max" yaml:"max"`
	FP32       FP32Info   `json:"fp32" yaml:"fp32"`
	RNDNU      *RNDNUInfo `json:"rndnu,omitempty" yaml:"rndnu,omitempty"`
	RNDNUError string     `json:"rndnu_error,omitempty" yaml:"rndnu_error,omitempty"`
}

type FP32Info struct {
	OutputMinLessZeroPoint float32 `json:"output_min_less_zero_point" yaml:"output_min_less_zero_point"`
	OutputMaxLessZeroPoint float32 `json:"output_max_less_zero_point" yaml:"output_max_less_zero_point"`
	MagicBias              float32 `json:"magic_bias" yaml:"magic_bias"`
	MagicBiasLessZeroPoint int32   `json:"magic_bias_less_zero_point" yaml:"magic_bias_less_zero_point"`
	MagicMin               int32   `json:"magic_min" yaml:"magic_min"`
	MagicMax               int32   `json:"magic_max" yaml:"magic_max"`
}

type RNDNUInfo struct {
	Multiplier     int32   `json:"multiplier" yaml:"multiplier"`
	RightPreShift  uint32  `json:"right_pre_shift" yaml:"right_pre_shift"`
	RightPostShift uint32  `json:"right_post_shift" yaml:"right_post_shift"`
	EffectiveScale float64 `json:"effective_scale" yaml:"effective_scale"`
}

type BackendsResponse struct {
	Object   string            `json:"object"`
	Current  string            `json:"current"`
	Level    string            `json:"level"`
	Backends []requant.Backend `json:"backends"`
}

type VerifyRequest struct {
	Type      string `json:"type"`
	Backend   string `json:"backend,omitempty"`
	Samples   int    `json:"samples,omitempty"`
	PerSample int    `json:"per_sample,omitempty"`
	Seed      uint64 `json:"seed,omitempty"`
}

type VerifyResponse struct {
	ID     string        `json:"id"`
	Object string        `json:"object"`
	OK     bool          `json:"ok"`
	Report verify.Report `json:"report"`
}

type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}
