package api

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/internal/verify"
	"github.com/samcharles93/qkernel/pkg/quant"
)

// Limits bounds the work a single request may ask for.
type Limits struct {
	MaxAcc     int
	MaxSamples int
	PerSample  int
}

func DefaultLimits() Limits {
	return Limits{MaxAcc: 1 << 20, MaxSamples: 10000, PerSample: 1024}
}

// Service runs requests against the kernels. It is safe for concurrent use;
// every call allocates its own buffers.
type Service struct {
	limits Limits
}

func NewService(limits Limits) *Service {
	def := DefaultLimits()
	if limits.MaxAcc <= 0 {
		limits.MaxAcc = def.MaxAcc
	}
	if limits.MaxSamples <= 0 {
		limits.MaxSamples = def.MaxSamples
	}
	if limits.PerSample <= 0 {
		limits.PerSample = def.PerSample
	}
	return &Service{limits: limits}
}

func resolveBackend(name string) (requant.Backend, error) {
	if name == "" || name == "auto" {
		return requant.Current(), nil
	}
	b, err := requant.Lookup(name)
	if err != nil {
		return requant.Backend{}, invalidParam("backend", err)
	}
	return b, nil
}

func parseType(s string) (quant.Type, error) {
	if s == "" {
		return quant.TypeUnknown, newInvalidRequest("type is required")
	}
	t, err := quant.ParseType(s)
	if err != nil {
		return quant.TypeUnknown, invalidParam("type", err)
	}
	return t, nil
}

// Requantize runs req through the selected backend.
func (s *Service) Requantize(req RequantizeRequest) (*RequantizeResponse, error) {
	typ, err := parseType(req.Type)
	if err != nil {
		return nil, err
	}
	b, err := resolveBackend(req.Backend)
	if err != nil {
		return nil, err
	}
	if len(req.Acc) > s.limits.MaxAcc {
		return nil, newInvalidRequest(fmt.Sprintf("acc: at most %d values per request", s.limits.MaxAcc))
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeFP32
	}
	if mode != ModeFP32 && mode != ModeRNDNU {
		return nil, newInvalidRequest(fmt.Sprintf("mode: expected %q or %q, got %q", ModeFP32, ModeRNDNU, mode))
	}

	var out []int32
	switch typ {
	case quant.TypeInt8:
		out, err = requantizeAs[int8](b, mode, req)
	case quant.TypeUint8:
		out, err = requantizeAs[uint8](b, mode, req)
	default:
		out, err = requantizeAs[int16](b, mode, req)
	}
	if err != nil {
		return nil, err
	}
	return &RequantizeResponse{
		ID:      "rq_" + uuid.NewString(),
		Object:  "requantize",
		Backend: b.Name,
		Type:    typ.String(),
		Mode:    mode,
		Output:  out,
	}, nil
}

func outputRange[T satmath.Narrow](minV, maxV *int32) (T, T, error) {
	lo, hi := satmath.Bounds[T]()
	a, b := lo, hi
	if minV != nil {
		a = *minV
	}
	if maxV != nil {
		b = *maxV
	}
	if a < lo || a > hi {
		return 0, 0, newInvalidRequest(fmt.Sprintf("min: %d not in [%d, %d]", a, lo, hi))
	}
	if b < lo || b > hi {
		return 0, 0, newInvalidRequest(fmt.Sprintf("max: %d not in [%d, %d]", b, lo, hi))
	}
	return T(a), T(b), nil
}

func requantizeAs[T satmath.Narrow](b requant.Backend, mode string, req RequantizeRequest) ([]int32, error) {
	lo, hi, err := outputRange[T](req.Min, req.Max)
	if err != nil {
		return nil, err
	}
	dst := make([]T, len(req.Acc))

	switch {
	case len(req.Scales) > 0:
		if req.Scale != nil {
			return nil, newInvalidRequest("scale and scales are mutually exclusive")
		}
		if mode != ModeFP32 {
			return nil, newInvalidRequest("per-channel scales require mode fp32")
		}
		if len(req.Acc)%len(req.Scales) != 0 {
			return nil, newInvalidRequest(fmt.Sprintf("acc: length %d is not a multiple of %d channels", len(req.Acc), len(req.Scales)))
		}
		cp, err := quant.NewChannelParams(req.Scales, req.ZeroPoint, lo, hi)
		if err != nil {
			return nil, invalidParam("scales", err)
		}
		requant.ChannelsWith(b, dst, req.Acc, &cp)
	case req.Scale == nil:
		return nil, newInvalidRequest("one of scale or scales is required")
	default:
		p, err := quant.NewParams(*req.Scale, req.ZeroPoint, lo, hi)
		if err != nil {
			return nil, invalidParam("params", err)
		}
		if mode == ModeRNDNU {
			rp, err := p.RNDNU()
			if err != nil {
				return nil, invalidParam("scale", err)
			}
			requant.SliceRNDNUWith(b, dst, req.Acc, &rp)
		} else {
			fp := p.FP32()
			requant.SliceWith(b, dst, req.Acc, &fp)
		}
	}

	out := make([]int32, len(dst))
	for i, v := range dst {
		out[i] = int32(v)
	}
	return out, nil
}

// Params validates a parameter set and reports its derived constants.
func (s *Service) Params(req ParamsRequest) (*ParamsResponse, error) {
	typ, err := parseType(req.Type)
	if err != nil {
		return nil, err
	}
	switch typ {
	case quant.TypeInt8:
		return paramsAs[int8](req)
	case quant.TypeUint8:
		return paramsAs[uint8](req)
	default:
		return paramsAs[int16](req)
	}
}

func paramsAs[T satmath.Narrow](req ParamsRequest) (*ParamsResponse, error) {
	lo, hi, err := outputRange[T](req.Min, req.Max)
	if err != nil {
		return nil, err
	}
	p, err := quant.NewParams(req.Scale, req.ZeroPoint, lo, hi)
	if err != nil {
		return nil, invalidParam("params", err)
	}
	fp := p.FP32()
	resp := &ParamsResponse{
		Type:      quant.TypeOf[T]().String(),
		Scale:     p.Scale,
		ZeroPoint: p.ZeroPoint,
		Min:       int32(p.Min),
		Max:       int32(p.Max),
		FP32: FP32Info{
			OutputMinLessZeroPoint: fp.OutputMinLessZeroPoint,
			OutputMaxLessZeroPoint: fp.OutputMaxLessZeroPoint,
			MagicBias:              fp.MagicBias,
			MagicBiasLessZeroPoint: fp.MagicBiasLessZeroPoint,
			MagicMin:               fp.MagicMin,
			MagicMax:               fp.MagicMax,
		},
	}
	if rp, err := p.RNDNU(); err != nil {
		resp.RNDNUError = err.Error()
	} else {
		resp.RNDNU = &RNDNUInfo{
			Multiplier:     rp.Multiplier,
			RightPreShift:  rp.RightPreShift,
			RightPostShift: rp.RightPostShift,
			EffectiveScale: rp.EffectiveScale(),
		}
	}
	return resp, nil
}

func (s *Service) Backends() BackendsResponse {
	return BackendsResponse{
		Object:   "list",
		Current:  requant.Current().Name,
		Level:    requant.Level(),
		Backends: requant.Backends(),
	}
}

// Verify runs a sampled sweep. Requests over the sample limit are rejected
// rather than truncated.
func (s *Service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	typ, err := parseType(req.Type)
	if err != nil {
		return nil, err
	}
	b, err := resolveBackend(req.Backend)
	if err != nil {
		return nil, err
	}
	cfg := verify.DefaultConfig()
	cfg.Type = typ
	cfg.Backend = b
	cfg.PerSample = s.limits.PerSample
	if req.Samples != 0 {
		cfg.Samples = req.Samples
	}
	if req.PerSample != 0 {
		cfg.PerSample = req.PerSample
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}
	if cfg.Samples < 0 || cfg.Samples > s.limits.MaxSamples {
		return nil, newInvalidRequest(fmt.Sprintf("samples: must be in [1, %d]", s.limits.MaxSamples))
	}
	if cfg.PerSample < 0 || cfg.PerSample > s.limits.PerSample {
		return nil, newInvalidRequest(fmt.Sprintf("per_sample: must be in [1, %d]", s.limits.PerSample))
	}
	rep, err := verify.Sweep(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &VerifyResponse{
		ID:     "vf_" + uuid.NewString(),
		Object: "verify.report",
		OK:     rep.OK(),
		Report: rep,
	}, nil
}
