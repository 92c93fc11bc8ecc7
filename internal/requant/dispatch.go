package requant

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// ErrUnknownBackend is returned by Lookup and SetCurrent.
var ErrUnknownBackend = errors.New("unknown backend")

// Backend is one entry of the dispatch table: a rounding strategy and the
// register block width it is run at.
type Backend struct {
	Name    string  `json:"name" yaml:"name"`
	Variant Variant `json:"variant" yaml:"variant"`
	Width   int     `json:"width" yaml:"width"`
}

func (b Backend) String() string { return b.Name }

// BackendName is the table name of a variant at a width.
func BackendName(v Variant, width int) string {
	return v.String() + "-x" + strconv.Itoa(width)
}

var (
	table   []Backend
	byName  = map[string]Backend{}
	current atomic.Pointer[Backend]
	level   string
)

func init() {
	for _, v := range FP32Variants() {
		for _, w := range Widths {
			b := Backend{Name: BackendName(v, w), Variant: v, Width: w}
			table = append(table, b)
			byName[b.Name] = b
		}
	}
	b, lvl := detect()
	level = lvl
	current.Store(&b)
}

// NoSIMDEnv reports whether QKERNEL_NO_SIMD asks for the scalar reference.
func NoSIMDEnv() bool {
	v, _ := strconv.ParseBool(os.Getenv("QKERNEL_NO_SIMD"))
	return v
}

func detect() (Backend, string) {
	pick := func(v Variant, w int) Backend { return byName[BackendName(v, w)] }
	if NoSIMDEnv() {
		return pick(VariantReference, 1), "scalar"
	}
	switch {
	case cpu.X86.HasAVX512F:
		return pick(VariantIMagic, 16), "avx512"
	case cpu.X86.HasAVX2:
		return pick(VariantFMagic, 8), "avx2"
	case cpu.X86.HasSSE41:
		return pick(VariantReference, 4), "sse4.1"
	case cpu.X86.HasSSE2:
		return pick(VariantReference, 4), "sse2"
	case runtime.GOARCH == "arm64" && cpu.ARM64.HasASIMD:
		return pick(VariantLrint, 4), "neon"
	default:
		return pick(VariantReference, 1), "scalar"
	}
}

// Backends returns every table entry in registration order.
func Backends() []Backend {
	return append([]Backend(nil), table...)
}

// Lookup finds a backend by name.
func Lookup(name string) (Backend, error) {
	b, ok := byName[name]
	if !ok {
		return Backend{}, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return b, nil
}

// Current returns the backend used by Slice, Channels and SliceRNDNU.
func Current() Backend {
	return *current.Load()
}

// SetCurrent selects the process-wide backend. The empty string and "auto"
// restore the detected default.
func SetCurrent(name string) error {
	var b Backend
	if name == "" || name == "auto" {
		b, _ = detect()
	} else {
		var err error
		if b, err = Lookup(name); err != nil {
			return err
		}
	}
	current.Store(&b)
	return nil
}

// Level names the detected instruction-set tier.
func Level() string { return level }

// Feature is one CPU capability reported by cpuinfo.
type Feature struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
}

// Features lists the capabilities the dispatcher considers on this
// architecture.
func Features() []Feature {
	switch runtime.GOARCH {
	case "amd64", "386":
		return []Feature{
			{"sse2", cpu.X86.HasSSE2},
			{"sse4.1", cpu.X86.HasSSE41},
			{"avx", cpu.X86.HasAVX},
			{"avx2", cpu.X86.HasAVX2},
			{"fma", cpu.X86.HasFMA},
			{"avx512f", cpu.X86.HasAVX512F},
			{"avx512bw", cpu.X86.HasAVX512BW},
			{"avx512vnni", cpu.X86.HasAVX512VNNI},
		}
	case "arm64":
		return []Feature{
			{"asimd", cpu.ARM64.HasASIMD},
			{"asimdhp", cpu.ARM64.HasASIMDHP},
			{"asimddp", cpu.ARM64.HasASIMDDP},
			{"sve", cpu.ARM64.HasSVE},
			{"sve2", cpu.ARM64.HasSVE2},
		}
	default:
		return nil
	}
}
