// Package vectors reads and writes golden requantization test vectors.
//
// A vector file is JSON:
//
//	{"version": 1, "cases": [
//	  {"type": "int8", "acc": 1000, "scale": 0.5, "zero_point": 10,
//	   "min": -128, "max": 127, "want": 127}
//	]}
//
// Files produced here can be replayed against any implementation of the
// reference pipeline.
package vectors

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"os"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/internal/satmath"
	"github.com/samcharles93/qkernel/internal/verify"
	"github.com/samcharles93/qkernel/pkg/quant"
)

// Version is the only file version this package reads and writes.
const Version = 1

type Case struct {
	Type      quant.Type `json:"type"`
	Acc       int32      `json:"acc"`
	Scale     float32    `json:"scale"`
	ZeroPoint int32      `json:"zero_point"`
	Min       int32      `json:"min"`
	Max       int32      `json:"max"`
	Want      int32      `json:"want"`
}

type File struct {
	Version int    `json:"version"`
	Cases   []Case `json:"cases"`
}

// Scenarios are hand-picked cases that every implementation must agree on.
func Scenarios() []Case {
	return []Case{
		{Type: quant.TypeInt8, Acc: 1000, Scale: 0.5, ZeroPoint: 10, Min: -128, Max: 127, Want: 127},
		{Type: quant.TypeUint8, Acc: -50, Scale: 2, ZeroPoint: 0, Min: 0, Max: 255, Want: 0},
		{Type: quant.TypeUint8, Acc: 0, Scale: 1, ZeroPoint: 128, Min: 0, Max: 255, Want: 128},
		{Type: quant.TypeInt8, Acc: 5, Scale: 0.5, ZeroPoint: 0, Min: -128, Max: 127, Want: 2},
		{Type: quant.TypeInt16, Acc: -2147483648, Scale: 1000, ZeroPoint: 0, Min: -32768, Max: 32767, Want: -32768},
	}
}

// Generate returns the scenarios followed by n random cases of type typ
// with expected outputs from the reference pipeline.
func Generate(rng *rand.Rand, n int, typ quant.Type) (*File, error) {
	f := &File{Version: Version, Cases: Scenarios()}
	for range n {
		var c Case
		switch typ {
		case quant.TypeInt8:
			c = randomCase[int8](rng)
		case quant.TypeUint8:
			c = randomCase[uint8](rng)
		case quant.TypeInt16:
			c = randomCase[int16](rng)
		default:
			return nil, fmt.Errorf("%w: %v", quant.ErrUnknownType, typ)
		}
		f.Cases = append(f.Cases, c)
	}
	return f, nil
}

func randomCase[T satmath.Narrow](rng *rand.Rand) Case {
	p := verify.RandomParams[T](rng)
	acc := verify.RandomAcc(rng)
	return Case{
		Type:      quant.TypeOf[T](),
		Acc:       acc,
		Scale:     p.Scale,
		ZeroPoint: p.ZeroPoint,
		Min:       int32(p.Min),
		Max:       int32(p.Max),
		Want:      int32(requant.Requantize(acc, p.Scale, p.ZeroPoint, p.Min, p.Max)),
	}
}

// Decode reads and validates a vector file.
func Decode(r io.Reader) (*File, error) {
	var f File
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "failed to decode vector file")
	}
	if f.Version != Version {
		return nil, errors.Errorf("unsupported vector file version %d", f.Version)
	}
	for i, c := range f.Cases {
		if err := c.validate(); err != nil {
			return nil, errors.Wrapf(err, "case %d", i)
		}
	}
	return &f, nil
}

func (c Case) validate() error {
	switch c.Type {
	case quant.TypeInt8:
		return validateAs[int8](c)
	case quant.TypeUint8:
		return validateAs[uint8](c)
	case quant.TypeInt16:
		return validateAs[int16](c)
	default:
		return quant.ErrUnknownType
	}
}

func validateAs[T satmath.Narrow](c Case) error {
	lo, hi := satmath.Bounds[T]()
	for _, v := range []int32{c.Min, c.Max, c.Want} {
		if v < lo || v > hi {
			return fmt.Errorf("%w: %d outside %v", quant.ErrZeroPointRange, v, c.Type)
		}
	}
	_, err := quant.NewParams(c.Scale, c.ZeroPoint, T(c.Min), T(c.Max))
	return err
}

// Encode writes f as indented JSON.
func Encode(w io.Writer, f *File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(f), "failed to encode vector file")
}

// Load reads a vector file from disk.
func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer fh.Close()
	f, err := Decode(bufio.NewReader(fh))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", path)
	}
	return f, nil
}

// Save writes f to path, replacing any existing file.
func Save(path string, f *File) error {
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	w := bufio.NewWriter(fh)
	if err := Encode(w, f); err != nil {
		fh.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(fh.Close(), "failed to close %s", path)
}

// Mismatch is a case whose output differs from its recorded value.
type Mismatch struct {
	Index int   `json:"index"`
	Case  Case  `json:"case"`
	Got   int32 `json:"got"`
}

// Check replays every case through backend b and returns the mismatches.
func Check(f *File, b requant.Backend) []Mismatch {
	var out []Mismatch
	for i, c := range f.Cases {
		var got int32
		switch c.Type {
		case quant.TypeInt8:
			got = run[int8](b, c)
		case quant.TypeUint8:
			got = run[uint8](b, c)
		case quant.TypeInt16:
			got = run[int16](b, c)
		default:
			continue
		}
		if got != c.Want {
			out = append(out, Mismatch{Index: i, Case: c, Got: got})
		}
	}
	return out
}

func run[T satmath.Narrow](b requant.Backend, c Case) int32 {
	p := quant.Params[T]{Scale: c.Scale, ZeroPoint: c.ZeroPoint, Min: T(c.Min), Max: T(c.Max)}.FP32()
	var dst [1]T
	requant.SliceWith(b, dst[:], []int32{c.Acc}, &p)
	return int32(dst[0])
}
