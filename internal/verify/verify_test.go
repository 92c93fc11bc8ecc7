package verify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/qkernel/internal/requant"
	"github.com/samcharles93/qkernel/pkg/quant"
)

func TestSweepAllBackendsPass(t *testing.T) {
	t.Parallel()
	for _, typ := range []quant.Type{quant.TypeInt8, quant.TypeUint8, quant.TypeInt16} {
		for _, b := range requant.Backends() {
			cfg := Config{
				Type:      typ,
				Backend:   b,
				Samples:   8,
				PerSample: 257,
				Seed:      42,
				Workers:   2,
			}
			rep, err := Sweep(context.Background(), cfg)
			require.NoError(t, err)
			assert.True(t, rep.OK(), "%s/%s: %v", typ, b.Name, rep.Failures)
			assert.Equal(t, int64(8*258), rep.Checked)
			assert.Equal(t, typ.String(), rep.Type)
		}
	}
}

func TestSweepExhaustive(t *testing.T) {
	t.Parallel()
	b, err := requant.Lookup(requant.BackendName(requant.VariantIMagic, 16))
	require.NoError(t, err)

	var calls int
	cfg := Config{
		Type:             quant.TypeUint8,
		Backend:          b,
		Samples:          4,
		Exhaustive:       true,
		ExhaustiveRadius: 1000,
		Seed:             7,
		Progress:         func(done, total int) { calls++ },
	}
	rep, err := Sweep(context.Background(), cfg)
	require.NoError(t, err)
	assert.True(t, rep.OK(), "%v", rep.Failures)
	assert.Equal(t, int64(4*2002), rep.Checked)
	assert.Equal(t, 4, calls)
}

func TestSweepCancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := DefaultConfig()
	_, err := Sweep(ctx, cfg)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestSweepRejectsBadConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Type = quant.TypeUnknown
	_, err := Sweep(context.Background(), cfg)
	assert.ErrorIs(t, err, quant.ErrUnknownType)

	cfg = DefaultConfig()
	cfg.Samples = 0
	_, err = Sweep(context.Background(), cfg)
	assert.Error(t, err)
}

func TestCollectorCapsFailures(t *testing.T) {
	t.Parallel()
	c := &collector{}
	fails := make([]Failure, MaxFailures+5)
	for i := range fails {
		fails[i] = Failure{Property: PropEquality, Acc: int32(i)}
	}
	c.add(100, fails, 1)
	assert.Equal(t, int64(MaxFailures+5), c.report.FailureCount)
	assert.Len(t, c.report.Failures, MaxFailures)
	assert.False(t, c.report.OK())
	assert.True(t, strings.HasPrefix(fails[3].String(), "equality: acc=3"))
}
