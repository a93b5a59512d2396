package divmat_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/divmat"
	"github.com/paveg/divmat/internal/matrix"
	"github.com/paveg/divmat/internal/testutil"
)

func probabilityRows() [][]float64 {
	return [][]float64{
		{1, 0},
		{0, 1},
		{0.5, 0.5},
	}
}

func TestJensenShannonMatrixConcreteScenario(t *testing.T) {
	input, err := divmat.NewMatrixFromRows(probabilityRows())
	require.NoError(t, err)

	out, err := divmat.JensenShannonMatrix(input)
	require.NoError(t, err)

	require.Equal(t, 3, out.Rows())
	require.Equal(t, 3, out.Cols())

	// Disjoint supports: every KL term reduces to ln 2.
	assert.InDelta(t, math.Sqrt(math.Ln2), out.At(1, 0), 1e-9)
	assert.InDelta(t, 0.8326, out.At(1, 0), 1e-4)

	// Uniform row against a point mass, m = [0.75, 0.25]:
	//   KL([1,0]||m)     = ln(4/3)
	//   KL([.5,.5]||m)   = 0.5*ln(2/3) + 0.5*ln 2
	mixed := math.Sqrt(0.5 * (math.Log(4.0/3.0) + 0.5*math.Log(2.0/3.0) + 0.5*math.Ln2))
	assert.InDelta(t, mixed, out.At(2, 0), 1e-9)
	assert.InDelta(t, mixed, out.At(2, 1), 1e-9)

	// Diagonal and upper triangle are never written.
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			assert.Zerof(t, out.At(i, j), "cell (%d, %d)", i, j)
		}
	}
}

func TestJensenShannonMatrixDegenerateInputs(t *testing.T) {
	t.Run("n=0", func(t *testing.T) {
		out, err := divmat.JensenShannonMatrix(divmat.NewMatrix(0, 5))
		require.NoError(t, err)
		assert.Equal(t, 0, out.Rows())
		assert.Equal(t, 0, out.Cols())
	})

	t.Run("n=1", func(t *testing.T) {
		input, err := divmat.NewMatrixFromRows([][]float64{{0.3, 0.7}})
		require.NoError(t, err)

		out, err := divmat.JensenShannonMatrix(input)
		require.NoError(t, err)
		assert.Equal(t, 1, out.Rows())
		assert.Zero(t, out.At(0, 0))
	})

	t.Run("nil input", func(t *testing.T) {
		_, err := divmat.JensenShannonMatrix(nil)
		require.Error(t, err)
	})
}

func TestJensenShannonMatrixMatchesSerialReference(t *testing.T) {
	const n, p = 120, 8
	in := testutil.RandomNormalizedMatrix(t, n, p, 7)
	want := testutil.SerialJensenShannon(in)

	input, err := divmat.NewMatrixFromSlice(n, p, in.Data())
	require.NoError(t, err)

	out, err := divmat.JensenShannonMatrix(input)
	require.NoError(t, err)

	got, err := matrix.FromSlice(n, n, out.Data())
	require.NoError(t, err)
	testutil.AssertMatrixInDelta(t, want, got, 1e-10)
	testutil.AssertStrictLowerTriangular(t, got)
}

func TestJensenShannonMatrixDeterministicAcrossPools(t *testing.T) {
	const n, p = 80, 5
	in := testutil.RandomNormalizedMatrix(t, n, p, 99)
	input, err := divmat.NewMatrixFromSlice(n, p, in.Data())
	require.NoError(t, err)

	// Per-cell results are independent of summation interleaving, so every
	// pool size and backend must produce a bit-identical buffer.
	var fingerprints []uint64
	for _, workers := range []int{1, 2, 8} {
		for _, stealing := range []bool{false, true} {
			out, err := divmat.JensenShannonMatrix(input,
				divmat.WithWorkers(workers),
				divmat.WithWorkStealing(stealing),
			)
			require.NoError(t, err)
			fingerprints = append(fingerprints, out.Fingerprint())
		}
	}

	for i := 1; i < len(fingerprints); i++ {
		assert.Equal(t, fingerprints[0], fingerprints[i], "variant %d diverged", i)
	}
}

func TestJensenShannonMatrixGrainOverride(t *testing.T) {
	in := testutil.RandomNormalizedMatrix(t, 30, 4, 5)
	input, err := divmat.NewMatrixFromSlice(30, 4, in.Data())
	require.NoError(t, err)

	base, err := divmat.JensenShannonMatrix(input)
	require.NoError(t, err)

	coarse, err := divmat.JensenShannonMatrix(input, divmat.WithGrain(16))
	require.NoError(t, err)

	assert.Equal(t, base.Fingerprint(), coarse.Fingerprint(), "grain only affects scheduling")
}

func TestJensenShannonMatrixScale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scale scenario in short mode")
	}

	const n, p = 1000, 10
	in := testutil.RandomNormalizedMatrix(t, n, p, 2024)
	want := testutil.SerialJensenShannon(in)

	input, err := divmat.NewMatrixFromSlice(n, p, in.Data())
	require.NoError(t, err)

	out, err := divmat.JensenShannonMatrix(input)
	require.NoError(t, err)

	got, err := matrix.FromSlice(n, n, out.Data())
	require.NoError(t, err)
	testutil.AssertMatrixInDelta(t, want, got, 1e-10)
}

func TestShutdownAllowsReuse(t *testing.T) {
	input, err := divmat.NewMatrixFromRows(probabilityRows())
	require.NoError(t, err)

	first, err := divmat.JensenShannonMatrix(input)
	require.NoError(t, err)

	divmat.Shutdown()

	second, err := divmat.JensenShannonMatrix(input)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
}

func TestArrowRoundTrip(t *testing.T) {
	mem := testutil.SetupMemoryTest(t)
	defer mem.Release()

	input, err := divmat.NewMatrixFromRows(probabilityRows())
	require.NoError(t, err)

	rec := input.ToRecord(mem.Allocator)
	defer rec.Release()

	fromArrow, err := divmat.MatrixFromRecord(rec)
	require.NoError(t, err)
	require.Equal(t, input.Fingerprint(), fromArrow.Fingerprint())

	out, err := divmat.JensenShannonMatrix(fromArrow)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(math.Ln2), out.At(1, 0), 1e-9)

	outRec := out.ToRecord(mem.Allocator)
	defer outRec.Release()
	assert.Equal(t, int64(3), outRec.NumRows())
	assert.Equal(t, int64(3), outRec.NumCols())
}

func TestConfigRoundTrip(t *testing.T) {
	original := divmat.GetConfig()
	defer func() {
		require.NoError(t, divmat.SetConfig(original))
		divmat.Shutdown()
	}()

	require.NoError(t, divmat.SetConfig(divmat.Config{
		WorkerPoolSize:     2,
		Grain:              3,
		EnableWorkStealing: false,
	}))
	divmat.Shutdown() // rebuild the pool under the new config

	got := divmat.GetConfig()
	assert.Equal(t, 2, got.WorkerPoolSize)
	assert.Equal(t, 3, got.Grain)
	assert.False(t, got.EnableWorkStealing)

	input, err := divmat.NewMatrixFromRows(probabilityRows())
	require.NoError(t, err)
	out, err := divmat.JensenShannonMatrix(input)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(math.Ln2), out.At(1, 0), 1e-9)

	require.Error(t, divmat.SetConfig(divmat.Config{WorkerPoolSize: -1}))
}

func TestLoadConfigFromFile(t *testing.T) {
	original := divmat.GetConfig()
	defer func() {
		require.NoError(t, divmat.SetConfig(original))
		divmat.Shutdown()
	}()

	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("worker_pool_size: 4\ngrain: 2\n"), 0o600))

	cfg, err := divmat.LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerPoolSize)
	assert.Equal(t, 2, cfg.Grain)
	assert.Equal(t, cfg, divmat.GetConfig())
}

func TestMatrixAccessors(t *testing.T) {
	m := divmat.NewMatrix(2, 3)
	m.Set(1, 2, 0.25)

	assert.Equal(t, 2, m.Rows())
	assert.Equal(t, 3, m.Cols())
	assert.Equal(t, 0.25, m.At(1, 2))
	assert.Equal(t, []float64{0, 0, 0.25}, m.Row(1))
	assert.Len(t, m.Data(), 6)
}
