package sim

import (
	"math"
	"testing"

	"spreadsim/internal/raster"
)

func gridOf(vals ...int) *raster.Grid[int] {
	g := raster.New[int](1, len(vals))
	copy(g.Cells(), vals)
	return g
}

func TestEnsembleMeanUsesIntegerDivision(t *testing.T) {
	mean := EnsembleMean([]*raster.Grid[int]{gridOf(1, 4), gridOf(2, 5)})
	if mean.At(0, 0) != 1 {
		t.Errorf("mean[0] = %d, want 1 (3/2 truncated)", mean.At(0, 0))
	}
	if mean.At(0, 1) != 4 {
		t.Errorf("mean[1] = %d, want 4", mean.At(0, 1))
	}
}

func TestEnsembleStdDev(t *testing.T) {
	runs := []*raster.Grid[int]{gridOf(2), gridOf(6)}
	mean := EnsembleMean(runs)
	sd := EnsembleStdDev(runs, mean)
	if math.Abs(sd.At(0, 0)-2) > 1e-9 {
		t.Errorf("stddev = %f, want 2", sd.At(0, 0))
	}
}

func TestEnsembleProbabilityPercent(t *testing.T) {
	runs := []*raster.Grid[int]{gridOf(0, 3), gridOf(1, 2), gridOf(0, 0), gridOf(5, 1)}
	prob := EnsembleProbability(runs)
	if prob.At(0, 0) != 50 {
		t.Errorf("probability[0] = %d, want 50", prob.At(0, 0))
	}
	if prob.At(0, 1) != 75 {
		t.Errorf("probability[1] = %d, want 75", prob.At(0, 1))
	}
}
