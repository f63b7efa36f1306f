package sim

import (
	"math"

	"spreadsim/internal/raster"
)

// EnsembleMean returns the per-cell integer mean of the runs' infected
// rasters. Integer division keeps the output comparable to the input
// host counts.
func EnsembleMean(runs []*raster.Grid[int]) *raster.Grid[int] {
	mean := runs[0].Clone()
	for _, g := range runs[1:] {
		mean.Add(g)
	}
	n := len(runs)
	for i, v := range mean.Cells() {
		mean.Cells()[i] = v / n
	}
	return mean
}

// EnsembleStdDev returns the per-cell population standard deviation
// around mean.
func EnsembleStdDev(runs []*raster.Grid[int], mean *raster.Grid[int]) *raster.Grid[float64] {
	sd := raster.Like[float64](mean)
	n := float64(len(runs))
	for i := range sd.Cells() {
		m := float64(mean.Cells()[i])
		var sum float64
		for _, g := range runs {
			d := float64(g.Cells()[i]) - m
			sum += d * d
		}
		sd.Cells()[i] = math.Sqrt(sum / n)
	}
	return sd
}

// EnsembleProbability returns, per cell, the percentage of runs with at
// least one infected host.
func EnsembleProbability(runs []*raster.Grid[int]) *raster.Grid[int] {
	prob := raster.Like[int](runs[0])
	for _, g := range runs {
		for i, v := range g.Cells() {
			if v > 0 {
				prob.Cells()[i]++
			}
		}
	}
	n := len(runs)
	for i, v := range prob.Cells() {
		prob.Cells()[i] = v * 100 / n
	}
	return prob
}
