package model

import (
	"math"
	"math/rand/v2"

	"spreadsim/internal/raster"
)

// Sporulation is the per-realization infection engine. It owns a scratch
// disperser grid and an RNG; Generate fills the grid from the infected
// raster and Disperse spends it against the susceptible raster.
type Sporulation struct {
	rng    *rand.Rand
	spores *raster.Grid[int]
}

// NewSporulation builds an engine for a rows x cols landscape seeded
// deterministically.
func NewSporulation(rows, cols int, seed uint64) *Sporulation {
	return &Sporulation{
		rng:    rand.New(rand.NewPCG(seed, 0)),
		spores: raster.New[int](rows, cols),
	}
}

// Generate draws a Poisson number of dispersers per infected host. When
// useWeather is set the reproductive rate is scaled per cell by the
// weather coefficient.
func (s *Sporulation) Generate(infected *raster.Grid[int], useWeather bool, weather *raster.Grid[float64], rate float64) {
	s.spores.Zero()
	for r := 0; r < infected.Rows; r++ {
		for c := 0; c < infected.Cols; c++ {
			n := infected.At(r, c)
			if n <= 0 {
				continue
			}
			lambda := rate
			if useWeather {
				lambda *= weather.At(r, c)
			}
			total := 0
			for h := 0; h < n; h++ {
				total += s.poisson(lambda)
			}
			s.spores.Set(r, c, total)
		}
	}
}

// Disperse releases every generated disperser through the kernel. A
// disperser landing outside the grid is appended to outside; one landing
// on a cell with susceptible hosts infects with probability
// susceptible/total, scaled by the weather coefficient when useWeather is
// set. New infections decrement susceptible, increment infected and, when
// cohort is non-nil, the youngest mortality cohort.
func (s *Sporulation) Disperse(susceptible, infected, cohort, total *raster.Grid[int], outside *[]Cell, useWeather bool, weather *raster.Grid[float64], kernel Kernel) {
	for r := 0; r < susceptible.Rows; r++ {
		for c := 0; c < susceptible.Cols; c++ {
			for n := s.spores.At(r, c); n > 0; n-- {
				row, col := kernel.Draw(r, c)
				if !susceptible.In(row, col) {
					*outside = append(*outside, Cell{Row: row, Col: col})
					continue
				}
				sus := susceptible.At(row, col)
				if sus <= 0 {
					continue
				}
				prob := float64(sus) / float64(total.At(row, col))
				if useWeather {
					prob *= weather.At(row, col)
				}
				if s.rng.Float64() < prob {
					susceptible.Set(row, col, sus-1)
					infected.Set(row, col, infected.At(row, col)+1)
					if cohort != nil {
						cohort.Set(row, col, cohort.At(row, col)+1)
					}
				}
			}
		}
	}
}

// Remove moves all infected hosts back to susceptible in cells whose
// temperature is below the lethal threshold.
func (s *Sporulation) Remove(infected, susceptible *raster.Grid[int], temperature *raster.Grid[float64], lethal float64) {
	for i, temp := range temperature.Cells() {
		if temp >= lethal {
			continue
		}
		inf := infected.Cells()[i]
		if inf > 0 {
			susceptible.Cells()[i] += inf
			infected.Cells()[i] = 0
		}
	}
}

// poisson is Knuth's sampler; adequate for the small per-host rates used
// here.
func (s *Sporulation) poisson(lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	limit := math.Exp(-lambda)
	k := 0
	p := 1.0
	for {
		p *= s.rng.Float64()
		if p <= limit {
			return k
		}
		k++
	}
}
