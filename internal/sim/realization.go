package sim

import (
	"spreadsim/internal/model"
	"spreadsim/internal/raster"
)

// Realization is the full mutable state of one stochastic run: host
// rasters, mortality cohorts and the run's private dispersal engine.
// The youngest cohort is the last element of Cohorts.
type Realization struct {
	ID          int
	Susceptible *raster.Grid[int]
	Infected    *raster.Grid[int]
	Cohorts     []*raster.Grid[int]
	Dead        *raster.Grid[int]
	Outside     []model.Cell

	engine *model.Sporulation
	kernel model.Kernel
}

// NewRealization clones the initial rasters into a fresh run.
func NewRealization(id int, susceptible, infected *raster.Grid[int], engine *model.Sporulation, kernel model.Kernel) *Realization {
	return &Realization{
		ID:          id,
		Susceptible: susceptible.Clone(),
		Infected:    infected.Clone(),
		Dead:        raster.Like[int](infected),
		engine:      engine,
		kernel:      kernel,
	}
}

// AddCohort opens a new youngest mortality cohort. Called once per
// simulated year when mortality is enabled.
func (r *Realization) AddCohort() {
	r.Cohorts = append(r.Cohorts, raster.Like[int](r.Infected))
}

func (r *Realization) youngestCohort() *raster.Grid[int] {
	if len(r.Cohorts) == 0 {
		return nil
	}
	return r.Cohorts[len(r.Cohorts)-1]
}

// Step runs one generate-and-disperse cycle. total is the shared host
// capacity raster; weather may be nil when useWeather is false.
func (r *Realization) Step(total *raster.Grid[int], useWeather bool, weather *raster.Grid[float64], rate float64) {
	r.engine.Generate(r.Infected, useWeather, weather, rate)
	r.engine.Disperse(r.Susceptible, r.Infected, r.youngestCohort(), total, &r.Outside, useWeather, weather, r.kernel)
}

// RemoveBelowLethal reverts infections in cells colder than the lethal
// threshold.
func (r *Realization) RemoveBelowLethal(temperature *raster.Grid[float64], lethal float64) {
	r.engine.Remove(r.Infected, r.Susceptible, temperature, lethal)
}

// Mortality kills a rate fraction of every cohort old enough to die and
// returns the number of hosts that died. firstYearToDie counts from 1, so
// a value of 1 makes the current year's cohort eligible. Dead hosts leave
// the infected raster and accumulate in Dead.
func (r *Realization) Mortality(rate float64, firstYearToDie int) int64 {
	var died int64
	for i, cohort := range r.Cohorts {
		age := len(r.Cohorts) - 1 - i
		if age < firstYearToDie-1 {
			continue
		}
		for j, n := range cohort.Cells() {
			if n <= 0 {
				continue
			}
			kill := int(rate * float64(n))
			if kill == 0 {
				continue
			}
			cohort.Cells()[j] = n - kill
			r.Infected.Cells()[j] -= kill
			r.Dead.Cells()[j] += kill
			died += int64(kill)
		}
	}
	return died
}

// AllInfected reports whether no susceptible hosts remain.
func (r *Realization) AllInfected() bool {
	return r.Susceptible.Sum() == 0
}

// snapshot captures the run state for checkpointing.
func (r *Realization) snapshot() realizationState {
	st := realizationState{
		Susceptible: r.Susceptible.Clone(),
		Infected:    r.Infected.Clone(),
		Dead:        r.Dead.Clone(),
		Outside:     append([]model.Cell(nil), r.Outside...),
	}
	for _, c := range r.Cohorts {
		st.Cohorts = append(st.Cohorts, c.Clone())
	}
	return st
}

// restore replaces the run state with a checkpointed snapshot.
func (r *Realization) restore(st realizationState) {
	r.Susceptible = st.Susceptible.Clone()
	r.Infected = st.Infected.Clone()
	r.Dead = st.Dead.Clone()
	r.Outside = append([]model.Cell(nil), st.Outside...)
	r.Cohorts = r.Cohorts[:0]
	for _, c := range st.Cohorts {
		r.Cohorts = append(r.Cohorts, c.Clone())
	}
}

// realizationState is the checkpointed form of one run.
type realizationState struct {
	Susceptible *raster.Grid[int]
	Infected    *raster.Grid[int]
	Cohorts     []*raster.Grid[int]
	Dead        *raster.Grid[int]
	Outside     []model.Cell
}
