package sim

import (
	"fmt"
	"strings"

	"spreadsim/internal/raster"
)

// TreatmentApplication controls how a treatment ratio acts on infected
// hosts.
type TreatmentApplication int

const (
	// RatioToAll removes the treated ratio of both susceptible and
	// infected hosts in every treated cell.
	RatioToAll TreatmentApplication = iota
	// AllInfectedInCell removes the treated ratio of susceptible hosts
	// but every infected host in any treated cell.
	AllInfectedInCell
)

// ParseTreatmentApplication reads the configuration token.
func ParseTreatmentApplication(s string) (TreatmentApplication, error) {
	switch strings.ToLower(s) {
	case "ratio_to_all", "ratio", "":
		return RatioToAll, nil
	case "all_infected_in_cell":
		return AllInfectedInCell, nil
	}
	return 0, fmt.Errorf("unknown treatment application %q", s)
}

type treatment struct {
	ratio *raster.Grid[float64]
	year  int
	app   TreatmentApplication
}

// Treatments schedules per-year treatment rasters. Each raster holds the
// fraction of hosts removed per cell, zero meaning untreated.
type Treatments struct {
	list []treatment
}

// Add schedules a treatment raster for a simulation year. Steering can
// add treatments at any time, including for years already scheduled.
func (t *Treatments) Add(ratio *raster.Grid[float64], year int, app TreatmentApplication) {
	t.list = append(t.list, treatment{ratio: ratio, year: year, app: app})
}

// ClearAfterYear drops treatments scheduled in or after year. Used when
// a freshly loaded treatment plan replaces the tail of the schedule,
// including any plan already scheduled for that same year.
func (t *Treatments) ClearAfterYear(year int) {
	kept := t.list[:0]
	for _, tr := range t.list {
		if tr.year < year {
			kept = append(kept, tr)
		}
	}
	t.list = kept
}

// HasYear reports whether any treatment is scheduled for year.
func (t *Treatments) HasYear(year int) bool {
	for _, tr := range t.list {
		if tr.year == year {
			return true
		}
	}
	return false
}

// ApplyHost applies every treatment scheduled for year to the host
// rasters and reports whether anything was applied.
func (t *Treatments) ApplyHost(year int, infected, susceptible *raster.Grid[int]) bool {
	applied := false
	for _, tr := range t.list {
		if tr.year != year {
			continue
		}
		applied = true
		for i, ratio := range tr.ratio.Cells() {
			if ratio <= 0 {
				continue
			}
			sus := susceptible.Cells()[i]
			susceptible.Cells()[i] = sus - int(float64(sus)*ratio)
			inf := infected.Cells()[i]
			switch tr.app {
			case AllInfectedInCell:
				infected.Cells()[i] = 0
			default:
				infected.Cells()[i] = inf - int(float64(inf)*ratio)
			}
		}
	}
	return applied
}

// ApplyCohorts applies year's treatments to mortality cohorts so the
// cohort bookkeeping matches the treated infected raster.
func (t *Treatments) ApplyCohorts(year int, cohorts []*raster.Grid[int]) {
	for _, tr := range t.list {
		if tr.year != year {
			continue
		}
		for _, cohort := range cohorts {
			for i, ratio := range tr.ratio.Cells() {
				if ratio <= 0 {
					continue
				}
				n := cohort.Cells()[i]
				switch tr.app {
				case AllInfectedInCell:
					cohort.Cells()[i] = 0
				default:
					cohort.Cells()[i] = n - int(float64(n)*ratio)
				}
			}
		}
	}
}
