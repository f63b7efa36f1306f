package sim

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"

	"spreadsim/internal/raster"
)

// SpreadRate tracks how fast the infection front moves in each compass
// direction, measured from the bounding box of infected cells year over
// year. Rates are in map units per year; NaN marks years where a
// direction had no measurable front.
type SpreadRate struct {
	ewRes, nsRes float64
	bbox         bbox
	rates        [][4]float64 // N, S, E, W per year
}

type bbox struct {
	minRow, maxRow, minCol, maxCol int
	empty                          bool
}

func infectedBBox(inf *raster.Grid[int]) bbox {
	b := bbox{minRow: inf.Rows, maxRow: -1, minCol: inf.Cols, maxCol: -1, empty: true}
	for r := 0; r < inf.Rows; r++ {
		for c := 0; c < inf.Cols; c++ {
			if inf.At(r, c) <= 0 {
				continue
			}
			b.empty = false
			if r < b.minRow {
				b.minRow = r
			}
			if r > b.maxRow {
				b.maxRow = r
			}
			if c < b.minCol {
				b.minCol = c
			}
			if c > b.maxCol {
				b.maxCol = c
			}
		}
	}
	return b
}

// NewSpreadRate initializes a tracker from the starting infection.
func NewSpreadRate(infected *raster.Grid[int], ewRes, nsRes float64, years int) *SpreadRate {
	return &SpreadRate{
		ewRes: ewRes,
		nsRes: nsRes,
		bbox:  infectedBBox(infected),
		rates: make([][4]float64, years),
	}
}

// Compute records the rates for yearIndex (0-based) from the current
// infected raster and advances the reference bounding box.
func (s *SpreadRate) Compute(yearIndex int, infected *raster.Grid[int]) {
	cur := infectedBBox(infected)
	nan := math.NaN()
	if cur.empty || s.bbox.empty {
		s.rates[yearIndex] = [4]float64{nan, nan, nan, nan}
	} else {
		// Rows grow southward, so the north front moves as minRow shrinks.
		s.rates[yearIndex] = [4]float64{
			float64(s.bbox.minRow-cur.minRow) * s.nsRes,
			float64(cur.maxRow-s.bbox.maxRow) * s.nsRes,
			float64(cur.maxCol-s.bbox.maxCol) * s.ewRes,
			float64(s.bbox.minCol-cur.minCol) * s.ewRes,
		}
	}
	s.bbox = cur
}

// YearRate returns the recorded rates for yearIndex.
func (s *SpreadRate) YearRate(yearIndex int) (n, so, e, w float64) {
	r := s.rates[yearIndex]
	return r[0], r[1], r[2], r[3]
}

// AverageSpreadRate averages one year's rates across all runs, skipping
// runs where a direction was NaN. A direction with no valid run stays
// NaN.
func AverageSpreadRate(trackers []*SpreadRate, yearIndex int) [4]float64 {
	var sum [4]float64
	var count [4]int
	for _, tr := range trackers {
		r := tr.rates[yearIndex]
		for d := 0; d < 4; d++ {
			if math.IsNaN(r[d]) {
				continue
			}
			sum[d] += r[d]
			count[d]++
		}
	}
	out := [4]float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()}
	for d := 0; d < 4; d++ {
		if count[d] > 0 {
			out[d] = sum[d] / float64(count[d])
		}
	}
	return out
}

// WriteSpreadRateCSV writes the per-year ensemble-average rates as CSV
// with a year,N,S,E,W header. NaN renders as an empty field.
func WriteSpreadRateCSV(w io.Writer, startYear, years int, trackers []*SpreadRate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"year", "N", "S", "E", "W"}); err != nil {
		return err
	}
	format := func(v float64) string {
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	for y := 0; y < years; y++ {
		avg := AverageSpreadRate(trackers, y)
		rec := []string{
			strconv.Itoa(startYear + y),
			format(avg[0]), format(avg[1]), format(avg[2]), format(avg[3]),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
