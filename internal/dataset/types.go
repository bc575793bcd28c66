// Package dataset loads and reshapes the two input tables of the pipeline:
// repeated-measures respirometry readings and per-population climate normals.
package dataset

import (
	"math"
	"sort"
)

// Observation is one respirometry trial in wide form: three hourly oxygen
// consumption readings for one caterpillar. Missing rates are NaN.
type Observation struct {
	File       string
	Marker     string
	Population string
	TempC      float64
	MassG      float64
	Rates      [3]float64 // µL/hr at hours 1..3
}

// LongObservation is one (individual, hour) row after pivoting. Lat is NaN
// until joined, and stays NaN for populations absent from the climate table.
type LongObservation struct {
	File       string
	Marker     string
	Population string
	TempC      float64
	MassG      float64
	Hour       int
	RateULHr   float64
	Lat        float64
}

// Season labels present in the climate table. "Annual" aggregate rows are
// kept in the record set but never enter the wide climate matrix.
var Seasons = []string{"winter", "spring", "summer", "fall"}

// ClimateRecord is one population's normals for one season plus its static
// geography.
type ClimateRecord struct {
	Population string
	Season     string
	ElevM      float64
	PptMM      float64
	TminC      float64
	TmeanC     float64
	TmaxC      float64
	TrangeC    float64
	Lat        float64
	Lon        float64
}

// Levels pins categorical factor ordering; the first entry of each slice is
// the reference level for the one-hot encoding.
type Levels struct {
	Populations []string
	Temps       []float64
}

// BuildLevels derives factor levels from the long table. Only rows with a
// valid response contribute: a level observed solely with missing rates would
// otherwise produce an all-zero design column. Populations follow the given
// policy ("alphabetical" or "first-seen"); temperatures are always sorted
// ascending so 15 °C stays the reference regardless of row order.
func BuildLevels(rows []LongObservation, policy string) Levels {
	var pops []string
	seen := map[string]bool{}
	for _, r := range rows {
		if math.IsNaN(r.RateULHr) {
			continue
		}
		if !seen[r.Population] {
			seen[r.Population] = true
			pops = append(pops, r.Population)
		}
	}
	if policy != "first-seen" {
		sort.Strings(pops)
	}

	var temps []float64
	seenT := map[float64]bool{}
	for _, r := range rows {
		if math.IsNaN(r.RateULHr) {
			continue
		}
		if !seenT[r.TempC] {
			seenT[r.TempC] = true
			temps = append(temps, r.TempC)
		}
	}
	sort.Float64s(temps)
	return Levels{Populations: pops, Temps: temps}
}

// PopIndex returns the index of pop in the pinned ordering, or -1.
func (l Levels) PopIndex(pop string) int {
	for i, p := range l.Populations {
		if p == pop {
			return i
		}
	}
	return -1
}

// TempIndex returns the index of t in the pinned ordering, or -1.
func (l Levels) TempIndex(t float64) int {
	for i, v := range l.Temps {
		if v == t {
			return i
		}
	}
	return -1
}

// WideClimate is the PCA input: one row per population, one column per
// static geography variable plus each (season × climate variable) pair.
type WideClimate struct {
	Populations []string
	Columns     []string
	Rows        [][]float64
}
