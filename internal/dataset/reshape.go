package dataset

import (
	"fmt"
	"math"
)

// PivotLong converts the wide measurement table to one row per
// (individual, hour). Row count is exactly 3× the input and every non-rate
// column is carried through unchanged.
func PivotLong(obs []Observation) []LongObservation {
	out := make([]LongObservation, 0, len(obs)*3)
	for _, o := range obs {
		for h := 0; h < 3; h++ {
			out = append(out, LongObservation{
				File:       o.File,
				Marker:     o.Marker,
				Population: o.Population,
				TempC:      o.TempC,
				MassG:      o.MassG,
				Hour:       h + 1,
				RateULHr:   o.Rates[h],
				Lat:        math.NaN(),
			})
		}
	}
	return out
}

// JoinLatitude attaches each population's latitude to every long row.
// Populations without a climate record keep NaN latitude; the join never
// invents a value. Returns the joined rows and the populations left unmatched.
func JoinLatitude(rows []LongObservation, climate []ClimateRecord) ([]LongObservation, []string) {
	lat := make(map[string]float64)
	for _, c := range climate {
		lat[c.Population] = c.Lat
	}
	missing := map[string]bool{}
	out := make([]LongObservation, len(rows))
	for i, r := range rows {
		out[i] = r
		if v, ok := lat[r.Population]; ok {
			out[i].Lat = v
		} else {
			missing[r.Population] = true
		}
	}
	var unmatched []string
	for p := range missing {
		unmatched = append(unmatched, p)
	}
	return out, unmatched
}

// climate variables folded into wide columns, in fixed order
var climateVars = []string{"ppt_mm", "tmin_C", "tmean_C", "tmax_C", "trange_C"}

// BuildWideClimate folds season into column names: one row per population with
// static geography first, then season × variable columns. Annual rows are
// skipped. Errors on a duplicated or missing (population, season) cell.
func BuildWideClimate(records []ClimateRecord) (*WideClimate, error) {
	byPop := map[string]map[string]ClimateRecord{}
	var pops []string
	for _, r := range records {
		if r.Season == "annual" {
			continue
		}
		if !validSeason(r.Season) {
			return nil, fmt.Errorf("climate: unknown season %q for population %q", r.Season, r.Population)
		}
		m, ok := byPop[r.Population]
		if !ok {
			m = map[string]ClimateRecord{}
			byPop[r.Population] = m
			pops = append(pops, r.Population)
		}
		if _, dup := m[r.Season]; dup {
			return nil, fmt.Errorf("climate: duplicate (%s, %s) row", r.Population, r.Season)
		}
		m[r.Season] = r
	}

	cols := []string{"lat", "lon", "elev_m"}
	for _, s := range Seasons {
		for _, v := range climateVars {
			cols = append(cols, s+"_"+v)
		}
	}

	w := &WideClimate{Columns: cols}
	for _, p := range pops {
		m := byPop[p]
		var geo ClimateRecord
		row := make([]float64, 0, len(cols))
		for _, s := range Seasons {
			r, ok := m[s]
			if !ok {
				return nil, fmt.Errorf("climate: population %q missing season %q", p, s)
			}
			geo = r
		}
		row = append(row, geo.Lat, geo.Lon, geo.ElevM)
		for _, s := range Seasons {
			r := m[s]
			row = append(row, r.PptMM, r.TminC, r.TmeanC, r.TmaxC, r.TrangeC)
		}
		w.Populations = append(w.Populations, p)
		w.Rows = append(w.Rows, row)
	}
	if len(w.Populations) == 0 {
		return nil, fmt.Errorf("climate: no seasonal rows after filtering")
	}
	return w, nil
}

func validSeason(s string) bool {
	for _, v := range Seasons {
		if s == v {
			return true
		}
	}
	return false
}
