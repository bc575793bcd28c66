package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Expected headers after the source's abbreviated column names are renamed to
// analysis names. Loaders fail fast on any mismatch so a reordered or renamed
// column can never silently land in the wrong field.
var (
	measurementHeader = []string{"file", "marker", "population", "temp_C", "mass_g", "rate_h1", "rate_h2", "rate_h3"}
	climateHeader     = []string{"population", "season", "elev_m", "ppt_mm", "tmin_C", "tmean_C", "tmax_C", "trange_C", "lat", "lon"}
)

// Warn is called for non-fatal load conditions (dropped sentinel rows,
// unparsable optional cells). Overridable in tests.
var Warn = func(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "⚠ "+format+"\n", args...)
}

// LoadMeasurements reads the respirometry table. Empty rate cells become NaN
// (missing); empty mass or temperature is an error since the fit cannot use
// the row at all.
func LoadMeasurements(path string) ([]Observation, error) {
	rows, err := readTable(path, measurementHeader)
	if err != nil {
		return nil, err
	}
	out := make([]Observation, 0, len(rows))
	for i, rec := range rows {
		o := Observation{
			File:       strings.TrimSpace(rec[0]),
			Marker:     strings.TrimSpace(rec[1]),
			Population: strings.TrimSpace(rec[2]),
		}
		if o.Population == "" {
			return nil, fmt.Errorf("%s row %d: empty population", path, i+2)
		}
		if o.TempC, err = parseFloat(rec[3]); err != nil {
			return nil, fmt.Errorf("%s row %d temp_C: %w", path, i+2, err)
		}
		if o.MassG, err = parseFloat(rec[4]); err != nil {
			return nil, fmt.Errorf("%s row %d mass_g: %w", path, i+2, err)
		}
		if o.MassG <= 0 {
			return nil, fmt.Errorf("%s row %d: mass_g must be positive, got %g", path, i+2, o.MassG)
		}
		for h := 0; h < 3; h++ {
			cell := strings.TrimSpace(rec[5+h])
			if cell == "" || strings.EqualFold(cell, "na") {
				o.Rates[h] = math.NaN()
				continue
			}
			if o.Rates[h], err = parseFloat(cell); err != nil {
				return nil, fmt.Errorf("%s row %d rate_h%d: %w", path, i+2, h+1, err)
			}
		}
		out = append(out, o)
	}
	return out, nil
}

// Sentinel prefixes marking note rows in the climate table. The original
// source dropped two such rows by fixed position; matching on content keeps
// the exclusion honest when the file is re-exported.
var climateSentinels = []string{"note", "source"}

func isSentinelPopulation(pop string) bool {
	if pop == "" {
		return true
	}
	lower := strings.ToLower(pop)
	for _, s := range climateSentinels {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// LoadClimate reads the climate/geography table. Rows whose population field
// is empty or a note sentinel are dropped with a warning rather than by row
// position.
func LoadClimate(path string) ([]ClimateRecord, error) {
	rows, err := readTable(path, climateHeader)
	if err != nil {
		return nil, err
	}
	out := make([]ClimateRecord, 0, len(rows))
	for i, rec := range rows {
		pop := strings.TrimSpace(rec[0])
		if isSentinelPopulation(pop) {
			Warn("%s row %d: dropping non-data row (population=%q)", path, i+2, pop)
			continue
		}
		r := ClimateRecord{
			Population: pop,
			Season:     strings.ToLower(strings.TrimSpace(rec[1])),
		}
		fields := []struct {
			name string
			dst  *float64
			col  int
		}{
			{"elev_m", &r.ElevM, 2},
			{"ppt_mm", &r.PptMM, 3},
			{"tmin_C", &r.TminC, 4},
			{"tmean_C", &r.TmeanC, 5},
			{"tmax_C", &r.TmaxC, 6},
			{"trange_C", &r.TrangeC, 7},
			{"lat", &r.Lat, 8},
			{"lon", &r.Lon, 9},
		}
		for _, f := range fields {
			if *f.dst, err = parseFloat(rec[f.col]); err != nil {
				return nil, fmt.Errorf("%s row %d %s: %w", path, i+2, f.name, err)
			}
		}
		out = append(out, r)
	}
	return out, nil
}

// readTable opens a delimited file, validates the header against want, and
// returns the data rows. Delimiter is sniffed from the extension (.tsv → tab).
func readTable(path string, want []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.Comma = sniffDelimiter(path)

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: empty file, expected header %v", path, want)
		}
		return nil, fmt.Errorf("%s: read header: %w", path, err)
	}
	if err := checkHeader(path, header, want); err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%s: read row %d: %w", path, len(rows)+2, err)
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func checkHeader(path string, got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("%s: expected %d columns %v, got %d", path, len(want), want, len(got))
	}
	for i := range want {
		if strings.TrimSpace(got[i]) != want[i] {
			return fmt.Errorf("%s: column %d is %q, expected %q (full expected header: %v)",
				path, i+1, strings.TrimSpace(got[i]), want[i], want)
		}
	}
	return nil
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", strings.TrimSpace(s), err)
	}
	return v, nil
}
