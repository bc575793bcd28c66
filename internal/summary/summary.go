// Package summary produces a quick column-level profile of an input table,
// used by the inspect command before running the pipeline proper.
package summary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Options controls profiling behavior.
type Options struct {
	// Delimiter for the table. If 0, auto-detects from the extension.
	Delimiter rune
	// SampleRows determines how many example rows to include in the report.
	SampleRows int
}

// DefaultOptions returns reasonable defaults.
func DefaultOptions() Options {
	return Options{SampleRows: 5}
}

// Report is a markdown-friendly profile of a tabular dataset.
type Report struct {
	Name    string
	Rows    int
	Cols    []ColumnSummary
	Samples [][]string
}

// ColumnSummary captures inferred type and statistics per column.
type ColumnSummary struct {
	Name    string
	Kind    string // numeric | categorical
	NonNull int
	Missing int
	// Numeric stats
	Min  float64
	Max  float64
	Mean float64
	Std  float64
	// Categorical top values
	TopValues []CategoryCount
	Unique    int
}

type CategoryCount struct {
	Value string
	Count int
}

// Profile reads a delimited file and summarizes every column.
func Profile(path string, opt Options) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	delim := opt.Delimiter
	if delim == 0 {
		delim = ','
		if strings.HasSuffix(strings.ToLower(path), ".tsv") {
			delim = '\t'
		}
	}
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &Report{Name: filepath.Base(path)}, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	ncol := len(header)

	type colAcc struct {
		name   string
		miss   int
		vals   []float64
		numCnt int
		txtCnt int
		cats   map[string]int
	}
	cols := make([]*colAcc, ncol)
	for i := range header {
		cols[i] = &colAcc{name: strings.TrimSpace(header[i]), cats: map[string]int{}}
	}

	rep := &Report{Name: filepath.Base(path)}
	sampleRows := opt.SampleRows
	if sampleRows <= 0 {
		sampleRows = 5
	}
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", rep.Rows+1, err)
		}
		rep.Rows++
		if len(rec) < ncol {
			tmp := make([]string, ncol)
			copy(tmp, rec)
			rec = tmp
		}
		if len(rep.Samples) < sampleRows {
			rowCopy := make([]string, ncol)
			copy(rowCopy, rec)
			rep.Samples = append(rep.Samples, rowCopy)
		}
		for j := 0; j < ncol; j++ {
			v := strings.TrimSpace(rec[j])
			c := cols[j]
			if v == "" || strings.EqualFold(v, "na") {
				c.miss++
				continue
			}
			if x, err := strconv.ParseFloat(v, 64); err == nil {
				c.numCnt++
				c.vals = append(c.vals, x)
				continue
			}
			c.txtCnt++
			c.cats[v]++
		}
	}

	for _, c := range cols {
		s := ColumnSummary{Name: c.name, NonNull: c.numCnt + c.txtCnt, Missing: c.miss}
		if c.numCnt >= c.txtCnt && c.numCnt > 0 {
			s.Kind = "numeric"
			s.Min = floats(c.vals).min()
			s.Max = floats(c.vals).max()
			s.Mean = stat.Mean(c.vals, nil)
			if len(c.vals) > 1 {
				s.Std = stat.StdDev(c.vals, nil)
			}
		} else {
			s.Kind = "categorical"
			tops := make([]CategoryCount, 0, len(c.cats))
			for k, v := range c.cats {
				tops = append(tops, CategoryCount{Value: k, Count: v})
			}
			sort.Slice(tops, func(i, j int) bool {
				if tops[i].Count == tops[j].Count {
					return tops[i].Value < tops[j].Value
				}
				return tops[i].Count > tops[j].Count
			})
			if len(tops) > 8 {
				tops = tops[:8]
			}
			s.TopValues = tops
			s.Unique = len(c.cats)
		}
		rep.Cols = append(rep.Cols, s)
	}
	return rep, nil
}

type floats []float64

func (f floats) min() float64 {
	m := f[0]
	for _, v := range f[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func (f floats) max() float64 {
	m := f[0]
	for _, v := range f[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// Markdown renders a compact profile.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", r.Rows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(r.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range r.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", c.Name, c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case "numeric":
			b.WriteString(fmt.Sprintf(" — min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
		case "categorical":
			if len(c.TopValues) > 0 {
				b.WriteString(" — top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", kv.Value, kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		}
		b.WriteString("\n")
	}

	if len(r.Samples) > 0 {
		b.WriteString("\n[SAMPLE ROWS]\n")
		b.WriteString("| ")
		for i, c := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(c.Name)
		}
		b.WriteString(" |\n| ")
		for i := range r.Cols {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range r.Samples {
			b.WriteString("| ")
			for i := range r.Cols {
				if i > 0 {
					b.WriteString(" | ")
				}
				if i < len(row) {
					b.WriteString(strings.ReplaceAll(row[i], "|", "/"))
				}
			}
			b.WriteString(" |\n")
		}
	}
	return b.String()
}
