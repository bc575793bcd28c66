package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/MothMetrics/respclim-cli/internal/dataset"
	"github.com/MothMetrics/respclim-cli/internal/emmeans"
	"github.com/MothMetrics/respclim-cli/internal/mixedmodel"
	"github.com/MothMetrics/respclim-cli/internal/pca"
	"github.com/MothMetrics/respclim-cli/internal/regress"
	"github.com/MothMetrics/respclim-cli/internal/utils"
)

// Data bundles every derived entity of one run for serialization.
type Data struct {
	Fit          *mixedmodel.Fit
	Anova        []mixedmodel.AnovaRow
	Diag         mixedmodel.Diagnostics
	Emmeans      []emmeans.Estimate
	PCA          *pca.Result
	Regressions  []regress.Result
	Wide         *dataset.WideClimate
	InQuarantine map[string]bool // nil when no boundary was supplied
	Manifest     *Manifest
}

// WriteArtifacts writes one CSV file per derived entity into dir.
func (d *Data) WriteArtifacts(dir string) error {
	if err := utils.EnsureDir(dir); err != nil {
		return fmt.Errorf("ensure output dir: %w", err)
	}
	writers := []struct {
		name string
		fn   func() ([]string, [][]string)
	}{
		{"coefficients.csv", d.coefficientRows},
		{"anova.csv", d.anovaRows},
		{"emmeans.csv", d.emmeanRows},
		{"pca_scores.csv", d.pcaScoreRows},
		{"pca_loadings.csv", d.pcaLoadingRows},
		{"pca_variance.csv", d.pcaVarianceRows},
		{"regressions.csv", d.regressionRows},
		{"climate_wide.csv", d.climateWideRows},
	}
	for _, w := range writers {
		header, rows := w.fn()
		if header == nil {
			continue
		}
		if err := writeCSV(filepath.Join(dir, w.name), header, rows); err != nil {
			return fmt.Errorf("write %s: %w", w.name, err)
		}
	}
	return nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', 10, 64) }
func itoa(v int) string     { return strconv.Itoa(v) }

func (d *Data) coefficientRows() ([]string, [][]string) {
	if d.Fit == nil {
		return nil, nil
	}
	header := []string{"coefficient", "estimate", "se", "t"}
	var rows [][]string
	for i, name := range d.Fit.Design.Names {
		rows = append(rows, []string{name, ftoa(d.Fit.Beta[i]), ftoa(d.Fit.SE[i]), ftoa(d.Fit.T[i])})
	}
	return header, rows
}

func (d *Data) anovaRows() ([]string, [][]string) {
	if d.Anova == nil {
		return nil, nil
	}
	header := []string{"term", "F", "df_num", "df_den", "p_value", "partial_eta_sq"}
	var rows [][]string
	for _, a := range d.Anova {
		rows = append(rows, []string{a.Term, ftoa(a.F), itoa(a.DfNum), itoa(a.DfDen), ftoa(a.PValue), ftoa(a.PartialEtaSq)})
	}
	return header, rows
}

func (d *Data) emmeanRows() ([]string, [][]string) {
	if d.Emmeans == nil {
		return nil, nil
	}
	header := []string{"population", "temp_C", "emmean", "se", "ci_lo", "ci_hi", "comp_lo", "comp_hi", "cell_n"}
	var rows [][]string
	for _, e := range d.Emmeans {
		rows = append(rows, []string{
			e.Population, ftoa(e.TempC), ftoa(e.Mean), ftoa(e.SE),
			ftoa(e.CILo), ftoa(e.CIHi), ftoa(e.CompLo), ftoa(e.CompHi), itoa(e.CellCount),
		})
	}
	return header, rows
}

func (d *Data) pcaScoreRows() ([]string, [][]string) {
	if d.PCA == nil {
		return nil, nil
	}
	k := d.PCA.Components()
	header := []string{"population"}
	for c := 1; c <= k; c++ {
		header = append(header, fmt.Sprintf("PC%d", c))
	}
	var rows [][]string
	for i, p := range d.PCA.Populations {
		row := []string{p}
		for c := 0; c < k; c++ {
			row = append(row, ftoa(d.PCA.Score(i, c)))
		}
		rows = append(rows, row)
	}
	return header, rows
}

func (d *Data) pcaLoadingRows() ([]string, [][]string) {
	if d.PCA == nil {
		return nil, nil
	}
	k := d.PCA.Components()
	header := []string{"variable"}
	for c := 1; c <= k; c++ {
		header = append(header, fmt.Sprintf("PC%d", c))
	}
	var rows [][]string
	for j, v := range d.PCA.Columns {
		row := []string{v}
		for c := 0; c < k; c++ {
			row = append(row, ftoa(d.PCA.Loadings.At(j, c)))
		}
		rows = append(rows, row)
	}
	return header, rows
}

func (d *Data) pcaVarianceRows() ([]string, [][]string) {
	if d.PCA == nil {
		return nil, nil
	}
	header := []string{"component", "var_frac", "cum_var_frac"}
	var rows [][]string
	cum := 0.0
	for i, f := range d.PCA.VarFrac {
		cum += f
		rows = append(rows, []string{fmt.Sprintf("PC%d", i+1), ftoa(f), ftoa(cum)})
	}
	return header, rows
}

func (d *Data) regressionRows() ([]string, [][]string) {
	if d.Regressions == nil {
		return nil, nil
	}
	header := []string{"temp_C", "component", "slope", "intercept", "r2", "adj_r2", "p_value", "aic", "df_resid", "n"}
	var rows [][]string
	for _, r := range d.Regressions {
		rows = append(rows, []string{
			ftoa(r.TempC), fmt.Sprintf("PC%d", r.Component), ftoa(r.Slope), ftoa(r.Intercept),
			ftoa(r.R2), ftoa(r.AdjR2), ftoa(r.PValue), ftoa(r.AIC), itoa(r.DfResid), itoa(r.N),
		})
	}
	return header, rows
}

func (d *Data) climateWideRows() ([]string, [][]string) {
	if d.Wide == nil {
		return nil, nil
	}
	header := append([]string{"population"}, d.Wide.Columns...)
	if d.InQuarantine != nil {
		header = append(header, "in_quarantine")
	}
	var rows [][]string
	for i, p := range d.Wide.Populations {
		row := []string{p}
		for _, v := range d.Wide.Rows[i] {
			row = append(row, ftoa(v))
		}
		if d.InQuarantine != nil {
			row = append(row, strconv.FormatBool(d.InQuarantine[p]))
		}
		rows = append(rows, row)
	}
	return header, rows
}
