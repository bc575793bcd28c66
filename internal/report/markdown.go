package report

import (
	"fmt"
	"strings"
)

// Markdown renders the run as a report with one block per pipeline stage.
func (d *Data) Markdown() string {
	var b strings.Builder

	b.WriteString("[RUN]\n")
	if d.Manifest != nil {
		m := d.Manifest
		b.WriteString(fmt.Sprintf("Run: %s\n", m.RunID))
		b.WriteString(fmt.Sprintf("Measurements: %s (%d rows, %d long)\n", m.MeasurementsPath, m.MeasurementRows, m.LongRows))
		b.WriteString(fmt.Sprintf("Climate: %s (%d rows)\n", m.ClimatePath, m.ClimateRows))
		b.WriteString(fmt.Sprintf("Excluded for missing rate: %d\n", m.ExcludedMissingRate))
		if len(m.UnmatchedPops) > 0 {
			b.WriteString(fmt.Sprintf("Populations without climate record: %s\n", strings.Join(m.UnmatchedPops, ", ")))
		}
	}

	if d.Fit != nil {
		f := d.Fit
		b.WriteString("\n[MIXED MODEL]\n")
		b.WriteString("rate ~ mass + population + temperature + population:temperature + (1|hour), REML\n")
		b.WriteString(fmt.Sprintf("n=%d, fixed effects=%d, residual df=%d\n", f.N, len(f.Beta), f.DfResid))
		b.WriteString(fmt.Sprintf("var(hour)=%.6g, var(resid)=%.6g, REML criterion=%.6g\n", f.SigmaHour2, f.SigmaResid2, f.REML))
		if !f.Converged {
			b.WriteString(fmt.Sprintf("⚠ fit did not converge: %s\n", f.Message))
		} else if f.Message != "" {
			b.WriteString(fmt.Sprintf("note: %s\n", f.Message))
		}
		b.WriteString("\n| coefficient | estimate | se | t |\n| --- | --- | --- | --- |\n")
		for i, name := range f.Design.Names {
			b.WriteString(fmt.Sprintf("| %s | %.5g | %.5g | %.3f |\n", name, f.Beta[i], f.SE[i], f.T[i]))
		}
	}

	if d.Anova != nil {
		b.WriteString("\n[ANOVA]\n")
		b.WriteString("| term | F | df | p | partial eta^2 |\n| --- | --- | --- | --- | --- |\n")
		for _, a := range d.Anova {
			b.WriteString(fmt.Sprintf("| %s | %.4g | %d, %d | %.4g | %.3f |\n",
				a.Term, a.F, a.DfNum, a.DfDen, a.PValue, a.PartialEtaSq))
		}
		g := d.Diag
		b.WriteString(fmt.Sprintf("\nResiduals: mean %.4g, sd %.4g, skew %.3f, excess kurtosis %.3f\n",
			g.ResidMean, g.ResidSD, g.Skewness, g.ExKurtosis))
		b.WriteString(fmt.Sprintf("Residual variance by fitted tercile: %.4g / %.4g / %.4g\n",
			g.VarByFittedTercile[0], g.VarByFittedTercile[1], g.VarByFittedTercile[2]))
	}

	if d.Emmeans != nil {
		b.WriteString("\n[MARGINAL MEANS]\n")
		b.WriteString("Mass held at its complete-case mean; comparison intervals adjusted for within-temperature pairwise contrasts.\n")
		b.WriteString("| population | temp_C | emmean | se | CI | comparison | n |\n| --- | --- | --- | --- | --- | --- | --- |\n")
		for _, e := range d.Emmeans {
			b.WriteString(fmt.Sprintf("| %s | %g | %.4g | %.4g | [%.4g, %.4g] | [%.4g, %.4g] | %d |\n",
				e.Population, e.TempC, e.Mean, e.SE, e.CILo, e.CIHi, e.CompLo, e.CompHi, e.CellCount))
		}
	}

	if d.PCA != nil {
		b.WriteString("\n[PCA]\n")
		b.WriteString(fmt.Sprintf("%d populations × %d climate/geography variables, standardized.\n",
			len(d.PCA.Populations), len(d.PCA.Columns)))
		b.WriteString("| component | var frac | cumulative |\n| --- | --- | --- |\n")
		cum := 0.0
		for i, f := range d.PCA.VarFrac {
			cum += f
			b.WriteString(fmt.Sprintf("| PC%d | %.3f | %.3f |\n", i+1, f, cum))
		}
	}

	if d.Regressions != nil {
		b.WriteString("\n[REGRESSIONS]\n")
		b.WriteString("Marginal-mean rate vs component score, one OLS per (temperature, component); n equals the population count, so power is limited.\n")
		b.WriteString("| temp_C | component | slope | r2 | adj r2 | p | AIC | n |\n| --- | --- | --- | --- | --- | --- | --- | --- |\n")
		for _, r := range d.Regressions {
			b.WriteString(fmt.Sprintf("| %g | PC%d | %.4g | %.3f | %.3f | %.4g | %.4g | %d |\n",
				r.TempC, r.Component, r.Slope, r.R2, r.AdjR2, r.PValue, r.AIC, r.N))
		}
	}

	if d.InQuarantine != nil && d.Wide != nil {
		b.WriteString("\n[QUARANTINE]\n")
		var inside, outside []string
		for _, p := range d.Wide.Populations {
			if d.InQuarantine[p] {
				inside = append(inside, p)
			} else {
				outside = append(outside, p)
			}
		}
		b.WriteString(fmt.Sprintf("Inside boundary: %s\n", strings.Join(inside, ", ")))
		b.WriteString(fmt.Sprintf("Outside boundary: %s\n", strings.Join(outside, ", ")))
	}

	if d.Manifest != nil && len(d.Manifest.Warnings) > 0 {
		b.WriteString("\n[WARNINGS]\n")
		for _, w := range d.Manifest.Warnings {
			b.WriteString("- " + w + "\n")
		}
	}
	return b.String()
}
