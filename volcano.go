// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"fmt"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// volcanoPoint is one locus on the volcano plot. Label is empty for
// unlabelled points.
type volcanoPoint struct {
	Locus string
	Gene  string
	X     float64 // LogFC
	Y     float64 // -log10 adjusted p
	Label string
}

// volcanoPoints places loci on the volcano plot. Loci whose gene has
// at most maxLabelLoci loci are labelled with the gene name, and the
// locus with the most negative LogFC is labelled with its own ID.
func volcanoPoints(loci []annotatedLocus, maxLabelLoci int) []volcanoPoint {
	count := map[string]int{}
	for _, al := range loci {
		count[al.Gene]++
	}
	pts := make([]volcanoPoint, 0, len(loci))
	mostNegative := -1
	for i, al := range loci {
		pt := volcanoPoint{
			Locus: al.Locus,
			Gene:  al.Gene,
			X:     al.LogFC,
			Y:     -math.Log10(math.Max(al.AdjPValue, math.SmallestNonzeroFloat64)),
		}
		if al.HasGene && count[al.Gene] <= maxLabelLoci {
			pt.Label = al.Gene
		}
		if !math.IsNaN(al.LogFC) && (mostNegative < 0 || al.LogFC < loci[mostNegative].LogFC) {
			mostNegative = i
		}
		pts = append(pts, pt)
	}
	if mostNegative >= 0 {
		pts[mostNegative].Label = pts[mostNegative].Locus
	}
	return pts
}

// volcanoPlot renders the points colored by gene, with the
// significance threshold drawn as a dashed line.
func volcanoPlot(pts []volcanoPoint, threshold float64) (*plot.Plot, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("volcano: no loci to plot")
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Differential methylation, %d loci", len(pts))
	p.X.Label.Text = "log fold change (beta)"
	p.Y.Label.Text = "-log10 adjusted p"

	genes := make([]string, len(pts))
	for i, pt := range pts {
		genes[i] = pt.Gene
	}
	colors := categoryColors(genes)
	byGene := map[string]plotter.XYs{}
	for _, pt := range pts {
		byGene[pt.Gene] = append(byGene[pt.Gene], plotter.XY{X: pt.X, Y: pt.Y})
	}
	for _, gene := range sortedKeys(colors) {
		sc, err := plotter.NewScatter(byGene[gene])
		if err != nil {
			return nil, fmt.Errorf("volcano: gene %q: %w", gene, err)
		}
		sc.GlyphStyle.Color = colors[gene]
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(3)
		p.Add(sc)
		name := gene
		if name == "" {
			name = "(no gene)"
		}
		p.Legend.Add(name, sc)
	}

	var lxy plotter.XYs
	var labels []string
	for _, pt := range pts {
		if pt.Label != "" {
			lxy = append(lxy, plotter.XY{X: pt.X, Y: pt.Y})
			labels = append(labels, pt.Label)
		}
	}
	if len(labels) > 0 {
		lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: lxy, Labels: labels})
		if err != nil {
			return nil, fmt.Errorf("volcano labels: %w", err)
		}
		p.Add(lbl)
	}

	cutoff := -math.Log10(threshold)
	line := plotter.NewFunction(func(float64) float64 { return cutoff })
	line.Dashes = []vg.Length{vg.Points(3), vg.Points(3)}
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("adj p = %g", threshold), line)
	p.Legend.Top = true
	return p, nil
}
