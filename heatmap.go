// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// heatmapData is the beta-value matrix shown in the heatmap: one row
// per locus in table order, one column per sample in clustered order.
type heatmapData struct {
	Loci       []string
	Chroms     []string
	Samples    []string
	Conditions []string
	Values     *mat.Dense // nil if no loci remain
	// Loci left out because they have missing cells.
	Dropped []string
}

// buildHeatmapData selects the rows of bm named by loci, drops rows
// with missing cells, and orders the sample columns by clustering.
// conds must be aligned with bm.Samples.
func buildHeatmapData(bm *betaMatrix, conds []string, loci []annotatedLocus) (*heatmapData, error) {
	if len(conds) != len(bm.Samples) {
		return nil, fmt.Errorf("bug: %d conditions for %d samples", len(conds), len(bm.Samples))
	}
	rowOf := make(map[string]int, len(bm.Loci))
	for i, id := range bm.Loci {
		rowOf[id] = i
	}
	hd := &heatmapData{}
	var data []float64
	for _, al := range loci {
		i, ok := rowOf[al.Locus]
		if !ok {
			return nil, fmt.Errorf("locus %q is not in the beta matrix", al.Locus)
		}
		row := bm.Row(i)
		if hasNaN(row) {
			hd.Dropped = append(hd.Dropped, al.Locus)
			continue
		}
		hd.Loci = append(hd.Loci, al.Locus)
		hd.Chroms = append(hd.Chroms, al.Chrom)
		data = append(data, row...)
	}
	if len(hd.Dropped) > 0 {
		log.Warnf("heatmap: excluding %d loci with missing values (%s)", len(hd.Dropped), abbrev(hd.Dropped))
	}
	nsamples := len(bm.Samples)
	if len(hd.Loci) == 0 {
		hd.Samples = append([]string(nil), bm.Samples...)
		hd.Conditions = append([]string(nil), conds...)
		return hd, nil
	}
	raw := mat.NewDense(len(hd.Loci), nsamples, data)
	order := clusterColumns(raw)
	hd.Values = mat.NewDense(len(hd.Loci), nsamples, nil)
	for j, col := range order {
		hd.Values.SetCol(j, mat.Col(nil, col, raw))
		hd.Samples = append(hd.Samples, bm.Samples[col])
		hd.Conditions = append(hd.Conditions, conds[col])
	}
	return hd, nil
}

// Range returns the smallest and largest value in the matrix.
func (hd *heatmapData) Range() (min, max float64) {
	if hd.Values == nil {
		return math.NaN(), math.NaN()
	}
	raw := hd.Values.RawMatrix()
	return floats.Min(raw.Data), floats.Max(raw.Data)
}

// heatGrid adapts heatmapData to plotter.GridXYZ. Grid row 0 is the
// bottom of the plot, so the first locus is drawn at the top.
type heatGrid struct{ m *mat.Dense }

func (g heatGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}
func (g heatGrid) Z(c, r int) float64 {
	rows, _ := g.m.Dims()
	return g.m.At(rows-1-r, c)
}
func (g heatGrid) X(c int) float64 { return float64(c) }
func (g heatGrid) Y(r int) float64 { return float64(r) }

// annotationStrips draws the condition strip above the matrix and the
// chromosome strip to its left.
type annotationStrips struct {
	conditions  []color.Color // per column
	chromosomes []color.Color // per row, top first
}

func (as annotationStrips) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	fill := func(x0, x1, y0, y1 float64, clr color.Color) {
		pts := []vg.Point{
			{X: trX(x0), Y: trY(y0)},
			{X: trX(x1), Y: trY(y0)},
			{X: trX(x1), Y: trY(y1)},
			{X: trX(x0), Y: trY(y1)},
		}
		c.FillPolygon(clr, c.ClipPolygonXY(pts))
	}
	nrows := float64(len(as.chromosomes))
	for j, clr := range as.conditions {
		fill(float64(j)-0.5, float64(j)+0.5, nrows-0.5+0.15, nrows+0.5, clr)
	}
	for i, clr := range as.chromosomes {
		y := nrows - 1 - float64(i)
		fill(-1.5, -0.65, y-0.5, y+0.5, clr)
	}
}

func (as annotationStrips) DataRange() (xmin, xmax, ymin, ymax float64) {
	return -1.5, float64(len(as.conditions)) + 1.5, -0.5, float64(len(as.chromosomes)) + 0.5
}

// Plot returns the heatmap figure. It returns an error if there are
// no loci to show.
func (hd *heatmapData) Plot() (*plot.Plot, error) {
	if hd.Values == nil {
		return nil, fmt.Errorf("heatmap: no complete loci to plot")
	}
	min, max := hd.Range()
	if max <= min {
		min, max = min-0.01, max+0.01
	}
	cmap := moreland.SmoothBlueRed()
	cmap.SetMin(min)
	cmap.SetMax(max)
	cmap.SetConvergePoint((min + max) / 2)
	hm := plotter.NewHeatMap(heatGrid{hd.Values}, cmap.Palette(255))
	hm.Min, hm.Max = min, max

	condColor := categoryColors(hd.Conditions)
	chromColor := categoryColors(hd.Chroms)
	strips := annotationStrips{}
	for _, cond := range hd.Conditions {
		strips.conditions = append(strips.conditions, condColor[cond])
	}
	for _, chrom := range hd.Chroms {
		strips.chromosomes = append(strips.chromosomes, chromColor[chrom])
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Beta values, %d loci", len(hd.Loci))
	p.Add(hm, strips)

	var xticks, yticks []plot.Tick
	for j, s := range hd.Samples {
		xticks = append(xticks, plot.Tick{Value: float64(j), Label: s})
	}
	for i, l := range hd.Loci {
		yticks = append(yticks, plot.Tick{Value: float64(len(hd.Loci) - 1 - i), Label: l})
	}
	p.X.Tick.Marker = plot.ConstantTicks(xticks)
	p.Y.Tick.Marker = plot.ConstantTicks(yticks)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.X.Label.Text = "sample"

	p.Legend.Top = true
	for _, lvl := range sortedKeys(condColor) {
		p.Legend.Add("condition "+lvl, swatch{condColor[lvl]})
	}
	for _, chrom := range sortedKeys(chromColor) {
		p.Legend.Add(chrom, swatch{chromColor[chrom]})
	}
	pal := cmap.Palette(3).Colors()
	p.Legend.Add(fmt.Sprintf("beta %.2f", min), swatch{pal[0]})
	p.Legend.Add(fmt.Sprintf("beta %.2f", (min+max)/2), swatch{pal[1]})
	p.Legend.Add(fmt.Sprintf("beta %.2f", max), swatch{pal[2]})
	return p, nil
}

func sortedKeys(m map[string]color.Color) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
