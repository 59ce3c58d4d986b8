// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"bufio"
	"fmt"
	"image/color"
	"os"

	"github.com/james-bowman/nlp"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// maPoint is one complete locus on the M-value scale: A is the mean
// M-value and M the treatment minus baseline difference of means.
type maPoint struct {
	Locus       string
	A, M        float64
	Significant bool
}

func maPoints(bm *betaMatrix, ct *contrast, offset float64, significant map[string]bool) []maPoint {
	mv := bm.MValues(offset)
	var pts []maPoint
	for _, i := range bm.CompleteRows() {
		row := mv.RawRowView(i)
		var treated, baseline []float64
		for j, v := range row {
			if ct.Indicator[j] == 1 {
				treated = append(treated, v)
			} else {
				baseline = append(baseline, v)
			}
		}
		pts = append(pts, maPoint{
			Locus:       bm.Loci[i],
			A:           stat.Mean(row, nil),
			M:           stat.Mean(treated, nil) - stat.Mean(baseline, nil),
			Significant: significant[bm.Loci[i]],
		})
	}
	return pts
}

func maPlot(pts []maPoint, ct *contrast) (*plot.Plot, error) {
	if len(pts) == 0 {
		return nil, fmt.Errorf("MA plot: no complete loci")
	}
	var sig, other plotter.XYs
	for _, pt := range pts {
		if pt.Significant {
			sig = append(sig, plotter.XY{X: pt.A, Y: pt.M})
		} else {
			other = append(other, plotter.XY{X: pt.A, Y: pt.M})
		}
	}
	p := plot.New()
	p.Title.Text = fmt.Sprintf("MA plot, %s vs %s", ct.Treatment, ct.Baseline)
	p.X.Label.Text = "mean M-value"
	p.Y.Label.Text = "M-value difference"
	for _, grp := range []struct {
		name string
		xys  plotter.XYs
		clr  color.Color
	}{
		{"not significant", other, color.Gray{Y: 160}},
		{"significant", sig, color.RGBA{R: 200, A: 255}},
	} {
		if len(grp.xys) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(grp.xys)
		if err != nil {
			return nil, fmt.Errorf("MA plot: %w", err)
		}
		sc.GlyphStyle.Color = grp.clr
		sc.GlyphStyle.Shape = draw.CircleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		p.Add(sc)
		p.Legend.Add(grp.name, sc)
	}
	p.Add(plotter.NewGrid())
	return p, nil
}

// samplePCA projects the samples onto the first k principal components
// of the complete loci on the M-value scale. The result has one row
// per sample.
func samplePCA(bm *betaMatrix, offset float64, k int) (*mat.Dense, error) {
	complete := bm.CompleteRows()
	nsamples := len(bm.Samples)
	if k > nsamples {
		k = nsamples
	}
	if k > len(complete) {
		k = len(complete)
	}
	if k < 1 {
		return nil, fmt.Errorf("PCA: no complete loci")
	}
	mv := bm.MValues(offset)
	// rows are features (loci), columns are samples
	mtx := mat.NewDense(len(complete), nsamples, nil)
	for r, i := range complete {
		mtx.SetRow(r, mv.RawRowView(i))
	}
	log.Printf("fitting PCA: %d loci, %d samples, %d components", len(complete), nsamples, k)
	transformer := nlp.NewPCA(k)
	transformer.Fit(mtx)
	pcs, err := transformer.Transform(mtx)
	if err != nil {
		return nil, fmt.Errorf("PCA: %w", err)
	}
	return mat.DenseCopyOf(pcs.T()), nil
}

// writeNpy writes m as a 2-D float64 numpy array.
func writeNpy(path string, m mat.Matrix) error {
	rows, cols := m.Dims()
	out := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out[i*cols+j] = m.At(i, j)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	npw.Shape = []int{rows, cols}
	if err = npw.WriteFloat64(out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err = bufw.Flush(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"path": path, "rows": rows, "cols": cols}).Info("wrote numpy array")
	return f.Close()
}
