// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"bufio"
	"image/color"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// imageSize is the fixed raster geometry of every rendered figure.
type imageSize struct {
	Width, Height vg.Length
	DPI           int
}

func (cfg *reportConfig) imageSize() imageSize {
	return imageSize{
		Width:  vg.Length(cfg.ImageWidthInches) * vg.Inch,
		Height: vg.Length(cfg.ImageHeightInches) * vg.Inch,
		DPI:    cfg.ImageDPI,
	}
}

// writePNG draws p on a raster canvas and writes it to path.
func writePNG(p *plot.Plot, path string, size imageSize) (err error) {
	defer func() {
		if e := recover(); e != nil {
			// gonum/plot panics on some degenerate inputs (e.g.,
			// an empty axis range)
			err = &RenderError{Path: path, Err: plotPanic{e}}
		}
	}()
	img := vgimg.NewWith(vgimg.UseWH(size.Width, size.Height), vgimg.UseDPI(size.DPI))
	p.Draw(draw.New(img))
	f, err := os.Create(path)
	if err != nil {
		return &RenderError{Path: path, Err: err}
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	if _, err = (vgimg.PngCanvas{Canvas: img}).WriteTo(bufw); err != nil {
		return &RenderError{Path: path, Err: err}
	}
	if err = bufw.Flush(); err != nil {
		return &RenderError{Path: path, Err: err}
	}
	if err = f.Close(); err != nil {
		return &RenderError{Path: path, Err: err}
	}
	log.WithField("path", path).Info("wrote image")
	return nil
}

type plotPanic struct{ v interface{} }

func (pp plotPanic) Error() string {
	if err, ok := pp.v.(error); ok {
		return "plot: " + err.Error()
	}
	return "plot: unexpected panic"
}

// categoryColors assigns a stable color to each distinct label. Up to
// len(plotutil.DefaultColors) labels get the default colors; beyond
// that the hue range is divided evenly so no two labels share a color.
func categoryColors(labels []string) map[string]color.Color {
	var distinct []string
	seen := map[string]bool{}
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			distinct = append(distinct, l)
		}
	}
	sort.Strings(distinct)
	colors := make(map[string]color.Color, len(distinct))
	if len(distinct) <= len(plotutil.DefaultColors) {
		for i, l := range distinct {
			colors[l] = plotutil.Color(i)
		}
		return colors
	}
	pal := palette.Rainbow(len(distinct), palette.Red, palette.Magenta, 0.8, 0.9, 1).Colors()
	for i, l := range distinct {
		colors[l] = pal[i]
	}
	return colors
}

// swatch is a legend thumbnail filled with a single color.
type swatch struct{ color.Color }

func (s swatch) Thumbnail(c *draw.Canvas) {
	c.FillPolygon(s.Color, []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Max.X, Y: c.Min.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Min.X, Y: c.Max.Y},
	})
}
