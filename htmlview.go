// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"bufio"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	log "github.com/sirupsen/logrus"
)

func volcanoChart(pts []volcanoPoint) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Volcano"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "logFC"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "-log10 adj p"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "item"}),
	)
	var genes []string
	byGene := map[string][]opts.ScatterData{}
	for _, pt := range pts {
		if _, ok := byGene[pt.Gene]; !ok {
			genes = append(genes, pt.Gene)
		}
		name := pt.Locus
		if pt.Gene != "" {
			name += " " + pt.Gene
		}
		byGene[pt.Gene] = append(byGene[pt.Gene], opts.ScatterData{Name: name, Value: []interface{}{pt.X, pt.Y}})
	}
	for _, gene := range genes {
		series := gene
		if series == "" {
			series = "(no gene)"
		}
		scatter.AddSeries(series, byGene[gene])
	}
	return scatter
}

func heatmapChart(hd *heatmapData) *charts.HeatMap {
	hm := charts.NewHeatMap()
	min, max := hd.Range()
	hm.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Beta values"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: hd.Loci}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "item"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Min:     float32(min),
			Max:     float32(max),
			InRange: &opts.VisualMapInRange{Color: []string{"#3b4cc0", "#dddddd", "#b40426"}},
		}),
	)
	var data []opts.HeatMapData
	for i := range hd.Loci {
		for j := range hd.Samples {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{j, i, hd.Values.At(i, j)}})
		}
	}
	hm.SetXAxis(hd.Samples).AddSeries("beta", data)
	return hm
}

// writeHTMLView writes an interactive page with the volcano scatter
// and, if there are complete loci, the heatmap.
func writeHTMLView(path string, pts []volcanoPoint, hd *heatmapData) error {
	page := components.NewPage()
	page.SetPageTitle("methylation report")
	page.AddCharts(volcanoChart(pts))
	if hd != nil && hd.Values != nil {
		page.AddCharts(heatmapChart(hd))
	}
	f, err := os.Create(path)
	if err != nil {
		return &RenderError{Path: path, Err: err}
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	if err = page.Render(bufw); err != nil {
		return &RenderError{Path: path, Err: err}
	}
	if err = bufw.Flush(); err != nil {
		return &RenderError{Path: path, Err: err}
	}
	if err = f.Close(); err != nil {
		return &RenderError{Path: path, Err: err}
	}
	log.WithField("path", path).Info("wrote interactive view")
	return nil
}
