// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/montanaflynn/stats"
)

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', 6, 64)
}

// writeDiffCSV writes the differential table with limma-style column
// names.
func writeDiffCSV(w io.Writer, rows []diffRow) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"locus", "logFC", "AveExpr", "t", "P.Value", "adj.P.Val"})
	for _, row := range rows {
		cw.Write([]string{row.Locus, formatFloat(row.LogFC), formatFloat(row.AveExpr), formatFloat(row.T), formatFloat(row.PValue), formatFloat(row.AdjPValue)})
	}
	cw.Flush()
	return cw.Error()
}

// logFCSummary describes the distribution of LogFC among significant
// loci.
type logFCSummary struct {
	N      int
	Median float64
	P5     float64
	P95    float64
}

func summarizeLogFC(rows []diffRow) (*logFCSummary, error) {
	var data stats.Float64Data
	for _, row := range rows {
		if !math.IsNaN(row.LogFC) {
			data = append(data, row.LogFC)
		}
	}
	if len(data) == 0 {
		return nil, nil
	}
	s := &logFCSummary{N: len(data)}
	var err error
	if s.Median, err = stats.Median(data); err != nil {
		return nil, err
	}
	if s.P5, err = stats.PercentileNearestRank(data, 5); err != nil {
		return nil, err
	}
	if s.P95, err = stats.PercentileNearestRank(data, 95); err != nil {
		return nil, err
	}
	return s, nil
}

// printSummary writes the human-readable run summary: the significant
// loci with their annotation, and the genes of the gene-set-filtered
// loci.
func printSummary(w io.Writer, res *reportResult) error {
	fmt.Fprintf(w, "%s vs %s: %d loci tested, %d significant\n", res.Contrast.Treatment, res.Contrast.Baseline, res.Tested, len(res.Significant))
	if res.LogFC != nil {
		fmt.Fprintf(w, "logFC of significant loci: median %s, 5%% %s, 95%% %s\n", formatFloat(res.LogFC.Median), formatFloat(res.LogFC.P5), formatFloat(res.LogFC.P95))
	}
	tw := tabwriter.NewWriter(w, 2, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "locus\tlogFC\tadj.P.Val\tgene\tdistance\tfeature")
	for _, al := range res.Annotated {
		gene := al.Gene
		if !al.HasGene {
			gene = "NA"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", al.Locus, formatFloat(al.LogFC), formatFloat(al.AdjPValue), gene, al.GeneDistance, al.Feature)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d loci in gene set %q, %d genes:\n", len(res.InGeneSet), res.GeneSetName, len(res.Genes))
	for _, g := range res.Genes {
		fmt.Fprintln(w, g)
	}
	return nil
}

// runSummary is written to report.json.
type runSummary struct {
	Baseline           string
	Treatment          string
	NBaseline          int
	NTreated           int
	PValueThreshold    float64
	PromoterUpstream   int
	PromoterDownstream int
	GeneSetCollection  string
	GeneSetName        string
	GeneSetSize        int
	Inputs             map[string]string // filename => blake2b-256
	Loci               int
	Tested             int
	Significant        int
	InGeneSet          int
	HeatmapLoci        int
	HeatmapDropped     []string `json:",omitempty"`
	Genes              []string
	LogFC              *logFCSummary `json:",omitempty"`
	Outputs            []string
}

func writeRunSummary(w io.Writer, rs *runSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rs)
}
