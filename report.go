// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/plot"
)

// report holds the dependencies of one run. Construct with newReport.
type report struct {
	cfg       reportConfig
	reference genomeReference
	geneSets  *geneSetClient
}

// newReport validates cfg and sets up everything a run needs: the
// genome reference, the gene set client and the output directory.
func newReport(cfg reportConfig) (*report, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0777); err != nil {
		return nil, err
	}
	return &report{
		cfg: cfg,
		reference: fileGenomeReference{
			GenesFilename:       cfg.GenesFilename,
			TranscriptsFilename: cfg.TranscriptsGFF,
		},
		geneSets: &geneSetClient{
			Client:  &http.Client{Timeout: cfg.HTTPTimeout},
			BaseURL: cfg.GeneSetBaseURL,
		},
	}, nil
}

// reportResult is everything a run produces.
type reportResult struct {
	Contrast    *contrast
	Rows        []diffRow
	Tested      int
	Significant []diffRow
	LogFC       *logFCSummary
	Annotated   []annotatedLocus
	GeneSetName string
	GeneSetSize int
	InGeneSet   []annotatedLocus
	Genes       []string
	Heatmap     *heatmapData
	HeatmapPlot *plot.Plot
	Volcano     []volcanoPoint
	VolcanoPlot *plot.Plot
	Outputs     []string
}

// loadAndTest runs the data loader and the differential tester.
func (r *report) loadAndTest() (*betaMatrix, []string, []diffRow, *contrast, error) {
	log.Info("stage 1: loading data")
	bm, err := loadBetaMatrix(r.cfg.BetaFilename)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	pt, err := loadPhenotypes(r.cfg.PhenotypeFilename, r.cfg.SampleColumn, r.cfg.ConditionColumn)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	conds, err := pt.align(bm.Samples)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	log.Info("stage 2: differential test")
	dt := diffTester{Baseline: r.cfg.Baseline}
	rows, ct, err := dt.Test(bm, pt)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return bm, conds, rows, ct, nil
}

// Run executes all stages in order. The first failure aborts the run.
func (r *report) Run(ctx context.Context, stdout io.Writer) (*reportResult, error) {
	bm, conds, rows, ct, err := r.loadAndTest()
	if err != nil {
		return nil, err
	}
	res := &reportResult{Contrast: ct, Rows: rows, GeneSetName: r.cfg.GeneSetName}
	for _, row := range rows {
		if !math.IsNaN(row.PValue) {
			res.Tested++
		}
	}

	log.Infof("stage 3: significance filter, adjusted p < %g", r.cfg.PValueThreshold)
	res.Significant = filterSignificant(rows, r.cfg.PValueThreshold)
	log.Infof("%d of %d loci significant", len(res.Significant), len(rows))
	if res.LogFC, err = summarizeLogFC(res.Significant); err != nil {
		return nil, err
	}

	log.Info("stage 4: annotating loci")
	la := locusAnnotator{
		Reference:          r.reference,
		PromoterUpstream:   r.cfg.PromoterUpstream,
		PromoterDownstream: r.cfg.PromoterDownstream,
	}
	res.Annotated, err = la.Annotate(ctx, res.Significant)
	if err != nil {
		return nil, err
	}

	log.Info("stage 5: gene set filter")
	set, err := r.geneSets.Fetch(ctx, r.cfg.GeneSetCollection, r.cfg.GeneSetName)
	if err != nil {
		return nil, err
	}
	res.GeneSetSize = len(set)
	res.InGeneSet = filterByGeneSet(res.Annotated, set)
	res.Genes = genesOf(res.InGeneSet)
	log.Infof("%d of %d annotated loci are in gene set %q", len(res.InGeneSet), len(res.Annotated), r.cfg.GeneSetName)

	log.Info("stage 6: rendering")
	if err = r.render(bm, conds, res); err != nil {
		return nil, err
	}
	if err = r.writeTables(res); err != nil {
		return nil, err
	}
	if err = printSummary(stdout, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *report) outputPath(name string, res *reportResult) string {
	res.Outputs = append(res.Outputs, name)
	return filepath.Join(r.cfg.OutputDir, name)
}

func (r *report) render(bm *betaMatrix, conds []string, res *reportResult) error {
	size := r.cfg.imageSize()
	var err error
	res.Heatmap, err = buildHeatmapData(bm, conds, res.InGeneSet)
	if err != nil {
		return err
	}
	if res.Heatmap.Values == nil {
		log.Warn("no complete loci in the gene set, skipping heatmap")
	} else {
		if res.HeatmapPlot, err = res.Heatmap.Plot(); err != nil {
			return err
		}
		if err = writePNG(res.HeatmapPlot, r.outputPath("heatmap.png", res), size); err != nil {
			return err
		}
		path := r.outputPath("heatmap.npy", res)
		if err = writeNpy(path, res.Heatmap.Values); err != nil {
			return &RenderError{Path: path, Err: err}
		}
	}

	res.Volcano = volcanoPoints(res.InGeneSet, r.cfg.MaxLabelLoci)
	if len(res.Volcano) == 0 {
		log.Warn("no loci in the gene set, skipping volcano plot")
	} else {
		if res.VolcanoPlot, err = volcanoPlot(res.Volcano, r.cfg.PValueThreshold); err != nil {
			return err
		}
		if err = writePNG(res.VolcanoPlot, r.outputPath("volcano.png", res), size); err != nil {
			return err
		}
	}
	if err = writeHTMLView(r.outputPath("report.html", res), res.Volcano, res.Heatmap); err != nil {
		return err
	}

	significant := map[string]bool{}
	for _, row := range res.Significant {
		significant[row.Locus] = true
	}
	if pts := maPoints(bm, res.Contrast, r.cfg.LogitOffset, significant); len(pts) == 0 {
		log.Warn("no complete loci, skipping MA plot and PCA")
	} else {
		p, err := maPlot(pts, res.Contrast)
		if err != nil {
			return err
		}
		if err = writePNG(p, r.outputPath("ma.png", res), size); err != nil {
			return err
		}
		pcs, err := samplePCA(bm, r.cfg.LogitOffset, 2)
		if err != nil {
			return err
		}
		path := r.outputPath("pca.npy", res)
		if err = writeNpy(path, pcs); err != nil {
			return &RenderError{Path: path, Err: err}
		}
	}
	return nil
}

func (r *report) writeTables(res *reportResult) error {
	path := r.outputPath("differential.csv", res)
	f, err := os.Create(path)
	if err != nil {
		return &RenderError{Path: path, Err: err}
	}
	defer f.Close()
	if err = writeDiffCSV(f, res.Rows); err != nil {
		return &RenderError{Path: path, Err: err}
	}
	if err = f.Close(); err != nil {
		return &RenderError{Path: path, Err: err}
	}

	rs := &runSummary{
		Baseline:           res.Contrast.Baseline,
		Treatment:          res.Contrast.Treatment,
		NBaseline:          res.Contrast.NBaseline,
		NTreated:           res.Contrast.NTreated,
		PValueThreshold:    r.cfg.PValueThreshold,
		PromoterUpstream:   r.cfg.PromoterUpstream,
		PromoterDownstream: r.cfg.PromoterDownstream,
		GeneSetCollection:  r.cfg.GeneSetCollection,
		GeneSetName:        r.cfg.GeneSetName,
		GeneSetSize:        res.GeneSetSize,
		Inputs:             map[string]string{},
		Loci:               len(res.Rows),
		Tested:             res.Tested,
		Significant:        len(res.Significant),
		InGeneSet:          len(res.InGeneSet),
		Genes:              res.Genes,
		LogFC:              res.LogFC,
	}
	if res.Heatmap != nil {
		rs.HeatmapLoci = len(res.Heatmap.Loci)
		rs.HeatmapDropped = res.Heatmap.Dropped
	}
	for _, fnm := range []string{r.cfg.BetaFilename, r.cfg.PhenotypeFilename, r.cfg.GenesFilename, r.cfg.TranscriptsGFF} {
		if rs.Inputs[fnm], err = fileDigest(fnm); err != nil {
			return err
		}
	}
	rs.Outputs = append(res.Outputs, "report.json")
	path = r.outputPath("report.json", res)
	f, err = os.Create(path)
	if err != nil {
		return &RenderError{Path: path, Err: err}
	}
	defer f.Close()
	if err = writeRunSummary(f, rs); err != nil {
		return &RenderError{Path: path, Err: err}
	}
	if err = f.Close(); err != nil {
		return &RenderError{Path: path, Err: err}
	}
	return nil
}

type reportcmd struct{}

func (cmd *reportcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	cfg := defaultConfig()
	cfg.Flags(flags)
	cfg.AnnotationFlags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	r, err := newReport(cfg)
	if err != nil {
		return 1
	}
	_, err = r.Run(context.Background(), stdout)
	if err != nil {
		return 1
	}
	return 0
}
