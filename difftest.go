// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat/distuv"
)

// diffRow is the differential methylation result for one locus.
type diffRow struct {
	Locus     string
	LogFC     float64 // treatment minus baseline, beta scale
	AveExpr   float64
	T         float64 // moderated t statistic
	PValue    float64
	AdjPValue float64
}

// contrast describes the two-level design of a run.
type contrast struct {
	Baseline  string
	Treatment string
	// Indicator[j] is 1 if matrix column j is a treatment sample.
	Indicator []float64
	NBaseline int
	NTreated  int
}

// makeContrast encodes the aligned per-sample conditions as a 0/1
// treatment indicator. If baseline is empty, the lexically first
// observed level is used.
func makeContrast(conds []string, baseline string) (*contrast, error) {
	seen := map[string]bool{}
	var levels []string
	for _, c := range conds {
		if !seen[c] {
			seen[c] = true
			levels = append(levels, c)
		}
	}
	sort.Strings(levels)
	if len(levels) < 2 {
		return nil, &DegenerateDesignError{Levels: levels}
	} else if len(levels) > 2 {
		return nil, fmt.Errorf("condition has %d levels %q, only two-level designs are supported", len(levels), levels)
	}
	if baseline == "" {
		baseline = levels[0]
	} else if !seen[baseline] {
		return nil, fmt.Errorf("baseline level %q not observed (levels are %q)", baseline, levels)
	}
	ct := &contrast{Baseline: baseline, Indicator: make([]float64, len(conds))}
	for _, l := range levels {
		if l != baseline {
			ct.Treatment = l
		}
	}
	for j, c := range conds {
		if c == ct.Treatment {
			ct.Indicator[j] = 1
			ct.NTreated++
		} else {
			ct.NBaseline++
		}
	}
	return ct, nil
}

type diffTester struct {
	Baseline string
}

// Test fits a linear model of beta value on condition at every locus,
// moderates the residual variances across loci, and returns one row
// per locus ordered by ascending raw p-value.
func (dt *diffTester) Test(bm *betaMatrix, pt *phenotypeTable) ([]diffRow, *contrast, error) {
	conds, err := pt.align(bm.Samples)
	if err != nil {
		return nil, nil, err
	}
	ct, err := makeContrast(conds, dt.Baseline)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("differential test: %s (n=%d) vs baseline %s (n=%d), %d loci", ct.Treatment, ct.NTreated, ct.Baseline, ct.NBaseline, len(bm.Loci))

	fits := make([]locusFit, len(bm.Loci))
	s2 := make([]float64, len(bm.Loci))
	df := make([]float64, len(bm.Loci))
	var dfPooled float64
	unfit := 0
	for i := range bm.Loci {
		fits[i] = fitLocus(bm.Row(i), ct.Indicator)
		if fits[i].ok {
			s2[i], df[i] = fits[i].s2, fits[i].df
			dfPooled += fits[i].df
		} else {
			s2[i], df[i] = math.NaN(), 0
			unfit++
		}
	}
	if unfit > 0 {
		log.Warnf("%d loci have too few non-missing values to fit, reporting NaN", unfit)
	}
	prior := fitVariancePrior(s2, df)
	log.Infof("variance prior: s0^2=%g d0=%g", prior.s0sq, prior.d0)

	rows := make([]diffRow, len(bm.Loci))
	pvalues := make([]float64, len(bm.Loci))
	for i, fit := range fits {
		rows[i] = diffRow{Locus: bm.Loci[i], LogFC: math.NaN(), AveExpr: math.NaN(), T: math.NaN(), PValue: math.NaN()}
		if fit.ok {
			rows[i].LogFC = fit.coef
			rows[i].AveExpr = fit.amean
			rows[i].T, rows[i].PValue = moderatedT(fit, prior, dfPooled)
		}
		pvalues[i] = rows[i].PValue
	}
	for i, q := range adjustBH(pvalues) {
		rows[i].AdjPValue = q
	}
	sort.SliceStable(rows, func(a, b int) bool {
		pa, pb := rows[a].PValue, rows[b].PValue
		if math.IsNaN(pb) {
			return !math.IsNaN(pa)
		}
		return pa < pb
	})
	return rows, ct, nil
}

func moderatedT(fit locusFit, prior variancePrior, dfPooled float64) (t, p float64) {
	s2post := prior.posterior(fit.s2, fit.df)
	if s2post == 0 {
		if fit.coef == 0 {
			return 0, 1
		}
		return math.Copysign(math.Inf(1), fit.coef), 0
	}
	t = fit.coef / (math.Sqrt(s2post) * fit.stdevUnscaled)
	dfTotal := math.Min(fit.df+prior.d0, dfPooled)
	if math.IsNaN(dfTotal) {
		dfTotal = fit.df
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: dfTotal}
	p = math.Min(1, 2*dist.Survival(math.Abs(t)))
	return t, p
}

type difftestcmd struct{}

func (cmd *difftestcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cfg := defaultConfig()
	cfg.Flags(flags)
	outputFilename := flags.String("o", "-", "output `file`")
	significantOnly := flags.Bool("significant-only", false, "output only loci with adjusted p-value below threshold")
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
	if err = cfg.check(); err != nil {
		return 2
	}

	r := &report{cfg: cfg}
	_, _, rows, _, err := r.loadAndTest()
	if err != nil {
		return 1
	}
	if *significantOnly {
		rows = filterSignificant(rows, cfg.PValueThreshold)
	}

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	if err = writeDiffCSV(bufw, rows); err != nil {
		return 1
	}
	if err = bufw.Flush(); err != nil {
		return 1
	}
	if err = output.Close(); err != nil {
		return 1
	}
	return 0
}
