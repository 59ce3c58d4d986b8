// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"errors"
	"math"
	"strings"

	"golang.org/x/exp/rand"
	"gopkg.in/check.v1"
)

type difftestSuite struct{}

var _ = check.Suite(&difftestSuite{})

func (s *difftestSuite) TestFitLocus(c *check.C) {
	fit := fitLocus([]float64{0.20, 0.22, 0.80, 0.78}, []float64{0, 0, 1, 1})
	c.Assert(fit.ok, check.Equals, true)
	c.Check(math.Abs(fit.coef-0.58) < 1e-9, check.Equals, true, check.Commentf("coef %g", fit.coef))
	c.Check(math.Abs(fit.amean-0.5) < 1e-12, check.Equals, true)
	c.Check(fit.df, check.Equals, 2.0)
	c.Check(math.Abs(fit.s2-0.0002) < 1e-12, check.Equals, true, check.Commentf("s2 %g", fit.s2))
	c.Check(fit.stdevUnscaled, check.Equals, 1.0)

	// missing values are dropped, not imputed
	fit = fitLocus([]float64{0.20, math.NaN(), 0.80, 0.78, 0.82}, []float64{0, 0, 1, 1, 1})
	c.Check(fit.ok, check.Equals, true)
	c.Check(fit.df, check.Equals, 2.0)

	// one level unobserved
	fit = fitLocus([]float64{math.NaN(), math.NaN(), 0.80, 0.78}, []float64{0, 0, 1, 1})
	c.Check(fit.ok, check.Equals, false)
	// no residual degrees of freedom
	fit = fitLocus([]float64{0.2, math.NaN(), 0.80, math.NaN()}, []float64{0, 0, 1, 1})
	c.Check(fit.ok, check.Equals, false)
}

func (s *difftestSuite) TestTrigamma(c *check.C) {
	c.Check(math.Abs(trigamma(1)-math.Pi*math.Pi/6) < 1e-9, check.Equals, true)
	c.Check(math.Abs(trigamma(0.5)-math.Pi*math.Pi/2) < 1e-9, check.Equals, true)
	for _, y := range []float64{0.3, 1, 2.5, 10, 200} {
		got := trigammaInverse(trigamma(y))
		c.Check(math.Abs(got-y)/y < 1e-6, check.Equals, true, check.Commentf("y=%g got %g", y, got))
	}
}

func (s *difftestSuite) TestVariancePrior(c *check.C) {
	// identical variances: infinite prior df, posterior is the prior
	vp := fitVariancePrior([]float64{0.01, 0.01, 0.01, 0.01}, []float64{2, 2, 2, 2})
	c.Check(math.IsInf(vp.d0, 1), check.Equals, true)
	c.Check(vp.posterior(1, 2), check.Equals, vp.s0sq)

	// widely varying variances: finite prior df, posterior between
	// prior and observed
	s2 := []float64{0.0001, 0.05, 0.002, 0.3, 0.00002, 0.01, 0.9, 0.0004}
	df := []float64{2, 2, 2, 2, 2, 2, 2, 2}
	vp = fitVariancePrior(s2, df)
	c.Check(vp.d0 > 0 && !math.IsInf(vp.d0, 0), check.Equals, true, check.Commentf("d0 %g", vp.d0))
	post := vp.posterior(0.9, 2)
	c.Check(post < 0.9 && post > vp.s0sq, check.Equals, true)

	// too little data: no moderation
	vp = fitVariancePrior([]float64{0.1, math.NaN()}, []float64{2, 0})
	c.Check(vp.posterior(0.1, 2), check.Equals, 0.1)
}

func (s *difftestSuite) TestAdjustBH(c *check.C) {
	p := []float64{0.01, 0.04, 0.03, 0.5}
	adj := adjustBH(p)
	c.Check(adj, check.HasLen, len(p))
	want := []float64{0.04, 0.04 * 4 / 3, 0.04 * 4 / 3, 0.5}
	for i := range p {
		c.Check(math.Abs(adj[i]-want[i]) < 1e-12, check.Equals, true, check.Commentf("i=%d adj=%g want=%g", i, adj[i], want[i]))
		c.Check(adj[i] >= p[i], check.Equals, true)
	}

	adj = adjustBH([]float64{math.NaN(), 0.01})
	c.Check(math.IsNaN(adj[0]), check.Equals, true)
	c.Check(adj[1], check.Equals, 0.01)

	// monotone in raw p
	rnd := rand.New(rand.NewSource(1))
	p = make([]float64, 200)
	for i := range p {
		p[i] = rnd.Float64() * rnd.Float64()
	}
	adj = adjustBH(p)
	for i := range p {
		c.Check(adj[i] >= p[i] && adj[i] <= 1, check.Equals, true)
		for j := range p {
			if p[i] < p[j] {
				c.Check(adj[i] <= adj[j], check.Equals, true)
			}
		}
	}
}

func (s *difftestSuite) TestFilterSignificant(c *check.C) {
	rows := []diffRow{
		{Locus: "a", AdjPValue: 0.01},
		{Locus: "b", AdjPValue: 0.05},
		{Locus: "c", AdjPValue: math.NaN()},
		{Locus: "d", AdjPValue: 0.049},
	}
	sig := filterSignificant(rows, 0.05)
	c.Check(sig, check.HasLen, 2)
	c.Check(sig[0].Locus, check.Equals, "a")
	c.Check(sig[1].Locus, check.Equals, "d")
	c.Check(filterSignificant(sig, 0.05), check.DeepEquals, sig)
	c.Check(filterSignificant(nil, 0.05), check.HasLen, 0)
}

func (s *difftestSuite) TestMakeContrast(c *check.C) {
	ct, err := makeContrast([]string{"treated", "control", "treated"}, "")
	c.Assert(err, check.IsNil)
	c.Check(ct.Baseline, check.Equals, "control")
	c.Check(ct.Treatment, check.Equals, "treated")
	c.Check(ct.Indicator, check.DeepEquals, []float64{1, 0, 1})
	c.Check(ct.NBaseline, check.Equals, 1)
	c.Check(ct.NTreated, check.Equals, 2)

	ct, err = makeContrast([]string{"treated", "control"}, "treated")
	c.Assert(err, check.IsNil)
	c.Check(ct.Indicator, check.DeepEquals, []float64{0, 1})

	_, err = makeContrast([]string{"a", "a"}, "")
	var derr *DegenerateDesignError
	c.Check(errors.As(err, &derr), check.Equals, true)
	_, err = makeContrast([]string{"a", "b", "c"}, "")
	c.Check(err, check.ErrorMatches, `condition has 3 levels.*`)
	_, err = makeContrast([]string{"a", "b"}, "z")
	c.Check(err, check.ErrorMatches, `baseline level "z" not observed.*`)
}

const testBetaCSV = `locus,S1,S2,S3,S4
chr1:1000-1050,0.20,0.22,0.80,0.78
chr2:5000-5050,0.81,0.79,0.21,0.19
chr1:20000-20050,0.50,0.52,0.51,0.49
chr1:40000-40050,0.30,0.33,0.31,0.32
chr2:30000-30050,0.60,0.58,0.59,0.61
chr3:1000-1050,0.45,0.47,0.44,0.48
chr3:9000-9050,0.70,0.72,0.73,0.69
chr1:60000-60050,0.55,0.53,0.52,0.56
chr2:70000-70050,0.40,0.42,0.43,0.39
chr3:20000-20050,0.65,0.63,0.66,0.62
`

// Phenotype rows deliberately not in matrix column order.
const testPhenotypeCSV = `sample,condition
S3,treated
S1,control
S4,treated
S2,control
`

func (s *difftestSuite) TestDiffTester(c *check.C) {
	bm, err := readBetaMatrix(strings.NewReader(testBetaCSV))
	c.Assert(err, check.IsNil)
	pt, err := readPhenotypes(strings.NewReader(testPhenotypeCSV), "sample", "condition")
	c.Assert(err, check.IsNil)
	dt := diffTester{}
	rows, ct, err := dt.Test(bm, pt)
	c.Assert(err, check.IsNil)
	c.Check(ct.Baseline, check.Equals, "control")
	c.Assert(rows, check.HasLen, len(bm.Loci))
	for i, row := range rows {
		c.Check(row.AdjPValue >= row.PValue, check.Equals, true)
		if i > 0 {
			c.Check(rows[i-1].PValue <= row.PValue, check.Equals, true)
		}
	}
	sig := filterSignificant(rows, 0.05)
	c.Assert(sig, check.HasLen, 2)
	got := map[string]float64{}
	for _, row := range sig {
		got[row.Locus] = row.LogFC
	}
	c.Check(math.Abs(got["chr1:1000-1050"]-0.58) < 1e-9, check.Equals, true)
	c.Check(math.Abs(got["chr2:5000-5050"]+0.6) < 1e-9, check.Equals, true)

	// No random state: a second run gives identical rows.
	again, _, err := (&diffTester{}).Test(bm, pt)
	c.Assert(err, check.IsNil)
	c.Check(again, check.DeepEquals, rows)
}

func (s *difftestSuite) TestDiffTesterMissingValues(c *check.C) {
	bm, err := readBetaMatrix(strings.NewReader(`locus,S1,S2,S3,S4
chr1:1-2,0.1,0.2,0.7,0.8
chr1:3-4,NA,NA,0.7,0.8
chr1:5-6,0.3,0.2,0.3,0.25
`))
	c.Assert(err, check.IsNil)
	pt, err := readPhenotypes(strings.NewReader(testPhenotypeCSV), "sample", "condition")
	c.Assert(err, check.IsNil)
	rows, _, err := (&diffTester{}).Test(bm, pt)
	c.Assert(err, check.IsNil)
	c.Assert(rows, check.HasLen, 3)
	// unfittable locus sorts last with NaN statistics
	c.Check(rows[2].Locus, check.Equals, "chr1:3-4")
	c.Check(math.IsNaN(rows[2].PValue), check.Equals, true)
	c.Check(math.IsNaN(rows[2].AdjPValue), check.Equals, true)
	c.Check(math.IsNaN(rows[0].AdjPValue), check.Equals, false)
}

func (s *difftestSuite) TestDiffTesterAlignment(c *check.C) {
	bm, err := readBetaMatrix(strings.NewReader(testBetaCSV))
	c.Assert(err, check.IsNil)
	pt, err := readPhenotypes(strings.NewReader("sample,condition\nS1,control\nS2,control\nS3,treated\nS5,treated\n"), "sample", "condition")
	c.Assert(err, check.IsNil)
	_, _, err = (&diffTester{}).Test(bm, pt)
	var aerr *InputAlignmentError
	c.Check(errors.As(err, &aerr), check.Equals, true)

	pt, err = readPhenotypes(strings.NewReader("sample,condition\nS1,x\nS2,x\nS3,x\nS4,x\n"), "sample", "condition")
	c.Assert(err, check.IsNil)
	_, _, err = (&diffTester{}).Test(bm, pt)
	var derr *DegenerateDesignError
	c.Check(errors.As(err, &derr), check.Equals, true)
}
