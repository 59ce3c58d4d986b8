// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"io"
	"log"
	"math"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
)

var glmConfig = &glm.Config{
	Family:    glm.NewFamily(glm.GaussianFamily),
	FitMethod: "IRLS",
	Log:       log.New(io.Discard, "", 0),
}

// locusFit is the ordinary least squares fit of one locus's beta
// values on the treatment indicator.
type locusFit struct {
	ok            bool
	coef          float64 // treatment minus baseline
	amean         float64
	s2            float64 // residual variance
	df            float64 // residual degrees of freedom
	stdevUnscaled float64 // sqrt of the coef entry of (X'X)^-1
}

// Linear regression of y on an intercept and the 0/1 indicator.
//
// Missing (NaN) values of y are dropped. The result has ok==false if
// either level has no observations or there are no residual degrees
// of freedom left.
func fitLocus(y, indicator []float64) (fit locusFit) {
	var (
		outcome   []statmodel.Dtype
		constants []statmodel.Dtype
		treatment []statmodel.Dtype
		n         [2]int
		sum       [2]float64
	)
	for i, v := range y {
		if math.IsNaN(v) {
			continue
		}
		level := int(indicator[i])
		n[level]++
		sum[level] += v
		outcome = append(outcome, v)
		constants = append(constants, 1)
		treatment = append(treatment, indicator[i])
	}
	nobs := n[0] + n[1]
	if n[0] == 0 || n[1] == 0 || nobs < 3 {
		return locusFit{}
	}
	fit = locusFit{
		ok:            true,
		amean:         (sum[0] + sum[1]) / float64(nobs),
		df:            float64(nobs - 2),
		stdevUnscaled: math.Sqrt(1/float64(n[0]) + 1/float64(n[1])),
	}

	icept, coef := math.NaN(), math.NaN()
	func() {
		defer func() {
			if recover() != nil {
				// typically "matrix singular or near-singular with condition number +Inf"
				icept, coef = math.NaN(), math.NaN()
			}
		}()
		dataset := statmodel.NewDataset([][]statmodel.Dtype{outcome, constants, treatment}, []string{"beta", "icept", "treatment"})
		model, err := glm.NewGLM(dataset, "beta", []string{"icept", "treatment"}, glmConfig)
		if err != nil {
			return
		}
		params := model.Fit().Params()
		icept, coef = params[0], params[1]
	}()
	if math.IsNaN(icept) || math.IsNaN(coef) || math.IsInf(coef, 0) {
		// With a single indicator the least squares solution is
		// the pair of group means.
		icept = sum[0] / float64(n[0])
		coef = sum[1]/float64(n[1]) - icept
	}
	fit.coef = coef

	var rss float64
	for i, v := range outcome {
		r := v - icept - coef*treatment[i]
		rss += r * r
	}
	fit.s2 = rss / fit.df
	return fit
}
