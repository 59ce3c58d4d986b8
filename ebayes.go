// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"math"

	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mathext"
)

// variancePrior is the scaled inverse chi-square prior shared by all
// loci: s0sq is the prior variance, d0 its degrees of freedom.
type variancePrior struct {
	s0sq float64
	d0   float64
}

// posterior returns the moderated variance of a locus with residual
// variance s2 on df degrees of freedom.
func (vp variancePrior) posterior(s2, df float64) float64 {
	switch {
	case vp.d0 == 0 || math.IsNaN(vp.s0sq):
		return s2
	case math.IsInf(vp.d0, 1):
		return vp.s0sq
	default:
		return (vp.d0*vp.s0sq + df*s2) / (vp.d0 + df)
	}
}

// fitVariancePrior estimates the prior by matching the first two
// moments of log(s2), whose mean and variance under the scaled F model
// are expressed with digamma and trigamma.
func fitVariancePrior(s2, df []float64) variancePrior {
	var x, d []float64
	for i, v := range s2 {
		if math.IsNaN(v) || math.IsInf(v, 0) || df[i] <= 1e-15 || v < -1e-15 {
			continue
		}
		x = append(x, math.Max(v, 0))
		d = append(d, df[i])
	}
	if len(x) < 2 {
		return variancePrior{s0sq: math.NaN()}
	}
	m, err := stats.Median(x)
	if err != nil || m == 0 {
		log.Warn("more than half of residual variances are exactly zero: variance moderation unreliable")
		m = 1
	}
	e := make([]float64, len(x))
	var emean, tmean float64
	for i := range x {
		xi := math.Max(x[i], 1e-5*m)
		e[i] = math.Log(xi) - mathext.Digamma(d[i]/2) + math.Log(d[i]/2)
		emean += e[i]
		tmean += trigamma(d[i] / 2)
	}
	n := float64(len(x))
	emean /= n
	tmean /= n
	var evar float64
	for _, ei := range e {
		evar += (ei - emean) * (ei - emean)
	}
	evar = evar/(n-1) - tmean
	if evar > 0 {
		d0 := 2 * trigammaInverse(evar)
		return variancePrior{
			d0:   d0,
			s0sq: math.Exp(emean + mathext.Digamma(d0/2) - math.Log(d0/2)),
		}
	}
	return variancePrior{d0: math.Inf(1), s0sq: math.Exp(emean)}
}

// trigamma returns the second derivative of log Gamma at x > 0.
func trigamma(x float64) float64 {
	var acc float64
	for x < 6 {
		acc += 1 / (x * x)
		x++
	}
	x2 := 1 / (x * x)
	return acc + 1/x + x2/2 + x2/x*(1.0/6+x2*(-1.0/30+x2*(1.0/42+x2*(-1.0/30))))
}

// tetragamma returns the third derivative of log Gamma at x > 0.
func tetragamma(x float64) float64 {
	var acc float64
	for x < 6 {
		acc -= 2 / (x * x * x)
		x++
	}
	x2 := 1 / (x * x)
	return acc - x2 - x2/x - x2*x2/2 + x2*x2*x2*(1.0/6+x2*(-1.0/6+x2*3.0/10))
}

// trigammaInverse solves trigamma(y) == x for y by Newton's method.
func trigammaInverse(x float64) float64 {
	if x > 1e7 {
		return 1 / math.Sqrt(x)
	}
	if x < 1e-6 {
		return 1 / x
	}
	y := 0.5 + 1/x
	for iter := 0; iter < 50; iter++ {
		tri := trigamma(y)
		dif := tri * (1 - tri/x) / tetragamma(y)
		y += dif
		if -dif/y < 1e-8 {
			break
		}
	}
	return y
}
