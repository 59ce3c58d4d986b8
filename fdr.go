// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"math"
	"sort"
)

// adjustBH returns Benjamini-Hochberg adjusted p-values, in the same
// order as p. NaN inputs are excluded from the number of tests and
// stay NaN.
func adjustBH(p []float64) []float64 {
	adj := make([]float64, len(p))
	var idx []int
	for i, pi := range p {
		if math.IsNaN(pi) {
			adj[i] = math.NaN()
			continue
		}
		idx = append(idx, i)
	}
	sort.SliceStable(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })
	m := float64(len(idx))
	cummin := 1.0
	for rank := len(idx); rank > 0; rank-- {
		i := idx[rank-1]
		q := p[i] * m / float64(rank)
		if q < cummin {
			cummin = q
		}
		adj[i] = cummin
	}
	return adj
}
