// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// clusterColumns performs complete-linkage agglomerative clustering of
// the columns of m using Euclidean distance, and returns the column
// indices in dendrogram leaf order. Ties merge the earliest pair.
func clusterColumns(m mat.Matrix) []int {
	_, n := m.Dims()
	cols := make([][]float64, n)
	for j := range cols {
		cols[j] = mat.Col(nil, j, m)
	}
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := 0; j < i; j++ {
			d := floats.Distance(cols[i], cols[j], 2)
			dist[i][j], dist[j][i] = d, d
		}
	}

	clusters := make([][]int, n)
	for j := range clusters {
		clusters[j] = []int{j}
	}
	for len(clusters) > 1 {
		bi, bj, best := 0, 1, math.Inf(1)
		for i := range clusters {
			for j := i + 1; j < len(clusters); j++ {
				if d := completeLinkage(dist, clusters[i], clusters[j]); d < best {
					bi, bj, best = i, j, d
				}
			}
		}
		merged := append(append([]int(nil), clusters[bi]...), clusters[bj]...)
		clusters[bi] = merged
		clusters = append(clusters[:bj], clusters[bj+1:]...)
	}
	if n == 0 {
		return nil
	}
	return clusters[0]
}

func completeLinkage(dist [][]float64, a, b []int) float64 {
	max := 0.0
	for _, i := range a {
		for _, j := range b {
			if dist[i][j] > max {
				max = dist[i][j]
			}
		}
	}
	return max
}
