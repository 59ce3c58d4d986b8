// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

// filterSignificant returns the rows whose adjusted p-value is strictly
// below threshold, in their original order. Rows with NaN adjusted
// p-values never pass.
func filterSignificant(rows []diffRow, threshold float64) []diffRow {
	out := []diffRow{}
	for _, row := range rows {
		if row.AdjPValue < threshold {
			out = append(out, row)
		}
	}
	return out
}
