// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"regexp"
	"strconv"
)

var locusRe = regexp.MustCompile(`^([^:\s]+):(\d+)-(\d+)$`)

type locus struct {
	Chrom string
	Start int
	End   int
}

// parseLocus splits an identifier like "chr7:12345-12400".
func parseLocus(id string) (locus, error) {
	m := locusRe.FindStringSubmatch(id)
	if m == nil {
		return locus{}, &MalformedLocusError{ID: id}
	}
	start, err1 := strconv.Atoi(m[2])
	end, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil || end < start {
		return locus{}, &MalformedLocusError{ID: id}
	}
	return locus{Chrom: m[1], Start: start, End: end}, nil
}
