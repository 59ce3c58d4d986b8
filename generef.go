// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

type geneRecord struct {
	Name        string
	Chrom       string
	Start       int
	End         int
	Description string
}

type geneInterval struct {
	start int
	end   int
	rank  int // index into geneIndex.sorted[chrom], -1 for padding
}

type intervalTreeNode struct {
	interval geneInterval
	maxend   int
}

type intervalTree []intervalTreeNode

// geneIndex answers nearest-gene queries. Call Add for every gene,
// then Freeze, then Nearest.
type geneIndex struct {
	genes  map[string][]geneRecord
	sorted map[string][]geneRecord
	// maxEndAt[chrom][i] is the rank, among sorted[chrom][0..i], of
	// the gene with the greatest end (first such gene on ties).
	maxEndAt map[string][]int
	itrees   map[string]intervalTree
	frozen   bool
}

func (gi *geneIndex) Add(g geneRecord) {
	if gi.genes == nil {
		gi.genes = map[string][]geneRecord{}
	}
	gi.genes[g.Chrom] = append(gi.genes[g.Chrom], g)
}

func (gi *geneIndex) Len() int {
	n := 0
	for _, gs := range gi.genes {
		n += len(gs)
	}
	return n
}

func (gi *geneIndex) Freeze() {
	gi.sorted = map[string][]geneRecord{}
	gi.maxEndAt = map[string][]int{}
	gi.itrees = map[string]intervalTree{}
	for chrom, genes := range gi.genes {
		sorted := append([]geneRecord(nil), genes...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Start < sorted[j].Start
		})
		gi.sorted[chrom] = sorted
		maxEndAt := make([]int, len(sorted))
		for i := range sorted {
			if i == 0 || sorted[i].End > sorted[maxEndAt[i-1]].End {
				maxEndAt[i] = i
			} else {
				maxEndAt[i] = maxEndAt[i-1]
			}
		}
		gi.maxEndAt[chrom] = maxEndAt
		in := make([]geneInterval, len(sorted))
		for i, g := range sorted {
			in[i] = geneInterval{start: g.Start, end: g.End, rank: i}
		}
		gi.itrees[chrom] = freezeIntervals(in)
	}
	gi.frozen = true
}

// Nearest returns the gene closest to [start,end] on chrom, and its
// distance (0 if they overlap). Ties go to the gene with the smaller
// start position. ok is false if there are no genes on chrom.
func (gi *geneIndex) Nearest(chrom string, start, end int) (g geneRecord, dist int, ok bool) {
	if !gi.frozen {
		panic("bug: (*geneIndex)Nearest() called before Freeze()")
	}
	sorted := gi.sorted[chrom]
	if len(sorted) == 0 {
		return geneRecord{}, 0, false
	}
	q := geneInterval{start: start, end: end}
	if rank := gi.itrees[chrom].first(0, q); rank >= 0 {
		return sorted[rank], 0, true
	}
	// Nothing overlaps, so every gene starting at or before end
	// also ends before start.
	k := sort.Search(len(sorted), func(i int) bool { return sorted[i].Start > end })
	best, bestDist := -1, 0
	if k > 0 {
		best = gi.maxEndAt[chrom][k-1]
		bestDist = start - sorted[best].End
	}
	if k < len(sorted) {
		if d := sorted[k].Start - end; best < 0 || d < bestDist {
			best, bestDist = k, d
		}
	}
	return sorted[best], bestDist, true
}

func freezeIntervals(in []geneInterval) intervalTree {
	if len(in) == 0 {
		return nil
	}
	itreesize := 1
	for itreesize < len(in) {
		itreesize = itreesize * 2
	}
	itree := make(intervalTree, itreesize)
	for i := range itree {
		itree[i] = intervalTreeNode{interval: geneInterval{rank: -1}, maxend: -1}
	}
	itree.importSlice(0, in)
	return itree
}

// first returns the rank of the leftmost interval (by start) that
// overlaps q, or -1. The tree is laid out so in-order traversal
// visits intervals in ascending start order.
func (itree intervalTree) first(root int, q geneInterval) int {
	if root >= len(itree) || itree[root].maxend < q.start {
		return -1
	}
	if found := itree.first(root*2+1, q); found >= 0 {
		return found
	}
	node := itree[root].interval
	if node.rank < 0 || node.start > q.end {
		return -1
	}
	if node.end >= q.start {
		return node.rank
	}
	return itree.first(root*2+2, q)
}

func (itree intervalTree) importSlice(root int, in []geneInterval) int {
	mid := len(in) / 2
	node := intervalTreeNode{interval: in[mid], maxend: in[mid].end}
	if mid > 0 {
		end := itree.importSlice(root*2+1, in[0:mid])
		if end > node.maxend {
			node.maxend = end
		}
	}
	if mid+1 < len(in) {
		end := itree.importSlice(root*2+2, in[mid+1:])
		if end > node.maxend {
			node.maxend = end
		}
	}
	itree[root] = node
	return node.maxend
}

// readGeneTable reads a csv gene reference with header columns gene,
// chrom, start, end and (optionally) description.
func readGeneTable(r io.Reader) ([]geneRecord, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	header, err := rdr.Read()
	if err == io.EOF {
		return nil, errors.New("empty gene table")
	} else if err != nil {
		return nil, err
	}
	col := map[string]int{"description": -1}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, need := range []string{"gene", "chrom", "start", "end"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("no column named %q in header row %q", need, header)
		}
	}
	var genes []geneRecord
	for line := 2; ; line++ {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		field := func(name string) string {
			if i := col[name]; i >= 0 && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		start, err := strconv.Atoi(field("start"))
		if err != nil {
			return nil, fmt.Errorf("line %d: start: %w", line, err)
		}
		end, err := strconv.Atoi(field("end"))
		if err != nil {
			return nil, fmt.Errorf("line %d: end: %w", line, err)
		}
		if end < start {
			return nil, fmt.Errorf("line %d: end %d < start %d", line, end, start)
		}
		genes = append(genes, geneRecord{
			Name:        field("gene"),
			Chrom:       field("chrom"),
			Start:       start,
			End:         end,
			Description: field("description"),
		})
	}
	return genes, nil
}
