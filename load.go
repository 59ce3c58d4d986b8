// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

// betaMatrix holds methylation fractions, one row per locus and one
// column per sample. Missing values are NaN.
type betaMatrix struct {
	Loci    []string
	Samples []string
	Values  *mat.Dense
}

func (bm *betaMatrix) Row(i int) []float64 {
	return mat.Row(nil, i, bm.Values)
}

// MValues returns a new matrix of logit-style values
// log2((b+offset)/(1-b+offset)). Used for diagnostics only.
func (bm *betaMatrix) MValues(offset float64) *mat.Dense {
	rows, cols := bm.Values.Dims()
	m := mat.NewDense(rows, cols, nil)
	m.Apply(func(i, j int, b float64) float64 {
		return math.Log2((b + offset) / (1 - b + offset))
	}, bm.Values)
	return m
}

// CompleteRows returns the indices of rows that have no missing
// values.
func (bm *betaMatrix) CompleteRows() []int {
	rows, _ := bm.Values.Dims()
	var complete []int
	for i := 0; i < rows; i++ {
		if !hasNaN(bm.Values.RawRowView(i)) {
			complete = append(complete, i)
		}
	}
	return complete
}

func hasNaN(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func isMissing(s string) bool {
	switch s {
	case "", "NA", "NaN", "nan", "NULL":
		return true
	}
	return false
}

func loadBetaMatrix(fnm string) (*betaMatrix, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bm, err := readBetaMatrix(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	log.Infof("loaded %s: %d loci x %d samples", fnm, len(bm.Loci), len(bm.Samples))
	return bm, nil
}

func readBetaMatrix(r io.Reader) (*betaMatrix, error) {
	rdr := csv.NewReader(r)
	rdr.ReuseRecord = true
	header, err := rdr.Read()
	if err == io.EOF {
		return nil, errors.New("empty file")
	} else if err != nil {
		return nil, err
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("header has %d fields, need locus column plus at least one sample", len(header))
	}
	bm := &betaMatrix{Samples: append([]string(nil), header[1:]...)}
	seen := map[string]bool{}
	for _, s := range bm.Samples {
		if seen[s] {
			return nil, fmt.Errorf("duplicate sample ID %q in header", s)
		}
		seen[s] = true
	}
	ncols := len(bm.Samples)
	var data []float64
	seen = map[string]bool{}
	for line := 2; ; line++ {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		locus := rec[0]
		if seen[locus] {
			return nil, fmt.Errorf("line %d: duplicate locus %q", line, locus)
		}
		seen[locus] = true
		bm.Loci = append(bm.Loci, locus)
		for _, s := range rec[1:] {
			s = strings.TrimSpace(s)
			if isMissing(s) {
				data = append(data, math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: locus %q: %w", line, locus, err)
			}
			if v < 0 || v > 1 {
				return nil, fmt.Errorf("line %d: locus %q: beta value %g out of range [0,1]", line, locus, v)
			}
			data = append(data, v)
		}
	}
	if len(bm.Loci) == 0 {
		return nil, errors.New("no loci")
	}
	bm.Values = mat.NewDense(len(bm.Loci), ncols, data)
	return bm, nil
}

// phenotypeTable maps sample ID to condition label.
type phenotypeTable struct {
	Samples   []string // file order
	Condition map[string]string
}

func loadPhenotypes(fnm, sampleColumn, conditionColumn string) (*phenotypeTable, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pt, err := readPhenotypes(f, sampleColumn, conditionColumn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	log.Infof("loaded %s: %d samples", fnm, len(pt.Samples))
	return pt, nil
}

func readPhenotypes(r io.Reader, sampleColumn, conditionColumn string) (*phenotypeTable, error) {
	rdr := csv.NewReader(r)
	rdr.FieldsPerRecord = -1
	header, err := rdr.Read()
	if err == io.EOF {
		return nil, errors.New("empty file")
	} else if err != nil {
		return nil, err
	}
	sampleCol, condCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case sampleColumn:
			sampleCol = i
		case conditionColumn:
			condCol = i
		}
	}
	if sampleCol < 0 {
		return nil, fmt.Errorf("no column named %q in header row %q", sampleColumn, header)
	}
	if condCol < 0 {
		return nil, fmt.Errorf("no column named %q in header row %q", conditionColumn, header)
	}
	pt := &phenotypeTable{Condition: map[string]string{}}
	for line := 2; ; line++ {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if len(rec) == 1 && rec[0] == "" {
			continue
		}
		if len(rec) <= sampleCol || len(rec) <= condCol {
			return nil, fmt.Errorf("line %d: %d fields, too short", line, len(rec))
		}
		id := strings.TrimSpace(rec[sampleCol])
		if _, dup := pt.Condition[id]; dup {
			return nil, fmt.Errorf("line %d: duplicate sample ID %q", line, id)
		}
		pt.Samples = append(pt.Samples, id)
		pt.Condition[id] = strings.TrimSpace(rec[condCol])
	}
	return pt, nil
}

// align returns the condition of each matrix column, matching samples
// by identifier. The two sample sets must be identical.
func (pt *phenotypeTable) align(samples []string) ([]string, error) {
	inMatrix := make(map[string]bool, len(samples))
	aerr := &InputAlignmentError{}
	conds := make([]string, len(samples))
	for i, s := range samples {
		inMatrix[s] = true
		cond, ok := pt.Condition[s]
		if !ok {
			aerr.MissingFromPhenotypes = append(aerr.MissingFromPhenotypes, s)
			continue
		}
		conds[i] = cond
	}
	for _, s := range pt.Samples {
		if !inMatrix[s] {
			aerr.MissingFromMatrix = append(aerr.MissingFromMatrix, s)
		}
	}
	if len(aerr.MissingFromMatrix) > 0 || len(aerr.MissingFromPhenotypes) > 0 {
		sort.Strings(aerr.MissingFromMatrix)
		sort.Strings(aerr.MissingFromPhenotypes)
		return nil, aerr
	}
	return conds, nil
}
