// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"fmt"
	"strings"
)

// InputAlignmentError means the beta matrix columns and the phenotype
// table rows do not name the same set of samples.
type InputAlignmentError struct {
	MissingFromPhenotypes []string // in the matrix, not in the phenotype table
	MissingFromMatrix     []string // in the phenotype table, not in the matrix
}

func (e *InputAlignmentError) Error() string {
	var msgs []string
	if len(e.MissingFromPhenotypes) > 0 {
		msgs = append(msgs, fmt.Sprintf("%d matrix samples have no phenotype (%s)", len(e.MissingFromPhenotypes), abbrev(e.MissingFromPhenotypes)))
	}
	if len(e.MissingFromMatrix) > 0 {
		msgs = append(msgs, fmt.Sprintf("%d phenotype samples are not in the matrix (%s)", len(e.MissingFromMatrix), abbrev(e.MissingFromMatrix)))
	}
	return "sample identifiers do not match: " + strings.Join(msgs, "; ")
}

// DegenerateDesignError means the condition factor has fewer than two
// observed levels, so there is nothing to compare.
type DegenerateDesignError struct {
	Levels []string
}

func (e *DegenerateDesignError) Error() string {
	return fmt.Sprintf("condition has %d observed level(s) %q, need 2", len(e.Levels), e.Levels)
}

type MalformedLocusError struct {
	ID string
}

func (e *MalformedLocusError) Error() string {
	return fmt.Sprintf("malformed locus identifier %q (want chrom:start-end)", e.ID)
}

// RemoteServiceError is returned when the gene set service or the
// genome reference cannot be reached or returns something unusable.
type RemoteServiceError struct {
	Service string
	Detail  string
	Err     error
}

func (e *RemoteServiceError) Error() string {
	msg := e.Service + ": " + e.Detail
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteServiceError) Unwrap() error { return e.Err }

type RenderError struct {
	Path string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s", e.Path, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

func abbrev(ids []string) string {
	if len(ids) <= 5 {
		return strings.Join(ids, ", ")
	}
	return strings.Join(ids[:5], ", ") + ", ..."
}
