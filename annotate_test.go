// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"context"
	"errors"
	"strings"

	"gopkg.in/check.v1"
)

type annotateSuite struct{}

var _ = check.Suite(&annotateSuite{})

type stubReference struct {
	genes []geneRecord
	txs   []*transcript
	err   error
}

func (ref stubReference) Genes(context.Context) ([]geneRecord, error) { return ref.genes, ref.err }
func (ref stubReference) Transcripts(context.Context) ([]*transcript, error) {
	return ref.txs, ref.err
}

func (s *annotateSuite) TestAnnotate(c *check.C) {
	txs, err := readTranscriptsGFF(strings.NewReader(testTranscriptsGFF))
	c.Assert(err, check.IsNil)
	la := locusAnnotator{
		Reference: stubReference{
			genes: []geneRecord{
				{Name: "COL1A1", Chrom: "chr1", Start: 10001, End: 20000},
				{Name: "FN1", Chrom: "chr2", Start: 50001, End: 60000},
			},
			txs: txs,
		},
		PromoterUpstream:   3000,
		PromoterDownstream: 3000,
	}
	rows := []diffRow{
		{Locus: "chr1:9401-9600", LogFC: 0.5},
		{Locus: "chr2:45001-45100", LogFC: -0.2},
		{Locus: "chrY:1-2", LogFC: 0.1},
	}
	loci, err := la.Annotate(context.Background(), rows)
	c.Assert(err, check.IsNil)
	c.Assert(loci, check.HasLen, 3)

	c.Check(loci[0].diffRow, check.Equals, rows[0])
	c.Check(loci[0].Chrom, check.Equals, "chr1")
	c.Check(loci[0].Gene, check.Equals, "COL1A1")
	c.Check(loci[0].GeneDistance, check.Equals, 401)
	c.Check(loci[0].Feature, check.Equals, featurePromoter1kb)
	c.Check(loci[0].TranscriptID, check.Equals, "tx1")

	c.Check(loci[1].Gene, check.Equals, "FN1")
	c.Check(loci[1].GeneDistance, check.Equals, 4901)
	c.Check(loci[1].Feature, check.Equals, featureIntergenic)

	c.Check(loci[2].HasGene, check.Equals, false)
	c.Check(loci[2].Gene, check.Equals, "")
	c.Check(loci[2].Feature, check.Equals, featureIntergenic)
}

func (s *annotateSuite) TestAnnotateErrors(c *check.C) {
	la := locusAnnotator{Reference: stubReference{}}
	_, err := la.Annotate(context.Background(), []diffRow{{Locus: "chr1:1-2"}, {Locus: "chr7_bad"}})
	var merr *MalformedLocusError
	c.Check(errors.As(err, &merr), check.Equals, true)

	la.Reference = fileGenomeReference{GenesFilename: c.MkDir() + "/missing.csv"}
	_, err = la.Annotate(context.Background(), []diffRow{{Locus: "chr1:1-2"}})
	var rerr *RemoteServiceError
	c.Check(errors.As(err, &rerr), check.Equals, true)

	// no rows still requires a usable reference
	la.Reference = stubReference{err: errors.New("reference offline")}
	_, err = la.Annotate(context.Background(), nil)
	c.Check(err, check.ErrorMatches, "reference offline")
}
