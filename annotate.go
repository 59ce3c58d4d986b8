// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// annotatedLocus is a differential result placed on the genome.
type annotatedLocus struct {
	diffRow
	Chrom string
	Start int
	End   int
	// Gene is the nearest gene on the same chromosome. HasGene is
	// false if the reference has no genes on Chrom.
	Gene          string
	HasGene       bool
	GeneDistance  int
	Feature       string
	TranscriptID  string
	DistanceToTSS int
}

// genomeReference supplies gene coordinates and the transcript
// database for one genome build.
type genomeReference interface {
	Genes(ctx context.Context) ([]geneRecord, error)
	Transcripts(ctx context.Context) ([]*transcript, error)
}

// fileGenomeReference reads a gene table (csv) and a transcript
// annotation (gff3) from local files, either of which may be gzipped.
type fileGenomeReference struct {
	GenesFilename       string
	TranscriptsFilename string
}

func (ref fileGenomeReference) Genes(ctx context.Context) ([]geneRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := zopen(ref.GenesFilename)
	if err != nil {
		return nil, &RemoteServiceError{Service: "genome reference", Detail: "gene table unavailable", Err: err}
	}
	defer f.Close()
	genes, err := readGeneTable(f)
	if err != nil {
		return nil, &RemoteServiceError{Service: "genome reference", Detail: ref.GenesFilename, Err: err}
	}
	log.Infof("loaded %d genes from %s", len(genes), ref.GenesFilename)
	return genes, nil
}

func (ref fileGenomeReference) Transcripts(ctx context.Context) ([]*transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := zopen(ref.TranscriptsFilename)
	if err != nil {
		return nil, &RemoteServiceError{Service: "genome reference", Detail: "transcript database unavailable", Err: err}
	}
	defer f.Close()
	txs, err := readTranscriptsGFF(f)
	if err != nil {
		return nil, &RemoteServiceError{Service: "genome reference", Detail: ref.TranscriptsFilename, Err: err}
	}
	log.Infof("loaded %d transcripts from %s", len(txs), ref.TranscriptsFilename)
	return txs, nil
}

type locusAnnotator struct {
	Reference          genomeReference
	PromoterUpstream   int
	PromoterDownstream int
}

// Annotate places each row on the genome, attaches the nearest gene,
// and merges in the feature type of the locus. Any reference failure
// aborts: no partially annotated table is returned.
func (la *locusAnnotator) Annotate(ctx context.Context, rows []diffRow) ([]annotatedLocus, error) {
	loci := make([]locus, len(rows))
	for i, row := range rows {
		l, err := parseLocus(row.Locus)
		if err != nil {
			return nil, err
		}
		loci[i] = l
	}

	genes, err := la.Reference.Genes(ctx)
	if err != nil {
		return nil, err
	}
	gi := &geneIndex{}
	for _, g := range genes {
		gi.Add(g)
	}
	gi.Freeze()

	txs, err := la.Reference.Transcripts(ctx)
	if err != nil {
		return nil, err
	}
	tdb, err := newTranscriptDB(txs, la.PromoterUpstream, la.PromoterDownstream)
	if err != nil {
		return nil, err
	}

	// Feature classification is keyed by locus ID and joined
	// back below; every locus must find its label.
	features := make(map[string]featureAnnotation, len(rows))
	for i, row := range rows {
		l := loci[i]
		// locus IDs are 1-based inclusive; classify the midpoint
		features[row.Locus] = tdb.Classify(l.Chrom, (l.Start+l.End)/2-1)
	}

	out := make([]annotatedLocus, len(rows))
	nogene := 0
	for i, row := range rows {
		l := loci[i]
		al := annotatedLocus{diffRow: row, Chrom: l.Chrom, Start: l.Start, End: l.End}
		if g, dist, ok := gi.Nearest(l.Chrom, l.Start, l.End); ok {
			al.Gene, al.HasGene, al.GeneDistance = g.Name, true, dist
		} else {
			nogene++
		}
		fa, ok := features[row.Locus]
		if !ok {
			return nil, fmt.Errorf("bug: no feature annotation for locus %q", row.Locus)
		}
		al.Feature, al.TranscriptID, al.DistanceToTSS = fa.Feature, fa.TranscriptID, fa.DistanceToTSS
		out[i] = al
	}
	if nogene > 0 {
		log.Warnf("%d of %d loci are on chromosomes with no reference genes", nogene, len(rows))
	}
	return out, nil
}
