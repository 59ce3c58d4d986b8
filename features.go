// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/biogo/biogo/io/featio"
	"github.com/biogo/biogo/io/featio/gff"
	"github.com/biogo/biogo/seq"
	"github.com/biogo/store/interval"
	log "github.com/sirupsen/logrus"
)

// Feature type labels, highest priority first.
const (
	featurePromoter1kb = "Promoter (<=1kb)"
	featurePromoter2kb = "Promoter (1-2kb)"
	featurePromoter3kb = "Promoter (2-3kb)"
	featurePromoterFar = "Promoter (>3kb)"
	featureUTR5        = "5' UTR"
	featureUTR3        = "3' UTR"
	featureExon        = "Exon"
	featureIntron      = "Intron"
	featureDownstream  = "Downstream (<=3kb)"
	featureIntergenic  = "Distal Intergenic"

	downstreamWindow = 3000
)

// span is a 0-based half-open genomic range.
type span struct {
	Start, End int
}

func (s span) contains(pos int) bool { return s.Start <= pos && pos < s.End }

type transcript struct {
	ID     string
	Gene   string
	Chrom  string
	Start  int // 0-based
	End    int // exclusive
	Strand int8
	Exons  []span
	UTR5   []span
	UTR3   []span
}

// TSS returns the 0-based position of the transcription start site.
func (t *transcript) TSS() int {
	if t.Strand < 0 {
		return t.End - 1
	}
	return t.Start
}

// txInterval puts a transcript-derived window into a biogo interval
// tree.
type txInterval struct {
	span
	uid uintptr
	tx  *transcript
}

func (i txInterval) Overlap(b interval.IntRange) bool {
	return i.Start < b.End && b.Start < i.End
}
func (i txInterval) ID() uintptr               { return i.uid }
func (i txInterval) Range() interval.IntRange { return interval.IntRange{Start: i.Start, End: i.End} }

type posQuery int

func (p posQuery) Overlap(b interval.IntRange) bool {
	return b.Start <= int(p) && int(p) < b.End
}

type chromFeatures struct {
	promoters  interval.IntTree
	bodies     interval.IntTree
	downstream interval.IntTree
	tss        []*transcript // sorted by TSS
}

// transcriptDB classifies genomic positions relative to a set of
// transcripts.
type transcriptDB struct {
	Upstream   int
	Downstream int
	chroms     map[string]*chromFeatures
}

func newTranscriptDB(txs []*transcript, upstream, downstream int) (*transcriptDB, error) {
	db := &transcriptDB{Upstream: upstream, Downstream: downstream, chroms: map[string]*chromFeatures{}}
	for i, tx := range txs {
		cf := db.chroms[tx.Chrom]
		if cf == nil {
			cf = &chromFeatures{}
			db.chroms[tx.Chrom] = cf
		}
		uid := uintptr(i)
		tss := tx.TSS()
		prom := span{tss - upstream, tss + downstream + 1}
		down := span{tx.End, tx.End + downstreamWindow}
		if tx.Strand < 0 {
			prom = span{tss - downstream, tss + upstream + 1}
			down = span{tx.Start - downstreamWindow, tx.Start}
		}
		for _, ins := range []struct {
			tree *interval.IntTree
			sp   span
		}{
			{&cf.promoters, prom},
			{&cf.bodies, span{tx.Start, tx.End}},
			{&cf.downstream, down},
		} {
			err := ins.tree.Insert(txInterval{span: ins.sp, uid: uid, tx: tx}, true)
			if err != nil {
				return nil, fmt.Errorf("transcript %s: %w", tx.ID, err)
			}
		}
		cf.tss = append(cf.tss, tx)
	}
	for _, cf := range db.chroms {
		cf.promoters.AdjustRanges()
		cf.bodies.AdjustRanges()
		cf.downstream.AdjustRanges()
		sort.SliceStable(cf.tss, func(i, j int) bool { return cf.tss[i].TSS() < cf.tss[j].TSS() })
	}
	return db, nil
}

type featureAnnotation struct {
	Feature       string
	TranscriptID  string // nearest TSS; empty if none on this chromosome
	DistanceToTSS int    // upstream is negative
}

// Classify labels a 0-based position.
func (db *transcriptDB) Classify(chrom string, pos int) featureAnnotation {
	cf := db.chroms[chrom]
	if cf == nil {
		return featureAnnotation{Feature: featureIntergenic}
	}
	fa := featureAnnotation{Feature: featureIntergenic}
	if tx := cf.nearestTSS(pos); tx != nil {
		fa.TranscriptID = tx.ID
		fa.DistanceToTSS = signedTSSDistance(tx, pos)
	}

	if hits := cf.promoters.Get(posQuery(pos)); len(hits) > 0 {
		best := nearestHit(hits, pos)
		d := signedTSSDistance(best, pos)
		fa.TranscriptID, fa.DistanceToTSS = best.ID, d
		if d < 0 {
			d = -d
		}
		switch {
		case d <= 1000:
			fa.Feature = featurePromoter1kb
		case d <= 2000:
			fa.Feature = featurePromoter2kb
		case d <= 3000:
			fa.Feature = featurePromoter3kb
		default:
			fa.Feature = featurePromoterFar
		}
		return fa
	}
	if hits := cf.bodies.Get(posQuery(pos)); len(hits) > 0 {
		rank, labels := 4, []string{featureUTR5, featureUTR3, featureExon, featureIntron}
		for _, hit := range hits {
			tx := hit.(txInterval).tx
			r := 3
			switch {
			case inSpans(tx.UTR5, pos):
				r = 0
			case inSpans(tx.UTR3, pos):
				r = 1
			case inSpans(tx.Exons, pos):
				r = 2
			}
			if r < rank {
				rank = r
			}
		}
		fa.Feature = labels[rank]
		return fa
	}
	if hits := cf.downstream.Get(posQuery(pos)); len(hits) > 0 {
		fa.Feature = featureDownstream
	}
	return fa
}

func signedTSSDistance(tx *transcript, pos int) int {
	if tx.Strand < 0 {
		return tx.TSS() - pos
	}
	return pos - tx.TSS()
}

func nearestHit(hits []interval.IntInterface, pos int) *transcript {
	var best *transcript
	bestd := 0
	for _, hit := range hits {
		tx := hit.(txInterval).tx
		d := tx.TSS() - pos
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestd || (d == bestd && tx.ID < best.ID) {
			best, bestd = tx, d
		}
	}
	return best
}

func (cf *chromFeatures) nearestTSS(pos int) *transcript {
	if len(cf.tss) == 0 {
		return nil
	}
	k := sort.Search(len(cf.tss), func(i int) bool { return cf.tss[i].TSS() >= pos })
	if k == len(cf.tss) {
		return cf.tss[k-1]
	}
	if k == 0 || cf.tss[k].TSS()-pos < pos-cf.tss[k-1].TSS() {
		return cf.tss[k]
	}
	return cf.tss[k-1]
}

func inSpans(spans []span, pos int) bool {
	for _, s := range spans {
		if s.contains(pos) {
			return true
		}
	}
	return false
}

var transcriptTypes = map[string]bool{
	"mRNA":       true,
	"transcript": true,
	"lnc_RNA":    true,
	"ncRNA":      true,
}

// readTranscriptsGFF builds transcripts from gene, transcript, exon
// and UTR records of a GFF3 file.
func readTranscriptsGFF(r io.Reader) ([]*transcript, error) {
	// Pragmas and the trailing ##FASTA section are not features.
	var buf bytes.Buffer
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<26)
	for scanner.Scan() {
		line := scanner.Bytes()
		if bytes.HasPrefix(line, []byte("##FASTA")) {
			break
		}
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		buf.WriteString(gff3ToGFF2(string(line)))
		buf.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	geneName := map[string]string{}
	byID := map[string]*transcript{}
	var txs []*transcript
	type child struct {
		kind    string
		parents []string
		sp      span
	}
	var children []child
	sc := featio.NewScanner(gff.NewReader(&buf))
	for sc.Next() {
		f := sc.Feat().(*gff.Feature)
		id := gffAttr(f, "ID")
		switch {
		case f.Feature == "gene":
			if name := firstNonEmpty(gffAttr(f, "Name"), gffAttr(f, "gene_name"), id); id != "" {
				geneName[id] = name
			}
		case transcriptTypes[f.Feature]:
			if id == "" {
				return nil, fmt.Errorf("%s record at %s:%d has no ID", f.Feature, f.SeqName, f.FeatStart+1)
			}
			tx := &transcript{
				ID:    id,
				Gene:  firstNonEmpty(gffAttr(f, "gene_name"), gffAttr(f, "gene")),
				Chrom: f.SeqName,
				Start: f.FeatStart,
				End:   f.FeatEnd,
			}
			if f.FeatStrand == seq.Minus {
				tx.Strand = -1
			} else {
				tx.Strand = 1
			}
			if tx.Gene == "" {
				tx.Gene = gffAttr(f, "Parent")
			}
			byID[id] = tx
			txs = append(txs, tx)
		case f.Feature == "exon" || f.Feature == "five_prime_UTR" || f.Feature == "three_prime_UTR":
			children = append(children, child{
				kind:    f.Feature,
				parents: strings.Split(gffAttr(f, "Parent"), ","),
				sp:      span{f.FeatStart, f.FeatEnd},
			})
		}
	}
	if err := sc.Error(); err != nil {
		return nil, err
	}
	for _, tx := range txs {
		if name, ok := geneName[tx.Gene]; ok {
			tx.Gene = name
		}
	}
	orphans := 0
	for _, ch := range children {
		for _, parent := range ch.parents {
			tx := byID[parent]
			if tx == nil {
				orphans++
				continue
			}
			switch ch.kind {
			case "exon":
				tx.Exons = append(tx.Exons, ch.sp)
			case "five_prime_UTR":
				tx.UTR5 = append(tx.UTR5, ch.sp)
			case "three_prime_UTR":
				tx.UTR3 = append(tx.UTR3, ch.sp)
			}
		}
	}
	if orphans > 0 {
		log.Warnf("%d exon/UTR records have no transcript parent, ignored", orphans)
	}
	return txs, nil
}

// gff3ToGFF2 rewrites the attribute column of a GFF3 record
// ("ID=tx1;Name=A%20B") into the tag/value form the gff reader
// accepts ("ID tx1;Name A B"). Attributes whose tag the reader would
// reject are dropped, and values that would not survive decoding are
// left percent-encoded.
func gff3ToGFF2(line string) string {
	fields := strings.Split(line, "\t")
	if len(fields) < 9 {
		return line
	}
	var attrs []string
	for _, kv := range strings.Split(fields[8], ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		tag, value := kv, ""
		if i := strings.IndexByte(kv, '='); i >= 0 {
			tag, value = kv[:i], kv[i+1:]
		}
		if !validGFFTag(tag) {
			continue
		}
		if dec, err := url.PathUnescape(value); err == nil && !strings.ContainsAny(dec, ";\t\n") {
			value = dec
		}
		if value == "" {
			attrs = append(attrs, tag)
		} else {
			attrs = append(attrs, tag+" "+value)
		}
	}
	fields[8] = strings.Join(attrs, ";")
	return strings.Join(fields, "\t")
}

func validGFFTag(tag string) bool {
	if tag == "" {
		return false
	}
	for _, r := range tag {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r == '_') {
			return false
		}
	}
	return true
}

func gffAttr(f *gff.Feature, tag string) string {
	return strings.Trim(f.FeatAttributes.Get(tag), `"`)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
