// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"flag"
	"fmt"
	"time"
)

const (
	defaultBetaFilename      = "data/beta_values.csv"
	defaultPhenotypeFilename = "data/phenotypes.csv"
	defaultGenesFilename     = "data/genes.csv"
	defaultTranscriptsGFF    = "data/transcripts.gff3"
	defaultOutputDir         = "out"

	defaultSampleColumn    = "sample"
	defaultConditionColumn = "condition"

	defaultPValueThreshold = 0.05
	defaultLogitOffset     = 0.001

	// promoter window around each TSS, in bases
	defaultPromoterUpstream   = 3000
	defaultPromoterDownstream = 3000

	defaultGeneSetBaseURL    = "https://maayanlab.cloud/Harmonizome/api/1.0"
	defaultGeneSetCollection = "GO Cellular Component Annotations 2023"
	defaultGeneSetName       = "extracellular matrix"

	// loci whose gene has at most this many loci get a volcano label
	defaultMaxLabelLoci = 3

	defaultImageWidthInches  = 8
	defaultImageHeightInches = 8
	defaultImageDPI          = 300
)

type reportConfig struct {
	BetaFilename      string
	PhenotypeFilename string
	GenesFilename     string
	TranscriptsGFF    string
	OutputDir         string

	SampleColumn    string
	ConditionColumn string
	Baseline        string

	PValueThreshold float64
	LogitOffset     float64

	PromoterUpstream   int
	PromoterDownstream int

	GeneSetBaseURL    string
	GeneSetCollection string
	GeneSetName       string
	HTTPTimeout       time.Duration

	MaxLabelLoci int

	ImageWidthInches  float64
	ImageHeightInches float64
	ImageDPI          int
}

func defaultConfig() reportConfig {
	return reportConfig{
		BetaFilename:       defaultBetaFilename,
		PhenotypeFilename:  defaultPhenotypeFilename,
		GenesFilename:      defaultGenesFilename,
		TranscriptsGFF:     defaultTranscriptsGFF,
		OutputDir:          defaultOutputDir,
		SampleColumn:       defaultSampleColumn,
		ConditionColumn:    defaultConditionColumn,
		PValueThreshold:    defaultPValueThreshold,
		LogitOffset:        defaultLogitOffset,
		PromoterUpstream:   defaultPromoterUpstream,
		PromoterDownstream: defaultPromoterDownstream,
		GeneSetBaseURL:     defaultGeneSetBaseURL,
		GeneSetCollection:  defaultGeneSetCollection,
		GeneSetName:        defaultGeneSetName,
		MaxLabelLoci:       defaultMaxLabelLoci,
		ImageWidthInches:   defaultImageWidthInches,
		ImageHeightInches:  defaultImageHeightInches,
		ImageDPI:           defaultImageDPI,
	}
}

// Flags registers the input/design flags shared by all subcommands.
func (cfg *reportConfig) Flags(flags *flag.FlagSet) {
	flags.StringVar(&cfg.BetaFilename, "beta", cfg.BetaFilename, "beta value matrix `file` (csv, optionally .gz)")
	flags.StringVar(&cfg.PhenotypeFilename, "phenotype", cfg.PhenotypeFilename, "sample phenotype `file` (csv)")
	flags.StringVar(&cfg.SampleColumn, "sample-column", cfg.SampleColumn, "phenotype column `name` holding sample IDs")
	flags.StringVar(&cfg.ConditionColumn, "condition-column", cfg.ConditionColumn, "phenotype column `name` holding the condition")
	flags.StringVar(&cfg.Baseline, "baseline", cfg.Baseline, "baseline condition `level` (default: lexically first level)")
	flags.Float64Var(&cfg.PValueThreshold, "p-threshold", cfg.PValueThreshold, "adjusted p-value `threshold` for significance")
}

// AnnotationFlags registers flags used by the annotation, gene set and
// rendering stages.
func (cfg *reportConfig) AnnotationFlags(flags *flag.FlagSet) {
	flags.StringVar(&cfg.GenesFilename, "genes", cfg.GenesFilename, "gene reference `file` (csv: gene,chrom,start,end,description)")
	flags.StringVar(&cfg.TranscriptsGFF, "transcripts", cfg.TranscriptsGFF, "transcript annotation `file` (gff3, optionally .gz)")
	flags.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "output `directory`")
	flags.Float64Var(&cfg.LogitOffset, "logit-offset", cfg.LogitOffset, "offset added before the logit transform of beta values")
	flags.IntVar(&cfg.PromoterUpstream, "promoter-upstream", cfg.PromoterUpstream, "promoter window `bases` upstream of TSS")
	flags.IntVar(&cfg.PromoterDownstream, "promoter-downstream", cfg.PromoterDownstream, "promoter window `bases` downstream of TSS")
	flags.IntVar(&cfg.MaxLabelLoci, "max-label-loci", cfg.MaxLabelLoci, "label volcano points for genes with at most `N` loci")
	flags.IntVar(&cfg.ImageDPI, "dpi", cfg.ImageDPI, "raster image `resolution`")
	cfg.GeneSetFlags(flags)
}

func (cfg *reportConfig) GeneSetFlags(flags *flag.FlagSet) {
	flags.StringVar(&cfg.GeneSetBaseURL, "geneset-url", cfg.GeneSetBaseURL, "gene set service base `URL`")
	flags.StringVar(&cfg.GeneSetCollection, "geneset-collection", cfg.GeneSetCollection, "gene set collection `name`")
	flags.StringVar(&cfg.GeneSetName, "geneset", cfg.GeneSetName, "gene set `name`")
	flags.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "gene set request timeout (0 for none)")
}

func (cfg *reportConfig) check() error {
	if cfg.PValueThreshold <= 0 || cfg.PValueThreshold > 1 {
		return fmt.Errorf("p-value threshold %g out of range (0,1]", cfg.PValueThreshold)
	}
	if cfg.LogitOffset <= 0 {
		return fmt.Errorf("logit offset %g must be positive", cfg.LogitOffset)
	}
	if cfg.PromoterUpstream < 0 || cfg.PromoterDownstream < 0 {
		return fmt.Errorf("promoter window [-%d,+%d] must not be negative", cfg.PromoterUpstream, cfg.PromoterDownstream)
	}
	return nil
}
