// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/check.v1"
)

type reportSuite struct {
	tmpdir string
	cfg    reportConfig
	srv    *httptest.Server
}

var _ = check.Suite(&reportSuite{})

const testGenesCSV = `gene,chrom,start,end,description
COL1A1,chr1,500,2500,collagen type I alpha 1 chain
GAPDH,chr1,19000,21000
ACTB,chr1,39000,45000
FN1,chr2,4000,6000,fibronectin 1
TP53,chr2,29000,31000
LAMA1,chr3,500,1500
MYC,chr3,8000,9500
`

const testReportGFF = `##gff-version 3
chr1	test	gene	501	2500	.	+	.	ID=gene:COL1A1;Name=COL1A1
chr1	test	mRNA	501	2500	.	+	.	ID=txCOL1A1;Parent=gene:COL1A1
chr1	test	exon	501	2500	.	+	.	Parent=txCOL1A1
chr2	test	gene	4001	6000	.	-	.	ID=gene:FN1;Name=FN1
chr2	test	mRNA	4001	6000	.	-	.	ID=txFN1;Parent=gene:FN1
chr2	test	exon	4001	6000	.	-	.	Parent=txFN1
`

func (s *reportSuite) SetUpTest(c *check.C) {
	s.tmpdir = c.MkDir()
	for fnm, content := range map[string]string{
		"beta.csv":        testBetaCSV,
		"phenotypes.csv":  testPhenotypeCSV,
		"genes.csv":       testGenesCSV,
		"transcripts.gff": testReportGFF,
	} {
		c.Assert(os.WriteFile(filepath.Join(s.tmpdir, fnm), []byte(content), 0666), check.IsNil)
	}
	s.srv = geneSetServer("COL1A1", "FN1", "LAMA1")
	s.cfg = defaultConfig()
	s.cfg.BetaFilename = filepath.Join(s.tmpdir, "beta.csv")
	s.cfg.PhenotypeFilename = filepath.Join(s.tmpdir, "phenotypes.csv")
	s.cfg.GenesFilename = filepath.Join(s.tmpdir, "genes.csv")
	s.cfg.TranscriptsGFF = filepath.Join(s.tmpdir, "transcripts.gff")
	s.cfg.OutputDir = filepath.Join(s.tmpdir, "out")
	s.cfg.GeneSetBaseURL = s.srv.URL + "/api"
	s.cfg.ImageDPI = 72
}

func (s *reportSuite) TearDownTest(c *check.C) {
	s.srv.Close()
}

func (s *reportSuite) TestRun(c *check.C) {
	r, err := newReport(s.cfg)
	c.Assert(err, check.IsNil)
	var stdout bytes.Buffer
	res, err := r.Run(context.Background(), &stdout)
	c.Assert(err, check.IsNil)

	c.Check(res.Contrast.Baseline, check.Equals, "control")
	c.Check(res.Contrast.Treatment, check.Equals, "treated")
	c.Check(res.Rows, check.HasLen, 10)
	c.Check(res.Tested, check.Equals, 10)
	c.Assert(res.Significant, check.HasLen, 2)
	c.Assert(res.Annotated, check.HasLen, 2)
	for _, al := range res.Annotated {
		c.Check(al.Feature, check.Equals, featurePromoter1kb)
		c.Check(al.GeneDistance, check.Equals, 0)
	}
	c.Check(res.GeneSetSize, check.Equals, 3)
	c.Check(res.InGeneSet, check.HasLen, 2)
	c.Check(res.Genes, check.DeepEquals, []string{"COL1A1", "FN1"})

	labels := map[string]string{}
	for _, pt := range res.Volcano {
		labels[pt.Locus] = pt.Label
	}
	c.Check(labels, check.DeepEquals, map[string]string{
		"chr1:1000-1050": "COL1A1",
		"chr2:5000-5050": "chr2:5000-5050",
	})

	c.Check(res.Heatmap.Samples, check.DeepEquals, []string{"S1", "S2", "S3", "S4"})
	c.Check(res.Heatmap.Conditions, check.DeepEquals, []string{"control", "control", "treated", "treated"})
	c.Check(res.Heatmap.Dropped, check.HasLen, 0)

	for _, fnm := range []string{"heatmap.png", "heatmap.npy", "volcano.png", "report.html", "ma.png", "pca.npy", "differential.csv", "report.json"} {
		fi, err := os.Stat(filepath.Join(s.cfg.OutputDir, fnm))
		if c.Check(err, check.IsNil) {
			c.Check(fi.Size() > 0, check.Equals, true, check.Commentf("%s is empty", fnm))
		}
	}

	c.Check(stdout.String(), check.Matches, `(?s)treated vs control: 10 loci tested, 2 significant\n.*COL1A1.*FN1\n`)

	buf, err := os.ReadFile(filepath.Join(s.cfg.OutputDir, "report.json"))
	c.Assert(err, check.IsNil)
	var rs runSummary
	c.Assert(json.Unmarshal(buf, &rs), check.IsNil)
	c.Check(rs.Significant, check.Equals, 2)
	c.Check(rs.InGeneSet, check.Equals, 2)
	c.Check(rs.Inputs, check.HasLen, 4)
	c.Check(rs.Outputs[len(rs.Outputs)-1], check.Equals, "report.json")

	buf, err = os.ReadFile(filepath.Join(s.cfg.OutputDir, "differential.csv"))
	c.Assert(err, check.IsNil)
	lines := strings.Split(strings.TrimSpace(string(buf)), "\n")
	c.Check(lines, check.HasLen, 11)
	c.Check(lines[0], check.Equals, "locus,logFC,AveExpr,t,P.Value,adj.P.Val")
}

func (s *reportSuite) TestEmptyGeneSet(c *check.C) {
	s.srv.Close()
	s.srv = geneSetServer("LAMA1")
	s.cfg.GeneSetBaseURL = s.srv.URL + "/api"
	r, err := newReport(s.cfg)
	c.Assert(err, check.IsNil)
	res, err := r.Run(context.Background(), &bytes.Buffer{})
	c.Assert(err, check.IsNil)
	c.Check(res.InGeneSet, check.HasLen, 0)
	for _, fnm := range []string{"heatmap.png", "volcano.png"} {
		_, err := os.Stat(filepath.Join(s.cfg.OutputDir, fnm))
		c.Check(os.IsNotExist(err), check.Equals, true)
	}
	_, err = os.Stat(filepath.Join(s.cfg.OutputDir, "report.json"))
	c.Check(err, check.IsNil)
}

func (s *reportSuite) TestGeneSetFailure(c *check.C) {
	s.cfg.GeneSetName = "broken"
	r, err := newReport(s.cfg)
	c.Assert(err, check.IsNil)
	_, err = r.Run(context.Background(), &bytes.Buffer{})
	var rerr *RemoteServiceError
	c.Check(errors.As(err, &rerr), check.Equals, true)
	_, err = os.Stat(filepath.Join(s.cfg.OutputDir, "report.json"))
	c.Check(os.IsNotExist(err), check.Equals, true)
}

func (s *reportSuite) TestUnwritableTables(c *check.C) {
	for _, fnm := range []string{"differential.csv", "report.json"} {
		s.cfg.OutputDir = filepath.Join(s.tmpdir, "out-"+fnm)
		// a directory where the table should go
		c.Assert(os.MkdirAll(filepath.Join(s.cfg.OutputDir, fnm), 0777), check.IsNil)
		r, err := newReport(s.cfg)
		c.Assert(err, check.IsNil)
		_, err = r.Run(context.Background(), &bytes.Buffer{})
		var rerr *RenderError
		if c.Check(errors.As(err, &rerr), check.Equals, true, check.Commentf("%s: %v", fnm, err)) {
			c.Check(rerr.Path, check.Equals, filepath.Join(s.cfg.OutputDir, fnm))
		}
	}
}

func (s *reportSuite) TestMissingReference(c *check.C) {
	s.cfg.TranscriptsGFF = filepath.Join(s.tmpdir, "nonexistent.gff")
	r, err := newReport(s.cfg)
	c.Assert(err, check.IsNil)
	_, err = r.Run(context.Background(), &bytes.Buffer{})
	var rerr *RemoteServiceError
	c.Check(errors.As(err, &rerr), check.Equals, true)
}

func (s *reportSuite) TestBadConfig(c *check.C) {
	s.cfg.PValueThreshold = 0
	_, err := newReport(s.cfg)
	c.Check(err, check.ErrorMatches, `p-value threshold 0 out of range.*`)
}

func (s *reportSuite) TestCommands(c *check.C) {
	var stdout, stderr bytes.Buffer
	exited := (&reportcmd{}).RunCommand("methylreport report", []string{"-help"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 0)
	c.Check(stderr.String(), check.Matches, `(?s).*-geneset-url.*`)

	exited = (&reportcmd{}).RunCommand("methylreport report", []string{"-no-such-flag"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)
	exited = (&difftestcmd{}).RunCommand("methylreport difftest", []string{"-beta", s.cfg.BetaFilename, "extra"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 2)

	stderr.Reset()
	exited = (&reportcmd{}).RunCommand("methylreport report", []string{
		"-beta", s.cfg.BetaFilename,
		"-phenotype", s.cfg.PhenotypeFilename,
		"-genes", s.cfg.GenesFilename,
		"-transcripts", s.cfg.TranscriptsGFF,
		"-output-dir", s.cfg.OutputDir,
		"-geneset-url", s.cfg.GeneSetBaseURL,
		"-dpi", "72",
	}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 0, check.Commentf("%s", stderr.String()))

	stdout.Reset()
	exited = (&difftestcmd{}).RunCommand("methylreport difftest", []string{
		"-beta", s.cfg.BetaFilename,
		"-phenotype", s.cfg.PhenotypeFilename,
		"-significant-only",
	}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 0)
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	c.Check(lines, check.HasLen, 3)

	exited = (&difftestcmd{}).RunCommand("methylreport difftest", []string{
		"-beta", filepath.Join(s.tmpdir, "nonexistent.csv"),
		"-phenotype", s.cfg.PhenotypeFilename,
	}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 1)

	stdout.Reset()
	exited = (&genesetcmd{}).RunCommand("methylreport geneset", []string{"-geneset-url", s.cfg.GeneSetBaseURL}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 0)
	c.Check(stdout.String(), check.Equals, "COL1A1\nFN1\nLAMA1\n")

	exited = (&genesetcmd{}).RunCommand("methylreport geneset", []string{"-geneset-url", s.cfg.GeneSetBaseURL, "-geneset", "html"}, nil, &stdout, &stderr)
	c.Check(exited, check.Equals, 1)
}
