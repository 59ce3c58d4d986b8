// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package methylreport

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// geneSetClient fetches curated gene sets from a Harmonizome-style
// API: GET {BaseURL}/gene_set/{name}/{collection}.
type geneSetClient struct {
	Client  *http.Client
	BaseURL string
}

type geneSetResponse struct {
	Associations []struct {
		Gene struct {
			Symbol string `json:"symbol"`
		} `json:"gene"`
	} `json:"associations"`
}

// Fetch returns the set of gene symbols in the named gene set. Any
// response other than a decodable JSON document is an error.
func (gsc *geneSetClient) Fetch(ctx context.Context, collection, name string) (map[string]bool, error) {
	u := strings.TrimRight(gsc.BaseURL, "/") + "/gene_set/" + url.PathEscape(name) + "/" + url.PathEscape(collection)
	service := "gene set service"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &RemoteServiceError{Service: service, Detail: "bad request URL " + u, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	client := gsc.Client
	if client == nil {
		client = http.DefaultClient
	}
	log.Infof("fetching gene set %q from collection %q", name, collection)
	resp, err := client.Do(req)
	if err != nil {
		return nil, &RemoteServiceError{Service: service, Detail: "GET " + u, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &RemoteServiceError{Service: service, Detail: fmt.Sprintf("GET %s: %s: %q", u, resp.Status, body)}
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return nil, &RemoteServiceError{Service: service, Detail: fmt.Sprintf("GET %s: unexpected content type %q", u, resp.Header.Get("Content-Type"))}
	}
	var gsr geneSetResponse
	if err := json.NewDecoder(resp.Body).Decode(&gsr); err != nil {
		return nil, &RemoteServiceError{Service: service, Detail: "GET " + u + ": decode response", Err: err}
	}
	set := make(map[string]bool, len(gsr.Associations))
	for _, a := range gsr.Associations {
		if sym := strings.TrimSpace(a.Gene.Symbol); sym != "" {
			set[sym] = true
		}
	}
	log.Infof("gene set %q has %d genes", name, len(set))
	return set, nil
}

// filterByGeneSet keeps loci whose nearest gene is in set, dropping
// loci with no gene, and removes repeated locus IDs (first wins).
func filterByGeneSet(loci []annotatedLocus, set map[string]bool) []annotatedLocus {
	out := []annotatedLocus{}
	seen := map[string]bool{}
	for _, al := range loci {
		if !al.HasGene || !set[al.Gene] || seen[al.Locus] {
			continue
		}
		seen[al.Locus] = true
		out = append(out, al)
	}
	return out
}

// genesOf returns the distinct gene names of loci, sorted.
func genesOf(loci []annotatedLocus) []string {
	seen := map[string]bool{}
	var genes []string
	for _, al := range loci {
		if al.HasGene && !seen[al.Gene] {
			seen[al.Gene] = true
			genes = append(genes, al.Gene)
		}
	}
	sort.Strings(genes)
	return genes
}

type genesetcmd struct{}

func (cmd *genesetcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	cfg := defaultConfig()
	cfg.GeneSetFlags(flags)
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	}

	gsc := &geneSetClient{Client: &http.Client{Timeout: cfg.HTTPTimeout}, BaseURL: cfg.GeneSetBaseURL}
	set, err := gsc.Fetch(context.Background(), cfg.GeneSetCollection, cfg.GeneSetName)
	if err != nil {
		return 1
	}
	symbols := make([]string, 0, len(set))
	for sym := range set {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	bufw := bufio.NewWriter(stdout)
	for _, sym := range symbols {
		fmt.Fprintln(bufw, sym)
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	return 0
}
