// Command kinc-cmx runs the GmmPearsonKernel over every gene pair in an
// expression matrix, emitting a cluster matrix (CCM) and a correlation
// matrix (CMX).
package main

import (
	"flag"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/bio-kinc/kinc-go/ccmatrix"
	"github.com/bio-kinc/kinc-go/cluster"
	"github.com/bio-kinc/kinc-go/cormatrix"
	"github.com/bio-kinc/kinc-go/expmatrix"
	"github.com/bio-kinc/kinc-go/pairindex"
)

var (
	input  = flag.String("input", "", "expression matrix text file")
	ccmOut = flag.String("ccm", "", "output cluster matrix path")
	cmxOut = flag.String("cmx", "", "output correlation matrix path")

	transform = flag.String("transform", "none", "expression transform: none, ln, log2, log10")
	nanToken  = flag.String("nan-token", expmatrix.DefaultNaNToken, "text token treated as a missing value")

	minSamples  = flag.Int("min-samples", 15, "minimum samples required to fit or score a cluster")
	minClusters = flag.Int("min-clusters", 1, "minimum K to try per pair")
	maxClusters = flag.Int("max-clusters", 5, "maximum K to try per pair")
	criterion   = flag.String("criterion", "bic", "model selection criterion: bic or icl")
)

func parseTransform(s string) expmatrix.Transform {
	switch s {
	case "ln":
		return expmatrix.LnTransform
	case "log2":
		return expmatrix.Log2Transform
	case "log10":
		return expmatrix.Log10Transform
	default:
		return expmatrix.NoTransform
	}
}

func parseCriterion(s string) cluster.Criterion {
	if s == "icl" {
		return cluster.ICL
	}
	return cluster.BIC
}

func main() {
	shutdown := grail.Init()
	defer shutdown()

	flag.Parse()
	if *input == "" || *ccmOut == "" || *cmxOut == "" {
		log.Fatalf("kinc-cmx: -input, -ccm, and -cmx are required")
	}

	emx, err := expmatrix.LoadTextFileDefault(*input, parseTransform(*transform), *nanToken)
	if err != nil {
		log.Fatalf("kinc-cmx: loading expression matrix: %v", err)
	}

	opts := cluster.DefaultOptions()
	opts.MinSamples = *minSamples
	opts.MinClusters = *minClusters
	opts.MaxClusters = *maxClusters
	opts.Criterion = parseCriterion(*criterion)
	kernel := cluster.New(opts)

	geneCount := emx.RowCount()
	sampleCount := emx.ColumnCount()

	ccmWriter, err := ccmatrix.Create(*ccmOut, geneCount, sampleCount, opts.MaxClusters)
	if err != nil {
		log.Fatalf("kinc-cmx: creating cluster matrix: %v", err)
	}
	cmxWriter, err := cormatrix.Create(*cmxOut, geneCount, sampleCount, opts.MaxClusters, 1)
	if err != nil {
		log.Fatalf("kinc-cmx: creating correlation matrix: %v", err)
	}

	total := pairindex.Count(geneCount)
	var done uint64
	it := pairindex.NewIterator(geneCount)
	for it.Next() {
		i, j := it.I(), it.J()
		gi, err := emx.Gene(i)
		if err != nil {
			log.Fatalf("kinc-cmx: reading gene %d: %v", i, err)
		}
		gj, err := emx.Gene(j)
		if err != nil {
			log.Fatalf("kinc-cmx: reading gene %d: %v", j, err)
		}

		res, err := kernel.ClusterPair(gi, gj)
		if err != nil {
			log.Fatalf("kinc-cmx: clustering pair (%d,%d): %v", i, j, err)
		}
		if res.Emit {
			if err := ccmWriter.WritePair(i, j, res.K, res.Labels); err != nil {
				log.Fatalf("kinc-cmx: writing cluster matrix row: %v", err)
			}
			if err := cmxWriter.WritePair(i, j, res.Correlations); err != nil {
				log.Fatalf("kinc-cmx: writing correlation matrix row: %v", err)
			}
		}

		done++
		if done%100000 == 0 {
			log.Debug.Printf("kinc-cmx: %d/%d pairs processed", done, total)
		}
	}

	if err := ccmWriter.Finish(); err != nil {
		log.Fatalf("kinc-cmx: sealing cluster matrix: %v", err)
	}
	if err := cmxWriter.Finish(); err != nil {
		log.Fatalf("kinc-cmx: sealing correlation matrix: %v", err)
	}
}
