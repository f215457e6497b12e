// Command kinc-rmt applies the RMT threshold selector to a correlation
// matrix, sweeping candidate thresholds and reporting the cutoff at which
// the nearest-neighbor eigenvalue spacing distribution stops matching the
// Wigner surmise.
package main

import (
	"flag"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/bio-kinc/kinc-go/cormatrix"
	"github.com/bio-kinc/kinc-go/rmt"
)

var (
	input = flag.String("input", "", "correlation matrix path")

	thresholdStart = flag.Float64("threshold-start", 0, "starting threshold (0 = use default)")
	thresholdStep  = flag.Float64("threshold-step", 0, "threshold decrement per sweep step (0 = use default)")
	thresholdStop  = flag.Float64("threshold-stop", 0, "stop threshold (0 = use default)")
	minPace        = flag.Int("min-unfolding-pace", 0, "minimum unfolding pace (0 = use default)")
	maxPace        = flag.Int("max-unfolding-pace", 0, "maximum unfolding pace (0 = use default)")
)

func main() {
	shutdown := grail.Init()
	defer shutdown()

	flag.Parse()
	if *input == "" {
		log.Fatalf("kinc-rmt: -input is required")
	}

	cmx, err := cormatrix.Open(*input)
	if err != nil {
		log.Fatalf("kinc-rmt: opening correlation matrix: %v", err)
	}
	defer cmx.Close()

	opts := rmt.DefaultOptions()
	if *thresholdStart != 0 {
		opts.ThresholdStart = *thresholdStart
	}
	if *thresholdStep != 0 {
		opts.ThresholdStep = *thresholdStep
	}
	if *thresholdStop != 0 {
		opts.ThresholdStop = *thresholdStop
	}
	if *minPace != 0 {
		opts.MinUnfoldingPace = *minPace
	}
	if *maxPace != 0 {
		opts.MaxUnfoldingPace = *maxPace
	}

	result, err := rmt.Find(cmx, opts)
	if err != nil {
		log.Fatalf("kinc-rmt: %v", err)
	}

	log.Printf("kinc-rmt: selected threshold %.4f after %d sweep steps", result.Threshold, len(result.Trace))
}
