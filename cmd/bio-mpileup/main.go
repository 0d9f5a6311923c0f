// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup/call"
	"github.com/grailbio/mpileup/pileup/mpileup"
)

var (
	region        = flag.String("r", "", "Region in which pileup is generated, as chr, chr:beg or chr:beg-end (1-based)")
	bedPath       = flag.String("l", "", "List of positions (chr pos) or regions (BED); may be gzipped")
	refPath       = flag.String("f", "", "FASTA reference; a missing .fai is generated in memory")
	bamList       = flag.String("b", "", "File listing the input BAM paths, one per line")
	minMapQ       = flag.Int("q", mpileup.DefaultOpts.MinMapQ, "Skip alignments with mapQ smaller than this")
	minBaseQ      = flag.Int("Q", mpileup.DefaultOpts.MinBaseQ, "Skip bases with baseQ smaller than this")
	capMapQ       = flag.Int("C", mpileup.DefaultOpts.CapMapQ, "Coefficient for downgrading mapQ of reads with excessive mismatches; values up to 10 disable capping")
	maxMapQ       = flag.Int("M", mpileup.DefaultOpts.MaxMapQ, "Cap mapping quality at this value when calling")
	maxDepth      = flag.Int("d", mpileup.DefaultOpts.MaxDepth, "Max per-BAM depth")
	maxIndelDepth = flag.Int("L", mpileup.DefaultOpts.MaxIndelDepth, "Max per-sample depth for indel calling")
	orphans       = flag.Bool("A", false, "Count anomalous read pairs")
	noRealign     = flag.Bool("B", false, "Disable realignment of base qualities")
	illumina13    = flag.Bool("6", false, "Assume the quality is in the Illumina-1.3+ encoding")
	ignoreRG      = flag.Bool("R", false, "Ignore RG tags: each file is one sample")
	noIndel       = flag.Bool("I", false, "Do not perform indel calling")
	outputPos     = flag.Bool("O", false, "Output base positions on reads (text output only)")
	outputMapQ    = flag.Bool("s", false, "Output mapping quality (text output only)")
	callGz        = flag.Bool("g", false, "Output bgzf-compressed VCF calls")
	callPlain     = flag.Bool("u", false, "Output uncompressed VCF calls")
	formatDP      = flag.Bool("D", false, "Output per-sample DP in VCF")
	formatSP      = flag.Bool("S", false, "Output per-sample strand bias in VCF")
	formatDV      = flag.Bool("V", false, "Output per-sample DV in VCF")
	threads       = flag.Int("t", mpileup.DefaultOpts.Threads, "Number of parallel workers")
	openQ         = flag.Int("o", mpileup.DefaultOpts.OpenQ, "Phred-scaled gap open sequencing error probability")
	extQ          = flag.Int("e", mpileup.DefaultOpts.ExtQ, "Phred-scaled gap extension sequencing error probability")
	tandemQ       = flag.Int("h", mpileup.DefaultOpts.TandemQ, "Coefficient for homopolymer errors")
	minSupport    = flag.Int("m", mpileup.DefaultOpts.MinSupport, "Minimum gapped reads for indel candidates")
	minFrac       = flag.Float64("F", mpileup.DefaultOpts.MinFracGapped, "Minimum fraction of gapped reads for indel candidates")
	perSample     = flag.Bool("p", false, "Apply -m and -F per sample")
	platforms     = flag.String("P", "", "Comma-separated list of platforms for indels (default all)")
	excludeRG     = flag.String("G", "", "Exclude read groups listed in this file")
	requiredFlags = flag.String("rf", "0", "Required flags: skip reads with any of these bits unset")
	filterFlags   = flag.String("ff", "0", "Filter flags: skip reads with any of these bits set")
	outPath       = flag.String("out", "", "Output path; stdout if empty")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] in1.bam [in2.bam [...]]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Use - to read a single BAM from stdin.\nOptions:\n")
	flag.PrintDefaults()
}

// parseFlagMask parses a SAM flag mask in decimal, hex (0x) or octal (0).
func parseFlagMask(s string) (sam.Flags, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("bad flag mask %q", s), err)
	}
	return sam.Flags(v), nil
}

func formatFlags(dp, dv, sp bool) call.FormatFlags {
	var f call.FormatFlags
	if dp {
		f |= call.FormatDP
	}
	if dv {
		f |= call.FormatDV
	}
	if sp {
		f |= call.FormatSP
	}
	return f
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	paths := flag.Args()
	if *bamList != "" {
		listed, err := mpileup.ParseBAMList(ctx, *bamList)
		if err != nil {
			log.Fatalf("read %s: %v", *bamList, err)
		}
		paths = append(listed, paths...)
	}
	if len(paths) == 0 {
		usage()
		os.Exit(1)
	}

	opts := mpileup.DefaultOpts
	opts.Region = *region
	opts.BEDFile = *bedPath
	opts.RefPath = *refPath
	opts.ExcludeRGFile = *excludeRG
	opts.MinMapQ = *minMapQ
	opts.MinBaseQ = *minBaseQ
	opts.CapMapQ = *capMapQ
	opts.MaxMapQ = *maxMapQ
	opts.MaxDepth = *maxDepth
	opts.MaxIndelDepth = *maxIndelDepth
	opts.IncludeOrphans = *orphans
	opts.Realign = !*noRealign
	opts.Illumina13 = *illumina13
	opts.IgnoreRG = *ignoreRG
	opts.NoIndel = *noIndel
	opts.OutputPos = *outputPos
	opts.OutputMapQ = *outputMapQ
	opts.Call = *callGz || *callPlain
	opts.Uncompressed = *callPlain
	opts.FormatFields = formatFlags(*formatDP, *formatDV, *formatSP)
	opts.Threads = *threads
	opts.OpenQ = *openQ
	opts.ExtQ = *extQ
	opts.TandemQ = *tandemQ
	opts.MinSupport = *minSupport
	opts.MinFracGapped = *minFrac
	opts.PerSampleIndelFilter = *perSample
	opts.Platforms = *platforms
	var err error
	if opts.RequiredFlags, err = parseFlagMask(*requiredFlags); err != nil {
		log.Fatalf("-rf: %v", err)
	}
	if opts.FilterFlags, err = parseFlagMask(*filterFlags); err != nil {
		log.Fatalf("-ff: %v", err)
	}
	if opts.Call && (opts.OutputPos || opts.OutputMapQ) {
		log.Printf("-O and -s are ignored with -g/-u")
	}

	var out io.Writer = os.Stdout
	var dst file.File
	if *outPath != "" {
		if dst, err = file.Create(ctx, *outPath); err != nil {
			log.Fatalf("create %s: %v", *outPath, err)
		}
		out = dst.Writer(ctx)
	}
	if err = mpileup.Run(ctx, opts, paths, out); err != nil {
		log.Fatalf("%v", err)
	}
	if dst != nil {
		if err = dst.Close(ctx); err != nil {
			log.Fatalf("close %s: %v", *outPath, err)
		}
	}
	log.Debug.Printf("exiting")
}
