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

package mpileup

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup"
	"github.com/grailbio/mpileup/pileup/call"
)

// Realigner recomputes base qualities of a read against the reference, e.g.
// with BAQ.  ref is the whole contig.
type Realigner interface {
	Realign(rec *sam.Record, ref []byte)
}

// Capper estimates a mapping quality from a read's alignment to ref.  It
// returns a negative value to reject the read.
type Capper interface {
	Cap(rec *sam.Record, ref []byte, thres int) int
}

// CapperFunc adapts a function to the Capper interface.
type CapperFunc func(rec *sam.Record, ref []byte, thres int) int

// Cap implements Capper.
func (f CapperFunc) Cap(rec *sam.Record, ref []byte, thres int) int { return f(rec, ref, thres) }

// Opts controls a pileup run.
type Opts struct {
	// Region restricts the output to one samtools-style region
	// ("chr", "chr:beg", or "chr:beg-end", 1-based).  Requires indexed inputs.
	Region string
	// BEDFile restricts the output to the positions of a BED file, or of a
	// 2-column 1-based position list.  May be gzipped.
	BEDFile string
	// RefPath is the reference FASTA.  Its .fai is generated in memory when
	// missing.
	RefPath string
	// ExcludeRGFile lists read groups to ignore, one per line.
	ExcludeRGFile string

	// MinMapQ and MinBaseQ drop reads and bases below the given qualities.
	MinMapQ  int
	MinBaseQ int
	// MaxMapQ caps mapping qualities in the call model.
	MaxMapQ int
	// CapMapQ, if above 10, lowers mapping qualities of reads with many
	// mismatches; see pileup.CapMapQ.  Capped reads skip the MinMapQ and
	// orphan gates.  Values up to 10 disable capping.
	CapMapQ int
	// MaxDepth is the maximum number of reads piled up per input at a
	// position.  It is raised so that MaxDepth*nSamples >= 8000.
	MaxDepth int
	// MaxIndelDepth is the per-sample depth above which indels are not
	// called.
	MaxIndelDepth int

	// RequiredFlags and FilterFlags select reads by SAM flag: a read is kept
	// only if it has every RequiredFlags bit and no FilterFlags bit.
	RequiredFlags sam.Flags
	FilterFlags   sam.Flags

	// IncludeOrphans keeps paired reads whose pair is not properly aligned.
	IncludeOrphans bool
	// Realign runs the Realigner on every read when a reference is given.
	Realign bool
	// Illumina13 converts Illumina 1.3+ qualities (phred+64) in place.
	Illumina13 bool
	// IgnoreRG treats every input file as a single sample.
	IgnoreRG bool
	// OutputMapQ and OutputPos add per-input mapping-quality and
	// read-position columns to text output.
	OutputMapQ bool
	OutputPos  bool

	// Call emits VCF records instead of text rows.
	Call bool
	// Uncompressed writes plain VCF text instead of bgzf.
	Uncompressed bool
	// FormatFields selects optional VCF FORMAT fields.
	FormatFields call.FormatFlags
	// NoIndel disables indel calling.
	NoIndel bool
	// Platforms is a comma-separated list of sequencing platforms whose reads
	// are used for indel calling.  Empty means all.
	Platforms string
	// PerSampleIndelFilter applies MinSupport and MinFracGapped per sample.
	PerSampleIndelFilter bool
	// MinFracGapped and MinSupport are the minimum fraction and number of
	// reads supporting an indel candidate.
	MinFracGapped float64
	MinSupport    int
	// Phred-scaled gap open, gap extension and homopolymer penalties.
	OpenQ, ExtQ, TandemQ int

	// Threads is the number of workers.  With more than one, the genome is
	// split into disjoint parts and rows from different parts are interleaved
	// in the output in no particular order; rows of one part stay sorted.
	Threads int

	// Realigner, Capper and Model default to none, pileup.CapMapQ and
	// call.CountModel.
	Realigner Realigner
	Capper    Capper
	Model     call.Model
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	MinBaseQ:      13,
	MaxMapQ:       60,
	MaxDepth:      250,
	MaxIndelDepth: 250,
	Realign:       true,
	MinFracGapped: 0.002,
	MinSupport:    1,
	OpenQ:         40,
	ExtQ:          20,
	TandemQ:       100,
	Threads:       1,
}

// minTotalDepth is the lower bound of MaxDepth*nSamples.
const minTotalDepth = 8000

// validate checks opts and returns a normalized copy for a run over nSamples
// samples.
func (o *Opts) validate(nSamples int) (Opts, error) {
	opts := *o
	switch {
	case opts.MinMapQ < 0:
		return opts, errors.E(errors.Invalid, fmt.Sprintf("negative minimum mapping quality %d", opts.MinMapQ))
	case opts.MinBaseQ < 0:
		return opts, errors.E(errors.Invalid, fmt.Sprintf("negative minimum base quality %d", opts.MinBaseQ))
	case opts.MinFracGapped < 0 || opts.MinFracGapped > 1:
		return opts, errors.E(errors.Invalid, fmt.Sprintf("indel fraction %v not in [0,1]", opts.MinFracGapped))
	case nSamples < 1:
		return opts, errors.E(errors.Invalid, "no samples")
	}
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.MaxDepth < 1 {
		opts.MaxDepth = DefaultOpts.MaxDepth
	}
	if opts.MaxDepth*nSamples > 1<<20 {
		log.Printf("max depth %d is above 1M over %d samples; expect high memory use", opts.MaxDepth, nSamples)
	}
	if opts.MaxDepth*nSamples < minTotalDepth {
		opts.MaxDepth = minTotalDepth / nSamples
		log.Printf("set max per-file depth to %d", opts.MaxDepth)
	}
	if opts.Capper == nil {
		opts.Capper = CapperFunc(pileup.CapMapQ)
	}
	if opts.Model == nil {
		opts.Model = call.CountModel{MaxMapQ: opts.MaxMapQ, MinBaseQ: opts.MinBaseQ}
	}
	return opts, nil
}

// maxIndelDepth returns the total depth above which indels are not called.
func (o *Opts) maxIndelDepth(nSamples int) int {
	return o.MaxIndelDepth * nSamples
}
