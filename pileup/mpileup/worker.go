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
	"bytes"
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/encoding/bamprovider"
	"github.com/grailbio/mpileup/encoding/fasta"
	"github.com/grailbio/mpileup/interval"
	"github.com/grailbio/mpileup/pileup"
	"github.com/grailbio/mpileup/pileup/call"
)

// runState is shared read-only by the workers of one run.
type runState struct {
	opts      Opts
	providers []bamprovider.Provider
	header    *sam.Header
	refNames  []string
	reg       *sampleRegistry
	excludeRG map[string]struct{}
	// faIndex is the .fai of opts.RefPath; each worker opens its own handle.
	faIndex []byte
	sink    *sink
}

// unitWriter directs tsv output into the current sink buffer.
type unitWriter struct {
	buf *bytes.Buffer
}

func (u *unitWriter) Write(p []byte) (int, error) {
	return u.buf.Write(p)
}

// unitSize is the size above which a worker hands its buffer to the sink.
const unitSize = 64 << 10

// worker runs the pileup over one part of the genome.  Thread compatible.
type worker struct {
	id       int
	opts     *Opts
	reg      *sampleRegistry
	sink     *sink
	refNames []string
	// mask is the set of positions of this part, or nil for the whole genome.
	mask    *interval.BEDUnion
	sources []*source
	gen     *pileup.Generator
	grouper *grouper
	fa      *fasta.File
	refs    *refCache

	unit    unitWriter
	tsvw    *tsv.Writer
	scratch []byte

	stats         []call.SampleStats
	indelOpts     call.IndelOpts
	maxIndelDepth int
	nColumns      int
}

func newWorker(ctx context.Context, r *runState, id int, part []interval.Entry) (*worker, error) {
	w := &worker{
		id:            id,
		opts:          &r.opts,
		reg:           r.reg,
		sink:          r.sink,
		refNames:      r.refNames,
		grouper:       newGrouper(r.reg.nSamples()),
		stats:         make([]call.SampleStats, r.reg.nSamples()),
		maxIndelDepth: r.opts.maxIndelDepth(r.reg.nSamples()),
		indelOpts: call.IndelOpts{
			MinSupport: r.opts.MinSupport,
			MinFrac:    r.opts.MinFracGapped,
			PerSample:  r.opts.PerSampleIndelFilter,
			OpenQ:      r.opts.OpenQ,
			ExtQ:       r.opts.ExtQ,
			TandemQ:    r.opts.TandemQ,
			Exclude:    r.reg.indelExcludedRG,
		},
	}
	w.tsvw = tsv.NewWriter(&w.unit)
	if part != nil {
		mask, err := interval.NewBEDUnionFromEntries(part, interval.NewBEDOpts{SAMHeader: r.header})
		if err != nil {
			return nil, err
		}
		w.mask = mask
	}
	var fa fasta.Fasta
	if r.opts.RefPath != "" {
		f, err := fasta.Open(ctx, r.opts.RefPath, r.faIndex)
		if err != nil {
			return nil, err
		}
		w.fa, fa = f, f
	}
	w.refs = newRefCache(fa, r.refNames)

	regions := entriesToRegions(r.header, part)
	srcs := make([]pileup.RecordSource, len(r.providers))
	for i, p := range r.providers {
		s := &source{
			fileIdx:   i,
			iter:      p.NewIterator(regions),
			opts:      &r.opts,
			mask:      w.mask,
			excludeRG: r.excludeRG,
			refs:      w.refs,
		}
		w.sources = append(w.sources, s)
		srcs[i] = s
	}
	w.gen = pileup.NewGenerator(srcs, r.opts.MaxDepth)
	return w, nil
}

// close releases the worker's iterators and reference handle.  Any pending
// output is discarded.
func (w *worker) close(ctx context.Context) error {
	var err errors.Once
	w.gen.Close()
	for _, s := range w.sources {
		err.Set(s.iter.Close())
	}
	if w.fa != nil {
		err.Set(w.fa.Close(ctx))
	}
	if w.unit.buf != nil {
		w.sink.putBuf(w.unit.buf)
		w.unit.buf = nil
	}
	return err.Err()
}
