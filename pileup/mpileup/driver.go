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
	"context"

	"github.com/grailbio/base/log"
	"github.com/grailbio/mpileup/interval"
	"github.com/grailbio/mpileup/pileup"
	"github.com/grailbio/mpileup/pileup/call"
)

// run drives the pileup of the worker's part to completion.  Output rows are
// handed to the sink in position order.
func (w *worker) run(ctx context.Context) error {
	w.unit.buf = w.sink.getBuf()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		col, err := w.gen.Next()
		if err != nil {
			return err
		}
		if col == nil {
			break
		}
		if w.mask != nil && !w.mask.ContainsByID(col.RefID, interval.PosType(col.Pos)) {
			continue
		}
		ref, _ := w.refs.fetch(col.RefID)
		if err := w.grouper.group(col, w.reg); err != nil {
			return err
		}
		w.nColumns++
		if w.opts.Call {
			err = w.writeCall(col, ref)
		} else {
			w.writeText(col, ref)
			err = w.tsvw.EndLine()
		}
		if err != nil {
			return err
		}
		if w.unit.buf.Len() >= unitSize {
			if err := w.flushUnit(); err != nil {
				return err
			}
		}
	}
	if err := w.flushUnit(); err != nil {
		return err
	}
	w.logStats()
	return nil
}

// flushUnit sends the rows written so far to the sink and starts a new unit.
func (w *worker) flushUnit() error {
	if err := w.tsvw.Flush(); err != nil {
		return err
	}
	w.sink.send(w.unit.buf)
	w.unit.buf = w.sink.getBuf()
	return w.sink.Err()
}

// writeCall writes the SNP record of col, followed by its indel record if
// one is called.
func (w *worker) writeCall(col *pileup.Column, ref []byte) error {
	refBase := byte('N')
	if ref != nil {
		refBase = pileup.Upper(refBaseAt(ref, col.Pos))
	}
	samples := w.grouper.samples
	for i, entries := range samples {
		w.stats[i] = w.opts.Model.Compute(entries, refBase, nil)
	}
	refName := w.refNames[col.RefID]
	if site, ok := call.Combine(w.stats, refBase); ok {
		if err := call.EncodeVCF(w.tsvw, &site, refName, col.Pos, w.opts.FormatFields); err != nil {
			return err
		}
	}
	if w.opts.NoIndel || ref == nil || w.grouper.depth() >= w.maxIndelDepth {
		return nil
	}
	indel, ok := call.PrepareIndel(samples, col.Pos, ref, w.indelOpts)
	if !ok {
		return nil
	}
	for i, entries := range samples {
		w.stats[i] = w.opts.Model.Compute(entries, refBase, indel)
	}
	if site, ok := call.CombineIndel(w.stats, refBase, indel); ok {
		return call.EncodeVCF(w.tsvw, &site, refName, col.Pos, w.opts.FormatFields)
	}
	return nil
}

func (w *worker) logStats() {
	var st filterStats
	for _, s := range w.sources {
		st.nRead += s.stats.nRead
		st.nAccepted += s.stats.nAccepted
		st.nUnmapped += s.stats.nUnmapped
		st.nFlag += s.stats.nFlag
		st.nMask += s.stats.nMask
		st.nRG += s.stats.nRG
		st.nOffRef += s.stats.nOffRef
		st.nCap += s.stats.nCap
		st.nMapQ += s.stats.nMapQ
		st.nOrphan += s.stats.nOrphan
	}
	log.Debug.Printf("mpileup: worker %d: %d columns, %d/%d reads accepted, %d dropped by depth; "+
		"rejected: unmapped %d, flag %d, mask %d, rg %d, offref %d, capq %d, mapq %d, orphan %d",
		w.id, w.nColumns, st.nAccepted, st.nRead, w.gen.NDropped(),
		st.nUnmapped, st.nFlag, st.nMask, st.nRG, st.nOffRef, st.nCap, st.nMapQ, st.nOrphan)
}
