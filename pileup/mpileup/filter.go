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
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/encoding/bamprovider"
	"github.com/grailbio/mpileup/interval"
)

// capMapQOff is the largest CapMapQ value that leaves capping disabled.
const capMapQOff = 10

// filterStats counts reads by the gate that rejected them.
type filterStats struct {
	nRead, nAccepted                                   int
	nUnmapped, nFlag, nMask, nRG, nOffRef, nCap, nMapQ int
	nOrphan                                            int
}

// source is one input file as seen by one worker: an iterator over the
// worker's regions, followed by the read filter.  It implements
// pileup.RecordSource.
type source struct {
	fileIdx int
	iter    bamprovider.Iterator
	opts    *Opts
	// mask, if non-nil, drops reads that do not overlap it.
	mask      *interval.BEDUnion
	excludeRG map[string]struct{}
	refs      *refCache
	stats     filterStats
}

// Next implements pileup.RecordSource.
func (s *source) Next() (*sam.Record, error) {
	return s.nextAccepted()
}

// nextAccepted returns the next read that passes every gate, or nil at the
// end of the input.
func (s *source) nextAccepted() (*sam.Record, error) {
	for s.iter.Scan() {
		rec := s.iter.Record()
		s.stats.nRead++
		if !s.admit(rec) {
			sam.PutInFreePool(rec)
			continue
		}
		s.stats.nAccepted++
		return rec, nil
	}
	return nil, s.iter.Err()
}

// admit runs the gates in order.  It may modify the qualities and mapping
// quality of rec.
func (s *source) admit(rec *sam.Record) bool {
	opts := s.opts
	if rec.Flags&sam.Unmapped != 0 || rec.Ref == nil || rec.Ref.ID() < 0 {
		s.stats.nUnmapped++
		return false
	}
	if !flagsAdmitted(rec.Flags, opts.RequiredFlags, opts.FilterFlags) {
		s.stats.nFlag++
		return false
	}
	if s.mask != nil {
		end := rec.End()
		if end <= rec.Pos {
			end = rec.Pos + 1
		}
		if !s.mask.OverlapsByID(rec.Ref.ID(), interval.PosType(rec.Pos), interval.PosType(end)) {
			s.stats.nMask++
			return false
		}
	}
	if len(s.excludeRG) > 0 {
		if _, ok := s.excludeRG[readGroup(rec)]; ok {
			s.stats.nRG++
			return false
		}
	}
	if opts.Illumina13 {
		illumina13ToSanger(rec.Qual)
	}
	ref, hasRef := s.refs.fetch(rec.Ref.ID())
	if hasRef && rec.Pos >= len(ref) {
		log.Debug.Printf("mpileup: skipping %s: position %d is outside of %s (length %d)",
			rec.Name, rec.Pos+1, rec.Ref.Name(), len(ref))
		s.stats.nOffRef++
		return false
	}
	if hasRef && opts.Realign && opts.Realigner != nil {
		opts.Realigner.Realign(rec, ref)
	}
	switch {
	case hasRef && opts.CapMapQ > capMapQOff:
		q := opts.Capper.Cap(rec, ref, opts.CapMapQ)
		if q < 0 {
			s.stats.nCap++
			return false
		}
		if int(rec.MapQ) > q {
			rec.MapQ = byte(q)
		}
	case int(rec.MapQ) < opts.MinMapQ:
		s.stats.nMapQ++
		return false
	case !opts.IncludeOrphans && rec.Flags&sam.Paired != 0 && rec.Flags&sam.ProperPair == 0:
		s.stats.nOrphan++
		return false
	}
	return true
}

// flagsAdmitted reports whether a read with the given flags has all the
// required bits and none of the filtered ones.
func flagsAdmitted(flags, required, filter sam.Flags) bool {
	return flags&required == required && flags&filter == 0
}

// illumina13ToSanger converts phred+64 qualities, already offset by 33 when
// decoded, to phred+33 in place.
func illumina13ToSanger(qual []byte) {
	for i, q := range qual {
		if q > 31 {
			qual[i] = q - 31
		} else {
			qual[i] = 0
		}
	}
}
