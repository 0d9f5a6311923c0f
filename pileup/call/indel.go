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

package call

import (
	"sort"
	"strconv"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup"
)

// IndelOpts configures PrepareIndel.
type IndelOpts struct {
	// MinSupport is the minimum number of reads carrying a candidate.
	MinSupport int
	// MinFrac is the minimum fraction of reads carrying a candidate.
	MinFrac float64
	// PerSample applies MinSupport and MinFrac to each sample separately; a
	// candidate passes if any sample passes.  Otherwise reads are pooled.
	PerSample bool
	// Phred-scaled gap open and extension penalties, and the cap applied in
	// homopolymer runs.
	OpenQ, ExtQ, TandemQ int
	// Exclude, if non-nil, drops reads from indel calling, e.g. reads from
	// sequencing platforms that are unreliable for indels.
	Exclude func(rec *sam.Record) bool
}

// Indel is a candidate insertion or deletion right after a reference
// position.
type Indel struct {
	// Len is positive for insertions and negative for deletions.
	Len int
	// Seq is the inserted sequence, or the deleted reference sequence.
	Seq string
	// Support is the number of reads carrying the candidate.
	Support int
	// QualCap bounds the quality of each read's evidence for the candidate.
	QualCap int
}

// Matches reports whether the entry carries the candidate.
func (in *Indel) Matches(e *pileup.Entry) bool {
	if e.Indel != in.Len {
		return false
	}
	return in.Len < 0 || insertedSeq(e) == in.Seq
}

// Alleles returns the VCF REF and ALT strings of the candidate, anchored at
// refBase.
func (in *Indel) Alleles(refBase byte) (ref, alt string) {
	anchor := string([]byte{pileup.Upper(refBase)})
	if in.Len > 0 {
		return anchor, anchor + in.Seq
	}
	return anchor + in.Seq, anchor
}

// insertedSeq returns the uppercase bases inserted after the entry's position.
func insertedSeq(e *pileup.Entry) string {
	if e.Indel <= 0 {
		return ""
	}
	buf := make([]byte, 0, e.Indel)
	for j := 1; j <= e.Indel; j++ {
		qpos := e.QPos + j
		if qpos >= e.Rec.Seq.Length {
			break
		}
		buf = append(buf, pileup.Seq8ToASCIITable[pileup.SeqNibble(e.Rec.Seq, qpos)])
	}
	return string(buf)
}

type indelCandidate struct {
	key      string
	len      int
	seq      string
	total    int
	bySample []int
}

// PrepareIndel looks for the best-supported indel after position pos among the
// reads of all samples.  ref is the whole contig.  It returns false if there
// is no reference or no candidate passes the support thresholds.
func PrepareIndel(samples [][]pileup.Entry, pos int, ref []byte, opts IndelOpts) (*Indel, bool) {
	if pos >= len(ref) {
		return nil, false
	}
	var (
		cands = map[string]*indelCandidate{}
		depth = make([]int, len(samples))
	)
	for s, entries := range samples {
		for i := range entries {
			e := &entries[i]
			if e.IsDel || (opts.Exclude != nil && opts.Exclude(e.Rec)) {
				continue
			}
			depth[s]++
			if e.Indel == 0 {
				continue
			}
			var key, seq string
			if e.Indel > 0 {
				seq = insertedSeq(e)
				key = "+" + seq
			} else {
				key = strconv.Itoa(e.Indel)
			}
			c := cands[key]
			if c == nil {
				c = &indelCandidate{key: key, len: e.Indel, seq: seq, bySample: make([]int, len(samples))}
				cands[key] = c
			}
			c.total++
			c.bySample[s]++
		}
	}
	if len(cands) == 0 {
		return nil, false
	}
	sorted := make([]*indelCandidate, 0, len(cands))
	for _, c := range cands {
		sorted = append(sorted, c)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].total != sorted[j].total {
			return sorted[i].total > sorted[j].total
		}
		return sorted[i].key < sorted[j].key
	})
	totalDepth := 0
	for _, d := range depth {
		totalDepth += d
	}
	passes := func(n, d int) bool {
		return n >= opts.MinSupport && d > 0 && float64(n)/float64(d) >= opts.MinFrac
	}
	for _, c := range sorted {
		ok := false
		if opts.PerSample {
			for s, n := range c.bySample {
				if passes(n, depth[s]) {
					ok = true
					break
				}
			}
		} else {
			ok = passes(c.total, totalDepth)
		}
		if !ok {
			continue
		}
		in := &Indel{Len: c.len, Seq: c.seq, Support: c.total}
		if c.len < 0 {
			buf := make([]byte, -c.len)
			for j := range buf {
				if p := pos + 1 + j; p < len(ref) {
					buf[j] = pileup.Upper(ref[p])
				} else {
					buf[j] = 'N'
				}
			}
			in.Seq = string(buf)
		}
		in.QualCap = indelQualCap(in, pos, ref, opts)
		return in, true
	}
	return nil, false
}

// indelQualCap is the gap penalty of the candidate, lowered inside
// homopolymer runs where indels are common sequencing errors.
func indelQualCap(in *Indel, pos int, ref []byte, opts IndelOpts) int {
	n := in.Len
	if n < 0 {
		n = -n
	}
	qcap := opts.OpenQ + opts.ExtQ*(n-1)
	if pos+1 < len(ref) {
		run := 1
		b := pileup.Upper(ref[pos+1])
		for p := pos + 2; p < len(ref) && pileup.Upper(ref[p]) == b; p++ {
			run++
		}
		if run > 1 && opts.TandemQ/run < qcap {
			qcap = opts.TandemQ / run
		}
	}
	return qcap
}
