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

package pileup

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

// RecordSource yields coordinate-sorted, mapped records.  Next returns a nil
// record and nil error at the end of the stream.  Ownership of the record
// passes to the caller.
type RecordSource interface {
	Next() (*sam.Record, error)
}

// readState tracks one active read's position in its cigar.
type readState struct {
	rec *sam.Record
	end int
	// Index of the cigar op covering the current position, and the reference
	// and query offsets where that op starts.
	k, x, y int
}

// advance moves the cursor to the cigar op covering reference position pos.
// pos must not decrease between calls.
func (r *readState) advance(pos int) {
	cigar := r.rec.Cigar
	for r.k < len(cigar) {
		op := cigar[r.k]
		c := op.Type().Consumes()
		l := op.Len()
		if c.Reference > 0 {
			if pos < r.x+l {
				return
			}
			r.x += l
		}
		if c.Query > 0 {
			r.y += l
		}
		r.k++
	}
}

// entry describes the read at reference position pos.
func (r *readState) entry(pos int) Entry {
	r.advance(pos)
	cigar := r.rec.Cigar
	e := Entry{
		Rec:    r.rec,
		IsHead: pos == r.rec.Pos,
		IsTail: pos == r.end-1,
	}
	if r.k >= len(cigar) {
		// Not reached for well-formed records.
		e.QPos = r.y
		e.IsDel = true
		return e
	}
	op := cigar[r.k]
	switch op.Type() {
	case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
		e.QPos = r.y + pos - r.x
		if pos == r.x+op.Len()-1 && r.k+1 < len(cigar) {
			e.Indel = indelAfter(cigar[r.k+1:])
		}
	default:
		e.QPos = r.y
		e.IsDel = true
		e.IsRefSkip = op.Type() == sam.CigarSkipped
	}
	return e
}

// indelAfter returns the length of the indel that starts the given cigar
// suffix: negative for a deletion, the total inserted length for an insertion
// possibly interleaved with padding, and 0 otherwise.
func indelAfter(cigar sam.Cigar) int {
	switch next := cigar[0]; next.Type() {
	case sam.CigarDeletion:
		return -next.Len()
	case sam.CigarInsertion:
		return next.Len()
	case sam.CigarPadded:
		ins := 0
		for _, o := range cigar[1:] {
			switch o.Type() {
			case sam.CigarInsertion:
				ins += o.Len()
			case sam.CigarDeletion, sam.CigarMatch, sam.CigarSkipped, sam.CigarEqual, sam.CigarMismatch:
				return ins
			}
		}
		return ins
	}
	return 0
}

// sourcePileup piles up the reads of a single source.
type sourcePileup struct {
	src      RecordSource
	maxDepth int

	pending *sam.Record
	eof     bool
	// Coordinate of the last record read, for the sortedness check.
	lastRefID, lastPos int

	active []*readState
	// Reads that left the active set; released at the next call.
	retired []*readState
	free    []*readState

	// Current column.
	refID, pos int
	entries    []Entry
	// Number of reads dropped because of maxDepth.
	nDropped int
}

func (p *sourcePileup) fetch() error {
	if p.pending != nil || p.eof {
		return nil
	}
	rec, err := p.src.Next()
	if err != nil {
		return err
	}
	if rec == nil {
		p.eof = true
		return nil
	}
	refID := rec.Ref.ID()
	if refID < p.lastRefID || (refID == p.lastRefID && rec.Pos < p.lastPos) {
		return errors.E(errors.Invalid, fmt.Sprintf("pileup: input is not sorted: %s at %s:%d follows reference %d position %d",
			rec.Name, rec.Ref.Name(), rec.Pos+1, p.lastRefID, p.lastPos+1))
	}
	p.lastRefID, p.lastPos = refID, rec.Pos
	p.pending = rec
	return nil
}

func (p *sourcePileup) newReadState(rec *sam.Record) *readState {
	var r *readState
	if n := len(p.free); n > 0 {
		r = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		r = &readState{}
	}
	*r = readState{rec: rec, end: rec.End(), x: rec.Pos}
	return r
}

// next computes the source's next column.  It returns false at the end of
// the stream.
func (p *sourcePileup) next() (bool, error) {
	for _, r := range p.retired {
		sam.PutInFreePool(r.rec)
		r.rec = nil
		p.free = append(p.free, r)
	}
	p.retired = p.retired[:0]

	if len(p.entries) > 0 {
		// Move past the column returned last time.
		p.pos++
		live := p.active[:0]
		for _, r := range p.active {
			if r.end > p.pos {
				live = append(live, r)
			} else {
				p.retired = append(p.retired, r)
			}
		}
		p.active = live
	}
	p.entries = p.entries[:0]

	for {
		if err := p.fetch(); err != nil {
			return false, err
		}
		if len(p.active) == 0 {
			if p.pending == nil {
				return false, nil
			}
			p.refID, p.pos = p.pending.Ref.ID(), p.pending.Pos
		}
		// Admit reads that start at the current position.
		for p.pending != nil && p.pending.Ref.ID() == p.refID && p.pending.Pos <= p.pos {
			rec := p.pending
			p.pending = nil
			switch {
			case rec.End() <= rec.Pos:
				// No reference-consuming operation.
				sam.PutInFreePool(rec)
			case p.maxDepth > 0 && len(p.active) >= p.maxDepth:
				p.nDropped++
				sam.PutInFreePool(rec)
			default:
				p.active = append(p.active, p.newReadState(rec))
			}
			if err := p.fetch(); err != nil {
				return false, err
			}
		}
		if len(p.active) > 0 {
			break
		}
	}
	for _, r := range p.active {
		p.entries = append(p.entries, r.entry(p.pos))
	}
	return true, nil
}

func (p *sourcePileup) release() {
	for _, r := range p.active {
		sam.PutInFreePool(r.rec)
	}
	for _, r := range p.retired {
		sam.PutInFreePool(r.rec)
	}
	if p.pending != nil {
		sam.PutInFreePool(p.pending)
	}
	p.active, p.retired, p.pending = nil, nil, nil
}

// Generator merges the pileups of several sources into columns aligned on
// reference position.  Thread compatible.
type Generator struct {
	sources []*sourcePileup
	// ready[i] is set when sources[i] holds a column not yet returned.
	ready []bool
	done  []bool
	col   Column
	err   error
}

// NewGenerator creates a generator over the given sources.  At most maxDepth
// reads are piled up per source at any position; reads beyond that are
// dropped.  maxDepth <= 0 means no limit.
func NewGenerator(srcs []RecordSource, maxDepth int) *Generator {
	g := &Generator{
		sources: make([]*sourcePileup, len(srcs)),
		ready:   make([]bool, len(srcs)),
		done:    make([]bool, len(srcs)),
		col:     Column{Entries: make([][]Entry, len(srcs))},
	}
	for i, src := range srcs {
		g.sources[i] = &sourcePileup{src: src, maxDepth: maxDepth, lastRefID: -1, lastPos: -1}
	}
	return g
}

// Next returns the next column with at least one entry, in (RefID, Pos) order.
// It returns nil after every source is exhausted.
func (g *Generator) Next() (*Column, error) {
	if g.err != nil {
		return nil, g.err
	}
	for i, s := range g.sources {
		if g.ready[i] || g.done[i] {
			continue
		}
		ok, err := s.next()
		if err != nil {
			g.err = err
			return nil, err
		}
		g.ready[i] = ok
		g.done[i] = !ok
	}
	minSrc := -1
	for i, s := range g.sources {
		if !g.ready[i] {
			continue
		}
		if minSrc < 0 || s.refID < g.sources[minSrc].refID ||
			(s.refID == g.sources[minSrc].refID && s.pos < g.sources[minSrc].pos) {
			minSrc = i
		}
	}
	if minSrc < 0 {
		return nil, nil
	}
	g.col.RefID, g.col.Pos = g.sources[minSrc].refID, g.sources[minSrc].pos
	for i, s := range g.sources {
		if g.ready[i] && s.refID == g.col.RefID && s.pos == g.col.Pos {
			g.col.Entries[i] = s.entries
			g.ready[i] = false
		} else {
			g.col.Entries[i] = nil
		}
	}
	return &g.col, nil
}

// NDropped returns the number of reads dropped by the depth limit so far.
func (g *Generator) NDropped() int {
	n := 0
	for _, s := range g.sources {
		n += s.nDropped
	}
	return n
}

// Close releases the records still held by the generator.
func (g *Generator) Close() {
	for _, s := range g.sources {
		s.release()
	}
}
