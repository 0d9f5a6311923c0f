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
	"github.com/grailbio/hts/sam"
)

// Entry is one read's contribution to a pileup column.
type Entry struct {
	Rec *sam.Record
	// QPos is the 0-based query offset of the base aligned to the column.  For
	// deletions and reference skips it is the offset of the next query base.
	QPos int
	// Indel is the length of the insertion (>0) or deletion (<0) that
	// immediately follows this position in the read, or 0.
	Indel int
	// IsDel is set when the column falls inside a deletion or reference skip.
	IsDel bool
	// IsRefSkip is set when the column falls inside a reference skip ('N').
	IsRefSkip bool
	// IsHead is set at the read's first aligned position.
	IsHead bool
	// IsTail is set at the read's last aligned position.
	IsTail bool
}

// Reverse reports whether the read is aligned to the reverse strand.
func (e *Entry) Reverse() bool {
	return e.Rec.Flags&sam.Reverse != 0
}

// Base returns the 4-bit base code at QPos, or 15 ('N') past the end of the
// read.
func (e *Entry) Base() byte {
	if e.QPos >= e.Rec.Seq.Length {
		return 15
	}
	return SeqNibble(e.Rec.Seq, e.QPos)
}

// Qual returns the base quality at QPos, or 0 if the read has no qualities
// there.
func (e *Entry) Qual() byte {
	if e.QPos >= len(e.Rec.Qual) || e.Rec.Qual[e.QPos] == 0xff {
		return 0
	}
	return e.Rec.Qual[e.QPos]
}

// Column is the set of entries overlapping one reference position, one list
// per input source.  A column and its entries are valid only until the next
// call to Generator.Next.
type Column struct {
	RefID int
	Pos   int
	// Entries[i] holds the entries of source i, in the order the reads were
	// read.  It is empty for sources with no read at this position.
	Entries [][]Entry
}

// Depth returns the total number of entries in the column.
func (c *Column) Depth() int {
	n := 0
	for _, e := range c.Entries {
		n += len(e)
	}
	return n
}
