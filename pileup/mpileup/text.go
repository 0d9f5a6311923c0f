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
	"strconv"

	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/mpileup/pileup"
)

// Largest printable quality character.
const maxQualChar = 126

func qualChar(q int) byte {
	c := q + 33
	if c > maxQualChar {
		c = maxQualChar
	}
	return byte(c)
}

// refBaseAt returns the reference base at pos, or 'N'.
func refBaseAt(ref []byte, pos int) byte {
	if pos < len(ref) {
		return ref[pos]
	}
	return 'N'
}

func strandCase(c byte, reverse bool) byte {
	if reverse {
		return pileup.Lower(c)
	}
	return pileup.Upper(c)
}

// appendPileupSeq appends the text encoding of one entry at reference
// position pos:
//
//	^<mapq>   the read starts here
//	. ,       match on the forward/reverse strand
//	ACGTN     mismatch, lowercase on the reverse strand
//	*         deletion
//	> <       reference skip on the forward/reverse strand
//	+3ACG     insertion after this position
//	-2CT      deletion after this position
//	$         the read ends here
func appendPileupSeq(dst []byte, e *pileup.Entry, pos int, ref []byte) []byte {
	reverse := e.Reverse()
	if e.IsHead {
		dst = append(dst, '^', qualChar(int(e.Rec.MapQ)))
	}
	switch {
	case e.IsRefSkip:
		if reverse {
			dst = append(dst, '<')
		} else {
			dst = append(dst, '>')
		}
	case e.IsDel:
		dst = append(dst, '*')
	default:
		nibble := e.Base()
		c := pileup.Seq8ToASCIITable[nibble]
		matches := nibble == 0
		if ref != nil {
			matches = matches || nibble == pileup.ASCIIToSeq8Table[refBaseAt(ref, pos)]
		}
		if matches {
			if reverse {
				c = ','
			} else {
				c = '.'
			}
		} else {
			c = strandCase(c, reverse)
		}
		dst = append(dst, c)
	}
	if e.Indel > 0 {
		dst = append(dst, '+')
		dst = strconv.AppendInt(dst, int64(e.Indel), 10)
		for j := 1; j <= e.Indel; j++ {
			c := byte('N')
			if qpos := e.QPos + j; qpos < e.Rec.Seq.Length {
				c = pileup.Seq8ToASCIITable[pileup.SeqNibble(e.Rec.Seq, qpos)]
			}
			dst = append(dst, strandCase(c, reverse))
		}
	} else if e.Indel < 0 {
		dst = strconv.AppendInt(dst, int64(e.Indel), 10)
		for j := 1; j <= -e.Indel; j++ {
			c := byte('N')
			if ref != nil {
				c = refBaseAt(ref, pos+j)
			}
			dst = append(dst, strandCase(c, reverse))
		}
	}
	if e.IsTail {
		dst = append(dst, '$')
	}
	return dst
}

// writeText formats one text row for col into the worker's current unit.
// ref is nil when the reference is unknown.
func (w *worker) writeText(col *pileup.Column, ref []byte) {
	t := w.tsvw
	t.WriteString(w.refNames[col.RefID])
	t.WriteInt64(int64(col.Pos + 1))
	if ref != nil {
		t.WriteByte(refBaseAt(ref, col.Pos))
	} else {
		t.WriteByte('N')
	}
	minBaseQ := w.opts.MinBaseQ
	for _, entries := range col.Entries {
		n := 0
		for i := range entries {
			if int(entries[i].Qual()) >= minBaseQ {
				n++
			}
		}
		t.WriteInt64(int64(n))
		if n == 0 {
			t.WriteByte('*')
			t.WriteByte('*')
			if w.opts.OutputMapQ {
				t.WriteByte('*')
			}
			if w.opts.OutputPos {
				t.WriteByte('*')
			}
			continue
		}
		buf := w.scratch[:0]
		for i := range entries {
			if int(entries[i].Qual()) >= minBaseQ {
				buf = appendPileupSeq(buf, &entries[i], col.Pos, ref)
			}
		}
		t.WriteString(gunsafe.BytesToString(buf))
		buf = buf[:0]
		for i := range entries {
			if q := int(entries[i].Qual()); q >= minBaseQ {
				buf = append(buf, qualChar(q))
			}
		}
		t.WriteString(gunsafe.BytesToString(buf))
		if w.opts.OutputMapQ {
			buf = buf[:0]
			for i := range entries {
				if int(entries[i].Qual()) >= minBaseQ {
					buf = append(buf, qualChar(int(entries[i].Rec.MapQ)))
				}
			}
			t.WriteString(gunsafe.BytesToString(buf))
		}
		if w.opts.OutputPos {
			for i := range entries {
				if int(entries[i].Qual()) >= minBaseQ {
					t.WriteCsvUint32(uint32(entries[i].QPos + 1))
				}
			}
			t.EndCsv()
		}
		w.scratch = buf
	}
}
