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
	"math"

	"github.com/grailbio/hts/sam"
)

// DefaultCapMapQThreshold is used by CapMapQ when thres < 0.
const DefaultCapMapQThreshold = 40

// CapMapQ estimates a mapping quality for rec from the number and quality of
// its mismatches against ref, which holds the whole contig.  Returns -1 if the
// read is so divergent that it should be discarded.  The estimate scales with
// thres; a perfectly matching read gets thres.
//
// Bases with quality below 13 and N-vs-N positions are ignored.  Clipping is
// penalized: soft-clipped bases by their quality, hard-clipped bases as if
// they had quality 13.
func CapMapQ(rec *sam.Record, ref []byte, thres int) int {
	if thres < 0 {
		thres = DefaultCapMapQThreshold
	}
	var (
		mm, q, length, clipQ int
		x                    = rec.Pos
		y                    int
	)
loop:
	for _, op := range rec.Cigar {
		l := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			j := 0
			for ; j < l; j++ {
				if x+j >= len(ref) {
					break
				}
				z := y + j
				c1 := SeqNibble(rec.Seq, z)
				c2 := ASCIIToSeq8Table[ref[x+j]]
				qual := int(rec.Qual[z])
				if (c1 == 15 && c2 == 15) || qual < 13 {
					continue
				}
				length++
				if c1 != 0 && c2 != 0 && c1 != c2 {
					mm++
					if qual > 33 {
						qual = 33
					}
					q += qual
				}
			}
			if j < l {
				break loop
			}
			x += l
			y += l
			length += l
		case sam.CigarDeletion:
			if x+l > len(ref) {
				break loop
			}
			x += l
		case sam.CigarSoftClipped:
			for j := 0; j < l; j++ {
				clipQ += int(rec.Qual[y+j])
			}
			y += l
		case sam.CigarHardClipped:
			clipQ += 13 * l
		case sam.CigarInsertion:
			y += l
		case sam.CigarSkipped:
			x += l
		}
	}
	t := 1.0
	for i := 0; i < mm; i++ {
		t *= float64(length) / float64(i+1)
	}
	t = float64(q) - 4.343*math.Log(t) + float64(clipQ)/5
	if t > float64(thres) {
		return -1
	}
	if t < 0 {
		t = 0
	}
	t = math.Sqrt((float64(thres)-t)/float64(thres)) * float64(thres)
	return int(t + .499)
}
