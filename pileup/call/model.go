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
	"github.com/grailbio/mpileup/pileup"
)

// SampleStats is the evidence of one sample at one site.  In SNP mode alleles
// are indexed by base (pileup.BaseA..pileup.BaseX); for an indel, RefAllele is
// the absence of the candidate and AltAllele the candidate itself.
type SampleStats struct {
	// Depth counts the entries that passed the model's quality gates.
	Depth   int
	Count   [pileup.NBaseEnum]int
	QualSum [pileup.NBaseEnum]int
	// Reverse counts reverse-strand entries per allele.
	Reverse [pileup.NBaseEnum]int
}

// Allele indices used for indels.
const (
	RefAllele = 0
	AltAllele = 1
)

// Model computes the per-sample evidence at a site.
type Model interface {
	// Compute summarizes entries at a position whose reference base is
	// refBase (ASCII, 'N' if unknown).  If indel is non-nil, the entries are
	// scored against that candidate instead of by base.
	Compute(entries []pileup.Entry, refBase byte, indel *Indel) SampleStats
}

// CountModel scores each read by min(base quality, mapping quality, MaxMapQ),
// ignoring bases below MinBaseQ.
type CountModel struct {
	MaxMapQ  int
	MinBaseQ int
}

func (m CountModel) weight(e *pileup.Entry, q int) int {
	w := int(e.Rec.MapQ)
	if m.MaxMapQ > 0 && w > m.MaxMapQ {
		w = m.MaxMapQ
	}
	if q < w {
		w = q
	}
	return w
}

// Compute implements Model.
func (m CountModel) Compute(entries []pileup.Entry, refBase byte, indel *Indel) SampleStats {
	var s SampleStats
	refEnum := pileup.ASCIIToEnumTable[refBase]
	for i := range entries {
		e := &entries[i]
		if e.IsDel {
			continue
		}
		var allele byte
		var w int
		if indel == nil {
			q := int(e.Qual())
			if q < m.MinBaseQ {
				continue
			}
			nibble := e.Base()
			if nibble == 0 {
				// '=' matches the reference.
				allele = refEnum
			} else {
				allele = pileup.Seq8ToEnumTable[nibble]
			}
			w = m.weight(e, q)
		} else {
			allele = RefAllele
			if indel.Matches(e) {
				allele = AltAllele
			}
			w = m.weight(e, indel.QualCap)
		}
		s.Depth++
		s.Count[allele]++
		s.QualSum[allele] += w
		if e.Reverse() {
			s.Reverse[allele]++
		}
	}
	return s
}
