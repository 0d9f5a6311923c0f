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

// maxQual caps Site.Qual.
const maxQual = 999

// Call is one sample's genotype at a site.
type Call struct {
	// GT is "0/0", "0/1", "1/1", or "./." when the sample has no usable reads.
	GT string
	// DP is the number of reads that passed the model's quality gates.
	DP int
	// DV is the number of reads carrying the alternate allele.
	DV int
	// SP is the phred-scaled strand bias.
	SP int
}

// Site is a multi-sample call at one position.
type Site struct {
	Ref string
	// Alt is "." when no read carries a non-reference allele.
	Alt   string
	Qual  int
	Depth int
	Indel bool
	Calls []Call
}

// Genotype thresholds on the alternate allele fraction.
const (
	homRefMaxFrac = 0.2
	homAltMinFrac = 0.8
)

func genotype(ref, alt int) string {
	switch {
	case ref+alt == 0:
		return "./."
	case alt == 0:
		return "0/0"
	}
	frac := float64(alt) / float64(ref+alt)
	switch {
	case frac < homRefMaxFrac:
		return "0/0"
	case frac > homAltMinFrac:
		return "1/1"
	default:
		return "0/1"
	}
}

// combine builds a site from per-sample stats, with refIdx and altIdx
// indexing SampleStats.Count.  altIdx < 0 means there is no alternate allele.
func combine(stats []SampleStats, refIdx, altIdx int) (Site, bool) {
	site := Site{Calls: make([]Call, len(stats))}
	altQual := 0
	for i := range stats {
		s := &stats[i]
		site.Depth += s.Depth
		c := Call{DP: s.Depth}
		refN := s.Count[refIdx]
		refRev := s.Reverse[refIdx]
		if altIdx >= 0 {
			c.DV = s.Count[altIdx]
			altQual += s.QualSum[altIdx]
			altRev := s.Reverse[altIdx]
			c.SP = StrandBiasPhred(refN-refRev, refRev, c.DV-altRev, altRev)
		}
		c.GT = genotype(refN, c.DV)
		site.Calls[i] = c
	}
	if site.Depth == 0 {
		return Site{}, false
	}
	if altQual > maxQual {
		altQual = maxQual
	}
	site.Qual = altQual
	return site, true
}

// Combine merges per-sample SNP evidence into a site.  refBase is the ASCII
// reference base.  The alternate allele is the non-reference base with the
// highest summed quality.  Returns false if no sample has any usable read.
func Combine(stats []SampleStats, refBase byte) (Site, bool) {
	refIdx := int(pileup.ASCIIToEnumTable[refBase])
	var qsum [pileup.NBase]int
	for i := range stats {
		for b := 0; b < pileup.NBase; b++ {
			qsum[b] += stats[i].QualSum[b]
		}
	}
	altIdx := -1
	for b := 0; b < pileup.NBase; b++ {
		if b == refIdx || qsum[b] == 0 {
			continue
		}
		if altIdx < 0 || qsum[b] > qsum[altIdx] {
			altIdx = b
		}
	}
	site, ok := combine(stats, refIdx, altIdx)
	if !ok {
		return site, false
	}
	site.Ref = string([]byte{pileup.Upper(refBase)})
	site.Alt = "."
	if altIdx >= 0 {
		site.Alt = string([]byte{pileup.EnumToASCIITable[altIdx]})
	}
	return site, true
}

// CombineIndel merges per-sample evidence for an indel candidate computed by
// Model.Compute with the same candidate.
func CombineIndel(stats []SampleStats, refBase byte, indel *Indel) (Site, bool) {
	site, ok := combine(stats, RefAllele, AltAllele)
	if !ok {
		return site, false
	}
	site.Indel = true
	site.Ref, site.Alt = indel.Alleles(refBase)
	return site, true
}
