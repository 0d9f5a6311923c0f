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
	"math"
)

func logChoose(n, k int) float64 {
	a, _ := math.Lgamma(float64(n + 1))
	b, _ := math.Lgamma(float64(k + 1))
	c, _ := math.Lgamma(float64(n - k + 1))
	return a - b - c
}

// FisherExact returns the two-sided p-value of Fisher's exact test on the 2x2
// table [[a, b], [c, d]].
func FisherExact(a, b, c, d int) float64 {
	row1, col1, n := a+b, a+c, a+b+c+d
	if n == 0 {
		return 1
	}
	logDenom := logChoose(n, col1)
	logP := func(x int) float64 {
		return logChoose(row1, x) + logChoose(n-row1, col1-x) - logDenom
	}
	lo := col1 - (n - row1)
	if lo < 0 {
		lo = 0
	}
	hi := row1
	if col1 < hi {
		hi = col1
	}
	observed := logP(a)
	p := 0.0
	for x := lo; x <= hi; x++ {
		if lp := logP(x); lp <= observed+1e-7 {
			p += math.Exp(lp)
		}
	}
	if p > 1 {
		p = 1
	}
	return p
}

// maxPhred caps StrandBiasPhred.
const maxPhred = 255

// StrandBiasPhred is the phred-scaled Fisher strand bias of reference vs
// alternate reads.
func StrandBiasPhred(refFwd, refRev, altFwd, altRev int) int {
	p := FisherExact(refFwd, refRev, altFwd, altRev)
	if p <= 0 {
		return maxPhred
	}
	q := int(-10*math.Log10(p) + .499)
	if q < 0 {
		q = 0
	}
	if q > maxPhred {
		q = maxPhred
	}
	return q
}
