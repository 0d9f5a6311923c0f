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

package interval

import (
	"math"
	"sort"
)

// An interval-union on one contig is stored as a sorted []PosType of
// endpoints.  The intervals
//   [5, 15)
//   [7, 17)
//   [20, 25)
// merge to [5, 17) U [20, 25), stored as {5, 17, 20, 25}.  A position pos is
// covered iff SearchPosTypes(endpoints, pos+1) is odd.

// PosType is the type used to represent interval coordinates.  BAM positions
// are int32, so this is too.
type PosType int32

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = math.MaxInt32

// SearchPosTypes returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).
func SearchPosTypes(a []PosType, x PosType) EndpointIndex {
	return EndpointIndex(sort.Search(len(a), func(i int) bool { return a[i] >= x }))
}

// ExpsearchPosType performs exponential search starting from idx: it checks
// a[idx], a[idx+1], a[idx+3], a[idx+7], ..., then finishes with binary search.
// It beats SearchPosTypes when positions are visited in increasing order.
func ExpsearchPosType(a []PosType, x PosType, idx EndpointIndex) EndpointIndex {
	nextIncr := EndpointIndex(1)
	startIdx := idx
	endIdx := EndpointIndex(len(a))
	for idx < endIdx {
		if a[idx] >= x {
			endIdx = idx
			break
		}
		startIdx = idx + 1
		idx += nextIncr
		nextIncr *= 2
	}
	for startIdx < endIdx {
		midIdx := EndpointIndex((uint(startIdx) + uint(endIdx)) >> 1)
		if a[midIdx] >= x {
			endIdx = midIdx
		} else {
			startIdx = midIdx + 1
		}
	}
	return startIdx
}

// EndpointIndex is the result of SearchPosTypes(endpoints, pos+1).  Note the
// "+1": it lines the search up with left-closed right-open intervals.
type EndpointIndex uint32

// NewEndpointIndex returns SearchPosTypes(endpoints, pos+1).
func NewEndpointIndex(pos PosType, endpoints []PosType) EndpointIndex {
	return SearchPosTypes(endpoints, pos+1)
}

// Contained returns whether the position is inside an interval.
func (ei EndpointIndex) Contained() bool {
	return ei&1 != 0
}

// Finished returns whether the position is past all the intervals.
func (ei EndpointIndex) Finished(endpoints []PosType) bool {
	return ei >= EndpointIndex(len(endpoints))
}

// Update moves the EndpointIndex to newPos, which must not be smaller than the
// previous position.
func (ei *EndpointIndex) Update(newPos PosType, endpoints []PosType) {
	*ei = ExpsearchPosType(endpoints, newPos+1, *ei)
}

// UnionScanner walks the covered positions of one contig's interval-union in
// pieces bounded by a caller-chosen limit:
//
//	for us.Scan(&start, &end, limit) {
//	  // [start, end) is covered, and end <= limit.
//	}
//
// A later Scan with a larger limit resumes where the previous one stopped.
//
// Invariant: pos is either covered or PosTypeMax, and endpointIdx is
// SearchPosTypes(endpoints, pos+1).
type UnionScanner struct {
	endpoints   []PosType
	pos         PosType
	endpointIdx EndpointIndex
}

// NewUnionScanner returns a UnionScanner positioned at the first interval.
func NewUnionScanner(endpoints []PosType) UnionScanner {
	us := UnionScanner{endpoints: endpoints, pos: PosTypeMax}
	if len(endpoints) >= 2 {
		us.pos = endpoints[0]
		us.endpointIdx = 1
	}
	return us
}

// Pos returns the next covered position, or PosTypeMax if there is none.
func (us *UnionScanner) Pos() PosType {
	return us.pos
}

// Scan stores the next covered run below limit in [*start, *end) and returns
// true, or returns false if there is none.
func (us *UnionScanner) Scan(start, end *PosType, limit PosType) bool {
	if us.pos >= limit {
		return false
	}
	*start = us.pos
	intervalEnd := us.endpoints[us.endpointIdx]
	if intervalEnd > limit {
		us.pos = limit
		*end = limit
		return true
	}
	*end = intervalEnd
	us.endpointIdx++
	if us.endpointIdx.Finished(us.endpoints) {
		us.pos = PosTypeMax
	} else {
		us.pos = us.endpoints[us.endpointIdx]
		us.endpointIdx++
	}
	return true
}
