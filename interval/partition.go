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

// Partition splits the set into at most n disjoint parts whose union is the
// whole set.  Parts are contiguous in RefNames order and cover nearly equal
// numbers of positions; an interval may be split between two parts.  Empty
// parts are never returned, so the result is shorter than n when the set has
// fewer than n positions.
func (u *BEDUnion) Partition(n int) [][]Entry {
	if n < 1 {
		n = 1
	}
	total := u.NBases()
	if total == 0 {
		return nil
	}
	perPart := (total + int64(n) - 1) / int64(n)

	var (
		parts  [][]Entry
		cur    []Entry
		budget = perPart
	)
	for _, name := range u.refNames {
		us := NewUnionScanner(u.nameMap[name])
		var start, end PosType
		for us.Pos() != PosTypeMax {
			limit := int64(us.Pos()) + budget
			if limit > PosTypeMax {
				limit = PosTypeMax
			}
			if !us.Scan(&start, &end, PosType(limit)) {
				break
			}
			cur = append(cur, Entry{RefName: name, Start0: start, End: end})
			budget -= int64(end - start)
			if budget == 0 {
				parts = append(parts, cur)
				cur = nil
				budget = perPart
			}
		}
	}
	if len(cur) > 0 {
		parts = append(parts, cur)
	}
	return parts
}
