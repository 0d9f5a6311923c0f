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
	"fmt"
	"strconv"
	"strings"
)

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	RefName string
	Start0  PosType
	End     PosType
}

// String returns the 1-based region string of e.
func (e Entry) String() string {
	return fmt.Sprintf("%s:%d-%d", e.RefName, e.Start0+1, e.End)
}

// ParseRegionString parses a region string of one of the forms
//
//	[contig]:[1-based first pos]-[last pos]
//	[contig]:[1-based first pos]
//	[contig]
//
// returning the contig name and 0-based interval boundaries.  The second form
// extends to the end of the contig.  Without a positional restriction, the
// interval is [0, PosTypeMax-1).  Thousands separators ("1,000") are allowed.
//
// Contig names that contain ':' should be matched against the header before
// calling this function.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result = Entry{RefName: region, Start0: 0, End: PosTypeMax - 1}
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig name in %q", region)
		return
	}
	result.RefName = region[:colonPos]
	rangeStr := strings.Replace(region[colonPos+1:], ",", "", -1)
	start1Str, endStr := rangeStr, ""
	if dashPos := strings.IndexByte(rangeStr, '-'); dashPos != -1 {
		start1Str, endStr = rangeStr[:dashPos], rangeStr[dashPos+1:]
	}
	start1, err := strconv.Atoi(start1Str)
	if err != nil {
		err = fmt.Errorf("interval.ParseRegionString: bad start in %q: %v", region, err)
		return
	}
	if start1 <= 0 || start1 >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", start1Str)
		return
	}
	result.Start0 = PosType(start1 - 1)
	if endStr == "" {
		result.End = PosTypeMax - 1
		return
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		err = fmt.Errorf("interval.ParseRegionString: bad end in %q: %v", region, err)
		return
	}
	// end == PosTypeMax is prohibited so that endpoint arrays never contain
	// repeats.
	if end < start1 || end >= PosTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.End = PosType(end)
	return
}
