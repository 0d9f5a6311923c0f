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
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/encoding/bamprovider"
	"github.com/grailbio/mpileup/interval"
)

// resolveRegion parses a samtools-style region against header.  A string
// that names a reference as a whole is taken as that reference, so names
// containing ':' work.  The end is clamped to the reference length.
func resolveRegion(header *sam.Header, region string) (interval.Entry, error) {
	var (
		e   interval.Entry
		err error
	)
	if bamprovider.RefByName(header, region) != nil {
		e = interval.Entry{RefName: region, Start0: 0, End: interval.PosTypeMax - 1}
	} else if e, err = interval.ParseRegionString(region); err != nil {
		return e, errors.E(errors.Invalid, fmt.Sprintf("malformatted region %q", region), err)
	}
	ref := bamprovider.RefByName(header, e.RefName)
	if ref == nil {
		return e, errors.E(errors.Invalid, fmt.Sprintf("malformatted region %q: unknown reference %s", region, e.RefName))
	}
	if n := interval.PosType(ref.Len()); e.End > n {
		e.End = n
	}
	if e.Start0 > e.End {
		e.Start0 = e.End
	}
	return e, nil
}

// scope returns the positions a run covers: the region intersected with the
// BED set, or either one alone.  It returns nil when neither is given, meaning
// the whole genome.
func scope(header *sam.Header, region string, bed *interval.BEDUnion) (*interval.BEDUnion, error) {
	var entries []interval.Entry
	switch {
	case region != "":
		e, err := resolveRegion(header, region)
		if err != nil {
			return nil, err
		}
		if bed != nil {
			entries = bed.Intersect(e)
		} else {
			entries = []interval.Entry{e}
		}
	case bed != nil:
		entries = bed.Entries()
	default:
		return nil, nil
	}
	// Drop contigs missing from the header and clamp to contig ends.
	kept := entries[:0:0]
	for _, e := range entries {
		ref := bamprovider.RefByName(header, e.RefName)
		if ref == nil {
			continue
		}
		if n := interval.PosType(ref.Len()); e.End > n {
			e.End = n
		}
		if e.Start0 < e.End {
			kept = append(kept, e)
		}
	}
	return interval.NewBEDUnionFromEntries(kept, interval.NewBEDOpts{SAMHeader: header})
}

// partition splits the run's scope into the parts handled by each worker.
// A nil part stands for the whole genome, read sequentially.
func partition(header *sam.Header, s *interval.BEDUnion, threads int) [][]interval.Entry {
	if s == nil {
		if threads <= 1 {
			return [][]interval.Entry{nil}
		}
		s = interval.NewBEDUnionFromHeader(header)
	}
	return s.Partition(threads)
}

// entriesToRegions converts a part into provider regions.  Entries are
// already sorted in header order.
func entriesToRegions(header *sam.Header, entries []interval.Entry) []bamprovider.Region {
	if entries == nil {
		return nil
	}
	regions := make([]bamprovider.Region, 0, len(entries))
	for _, e := range entries {
		ref := bamprovider.RefByName(header, e.RefName)
		if ref == nil {
			continue
		}
		regions = append(regions, bamprovider.Region{Ref: ref, Start: int(e.Start0), Limit: int(e.End)})
	}
	return regions
}
