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
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/klauspost/compress/gzip"
)

// getTokens stores up to len(tokens) whitespace-delimited tokens of curLine
// and returns the number stored.  Any (group of) characters <= ' ' is a
// delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// SAMHeader enables ID-based lookup, and orders Entries() by reference ID.
	// Contigs absent from the header are kept for name-based lookup only.
	SAMHeader *sam.Header
}

// BEDUnion is a set of genomic positions.  Each contig's set is stored as a
// sorted endpoint array: interval #k is [a[2k], a[2k+1]).  Touching and
// overlapping input intervals are merged, and empty ones dropped.
//
// The interval data is immutable after construction, but the lookup cursor is
// not; use Clone to give each goroutine its own copy.
type BEDUnion struct {
	// nameMap is a contig-keyed map with disjoint-interval-set values.
	nameMap map[string][]PosType
	// idMap is indexed by sam.Reference.ID().  Only set if a header was given.
	idMap [][]PosType
	// refNames lists the contigs of nameMap, in header order when a header was
	// given, otherwise in order of first appearance.
	refNames []string

	// Cursor for ContainsBy{ID,Name}, which are usually called with
	// nondecreasing positions.
	lastChrIntervals []PosType
	lastChrName      string
	lastChrID        int
	lastPosPlus1     PosType
	lastIdx          EndpointIndex
	isSequential     bool
}

func (u *BEDUnion) seek(intervals []PosType, pos PosType) bool {
	posPlus1 := pos + 1
	u.lastChrIntervals = intervals
	u.lastIdx = SearchPosTypes(intervals, posPlus1)
	u.lastPosPlus1 = posPlus1
	u.isSequential = true
	return u.lastIdx.Contained()
}

func (u *BEDUnion) containsCached(pos PosType) bool {
	if u.lastChrIntervals == nil {
		return false
	}
	posPlus1 := pos + 1
	if u.isSequential {
		if posPlus1 >= u.lastPosPlus1 {
			u.lastIdx.Update(pos, u.lastChrIntervals)
			u.lastPosPlus1 = posPlus1
			return u.lastIdx.Contained()
		}
		u.isSequential = false
	}
	return SearchPosTypes(u.lastChrIntervals, posPlus1).Contained()
}

// ContainsByID checks whether position pos of the contig with the given
// sam.Reference ID is in the set.
func (u *BEDUnion) ContainsByID(chrID int, pos PosType) bool {
	if chrID != u.lastChrID {
		u.lastChrID = chrID
		u.lastChrName = ""
		if chrID < 0 || chrID >= len(u.idMap) || u.idMap[chrID] == nil {
			u.lastChrIntervals = nil
			return false
		}
		return u.seek(u.idMap[chrID], pos)
	}
	return u.containsCached(pos)
}

// ContainsByName checks whether position pos of the named contig is in the
// set.
func (u *BEDUnion) ContainsByName(chrName string, pos PosType) bool {
	if chrName != u.lastChrName || u.lastChrID != -1 {
		u.lastChrName = chrName
		u.lastChrID = -1
		intervals := u.nameMap[chrName]
		if intervals == nil {
			u.lastChrIntervals = nil
			return false
		}
		return u.seek(intervals, pos)
	}
	return u.containsCached(pos)
}

// OverlapsByID checks whether any position of [start, end) on contig chrID is
// in the set.  It does not disturb the ContainsBy* cursor.
func (u *BEDUnion) OverlapsByID(chrID int, start, end PosType) bool {
	if chrID < 0 || chrID >= len(u.idMap) || end <= start {
		return false
	}
	intervals := u.idMap[chrID]
	idx := SearchPosTypes(intervals, start+1)
	if idx.Contained() {
		return true
	}
	return !idx.Finished(intervals) && intervals[idx] < end
}

// Entries returns the intervals of the set, contig by contig in RefNames
// order.
func (u *BEDUnion) Entries() []Entry {
	var entries []Entry
	for _, name := range u.refNames {
		intervals := u.nameMap[name]
		for i := 0; i+1 < len(intervals); i += 2 {
			entries = append(entries, Entry{RefName: name, Start0: intervals[i], End: intervals[i+1]})
		}
	}
	return entries
}

// RefNames returns the contigs that have at least one interval.  When a
// header was given, contigs missing from it are left out.
func (u *BEDUnion) RefNames() []string {
	return u.refNames
}

// NBases returns the number of positions on the RefNames contigs.
func (u *BEDUnion) NBases() int64 {
	var n int64
	for _, name := range u.refNames {
		intervals := u.nameMap[name]
		for i := 0; i+1 < len(intervals); i += 2 {
			n += int64(intervals[i+1] - intervals[i])
		}
	}
	return n
}

// Intersect returns the pieces of the set that overlap e, clipped to e.
func (u *BEDUnion) Intersect(e Entry) []Entry {
	intervals := u.nameMap[e.RefName]
	var result []Entry
	us := NewUnionScanner(intervals)
	var start, end PosType
	for us.Scan(&start, &end, e.End) {
		if end <= e.Start0 {
			continue
		}
		if start < e.Start0 {
			start = e.Start0
		}
		result = append(result, Entry{RefName: e.RefName, Start0: start, End: end})
	}
	return result
}

// Clone returns a BEDUnion that shares the interval data, with its own lookup
// cursor.
func (u *BEDUnion) Clone() *BEDUnion {
	return &BEDUnion{
		nameMap:   u.nameMap,
		idMap:     u.idMap,
		refNames:  u.refNames,
		lastChrID: -1,
	}
}

// normalize sorts and merges raw [start, end) pairs of one contig.
func normalize(raw []PosType) []PosType {
	n := len(raw) / 2
	sort.Sort(pairSorter(raw))
	out := raw[:0]
	for i := 0; i < n; i++ {
		start, end := raw[2*i], raw[2*i+1]
		if end <= start {
			continue
		}
		if len(out) > 0 && start <= out[len(out)-1] {
			if end > out[len(out)-1] {
				out[len(out)-1] = end
			}
			continue
		}
		out = append(out, start, end)
	}
	return out
}

type pairSorter []PosType

func (p pairSorter) Len() int           { return len(p) / 2 }
func (p pairSorter) Less(i, j int) bool { return p[2*i] < p[2*j] }
func (p pairSorter) Swap(i, j int) {
	p[2*i], p[2*j] = p[2*j], p[2*i]
	p[2*i+1], p[2*j+1] = p[2*j+1], p[2*i+1]
}

// builder accumulates raw intervals per contig.
type builder struct {
	raw   map[string][]PosType
	order []string
}

func (b *builder) add(refName string, start, end PosType) {
	if b.raw == nil {
		b.raw = make(map[string][]PosType)
	}
	if _, ok := b.raw[refName]; !ok {
		b.order = append(b.order, refName)
	}
	b.raw[refName] = append(b.raw[refName], start, end)
}

func (b *builder) finish(opts NewBEDOpts) *BEDUnion {
	u := &BEDUnion{nameMap: make(map[string][]PosType), lastChrID: -1}
	for _, name := range b.order {
		if intervals := normalize(b.raw[name]); len(intervals) > 0 {
			u.nameMap[name] = intervals
		}
	}
	if opts.SAMHeader == nil {
		for _, name := range b.order {
			if u.nameMap[name] != nil {
				u.refNames = append(u.refNames, name)
			}
		}
		return u
	}
	refs := opts.SAMHeader.Refs()
	u.idMap = make([][]PosType, len(refs))
	inHeader := make(map[string]bool, len(refs))
	for _, ref := range refs {
		name := ref.Name()
		inHeader[name] = true
		if intervals := u.nameMap[name]; intervals != nil {
			u.idMap[ref.ID()] = intervals
			u.refNames = append(u.refNames, name)
		}
	}
	for _, name := range b.order {
		if !inHeader[name] && u.nameMap[name] != nil {
			log.Printf("interval: contig %s is not in the SAM header, ignored for ID lookups", name)
		}
	}
	return u
}

// NewBEDUnion loads intervals from a BED file.  A line has either three
// columns (contig, 0-based start, end) or two (contig, 1-based position).
// Blank lines and "#", "track" and "browser" lines are skipped.  The input
// need not be sorted.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (*BEDUnion, error) {
	scanner := bufio.NewScanner(reader)
	var (
		b       builder
		tokens  [3][]byte
		lineIdx int
	)
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 || tokens[0][0] == '#' ||
			bytes.Equal(tokens[0], []byte("track")) || bytes.Equal(tokens[0], []byte("browser")) {
			continue
		}
		if nToken < 2 {
			return nil, fmt.Errorf("interval.NewBEDUnion: line %d has fewer tokens than expected", lineIdx)
		}
		parsedStart, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return nil, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
		var parsedEnd int
		if nToken == 2 {
			// Position list.
			parsedEnd = parsedStart
			parsedStart--
		} else if parsedEnd, err = strconv.Atoi(gunsafe.BytesToString(tokens[2])); err != nil {
			return nil, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
		if parsedStart < 0 {
			return nil, fmt.Errorf("interval.NewBEDUnion: negative start coordinate on line %d", lineIdx)
		}
		if parsedEnd < parsedStart || parsedEnd >= PosTypeMax {
			return nil, fmt.Errorf("interval.NewBEDUnion: invalid coordinate pair on line %d", lineIdx)
		}
		// string() copies: the scanner reuses curLine.
		b.add(string(tokens[0]), PosType(parsedStart), PosType(parsedEnd))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	u := b.finish(opts)
	log.Printf("BED loaded, %d line(s), %d base(s) covered.", lineIdx, u.NBases())
	return u, nil
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.  Gzipped input is detected from the path.
func NewBEDUnionFromPath(path string, opts NewBEDOpts) (bedUnion *BEDUnion, err error) {
	ctx := vcontext.Background()
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader := io.Reader(infile.Reader(ctx))
	if fileio.DetermineType(path) == fileio.Gzip {
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer gz.Close()
		reader = gz
	}
	return NewBEDUnion(reader, opts)
}

// NewBEDUnionFromEntries initializes a BEDUnion from entries, which need not
// be sorted.
func NewBEDUnionFromEntries(entries []Entry, opts NewBEDOpts) (*BEDUnion, error) {
	var b builder
	for _, entry := range entries {
		if entry.Start0 < 0 {
			return nil, fmt.Errorf("interval.NewBEDUnionFromEntries: negative start coordinate in %v", entry)
		}
		if entry.End < entry.Start0 || entry.End >= PosTypeMax {
			return nil, fmt.Errorf("interval.NewBEDUnionFromEntries: invalid coordinate pair [%d, %d)", entry.Start0, entry.End)
		}
		b.add(entry.RefName, entry.Start0, entry.End)
	}
	return b.finish(opts), nil
}

// NewBEDUnionFromHeader returns the set of all positions of every reference
// in header.
func NewBEDUnionFromHeader(header *sam.Header) *BEDUnion {
	var b builder
	for _, ref := range header.Refs() {
		b.add(ref.Name(), 0, PosType(ref.Len()))
	}
	return b.finish(NewBEDOpts{SAMHeader: header})
}
