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
	"strings"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

type sliceSource struct {
	recs []*sam.Record
}

func (s *sliceSource) Next() (*sam.Record, error) {
	if len(s.recs) == 0 {
		return nil, nil
	}
	r := sam.GetFromFreePool()
	*r = *s.recs[0]
	s.recs = s.recs[1:]
	return r, nil
}

func newTestRefs(t *testing.T) []*sam.Reference {
	chr1, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	assert.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 1000, nil, nil)
	assert.NoError(t, err)
	_, err = sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	assert.NoError(t, err)
	return []*sam.Reference{chr1, chr2}
}

// newRead creates a read whose sequence is seq and whose cigar is given in
// the usual text form.
func newRead(t *testing.T, name string, ref *sam.Reference, pos int, cigar string, seq string) *sam.Record {
	c, err := sam.ParseCigar([]byte(cigar))
	assert.NoError(t, err)
	qual := []byte(strings.Repeat("\x1e", len(seq)))
	return &sam.Record{
		Name:    name,
		Ref:     ref,
		Pos:     pos,
		MapQ:    60,
		Cigar:   c,
		MatePos: -1,
		Seq:     sam.NewSeq([]byte(seq)),
		Qual:    qual,
	}
}

type colSummary struct {
	refID, pos int
	depths     []int
}

func drain(t *testing.T, g *Generator) []colSummary {
	var cols []colSummary
	for {
		col, err := g.Next()
		assert.NoError(t, err)
		if col == nil {
			break
		}
		s := colSummary{refID: col.RefID, pos: col.Pos}
		for _, e := range col.Entries {
			s.depths = append(s.depths, len(e))
		}
		cols = append(cols, s)
	}
	g.Close()
	return cols
}

func TestGeneratorEntries(t *testing.T) {
	refs := newTestRefs(t)
	src := &sliceSource{recs: []*sam.Record{
		newRead(t, "a", refs[0], 10, "3M2I2M1D2M", "ACGTTACGT"),
		newRead(t, "b", refs[0], 12, "2M3N2M", "GTCA"),
	}}
	g := NewGenerator([]RecordSource{src}, 0)
	type want struct {
		pos     int
		entries []Entry // Rec fields are compared by name only.
		names   []string
	}
	tests := []want{
		{10, []Entry{{QPos: 0, IsHead: true}}, []string{"a"}},
		{11, []Entry{{QPos: 1}}, []string{"a"}},
		{12, []Entry{{QPos: 2, Indel: 2}, {QPos: 0, IsHead: true}}, []string{"a", "b"}},
		{13, []Entry{{QPos: 5}, {QPos: 1}}, []string{"a", "b"}},
		{14, []Entry{{QPos: 6, Indel: -1}, {QPos: 2, IsDel: true, IsRefSkip: true}}, []string{"a", "b"}},
		{15, []Entry{{QPos: 7, IsDel: true}, {QPos: 2, IsDel: true, IsRefSkip: true}}, []string{"a", "b"}},
		{16, []Entry{{QPos: 7}, {QPos: 2, IsDel: true, IsRefSkip: true}}, []string{"a", "b"}},
		{17, []Entry{{QPos: 8, IsTail: true}, {QPos: 2}}, []string{"a", "b"}},
		{18, []Entry{{QPos: 3, IsTail: true}}, []string{"b"}},
	}
	for _, tt := range tests {
		col, err := g.Next()
		assert.NoError(t, err)
		assert.NotNil(t, col)
		expect.EQ(t, col.RefID, 0)
		expect.EQ(t, col.Pos, tt.pos)
		assert.EQ(t, len(col.Entries[0]), len(tt.entries), "pos %d", tt.pos)
		for i, e := range col.Entries[0] {
			expect.EQ(t, e.Rec.Name, tt.names[i], "pos %d", tt.pos)
			e.Rec = nil
			expect.EQ(t, e, tt.entries[i], "pos %d", tt.pos)
		}
	}
	col, err := g.Next()
	assert.NoError(t, err)
	expect.True(t, col == nil)
	g.Close()
}

func TestGeneratorDeletionThenInsertion(t *testing.T) {
	refs := newTestRefs(t)
	src := &sliceSource{recs: []*sam.Record{newRead(t, "a", refs[0], 10, "2M1D1I2M", "ACGTA")}}
	g := NewGenerator([]RecordSource{src}, 0)
	want := []Entry{
		{QPos: 0, IsHead: true},
		{QPos: 1, Indel: -1},
		// Only match ops look ahead, so the insertion is not reported here.
		{QPos: 2, IsDel: true},
		{QPos: 3},
		{QPos: 4, IsTail: true},
	}
	for i, w := range want {
		col, err := g.Next()
		assert.NoError(t, err)
		assert.NotNil(t, col)
		expect.EQ(t, col.Pos, 10+i)
		e := col.Entries[0][0]
		e.Rec = nil
		expect.EQ(t, e, w, "pos %d", col.Pos)
	}
	g.Close()
}

func TestGeneratorBases(t *testing.T) {
	refs := newTestRefs(t)
	src := &sliceSource{recs: []*sam.Record{
		newRead(t, "a", refs[0], 0, "2S3M", "NNACG"),
	}}
	g := NewGenerator([]RecordSource{src}, 0)
	var bases []byte
	for {
		col, err := g.Next()
		assert.NoError(t, err)
		if col == nil {
			break
		}
		e := col.Entries[0][0]
		bases = append(bases, Seq8ToASCIITable[e.Base()])
		expect.EQ(t, e.Qual(), byte(30))
		expect.False(t, e.Reverse())
	}
	expect.EQ(t, string(bases), "ACG")
	g.Close()
}

func TestGeneratorMultiSource(t *testing.T) {
	refs := newTestRefs(t)
	src0 := &sliceSource{recs: []*sam.Record{
		newRead(t, "a", refs[0], 5, "3M", "AAA"),
	}}
	src1 := &sliceSource{recs: []*sam.Record{
		newRead(t, "b", refs[0], 6, "3M", "CCC"),
		newRead(t, "c", refs[1], 0, "2M", "GG"),
	}}
	g := NewGenerator([]RecordSource{src0, src1}, 0)
	expect.EQ(t, drain(t, g), []colSummary{
		{0, 5, []int{1, 0}},
		{0, 6, []int{1, 1}},
		{0, 7, []int{1, 1}},
		{0, 8, []int{0, 1}},
		{1, 0, []int{0, 1}},
		{1, 1, []int{0, 1}},
	})
}

func TestGeneratorGapAndSkippedReads(t *testing.T) {
	refs := newTestRefs(t)
	src := &sliceSource{recs: []*sam.Record{
		newRead(t, "a", refs[0], 0, "2M", "AA"),
		// Only inserted bases; never piled up.
		newRead(t, "b", refs[0], 1, "3I", "CCC"),
		newRead(t, "c", refs[0], 100, "1M", "T"),
	}}
	expect.EQ(t, drain(t, NewGenerator([]RecordSource{src}, 0)), []colSummary{
		{0, 0, []int{1}},
		{0, 1, []int{1}},
		{0, 100, []int{1}},
	})
}

func TestGeneratorMaxDepth(t *testing.T) {
	refs := newTestRefs(t)
	var recs []*sam.Record
	for i := 0; i < 5; i++ {
		recs = append(recs, newRead(t, "r", refs[0], 0, "2M", "AC"))
	}
	// Dropped too: three reads are still piled up at position 1.
	recs = append(recs, newRead(t, "s", refs[0], 1, "2M", "CG"))
	// Admitted once the pile has drained.
	recs = append(recs, newRead(t, "u", refs[0], 2, "1M", "G"))
	g := NewGenerator([]RecordSource{&sliceSource{recs: recs}}, 3)
	expect.EQ(t, drain(t, g), []colSummary{
		{0, 0, []int{3}},
		{0, 1, []int{3}},
		{0, 2, []int{1}},
	})
	expect.EQ(t, g.NDropped(), 3)
}

func TestGeneratorUnsorted(t *testing.T) {
	refs := newTestRefs(t)
	src := &sliceSource{recs: []*sam.Record{
		newRead(t, "a", refs[0], 10, "2M", "AA"),
		newRead(t, "b", refs[0], 5, "2M", "AA"),
	}}
	g := NewGenerator([]RecordSource{src}, 0)
	var err error
	for err == nil {
		var col *Column
		if col, err = g.Next(); col == nil {
			break
		}
	}
	assert.NotNil(t, err)
	expect.HasSubstr(t, err.Error(), "not sorted")
	g.Close()
}
