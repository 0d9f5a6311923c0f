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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestGrouper(t *testing.T) {
	headers := []*sam.Header{
		newTestHeader(t, "@RG\tID:a\tSM:s1\n@RG\tID:b\tSM:s2\n"),
		newTestHeader(t, ""),
	}
	opts := DefaultOpts
	reg := newSampleRegistry(headers, []string{"x.bam", "y.bam"}, &opts)
	chr1 := headers[0].Refs()[0]
	entry := func(name, rg string) pileup.Entry {
		return pileup.Entry{Rec: newMatchRead(t, name, chr1, 0, 10, 30, rg), QPos: 3}
	}
	g := newGrouper(reg.nSamples())
	var first []pileup.Entry
	for i := 0; i < 20; i++ {
		first = append(first, entry("x", "a"))
	}
	col := &pileup.Column{
		RefID: 0,
		Pos:   3,
		Entries: [][]pileup.Entry{
			append(first, entry("x2", "b")),
			{entry("y1", ""), entry("y2", "a")},
		},
	}
	assert.NoError(t, g.group(col, reg))
	expect.EQ(t, g.depth(), col.Depth())
	names := make([][]string, len(g.samples))
	for i, entries := range g.samples {
		for _, e := range entries {
			names[i] = append(names[i], e.Rec.Name)
		}
	}
	want := [][]string{nil, {"x2"}, {"y1", "y2"}}
	for i := 0; i < 20; i++ {
		want[0] = append(want[0], "x")
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("grouping mismatch (-want +got):\n%s", diff)
	}

	// Lists are reset between columns.
	col.Entries = [][]pileup.Entry{nil, {entry("y3", "")}}
	assert.NoError(t, g.group(col, reg))
	expect.EQ(t, len(g.samples[0]), 0)
	expect.EQ(t, len(g.samples[2]), 1)

	col.Entries = [][]pileup.Entry{{entry("bad", "undeclared")}, nil}
	expect.NotNil(t, g.group(col, reg))
}
