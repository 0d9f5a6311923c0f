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
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/interval"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestResolveRegion(t *testing.T) {
	header, err := sam.NewHeader([]byte(testSQ+"@SQ\tSN:HLA:A\tLN:50\n"), nil)
	assert.NoError(t, err)
	for _, tt := range []struct {
		region string
		want   interval.Entry
	}{
		{"chr1", interval.Entry{RefName: "chr1", Start0: 0, End: 200}},
		{"chr1:11-20", interval.Entry{RefName: "chr1", Start0: 10, End: 20}},
		{"chr1:150", interval.Entry{RefName: "chr1", Start0: 149, End: 200}},
		{"chr2:90-1000", interval.Entry{RefName: "chr2", Start0: 89, End: 100}},
		{"HLA:A", interval.Entry{RefName: "HLA:A", Start0: 0, End: 50}},
		{"HLA:A:5-6", interval.Entry{RefName: "HLA:A", Start0: 4, End: 6}},
	} {
		got, err := resolveRegion(header, tt.region)
		assert.NoError(t, err)
		expect.EQ(t, got, tt.want, tt.region)
	}
	for _, bad := range []string{"chr3", "chr1:x-5", ":1-2"} {
		_, err := resolveRegion(header, bad)
		expect.True(t, errors.Is(errors.Invalid, err), bad)
	}
}

func TestScopeAndPartition(t *testing.T) {
	header := newTestHeader(t, "")
	bed, err := interval.NewBEDUnion(strings.NewReader("chr1\t10\t50\nchr1\t100\t300\nchr2\t0\t10\nchrX\t0\t10\n"),
		interval.NewBEDOpts{SAMHeader: header})
	assert.NoError(t, err)

	s, err := scope(header, "", nil)
	assert.NoError(t, err)
	expect.True(t, s == nil)
	expect.EQ(t, partition(header, s, 1), [][]interval.Entry{nil})
	parts := partition(header, s, 3)
	expect.EQ(t, len(parts), 3)
	expect.EQ(t, parts[0][0], interval.Entry{RefName: "chr1", Start0: 0, End: 100})

	s, err = scope(header, "", bed)
	assert.NoError(t, err)
	expect.EQ(t, s.Entries(), []interval.Entry{{RefName: "chr1", Start0: 10, End: 50}, {RefName: "chr1", Start0: 100, End: 200}, {RefName: "chr2", Start0: 0, End: 10}})

	s, err = scope(header, "chr1:41-120", bed)
	assert.NoError(t, err)
	expect.EQ(t, s.Entries(), []interval.Entry{{RefName: "chr1", Start0: 40, End: 50}, {RefName: "chr1", Start0: 100, End: 120}})
	parts = partition(header, s, 2)
	expect.EQ(t, parts, [][]interval.Entry{
		{{RefName: "chr1", Start0: 40, End: 50}, {RefName: "chr1", Start0: 100, End: 105}},
		{{RefName: "chr1", Start0: 105, End: 120}},
	})
	regions := entriesToRegions(header, parts[0])
	expect.EQ(t, len(regions), 2)
	expect.EQ(t, regions[1].String(), "chr1:101-105")
	expect.True(t, entriesToRegions(header, nil) == nil)
}
