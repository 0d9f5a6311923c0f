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

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestSampleRegistry(t *testing.T) {
	headers := []*sam.Header{
		newTestHeader(t, "@RG\tID:a1\tSM:alice\tPL:ILLUMINA\n@RG\tID:b1\tSM:bob\tPL:PACBIO\n"),
		// Same sample as a1 under another read group.
		newTestHeader(t, "@RG\tID:a2\tSM:alice\tPL:illumina\n"),
		newTestHeader(t, ""),
	}
	paths := []string{"x.bam", "y.bam", "z.bam"}
	opts := DefaultOpts
	opts.Platforms = "ILLUMINA"
	reg := newSampleRegistry(headers, paths, &opts)
	expect.EQ(t, reg.names, []string{"alice", "bob", "z.bam"})
	expect.EQ(t, reg.nSamples(), 3)

	for _, tt := range []struct {
		file int
		rg   string
		want int
	}{
		{0, "a1", 0},
		{0, "b1", 1},
		{1, "a2", 0},
		// Files with a single sample take reads without a known read group.
		{1, "", 0},
		{1, "other", 0},
		{2, "", 2},
		{2, "a1", 2},
	} {
		idx, err := reg.resolve(tt.file, tt.rg)
		assert.NoError(t, err)
		expect.EQ(t, idx, tt.want, "%+v", tt)
	}
	_, err := reg.resolve(0, "zz")
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = reg.resolve(0, "")
	expect.NotNil(t, err)

	chr1 := headers[0].Refs()[0]
	expect.True(t, reg.indelExcludedRG(newMatchRead(t, "r", chr1, 0, 4, 30, "b1")))
	expect.False(t, reg.indelExcludedRG(newMatchRead(t, "r", chr1, 0, 4, 30, "a1")))
	expect.False(t, reg.indelExcludedRG(newMatchRead(t, "r", chr1, 0, 4, 30, "a2")))
}

func TestSampleRegistryIgnoreRG(t *testing.T) {
	headers := []*sam.Header{
		newTestHeader(t, "@RG\tID:a1\tSM:alice\n@RG\tID:b1\tSM:bob\n"),
		newTestHeader(t, "@RG\tID:c1\tSM:carol\n"),
	}
	opts := DefaultOpts
	opts.IgnoreRG = true
	reg := newSampleRegistry(headers, []string{"x.bam", "y.bam"}, &opts)
	expect.EQ(t, reg.names, []string{"x.bam", "y.bam"})
	idx, err := reg.resolve(0, "b1")
	assert.NoError(t, err)
	expect.EQ(t, idx, 0)
	idx, err = reg.resolve(1, "undeclared")
	assert.NoError(t, err)
	expect.EQ(t, idx, 1)
}
