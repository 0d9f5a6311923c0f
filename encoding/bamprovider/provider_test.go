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

package bamprovider_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/encoding/bamprovider"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

func newTestData(t *testing.T) (*sam.Header, []*sam.Record) {
	chr1, err := sam.NewReference("chr1", "", "", 100000, nil, nil)
	require.NoError(t, err)
	chr2, err := sam.NewReference("chr2", "", "", 50000, nil, nil)
	require.NoError(t, err)
	header, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	require.NoError(t, err)

	var recs []*sam.Record
	add := func(ref *sam.Reference, pos, length int) {
		seq := make([]byte, length)
		qual := make([]byte, length)
		for i := range seq {
			seq[i] = 'A'
			qual[i] = 30
		}
		recs = append(recs, &sam.Record{
			Name:    fmt.Sprintf("%s:%d", ref.Name(), pos),
			Ref:     ref,
			Pos:     pos,
			MapQ:    60,
			Cigar:   []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, length)},
			MateRef: nil,
			MatePos: -1,
			Seq:     sam.NewSeq(seq),
			Qual:    qual,
		})
	}
	for pos := 0; pos < 90000; pos += 1000 {
		add(chr1, pos, 100)
	}
	add(chr2, 10, 50)
	add(chr2, 40000, 50)
	return header, recs
}

func scanNames(t *testing.T, iter bamprovider.Iterator) []string {
	var names []string
	for iter.Scan() {
		names = append(names, iter.Record().Name)
	}
	require.NoError(t, iter.Err())
	require.NoError(t, iter.Close())
	return names
}

func TestBAMProviderRegions(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	header, recs := newTestData(t)

	indexed := filepath.Join(tmpDir, "indexed.bam")
	assert.NoError(t, bamprovider.WriteBAM(ctx, indexed, header, recs, true))
	plain := filepath.Join(tmpDir, "plain.bam")
	assert.NoError(t, bamprovider.WriteBAM(ctx, plain, header, recs, false))

	chr1, chr2 := header.Refs()[0], header.Refs()[1]
	tests := []struct {
		regions []bamprovider.Region
		want    []string
	}{
		{
			[]bamprovider.Region{{chr1, 1050, 2001}},
			[]string{"chr1:1000", "chr1:2000"},
		},
		{
			// Two regions touching the same read yield it once.
			[]bamprovider.Region{{chr1, 5010, 5020}, {chr1, 5050, 5060}, {chr2, 0, 20}},
			[]string{"chr1:5000", "chr2:10"},
		},
		{
			[]bamprovider.Region{{chr1, 95000, 100000}, {chr2, 30000, 50000}},
			[]string{"chr2:40000"},
		},
		{
			[]bamprovider.Region{{chr1, 100, 1000}},
			nil,
		},
		{
			[]bamprovider.Region{},
			nil,
		},
	}
	for _, path := range []string{indexed, plain} {
		p := bamprovider.NewProvider(path)
		expect.EQ(t, p.Indexed(), path == indexed)
		h, err := p.GetHeader()
		assert.NoError(t, err)
		expect.EQ(t, len(h.Refs()), 2)
		// Repeat to exercise iterator reuse.
		for i := 0; i < 2; i++ {
			for _, tt := range tests {
				expect.EQ(t, scanNames(t, p.NewIterator(tt.regions)), tt.want, "path=%s regions=%v", path, tt.regions)
			}
			expect.EQ(t, len(scanNames(t, p.NewIterator(nil))), len(recs))
		}
		assert.NoError(t, p.Close())
	}
}

func TestBAMProviderBadRegions(t *testing.T) {
	header, recs := newTestData(t)
	p := bamprovider.NewFakeProvider(header, recs)
	chr1 := header.Refs()[0]
	iter := bamprovider.NewProvider("/does/not/exist.bam").NewIterator(
		[]bamprovider.Region{{chr1, 500, 600}, {chr1, 100, 200}})
	expect.False(t, iter.Scan())
	expect.NotNil(t, iter.Err())

	iter = bamprovider.NewRefIterator(p, "chrZ", 0, 10)
	expect.False(t, iter.Scan())
	expect.HasSubstr(t, iter.Close().Error(), "chrZ")

	_, err := bamprovider.NewProvider(filepath.Join("/does/not/exist.bam")).GetHeader()
	expect.NotNil(t, err)
}

func TestFakeProvider(t *testing.T) {
	header, recs := newTestData(t)
	p := bamprovider.NewFakeProvider(header, recs)
	expect.EQ(t, scanNames(t, bamprovider.NewRefIterator(p, "chr1", 3050, 4050)), []string{"chr1:3000", "chr1:4000"})
	iter := p.NewIterator(nil)
	require.True(t, iter.Scan())
	rec := iter.Record()
	rec.Name = "changed"
	expect.EQ(t, recs[0].Name, "chr1:0")
	require.NoError(t, iter.Close())
	require.NoError(t, p.Close())
}
