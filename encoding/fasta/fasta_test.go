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

package fasta_test

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/mpileup/encoding/fasta"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const (
	fastaData  = ">seq1\n" + "ACGTA\nCGTAC\nGT\n" + ">seq2 A viral sequence\n" + "ACGT\n" + "ACGT\n"
	fastaIndex = "seq1\t12\t6\t5\t6\n" + "seq2\t8\t44\t4\t5\n"
)

func newFastas(t *testing.T) map[string]fasta.Fasta {
	unindexed, err := fasta.New(strings.NewReader(fastaData))
	assert.NoError(t, err)
	indexed, err := fasta.NewIndexed(strings.NewReader(fastaData), strings.NewReader(fastaIndex))
	assert.NoError(t, err)
	return map[string]fasta.Fasta{"unindexed": unindexed, "indexed": indexed}
}

func TestGet(t *testing.T) {
	tests := []struct {
		seq        string
		start, end uint64
		want       string
		wantErr    string
	}{
		{"seq1", 1, 2, "C", ""},
		{"seq1", 1, 6, "CGTAC", ""},
		{"seq1", 0, 12, "ACGTACGTACGT", ""},
		{"seq1", 10, 12, "GT", ""},
		{"seq2", 0, 8, "ACGTACGT", ""},
		{"seq2", 2, 5, "GTA", ""},
		{"seq0", 0, 1, "", "sequence not found"},
		{"seq1", 10, 13, "", "end is past end of sequence seq1: 12"},
		{"seq1", 4, 3, "", "start must be less than end"},
	}
	for name, fa := range newFastas(t) {
		for _, tt := range tests {
			got, err := fa.Get(tt.seq, tt.start, tt.end)
			if tt.wantErr != "" {
				expect.Regexp(t, err, tt.wantErr, "%s %+v", name, tt)
				continue
			}
			expect.NoError(t, err, "%s %+v", name, tt)
			expect.EQ(t, got, tt.want, "%s %+v", name, tt)
		}
	}
}

func TestLength(t *testing.T) {
	for name, fa := range newFastas(t) {
		n, err := fa.Len("seq1")
		expect.NoError(t, err)
		expect.EQ(t, n, uint64(12), name)
		n, err = fa.Len("seq2")
		expect.NoError(t, err)
		expect.EQ(t, n, uint64(8), name)
		_, err = fa.Len("seq0")
		expect.NotNil(t, err, name)
	}
}

func TestSeqNames(t *testing.T) {
	for name, fa := range newFastas(t) {
		expect.EQ(t, fa.SeqNames(), []string{"seq1", "seq2"}, name)
	}
}

func TestFaiToReferenceLengths(t *testing.T) {
	fai := "chr1\t250000000\t6\t60\t61\n" + "chr2\t199000000\t254237294\t60\t61\n"
	lens, err := fasta.FaiToReferenceLengths(strings.NewReader(fai))
	assert.NoError(t, err)
	expect.EQ(t, lens, map[string]uint64{"chr1": 250000000, "chr2": 199000000})

	_, err = fasta.FaiToReferenceLengths(strings.NewReader("chr1\t12\n"))
	expect.Regexp(t, err, "invalid index line 1")
}

func TestGenerateIndex(t *testing.T) {
	generateIndex := func(fa string) string {
		idx := bytes.Buffer{}
		assert.NoError(t, fasta.GenerateIndex(&idx, strings.NewReader(fa)))
		return idx.String()
	}

	fa := `>E0
GGTGAAATC
CCTGAAATC
AAAATTGCT
>E1
GTCCCTCCCCAGACATGGCCCTGGGAGGC
>E2
CCGCGCCCGCGCCCCCGCCGCC
>E3
GTCAAGGTTGCACAG
>E4
ATGAATCATGTGGTAAAA
`
	fai := generateIndex(fa)
	assert.EQ(t, fai, `E0	27	4	9	10
E1	29	38	29	30
E2	22	72	22	23
E3	15	99	15	16
E4	18	119	18	19
`)
	indexed, err := fasta.NewIndexed(strings.NewReader(fa), strings.NewReader(fai))
	assert.NoError(t, err)
	seq, err := indexed.Get("E0", 5, 22)
	assert.NoError(t, err)
	assert.EQ(t, seq, "AATCCCTGAAATCAAAA")
	seq, err = indexed.Get("E4", 0, 18)
	assert.NoError(t, err)
	assert.EQ(t, seq, "ATGAATCATGTGGTAAAA")

	// DOS newlines.
	assert.EQ(t, generateIndex(">E0\r\nGGGG\r\n>E1\r\nAAAAA\r\n"), "E0\t4\t5\t4\t6\nE1\t5\t16\t5\t7\n")

	// No newline at the end.
	noNewline := ">E0\nGGGG\n>E1\nCCCCC\nAAAAA"
	fai = generateIndex(noNewline)
	assert.EQ(t, fai, "E0\t4\t4\t4\t5\nE1\t10\t13\t5\t6\n")
	indexed, err = fasta.NewIndexed(strings.NewReader(noNewline), strings.NewReader(fai))
	assert.NoError(t, err)
	seq, err = indexed.Get("E1", 0, 10)
	assert.NoError(t, err)
	assert.EQ(t, seq, "CCCCCAAAAA")

	assert.EQ(t, generateIndex(">E0\nGGGG\n>E1\nAAAAA"), "E0\t4\t4\t4\t5\nE1\t5\t13\t5\t5\n")

	idx := bytes.Buffer{}
	assert.Regexp(t, fasta.GenerateIndex(&idx, strings.NewReader("")), "empty FASTA")
	assert.Regexp(t, fasta.GenerateIndex(&idx, strings.NewReader(">E0\nAC\nACGT\n")), "different line length")
	assert.Regexp(t, fasta.GenerateIndex(&idx, strings.NewReader("ACGT\n")), "malformed FASTA")
}

func TestOpenConcurrent(t *testing.T) {
	ctx := vcontext.Background()
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	path := filepath.Join(tmpdir, "ref.fa")
	assert.NoError(t, ioutil.WriteFile(path, []byte(fastaData), 0644))

	// No .fai on disk; the index is generated.
	index, err := fasta.LoadIndex(ctx, path)
	assert.NoError(t, err)
	assert.EQ(t, string(index), fastaIndex)

	assert.NoError(t, ioutil.WriteFile(path+".fai", index, 0644))
	index2, err := fasta.LoadIndex(ctx, path)
	assert.NoError(t, err)
	assert.EQ(t, index2, index)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := fasta.Open(ctx, path, index)
			assert.NoError(t, err)
			defer func() { assert.NoError(t, f.Close(ctx)) }()
			for j := 0; j < 20; j++ {
				seq, err := f.Get("seq1", 0, 12)
				assert.NoError(t, err)
				expect.EQ(t, seq, "ACGTACGTACGT")
				seq, err = f.Get("seq2", 3, 6)
				assert.NoError(t, err)
				expect.EQ(t, seq, "TAC")
			}
		}()
	}
	wg.Wait()
}
