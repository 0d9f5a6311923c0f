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
	"bytes"
	"strings"
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup/call"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestWriteVCFHeader(t *testing.T) {
	header, err := sam.NewHeader([]byte(
		"@SQ\tSN:chr1\tLN:200\tM5:0123456789abcdef0123456789abcdef\tUR:file:///data/ref.fa\n"+
			"@SQ\tSN:chr2\tLN:100\n"), nil)
	assert.NoError(t, err)

	var buf bytes.Buffer
	writeVCFHeader(&buf, header, "/data/ref.fa", []string{"alice", "bob"}, call.FormatDP|call.FormatSP)
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	expect.EQ(t, lines[:5], []string{
		"##fileformat=VCFv4.1",
		"##source=bio-mpileup",
		"##reference=file:///data/ref.fa",
		"##contig=<ID=chr1,length=200,URL=file:///data/ref.fa,md5=0123456789abcdef0123456789abcdef>",
		"##contig=<ID=chr2,length=100>",
	})
	text := buf.String()
	expect.True(t, strings.Contains(text, "##INFO=<ID=INDEL,"))
	expect.True(t, strings.Contains(text, "##FORMAT=<ID=DP,"))
	expect.True(t, strings.Contains(text, "##FORMAT=<ID=SP,"))
	expect.False(t, strings.Contains(text, "##FORMAT=<ID=DV,"))
	expect.EQ(t, lines[len(lines)-1], "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\talice\tbob")

	// No reference, no samples.
	buf.Reset()
	writeVCFHeader(&buf, header, "", nil, 0)
	expect.False(t, strings.Contains(buf.String(), "##reference"))
	expect.True(t, strings.HasSuffix(buf.String(), "\tFORMAT\n"))
}

func TestWriteVCFHeaderNoURI(t *testing.T) {
	var buf bytes.Buffer
	writeVCFHeader(&buf, newTestHeader(t, ""), "", []string{"s"}, 0)
	text := buf.String()
	expect.True(t, strings.Contains(text, "##contig=<ID=chr1,length=200>\n"), text)
	expect.True(t, strings.Contains(text, "##contig=<ID=chr2,length=100>\n"), text)
	expect.False(t, strings.Contains(text, "URL="), text)
}
