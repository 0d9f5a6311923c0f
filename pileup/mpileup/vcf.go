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
	"fmt"
	"strings"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup/call"
)

// vcfSource is the value of the ##source header line.
const vcfSource = "bio-mpileup"

var vcfInfoLines = []string{
	`##INFO=<ID=INDEL,Number=0,Type=Flag,Description="Indicates that the variant is an INDEL.">`,
	`##INFO=<ID=DP,Number=1,Type=Integer,Description="Raw read depth">`,
}

// urTag is the @SQ URI field.  Reference.URI formats a missing URI as
// "<nil>", so the raw field is read instead.
var urTag = sam.NewTag("UR")

// writeVCFHeader writes the VCF meta lines and the column header line.
func writeVCFHeader(buf *bytes.Buffer, header *sam.Header, refPath string, samples []string, flags call.FormatFlags) {
	buf.WriteString("##fileformat=VCFv4.1\n")
	buf.WriteString("##source=" + vcfSource + "\n")
	if refPath != "" {
		buf.WriteString("##reference=file://" + refPath + "\n")
	}
	for _, ref := range header.Refs() {
		fmt.Fprintf(buf, "##contig=<ID=%s,length=%d", ref.Name(), ref.Len())
		if uri := ref.Get(urTag); uri != "" {
			fmt.Fprintf(buf, ",URL=%s", uri)
		}
		if md5 := ref.MD5(); len(md5) > 0 {
			fmt.Fprintf(buf, ",md5=%x", md5)
		}
		buf.WriteString(">\n")
	}
	for _, line := range vcfInfoLines {
		buf.WriteString(line + "\n")
	}
	buf.WriteString(`##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">` + "\n")
	if flags&call.FormatDP != 0 {
		buf.WriteString(`##FORMAT=<ID=DP,Number=1,Type=Integer,Description="# high-quality bases">` + "\n")
	}
	if flags&call.FormatDV != 0 {
		buf.WriteString(`##FORMAT=<ID=DV,Number=1,Type=Integer,Description="# high-quality non-reference bases">` + "\n")
	}
	if flags&call.FormatSP != 0 {
		buf.WriteString(`##FORMAT=<ID=SP,Number=1,Type=Integer,Description="Phred-scaled strand bias P-value">` + "\n")
	}
	buf.WriteString("#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT")
	if len(samples) > 0 {
		buf.WriteString("\t" + strings.Join(samples, "\t"))
	}
	buf.WriteString("\n")
}
