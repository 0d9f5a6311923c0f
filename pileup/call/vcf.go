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

package call

import (
	"strconv"
	"strings"

	"github.com/grailbio/base/tsv"
)

// FormatFlags selects optional per-sample VCF FORMAT fields.  GT is always
// written.
type FormatFlags uint8

const (
	// FormatDP adds the per-sample read depth.
	FormatDP FormatFlags = 1 << iota
	// FormatDV adds the number of reads carrying the alternate allele.
	FormatDV
	// FormatSP adds the phred-scaled strand bias.
	FormatSP
)

// FormatKeys returns the FORMAT column for flags, e.g. "GT:DP:SP".
func (f FormatFlags) FormatKeys() string {
	keys := []string{"GT"}
	if f&FormatDP != 0 {
		keys = append(keys, "DP")
	}
	if f&FormatDV != 0 {
		keys = append(keys, "DV")
	}
	if f&FormatSP != 0 {
		keys = append(keys, "SP")
	}
	return strings.Join(keys, ":")
}

// EncodeVCF writes site as one VCF line.  pos is 0-based.  The caller must
// flush w.
func EncodeVCF(w *tsv.Writer, site *Site, refName string, pos int, flags FormatFlags) error {
	w.WriteString(refName)
	w.WriteInt64(int64(pos + 1))
	w.WriteByte('.')
	w.WriteString(site.Ref)
	w.WriteString(site.Alt)
	w.WriteInt64(int64(site.Qual))
	w.WriteByte('.')
	info := "DP=" + strconv.Itoa(site.Depth)
	if site.Indel {
		info = "INDEL;" + info
	}
	w.WriteString(info)
	w.WriteString(flags.FormatKeys())

	var buf []byte
	for _, c := range site.Calls {
		buf = append(buf[:0], c.GT...)
		if flags&FormatDP != 0 {
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(c.DP), 10)
		}
		if flags&FormatDV != 0 {
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(c.DV), 10)
		}
		if flags&FormatSP != 0 {
			buf = append(buf, ':')
			buf = strconv.AppendInt(buf, int64(c.SP), 10)
		}
		w.WriteString(string(buf))
	}
	return w.EndLine()
}
