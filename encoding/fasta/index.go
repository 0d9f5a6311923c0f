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

package fasta

import (
	"bufio"
	"bytes"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// GenerateIndex writes a .fai index for the FASTA data read from in.  The
// result can be passed to NewIndexed or Open.
//
// The index format is defined by "samtools faidx"
// (http://www.htslib.org/doc/faidx.html).  Every line of a sequence except the
// last must have the same width; otherwise random access is impossible and an
// error is returned.
func GenerateIndex(out io.Writer, in io.Reader) (err error) {
	var (
		w        = tsv.NewWriter(out)
		r        = bufio.NewReader(in)
		name     []byte
		seqOff   int64
		nBases   int64
		lineBase int
		lineLen  int
		ragged   bool // a line shorter than lineBase has been seen
		offset   int64
		eof      bool
	)
	setErr := func(e error) {
		if e != nil && err == nil {
			err = e
		}
	}
	flush := func() {
		w.WriteString(string(name))
		w.WriteInt64(nBases)
		w.WriteInt64(seqOff)
		w.WriteInt64(int64(lineBase))
		w.WriteInt64(int64(lineLen))
		setErr(w.EndLine())
	}
	for !eof && err == nil {
		full, e := r.ReadBytes('\n')
		if e == io.EOF {
			eof = true
		} else if e != nil {
			setErr(e)
			break
		}
		offset += int64(len(full))
		line := bytes.TrimRight(full, "\r\n")
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if name != nil {
				flush()
			}
			name = append(name[:0], bytes.SplitN(line[1:], []byte{' '}, 2)[0]...)
			seqOff = offset
			nBases, lineBase, lineLen, ragged = 0, 0, 0, false
			continue
		}
		if name == nil {
			setErr(errors.E(errors.Invalid, "malformed FASTA file"))
			break
		}
		switch {
		case lineBase == 0:
			lineBase, lineLen = len(line), len(full)
		case ragged:
			setErr(errors.E(errors.Invalid, "different line length in sequence", string(name)))
		case len(line) > lineBase:
			setErr(errors.E(errors.Invalid, "different line length in sequence", string(name)))
		case len(line) < lineBase:
			ragged = true
		}
		nBases += int64(len(line))
	}
	if offset == 0 {
		return errors.E(errors.Invalid, "empty FASTA file")
	}
	if err == nil && name != nil {
		flush()
	}
	setErr(w.Flush())
	return
}
