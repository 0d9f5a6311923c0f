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

// Package fasta provides random access to (optionally indexed) FASTA files.
// See http://www.htslib.org/doc/faidx.html.  FASTA files consist of a number
// of named sequences that may be interrupted by newlines:
//
// >chr7
// ACGTAC
// GAGGAC
// GCG
// >chr8
// ACGT
//
// Sequence names are the stretch of characters after '>' up to the first
// space; '>chr1 A viral sequence' becomes 'chr1'.
package fasta

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const bufferInitSize = 1024 * 1024 * 300 // 300 MB

// Fasta represents FASTA-formatted data, consisting of a set of named
// sequences.
type Fasta interface {
	// Get returns the bases of seqName in the 0-based half-open interval
	// [start, end).  Get is thread-safe.
	Get(seqName string, start, end uint64) (string, error)

	// Len returns the length of the given sequence.
	Len(seqName string) (uint64, error)

	// SeqNames returns the names of all sequences, in the order of appearance in
	// the FASTA file.
	SeqNames() []string
}

type memFasta struct {
	seqs     map[string]string
	seqNames []string
}

// New reads all the FASTA data from r into memory.
func New(r io.Reader) (Fasta, error) {
	f := &memFasta{seqs: make(map[string]string)}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(nil, bufferInitSize)
	var (
		seqName string
		seq     strings.Builder
		started bool
	)
	flush := func() {
		f.seqs[seqName] = seq.String()
		f.seqNames = append(f.seqNames, seqName)
		seq.Reset()
	}
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(line) == 0 {
			continue
		}
		if line[0] != '>' {
			if !started {
				return nil, errors.Errorf("malformed FASTA file: sequence data before the first name line")
			}
			seq.WriteString(line)
			continue
		}
		if started {
			flush()
		}
		seqName = strings.Split(line[1:], " ")[0]
		started = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "couldn't read FASTA data")
	}
	if started {
		flush()
	}
	return f, nil
}

// Get implements Fasta.Get().
func (f *memFasta) Get(seqName string, start, end uint64) (string, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found: %s", seqName)
	}
	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	if end > uint64(len(s)) {
		return "", errors.Errorf("end is past end of sequence %s: %d", seqName, len(s))
	}
	return s[start:end], nil
}

// Len implements Fasta.Len().
func (f *memFasta) Len(seqName string) (uint64, error) {
	s, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found: %s", seqName)
	}
	return uint64(len(s)), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *memFasta) SeqNames() []string {
	return f.seqNames
}
