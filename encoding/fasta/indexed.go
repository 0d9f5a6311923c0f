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
	"context"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// indexEntry is one line of a .fai file:
// "<name>\t<length>\t<byte offset>\t<bases per line>\t<bytes per line>".
type indexEntry struct {
	length    uint64
	offset    uint64
	lineBase  uint64
	lineWidth uint64
}

type indexedFasta struct {
	seqs     map[string]indexEntry
	seqNames []string
	reader   io.ReadSeeker

	mu        sync.Mutex
	bufOff    int64
	buf       []byte // caches file contents starting at bufOff.
	resultBuf []byte
}

func parseIndex(index io.Reader) (map[string]indexEntry, []string, error) {
	seqs := make(map[string]indexEntry)
	var names []string
	scanner := bufio.NewScanner(index)
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		fields := bytes.Split(scanner.Bytes(), []byte{'\t'})
		if len(fields) == 1 && len(fields[0]) == 0 {
			continue
		}
		if len(fields) < 5 {
			return nil, nil, errors.Errorf("invalid index line %d: %s", lineIdx, scanner.Text())
		}
		var (
			ent  indexEntry
			vals [4]uint64
		)
		for i := range vals {
			v, err := strconv.ParseUint(string(fields[i+1]), 10, 64)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "invalid index line %d", lineIdx)
			}
			vals[i] = v
		}
		ent.length, ent.offset, ent.lineBase, ent.lineWidth = vals[0], vals[1], vals[2], vals[3]
		if ent.length > 0 && (ent.lineBase == 0 || ent.lineWidth < ent.lineBase) {
			return nil, nil, errors.Errorf("invalid line geometry on index line %d: %s", lineIdx, scanner.Text())
		}
		name := string(fields[0])
		seqs[name] = ent
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "couldn't read FASTA index")
	}
	sort.SliceStable(names, func(i, j int) bool {
		return seqs[names[i]].offset < seqs[names[j]].offset
	})
	return seqs, names, nil
}

// NewIndexed creates a Fasta that performs random lookups through the given
// .fai index without reading the sequence data into memory.
func NewIndexed(fasta io.ReadSeeker, index io.Reader) (Fasta, error) {
	seqs, names, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	return &indexedFasta{seqs: seqs, seqNames: names, reader: fasta}, nil
}

// FaiToReferenceLengths reads a .fai index and returns a map of sequence name
// to length.  The FASTA data itself is not needed.
func FaiToReferenceLengths(index io.Reader) (map[string]uint64, error) {
	seqs, _, err := parseIndex(index)
	if err != nil {
		return nil, err
	}
	lens := make(map[string]uint64, len(seqs))
	for name, ent := range seqs {
		lens[name] = ent.length
	}
	return lens, nil
}

// Len implements Fasta.Len().
func (f *indexedFasta) Len(seqName string) (uint64, error) {
	ent, ok := f.seqs[seqName]
	if !ok {
		return 0, errors.Errorf("sequence not found in index: %s", seqName)
	}
	return ent.length, nil
}

// read returns the file range [off, off+n).
//
// REQUIRES: f.mu is held.
func (f *indexedFasta) read(off int64, n int) ([]byte, error) {
	limit := off + int64(n)
	if off >= f.bufOff && limit <= f.bufOff+int64(len(f.buf)) {
		return f.buf[off-f.bufOff : limit-f.bufOff], nil
	}
	if newOff, err := f.reader.Seek(off, io.SeekStart); err != nil || newOff != off {
		return nil, errors.Errorf("failed to seek to offset %d: %d, %v", off, newOff, err)
	}
	bufSize := 8192
	if bufSize < n {
		bufSize = n
	}
	resizeBuf(&f.buf, bufSize)
	nRead, err := io.ReadFull(f.reader, f.buf)
	if nRead < n {
		return nil, errors.Errorf("unexpected end of file at offset %d (bad index? file doesn't end in newline?)", off+int64(nRead))
	}
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	f.bufOff = off
	f.buf = f.buf[:nRead]
	return f.buf[:n], nil
}

func resizeBuf(buf *[]byte, n int) {
	if cap(*buf) < n {
		*buf = make([]byte, n)
	} else {
		*buf = (*buf)[:n]
	}
}

// Get implements Fasta.Get().
func (f *indexedFasta) Get(seqName string, start, end uint64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if end <= start {
		return "", errors.Errorf("start must be less than end")
	}
	ent, ok := f.seqs[seqName]
	if !ok {
		return "", errors.Errorf("sequence not found in index: %s", seqName)
	}
	if end > ent.length {
		return "", errors.Errorf("end is past end of sequence %s: %d", seqName, ent.length)
	}

	// Byte offset of start, allowing for the newline characters before it.
	charsPerNewline := ent.lineWidth - ent.lineBase
	offset := ent.offset + start + charsPerNewline*(start/ent.lineBase)

	firstLineBases := ent.lineBase - (start % ent.lineBase)
	newlines := uint64(0)
	if end-start > firstLineBases {
		newlines = 1 + (end-start-firstLineBases)/ent.lineBase
	}
	// The last line of a sequence may be missing its newline, so never ask for
	// more bytes than the sequence occupies.
	span := end - start + newlines*charsPerNewline
	if last := ent.offset + ent.length + ((ent.length-1)/ent.lineBase)*charsPerNewline; offset+span > last {
		span = last - offset
	}
	buffer, err := f.read(int64(offset), int(span))
	if err != nil {
		return "", err
	}

	resizeBuf(&f.resultBuf, int(end-start))
	linePos := (offset - ent.offset) % ent.lineWidth
	n := 0
	for _, c := range buffer {
		if linePos < ent.lineBase && n < len(f.resultBuf) {
			f.resultBuf[n] = c
			n++
		}
		linePos++
		if linePos == ent.lineWidth {
			linePos = 0
		}
	}
	return string(f.resultBuf[:n]), nil
}

// SeqNames implements Fasta.SeqNames().
func (f *indexedFasta) SeqNames() []string {
	return f.seqNames
}

// LoadIndex returns the contents of path + ".fai".  If that file does not
// exist, the index is generated in memory by scanning the FASTA file once.
func LoadIndex(ctx context.Context, path string) (index []byte, err error) {
	faiPath := path + ".fai"
	if _, statErr := file.Stat(ctx, faiPath); statErr == nil {
		var in file.File
		if in, err = file.Open(ctx, faiPath); err != nil {
			return nil, err
		}
		defer file.CloseAndReport(ctx, in, &err)
		var buf bytes.Buffer
		if _, err = buf.ReadFrom(in.Reader(ctx)); err != nil {
			return nil, errors.Wrapf(err, "read %s", faiPath)
		}
		return buf.Bytes(), nil
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var buf bytes.Buffer
	if err = GenerateIndex(&buf, in.Reader(ctx)); err != nil {
		return nil, errors.Wrapf(err, "index %s", path)
	}
	log.Printf("fasta: %s has no index, generated one in memory", path)
	return buf.Bytes(), nil
}

// File is an indexed Fasta backed by an open file handle.  Each File owns its
// handle and read buffers, so concurrent users should each Open their own.
type File struct {
	Fasta
	in file.File
}

// Open opens the FASTA file at path for random access through index, which is
// usually the result of LoadIndex.
func Open(ctx context.Context, path string, index []byte) (*File, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	fa, err := NewIndexed(in.Reader(ctx), bytes.NewReader(index))
	if err != nil {
		_ = in.Close(ctx)
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &File{Fasta: fa, in: in}, nil
}

// Close releases the underlying file handle.
func (f *File) Close(ctx context.Context) error {
	return f.in.Close(ctx)
}
