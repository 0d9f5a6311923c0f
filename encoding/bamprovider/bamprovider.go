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

package bamprovider

import (
	"io"
	"os"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/bgzf/index"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// StdinPath is the path that makes BAMProvider read the standard input.
const StdinPath = "-"

// BAMProvider implements Provider for BAM files.  Both BAM and the index
// filenames are allowed to be S3 URLs, in which case the data will be read from
// S3. Otherwise the data will be read from the local filesystem.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	// Index is the pathname of *.bam.bai file. If "", Path + ".bai"
	Index string
	err   errors.Once

	mu        sync.Mutex
	nActive   int
	freeIters []*bamIterator
	header    *sam.Header
	indexed   *bool
	// Reader over os.Stdin, handed to the first iterator only.
	stdin     *bam.Reader
	stdinUsed bool
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File
	reader   *bam.Reader
	index    *bam.Index
	// Offset of the first record in the file.
	firstRecord bgzf.Offset
	// One span per reference, in file order. nil means read everything.
	spans   []Region
	spanIdx int
	// Whether the reader has been positioned at the start of spans[spanIdx].
	seeked bool

	active bool
	err    error
	next   *sam.Record
}

func (b *BAMProvider) indexPath() string {
	index := b.Index
	if index == "" {
		index = b.Path + ".bai"
	}
	return index
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	if b.Path == StdinPath {
		reader, err := bam.NewReader(os.Stdin, 1)
		if err != nil {
			err = errors.E(err, "reading BAM header from stdin")
			b.err.Set(err)
			return nil, err
		}
		b.stdin = reader
		b.header = reader.Header()
		return b.header, nil
	}

	ctx := vcontext.Background()
	reader, err := file.Open(ctx, b.Path)
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	defer reader.Close(ctx)
	bamReader, err := bam.NewReader(reader.Reader(ctx), 1)
	if err != nil {
		err = errors.E(err, "reading BAM header", b.Path)
		b.err.Set(err)
		return nil, err
	}
	defer bamReader.Close()
	b.header = bamReader.Header()
	return b.header, nil
}

// Indexed implements the Provider interface. A BAM file is indexed when its
// index file exists.
func (b *BAMProvider) Indexed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexed == nil {
		ok := false
		if b.Path != StdinPath {
			_, err := file.Stat(vcontext.Background(), b.indexPath())
			ok = err == nil
		}
		b.indexed = &ok
	}
	return *b.indexed
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b)
	}
	for _, iter := range b.freeIters {
		iter.internalClose()
	}
	b.freeIters = nil
	if b.stdin != nil && !b.stdinUsed {
		b.err.Set(b.stdin.Close())
		b.stdin = nil
	}
	return b.err.Err()
}

func (b *BAMProvider) freeIterator(i *bamIterator) {
	if !i.active {
		vlog.Fatal(i)
	}
	i.active = false
	if i.Err() != nil || i.in == nil {
		// The iter may be invalid, or it reads stdin. Don't reuse it.
		i.internalClose() // Will set b.err
		i = nil
	}
	b.mu.Lock()
	if i != nil {
		b.freeIters = append(b.freeIters, i)
	}
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b)
	}
	b.mu.Unlock()
}

// Return an unused iterator. If b.freeIters is nonempty, this function returns
// one from freeIters. Else, it opens the BAM file, creates a BAM reader and
// returns an iterator containing them. On error, returns an iterator with
// non-nil err field.
func (b *BAMProvider) allocateIterator(wantIndex bool) *bamIterator {
	b.mu.Lock()
	b.nActive++
	if len(b.freeIters) > 0 && (!wantIndex || b.freeIters[len(b.freeIters)-1].index != nil) {
		iter := b.freeIters[len(b.freeIters)-1]
		iter.active = true
		iter.err = nil
		iter.next = nil
		b.freeIters = b.freeIters[:len(b.freeIters)-1]
		b.mu.Unlock()
		return iter
	}
	if b.Path == StdinPath {
		defer b.mu.Unlock()
		iter := &bamIterator{provider: b, active: true}
		switch {
		case b.stdinUsed:
			iter.err = errors.E(errors.Precondition, "the standard input can be read only once")
		case b.stdin == nil:
			iter.err = errors.E(errors.Precondition, "GetHeader must be called before reading the standard input")
		default:
			iter.reader = b.stdin
			b.stdinUsed = true
		}
		return iter
	}
	b.mu.Unlock()

	iter := bamIterator{
		provider: b,
		active:   true,
	}
	ctx := vcontext.Background()
	if iter.in, iter.err = file.Open(ctx, b.Path); iter.err != nil {
		return &iter
	}
	if wantIndex {
		var indexIn file.File
		if indexIn, iter.err = file.Open(ctx, b.indexPath()); iter.err != nil {
			return &iter
		}
		defer indexIn.Close(ctx)
		if iter.index, iter.err = bam.ReadIndex(indexIn.Reader(ctx)); iter.err != nil {
			return &iter
		}
	}
	if iter.reader, iter.err = bam.NewReader(iter.in.Reader(ctx), 1); iter.err != nil {
		return &iter
	}
	iter.firstRecord = iter.reader.LastChunk().End
	return &iter
}

// NewIterator implements the Provider interface.  Regions are read through
// the index when there is one; otherwise the file is scanned from the start
// and records outside the regions are skipped.
func (b *BAMProvider) NewIterator(regions []Region) Iterator {
	for i := 1; i < len(regions); i++ {
		prev, cur := regions[i-1], regions[i]
		if prev.Ref.ID() > cur.Ref.ID() || (prev.Ref.ID() == cur.Ref.ID() && prev.Limit > cur.Start) {
			return NewErrorIterator(errors.E(errors.Invalid, "bamprovider: regions out of order", prev.String(), cur.String()))
		}
	}
	useIndex := regions != nil && b.Indexed()
	iter := b.allocateIterator(useIndex)
	if iter.err != nil {
		return iter
	}
	iter.reset(regions, useIndex)
	return iter
}

func (i *bamIterator) reset(regions []Region, useIndex bool) {
	i.spans = nil
	i.spanIdx = 0
	i.seeked = false
	if regions != nil {
		i.spans = spans(regions)
		if len(i.spans) == 0 {
			i.err = io.EOF
			return
		}
	}
	if !useIndex {
		i.index = nil
		if i.in != nil {
			// A recycled reader may be positioned anywhere.
			i.err = i.reader.Seek(i.firstRecord)
		}
		i.seeked = true
	}
}

// seekSpan positions the reader at the first chunk of the next span that has
// any reads, per the index.
func (i *bamIterator) seekSpan() bool {
	for i.spanIdx < len(i.spans) {
		s := i.spans[i.spanIdx]
		chunks, err := i.index.Chunks(s.Ref, s.Start, s.Limit)
		if err == index.ErrInvalid || (err == nil && len(chunks) == 0) {
			// No reads on this span.
			i.spanIdx++
			continue
		}
		if err != nil {
			i.err = err
			return false
		}
		if i.err = i.reader.Seek(chunks[0].Begin); i.err != nil {
			return false
		}
		i.seeked = true
		return true
	}
	i.err = io.EOF
	return false
}

func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
	for i.err == nil {
		if !i.seeked && !i.seekSpan() {
			return false
		}
		i.next, i.err = i.reader.Read()
		if i.err != nil {
			return false
		}
		if i.spans == nil {
			return true
		}
		// Skip spans the reader has moved past.
		for i.spanIdx < len(i.spans) && spanBefore(i.spans[i.spanIdx], i.next) {
			i.spanIdx++
			if i.index != nil {
				i.seeked = false
				break
			}
		}
		if i.spanIdx >= len(i.spans) {
			i.err = io.EOF
			return false
		}
		if !i.seeked {
			continue
		}
		if overlaps(i.next, i.spans[i.spanIdx]) {
			return true
		}
	}
	return false
}

// spanBefore reports whether every read at or after rec's coordinate lies past s.
func spanBefore(s Region, rec *sam.Record) bool {
	if rec.Ref == nil || rec.Ref.ID() < 0 {
		return true
	}
	return rec.Ref.ID() > s.Ref.ID() || (rec.Ref.ID() == s.Ref.ID() && rec.Pos >= s.Limit)
}

func (i *bamIterator) Record() *sam.Record {
	return i.next
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	err := i.Err()
	i.provider.freeIterator(i)
	return err
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
