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
	"github.com/grailbio/hts/sam"
)

// fakeProvider is only for unittests. It yields the given records.
type fakeProvider struct {
	header *sam.Header
	recs   []*sam.Record
}

type fakeIterator struct {
	recs    []*sam.Record
	rec     *sam.Record
	spans   []Region
	spanIdx int
}

// NewFakeProvider creates a provider that returns "header" in response to a
// GetHeader() call, and the subset of recs that overlap the requested regions
// in NewIterator calls.  recs must be sorted by coordinate.
func NewFakeProvider(header *sam.Header, recs []*sam.Record) Provider {
	return &fakeProvider{header, recs}
}

// GetHeader implements the Provider interface. It returns the header passed to
// the constructor.
func (b *fakeProvider) GetHeader() (*sam.Header, error) {
	return b.header, nil
}

// Indexed implements the Provider interface.
func (b *fakeProvider) Indexed() bool { return true }

// Close implements the Provider interface.
func (b *fakeProvider) Close() error {
	return nil
}

// NewIterator implements the Provider interface.
func (b *fakeProvider) NewIterator(regions []Region) Iterator {
	iter := &fakeIterator{recs: b.recs}
	if regions != nil {
		iter.spans = spans(regions)
		if len(iter.spans) == 0 {
			iter.recs = nil
		}
	}
	return iter
}

// Err implements the Iterator interface.
func (i *fakeIterator) Err() error {
	return nil
}

// Close implements the Iterator interface.
func (i *fakeIterator) Close() error {
	return nil
}

func (i *fakeIterator) Scan() bool {
	for len(i.recs) > 0 {
		i.rec = i.recs[0]
		i.recs = i.recs[1:]
		if i.spans == nil {
			return true
		}
		for i.spanIdx < len(i.spans) && spanBefore(i.spans[i.spanIdx], i.rec) {
			i.spanIdx++
		}
		if i.spanIdx >= len(i.spans) {
			i.recs = nil
			return false
		}
		if overlaps(i.rec, i.spans[i.spanIdx]) {
			return true
		}
	}
	return false
}

func (i *fakeIterator) Record() *sam.Record {
	// Return a copy so that the code under test cannot alter the
	// original test input data.
	copy := sam.GetFromFreePool()
	*copy = *i.rec
	return copy
}
