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
	"fmt"

	"github.com/grailbio/hts/sam"
)

// Region is a half-open 0-based range [Start, Limit) on one reference.
type Region struct {
	Ref   *sam.Reference
	Start int
	Limit int
}

// String returns the 1-based region string.
func (r Region) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Ref.Name(), r.Start+1, r.Limit)
}

// ProviderOpts defines options for NewProvider.
type ProviderOpts struct {
	// Index specifies the name of the BAM index file. If Index=="", it defaults
	// to path + ".bai".
	Index string
}

// Provider allows reading a BAM file in parallel. Thread safe.
type Provider interface {
	// GetHeader returns the header for the provided BAM data.  The callee
	// must not modify the returned header object.
	//
	// REQUIRES: Close has not been called.
	GetHeader() (*sam.Header, error)

	// Indexed reports whether random access by region is available.
	//
	// REQUIRES: Close has not been called.
	Indexed() bool

	// NewIterator returns an iterator over the records that overlap any of the
	// given regions.  Regions must be sorted by (reference ID, start) and must
	// not overlap each other.  A nil list yields every record in the file,
	// including unmapped ones.
	//
	// A record that overlaps two regions of the same reference is yielded once.
	//
	// REQUIRES: Close has not been called.
	NewIterator(regions []Region) Iterator

	// Close must be called exactly once. It returns any error encountered
	// by the provider, or any iterator created by the provider.
	//
	// REQUIRES: All the iterators created by NewIterator have been closed.
	Close() error
}

// Iterator iterates over sam.Records in coordinate order. Thread compatible.
type Iterator interface {
	// Scan returns where there are any records remaining in the iterator,
	// and if so, advances the iterator to the next record. If the iterator
	// reaches the end of its range, Scan() returns false.  If an error
	// occurs, Scan() returns false and the error can be retrieved by
	// calling Err().
	//
	// REQUIRES: Close has not been called.
	Scan() bool

	// Record returns the current record in the iterator. This must be
	// called only after a call to Scan() returns true.  The record is owned
	// by the caller.
	//
	// REQUIRES: Close has not been called.
	Record() *sam.Record

	// Err returns the error encoutered during iteration, or nil if no error
	// occurred.  An io.EOF error will be translated to nil.
	Err() error

	// Close must be called exactly once. It returns the value of Err().
	Close() error
}

func mergeOpts(optList []ProviderOpts) ProviderOpts {
	opts := ProviderOpts{}
	for _, o := range optList {
		if o.Index != "" {
			opts.Index = o.Index
		}
	}
	return opts
}

// NewProvider creates a Provider object that reads the BAM file at "path". The
// path "-" denotes the standard input, which can be iterated only once.
func NewProvider(path string, optList ...ProviderOpts) Provider {
	opts := mergeOpts(optList)
	return &BAMProvider{Path: path, Index: opts.Index}
}

// spans collapses sorted regions into one [start, limit) span per reference.
func spans(regions []Region) []Region {
	var out []Region
	for _, r := range regions {
		if n := len(out); n > 0 && out[n-1].Ref.ID() == r.Ref.ID() {
			if r.Limit > out[n-1].Limit {
				out[n-1].Limit = r.Limit
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// overlaps reports whether rec has an aligned base in [r.Start, r.Limit).
// Reads without reference-consuming cigar ops are treated as covering one base.
func overlaps(rec *sam.Record, r Region) bool {
	if rec.Ref == nil || rec.Ref.ID() != r.Ref.ID() {
		return false
	}
	end := rec.End()
	if end <= rec.Pos {
		end = rec.Pos + 1
	}
	return rec.Pos < r.Limit && end > r.Start
}
