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
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/hts/sam"
)

var (
	rgTag = sam.NewTag("RG")
	smTag = sam.NewTag("SM")
	plTag = sam.NewTag("PL")
)

// readGroup returns the RG aux tag of rec, or "".
func readGroup(rec *sam.Record) string {
	aux := rec.AuxFields.Get(rgTag)
	if aux == nil {
		return ""
	}
	if s, ok := aux.Value().(string); ok {
		return s
	}
	return ""
}

// sampleRegistry maps (input file, read group) to sample indexes.  It is
// immutable after construction.
type sampleRegistry struct {
	paths []string
	// Sample names in index order.
	names  []string
	byName map[string]int
	// byRG[i] maps read-group IDs of input i to samples.
	byRG []map[string]int
	// defaults[i] is the sample of reads of input i that cannot be resolved
	// by read group, or -1.
	defaults []int
	ignoreRG bool
	// Read groups whose platform is not allowed for indel calling.
	indelExcluded map[string]struct{}
}

func (r *sampleRegistry) add(name string) int {
	if idx, ok := r.byName[name]; ok {
		return idx
	}
	idx := len(r.names)
	r.names = append(r.names, name)
	r.byName[name] = idx
	return idx
}

func platformAllowed(platforms []string, pl string) bool {
	for _, p := range platforms {
		if strings.EqualFold(p, pl) {
			return true
		}
	}
	return false
}

// newSampleRegistry builds the registry from the headers of the inputs.
// Samples are numbered in order of first appearance.
func newSampleRegistry(headers []*sam.Header, paths []string, opts *Opts) *sampleRegistry {
	r := &sampleRegistry{
		paths:         paths,
		byName:        map[string]int{},
		byRG:          make([]map[string]int, len(headers)),
		defaults:      make([]int, len(headers)),
		ignoreRG:      opts.IgnoreRG,
		indelExcluded: map[string]struct{}{},
	}
	var platforms []string
	if opts.Platforms != "" {
		platforms = strings.Split(opts.Platforms, ",")
	}
	for i, h := range headers {
		r.byRG[i] = map[string]int{}
		r.defaults[i] = -1
		n := 0
		lastSample := -1
		for _, rg := range h.RGs() {
			if platforms != nil && !platformAllowed(platforms, rg.Get(plTag)) {
				r.indelExcluded[rg.Name()] = struct{}{}
			}
			sm := rg.Get(smTag)
			if sm == "" || opts.IgnoreRG {
				continue
			}
			lastSample = r.add(sm)
			r.byRG[i][rg.Name()] = lastSample
			n++
		}
		switch n {
		case 0:
			r.defaults[i] = r.add(paths[i])
		case 1:
			r.defaults[i] = lastSample
		}
	}
	return r
}

// nSamples returns the number of distinct samples.
func (r *sampleRegistry) nSamples() int { return len(r.names) }

// resolve returns the sample of a read in input fileIdx with read group rg
// ("" if the read has none).
func (r *sampleRegistry) resolve(fileIdx int, rg string) (int, error) {
	if !r.ignoreRG && rg != "" {
		if idx, ok := r.byRG[fileIdx][rg]; ok {
			return idx, nil
		}
	}
	if idx := r.defaults[fileIdx]; idx >= 0 {
		return idx, nil
	}
	return -1, errors.E(errors.Invalid, fmt.Sprintf(
		"read group %q used in file %q but absent from the header, or an alignment is missing its read group",
		rg, r.paths[fileIdx]))
}

// indelExcludedRG reports whether reads of read group rg are ignored for
// indel calling.
func (r *sampleRegistry) indelExcludedRG(rec *sam.Record) bool {
	if len(r.indelExcluded) == 0 {
		return false
	}
	_, ok := r.indelExcluded[readGroup(rec)]
	return ok
}
