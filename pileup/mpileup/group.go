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
	"github.com/grailbio/mpileup/pileup"
)

// minGroupCap is the initial capacity of a sample's entry list.
const minGroupCap = 8

// grouper regroups a column's per-input entries by sample.  The lists are
// reused across columns.
type grouper struct {
	samples [][]pileup.Entry
}

func newGrouper(nSamples int) *grouper {
	return &grouper{samples: make([][]pileup.Entry, nSamples)}
}

func appendEntry(list []pileup.Entry, e pileup.Entry) []pileup.Entry {
	if len(list) == cap(list) {
		n := 2 * cap(list)
		if n < minGroupCap {
			n = minGroupCap
		}
		grown := make([]pileup.Entry, len(list), n)
		copy(grown, list)
		list = grown
	}
	return append(list, e)
}

// group fills g.samples from col.  On error, g.samples is partially filled.
func (g *grouper) group(col *pileup.Column, reg *sampleRegistry) error {
	for i := range g.samples {
		g.samples[i] = g.samples[i][:0]
	}
	for fileIdx, entries := range col.Entries {
		for _, e := range entries {
			idx, err := reg.resolve(fileIdx, readGroup(e.Rec))
			if err != nil {
				return err
			}
			g.samples[idx] = appendEntry(g.samples[idx], e)
		}
	}
	return nil
}

// depth returns the number of grouped entries.
func (g *grouper) depth() int {
	n := 0
	for _, s := range g.samples {
		n += len(s)
	}
	return n
}
