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
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/grailbio/mpileup/encoding/fasta"
)

type refSlot struct {
	refID int
	seq   []byte
	ok    bool
}

// refCache holds the sequences of the last two contigs fetched by a worker:
// the one the pileup is on, and the one the read filter has moved on to.
// Thread compatible.
type refCache struct {
	fa    fasta.Fasta
	names []string
	slots [2]refSlot
	next  int
}

func newRefCache(fa fasta.Fasta, names []string) *refCache {
	c := &refCache{fa: fa, names: names}
	for i := range c.slots {
		c.slots[i].refID = -1
	}
	return c
}

// fetch returns the sequence of contig refID.  It returns false if there is
// no reference or the contig cannot be read; the failure is logged once.
func (c *refCache) fetch(refID int) ([]byte, bool) {
	if c == nil || c.fa == nil || refID < 0 {
		return nil, false
	}
	for i := range c.slots {
		if c.slots[i].refID == refID {
			return c.slots[i].seq, c.slots[i].ok
		}
	}
	slot := &c.slots[c.next]
	c.next = (c.next + 1) % len(c.slots)
	*slot = refSlot{refID: refID}
	name := c.names[refID]
	n, err := c.fa.Len(name)
	if err == nil {
		var seq string
		if seq, err = c.fa.Get(name, 0, n); err == nil {
			slot.seq = gunsafe.StringToBytes(seq)
			slot.ok = true
		}
	}
	if err != nil {
		log.Error.Printf("mpileup: reference for %s unavailable, using N: %v", name, err)
	}
	return slot.seq, slot.ok
}
