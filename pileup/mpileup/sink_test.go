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
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	"github.com/pkg/errors"
)

func TestSinkUnitsStayWhole(t *testing.T) {
	var out bytes.Buffer
	s := newSink(&out, 3)
	const (
		nWorkers = 4
		nUnits   = 50
	)
	var wg sync.WaitGroup
	for w := 0; w < nWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for u := 0; u < nUnits; u++ {
				buf := s.getBuf()
				fmt.Fprintf(buf, "w%d\tu%d\nw%d\tu%d\n", w, u, w, u)
				s.send(buf)
			}
			// Empty units are dropped.
			s.send(s.getBuf())
		}(w)
	}
	wg.Wait()
	assert.NoError(t, s.Close())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	expect.EQ(t, len(lines), 2*nWorkers*nUnits)
	next := make([]int, nWorkers)
	for i := 0; i < len(lines); i += 2 {
		// Each unit's two lines are adjacent, and units of a worker are in order.
		expect.EQ(t, lines[i], lines[i+1])
		var w, u int
		_, err := fmt.Sscanf(lines[i], "w%d\tu%d", &w, &u)
		assert.NoError(t, err)
		expect.EQ(t, u, next[w])
		next[w]++
	}
}

type failWriter struct{ n int }

func (f *failWriter) Write(p []byte) (int, error) {
	if f.n == 0 {
		return 0, errors.New("disk full")
	}
	f.n--
	return len(p), nil
}

func TestSinkWriteError(t *testing.T) {
	s := newSink(&failWriter{n: 1}, 2)
	for i := 0; i < 5; i++ {
		buf := s.getBuf()
		buf.WriteString("x\n")
		s.send(buf)
	}
	err := s.Close()
	assert.NotNil(t, err)
	assert.HasSubstr(t, err.Error(), "disk full")
}
