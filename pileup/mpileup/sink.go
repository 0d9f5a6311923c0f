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
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/syncqueue"
)

// sink serializes output units from all workers onto one writer.  A unit is
// written whole, so units from different workers never interleave within a
// line.  Thread safe.
type sink struct {
	w  io.Writer
	ch chan *bytes.Buffer
	// Recycled unit buffers.  Get blocks while every buffer is in flight,
	// which bounds the memory held by slow output.
	free *syncqueue.LIFO
	err  errors.Once
	done chan struct{}
}

// newSink starts the writer goroutine.  nBufs bounds the number of units
// in flight.
func newSink(w io.Writer, nBufs int) *sink {
	if nBufs < 1 {
		nBufs = 1
	}
	s := &sink{
		w:    w,
		ch:   make(chan *bytes.Buffer, nBufs),
		free: syncqueue.NewLIFO(),
		done: make(chan struct{}),
	}
	for i := 0; i < nBufs; i++ {
		s.free.Put(&bytes.Buffer{})
	}
	go s.loop()
	return s
}

func (s *sink) loop() {
	defer close(s.done)
	for buf := range s.ch {
		if s.err.Err() == nil {
			_, err := s.w.Write(buf.Bytes())
			s.err.Set(err)
		}
		buf.Reset()
		s.free.Put(buf)
	}
}

// getBuf returns an empty buffer for the caller to fill.  It must be passed
// to send or putBuf.
func (s *sink) getBuf() *bytes.Buffer {
	v, ok := s.free.Get()
	if !ok {
		panic("mpileup: sink used after close")
	}
	return v.(*bytes.Buffer)
}

// putBuf returns an unused buffer.
func (s *sink) putBuf(buf *bytes.Buffer) {
	buf.Reset()
	s.free.Put(buf)
}

// send queues buf to be written as one unit.  Empty buffers are recycled
// without a write.
func (s *sink) send(buf *bytes.Buffer) {
	if buf.Len() == 0 {
		s.putBuf(buf)
		return
	}
	s.ch <- buf
}

// Err returns the first write error, if any.
func (s *sink) Err() error {
	return s.err.Err()
}

// Close waits for queued units to be written and returns the first write
// error.  No other method may be called after Close.
func (s *sink) Close() error {
	close(s.ch)
	<-s.done
	return s.err.Err()
}
