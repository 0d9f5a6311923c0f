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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/hts/bgzf"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/encoding/bamprovider"
	"github.com/grailbio/mpileup/encoding/fasta"
	"github.com/grailbio/mpileup/interval"
)

// sinkBufsPerThread bounds the output units in flight per worker.
const sinkBufsPerThread = 16

// Run piles up the BAM files at paths and writes text rows or VCF records to
// out.  A path of "-" reads standard input; it must then be the only input,
// and neither a region nor more than one thread may be requested.
func Run(ctx context.Context, opts Opts, paths []string, out io.Writer) (err error) {
	if len(paths) == 0 {
		return errors.E(errors.Invalid, "mpileup: no input files")
	}
	for _, path := range paths {
		if path == bamprovider.StdinPath && (len(paths) > 1 || opts.Threads > 1 || opts.Region != "") {
			return errors.E(errors.Precondition,
				"mpileup: standard input can only be used alone, with one thread and no region")
		}
	}

	providers := make([]bamprovider.Provider, len(paths))
	for i, path := range paths {
		providers[i] = bamprovider.NewProvider(path)
	}
	defer func() {
		for _, p := range providers {
			if e := p.Close(); e != nil && err == nil {
				err = e
			}
		}
	}()
	headers := make([]*sam.Header, len(paths))
	for i, p := range providers {
		if headers[i], err = p.GetHeader(); err != nil {
			return errors.E(fmt.Sprintf("mpileup: read header of %s", paths[i]), err)
		}
	}
	if err = checkHeaders(headers, paths); err != nil {
		return err
	}
	header := headers[0]

	r := &runState{
		providers: providers,
		header:    header,
		reg:       newSampleRegistry(headers, paths, &opts),
	}
	if r.opts, err = opts.validate(r.reg.nSamples()); err != nil {
		return err
	}
	log.Printf("mpileup: %d sample(s) in %d input file(s)", r.reg.nSamples(), len(paths))
	for _, ref := range header.Refs() {
		r.refNames = append(r.refNames, ref.Name())
	}
	if opts.ExcludeRGFile != "" {
		if r.excludeRG, err = readExcludeRG(ctx, opts.ExcludeRGFile); err != nil {
			return err
		}
	}
	if opts.RefPath != "" {
		if r.faIndex, err = fasta.LoadIndex(ctx, opts.RefPath); err != nil {
			return errors.E(fmt.Sprintf("mpileup: load reference %s", opts.RefPath), err)
		}
	}
	var bed *interval.BEDUnion
	if opts.BEDFile != "" {
		if bed, err = interval.NewBEDUnionFromPath(opts.BEDFile, interval.NewBEDOpts{SAMHeader: header}); err != nil {
			return errors.E(errors.Invalid, fmt.Sprintf("mpileup: read %s", opts.BEDFile), err)
		}
	}
	if opts.Region != "" {
		for i, p := range providers {
			if !p.Indexed() {
				return errors.E(errors.NotExist, fmt.Sprintf("mpileup: %s is not indexed, needed for region %s", paths[i], opts.Region))
			}
		}
	}
	s, err := scope(header, opts.Region, bed)
	if err != nil {
		return err
	}
	parts := partition(header, s, r.opts.Threads)
	log.Printf("mpileup: %d part(s) over %d thread(s)", len(parts), r.opts.Threads)

	var (
		w    io.Writer
		bgzw *bgzf.Writer
		bufw *bufio.Writer
	)
	if r.opts.Call && !r.opts.Uncompressed {
		bgzw = bgzf.NewWriter(out, r.opts.Threads)
		w = bgzw
	} else {
		bufw = bufio.NewWriter(out)
		w = bufw
	}
	r.sink = newSink(w, sinkBufsPerThread*r.opts.Threads)
	if r.opts.Call {
		buf := r.sink.getBuf()
		writeVCFHeader(buf, header, r.opts.RefPath, r.reg.names, r.opts.FormatFields)
		r.sink.send(buf)
	}

	err = runWorkers(ctx, r, parts)
	if e := r.sink.Close(); e != nil && err == nil {
		err = e
	}
	if bgzw != nil {
		if e := bgzw.Close(); e != nil && err == nil {
			err = e
		}
	}
	if bufw != nil {
		if e := bufw.Flush(); e != nil && err == nil {
			err = e
		}
	}
	if err == nil {
		log.Printf("mpileup: done")
	}
	return err
}

// runWorkers runs one worker per part.  The first error cancels the others.
func runWorkers(ctx context.Context, r *runState, parts [][]interval.Entry) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return traverse.Each(len(parts), func(i int) (err error) {
		defer func() {
			if err != nil {
				cancel()
			}
		}()
		w, err := newWorker(ctx, r, i, parts[i])
		if err != nil {
			return err
		}
		defer func() {
			if e := w.close(ctx); e != nil && err == nil {
				err = e
			}
		}()
		return w.run(ctx)
	})
}

// checkHeaders verifies that every input lists the same references in the
// same order.
func checkHeaders(headers []*sam.Header, paths []string) error {
	refs0 := headers[0].Refs()
	for i := 1; i < len(headers); i++ {
		refs := headers[i].Refs()
		if len(refs) != len(refs0) {
			return errors.E(errors.Invalid, fmt.Sprintf(
				"mpileup: %s has %d references, %s has %d", paths[i], len(refs), paths[0], len(refs0)))
		}
		for j, ref := range refs {
			if ref.Name() != refs0[j].Name() || ref.Len() != refs0[j].Len() {
				return errors.E(errors.Invalid, fmt.Sprintf(
					"mpileup: reference %d differs between %s (%s) and %s (%s)",
					j, paths[0], refs0[j].Name(), paths[i], ref.Name()))
			}
		}
	}
	return nil
}

// readExcludeRG reads a list of read-group IDs, one per line.  Only the first
// whitespace-separated word of a line is used.
func readExcludeRG(ctx context.Context, path string) (rgs map[string]struct{}, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	rgs = map[string]struct{}{}
	scanner := bufio.NewScanner(in.Reader(ctx))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 0 {
			rgs[fields[0]] = struct{}{}
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, err
	}
	log.Printf("mpileup: %d read group(s) excluded", len(rgs))
	return rgs, nil
}

// ParseBAMList reads a file that lists one input path per line, as given
// to the -b flag.
func ParseBAMList(ctx context.Context, path string) (paths []string, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var data bytes.Buffer
	if _, err = data.ReadFrom(in.Reader(ctx)); err != nil {
		return nil, err
	}
	for _, line := range strings.Split(data.String(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			paths = append(paths, line)
		}
	}
	return paths, nil
}
