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
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

// WriteBAM writes recs, which must be coordinate sorted, to a new BAM file at
// path. If withIndex is set, path+".bai" is written too.
func WriteBAM(ctx context.Context, path string, header *sam.Header, recs []*sam.Record, withIndex bool) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	w, err := bam.NewWriter(out.Writer(ctx), header, 1)
	if err != nil {
		out.Close(ctx) // nolint: errcheck
		return err
	}
	for _, rec := range recs {
		if err = w.Write(rec); err != nil {
			break
		}
	}
	if cerr := w.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := out.Close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil || !withIndex {
		return err
	}
	return IndexBAM(ctx, path, path+".bai")
}

// IndexBAM reads the coordinate-sorted BAM file at bamPath and writes its .bai
// index to baiPath.
func IndexBAM(ctx context.Context, bamPath, baiPath string) (err error) {
	in, err := file.Open(ctx, bamPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return errors.E(err, "indexing", bamPath)
	}
	defer func() {
		if cerr := reader.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	var idx bam.Index
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.E(err, "indexing", bamPath)
		}
		if err := idx.Add(rec, reader.LastChunk()); err != nil {
			return errors.E(err, "indexing", bamPath, rec.Name)
		}
	}
	out, err := file.Create(ctx, baiPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return bam.WriteIndex(out.Writer(ctx), &idx)
}
