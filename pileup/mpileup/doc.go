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

// Package mpileup implements a multi-sample pileup over BAM files in the
// manner of "samtools mpileup".  Reads pass a filter chain, are piled up per
// input by pileup.Generator, and are regrouped per sample using the @RG
// headers.  Each column is then written as a text row or as a VCF record.
//
// Work is split into disjoint genomic parts, one worker per part.  Workers
// own their input iterators and reference handle, and share only the sample
// registry and the output sink.
package mpileup
