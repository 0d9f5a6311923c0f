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

/*
bio-mpileup piles up the reads of one or more coordinate-sorted BAM files and
reports, for each covered reference position, either one text row per
position with per-file base strings, or one VCF record per position with a
genotype call per sample.  It follows "samtools mpileup" (0.1.19) closely:
the flags, the read filters and the text format are the same.

Samples are identified by the SM field of the @RG header lines; reads are
attributed through their RG aux tag.  A file without read groups is one sample
named after its path.

With -t N, the genome (or the -r/-l scope) is split into N disjoint parts that
are processed in parallel.  Rows of one part are in coordinate order, but rows
of different parts are interleaved.

Sample usage:
bio-mpileup -f ref.fa -r chr2:1,000,000-2,000,000 -t 8 a.bam b.bam
bio-mpileup -f ref.fa -l targets.bed -g -D -V -out calls.vcf.gz -b bams.txt
*/
package main
