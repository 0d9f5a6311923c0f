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

// Package pileup turns coordinate-sorted alignment streams into per-position
// columns of read evidence.
package pileup

import (
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/interval"
)

// Common pileup components.

// PosType is the integer type used to represent genomic positions.
type PosType = interval.PosType

// PosTypeMax is the maximum value that can be represented by a PosType.
const PosTypeMax = interval.PosTypeMax

// These constants are the natural value for A/C/G/T in a packed 2-bit
// representation, plus a catch-all for everything else.
const (
	// BaseA represents an A base.
	BaseA byte = iota
	// BaseC represents an C base.
	BaseC
	// BaseG represents an G base.
	BaseG
	// BaseT represents an T base.
	BaseT
	// BaseX is a catch-all.
	BaseX
)

const (
	// NBase is the number of regular base types.
	NBase = 4
	// NBaseEnum counts BaseX as well as the regular base types.
	NBaseEnum = 5
)

// Seq8ToEnumTable is the .bam seq nibble -> A/C/G/T/X enum mapping.
var Seq8ToEnumTable = [...]byte{BaseX, BaseA, BaseC, BaseX, BaseG, BaseX, BaseX, BaseX, BaseT, BaseX, BaseX, BaseX, BaseX, BaseX, BaseX, BaseX}

// EnumToASCIITable is the A/C/G/T/X -> ASCII mapping, with X rendered as 'N'.
var EnumToASCIITable = [...]byte{'A', 'C', 'G', 'T', 'N'}

// Seq8ToASCIITable is the .bam seq nibble -> ASCII mapping.
var Seq8ToASCIITable = [...]byte{'=', 'A', 'C', 'M', 'G', 'R', 'S', 'V', 'T', 'W', 'Y', 'H', 'K', 'D', 'B', 'N'}

// ASCIIToSeq8Table is the inverse of Seq8ToASCIITable, accepting both cases.
// Unrecognized characters map to 15 ('N').
var ASCIIToSeq8Table [256]byte

// ASCIIToEnumTable maps A/C/G/T in either case to BaseA..BaseT, and everything
// else to BaseX.
var ASCIIToEnumTable [256]byte

func init() {
	for i := range ASCIIToSeq8Table {
		ASCIIToSeq8Table[i] = 15
		ASCIIToEnumTable[i] = BaseX
	}
	for nibble, c := range Seq8ToASCIITable {
		ASCIIToSeq8Table[c] = byte(nibble)
		ASCIIToSeq8Table[c|0x20] = byte(nibble)
	}
	for e, c := range EnumToASCIITable[:NBase] {
		ASCIIToEnumTable[c] = byte(e)
		ASCIIToEnumTable[c|0x20] = byte(e)
	}
}

// SeqNibble returns the 4-bit encoding of the pos'th base of s.
func SeqNibble(s sam.Seq, pos int) byte {
	d := s.Seq[pos>>1]
	if pos&1 == 0 {
		return byte(d) >> 4
	}
	return byte(d) & 0xf
}

// Upper returns the uppercase version of an ASCII letter.
func Upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

// Lower returns the lowercase version of an ASCII letter.
func Lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
