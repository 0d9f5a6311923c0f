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

// Package bamprovider provides utilities for scanning a coordinate-sorted BAM
// file from several goroutines at once.
//
// The Provider is an interface for reading a BAM file restricted to a list of
// genomic regions. Each NewIterator call opens an independent reader, so
// iterators over disjoint regions can be consumed concurrently.
package bamprovider
