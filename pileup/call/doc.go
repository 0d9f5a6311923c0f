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

// Package call turns grouped pileup columns into multi-sample VCF records.
//
// The model is deliberately simple: per-sample allele counts weighted by
// base and mapping quality, genotypes from allele fractions, and a Fisher
// exact test for strand bias.  Model is an interface so that a real
// genotype-likelihood model can be substituted.
package call
