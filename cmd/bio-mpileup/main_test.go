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

package main

import (
	"testing"

	"github.com/grailbio/hts/sam"
	"github.com/grailbio/mpileup/pileup/call"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestParseFlagMask(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want sam.Flags
	}{
		{"0", 0},
		{"1024", sam.Duplicate},
		{"0x400", sam.Duplicate},
		{"0x3", sam.Paired | sam.ProperPair},
	} {
		got, err := parseFlagMask(tt.in)
		assert.NoError(t, err)
		expect.EQ(t, got, tt.want, tt.in)
	}
	for _, bad := range []string{"", "x", "-1", "0x10000"} {
		_, err := parseFlagMask(bad)
		expect.NotNil(t, err, bad)
	}
	expect.EQ(t, formatFlags(true, false, true), call.FormatDP|call.FormatSP)
	expect.EQ(t, formatFlags(false, false, false).FormatKeys(), "GT")
}
