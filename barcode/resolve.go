// nanoprep: a tool for preparing per-sample nanopore sequencing reads.
// Copyright (c) 2024-2026 the nanoprep authors.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/openomics/nanoprep/blob/master/LICENSE.txt>.

package barcode

import (
	"log"

	"github.com/openomics/nanoprep/sheet"
)

// ResolvedSample is one declared sample together with the demultiplexed
// container files found for its barcodes. Numbers and Sources are
// parallel slices in sheet order; barcodes without a matching file are
// listed in Missing instead.
type ResolvedSample struct {
	Sample  string
	Numbers []int
	Sources []string
	Missing []string
}

// Resolve groups the sample records by sample name, preserving the
// first-seen order of samples and the sheet order of barcodes within a
// sample, and looks each barcode up in the index. A barcode with no
// matching container file is recorded as missing and the sample
// proceeds with the sources that are found; a sample may end up with
// zero sources, which the merge step skips. Duplicate (sample,barcode)
// rows contribute a single source.
//
// Resolve is a pure function over the records and the index: it never
// touches the filesystem.
func Resolve(records []sheet.SampleRecord, index Index) []ResolvedSample {
	var order []string
	bySample := make(map[string]*ResolvedSample)
	claimed := make(map[int]string)
	taken := make(map[sheet.SampleRecord]bool)
	for _, record := range records {
		resolved, ok := bySample[record.Sample]
		if !ok {
			resolved = &ResolvedSample{Sample: record.Sample}
			bySample[record.Sample] = resolved
			order = append(order, record.Sample)
		}
		if taken[record] {
			continue
		}
		taken[record] = true
		source, ok := index.Lookup(record.Number)
		if !ok {
			log.Printf("Warning: no demultiplexed file for barcode %v of sample %v.\n", record.Barcode, record.Sample)
			resolved.Missing = append(resolved.Missing, record.Barcode)
			continue
		}
		if owner, ok := claimed[record.Number]; ok && owner != record.Sample {
			log.Printf("Barcode %v is assigned to both %v and %v; the demultiplexed reads are shared.\n",
				record.Barcode, owner, record.Sample)
		} else {
			claimed[record.Number] = record.Sample
		}
		resolved.Numbers = append(resolved.Numbers, record.Number)
		resolved.Sources = append(resolved.Sources, source)
	}
	result := make([]ResolvedSample, 0, len(order))
	for _, sample := range order {
		resolved := bySample[sample]
		if len(resolved.Sources) == 0 {
			log.Printf("Warning: sample %v resolves to no sources and will produce no output.\n", sample)
		}
		result = append(result, *resolved)
	}
	return result
}
