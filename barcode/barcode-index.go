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

// Package barcode maps demultiplexed per-barcode container files to the
// samples that claim them.
package barcode

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/willf/bitset"
)

// Index is a lookup from barcode number to the demultiplexed container
// file for that barcode. It is built once, before any sample is
// resolved, and never mutated afterwards, so it is safe to share across
// concurrent readers.
type Index struct {
	Dir   string
	files map[int]string
}

// DuplicateBarcodeError indicates that two files in the demultiplexed
// directory carry the same barcode number. Silently letting one replace
// the other would merge the wrong reads into a sample, so the index
// refuses to guess unless the caller opts in to last-seen-wins.
type DuplicateBarcodeError struct {
	Number        int
	First, Second string
}

func (e *DuplicateBarcodeError) Error() string {
	return fmt.Sprintf("barcode %02d appears in both %v and %v", e.Number, e.First, e.Second)
}

var demuxName = regexp.MustCompile(`_barcode([0-9]+)\.bam$`)

// BuildIndex scans the immediate entries of dir for files matching the
// *_barcode<digits>.bam naming convention. Files that do not match are
// ignored. A duplicate barcode number fails with DuplicateBarcodeError.
func BuildIndex(dir string) (Index, error) {
	return buildIndex(dir, false)
}

// BuildIndexLastWins is BuildIndex, except that on a duplicate barcode
// number the file seen later in directory order replaces the earlier.
func BuildIndexLastWins(dir string) (Index, error) {
	return buildIndex(dir, true)
}

func buildIndex(dir string, lastWins bool) (Index, error) {
	index := Index{Dir: dir, files: make(map[int]string)}
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return index, err
	}
	seen := bitset.New(uint(len(entries)))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := demuxName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		number, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if seen.Test(uint(number)) && !lastWins {
			return index, &DuplicateBarcodeError{Number: number, First: index.files[number], Second: path}
		}
		seen.Set(uint(number))
		index.files[number] = path
	}
	return index, nil
}

// Lookup returns the container file for a barcode number.
func (index Index) Lookup(number int) (string, bool) {
	path, ok := index.files[number]
	return path, ok
}

// Len returns the number of indexed barcodes.
func (index Index) Len() int {
	return len(index.files)
}
