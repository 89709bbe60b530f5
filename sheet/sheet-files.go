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

package sheet

import (
	"bufio"
	"log"
	"os"
	"strings"
)

const header = "Sample,Barcode"

// Load parses the sample sheet at the given path. Records are returned
// in file order, without deduplication; callers that need unique sample
// names or barcode numbers use Samples and Numbers. Carriage returns
// are stripped, so sheets written on Windows parse the same way.
func Load(path string) (records []SampleRecord, err error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &MissingInputError{Path: path, Reason: "no such file"}
	}
	if err != nil {
		return nil, err
	}
	if info.Size() == 0 {
		return nil, &MissingInputError{Path: path, Reason: "file is empty"}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	scanner := bufio.NewScanner(f)
	pairs := make(map[SampleRecord]bool)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		if line == 1 {
			if !strings.EqualFold(text, header) {
				return nil, &FormatError{Path: path, Line: line, Reason: "header is not " + header}
			}
			continue
		}
		fields := strings.Split(text, ",")
		if len(fields) != 2 {
			return nil, &FormatError{Path: path, Line: line, Reason: "expected 2 columns"}
		}
		sample := strings.TrimSpace(fields[0])
		barcode := strings.TrimSpace(fields[1])
		if sample == "" {
			return nil, &FormatError{Path: path, Line: line, Reason: "empty sample name"}
		}
		number, perr := ParseBarcode(barcode)
		if perr != nil {
			return nil, &FormatError{Path: path, Line: line, Reason: perr.Error()}
		}
		record := SampleRecord{Sample: sample, Barcode: barcode, Number: number}
		if pairs[record] {
			log.Printf("Warning: duplicate sample sheet row %v,%v ignored for merging.\n", sample, barcode)
		}
		pairs[record] = true
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &MissingInputError{Path: path, Reason: "no sample records"}
	}
	return records, nil
}
