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

// Package sheet implements parsing and validation of the sample/barcode
// assignment sheet that guides the rest of the pipeline.
package sheet

import (
	"fmt"
	"regexp"
	"strconv"
)

// SampleRecord is one row of the sample sheet. Multiple records may
// share a sample name; such samples are merged from multiple barcodes.
type SampleRecord struct {
	Sample string

	// Barcode is the label as written in the sheet, for example NB07.
	Barcode string

	// Number is the numeric barcode identifier derived from Barcode.
	Number int
}

// MissingInputError indicates that a required input file or directory
// is absent or empty.
type MissingInputError struct {
	Path   string
	Reason string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("missing input %v: %v", e.Path, e.Reason)
}

// FormatError indicates that the sample sheet does not match the
// expected two-column Sample,Barcode schema.
type FormatError struct {
	Path   string
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed sample sheet %v, line %v: %v", e.Path, e.Line, e.Reason)
}

var barcodeLabel = regexp.MustCompile(`^[Nn][Bb]([0-9]+)$`)

// ParseBarcode extracts the numeric identifier from a barcode label of
// the form NB<digits>. The label is matched case-insensitively.
func ParseBarcode(label string) (int, error) {
	m := barcodeLabel.FindStringSubmatch(label)
	if m == nil {
		return 0, fmt.Errorf("barcode label %v does not match NB<digits>", label)
	}
	number, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, fmt.Errorf("barcode label %v: %v", label, err)
	}
	return number, nil
}

// Samples returns the unique sample names in first-seen order.
func Samples(records []SampleRecord) []string {
	var samples []string
	seen := make(map[string]bool)
	for _, record := range records {
		if !seen[record.Sample] {
			seen[record.Sample] = true
			samples = append(samples, record.Sample)
		}
	}
	return samples
}

// Numbers returns the unique barcode numbers in first-seen order. The
// result drives the filtered conversion step: barcodes never referenced
// by the sheet are not converted.
func Numbers(records []SampleRecord) []int {
	var numbers []int
	seen := make(map[int]bool)
	for _, record := range records {
		if !seen[record.Number] {
			seen[record.Number] = true
			numbers = append(numbers, record.Number)
		}
	}
	return numbers
}
