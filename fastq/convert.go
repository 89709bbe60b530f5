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

// Package fastq converts, merges, and validates compressed read files,
// and writes the sample/barcode/artifact manifest.
package fastq

import (
	"bufio"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/bam"
	"github.com/exascience/pargo/parallel"
	gzip "github.com/klauspost/pgzip"

	"github.com/openomics/nanoprep/barcode"
)

// qualityOffset shifts raw phred scores into printable FASTQ qualities.
const qualityOffset = 33

// Convert reads the BAM container at bamPath and writes its records as
// a compressed FASTQ file at fastqPath. Records missing base qualities
// get the lowest printable quality for every base.
func Convert(bamPath, fastqPath string) (reads int, err error) {
	f, err := os.Open(bamPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	reader, err := bam.NewReader(bufio.NewReader(f), 1)
	if err != nil {
		return 0, err
	}
	defer reader.Close()
	out, err := os.Create(fastqPath)
	if err != nil {
		return 0, err
	}
	defer func() {
		nerr := out.Close()
		if err == nil {
			err = nerr
		}
	}()
	gz := gzip.NewWriter(out)
	w := bufio.NewWriter(gz)
	for {
		record, rerr := reader.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return reads, rerr
		}
		seq := record.Seq.Expand()
		qual := record.Qual
		if len(qual) != len(seq) {
			qual = make([]byte, len(seq))
		}
		w.WriteByte('@')
		w.WriteString(record.Name)
		w.WriteByte('\n')
		w.Write(seq)
		w.WriteString("\n+\n")
		for _, q := range qual {
			// 0xff marks an absent base quality in BAM.
			if q == 0xff {
				q = 0
			}
			w.WriteByte(q + qualityOffset)
		}
		if err := w.WriteByte('\n'); err != nil {
			return reads, err
		}
		reads++
	}
	if err := w.Flush(); err != nil {
		return reads, err
	}
	return reads, gz.Close()
}

// fastqName derives the converted filename from a demultiplexed
// container filename, for example run1_barcode07.bam to
// run1_barcode07.fastq.gz.
func fastqName(bamPath string) string {
	base := filepath.Base(bamPath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".fastq.gz"
}

// ConvertAll converts the demultiplexed containers for the given
// barcode numbers into compressed FASTQ files under outDir. Only
// barcodes that are both referenced by the sample sheet and present in
// the index are converted; the conversion of unreferenced barcodes is
// skipped entirely. A barcode whose output file already exists is
// reused rather than reconverted; the merge step's integrity scan
// catches damaged files. Conversions run in parallel, sharing the
// index read-only. The result maps each converted barcode number to
// its FASTQ path.
func ConvertAll(index barcode.Index, numbers []int, outDir string, threads int) (map[int]string, error) {
	var todo []int
	converted := make(map[int]string)
	for _, number := range numbers {
		source, ok := index.Lookup(number)
		if !ok {
			continue
		}
		target := filepath.Join(outDir, fastqName(source))
		converted[number] = target
		if _, err := os.Stat(target); err == nil {
			log.Printf("Reusing converted barcode %02d: %v.\n", number, target)
			continue
		}
		todo = append(todo, number)
	}
	errs := make([]error, len(todo))
	counts := make([]int, len(todo))
	parallel.Range(0, len(todo), threads, func(low, high int) {
		for i := low; i < high; i++ {
			source, _ := index.Lookup(todo[i])
			counts[i], errs[i] = Convert(source, converted[todo[i]])
		}
	})
	for i, err := range errs {
		if err != nil {
			return nil, err
		}
		log.Printf("Converted barcode %02d: %v reads.\n", todo[i], counts[i])
	}
	return converted, nil
}
