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

package fastq

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/openomics/nanoprep/barcode"
	"github.com/openomics/nanoprep/sheet"
)

// ManifestHeader is the header row of the rename table.
const ManifestHeader = "Sample\tBarcode\tBarcodeNum\tMergedFASTQ"

// WriteManifest emits the tab-separated rename table: one row per
// unique resolved (sample,barcode) sheet pair whose sample has an
// artifact. Barcodes that never resolved to a demultiplexed file get no
// row, since their reads are not in the artifact. Every emitted
// artifact path is verified to exist on disk at write time; pairs whose
// artifact is missing are skipped with a warning, so the manifest never
// points at files that were not produced. WriteManifest returns the
// number of rows written after the header.
func WriteManifest(path string, records []sheet.SampleRecord, index barcode.Index, artifacts map[string]string) (rows int, err error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, ManifestHeader)
	written := make(map[sheet.SampleRecord]bool)
	for _, record := range records {
		if written[record] {
			continue
		}
		written[record] = true
		if _, ok := index.Lookup(record.Number); !ok {
			continue
		}
		artifact, ok := artifacts[record.Sample]
		if !ok {
			log.Printf("Warning: no artifact for sample %v; omitting barcode %v from the manifest.\n",
				record.Sample, record.Barcode)
			continue
		}
		if _, serr := os.Stat(artifact); serr != nil {
			log.Printf("Warning: artifact %v for sample %v is not on disk; omitting it from the manifest.\n",
				artifact, record.Sample)
			continue
		}
		fmt.Fprintf(w, "%v\t%v\t%02d\t%v\n", record.Sample, record.Barcode, record.Number, artifact)
		rows++
	}
	return rows, w.Flush()
}
