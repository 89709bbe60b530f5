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

package cmd

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/openomics/nanoprep/fastq"
)

// CheckHelp is the help string for this command.
const CheckHelp = "\ncheck parameters:\n" +
	"nanoprep check fastq-file...\n"

// Check implements the nanoprep check command: a standalone
// decompress-scan of compressed read files.
func Check() error {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, CheckHelp)
		os.Exit(1)
	}
	paths := make([]string, 0, len(os.Args)-2)
	for _, path := range os.Args[2:] {
		paths = append(paths, getFilename(path, CheckHelp))
	}
	if checkFiles(paths, os.Stdout) {
		os.Exit(1)
	}
	return nil
}

func checkFiles(paths []string, w io.Writer) (failed bool) {
	for _, path := range paths {
		reads, err := fastq.Check(path)
		if err != nil {
			log.Printf("Error: %v.\n", err)
			failed = true
			continue
		}
		fmt.Fprintf(w, "%v\t%v reads\n", path, reads)
	}
	return failed
}
