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
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/openomics/nanoprep/pipeline"
)

// MergeHelp is the help string for this command.
const MergeHelp = "\nmerge parameters:\n" +
	"nanoprep merge root-dir\n" +
	"[--sample-sheet file]\n" +
	"[--run-prefix name]\n" +
	"[--allow-duplicate-barcodes]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// Merge implements the nanoprep merge command. It reruns the
// barcode-resolution and merge stages against the demultiplexed
// directory of an earlier run, leaving the heavy compute outputs
// untouched.
func Merge() error {
	var (
		sampleSheet, runPrefix, logPath string
		allowDuplicates, timed          bool
		nrOfThreads                     int
	)

	var flags flag.FlagSet

	flags.StringVar(&sampleSheet, "sample-sheet", "", "sample sheet (default root-dir/sample_sheet.csv)")
	flags.StringVar(&runPrefix, "run-prefix", "", "prefix for output files (default base name of root-dir)")
	flags.BoolVar(&allowDuplicates, "allow-duplicate-barcodes", false, "let a later duplicate barcode file replace an earlier one")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 3, MergeHelp)

	rootDir := getFilename(os.Args[2], MergeHelp)

	setLogOutput(logPath)

	if sampleSheet == "" {
		sampleSheet = filepath.Join(rootDir, "sample_sheet.csv")
	}
	if runPrefix == "" {
		runPrefix = filepath.Base(filepath.Clean(rootDir))
	}

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", rootDir) {
		sanityChecksFailed = true
	}
	if !checkExist("--sample-sheet", sampleSheet) {
		sanityChecksFailed = true
	}
	driver := &pipeline.Driver{
		RootDir:                rootDir,
		SampleSheet:            sampleSheet,
		Prefix:                 runPrefix,
		Threads:                nrOfThreads,
		AllowDuplicateBarcodes: allowDuplicates,
	}
	if !checkExist("", driver.DemuxDir()) {
		log.Println("Error: No demultiplexed directory to merge from; run the full pipeline first.")
		sanityChecksFailed = true
	}
	if !checkCreate("", driver.ManifestPath()) {
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, MergeHelp)
		os.Exit(1)
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}

	log.Println("Executing command:\n", os.Args[0], " merge ", rootDir,
		" --sample-sheet ", sampleSheet, " --run-prefix ", runPrefix)

	return timedRun(timed, "Merging demultiplexed reads per sample.", func() error {
		return driver.Finish()
	})
}
