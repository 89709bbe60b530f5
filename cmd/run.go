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
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/openomics/nanoprep/pipeline"
)

// RunHelp is the help string for this command.
const RunHelp = "\nrun parameters:\n" +
	"nanoprep run root-dir reference (pod5 | bam | archive) input-path\n" +
	"[--sample-sheet file]\n" +
	"[--run-prefix name]\n" +
	"[--kit name]\n" +
	"[--model name]\n" +
	"[--tool-timeout duration]\n" +
	"[--allow-duplicate-barcodes]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--log-path path]\n"

// Run implements the nanoprep run command.
func Run() error {
	var (
		sampleSheet, runPrefix, kit, model, logPath string
		toolTimeout                                 time.Duration
		allowDuplicates, timed                      bool
		nrOfThreads                                 int
	)

	var flags flag.FlagSet

	flags.StringVar(&sampleSheet, "sample-sheet", "", "sample sheet (default root-dir/sample_sheet.csv)")
	flags.StringVar(&runPrefix, "run-prefix", "", "prefix for output files (default base name of root-dir)")
	flags.StringVar(&kit, "kit", "SQK-NBD114-24", "barcoding kit name")
	flags.StringVar(&model, "model", "sup", "basecalling model")
	flags.DurationVar(&toolTimeout, "tool-timeout", 0, "deadline for each external tool invocation")
	flags.BoolVar(&allowDuplicates, "allow-duplicate-barcodes", false, "let a later duplicate barcode file replace an earlier one")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 6, RunHelp)

	rootDir := getFilename(os.Args[2], RunHelp)
	reference := getFilename(os.Args[3], RunHelp)
	startType := getFilename(os.Args[4], RunHelp)
	inputPath := getFilename(os.Args[5], RunHelp)

	setLogOutput(logPath)

	if sampleSheet == "" {
		sampleSheet = filepath.Join(rootDir, "sample_sheet.csv")
	}
	if runPrefix == "" {
		runPrefix = filepath.Base(filepath.Clean(rootDir))
	}

	// sanity checks

	var sanityChecksFailed bool

	mode, err := pipeline.ParseStartMode(startType, inputPath)
	if err != nil {
		log.Printf("Error: %v.\n", err)
		sanityChecksFailed = true
	}
	if !checkExist("", inputPath) {
		sanityChecksFailed = true
	}
	if !checkExist("", reference) {
		sanityChecksFailed = true
	}
	if !checkExist("--sample-sheet", sampleSheet) {
		sanityChecksFailed = true
	}
	if !checkCreate("", filepath.Join(rootDir, runPrefix+"_rename.tsv")) {
		sanityChecksFailed = true
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, RunHelp)
		os.Exit(1)
	}

	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " run ", rootDir, " ", reference, " ", startType, " ", inputPath)
	fmt.Fprint(&command, " --sample-sheet ", sampleSheet)
	fmt.Fprint(&command, " --run-prefix ", runPrefix)
	fmt.Fprint(&command, " --kit ", kit)
	fmt.Fprint(&command, " --model ", model)
	if toolTimeout > 0 {
		fmt.Fprint(&command, " --tool-timeout ", toolTimeout)
	}
	if allowDuplicates {
		fmt.Fprint(&command, " --allow-duplicate-barcodes ")
	}
	if nrOfThreads > 0 {
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if timed {
		fmt.Fprint(&command, " --timed ")
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	driver := &pipeline.Driver{
		RootDir:                rootDir,
		Reference:              reference,
		SampleSheet:            sampleSheet,
		Prefix:                 runPrefix,
		Kit:                    kit,
		Threads:                nrOfThreads,
		AllowDuplicateBarcodes: allowDuplicates,
		Basecaller:             pipeline.DoradoBasecaller{Model: model, Timeout: toolTimeout},
		Demultiplexer:          pipeline.DoradoDemux{Timeout: toolTimeout},
		Extractor:              pipeline.TarExtractor{},
	}

	return timedRun(timed, "Running the read preparation pipeline.", func() error {
		return driver.Run(mode)
	})
}
