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

// Package pipeline sequences the preparation stages and the external
// collaborators that feed them.
package pipeline

import (
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	simple_util "github.com/liserjrqlxue/simple-util"

	"github.com/openomics/nanoprep/barcode"
	"github.com/openomics/nanoprep/fastq"
	"github.com/openomics/nanoprep/sheet"
)

// Driver owns the run directory layout and sequences the pipeline
// stages: obtain a basecalled container (per start mode), demultiplex,
// convert the referenced barcodes, resolve samples, merge, and write
// the manifest. Collaborator failures abort the run; per-sample
// problems during resolution are warnings.
type Driver struct {
	RootDir     string
	Reference   string
	SampleSheet string
	Prefix      string
	Kit         string
	Threads     int

	// AllowDuplicateBarcodes switches the barcode index to
	// last-seen-wins instead of failing on duplicate barcode files.
	AllowDuplicateBarcodes bool

	Basecaller    Basecaller
	Demultiplexer Demultiplexer
	Extractor     Extractor
}

// DemuxDir is the directory the demultiplexer writes its per-barcode
// containers into.
func (driver *Driver) DemuxDir() string {
	return filepath.Join(driver.RootDir, "demux")
}

// ConvertDir is the directory holding the per-barcode FASTQ files.
func (driver *Driver) ConvertDir() string {
	return filepath.Join(driver.RootDir, "fastq_raw")
}

// FastqDir is the directory holding the per-sample artifacts.
func (driver *Driver) FastqDir() string {
	return filepath.Join(driver.RootDir, "fastq")
}

// ManifestPath is the location of the rename table.
func (driver *Driver) ManifestPath() string {
	return filepath.Join(driver.RootDir, driver.Prefix+"_rename.tsv")
}

// step runs one heavy pipeline stage unless its completion marker is
// already present from an earlier run. Stages are not resumable halfway
// through: the marker is written only after the stage finished.
func (driver *Driver) step(state, marker string, f func() error) error {
	if simple_util.FileExists(marker) {
		log.Printf("Pipeline state %v already complete, skipping.\n", state)
		return nil
	}
	log.Printf("Pipeline state %v starting.\n", state)
	if err := f(); err != nil {
		return err
	}
	if err := ioutil.WriteFile(marker, nil, 0666); err != nil {
		return err
	}
	log.Printf("Pipeline state %v complete.\n", state)
	return nil
}

func (driver *Driver) basecall(rawDir string) (string, error) {
	dir := filepath.Join(driver.RootDir, "basecall")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	container := filepath.Join(dir, driver.Prefix+".bam")
	err := driver.step("Basecall", container+".complete", func() error {
		return driver.Basecaller.Basecall(rawDir, driver.Kit, driver.Reference, container)
	})
	return container, err
}

// Run executes the full pipeline from the given start mode. A rerun
// restarts from the start mode; finished basecall/extract/demux stages
// are skipped via their markers, while the merge stages always rerun
// and overwrite their outputs.
func (driver *Driver) Run(mode StartMode) error {
	if err := os.MkdirAll(driver.RootDir, 0700); err != nil {
		return err
	}
	// Keep a copy of the sheet next to the outputs it produced.
	if err := simple_util.CopyFile(filepath.Join(driver.RootDir, "sample_sheet.audit.csv"), driver.SampleSheet); err != nil {
		return err
	}
	log.Printf("Pipeline start type %v.\n", mode.Name())
	container, err := mode.Obtain(driver)
	if err != nil {
		return err
	}
	demuxDir := driver.DemuxDir()
	if err := os.MkdirAll(demuxDir, 0700); err != nil {
		return err
	}
	if err := driver.step("Demux", filepath.Join(demuxDir, ".complete"), func() error {
		return driver.Demultiplexer.Demux(container, demuxDir, driver.Kit)
	}); err != nil {
		return err
	}
	return driver.Finish()
}

// Finish runs the barcode-resolution and merge stages against an
// existing demultiplexed directory (states ConvertFiltered, Resolve,
// Merge, Manifest). It is the entry point for reruns that keep the
// heavy compute outputs.
func (driver *Driver) Finish() error {
	records, err := sheet.Load(driver.SampleSheet)
	if err != nil {
		return err
	}
	var index barcode.Index
	if driver.AllowDuplicateBarcodes {
		index, err = barcode.BuildIndexLastWins(driver.DemuxDir())
	} else {
		index, err = barcode.BuildIndex(driver.DemuxDir())
	}
	if err != nil {
		return err
	}
	log.Printf("Indexed %v barcode files in %v.\n", index.Len(), driver.DemuxDir())

	log.Println("Pipeline state ConvertFiltered starting.")
	if err := os.MkdirAll(driver.ConvertDir(), 0700); err != nil {
		return err
	}
	converted, err := fastq.ConvertAll(index, sheet.Numbers(records), driver.ConvertDir(), driver.Threads)
	if err != nil {
		return err
	}

	log.Println("Pipeline state Resolve starting.")
	resolved := barcode.Resolve(records, index)

	log.Println("Pipeline state Merge starting.")
	if err := os.MkdirAll(driver.FastqDir(), 0700); err != nil {
		return err
	}
	engine := fastq.Engine{OutDir: driver.FastqDir(), Prefix: driver.Prefix}
	artifacts := make(map[string]string)
	for _, sample := range resolved {
		sources := make([]string, 0, len(sample.Numbers))
		for _, number := range sample.Numbers {
			sources = append(sources, converted[number])
		}
		artifact, err := engine.Merge(sample.Sample, sources)
		if err != nil {
			// A corrupt merged artifact must never be left in place,
			// and a run that produced one stops here.
			return err
		}
		if artifact == "" {
			log.Printf("Skipped sample %v: nothing to merge.\n", sample.Sample)
			continue
		}
		artifacts[sample.Sample] = artifact
	}

	log.Println("Pipeline state Manifest starting.")
	rows, err := fastq.WriteManifest(driver.ManifestPath(), records, index, artifacts)
	if err != nil {
		return err
	}
	log.Printf("Pipeline done: %v manifest rows for %v samples in %v.\n", rows, len(artifacts), driver.ManifestPath())
	return nil
}
