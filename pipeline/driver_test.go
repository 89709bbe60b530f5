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

package pipeline

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"github.com/openomics/nanoprep/fastq"
	"github.com/openomics/nanoprep/sheet"
)

func writeBam(t *testing.T, path string, names ...string) {
	t.Helper()
	header, err := sam.NewHeader(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := bam.NewWriter(f, header, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		record, err := sam.NewRecord(name, nil, nil, -1, -1, 0, 0, nil, []byte("ACGT"), []byte{30, 30, 30, 30}, nil)
		if err != nil {
			t.Fatal(err)
		}
		record.Flags |= sam.Unmapped
		if err := w.Write(record); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

type fakeBasecaller struct {
	calls  int
	rawDir string
}

func (b *fakeBasecaller) Basecall(rawDir, kit, reference, outContainer string) error {
	b.calls++
	b.rawDir = rawDir
	return ioutil.WriteFile(outContainer, []byte("basecalled"), 0666)
}

type fakeDemux struct {
	t     *testing.T
	calls int
}

func (d *fakeDemux) Demux(inContainer, outDir, kit string) error {
	d.calls++
	writeBam(d.t, filepath.Join(outDir, "calls_barcode01.bam"), "read1")
	writeBam(d.t, filepath.Join(outDir, "calls_barcode02.bam"), "read2", "read3")
	writeBam(d.t, filepath.Join(outDir, "calls_barcode03.bam"), "read4")
	return nil
}

type fakeExtractor struct {
	calls int
}

func (e *fakeExtractor) Extract(archivePath, destDir string) error {
	e.calls++
	inner := filepath.Join(destDir, "flowcell")
	if err := os.MkdirAll(inner, 0700); err != nil {
		return err
	}
	return ioutil.WriteFile(filepath.Join(inner, "one.pod5"), []byte("signal"), 0666)
}

func newTestDriver(t *testing.T) (*Driver, *fakeBasecaller, *fakeDemux) {
	t.Helper()
	root := t.TempDir()
	contents := "Sample,Barcode\nSampleX,NB01\nSampleY,NB02\nSampleY,NB03\nSampleZ,NB99\n"
	sheetPath := filepath.Join(root, "sample_sheet.csv")
	if err := ioutil.WriteFile(sheetPath, []byte(contents), 0666); err != nil {
		t.Fatal(err)
	}
	basecaller := &fakeBasecaller{}
	demux := &fakeDemux{t: t}
	driver := &Driver{
		RootDir:       root,
		SampleSheet:   sheetPath,
		Prefix:        "run",
		Kit:           "KIT",
		Basecaller:    basecaller,
		Demultiplexer: demux,
	}
	return driver, basecaller, demux
}

func TestDriverRunFromPod5(t *testing.T) {
	driver, basecaller, demux := newTestDriver(t)
	rawDir := t.TempDir()
	if err := driver.Run(Pod5Start{Dir: rawDir}); err != nil {
		t.Fatal(err)
	}
	if basecaller.calls != 1 || basecaller.rawDir != rawDir {
		t.Errorf("basecaller invoked %v times with %v", basecaller.calls, basecaller.rawDir)
	}
	if demux.calls != 1 {
		t.Errorf("demultiplexer invoked %v times", demux.calls)
	}

	// Singleton sample: a link to its converted source.
	artifactX := filepath.Join(driver.FastqDir(), "run_SampleX.fastq.gz")
	info, err := os.Lstat(artifactX)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("single-barcode artifact should be a link")
	}

	// Multi-barcode sample: a validated concatenation.
	artifactY := filepath.Join(driver.FastqDir(), "run_SampleY.fastq.gz")
	if reads, err := fastq.Check(artifactY); err != nil || reads != 3 {
		t.Errorf("merged artifact: %v reads, %v", reads, err)
	}

	// Unresolvable sample: no artifact, run still succeeds.
	if _, err := os.Lstat(filepath.Join(driver.FastqDir(), "run_SampleZ.fastq.gz")); !os.IsNotExist(err) {
		t.Error("sample without demux files should produce no artifact")
	}

	contents, err := ioutil.ReadFile(driver.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got:\n%v", string(contents))
	}
	if lines[1] != "SampleX\tNB01\t01\t"+artifactX {
		t.Errorf("unexpected manifest row: %q", lines[1])
	}
	for _, line := range lines[1:] {
		artifact := line[strings.LastIndex(line, "\t")+1:]
		if _, err := os.Stat(artifact); err != nil {
			t.Errorf("manifest points at missing artifact %v", artifact)
		}
	}

	// The audit copy of the sheet sits next to the outputs.
	if _, err := os.Stat(filepath.Join(driver.RootDir, "sample_sheet.audit.csv")); err != nil {
		t.Error("audit copy of the sample sheet is missing")
	}
}

func TestDriverRerunSkipsCompletedStages(t *testing.T) {
	driver, basecaller, demux := newTestDriver(t)
	rawDir := t.TempDir()
	if err := driver.Run(Pod5Start{Dir: rawDir}); err != nil {
		t.Fatal(err)
	}
	first, err := ioutil.ReadFile(driver.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if err := driver.Run(Pod5Start{Dir: rawDir}); err != nil {
		t.Fatal(err)
	}
	if basecaller.calls != 1 || demux.calls != 1 {
		t.Errorf("heavy stages should be skipped on rerun: basecall %v, demux %v", basecaller.calls, demux.calls)
	}
	second, err := ioutil.ReadFile(driver.ManifestPath())
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Error("rerun should reproduce the manifest")
	}
}

func TestFinishAbortsOnCorruptConversion(t *testing.T) {
	driver, _, _ := newTestDriver(t)
	rawDir := t.TempDir()
	if err := driver.Run(Pod5Start{Dir: rawDir}); err != nil {
		t.Fatal(err)
	}

	// Damage a converted file between runs; the rerun reuses it and the
	// merge stage must refuse the result.
	corrupt := filepath.Join(driver.ConvertDir(), "calls_barcode02.fastq.gz")
	data, err := ioutil.ReadFile(corrupt)
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(corrupt, data[:len(data)-5], 0666); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(driver.ManifestPath()); err != nil {
		t.Fatal(err)
	}

	err = driver.Finish()
	var integrity *fastq.IntegrityError
	if !errors.As(err, &integrity) {
		t.Fatalf("expected an integrity failure, got %v", err)
	}
	if _, err := os.Lstat(filepath.Join(driver.FastqDir(), "run_SampleY.fastq.gz")); !os.IsNotExist(err) {
		t.Error("corrupt merged artifact should be removed")
	}
	if _, err := os.Stat(driver.ManifestPath()); !os.IsNotExist(err) {
		t.Error("no manifest may be written after an aborted merge")
	}
}

func TestArchiveStart(t *testing.T) {
	driver, basecaller, _ := newTestDriver(t)
	extractor := &fakeExtractor{}
	driver.Extractor = extractor
	archivePath := filepath.Join(t.TempDir(), "signal.tar.gz")
	if err := ioutil.WriteFile(archivePath, []byte("archive"), 0666); err != nil {
		t.Fatal(err)
	}
	container, err := ArchiveStart{Path: archivePath}.Obtain(driver)
	if err != nil {
		t.Fatal(err)
	}
	if extractor.calls != 1 {
		t.Errorf("extractor invoked %v times", extractor.calls)
	}
	if basecaller.calls != 1 || basecaller.rawDir != filepath.Join(driver.RootDir, "raw", "flowcell") {
		t.Errorf("basecaller should receive the nested signal dir, got %v", basecaller.rawDir)
	}
	if container != filepath.Join(driver.RootDir, "basecall", "run.bam") {
		t.Errorf("unexpected container path: %v", container)
	}
}

func TestBamStart(t *testing.T) {
	driver, basecaller, _ := newTestDriver(t)
	container := filepath.Join(t.TempDir(), "calls.bam")
	if err := ioutil.WriteFile(container, []byte("bam"), 0666); err != nil {
		t.Fatal(err)
	}
	obtained, err := BamStart{Path: container}.Obtain(driver)
	if err != nil {
		t.Fatal(err)
	}
	if obtained != container || basecaller.calls != 0 {
		t.Errorf("bam start should adopt the container without basecalling, got %v", obtained)
	}
	if _, err := (BamStart{Path: container + ".absent"}).Obtain(driver); err == nil {
		t.Error("expected an error for a missing container")
	}
}

func TestParseStartMode(t *testing.T) {
	if mode, err := ParseStartMode("pod5", "dir"); err != nil || mode.Name() != "pod5" {
		t.Errorf("ParseStartMode(pod5) = %v, %v", mode, err)
	}
	if mode, err := ParseStartMode("bam", "f.bam"); err != nil || mode.Name() != "bam" {
		t.Errorf("ParseStartMode(bam) = %v, %v", mode, err)
	}
	if mode, err := ParseStartMode("archive", "f.tar.gz"); err != nil || mode.Name() != "archive" {
		t.Errorf("ParseStartMode(archive) = %v, %v", mode, err)
	}
	if _, err := ParseStartMode("fast5", "dir"); err == nil {
		t.Error("expected an error for an unknown start type")
	}
}

func TestFinishMissingSheet(t *testing.T) {
	driver, _, _ := newTestDriver(t)
	driver.SampleSheet = filepath.Join(driver.RootDir, "absent.csv")
	var missing *sheet.MissingInputError
	if err := driver.Finish(); !errors.As(err, &missing) {
		t.Errorf("expected MissingInputError, got %v", err)
	}
}

func TestRunToolFailure(t *testing.T) {
	var toolErr *ToolError
	if err := runTool("false", 0, ""); !errors.As(err, &toolErr) {
		t.Errorf("expected ToolError, got %v", err)
	}
	if err := runTool("true", 0, ""); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestRunToolTimeout(t *testing.T) {
	var timeout *ToolTimeoutError
	if err := runTool("sleep", 50*time.Millisecond, "", "5"); !errors.As(err, &timeout) {
		t.Errorf("expected ToolTimeoutError, got %v", err)
	}
}
