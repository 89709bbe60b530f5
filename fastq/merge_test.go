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
	"bytes"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	gzip "github.com/klauspost/pgzip"
)

func fastqText(names ...string) string {
	var b strings.Builder
	for _, name := range names {
		b.WriteString("@" + name + "\nACGTACGT\n+\nIIIIIIII\n")
	}
	return b.String()
}

func writeFastqGz(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(text)); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func decompress(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer gz.Close()
	text, err := ioutil.ReadAll(gz)
	if err != nil {
		t.Fatal(err)
	}
	return string(text)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "good.fastq.gz")
	writeFastqGz(t, path, fastqText("read1", "read2", "read3"))
	reads, err := Check(path)
	if err != nil {
		t.Fatal(err)
	}
	if reads != 3 {
		t.Errorf("expected 3 reads, got %v", reads)
	}

	var integrity *IntegrityError

	plain := filepath.Join(dir, "plain.fastq.gz")
	if err := ioutil.WriteFile(plain, []byte(fastqText("read1")), 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Check(plain); !errors.As(err, &integrity) {
		t.Errorf("expected IntegrityError for uncompressed input, got %v", err)
	}

	truncated := filepath.Join(dir, "truncated.fastq.gz")
	data, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(truncated, data[:len(data)-7], 0666); err != nil {
		t.Fatal(err)
	}
	if _, err := Check(truncated); !errors.As(err, &integrity) {
		t.Errorf("expected IntegrityError for truncated input, got %v", err)
	}

	ragged := filepath.Join(dir, "ragged.fastq.gz")
	writeFastqGz(t, ragged, "@read1\nACGT\n+\n")
	if _, err := Check(ragged); !errors.As(err, &integrity) {
		t.Errorf("expected IntegrityError for incomplete record, got %v", err)
	}

	mismatched := filepath.Join(dir, "mismatched.fastq.gz")
	writeFastqGz(t, mismatched, "@read1\nACGT\n+\nIII\n")
	if _, err := Check(mismatched); !errors.As(err, &integrity) {
		t.Errorf("expected IntegrityError for quality length mismatch, got %v", err)
	}
}

func TestMergeNoSources(t *testing.T) {
	engine := Engine{OutDir: t.TempDir(), Prefix: "run"}
	artifact, err := engine.Merge("SampleZ", nil)
	if err != nil {
		t.Fatal(err)
	}
	if artifact != "" {
		t.Errorf("no artifact expected, got %v", artifact)
	}
	if _, err := os.Lstat(engine.ArtifactPath("SampleZ")); !os.IsNotExist(err) {
		t.Error("no file should be produced for a sample without sources")
	}
}

func TestMergeSingleton(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "run_barcode01.fastq.gz")
	writeFastqGz(t, source, fastqText("read1"))
	engine := Engine{OutDir: dir, Prefix: "run"}
	artifact, err := engine.Merge("SampleX", []string{source})
	if err != nil {
		t.Fatal(err)
	}
	if artifact != engine.ArtifactPath("SampleX") {
		t.Errorf("unexpected artifact path: %v", artifact)
	}
	info, err := os.Lstat(artifact)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Error("singleton artifact should be a link")
	}
	sourceData, err := ioutil.ReadFile(source)
	if err != nil {
		t.Fatal(err)
	}
	artifactData, err := ioutil.ReadFile(artifact)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(sourceData, artifactData) {
		t.Error("singleton artifact should be byte-identical to its source")
	}
}

func TestMergeConcatenation(t *testing.T) {
	dir := t.TempDir()
	source1 := filepath.Join(dir, "run_barcode02.fastq.gz")
	source2 := filepath.Join(dir, "run_barcode03.fastq.gz")
	writeFastqGz(t, source1, fastqText("read1", "read2"))
	writeFastqGz(t, source2, fastqText("read3"))
	engine := Engine{OutDir: dir, Prefix: "run"}
	artifact, err := engine.Merge("SampleY", []string{source1, source2})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := decompress(t, artifact), fastqText("read1", "read2")+fastqText("read3"); got != want {
		t.Errorf("decompressed artifact does not equal concatenated sources:\n%v", got)
	}
	if reads, err := Check(artifact); err != nil || reads != 3 {
		t.Errorf("merged artifact fails validation: %v reads, %v", reads, err)
	}
}

func TestMergeIdempotent(t *testing.T) {
	dir := t.TempDir()
	source1 := filepath.Join(dir, "run_barcode02.fastq.gz")
	source2 := filepath.Join(dir, "run_barcode03.fastq.gz")
	writeFastqGz(t, source1, fastqText("read1"))
	writeFastqGz(t, source2, fastqText("read2"))
	engine := Engine{OutDir: dir, Prefix: "run"}
	artifact, err := engine.Merge("SampleY", []string{source1, source2})
	if err != nil {
		t.Fatal(err)
	}
	first, err := ioutil.ReadFile(artifact)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Merge("SampleY", []string{source1, source2}); err != nil {
		t.Fatal(err)
	}
	second, err := ioutil.ReadFile(artifact)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("rerunning the merge should overwrite with identical bytes")
	}
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %v", entry.Name())
		}
	}
}

func TestMergeCorruptSource(t *testing.T) {
	dir := t.TempDir()
	source1 := filepath.Join(dir, "run_barcode02.fastq.gz")
	source2 := filepath.Join(dir, "run_barcode03.fastq.gz")
	writeFastqGz(t, source1, fastqText("read1"))
	writeFastqGz(t, source2, fastqText("read2"))
	data, err := ioutil.ReadFile(source2)
	if err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(source2, data[:len(data)-7], 0666); err != nil {
		t.Fatal(err)
	}
	engine := Engine{OutDir: dir, Prefix: "run"}
	var integrity *IntegrityError
	if _, err := engine.Merge("SampleY", []string{source1, source2}); !errors.As(err, &integrity) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}
	if _, err := os.Lstat(engine.ArtifactPath("SampleY")); !os.IsNotExist(err) {
		t.Error("corrupt artifact must not be left in place")
	}
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.Contains(entry.Name(), ".tmp-") {
			t.Errorf("partial temp file left behind: %v", entry.Name())
		}
	}
}
