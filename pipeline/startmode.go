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
	"fmt"
	"os"
	"path/filepath"

	"github.com/openomics/nanoprep/archive"
)

// StartMode is where the pipeline picks up:  raw pod5 signal, an
// archive of raw signal, or an already-basecalled container. Each mode
// knows how to obtain the basecalled container the rest of the
// pipeline starts from.
type StartMode interface {
	Name() string
	Obtain(driver *Driver) (container string, err error)
}

// Pod5Start basecalls a directory of pod5 signal files.
type Pod5Start struct {
	Dir string
}

// Name implements the StartMode interface.
func (Pod5Start) Name() string { return "pod5" }

// Obtain implements the StartMode interface.
func (m Pod5Start) Obtain(driver *Driver) (string, error) {
	return driver.basecall(m.Dir)
}

// ArchiveStart extracts a raw-signal archive, locates the signal
// directory inside it, and basecalls.
type ArchiveStart struct {
	Path string
}

// Name implements the StartMode interface.
func (ArchiveStart) Name() string { return "archive" }

// Obtain implements the StartMode interface.
func (m ArchiveStart) Obtain(driver *Driver) (string, error) {
	dest := filepath.Join(driver.RootDir, "raw")
	if err := driver.step("Extract", dest+".complete", func() error {
		return driver.Extractor.Extract(m.Path, dest)
	}); err != nil {
		return "", err
	}
	signalDir, err := archive.FindSignalDir(dest)
	if err != nil {
		return "", err
	}
	return driver.basecall(signalDir)
}

// BamStart adopts an existing basecalled container without invoking
// the basecaller.
type BamStart struct {
	Path string
}

// Name implements the StartMode interface.
func (BamStart) Name() string { return "bam" }

// Obtain implements the StartMode interface.
func (m BamStart) Obtain(driver *Driver) (string, error) {
	if _, err := os.Stat(m.Path); err != nil {
		return "", err
	}
	return m.Path, nil
}

// ParseStartMode maps the start type named on the command line to its
// StartMode variant.
func ParseStartMode(startType, inputPath string) (StartMode, error) {
	switch startType {
	case "pod5":
		return Pod5Start{Dir: inputPath}, nil
	case "archive":
		return ArchiveStart{Path: inputPath}, nil
	case "bam":
		return BamStart{Path: inputPath}, nil
	default:
		return nil, fmt.Errorf("unknown start type %v (expected pod5, bam, or archive)", startType)
	}
}
