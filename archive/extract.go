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

// Package archive unpacks raw-signal archives handed over by the
// sequencing facility.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	gzip "github.com/klauspost/pgzip"
)

// Extract unpacks the tar archive at archivePath into destDir. The
// archive may be plain, gzip-compressed (.tar.gz, .tgz), or
// bzip2-compressed (.tar.bz2). Entries that would escape destDir are
// rejected; entry types other than directories and regular files are
// skipped.
func Extract(archivePath, destDir string) (err error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	var r io.Reader = f
	switch {
	case strings.HasSuffix(archivePath, ".tar.gz"), strings.HasSuffix(archivePath, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return err
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(archivePath, ".tar.bz2"):
		bz, err := bzip2.NewReader(f, new(bzip2.ReaderConfig))
		if err != nil {
			return err
		}
		defer bz.Close()
		r = bz
	case strings.HasSuffix(archivePath, ".tar"):
	default:
		return fmt.Errorf("unsupported archive format: %v", archivePath)
	}
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return err
	}
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := filepath.Clean(header.Name)
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %v escapes the destination directory", header.Name)
		}
		target := filepath.Join(destDir, name)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0700); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, header.FileInfo().Mode().Perm())
			if err != nil {
				return err
			}
			_, err = io.Copy(out, tr)
			if nerr := out.Close(); err == nil {
				err = nerr
			}
			if err != nil {
				return err
			}
		}
	}
}

// FindSignalDir locates the directory holding the raw pod5 signal files
// below destDir. Facilities sometimes wrap the signal directory in one
// extra level, so destDir itself is tried first and its immediate
// subdirectories after that.
func FindSignalDir(destDir string) (string, error) {
	if hasSignalFiles(destDir) {
		return destDir, nil
	}
	entries, err := ioutil.ReadDir(destDir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		sub := filepath.Join(destDir, entry.Name())
		if hasSignalFiles(sub) {
			return sub, nil
		}
	}
	return "", fmt.Errorf("no pod5 files found under %v", destDir)
}

func hasSignalFiles(dir string) bool {
	matches, err := filepath.Glob(filepath.Join(dir, "*.pod5"))
	return err == nil && len(matches) > 0
}
