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
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Engine produces one artifact per sample from the sample's converted
// source files. The artifact path is deterministic in (Prefix, sample),
// so reruns overwrite earlier artifacts rather than accumulate.
type Engine struct {
	OutDir string
	Prefix string
}

// ArtifactPath returns the deterministic artifact path for a sample.
func (engine Engine) ArtifactPath(sample string) string {
	return filepath.Join(engine.OutDir, engine.Prefix+"_"+sample+".fastq.gz")
}

// Merge produces the per-sample artifact. With no sources nothing is
// produced and the empty path is returned. With one source the artifact
// is a symlink to that source, falling back to a byte copy on
// filesystems that refuse symlinks; either way the artifact reads as a
// normal file. With more sources the gzip members are concatenated into
// a fresh container, which must then pass a full decompress-scan before
// it is moved into place; if the scan fails, the partial artifact is
// removed and an IntegrityError returned.
func (engine Engine) Merge(sample string, sources []string) (string, error) {
	if len(sources) == 0 {
		return "", nil
	}
	artifact := engine.ArtifactPath(sample)
	if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	if len(sources) == 1 {
		source, err := filepath.Abs(sources[0])
		if err != nil {
			return "", err
		}
		if err := os.Symlink(source, artifact); err != nil {
			log.Printf("Cannot link %v to %v (%v); copying instead.\n", artifact, source, err)
			if err := copyFile(artifact, source); err != nil {
				return "", err
			}
		}
		return artifact, nil
	}
	// Concatenated gzip members form a single valid gzip stream, so
	// merging compressed sources is plain byte concatenation.
	tmp := artifact + ".tmp-" + uuid.New().String()
	if err := concatenate(tmp, sources); err != nil {
		os.Remove(tmp)
		return "", err
	}
	reads, err := Check(tmp)
	if err != nil {
		os.Remove(tmp)
		if ierr, ok := err.(*IntegrityError); ok {
			ierr.Path = artifact
		}
		return "", err
	}
	if err := os.Rename(tmp, artifact); err != nil {
		os.Remove(tmp)
		return "", err
	}
	log.Printf("Merged %v sources into %v: %v reads.\n", len(sources), artifact, reads)
	return artifact, nil
}

func concatenate(dst string, sources []string) (err error) {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		nerr := out.Close()
		if err == nil {
			err = nerr
		}
	}()
	for _, source := range sources {
		in, err := os.Open(source)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, in)
		if nerr := in.Close(); err == nil {
			err = nerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func copyFile(dst, src string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		nerr := out.Close()
		if err == nil {
			err = nerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}
