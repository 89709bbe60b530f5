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
	"io"
	"os"

	gzip "github.com/klauspost/pgzip"
)

// IntegrityError indicates that a compressed read file failed its
// decompress-scan validation. An artifact that triggers this error is
// removed rather than left in place.
type IntegrityError struct {
	Path   string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("corrupt read file %v: %v", e.Path, e.Reason)
}

// IsGzip determines if the given byte scanner produces a gzip file by
// looking at the initial byte. It uses ReadByte and UnreadByte to check
// only the initial byte from the input.
func IsGzip(scanner io.ByteScanner) (bool, error) {
	b, err := scanner.ReadByte()
	if err != nil {
		return false, err
	}
	if err := scanner.UnreadByte(); err != nil {
		return false, err
	}
	return b == 0x1f, nil
}

// Check performs a full decompress-scan of a .fastq.gz file and returns
// the number of reads it contains. The whole gzip stream, including all
// concatenated members, is decompressed; the decompressed text must be
// a sequence of four-line FASTQ records with matching sequence and
// quality lengths. Any violation is reported as an IntegrityError.
func Check(path string) (reads int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	buf := bufio.NewReader(f)
	if ok, err := IsGzip(buf); err != nil {
		return 0, &IntegrityError{Path: path, Reason: err.Error()}
	} else if !ok {
		return 0, &IntegrityError{Path: path, Reason: "not a gzip file"}
	}
	gz, err := gzip.NewReader(buf)
	if err != nil {
		return 0, &IntegrityError{Path: path, Reason: err.Error()}
	}
	defer gz.Close()
	text := bufio.NewReader(gz)
	var record [4]string
	line := 0
	for {
		s, rerr := text.ReadString('\n')
		if rerr == io.EOF {
			if s != "" {
				return reads, &IntegrityError{Path: path, Reason: "truncated final line"}
			}
			break
		}
		if rerr != nil {
			return reads, &IntegrityError{Path: path, Reason: rerr.Error()}
		}
		record[line%4] = s[:len(s)-1]
		line++
		if line%4 != 0 {
			continue
		}
		switch {
		case len(record[0]) == 0 || record[0][0] != '@':
			return reads, &IntegrityError{Path: path, Reason: fmt.Sprintf("line %v: record does not start with @", line-3)}
		case len(record[2]) == 0 || record[2][0] != '+':
			return reads, &IntegrityError{Path: path, Reason: fmt.Sprintf("line %v: missing + separator", line-1)}
		case len(record[1]) != len(record[3]):
			return reads, &IntegrityError{Path: path, Reason: fmt.Sprintf("line %v: sequence and quality lengths differ", line-2)}
		}
		reads++
	}
	if line%4 != 0 {
		return reads, &IntegrityError{Path: path, Reason: "line count is not a multiple of 4"}
	}
	return reads, nil
}
