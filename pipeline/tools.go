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
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/openomics/nanoprep/archive"
)

// Basecaller turns a directory of raw signal files into a single
// basecalled read container.
type Basecaller interface {
	Basecall(rawDir, kit, reference, outContainer string) error
}

// Demultiplexer splits a basecalled container into one container per
// barcode in outDir.
type Demultiplexer interface {
	Demux(inContainer, outDir, kit string) error
}

// Extractor unpacks a raw-signal archive into destDir.
type Extractor interface {
	Extract(archivePath, destDir string) error
}

// ToolError indicates that an external tool failed. No downstream step
// has valid input after such a failure, so the run aborts.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("external tool %v failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// ToolTimeoutError indicates that an external tool exceeded its
// configured deadline and was terminated.
type ToolTimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("external tool %v did not finish within %v", e.Tool, e.Timeout)
}

// runTool runs an external tool synchronously, forwarding its stderr.
// If stdout is not empty, the tool's standard output is redirected into
// that file. A timeout of zero means no deadline; with a deadline, an
// overrunning tool is killed and reported as a ToolTimeoutError rather
// than left to hang the run.
func runTool(tool string, timeout time.Duration, stdout string, args ...string) (err error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stderr = os.Stderr
	if stdout != "" {
		out, cerr := os.Create(stdout)
		if cerr != nil {
			return cerr
		}
		defer func() {
			if nerr := out.Close(); err == nil {
				err = nerr
			}
		}()
		cmd.Stdout = out
	}
	log.Println("Executing command:\n", tool, args)
	rerr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return &ToolTimeoutError{Tool: tool, Timeout: timeout}
	}
	if rerr != nil {
		return &ToolError{Tool: tool, Err: rerr}
	}
	return nil
}

// DoradoBasecaller invokes the dorado basecaller. The basecalled reads
// are captured from standard output into the target container.
type DoradoBasecaller struct {
	Model   string
	Timeout time.Duration
}

// Basecall implements the Basecaller interface.
func (d DoradoBasecaller) Basecall(rawDir, kit, reference, outContainer string) error {
	args := []string{"basecaller", d.Model, rawDir, "--kit-name", kit}
	if reference != "" {
		args = append(args, "--reference", reference)
	}
	return runTool("dorado", d.Timeout, outContainer, args...)
}

// DoradoDemux invokes dorado demux, which writes one container file per
// barcode into the output directory.
type DoradoDemux struct {
	Timeout time.Duration
}

// Demux implements the Demultiplexer interface.
func (d DoradoDemux) Demux(inContainer, outDir, kit string) error {
	return runTool("dorado", d.Timeout, "",
		"demux", "--output-dir", outDir, "--kit-name", kit, inContainer)
}

// TarExtractor unpacks raw-signal archives in process.
type TarExtractor struct{}

// Extract implements the Extractor interface.
func (TarExtractor) Extract(archivePath, destDir string) error {
	return archive.Extract(archivePath, destDir)
}
