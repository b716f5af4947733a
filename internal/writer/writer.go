/*Package writer produces grainflow's output directory, per spec.md §6's
layout:

	<out>/run_summary.txt
	<out>/log.txt
	<out>/info.csv
	<out>/<Object>/<Object><k>.csv ... times.csv

Grounded on lib/snapio's buffered, one-writer-per-field idiom (Buffer
manages one array per named variable) generalized from its gadget2
binary format to spec.md's CSV layout, and on lib/compress's zstd
wrapper for optional compressed output -- the DataDog/zstd dependency
guppy itself carries but never exercises in the sources kept here, not
a new addition.
*/
package writer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/DataDog/zstd"

	"github.com/phil-mansfield/grainflow/internal/errs"
	"github.com/phil-mansfield/grainflow/internal/particle"
)

// Writer owns one output directory and the running log/summary state
// accumulated across a run.
type Writer struct {
	dir      string
	compress bool

	logLines []string
	failed   bool
}

// New creates (or reuses) the output directory dir. compress enables
// zstd compression of per-frame CSV payloads, mirroring lib/compress's
// "compressed snapshot" option.
func New(dir string, compress bool) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Internal(errs.FileOpenFailure, "creating output directory %s: %v", dir, err)
	}
	return &Writer{dir: dir, compress: compress}, nil
}

// Failed reports whether any write so far has failed; per spec.md §7,
// a FileOpenFailure does not stop the run, but the summary must record
// "some writes failed" and the process must exit non-zero.
func (w *Writer) Failed() bool { return w.failed }

// Log appends one line to the in-memory build/version log, flushed to
// log.txt by Close.
func (w *Writer) Log(format string, a ...interface{}) {
	w.logLines = append(w.logLines, fmt.Sprintf(format, a...))
}

// WriteInfo writes info.csv: one row of dimensions/bounds/integrator
// metadata, written once at the start of a run.
func (w *Writer) WriteInfo(dim int, bounds [][2]float64, integratorKind string, dt float64) error {
	f, err := os.Create(filepath.Join(w.dir, "info.csv"))
	if err != nil {
		w.failed = true
		return errs.Internal(errs.FileOpenFailure, "creating info.csv: %v", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	fmt.Fprintf(bw, "dimensions,integrator,dt\n")
	fmt.Fprintf(bw, "%d,%s,%g\n", dim, integratorKind, dt)
	fmt.Fprintf(bw, "\naxis,lo,hi\n")
	for d, b := range bounds {
		fmt.Fprintf(bw, "%d,%g,%g\n", d, b[0], b[1])
	}
	if err := bw.Flush(); err != nil {
		w.failed = true
		return errs.Internal(errs.FileOpenFailure, "writing info.csv: %v", err)
	}
	return nil
}

// WriteFrame appends one simulation frame's particle state to
// <out>/<object>/<object><frame>.csv (compressed to a ".csv.zst"
// sibling if the Writer was built with compress enabled) and records
// the frame's elapsed time in <out>/<object>/times.csv.
func (w *Writer) WriteFrame(object string, frame int, store *particle.Store, elapsed float64) error {
	objDir := filepath.Join(w.dir, object)
	if err := os.MkdirAll(objDir, 0o755); err != nil {
		w.failed = true
		return errs.Internal(errs.FileOpenFailure, "creating object directory %s: %v", objDir, err)
	}

	var sb strings.Builder
	dim := store.Dim()
	x := make([]float64, dim)
	fmt.Fprintf(&sb, "gid,type,sigma")
	for d := 0; d < dim; d++ {
		fmt.Fprintf(&sb, ",x%d", d)
	}
	sb.WriteByte('\n')
	for i := 0; i < store.Number(); i++ {
		store.X(i, x)
		fmt.Fprintf(&sb, "%d,%d,%g", store.GID(i), store.Type(i), store.Sigma(i))
		for d := 0; d < dim; d++ {
			fmt.Fprintf(&sb, ",%g", x[d])
		}
		sb.WriteByte('\n')
	}

	name := fmt.Sprintf("%s%d.csv", object, frame)
	if err := w.writePayload(objDir, name, []byte(sb.String())); err != nil {
		return err
	}

	timesPath := filepath.Join(objDir, "times.csv")
	tf, err := os.OpenFile(timesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		w.failed = true
		return errs.Internal(errs.FileOpenFailure, "opening %s: %v", timesPath, err)
	}
	defer tf.Close()
	if _, err := fmt.Fprintf(tf, "%d,%g\n", frame, elapsed); err != nil {
		w.failed = true
		return errs.Internal(errs.FileOpenFailure, "writing %s: %v", timesPath, err)
	}
	return nil
}

// writePayload writes raw bytes to dir/name, or to dir/name.zst
// (zstd-compressed) when the Writer has compression enabled.
func (w *Writer) writePayload(dir, name string, payload []byte) error {
	path := filepath.Join(dir, name)
	if w.compress {
		compressed, err := zstd.CompressLevel(nil, payload, 1)
		if err != nil {
			w.failed = true
			return errs.Internal(errs.FileOpenFailure, "compressing %s: %v", name, err)
		}
		path += ".zst"
		payload = compressed
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		w.failed = true
		return errs.Internal(errs.FileOpenFailure, "writing %s: %v", path, err)
	}
	return nil
}

// SummaryFields is the subset of a run's final state run_summary.txt
// reports.
type SummaryFields struct {
	Iterations  int
	Elapsed     float64
	NumParticles int
	Potential   float64
	Virial      float64
	SomeWritesFailed bool
}

// Close flushes log.txt and run_summary.txt and releases the writer.
// Per spec.md §7, a prior write failure is recorded in the summary
// rather than suppressing it.
func (w *Writer) Close(summary SummaryFields) error {
	logPath := filepath.Join(w.dir, "log.txt")
	if err := os.WriteFile(logPath, []byte(strings.Join(w.logLines, "\n")+"\n"), 0o644); err != nil {
		w.failed = true
		return errs.Internal(errs.FileOpenFailure, "writing log.txt: %v", err)
	}

	summary.SomeWritesFailed = summary.SomeWritesFailed || w.failed
	var sb strings.Builder
	fmt.Fprintf(&sb, "iterations: %d\n", summary.Iterations)
	fmt.Fprintf(&sb, "elapsed: %g\n", summary.Elapsed)
	fmt.Fprintf(&sb, "particles: %d\n", summary.NumParticles)
	fmt.Fprintf(&sb, "potential: %g\n", summary.Potential)
	fmt.Fprintf(&sb, "virial: %g\n", summary.Virial)
	if summary.SomeWritesFailed {
		sb.WriteString("some writes failed\n")
	}

	summaryPath := filepath.Join(w.dir, "run_summary.txt")
	if err := os.WriteFile(summaryPath, []byte(sb.String()), 0o644); err != nil {
		return errs.Internal(errs.FileOpenFailure, "writing run_summary.txt: %v", err)
	}
	return nil
}
