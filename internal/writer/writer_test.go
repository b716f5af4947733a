package writer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phil-mansfield/grainflow/internal/particle"
)

func newStore(t *testing.T) *particle.Store {
	t.Helper()
	s := particle.New(2, particle.SOA, 4)
	if _, err := s.AddParticle([]float64{1, 2}, []float64{0, 0}, 0.5, 1, 0, 1); err != nil {
		t.Fatalf("AddParticle: %v", err)
	}
	if _, err := s.AddParticle([]float64{3, 4}, []float64{0, 0}, 0.5, 1, 0, 1); err != nil {
		t.Fatalf("AddParticle: %v", err)
	}
	return s
}

func TestWriteInfoProducesExpectedRows(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bounds := [][2]float64{{0, 10}, {0, 10}}
	if err := w.WriteInfo(2, bounds, "VelocityVerlet", 1e-3); err != nil {
		t.Fatalf("WriteInfo: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "info.csv"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(b), "VelocityVerlet") {
		t.Fatalf("info.csv missing integrator kind: %s", b)
	}
}

func TestWriteFrameCreatesObjectSeriesAndTimes(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store := newStore(t)

	if err := w.WriteFrame("Grain", 0, store, 0.0); err != nil {
		t.Fatalf("WriteFrame 0: %v", err)
	}
	if err := w.WriteFrame("Grain", 1, store, 0.01); err != nil {
		t.Fatalf("WriteFrame 1: %v", err)
	}

	for _, name := range []string{"Grain0.csv", "Grain1.csv"} {
		path := filepath.Join(dir, "Grain", name)
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("ReadFile %s: %v", path, err)
		}
		if !strings.Contains(string(b), "x0,x1") {
			t.Fatalf("%s missing header: %s", path, b)
		}
	}

	times, err := os.ReadFile(filepath.Join(dir, "Grain", "times.csv"))
	if err != nil {
		t.Fatalf("ReadFile times.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(times)), "\n")
	if len(lines) != 2 {
		t.Fatalf("times.csv has %d lines, want 2: %s", len(lines), times)
	}
}

func TestWriteFrameCompressesWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	store := newStore(t)
	if err := w.WriteFrame("Grain", 0, store, 0.0); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Grain", "Grain0.csv.zst")); err != nil {
		t.Fatalf("expected compressed frame file: %v", err)
	}
}

func TestCloseRecordsFailedWrites(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.failed = true
	if err := w.Close(SummaryFields{Iterations: 3, Elapsed: 1.5, NumParticles: 2}); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "run_summary.txt"))
	if err != nil {
		t.Fatalf("ReadFile run_summary.txt: %v", err)
	}
	if !strings.Contains(string(b), "some writes failed") {
		t.Fatalf("run_summary.txt missing failure note: %s", b)
	}
}
