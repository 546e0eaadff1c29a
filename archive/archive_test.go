package archive

import (
	"math"
	"os"
	"strings"
	"testing"

	"sixdot/audio"
)

func sine(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/audio.SampleRate))
	}
	return samples
}

func TestArchiverWritesFlacFile(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Two full blocks plus a partial tail, fed in odd-sized chunks like a
	// real capture callback would.
	samples := sine(audio.FrameSize*2 + 1000)
	for i := 0; i < len(samples); i += 1536 {
		end := min(i+1536, len(samples))
		a.Tap(samples[i:end])
	}

	path, err := a.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if path == "" {
		t.Fatal("no file written")
	}
	if !strings.HasSuffix(path, ".flac") {
		t.Errorf("path = %q", path)
	}
	if a.Samples() != uint64(len(samples)) {
		t.Errorf("Samples = %d, want %d", a.Samples(), len(samples))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading archive: %v", err)
	}
	if len(data) < 4 || string(data[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
}

func TestArchiverSkipsEmptySessions(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, err := a.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if path != "" {
		t.Errorf("empty session wrote %q", path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("archive dir not empty: %v", entries)
	}
}

func TestArchiverClampsAndIgnoresAfterClose(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	loud := make([]float32, audio.FrameSize)
	for i := range loud {
		loud[i] = 3.0 // beyond full scale
	}
	a.Tap(loud)

	if _, err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	before := a.Samples()
	a.Tap(loud)
	if a.Samples() != before {
		t.Error("Tap after Close encoded samples")
	}
}
