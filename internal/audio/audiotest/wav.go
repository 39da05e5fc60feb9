// Package audiotest writes small audio fixtures for tests
package audiotest

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes a 16-bit mono 440Hz sine of the given length into dir and returns its path
func WriteWAV(t testing.TB, dir, name string, seconds float64, sampleRate int) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create fixture: %v", err)
	}
	defer f.Close()

	total := int(seconds * float64(sampleRate))
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, total),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = int(0.25 * math.MaxInt16 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatalf("failed to write fixture samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("failed to finalise fixture: %v", err)
	}
	return path
}

// WriteFile writes raw bytes into dir and returns the path
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}
