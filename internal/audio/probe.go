// Package audio inspects a local audio file before it is uploaded
package audio

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// Info describes a selected source file
type Info struct {
	Path string
	Name string
	Ext  string // lower case, without the dot
	Size int64
	MIME string // sniffed from content, parameters stripped

	// Populated for WAV files only
	Duration   time.Duration
	SampleRate int
	Channels   int
	BitDepth   int
}

// HasFormat reports whether WAV header metadata was read
func (i *Info) HasFormat() bool {
	return i.SampleRate > 0
}

// Probe stats the file, sniffs its content type, and reads the WAV header when present
func Probe(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	info := &Info{
		Path: path,
		Name: filepath.Base(path),
		Ext:  strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Size: st.Size(),
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if n > 0 {
		info.MIME = baseType(http.DetectContentType(head[:n]))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind file: %w", err)
	}
	readWAVHeader(f, info)

	return info, nil
}

// readWAVHeader fills format fields from a RIFF/WAVE header; non-WAV input is left untouched
func readWAVHeader(r io.ReadSeeker, info *Info) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return
	}
	info.SampleRate = int(dec.SampleRate)
	info.Channels = int(dec.NumChans)
	info.BitDepth = int(dec.BitDepth)
	if d, err := dec.Duration(); err == nil && d > 0 {
		info.Duration = d
		return
	}
	// Fall back to the canonical 44-byte header layout
	bytesPerSec := int64(info.SampleRate * info.Channels * info.BitDepth / 8)
	if bytesPerSec > 0 && info.Size > 44 {
		info.Duration = time.Duration(float64(info.Size-44) / float64(bytesPerSec) * float64(time.Second))
	}
}

func baseType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

// FormatSize renders a byte count for the file info line
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// ChannelName returns a human-readable channel layout
func ChannelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%d channels", channels)
	}
}
