// Package assets loads the sound effects played during a call. Sounds are
// loaded explicitly at startup so a missing or corrupt file fails fast
// instead of surfacing mid-call.
package assets

import (
	"bytes"
	"embed"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"

	"github.com/fbruhn/sprechzeit/pkg/types"
)

//go:embed sounds/*.wav
var embedded embed.FS

// Library holds the decoded sounds for one process. Access after Load is
// read-only, so no locking is needed.
type Library struct {
	sounds map[string]types.AudioFrame
}

// Load decodes every .wav file in fsys under dir and returns the library.
// Sound names are the file names without extension.
func Load(fsys fs.FS, dir string) (*Library, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("assets: reading sound dir %q: %w", dir, err)
	}
	lib := &Library{sounds: make(map[string]types.AudioFrame)}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) < 5 || name[len(name)-4:] != ".wav" {
			continue
		}
		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("assets: reading %q: %w", name, err)
		}
		frame, err := DecodeWAV(data)
		if err != nil {
			return nil, fmt.Errorf("assets: decoding %q: %w", name, err)
		}
		lib.sounds[name[:len(name)-4]] = frame
	}
	return lib, nil
}

// LoadEmbedded loads the sounds compiled into the binary.
func LoadEmbedded() (*Library, error) {
	return Load(embedded, "sounds")
}

// LoadDir loads sounds from a directory on disk, overriding the embedded set.
func LoadDir(dir string) (*Library, error) {
	return Load(os.DirFS(dir), ".")
}

// Sound returns the named sound, or (zero, false) when it does not exist.
func (l *Library) Sound(name string) (types.AudioFrame, bool) {
	f, ok := l.sounds[name]
	return f, ok
}

// Ding returns the acknowledgment chime, or nil when it was not loaded.
func (l *Library) Ding() *types.AudioFrame {
	f, ok := l.sounds["ding"]
	if !ok {
		return nil
	}
	return &f
}

// Names lists the loaded sound names.
func (l *Library) Names() []string {
	out := make([]string, 0, len(l.sounds))
	for name := range l.sounds {
		out = append(out, name)
	}
	return out
}

// DecodeWAV parses a RIFF/WAVE file containing 16-bit PCM and returns the
// raw samples. Only PCM is supported; compressed formats are rejected.
func DecodeWAV(data []byte) (types.AudioFrame, error) {
	if len(data) < 12 || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return types.AudioFrame{}, fmt.Errorf("assets: not a RIFF/WAVE file")
	}

	var (
		sampleRate    int
		channels      int
		bitsPerSample int
		pcm           []byte
		haveFmt       bool
	)

	// Walk the chunk list. Chunks are aligned to even byte offsets.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return types.AudioFrame{}, fmt.Errorf("assets: truncated %q chunk", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return types.AudioFrame{}, fmt.Errorf("assets: short fmt chunk")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return types.AudioFrame{}, fmt.Errorf("assets: unsupported WAV format %d, want PCM", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !haveFmt {
		return types.AudioFrame{}, fmt.Errorf("assets: missing fmt chunk")
	}
	if pcm == nil {
		return types.AudioFrame{}, fmt.Errorf("assets: missing data chunk")
	}
	if bitsPerSample != 16 {
		return types.AudioFrame{}, fmt.Errorf("assets: unsupported bit depth %d, want 16", bitsPerSample)
	}
	if channels < 1 || channels > 2 {
		return types.AudioFrame{}, fmt.Errorf("assets: unsupported channel count %d", channels)
	}
	if sampleRate <= 0 {
		return types.AudioFrame{}, fmt.Errorf("assets: invalid sample rate %d", sampleRate)
	}

	return types.AudioFrame{
		Data:       pcm,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}
