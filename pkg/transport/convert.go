package transport

import (
	"log/slog"
	"sync"

	"github.com/fbruhn/sprechzeit/pkg/types"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// FormatConverter converts audio frames to a target format. Conversion order
// is resample first, then channel conversion, so stereo input headed for mono
// output is never resampled twice as wide. Create one per stream; not safe
// for shared use across goroutines.
type FormatConverter struct {
	Target       Format
	warnMismatch sync.Once
	warnCorrupt  sync.Once
}

// Convert converts frame to the target format. A frame already in the target
// format is returned unchanged without allocation. Frames with an odd byte
// count cannot be int16 PCM and come back with nil Data.
func (c *FormatConverter) Convert(frame types.AudioFrame) types.AudioFrame {
	if len(frame.Data)%2 != 0 {
		c.warnCorrupt.Do(func() {
			slog.Warn("transport: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data), "sampleRate", frame.SampleRate)
		})
		return types.AudioFrame{
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnMismatch.Do(func() {
		slog.Debug("transport: converting audio format",
			"fromRate", frame.SampleRate, "fromChannels", frame.Channels,
			"toRate", c.Target.SampleRate, "toChannels", c.Target.Channels)
	})

	pcm := frame.Data
	rate, channels := frame.SampleRate, frame.Channels

	if rate != c.Target.SampleRate {
		pcm = Resample16(pcm, channels, rate, c.Target.SampleRate)
		rate = c.Target.SampleRate
	}
	if channels != c.Target.Channels {
		switch {
		case channels == 1 && c.Target.Channels == 2:
			pcm = MonoToStereo(pcm)
		case channels == 2 && c.Target.Channels == 1:
			pcm = StereoToMono(pcm)
		}
		channels = c.Target.Channels
	}

	return types.AudioFrame{
		Data:       pcm,
		SampleRate: rate,
		Channels:   channels,
		Timestamp:  frame.Timestamp,
	}
}

// MonoToStereo duplicates each int16 mono sample into an L+R pair.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j], out[j+1] = lo, hi
		out[j+2], out[j+3] = lo, hi
	}
	return out
}

// StereoToMono averages L+R per 4-byte stereo frame, clamped to int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// Resample16 resamples 16-bit little-endian PCM from srcRate to dstRate using
// linear interpolation. channels must be 1 or 2; interleaved frames are
// resampled per channel. Input is returned unchanged when the rates match.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	if channels != 1 && channels != 2 {
		return pcm
	}
	stride := channels * 2
	if len(pcm) < stride {
		return pcm
	}

	srcFrames := len(pcm) / stride
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*stride)
	ratio := float64(srcRate) / float64(dstRate)

	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		for ch := 0; ch < channels; ch++ {
			off := srcIdx*stride + ch*2
			s0 := int16(pcm[off]) | int16(pcm[off+1])<<8
			s1 := s0
			if srcIdx+1 < srcFrames {
				next := (srcIdx+1)*stride + ch*2
				s1 = int16(pcm[next]) | int16(pcm[next+1])<<8
			}
			v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			dst := i*stride + ch*2
			out[dst] = byte(v)
			out[dst+1] = byte(v >> 8)
		}
	}
	return out
}
